// Package process provides abstractions for running external processes.
package process

import (
	"context"
	"io"
	"time"
)

// Signal is a termination request delivered to a running process.
type Signal int

const (
	// Graceful asks the process to exit. It may be caught or ignored.
	Graceful Signal = iota

	// Forced terminates the process and cannot be caught.
	Forced
)

// String returns a human-readable name for the signal.
func (s Signal) String() string {
	switch s {
	case Graceful:
		return "graceful"
	case Forced:
		return "forced"
	default:
		return "unknown"
	}
}

// Request describes one process to spawn.
type Request struct {
	// Args is the argument vector. Args[0] is the program.
	Args []string

	// Env holds variables layered on top of the parent environment.
	Env map[string]string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Stdout and Stderr receive the child's output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
}

// Spawner starts processes.
// This interface allows the job runner to be decoupled from os/exec.
type Spawner interface {
	// Spawn starts the process described by req and returns a handle to it.
	// The returned handle is live: the process has been started.
	Spawn(ctx context.Context, req Request) (Handle, error)
}

// Handle is a reference to a started process.
// All methods are safe for concurrent use.
type Handle interface {
	// Pid returns the operating system process ID.
	Pid() int

	// Signal delivers a termination request. Signalling a process that has
	// already exited is not an error.
	Signal(sig Signal) error

	// Wait blocks until the process exits. It returns nil on a zero exit
	// status and an error describing the failure otherwise.
	Wait() error

	// WaitTimeout waits up to d for the process to exit and reports
	// whether it did.
	WaitTimeout(d time.Duration) bool

	// Exited reports whether the process has exited. It does not block.
	Exited() bool
}
