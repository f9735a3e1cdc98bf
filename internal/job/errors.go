package job

import (
	"errors"
	"fmt"
)

// ErrNotStarted is returned by Cancel when no process is live.
var ErrNotStarted = errors.New("job not started: no process is running")

// ErrCancelled is wrapped by the ExecutionError of a command that exited
// cleanly after the run was cancelled.
var ErrCancelled = errors.New("job cancelled")

// ConfigurationError reports a command that cannot be run as configured.
type ConfigurationError struct {
	Index   int
	Command string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Index < 0 {
		return "configuration error: " + e.Message
	}
	return fmt.Sprintf("configuration error: command %d (%q): %s", e.Index, e.Command, e.Message)
}

// ExecutionError reports a command that failed to start or exited abnormally.
type ExecutionError struct {
	Index    int
	Command  string
	Pid      int // 0 if the process never started
	ExitCode int // -1 if the process never started
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.Pid == 0 {
		return fmt.Sprintf("command %d (%q) failed to start: %v", e.Index, e.Command, e.Err)
	}
	return fmt.Sprintf("command %d (%q) pid %d failed with exit code %d: %v",
		e.Index, e.Command, e.Pid, e.ExitCode, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
