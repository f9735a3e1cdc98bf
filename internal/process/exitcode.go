package process

import (
	"errors"
	"os/exec"
	"syscall"
)

// ExitCode extracts the exit code from a Wait() error.
// Signalled processes report 128 + the signal number, as shells do.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
		return exitErr.ExitCode()
	}

	// Unknown error, assume exit code 1
	return 1
}
