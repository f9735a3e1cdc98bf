//go:build !windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup starts the child in a new process group.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// signalGroup sends SIGTERM or SIGKILL to the process group led by p,
// falling back to p alone if the group cannot be resolved.
func signalGroup(p *os.Process, sig Signal) error {
	s := unix.SIGTERM
	if sig == Forced {
		s = unix.SIGKILL
	}

	if pgid, err := unix.Getpgid(p.Pid); err == nil && pgid == p.Pid {
		if err := unix.Kill(-pgid, s); err != nil && !errors.Is(err, unix.ESRCH) {
			return err
		}
		return nil
	}

	if err := p.Signal(s); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
