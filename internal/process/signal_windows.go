//go:build windows

package process

import (
	"errors"
	"os"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

// signalGroup terminates p. Windows has no catchable termination signal for
// console-less children, so both signals kill.
func signalGroup(p *os.Process, sig Signal) error {
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
