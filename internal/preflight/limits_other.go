//go:build !linux && !darwin

package preflight

import "errors"

var errNoRlimit = errors.New("resource limits are not checked on this platform")

func openFileLimit() (int, error) { return 0, errNoRlimit }

func processLimit() (int, error) { return 0, errNoRlimit }
