//go:build linux || darwin

package preflight

import (
	"math"

	"golang.org/x/sys/unix"
)

// openFileLimit returns the soft RLIMIT_NOFILE.
func openFileLimit() (int, error) {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		return 0, err
	}
	return clampLimit(limit.Cur), nil
}

// processLimit returns the soft RLIMIT_NPROC.
func processLimit() (int, error) {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NPROC, &limit); err != nil {
		return 0, err
	}
	return clampLimit(limit.Cur), nil
}

// clampLimit maps RLIM_INFINITY and other huge values into an int.
func clampLimit(v uint64) int {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}
