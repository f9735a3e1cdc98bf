package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// DefaultWaitDelay bounds how long Wait keeps copying output after the
// process exits, for children that leave grandchildren holding the pipes.
const DefaultWaitDelay = 2 * time.Second

// ExecSpawner spawns processes with os/exec. Each child is placed in its own
// process group so signals reach anything it forks.
type ExecSpawner struct {
	// WaitDelay overrides DefaultWaitDelay when positive.
	WaitDelay time.Duration
}

// NewExecSpawner returns an ExecSpawner with default settings.
func NewExecSpawner() *ExecSpawner {
	return &ExecSpawner{}
}

// Spawn implements Spawner.
func (s *ExecSpawner) Spawn(ctx context.Context, req Request) (Handle, error) {
	if len(req.Args) == 0 {
		return nil, errors.New("empty argument vector")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(req.Args[0], req.Args[1:]...)
	cmd.Env = MergeEnv(os.Environ(), req.Env)
	cmd.Dir = req.Dir
	cmd.Stdout = req.Stdout
	cmd.Stderr = req.Stderr
	cmd.WaitDelay = DefaultWaitDelay
	if s.WaitDelay > 0 {
		cmd.WaitDelay = s.WaitDelay
	}
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", req.Args[0], err)
	}

	h := &ExecHandle{
		cmd:  cmd,
		done: make(chan struct{}),
	}
	go h.wait()

	return h, nil
}

// ExecHandle is the Handle for a process started by ExecSpawner.
// cmd.Wait is called exactly once, by a background goroutine; every other
// method observes its completion through the done channel.
type ExecHandle struct {
	cmd *exec.Cmd

	done chan struct{}
	err  error // set before done is closed
}

func (h *ExecHandle) wait() {
	h.err = h.cmd.Wait()
	close(h.done)
}

// Pid implements Handle.
func (h *ExecHandle) Pid() int {
	return h.cmd.Process.Pid
}

// Signal implements Handle.
func (h *ExecHandle) Signal(sig Signal) error {
	if h.Exited() {
		return nil
	}
	return signalGroup(h.cmd.Process, sig)
}

// Wait implements Handle.
func (h *ExecHandle) Wait() error {
	<-h.done
	return h.err
}

// WaitTimeout implements Handle.
func (h *ExecHandle) WaitTimeout(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-h.done:
		return true
	case <-timer.C:
		return false
	}
}

// Exited implements Handle.
func (h *ExecHandle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// ExitCode returns the exit code of the finished process, or -1 if it is
// still running.
func (h *ExecHandle) ExitCode() int {
	if !h.Exited() {
		return -1
	}
	return ExitCode(h.err)
}

// MergeEnv layers vars on top of base, a list of KEY=VALUE entries as returned
// by os.Environ. Later definitions of a key replace earlier ones. The result
// keeps base order for inherited keys and appends new keys sorted by name.
func MergeEnv(base []string, vars map[string]string) []string {
	out := make([]string, 0, len(base)+len(vars))
	seen := make(map[string]bool, len(vars))

	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if v, ok := vars[key]; ok {
			if !seen[key] {
				out = append(out, key+"="+v)
				seen[key] = true
			}
			continue
		}
		out = append(out, kv)
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+vars[k])
	}

	return out
}
