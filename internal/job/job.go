// Package job runs a configured sequence of commands as child processes and
// exposes a cancellable, progress-observable handle to the run.
//
// Commands run strictly one after another: later commands may depend on what
// earlier ones wrote to the output property file. The first failure aborts the
// sequence. While a command is running, Cancel and Progress may be called from
// other goroutines.
package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-processjob/internal/cmdline"
	"github.com/randomizedcoder/go-processjob/internal/process"
	"github.com/randomizedcoder/go-processjob/internal/propfile"
)

// KillTimeout is how long Cancel waits after the graceful signal before
// forcing the process down, and again after the forced signal before giving up.
const KillTimeout = 5 * time.Second

// EnvJobName is exported to every command alongside the property file paths.
const EnvJobName = "JOB_NAME"

// ErrAlreadyRunning is returned by Run when the Runner is already running.
var ErrAlreadyRunning = errors.New("job is already running")

// Callbacks contains optional callback functions for runner events.
type Callbacks struct {
	// OnStateChange is called when the runner state changes.
	OnStateChange func(oldState, newState State)

	// OnStart is called after a command's process starts.
	OnStart func(index int, pid int)

	// OnExit is called after a command's process exits.
	OnExit func(index int, exitCode int, elapsed time.Duration)

	// OnCancel is called when Cancel accepts a request.
	OnCancel func(pid int)

	// OnEscalate is called when a graceful termination times out and the
	// process is killed.
	OnEscalate func(pid int)
}

// Config holds configuration for creating a new Runner.
type Config struct {
	// Name identifies the job in logs and is exported as JOB_NAME.
	Name string

	// Spawner starts processes. Defaults to process.NewExecSpawner().
	Spawner process.Spawner

	Logger    *slog.Logger
	Callbacks Callbacks

	// Stdout and Stderr receive the output of every command. Nil discards.
	Stdout io.Writer
	Stderr io.Writer
}

// Spec is one run's input. It is not modified by the Runner.
type Spec struct {
	// Commands are raw command strings, run in order.
	Commands []string

	// Env is layered on top of the parent environment for every command.
	Env map[string]string

	// Dir is the working directory of every command.
	Dir string

	// PropFiles are released when the run ends, on every path.
	// Their output is loaded after the last command succeeds. May be nil.
	PropFiles *propfile.Set
}

// CommandResult records one command's execution.
type CommandResult struct {
	Index    int
	Command  string
	Args     []string
	Pid      int
	ExitCode int // -1 if the process never ran
	Elapsed  time.Duration
	Err      error
}

// Result is the completion record of a run.
type Result struct {
	Name      string
	Commands  []CommandResult
	Output    map[string]string
	Elapsed   time.Duration
	Succeeded bool
	Cancelled bool
}

// Runner executes command sequences. It owns at most one live process at a
// time, installed when the process is spawned and cleared when it exits.
type Runner struct {
	name      string
	spawner   process.Spawner
	logger    *slog.Logger
	callbacks Callbacks
	stdout    io.Writer
	stderr    io.Writer

	killTimeout time.Duration

	// State management
	state   State
	stateMu sync.RWMutex

	// Live process. Only Run writes it; Cancel and Progress only read it.
	proc   process.Handle
	procMu sync.Mutex

	running   atomic.Bool
	cancelled atomic.Bool
}

// New creates a new Runner with the given configuration.
func New(cfg Config) *Runner {
	spawner := cfg.Spawner
	if spawner == nil {
		spawner = process.NewExecSpawner()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Runner{
		name:        cfg.Name,
		spawner:     spawner,
		logger:      logger,
		callbacks:   cfg.Callbacks,
		stdout:      cfg.Stdout,
		stderr:      cfg.Stderr,
		killTimeout: KillTimeout,
		state:       StateIdle,
	}
}

// Run executes spec.Commands in order and blocks until the sequence ends.
//
// The returned Result is never nil. A command that tokenizes to nothing fails
// the run with a *ConfigurationError; a command that cannot start or exits
// with a non-zero status fails it with an *ExecutionError. No command after a
// failure is started. If ctx is cancelled while a command runs, the process
// is terminated as by Cancel.
func (r *Runner) Run(ctx context.Context, spec Spec) (res *Result, err error) {
	res = &Result{Name: r.name}
	if !r.running.CompareAndSwap(false, true) {
		return res, ErrAlreadyRunning
	}
	defer r.running.Store(false)

	r.cancelled.Store(false)
	r.setState(StateIdle)
	start := time.Now()

	defer func() {
		res.Elapsed = time.Since(start)
		res.Succeeded = err == nil
		res.Cancelled = r.cancelled.Load()

		if releaseErr := spec.PropFiles.Release(); releaseErr != nil {
			r.logger.Warn("property_file_cleanup_failed",
				"job", r.name,
				"error", releaseErr,
			)
		}

		r.setState(StateDone)
		r.logger.Info("job_completed",
			"job", r.name,
			"success", res.Succeeded,
			"cancelled", res.Cancelled,
			"commands_run", len(res.Commands),
			"elapsed_seconds", int(res.Elapsed.Seconds()),
		)
	}()

	if len(spec.Commands) == 0 {
		r.setState(StateFailed)
		return res, &ConfigurationError{Index: -1, Message: "no commands configured"}
	}

	r.logger.Info("job_starting",
		"job", r.name,
		"commands", len(spec.Commands),
		"dir", spec.Dir,
	)

	env := r.environment(spec)
	for i, command := range spec.Commands {
		cr, err := r.runCommand(ctx, i, command, env, spec.Dir, start)
		res.Commands = append(res.Commands, cr)
		if err != nil {
			return res, err
		}
	}

	output, err := spec.PropFiles.LoadOutput()
	if err != nil {
		return res, fmt.Errorf("job %s: %w", r.name, err)
	}
	res.Output = output

	return res, nil
}

// runCommand tokenizes, spawns and waits for one command.
func (r *Runner) runCommand(ctx context.Context, index int, command string, env map[string]string, dir string, jobStart time.Time) (CommandResult, error) {
	cr := CommandResult{Index: index, Command: command, ExitCode: -1}
	r.setState(StateIdle)

	args := cmdline.Split(command)
	if len(args) == 0 {
		r.setState(StateFailed)
		cr.Err = &ConfigurationError{Index: index, Command: command, Message: "command has no arguments"}
		return cr, cr.Err
	}
	cr.Args = args

	req := process.Request{
		Args:   args,
		Env:    env,
		Dir:    dir,
		Stdout: r.stdout,
		Stderr: r.stderr,
	}

	r.logger.Info("command_starting",
		"job", r.name,
		"index", index,
		"command", cmdline.Join(args),
		"dir", dir,
	)
	if len(env) > 0 {
		r.logger.Debug("command_environment",
			"job", r.name,
			"index", index,
			"env", env,
		)
	}

	start := time.Now()
	h, err := r.spawn(ctx, req)
	if err != nil {
		r.setState(StateFailed)
		r.logger.Error("failed_to_start_process",
			"job", r.name,
			"index", index,
			"error", err,
		)
		cr.Err = &ExecutionError{Index: index, Command: command, ExitCode: -1, Err: err}
		return cr, cr.Err
	}

	cr.Pid = h.Pid()
	r.setState(StateRunning)
	if r.callbacks.OnStart != nil {
		r.callbacks.OnStart(index, cr.Pid)
	}

	waitErr := func() error {
		defer r.clearProcess()
		return r.wait(ctx, h)
	}()

	cr.Elapsed = time.Since(start)
	cr.ExitCode = process.ExitCode(waitErr)

	// Cancel marks the run under procMu while the process is installed, so
	// once the slot is cleared the flag is final for this command.
	if waitErr == nil && r.cancelled.Load() {
		waitErr = ErrCancelled
	}

	if r.callbacks.OnExit != nil {
		r.callbacks.OnExit(index, cr.ExitCode, cr.Elapsed)
	}

	success := waitErr == nil
	r.logger.Info("process_completed",
		"job", r.name,
		"index", index,
		"pid", cr.Pid,
		"exit_code", cr.ExitCode,
		"success", success,
		"elapsed_seconds", int(time.Since(jobStart).Seconds()),
	)

	if !success {
		r.setState(StateFailed)
		cr.Err = &ExecutionError{
			Index:    index,
			Command:  command,
			Pid:      cr.Pid,
			ExitCode: cr.ExitCode,
			Err:      waitErr,
		}
		return cr, cr.Err
	}

	r.setState(StateSucceeded)
	return cr, nil
}

// spawn starts the process and installs it as the live process. The lock is
// held across Spawn so a concurrent Cancel sees either no process or the
// started one, never a process that is running but not yet visible.
func (r *Runner) spawn(ctx context.Context, req process.Request) (process.Handle, error) {
	r.procMu.Lock()
	defer r.procMu.Unlock()

	h, err := r.spawner.Spawn(ctx, req)
	if err != nil {
		return nil, err
	}
	r.proc = h
	return h, nil
}

// wait blocks until h exits. If ctx ends first the process is terminated.
func (r *Runner) wait(ctx context.Context, h process.Handle) error {
	done := make(chan error, 1)
	go func() {
		done <- h.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	r.logger.Warn("context_cancelled",
		"job", r.name,
		"pid", h.Pid(),
	)
	if err := r.terminate(h); err != nil {
		return errors.Join(ctx.Err(), err)
	}
	return errors.Join(ctx.Err(), <-done)
}

func (r *Runner) clearProcess() {
	r.procMu.Lock()
	r.proc = nil
	r.procMu.Unlock()
}

func (r *Runner) liveProcess() process.Handle {
	r.procMu.Lock()
	defer r.procMu.Unlock()
	return r.proc
}

// Cancel terminates the live process and ends the run: no later command is
// started, even if the process exits cleanly on the graceful signal. It sends
// the graceful signal, waits up to KillTimeout, and kills the process if it
// is still alive. It returns ErrNotStarted if no process is live. Cancel does
// not clear the live process; Run does that once the process has been reaped.
func (r *Runner) Cancel() error {
	r.procMu.Lock()
	h := r.proc
	if h != nil {
		r.cancelled.Store(true)
	}
	r.procMu.Unlock()
	if h == nil {
		return ErrNotStarted
	}

	if r.callbacks.OnCancel != nil {
		r.callbacks.OnCancel(h.Pid())
	}

	return r.terminate(h)
}

// terminate escalates from the graceful to the forced signal.
func (r *Runner) terminate(h process.Handle) error {
	pid := h.Pid()
	r.logger.Info("process_terminating",
		"job", r.name,
		"pid", pid,
		"timeout", r.killTimeout.String(),
	)

	if err := h.Signal(process.Graceful); err != nil {
		r.logger.Warn("graceful_signal_failed",
			"job", r.name,
			"pid", pid,
			"error", err,
		)
	}
	if h.WaitTimeout(r.killTimeout) {
		return nil
	}

	r.logger.Warn("kill_escalated",
		"job", r.name,
		"pid", pid,
		"reason", "process did not exit after graceful signal",
	)
	if r.callbacks.OnEscalate != nil {
		r.callbacks.OnEscalate(pid)
	}

	if err := h.Signal(process.Forced); err != nil {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	if !h.WaitTimeout(r.killTimeout) {
		return fmt.Errorf("pid %d still running %s after forced kill", pid, r.killTimeout)
	}
	return nil
}

// Progress returns 1.0 if the live process has finished and 0.0 otherwise,
// including when there is no live process.
func (r *Runner) Progress() float64 {
	h := r.liveProcess()
	if h != nil && h.Exited() {
		return 1.0
	}
	return 0.0
}

// Pid returns the live process ID, if any.
func (r *Runner) Pid() (int, bool) {
	h := r.liveProcess()
	if h == nil {
		return 0, false
	}
	return h.Pid(), true
}

// Name returns the job name.
func (r *Runner) Name() string {
	return r.name
}

// State returns the current state of the runner.
func (r *Runner) State() State {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.state
}

// setState updates the state and calls the callback if registered.
func (r *Runner) setState(newState State) {
	r.stateMu.Lock()
	oldState := r.state
	r.state = newState
	r.stateMu.Unlock()

	if r.callbacks.OnStateChange != nil && oldState != newState {
		r.callbacks.OnStateChange(oldState, newState)
	}
}

// environment builds the variables shared by every command.
func (r *Runner) environment(spec Spec) map[string]string {
	env := make(map[string]string, len(spec.Env)+3)
	for k, v := range spec.Env {
		env[k] = v
	}
	if r.name != "" {
		env[EnvJobName] = r.name
	}
	for k, v := range spec.PropFiles.Env() {
		env[k] = v
	}
	return env
}
