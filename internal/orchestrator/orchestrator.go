// Package orchestrator wires the components of one processjob invocation:
// preflight, property files, the runner, metrics, the dashboard and signal
// driven cancellation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-processjob/internal/config"
	"github.com/randomizedcoder/go-processjob/internal/job"
	"github.com/randomizedcoder/go-processjob/internal/logging"
	"github.com/randomizedcoder/go-processjob/internal/metrics"
	"github.com/randomizedcoder/go-processjob/internal/preflight"
	"github.com/randomizedcoder/go-processjob/internal/propfile"
	"github.com/randomizedcoder/go-processjob/internal/stats"
	"github.com/randomizedcoder/go-processjob/internal/tui"
)

// Process exit codes.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitCancelled = 130
)

const (
	// stderrTailLines is how many stderr lines the exit summary shows.
	stderrTailLines = 10

	shutdownTimeout = 5 * time.Second
)

// Orchestrator coordinates all components for one job run.
type Orchestrator struct {
	config *config.Config
	job    *config.Job
	logger *slog.Logger

	// out receives preflight results and the exit summary.
	out io.Writer

	runner        *job.Runner
	metrics       *metrics.Collector
	metricsServer *metrics.Server
	stats         *stats.JobStats
	stdout        *logging.OutputHandler
	stderr        *logging.OutputHandler
	program       *tea.Program

	startTime time.Time
}

// New creates an Orchestrator for a loaded and validated job.
func New(cfg *config.Config, jobDef *config.Job, version string, logger *slog.Logger) *Orchestrator {
	collector := metrics.NewCollector(metrics.CollectorConfig{
		JobName:  jobDef.Name,
		Version:  version,
		Commands: len(jobDef.Commands),
	})

	var metricsServer *metrics.Server
	if cfg.MetricsAddr != "" {
		metricsServer = metrics.NewServer(cfg.MetricsAddr, collector.Registry(), logger)
	}

	o := &Orchestrator{
		config:        cfg,
		job:           jobDef,
		logger:        logger,
		out:           os.Stdout,
		metrics:       collector,
		metricsServer: metricsServer,
		stats:         stats.NewJobStats(jobDef.Name, len(jobDef.Commands)),
		stdout:        logging.NewOutputHandler(jobDef.Name, "stdout", logger, cfg.Verbose),
		stderr:        logging.NewOutputHandler(jobDef.Name, "stderr", logger, cfg.Verbose),
	}

	o.runner = job.New(job.Config{
		Name:   jobDef.Name,
		Logger: logger,
		Stdout: o.stdout,
		Stderr: o.stderr,
		Callbacks: job.Callbacks{
			OnStateChange: o.onStateChange,
			OnStart:       o.onStart,
			OnExit:        o.onExit,
			OnCancel:      o.onCancel,
			OnEscalate:    o.onEscalate,
		},
	})

	return o
}

// Run executes the job. It blocks until the command sequence ends, the job
// is cancelled by a signal or the dashboard, or setup fails. The returned
// Result is nil only when the runner was never reached.
func (o *Orchestrator) Run(ctx context.Context) (*job.Result, error) {
	o.startTime = time.Now()

	// Run preflight checks
	if !o.config.SkipPreflight {
		result := preflight.RunAll(preflight.Options{
			WorkingDir: o.job.WorkingDir,
			PropsDir:   o.config.PropsDir,
			Commands:   o.job.Commands,
		})
		preflight.PrintResults(o.out, result)
		if !result.Passed {
			return nil, fmt.Errorf("preflight checks failed (use -skip-preflight to override)")
		}
	}

	props, err := propfile.Create(o.config.PropsDir, o.job.Name, o.job.Properties)
	if err != nil {
		return nil, fmt.Errorf("failed to create property files: %w", err)
	}

	// Start metrics server
	if o.metricsServer != nil {
		if err := o.metricsServer.Start(); err != nil {
			if relErr := props.Release(); relErr != nil {
				o.logger.Warn("property_file_cleanup_failed", "job", o.job.Name, "error", relErr)
			}
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
		o.metricsServer.SetReady(true)
	}

	// Setup signal handling
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)
	go o.watchSignals(ctx, sigCh, cancel)

	tuiDone := o.startTUI(cancel)

	o.logger.Info("job_run_starting",
		"job", o.job.Name,
		"commands", len(o.job.Commands),
		"dir", o.job.WorkingDir,
		"source", o.job.Source,
	)

	result, runErr := o.runner.Run(ctx, job.Spec{
		Commands:  o.job.Commands,
		Env:       o.job.Env,
		Dir:       o.job.WorkingDir,
		PropFiles: props,
	})
	cancel()

	o.stdout.Flush()
	o.stderr.Flush()
	o.recordSpawnFailures(result)

	outcome := stats.Outcome(result, runErr)
	o.stopTUI(tuiDone, outcome)

	o.logger.Info("job_run_finished",
		"job", o.job.Name,
		"outcome", outcome,
		"elapsed_seconds", int(time.Since(o.startTime).Seconds()),
	)

	if o.metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := o.metricsServer.Shutdown(shutdownCtx); err != nil {
			o.logger.Warn("metrics_server_shutdown_error", "error", err)
		}
	}

	// Print exit summary
	o.printExitSummary(result, runErr)

	return result, runErr
}

// watchSignals turns SIGINT/SIGTERM into a job cancellation.
func (o *Orchestrator) watchSignals(ctx context.Context, sigCh <-chan os.Signal, cancelRun context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			o.logger.Info("received_signal", "job", o.job.Name, "signal", sig.String())

			if err := o.cancelJob(cancelRun); err != nil {
				o.logger.Warn("cancel_failed", "job", o.job.Name, "error", err)
			}
		}
	}
}

// cancelJob stops the live process, or cancels the run context when the
// sequence is between commands so the next spawn never happens.
func (o *Orchestrator) cancelJob(cancelRun context.CancelFunc) error {
	err := o.runner.Cancel()
	if errors.Is(err, job.ErrNotStarted) {
		cancelRun()
		return nil
	}
	return err
}

// recordSpawnFailures counts commands whose process never started. The
// runner reports those without an OnExit callback.
func (o *Orchestrator) recordSpawnFailures(result *job.Result) {
	if result == nil {
		return
	}
	for _, cr := range result.Commands {
		var execErr *job.ExecutionError
		if cr.Pid == 0 && errors.As(cr.Err, &execErr) {
			o.metrics.CommandFailedToStart()
		}
	}
}

// startTUI runs the dashboard in the background. It returns a channel closed
// when the dashboard has exited, or nil when the dashboard is disabled.
func (o *Orchestrator) startTUI(cancelRun context.CancelFunc) chan struct{} {
	if !o.config.TUIEnabled {
		return nil
	}

	model := tui.New(tui.Config{
		JobName:     o.job.Name,
		Commands:    o.job.Commands,
		MetricsAddr: o.metricsAddr(),
		StatsSource: o.stats,
		Progress:    o.runner.Progress,
		RecentLines: o.stdout.RecentLines,
		Cancel:      func() error { return o.cancelJob(cancelRun) },
	})
	o.program = tea.NewProgram(model, tea.WithAltScreen())

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := o.program.Run(); err != nil {
			o.logger.Warn("tui_error", "error", err)
		}
	}()
	return done
}

func (o *Orchestrator) stopTUI(done chan struct{}, outcome string) {
	if done == nil {
		return
	}
	tui.SendDone(o.program, outcome)
	<-done
}

func (o *Orchestrator) metricsAddr() string {
	if o.metricsServer == nil {
		return ""
	}
	return o.metricsServer.Addr()
}

// Callback handlers

func (o *Orchestrator) onStateChange(oldState, newState job.State) {
	o.stats.OnStateChange(oldState, newState)

	if o.config.Verbose {
		o.logger.Debug("runner_state_changed",
			"job", o.job.Name,
			"from", oldState.String(),
			"to", newState.String(),
		)
	}
}

func (o *Orchestrator) onStart(index int, pid int) {
	o.metrics.CommandStarted(index)
	o.stats.OnStart(index, pid)
}

func (o *Orchestrator) onExit(index int, exitCode int, elapsed time.Duration) {
	o.metrics.CommandExited(exitCode, elapsed)
	o.stats.OnExit(index, exitCode, elapsed)
}

func (o *Orchestrator) onCancel(pid int) {
	o.metrics.Cancelled()
	o.stats.OnCancel(pid)
}

func (o *Orchestrator) onEscalate(pid int) {
	o.metrics.KillEscalated()
	o.stats.OnEscalate(pid)
}

// printExitSummary prints a summary of the run.
func (o *Orchestrator) printExitSummary(result *job.Result, runErr error) {
	summary := o.metrics.GenerateSummary()

	fmt.Fprint(o.out, stats.FormatExitSummary(result, runErr, stats.SummaryConfig{
		MetricsAddr:     o.metricsAddr(),
		StderrTail:      o.stderr.RecentLines(stderrTailLines),
		KillEscalations: summary.KillEscalations,
		DurationP50:     summary.DurationP50,
		DurationP95:     summary.DurationP95,
		DurationMax:     summary.DurationMax,
	}))
}

// ExitCode maps the outcome of Run to the process exit code.
func ExitCode(result *job.Result, err error) int {
	switch {
	case result != nil && result.Cancelled:
		return ExitCancelled
	case errors.Is(err, context.Canceled):
		return ExitCancelled
	case err != nil:
		return ExitFailure
	case result == nil || !result.Succeeded:
		return ExitFailure
	default:
		return ExitOK
	}
}

// Runner returns the job runner for external access.
func (o *Orchestrator) Runner() *job.Runner {
	return o.runner
}

// Metrics returns the metrics collector for external access.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}

// Stats returns the live job statistics.
func (o *Orchestrator) Stats() *stats.JobStats {
	return o.stats
}
