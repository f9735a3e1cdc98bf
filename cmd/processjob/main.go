// Package main provides the processjob CLI entry point.
//
// processjob runs the commands of a job file one after another as child
// processes, with property files, Prometheus metrics, an optional terminal
// dashboard and signal driven cancellation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/randomizedcoder/go-processjob/internal/cmdline"
	"github.com/randomizedcoder/go-processjob/internal/config"
	"github.com/randomizedcoder/go-processjob/internal/logging"
	"github.com/randomizedcoder/go-processjob/internal/orchestrator"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/processjob
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Parse command-line flags
	cfg, err := config.ParseFlags()
	if errors.Is(err, flag.ErrHelp) {
		return orchestrator.ExitOK
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return orchestrator.ExitFailure
	}

	if cfg.ShowVersion {
		fmt.Printf("processjob %s\n", version)
		return orchestrator.ExitOK
	}

	// Initialize logger
	// When TUI is enabled, suppress logs to avoid interfering with TUI rendering
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.Discard()
	} else {
		logger = logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	}
	logging.SetDefault(logger)

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return orchestrator.ExitFailure
	}

	jobDef, err := config.LoadJob(cfg.JobFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Job file error: %v\n", err)
		return orchestrator.ExitFailure
	}
	if err := config.ValidateJob(jobDef); err != nil {
		fmt.Fprintf(os.Stderr, "Job file error: %v\n", err)
		return orchestrator.ExitFailure
	}

	// Handle -print-cmd mode
	if cfg.PrintCmd {
		printCommands(os.Stdout, jobDef)
		return orchestrator.ExitOK
	}

	// Log startup
	logger.Info("starting",
		"version", version,
		"job", jobDef.Name,
		"source", jobDef.Source,
		"commands", len(jobDef.Commands),
		"metrics_addr", cfg.MetricsAddr,
	)

	if !cfg.TUIEnabled {
		printBanner(os.Stdout, cfg, jobDef)
	}

	// Create and run orchestrator
	orch := orchestrator.New(cfg, jobDef, version, logger)
	result, err := orch.Run(context.Background())
	if err != nil && result == nil {
		logger.Error("orchestrator_failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}

	return orchestrator.ExitCode(result, err)
}

// printBanner prints the startup banner.
func printBanner(w io.Writer, cfg *config.Config, jobDef *config.Job) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                            processjob                             ║")
	fmt.Fprintln(w, "║          Sequential Command Execution with Cancellation           ║")
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Job:         %s (%s)\n", jobDef.Name, jobDef.Source)
	fmt.Fprintf(w, "  Commands:    %d\n", len(jobDef.Commands))
	fmt.Fprintf(w, "  Directory:   %s\n", jobDef.WorkingDir)
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(w, "  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Press Ctrl+C to cancel.")
	fmt.Fprintln(w)
}

// printCommands prints the argument vector each command tokenizes to.
func printCommands(w io.Writer, jobDef *config.Job) {
	fmt.Fprintf(w, "# Commands for job %q (%s):\n", jobDef.Name, jobDef.Source)
	fmt.Fprintln(w)
	for i, command := range jobDef.Commands {
		args := cmdline.Split(command)
		if len(args) == 0 {
			fmt.Fprintf(w, "%d: (no arguments, fails as a configuration error)\n", i)
			continue
		}
		fmt.Fprintf(w, "%d: %s\n", i, cmdline.Join(args))
		fmt.Fprintf(w, "   argv: %q\n", args)
	}
}
