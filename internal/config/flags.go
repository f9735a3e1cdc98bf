package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// ParseFlags parses the process command line and returns a Config.
func ParseFlags() (*Config, error) {
	return ParseArgs(os.Args[1:], os.Stderr)
}

// ParseArgs parses args (without the program name). Usage and parse errors
// are written to out. flag.ErrHelp is returned for -h.
func ParseArgs(args []string, out io.Writer) (*Config, error) {
	cfg := DefaultConfig()
	fs := flag.NewFlagSet("processjob", flag.ContinueOnError)
	fs.SetOutput(out)

	fs.Usage = func() {
		fmt.Fprintf(out, `processjob - run a job's shell commands as supervised child processes

Usage:
  processjob [flags] <JOB_FILE>

Job Flags:
`)
		printFlagCategory(fs, out, []string{"job", "props-dir"})

		fmt.Fprintf(out, "\nObservability:\n")
		printFlagCategory(fs, out, []string{"metrics", "v", "log-format", "log-level"})

		fmt.Fprintf(out, "\nDashboard:\n")
		printFlagCategory(fs, out, []string{"tui"})

		fmt.Fprintf(out, "\nDiagnostics:\n")
		printFlagCategory(fs, out, []string{"print-cmd", "skip-preflight", "version"})

		fmt.Fprintf(out, `
Exit Codes:
  0    all commands succeeded
  1    a command failed or the configuration is invalid
  130  the job was cancelled

Examples:
  # Run a job file
  processjob nightly-etl.hcl

  # Show the argument vectors without running anything
  processjob -print-cmd nightly-etl.hcl

  # Expose Prometheus metrics while the job runs
  processjob -metrics 127.0.0.1:17091 -log-format text nightly-etl.hcl

`)
	}

	// Job
	fs.StringVar(&cfg.JobFile, "job", cfg.JobFile, "Path to the HCL job file (or first positional argument)")
	fs.StringVar(&cfg.PropsDir, "props-dir", cfg.PropsDir, "Directory for property files (default: system temp dir)")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address (empty disables)")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging, including child stdout")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn", "error"`)

	// Dashboard
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Show live terminal dashboard (press c to cancel)")

	// Diagnostics
	fs.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print each command's argument vector and exit")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")
	fs.BoolVar(&cfg.ShowVersion, "version", cfg.ShowVersion, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Positional argument: job file
	if rest := fs.Args(); len(rest) >= 1 && cfg.JobFile == "" {
		cfg.JobFile = rest[0]
	}

	return cfg, nil
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, out io.Writer, names []string) {
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(out, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" {
					fmt.Fprintf(out, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(out)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	if bf, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && bf.IsBoolFlag() {
		return ""
	}
	if strings.Contains(f.Name, "dir") || f.Name == "job" {
		return "path"
	}
	return "string"
}
