package stats

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/randomizedcoder/go-processjob/internal/cmdline"
	"github.com/randomizedcoder/go-processjob/internal/job"
)

const (
	heavyRule = "═══════════════════════════════════════════════════════════════════════════════\n"
	lightRule = "───────────────────────────────────────────────────────────────────────────────\n"

	// maxCommandWidth is where long commands are cut in the table.
	maxCommandWidth = 48
)

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string

	// StderrTail holds the last stderr lines, shown when the job failed
	StderrTail []string

	// KillEscalations is the number of forced kills (from metrics.Collector)
	KillEscalations int64

	// DurationP50, DurationP95, DurationMax are command duration statistics
	DurationP50 time.Duration
	DurationP95 time.Duration
	DurationMax time.Duration
}

// Outcome names how a run ended.
func Outcome(result *job.Result, err error) string {
	switch {
	case result != nil && result.Cancelled:
		return "cancelled"
	case err == nil && result != nil && result.Succeeded:
		return "succeeded"
	default:
		return "failed"
	}
}

// FormatExitSummary formats a finished run for display at program exit.
//
// The summary includes:
// - Run information and outcome
// - One row per command that was reached
// - The error, and the last stderr lines, when the run failed
// - Output properties when it succeeded
func FormatExitSummary(result *job.Result, runErr error, cfg SummaryConfig) string {
	var b strings.Builder

	name := ""
	var elapsed time.Duration
	if result != nil {
		name = result.Name
		elapsed = result.Elapsed
	}

	b.WriteString("\n")
	b.WriteString(heavyRule)
	fmt.Fprintf(&b, "%s\n", center("processjob Exit Summary", 79))
	b.WriteString(heavyRule + "\n")

	fmt.Fprintf(&b, "Job:                    %s\n", name)
	fmt.Fprintf(&b, "Outcome:                %s\n", Outcome(result, runErr))
	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(elapsed))
	if result != nil {
		fmt.Fprintf(&b, "Commands Reached:       %d\n", len(result.Commands))
	}
	if cfg.KillEscalations > 0 {
		fmt.Fprintf(&b, "Forced Kills:           %d\n", cfg.KillEscalations)
	}
	b.WriteString("\n")

	if result != nil && len(result.Commands) > 0 {
		b.WriteString(lightRule)
		fmt.Fprintf(&b, "%s\n", center("Commands", 79))
		b.WriteString(lightRule + "\n")

		fmt.Fprintf(&b, "  %-3s %-16s %10s %8s  %s\n", "#", "Exit", "Duration", "PID", "Command")
		b.WriteString("  " + strings.Repeat("─", 75) + "\n")
		for _, cr := range result.Commands {
			fmt.Fprintf(&b, "  %-3d %-16s %10s %8s  %s\n",
				cr.Index,
				exitColumn(cr),
				FormatMs(cr.Elapsed),
				pidColumn(cr.Pid),
				truncate(commandColumn(cr), maxCommandWidth),
			)
		}
		b.WriteString("\n")

		if cfg.DurationMax > 0 {
			fmt.Fprintf(&b, "  Duration p50/p95/max:  %s / %s / %s\n\n",
				FormatMs(cfg.DurationP50), FormatMs(cfg.DurationP95), FormatMs(cfg.DurationMax))
		}
	}

	if runErr != nil {
		fmt.Fprintf(&b, "Error: %v\n\n", runErr)
		if len(cfg.StderrTail) > 0 {
			b.WriteString("Recent stderr:\n")
			for _, line := range cfg.StderrTail {
				fmt.Fprintf(&b, "  | %s\n", line)
			}
			b.WriteString("\n")
		}
	}

	if result != nil && len(result.Output) > 0 {
		b.WriteString("Output Properties:\n")
		keys := make([]string, 0, len(result.Output))
		for k := range result.Output {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s = %s\n", k, result.Output[k])
		}
		b.WriteString("\n")
	}

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}

	b.WriteString(heavyRule)

	return b.String()
}

func exitColumn(cr job.CommandResult) string {
	var cfgErr *job.ConfigurationError
	switch {
	case errors.As(cr.Err, &cfgErr):
		return "(config)"
	case cr.ExitCode < 0:
		return "(not started)"
	}
	label := exitCodeLabel(cr.ExitCode)
	if label == "" {
		return fmt.Sprintf("%d", cr.ExitCode)
	}
	return fmt.Sprintf("%d %s", cr.ExitCode, label)
}

func pidColumn(pid int) string {
	if pid == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", pid)
}

func commandColumn(cr job.CommandResult) string {
	if len(cr.Args) > 0 {
		return cmdline.Join(cr.Args)
	}
	return fmt.Sprintf("%q", cr.Command)
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 126:
		return "(not executable)"
	case 127:
		return "(not found)"
	case 130:
		return "(SIGINT)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

func center(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	return strings.Repeat(" ", (width-n)/2) + s
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatMs formats a duration as milliseconds, or seconds past ten seconds.
func FormatMs(d time.Duration) string {
	if d >= 10*time.Second {
		return fmt.Sprintf("%.1f s", d.Seconds())
	}
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}
