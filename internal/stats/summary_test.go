package stats

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/randomizedcoder/go-processjob/internal/job"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		want     string
	}{
		{"zero", 0, "00:00:00"},
		{"one second", time.Second, "00:00:01"},
		{"one minute", time.Minute, "00:01:00"},
		{"one hour", time.Hour, "01:00:00"},
		{"mixed", 2*time.Hour + 30*time.Minute + 45*time.Second, "02:30:45"},
		{"24 hours", 24 * time.Hour, "24:00:00"},
		{"sub-second", 500 * time.Millisecond, "00:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDuration(tt.duration); got != tt.want {
				t.Errorf("FormatDuration(%v) = %q, want %q", tt.duration, got, tt.want)
			}
		})
	}
}

func TestFormatMs(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		want     string
	}{
		{"zero", 0, "0 ms"},
		{"1 ms", time.Millisecond, "1 ms"},
		{"1 second", time.Second, "1000 ms"},
		{"sub-ms", 500 * time.Microsecond, "500 µs"},
		{"long", 90 * time.Second, "90.0 s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatMs(tt.duration); got != tt.want {
				t.Errorf("FormatMs(%v) = %q, want %q", tt.duration, got, tt.want)
			}
		})
	}
}

func TestExitCodeLabel(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "(clean)"},
		{1, "(error)"},
		{127, "(not found)"},
		{137, "(SIGKILL)"},
		{143, "(SIGTERM)"},
		{42, ""},
	}

	for _, tt := range tests {
		if got := exitCodeLabel(tt.code); got != tt.want {
			t.Errorf("exitCodeLabel(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestExitColumn(t *testing.T) {
	tests := []struct {
		name string
		cr   job.CommandResult
		want string
	}{
		{"clean", job.CommandResult{ExitCode: 0}, "0 (clean)"},
		{"plain code", job.CommandResult{ExitCode: 3}, "3"},
		{"killed", job.CommandResult{ExitCode: 137}, "137 (SIGKILL)"},
		{"never started", job.CommandResult{ExitCode: -1, Err: errors.New("exec: not found")}, "(not started)"},
		{"config", job.CommandResult{ExitCode: -1, Err: &job.ConfigurationError{Index: 0}}, "(config)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitColumn(tt.cr); got != tt.want {
				t.Errorf("exitColumn() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		name   string
		result *job.Result
		err    error
		want   string
	}{
		{"succeeded", &job.Result{Succeeded: true}, nil, "succeeded"},
		{"failed", &job.Result{}, errors.New("boom"), "failed"},
		{"cancelled wins", &job.Result{Cancelled: true}, errors.New("signal: terminated"), "cancelled"},
		{"nil result", nil, errors.New("load"), "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Outcome(tt.result, tt.err); got != tt.want {
				t.Errorf("Outcome() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatExitSummary_Success(t *testing.T) {
	result := &job.Result{
		Name:      "nightly-etl",
		Succeeded: true,
		Elapsed:   65 * time.Second,
		Commands: []job.CommandResult{
			{Index: 0, Command: "echo 1", Args: []string{"echo", "1"}, Pid: 101, Elapsed: 5 * time.Millisecond},
			{Index: 1, Command: `echo "a b"`, Args: []string{"echo", "a b"}, Pid: 102, Elapsed: 7 * time.Millisecond},
		},
		Output: map[string]string{"rows": "42", "batch": "7"},
	}

	out := FormatExitSummary(result, nil, SummaryConfig{
		MetricsAddr: "127.0.0.1:17091",
		DurationP50: 5 * time.Millisecond,
		DurationP95: 7 * time.Millisecond,
		DurationMax: 7 * time.Millisecond,
	})

	for _, want := range []string{
		"processjob Exit Summary",
		"Job:                    nightly-etl",
		"Outcome:                succeeded",
		"Run Duration:           00:01:05",
		"Commands Reached:       2",
		"0 (clean)",
		"echo 'a b'",
		"101",
		"Duration p50/p95/max:  5 ms / 7 ms / 7 ms",
		"batch = 7\n  rows = 42",
		"http://127.0.0.1:17091/metrics",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Error:") {
		t.Error("successful summary should not show an error")
	}
}

func TestFormatExitSummary_Failure(t *testing.T) {
	runErr := &job.ExecutionError{Index: 1, Command: "false", Pid: 7, ExitCode: 1, Err: errors.New("exit status 1")}
	result := &job.Result{
		Name: "etl",
		Commands: []job.CommandResult{
			{Index: 0, Command: "true", Args: []string{"true"}, Pid: 6},
			{Index: 1, Command: "false", Args: []string{"false"}, Pid: 7, ExitCode: 1, Err: runErr},
		},
	}

	out := FormatExitSummary(result, runErr, SummaryConfig{
		StderrTail:      []string{"loading batch", "disk full"},
		KillEscalations: 1,
	})

	for _, want := range []string{
		"Outcome:                failed",
		"Forced Kills:           1",
		"1 (error)",
		"Error: command 1",
		"Recent stderr:",
		"  | disk full",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Metrics endpoint") {
		t.Error("summary should not mention metrics when disabled")
	}
	if strings.Contains(out, "Duration p50") {
		t.Error("duration line needs a digest")
	}
}

func TestFormatExitSummary_NilResult(t *testing.T) {
	out := FormatExitSummary(nil, errors.New("no job"), SummaryConfig{})
	if !strings.Contains(out, "Outcome:                failed") {
		t.Errorf("summary = %s", out)
	}
	if strings.Contains(out, "Commands Reached") {
		t.Error("nil result has no commands")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	got := truncate(strings.Repeat("x", 20), 10)
	if len([]rune(got)) != 10 || !strings.HasSuffix(got, "…") {
		t.Errorf("truncate(long) = %q", got)
	}
}

func TestCommandColumn(t *testing.T) {
	if got := commandColumn(job.CommandResult{Command: "   "}); got != `"   "` {
		t.Errorf("commandColumn(empty args) = %q", got)
	}
	if got := commandColumn(job.CommandResult{Args: []string{"sh", "-c", "echo hi"}}); got != "sh -c 'echo hi'" {
		t.Errorf("commandColumn(args) = %q", got)
	}
}
