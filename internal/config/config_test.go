package config

import (
	"bytes"
	"errors"
	"flag"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want json", cfg.LogFormat)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.MetricsAddr != "" {
		t.Errorf("MetricsAddr = %q, want disabled by default", cfg.MetricsAddr)
	}
	if cfg.TUIEnabled {
		t.Error("TUIEnabled should default to false")
	}
}

func TestParseArgs(t *testing.T) {
	testCases := []struct {
		name  string
		args  []string
		check func(t *testing.T, cfg *Config)
	}{
		{
			name: "positional job file",
			args: []string{"etl.hcl"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.JobFile != "etl.hcl" {
					t.Errorf("JobFile = %q, want etl.hcl", cfg.JobFile)
				}
			},
		},
		{
			name: "job flag wins over positional",
			args: []string{"-job", "a.hcl", "b.hcl"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.JobFile != "a.hcl" {
					t.Errorf("JobFile = %q, want a.hcl", cfg.JobFile)
				}
			},
		},
		{
			name: "all flags",
			args: []string{
				"-props-dir", "/tmp/props",
				"-metrics", "127.0.0.1:9999",
				"-v",
				"-log-format", "text",
				"-log-level", "debug",
				"-tui",
				"-skip-preflight",
				"job.hcl",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.PropsDir != "/tmp/props" {
					t.Errorf("PropsDir = %q", cfg.PropsDir)
				}
				if cfg.MetricsAddr != "127.0.0.1:9999" {
					t.Errorf("MetricsAddr = %q", cfg.MetricsAddr)
				}
				if !cfg.Verbose || !cfg.TUIEnabled || !cfg.SkipPreflight {
					t.Errorf("bool flags not set: %+v", cfg)
				}
				if cfg.LogFormat != "text" || cfg.LogLevel != "debug" {
					t.Errorf("log flags = %q/%q", cfg.LogFormat, cfg.LogLevel)
				}
			},
		},
		{
			name: "print-cmd and version",
			args: []string{"-print-cmd", "-version"},
			check: func(t *testing.T, cfg *Config) {
				if !cfg.PrintCmd || !cfg.ShowVersion {
					t.Errorf("PrintCmd=%v ShowVersion=%v", cfg.PrintCmd, cfg.ShowVersion)
				}
				if cfg.JobFile != "" {
					t.Errorf("JobFile = %q, want empty", cfg.JobFile)
				}
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			cfg, err := ParseArgs(tc.args, &out)
			if err != nil {
				t.Fatalf("ParseArgs() error: %v (%s)", err, out.String())
			}
			tc.check(t, cfg)
		})
	}
}

func TestParseArgs_UnknownFlag(t *testing.T) {
	var out bytes.Buffer
	if _, err := ParseArgs([]string{"-workers", "5"}, &out); err == nil {
		t.Error("expected error for unknown flag")
	}
}

func TestParseArgs_Help(t *testing.T) {
	var out bytes.Buffer
	_, err := ParseArgs([]string{"-h"}, &out)
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("ParseArgs(-h) error = %v, want flag.ErrHelp", err)
	}

	usage := out.String()
	for _, want := range []string{"Job Flags:", "Observability:", "-props-dir", "-print-cmd", "130"} {
		if !strings.Contains(usage, want) {
			t.Errorf("usage missing %q", want)
		}
	}
}

func TestFlagType(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Bool("tui", false, "")
	fs.String("job", "", "")
	fs.String("props-dir", "", "")
	fs.String("metrics", "", "")

	testCases := []struct {
		name     string
		expected string
	}{
		{"tui", ""},
		{"job", "path"},
		{"props-dir", "path"},
		{"metrics", "string"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := flagType(fs.Lookup(tc.name)); got != tc.expected {
				t.Errorf("flagType(%s) = %q, want %q", tc.name, got, tc.expected)
			}
		})
	}
}

// =============================================================================
// Validate
// =============================================================================

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.JobFile = "job.hcl"
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidate_Fields(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"missing job file", func(c *Config) { c.JobFile = "" }, "job_file"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"bad metrics addr", func(c *Config) { c.MetricsAddr = "no-port" }, "metrics_addr"},
		{"tui with print-cmd", func(c *Config) { c.TUIEnabled = true; c.PrintCmd = true }, "tui"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.modify(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.field+":") {
				t.Errorf("error %q does not name field %s", err, tc.field)
			}
		})
	}
}

func TestValidate_VersionNeedsNoJob(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ShowVersion = true
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogFormat = "xml"
	cfg.MetricsAddr = "bad"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}

	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("errors.As(ValidationError) failed for %v", err)
	}
	for _, field := range []string{"job_file", "log_format", "metrics_addr"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("joined error missing %s: %v", field, err)
		}
	}
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "log_format", Message: "must be 'json' or 'text'"}
	if got, want := err.Error(), "log_format: must be 'json' or 'text'"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestValidateJob(t *testing.T) {
	testCases := []struct {
		name    string
		job     Job
		wantErr string
	}{
		{"valid", Job{Name: "etl", Commands: []string{"true"}}, ""},
		{"empty command string is allowed", Job{Name: "etl", Commands: []string{""}}, ""},
		{"no name", Job{Name: " ", Commands: []string{"true"}}, "job.name"},
		{"no commands", Job{Name: "etl"}, "job.commands"},
		{"bad env key", Job{Name: "etl", Commands: []string{"true"}, Env: map[string]string{"A=B": "x"}}, "job.env"},
		{"empty property name", Job{Name: "etl", Commands: []string{"true"}, Properties: map[string]string{"": "x"}}, "job.properties"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateJob(&tc.job)
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateJob() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("ValidateJob() = %v, want error containing %q", err, tc.wantErr)
			}
		})
	}
}
