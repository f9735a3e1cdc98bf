package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the command line configuration.
// Returns nil if valid, or the joined ValidationErrors.
func Validate(cfg *Config) error {
	var errs []error

	// A job file is required unless only the version was asked for
	if cfg.JobFile == "" && !cfg.ShowVersion {
		errs = append(errs, ValidationError{
			Field:   "job_file",
			Message: "a job file is required (-job or positional argument)",
		})
	}

	// Log format must be valid
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(cfg.LogLevel)] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be one of: debug, info, warn, error (got %q)", cfg.LogLevel),
		})
	}

	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "metrics_addr",
				Message: err.Error(),
			})
		}
	}

	// The dashboard owns the terminal; printing commands does not run anything
	if cfg.TUIEnabled && cfg.PrintCmd {
		errs = append(errs, ValidationError{
			Field:   "tui",
			Message: "-tui cannot be combined with -print-cmd",
		})
	}

	return errors.Join(errs...)
}

// ValidateJob checks a loaded job definition. Individual command strings are
// not inspected here: a command that tokenizes to nothing is reported by the
// runner when its turn comes.
func ValidateJob(job *Job) error {
	var errs []error

	if strings.TrimSpace(job.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "job.name",
			Message: "job label must not be empty",
		})
	}

	if len(job.Commands) == 0 {
		errs = append(errs, ValidationError{
			Field:   "job.commands",
			Message: "at least one command is required",
		})
	}

	for key := range job.Env {
		if key == "" || strings.ContainsAny(key, "=\x00") {
			errs = append(errs, ValidationError{
				Field:   "job.env",
				Message: fmt.Sprintf("invalid variable name %q", key),
			})
		}
	}

	for key := range job.Properties {
		if key == "" {
			errs = append(errs, ValidationError{
				Field:   "job.properties",
				Message: "property names must not be empty",
			})
		}
	}

	return errors.Join(errs...)
}
