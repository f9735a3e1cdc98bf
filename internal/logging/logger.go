// Package logging provides structured logging for processjob and routes
// child process output into the log.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options configures New.
type Options struct {
	// Format is "json" (default) or "text".
	Format string

	// Level is "debug", "info" (default), "warn" or "error".
	Level string

	// Verbose forces debug level and adds source locations.
	Verbose bool

	// Writer defaults to os.Stderr.
	Writer io.Writer
}

// New creates a structured logger from opts.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	logLevel := parseLevel(opts.Level)
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{
		Level: logLevel,
		// Add source location for debug level
		AddSource: logLevel == slog.LevelDebug,
	}

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "text":
		handler = slog.NewTextHandler(w, handlerOpts)
	default:
		handler = slog.NewJSONHandler(w, handlerOpts)
	}

	return slog.New(handler)
}

// NewLogger creates a logger writing to stderr.
// Format should be "json" or "text".
// Level should be "debug", "info", "warn", or "error".
func NewLogger(format, level string, verbose bool) *slog.Logger {
	return New(Options{Format: format, Level: level, Verbose: verbose})
}

// NewLoggerWithWriter creates a logger that writes to a custom writer.
// Useful for testing.
func NewLoggerWithWriter(w io.Writer, format, level string) *slog.Logger {
	if w == nil {
		w = io.Discard
	}
	return New(Options{Format: format, Level: level, Writer: w})
}

// Discard returns a logger that drops everything, used while the dashboard
// owns the terminal.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// parseLevel converts a string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetDefault sets the default logger for the slog package.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
