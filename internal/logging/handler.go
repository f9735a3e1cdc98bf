package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single log line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the maximum number of recent lines kept per stream.
	MaxBufferedLines = 100
)

// OutputHandler turns a child process output stream into log records.
// It implements io.Writer so it can be handed to the process spawner directly,
// splits the stream into lines, and keeps the most recent lines for the exit
// summary.
type OutputHandler struct {
	job     string
	stream  string // "stdout" or "stderr"
	logger  *slog.Logger
	verbose bool

	mu      sync.Mutex
	partial []byte

	// Circular buffer for recent lines
	buffer []string
	bufIdx int
	count  int
}

// NewOutputHandler creates a handler for one output stream of a job.
func NewOutputHandler(job, stream string, logger *slog.Logger, verbose bool) *OutputHandler {
	return &OutputHandler{
		job:     job,
		stream:  stream,
		logger:  logger,
		verbose: verbose,
		buffer:  make([]string, MaxBufferedLines),
	}
}

// Write implements io.Writer. Complete lines are handled immediately; a
// trailing partial line is held until the rest arrives or Flush is called.
func (h *OutputHandler) Write(p []byte) (int, error) {
	h.mu.Lock()
	h.partial = append(h.partial, p...)
	var lines []string
	for {
		i := bytes.IndexByte(h.partial, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(bytes.TrimSuffix(h.partial[:i], []byte{'\r'})))
		h.partial = h.partial[i+1:]
	}
	// Hold at most one over-long partial line.
	if len(h.partial) > MaxLineLength {
		lines = append(lines, string(h.partial))
		h.partial = nil
	}
	h.mu.Unlock()

	for _, line := range lines {
		h.HandleLine(line)
	}
	return len(p), nil
}

// Flush handles any buffered partial line.
func (h *OutputHandler) Flush() {
	h.mu.Lock()
	rest := h.partial
	h.partial = nil
	h.mu.Unlock()

	if len(rest) > 0 {
		h.HandleLine(string(rest))
	}
}

// HandleLine processes a single line of output.
func (h *OutputHandler) HandleLine(line string) {
	// Truncate if too long
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxBufferedLines
	if h.count < MaxBufferedLines {
		h.count++
	}
	h.mu.Unlock()

	h.logLine(line)
}

// logLine logs the line at a level chosen by stream and content.
func (h *OutputHandler) logLine(line string) {
	level := h.classifyLine(line)

	// In non-verbose mode, only log warnings and errors
	if !h.verbose && level == slog.LevelDebug {
		return
	}

	h.logger.Log(context.Background(), level, "job_output",
		"job", h.job,
		"stream", h.stream,
		"line", line,
	)
}

// classifyLine determines the log level for a line based on content.
func (h *OutputHandler) classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	if strings.Contains(lower, "error") ||
		strings.Contains(lower, "exception") ||
		strings.Contains(lower, "fatal") ||
		strings.Contains(lower, "panic:") {
		return slog.LevelWarn
	}

	if h.stream == "stderr" {
		return slog.LevelInfo
	}

	// stdout is chatty; only shown with -v
	return slog.LevelDebug
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (h *OutputHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > h.count {
		n = h.count
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		lines = append(lines, h.buffer[idx])
	}

	return lines
}

// LineCount returns the number of lines retained, at most MaxBufferedLines.
func (h *OutputHandler) LineCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}
