package tui

import (
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-processjob/internal/job"
	"github.com/randomizedcoder/go-processjob/internal/stats"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// DoneMsg reports that the job has finished.
type DoneMsg struct {
	Outcome string
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// cancelResultMsg carries the result of a cancel request.
type cancelResultMsg struct {
	err error
}

// =============================================================================
// Model
// =============================================================================

// Model represents the TUI state.
type Model struct {
	// Configuration
	jobName     string
	commands    []string
	metricsAddr string

	// Current state
	summary    stats.Summary
	progress   float64
	recent     []string
	startTime  time.Time
	lastUpdate time.Time

	// Cancellation
	cancelPending bool
	cancelled     bool
	cancelErr     error

	done    bool
	outcome string

	// Display options
	width  int
	height int

	// Sources
	statsSource  StatsSource
	progressFunc func() float64
	recentLines  func(n int) []string
	cancelFunc   func() error

	// Quit flag
	quitting bool
}

// StatsSource provides the live job statistics.
type StatsSource interface {
	GetSummary() stats.Summary
}

// Config holds TUI configuration.
type Config struct {
	JobName     string
	Commands    []string
	MetricsAddr string
	StatsSource StatsSource

	// Progress reports the runner's progress. Optional.
	Progress func() float64

	// RecentLines returns the last n lines of child output. Optional.
	RecentLines func(n int) []string

	// Cancel is invoked by the c key. Optional.
	Cancel func() error
}

// recentLineCount is how many output lines the dashboard shows.
const recentLineCount = 5

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		jobName:      cfg.JobName,
		commands:     cfg.Commands,
		metricsAddr:  cfg.MetricsAddr,
		statsSource:  cfg.StatsSource,
		progressFunc: cfg.Progress,
		recentLines:  cfg.RecentLines,
		cancelFunc:   cfg.Cancel,
		summary: stats.Summary{
			Name:          cfg.JobName,
			TotalCommands: len(cfg.Commands),
			CurrentIndex:  -1,
			LastExitCode:  -1,
		},
		startTime:  time.Now(),
		lastUpdate: time.Now(),
		width:      80,
		height:     24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc":
			m.quitting = true
			return m, tea.Quit
		case "c", "ctrl+c":
			return m.requestCancel()
		case "r":
			// Force refresh
			return m, tickCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.refresh()
		return m, tickCmd()

	case cancelResultMsg:
		m.cancelPending = false
		m.cancelErr = msg.err
		if msg.err == nil {
			m.cancelled = true
		}
		return m, nil

	case DoneMsg:
		m.refresh()
		m.done = true
		m.outcome = msg.Outcome
		m.quitting = true
		return m, tea.Quit

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// requestCancel runs the cancel function off the UI goroutine: Cancel blocks
// until the child is gone.
func (m Model) requestCancel() (tea.Model, tea.Cmd) {
	if m.cancelFunc == nil || m.cancelPending || m.done {
		return m, nil
	}
	m.cancelPending = true
	m.cancelErr = nil
	cancel := m.cancelFunc
	return m, func() tea.Msg {
		return cancelResultMsg{err: cancel()}
	}
}

func (m *Model) refresh() {
	if m.statsSource != nil {
		m.summary = m.statsSource.GetSummary()
	}
	if m.progressFunc != nil {
		m.progress = m.progressFunc()
	}
	if m.recentLines != nil {
		m.recent = m.recentLines(recentLineCount)
	}
	m.lastUpdate = time.Now()
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderSummaryView()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the dashboard started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// State returns the last runner state seen.
func (m Model) State() job.State {
	return m.summary.State
}

// CurrentCommand returns the raw text of the command most recently started,
// or "" before the first one.
func (m Model) CurrentCommand() string {
	i := m.summary.CurrentIndex
	if i < 0 || i >= len(m.commands) {
		return ""
	}
	return m.commands[i]
}

// CancelRequested reports whether a cancel is pending or was accepted.
func (m Model) CancelRequested() bool {
	return m.cancelPending || m.cancelled
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendDone tells the TUI the job has finished.
func SendDone(p *tea.Program, outcome string) {
	if p != nil {
		p.Send(DoneMsg{Outcome: outcome})
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// cancelErrorText renders a cancel failure for the status line.
func cancelErrorText(err error) string {
	if errors.Is(err, job.ErrNotStarted) {
		return "nothing to cancel: no command is running"
	}
	return "cancel failed: " + err.Error()
}
