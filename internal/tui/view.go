package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-processjob/internal/cmdline"
	"github.com/randomizedcoder/go-processjob/internal/stats"
)

// maxCommandRows bounds the command table on small terminals.
const maxCommandRows = 10

// =============================================================================
// Main View Rendering
// =============================================================================

// renderSummaryView renders the dashboard.
func (m Model) renderSummaryView() string {
	sections := []string{
		m.renderHeader(),
		m.renderProgress(),
		m.renderCurrentCommand(),
		m.renderCommandTable(),
		m.renderCounters(),
	}

	if len(m.recent) > 0 {
		sections = append(sections, m.renderRecentOutput())
	}

	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" processjob │ %s │ %s │ Elapsed: %s ",
		m.jobName,
		m.summary.State,
		stats.FormatDuration(m.Elapsed()),
	)

	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Progress Section
// =============================================================================

func (m Model) renderProgress() string {
	barWidth := m.width - 30
	if barWidth < 20 {
		barWidth = 20
	}
	progressBar := RenderProgressBar(m.summary.Completed(), barWidth)

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Commands"),
		progressBar,
		m.statusLine(),
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

func (m Model) statusLine() string {
	total := m.summary.TotalCommands
	switch {
	case m.done:
		return GetStateStyle(m.summary.State).Render("Job " + m.outcome)
	case m.cancelPending:
		return statusWarning.Render("Cancelling... waiting for the process to exit")
	case m.cancelErr != nil:
		return statusError.Render(cancelErrorText(m.cancelErr))
	case m.cancelled:
		return statusWarning.Render("Cancelled")
	case m.summary.Pid != 0:
		return statusInfo.Render(fmt.Sprintf("Running command %d/%d", m.summary.CurrentIndex+1, total))
	case m.summary.CommandsSucceeded == int64(total) && total > 0:
		return statusOK.Render("✓ All commands succeeded")
	default:
		return mutedStyle.Render(fmt.Sprintf("%d/%d commands done", m.summary.CommandsSucceeded, total))
	}
}

// =============================================================================
// Current Command
// =============================================================================

func (m Model) renderCurrentCommand() string {
	command := m.CurrentCommand()
	if args := cmdline.Split(command); len(args) > 0 {
		command = cmdline.Join(args)
	}
	if command == "" {
		command = "-"
	}
	command = truncateWidth(command, m.width-28)

	pid := "-"
	if m.summary.Pid != 0 {
		pid = fmt.Sprintf("%d", m.summary.Pid)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Current Command"),
		RenderKeyValue("Command", command),
		RenderKeyValue("PID", pid),
		RenderKeyValue("Running For", stats.FormatDuration(m.summary.CommandElapsed)),
		RenderKeyValue("Runner Progress", fmt.Sprintf("%.1f", m.progress)),
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Command Table
// =============================================================================

func (m Model) renderCommandTable() string {
	rows := []string{tableHeaderStyle.Render(fmt.Sprintf("%-4s %-8s %s", "#", "Status", "Command"))}

	first, last := visibleRange(len(m.commands), m.summary.CurrentIndex, maxCommandRows)
	for i := first; i < last; i++ {
		status := commandStatus(i, m.summary)
		row := fmt.Sprintf("%-4d %-8s %s", i, status, truncateWidth(m.commands[i], m.width-20))
		rows = append(rows, commandStatusStyle(status).Render(row))
	}
	if hidden := len(m.commands) - (last - first); hidden > 0 {
		rows = append(rows, dimStyle.Render(fmt.Sprintf("… %d more", hidden)))
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// commandStatus names the state of command i.
func commandStatus(i int, s stats.Summary) string {
	cur := s.CurrentIndex
	switch {
	case cur < 0 || i > cur:
		return "pending"
	case i < cur:
		return "done"
	case s.Pid != 0:
		return "running"
	case s.LastExitCode == 0:
		return "done"
	case s.LastExitCode > 0:
		return "failed"
	default:
		return "running"
	}
}

// visibleRange picks at most limit rows around the current command.
func visibleRange(n, current, limit int) (first, last int) {
	if n <= limit {
		return 0, n
	}
	if current < 0 {
		current = 0
	}
	first = current - limit/2
	if first < 0 {
		first = 0
	}
	last = first + limit
	if last > n {
		last = n
		first = n - limit
	}
	return first, last
}

// =============================================================================
// Counters
// =============================================================================

func (m Model) renderCounters() string {
	s := m.summary

	lastExit := "-"
	if s.LastExitCode >= 0 {
		lastExit = fmt.Sprintf("%d", s.LastExitCode)
	}

	left := []string{
		RenderKeyValue("Started", fmt.Sprintf("%d", s.CommandsStarted)),
		RenderKeyValue("Succeeded", valueGoodStyle.Render(fmt.Sprintf("%d", s.CommandsSucceeded))),
		RenderKeyValue("Failed", failedValue(s.CommandsFailed)),
	}
	right := []string{
		RenderKeyValue("Cancels", cancelsValue(s.Cancels)),
		RenderKeyValue("Forced Kills", fmt.Sprintf("%d", s.KillEscalations)),
		RenderKeyValue("Last Exit Code", GetExitCodeStyle(s.LastExitCode).Render(lastExit)+
			unitStyle.Render(" after "+stats.FormatMs(s.LastElapsed))),
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Counters"),
		renderTwoColumns(left, right),
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

func failedValue(n int64) string {
	if n == 0 {
		return valueStyle.Render("0")
	}
	return valueBadStyle.Render(fmt.Sprintf("%d", n))
}

func cancelsValue(n int64) string {
	if n == 0 {
		return valueStyle.Render("0")
	}
	return valueWarnStyle.Render(fmt.Sprintf("%d", n))
}

// =============================================================================
// Recent Output
// =============================================================================

func (m Model) renderRecentOutput() string {
	lines := []string{sectionHeaderStyle.Render("Recent Output")}
	for _, line := range m.recent {
		lines = append(lines, dimStyle.Render(truncateWidth(line, m.width-6)))
	}
	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	shortcuts := []string{
		"c: cancel job",
		"q: close dashboard",
		"r: refresh",
	}

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	right := ""
	if m.metricsAddr != "" {
		right = dimStyle.Render("Metrics: http://" + m.metricsAddr + "/metrics")
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			right,
		),
	)
}

// =============================================================================
// Layout Helpers
// =============================================================================

// renderTwoColumns renders two columns side-by-side with a separator.
func renderTwoColumns(left, right []string) string {
	leftContent := lipgloss.JoinVertical(lipgloss.Left, left...)
	rightContent := lipgloss.JoinVertical(lipgloss.Left, right...)

	separator := mutedStyle.Render(" │ ")
	return lipgloss.JoinHorizontal(lipgloss.Top, leftContent, separator, rightContent)
}

// truncateWidth cuts s to at most width runes.
func truncateWidth(s string, width int) string {
	if width < 10 {
		width = 10
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}
