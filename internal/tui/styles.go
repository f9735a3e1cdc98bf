// Package tui provides a live terminal dashboard for a running job.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for styling.
// It shows the runner state, the command in flight with its pid and elapsed
// time, overall progress through the command list and the latest child output.
package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-processjob/internal/job"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorAccent = lipgloss.Color("#2563EB") // header, bar fill
	colorTitle  = lipgloss.Color("#0EA5E9") // section titles

	colorSuccess = lipgloss.Color("#22C55E")
	colorWarning = lipgloss.Color("#EAB308")
	colorError   = lipgloss.Color("#DC2626")
	colorInfo    = lipgloss.Color("#60A5FA")

	colorText      = lipgloss.Color("#F3F4F6")
	colorTextMuted = lipgloss.Color("#A1A1AA")
	colorTextDim   = lipgloss.Color("#71717A")
	colorBorder    = lipgloss.Color("#3F3F46")
)

// fg returns a foreground-only style, bold when asked.
func fg(c lipgloss.Color, bold bool) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c).Bold(bold)
}

// =============================================================================
// Text Styles
// =============================================================================

var (
	mutedStyle = fg(colorTextMuted, false)
	dimStyle   = fg(colorTextDim, false)
	boldStyle  = fg(colorText, true)

	statusOK      = fg(colorSuccess, true)
	statusWarning = fg(colorWarning, true)
	statusError   = fg(colorError, true)
	statusInfo    = fg(colorInfo, true)

	valueStyle     = fg(colorText, true)
	valueGoodStyle = fg(colorSuccess, true)
	valueBadStyle  = fg(colorError, true)
	valueWarnStyle = fg(colorWarning, true)

	labelStyle = fg(colorTextMuted, false).Width(20)
	unitStyle  = dimStyle
)

// =============================================================================
// Layout Styles
// =============================================================================

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorAccent).
			Bold(true).
			Padding(0, 1).
			MarginBottom(1)

	// Panels around each dashboard section.
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	sectionHeaderStyle = fg(colorTitle, true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(colorBorder).
				MarginTop(1)

	tableHeaderStyle = fg(colorTitle, true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(colorBorder)

	footerStyle = fg(colorTextMuted, false).MarginTop(1)
)

var (
	barFilledStyle  = fg(colorAccent, false)
	barEmptyStyle   = fg(colorBorder, false)
	barPercentStyle = boldStyle
)

// =============================================================================
// State and Status Styles
// =============================================================================

// GetStateStyle returns the style for a runner state.
func GetStateStyle(state job.State) lipgloss.Style {
	switch state {
	case job.StateRunning:
		return statusInfo
	case job.StateSucceeded:
		return statusOK
	case job.StateFailed:
		return statusError
	case job.StateDone:
		return boldStyle
	default:
		return mutedStyle
	}
}

// GetExitCodeStyle returns the style for a command exit code. Negative
// codes mean the command has not exited; codes above 128 are signals.
func GetExitCodeStyle(code int) lipgloss.Style {
	switch {
	case code < 0:
		return mutedStyle
	case code == 0:
		return valueGoodStyle
	case code > 128:
		return valueWarnStyle
	default:
		return valueBadStyle
	}
}

// commandStatusStyle colors a row of the command table.
func commandStatusStyle(status string) lipgloss.Style {
	switch status {
	case "running":
		return fg(colorInfo, true)
	case "done":
		return fg(colorText, false)
	case "failed":
		return fg(colorError, false)
	default:
		return dimStyle
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// RenderKeyValue renders "label: value" with a fixed-width label.
func RenderKeyValue(label string, value string) string {
	return labelStyle.Render(label+":") + valueStyle.Render(value)
}

// RenderProgressBar renders a bar of at least ten cells followed by the
// percentage. Progress outside [0, 1] is clamped for the bar only.
func RenderProgressBar(progress float64, width int) string {
	width = max(width, 10)
	filled := min(max(int(progress*float64(width)), 0), width)

	return barFilledStyle.Render(repeatChar('█', filled)) +
		barEmptyStyle.Render(repeatChar('░', width-filled)) +
		barPercentStyle.Render(fmt.Sprintf(" %3.0f%%", progress*100))
}

func repeatChar(char rune, count int) string {
	if count <= 0 {
		return ""
	}
	result := make([]rune, count)
	for i := range result {
		result[i] = char
	}
	return string(result)
}
