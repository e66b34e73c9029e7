// Package tui renders the live progress view of a deploy. It uses
// Charmbracelet's Bubble Tea, Lip Gloss, and Bubbles, and shares its
// palette with the summary formatters.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jamesainslie/weave/pkg/weave/logging"
	"github.com/jamesainslie/weave/pkg/weave/output"
	"github.com/jamesainslie/weave/pkg/weave/upload"
)

var borderColor = lipgloss.Color("238")

var (
	// outerBoxStyle frames the whole view.
	outerBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(output.ColorPrimary).
			Padding(0, 1)

	dividerStyle = lipgloss.NewStyle().Foreground(borderColor)
	spinnerStyle = lipgloss.NewStyle().Foreground(output.ColorPrimary)

	titleStyle       = output.TitleStyle
	mutedTextStyle   = output.MutedStyle
	errorTextStyle   = output.ErrorStyle
	successTextStyle = output.SuccessStyle
	warningTextStyle = output.WarningStyle

	// sizeStyle right-aligns sizes in the item list.
	sizeStyle = output.SizeStyle.
			Width(10).
			Align(lipgloss.Right)
)

var (
	progressFillStyle  = lipgloss.NewStyle().Foreground(output.ColorSuccess)
	progressEmptyStyle = lipgloss.NewStyle().Foreground(borderColor)
)

var (
	statsBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(borderColor).
			Padding(0, 2)

	statsLabelStyle = output.LabelStyle
	statsValueStyle = output.ValueStyle.Bold(true)
)

// stateStyle returns the style used for an upload state marker.
func stateStyle(s upload.State) lipgloss.Style {
	switch s {
	case upload.StateUploaded:
		return successTextStyle
	case upload.StateFailed:
		return errorTextStyle
	case upload.StateUploading:
		return output.IDStyle
	default:
		return mutedTextStyle
	}
}

// levelStyle returns the style for a log level badge.
func levelStyle(l logging.Level) lipgloss.Style {
	switch l {
	case logging.LevelError:
		return errorTextStyle
	case logging.LevelWarn:
		return warningTextStyle
	case logging.LevelDebug:
		return mutedTextStyle
	default:
		return output.IDStyle
	}
}

// renderDivider draws a horizontal rule.
func renderDivider(width int) string {
	return dividerStyle.Render(repeatChar('─', width))
}

func repeatChar(char rune, n int) string {
	if n <= 0 {
		return ""
	}
	result := make([]rune, n)
	for i := range result {
		result[i] = char
	}
	return string(result)
}

// truncatePath shortens path to maxLen, keeping its end.
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	if maxLen <= 3 {
		return path[:maxLen]
	}
	return "..." + path[len(path)-(maxLen-3):]
}

func center(s string, width int) string {
	if len(s) >= width {
		return s
	}
	left := (width - len(s)) / 2
	return repeatChar(' ', left) + s + repeatChar(' ', width-len(s)-left)
}
