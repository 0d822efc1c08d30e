package wizard

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muurk/edgent/internal/ui"
)

const appName = "EDGENT SETUP"

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(ui.PrimaryColor).
			Bold(true).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(ui.MutedColor).
			Italic(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(ui.MutedColor).
			Width(10)

	focusedLabelStyle = labelStyle.
				Foreground(ui.PrimaryColor).
				Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(ui.ErrorColor)

	successStyle = lipgloss.NewStyle().
			Foreground(ui.SuccessColor).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ui.PrimaryColor).
			Padding(1, 2)
)

// frame wraps a screen in the application border with the help line below.
func frame(content, help string, width int) string {
	w := width - 4
	if w < ui.MinTerminalWidth {
		w = ui.MinTerminalWidth
	}
	if w > ui.MaxContentWidth {
		w = ui.MaxContentWidth
	}
	body := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(appName),
		content,
	)
	return lipgloss.JoinVertical(lipgloss.Left,
		containerStyle.Width(w).Render(body),
		" "+help,
	)
}
