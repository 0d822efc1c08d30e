package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Field is one labelled value. Slices of fields keep display order.
type Field struct {
	Key   string
	Value string
}

// Header is the banner printed before a command runs.
type Header struct {
	Title   string // e.g., "PROVISION"
	Command string // e.g., "edgent-cfg provision"
	Params  []Field
	Width   int
}

// NewHeader creates a new header sized to the terminal
func NewHeader(title, command string, params ...Field) *Header {
	return &Header{
		Title:   title,
		Command: command,
		Params:  params,
		Width:   GetTerminalWidth(),
	}
}

// SetWidth sets the width for rendering
func (h *Header) SetWidth(width int) *Header {
	h.Width = width
	return h
}

// Render returns the styled header
func (h *Header) Render() string {
	width := clampWidth(h.Width)

	top := lipgloss.JoinVertical(lipgloss.Left,
		HeaderTitleStyle.Render(strings.ToUpper(h.Title)),
		HeaderCommandStyle.Render(h.Command),
	)

	content := top
	if len(h.Params) > 0 {
		divider := lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Render(strings.Repeat("─", width-6))
		content = lipgloss.JoinVertical(lipgloss.Left, top, divider, renderFields(h.Params, 0))
	}

	return boxStyle(PrimaryColor, width).Render(content)
}

func (h *Header) String() string {
	return h.Render()
}

// renderFields lays out fields with aligned values. keyWidth 0 sizes the
// key column to the longest key.
func renderFields(fields []Field, keyWidth int) string {
	if keyWidth == 0 {
		for _, f := range fields {
			if n := lipgloss.Width(f.Key) + 1; n > keyWidth {
				keyWidth = n
			}
		}
	}

	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		key := KeyStyle.Width(keyWidth + 3).Render(f.Key + ":")
		lines = append(lines, key+" "+ValueStyle.Render(f.Value))
	}
	return strings.Join(lines, "\n")
}
