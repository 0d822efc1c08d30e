package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// RenderTable lays out rows under a header with columns padded to the
// widest cell.
func RenderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if w := lipgloss.Width(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}

	render := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = style.Width(widths[i]).Render(cell)
		}
		return "  " + strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	lines := []string{render(headers, TableHeaderStyle)}
	for _, row := range rows {
		lines = append(lines, render(row, ValueStyle))
	}
	return strings.Join(lines, "\n")
}

// SignalBars renders an RSSI value as a four-step bar.
func SignalBars(rssi int) string {
	bars := 0
	switch {
	case rssi >= -55:
		bars = 4
	case rssi >= -67:
		bars = 3
	case rssi >= -75:
		bars = 2
	case rssi >= -85:
		bars = 1
	}
	return strings.Repeat("▮", bars) + strings.Repeat("▯", 4-bars)
}
