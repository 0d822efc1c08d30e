package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ResultType indicates success or failure
type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultFailure
	ResultWarning
)

// Result is the box printed when a command finishes.
type Result struct {
	Type    ResultType
	Title   string
	Details []Field
	Err     error
	// Hints is free text shown under a failure, usually a troubleshooting
	// hint with one suggestion per line.
	Hints string
	Width int
}

// NewSuccessResult creates a success result box
func NewSuccessResult(title string, details ...Field) *Result {
	return &Result{Type: ResultSuccess, Title: title, Details: details, Width: GetTerminalWidth()}
}

// NewFailureResult creates a failure result box
func NewFailureResult(title string, err error, hints string) *Result {
	return &Result{Type: ResultFailure, Title: title, Err: err, Hints: hints, Width: GetTerminalWidth()}
}

// NewWarningResult creates a warning result box
func NewWarningResult(title string, details ...Field) *Result {
	return &Result{Type: ResultWarning, Title: title, Details: details, Width: GetTerminalWidth()}
}

// SetWidth sets the width for rendering
func (r *Result) SetWidth(width int) *Result {
	r.Width = width
	return r
}

// AddDetail appends a detail line
func (r *Result) AddDetail(key, value string) *Result {
	r.Details = append(r.Details, Field{Key: key, Value: value})
	return r
}

// Render returns the styled result box
func (r *Result) Render() string {
	var (
		marker, label string
		title         lipgloss.Style
		color         lipgloss.TerminalColor
	)
	switch r.Type {
	case ResultFailure:
		marker, label, title, color = MarkerFailure, "FAILED", ErrorTitleStyle, ErrorColor
	case ResultWarning:
		marker, label, title, color = MarkerWarning, "WARNING", WarningTitleStyle, WarningColor
	default:
		marker, label, title, color = MarkerComplete, "SUCCESS", SuccessTitleStyle, SuccessColor
	}

	lines := []string{"", title.Render(fmt.Sprintf(" %s  %s  ─  %s", marker, label, r.Title)), ""}

	if len(r.Details) > 0 {
		lines = append(lines, renderFields(r.Details, 0), "")
	}
	if r.Err != nil {
		lines = append(lines, ErrorMessageStyle.Render(" Error: "+r.Err.Error()), "")
	}
	if r.Hints != "" {
		for _, hint := range strings.Split(r.Hints, "\n") {
			lines = append(lines, HintStyle.Render(" "+hint))
		}
		lines = append(lines, "")
	}

	return lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(color).
		Width(clampWidth(r.Width)-2).
		Padding(0, 1).
		Render(strings.Join(lines, "\n"))
}

func (r *Result) String() string {
	return r.Render()
}
