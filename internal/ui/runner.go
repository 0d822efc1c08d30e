package ui

import (
	"fmt"
	"io"
	"os"
	"time"
)

// RunnerConfig describes a multi-step command.
type RunnerConfig struct {
	Title   string
	Command string
	Params  []Field
	Steps   []string
	// Hint turns a failure into troubleshooting text. Optional.
	Hint   func(error) string
	Output io.Writer
}

// Runner prints the header, streams step lines while the operation runs
// and finishes with a result box.
type Runner struct {
	cfg      RunnerConfig
	progress *Progress
	width    int
}

// NewRunner creates a runner sized to the terminal
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	width := GetTerminalWidth()
	return &Runner{
		cfg:      cfg,
		progress: NewProgress(cfg.Steps...).SetWidth(width),
		width:    width,
	}
}

// SetWidth overrides the terminal width
func (r *Runner) SetWidth(width int) *Runner {
	r.width = width
	r.progress.SetWidth(width)
	return r
}

// Operation performs the work, reporting through onStep, and returns the
// details shown in the success box.
type Operation func(onStep StepCallback) ([]Field, error)

// Run executes op with UI updates and returns its error.
func (r *Runner) Run(op Operation) error {
	out := r.cfg.Output
	_, _ = fmt.Fprintln(out, NewHeader(r.cfg.Title, r.cfg.Command, r.cfg.Params...).SetWidth(r.width).Render())
	_, _ = fmt.Fprintln(out)

	start := time.Now()
	details, err := op(r.onStep)
	elapsed := time.Since(start).Round(time.Millisecond)

	_, _ = fmt.Fprintln(out)
	if err != nil {
		hint := ""
		if r.cfg.Hint != nil {
			hint = r.cfg.Hint(err)
		}
		_, _ = fmt.Fprintln(out, NewFailureResult(r.cfg.Title+" failed", err, hint).SetWidth(r.width).Render())
		return err
	}

	details = append(details, Field{Key: "Duration", Value: elapsed.String()})
	_, _ = fmt.Fprintln(out, NewSuccessResult(r.cfg.Title+" complete", details...).SetWidth(r.width).Render())
	return nil
}

func (r *Runner) onStep(number int, status StepStatus, message string) {
	r.progress.UpdateStep(number, status, message)
	if number < 1 || number > r.progress.Total() {
		return
	}

	line := r.progress.StepLine(r.progress.Steps[number-1])
	if status == StepRunning {
		// overwritten when the step finishes
		_, _ = fmt.Fprint(r.cfg.Output, line+"\r")
		return
	}
	_, _ = fmt.Fprintln(r.cfg.Output, line)
}

// Progress exposes the step state, mainly for tests.
func (r *Runner) Progress() *Progress {
	return r.progress
}
