// Package ui renders terminal output for the edgent command line tools.
//
// Components follow a "print once" pattern built on Lipgloss: a Header
// banner before a command, a step list while it runs, and a Result box when
// it finishes. Runner ties the three together:
//
//	r := ui.NewRunner(ui.RunnerConfig{
//	    Title:   "Provision",
//	    Command: "edgent-cfg provision",
//	    Params:  []ui.Field{{Key: "Device", Value: addr}},
//	    Steps:   []string{"Read board info", "Send configuration"},
//	    Hint:    client.GetTroubleshootingHint,
//	})
//	err := r.Run(func(onStep ui.StepCallback) ([]ui.Field, error) {
//	    onStep(1, ui.StepRunning, "")
//	    ...
//	})
//
// Zap logging is silent unless EDGENT_LOG_LEVEL is set, so the curated
// output stays clean by default.
package ui
