package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"cfnls/internal/report"
	"cfnls/internal/ui"
)

type lintOutcome struct {
	results []report.Result
	err     error
}

// runLintWithUI runs lintFiles while a progress view follows it on stdout.
func runLintWithUI(ctx context.Context, title string, st startup, files []string, opts lintOptions) ([]report.Result, error) {
	events := make(chan ui.Event, 256)
	outcomeCh := make(chan lintOutcome, 1)

	go func() {
		withEvents := opts
		withEvents.events = events
		results, err := lintFiles(ctx, st, files, withEvents)
		outcomeCh <- lintOutcome{results: results, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, files, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout), tea.WithContext(ctx))
	_, uiErr := program.Run()
	// The view may quit early; keep the workers from blocking on a full channel.
	go func() {
		for range events {
		}
	}()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.results, uiErr
	}
	return outcome.results, outcome.err
}
