package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"retaincheck/internal/driver"
	"retaincheck/internal/policy"
	"retaincheck/internal/ui"
)

type checkOutcome struct {
	result *driver.CheckResult
	err    error
}

// runCheckWithUI runs driver.Check while a Bubble Tea progress view renders on stderr.
func runCheckWithUI(ctx context.Context, title, path string, pol *policy.Policy, opts driver.CheckOptions) (*driver.CheckResult, error) {
	events := make(chan ui.Event, 256)
	outcomeCh := make(chan checkOutcome, 1)

	go func() {
		optsCopy := opts
		optsCopy.Phases, optsCopy.Progress = ui.Observers(events)
		res, err := driver.Check(ctx, path, pol, optsCopy)
		close(events)
		outcomeCh <- checkOutcome{result: res, err: err}
	}()

	model := ui.NewProgressModel(title, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stderr), tea.WithContext(ctx))
	_, uiErr := program.Run()
	if uiErr != nil {
		// keep draining so the checker never blocks on a full channel
		go func() {
			for range events {
			}
		}()
	}
	outcome := <-outcomeCh
	if uiErr != nil && outcome.err == nil && ctx.Err() == nil {
		return outcome.result, uiErr
	}
	return outcome.result, outcome.err
}
