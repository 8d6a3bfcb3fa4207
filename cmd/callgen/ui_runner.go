package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"callgen/internal/buildpipeline"
	"callgen/internal/project"
	"callgen/internal/ui"
)

type runOutcome struct {
	result buildpipeline.Result
	err    error
}

// runWithUI runs the pipeline while a Bubble Tea program renders its
// progress events.
func runWithUI(ctx context.Context, title string, prog *project.Program, req *buildpipeline.Request) (buildpipeline.Result, error) {
	events := make(chan buildpipeline.Event, 256)
	outcomeCh := make(chan runOutcome, 1)

	go func() {
		reqCopy := *req
		reqCopy.Progress = buildpipeline.Tee(req.Progress, buildpipeline.ChannelSink{Ch: events})
		res, err := buildpipeline.Run(ctx, prog, &reqCopy)
		outcomeCh <- runOutcome{result: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, buildpipeline.Items(prog), events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.result, uiErr
	}
	return outcome.result, outcome.err
}

func runPipeline(ctx context.Context, mode uiMode, title string, prog *project.Program, req *buildpipeline.Request) (buildpipeline.Result, error) {
	if shouldUseTUI(mode) {
		return runWithUI(ctx, title, prog, req)
	}
	return buildpipeline.Run(ctx, prog, req)
}
