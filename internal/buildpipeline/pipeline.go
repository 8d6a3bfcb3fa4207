// Package buildpipeline runs the manifest through the driver and reports
// progress per function and partial application.
package buildpipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"callgen/internal/diag"
	"callgen/internal/driver"
	"callgen/internal/project"
)

// ErrManifest is returned by Load when the manifest was rejected; the
// reasons are in the returned bag.
var ErrManifest = errors.New("manifest has errors")

// Request configures one run of the pipeline.
type Request struct {
	// ManifestPath names callgen.toml; empty searches up from the working
	// directory.
	ManifestPath   string
	Jobs           int
	MaxDiagnostics int
	Cache          *driver.DiskCache
	// SigsOnly stops after expansion. The disk cache, when set, then
	// serves signatures described by earlier runs.
	SigsOnly bool
	// OutputPath, when set, receives the printed module.
	OutputPath string
	Timings    bool
	Progress   ProgressSink
}

// Result captures the lowered module and timings.
type Result struct {
	Program    *project.Program
	Lowered    *driver.Result
	Bag        *diag.Bag
	OutputPath string
	Timings    Timings
}

// Load resolves the manifest of req.
func Load(req *Request) (*project.Program, *diag.Bag, error) {
	start := time.Now()
	emitStage(req.Progress, nil, StageLoad, StatusWorking, nil, 0)
	prog, bag, err := driver.LoadProgram(req.ManifestPath, req.MaxDiagnostics)
	if err == nil && prog == nil {
		err = ErrManifest
	}
	if err != nil {
		emitStage(req.Progress, nil, StageLoad, StatusError, err, time.Since(start))
		return nil, bag, err
	}
	emitStage(req.Progress, nil, StageLoad, StatusDone, nil, time.Since(start))
	return prog, bag, nil
}

// Items lists the progress items of prog: functions, then partial
// applications, in declaration order.
func Items(prog *project.Program) []string {
	items := make([]string, 0, len(prog.Funcs)+len(prog.Partials))
	for _, f := range prog.Funcs {
		items = append(items, f.Name)
	}
	for _, p := range prog.Partials {
		items = append(items, p.Name)
	}
	return items
}

// Run lowers prog and, when req names an output, writes the module.
func Run(ctx context.Context, prog *project.Program, req *Request) (Result, error) {
	var result Result
	if req == nil {
		return result, fmt.Errorf("missing pipeline request")
	}
	result.Program = prog
	items := Items(prog)
	emitQueued(req.Progress, items)

	obs := &phaseObserver{sink: req.Progress, items: items, timings: &result.Timings, sigsOnly: req.SigsOnly}
	opts := driver.Options{
		Jobs:           req.Jobs,
		MaxDiagnostics: req.MaxDiagnostics,
		Cache:          req.Cache,
		Observer:       obs.OnPhase,
		Timings:        req.Timings,
	}
	run := driver.Lower
	if req.SigsOnly {
		run = driver.Expand
	}
	lowered, err := run(ctx, prog, opts)
	if err != nil {
		emitStage(req.Progress, items, obs.current(), StatusError, err, 0)
		return result, err
	}
	result.Lowered = lowered
	result.Bag = lowered.Bag
	reportFailures(req.Progress, lowered)

	if req.OutputPath != "" && !req.SigsOnly {
		start := time.Now()
		emitStage(req.Progress, nil, StageWrite, StatusWorking, nil, 0)
		if err := writeModule(req.OutputPath, lowered); err != nil {
			emitStage(req.Progress, nil, StageWrite, StatusError, err, 0)
			return result, err
		}
		result.OutputPath = req.OutputPath
		result.Timings.Set(StageWrite, time.Since(start))
		emitStage(req.Progress, nil, StageWrite, StatusDone, nil, time.Since(start))
	}
	return result, nil
}

func writeModule(path string, lowered *driver.Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(lowered.Module.IR.String()), 0o600); err != nil {
		return fmt.Errorf("failed to write module %q: %w", path, err)
	}
	return nil
}

// reportFailures marks the items the driver skipped for an error.
func reportFailures(sink ProgressSink, lowered *driver.Result) {
	if sink == nil {
		return
	}
	failed := func(item, why string) {
		sink.OnEvent(Event{Item: item, Stage: StageEmit, Status: StatusError, Err: errors.New(why)})
	}
	for _, s := range lowered.Sigs {
		if s.Signature == nil && !s.FromDisk {
			failed(s.Func.Name, "signature not expanded")
		}
	}
	for _, c := range lowered.Callers {
		if c.Skipped == "not implemented" {
			failed(c.Func.Name, c.Skipped)
		}
	}
	for _, p := range lowered.Partials {
		if p.Maker == nil {
			failed(p.Partial.Name, p.Skipped)
		}
	}
}

// phaseObserver turns driver phase events into progress events. Expand
// items arrive from worker goroutines.
type phaseObserver struct {
	mu       sync.Mutex
	sink     ProgressSink
	items    []string
	timings  *Timings
	sigsOnly bool
	stage    Stage
}

// OnPhase updates the progress UI based on driver phase events.
func (p *phaseObserver) OnPhase(ev driver.PhaseEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	stage := Stage(ev.Name)
	switch ev.Status {
	case driver.PhaseStart:
		p.stage = stage
		emitStage(p.sink, nil, stage, StatusWorking, nil, 0)
	case driver.PhaseItem:
		if p.sink == nil {
			return
		}
		status := StatusWorking
		if stage == StageEmit || p.sigsOnly {
			status = StatusDone
		}
		p.sink.OnEvent(Event{Item: ev.Item, Stage: stage, Status: status})
	case driver.PhaseEnd:
		p.timings.Set(stage, ev.Elapsed)
		emitStage(p.sink, nil, stage, StatusDone, nil, ev.Elapsed)
	}
}

func (p *phaseObserver) current() Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stage == "" {
		return StageExpand
	}
	return p.stage
}

func emitQueued(sink ProgressSink, items []string) {
	if sink == nil {
		return
	}
	for _, item := range items {
		sink.OnEvent(Event{Item: item, Stage: StageExpand, Status: StatusQueued})
	}
}

func emitStage(sink ProgressSink, items []string, stage Stage, status Status, err error, elapsed time.Duration) {
	if sink == nil {
		return
	}
	sink.OnEvent(Event{Stage: stage, Status: status, Err: err, Elapsed: elapsed})
	for _, item := range items {
		sink.OnEvent(Event{Item: item, Stage: stage, Status: status, Err: err, Elapsed: elapsed})
	}
}
