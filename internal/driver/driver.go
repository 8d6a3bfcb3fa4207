// Package driver lowers a manifest program into one IR module. Lowering
// runs two phases: "expand" computes the signature of every declared
// function on a pool of workers; "emit" then defines, one function at a
// time, a caller for each function and the pieces of each partial
// application.
package driver

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"callgen/internal/cabi"
	"callgen/internal/diag"
	"callgen/internal/ir"
	"callgen/internal/irgen"
	"callgen/internal/observ"
	"callgen/internal/partialapply"
	"callgen/internal/project"
	"callgen/internal/signature"
	"callgen/internal/source"
	"callgen/internal/trace"
)

// DefaultMaxDiagnostics bounds the diagnostics of one run when Options
// names no limit.
const DefaultMaxDiagnostics = 100

// Options configure Expand and Lower.
type Options struct {
	// Jobs bounds the expand workers; 0 means GOMAXPROCS.
	Jobs           int
	MaxDiagnostics int
	// Cache, when set, stores every described signature. Expand also
	// serves signatures from it.
	Cache      *DiskCache
	Observer   PhaseObserver
	Classifier cabi.Classifier
	// Timings appends an ObsTimings diagnostic with per-phase durations.
	Timings bool
}

// SigResult is the expanded signature of one declared function.
type SigResult struct {
	Func *project.Func
	// Signature is nil when the text came from the disk cache or the
	// expansion failed.
	Signature *signature.Signature
	Text      string
	FromDisk  bool
}

// CallerResult is the caller emitted for one declared function.
type CallerResult struct {
	Func *project.Func
	// Decl is the declaration of the function itself.
	Decl *ir.Function
	// Fn is call.<name>, nil when Skipped says why none was emitted.
	Fn      *ir.Function
	Skipped string
}

// PartialResult is one lowered partial application.
type PartialResult struct {
	Partial *project.Partial
	Built   *partialapply.Partial
	// Maker is make_<name>, nil when Skipped says why none was emitted.
	Maker   *ir.Function
	Skipped string
}

// Result is the outcome of one run. Diagnostics for functions that could
// not be lowered are collected in Bag; the other results stay usable.
type Result struct {
	Program  *project.Program
	Module   *irgen.Module
	Sigs     []SigResult
	Callers  []CallerResult
	Partials []PartialResult
	Bag      *diag.Bag
}

// Sig returns the signature result of the named function.
func (r *Result) Sig(name string) (*SigResult, bool) {
	for i := range r.Sigs {
		if r.Sigs[i].Func != nil && r.Sigs[i].Func.Name == name {
			return &r.Sigs[i], true
		}
	}
	return nil, false
}

// FromDisk counts the signatures served by the disk cache.
func (r *Result) FromDisk() int {
	n := 0
	for _, s := range r.Sigs {
		if s.FromDisk {
			n++
		}
	}
	return n
}

// LoadProgram loads the manifest at path, or the one governing the working
// directory when path is empty, and resolves it. Problems in the manifest
// come back as diagnostics in bag with a nil program; err is reserved for
// failures to find or read the file.
func LoadProgram(path string, maxDiagnostics int) (prog *project.Program, bag *diag.Bag, err error) {
	if maxDiagnostics <= 0 {
		maxDiagnostics = DefaultMaxDiagnostics
	}
	bag = diag.NewBag(maxDiagnostics)
	var m *project.Manifest
	if path == "" {
		m, err = project.LoadFrom(".")
	} else {
		m, err = project.Load(path)
	}
	if err == nil {
		prog, err = m.Program()
	}
	var merr *project.ManifestError
	if errors.As(err, &merr) {
		bag.Add(merr.Diagnostic())
		return nil, bag, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return prog, bag, nil
}

type session struct {
	prog   *project.Program
	m      *irgen.Module
	opts   Options
	res    *Result
	timer  *observ.Timer
	// decls maps a declared function name to its declaration.
	decls map[string]*ir.Function
}

func newSession(prog *project.Program, opts Options) *session {
	if opts.MaxDiagnostics <= 0 {
		opts.MaxDiagnostics = DefaultMaxDiagnostics
	}
	m := irgen.NewModule(moduleName(prog), prog.Types, prog.Target, irgen.Options{Classifier: opts.Classifier})
	return &session{
		prog:  prog,
		m:     m,
		opts:  opts,
		timer: observ.NewTimer(),
		decls: make(map[string]*ir.Function, len(prog.Funcs)),
		res: &Result{
			Program: prog,
			Module:  m,
			Bag:     diag.NewBag(opts.MaxDiagnostics),
		},
	}
}

func moduleName(prog *project.Program) string {
	if prog.Manifest == nil || prog.Manifest.Root == "" {
		return "callgen"
	}
	name := filepath.Base(prog.Manifest.Root)
	if name == "." || name == string(filepath.Separator) {
		return "callgen"
	}
	return name
}

// Expand expands the signature of every declared function. Signatures
// found in the disk cache are not expanded again.
func Expand(ctx context.Context, prog *project.Program, opts Options) (*Result, error) {
	s := newSession(prog, opts)
	return s.run(ctx, "expand", func(ctx context.Context) error {
		return s.phase(ctx, "expand", len(prog.Funcs), func(ctx context.Context) error {
			return s.expand(ctx, true)
		})
	})
}

// Lower expands every signature and emits the module.
func Lower(ctx context.Context, prog *project.Program, opts Options) (*Result, error) {
	s := newSession(prog, opts)
	return s.run(ctx, "lower", func(ctx context.Context) error {
		err := s.phase(ctx, "expand", len(prog.Funcs), func(ctx context.Context) error {
			return s.expand(ctx, false)
		})
		if err != nil {
			return err
		}
		return s.phase(ctx, "emit", len(prog.Funcs)+len(prog.Partials), s.emit)
	})
}

func (s *session) run(ctx context.Context, kind string, body func(context.Context) error) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	span := trace.Begin(trace.FromContext(ctx), trace.ScopeDriver, kind, trace.CurrentSpan(ctx))
	err := body(trace.WithSpan(ctx, span))
	span.End(fmt.Sprintf("%d functions, %d partials", len(s.prog.Funcs), len(s.prog.Partials)))
	if err != nil {
		return nil, err
	}
	if s.opts.Timings {
		st := s.m.Sigs.Stats()
		payload := timingPayload{
			Kind:   kind,
			Report: s.timer.Report(),
			Sigs:   &sigCounters{Hits: st.Hits, Misses: st.Misses, Entries: st.Entries, FromDisk: s.res.FromDisk()},
		}
		if s.prog.Manifest != nil {
			payload.Path = s.prog.Manifest.Path
		}
		appendTimingDiagnostic(s.res.Bag, payload)
	}
	return s.res, nil
}

func (s *session) phase(ctx context.Context, name string, items int, fn func(context.Context) error) error {
	idx := s.timer.Begin(name, items)
	s.observe(PhaseEvent{Name: name, Status: PhaseStart, Total: items})
	span := trace.Begin(trace.FromContext(ctx), trace.ScopePass, name, trace.CurrentSpan(ctx))
	err := fn(trace.WithSpan(ctx, span))
	note := ""
	if err != nil {
		note = "failed"
	}
	elapsed := s.timer.End(idx, note)
	span.End(fmt.Sprintf("%d items", items))
	s.observe(PhaseEvent{Name: name, Status: PhaseEnd, Done: items, Total: items, Elapsed: elapsed})
	return err
}

func (s *session) observe(ev PhaseEvent) {
	if s.opts.Observer != nil {
		s.opts.Observer(ev)
	}
}

// report records a failure recovered by diag.Recover. Diagnostics raised
// without a position are attributed to loc.
func (s *session) report(err error, loc source.Loc) {
	ue, ok := diag.AsUnimplemented(err)
	if !ok {
		s.res.Bag.Add(diag.Diagnostic{Severity: diag.SevError, Code: diag.IRLayout, Message: err.Error(), Primary: loc})
		return
	}
	d := ue.Diagnostic()
	switch {
	case d.Primary.IsZero():
		d.Primary = loc
	case d.Primary != loc:
		d = d.WithNote(loc, "while lowering "+loc.Entity)
	}
	s.res.Bag.Add(d)
}
