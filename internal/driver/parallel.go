package driver

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"callgen/internal/diag"
	"callgen/internal/project"
	"callgen/internal/signature"
	"callgen/internal/trace"
)

// expand fills s.res.Sigs in declaration order. Workers share the module's
// signature cache; each writes only its own slot of the result slice.
func (s *session) expand(ctx context.Context, useDisk bool) error {
	funcs := s.prog.Funcs
	s.res.Sigs = make([]SigResult, len(funcs))
	if len(funcs) == 0 {
		return nil
	}

	// fingerprints hash the interner; compute them before fanning out
	keys := make([]project.Digest, len(funcs))
	if s.opts.Cache != nil {
		for i, f := range funcs {
			keys[i] = s.prog.Fingerprint(f.Type)
		}
	}

	jobs := s.opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(funcs)))
	for i, f := range funcs {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			res, err := s.expandOne(gctx, f, keys[i], useDisk)
			if err != nil {
				return err
			}
			s.res.Sigs[i] = res
			s.observe(PhaseEvent{
				Name:   "expand",
				Status: PhaseItem,
				Item:   f.Name,
				Done:   int(done.Add(1)),
				Total:  len(funcs),
			})
			return nil
		})
	}
	return g.Wait()
}

func (s *session) expandOne(ctx context.Context, f *project.Func, key project.Digest, useDisk bool) (SigResult, error) {
	res := SigResult{Func: f}
	typeText := s.prog.Types.TypeString(f.Type)
	if useDisk && s.opts.Cache != nil {
		var payload DiskPayload
		ok, err := s.opts.Cache.Get(key, &payload)
		if err != nil {
			return res, fmt.Errorf("signature cache: %s: %w", f.Name, err)
		}
		if ok && payload.Type == typeText {
			res.Text, res.FromDisk = payload.Signature, true
			trace.Point(trace.FromContext(ctx), trace.ScopeFunc, "sig.disk", f.Name)
			return res, nil
		}
	}

	span := trace.Begin(trace.FromContext(ctx), trace.ScopeFunc, f.Name, trace.CurrentSpan(ctx))
	sig, err := s.signature(trace.WithSpan(ctx, span), f)
	if err != nil {
		span.End("failed")
		s.report(err, f.Loc)
		return res, nil
	}
	span.End(typeText)
	res.Signature, res.Text = sig, sig.Describe()

	if s.opts.Cache != nil {
		err := s.opts.Cache.Put(key, &DiskPayload{
			Type:           typeText,
			Signature:      res.Text,
			Params:         sig.NumParams(),
			IndirectReturn: sig.IndirectReturn,
			HasError:       sig.HasError(),
		})
		if err != nil {
			return res, fmt.Errorf("signature cache: %s: %w", f.Name, err)
		}
	}
	return res, nil
}

func (s *session) signature(ctx context.Context, f *project.Func) (sig *signature.Signature, err error) {
	defer diag.Recover(&err)
	return s.m.Signature(ctx, f.Type), nil
}
