package driver

import (
	"context"

	"callgen/internal/callemit"
	"callgen/internal/diag"
	"callgen/internal/explosion"
	"callgen/internal/ir"
	"callgen/internal/partialapply"
	"callgen/internal/project"
	"callgen/internal/typeinfo"
	"callgen/internal/types"
)

// emit runs after expand. Bodies are emitted one at a time: the runtime
// and C ABI helpers they share are not safe for concurrent use.
func (s *session) emit(ctx context.Context) error {
	total := len(s.prog.Funcs) + len(s.prog.Partials)
	done := 0
	step := func(item string) {
		done++
		s.observe(PhaseEvent{Name: "emit", Status: PhaseItem, Item: item, Done: done, Total: total})
	}
	for i := range s.res.Sigs {
		if err := ctx.Err(); err != nil {
			return err
		}
		r := &s.res.Sigs[i]
		s.res.Callers = append(s.res.Callers, s.emitCaller(ctx, r))
		step(r.Func.Name)
	}
	for _, p := range s.prog.Partials {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.res.Partials = append(s.res.Partials, s.emitPartial(ctx, p))
		step(p.Name)
	}
	return nil
}

func (s *session) emitCaller(ctx context.Context, r *SigResult) CallerResult {
	res := CallerResult{Func: r.Func}
	if r.Signature == nil {
		res.Skipped = "signature not expanded"
		return res
	}
	res.Decl = s.m.DeclareFunction(r.Func.Name, r.Signature)
	s.decls[r.Func.Name] = res.Decl

	fi := s.prog.Types.MustFnInfo(r.Func.Type)
	switch {
	case len(fi.Generics) > 0:
		res.Skipped = "generic"
		return res
	case fi.Repr == types.ReprBlock, fi.Repr == types.ReprObjCMethod, fi.Repr == types.ReprWitnessMethod:
		res.Skipped = fi.Repr.String() + " representation"
		return res
	}
	mark := s.m.IR.Mark()
	fn, err := s.caller(ctx, r.Func, fi)
	if err != nil {
		s.m.IR.Rollback(mark)
		s.report(err, r.Func.Loc)
		res.Skipped = "not implemented"
		return res
	}
	res.Fn = fn
	return res
}

// caller defines call.<name>(fn, [ctx,] args..., [error cell]), which makes
// one call through the function value fn. args are the explosion of every
// formal in declaration order. Ownership of the arguments and the context
// passes through to the callee unchanged. A result kept in memory is
// written through a leading buffer parameter; otherwise its pieces are
// returned, packed into a struct when there are several.
func (s *session) caller(ctx context.Context, f *project.Func, fi *types.FnInfo) (fn *ir.Function, err error) {
	defer diag.Recover(&err)
	m := s.m
	env := m.Infos.Scope(nil)
	result := m.Info(fi.Result)
	indirect := !result.Loadable()

	var params []*ir.Type
	if indirect {
		params = append(params, ir.PtrTo(result.Storage))
	}
	fnIdx := len(params)
	params = append(params, ir.I8Ptr)
	if fi.Repr == types.ReprThick {
		params = append(params, m.RT.RefCountedPtr())
	}
	first := len(params)
	for _, p := range fi.Params {
		params = append(params, callemit.PieceTypes(env, p.Type, p.Convention)...)
	}
	last := len(params)
	if fi.Throws() {
		params = append(params, ir.PtrTo(m.RT.ErrorPtr()))
	}
	ret := ir.Void
	if !indirect {
		ret = packedType(result)
	}

	fn = m.IR.Define("call."+f.Name, ir.FuncOf(ret, params...), ir.CCNative, ir.AttrSet{}, ir.External)
	b := m.NewFunc(ctx, fn, f.Loc)
	if fi.Throws() {
		b.SetErrorSlot(b.Param(last))
	}
	callee := callemit.Callee{Fn: b.Param(fnIdx), OrigType: f.Type}
	if fi.Repr == types.ReprThick {
		callee.Data = b.Param(fnIdx + 1)
	}
	e := callemit.New(b, callee)
	e.SetArgs(explosion.New(fn.Params[first:last]...), nil, nil)
	if indirect {
		e.Emit(callemit.ToMemory{Addr: b.Param(0), Info: result})
		b.B.Ret(nil)
		return fn, nil
	}
	var out explosion.Explosion
	e.Emit(callemit.ToExplosion{Out: &out})
	vals := out.ClaimAll()
	switch len(vals) {
	case 0:
		b.B.Ret(nil)
	case 1:
		b.B.Ret(vals[0])
	default:
		agg := ir.Undef(ret)
		for i, v := range vals {
			agg = b.B.InsertValue(agg, v, i)
		}
		b.B.Ret(agg)
	}
	return fn, nil
}

// packedType is the return type of a caller whose result is loadable.
func packedType(info *typeinfo.Info) *ir.Type {
	switch len(info.Pieces) {
	case 0:
		return ir.Void
	case 1:
		return info.Pieces[0].Type
	}
	ts := make([]*ir.Type, len(info.Pieces))
	for i, p := range info.Pieces {
		ts[i] = p.Type
	}
	return ir.StructOf(ts...)
}

func (s *session) emitPartial(ctx context.Context, p *project.Partial) PartialResult {
	res := PartialResult{Partial: p}
	req := partialapply.Request{
		Name:     p.Name,
		Orig:     p.Func.Type,
		Subst:    p.Subst,
		Outer:    partialapply.OuterType(s.prog.Types, p.Subst, p.Captured, p.Context),
		Captured: p.Captured,
		Loc:      p.Loc,
	}
	if !p.Dynamic {
		decl, ok := s.decls[p.Func.Name]
		if !ok {
			res.Skipped = "target " + p.Func.Name + " not lowered"
			return res
		}
		req.Static = decl
	}
	mark := s.m.IR.Mark()
	built, maker, err := s.buildPartial(ctx, req)
	if err != nil {
		s.m.IR.Rollback(mark)
		s.report(err, p.Loc)
		res.Skipped = "not implemented"
		return res
	}
	res.Built, res.Maker = built, maker
	return res
}

func (s *session) buildPartial(ctx context.Context, req partialapply.Request) (built *partialapply.Partial, maker *ir.Function, err error) {
	defer diag.Recover(&err)
	built = partialapply.Build(ctx, s.m, req)
	return built, built.DefineMaker(ctx), nil
}
