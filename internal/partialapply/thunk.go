package partialapply

import (
	"context"
	"fmt"

	"callgen/internal/callemit"
	"callgen/internal/explosion"
	"callgen/internal/ir"
	"callgen/internal/irgen"
	"callgen/internal/signature"
	"callgen/internal/typeinfo"
	"callgen/internal/types"
)

// forwarder is the state of one thunk body.
type forwarder struct {
	p   *Partial
	f   *irgen.Func
	ctx *ir.Value

	// captured holds the rebuilt explosion of each captured parameter.
	captured map[int]*explosion.Explosion
	callee   callemit.Callee
	generics []*ir.Value

	release      bool
	releaseAfter bool
}

// emitThunk synthesizes the forwarder: it has the closure's signature,
// rebuilds the full argument list and calls the target exactly once.
func (p *Partial) emitThunk(ctx context.Context) {
	sig := p.outerSig
	f := p.m.DefineFunction(ctx, p.Name+".thunk", sig, ir.Internal, p.loc)
	p.Thunk = f.Fn
	if i := sig.Index(signature.RoleError); i >= 0 {
		f.SetErrorSlot(f.Param(i))
	}
	outer := p.m.Types.MustFnInfo(p.Outer)
	w := &forwarder{
		p:        p,
		f:        f,
		ctx:      f.Param(sig.Index(signature.RoleContext)),
		captured: make(map[int]*explosion.Explosion, len(p.Captured)),
		callee:   callemit.Callee{OrigType: p.Orig, SubstType: p.Subst},
	}
	if p.Static != nil {
		w.callee.Fn = p.Static.Value()
	}

	switch p.Kind {
	case KindHeap:
		w.release = outer.Context.IsConsumed()
		w.readBox()
	case KindThunkable:
		w.forwardContext(outer.Context)
	case KindFunctionContext:
		w.callee.Fn = f.B.Bitcast(w.ctx, ir.I8Ptr)
	case KindNoContext:
	default:
		panic(fmt.Sprintf("thunk: no forwarder for a %s closure", p.Kind))
	}

	args := w.arguments()
	e := callemit.New(f, w.callee)
	e.SetArgs(args, w.generics, nil)

	var dest callemit.CallResult
	var out explosion.Explosion
	if sig.IndirectReturn && !sig.FormalOut {
		subst := p.m.Types.MustFnInfo(p.Subst)
		dest = callemit.ToMemory{
			Addr: f.Param(sig.Index(signature.RoleIndirectResult)),
			Info: p.m.Infos.Scope(subst.Generics).Info(subst.Result),
		}
	} else {
		dest = callemit.ToExplosion{Out: &out}
	}

	if w.release && !w.releaseAfter {
		p.m.RT.EmitRelease(f.B, w.ctx)
		e.SetTail(true)
	}
	e.Emit(dest)
	if w.release && w.releaseAfter {
		p.m.RT.EmitRelease(f.B, w.ctx)
	}
	w.ret(&out)
}

// forwardContext treats the context itself as the one captured object.
func (w *forwarder) forwardContext(ctxConv types.Convention) {
	fd := w.p.single
	v := w.f.Coerce(w.ctx, fd.Info.Storage)
	switch {
	case ctxConv.IsConsumed() && !fd.Conv.IsConsumed():
		w.release, w.releaseAfter = true, true
	case !ctxConv.IsConsumed() && fd.Conv.IsConsumed():
		w.p.m.RT.EmitRetain(w.f.B, v)
	}
	w.captured[fd.Param] = explosion.New(v)
}

// readBox loads the bindings, the captured fields and a dynamic callee out
// of the box. Every read precedes the release of the context.
func (w *forwarder) readBox() {
	l := w.p.Layout
	b := w.f.B
	obj := b.Bitcast(w.ctx, ir.PtrTo(l.Storage))
	for i := 0; i < l.Bindings; i++ {
		slot := b.ByteOffset(obj, l.BindingsOffset+int64(i)*int64(w.f.M.DL().PtrSize), ir.I8Ptr)
		w.generics = append(w.generics, b.Load(ir.I8Ptr, slot))
	}
	for i := range l.Fields {
		fd := &l.Fields[i]
		out, ok := w.captured[fd.Param]
		if !ok {
			out = explosion.New()
			w.captured[fd.Param] = out
		}
		w.readField(fd, fd.addr(b, obj), out)
	}
	if l.Callee != nil {
		var fn explosion.Explosion
		w.readField(l.Callee, l.Callee.addr(b, obj), &fn)
		w.callee.Fn = fn.Claim()
		if !fn.Empty() {
			w.callee.Data = fn.Claim()
		}
	}
	w.releaseAfter = l.DependsOnContext()
}

func (w *forwarder) readField(fd *Field, addr *ir.Value, out *explosion.Explosion) {
	f := w.f
	switch fd.Access {
	case Address:
		out.Add(f.B.Load(fd.Slot, addr))
	case Alias:
		if fd.Conv.IsIndirect() {
			out.Add(f.B.Bitcast(addr, ir.PtrTo(fd.Info.Storage)))
			return
		}
		f.LoadExplosion(addr, fd.Info, out)
	case Copy:
		f.LoadExplosion(addr, fd.Info, out)
	case Take:
		if fd.Conv.IsIndirect() {
			tmp := f.Temp(fd.Info)
			f.CopyInto(tmp, addr, fd.Info)
			out.Add(tmp)
			return
		}
		var loaded explosion.Explosion
		f.LoadExplosion(addr, fd.Info, &loaded)
		f.CopyExplosion(&loaded, out, fd.Info)
	}
}

// arguments interleaves the captured values with the forwarder's own
// parameters in source order.
func (w *forwarder) arguments() *explosion.Explosion {
	p := w.p
	sig := p.outerSig
	byFormal := map[int][]*ir.Value{}
	for i, sp := range sig.Params {
		if sp.Formal >= 0 {
			byFormal[sp.Formal] = append(byFormal[sp.Formal], w.f.Param(i))
		}
	}
	subst := p.m.Types.MustFnInfo(p.Subst)
	env := p.m.Infos.Scope(nil)

	args := explosion.New()
	next := 0
	for i, sp := range subst.Params {
		if c, ok := w.captured[i]; ok {
			args.Add(c.ClaimAll()...)
			continue
		}
		if contains(p.Captured, i) {
			// a capture with no fields, such as an empty tuple
			continue
		}
		vals := byFormal[next]
		used := 0
		w.toLogical(env, sp.Type, sp.Convention, vals, &used, args)
		if used != len(vals) {
			panic(fmt.Sprintf("thunk: parameter %d used %d of %d physical values", next, used, len(vals)))
		}
		next++
	}
	return args
}

// toLogical rebuilds the explosion of one parameter from its physical
// values.
func (w *forwarder) toLogical(env *typeinfo.Env, ty types.TypeID, conv types.Convention, vals []*ir.Value, used *int, out *explosion.Explosion) {
	take := func() *ir.Value {
		if *used >= len(vals) {
			panic("thunk: parameter has too few physical values")
		}
		v := vals[*used]
		*used++
		return v
	}
	if conv.IsIndirect() {
		out.Add(take())
		return
	}
	if ti, ok := env.Converter().Types.TupleInfo(ty); ok {
		for _, el := range ti.Elems {
			w.toLogical(env, el, conv, vals, used, out)
		}
		return
	}
	info := env.Info(ty)
	if info.Schema.RequiresIndirectParameter() {
		addr := take()
		if !info.Loadable() {
			out.Add(addr)
			return
		}
		// the value is handed over in memory; its bits carry the ownership
		w.f.LoadExplosion(addr, info, out)
		return
	}
	for i := 0; i < info.Schema.Len(); i++ {
		out.Add(take())
	}
}

func (w *forwarder) ret(out *explosion.Explosion) {
	b := w.f.B
	rt := w.p.outerSig.Type.Ret
	vals := out.ClaimAll()
	switch {
	case rt.IsVoid():
		b.Ret(nil)
	case len(vals) == 1:
		b.Ret(w.f.Coerce(vals[0], rt))
	default:
		if len(vals) != len(rt.Fields) {
			panic(fmt.Sprintf("thunk: %d result values for %s", len(vals), rt))
		}
		agg := ir.Undef(rt)
		for i, v := range vals {
			agg = b.InsertValue(agg, w.f.Coerce(v, rt.Fields[i]), i)
		}
		b.Ret(agg)
	}
}
