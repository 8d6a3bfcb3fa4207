// Package partialapply builds closures from partial applications: it decides
// whether a closure box is needed, lays the box out, emits the code that
// fills it and synthesizes the forwarder that calls the original function
// with the captured and the newly supplied arguments.
package partialapply

import (
	"context"
	"fmt"

	"callgen/internal/callemit"
	"callgen/internal/diag"
	"callgen/internal/explosion"
	"callgen/internal/ir"
	"callgen/internal/irgen"
	"callgen/internal/signature"
	"callgen/internal/source"
	"callgen/internal/trace"
	"callgen/internal/types"
)

// Kind is the shape of the closure a partial application produces.
type Kind uint8

const (
	// KindHeap captures into a refcounted box read by a forwarder.
	KindHeap Kind = iota
	// KindReuseFunction uses the target as the closure function unchanged,
	// with a null context when the target has none.
	KindReuseFunction
	// KindReuseContext uses the one captured object as the context and the
	// target as the function; no forwarder exists.
	KindReuseContext
	// KindThunkable uses the one captured object as the context of a
	// forwarder.
	KindThunkable
	// KindNoContext forwards to a static target with a null context.
	KindNoContext
	// KindFunctionContext passes a dynamic thin target as the context of a
	// forwarder.
	KindFunctionContext
)

var kindNames = [...]string{
	KindHeap:            "heap",
	KindReuseFunction:   "reuse-function",
	KindReuseContext:    "reuse-context",
	KindThunkable:       "thunkable",
	KindNoContext:       "no-context",
	KindFunctionContext: "function-context",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Allocates reports whether applying allocates a box.
func (k Kind) Allocates() bool { return k == KindHeap }

// Request describes one partial application.
type Request struct {
	// Name is the base of every symbol the application defines.
	Name string
	// Orig is the type the target was compiled against; Subst the type it
	// is applied at. Subst defaults to Orig.
	Orig  types.TypeID
	Subst types.TypeID
	// Outer is the thick type of the closure. It defaults to the remaining
	// parameters of Subst with an owned context.
	Outer types.TypeID
	// Captured lists the captured parameters in ascending order.
	Captured []int
	// Static is the target when known; nil means the function value is
	// supplied when applying.
	Static *ir.Function
	Loc    source.Loc
}

// Partial is a prepared partial application.
type Partial struct {
	Kind     Kind
	Name     string
	Orig     types.TypeID
	Subst    types.TypeID
	Outer    types.TypeID
	Captured []int
	Static   *ir.Function
	Layout   *HeapLayout

	// Thunk is the forwarder, nil for the reuse kinds.
	Thunk *ir.Function
	// Destroy and Metadata describe the box of a heap closure.
	Destroy  *ir.Function
	Metadata *ir.Global

	m        *irgen.Module
	loc      source.Loc
	origSig  *signature.Signature
	outerSig *signature.Signature
	bindings int
	single   Field
}

// Closure is the thick function value produced by applying.
type Closure struct {
	Fn  *ir.Value // i8*
	Ctx *ir.Value // refcounted pointer
}

// Explosion returns the closure as the pieces of a thick function value.
func (c Closure) Explosion() *explosion.Explosion {
	return explosion.New(c.Fn, c.Ctx)
}

// OuterType registers the thick type left after capturing the given
// parameters of fnType.
func OuterType(in *types.Interner, fnType types.TypeID, captured []int, ctxConv types.Convention) types.TypeID {
	fi := in.MustFnInfo(fnType)
	if len(fi.Generics) > 0 {
		panic("thunk: closure over an unsubstituted generic type")
	}
	var rest []types.Param
	for i, p := range fi.Params {
		if contains(captured, i) {
			if p.Convention == types.ConvIndirectOut {
				panic("thunk: capturing the indirect result")
			}
			continue
		}
		rest = append(rest, p)
	}
	return in.RegisterFn(types.FnInfo{
		Repr:    types.ReprThick,
		Params:  rest,
		Result:  fi.Result,
		Error:   fi.Error,
		Context: ctxConv,
	})
}

func contains(list []int, i int) bool {
	for _, v := range list {
		if v == i {
			return true
		}
	}
	return false
}

// Build classifies req and emits the module-level pieces of the
// application: the forwarder and, for heap closures, the box metadata.
func Build(ctx context.Context, m *irgen.Module, req Request) *Partial {
	if req.Subst == types.NoTypeID {
		req.Subst = req.Orig
	}
	orig := m.Types.MustFnInfo(req.Orig)
	subst := m.Types.MustFnInfo(req.Subst)
	switch orig.Repr {
	case types.ReprBlock, types.ReprObjCMethod, types.ReprWitnessMethod:
		diag.Unimplemented(req.Loc, "partial application of a "+orig.Repr.String()+" function")
	}
	if len(orig.Params) != len(subst.Params) {
		panic(fmt.Sprintf("thunk: %s applied as %s", m.Types.TypeString(req.Orig), m.Types.TypeString(req.Subst)))
	}
	for i, c := range req.Captured {
		if c < 0 || c >= len(subst.Params) || (i > 0 && c <= req.Captured[i-1]) {
			panic(fmt.Sprintf("thunk: captured parameters %v of a %d-parameter function", req.Captured, len(subst.Params)))
		}
	}
	if req.Outer == types.NoTypeID {
		req.Outer = OuterType(m.Types, req.Subst, req.Captured, types.ConvDirectOwned)
	}
	p := &Partial{
		Name:     req.Name,
		Orig:     req.Orig,
		Subst:    req.Subst,
		Outer:    req.Outer,
		Captured: append([]int(nil), req.Captured...),
		Static:   req.Static,
		Layout:   Empty(),
		m:        m,
		loc:      req.Loc,
		origSig:  m.Signature(ctx, req.Orig),
		outerSig: m.Signature(ctx, req.Outer),
	}
	p.checkOuter()
	for _, sp := range p.origSig.Params {
		if sp.Role == signature.RoleGenericMetadata || sp.Role == signature.RoleWitnessTable {
			p.bindings++
		}
	}
	p.Kind = p.classify()

	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeFunc, "thunk", trace.CurrentSpan(ctx))
	switch p.Kind {
	case KindHeap:
		p.Layout = p.heapLayout()
		p.emitDestroy(ctx)
		p.emitThunk(ctx)
	case KindThunkable, KindNoContext, KindFunctionContext:
		p.emitThunk(ctx)
	}
	span.End(p.Name + ": " + p.Kind.String())
	return p
}

// checkOuter verifies that the closure type takes exactly the parameters
// left uncaptured.
func (p *Partial) checkOuter() {
	in := p.m.Types
	subst := in.MustFnInfo(p.Subst)
	outer := in.MustFnInfo(p.Outer)
	bad := outer.Repr != types.ReprThick || len(outer.Generics) > 0 ||
		outer.Result != subst.Result || outer.Error != subst.Error ||
		len(outer.Params)+len(p.Captured) != len(subst.Params)
	if !bad {
		j := 0
		for i, sp := range subst.Params {
			if contains(p.Captured, i) {
				continue
			}
			if outer.Params[j] != sp {
				bad = true
				break
			}
			j++
		}
	}
	if bad {
		panic(fmt.Sprintf("thunk: %s does not close over %s capturing %v",
			in.TypeString(p.Outer), in.TypeString(p.Subst), p.Captured))
	}
}

func (p *Partial) sameSignature() bool {
	return p.origSig.Type.Equal(p.outerSig.Type) && p.origSig.CC == p.outerSig.CC
}

// widensToOuter reports whether the closure's physical signature is the
// target's plus a trailing context, which the target never reads. Only
// non-throwing thin targets qualify; a throwing one already carries the
// context slot in front of its error slot.
func (p *Partial) widensToOuter() bool {
	orig := p.m.Types.MustFnInfo(p.Orig)
	o, w := p.origSig, p.outerSig
	if orig.Repr != types.ReprThin || orig.Throws() || o.CC != w.CC {
		return false
	}
	if len(w.Params) != len(o.Params)+1 || w.Params[len(o.Params)].Role != signature.RoleContext {
		return false
	}
	if !o.Type.Ret.Equal(w.Type.Ret) {
		return false
	}
	for i, t := range o.Type.Params {
		if !t.Equal(w.Type.Params[i]) {
			return false
		}
	}
	return true
}

func (p *Partial) classify() Kind {
	in := p.m.Types
	orig := in.MustFnInfo(p.Orig)
	subst := in.MustFnInfo(p.Subst)
	outer := in.MustFnInfo(p.Outer)
	dynamicThick := p.Static == nil && orig.Repr == types.ReprThick

	if len(p.Captured) == 0 && p.bindings == 0 {
		if p.sameSignature() && (orig.Repr != types.ReprThick || orig.Context == outer.Context) {
			return KindReuseFunction
		}
		switch {
		case p.Static != nil && p.widensToOuter():
			return KindReuseFunction
		case p.Static != nil:
			return KindNoContext
		case !dynamicThick:
			return KindFunctionContext
		}
		return KindHeap
	}

	if len(p.Captured) != 1 || p.bindings > 0 || dynamicThick {
		return KindHeap
	}
	c := p.Captured[0]
	param := subst.Params[c]
	info := p.m.Infos.Scope(subst.Generics).Info(param.Type)
	if !info.Retainable || param.Convention.IsIndirect() || param.Convention == types.ConvDirectDeallocating {
		return KindHeap
	}
	p.single = newField(p.m.Infos.Scope(subst.Generics), c, param.Type, param.Convention)
	if p.origSig.SelfContext && c == len(subst.Params)-1 && p.sameSignature() &&
		param.Convention == outer.Context {
		if !(orig.Throws() && p.m.Target.DedicatedErrorRegister) {
			return KindReuseContext
		}
	}
	if p.Static != nil {
		return KindThunkable
	}
	return KindHeap
}

func (p *Partial) heapLayout() *HeapLayout {
	subst := p.m.Types.MustFnInfo(p.Subst)
	env := p.m.Infos.Scope(subst.Generics)
	var fields []Field
	for _, c := range p.Captured {
		sp := subst.Params[c]
		fields = append(fields, captureFields(env, c, sp.Type, sp.Convention)...)
	}
	var callee *Field
	if p.Static == nil {
		orig := p.m.Types.MustFnInfo(p.Orig)
		f := newField(env, -1, p.Orig, types.ConvDirectUnowned)
		if orig.Repr == types.ReprThick {
			f.Access = Alias
			if orig.Context.IsConsumed() {
				f.Access = Take
			}
		}
		callee = &f
	}
	return newHeapLayout(p.m, p.Name, p.bindings, fields, callee)
}

// emitDestroy defines the box destroy function and its metadata.
func (p *Partial) emitDestroy(ctx context.Context) {
	rt := p.m.RT
	fn := p.m.IR.Define(p.Name+".box.destroy", rt.DestroyFnType(), ir.CCNative, ir.AttrSet{}, ir.Internal)
	f := p.m.NewFunc(ctx, fn, p.loc)
	obj := f.Param(0)
	destroy := func(fd *Field) {
		if fd.Access != Address {
			f.DestroyAt(fd.addr(f.B, obj), fd.Info)
		}
	}
	for i := range p.Layout.Fields {
		destroy(&p.Layout.Fields[i])
	}
	if p.Layout.Callee != nil {
		destroy(p.Layout.Callee)
	}
	rt.EmitDealloc(f.B, obj, p.Layout.Size, p.Layout.Align)
	f.B.Ret(nil)
	p.Destroy = fn
	p.Metadata = rt.NewMetadata(p.Name+".box.metadata", fn, p.Layout.Size)
}

// Apply emits the construction of the closure in f. captured holds the
// captured arguments in parameter order, each as callemit.Width values and
// owned as its convention says; consumed values move into the closure and
// the others are copied. callee is the function value when the target is
// dynamic and nil otherwise. generics are the metadata then witness-table
// values of the target's generic parameters.
func (p *Partial) Apply(f *irgen.Func, captured, callee *explosion.Explosion, generics []*ir.Value) Closure {
	if (callee == nil) != (p.Static != nil) {
		panic("thunk: a function value is required exactly when the target is dynamic")
	}
	if len(generics) != p.bindings {
		panic(fmt.Sprintf("thunk: %d generic arguments, want %d", len(generics), p.bindings))
	}
	if captured == nil {
		captured = explosion.New()
	}
	rc := p.m.RT.RefCountedPtr()
	fnValue := func() *ir.Value {
		if p.Static != nil {
			return f.B.Bitcast(p.Static.Value(), ir.I8Ptr)
		}
		return f.B.Bitcast(callee.Claim(), ir.I8Ptr)
	}

	var c Closure
	switch p.Kind {
	case KindReuseFunction:
		c.Fn = fnValue()
		c.Ctx = ir.Null(rc)
		if callee != nil && p.m.Types.MustFnInfo(p.Orig).Repr == types.ReprThick {
			c.Ctx = f.Coerce(callee.Claim(), rc)
		}
	case KindReuseContext:
		c.Fn = fnValue()
		c.Ctx = p.captureSingle(f, captured)
	case KindThunkable:
		c.Fn = f.B.Bitcast(p.Thunk.Value(), ir.I8Ptr)
		c.Ctx = p.captureSingle(f, captured)
	case KindNoContext:
		c.Fn = f.B.Bitcast(p.Thunk.Value(), ir.I8Ptr)
		c.Ctx = ir.Null(rc)
	case KindFunctionContext:
		c.Fn = f.B.Bitcast(p.Thunk.Value(), ir.I8Ptr)
		c.Ctx = f.B.Bitcast(fnValue(), rc)
	case KindHeap:
		c.Fn = f.B.Bitcast(p.Thunk.Value(), ir.I8Ptr)
		c.Ctx = p.fillBox(f, captured, callee, generics)
	}
	captured.AssertEmpty()
	if callee != nil {
		callee.AssertEmpty()
	}
	return c
}

// captureSingle claims the one captured object; the closure owns it.
func (p *Partial) captureSingle(f *irgen.Func, captured *explosion.Explosion) *ir.Value {
	v := captured.Claim()
	if !p.single.Conv.IsConsumed() {
		p.m.RT.EmitRetain(f.B, v)
	}
	return f.Coerce(v, p.m.RT.RefCountedPtr())
}

func (p *Partial) fillBox(f *irgen.Func, captured, callee *explosion.Explosion, generics []*ir.Value) *ir.Value {
	l := p.Layout
	obj := p.m.RT.EmitAlloc(f.B, p.Metadata.Value(), l.Size, l.Align)
	for i, g := range generics {
		slot := f.B.ByteOffset(obj, l.BindingsOffset+int64(i)*int64(p.m.DL().PtrSize), ir.I8Ptr)
		f.B.Store(f.B.Bitcast(g, ir.I8Ptr), slot)
	}
	for i := range l.Fields {
		fd := &l.Fields[i]
		addr := fd.addr(f.B, obj)
		switch {
		case fd.Access == Address:
			f.B.Store(captured.Claim(), addr)
		case fd.Conv.IsIndirect():
			src := captured.Claim()
			if fd.Conv.IsConsumed() {
				f.B.Memcpy(f.B.Bitcast(addr, ir.I8Ptr), f.B.Bitcast(src, ir.I8Ptr), fd.Info.Size())
			} else {
				f.CopyInto(addr, src, fd.Info)
			}
		case fd.Conv.IsConsumed():
			f.StoreExplosion(captured, addr, fd.Info)
		default:
			var copied explosion.Explosion
			f.CopyExplosion(captured, &copied, fd.Info)
			f.StoreExplosion(&copied, addr, fd.Info)
		}
	}
	if l.Callee != nil {
		f.StoreExplosion(callee, l.Callee.addr(f.B, obj), l.Callee.Info)
	}
	return obj
}

// DefineMaker defines make_<name>, which takes the captured arguments, the
// function value of a dynamic target and the generic arguments as
// physical parameters and returns the closure as {i8*, context}.
func (p *Partial) DefineMaker(ctx context.Context) *ir.Function {
	subst := p.m.Types.MustFnInfo(p.Subst)
	env := p.m.Infos.Scope(subst.Generics)
	var params []*ir.Type
	for _, c := range p.Captured {
		sp := subst.Params[c]
		params = append(params, callemit.PieceTypes(env, sp.Type, sp.Convention)...)
	}
	nCaptured := len(params)
	if p.Static == nil {
		for _, pc := range p.m.Info(p.Orig).Pieces {
			params = append(params, pc.Type)
		}
	}
	nCallee := len(params) - nCaptured
	for i, sp := range p.origSig.Params {
		if sp.Role == signature.RoleGenericMetadata || sp.Role == signature.RoleWitnessTable {
			params = append(params, p.origSig.Type.Params[i])
		}
	}

	ret := ir.StructOf(ir.I8Ptr, p.m.RT.RefCountedPtr())
	fn := p.m.IR.Define("make_"+p.Name, ir.FuncOf(ret, params...), ir.CCNative, ir.AttrSet{}, ir.External)
	f := p.m.NewFunc(ctx, fn, p.loc)
	captured := explosion.New(fn.Params[:nCaptured]...)
	var callee *explosion.Explosion
	if p.Static == nil {
		callee = explosion.New(fn.Params[nCaptured : nCaptured+nCallee]...)
	}
	generics := fn.Params[nCaptured+nCallee:]
	c := p.Apply(f, captured, callee, generics)
	agg := f.B.InsertValue(ir.Undef(ret), c.Fn, 0)
	f.B.Ret(f.B.InsertValue(agg, c.Ctx, 1))
	return fn
}
