package partialapply

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"callgen/internal/callemit"
	"callgen/internal/explosion"
	"callgen/internal/ir"
	"callgen/internal/irgen"
	"callgen/internal/layout"
	"callgen/internal/signature"
	"callgen/internal/source"
	"callgen/internal/trace"
	"callgen/internal/types"
	"callgen/internal/vm"
)

var bg = context.Background()

type harness struct {
	in *types.Interner
	b  types.Builtins
	m  *irgen.Module

	obj   types.TypeID
	point types.TypeID
	large types.TypeID

	natives map[string]vm.Native
	log     []string
}

func newHarness(t *testing.T, tgt layout.Target) *harness {
	t.Helper()
	in := types.NewInterner()
	b := in.Builtins()
	h := &harness{
		in:      in,
		b:       b,
		m:       irgen.NewModule("partial", in, tgt, irgen.Options{}),
		natives: map[string]vm.Native{},
	}
	h.obj = in.RegisterClass("Obj", nil)
	h.point = in.RegisterStruct("Point", []types.Field{{Name: "x", Type: b.Int32}, {Name: "y", Type: b.Double}}, false)
	h.large = in.RegisterStruct("Large", []types.Field{
		{Name: "a", Type: b.Int}, {Name: "b", Type: b.Int}, {Name: "c", Type: b.Int}, {Name: "d", Type: b.Int},
	}, false)
	return h
}

func (h *harness) fn(info types.FnInfo) types.TypeID { return h.in.RegisterFn(info) }

// target defines a function with the expanded signature of id.
func (h *harness) target(id types.TypeID, name string) *irgen.Func {
	sig := h.m.Signature(bg, id)
	return h.m.DefineFunction(bg, name, sig, ir.External, source.Loc{Entity: name})
}

func (h *harness) declare(id types.TypeID, name string) *ir.Function {
	return h.m.DeclareFunction(name, h.m.Signature(bg, id))
}

func (h *harness) entry(name string, rt *ir.Type, params ...*ir.Type) *irgen.Func {
	fn := h.m.IR.Define(name, ir.FuncOf(rt, params...), ir.CCNative, ir.AttrSet{}, ir.External)
	return h.m.NewFunc(bg, fn, source.Loc{Entity: name})
}

// native declares an external function implemented by fn.
func (h *harness) native(name string, ty *ir.Type, fn vm.Native) *ir.Function {
	h.natives[name] = fn
	return h.m.IR.Declare(name, ty, ir.CCC, ir.AttrSet{})
}

func callNative(f *irgen.Func, decl *ir.Function, args ...*ir.Value) {
	f.B.Call(decl.Value(), decl.Type, args, ir.CCC, ir.AttrSet{})
}

// noteRefCount declares note_rc, which logs the count of its argument.
func (h *harness) noteRefCount() *ir.Function {
	return h.native("note_rc", ir.FuncOf(ir.Void, h.m.RT.RefCountedPtr()), func(m *vm.VM, args []vm.Val) (vm.Val, error) {
		h.log = append(h.log, fmt.Sprintf("rc=%d", m.RefCount(args[0])))
		return vm.Val{}, nil
	})
}

// objects defines new_obj, which allocates an Obj, and drop, which
// releases one reference.
func (h *harness) objects() {
	rt := h.m.RT
	destroy := h.m.IR.Define("obj.destroy", rt.DestroyFnType(), ir.CCNative, ir.AttrSet{}, ir.Internal)
	db := ir.NewBuilder(destroy, h.m.DL())
	rt.EmitDealloc(db, destroy.Params[0], 16, 8)
	db.Ret(nil)
	md := rt.NewMetadata("obj.metadata", destroy, 16)

	alloc := h.entry("new_obj", rt.RefCountedPtr())
	alloc.B.Ret(rt.EmitAlloc(alloc.B, md.Value(), 16, 8))

	drop := h.entry("drop", ir.Void, rt.RefCountedPtr())
	rt.EmitRelease(drop.B, drop.Param(0))
	drop.B.Ret(nil)
}

// invoker defines name(fn, ctx, args...), which calls a closure of type
// outer the way any holder of the closure does.
func (h *harness) invoker(name string, outer types.TypeID, rt *ir.Type, params ...*ir.Type) *irgen.Func {
	f := h.entry(name, rt, append([]*ir.Type{ir.I8Ptr, h.m.RT.RefCountedPtr()}, params...)...)
	if h.in.MustFnInfo(outer).Context.IsConsumed() {
		h.m.RT.EmitRetain(f.B, f.Param(1))
	}
	e := callemit.New(f, callemit.Callee{Fn: f.Param(0), Data: f.Param(1), OrigType: outer})
	e.SetArgs(explosion.New(f.Fn.Params[2:]...), nil, nil)
	var out explosion.Explosion
	e.Emit(callemit.ToExplosion{Out: &out})
	ret(f, out.ClaimAll())
	return f
}

func ret(f *irgen.Func, vals []*ir.Value) {
	switch len(vals) {
	case 0:
		f.B.Ret(nil)
	case 1:
		f.B.Ret(vals[0])
	default:
		f.B.Ret(pack(f, vals))
	}
}

func pack(f *irgen.Func, vals []*ir.Value) *ir.Value {
	ts := make([]*ir.Type, len(vals))
	for i, v := range vals {
		ts[i] = v.Type
	}
	agg := ir.Undef(ir.StructOf(ts...))
	for i, v := range vals {
		agg = f.B.InsertValue(agg, v, i)
	}
	return agg
}

func (h *harness) machine(t *testing.T) *vm.VM {
	t.Helper()
	m, err := vm.New(h.m.IR, vm.Options{})
	if err != nil {
		t.Fatalf("vm.New: %v", err)
	}
	for name, fn := range h.natives {
		m.RegisterNative(name, fn)
	}
	return m
}

func call(t *testing.T, m *vm.VM, name string, args ...vm.Val) vm.Val {
	t.Helper()
	v, err := m.Call(name, args...)
	if err != nil {
		if ve, ok := err.(*vm.VMError); ok {
			t.Fatalf("%s: %s", name, ve.Format())
		}
		t.Fatalf("%s: %v", name, err)
	}
	return v
}

func expectClean(t *testing.T, m *vm.VM) {
	t.Helper()
	if leaks := m.Leaks(source.Loc{}); len(leaks) != 0 {
		t.Fatalf("leaks: %v", leaks)
	}
}

// callIndex returns the position of the first call to name in fn's body.
func callIndex(fn *ir.Function, name string) (int, *ir.Instr) {
	for i, in := range fn.Body {
		if in.Op != ir.OpCall {
			continue
		}
		v := in.Call.Callee
		if v.Kind == ir.VInstr && v.Instr.Op == ir.OpBitcast {
			v = v.Instr.Operands[0]
		}
		if v.Kind == ir.VFunc && v.Func.Name == name {
			return i, in
		}
	}
	return -1, nil
}

func countOps(fn *ir.Function, op ir.Op) int {
	n := 0
	for _, in := range fn.Body {
		if in.Op == op {
			n++
		}
	}
	return n
}

func expectPanic(t *testing.T, substr string, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatalf("expected panic containing %q", substr)
		}
		if msg, _ := r.(string); !strings.Contains(msg, substr) {
			t.Fatalf("panic %v does not contain %q", r, substr)
		}
	}()
	fn()
}

func TestClassify(t *testing.T) {
	method := func(h *harness, throws bool, selfConv types.Convention) types.TypeID {
		fi := types.FnInfo{Repr: types.ReprMethod, HasSelf: true, Result: h.b.Int,
			Params: []types.Param{{Type: h.b.Int, Convention: types.ConvDirectOwned}, {Type: h.obj, Convention: selfConv}}}
		if throws {
			fi.Error = h.obj
		}
		return h.fn(fi)
	}
	thin := func(h *harness, throws bool, params ...types.TypeID) types.TypeID {
		fi := types.FnInfo{Repr: types.ReprThin, Result: h.b.Int}
		for _, p := range params {
			fi.Params = append(fi.Params, types.Param{Type: p, Convention: types.ConvDirectOwned})
		}
		if throws {
			fi.Error = h.obj
		}
		return h.fn(fi)
	}
	static := func(h *harness, id types.TypeID, captured ...int) Request {
		return Request{Name: "p", Orig: id, Captured: captured, Static: h.declare(id, "target")}
	}
	dynamic := func(id types.TypeID, captured ...int) Request {
		return Request{Name: "p", Orig: id, Captured: captured}
	}

	tests := []struct {
		name            string
		noErrorRegister bool
		req             func(h *harness) Request
		want            Kind
	}{
		{"self capture", false, func(h *harness) Request {
			return static(h, method(h, false, types.ConvDirectOwned), 1)
		}, KindReuseContext},
		{"throwing self capture", false, func(h *harness) Request {
			return static(h, method(h, true, types.ConvDirectOwned), 1)
		}, KindThunkable},
		{"throwing self capture without error register", true, func(h *harness) Request {
			return static(h, method(h, true, types.ConvDirectOwned), 1)
		}, KindReuseContext},
		{"guaranteed self under owned context", false, func(h *harness) Request {
			return static(h, method(h, false, types.ConvDirectGuaranteed), 1)
		}, KindThunkable},
		{"object argument", false, func(h *harness) Request {
			return static(h, thin(h, false, h.obj, h.b.Int), 0)
		}, KindThunkable},
		{"value argument", false, func(h *harness) Request {
			return static(h, thin(h, false, h.b.Int, h.b.Int), 0)
		}, KindHeap},
		{"dynamic object argument", false, func(h *harness) Request {
			return dynamic(thin(h, false, h.b.Int, h.obj), 1)
		}, KindHeap},
		{"static without captures", false, func(h *harness) Request {
			return static(h, thin(h, false, h.b.Int))
		}, KindReuseFunction},
		{"static C function without captures", false, func(h *harness) Request {
			return static(h, h.fn(types.FnInfo{Repr: types.ReprCFunctionPointer, Result: h.b.Int,
				Params: []types.Param{{Type: h.b.Int}}}))
		}, KindNoContext},
		{"throwing static without captures", false, func(h *harness) Request {
			return static(h, thin(h, true, h.b.Int))
		}, KindReuseFunction},
		{"dynamic without captures", false, func(h *harness) Request {
			return dynamic(thin(h, false, h.b.Int))
		}, KindFunctionContext},
		{"dynamic thick without captures", false, func(h *harness) Request {
			return dynamic(h.fn(types.FnInfo{Repr: types.ReprThick, Result: h.b.Int, Context: types.ConvDirectOwned,
				Params: []types.Param{{Type: h.b.Int, Convention: types.ConvDirectOwned}}}))
		}, KindReuseFunction},
		{"generic without captures", false, func(h *harness) Request {
			T := h.in.RegisterGeneric("T", 0, false, nil)
			orig := h.fn(types.FnInfo{Repr: types.ReprThin, Generics: []types.TypeID{T},
				Params: []types.Param{{Type: T, Convention: types.ConvIndirectIn}}})
			subst := h.fn(types.FnInfo{Repr: types.ReprThin,
				Params: []types.Param{{Type: h.b.Int, Convention: types.ConvIndirectIn}}})
			r := static(h, orig)
			r.Subst = subst
			return r
		}, KindHeap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tgt := layout.X86_64LinuxGNU()
			tgt.DedicatedErrorRegister = !tt.noErrorRegister
			h := newHarness(t, tgt)
			p := Build(bg, h.m, tt.req(h))
			if p.Kind != tt.want {
				t.Fatalf("kind = %s, want %s", p.Kind, tt.want)
			}
			hasThunk := p.Thunk != nil
			wantThunk := tt.want != KindReuseFunction && tt.want != KindReuseContext
			if hasThunk != wantThunk {
				t.Errorf("thunk = %v, want %v", hasThunk, wantThunk)
			}
			if p.Kind.Allocates() != (p.Metadata != nil) {
				t.Errorf("metadata %v for a %s closure", p.Metadata, p.Kind)
			}
		})
	}
}

func TestSelfContextCaptureNeedsNoThunk(t *testing.T) {
	h := newHarness(t, layout.X86_64LinuxGNU())
	h.objects()
	note := h.noteRefCount()
	orig := h.fn(types.FnInfo{Repr: types.ReprMethod, HasSelf: true, Result: h.b.Int,
		Params: []types.Param{{Type: h.b.Int, Convention: types.ConvDirectOwned}, {Type: h.obj, Convention: types.ConvDirectOwned}}})
	body := h.target(orig, "Obj.get")
	callNative(body, note, body.Param(1))
	h.m.RT.EmitRelease(body.B, body.Param(1))
	body.B.Ret(body.Param(0))

	before := len(h.m.IR.Functions())
	p := Build(bg, h.m, Request{Name: "get", Orig: orig, Captured: []int{1}, Static: body.Fn})
	if p.Kind != KindReuseContext || p.Thunk != nil {
		t.Fatalf("kind %s thunk %v", p.Kind, p.Thunk)
	}
	if after := len(h.m.IR.Functions()); after != before {
		t.Fatalf("%d functions synthesized", after-before)
	}
	maker := p.DefineMaker(bg)
	invoke := h.invoker("invoke", p.Outer, ir.I64, ir.I64)

	m := h.machine(t)
	obj := call(t, m, "new_obj")
	clo := call(t, m, maker.Name, obj)
	if !clo.Agg[1].Equal(obj) {
		t.Fatalf("context %s, want the object %s", clo.Agg[1], obj)
	}
	if addr, _ := m.FuncAddr(body.Fn.Name); !clo.Agg[0].Equal(addr) {
		t.Fatalf("function %s, want %s", clo.Agg[0], addr)
	}
	if got := call(t, m, invoke.Fn.Name, clo.Agg[0], clo.Agg[1], vm.Int(41)); got.Signed(64) != 41 {
		t.Fatalf("invoke = %d", got.Signed(64))
	}
	if len(h.log) != 1 || h.log[0] != "rc=2" {
		t.Errorf("log %v", h.log)
	}
	if n := m.RefCount(obj); n != 1 {
		t.Errorf("refcount after call = %d", n)
	}
	call(t, m, "drop", clo.Agg[1])
	if st := m.Stats(); st.Allocs != 1 || st.Live != 0 {
		t.Fatalf("stats %s", st)
	}
	expectClean(t, m)
}

func TestStaticFunctionIsReusedWithoutContext(t *testing.T) {
	h := newHarness(t, layout.X86_64LinuxGNU())
	orig := h.fn(types.FnInfo{Repr: types.ReprThin, Result: h.b.Int, Params: []types.Param{
		{Type: h.b.Int, Convention: types.ConvDirectOwned}, {Type: h.b.Int, Convention: types.ConvDirectOwned},
	}})
	body := h.target(orig, "first")
	body.B.Ret(body.Param(0))

	before := len(h.m.IR.Functions())
	p := Build(bg, h.m, Request{Name: "first", Orig: orig, Static: body.Fn})
	if p.Kind != KindReuseFunction || p.Thunk != nil || p.Metadata != nil {
		t.Fatalf("kind %s thunk %v", p.Kind, p.Thunk)
	}
	if after := len(h.m.IR.Functions()); after != before {
		t.Fatalf("%d functions synthesized", after-before)
	}
	maker := p.DefineMaker(bg)
	invoke := h.invoker("invoke", p.Outer, ir.I64, ir.I64, ir.I64)

	m := h.machine(t)
	clo := call(t, m, maker.Name)
	if addr, _ := m.FuncAddr(body.Fn.Name); !clo.Agg[0].Equal(addr) || !clo.Agg[1].IsNull() {
		t.Fatalf("closure %s, want (%s, null)", clo, addr)
	}
	if got := call(t, m, invoke.Fn.Name, clo.Agg[0], clo.Agg[1], vm.Int(6), vm.Int(-1)); got.Signed(64) != 6 {
		t.Fatalf("invoke = %d", got.Signed(64))
	}
	if st := m.Stats(); st.Allocs != 0 {
		t.Errorf("closure allocated: %s", st)
	}
}

func TestForwarderMatchesDirectCall(t *testing.T) {
	h := newHarness(t, layout.X86_64LinuxGNU())
	h.objects()
	rc := h.m.RT.RefCountedPtr()
	largeInfo := h.m.Info(h.large)
	orig := h.fn(types.FnInfo{Repr: types.ReprThin, Result: h.point, Params: []types.Param{
		{Type: h.b.Int, Convention: types.ConvDirectOwned},
		{Type: h.point, Convention: types.ConvDirectGuaranteed},
		{Type: h.large, Convention: types.ConvDirectOwned},
		{Type: h.obj, Convention: types.ConvDirectGuaranteed},
	}})

	observe := h.native("observe", ir.FuncOf(ir.Void, ir.I64, ir.I32, ir.Double, ir.PtrTo(largeInfo.Storage), rc),
		func(m *vm.VM, args []vm.Val) (vm.Val, error) {
			l, err := m.Load(largeInfo.Storage, args[3])
			if err != nil {
				return vm.Val{}, err
			}
			h.log = append(h.log, fmt.Sprintf("a=%d p=(%d,%g) l=(%d,%d,%d,%d) rc=%d",
				args[0].Signed(64), args[1].Signed(32), args[2].Float64(),
				l.Agg[0].Signed(64), l.Agg[1].Signed(64), l.Agg[2].Signed(64), l.Agg[3].Signed(64),
				m.RefCount(args[4])))
			return vm.Val{}, nil
		})
	body := h.target(orig, "combine")
	callNative(body, observe, body.Fn.Params...)
	body.B.Ret(pack(body, []*ir.Value{body.Param(1), body.Param(2)}))

	pointTy := ir.StructOf(ir.I32, ir.Double)
	i64s := []*ir.Type{ir.I64, ir.I64, ir.I64, ir.I64}
	direct := h.entry("direct", pointTy, append(append([]*ir.Type{ir.I64, ir.I32, ir.Double}, i64s...), rc)...)
	e := callemit.New(direct, callemit.Callee{Fn: body.Fn.Value(), OrigType: orig})
	e.SetArgs(explosion.New(direct.Fn.Params...), nil, nil)
	var out explosion.Explosion
	e.Emit(callemit.ToExplosion{Out: &out})
	ret(direct, out.ClaimAll())

	ring := trace.NewRingTracer(32, trace.LevelDebug)
	p := Build(trace.WithTracer(bg, ring), h.m, Request{Name: "combine", Orig: orig, Captured: []int{0, 1}, Static: body.Fn})
	if p.Kind != KindHeap {
		t.Fatalf("kind %s", p.Kind)
	}
	l := p.Layout
	if len(l.Fields) != 2 || l.Fields[0].Offset != 16 || l.Fields[1].Offset != 24 || l.Size != 40 || l.Align != 8 {
		t.Fatalf("layout %+v", l)
	}
	if l.Fields[0].Access != Take || l.Fields[1].Access != Alias {
		t.Errorf("accesses %s, %s", l.Fields[0].Access, l.Fields[1].Access)
	}
	callAt, target := callIndex(p.Thunk, body.Fn.Name)
	releaseAt, _ := callIndex(p.Thunk, "cg_release")
	if callAt < 0 || releaseAt < callAt || target.Call.Tail {
		t.Errorf("aliased capture must release after a non-tail call:\n%s", p.Thunk)
	}
	var traced bool
	for _, ev := range ring.Snapshot() {
		if ev.Name == "thunk" && ev.Detail == "combine: heap" {
			traced = true
		}
	}
	if !traced {
		t.Errorf("no thunk span in %v", ring.Snapshot())
	}

	maker := p.DefineMaker(bg)
	invoke := h.invoker("invoke", p.Outer, pointTy, append(i64s, rc)...)

	m := h.machine(t)
	obj := call(t, m, "new_obj")
	large := []vm.Val{vm.Int(1), vm.Int(-2), vm.Int(3), vm.Int(1 << 40)}
	want := call(t, m, direct.Fn.Name, append(append([]vm.Val{vm.Int(7), vm.Int(-3), vm.F64(2.5)}, large...), obj)...)
	clo := call(t, m, maker.Name, vm.Int(7), vm.Int(-3), vm.F64(2.5))
	got := call(t, m, invoke.Fn.Name, append(append([]vm.Val{clo.Agg[0], clo.Agg[1]}, large...), obj)...)
	if !got.Equal(want) {
		t.Fatalf("closure result %s, direct %s", got, want)
	}
	if len(h.log) != 2 || h.log[0] != h.log[1] {
		t.Fatalf("observations differ: %q", h.log)
	}

	call(t, m, "drop", clo.Agg[1])
	call(t, m, "drop", obj)
	if st := m.Stats(); st.Allocs != 2 || st.Frees != 2 {
		t.Fatalf("stats %s", st)
	}
	expectClean(t, m)
}

func TestOwnedCaptureReleasesBeforeTailCall(t *testing.T) {
	h := newHarness(t, layout.X86_64LinuxGNU())
	h.objects()
	orig := h.fn(types.FnInfo{Repr: types.ReprThin, Result: h.b.Int, Params: []types.Param{
		{Type: h.point, Convention: types.ConvDirectOwned},
		{Type: h.b.Int, Convention: types.ConvDirectOwned},
	}})
	body := h.target(orig, "second")
	body.B.Ret(body.Param(2))

	p := Build(bg, h.m, Request{Name: "second", Orig: orig, Captured: []int{0}, Static: body.Fn})
	callAt, target := callIndex(p.Thunk, body.Fn.Name)
	releaseAt, _ := callIndex(p.Thunk, "cg_release")
	if releaseAt < 0 || releaseAt > callAt || !target.Call.Tail {
		t.Errorf("taken capture must release before a tail call:\n%s", p.Thunk)
	}
	maker := p.DefineMaker(bg)
	invoke := h.invoker("invoke", p.Outer, ir.I64, ir.I64)

	m := h.machine(t)
	clo := call(t, m, maker.Name, vm.Int(1), vm.F64(0.5))
	for i := 0; i < 2; i++ {
		if got := call(t, m, invoke.Fn.Name, clo.Agg[0], clo.Agg[1], vm.Int(11)); got.Signed(64) != 11 {
			t.Fatalf("invoke = %d", got.Signed(64))
		}
	}
	call(t, m, "drop", clo.Agg[1])
	if st := m.Stats(); st.Allocs != 1 || st.Live != 0 {
		t.Fatalf("stats %s", st)
	}
	expectClean(t, m)
}

func TestUnownedObjectOutlivesContextRelease(t *testing.T) {
	h := newHarness(t, layout.X86_64LinuxGNU())
	h.objects()
	note := h.noteRefCount()
	orig := h.fn(types.FnInfo{Repr: types.ReprThin, Result: h.b.Int, Params: []types.Param{
		{Type: h.obj, Convention: types.ConvDirectUnowned},
		{Type: h.b.Int, Convention: types.ConvDirectOwned},
		{Type: h.b.Int, Convention: types.ConvDirectOwned},
	}})
	body := h.target(orig, "keep")
	callNative(body, note, body.Param(0))
	body.B.Ret(body.Param(2))

	p := Build(bg, h.m, Request{Name: "keep", Orig: orig, Captured: []int{0, 1}, Static: body.Fn})
	if p.Kind != KindHeap || p.Layout.Fields[0].Access != Copy || !p.Layout.DependsOnContext() {
		t.Fatalf("kind %s layout %+v", p.Kind, p.Layout)
	}
	callAt, target := callIndex(p.Thunk, body.Fn.Name)
	releaseAt, _ := callIndex(p.Thunk, "cg_release")
	if callAt < 0 || releaseAt < callAt || target.Call.Tail {
		t.Fatalf("unowned object capture must release after a non-tail call:\n%s", p.Thunk)
	}
	maker := p.DefineMaker(bg)

	// the caller gives up its only reference to the closure
	invoke := h.entry("invoke_last", ir.I64, ir.I8Ptr, h.m.RT.RefCountedPtr(), ir.I64)
	e := callemit.New(invoke, callemit.Callee{Fn: invoke.Param(0), Data: invoke.Param(1), OrigType: p.Outer})
	e.SetArgs(explosion.New(invoke.Param(2)), nil, nil)
	var out explosion.Explosion
	e.Emit(callemit.ToExplosion{Out: &out})
	ret(invoke, out.ClaimAll())

	m := h.machine(t)
	obj := call(t, m, "new_obj")
	clo := call(t, m, maker.Name, obj, vm.Int(5))
	call(t, m, "drop", obj)
	if got := call(t, m, invoke.Fn.Name, clo.Agg[0], clo.Agg[1], vm.Int(9)); got.Signed(64) != 9 {
		t.Fatalf("invoke = %d", got.Signed(64))
	}
	if len(h.log) != 1 || h.log[0] != "rc=1" {
		t.Errorf("log %v", h.log)
	}
	if st := m.Stats(); st.Allocs != 2 || st.Live != 0 {
		t.Fatalf("stats %s", st)
	}
	expectClean(t, m)
}

func TestCapturedObjectIsTheContext(t *testing.T) {
	h := newHarness(t, layout.X86_64LinuxGNU())
	h.objects()
	note := h.noteRefCount()
	orig := h.fn(types.FnInfo{Repr: types.ReprThin, Result: h.b.Int, Params: []types.Param{
		{Type: h.b.Int, Convention: types.ConvDirectOwned},
		{Type: h.obj, Convention: types.ConvDirectGuaranteed},
	}})
	body := h.target(orig, "with_obj")
	callNative(body, note, body.Param(1))
	body.B.Ret(body.Param(0))

	p := Build(bg, h.m, Request{Name: "with_obj", Orig: orig, Captured: []int{1}, Static: body.Fn})
	if p.Kind != KindThunkable || p.Metadata != nil {
		t.Fatalf("kind %s", p.Kind)
	}
	maker := p.DefineMaker(bg)
	invoke := h.invoker("invoke", p.Outer, ir.I64, ir.I64)

	m := h.machine(t)
	obj := call(t, m, "new_obj")
	clo := call(t, m, maker.Name, obj)
	if !clo.Agg[1].Equal(obj) || m.RefCount(obj) != 2 {
		t.Fatalf("context %s refcount %d", clo.Agg[1], m.RefCount(obj))
	}
	if got := call(t, m, invoke.Fn.Name, clo.Agg[0], clo.Agg[1], vm.Int(5)); got.Signed(64) != 5 {
		t.Fatalf("invoke = %d", got.Signed(64))
	}
	if len(h.log) != 1 || h.log[0] != "rc=3" {
		t.Errorf("log %v", h.log)
	}
	if n := m.RefCount(obj); n != 2 {
		t.Errorf("refcount after call = %d", n)
	}
	call(t, m, "drop", clo.Agg[1])
	call(t, m, "drop", obj)
	if st := m.Stats(); st.Allocs != 1 {
		t.Fatalf("stats %s", st)
	}
	expectClean(t, m)
}

func TestDynamicTargets(t *testing.T) {
	h := newHarness(t, layout.X86_64LinuxGNU())
	h.objects()
	unary := h.fn(types.FnInfo{Repr: types.ReprThin, Result: h.b.Int,
		Params: []types.Param{{Type: h.b.Int, Convention: types.ConvDirectOwned}}})
	binary := h.fn(types.FnInfo{Repr: types.ReprThin, Result: h.b.Int, Params: []types.Param{
		{Type: h.b.Int, Convention: types.ConvDirectOwned}, {Type: h.b.Int, Convention: types.ConvDirectOwned},
	}})
	ident := h.target(unary, "ident")
	ident.B.Ret(ident.Param(0))
	first := h.target(binary, "first")
	first.B.Ret(first.Param(0))

	bare := Build(bg, h.m, Request{Name: "bare", Orig: unary})
	if bare.Kind != KindFunctionContext {
		t.Fatalf("bare kind %s", bare.Kind)
	}
	boxed := Build(bg, h.m, Request{Name: "boxed", Orig: binary, Captured: []int{0}})
	if boxed.Kind != KindHeap || boxed.Layout.Callee == nil {
		t.Fatalf("boxed kind %s", boxed.Kind)
	}
	if off := boxed.Layout.Callee.Offset; off != 24 || boxed.Layout.Fields[0].Offset != 16 {
		t.Errorf("callee at %d, field at %d", off, boxed.Layout.Fields[0].Offset)
	}
	makeBare, makeBoxed := bare.DefineMaker(bg), boxed.DefineMaker(bg)
	invokeBare := h.invoker("invoke_bare", bare.Outer, ir.I64, ir.I64)
	invokeBoxed := h.invoker("invoke_boxed", boxed.Outer, ir.I64, ir.I64)

	m := h.machine(t)
	identAddr, err := m.FuncAddr(ident.Fn.Name)
	if err != nil {
		t.Fatal(err)
	}
	clo := call(t, m, makeBare.Name, identAddr)
	if !clo.Agg[1].Equal(identAddr) {
		t.Errorf("context %s, want the function %s", clo.Agg[1], identAddr)
	}
	if got := call(t, m, invokeBare.Fn.Name, clo.Agg[0], clo.Agg[1], vm.Int(12)); got.Signed(64) != 12 {
		t.Errorf("bare = %d", got.Signed(64))
	}
	if st := m.Stats(); st.Allocs != 0 {
		t.Errorf("bare closure allocated: %s", st)
	}

	firstAddr, _ := m.FuncAddr(first.Fn.Name)
	clo = call(t, m, makeBoxed.Name, vm.Int(4), firstAddr)
	if got := call(t, m, invokeBoxed.Fn.Name, clo.Agg[0], clo.Agg[1], vm.Int(9)); got.Signed(64) != 4 {
		t.Errorf("boxed = %d", got.Signed(64))
	}
	call(t, m, "drop", clo.Agg[1])
	expectClean(t, m)
}

func TestForwarderSharesErrorSlot(t *testing.T) {
	h := newHarness(t, layout.X86_64LinuxGNU())
	h.objects()
	orig := h.fn(types.FnInfo{Repr: types.ReprThin, Result: h.b.Int, Error: h.obj, Params: []types.Param{
		{Type: h.b.Int, Convention: types.ConvDirectOwned}, {Type: h.b.Int, Convention: types.ConvDirectOwned},
	}})
	thrown := h.m.IR.AddGlobal("thrown", ir.I64, []*ir.Value{ir.ConstInt(ir.I64, 1)}, true)
	body := h.target(orig, "fail")
	sig := h.m.Signature(bg, orig)
	body.B.Store(body.B.Bitcast(thrown.Value(), h.m.RT.ErrorPtr()), body.Param(sig.Index(signature.RoleError)))
	body.B.Ret(body.Param(1))

	p := Build(bg, h.m, Request{Name: "fail", Orig: orig, Captured: []int{0}, Static: body.Fn})
	if n := countOps(p.Thunk, ir.OpAlloca); n != 0 {
		t.Errorf("forwarder allocated %d slots:\n%s", n, p.Thunk)
	}
	_, target := callIndex(p.Thunk, body.Fn.Name)
	outerSig := h.m.Signature(bg, p.Outer)
	if target == nil || target.Operands[sig.Index(signature.RoleError)] != p.Thunk.Params[outerSig.Index(signature.RoleError)] {
		t.Fatalf("error slot not forwarded:\n%s", p.Thunk)
	}
	maker := p.DefineMaker(bg)

	invoke := h.entry("invoke", ir.StructOf(ir.I64, ir.I8Ptr), ir.I8Ptr, h.m.RT.RefCountedPtr(), ir.I64)
	h.m.RT.EmitRetain(invoke.B, invoke.Param(1))
	e := callemit.New(invoke, callemit.Callee{Fn: invoke.Param(0), Data: invoke.Param(1), OrigType: p.Outer})
	e.SetArgs(explosion.New(invoke.Param(2)), nil, nil)
	var out explosion.Explosion
	e.Emit(callemit.ToExplosion{Out: &out})
	errVal := invoke.B.Load(h.m.RT.ErrorPtr(), invoke.ErrorSlot())
	invoke.B.Ret(pack(invoke, []*ir.Value{out.Claim(), invoke.B.Bitcast(errVal, ir.I8Ptr)}))

	m := h.machine(t)
	clo := call(t, m, maker.Name, vm.Int(3))
	got := call(t, m, invoke.Fn.Name, clo.Agg[0], clo.Agg[1], vm.Int(8))
	if got.Agg[0].Signed(64) != 8 || !got.Agg[1].Equal(m.GlobalAddr(thrown)) {
		t.Fatalf("got %s", got)
	}
	call(t, m, "drop", clo.Agg[1])
	expectClean(t, m)
}

func TestGenericTargetCapturesBindings(t *testing.T) {
	h := newHarness(t, layout.X86_64LinuxGNU())
	h.objects()
	T := h.in.RegisterGeneric("T", 0, false, nil)
	orig := h.fn(types.FnInfo{Repr: types.ReprThin, Result: T, Generics: []types.TypeID{T}, Params: []types.Param{
		{Type: T, Convention: types.ConvDirectOwned}, {Type: h.b.Int, Convention: types.ConvDirectOwned},
	}})
	subst := h.fn(types.FnInfo{Repr: types.ReprThin, Result: h.b.Int, Params: []types.Param{
		{Type: h.b.Int, Convention: types.ConvDirectOwned}, {Type: h.b.Int, Convention: types.ConvDirectOwned},
	}})
	body := h.target(orig, "pick")
	// eight bytes is enough for the substitution used here
	body.B.Memcpy(body.Param(0), body.Param(1), 8)
	body.B.Ret(nil)

	p := Build(bg, h.m, Request{Name: "pick", Orig: orig, Subst: subst, Captured: []int{1}, Static: body.Fn})
	l := p.Layout
	if p.Kind != KindHeap || l.Bindings != 1 || l.BindingsOffset != 16 || l.Fields[0].Offset != 24 {
		t.Fatalf("kind %s layout %+v", p.Kind, l)
	}
	maker := p.DefineMaker(bg)
	if n := len(maker.Type.Params); n != 2 {
		t.Fatalf("maker takes %d parameters", n)
	}
	invoke := h.invoker("invoke", p.Outer, ir.I64, ir.I64)

	m := h.machine(t)
	clo := call(t, m, maker.Name, vm.Int(3), vm.Null)
	if got := call(t, m, invoke.Fn.Name, clo.Agg[0], clo.Agg[1], vm.Int(-8)); got.Signed(64) != -8 {
		t.Fatalf("invoke = %d", got.Signed(64))
	}
	call(t, m, "drop", clo.Agg[1])
	expectClean(t, m)
}

func TestInoutCaptureStoresAddress(t *testing.T) {
	h := newHarness(t, layout.X86_64LinuxGNU())
	h.objects()
	orig := h.fn(types.FnInfo{Repr: types.ReprThin, Params: []types.Param{
		{Type: h.b.Int, Convention: types.ConvIndirectInout}, {Type: h.b.Int, Convention: types.ConvDirectOwned},
	}})
	body := h.target(orig, "assign")
	body.B.Store(body.Param(1), body.Param(0))
	body.B.Ret(nil)

	p := Build(bg, h.m, Request{Name: "assign", Orig: orig, Captured: []int{0}, Static: body.Fn})
	if a := p.Layout.Fields[0].Access; a != Address {
		t.Fatalf("access %s", a)
	}
	maker := p.DefineMaker(bg)
	invoke := h.invoker("invoke", p.Outer, ir.Void, ir.I64)

	m := h.machine(t)
	cell := m.Alloc(8)
	clo := call(t, m, maker.Name, cell)
	call(t, m, invoke.Fn.Name, clo.Agg[0], clo.Agg[1], vm.Int(77))
	got, err := m.Load(ir.I64, cell)
	if err != nil {
		t.Fatal(err)
	}
	if got.Signed(64) != 77 {
		t.Fatalf("cell = %d", got.Signed(64))
	}
	call(t, m, "drop", clo.Agg[1])
	expectClean(t, m)
}

func TestContract(t *testing.T) {
	h := newHarness(t, layout.X86_64LinuxGNU())
	outParam := h.fn(types.FnInfo{Repr: types.ReprThin, Params: []types.Param{
		{Type: h.b.Int, Convention: types.ConvIndirectOut}, {Type: h.b.Int, Convention: types.ConvDirectOwned},
	}})
	pair := h.fn(types.FnInfo{Repr: types.ReprThin, Result: h.b.Int, Params: []types.Param{
		{Type: h.b.Int, Convention: types.ConvDirectOwned}, {Type: h.b.Int, Convention: types.ConvDirectOwned},
	}})
	target := h.declare(pair, "target")

	expectPanic(t, "capturing the indirect result", func() {
		OuterType(h.in, outParam, []int{0}, types.ConvDirectOwned)
	})
	expectPanic(t, "captured parameters [1 0]", func() {
		Build(bg, h.m, Request{Name: "p", Orig: pair, Captured: []int{1, 0}, Static: target})
	})
	expectPanic(t, "does not close over", func() {
		Build(bg, h.m, Request{Name: "p", Orig: pair, Captured: []int{0}, Static: target,
			Outer: OuterType(h.in, pair, nil, types.ConvDirectOwned)})
	})
	expectPanic(t, "function value is required", func() {
		p := Build(bg, h.m, Request{Name: "p", Orig: pair, Captured: []int{0}})
		f := h.entry("apply", ir.Void, ir.I64)
		p.Apply(f, explosion.New(f.Param(0)), nil, nil)
	})
	expectPanic(t, "1 generic arguments, want 0", func() {
		p := Build(bg, h.m, Request{Name: "p", Orig: pair, Captured: []int{0}, Static: target})
		f := h.entry("apply", ir.Void, ir.I64)
		p.Apply(f, explosion.New(f.Param(0)), nil, []*ir.Value{ir.Null(h.m.RT.MetadataPtr())})
	})
}
