// Package runtime declares the reference-counting runtime that lowered code
// calls into, and emits calls to it. Refcount operations are atomic in every
// implementation of these entry points.
package runtime

import (
	"callgen/internal/ir"
	"callgen/internal/layout"
)

// Entry points.
const (
	AllocObject    = "cg_alloc_object"    // (%cg.type*, iN size, iN alignMask) -> %cg.refcounted*
	DeallocObject  = "cg_dealloc_object"  // (%cg.refcounted*, iN size, iN alignMask)
	Retain         = "cg_retain"          // (%cg.refcounted*)
	Release        = "cg_release"         // (%cg.refcounted*); destroys at zero
	UnownedRetain  = "cg_unowned_retain"  // (%cg.refcounted*)
	UnownedRelease = "cg_unowned_release" // (%cg.refcounted*)
)

// Named runtime types.
const (
	RefCountedName   = "cg.refcounted"
	MetadataName     = "cg.type"
	OpaqueName       = "cg.opaque"
	WitnessTableName = "cg.witness_table"
	ErrorName        = "cg.error"
)

// Runtime binds the runtime declarations to one module.
type Runtime struct {
	m *ir.Module

	// RefCounted is the object header: metadata pointer then refcount word.
	RefCounted *ir.Type
	// Metadata holds the destroy function and the instance size.
	Metadata     *ir.Type
	Opaque       *ir.Type
	WitnessTable *ir.Type
	Error        *ir.Type
	IntPtr       *ir.Type
}

func New(m *ir.Module, t layout.Target) *Runtime {
	intPtr := ir.Int(t.IntPtrBits())
	rc := m.NamedType(RefCountedName)
	md := m.NamedType(MetadataName)
	if rc.Fields == nil {
		rc.Fields = []*ir.Type{ir.PtrTo(md), intPtr}
	}
	if md.Fields == nil {
		md.Fields = []*ir.Type{ir.PtrTo(ir.FuncOf(ir.Void, ir.PtrTo(rc))), intPtr}
	}
	return &Runtime{
		m:            m,
		RefCounted:   rc,
		Metadata:     md,
		Opaque:       m.NamedType(OpaqueName),
		WitnessTable: m.NamedType(WitnessTableName),
		Error:        m.NamedType(ErrorName),
		IntPtr:       intPtr,
	}
}

// RefCountedPtr is the type of a retainable pointer.
func (r *Runtime) RefCountedPtr() *ir.Type { return ir.PtrTo(r.RefCounted) }

// MetadataPtr is the type of a metadata reference.
func (r *Runtime) MetadataPtr() *ir.Type { return ir.PtrTo(r.Metadata) }

// WitnessTablePtr is the type of a witness table reference.
func (r *Runtime) WitnessTablePtr() *ir.Type { return ir.PtrTo(r.WitnessTable) }

// ErrorPtr is the type of a thrown error value.
func (r *Runtime) ErrorPtr() *ir.Type { return ir.PtrTo(r.Error) }

// DestroyFnType is the type of a heap object's destroy function.
func (r *Runtime) DestroyFnType() *ir.Type { return ir.FuncOf(ir.Void, r.RefCountedPtr()) }

func (r *Runtime) fnType(name string) *ir.Type {
	rc := r.RefCountedPtr()
	switch name {
	case AllocObject:
		return ir.FuncOf(rc, r.MetadataPtr(), r.IntPtr, r.IntPtr)
	case DeallocObject:
		return ir.FuncOf(ir.Void, rc, r.IntPtr, r.IntPtr)
	case Retain, Release, UnownedRetain, UnownedRelease:
		return ir.FuncOf(ir.Void, rc)
	}
	panic("runtime: unknown entry point " + name)
}

// Declare returns the declaration of an entry point.
func (r *Runtime) Declare(name string) *ir.Function {
	return r.m.Declare(name, r.fnType(name), ir.CCC, ir.AttrSet{})
}

// DeclareAll declares every entry point.
func (r *Runtime) DeclareAll() {
	for _, name := range []string{AllocObject, DeallocObject, Retain, Release, UnownedRetain, UnownedRelease} {
		r.Declare(name)
	}
}

func (r *Runtime) call(b *ir.Builder, name string, args ...*ir.Value) *ir.Instr {
	fn := r.Declare(name)
	return b.Call(fn.Value(), fn.Type, args, ir.CCC, ir.AttrSet{})
}

// EmitRetain increments the strong count of v; null is ignored.
func (r *Runtime) EmitRetain(b *ir.Builder, v *ir.Value) {
	r.call(b, Retain, b.Bitcast(v, r.RefCountedPtr()))
}

// EmitRelease decrements the strong count of v, destroying it at zero.
func (r *Runtime) EmitRelease(b *ir.Builder, v *ir.Value) {
	r.call(b, Release, b.Bitcast(v, r.RefCountedPtr()))
}

func (r *Runtime) EmitUnownedRetain(b *ir.Builder, v *ir.Value) {
	r.call(b, UnownedRetain, b.Bitcast(v, r.RefCountedPtr()))
}

func (r *Runtime) EmitUnownedRelease(b *ir.Builder, v *ir.Value) {
	r.call(b, UnownedRelease, b.Bitcast(v, r.RefCountedPtr()))
}

// EmitAlloc allocates a heap object of size bytes with refcount one.
func (r *Runtime) EmitAlloc(b *ir.Builder, metadata *ir.Value, size, align int64) *ir.Value {
	in := r.call(b, AllocObject,
		b.Bitcast(metadata, r.MetadataPtr()),
		ir.ConstInt(r.IntPtr, size),
		ir.ConstInt(r.IntPtr, align-1))
	return in.Result
}

// EmitDealloc frees a heap object whose count reached zero.
func (r *Runtime) EmitDealloc(b *ir.Builder, obj *ir.Value, size, align int64) {
	r.call(b, DeallocObject, b.Bitcast(obj, r.RefCountedPtr()), ir.ConstInt(r.IntPtr, size), ir.ConstInt(r.IntPtr, align-1))
}

// NewMetadata emits a constant metadata record for heap objects of size bytes.
func (r *Runtime) NewMetadata(name string, destroy *ir.Function, size int64) *ir.Global {
	return r.m.AddGlobal(name, r.Metadata, []*ir.Value{destroy.Value(), ir.ConstInt(r.IntPtr, size)}, true)
}
