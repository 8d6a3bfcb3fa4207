package partialapply

import (
	"fmt"

	"callgen/internal/ir"
	"callgen/internal/irgen"
	"callgen/internal/typeinfo"
	"callgen/internal/types"
)

// Access says how the forwarder reads a captured field back.
type Access uint8

const (
	// Take fields were moved into the box; the forwarder passes a copy.
	Take Access = iota
	// Alias fields are passed in place, so the box must outlive the call.
	Alias
	// Copy fields are passed at +0.
	Copy
	// Address fields hold the address of an inout argument.
	Address
)

var accessNames = [...]string{
	Take:    "take",
	Alias:   "alias",
	Copy:    "copy",
	Address: "address",
}

func (a Access) String() string {
	if int(a) < len(accessNames) {
		return accessNames[a]
	}
	return fmt.Sprintf("Access(%d)", a)
}

// AccessFor maps a parameter convention to the access of its field.
func AccessFor(conv types.Convention) Access {
	switch conv {
	case types.ConvDirectOwned, types.ConvIndirectIn:
		return Take
	case types.ConvDirectGuaranteed, types.ConvIndirectInGuaranteed:
		return Alias
	case types.ConvDirectUnowned:
		return Copy
	case types.ConvIndirectInout:
		return Address
	}
	panic(fmt.Sprintf("thunk: cannot capture a %s parameter", conv))
}

// Field is one captured value in a closure box.
type Field struct {
	// Param is the source parameter the value belongs to, or -1 for the
	// callee itself. Direct tuples contribute one field per element.
	Param  int
	Type   types.TypeID
	Conv   types.Convention
	Access Access
	Info   *typeinfo.Info
	// Slot is the in-box type: the value's storage, or a pointer to it for
	// inout captures.
	Slot   *ir.Type
	Offset int64
}

// HeapLayout is the layout of a closure box: the object header, the
// generic bindings, the captured fields in parameter order and, for a
// dynamic callee, the function value last.
type HeapLayout struct {
	Storage *ir.Type
	Size    int64
	Align   int64

	Bindings       int
	BindingsOffset int64

	Fields []Field
	Callee *Field
}

var emptyLayout = &HeapLayout{}

// Empty is the layout of a closure that needs no box.
func Empty() *HeapLayout { return emptyLayout }

// IsEmpty reports whether nothing is stored.
func (l *HeapLayout) IsEmpty() bool {
	return l.Bindings == 0 && len(l.Fields) == 0 && l.Callee == nil
}

// DependsOnContext reports whether some value the forwarder passes on is
// valid only while the box lives: an aliased field, or a field copied at +0
// that holds references the box keeps alive.
func (l *HeapLayout) DependsOnContext() bool {
	for i := range l.Fields {
		if l.Fields[i].borrowsBox() {
			return true
		}
	}
	return l.Callee != nil && l.Callee.borrowsBox()
}

func (f *Field) borrowsBox() bool {
	switch f.Access {
	case Alias:
		return true
	case Copy:
		return f.Info.HasRefs()
	}
	return false
}

func newField(env *typeinfo.Env, param int, ty types.TypeID, conv types.Convention) Field {
	f := Field{Param: param, Type: ty, Conv: conv, Access: AccessFor(conv), Info: env.Info(ty)}
	f.Slot = f.Info.Storage
	if f.Access == Address {
		f.Slot = ir.PtrTo(f.Info.Storage)
	}
	return f
}

// captureFields lists the fields of one captured parameter.
func captureFields(env *typeinfo.Env, param int, ty types.TypeID, conv types.Convention) []Field {
	if !conv.IsIndirect() {
		if ti, ok := env.Converter().Types.TupleInfo(ty); ok {
			var out []Field
			for _, el := range ti.Elems {
				out = append(out, captureFields(env, param, el, conv)...)
			}
			return out
		}
	}
	return []Field{newField(env, param, ty, conv)}
}

// newHeapLayout places the header, bindings, fields and callee at their
// natural alignment.
func newHeapLayout(m *irgen.Module, name string, bindings int, fields []Field, callee *Field) *HeapLayout {
	l := &HeapLayout{Bindings: bindings, Fields: fields, Callee: callee}
	if l.IsEmpty() {
		return Empty()
	}
	slots := []*ir.Type{m.RT.RefCounted}
	bindingsIdx := -1
	if bindings > 0 {
		bindingsIdx = len(slots)
		slots = append(slots, ir.ArrayOf(ir.I8Ptr, bindings))
	}
	first := len(slots)
	for _, f := range fields {
		if f.Access != Address && !f.Info.Fixed() {
			panic(fmt.Sprintf("thunk: capture of dynamically sized %s", m.Types.TypeString(f.Type)))
		}
		slots = append(slots, f.Slot)
	}
	if callee != nil {
		slots = append(slots, callee.Slot)
	}

	l.Storage = m.IR.NamedType(m.IR.UniqueName(name+".box"), slots...)
	offsets, size, align := m.DL().StructLayout(l.Storage)
	l.Size, l.Align = size, align
	if bindingsIdx >= 0 {
		l.BindingsOffset = offsets[bindingsIdx]
	}
	for i := range l.Fields {
		l.Fields[i].Offset = offsets[first+i]
	}
	if callee != nil {
		l.Callee.Offset = offsets[len(offsets)-1]
	}
	return l
}

// addr returns the address of a field inside the box at obj.
func (f *Field) addr(b *ir.Builder, obj *ir.Value) *ir.Value {
	return b.ByteOffset(obj, f.Offset, f.Slot)
}
