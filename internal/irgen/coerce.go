package irgen

import "callgen/internal/ir"

// Coerce reinterprets v as type to. Pointers and same-sized non-pointer
// scalars are bitcast; anything else goes through a stack round trip.
func (f *Func) Coerce(v *ir.Value, to *ir.Type) *ir.Value {
	if v.Type.Equal(to) {
		return v
	}
	dl := f.M.DL()
	if v.Type.IsPointer() && to.IsPointer() {
		return f.B.Bitcast(v, to)
	}
	if v.Type.IsScalar() && to.IsScalar() && !v.Type.IsPointer() && !to.IsPointer() &&
		dl.StoreSize(v.Type) == dl.StoreSize(to) {
		return f.B.Bitcast(v, to)
	}
	return f.CoerceThroughMemory(v, to)
}

// CoerceThroughMemory stores v into a buffer large enough for both types
// and loads it back as to.
func (f *Func) CoerceThroughMemory(v *ir.Value, to *ir.Type) *ir.Value {
	buf := f.CoercionBuffer(v.Type, to)
	f.B.Store(v, f.B.Bitcast(buf, ir.PtrTo(v.Type)))
	return f.B.Load(to, f.B.Bitcast(buf, ir.PtrTo(to)))
}

// CoercionBuffer allocates a byte buffer that can hold either type.
func (f *Func) CoercionBuffer(a, b *ir.Type) *ir.Value {
	dl := f.M.DL()
	size := max(dl.AllocSize(a), dl.AllocSize(b))
	align := max(dl.AlignOf(a), dl.AlignOf(b))
	return f.B.Bitcast(f.B.Alloca(ir.ArrayOf(ir.I8, int(size)), align), ir.I8Ptr)
}
