package irgen

import (
	"context"

	"callgen/internal/diag"
	"callgen/internal/ir"
	"callgen/internal/source"
	"callgen/internal/typeinfo"
)

// Func is the emission state of one function body.
type Func struct {
	M   *Module
	Fn  *ir.Function
	B   *ir.Builder
	Loc source.Loc
	Ctx context.Context

	errorSlot *ir.Value
}

// ErrorSlot returns the function's error result cell, allocating and
// zeroing it on first use.
func (f *Func) ErrorSlot() *ir.Value {
	if f.errorSlot == nil {
		errTy := f.M.RT.ErrorPtr()
		f.errorSlot = f.B.Alloca(errTy, 0)
		f.B.Store(ir.Null(errTy), f.errorSlot)
	}
	return f.errorSlot
}

// SetErrorSlot makes v the error result cell, as when forwarding the
// caller's cell.
func (f *Func) SetErrorSlot(v *ir.Value) {
	if !v.Type.Equal(ir.PtrTo(f.M.RT.ErrorPtr())) {
		panic("irgen: error slot of type " + v.Type.String())
	}
	f.errorSlot = v
}

// HasErrorSlot reports whether an error cell exists.
func (f *Func) HasErrorSlot() bool { return f.errorSlot != nil }

// Temp allocates a stack buffer for a value of info's type.
func (f *Func) Temp(info *typeinfo.Info) *ir.Value {
	if !info.Fixed() {
		f.Unimplemented("stack buffer for a dynamically sized value")
	}
	return f.B.Alloca(info.Storage, info.Align())
}

// Unimplemented stops lowering of f. It never returns.
func (f *Func) Unimplemented(what string) {
	diag.Unimplemented(f.Loc, what)
}

// Param returns physical parameter i.
func (f *Func) Param(i int) *ir.Value { return f.Fn.Params[i] }
