// Package irgen holds the per-module and per-function state shared by call
// emission and thunk synthesis.
package irgen

import (
	"context"

	"callgen/internal/cabi"
	"callgen/internal/ir"
	"callgen/internal/layout"
	"callgen/internal/runtime"
	"callgen/internal/signature"
	"callgen/internal/source"
	"callgen/internal/typeinfo"
	"callgen/internal/types"
)

// Options tune module construction.
type Options struct {
	// Classifier overrides the C ABI of the target.
	Classifier cabi.Classifier
}

// Module is the lowering context of one output module. Its caches live as
// long as the module.
type Module struct {
	Types  *types.Interner
	Target layout.Target
	Layout *layout.LayoutEngine
	IR     *ir.Module
	RT     *runtime.Runtime
	Infos  *typeinfo.Converter
	ABI    cabi.Classifier
	Sigs   *signature.Cache
}

func NewModule(name string, in *types.Interner, tgt layout.Target, opts Options) *Module {
	m := ir.NewModule(name, tgt.DataLayout())
	le := layout.New(tgt, in)
	rt := runtime.New(m, tgt)
	infos := typeinfo.New(le, rt, m)
	abi := opts.Classifier
	if abi == nil {
		abi = cabi.ForTarget(tgt)
	}
	return &Module{
		Types:  in,
		Target: tgt,
		Layout: le,
		IR:     m,
		RT:     rt,
		Infos:  infos,
		ABI:    abi,
		Sigs: signature.NewCache(&signature.Expander{
			Infos:  infos,
			Target: tgt,
			ABI:    abi,
			RT:     rt,
		}),
	}
}

// Signature returns the cached signature of fnType.
func (m *Module) Signature(ctx context.Context, fnType types.TypeID) *signature.Signature {
	return m.Sigs.Get(ctx, fnType)
}

// Info returns the lowering info of a type already known to be valid.
func (m *Module) Info(id types.TypeID) *typeinfo.Info {
	return m.Infos.Must(id)
}

// CABI returns the record layout context of the C ABI.
func (m *Module) CABI() cabi.Context {
	return cabi.Context{DL: m.IR.Layout}
}

// DL returns the data layout of the output module.
func (m *Module) DL() ir.DataLayout { return m.IR.Layout }

// DeclareFunction declares an external function with sig.
func (m *Module) DeclareFunction(name string, sig *signature.Signature) *ir.Function {
	return m.IR.Declare(name, sig.Type, sig.CC, sig.Attrs)
}

// DefineFunction creates a function with sig under a unique name derived
// from base and returns a builder state for its body.
func (m *Module) DefineFunction(ctx context.Context, base string, sig *signature.Signature, linkage ir.Linkage, loc source.Loc) *Func {
	fn := m.IR.Define(base, sig.Type, sig.CC, sig.Attrs, linkage)
	return m.NewFunc(ctx, fn, loc)
}

// NewFunc wraps a defined function for body emission.
func (m *Module) NewFunc(ctx context.Context, fn *ir.Function, loc source.Loc) *Func {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Func{
		M:   m,
		Fn:  fn,
		B:   ir.NewBuilder(fn, m.IR.Layout),
		Loc: loc,
		Ctx: ctx,
	}
}
