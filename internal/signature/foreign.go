package signature

import (
	"fmt"

	"callgen/internal/cabi"
	"callgen/internal/ir"
	"callgen/internal/types"
)

// CABI returns the C ABI context of the expander's target.
func (x *Expander) CABI() cabi.Context {
	return cabi.Context{DL: x.Target.DataLayout()}
}

func (e *expansion) expandForeign() {
	fi := e.fi
	in := e.x.Infos.Types
	if len(fi.Generics) > 0 {
		panic(fmt.Sprintf("abi: foreign %s function is generic", fi.Repr))
	}
	if fi.Throws() {
		panic(fmt.Sprintf("abi: foreign %s function declares an error result", fi.Repr))
	}

	declared := fi.Params
	if fi.Repr == types.ReprObjCMethod {
		if !fi.HasSelf {
			panic("abi: objc method without self")
		}
		declared = declared[:len(declared)-1]
	}

	f := &Foreign{}
	for i, p := range declared {
		if p.Convention == types.ConvIndirectOut {
			panic("abi: @out parameter on a foreign function")
		}
		f.Args = append(f.Args, e.x.Infos.MustForeign(p.Type))
		f.Formals = append(f.Formals, i)
	}
	if fi.Result != in.Builtins().Unit {
		f.Result = e.x.Infos.MustForeign(fi.Result)
	}
	f.Info = e.x.ABI.ClassifyCall(f.Result, f.Args)
	if len(f.Info.Args) != len(f.Args) {
		panic(fmt.Sprintf("abi: %s classified %d arguments, want %d", e.x.ABI.Name(), len(f.Info.Args), len(f.Args)))
	}
	e.sig.Foreign = f
	cctx := e.x.CABI()

	if fi.Repr == types.ReprBlock {
		e.add(ir.I8Ptr, RoleBlockSelf, -1)
	}

	switch r := f.Info.Ret; r.Kind {
	case cabi.Indirect:
		e.addSRet(cctx.IRType(f.Result), RoleIndirectResult, -1)
	case cabi.Extend:
		e.ret = r.Coerce
		e.sig.Attrs.AddRet(ir.Attr{Kind: extendAttr(r.Signed)})
	case cabi.Direct:
		e.ret = r.Coerce
	case cabi.Ignore:
	default:
		panic(fmt.Sprintf("abi: unsupported return classification %s", r.Kind))
	}

	if fi.Repr == types.ReprObjCMethod {
		e.add(ir.I8Ptr, RoleObjCSelf, len(fi.Params)-1)
		e.add(ir.I8Ptr, RoleObjCSelector, -1)
	}

	for i, ai := range f.Info.Args {
		formal := f.Formals[i]
		if ai.Padding != nil {
			e.add(ai.Padding, RolePadding, formal)
		}
		switch ai.Kind {
		case cabi.Extend:
			idx := e.add(ai.Coerce, RoleFormal, formal)
			e.addAttr(idx, extendAttr(ai.Signed))
		case cabi.Direct:
			for _, t := range DirectComponents(ai.Coerce) {
				e.add(t, RoleFormal, formal)
			}
		case cabi.Indirect:
			st := cctx.IRType(f.Args[i])
			idx := e.add(ir.PtrTo(st), RoleFormal, formal)
			if ai.ByVal {
				e.sig.Attrs.AddParam(idx, ir.Attr{Kind: ir.AttrByVal, Type: st})
				e.sig.Attrs.AddParam(idx, ir.Attr{Kind: ir.AttrAlign, N: ai.Align})
			}
		case cabi.Expand:
			for _, t := range cctx.ExpansionTypes(f.Args[i]) {
				e.add(t, RoleFormal, formal)
			}
		case cabi.Ignore:
		default:
			panic(fmt.Sprintf("abi: unsupported argument classification %s", ai.Kind))
		}
	}
}

// DirectComponents returns the physical parameters of a direct coercion
// type: literal structs are passed one field per parameter.
func DirectComponents(coerce *ir.Type) []*ir.Type {
	if coerce.Kind == ir.TStruct && coerce.Name == "" && !coerce.Packed {
		return coerce.Fields
	}
	return []*ir.Type{coerce}
}

func extendAttr(signed bool) ir.AttrKind {
	if signed {
		return ir.AttrSExt
	}
	return ir.AttrZExt
}
