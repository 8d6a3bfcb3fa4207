package signature

import (
	"fmt"

	"callgen/internal/cabi"
	"callgen/internal/ir"
	"callgen/internal/layout"
	"callgen/internal/runtime"
	"callgen/internal/typeinfo"
	"callgen/internal/types"
)

// Expander derives signatures from function types.
type Expander struct {
	Infos  *typeinfo.Converter
	Target layout.Target
	ABI    cabi.Classifier
	RT     *runtime.Runtime
}

// IsSelfContextParameter reports whether p is always exactly one retainable
// or opaque pointer, so that it can occupy the context slot.
func IsSelfContextParameter(in *types.Interner, p types.Param) bool {
	if p.Convention.IsIndirect() {
		return true
	}
	tt := in.MustLookup(p.Type)
	switch tt.Kind {
	case types.KindMetatype:
		return !tt.Thin
	case types.KindClass:
		return true
	case types.KindGenericParam:
		g, _ := in.GenericInfo(p.Type)
		return g.ClassBound
	}
	return false
}

type expansion struct {
	x   *Expander
	env *typeinfo.Env
	fi  *types.FnInfo
	sig *Signature

	params []*ir.Type
	ret    *ir.Type
}

func (e *expansion) add(t *ir.Type, role Role, formal int) int {
	e.params = append(e.params, t)
	e.sig.Params = append(e.sig.Params, Param{Role: role, Formal: formal})
	return len(e.params) - 1
}

func (e *expansion) addAttr(i int, kind ir.AttrKind) {
	e.sig.Attrs.AddParam(i, ir.Attr{Kind: kind})
}

// Expand computes the signature of fnType.
func (x *Expander) Expand(fnType types.TypeID) *Signature {
	fi := x.Infos.Types.MustFnInfo(fnType)
	e := &expansion{
		x:   x,
		env: x.Infos.Scope(fi.Generics),
		fi:  fi,
		sig: &Signature{FnType: fnType, Repr: fi.Repr, CC: x.Target.CallConv(fi.Repr)},
		ret: ir.Void,
	}
	if fi.HasSelf {
		switch fi.Repr {
		case types.ReprMethod, types.ReprWitnessMethod, types.ReprObjCMethod:
		default:
			panic(fmt.Sprintf("abi: self parameter on %s function", fi.Repr))
		}
		if len(fi.Params) == 0 {
			panic("abi: self parameter flag without parameters")
		}
	}
	if fi.Repr.IsForeign() {
		e.expandForeign()
	} else {
		e.expandResult()
		e.expandParameters()
	}
	e.sig.Type = ir.FuncOf(e.ret, e.params...)
	return e.sig
}

func (e *expansion) expandResult() {
	if e.fi.HasIndirectOut() {
		if e.fi.Result != e.x.Infos.Types.Builtins().Unit {
			panic("abi: @out parameter together with a direct result")
		}
		return
	}
	if e.fi.Result == e.x.Infos.Types.Builtins().Unit {
		return
	}
	info := e.env.Info(e.fi.Result)
	if info.Schema.RequiresIndirectResult() {
		e.addSRet(info.Storage, RoleIndirectResult, -1)
		return
	}
	e.ret = info.Schema.ScalarResultType()
}

func (e *expansion) addSRet(storage *ir.Type, role Role, formal int) {
	if len(e.params) != 0 && e.sig.Repr != types.ReprBlock {
		panic("abi: indirect result is not the first physical parameter")
	}
	i := e.add(ir.PtrTo(storage), role, formal)
	e.sig.Attrs.AddParam(i, ir.Attr{Kind: ir.AttrSRet, Type: storage})
	e.addAttr(i, ir.AttrNoAlias)
	e.addAttr(i, ir.AttrNoCapture)
	e.sig.IndirectReturn = true
}

func (e *expansion) expandParameters() {
	fi := e.fi
	in := e.x.Infos.Types
	selfIdx := -1
	if self, ok := fi.SelfParam(); ok && IsSelfContextParameter(in, self) {
		selfIdx = len(fi.Params) - 1
	}

	for i, p := range fi.Params {
		if i == selfIdx {
			continue
		}
		e.expandFormal(i, p.Type, p.Convention)
	}

	for _, g := range fi.Generics {
		if !in.HasTypeParams(g) {
			panic(fmt.Sprintf("abi: %s is not a generic parameter", in.TypeString(g)))
		}
		e.add(e.x.RT.MetadataPtr(), RoleGenericMetadata, -1)
	}
	for _, g := range fi.Generics {
		info, _ := in.GenericInfo(g)
		for range info.Conformances {
			e.add(e.x.RT.WitnessTablePtr(), RoleWitnessTable, -1)
		}
	}

	switch {
	case selfIdx >= 0:
		before := len(e.params)
		self := fi.Params[selfIdx]
		e.expandFormal(selfIdx, self.Type, self.Convention)
		if len(e.params) != before+1 {
			panic(fmt.Sprintf("abi: self context parameter expanded to %d parameters", len(e.params)-before))
		}
		e.sig.Params[before].Role = RoleContext
		e.addAttr(before, ir.AttrSelf)
		e.sig.SelfContext = true
	case fi.Repr == types.ReprThick || fi.Throws():
		// a context slot is present whenever an error slot is
		i := e.add(e.x.RT.RefCountedPtr(), RoleContext, -1)
		e.addAttr(i, ir.AttrSelf)
	}

	if fi.Throws() {
		i := e.add(ir.PtrTo(e.x.RT.ErrorPtr()), RoleError, -1)
		if e.x.Target.DedicatedErrorRegister {
			e.addAttr(i, ir.AttrError)
		}
	}

	if fi.Repr == types.ReprWitnessMethod {
		e.add(e.x.RT.MetadataPtr(), RoleWitnessSelfMetadata, -1)
		e.add(e.x.RT.WitnessTablePtr(), RoleWitnessSelfTable, -1)
	}
}

// expandFormal appends the physical parameters of one source parameter;
// tuples passed directly are flattened with the same convention.
func (e *expansion) expandFormal(formal int, ty types.TypeID, conv types.Convention) {
	info := e.env.Info(ty)
	switch conv {
	case types.ConvIndirectOut:
		e.addSRet(info.Storage, RoleIndirectResult, formal)
		e.sig.FormalOut = true
	case types.ConvIndirectIn, types.ConvIndirectInGuaranteed:
		i := e.add(ir.PtrTo(info.Storage), RoleFormal, formal)
		e.addAttr(i, ir.AttrNoAlias)
		e.addAttr(i, ir.AttrNoCapture)
		if info.Fixed() && info.Size() > 0 {
			e.sig.Attrs.AddParam(i, ir.Attr{Kind: ir.AttrDereferenceable, N: info.Size()})
		}
	case types.ConvIndirectInout:
		// inout may alias, so no noalias
		i := e.add(ir.PtrTo(info.Storage), RoleFormal, formal)
		e.addAttr(i, ir.AttrNoCapture)
	default:
		if ti, ok := e.x.Infos.Types.TupleInfo(ty); ok {
			for _, el := range ti.Elems {
				e.expandFormal(formal, el, conv)
			}
			return
		}
		before := len(e.params)
		e.params = info.Schema.AddToArgTypes(&e.sig.Attrs, e.params)
		for range e.params[before:] {
			e.sig.Params = append(e.sig.Params, Param{Role: RoleFormal, Formal: formal})
		}
	}
}
