package callemit

import (
	"fmt"

	"callgen/internal/explosion"
	"callgen/internal/ir"
	"callgen/internal/signature"
	"callgen/internal/typeinfo"
	"callgen/internal/types"
)

// Width returns how many explosion values a caller supplies for one formal
// parameter: one pointer for indirect conventions and values kept in
// memory, the element widths for direct tuples, the piece count otherwise.
func Width(env *typeinfo.Env, ty types.TypeID, conv types.Convention) int {
	if conv.IsIndirect() {
		return 1
	}
	in := env.Converter().Types
	if ti, ok := in.TupleInfo(ty); ok {
		n := 0
		for _, el := range ti.Elems {
			n += Width(env, el, conv)
		}
		return n
	}
	info := env.Info(ty)
	if !info.Loadable() {
		return 1
	}
	return len(info.Pieces)
}

// PieceTypes returns the types of the explosion values Width counts.
func PieceTypes(env *typeinfo.Env, ty types.TypeID, conv types.Convention) []*ir.Type {
	info := env.Info(ty)
	if conv.IsIndirect() {
		return []*ir.Type{ir.PtrTo(info.Storage)}
	}
	in := env.Converter().Types
	if ti, ok := in.TupleInfo(ty); ok {
		var out []*ir.Type
		for _, el := range ti.Elems {
			out = append(out, PieceTypes(env, el, conv)...)
		}
		return out
	}
	if !info.Loadable() {
		return []*ir.Type{ir.PtrTo(info.Storage)}
	}
	out := make([]*ir.Type, len(info.Pieces))
	for i, p := range info.Pieces {
		out[i] = p.Type
	}
	return out
}

// SetArgs adapts the caller's argument explosion to the physical
// parameters. args holds every formal in declaration order, self last;
// generics holds the metadata then witness-table values of the callee's
// generic parameters; self is required for witness methods.
func (e *Emission) SetArgs(args *explosion.Explosion, generics []*ir.Value, self *WitnessSelf) {
	if e.argsSet {
		panic("callemit: arguments set twice")
	}
	e.argsSet = true
	if e.sig.Foreign != nil {
		if len(generics) > 0 || self != nil {
			panic("callemit: generic arguments for a foreign callee")
		}
		e.setForeignArgs(args)
		return
	}
	e.setNativeArgs(args, generics, self)
}

func (e *Emission) setNativeArgs(args *explosion.Explosion, generics []*ir.Value, self *WitnessSelf) {
	if e.sretIdx == 0 {
		e.reserve()
	}
	selfIdx := -1
	if e.sig.SelfContext {
		selfIdx = len(e.orig.Params) - 1
	}
	var selfVals []*ir.Value
	for i, p := range e.orig.Params {
		vals := e.lowerFormal(args, p.Type, e.subst.Params[i].Type, p.Convention)
		if i == selfIdx {
			selfVals = vals
			continue
		}
		for _, v := range vals {
			e.place(v)
		}
	}

	want := 0
	for _, p := range e.sig.Params {
		if p.Role == signature.RoleGenericMetadata || p.Role == signature.RoleWitnessTable {
			want++
		}
	}
	if len(generics) != want {
		panic(fmt.Sprintf("callemit: %d generic arguments, want %d", len(generics), want))
	}
	for _, g := range generics {
		e.place(g)
	}

	if selfIdx >= 0 {
		if len(selfVals) != 1 {
			panic(fmt.Sprintf("callemit: self context lowered to %d values", len(selfVals)))
		}
		e.setTrailing(signature.RoleContext, selfVals[0])
	}
	if e.orig.Repr == types.ReprWitnessMethod {
		if self == nil || self.Metadata == nil || self.Table == nil {
			panic("callemit: witness method call without self metadata")
		}
		e.setTrailing(signature.RoleWitnessSelfMetadata, self.Metadata)
		e.setTrailing(signature.RoleWitnessSelfTable, self.Table)
	} else if self != nil {
		panic("callemit: witness self for a non-witness callee")
	}
	args.AssertEmpty()
}

// lowerFormal claims one formal from args and returns its physical values.
func (e *Emission) lowerFormal(args *explosion.Explosion, orig, subst types.TypeID, conv types.Convention) []*ir.Value {
	if conv.IsIndirect() {
		return []*ir.Value{args.Claim()}
	}
	in := e.f.M.Types
	if ti, ok := in.TupleInfo(orig); ok {
		sti, ok := in.TupleInfo(subst)
		if !ok || len(sti.Elems) != len(ti.Elems) {
			panic(fmt.Sprintf("callemit: tuple %s substituted by %s", in.TypeString(orig), in.TypeString(subst)))
		}
		var out []*ir.Value
		for i, el := range ti.Elems {
			out = append(out, e.lowerFormal(args, el, sti.Elems[i], conv)...)
		}
		return out
	}

	oi := e.origEnv.Info(orig)
	si := e.substEnv.Info(subst)
	if oi.Schema.RequiresIndirectParameter() {
		if !si.Loadable() {
			return []*ir.Value{args.Claim()}
		}
		// the callee expects the value in memory; ownership moves with the bits
		tmp := e.f.Temp(si)
		e.f.StoreExplosion(args, tmp, si)
		return []*ir.Value{tmp}
	}
	n := oi.Schema.Len()
	if si.Loadable() && len(si.Pieces) == n {
		return args.ClaimN(n)
	}
	tmp := e.f.Temp(si)
	e.f.StoreExplosion(args, tmp, si)
	var reshaped explosion.Explosion
	e.f.LoadExplosion(tmp, oi, &reshaped)
	return reshaped.ClaimAll()
}

func (e *Emission) emitNative(dest CallResult) *ir.Instr {
	info := e.resultInfo()
	if e.sretIdx >= 0 {
		addr, temp := e.sretTarget(dest, info)
		e.leading[e.sretIdx] = e.f.Coerce(addr, e.sig.Type.Params[e.sretIdx])
		call := e.issue()
		if temp != nil {
			e.deliverFromMemory(dest, temp, info)
		}
		return call
	}

	call := e.issue()
	var raw explosion.Explosion
	if r := call.Result; r != nil {
		if n := e.origResultPieces(); n > 1 {
			for i := 0; i < n; i++ {
				raw.Add(e.f.B.ExtractValue(r, i))
			}
		} else {
			raw.Add(r)
		}
	}
	e.deliverPieces(dest, &raw, info)
	return call
}

func (e *Emission) origResultPieces() int {
	return e.origEnv.Info(e.orig.Result).Schema.Len()
}

// deliverPieces converts the callee's result pieces to the caller's
// result type and delivers them.
func (e *Emission) deliverPieces(dest CallResult, raw *explosion.Explosion, info *typeinfo.Info) {
	vals := raw.ClaimAll()
	var out explosion.Explosion
	if len(vals) == len(info.Pieces) {
		for i, p := range info.Pieces {
			out.Add(e.f.Coerce(vals[i], p.Type))
		}
	} else {
		// shapes differ; reinterpret through the callee's storage layout
		oi := e.origEnv.Info(e.orig.Result)
		buf := e.f.CoercionBuffer(oi.Storage, info.Storage)
		e.f.StoreExplosion(explosion.New(vals...), buf, oi)
		e.f.LoadExplosion(buf, info, &out)
	}
	switch d := dest.(type) {
	case ToExplosion:
		d.Out.Add(out.ClaimAll()...)
	case ToMemory:
		e.f.StoreExplosion(&out, d.Addr, info)
	default:
		panic(fmt.Sprintf("callemit: unknown call result %T", dest))
	}
}
