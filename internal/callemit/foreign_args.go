package callemit

import (
	"fmt"

	"callgen/internal/cabi"
	"callgen/internal/explosion"
	"callgen/internal/ir"
	"callgen/internal/signature"
	"callgen/internal/typeinfo"
	"callgen/internal/types"
)

// foreignValue is one formal on its way to the C ABI: either an address of
// the value or its loaded pieces.
type foreignValue struct {
	info   *typeinfo.Info
	addr   *ir.Value
	pieces []*ir.Value
}

func (e *Emission) claimForeignValue(args *explosion.Explosion, p types.Param) foreignValue {
	info := e.f.M.Info(p.Type)
	if _, ok := e.f.M.Types.TupleInfo(p.Type); ok && !info.Loadable() && !p.Convention.IsIndirect() {
		e.f.Unimplemented("passing a tuple kept in memory to a foreign function")
	}
	if p.Convention.IsIndirect() || !info.Loadable() {
		return foreignValue{info: info, addr: args.Claim()}
	}
	return foreignValue{info: info, pieces: args.ClaimN(len(info.Pieces))}
}

// address returns the value in memory, spilling loaded pieces to a
// temporary large enough for a read of size bytes.
func (e *Emission) address(v foreignValue, size int64) *ir.Value {
	if v.addr != nil && v.info.Size() >= size {
		return v.addr
	}
	buf := e.f.CoercionBuffer(v.info.Storage, ir.ArrayOf(ir.I8, int(size)))
	if v.addr != nil {
		e.f.B.Memcpy(buf, e.f.B.Bitcast(v.addr, ir.I8Ptr), v.info.Size())
	} else {
		e.f.StoreExplosion(explosion.New(v.pieces...), buf, v.info)
	}
	return buf
}

func (e *Emission) setForeignArgs(args *explosion.Explosion) {
	fr := e.sig.Foreign
	cctx := e.f.M.CABI()

	declared := e.orig.Params
	var selfVal foreignValue
	vals := make([]foreignValue, len(declared))
	for i, p := range declared {
		if e.orig.Repr == types.ReprObjCMethod && i == len(declared)-1 {
			selfVal = e.claimForeignValue(args, p)
			continue
		}
		vals[i] = e.claimForeignValue(args, p)
	}
	args.AssertEmpty()

	if e.orig.Repr == types.ReprBlock {
		e.place(e.callee.Data)
	}
	if e.sretIdx >= 0 {
		e.reserve()
	}
	if e.orig.Repr == types.ReprObjCMethod {
		if len(selfVal.pieces) != 1 {
			panic("callemit: objc self is not a single pointer")
		}
		if e.callee.Selector == nil {
			panic("callemit: objc method call without a selector")
		}
		e.place(selfVal.pieces[0])
		e.place(e.callee.Selector)
	}

	for i, ai := range fr.Info.Args {
		v := vals[fr.Formals[i]]
		ct := fr.Args[i]
		if ai.Padding != nil {
			e.place(ir.Undef(ai.Padding))
		}
		switch ai.Kind {
		case cabi.Direct, cabi.Extend:
			e.placeDirect(v, ai.Coerce)
		case cabi.Indirect:
			st := cctx.IRType(ct)
			tmp := e.f.B.Alloca(st, max(ai.Align, cctx.AlignOf(ct)))
			src := e.address(v, v.info.Size())
			e.f.B.Memcpy(e.f.B.Bitcast(tmp, ir.I8Ptr), e.f.B.Bitcast(src, ir.I8Ptr), v.info.Size())
			e.place(tmp)
		case cabi.Expand:
			if v.pieces != nil && ExpansionMatchesSchema(cctx, ct, v.info) {
				for _, p := range v.pieces {
					e.place(p)
				}
				continue
			}
			var ex explosion.Explosion
			LoadForeign(e.f, e.address(v, cctx.SizeOf(ct)), ct, &ex)
			for _, p := range ex.ClaimAll() {
				e.place(p)
			}
		case cabi.Ignore:
		default:
			panic(fmt.Sprintf("callemit: unsupported classification %s", ai.Kind))
		}
	}
}

// placeDirect passes v as the direct coercion type, one argument per field
// of a literal struct.
func (e *Emission) placeDirect(v foreignValue, coerce *ir.Type) {
	parts := signature.DirectComponents(coerce)
	if v.pieces != nil && len(parts) == len(v.pieces) {
		match := true
		for i, p := range parts {
			if !sameScalar(p, v.pieces[i].Type) {
				match = false
			}
		}
		if match {
			for _, p := range v.pieces {
				e.place(p)
			}
			return
		}
	}
	dl := e.f.M.DL()
	src := e.address(v, dl.AllocSize(coerce))
	whole := e.f.B.Load(coerce, e.f.B.Bitcast(src, ir.PtrTo(coerce)))
	if len(parts) == 1 {
		e.place(whole)
		return
	}
	for i := range parts {
		e.place(e.f.B.ExtractValue(whole, i))
	}
}

func (e *Emission) emitForeign(dest CallResult) *ir.Instr {
	fr := e.sig.Foreign
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
	r := call.Result
	if r == nil {
		// ignored results are empty; nothing to deliver
		if info.Size() != 0 {
			e.f.Unimplemented("ignored foreign result with storage")
		}
		return call
	}
	coerce := fr.Info.Ret.Coerce
	parts := signature.DirectComponents(coerce)
	if info.Loadable() && len(parts) == len(info.Pieces) {
		match := true
		for i, p := range parts {
			if !sameScalar(p, info.Pieces[i].Type) {
				match = false
			}
		}
		if match {
			var raw explosion.Explosion
			if len(parts) == 1 {
				raw.Add(r)
			} else {
				for i := range parts {
					raw.Add(e.f.B.ExtractValue(r, i))
				}
			}
			e.deliverPieces(dest, &raw, info)
			return call
		}
	}
	buf := e.f.CoercionBuffer(coerce, info.Storage)
	e.f.B.Store(r, e.f.B.Bitcast(buf, ir.PtrTo(coerce)))
	e.deliverFromMemory(dest, buf, info)
	return call
}
