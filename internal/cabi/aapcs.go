package cabi

import "callgen/internal/ir"

// AAPCS64 is the Arm 64-bit procedure call standard without vector types.
type AAPCS64 struct {
	Ctx Context
}

func (AAPCS64) Name() string { return "aapcs64" }

func (a AAPCS64) ClassifyCall(ret *Type, args []*Type) FunctionInfo {
	return classifyEach(ret, args, a.classify, a.classify)
}

func (a AAPCS64) classify(t *Type) ArgInfo {
	if t.IsScalar() {
		return classifyScalar(a.Ctx, t)
	}
	size := a.Ctx.SizeOf(t)
	if size == 0 {
		return ArgInfo{Kind: Ignore}
	}
	if base, n, ok := a.homogeneousFloat(t, size); ok {
		return ArgInfo{Kind: Direct, Coerce: ir.ArrayOf(base, n)}
	}
	switch {
	case size <= 8:
		return ArgInfo{Kind: Direct, Coerce: ir.I64}
	case size <= 16:
		return ArgInfo{Kind: Direct, Coerce: ir.ArrayOf(ir.I64, 2)}
	}
	// arguments pass the address of a caller-made copy, without byval
	return ArgInfo{Kind: Indirect, Align: a.Ctx.AlignOf(t)}
}

// homogeneousFloat detects homogeneous floating-point aggregates of one to
// four members of the same type.
func (a AAPCS64) homogeneousFloat(t *Type, size int64) (*ir.Type, int, bool) {
	var bits, count int
	ok := true
	a.Ctx.walkAll(t, 0, func(leaf *Type, _ int64) {
		if leaf.Kind != KindFloat || (bits != 0 && leaf.Bits != bits) {
			ok = false
			return
		}
		bits = leaf.Bits
		count++
	})
	if !ok || count == 0 || count > 4 || size != int64(count*bits/8) {
		return nil, 0, false
	}
	if bits == 32 {
		return ir.Float, count, true
	}
	return ir.Double, count, true
}
