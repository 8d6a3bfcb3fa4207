package cabi

import "callgen/internal/ir"

type eightbyteClass uint8

const (
	classNone eightbyteClass = iota
	classInteger
	classSSE
)

func mergeClass(a, b eightbyteClass) eightbyteClass {
	if a == classInteger || b == classInteger {
		return classInteger
	}
	if a == classSSE || b == classSSE {
		return classSSE
	}
	return classNone
}

// SysVX86_64 is the System V AMD64 ABI without x87 or vector types.
type SysVX86_64 struct {
	Ctx Context
}

func (SysVX86_64) Name() string { return "sysv-x86_64" }

func (s SysVX86_64) ClassifyCall(ret *Type, args []*Type) FunctionInfo {
	return classifyEach(ret, args, s.classifyReturn, s.classifyArg)
}

func (s SysVX86_64) classifyReturn(t *Type) ArgInfo {
	if t.IsScalar() {
		return classifyScalar(s.Ctx, t)
	}
	size := s.Ctx.SizeOf(t)
	if size == 0 {
		return ArgInfo{Kind: Ignore}
	}
	if size > 16 {
		return ArgInfo{Kind: Indirect, Align: s.Ctx.AlignOf(t)}
	}
	return ArgInfo{Kind: Direct, Coerce: s.coerce(t, size)}
}

func (s SysVX86_64) classifyArg(t *Type) ArgInfo {
	if t.IsScalar() {
		return classifyScalar(s.Ctx, t)
	}
	size := s.Ctx.SizeOf(t)
	if size == 0 {
		return ArgInfo{Kind: Ignore}
	}
	if size > 16 {
		return ArgInfo{Kind: Indirect, ByVal: true, Align: max(8, s.Ctx.AlignOf(t))}
	}
	return ArgInfo{Kind: Direct, Coerce: s.coerce(t, size)}
}

// coerce builds the register type of an aggregate of at most 16 bytes: one
// entry per eightbyte, SSE eightbytes as float/<2 x float>/double and
// INTEGER eightbytes as an integer covering the remaining bytes.
func (s SysVX86_64) coerce(t *Type, size int64) *ir.Type {
	var classes [2]eightbyteClass
	var floats [2][]Leaf
	s.Ctx.walkAll(t, 0, func(leaf *Type, off int64) {
		i := off / 8
		c := classInteger
		if leaf.Kind == KindFloat {
			c = classSSE
			floats[i] = append(floats[i], Leaf{Type: leaf, Offset: off})
		}
		classes[i] = mergeClass(classes[i], c)
	})
	n := int((size + 7) / 8)
	parts := make([]*ir.Type, n)
	for i := 0; i < n; i++ {
		rem := min(8, size-int64(i)*8)
		switch classes[i] {
		case classSSE:
			parts[i] = sseType(floats[i], rem)
		default:
			parts[i] = ir.Int(int(rem) * 8)
		}
	}
	if n == 1 {
		return parts[0]
	}
	return ir.StructOf(parts...)
}

func sseType(leaves []Leaf, rem int64) *ir.Type {
	all32 := true
	for _, l := range leaves {
		if l.Type.Bits != 32 {
			all32 = false
		}
	}
	switch {
	case all32 && rem <= 4:
		return ir.Float
	case all32 && len(leaves) == 2:
		return ir.VectorOf(ir.Float, 2)
	}
	return ir.Double
}
