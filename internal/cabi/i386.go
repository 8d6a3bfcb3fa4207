package cabi

// I386SysV is the i386 System V ABI as used on Linux: aggregates are
// returned through sret and small padding-free records are expanded.
type I386SysV struct {
	Ctx Context
}

func (I386SysV) Name() string { return "sysv-i386" }

func (x I386SysV) ClassifyCall(ret *Type, args []*Type) FunctionInfo {
	return classifyEach(ret, args, x.classifyReturn, x.classifyArg)
}

func (x I386SysV) classifyReturn(t *Type) ArgInfo {
	if t.IsScalar() {
		return classifyScalar(x.Ctx, t)
	}
	if x.Ctx.SizeOf(t) == 0 {
		return ArgInfo{Kind: Ignore}
	}
	return ArgInfo{Kind: Indirect, Align: 4}
}

func (x I386SysV) classifyArg(t *Type) ArgInfo {
	if t.IsScalar() {
		return classifyScalar(x.Ctx, t)
	}
	size := x.Ctx.SizeOf(t)
	if size == 0 {
		return ArgInfo{Kind: Ignore}
	}
	if x.canExpand(t, size) {
		return ArgInfo{Kind: Expand}
	}
	return ArgInfo{Kind: Indirect, ByVal: true, Align: 4}
}

// canExpand accepts structs and complex numbers of at most 16 bytes whose
// leaves are 32 or 64 bits wide and cover every byte.
func (x I386SysV) canExpand(t *Type, size int64) bool {
	if size > 16 || (t.Kind != KindStruct && t.Kind != KindComplex) {
		return false
	}
	if containsUnion(t) {
		return false
	}
	var covered int64
	ok := true
	x.Ctx.Walk(t, 0, VisitorFunc(func(leaf *Type, _ int64) {
		if leaf.Kind != KindPointer && leaf.Bits != 32 && leaf.Bits != 64 {
			ok = false
		}
		covered += x.Ctx.SizeOf(leaf)
	}))
	return ok && covered == size
}

func containsUnion(t *Type) bool {
	switch t.Kind {
	case KindUnion:
		return true
	case KindArray, KindComplex:
		return containsUnion(t.Elem)
	case KindStruct:
		for _, f := range t.Fields {
			if containsUnion(f) {
				return true
			}
		}
	}
	return false
}
