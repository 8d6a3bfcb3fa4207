package cabi

import (
	"fmt"

	"callgen/internal/ir"
	"callgen/internal/layout"
)

// ArgKind is how the C ABI passes one argument or result.
type ArgKind uint8

const (
	// Direct passes the value in registers as Coerce.
	Direct ArgKind = iota + 1
	// Extend is Direct with a sign or zero extension to register width.
	Extend
	// Indirect passes a pointer to a copy; results use sret.
	Indirect
	// Expand passes one argument per scalar leaf.
	Expand
	// Ignore passes nothing.
	Ignore
)

var argKindNames = [...]string{
	Direct:   "direct",
	Extend:   "extend",
	Indirect: "indirect",
	Expand:   "expand",
	Ignore:   "ignore",
}

func (k ArgKind) String() string {
	if int(k) < len(argKindNames) && argKindNames[k] != "" {
		return argKindNames[k]
	}
	return fmt.Sprintf("ArgKind(%d)", k)
}

// ArgInfo is the classification of one position.
type ArgInfo struct {
	Kind   ArgKind
	Coerce *ir.Type // Direct, Extend
	ByVal  bool     // Indirect: the callee receives a private copy
	Align  int64    // Indirect
	Signed bool     // Extend
	// Padding, when set, is passed as an undefined argument before this one.
	Padding *ir.Type
}

func (a ArgInfo) String() string {
	switch a.Kind {
	case Direct, Extend:
		return fmt.Sprintf("%s %s", a.Kind, a.Coerce)
	case Indirect:
		if a.ByVal {
			return fmt.Sprintf("indirect byval align %d", a.Align)
		}
		return "indirect"
	}
	return a.Kind.String()
}

// FunctionInfo classifies a whole call: one entry per declared argument.
type FunctionInfo struct {
	Ret  ArgInfo
	Args []ArgInfo
}

// Classifier classifies calls for one platform C ABI. A nil ret is void.
type Classifier interface {
	Name() string
	ClassifyCall(ret *Type, args []*Type) FunctionInfo
}

// ForTarget returns the C ABI of target.
func ForTarget(t layout.Target) Classifier {
	ctx := Context{DL: t.DataLayout()}
	switch t.Arch {
	case layout.ArchAArch64:
		return AAPCS64{Ctx: ctx}
	case layout.ArchI386:
		return I386SysV{Ctx: ctx}
	default:
		return SysVX86_64{Ctx: ctx}
	}
}

func classifyEach(ret *Type, args []*Type, classifyRet, classifyArg func(*Type) ArgInfo) FunctionInfo {
	fi := FunctionInfo{Args: make([]ArgInfo, len(args))}
	if ret == nil {
		fi.Ret = ArgInfo{Kind: Ignore}
	} else {
		fi.Ret = classifyRet(ret)
	}
	for i, a := range args {
		fi.Args[i] = classifyArg(a)
	}
	return fi
}

// classifyScalar handles the rules shared by every table: integers narrower
// than 32 bits are extended, everything else is direct.
func classifyScalar(c Context, t *Type) ArgInfo {
	if t.Kind == KindInt && t.Bits < 32 {
		return ArgInfo{Kind: Extend, Coerce: c.IRType(t), Signed: t.Signed}
	}
	return ArgInfo{Kind: Direct, Coerce: c.IRType(t)}
}

// walkAll visits leaves like Walk but descends into every union member.
func (c Context) walkAll(t *Type, offset int64, fn func(leaf *Type, offset int64)) {
	switch t.Kind {
	case KindInt, KindFloat, KindPointer:
		fn(t, offset)
	case KindArray:
		stride := c.SizeOf(t.Elem)
		for i := 0; i < t.Len; i++ {
			c.walkAll(t.Elem, offset+int64(i)*stride, fn)
		}
	case KindStruct:
		offsets := c.FieldOffsets(t)
		for i, f := range t.Fields {
			c.walkAll(f, offset+offsets[i], fn)
		}
	case KindUnion:
		for _, f := range t.Fields {
			c.walkAll(f, offset, fn)
		}
	case KindComplex:
		c.walkAll(t.Elem, offset, fn)
		c.walkAll(t.Elem, offset+c.SizeOf(t.Elem), fn)
	}
}
