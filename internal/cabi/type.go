// Package cabi models the platform C ABI: canonical foreign type trees, their
// record layout, the scalar-leaf walk shared by expansion and marshalling,
// and per-architecture argument classification tables.
package cabi

import (
	"fmt"
	"strings"

	"fortio.org/safecast"

	"callgen/internal/ir"
)

// Kind is the node kind of a foreign type tree.
type Kind uint8

const (
	KindInt Kind = iota + 1
	KindFloat
	KindPointer
	KindStruct
	KindUnion
	KindArray
	KindComplex
)

// Type is a canonical foreign type.
type Type struct {
	Kind   Kind
	Bits   int // KindInt, KindFloat
	Signed bool
	Name   string
	Fields []*Type // KindStruct, KindUnion
	Elem   *Type   // KindArray, KindComplex
	Len    int     // KindArray
}

func Int(bits int, signed bool) *Type { return &Type{Kind: KindInt, Bits: bits, Signed: signed} }

func Float() *Type { return &Type{Kind: KindFloat, Bits: 32} }

func Double() *Type { return &Type{Kind: KindFloat, Bits: 64} }

func Pointer() *Type { return &Type{Kind: KindPointer} }

func StructOf(name string, fields ...*Type) *Type {
	return &Type{Kind: KindStruct, Name: name, Fields: fields}
}

func UnionOf(name string, fields ...*Type) *Type {
	return &Type{Kind: KindUnion, Name: name, Fields: fields}
}

func ArrayOf(elem *Type, n int) *Type { return &Type{Kind: KindArray, Elem: elem, Len: n} }

func ComplexOf(elem *Type) *Type { return &Type{Kind: KindComplex, Elem: elem} }

// IsScalar reports whether t is a leaf of the walk.
func (t *Type) IsScalar() bool {
	return t.Kind == KindInt || t.Kind == KindFloat || t.Kind == KindPointer
}

// IsRecord reports whether t is classified as an aggregate.
func (t *Type) IsRecord() bool { return !t.IsScalar() }

func (t *Type) String() string {
	switch t.Kind {
	case KindInt:
		if t.Signed {
			return fmt.Sprintf("int%d", t.Bits)
		}
		return fmt.Sprintf("uint%d", t.Bits)
	case KindFloat:
		if t.Bits == 32 {
			return "float"
		}
		return "double"
	case KindPointer:
		return "void*"
	case KindArray:
		return fmt.Sprintf("%s[%d]", t.Elem, t.Len)
	case KindComplex:
		return fmt.Sprintf("_Complex %s", t.Elem)
	}
	kw := "struct"
	if t.Kind == KindUnion {
		kw = "union"
	}
	if t.Name != "" {
		return kw + " " + t.Name
	}
	parts := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		parts[i] = f.String()
	}
	return kw + " { " + strings.Join(parts, "; ") + " }"
}

// Context answers record layout questions for one target.
type Context struct {
	DL ir.DataLayout
}

// IRType is the physical storage type of t.
func (c Context) IRType(t *Type) *ir.Type {
	switch t.Kind {
	case KindInt:
		return ir.Int(t.Bits)
	case KindFloat:
		if t.Bits == 32 {
			return ir.Float
		}
		return ir.Double
	case KindPointer:
		return ir.I8Ptr
	case KindArray:
		return ir.ArrayOf(c.IRType(t.Elem), t.Len)
	case KindComplex:
		e := c.IRType(t.Elem)
		return ir.StructOf(e, e)
	case KindStruct:
		fields := make([]*ir.Type, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = c.IRType(f)
		}
		return ir.StructOf(fields...)
	case KindUnion:
		return c.unionIRType(t)
	}
	panic(fmt.Sprintf("abi: no storage type for %s", t))
}

// unionIRType is the most aligned member padded to the union size.
func (c Context) unionIRType(t *Type) *ir.Type {
	if len(t.Fields) == 0 {
		return ir.StructOf()
	}
	var base *ir.Type
	var size, align int64
	for _, f := range t.Fields {
		ft := c.IRType(f)
		fs, fa := c.DL.AllocSize(ft), c.DL.AlignOf(ft)
		if base == nil || fa > c.DL.AlignOf(base) || (fa == c.DL.AlignOf(base) && fs > c.DL.AllocSize(base)) {
			base = ft
		}
		size = max(size, fs)
		align = max(align, fa)
	}
	size = ir.RoundUp(size, align)
	if pad := size - c.DL.AllocSize(base); pad > 0 {
		n, err := safecast.Conv[int](pad)
		if err != nil {
			panic(fmt.Errorf("abi: union padding overflow: %w", err))
		}
		return ir.StructOf(base, ir.ArrayOf(ir.I8, n))
	}
	return ir.StructOf(base)
}

func (c Context) SizeOf(t *Type) int64 { return c.DL.AllocSize(c.IRType(t)) }

func (c Context) AlignOf(t *Type) int64 { return c.DL.AlignOf(c.IRType(t)) }

// FieldOffsets returns the field offsets of a struct in declaration order.
func (c Context) FieldOffsets(t *Type) []int64 {
	if t.Kind != KindStruct {
		panic(fmt.Sprintf("abi: field offsets of %s", t))
	}
	offsets, _, _ := c.DL.StructLayout(c.IRType(t))
	return offsets
}

// LargestField returns the index of the union member covering every other
// member's bytes; the first one wins ties.
func (c Context) LargestField(t *Type) int {
	best, bestSize := -1, int64(-1)
	for i, f := range t.Fields {
		if s := c.SizeOf(f); s > bestSize {
			best, bestSize = i, s
		}
	}
	return best
}
