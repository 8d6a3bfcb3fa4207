// Package ir is the logical low-level form produced by call lowering:
// physical types, values, attributes and straight-line function bodies,
// printed in an LLVM-like textual syntax.
package ir

import (
	"fmt"
	"strings"
)

// TypeKind classifies physical types.
type TypeKind uint8

const (
	TVoid TypeKind = iota
	TInt
	TFloat
	TPtr
	TStruct
	TArray
	TVector
	TFunc
)

// Type is a physical type. Named structs compare by name, everything else
// structurally.
type Type struct {
	Kind   TypeKind
	Bits   int     // TInt width; TFloat 32 or 64
	Elem   *Type   // TPtr pointee, TArray/TVector element
	Len    int     // TArray/TVector
	Name   string  // named TStruct
	Fields []*Type // TStruct
	Packed bool
	Ret    *Type   // TFunc
	Params []*Type // TFunc
}

var (
	Void   = &Type{Kind: TVoid}
	I1     = &Type{Kind: TInt, Bits: 1}
	I8     = &Type{Kind: TInt, Bits: 8}
	I16    = &Type{Kind: TInt, Bits: 16}
	I32    = &Type{Kind: TInt, Bits: 32}
	I64    = &Type{Kind: TInt, Bits: 64}
	Float  = &Type{Kind: TFloat, Bits: 32}
	Double = &Type{Kind: TFloat, Bits: 64}
	I8Ptr  = &Type{Kind: TPtr, Elem: I8}
)

// Int returns the integer type of the given width.
func Int(bits int) *Type {
	switch bits {
	case 1:
		return I1
	case 8:
		return I8
	case 16:
		return I16
	case 32:
		return I32
	case 64:
		return I64
	}
	return &Type{Kind: TInt, Bits: bits}
}

// PtrTo returns a pointer to elem; nil elem means i8*.
func PtrTo(elem *Type) *Type {
	if elem == nil || elem == I8 {
		return I8Ptr
	}
	return &Type{Kind: TPtr, Elem: elem}
}

// StructOf returns a literal (anonymous) struct.
func StructOf(fields ...*Type) *Type {
	return &Type{Kind: TStruct, Fields: append([]*Type(nil), fields...)}
}

// PackedStructOf returns a packed literal struct.
func PackedStructOf(fields ...*Type) *Type {
	t := StructOf(fields...)
	t.Packed = true
	return t
}

// ArrayOf returns [n x elem].
func ArrayOf(elem *Type, n int) *Type {
	return &Type{Kind: TArray, Elem: elem, Len: n}
}

// VectorOf returns <n x elem>.
func VectorOf(elem *Type, n int) *Type {
	return &Type{Kind: TVector, Elem: elem, Len: n}
}

// FuncOf returns a function type.
func FuncOf(ret *Type, params ...*Type) *Type {
	if ret == nil {
		ret = Void
	}
	return &Type{Kind: TFunc, Ret: ret, Params: append([]*Type(nil), params...)}
}

func (t *Type) IsVoid() bool    { return t == nil || t.Kind == TVoid }
func (t *Type) IsPointer() bool { return t != nil && t.Kind == TPtr }
func (t *Type) IsInteger() bool { return t != nil && t.Kind == TInt }
func (t *Type) IsFloat() bool   { return t != nil && t.Kind == TFloat }

// IsScalar reports whether t is a single register-sized value.
func (t *Type) IsScalar() bool {
	return t != nil && (t.Kind == TInt || t.Kind == TFloat || t.Kind == TPtr)
}

// IsAggregate reports whether t is a struct, array or vector.
func (t *Type) IsAggregate() bool {
	return t != nil && (t.Kind == TStruct || t.Kind == TArray || t.Kind == TVector)
}

// IsOpaque reports whether t is a named struct without a body.
func (t *Type) IsOpaque() bool {
	return t != nil && t.Kind == TStruct && t.Name != "" && t.Fields == nil
}

// Pointee returns the element of a pointer type.
func (t *Type) Pointee() *Type {
	if t == nil || t.Kind != TPtr {
		panic(fmt.Sprintf("ir: Pointee of non-pointer %s", t))
	}
	return t.Elem
}

// Equal compares physical types.
func (t *Type) Equal(o *Type) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil || t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case TVoid:
		return true
	case TInt, TFloat:
		return t.Bits == o.Bits
	case TPtr:
		return t.Elem.Equal(o.Elem)
	case TArray, TVector:
		return t.Len == o.Len && t.Elem.Equal(o.Elem)
	case TStruct:
		if t.Name != "" || o.Name != "" {
			return t.Name == o.Name
		}
		return t.Packed == o.Packed && equalTypes(t.Fields, o.Fields)
	case TFunc:
		return t.Ret.Equal(o.Ret) && equalTypes(t.Params, o.Params)
	}
	return false
}

func equalTypes(a, b []*Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func (t *Type) String() string {
	var sb strings.Builder
	t.write(&sb)
	return sb.String()
}

func (t *Type) write(sb *strings.Builder) {
	if t == nil {
		sb.WriteString("<nil>")
		return
	}
	switch t.Kind {
	case TVoid:
		sb.WriteString("void")
	case TInt:
		fmt.Fprintf(sb, "i%d", t.Bits)
	case TFloat:
		if t.Bits == 32 {
			sb.WriteString("float")
		} else {
			sb.WriteString("double")
		}
	case TPtr:
		t.Elem.write(sb)
		sb.WriteByte('*')
	case TArray:
		fmt.Fprintf(sb, "[%d x ", t.Len)
		t.Elem.write(sb)
		sb.WriteByte(']')
	case TVector:
		fmt.Fprintf(sb, "<%d x ", t.Len)
		t.Elem.write(sb)
		sb.WriteByte('>')
	case TStruct:
		if t.Name != "" {
			sb.WriteString("%" + t.Name)
			return
		}
		t.writeBody(sb)
	case TFunc:
		t.Ret.write(sb)
		sb.WriteString(" (")
		for i, p := range t.Params {
			if i > 0 {
				sb.WriteString(", ")
			}
			p.write(sb)
		}
		sb.WriteByte(')')
	}
}

func (t *Type) writeBody(sb *strings.Builder) {
	if t.Packed {
		sb.WriteByte('<')
	}
	sb.WriteByte('{')
	for i, f := range t.Fields {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte(' ')
		f.write(sb)
	}
	if len(t.Fields) > 0 {
		sb.WriteByte(' ')
	}
	sb.WriteByte('}')
	if t.Packed {
		sb.WriteByte('>')
	}
}

// Body renders the field list of a named struct.
func (t *Type) Body() string {
	if t.IsOpaque() {
		return "opaque"
	}
	var sb strings.Builder
	t.writeBody(&sb)
	return sb.String()
}
