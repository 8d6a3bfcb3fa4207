// Package types describes the abstract, fully resolved source-level types that
// the lowering core consumes: value types, class references, generic
// parameters and function types with per-parameter conventions.
//
// Types are interned; a TypeID is stable for the lifetime of its Interner and
// structurally equal function types share one TypeID.
package types

import "fmt"

// TypeID uniquely identifies a type inside the interner.
type TypeID uint32

// NoTypeID marks the absence of a type.
const NoTypeID TypeID = 0

// Kind enumerates all supported kinds of types.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindUnit
	KindBool
	KindInt
	KindUint
	KindFloat
	KindRawPointer
	KindTuple
	KindStruct
	KindUnion
	KindArray
	KindComplex
	KindClass
	KindMetatype
	KindGenericParam
	KindFn
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindUnit:
		return "unit"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindRawPointer:
		return "rawptr"
	case KindTuple:
		return "tuple"
	case KindStruct:
		return "struct"
	case KindUnion:
		return "union"
	case KindArray:
		return "array"
	case KindComplex:
		return "complex"
	case KindClass:
		return "class"
	case KindMetatype:
		return "metatype"
	case KindGenericParam:
		return "generic"
	case KindFn:
		return "fn"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Width captures the precision of integers/floats.
type Width uint8

const (
	WidthAny Width = 0 // pointer-sized integer
	Width8   Width = 8
	Width16  Width = 16
	Width32  Width = 32
	Width64  Width = 64
)

// Type is a compact descriptor for any supported type.
type Type struct {
	Kind    Kind
	Elem    TypeID // array/complex element, metatype instance
	Count   uint32 // fixed array length
	Width   Width  // numeric primitives
	Thin    bool   // metatype has no runtime representation
	Payload uint32 // side-table slot for tuple/struct/union/class/generic/fn
}

// Descriptor helpers ---------------------------------------------------------

func MakeInt(width Width) Type { return Type{Kind: KindInt, Width: width} }

func MakeUint(width Width) Type { return Type{Kind: KindUint, Width: width} }

func MakeFloat(width Width) Type { return Type{Kind: KindFloat, Width: width} }

// MakeArray describes a fixed-size array [count x elem].
func MakeArray(elem TypeID, count uint32) Type {
	return Type{Kind: KindArray, Elem: elem, Count: count}
}

// MakeComplex describes a complex number with real and imaginary parts of elem.
func MakeComplex(elem TypeID) Type {
	return Type{Kind: KindComplex, Elem: elem}
}

// MakeMetatype describes T.Type; thin metatypes carry no value.
func MakeMetatype(instance TypeID, thin bool) Type {
	return Type{Kind: KindMetatype, Elem: instance, Thin: thin}
}
