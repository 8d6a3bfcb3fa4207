package ir

import (
	"fmt"
	"math"
	"strconv"
)

// ValueKind classifies values.
type ValueKind uint8

const (
	VParam ValueKind = iota
	VInstr
	VConstInt
	VConstFloat
	VUndef
	VNull
	VZero
	VFunc
	VGlobal
)

// Value is an SSA value, a constant or a symbol address.
type Value struct {
	Kind   ValueKind
	Type   *Type
	Name   string // local name, without '%'
	Int    int64  // VConstInt
	Bits   uint64 // VConstFloat bit pattern at the type's width
	Index  int    // VParam position
	Func   *Function
	Global *Global
	Instr  *Instr
}

// ConstInt returns an integer constant of type t.
func ConstInt(t *Type, v int64) *Value {
	if !t.IsInteger() {
		panic(fmt.Sprintf("ir: ConstInt of %s", t))
	}
	return &Value{Kind: VConstInt, Type: t, Int: v}
}

// ConstFloat returns a floating constant of type t.
func ConstFloat(t *Type, f float64) *Value {
	if !t.IsFloat() {
		panic(fmt.Sprintf("ir: ConstFloat of %s", t))
	}
	bits := math.Float64bits(f)
	if t.Bits == 32 {
		bits = uint64(math.Float32bits(float32(f)))
	}
	return &Value{Kind: VConstFloat, Type: t, Bits: bits}
}

// Undef returns the undefined value of t.
func Undef(t *Type) *Value { return &Value{Kind: VUndef, Type: t} }

// Null returns the null pointer of pointer type t.
func Null(t *Type) *Value {
	if !t.IsPointer() {
		panic(fmt.Sprintf("ir: Null of %s", t))
	}
	return &Value{Kind: VNull, Type: t}
}

// Zero returns the all-zero value of t.
func Zero(t *Type) *Value { return &Value{Kind: VZero, Type: t} }

// IsConst reports whether v is a compile-time constant.
func (v *Value) IsConst() bool {
	switch v.Kind {
	case VConstInt, VConstFloat, VUndef, VNull, VZero, VFunc, VGlobal:
		return true
	}
	return false
}

// Ref renders v as an operand without its type.
func (v *Value) Ref() string {
	if v == nil {
		return "<nil>"
	}
	switch v.Kind {
	case VParam, VInstr:
		return "%" + v.Name
	case VConstInt:
		if v.Type.Bits == 1 {
			return strconv.FormatBool(v.Int != 0)
		}
		return strconv.FormatInt(v.Int, 10)
	case VConstFloat:
		return fmt.Sprintf("0x%016X", v.float64Bits())
	case VUndef:
		return "undef"
	case VNull:
		return "null"
	case VZero:
		return "zeroinitializer"
	case VFunc:
		return "@" + v.Func.Name
	case VGlobal:
		return "@" + v.Global.Name
	}
	return "?"
}

// float64Bits widens a float constant for printing, as LLVM prints floats.
func (v *Value) float64Bits() uint64 {
	if v.Type.Bits == 32 {
		return math.Float64bits(float64(math.Float32frombits(uint32(v.Bits))))
	}
	return v.Bits
}

func (v *Value) String() string {
	if v == nil {
		return "<nil>"
	}
	return v.Type.String() + " " + v.Ref()
}
