package vm

import (
	"fmt"
	"math"
	"strings"

	"fortio.org/safecast"
)

// Val is a runtime value. Scalars keep their bit pattern in Bits, truncated
// to the width of their type; pointers are Handle<<32 | offset. Aggregates
// keep one Val per element.
type Val struct {
	Bits  uint64
	Agg   []Val
	Undef bool
}

// Int returns an integer value.
func Int(v int64) Val { return Val{Bits: uint64(v)} }

// Uint returns an unsigned integer value.
func Uint(v uint64) Val { return Val{Bits: v} }

// F32 returns a float value.
func F32(f float32) Val { return Val{Bits: uint64(math.Float32bits(f))} }

// F64 returns a double value.
func F64(f float64) Val { return Val{Bits: math.Float64bits(f)} }

// Agg returns an aggregate value.
func Agg(elems ...Val) Val { return Val{Agg: elems} }

// Null is the null pointer.
var Null = Val{}

// Ptr returns a pointer to offset bytes into allocation h.
func Ptr(h Handle, off int) Val {
	o, err := safecast.Conv[uint32](off)
	if err != nil {
		panic(fmt.Sprintf("vm: pointer offset %d out of range", off))
	}
	return Val{Bits: uint64(h)<<32 | uint64(o)}
}

// Handle returns the allocation a pointer refers to.
func (v Val) Handle() Handle { return Handle(v.Bits >> 32) }

// Offset returns the byte offset of a pointer.
func (v Val) Offset() int { return int(uint32(v.Bits)) }

// IsNull reports whether v is the null pointer.
func (v Val) IsNull() bool { return v.Bits == 0 && !v.Undef }

// Signed interprets Bits as a signed integer of the given width.
func (v Val) Signed(bits int) int64 {
	if bits >= 64 {
		return int64(v.Bits)
	}
	shift := 64 - bits
	return int64(v.Bits<<shift) >> shift
}

// Float32 interprets Bits as a float.
func (v Val) Float32() float32 { return math.Float32frombits(uint32(v.Bits)) }

// Float64 interprets Bits as a double.
func (v Val) Float64() float64 { return math.Float64frombits(v.Bits) }

// Equal compares values structurally.
func (v Val) Equal(o Val) bool {
	if v.Undef || o.Undef {
		return v.Undef == o.Undef
	}
	if len(v.Agg) != len(o.Agg) {
		return false
	}
	for i := range v.Agg {
		if !v.Agg[i].Equal(o.Agg[i]) {
			return false
		}
	}
	return v.Bits == o.Bits
}

func (v Val) String() string {
	switch {
	case v.Undef:
		return "undef"
	case v.Agg != nil:
		parts := make([]string, len(v.Agg))
		for i, e := range v.Agg {
			parts[i] = e.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return fmt.Sprintf("0x%x", v.Bits)
}

func truncate(bits uint64, width int) uint64 {
	if width >= 64 {
		return bits
	}
	return bits & (1<<width - 1)
}
