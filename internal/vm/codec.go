package vm

import (
	"encoding/binary"
	"fmt"

	"callgen/internal/ir"
)

// encode writes v as a t into buf, which holds at least StoreSize(t) bytes.
// Undefined values are written as zeros.
func (vm *VM) encode(buf []byte, v Val, t *ir.Type) {
	dl := vm.dl
	switch t.Kind {
	case ir.TInt, ir.TFloat, ir.TPtr:
		n := int(dl.StoreSize(t))
		var tmp [8]byte
		if !v.Undef {
			binary.LittleEndian.PutUint64(tmp[:], v.Bits)
		}
		copy(buf[:n], tmp[:n])
	case ir.TStruct:
		offsets, _, _ := dl.StructLayout(t)
		for i, f := range t.Fields {
			vm.encode(buf[offsets[i]:], elem(v, i), f)
		}
	case ir.TArray:
		step := dl.AllocSize(t.Elem)
		for i := 0; i < t.Len; i++ {
			vm.encode(buf[int64(i)*step:], elem(v, i), t.Elem)
		}
	case ir.TVector:
		step := dl.StoreSize(t.Elem)
		for i := 0; i < t.Len; i++ {
			vm.encode(buf[int64(i)*step:], elem(v, i), t.Elem)
		}
	default:
		panic(fmt.Sprintf("vm: cannot store %s", t))
	}
}

// decode reads a t from buf.
func (vm *VM) decode(buf []byte, t *ir.Type) Val {
	dl := vm.dl
	switch t.Kind {
	case ir.TInt, ir.TFloat, ir.TPtr:
		n := int(dl.StoreSize(t))
		var tmp [8]byte
		copy(tmp[:n], buf[:n])
		bits := binary.LittleEndian.Uint64(tmp[:])
		if t.Kind == ir.TInt {
			bits = truncate(bits, t.Bits)
		}
		return Val{Bits: bits}
	case ir.TStruct:
		offsets, _, _ := dl.StructLayout(t)
		out := make([]Val, len(t.Fields))
		for i, f := range t.Fields {
			out[i] = vm.decode(buf[offsets[i]:], f)
		}
		return Val{Agg: out}
	case ir.TArray, ir.TVector:
		step := dl.AllocSize(t.Elem)
		if t.Kind == ir.TVector {
			step = dl.StoreSize(t.Elem)
		}
		out := make([]Val, t.Len)
		for i := range out {
			out[i] = vm.decode(buf[int64(i)*step:], t.Elem)
		}
		return Val{Agg: out}
	}
	panic(fmt.Sprintf("vm: cannot load %s", t))
}

// zero returns the all-zero value of t.
func zero(t *ir.Type) Val {
	switch t.Kind {
	case ir.TStruct:
		out := make([]Val, len(t.Fields))
		for i, f := range t.Fields {
			out[i] = zero(f)
		}
		return Val{Agg: out}
	case ir.TArray, ir.TVector:
		out := make([]Val, t.Len)
		for i := range out {
			out[i] = zero(t.Elem)
		}
		return Val{Agg: out}
	}
	return Val{}
}

func undef(t *ir.Type) Val {
	if !t.IsAggregate() {
		return Val{Undef: true}
	}
	v := zero(t)
	for i := range v.Agg {
		v.Agg[i] = Val{Undef: true}
	}
	return v
}

func elem(v Val, i int) Val {
	if v.Undef || i >= len(v.Agg) {
		return Val{Undef: true}
	}
	return v.Agg[i]
}

// Load reads a t from memory at p.
func (vm *VM) Load(t *ir.Type, p Val) (Val, error) {
	buf, err := vm.bytesAt(p, int(vm.dl.StoreSize(t)))
	if err != nil {
		return Val{}, err
	}
	return vm.decode(buf, t), nil
}

// Store writes v as a t to memory at p.
func (vm *VM) Store(v Val, t *ir.Type, p Val) error {
	buf, err := vm.bytesAt(p, int(vm.dl.StoreSize(t)))
	if err != nil {
		return err
	}
	vm.encode(buf, v, t)
	return nil
}
