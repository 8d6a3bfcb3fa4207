package ir

import "fmt"

// DataLayout answers size and alignment questions about physical types.
type DataLayout struct {
	PtrSize  int64
	PtrAlign int64
	I64Align int64
	F64Align int64
}

// StoreSize is the number of bytes a store of t writes.
func (dl DataLayout) StoreSize(t *Type) int64 {
	switch t.Kind {
	case TVoid:
		return 0
	case TInt:
		return int64(t.Bits+7) / 8
	case TFloat:
		return int64(t.Bits / 8)
	case TPtr:
		return dl.PtrSize
	case TArray:
		return int64(t.Len) * dl.AllocSize(t.Elem)
	case TVector:
		return int64(t.Len) * dl.StoreSize(t.Elem)
	case TStruct:
		_, size, _ := dl.StructLayout(t)
		return size
	}
	panic(fmt.Sprintf("ir: no size for %s", t))
}

// AllocSize is StoreSize rounded up to the alignment of t.
func (dl DataLayout) AllocSize(t *Type) int64 {
	return RoundUp(dl.StoreSize(t), dl.AlignOf(t))
}

// AlignOf returns the ABI alignment of t.
func (dl DataLayout) AlignOf(t *Type) int64 {
	switch t.Kind {
	case TVoid:
		return 1
	case TInt:
		switch n := dl.StoreSize(t); {
		case n <= 1:
			return 1
		case n <= 2:
			return 2
		case n <= 4:
			return 4
		case n <= 8:
			return dl.I64Align
		default:
			return max(dl.I64Align, 16)
		}
	case TFloat:
		if t.Bits == 32 {
			return 4
		}
		return dl.F64Align
	case TPtr:
		return dl.PtrAlign
	case TArray:
		return dl.AlignOf(t.Elem)
	case TVector:
		return nextPow2(dl.StoreSize(t))
	case TStruct:
		_, _, align := dl.StructLayout(t)
		return align
	}
	panic(fmt.Sprintf("ir: no alignment for %s", t))
}

// StructLayout returns field offsets, total size and alignment of a struct.
func (dl DataLayout) StructLayout(t *Type) ([]int64, int64, int64) {
	if t.Kind != TStruct {
		panic(fmt.Sprintf("ir: StructLayout of %s", t))
	}
	if t.IsOpaque() {
		panic(fmt.Sprintf("ir: layout of opaque type %s", t))
	}
	offsets := make([]int64, len(t.Fields))
	var off int64
	align := int64(1)
	for i, f := range t.Fields {
		fa := int64(1)
		if !t.Packed {
			fa = dl.AlignOf(f)
		}
		off = RoundUp(off, fa)
		offsets[i] = off
		off += dl.AllocSize(f)
		align = max(align, fa)
	}
	return offsets, RoundUp(off, align), align
}

// FieldOffset returns the byte offset of field i of struct t.
func (dl DataLayout) FieldOffset(t *Type, i int) int64 {
	offsets, _, _ := dl.StructLayout(t)
	return offsets[i]
}

// RoundUp rounds n up to a multiple of align (align > 0).
func RoundUp(n, align int64) int64 {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}

func nextPow2(n int64) int64 {
	p := int64(1)
	for p < n {
		p <<= 1
	}
	return p
}
