package layout

import (
	"fortio.org/safecast"

	"callgen/internal/types"
)

func (e *LayoutEngine) computeLayout(id types.TypeID, state *layoutState) (TypeLayout, *LayoutError) {
	tt, ok := e.Types.Lookup(id)
	if !ok {
		return TypeLayout{Align: 1}, &LayoutError{Kind: LayoutErrUnsupported, Type: id}
	}
	ptr := TypeLayout{Size: e.Target.PtrSize, Align: e.Target.PtrAlign}

	switch tt.Kind {
	case types.KindUnit:
		return TypeLayout{Size: 0, Align: 1}, nil
	case types.KindBool:
		return TypeLayout{Size: 1, Align: 1}, nil
	case types.KindInt, types.KindUint:
		return e.intLayout(tt.Width), nil
	case types.KindFloat:
		if tt.Width == types.Width32 {
			return TypeLayout{Size: 4, Align: 4}, nil
		}
		return TypeLayout{Size: 8, Align: e.Target.F64Align}, nil
	case types.KindRawPointer, types.KindClass:
		return ptr, nil
	case types.KindMetatype:
		if tt.Thin {
			return TypeLayout{Size: 0, Align: 1}, nil
		}
		return ptr, nil
	case types.KindFn:
		fi := e.Types.MustFnInfo(id)
		if fi.Repr == types.ReprThick {
			return TypeLayout{Size: 2 * e.Target.PtrSize, Align: e.Target.PtrAlign, FieldOffsets: []int{0, e.Target.PtrSize}}, nil
		}
		return ptr, nil
	case types.KindGenericParam:
		info, _ := e.Types.GenericInfo(id)
		if info.ClassBound {
			return ptr, nil
		}
		return TypeLayout{Align: 1, Dynamic: true}, nil
	case types.KindTuple:
		info, _ := e.Types.TupleInfo(id)
		return e.sequentialLayout(info.Elems, state)
	case types.KindStruct:
		info, _ := e.Types.StructInfo(id)
		elems := make([]types.TypeID, len(info.Fields))
		for i, f := range info.Fields {
			elems[i] = f.Type
		}
		return e.sequentialLayout(elems, state)
	case types.KindUnion:
		return e.unionLayout(id, state)
	case types.KindComplex:
		return e.sequentialLayout([]types.TypeID{tt.Elem, tt.Elem}, state)
	case types.KindArray:
		return e.arrayLayout(id, tt, state)
	}
	return TypeLayout{Align: 1}, &LayoutError{Kind: LayoutErrUnsupported, Type: id}
}

func (e *LayoutEngine) intLayout(w types.Width) TypeLayout {
	switch w {
	case types.Width8:
		return TypeLayout{Size: 1, Align: 1}
	case types.Width16:
		return TypeLayout{Size: 2, Align: 2}
	case types.Width32:
		return TypeLayout{Size: 4, Align: 4}
	case types.Width64:
		return TypeLayout{Size: 8, Align: e.Target.I64Align}
	}
	if e.Target.PtrSize == 4 {
		return TypeLayout{Size: 4, Align: 4}
	}
	return TypeLayout{Size: 8, Align: e.Target.I64Align}
}

// sequentialLayout places fields in order at their natural alignment.
func (e *LayoutEngine) sequentialLayout(elems []types.TypeID, state *layoutState) (TypeLayout, *LayoutError) {
	out := TypeLayout{Align: 1, FieldOffsets: make([]int, len(elems))}
	offset := 0
	for i, el := range elems {
		fl, err := e.layoutOf(el, state)
		if err != nil {
			return TypeLayout{Align: 1}, err
		}
		if fl.Dynamic {
			out.Dynamic = true
		}
		offset = roundUpInt(offset, fl.Align)
		out.FieldOffsets[i] = offset
		offset += fl.Size
		out.Align = max(out.Align, fl.Align)
	}
	if out.Dynamic {
		return TypeLayout{Align: 1, Dynamic: true}, nil
	}
	out.Size = roundUpInt(offset, out.Align)
	return out, nil
}

func (e *LayoutEngine) unionLayout(id types.TypeID, state *layoutState) (TypeLayout, *LayoutError) {
	info, _ := e.Types.UnionInfo(id)
	out := TypeLayout{Align: 1}
	for _, f := range info.Fields {
		fl, err := e.layoutOf(f.Type, state)
		if err != nil {
			return TypeLayout{Align: 1}, err
		}
		if fl.Dynamic {
			return TypeLayout{Align: 1, Dynamic: true}, nil
		}
		out.Size = max(out.Size, fl.Size)
		out.Align = max(out.Align, fl.Align)
	}
	out.Size = roundUpInt(out.Size, out.Align)
	return out, nil
}

func (e *LayoutEngine) arrayLayout(id types.TypeID, tt types.Type, state *layoutState) (TypeLayout, *LayoutError) {
	el, err := e.layoutOf(tt.Elem, state)
	if err != nil {
		return TypeLayout{Align: 1}, err
	}
	if el.Dynamic {
		return TypeLayout{Align: 1, Dynamic: true}, nil
	}
	count, convErr := safecast.Conv[int](tt.Count)
	if convErr != nil {
		return TypeLayout{Align: 1}, &LayoutError{Kind: LayoutErrLengthConversion, Type: id, Err: convErr}
	}
	stride := roundUpInt(el.Size, el.Align)
	if count > 0 && stride > (1<<40)/count {
		return TypeLayout{Align: 1}, &LayoutError{Kind: LayoutErrLengthConversion, Type: id}
	}
	return TypeLayout{Size: stride * count, Align: el.Align}, nil
}

func roundUpInt(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}
