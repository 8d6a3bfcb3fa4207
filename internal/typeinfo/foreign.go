package typeinfo

import (
	"fmt"

	"callgen/internal/cabi"
	"callgen/internal/types"
)

type foreignEntry struct {
	t   *cabi.Type
	err error
}

// Foreign returns the canonical C type of id. Thick functions and generic
// parameters have no C equivalent.
func (c *Converter) Foreign(id types.TypeID) (*cabi.Type, error) {
	c.mu.Lock()
	e, ok := c.foreign[id]
	c.mu.Unlock()
	if ok {
		return e.t, e.err
	}
	t, err := c.toForeign(id)
	c.mu.Lock()
	c.foreign[id] = foreignEntry{t: t, err: err}
	c.mu.Unlock()
	return t, err
}

// MustForeign is Foreign for types already validated by the caller.
func (c *Converter) MustForeign(id types.TypeID) *cabi.Type {
	t, err := c.Foreign(id)
	if err != nil {
		panic("abi: " + err.Error())
	}
	return t
}

func (c *Converter) toForeign(id types.TypeID) (*cabi.Type, error) {
	if _, err := c.Layout.LayoutOf(id); err != nil {
		return nil, err
	}
	tt := c.Types.MustLookup(id)
	ptrBits := c.Layout.Target.IntPtrBits()
	switch tt.Kind {
	case types.KindUnit:
		return cabi.StructOf(""), nil
	case types.KindBool:
		return cabi.Int(1, false), nil
	case types.KindInt, types.KindUint:
		bits := int(tt.Width)
		if tt.Width == types.WidthAny {
			bits = ptrBits
		}
		return cabi.Int(bits, tt.Kind == types.KindInt), nil
	case types.KindFloat:
		if tt.Width == types.Width32 {
			return cabi.Float(), nil
		}
		return cabi.Double(), nil
	case types.KindRawPointer, types.KindClass:
		return cabi.Pointer(), nil
	case types.KindMetatype:
		if tt.Thin {
			return cabi.StructOf(""), nil
		}
		return cabi.Pointer(), nil
	case types.KindFn:
		if c.Types.MustFnInfo(id).Repr == types.ReprThick {
			break
		}
		return cabi.Pointer(), nil
	case types.KindGenericParam:
		if g, _ := c.Types.GenericInfo(id); g.ClassBound {
			return cabi.Pointer(), nil
		}
	case types.KindTuple:
		ti, _ := c.Types.TupleInfo(id)
		fields, err := c.foreignList(ti.Elems)
		if err != nil {
			return nil, err
		}
		return cabi.StructOf("", fields...), nil
	case types.KindStruct:
		si, _ := c.Types.StructInfo(id)
		fields, err := c.foreignFields(si.Fields)
		if err != nil {
			return nil, err
		}
		return cabi.StructOf(si.Name, fields...), nil
	case types.KindUnion:
		ui, _ := c.Types.UnionInfo(id)
		fields, err := c.foreignFields(ui.Fields)
		if err != nil {
			return nil, err
		}
		return cabi.UnionOf(ui.Name, fields...), nil
	case types.KindArray:
		el, err := c.Foreign(tt.Elem)
		if err != nil {
			return nil, err
		}
		return cabi.ArrayOf(el, int(tt.Count)), nil
	case types.KindComplex:
		el, err := c.Foreign(tt.Elem)
		if err != nil {
			return nil, err
		}
		return cabi.ComplexOf(el), nil
	}
	return nil, fmt.Errorf("%s has no C representation", c.Types.TypeString(id))
}

func (c *Converter) foreignFields(fields []types.Field) ([]*cabi.Type, error) {
	ids := make([]types.TypeID, len(fields))
	for i, f := range fields {
		ids[i] = f.Type
	}
	return c.foreignList(ids)
}

func (c *Converter) foreignList(ids []types.TypeID) ([]*cabi.Type, error) {
	out := make([]*cabi.Type, len(ids))
	for i, id := range ids {
		t, err := c.Foreign(id)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}
