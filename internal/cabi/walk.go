package cabi

import "callgen/internal/ir"

// Visitor receives the scalar leaves of a foreign type in walk order.
type Visitor interface {
	VisitScalar(leaf *Type, offset int64)
}

// VisitorFunc adapts a function to Visitor.
type VisitorFunc func(leaf *Type, offset int64)

func (f VisitorFunc) VisitScalar(leaf *Type, offset int64) { f(leaf, offset) }

// Walk visits every scalar leaf of t starting at offset: array elements in
// order, struct fields in offset order, only the largest member of a union,
// and the real then imaginary part of a complex number. Expansion and
// marshalling both use this walk so leaf order always agrees.
func (c Context) Walk(t *Type, offset int64, v Visitor) {
	switch t.Kind {
	case KindInt, KindFloat, KindPointer:
		v.VisitScalar(t, offset)
	case KindArray:
		stride := c.SizeOf(t.Elem)
		for i := 0; i < t.Len; i++ {
			c.Walk(t.Elem, offset+int64(i)*stride, v)
		}
	case KindStruct:
		offsets := c.FieldOffsets(t)
		for i, f := range t.Fields {
			c.Walk(f, offset+offsets[i], v)
		}
	case KindUnion:
		if i := c.LargestField(t); i >= 0 {
			c.Walk(t.Fields[i], offset, v)
		}
	case KindComplex:
		c.Walk(t.Elem, offset, v)
		c.Walk(t.Elem, offset+c.SizeOf(t.Elem), v)
	}
}

// Leaf is one scalar position of an expansion.
type Leaf struct {
	Type   *Type
	Offset int64
}

// Leaves returns the scalar leaves of t in walk order.
func (c Context) Leaves(t *Type) []Leaf {
	var out []Leaf
	c.Walk(t, 0, VisitorFunc(func(leaf *Type, offset int64) {
		out = append(out, Leaf{Type: leaf, Offset: offset})
	}))
	return out
}

// ExpansionTypes returns the physical parameter types of an expanded t.
func (c Context) ExpansionTypes(t *Type) []*ir.Type {
	leaves := c.Leaves(t)
	out := make([]*ir.Type, len(leaves))
	for i, l := range leaves {
		out[i] = c.IRType(l.Type)
	}
	return out
}
