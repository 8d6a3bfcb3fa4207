package explosion

import (
	"fmt"
	"strings"

	"callgen/internal/ir"
)

// ElementKind tags a schema element.
type ElementKind uint8

const (
	// Scalar is a single register-sized piece.
	Scalar ElementKind = iota
	// Aggregate is a value that stays in memory; its piece is a pointer.
	Aggregate
)

// Element is one position of a schema.
type Element struct {
	Kind ElementKind
	Type *ir.Type
}

func ScalarElement(t *ir.Type) Element {
	if !t.IsScalar() {
		panic(fmt.Sprintf("explosion: scalar element of non-scalar %s", t))
	}
	return Element{Kind: Scalar, Type: t}
}

func AggregateElement(t *ir.Type) Element {
	return Element{Kind: Aggregate, Type: t}
}

// PieceType is the type the element has inside an explosion.
func (el Element) PieceType() *ir.Type {
	if el.Kind == Aggregate {
		return ir.PtrTo(el.Type)
	}
	return el.Type
}

// Limits are the platform thresholds for direct passing.
type Limits struct {
	MaxScalarsForDirectResult int
	MaxScalarsForDirectParam  int
}

// Storage describes the in-memory form of the value.
type Storage struct {
	Type  *ir.Type
	Size  int64
	Fixed bool
}

// Schema is the immutable decomposition of one type.
type Schema struct {
	elems   []Element
	limits  Limits
	storage Storage
}

func NewSchema(limits Limits, storage Storage, elems ...Element) *Schema {
	return &Schema{
		elems:   append([]Element(nil), elems...),
		limits:  limits,
		storage: storage,
	}
}

// Len is the number of elements.
func (s *Schema) Len() int { return len(s.elems) }

// Element returns element i.
func (s *Schema) Element(i int) Element { return s.elems[i] }

// Elements returns a copy of all elements.
func (s *Schema) Elements() []Element { return append([]Element(nil), s.elems...) }

// Storage returns the in-memory description.
func (s *Schema) Storage() Storage { return s.storage }

// ContainsAggregate reports whether any element stays in memory.
func (s *Schema) ContainsAggregate() bool {
	for _, el := range s.elems {
		if el.Kind == Aggregate {
			return true
		}
	}
	return false
}

// IsSingleAggregate reports whether the value is represented by its address.
func (s *Schema) IsSingleAggregate() bool {
	return len(s.elems) == 1 && s.elems[0].Kind == Aggregate
}

// RequiresIndirectResult reports whether a result of this type is returned
// through a caller-provided buffer.
func (s *Schema) RequiresIndirectResult() bool {
	return s.ContainsAggregate() || len(s.elems) > s.limits.MaxScalarsForDirectResult
}

// RequiresIndirectParameter reports whether a parameter of this type is
// passed by address.
func (s *Schema) RequiresIndirectParameter() bool {
	return s.ContainsAggregate() || len(s.elems) > s.limits.MaxScalarsForDirectParam
}

// ScalarResultType is the logical type of a direct result: void, the single
// scalar, or a literal struct of all scalars.
func (s *Schema) ScalarResultType() *ir.Type {
	switch len(s.elems) {
	case 0:
		return ir.Void
	case 1:
		return s.elems[0].PieceType()
	}
	fields := make([]*ir.Type, len(s.elems))
	for i, el := range s.elems {
		fields[i] = el.PieceType()
	}
	return ir.StructOf(fields...)
}

// AddToArgTypes appends the physical parameters of a value of this type to
// out, registering attributes in attrs, and returns the extended list.
func (s *Schema) AddToArgTypes(attrs *ir.AttrSet, out []*ir.Type) []*ir.Type {
	if s.RequiresIndirectParameter() {
		idx := len(out)
		attrs.AddParam(idx, ir.Attr{Kind: ir.AttrNoAlias})
		attrs.AddParam(idx, ir.Attr{Kind: ir.AttrNoCapture})
		// a zero-sized buffer may be a dangling address
		if s.storage.Fixed && s.storage.Size > 0 {
			attrs.AddParam(idx, ir.Attr{Kind: ir.AttrDereferenceable, N: s.storage.Size})
		}
		return append(out, ir.PtrTo(s.storage.Type))
	}
	for _, el := range s.elems {
		out = append(out, el.PieceType())
	}
	return out
}

func (s *Schema) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, el := range s.elems {
		if i > 0 {
			sb.WriteString(", ")
		}
		if el.Kind == Aggregate {
			sb.WriteString("agg ")
		}
		sb.WriteString(el.Type.String())
	}
	sb.WriteByte(']')
	return sb.String()
}
