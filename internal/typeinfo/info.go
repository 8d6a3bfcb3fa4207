// Package typeinfo answers the per-type questions of call lowering: storage
// type, size and alignment, POD-ness, the in-memory scalar pieces, the
// explosion schema and the canonical foreign type.
package typeinfo

import (
	"callgen/internal/explosion"
	"callgen/internal/ir"
	"callgen/internal/layout"
	"callgen/internal/types"
)

// RefKind says how a piece participates in reference counting.
type RefKind uint8

const (
	RefNone RefKind = iota
	// RefStrong pieces are retained on copy and released on destroy.
	RefStrong
	// RefBlock pieces are foreign block references.
	RefBlock
)

// Piece is one scalar of a value's in-memory form.
type Piece struct {
	Type   *ir.Type
	Offset int64
	Ref    RefKind
}

// Info is the lowering view of one source type.
type Info struct {
	ID      types.TypeID
	Storage *ir.Type
	Layout  layout.TypeLayout
	// Pieces are the scalars of the in-memory value in offset order. Values
	// that stay in memory may list only their counted references; dynamic
	// layouts and unions list none.
	Pieces []Piece
	Schema *explosion.Schema
	POD    bool
	// Retainable values are exactly one strong reference.
	Retainable bool
	Signed     bool
}

// Fixed reports whether the size is statically known.
func (i *Info) Fixed() bool { return i.Layout.Fixed() }

// Size is the allocation size in bytes; zero when dynamic.
func (i *Info) Size() int64 { return int64(i.Layout.Size) }

// Align is the alignment in bytes.
func (i *Info) Align() int64 { return int64(i.Layout.Align) }

// Empty reports a fixed zero-sized type.
func (i *Info) Empty() bool { return i.Layout.Empty() }

// Loadable reports whether values travel as scalar pieces rather than by
// address.
func (i *Info) Loadable() bool { return !i.Schema.IsSingleAggregate() }

// HasRefs reports whether any piece is reference counted.
func (i *Info) HasRefs() bool {
	for _, p := range i.Pieces {
		if p.Ref != RefNone {
			return true
		}
	}
	return false
}
