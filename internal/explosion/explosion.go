// Package explosion holds the scalar decomposition of values during lowering.
//
// An Explosion is the ordered list of pieces of one or more logical values;
// a Schema is the static description of how a type decomposes, and answers
// whether a value of that type is passed or returned indirectly.
package explosion

import (
	"fmt"

	"callgen/internal/ir"
)

// Explosion is an ordered, restartable sequence of pieces consumed strictly
// left to right.
type Explosion struct {
	values []*ir.Value
	next   int
}

// New returns an explosion holding vals.
func New(vals ...*ir.Value) *Explosion {
	return &Explosion{values: append([]*ir.Value(nil), vals...)}
}

// Add appends pieces.
func (e *Explosion) Add(vals ...*ir.Value) {
	for _, v := range vals {
		if v == nil {
			panic("explosion: nil piece")
		}
	}
	e.values = append(e.values, vals...)
}

// Claim returns the next unclaimed piece.
func (e *Explosion) Claim() *ir.Value {
	if e.next >= len(e.values) {
		panic(fmt.Sprintf("explosion: claim past end (%d pieces)", len(e.values)))
	}
	v := e.values[e.next]
	e.next++
	return v
}

// ClaimN returns the next n pieces.
func (e *Explosion) ClaimN(n int) []*ir.Value {
	if e.next+n > len(e.values) {
		panic(fmt.Sprintf("explosion: claim of %d with %d remaining", n, e.Remaining()))
	}
	out := e.values[e.next : e.next+n : e.next+n]
	e.next += n
	return out
}

// ClaimAll returns every unclaimed piece.
func (e *Explosion) ClaimAll() []*ir.Value {
	return e.ClaimN(e.Remaining())
}

// TransferInto moves the next n pieces into dst.
func (e *Explosion) TransferInto(dst *Explosion, n int) {
	dst.Add(e.ClaimN(n)...)
}

// Size is the total number of pieces, claimed or not.
func (e *Explosion) Size() int { return len(e.values) }

// Remaining is the number of unclaimed pieces.
func (e *Explosion) Remaining() int { return len(e.values) - e.next }

// Empty reports whether every piece has been claimed.
func (e *Explosion) Empty() bool { return e.Remaining() == 0 }

// Values returns the unclaimed pieces without claiming them.
func (e *Explosion) Values() []*ir.Value {
	return append([]*ir.Value(nil), e.values[e.next:]...)
}

// Reset restarts claiming from the first piece.
func (e *Explosion) Reset() { e.next = 0 }

// AssertEmpty panics when pieces were left unclaimed.
func (e *Explosion) AssertEmpty() {
	if n := e.Remaining(); n != 0 {
		panic(fmt.Sprintf("explosion: %d unclaimed pieces", n))
	}
}
