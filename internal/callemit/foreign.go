package callemit

import (
	"fmt"

	"callgen/internal/cabi"
	"callgen/internal/explosion"
	"callgen/internal/ir"
	"callgen/internal/irgen"
	"callgen/internal/typeinfo"
)

// LoadWalk loads every scalar leaf of a C type from memory at Base.
type LoadWalk struct {
	F    *irgen.Func
	Base *ir.Value
	Out  *explosion.Explosion
}

func (w *LoadWalk) VisitScalar(leaf *cabi.Type, offset int64) {
	t := w.F.M.CABI().IRType(leaf)
	w.Out.Add(w.F.B.Load(t, w.F.B.ByteOffset(w.Base, offset, t)))
}

// StoreWalk stores one claimed value per scalar leaf of a C type to Base.
type StoreWalk struct {
	F    *irgen.Func
	Base *ir.Value
	In   *explosion.Explosion
}

func (w *StoreWalk) VisitScalar(leaf *cabi.Type, offset int64) {
	t := w.F.M.CABI().IRType(leaf)
	v := w.In.Claim()
	if !v.Type.Equal(t) {
		panic(fmt.Sprintf("callemit: storing %s into a %s leaf", v.Type, t))
	}
	w.F.B.Store(v, w.F.B.ByteOffset(w.Base, offset, t))
}

// LoadForeign appends the expansion of the C value at addr to out.
func LoadForeign(f *irgen.Func, addr *ir.Value, t *cabi.Type, out *explosion.Explosion) {
	f.M.CABI().Walk(t, 0, &LoadWalk{F: f, Base: f.B.Bitcast(addr, ir.I8Ptr), Out: out})
}

// StoreForeign claims the expansion of a C value from in and stores it to addr.
func StoreForeign(f *irgen.Func, in *explosion.Explosion, addr *ir.Value, t *cabi.Type) {
	f.M.CABI().Walk(t, 0, &StoreWalk{F: f, Base: f.B.Bitcast(addr, ir.I8Ptr), In: in})
}

// ExpansionMatchesSchema reports whether the scalar leaves of a C type line
// up one to one with the explosion of info, so that values can move
// between the two without a memory round trip. Pointers match pointers.
func ExpansionMatchesSchema(ctx cabi.Context, t *cabi.Type, info *typeinfo.Info) bool {
	if !info.Loadable() {
		return false
	}
	return matchTypes(ctx.ExpansionTypes(t), info.Schema)
}

func matchTypes(leaves []*ir.Type, schema *explosion.Schema) bool {
	if len(leaves) != schema.Len() {
		return false
	}
	for i, leaf := range leaves {
		el := schema.Element(i)
		if el.Kind != explosion.Scalar || !sameScalar(leaf, el.Type) {
			return false
		}
	}
	return true
}

func sameScalar(a, b *ir.Type) bool {
	if a.IsPointer() && b.IsPointer() {
		return true
	}
	return a.Equal(b)
}
