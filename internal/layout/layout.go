package layout

import (
	"callgen/internal/types"
)

// TypeLayout is the storage layout of a type for a specific Target.
type TypeLayout struct {
	Size  int
	Align int

	// Dynamic layouts depend on a generic substitution; Size and Align are
	// meaningless and values live behind an opaque pointer.
	Dynamic bool

	// Tuple/struct/complex only.
	FieldOffsets []int
}

// Fixed reports whether the size is statically known.
func (l TypeLayout) Fixed() bool { return !l.Dynamic }

// Empty reports a fixed layout of zero bytes.
func (l TypeLayout) Empty() bool { return !l.Dynamic && l.Size == 0 }

// LayoutEngine computes memory layout for source types. Safe for concurrent use.
type LayoutEngine struct {
	Target Target
	Types  *types.Interner

	cache *cache
}

// New creates a new LayoutEngine for the specified target.
func New(target Target, typesIn *types.Interner) *LayoutEngine {
	return &LayoutEngine{
		Target: target,
		Types:  typesIn,
		cache:  newCache(),
	}
}

type layoutState struct {
	stack []types.TypeID
	index map[types.TypeID]int
}

func newLayoutState() *layoutState {
	return &layoutState{index: make(map[types.TypeID]int, 16)}
}

// LayoutOf computes and caches the layout of a type.
func (e *LayoutEngine) LayoutOf(t types.TypeID) (TypeLayout, error) {
	l, err := e.layoutOf(t, newLayoutState())
	if err != nil {
		return l, err
	}
	return l, nil
}

// MustLayoutOf panics on layout errors. Callers use it after the type has
// been validated once with LayoutOf.
func (e *LayoutEngine) MustLayoutOf(t types.TypeID) TypeLayout {
	l, err := e.LayoutOf(t)
	if err != nil {
		panic("layout: " + err.Error())
	}
	return l
}

func (e *LayoutEngine) layoutOf(t types.TypeID, state *layoutState) (TypeLayout, *LayoutError) {
	if cached, ok := e.cache.get(t); ok {
		return cached.Layout, cached.Err
	}

	if idx, ok := state.index[t]; ok {
		cycle := append([]types.TypeID(nil), state.stack[idx:]...)
		cycle = append(cycle, t)
		err := &LayoutError{Kind: LayoutErrRecursiveUnsized, Type: t, Cycle: cycle}
		return TypeLayout{Align: 1}, err
	}

	state.index[t] = len(state.stack)
	state.stack = append(state.stack, t)
	l, err := e.computeLayout(t, state)
	state.stack = state.stack[:len(state.stack)-1]
	delete(state.index, t)

	e.cache.put(t, cacheEntry{Layout: l, Err: err})
	return l, err
}

// SizeOf returns the size of a type in bytes.
func (e *LayoutEngine) SizeOf(t types.TypeID) (int, error) {
	l, err := e.LayoutOf(t)
	return l.Size, err
}

// AlignOf returns the alignment requirement of a type in bytes.
func (e *LayoutEngine) AlignOf(t types.TypeID) (int, error) {
	l, err := e.LayoutOf(t)
	return l.Align, err
}

// FieldOffset returns the byte offset of a struct or tuple field.
func (e *LayoutEngine) FieldOffset(t types.TypeID, fieldIdx int) (int, error) {
	l, err := e.LayoutOf(t)
	if err != nil {
		return 0, err
	}
	if fieldIdx < 0 || fieldIdx >= len(l.FieldOffsets) {
		return 0, nil
	}
	return l.FieldOffsets[fieldIdx], nil
}
