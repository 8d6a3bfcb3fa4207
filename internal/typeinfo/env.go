package typeinfo

import (
	"fmt"

	"callgen/internal/types"
)

// Env is a generic context: type info queries made through it may mention
// only the generic parameters it binds.
type Env struct {
	c      *Converter
	params map[types.TypeID]bool
}

// Scope opens a generic context binding generics.
func (c *Converter) Scope(generics []types.TypeID) *Env {
	env := &Env{c: c, params: make(map[types.TypeID]bool, len(generics))}
	for _, g := range generics {
		env.params[g] = true
	}
	return env
}

// Converter returns the underlying converter.
func (e *Env) Converter() *Converter { return e.c }

// Info returns the info of id, panicking when id mentions a generic
// parameter that is not bound in e.
func (e *Env) Info(id types.TypeID) *Info {
	if g, ok := e.unbound(id, make(map[types.TypeID]bool)); ok {
		panic(fmt.Sprintf("abi: generic parameter %s used outside its generic context", e.c.Types.TypeString(g)))
	}
	return e.c.Must(id)
}

func (e *Env) unbound(id types.TypeID, seen map[types.TypeID]bool) (types.TypeID, bool) {
	if seen[id] {
		return types.NoTypeID, false
	}
	seen[id] = true
	in := e.c.Types
	tt, ok := in.Lookup(id)
	if !ok {
		return types.NoTypeID, false
	}
	var children []types.TypeID
	switch tt.Kind {
	case types.KindGenericParam:
		if !e.params[id] {
			return id, true
		}
	case types.KindArray, types.KindComplex, types.KindMetatype:
		children = []types.TypeID{tt.Elem}
	case types.KindTuple:
		ti, _ := in.TupleInfo(id)
		children = ti.Elems
	case types.KindStruct:
		si, _ := in.StructInfo(id)
		for _, f := range si.Fields {
			children = append(children, f.Type)
		}
	case types.KindUnion:
		ui, _ := in.UnionInfo(id)
		for _, f := range ui.Fields {
			children = append(children, f.Type)
		}
	}
	for _, ch := range children {
		if g, bad := e.unbound(ch, seen); bad {
			return g, true
		}
	}
	return types.NoTypeID, false
}
