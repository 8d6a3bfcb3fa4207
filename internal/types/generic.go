package types

// GenericInfo describes a generic type parameter.
type GenericInfo struct {
	Name  string
	Index int
	// ClassBound parameters are always one retainable pointer.
	ClassBound bool
	// Conformances each add one witness-table parameter to polymorphic signatures.
	Conformances []string
}

// RegisterGeneric creates a new generic parameter. Every call yields a
// distinct TypeID even for equal names.
func (in *Interner) RegisterGeneric(name string, index int, classBound bool, conformances []string) TypeID {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.generics = append(in.generics, GenericInfo{
		Name:         name,
		Index:        index,
		ClassBound:   classBound,
		Conformances: append([]string(nil), conformances...),
	})
	return in.internLocked(Type{Kind: KindGenericParam, Payload: slotOf(len(in.generics), "generic info")})
}

// GenericInfo returns metadata for a generic parameter TypeID.
func (in *Interner) GenericInfo(id TypeID) (*GenericInfo, bool) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindGenericParam {
		return nil, false
	}
	in.mu.RLock()
	defer in.mu.RUnlock()
	return &in.generics[tt.Payload], true
}

// HasTypeParams reports whether id mentions a generic parameter.
func (in *Interner) HasTypeParams(id TypeID) bool {
	return in.hasTypeParams(id, make(map[TypeID]bool))
}

func (in *Interner) hasTypeParams(id TypeID, seen map[TypeID]bool) bool {
	if seen[id] {
		return false
	}
	seen[id] = true
	tt, ok := in.Lookup(id)
	if !ok {
		return false
	}
	switch tt.Kind {
	case KindGenericParam:
		return true
	case KindArray, KindComplex, KindMetatype:
		return in.hasTypeParams(tt.Elem, seen)
	case KindTuple:
		info, _ := in.TupleInfo(id)
		for _, e := range info.Elems {
			if in.hasTypeParams(e, seen) {
				return true
			}
		}
	case KindStruct:
		info, _ := in.StructInfo(id)
		for _, f := range info.Fields {
			if in.hasTypeParams(f.Type, seen) {
				return true
			}
		}
	case KindFn:
		fi, _ := in.FnInfo(id)
		if len(fi.Generics) > 0 || in.hasTypeParams(fi.Result, seen) {
			return true
		}
		for _, p := range fi.Params {
			if in.hasTypeParams(p.Type, seen) {
				return true
			}
		}
	}
	return false
}
