package types

// Field is a named member of a struct, union or class.
type Field struct {
	Name string
	Type TypeID
}

// TupleInfo stores the element types for a tuple type.
type TupleInfo struct {
	Elems []TypeID
}

// StructInfo describes a value struct.
type StructInfo struct {
	Name   string
	Fields []Field
	// AddressOnly structs are never exploded into scalars.
	AddressOnly bool
}

// UnionInfo describes a C union; every field starts at offset 0.
type UnionInfo struct {
	Name   string
	Fields []Field
}

// ClassInfo describes a reference type. Values are a single retainable pointer.
type ClassInfo struct {
	Name   string
	Fields []Field // stored after the object header
}

// RegisterTuple creates or finds a tuple type. An empty tuple is Unit.
func (in *Interner) RegisterTuple(elems []TypeID) TypeID {
	if len(elems) == 0 {
		return in.builtins.Unit
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	for id, tt := range in.types {
		if tt.Kind == KindTuple && equalIDs(in.tuples[tt.Payload].Elems, elems) {
			return TypeID(id)
		}
	}
	in.tuples = append(in.tuples, TupleInfo{Elems: cloneTypeArgs(elems)})
	return in.internLocked(Type{Kind: KindTuple, Payload: slotOf(len(in.tuples), "tuple info")})
}

// TupleInfo returns the element types for a tuple TypeID.
func (in *Interner) TupleInfo(id TypeID) (*TupleInfo, bool) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindTuple {
		return nil, false
	}
	in.mu.RLock()
	defer in.mu.RUnlock()
	return &in.tuples[tt.Payload], true
}

// RegisterStruct creates a new nominal struct. Fields may be filled later
// with SetStructFields to allow self-referencing declarations.
func (in *Interner) RegisterStruct(name string, fields []Field, addressOnly bool) TypeID {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.structs = append(in.structs, StructInfo{Name: name, Fields: cloneFields(fields), AddressOnly: addressOnly})
	return in.internLocked(Type{Kind: KindStruct, Payload: slotOf(len(in.structs), "struct info")})
}

// SetStructFields replaces the fields of a registered struct.
func (in *Interner) SetStructFields(id TypeID, fields []Field) {
	tt := in.MustLookup(id)
	if tt.Kind != KindStruct {
		panic("types: SetStructFields on non-struct")
	}
	in.mu.Lock()
	in.structs[tt.Payload].Fields = cloneFields(fields)
	in.mu.Unlock()
}

// StructInfo returns metadata for a struct TypeID.
func (in *Interner) StructInfo(id TypeID) (*StructInfo, bool) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindStruct {
		return nil, false
	}
	in.mu.RLock()
	defer in.mu.RUnlock()
	return &in.structs[tt.Payload], true
}

// RegisterUnion creates a new C-style union.
func (in *Interner) RegisterUnion(name string, fields []Field) TypeID {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.unions = append(in.unions, UnionInfo{Name: name, Fields: cloneFields(fields)})
	return in.internLocked(Type{Kind: KindUnion, Payload: slotOf(len(in.unions), "union info")})
}

// SetUnionFields replaces the members of a registered union.
func (in *Interner) SetUnionFields(id TypeID, fields []Field) {
	tt := in.MustLookup(id)
	if tt.Kind != KindUnion {
		panic("types: SetUnionFields on non-union")
	}
	in.mu.Lock()
	in.unions[tt.Payload].Fields = cloneFields(fields)
	in.mu.Unlock()
}

// UnionInfo returns metadata for a union TypeID.
func (in *Interner) UnionInfo(id TypeID) (*UnionInfo, bool) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindUnion {
		return nil, false
	}
	in.mu.RLock()
	defer in.mu.RUnlock()
	return &in.unions[tt.Payload], true
}

// RegisterClass creates a new reference type.
func (in *Interner) RegisterClass(name string, fields []Field) TypeID {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.classes = append(in.classes, ClassInfo{Name: name, Fields: cloneFields(fields)})
	return in.internLocked(Type{Kind: KindClass, Payload: slotOf(len(in.classes), "class info")})
}

// SetClassFields replaces the stored properties of a registered class.
func (in *Interner) SetClassFields(id TypeID, fields []Field) {
	tt := in.MustLookup(id)
	if tt.Kind != KindClass {
		panic("types: SetClassFields on non-class")
	}
	in.mu.Lock()
	in.classes[tt.Payload].Fields = cloneFields(fields)
	in.mu.Unlock()
}

// ClassInfo returns metadata for a class TypeID.
func (in *Interner) ClassInfo(id TypeID) (*ClassInfo, bool) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindClass {
		return nil, false
	}
	in.mu.RLock()
	defer in.mu.RUnlock()
	return &in.classes[tt.Payload], true
}

func cloneFields(fields []Field) []Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}

func equalIDs(a, b []TypeID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
