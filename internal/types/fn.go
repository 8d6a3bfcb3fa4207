package types //nolint:revive

import (
	"fmt"
	"strings"
)

// Convention says how one formal parameter is passed.
type Convention uint8

const (
	ConvDirectGuaranteed Convention = iota // borrowed, callee does not destroy
	ConvDirectOwned                        // callee consumes
	ConvDirectUnowned                      // +0 with no lifetime guarantee
	ConvDirectDeallocating                 // value already dead (destructor self)
	ConvIndirectIn                         // owned, by address, callee destroys
	ConvIndirectInGuaranteed               // borrowed, by address
	ConvIndirectInout                      // mutable reference, aliasing unspecified
	ConvIndirectOut                        // result storage, only as parameter 0
)

var convNames = [...]string{
	ConvDirectGuaranteed:     "guaranteed",
	ConvDirectOwned:          "owned",
	ConvDirectUnowned:        "unowned",
	ConvDirectDeallocating:   "deallocating",
	ConvIndirectIn:           "in",
	ConvIndirectInGuaranteed: "in_guaranteed",
	ConvIndirectInout:        "inout",
	ConvIndirectOut:          "out",
}

func (c Convention) String() string {
	if int(c) < len(convNames) {
		return convNames[c]
	}
	return fmt.Sprintf("Convention(%d)", c)
}

// ParseConvention maps a convention name (without '@') to its value.
func ParseConvention(s string) (Convention, bool) {
	for i, name := range convNames {
		if name == s {
			return Convention(i), true
		}
	}
	return 0, false
}

// IsIndirect reports whether the parameter is always passed as one pointer.
func (c Convention) IsIndirect() bool {
	return c >= ConvIndirectIn
}

// IsConsumed reports whether the callee takes ownership of the value.
func (c Convention) IsConsumed() bool {
	return c == ConvDirectOwned || c == ConvIndirectIn || c == ConvDirectDeallocating
}

// IsGuaranteed reports whether the caller keeps the value alive across the call.
func (c Convention) IsGuaranteed() bool {
	return c == ConvDirectGuaranteed || c == ConvIndirectInGuaranteed
}

// Representation is the calling-convention family of a function value.
type Representation uint8

const (
	ReprThin             Representation = iota // bare code pointer
	ReprThick                                  // code pointer + context
	ReprBlock                                  // foreign block object
	ReprCFunctionPointer                       // foreign C function
	ReprObjCMethod                             // foreign method with self + selector
	ReprWitnessMethod                          // protocol requirement implementation
	ReprMethod                                 // native method
)

var reprNames = [...]string{
	ReprThin:             "thin",
	ReprThick:            "thick",
	ReprBlock:            "block",
	ReprCFunctionPointer: "c",
	ReprObjCMethod:       "objc_method",
	ReprWitnessMethod:    "witness_method",
	ReprMethod:           "method",
}

func (r Representation) String() string {
	if int(r) < len(reprNames) {
		return reprNames[r]
	}
	return fmt.Sprintf("Representation(%d)", r)
}

// ParseRepresentation maps a representation name to its value.
func ParseRepresentation(s string) (Representation, bool) {
	for i, name := range reprNames {
		if name == s {
			return Representation(i), true
		}
	}
	return 0, false
}

// IsForeign reports whether calls follow the platform C ABI.
func (r Representation) IsForeign() bool {
	return r == ReprBlock || r == ReprCFunctionPointer || r == ReprObjCMethod
}

// Param is one formal parameter of a function type.
type Param struct {
	Type       TypeID
	Convention Convention
}

// FnInfo stores metadata for function types.
type FnInfo struct {
	Repr    Representation
	Params  []Param
	Result  TypeID // Unit for "()"
	Error   TypeID // NoTypeID unless the function can fail
	HasSelf bool   // the last parameter is self
	// Generics lists the generic parameters the signature is polymorphic over.
	Generics []TypeID
	// Context is the convention of the context of a thick function.
	Context Convention
}

// Throws reports whether the function declares an error result.
func (fi *FnInfo) Throws() bool { return fi.Error != NoTypeID }

// SelfParam returns the self parameter, if any.
func (fi *FnInfo) SelfParam() (Param, bool) {
	if !fi.HasSelf || len(fi.Params) == 0 {
		return Param{}, false
	}
	return fi.Params[len(fi.Params)-1], true
}

// HasIndirectOut reports whether parameter 0 is result storage.
func (fi *FnInfo) HasIndirectOut() bool {
	return len(fi.Params) > 0 && fi.Params[0].Convention == ConvIndirectOut
}

// RegisterFn creates or finds a function type.
func (in *Interner) RegisterFn(info FnInfo) TypeID {
	if info.Result == NoTypeID {
		info.Result = in.builtins.Unit
	}
	for i, p := range info.Params {
		if p.Convention == ConvIndirectOut && i != 0 {
			panic(fmt.Sprintf("types: indirect-out parameter at position %d", i))
		}
	}
	key := fnKey(&info)

	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.fnIndex[key]; ok {
		return id
	}
	in.fns = append(in.fns, FnInfo{
		Repr:     info.Repr,
		Params:   append([]Param(nil), info.Params...),
		Result:   info.Result,
		Error:    info.Error,
		HasSelf:  info.HasSelf,
		Generics: cloneTypeArgs(info.Generics),
		Context:  info.Context,
	})
	id := in.internLocked(Type{Kind: KindFn, Payload: slotOf(len(in.fns), "fn info")})
	in.fnIndex[key] = id
	return id
}

// FnInfo retrieves function type metadata by TypeID.
func (in *Interner) FnInfo(id TypeID) (*FnInfo, bool) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindFn {
		return nil, false
	}
	in.mu.RLock()
	defer in.mu.RUnlock()
	return &in.fns[tt.Payload], true
}

// MustFnInfo panics when id is not a function type.
func (in *Interner) MustFnInfo(id TypeID) *FnInfo {
	fi, ok := in.FnInfo(id)
	if !ok {
		panic(fmt.Sprintf("types: TypeID %d is not a function type", id))
	}
	return fi
}

func fnKey(info *FnInfo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d|%d|%d|%t|%d|", info.Repr, info.Result, info.Error, info.HasSelf, info.Context)
	for _, p := range info.Params {
		fmt.Fprintf(&sb, "%d:%d,", p.Type, p.Convention)
	}
	sb.WriteByte('|')
	for _, g := range info.Generics {
		fmt.Fprintf(&sb, "%d,", g)
	}
	return sb.String()
}
