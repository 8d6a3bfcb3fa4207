package ir

import (
	"fmt"
	"sort"
	"strings"
)

// AttrKind enumerates parameter and return attributes.
type AttrKind uint8

const (
	AttrNoAlias AttrKind = iota
	AttrNoCapture
	AttrDereferenceable
	AttrByVal
	AttrAlign
	AttrSRet
	AttrSExt
	AttrZExt
	AttrSelf  // context register
	AttrError // error register
)

var attrNames = [...]string{
	AttrNoAlias:         "noalias",
	AttrNoCapture:       "nocapture",
	AttrDereferenceable: "dereferenceable",
	AttrByVal:           "byval",
	AttrAlign:           "align",
	AttrSRet:            "sret",
	AttrSExt:            "signext",
	AttrZExt:            "zeroext",
	AttrSelf:            "ctxself",
	AttrError:           "ctxerror",
}

func (k AttrKind) String() string {
	if int(k) < len(attrNames) {
		return attrNames[k]
	}
	return fmt.Sprintf("AttrKind(%d)", k)
}

// Attr is one attribute; N carries the dereferenceable byte count or the
// alignment, Type the pointee of byval/sret.
type Attr struct {
	Kind AttrKind
	N    int64
	Type *Type
}

func (a Attr) String() string {
	switch a.Kind {
	case AttrDereferenceable, AttrAlign:
		return fmt.Sprintf("%s(%d)", a.Kind, a.N)
	case AttrByVal, AttrSRet:
		if a.Type != nil {
			return fmt.Sprintf("%s(%s)", a.Kind, a.Type)
		}
	}
	return a.Kind.String()
}

// AttrList is the attribute list of one position, ordered by kind.
type AttrList []Attr

// Has reports whether the list carries kind.
func (l AttrList) Has(kind AttrKind) bool {
	_, ok := l.Get(kind)
	return ok
}

// Get returns the attribute of the given kind.
func (l AttrList) Get(kind AttrKind) (Attr, bool) {
	for _, a := range l {
		if a.Kind == kind {
			return a, true
		}
	}
	return Attr{}, false
}

func (l AttrList) String() string {
	parts := make([]string, len(l))
	for i, a := range l {
		parts[i] = a.String()
	}
	return strings.Join(parts, " ")
}

func (l AttrList) with(a Attr) AttrList {
	for i := range l {
		if l[i].Kind == a.Kind {
			out := append(AttrList(nil), l...)
			out[i] = a
			return out
		}
	}
	out := append(append(AttrList(nil), l...), a)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// AttrSet holds the attributes of a function signature or call site.
type AttrSet struct {
	Ret    AttrList
	Params map[int]AttrList
}

// AddParam attaches a to physical parameter i, replacing an attribute of the
// same kind.
func (s *AttrSet) AddParam(i int, a Attr) {
	if s.Params == nil {
		s.Params = make(map[int]AttrList)
	}
	s.Params[i] = s.Params[i].with(a)
}

// AddRet attaches a to the return value.
func (s *AttrSet) AddRet(a Attr) {
	s.Ret = s.Ret.with(a)
}

// Param returns the attributes of physical parameter i.
func (s AttrSet) Param(i int) AttrList {
	return s.Params[i]
}

// HasParam reports whether parameter i carries kind.
func (s AttrSet) HasParam(i int, kind AttrKind) bool {
	return s.Params[i].Has(kind)
}

// Clone returns a deep copy.
func (s AttrSet) Clone() AttrSet {
	out := AttrSet{Ret: append(AttrList(nil), s.Ret...)}
	if s.Params != nil {
		out.Params = make(map[int]AttrList, len(s.Params))
		for i, l := range s.Params {
			out.Params[i] = append(AttrList(nil), l...)
		}
	}
	return out
}

// Equal compares two attribute sets.
func (s AttrSet) Equal(o AttrSet) bool {
	if !equalAttrLists(s.Ret, o.Ret) {
		return false
	}
	for i, l := range s.Params {
		if !equalAttrLists(l, o.Params[i]) {
			return false
		}
	}
	for i, l := range o.Params {
		if !equalAttrLists(l, s.Params[i]) {
			return false
		}
	}
	return true
}

func equalAttrLists(a, b AttrList) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Kind != b[i].Kind || a[i].N != b[i].N || !sameAttrType(a[i].Type, b[i].Type) {
			return false
		}
	}
	return true
}

func sameAttrType(a, b *Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(b)
}

// CallConv is the calling convention of a function or call.
type CallConv uint8

const (
	CCC      CallConv = iota // platform C
	CCNative                 // native convention with context and error registers
)

func (c CallConv) String() string {
	if c == CCNative {
		return "nativecc"
	}
	return "ccc"
}
