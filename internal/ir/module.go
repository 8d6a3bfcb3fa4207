package ir

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Linkage of a function or global.
type Linkage uint8

const (
	External Linkage = iota
	Internal
)

// Function is a declaration or a straight-line definition.
type Function struct {
	Name    string
	Type    *Type
	Params  []*Value
	Attrs   AttrSet
	CC      CallConv
	Linkage Linkage
	Defined bool
	Body    []*Instr
	Comment string

	nextTmp int
	ref     *Value
}

// Value returns the address of f.
func (f *Function) Value() *Value {
	return f.ref
}

func (f *Function) tmpName() string {
	name := fmt.Sprintf("%d", f.nextTmp)
	f.nextTmp++
	return name
}

// Global is a module-level constant or variable.
type Global struct {
	Name     string
	Type     *Type
	Init     []*Value // one per struct field, or a single value
	Constant bool
	Linkage  Linkage

	ref *Value
}

// Value returns the address of g.
func (g *Global) Value() *Value { return g.ref }

// Module owns functions, globals and named struct types. Declaration and
// naming are safe for concurrent use; building a single function body is not.
type Module struct {
	Name   string
	Layout DataLayout

	mu      sync.Mutex
	funcs   []*Function
	globals []*Global
	named   []*Type
	symbols map[string]bool
	counter map[string]int
	types   map[string]*Type
}

func NewModule(name string, dl DataLayout) *Module {
	return &Module{
		Name:    name,
		Layout:  dl,
		symbols: make(map[string]bool),
		counter: make(map[string]int),
		types:   make(map[string]*Type),
	}
}

// NamedType returns the named struct called name, creating it with fields
// on first use. A nil fields list creates an opaque type.
func (m *Module) NamedType(name string, fields ...*Type) *Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.types[name]; ok {
		return t
	}
	t := &Type{Kind: TStruct, Name: name}
	if fields != nil {
		t.Fields = append([]*Type{}, fields...)
	}
	m.types[name] = t
	m.named = append(m.named, t)
	return t
}

// LookupType returns a previously created named type.
func (m *Module) LookupType(name string) (*Type, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.types[name]
	return t, ok
}

// Declare returns the external function name, declaring it on first use.
func (m *Module) Declare(name string, fnType *Type, cc CallConv, attrs AttrSet) *Function {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.funcs {
		if f.Name == name {
			if !f.Type.Equal(fnType) {
				panic(fmt.Sprintf("ir: %s redeclared as %s, was %s", name, fnType, f.Type))
			}
			return f
		}
	}
	f := newFunction(name, fnType, cc, attrs, External)
	m.symbols[name] = true
	m.funcs = append(m.funcs, f)
	return f
}

// Define creates a function with a body under a unique name derived from base.
func (m *Module) Define(base string, fnType *Type, cc CallConv, attrs AttrSet, linkage Linkage) *Function {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := newFunction(m.uniqueLocked(base), fnType, cc, attrs, linkage)
	f.Defined = true
	m.funcs = append(m.funcs, f)
	return f
}

func newFunction(name string, fnType *Type, cc CallConv, attrs AttrSet, linkage Linkage) *Function {
	if fnType.Kind != TFunc {
		panic(fmt.Sprintf("ir: function %s has non-function type %s", name, fnType))
	}
	f := &Function{
		Name:    name,
		Type:    fnType,
		Attrs:   attrs.Clone(),
		CC:      cc,
		Linkage: linkage,
	}
	f.ref = &Value{Kind: VFunc, Type: PtrTo(fnType), Func: f}
	f.Params = make([]*Value, len(fnType.Params))
	for i, pt := range fnType.Params {
		f.Params[i] = &Value{Kind: VParam, Type: pt, Index: i, Name: f.tmpName()}
	}
	return f
}

// AddGlobal creates a global under a unique name derived from base.
func (m *Module) AddGlobal(base string, t *Type, init []*Value, constant bool) *Global {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := &Global{
		Name:     m.uniqueLocked(base),
		Type:     t,
		Init:     init,
		Constant: constant,
		Linkage:  Internal,
	}
	g.ref = &Value{Kind: VGlobal, Type: PtrTo(t), Global: g}
	m.globals = append(m.globals, g)
	return g
}

// Mark records how many functions and globals m holds.
type Mark struct{ funcs, globals int }

// Mark returns the current position for Rollback.
func (m *Module) Mark() Mark {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Mark{funcs: len(m.funcs), globals: len(m.globals)}
}

// Rollback drops the functions and globals created since mark, as after a
// body that could not be finished. Their names stay reserved.
func (m *Module) Rollback(mark Mark) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mark.funcs < len(m.funcs) {
		m.funcs = m.funcs[:mark.funcs]
	}
	if mark.globals < len(m.globals) {
		m.globals = m.globals[:mark.globals]
	}
}

// Function returns the function called name.
func (m *Module) Function(name string) (*Function, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.funcs {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Functions returns all functions in creation order.
func (m *Module) Functions() []*Function {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Function(nil), m.funcs...)
}

// Globals returns all globals in creation order.
func (m *Module) Globals() []*Global {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Global(nil), m.globals...)
}

// NamedTypes returns named struct types sorted by name.
func (m *Module) NamedTypes() []*Type {
	m.mu.Lock()
	out := append([]*Type(nil), m.named...)
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// UniqueName returns a symbol name derived from base that is unused in m.
func (m *Module) UniqueName(base string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uniqueLocked(base)
}

func (m *Module) uniqueLocked(base string) string {
	name := SymbolName(base)
	if !m.symbols[name] {
		m.symbols[name] = true
		return name
	}
	for {
		m.counter[name]++
		cand := fmt.Sprintf("%s.%d", name, m.counter[name])
		if !m.symbols[cand] {
			m.symbols[cand] = true
			return cand
		}
	}
}

// SymbolName normalizes s to NFC and replaces characters that are not
// letters, digits, '_', '.' or '$' with '_'.
func SymbolName(s string) string {
	s = norm.NFC.String(s)
	var sb strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', r == '.', r == '$':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	if sb.Len() == 0 {
		return "_"
	}
	return sb.String()
}
