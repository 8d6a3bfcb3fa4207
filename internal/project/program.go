package project

import (
	"errors"
	"fmt"
	"strings"

	"callgen/internal/diag"
	"callgen/internal/layout"
	"callgen/internal/project/dag"
	"callgen/internal/source"
	"callgen/internal/types"
)

// DefaultTriple is used when [target] names no triple.
const DefaultTriple = "x86_64-unknown-linux-gnu"

// Func is a declared function.
type Func struct {
	Name string
	Type types.TypeID
	Loc  source.Loc
}

// Partial is a declared partial application.
type Partial struct {
	Name     string
	Func     *Func
	Subst    types.TypeID
	Captured []int
	// Context is the convention of the resulting closure's context.
	Context types.Convention
	Dynamic bool
	Loc     source.Loc
}

// Program is a manifest resolved against a fresh type interner.
type Program struct {
	Manifest *Manifest
	Types    *types.Interner
	Target   layout.Target
	Funcs    []*Func
	Partials []*Partial

	// LayoutOrder lists structs and unions, each after the ones it contains.
	LayoutOrder []types.TypeID

	nominals map[string]types.TypeID
	parsed   map[string]types.TypeID
}

// Program resolves every declaration of the manifest.
func (m *Manifest) Program() (*Program, error) {
	tgt, err := m.target()
	if err != nil {
		return nil, err
	}
	p := &Program{
		Manifest: m,
		Types:    types.NewInterner(),
		Target:   tgt,
		nominals: make(map[string]types.TypeID),
		parsed:   make(map[string]types.TypeID),
	}
	if err := p.declareNominals(); err != nil {
		return nil, err
	}
	funcs := make(map[string]*Func, len(m.Config.Funcs))
	for i, fc := range m.Config.Funcs {
		loc := m.loc("func", i, "func "+fc.Name)
		id, err := p.ParseType(fc.Type)
		if err != nil {
			return nil, m.errorf(typeErrorCode(err), "func", i, loc.Entity, "%w", err)
		}
		if _, ok := p.Types.FnInfo(id); !ok {
			return nil, m.errorf(diag.ManSyntax, "func", i, loc.Entity, "%s is not a function type", p.Types.TypeString(id))
		}
		f := &Func{Name: fc.Name, Type: id, Loc: loc}
		funcs[fc.Name] = f
		p.Funcs = append(p.Funcs, f)
	}
	for i, pc := range m.Config.Partials {
		part, err := p.partial(i, pc, funcs[pc.Func])
		if err != nil {
			return nil, err
		}
		p.Partials = append(p.Partials, part)
	}
	return p, nil
}

func (m *Manifest) loc(table string, i int, entity string) source.Loc {
	return source.Loc{File: m.Path, Line: m.Line(table, i), Entity: entity}
}

func (m *Manifest) target() (layout.Target, error) {
	tc := m.Config.Target
	triple := tc.Triple
	if triple == "" {
		triple = DefaultTriple
	}
	tgt, err := layout.ForTriple(triple)
	if err != nil {
		return layout.Target{}, &ManifestError{Code: diag.ManBadTarget, Path: m.Path, What: "target", Err: err}
	}
	if tc.MaxDirectResult < 0 || tc.MaxDirectParam < 0 {
		return layout.Target{}, &ManifestError{Code: diag.ManBadTarget, Path: m.Path, What: "target", Err: fmt.Errorf("scalar limits must not be negative")}
	}
	if tc.MaxDirectResult > 0 {
		tgt.MaxScalarsForDirectResult = tc.MaxDirectResult
	}
	if tc.MaxDirectParam > 0 {
		tgt.MaxScalarsForDirectParam = tc.MaxDirectParam
	}
	if tc.DedicatedErrorRegister != nil {
		tgt.DedicatedErrorRegister = *tc.DedicatedErrorRegister
	}
	return tgt, nil
}

// declareNominals registers every name first so that declarations may
// refer to each other in any order, then fills in the fields.
func (p *Program) declareNominals() error {
	m := p.Manifest
	in := p.Types
	for _, s := range m.Config.Structs {
		p.nominals[s.Name] = in.RegisterStruct(s.Name, nil, s.AddressOnly)
	}
	for _, c := range m.Config.Classes {
		p.nominals[c.Name] = in.RegisterClass(c.Name, nil)
	}
	for _, u := range m.Config.Unions {
		p.nominals[u.Name] = in.RegisterUnion(u.Name, nil)
	}
	fill := []struct {
		table string
		list  []NominalConfig
		set   func(types.TypeID, []types.Field)
	}{
		{"struct", m.Config.Structs, in.SetStructFields},
		{"class", m.Config.Classes, in.SetClassFields},
		{"union", m.Config.Unions, in.SetUnionFields},
	}
	for _, group := range fill {
		for i, n := range group.list {
			fields := make([]types.Field, 0, len(n.Fields))
			for _, src := range n.Fields {
				name, tySrc, ok := strings.Cut(src, ":")
				name = strings.TrimSpace(name)
				if !ok || name == "" {
					return m.errorf(diag.ManSyntax, group.table, i, group.table+" "+n.Name, "field %q is not \"name: Type\"", src)
				}
				ty, err := p.ParseType(strings.TrimSpace(tySrc))
				if err != nil {
					return m.errorf(typeErrorCode(err), group.table, i, group.table+" "+n.Name, "field %s: %w", name, err)
				}
				fields = append(fields, types.Field{Name: name, Type: ty})
			}
			group.set(p.nominals[n.Name], fields)
		}
	}
	return p.orderNominals()
}

// orderNominals rejects structs and unions that contain themselves by
// value and records an order in which each follows what it contains.
func (p *Program) orderNominals() error {
	m := p.Manifest
	var names []string
	deps := make(map[string][]string)
	for _, group := range [][]NominalConfig{m.Config.Structs, m.Config.Unions} {
		for _, n := range group {
			names = append(names, n.Name)
			id := p.nominals[n.Name]
			var fields []types.Field
			if info, ok := p.Types.StructInfo(id); ok {
				fields = info.Fields
			} else if info, ok := p.Types.UnionInfo(id); ok {
				fields = info.Fields
			}
			for _, f := range fields {
				deps[n.Name] = p.containedNominals(f.Type, deps[n.Name])
			}
		}
	}
	idx := dag.BuildIndex(names)
	g, problems := dag.BuildGraph(idx, deps)
	if len(problems) > 0 {
		return &ManifestError{Code: diag.ManUnknownType, Path: m.Path, Err: problems[0]}
	}
	topo := dag.ToposortKahn(g)
	if topo.Cyclic {
		cycle := idx.Names(topo.Cycles)
		return &ManifestError{Code: diag.ManRecursiveValue, Path: m.Path, What: cycle[0], Err: fmt.Errorf("infinite size: %s contain each other by value", strings.Join(cycle, ", "))}
	}
	for _, name := range idx.Names(topo.Order) {
		p.LayoutOrder = append(p.LayoutOrder, p.nominals[name])
	}
	return nil
}

// containedNominals appends the structs and unions stored inline in a value
// of type id.
func (p *Program) containedNominals(id types.TypeID, out []string) []string {
	in := p.Types
	tt, ok := in.Lookup(id)
	if !ok {
		return out
	}
	switch tt.Kind {
	case types.KindStruct:
		info, _ := in.StructInfo(id)
		out = append(out, info.Name)
	case types.KindUnion:
		info, _ := in.UnionInfo(id)
		out = append(out, info.Name)
	case types.KindTuple:
		info, _ := in.TupleInfo(id)
		for _, e := range info.Elems {
			out = p.containedNominals(e, out)
		}
	case types.KindArray, types.KindComplex:
		out = p.containedNominals(tt.Elem, out)
	}
	return out
}

func (p *Program) partial(i int, pc PartialConfig, fn *Func) (*Partial, error) {
	m := p.Manifest
	in := p.Types
	what := "partial " + pc.Name
	part := &Partial{
		Name:     pc.Name,
		Func:     fn,
		Subst:    fn.Type,
		Captured: pc.Captured,
		Context:  types.ConvDirectOwned,
		Dynamic:  pc.Dynamic,
		Loc:      m.loc("partial", i, what),
	}
	if pc.Subst != "" {
		id, err := p.ParseType(pc.Subst)
		if err != nil {
			return nil, m.errorf(typeErrorCode(err), "partial", i, what, "subst: %w", err)
		}
		part.Subst = id
	}
	if pc.Context != "" {
		c, ok := types.ParseConvention(strings.TrimPrefix(pc.Context, "@"))
		if !ok || c.IsIndirect() || c == types.ConvDirectDeallocating {
			return nil, m.errorf(diag.ManBadConvention, "partial", i, what, "bad context convention %q", pc.Context)
		}
		part.Context = c
	}

	orig := in.MustFnInfo(fn.Type)
	subst, ok := in.FnInfo(part.Subst)
	if !ok {
		return nil, m.errorf(diag.ManBadPartial, "partial", i, what, "subst %s is not a function type", in.TypeString(part.Subst))
	}
	if len(subst.Generics) > 0 {
		return nil, m.errorf(diag.ManBadPartial, "partial", i, what, "%s must be applied at concrete types; add subst", fn.Name)
	}
	if len(subst.Params) != len(orig.Params) || subst.Repr != orig.Repr || subst.HasSelf != orig.HasSelf || subst.Throws() != orig.Throws() {
		return nil, m.errorf(diag.ManBadPartial, "partial", i, what, "subst %s does not match %s", in.TypeString(part.Subst), in.TypeString(fn.Type))
	}
	prev := -1
	for _, c := range pc.Captured {
		if c <= prev || c >= len(subst.Params) {
			return nil, m.errorf(diag.ManBadPartial, "partial", i, what, "captured %v must be ascending positions below %d", pc.Captured, len(subst.Params))
		}
		switch subst.Params[c].Convention {
		case types.ConvIndirectOut:
			return nil, m.errorf(diag.ManBadPartial, "partial", i, what, "parameter %d is the indirect result", c)
		case types.ConvDirectDeallocating:
			return nil, m.errorf(diag.ManBadPartial, "partial", i, what, "parameter %d cannot be captured", c)
		}
		prev = c
	}
	return part, nil
}

// ParseType parses a type in manifest syntax against the declared names.
// Equal sources yield the same TypeID.
func (p *Program) ParseType(src string) (types.TypeID, error) {
	if id, ok := p.parsed[src]; ok {
		return id, nil
	}
	tp := &typeParser{
		in: p.Types,
		lookup: func(name string) (types.TypeID, bool) {
			id, ok := p.nominals[name]
			return id, ok
		},
		errType: p.errorType,
	}
	id, err := tp.parse(src)
	if err != nil {
		return types.NoTypeID, err
	}
	p.parsed[src] = id
	return id, nil
}

// errorType is the type of a bare "throws": the class Error, declared on
// first use unless the manifest declares it.
func (p *Program) errorType() types.TypeID {
	id, ok := p.nominals["Error"]
	if !ok {
		id = p.Types.RegisterClass("Error", nil)
		p.nominals["Error"] = id
	}
	return id
}

// Func returns the declared function called name.
func (p *Program) Func(name string) (*Func, bool) {
	for _, f := range p.Funcs {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// AddFunc declares one more function whose type is given in manifest
// syntax. It is how types named on the command line join a program.
func (p *Program) AddFunc(name, src string) (*Func, error) {
	if _, dup := p.Func(name); dup {
		return nil, fmt.Errorf("function %q already declared", name)
	}
	id, err := p.ParseType(src)
	if err != nil {
		return nil, err
	}
	if _, ok := p.Types.FnInfo(id); !ok {
		return nil, fmt.Errorf("%s is not a function type", p.Types.TypeString(id))
	}
	f := &Func{Name: name, Type: id, Loc: source.Loc{Entity: "type " + src}}
	p.Funcs = append(p.Funcs, f)
	return f, nil
}

// typeErrorCode classifies an error from ParseType.
func typeErrorCode(err error) diag.Code {
	var serr *TypeSyntaxError
	if errors.As(err, &serr) {
		switch {
		case strings.HasPrefix(serr.Msg, "unknown type"):
			return diag.ManUnknownType
		case strings.Contains(serr.Msg, "convention"):
			return diag.ManBadConvention
		}
	}
	return diag.ManSyntax
}
