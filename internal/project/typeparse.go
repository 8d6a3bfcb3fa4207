package project

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"fortio.org/safecast"

	"callgen/internal/types"
)

// TypeSyntaxError reports a malformed type string.
type TypeSyntaxError struct {
	Src string
	Pos int // byte offset into Src
	Msg string
}

func (e *TypeSyntaxError) Error() string {
	return fmt.Sprintf("type %q at %d: %s", e.Src, e.Pos, e.Msg)
}

type tokKind uint8

const (
	tokEOF tokKind = iota
	tokIdent
	tokInt
	tokAttr  // @name
	tokPunct // ( ) < > [ ] , : & . ->
)

type token struct {
	kind tokKind
	text string
	pos  int
}

func lexType(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		r := rune(src[i])
		switch {
		case r == ' ' || r == '\t' || r == '\n':
			i++
		case r == '-' && strings.HasPrefix(src[i:], "->"):
			toks = append(toks, token{tokPunct, "->", i})
			i += 2
		case strings.ContainsRune("()<>[],:&.", r):
			toks = append(toks, token{tokPunct, string(r), i})
			i++
		case r == '@' || r == '_' || unicode.IsLetter(r):
			start := i
			i++
			for i < len(src) && (src[i] == '_' || unicode.IsLetter(rune(src[i])) || unicode.IsDigit(rune(src[i]))) {
				i++
			}
			kind := tokIdent
			if r == '@' {
				kind = tokAttr
				if i == start+1 {
					return nil, &TypeSyntaxError{Src: src, Pos: start, Msg: "empty attribute"}
				}
			}
			toks = append(toks, token{kind, src[start:i], start})
		case unicode.IsDigit(r):
			start := i
			for i < len(src) && unicode.IsDigit(rune(src[i])) {
				i++
			}
			toks = append(toks, token{tokInt, src[start:i], start})
		default:
			return nil, &TypeSyntaxError{Src: src, Pos: i, Msg: fmt.Sprintf("unexpected %q", r)}
		}
	}
	return append(toks, token{tokEOF, "", len(src)}), nil
}

// typeParser reads the syntax types.TypeString prints.
type typeParser struct {
	in     *types.Interner
	lookup func(name string) (types.TypeID, bool)
	// errType is the error type of a bare "throws".
	errType func() types.TypeID

	src   string
	toks  []token
	pos   int
	scope []map[string]types.TypeID
}

type syntaxPanic struct{ err *TypeSyntaxError }

func (p *typeParser) failf(format string, args ...any) {
	panic(syntaxPanic{&TypeSyntaxError{Src: p.src, Pos: p.peek().pos, Msg: fmt.Sprintf(format, args...)}})
}

func (p *typeParser) parse(src string) (id types.TypeID, err error) {
	toks, err := lexType(src)
	if err != nil {
		return types.NoTypeID, err
	}
	p.src, p.toks, p.pos = src, toks, 0
	defer func() {
		if r := recover(); r != nil {
			sp, ok := r.(syntaxPanic)
			if !ok {
				panic(r)
			}
			id, err = types.NoTypeID, sp.err
		}
	}()
	id = p.parseType()
	if p.peek().kind != tokEOF {
		p.failf("unexpected %q after type", p.peek().text)
	}
	return id, nil
}

func (p *typeParser) peek() token { return p.toks[p.pos] }

func (p *typeParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *typeParser) is(kind tokKind, text string) bool {
	t := p.peek()
	return t.kind == kind && t.text == text
}

func (p *typeParser) accept(kind tokKind, text string) bool {
	if p.is(kind, text) {
		p.pos++
		return true
	}
	return false
}

func (p *typeParser) expect(text string) {
	if !p.accept(tokPunct, text) {
		p.failf("expected %q, found %q", text, p.peek().text)
	}
}

func (p *typeParser) ident() string {
	t := p.next()
	if t.kind != tokIdent {
		p.failf("expected a name, found %q", t.text)
	}
	return t.text
}

func (p *typeParser) parseType() types.TypeID {
	t := p.peek()
	switch {
	case t.kind == tokAttr && t.text == "@thin":
		p.next()
		inst := p.parseNamed()
		if !p.accept(tokPunct, ".") || p.ident() != "Type" {
			p.failf("@thin applies to metatypes only")
		}
		return p.in.Intern(types.MakeMetatype(inst, true))
	case t.kind == tokAttr, p.is(tokPunct, "<"):
		return p.parseFn()
	case p.is(tokPunct, "("):
		return p.parseParenthesized()
	case p.is(tokPunct, "["):
		p.next()
		n := p.next()
		if n.kind != tokInt {
			p.failf("expected an array length")
		}
		raw, err := strconv.ParseUint(n.text, 10, 64)
		if err != nil {
			p.failf("array length %s: %v", n.text, err)
		}
		count, err := safecast.Conv[uint32](raw)
		if err != nil {
			p.failf("array length %s: %v", n.text, err)
		}
		if p.ident() != "x" {
			p.failf("expected 'x' in array type")
		}
		elem := p.parseType()
		p.expect("]")
		return p.in.Intern(types.MakeArray(elem, count))
	}
	id := p.parseNamed()
	for p.is(tokPunct, ".") {
		p.next()
		if p.ident() != "Type" {
			p.failf("expected .Type")
		}
		id = p.in.Intern(types.MakeMetatype(id, false))
	}
	return id
}

func (p *typeParser) parseNamed() types.TypeID {
	name := p.ident()
	if name == "Complex" && p.accept(tokPunct, "<") {
		elem := p.parseType()
		p.expect(">")
		return p.in.Intern(types.MakeComplex(elem))
	}
	for i := len(p.scope) - 1; i >= 0; i-- {
		if id, ok := p.scope[i][name]; ok {
			return id
		}
	}
	if id, ok := builtinType(p.in, name); ok {
		return id
	}
	if id, ok := p.lookup(name); ok {
		return id
	}
	p.pos--
	p.failf("unknown type %q", name)
	return types.NoTypeID
}

func builtinType(in *types.Interner, name string) (types.TypeID, bool) {
	b := in.Builtins()
	switch name {
	case "Bool":
		return b.Bool, true
	case "Int":
		return b.Int, true
	case "Int8":
		return b.Int8, true
	case "Int16":
		return b.Int16, true
	case "Int32":
		return b.Int32, true
	case "Int64":
		return b.Int64, true
	case "UInt":
		return in.Intern(types.MakeUint(types.WidthAny)), true
	case "UInt8":
		return b.UInt8, true
	case "UInt16":
		return b.UInt16, true
	case "UInt32":
		return b.UInt32, true
	case "UInt64":
		return b.UInt64, true
	case "Float":
		return b.Float, true
	case "Double":
		return b.Double, true
	case "RawPointer":
		return b.RawPointer, true
	}
	return types.NoTypeID, false
}

// item is one entry of a parenthesized list.
type item struct {
	param  types.Param
	self   bool
	marked bool // carried a convention or a self label
}

func (p *typeParser) parseItems() []item {
	p.expect("(")
	var items []item
	for !p.accept(tokPunct, ")") {
		if len(items) > 0 {
			p.expect(",")
		}
		var it item
		if p.is(tokIdent, "self") && p.toks[p.pos+1].text == ":" {
			p.pos += 2
			it.self, it.marked = true, true
		}
		if t := p.peek(); t.kind == tokAttr && t.text != "@thin" && t.text != "@convention" && t.text != "@context" {
			conv, ok := types.ParseConvention(t.text[1:])
			if !ok {
				p.failf("unknown convention %s", t.text)
			}
			p.next()
			it.param.Convention, it.marked = conv, true
		}
		it.param.Type = p.parseType()
		items = append(items, it)
	}
	return items
}

func (p *typeParser) parseParenthesized() types.TypeID {
	start := p.pos
	items := p.parseItems()
	if p.is(tokIdent, "throws") || p.is(tokPunct, "->") {
		p.pos = start
		return p.parseFn()
	}
	for _, it := range items {
		if it.marked {
			p.failf("conventions apply to function parameters only")
		}
	}
	switch len(items) {
	case 0:
		return p.in.Builtins().Unit
	case 1:
		return items[0].param.Type
	}
	elems := make([]types.TypeID, len(items))
	for i, it := range items {
		elems[i] = it.param.Type
	}
	return p.in.RegisterTuple(elems)
}

func (p *typeParser) parseFn() types.TypeID {
	fi := types.FnInfo{Repr: types.ReprThin}
	for p.peek().kind == tokAttr {
		attr := p.next().text
		p.expect("(")
		arg := p.ident()
		p.expect(")")
		switch attr {
		case "@convention":
			r, ok := types.ParseRepresentation(arg)
			if !ok {
				p.failf("unknown convention(%s)", arg)
			}
			fi.Repr = r
		case "@context":
			c, ok := types.ParseConvention(arg)
			if !ok || c.IsIndirect() {
				p.failf("bad context convention %s", arg)
			}
			fi.Context = c
		default:
			p.failf("unknown function attribute %s", attr)
		}
	}
	if p.accept(tokPunct, "<") {
		scope := make(map[string]types.TypeID)
		p.scope = append(p.scope, scope)
		defer func() { p.scope = p.scope[:len(p.scope)-1] }()
		for i := 0; !p.accept(tokPunct, ">"); i++ {
			if i > 0 {
				p.expect(",")
			}
			name := p.ident()
			if _, dup := scope[name]; dup {
				p.failf("generic parameter %s declared twice", name)
			}
			var classBound bool
			var conformances []string
			if p.accept(tokPunct, ":") {
				for {
					c := p.ident()
					if c == "AnyObject" {
						classBound = true
					} else {
						conformances = append(conformances, c)
					}
					if !p.accept(tokPunct, "&") {
						break
					}
				}
			}
			g := p.in.RegisterGeneric(name, i, classBound, conformances)
			scope[name] = g
			fi.Generics = append(fi.Generics, g)
		}
	}
	items := p.parseItems()
	for i, it := range items {
		if it.self {
			if i != len(items)-1 {
				p.failf("self must be the last parameter")
			}
			fi.HasSelf = true
		}
		if it.param.Convention == types.ConvIndirectOut && i != 0 {
			p.failf("@out must be the first parameter")
		}
		fi.Params = append(fi.Params, it.param)
	}
	if p.accept(tokIdent, "throws") {
		if p.is(tokPunct, "->") {
			fi.Error = p.errType()
		} else {
			fi.Error = p.parseType()
		}
	}
	p.expect("->")
	fi.Result = p.parseType()
	return p.in.RegisterFn(fi)
}
