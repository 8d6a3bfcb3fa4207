package ir

import (
	"fmt"
	"strings"
)

func (m *Module) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; module %s\n", m.Name)
	for _, t := range m.NamedTypes() {
		fmt.Fprintf(&sb, "%%%s = type %s\n", t.Name, t.Body())
	}
	globals := m.Globals()
	if len(globals) > 0 {
		sb.WriteByte('\n')
	}
	for _, g := range globals {
		writeGlobal(&sb, g)
	}
	for _, f := range m.Functions() {
		sb.WriteByte('\n')
		sb.WriteString(f.String())
	}
	return sb.String()
}

func writeGlobal(sb *strings.Builder, g *Global) {
	kind := "global"
	if g.Constant {
		kind = "constant"
	}
	fmt.Fprintf(sb, "@%s = %s%s %s ", g.Name, linkagePrefix(g.Linkage), kind, g.Type)
	switch {
	case len(g.Init) == 0:
		sb.WriteString("zeroinitializer")
	case g.Type.Kind == TStruct:
		sb.WriteString("{ ")
		for i, v := range g.Init {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(v.String())
		}
		sb.WriteString(" }")
	default:
		sb.WriteString(g.Init[0].Ref())
	}
	sb.WriteByte('\n')
}

func linkagePrefix(l Linkage) string {
	if l == Internal {
		return "internal "
	}
	return ""
}

// Signature renders "ret (params)" with attributes, as in a declaration.
// A non-empty name is printed as "@name" before the parameter list.
func Signature(fnType *Type, attrs AttrSet, name string, names []string) string {
	var sb strings.Builder
	if len(attrs.Ret) > 0 {
		sb.WriteString(attrs.Ret.String())
		sb.WriteByte(' ')
	}
	sb.WriteString(fnType.Ret.String())
	if name != "" {
		sb.WriteString(" @" + name + "(")
	} else {
		sb.WriteString(" (")
	}
	for i, p := range fnType.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.String())
		if l := attrs.Param(i); len(l) > 0 {
			sb.WriteByte(' ')
			sb.WriteString(l.String())
		}
		if names != nil {
			sb.WriteString(" %" + names[i])
		}
	}
	sb.WriteByte(')')
	return sb.String()
}

func (f *Function) String() string {
	var sb strings.Builder
	if f.Comment != "" {
		for _, line := range strings.Split(f.Comment, "\n") {
			sb.WriteString("; " + line + "\n")
		}
	}
	if !f.Defined {
		fmt.Fprintf(&sb, "declare %s %s\n", f.CC, Signature(f.Type, f.Attrs, f.Name, nil))
		return sb.String()
	}
	names := make([]string, len(f.Params))
	for i, p := range f.Params {
		names[i] = p.Name
	}
	header := Signature(f.Type, f.Attrs, f.Name, names)
	fmt.Fprintf(&sb, "define %s%s %s {\nentry:\n", linkagePrefix(f.Linkage), f.CC, header)
	for _, in := range f.Body {
		sb.WriteString("  ")
		sb.WriteString(in.String())
		sb.WriteByte('\n')
	}
	sb.WriteString("}\n")
	return sb.String()
}

func (in *Instr) String() string {
	var sb strings.Builder
	if in.Result != nil {
		fmt.Fprintf(&sb, "%%%s = ", in.Result.Name)
	}
	ops := in.Operands
	switch in.Op {
	case OpAlloca:
		fmt.Fprintf(&sb, "alloca %s, align %d", in.Ty, in.Align)
	case OpLoad:
		fmt.Fprintf(&sb, "load %s, %s, align %d", in.Ty, ops[0], in.Align)
	case OpStore:
		fmt.Fprintf(&sb, "store %s, %s, align %d", ops[0], ops[1], in.Align)
	case OpBitcast:
		fmt.Fprintf(&sb, "bitcast %s to %s", ops[0], in.Ty)
	case OpByteOffset:
		fmt.Fprintf(&sb, "getelementptr inbounds i8, %s, i64 %d ; as %s", ops[0], in.Offset, in.Ty)
	case OpExtractValue:
		fmt.Fprintf(&sb, "extractvalue %s, %d", ops[0], in.Index)
	case OpInsertValue:
		fmt.Fprintf(&sb, "insertvalue %s, %s, %d", ops[0], ops[1], in.Index)
	case OpMemcpy:
		fmt.Fprintf(&sb, "call void @llvm.memcpy(%s, %s, i64 %d)", ops[0], ops[1], in.Size)
	case OpCall:
		c := in.Call
		if c.Tail {
			sb.WriteString("tail ")
		}
		fmt.Fprintf(&sb, "call %s ", c.CC)
		if len(c.Attrs.Ret) > 0 {
			sb.WriteString(c.Attrs.Ret.String() + " ")
		}
		fmt.Fprintf(&sb, "%s %s(", c.FnType.Ret, c.Callee.Ref())
		for i, a := range ops {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(a.Type.String())
			if l := c.Attrs.Param(i); len(l) > 0 {
				sb.WriteString(" " + l.String())
			}
			sb.WriteString(" " + a.Ref())
		}
		sb.WriteByte(')')
	case OpRet:
		if len(ops) == 0 {
			sb.WriteString("ret void")
		} else {
			fmt.Fprintf(&sb, "ret %s", ops[0])
		}
	default:
		sb.WriteString(in.Op.String())
	}
	return sb.String()
}
