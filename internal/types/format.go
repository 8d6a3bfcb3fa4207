package types

import (
	"fmt"
	"strings"
)

// TypeString renders id in manifest syntax.
func (in *Interner) TypeString(id TypeID) string {
	var sb strings.Builder
	in.writeType(&sb, id)
	return sb.String()
}

func (in *Interner) writeType(sb *strings.Builder, id TypeID) {
	tt, ok := in.Lookup(id)
	if !ok {
		sb.WriteString("<invalid>")
		return
	}
	switch tt.Kind {
	case KindUnit:
		sb.WriteString("()")
	case KindBool:
		sb.WriteString("Bool")
	case KindInt:
		if tt.Width == WidthAny {
			sb.WriteString("Int")
		} else {
			fmt.Fprintf(sb, "Int%d", tt.Width)
		}
	case KindUint:
		if tt.Width == WidthAny {
			sb.WriteString("UInt")
		} else {
			fmt.Fprintf(sb, "UInt%d", tt.Width)
		}
	case KindFloat:
		if tt.Width == Width32 {
			sb.WriteString("Float")
		} else {
			sb.WriteString("Double")
		}
	case KindRawPointer:
		sb.WriteString("RawPointer")
	case KindTuple:
		info, _ := in.TupleInfo(id)
		sb.WriteByte('(')
		for i, e := range info.Elems {
			if i > 0 {
				sb.WriteString(", ")
			}
			in.writeType(sb, e)
		}
		sb.WriteByte(')')
	case KindStruct:
		info, _ := in.StructInfo(id)
		sb.WriteString(info.Name)
	case KindUnion:
		info, _ := in.UnionInfo(id)
		sb.WriteString(info.Name)
	case KindClass:
		info, _ := in.ClassInfo(id)
		sb.WriteString(info.Name)
	case KindGenericParam:
		info, _ := in.GenericInfo(id)
		sb.WriteString(info.Name)
	case KindArray:
		fmt.Fprintf(sb, "[%d x ", tt.Count)
		in.writeType(sb, tt.Elem)
		sb.WriteByte(']')
	case KindComplex:
		sb.WriteString("Complex<")
		in.writeType(sb, tt.Elem)
		sb.WriteByte('>')
	case KindMetatype:
		if tt.Thin {
			sb.WriteString("@thin ")
		}
		in.writeType(sb, tt.Elem)
		sb.WriteString(".Type")
	case KindFn:
		in.writeFn(sb, id)
	default:
		sb.WriteString(tt.Kind.String())
	}
}

func (in *Interner) writeFn(sb *strings.Builder, id TypeID) {
	fi, _ := in.FnInfo(id)
	if fi.Repr != ReprThin {
		fmt.Fprintf(sb, "@convention(%s) ", fi.Repr)
	}
	if fi.Repr == ReprThick && fi.Context != ConvDirectGuaranteed {
		fmt.Fprintf(sb, "@context(%s) ", fi.Context)
	}
	if len(fi.Generics) > 0 {
		sb.WriteByte('<')
		for i, g := range fi.Generics {
			if i > 0 {
				sb.WriteString(", ")
			}
			info, _ := in.GenericInfo(g)
			sb.WriteString(info.Name)
			switch {
			case info.ClassBound && len(info.Conformances) > 0:
				sb.WriteString(": AnyObject & " + strings.Join(info.Conformances, " & "))
			case info.ClassBound:
				sb.WriteString(": AnyObject")
			case len(info.Conformances) > 0:
				sb.WriteString(": " + strings.Join(info.Conformances, " & "))
			}
		}
		sb.WriteString("> ")
	}
	sb.WriteByte('(')
	for i, p := range fi.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		if fi.HasSelf && i == len(fi.Params)-1 {
			sb.WriteString("self: ")
		}
		if p.Convention != ConvDirectGuaranteed {
			fmt.Fprintf(sb, "@%s ", p.Convention)
		}
		in.writeType(sb, p.Type)
	}
	sb.WriteString(")")
	if fi.Throws() {
		sb.WriteString(" throws ")
		in.writeType(sb, fi.Error)
	}
	sb.WriteString(" -> ")
	in.writeType(sb, fi.Result)
}
