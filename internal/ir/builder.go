package ir

import "fmt"

// Builder appends instructions to the end of a function body.
type Builder struct {
	f  *Function
	dl DataLayout
}

func NewBuilder(f *Function, dl DataLayout) *Builder {
	if !f.Defined {
		panic(fmt.Sprintf("ir: building body of declaration %s", f.Name))
	}
	return &Builder{f: f, dl: dl}
}

// Func returns the function being built.
func (b *Builder) Func() *Function { return b.f }

// Layout returns the data layout used for offsets.
func (b *Builder) Layout() DataLayout { return b.dl }

func (b *Builder) emit(in *Instr, result *Type) *Value {
	if result != nil && !result.IsVoid() {
		in.Result = &Value{Kind: VInstr, Type: result, Name: b.f.tmpName(), Instr: in}
	}
	b.f.Body = append(b.f.Body, in)
	return in.Result
}

// Alloca reserves a stack slot for t and returns its address.
func (b *Builder) Alloca(t *Type, align int64) *Value {
	if align == 0 {
		align = b.dl.AlignOf(t)
	}
	return b.emit(&Instr{Op: OpAlloca, Ty: t, Align: align}, PtrTo(t))
}

// Load reads a t through ptr.
func (b *Builder) Load(t *Type, ptr *Value) *Value {
	mustPointer(ptr, "load")
	return b.emit(&Instr{Op: OpLoad, Ty: t, Operands: []*Value{ptr}, Align: b.dl.AlignOf(t)}, t)
}

// Store writes v through ptr.
func (b *Builder) Store(v, ptr *Value) {
	mustPointer(ptr, "store")
	b.emit(&Instr{Op: OpStore, Operands: []*Value{v, ptr}, Align: b.dl.AlignOf(v.Type)}, nil)
}

// Bitcast reinterprets v as to. Same-typed values are returned unchanged.
func (b *Builder) Bitcast(v *Value, to *Type) *Value {
	if v.Type.Equal(to) {
		return v
	}
	switch {
	case v.Type.IsPointer() && to.IsPointer():
	case v.Type.IsScalar() && to.IsScalar() && !v.Type.IsPointer() && !to.IsPointer() &&
		b.dl.StoreSize(v.Type) == b.dl.StoreSize(to):
	default:
		panic(fmt.Sprintf("ir: invalid bitcast %s to %s", v.Type, to))
	}
	if v.Kind == VUndef {
		return Undef(to)
	}
	if v.Kind == VNull {
		return Null(to)
	}
	return b.emit(&Instr{Op: OpBitcast, Ty: to, Operands: []*Value{v}}, to)
}

// ByteOffset returns ptr advanced by off bytes, as a pointer to elem.
func (b *Builder) ByteOffset(ptr *Value, off int64, elem *Type) *Value {
	mustPointer(ptr, "byte offset")
	to := PtrTo(elem)
	if off == 0 {
		return b.Bitcast(ptr, to)
	}
	return b.emit(&Instr{Op: OpByteOffset, Ty: to, Offset: off, Operands: []*Value{ptr}}, to)
}

// FieldAddr returns the address of field i of the struct ptr points to.
func (b *Builder) FieldAddr(ptr *Value, i int) *Value {
	st := ptr.Type.Pointee()
	return b.ByteOffset(ptr, b.dl.FieldOffset(st, i), st.Fields[i])
}

// ExtractValue reads element i of an aggregate value.
func (b *Builder) ExtractValue(agg *Value, i int) *Value {
	return b.emit(&Instr{Op: OpExtractValue, Index: i, Operands: []*Value{agg}}, elemType(agg.Type, i))
}

// InsertValue returns agg with element i replaced by v.
func (b *Builder) InsertValue(agg, v *Value, i int) *Value {
	if et := elemType(agg.Type, i); !et.Equal(v.Type) {
		panic(fmt.Sprintf("ir: insertvalue of %s into %s element %d", v.Type, agg.Type, i))
	}
	return b.emit(&Instr{Op: OpInsertValue, Index: i, Operands: []*Value{agg, v}}, agg.Type)
}

// Memcpy copies size bytes from src to dst.
func (b *Builder) Memcpy(dst, src *Value, size int64) {
	mustPointer(dst, "memcpy")
	mustPointer(src, "memcpy")
	if size == 0 {
		return
	}
	b.emit(&Instr{Op: OpMemcpy, Size: size, Operands: []*Value{dst, src}}, nil)
}

// Call emits a call and returns its result, or nil for void.
func (b *Builder) Call(callee *Value, fnType *Type, args []*Value, cc CallConv, attrs AttrSet) *Instr {
	if fnType.Kind != TFunc {
		panic(fmt.Sprintf("ir: call through non-function type %s", fnType))
	}
	if len(args) != len(fnType.Params) {
		panic(fmt.Sprintf("ir: call to %s with %d arguments, want %d", callee.Ref(), len(args), len(fnType.Params)))
	}
	for i, a := range args {
		if a == nil {
			panic(fmt.Sprintf("ir: call to %s with nil argument %d", callee.Ref(), i))
		}
		if !a.Type.Equal(fnType.Params[i]) {
			panic(fmt.Sprintf("ir: call to %s argument %d is %s, want %s", callee.Ref(), i, a.Type, fnType.Params[i]))
		}
	}
	in := &Instr{
		Op:       OpCall,
		Operands: append([]*Value(nil), args...),
		Call:     &CallInfo{Callee: callee, FnType: fnType, CC: cc, Attrs: attrs},
	}
	b.emit(in, fnType.Ret)
	return in
}

// Ret returns v; nil returns void.
func (b *Builder) Ret(v *Value) {
	want := b.f.Type.Ret
	if v == nil {
		if !want.IsVoid() {
			panic(fmt.Sprintf("ir: ret void in %s returning %s", b.f.Name, want))
		}
		b.emit(&Instr{Op: OpRet}, nil)
		return
	}
	if !v.Type.Equal(want) {
		panic(fmt.Sprintf("ir: ret %s in %s returning %s", v.Type, b.f.Name, want))
	}
	b.emit(&Instr{Op: OpRet, Operands: []*Value{v}}, nil)
}

func elemType(t *Type, i int) *Type {
	switch t.Kind {
	case TStruct:
		return t.Fields[i]
	case TArray, TVector:
		return t.Elem
	}
	panic(fmt.Sprintf("ir: element %d of non-aggregate %s", i, t))
}

func mustPointer(v *Value, what string) {
	if !v.Type.IsPointer() {
		panic(fmt.Sprintf("ir: %s through non-pointer %s", what, v))
	}
}
