package ir

import (
	"strings"
	"testing"
)

var lp64 = DataLayout{PtrSize: 8, PtrAlign: 8, I64Align: 8, F64Align: 8}

func TestDataLayoutSizes(t *testing.T) {
	tests := []struct {
		ty                  *Type
		store, alloc, align int64
	}{
		{I1, 1, 1, 1},
		{I32, 4, 4, 4},
		{Int(24), 3, 4, 4},
		{I64, 8, 8, 8},
		{Float, 4, 4, 4},
		{Double, 8, 8, 8},
		{I8Ptr, 8, 8, 8},
		{StructOf(I8, I64), 16, 16, 8},
		{StructOf(I32, I8), 8, 8, 4},
		{PackedStructOf(I8, I64), 9, 9, 1},
		{ArrayOf(I16, 3), 6, 6, 2},
		{VectorOf(Float, 2), 8, 8, 8},
		{StructOf(), 0, 0, 1},
	}
	for _, tt := range tests {
		if got := lp64.StoreSize(tt.ty); got != tt.store {
			t.Errorf("StoreSize(%s) = %d, want %d", tt.ty, got, tt.store)
		}
		if got := lp64.AllocSize(tt.ty); got != tt.alloc {
			t.Errorf("AllocSize(%s) = %d, want %d", tt.ty, got, tt.alloc)
		}
		if got := lp64.AlignOf(tt.ty); got != tt.align {
			t.Errorf("AlignOf(%s) = %d, want %d", tt.ty, got, tt.align)
		}
	}
}

func TestI386Alignment(t *testing.T) {
	dl := DataLayout{PtrSize: 4, PtrAlign: 4, I64Align: 4, F64Align: 4}
	offsets, size, align := dl.StructLayout(StructOf(I32, Double))
	if offsets[1] != 4 || size != 12 || align != 4 {
		t.Errorf("i386 {i32, double}: offsets %v size %d align %d", offsets, size, align)
	}
}

func TestTypeEqualAndString(t *testing.T) {
	a := StructOf(I64, PtrTo(Double))
	b := StructOf(I64, PtrTo(Double))
	if !a.Equal(b) {
		t.Errorf("structural structs differ")
	}
	if a.String() != "{ i64, double* }" {
		t.Errorf("String = %q", a.String())
	}
	m := NewModule("t", lp64)
	named := m.NamedType("cg.refcounted", PtrTo(nil), I64)
	if named.Equal(StructOf(PtrTo(nil), I64)) {
		t.Errorf("named struct equal to literal struct")
	}
	if m.NamedType("cg.refcounted") != named {
		t.Errorf("NamedType not idempotent")
	}
	if got := FuncOf(Void, PtrTo(named), I1).String(); got != "void (%cg.refcounted*, i1)" {
		t.Errorf("func type = %q", got)
	}
	if PtrTo(I8) != I8Ptr {
		t.Errorf("i8* not shared")
	}
}

func TestUniqueNames(t *testing.T) {
	m := NewModule("t", lp64)
	ft := FuncOf(Void)
	f1 := m.Define("thunk add", ft, CCNative, AttrSet{}, Internal)
	f2 := m.Define("thunk add", ft, CCNative, AttrSet{}, Internal)
	if f1.Name != "thunk_add" || f2.Name != "thunk_add.1" {
		t.Errorf("names = %q, %q", f1.Name, f2.Name)
	}
	// "é" as e + combining acute must normalize to the precomposed form.
	if got := SymbolName("cafe\u0301"); got != "caf\u00e9" {
		t.Errorf("SymbolName = %q", got)
	}
}

func TestRollback(t *testing.T) {
	m := NewModule("t", lp64)
	keep := m.Define("keep", FuncOf(Void), CCNative, AttrSet{}, Internal)
	mark := m.Mark()
	m.Define("half", FuncOf(Void), CCNative, AttrSet{}, Internal)
	m.AddGlobal("meta", I64, nil, true)
	m.Rollback(mark)
	if fns := m.Functions(); len(fns) != 1 || fns[0] != keep {
		t.Fatalf("functions after rollback: %v", fns)
	}
	if len(m.Globals()) != 0 {
		t.Fatalf("globals survived rollback")
	}
	if f := m.Define("half", FuncOf(Void), CCNative, AttrSet{}, Internal); f.Name != "half.1" {
		t.Errorf("reused name %q", f.Name)
	}
}

func TestBuilderAndPrinter(t *testing.T) {
	m := NewModule("t", lp64)
	var attrs AttrSet
	attrs.AddParam(0, Attr{Kind: AttrNoAlias})
	attrs.AddParam(0, Attr{Kind: AttrDereferenceable, N: 16})
	attrs.AddParam(0, Attr{Kind: AttrNoCapture})
	pair := StructOf(I64, I64)
	f := m.Define("sum", FuncOf(I64, PtrTo(pair)), CCNative, attrs, External)
	b := NewBuilder(f, lp64)
	x := b.Load(I64, b.FieldAddr(f.Params[0], 0))
	y := b.Load(I64, b.FieldAddr(f.Params[0], 1))
	agg := b.InsertValue(b.InsertValue(Undef(pair), x, 0), y, 1)
	b.Ret(b.ExtractValue(agg, 1))

	out := m.String()
	for _, want := range []string{
		"define nativecc i64 @sum({ i64, i64 }* noalias nocapture dereferenceable(16) %0)",
		"getelementptr inbounds i8, { i64, i64 }* %0, i64 8 ; as i64*",
		"ret i64 %",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("printed module missing %q:\n%s", want, out)
		}
	}
}

func TestBuilderRejectsBadCalls(t *testing.T) {
	m := NewModule("t", lp64)
	callee := m.Declare("ext", FuncOf(Void, I64), CCC, AttrSet{})
	f := m.Define("caller", FuncOf(Void), CCC, AttrSet{}, Internal)
	b := NewBuilder(f, lp64)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for mistyped argument")
		}
	}()
	b.Call(callee.Value(), callee.Type, []*Value{ConstInt(I32, 1)}, CCC, AttrSet{})
}

func TestAttrSetEqual(t *testing.T) {
	var a, b AttrSet
	a.AddParam(1, Attr{Kind: AttrNoCapture})
	a.AddParam(1, Attr{Kind: AttrNoAlias})
	b.AddParam(1, Attr{Kind: AttrNoAlias})
	b.AddParam(1, Attr{Kind: AttrNoCapture})
	if !a.Equal(b) {
		t.Errorf("attr order must not matter: %v vs %v", a.Param(1), b.Param(1))
	}
	b.AddRet(Attr{Kind: AttrSExt})
	if a.Equal(b) {
		t.Errorf("ret attrs ignored")
	}
}
