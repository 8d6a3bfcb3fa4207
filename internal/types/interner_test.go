package types

import (
	"sync"
	"testing"
)

func TestBuiltinsAreInterned(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	if got := in.Intern(MakeInt(Width32)); got != b.Int32 {
		t.Fatalf("Int32 interned twice: %d vs %d", got, b.Int32)
	}
	if in.RegisterTuple(nil) != b.Unit {
		t.Fatalf("empty tuple must be Unit")
	}
	if in.KindOf(b.RawPointer) != KindRawPointer {
		t.Fatalf("RawPointer kind = %v", in.KindOf(b.RawPointer))
	}
}

func TestRegisterTupleDedups(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	a := in.RegisterTuple([]TypeID{b.Int, b.Bool})
	c := in.RegisterTuple([]TypeID{b.Int, b.Bool})
	if a != c {
		t.Fatalf("structurally equal tuples got %d and %d", a, c)
	}
	if d := in.RegisterTuple([]TypeID{b.Bool, b.Int}); d == a {
		t.Fatalf("element order ignored")
	}
}

func TestRegisterFnDedups(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	info := FnInfo{
		Params: []Param{{Type: b.Int}, {Type: b.Int}},
		Result: b.Int,
	}
	f1 := in.RegisterFn(info)
	f2 := in.RegisterFn(info)
	if f1 != f2 {
		t.Fatalf("equal fn types interned as %d and %d", f1, f2)
	}
	info.Params[1].Convention = ConvDirectOwned
	if f3 := in.RegisterFn(info); f3 == f1 {
		t.Fatalf("convention ignored by fn interning")
	}
	throwing := in.RegisterFn(FnInfo{Error: b.RawPointer})
	fi := in.MustFnInfo(throwing)
	if !fi.Throws() || fi.Result != b.Unit {
		t.Fatalf("unexpected FnInfo %+v", fi)
	}
}

func TestRegisterFnRejectsLateIndirectOut(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for indirect-out at position 1")
		}
	}()
	in.RegisterFn(FnInfo{Params: []Param{{Type: b.Int}, {Type: b.Int, Convention: ConvIndirectOut}}})
}

func TestTypeString(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	point := in.RegisterStruct("Point", []Field{{"x", b.Double}, {"y", b.Double}}, false)
	counter := in.RegisterClass("Counter", nil)
	gen := in.RegisterGeneric("T", 0, true, []string{"Hashable"})
	fn := in.RegisterFn(FnInfo{
		Params:   []Param{{Type: point, Convention: ConvIndirectIn}, {Type: gen}, {Type: counter}},
		Result:   in.RegisterTuple([]TypeID{b.Int, in.Intern(MakeArray(b.UInt8, 4))}),
		Error:    b.RawPointer,
		HasSelf:  true,
		Generics: []TypeID{gen},
	})
	want := "<T: AnyObject & Hashable> (@in Point, T, self: Counter) throws RawPointer -> (Int, [4 x UInt8])"
	if got := in.TypeString(fn); got != want {
		t.Errorf("TypeString = %q\nwant %q", got, want)
	}
	meta := in.Intern(MakeMetatype(counter, true))
	if got := in.TypeString(meta); got != "@thin Counter.Type" {
		t.Errorf("metatype = %q", got)
	}
}

func TestHasTypeParams(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	gen := in.RegisterGeneric("T", 0, false, nil)
	tup := in.RegisterTuple([]TypeID{b.Int, gen})
	if !in.HasTypeParams(tup) {
		t.Errorf("tuple with T must have type params")
	}
	if in.HasTypeParams(in.RegisterTuple([]TypeID{b.Int, b.Int})) {
		t.Errorf("(Int, Int) has no type params")
	}
}

func TestConcurrentRegistration(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	var wg sync.WaitGroup
	ids := make([]TypeID, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = in.RegisterFn(FnInfo{Params: []Param{{Type: b.Int}}, Result: b.Bool})
		}(i)
	}
	wg.Wait()
	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("concurrent RegisterFn produced %d and %d", ids[0], id)
		}
	}
}

func TestConventionPredicates(t *testing.T) {
	tests := []struct {
		c                               Convention
		indirect, consumed, guaranteed bool
	}{
		{ConvDirectGuaranteed, false, false, true},
		{ConvDirectOwned, false, true, false},
		{ConvDirectUnowned, false, false, false},
		{ConvDirectDeallocating, false, true, false},
		{ConvIndirectIn, true, true, false},
		{ConvIndirectInGuaranteed, true, false, true},
		{ConvIndirectInout, true, false, false},
		{ConvIndirectOut, true, false, false},
	}
	for _, tt := range tests {
		if tt.c.IsIndirect() != tt.indirect || tt.c.IsConsumed() != tt.consumed || tt.c.IsGuaranteed() != tt.guaranteed {
			t.Errorf("%v: predicates (%t,%t,%t)", tt.c, tt.c.IsIndirect(), tt.c.IsConsumed(), tt.c.IsGuaranteed())
		}
		back, ok := ParseConvention(tt.c.String())
		if !ok || back != tt.c {
			t.Errorf("ParseConvention(%q) = %v, %t", tt.c.String(), back, ok)
		}
	}
}
