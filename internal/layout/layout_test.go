package layout

import (
	"errors"
	"sync"
	"testing"

	"callgen/internal/types"
)

func TestPrimitiveLayouts(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()
	thick := in.RegisterFn(types.FnInfo{Repr: types.ReprThick})
	thin := in.RegisterFn(types.FnInfo{Repr: types.ReprThin})
	class := in.RegisterClass("Counter", nil)
	meta := in.Intern(types.MakeMetatype(class, false))
	thinMeta := in.Intern(types.MakeMetatype(class, true))

	tests := []struct {
		name        string
		target      Target
		id          types.TypeID
		size, align int
	}{
		{"unit", X86_64LinuxGNU(), b.Unit, 0, 1},
		{"bool", X86_64LinuxGNU(), b.Bool, 1, 1},
		{"int", X86_64LinuxGNU(), b.Int, 8, 8},
		{"int i386", I386LinuxGNU(), b.Int, 4, 4},
		{"int64 i386", I386LinuxGNU(), b.Int64, 8, 4},
		{"double i386", I386LinuxGNU(), b.Double, 8, 4},
		{"float", X86_64LinuxGNU(), b.Float, 4, 4},
		{"class", X86_64LinuxGNU(), class, 8, 8},
		{"metatype", X86_64LinuxGNU(), meta, 8, 8},
		{"thin metatype", X86_64LinuxGNU(), thinMeta, 0, 1},
		{"thick fn", X86_64LinuxGNU(), thick, 16, 8},
		{"thin fn", AArch64LinuxGNU(), thin, 8, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(tt.target, in)
			l, err := e.LayoutOf(tt.id)
			if err != nil {
				t.Fatalf("LayoutOf: %v", err)
			}
			if l.Size != tt.size || l.Align != tt.align {
				t.Errorf("got size=%d align=%d, want size=%d align=%d", l.Size, l.Align, tt.size, tt.align)
			}
		})
	}
}

func TestStructAndUnionLayout(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()
	s := in.RegisterStruct("S", []types.Field{
		{Name: "a", Type: b.UInt8},
		{Name: "b", Type: b.Double},
		{Name: "c", Type: b.Int16},
	}, false)
	u := in.RegisterUnion("U", []types.Field{
		{Name: "x", Type: b.Int32},
		{Name: "y", Type: in.Intern(types.MakeArray(b.UInt8, 6))},
	})
	e := New(X86_64LinuxGNU(), in)

	l, err := e.LayoutOf(s)
	if err != nil {
		t.Fatal(err)
	}
	if l.Size != 24 || l.Align != 8 {
		t.Errorf("S: size=%d align=%d", l.Size, l.Align)
	}
	want := []int{0, 8, 16}
	for i, off := range want {
		if got, _ := e.FieldOffset(s, i); got != off {
			t.Errorf("S field %d offset = %d, want %d", i, got, off)
		}
	}

	ul, err := e.LayoutOf(u)
	if err != nil {
		t.Fatal(err)
	}
	if ul.Size != 8 || ul.Align != 4 {
		t.Errorf("U: size=%d align=%d", ul.Size, ul.Align)
	}
}

func TestGenericLayoutIsDynamic(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()
	T := in.RegisterGeneric("T", 0, false, nil)
	C := in.RegisterGeneric("C", 1, true, nil)
	pair := in.RegisterTuple([]types.TypeID{b.Int, T})
	e := New(X86_64LinuxGNU(), in)

	if l := e.MustLayoutOf(T); !l.Dynamic || l.Fixed() {
		t.Errorf("T should be dynamic: %+v", l)
	}
	if l := e.MustLayoutOf(pair); !l.Dynamic {
		t.Errorf("(Int, T) should be dynamic: %+v", l)
	}
	if l := e.MustLayoutOf(C); l.Dynamic || l.Size != 8 {
		t.Errorf("class-bound generic should be a pointer: %+v", l)
	}
	if l := e.MustLayoutOf(b.Unit); !l.Empty() {
		t.Errorf("unit should be empty: %+v", l)
	}
}

func TestRecursiveValueTypeIsRejected(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()
	node := in.RegisterStruct("Node", nil, false)
	in.SetStructFields(node, []types.Field{
		{Name: "value", Type: b.Int},
		{Name: "next", Type: node},
	})
	e := New(X86_64LinuxGNU(), in)

	_, err := e.LayoutOf(node)
	var le *LayoutError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LayoutError, got %v", err)
	}
	if le.Kind != LayoutErrRecursiveUnsized {
		t.Fatalf("kind = %d", le.Kind)
	}
	if len(le.Cycle) != 2 || le.Cycle[0] != node || le.Cycle[1] != node {
		t.Errorf("cycle = %v", le.Cycle)
	}
	// cached result must still report the error
	if _, err := e.LayoutOf(node); err == nil {
		t.Errorf("second LayoutOf lost the error")
	}
}

func TestConcurrentLayout(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()
	s := in.RegisterStruct("P", []types.Field{{Name: "x", Type: b.Int32}, {Name: "y", Type: b.Int64}}, false)
	e := New(X86_64LinuxGNU(), in)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if size, err := e.SizeOf(s); err != nil || size != 16 {
				t.Errorf("SizeOf = %d, %v", size, err)
			}
		}()
	}
	wg.Wait()
}

func TestForTriple(t *testing.T) {
	tests := []struct {
		triple string
		arch   Arch
		ok     bool
	}{
		{"x86_64-apple-darwin", ArchX86_64, true},
		{"arm64", ArchAArch64, true},
		{"i686-pc-linux-gnu", ArchI386, true},
		{"riscv64-unknown-elf", 0, false},
	}
	for _, tt := range tests {
		got, err := ForTriple(tt.triple)
		if (err == nil) != tt.ok {
			t.Fatalf("ForTriple(%q) err = %v", tt.triple, err)
		}
		if tt.ok && got.Arch != tt.arch {
			t.Errorf("ForTriple(%q).Arch = %s", tt.triple, got.Arch)
		}
	}
	if tgt, _ := ForTriple("x86_64-apple-darwin"); tgt.Triple != "x86_64-apple-darwin" {
		t.Errorf("triple not preserved: %q", tgt.Triple)
	}
	if dl := I386LinuxGNU().DataLayout(); dl.PtrSize != 4 || dl.F64Align != 4 {
		t.Errorf("i386 data layout = %+v", dl)
	}
}
