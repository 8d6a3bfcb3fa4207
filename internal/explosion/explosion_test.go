package explosion

import (
	"testing"

	"callgen/internal/ir"
)

var limits = Limits{MaxScalarsForDirectResult: 3, MaxScalarsForDirectParam: 3}

func scalars(n int) []Element {
	out := make([]Element, n)
	for i := range out {
		out[i] = ScalarElement(ir.I64)
	}
	return out
}

func storageOf(n int) Storage {
	fields := make([]*ir.Type, n)
	for i := range fields {
		fields[i] = ir.I64
	}
	return Storage{Type: ir.StructOf(fields...), Size: int64(8 * n), Fixed: true}
}

func TestClaimOrder(t *testing.T) {
	a, b, c := ir.ConstInt(ir.I64, 1), ir.ConstInt(ir.I64, 2), ir.ConstInt(ir.I64, 3)
	e := New(a, b)
	e.Add(c)
	if e.Size() != 3 || e.Remaining() != 3 {
		t.Fatalf("size=%d remaining=%d", e.Size(), e.Remaining())
	}
	if e.Claim() != a {
		t.Fatalf("first claim is not a")
	}
	rest := e.ClaimAll()
	if len(rest) != 2 || rest[0] != b || rest[1] != c {
		t.Fatalf("ClaimAll = %v", rest)
	}
	e.AssertEmpty()
	e.Reset()
	if e.Claim() != a {
		t.Fatalf("Reset did not restart")
	}
}

func TestAssertEmptyPanics(t *testing.T) {
	e := New(ir.ConstInt(ir.I64, 1))
	defer func() {
		if recover() == nil {
			t.Fatalf("AssertEmpty did not panic")
		}
	}()
	e.AssertEmpty()
}

func TestClaimPastEndPanics(t *testing.T) {
	e := New()
	defer func() {
		if recover() == nil {
			t.Fatalf("Claim on empty explosion did not panic")
		}
	}()
	e.Claim()
}

func TestIndirectThresholds(t *testing.T) {
	tests := []struct {
		name           string
		schema         *Schema
		result, param  bool
		scalarResultTy string
	}{
		{"empty", NewSchema(limits, Storage{Type: ir.StructOf(), Fixed: true}), false, false, "void"},
		{"one", NewSchema(limits, storageOf(1), scalars(1)...), false, false, "i64"},
		{"three", NewSchema(limits, storageOf(3), scalars(3)...), false, false, "{ i64, i64, i64 }"},
		{"four", NewSchema(limits, storageOf(4), scalars(4)...), true, true, ""},
		{"aggregate", NewSchema(limits, storageOf(1), AggregateElement(ir.StructOf(ir.I64))), true, true, ""},
		{"split limits", NewSchema(Limits{MaxScalarsForDirectResult: 1, MaxScalarsForDirectParam: 4}, storageOf(2), scalars(2)...), true, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.schema.RequiresIndirectResult(); got != tt.result {
				t.Errorf("RequiresIndirectResult = %v", got)
			}
			if got := tt.schema.RequiresIndirectParameter(); got != tt.param {
				t.Errorf("RequiresIndirectParameter = %v", got)
			}
			if tt.scalarResultTy != "" {
				if got := tt.schema.ScalarResultType().String(); got != tt.scalarResultTy {
					t.Errorf("ScalarResultType = %s", got)
				}
			}
		})
	}
}

func TestIndirectResultIsMonotonic(t *testing.T) {
	prev := false
	for n := 0; n <= 8; n++ {
		got := NewSchema(limits, storageOf(n), scalars(n)...).RequiresIndirectResult()
		if prev && !got {
			t.Fatalf("adding a field made %d scalars direct again", n)
		}
		prev = got
	}
}

func TestAddToArgTypes(t *testing.T) {
	var attrs ir.AttrSet
	out := []*ir.Type{ir.I8Ptr}

	out = NewSchema(limits, storageOf(2), scalars(2)...).AddToArgTypes(&attrs, out)
	if len(out) != 3 || len(attrs.Param(1)) != 0 {
		t.Fatalf("direct pieces: %v attrs %v", out, attrs.Param(1))
	}

	big := NewSchema(limits, storageOf(5), scalars(5)...)
	out = big.AddToArgTypes(&attrs, out)
	if len(out) != 4 || !out[3].IsPointer() {
		t.Fatalf("indirect param: %v", out)
	}
	if got := attrs.Param(3).String(); got != "noalias nocapture dereferenceable(40)" {
		t.Errorf("attrs = %q", got)
	}

	// empty address-only value: no dereferenceable
	empty := NewSchema(limits, Storage{Type: ir.StructOf(), Size: 0, Fixed: true}, AggregateElement(ir.StructOf()))
	out = empty.AddToArgTypes(&attrs, out)
	if attrs.HasParam(4, ir.AttrDereferenceable) {
		t.Errorf("empty type got dereferenceable: %v", attrs.Param(4))
	}
	// dynamic size: no dereferenceable either
	dyn := NewSchema(limits, Storage{Type: ir.StructOf(ir.I8)}, AggregateElement(ir.StructOf(ir.I8)))
	dyn.AddToArgTypes(&attrs, out)
	if attrs.HasParam(5, ir.AttrDereferenceable) || !attrs.HasParam(5, ir.AttrNoAlias) {
		t.Errorf("dynamic attrs: %v", attrs.Param(5))
	}
}
