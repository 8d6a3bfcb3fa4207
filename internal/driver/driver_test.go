package driver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"callgen/internal/diag"
	"callgen/internal/ir"
	"callgen/internal/partialapply"
	"callgen/internal/project"
	"callgen/internal/trace"
	"callgen/internal/vm"
)

var testdata = filepath.Join("..", "project", "testdata", project.ManifestName)

func loadProgram(t *testing.T) *project.Program {
	t.Helper()
	prog, bag, err := LoadProgram(testdata, 0)
	if err != nil {
		t.Fatalf("LoadProgram: %v", err)
	}
	if prog == nil {
		t.Fatalf("manifest rejected: %v", bag.Items())
	}
	return prog
}

func parseProgram(t *testing.T, src string) *project.Program {
	t.Helper()
	m, err := project.Parse("callgen.toml", []byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	prog, err := m.Program()
	if err != nil {
		t.Fatalf("Program: %v", err)
	}
	return prog
}

func expectNoErrors(t *testing.T, bag *diag.Bag) {
	t.Helper()
	if bag.HasErrors() {
		for _, d := range bag.Items() {
			t.Log(d)
		}
		t.Fatalf("unexpected errors")
	}
}

func TestLowerTestdata(t *testing.T) {
	prog := loadProgram(t)
	ring := trace.NewRingTracer(256, trace.LevelPhase)
	ctx := trace.WithTracer(context.Background(), ring)

	var mu sync.Mutex
	items := map[string]int{}
	ends := 0
	obs := func(ev PhaseEvent) {
		mu.Lock()
		defer mu.Unlock()
		switch ev.Status {
		case PhaseItem:
			items[ev.Name]++
		case PhaseEnd:
			ends++
		}
	}

	res, err := Lower(ctx, prog, Options{Jobs: 2, Observer: obs})
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	expectNoErrors(t, res.Bag)
	if items["expand"] != 3 || items["emit"] != 7 || ends != 2 {
		t.Errorf("observer saw items %v, %d ends", items, ends)
	}

	callers := map[string]CallerResult{}
	for _, c := range res.Callers {
		callers[c.Func.Name] = c
		if c.Decl == nil || c.Decl.Name != c.Func.Name {
			t.Errorf("%s declared as %v", c.Func.Name, c.Decl)
		}
	}
	if c := callers["combine"]; c.Fn == nil || c.Fn.Name != "call.combine" {
		t.Errorf("combine caller %+v", c)
	}
	add := callers["Counter.add"]
	if add.Fn == nil {
		t.Fatalf("Counter.add has no caller: %s", add.Skipped)
	}
	params := add.Fn.Type.Params
	if len(params) != 4 || !params[3].Equal(ir.PtrTo(res.Module.RT.ErrorPtr())) {
		t.Errorf("call.Counter.add params %v", params)
	}
	if c := callers["pick"]; c.Fn != nil || c.Skipped != "generic" {
		t.Errorf("pick caller %+v", c)
	}

	kinds := map[string]partialapply.Kind{
		"combine_first":   partialapply.KindHeap,
		"bound_add":       partialapply.KindThunkable,
		"pick_int":        partialapply.KindHeap,
		"dynamic_combine": partialapply.KindHeap,
	}
	for _, p := range res.Partials {
		if p.Maker == nil {
			t.Errorf("%s: no maker (%s)", p.Partial.Name, p.Skipped)
			continue
		}
		if p.Built.Kind != kinds[p.Partial.Name] {
			t.Errorf("%s is %s, want %s", p.Partial.Name, p.Built.Kind, kinds[p.Partial.Name])
		}
		if p.Maker.Name != "make_"+p.Partial.Name {
			t.Errorf("maker %s", p.Maker.Name)
		}
	}

	var spans []string
	for _, ev := range ring.Snapshot() {
		if ev.Kind == trace.KindSpanEnd {
			spans = append(spans, ev.Name)
		}
	}
	if got := strings.Join(spans, ","); got != "expand,emit,lower" {
		t.Errorf("phase spans %s", got)
	}
	if st := res.Module.Sigs.Stats(); st.Misses == 0 || st.Entries < 3 {
		t.Errorf("signature cache %+v", st)
	}
}

func TestCallerRunsInVM(t *testing.T) {
	prog := parseProgram(t, `
[[struct]]
name = "Point"
fields = ["x: Int32", "y: Double"]

[[func]]
name = "scale"
type = "(@owned Int, Point) -> Point"
`)
	res, err := Lower(context.Background(), prog, Options{})
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	expectNoErrors(t, res.Bag)

	m, err := vm.New(res.Module.IR, vm.Options{})
	if err != nil {
		t.Fatalf("vm.New: %v", err)
	}
	m.RegisterNative("scale", func(_ *vm.VM, args []vm.Val) (vm.Val, error) {
		k := args[0].Signed(64)
		return vm.Agg(vm.Int(args[1].Signed(32)*k), vm.F64(args[2].Float64()*float64(k))), nil
	})
	fn, err := m.FuncAddr("scale")
	if err != nil {
		t.Fatal(err)
	}
	got, err := m.Call("call.scale", fn, vm.Int(3), vm.Int(2), vm.F64(1.5))
	if err != nil {
		if ve, ok := err.(*vm.VMError); ok {
			t.Fatal(ve.Format())
		}
		t.Fatal(err)
	}
	if len(got.Agg) != 2 || got.Agg[0].Signed(32) != 6 || got.Agg[1].Float64() != 4.5 {
		t.Fatalf("call.scale = %s", got)
	}
}

func TestLowerReportsUnimplemented(t *testing.T) {
	prog := parseProgram(t, `
[[func]]
name = "blk"
type = "@convention(block) (Int, Int) -> Int"

[[partial]]
name = "blk_first"
func = "blk"
captured = [0]
`)
	res, err := Lower(context.Background(), prog, Options{})
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	if c := res.Callers[0]; c.Fn != nil || c.Skipped != "block representation" {
		t.Errorf("caller %+v", c)
	}
	p := res.Partials[0]
	if p.Maker != nil || p.Skipped != "not implemented" {
		t.Fatalf("partial %+v", p)
	}
	items := res.Bag.Items()
	if len(items) != 1 || items[0].Code != diag.IRUnimplemented {
		t.Fatalf("diagnostics %v", items)
	}
	if items[0].Primary.Line != 6 || items[0].Primary.Entity != "partial blk_first" {
		t.Errorf("reported at %s", items[0].Primary)
	}
	for _, fn := range res.Module.IR.Functions() {
		if strings.HasPrefix(fn.Name, "blk_first") || strings.HasPrefix(fn.Name, "make_") {
			t.Errorf("rolled-back function %s survived", fn.Name)
		}
	}
}

func TestExpandUsesDiskCache(t *testing.T) {
	cache, err := OpenDiskCacheAt(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	first, err := Expand(context.Background(), loadProgram(t), Options{Cache: cache})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if first.FromDisk() != 0 {
		t.Fatalf("cold cache served %d signatures", first.FromDisk())
	}

	second, err := Expand(context.Background(), loadProgram(t), Options{Cache: cache, Timings: true})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if second.FromDisk() != len(second.Sigs) {
		t.Fatalf("warm cache served %d of %d", second.FromDisk(), len(second.Sigs))
	}
	for i, s := range second.Sigs {
		if s.Signature != nil || s.Text != first.Sigs[i].Text {
			t.Errorf("%s: cached text differs", s.Func.Name)
		}
	}
	items := second.Bag.Items()
	if len(items) != 1 || items[0].Code != diag.ObsTimings || !strings.Contains(items[0].Notes[0].Msg, `"from_disk":3`) {
		t.Errorf("timing diagnostic %v", items)
	}

	other := loadProgram(t)
	other.Target.DedicatedErrorRegister = false
	third, err := Expand(context.Background(), other, Options{Cache: cache})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if third.FromDisk() != 0 {
		t.Fatalf("another target served %d cached signatures", third.FromDisk())
	}
	add, _ := third.Sig("Counter.add")
	if add.Text == "" || !add.Signature.HasError() {
		t.Errorf("Counter.add %+v", add)
	}
}

func TestLoadProgramReportsManifestErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), project.ManifestName)
	if err := os.WriteFile(path, []byte("[[func]]\nname = \"f\"\ntype = \"(Widget) -> ()\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	prog, bag, err := LoadProgram(path, 0)
	if err != nil || prog != nil {
		t.Fatalf("LoadProgram = %v, %v", prog, err)
	}
	items := bag.Items()
	if len(items) != 1 || items[0].Code != diag.ManUnknownType || items[0].Primary.Line != 1 {
		t.Fatalf("diagnostics %v", items)
	}

	if _, _, err := LoadProgram(filepath.Join(t.TempDir(), "missing.toml"), 0); err == nil {
		t.Fatal("missing manifest accepted")
	}
}
