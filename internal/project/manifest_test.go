package project

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"callgen/internal/diag"
	"callgen/internal/types"
)

func loadTestdata(t *testing.T) *Program {
	t.Helper()
	m, err := Load(filepath.Join("testdata", ManifestName))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p, err := m.Program()
	if err != nil {
		t.Fatalf("Program: %v", err)
	}
	return p
}

func TestLoadTestdata(t *testing.T) {
	p := loadTestdata(t)
	if p.Target.Triple != DefaultTriple || !p.Target.DedicatedErrorRegister {
		t.Errorf("target %+v", p.Target)
	}
	var names []string
	for _, f := range p.Funcs {
		names = append(names, f.Name)
	}
	if want := []string{"combine", "Counter.add", "pick"}; !slices.Equal(names, want) {
		t.Fatalf("funcs %v, want %v", names, want)
	}
	add, ok := p.Func("Counter.add")
	if !ok {
		t.Fatal("Counter.add missing")
	}
	if add.Loc.Line != 25 || add.Loc.Entity != "func Counter.add" {
		t.Errorf("loc %s", add.Loc)
	}
	fi := p.Types.MustFnInfo(add.Type)
	if fi.Repr != types.ReprMethod || !fi.HasSelf || !fi.Throws() {
		t.Errorf("Counter.add info %+v", fi)
	}
	if got := p.Types.TypeString(fi.Error); got != "Error" {
		t.Errorf("bare throws error type %s", got)
	}

	if len(p.Partials) != 4 {
		t.Fatalf("%d partials", len(p.Partials))
	}
	pick := p.Partials[2]
	if pick.Func.Name != "pick" || pick.Subst == pick.Func.Type || pick.Context != types.ConvDirectGuaranteed {
		t.Errorf("pick_int %+v", pick)
	}
	if p.Partials[0].Context != types.ConvDirectOwned || p.Partials[0].Dynamic {
		t.Errorf("combine_first %+v", p.Partials[0])
	}
	if !p.Partials[3].Dynamic || p.Partials[3].Loc.Line != 50 {
		t.Errorf("dynamic_combine %+v", p.Partials[3])
	}

	var order []string
	for _, id := range p.LayoutOrder {
		order = append(order, p.Types.TypeString(id))
	}
	if want := []string{"Bits", "Point", "Line"}; !slices.Equal(order, want) {
		t.Errorf("layout order %v, want %v", order, want)
	}
}

func TestManifestErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
		code diag.Code
		want string
	}{
		{
			name: "unknown key",
			code: diag.ManUnknownKey,
			src:  "[target]\ntriple = \"aarch64\"\ncolour = 1\n",
			want: "unknown keys: target.colour",
		},
		{
			name: "syntax",
			code: diag.ManSyntax,
			src:  "[target\n",
			line: 1,
			want: "callgen.toml:1: expected '.' or ']' to end table name",
		},
		{
			name: "duplicate key",
			code: diag.ManSyntax,
			src:  "[target]\ntriple = \"x86_64\"\ntriple = \"aarch64\"\n",
			line: 3,
			want: "already been defined",
		},
		{
			name: "duplicate name",
			code: diag.ManDuplicateName,
			src:  "[[struct]]\nname = \"P\"\n\n[[class]]\nname = \"P\"\n",
			line: 4,
			want: "name already declared by struct P",
		},
		{
			name: "unknown func",
			code: diag.ManBadPartial,
			src:  "[[partial]]\nname = \"p\"\nfunc = \"missing\"\n",
			line: 1,
			want: "unknown func \"missing\"",
		},
		{
			name: "address-only class",
			code: diag.ManSyntax,
			src:  "[[class]]\nname = \"C\"\naddress_only = true\n",
			want: "address_only applies to structs only",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("callgen.toml", []byte(tt.src))
			var merr *ManifestError
			if !errors.As(err, &merr) {
				t.Fatalf("error %v is not a *ManifestError", err)
			}
			if merr.Code != tt.code {
				t.Errorf("code %s, want %s", merr.Code.ID(), tt.code.ID())
			}
			if d := merr.Diagnostic(); d.Primary.Line != merr.Line || d.Code != tt.code {
				t.Errorf("diagnostic %v", d)
			}
			if tt.line != 0 && merr.Line != tt.line {
				t.Errorf("line %d, want %d (%v)", merr.Line, tt.line, err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestProgramErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "recursive struct",
			src:  "[[struct]]\nname = \"A\"\nfields = [\"b: B\"]\n\n[[struct]]\nname = \"B\"\nfields = [\"a: (Int, [2 x A])\"]\n",
			want: "infinite size: A, B",
		},
		{
			name: "class breaks recursion",
			src:  "[[struct]]\nname = \"Node\"\nfields = [\"next: Box\"]\n\n[[class]]\nname = \"Box\"\nfields = [\"node: Node\"]\n",
		},
		{
			name: "bad field",
			src:  "[[struct]]\nname = \"A\"\nfields = [\"Int\"]\n",
			want: "is not \"name: Type\"",
		},
		{
			name: "not a function",
			src:  "[[func]]\nname = \"f\"\ntype = \"(Int, Int)\"\n",
			want: "(Int, Int) is not a function type",
		},
		{
			name: "bad target",
			src:  "[target]\ntriple = \"riscv64\"\n",
			want: "unsupported target triple",
		},
		{
			name: "captures out of order",
			src:  "[[func]]\nname = \"f\"\ntype = \"(Int, Int) -> Int\"\n\n[[partial]]\nname = \"p\"\nfunc = \"f\"\ncaptured = [1, 0]\n",
			want: "captured [1 0] must be ascending",
		},
		{
			name: "generic without subst",
			src:  "[[func]]\nname = \"f\"\ntype = \"<T> (@in T) -> ()\"\n\n[[partial]]\nname = \"p\"\nfunc = \"f\"\n",
			want: "must be applied at concrete types",
		},
		{
			name: "mismatched subst",
			src:  "[[func]]\nname = \"f\"\ntype = \"<T> (@in T) -> ()\"\n\n[[partial]]\nname = \"p\"\nfunc = \"f\"\nsubst = \"(@in Int, Int) -> ()\"\n",
			want: "does not match",
		},
		{
			name: "indirect context",
			src:  "[[func]]\nname = \"f\"\ntype = \"(Int) -> ()\"\n\n[[partial]]\nname = \"p\"\nfunc = \"f\"\ncontext = \"@inout\"\n",
			want: "bad context convention",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse("callgen.toml", []byte(tt.src))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			_, err = m.Program()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("Program: %v", err)
				}
				return
			}
			var merr *ManifestError
			if !errors.As(err, &merr) {
				t.Fatalf("error %v is not a *ManifestError", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestFindManifestWalksUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(nested); !errors.Is(err, ErrNoManifest) {
		t.Fatalf("LoadFrom without manifest: %v", err)
	}
	src := "[[func]]\nname = \"id\"\ntype = \"(Int) -> Int\"\n"
	if err := os.WriteFile(filepath.Join(root, ManifestName), []byte(src), 0o600); err != nil {
		t.Fatal(err)
	}
	m, err := LoadFrom(nested)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if m.Root != root || len(m.Config.Funcs) != 1 {
		t.Fatalf("manifest %+v", m)
	}
}

func TestFingerprint(t *testing.T) {
	a, b := loadTestdata(t), loadTestdata(t)
	fa, fb := a.Funcs[0], b.Funcs[0]
	if a.Fingerprint(fa.Type) != b.Fingerprint(fb.Type) {
		t.Fatalf("fingerprint differs across loads")
	}
	if a.Fingerprint(fa.Type) == a.Fingerprint(a.Funcs[1].Type) {
		t.Fatalf("distinct types share a fingerprint")
	}
	before := a.Fingerprint(fa.Type)
	a.Target.DedicatedErrorRegister = false
	if a.Fingerprint(fa.Type) == before {
		t.Fatalf("fingerprint ignores the target")
	}
	if len(before.String()) != 64 {
		t.Fatalf("digest string %q", before)
	}
}

func TestAddFunc(t *testing.T) {
	p := loadTestdata(t)
	n := len(p.Funcs)
	f, err := p.AddFunc("adhoc", "(Int) throws -> Int")
	if err != nil {
		t.Fatalf("AddFunc: %v", err)
	}
	if len(p.Funcs) != n+1 || p.Funcs[n] != f || f.Loc.Entity != "type (Int) throws -> Int" {
		t.Fatalf("func %+v", f)
	}
	fn, ok := p.Types.FnInfo(f.Type)
	if !ok || !fn.Throws() {
		t.Errorf("adhoc type %s", p.Types.TypeString(f.Type))
	}

	for _, tc := range []struct{ name, src, want string }{
		{"adhoc", "() -> ()", "already declared"},
		{"tuple", "(Int, Int)", "not a function type"},
		{"unknown", "(Widget) -> ()", "unknown type"},
	} {
		if _, err := p.AddFunc(tc.name, tc.src); err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("AddFunc(%q, %q) = %v, want %q", tc.name, tc.src, err, tc.want)
		}
	}
	if len(p.Funcs) != n+1 {
		t.Errorf("failed AddFunc declared a function")
	}
}
