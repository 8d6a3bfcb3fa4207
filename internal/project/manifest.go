package project

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"callgen/internal/diag"
	"callgen/internal/source"
)

// ManifestName is the file FindManifest looks for.
const ManifestName = "callgen.toml"

// Manifest is a loaded callgen.toml.
type Manifest struct {
	Path   string
	Root   string
	Config Config

	// headers maps a table-array name to the 1-based line of each entry.
	headers map[string][]int
}

// Config mirrors the TOML layout of callgen.toml.
type Config struct {
	Target   TargetConfig    `toml:"target"`
	Structs  []NominalConfig `toml:"struct"`
	Classes  []NominalConfig `toml:"class"`
	Unions   []NominalConfig `toml:"union"`
	Funcs    []FuncConfig    `toml:"func"`
	Partials []PartialConfig `toml:"partial"`
}

// TargetConfig selects the target and overrides its tunables.
type TargetConfig struct {
	Triple                 string `toml:"triple"`
	MaxDirectResult        int    `toml:"max_direct_result"`
	MaxDirectParam         int    `toml:"max_direct_param"`
	DedicatedErrorRegister *bool  `toml:"dedicated_error_register"`
}

// NominalConfig declares a struct, class or union. Fields are written
// "name: Type".
type NominalConfig struct {
	Name        string   `toml:"name"`
	Fields      []string `toml:"fields"`
	AddressOnly bool     `toml:"address_only"`
}

// FuncConfig declares a function by its type.
type FuncConfig struct {
	Name string `toml:"name"`
	Type string `toml:"type"`
}

// PartialConfig declares a partial application of a [[func]]. Captured
// lists parameter positions; Subst optionally gives the substituted type
// of a generic target; Dynamic makes the target a runtime function value.
type PartialConfig struct {
	Name     string `toml:"name"`
	Func     string `toml:"func"`
	Captured []int  `toml:"captured"`
	Subst    string `toml:"subst"`
	Context  string `toml:"context"`
	Dynamic  bool   `toml:"dynamic"`
}

// ManifestError reports a problem in a manifest. Line is 0 when unknown.
type ManifestError struct {
	Code diag.Code
	Path string
	Line int
	What string // "func add", "target"
	Err  error
}

func (e *ManifestError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Path)
	if e.Line > 0 {
		fmt.Fprintf(&sb, ":%d", e.Line)
	}
	if e.What != "" {
		sb.WriteString(": " + e.What)
	}
	sb.WriteString(": " + e.Err.Error())
	return sb.String()
}

func (e *ManifestError) Unwrap() error { return e.Err }

// Diagnostic converts e into an error diagnostic at its manifest entry.
func (e *ManifestError) Diagnostic() diag.Diagnostic {
	code := e.Code
	if code == diag.UnknownCode {
		code = diag.ManSyntax
	}
	return diag.Diagnostic{
		Severity: diag.SevError,
		Code:     code,
		Message:  e.Err.Error(),
		Primary:  source.Loc{File: e.Path, Line: e.Line, Entity: e.What},
	}
}

// ErrNoManifest is returned by LoadFrom when no callgen.toml exists above
// the start directory.
var ErrNoManifest = errors.New("no " + ManifestName + " found")

// FindManifest walks up from startDir to locate callgen.toml.
func FindManifest(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ManifestName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// LoadFrom finds and loads the manifest governing startDir.
func LoadFrom(startDir string) (*Manifest, error) {
	path, ok, err := FindManifest(startDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoManifest
	}
	return Load(path)
}

// Load reads and validates one manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(path, data)
}

// Parse decodes manifest text; path is used for error messages only.
func Parse(path string, data []byte) (*Manifest, error) {
	var cfg Config
	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		var perr toml.ParseError
		if errors.As(err, &perr) {
			return nil, &ManifestError{Code: diag.ManSyntax, Path: path, Line: syntaxLine(data, perr), Err: errors.New(syntaxMessage(perr))}
		}
		return nil, &ManifestError{Code: diag.ManSyntax, Path: path, Err: err}
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, &ManifestError{Code: diag.ManUnknownKey, Path: path, Err: fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))}
	}
	m := &Manifest{
		Path:    path,
		Root:    filepath.Dir(path),
		Config:  cfg,
		headers: scanHeaders(data),
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// syntaxLine is the line holding the first byte of the error. The lexer
// counts a newline it has just read against the following line, so the
// byte offset is more reliable than the reported line.
func syntaxLine(data []byte, perr toml.ParseError) int {
	start := perr.Position.Start
	if perr.Position.Line == 0 || start < 0 || start > len(data) {
		return perr.Position.Line
	}
	return 1 + bytes.Count(data[:start], []byte{'\n'})
}

// syntaxMessage is the error text without the decoder's own location
// prefix. Lexer errors leave Message empty.
func syntaxMessage(perr toml.ParseError) string {
	if perr.Message != "" {
		return perr.Message
	}
	prefix := fmt.Sprintf("toml: line %d: ", perr.Position.Line)
	if perr.LastKey != "" {
		prefix = fmt.Sprintf("toml: line %d (last key %q): ", perr.Position.Line, perr.LastKey)
	}
	return strings.TrimPrefix(perr.Error(), prefix)
}

// Line returns the line of the i-th [[table]] entry, or 0.
func (m *Manifest) Line(table string, i int) int {
	lines := m.headers[table]
	if i < len(lines) {
		return lines[i]
	}
	return 0
}

func (m *Manifest) errorf(code diag.Code, table string, i int, what string, format string, args ...any) error {
	return &ManifestError{Code: code, Path: m.Path, Line: m.Line(table, i), What: what, Err: fmt.Errorf(format, args...)}
}

func (m *Manifest) validate() error {
	seen := make(map[string]string)
	declare := func(table string, i int, name string) error {
		what := table + " " + name
		if strings.TrimSpace(name) == "" {
			return m.errorf(diag.ManSyntax, table, i, table, "missing name")
		}
		if prev, dup := seen[name]; dup {
			return m.errorf(diag.ManDuplicateName, table, i, what, "name already declared by %s", prev)
		}
		seen[name] = what
		return nil
	}
	nominals := []struct {
		table string
		list  []NominalConfig
	}{
		{"struct", m.Config.Structs},
		{"class", m.Config.Classes},
		{"union", m.Config.Unions},
	}
	for _, group := range nominals {
		table := group.table
		for i, n := range group.list {
			if err := declare(table, i, n.Name); err != nil {
				return err
			}
			if n.AddressOnly && table != "struct" {
				return m.errorf(diag.ManSyntax, table, i, table+" "+n.Name, "address_only applies to structs only")
			}
		}
	}
	funcs := make(map[string]bool, len(m.Config.Funcs))
	for i, f := range m.Config.Funcs {
		if err := declare("func", i, f.Name); err != nil {
			return err
		}
		if strings.TrimSpace(f.Type) == "" {
			return m.errorf(diag.ManSyntax, "func", i, "func "+f.Name, "missing type")
		}
		funcs[f.Name] = true
	}
	for i, p := range m.Config.Partials {
		if err := declare("partial", i, p.Name); err != nil {
			return err
		}
		if !funcs[p.Func] {
			return m.errorf(diag.ManBadPartial, "partial", i, "partial "+p.Name, "unknown func %q", p.Func)
		}
	}
	return nil
}

// scanHeaders records where each [[table]] entry starts.
func scanHeaders(data []byte) map[string][]int {
	out := make(map[string][]int)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(text, "[[") {
			continue
		}
		end := strings.Index(text, "]]")
		if end < 0 {
			continue
		}
		name := strings.TrimSpace(text[2:end])
		out[name] = append(out[name], line)
	}
	return out
}
