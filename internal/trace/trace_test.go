package trace

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"off", LevelOff, false},
		{"PHASE", LevelPhase, false},
		{"detail", LevelDetail, false},
		{"debug", LevelDebug, false},
		{"verbose", LevelOff, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevelFiltersScopes(t *testing.T) {
	if LevelPhase.ShouldEmit(ScopeFunc) {
		t.Errorf("phase level must not emit func scope")
	}
	if !LevelDetail.ShouldEmit(ScopeFunc) {
		t.Errorf("detail level must emit func scope")
	}
	if LevelDetail.ShouldEmit(ScopeNode) {
		t.Errorf("detail level must not emit node scope")
	}
	if !LevelDebug.ShouldEmit(ScopeNode) {
		t.Errorf("debug level must emit node scope")
	}
}

func TestStreamTracerWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelDetail, FormatText)

	span := Begin(tr, ScopePass, "expand", 0)
	inner := Begin(tr, ScopeFunc, "sig:(Int) -> Int", span.ID())
	inner.WithExtra("params", "1").End("")
	Point(tr, ScopeNode, "cache-hit", "")
	span.End("done")

	out := buf.String()
	for _, want := range []string{"→ expand", "← expand (done)", "sig:(Int) -> Int {params=1}"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "cache-hit") {
		t.Errorf("node-scope point leaked at detail level:\n%s", out)
	}
}

func TestRingTracerWraps(t *testing.T) {
	tr := NewRingTracer(3, LevelDebug)
	for _, name := range []string{"a", "b", "c", "d"} {
		Point(tr, ScopeNode, name, "")
	}
	got := tr.Snapshot()
	if len(got) != 3 {
		t.Fatalf("snapshot len = %d, want 3", len(got))
	}
	if got[0].Name != "b" || got[2].Name != "d" {
		t.Errorf("snapshot order = %s,%s,%s", got[0].Name, got[1].Name, got[2].Name)
	}
}

func TestNDJSON(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelDebug, FormatNDJSON)
	Point(tr, ScopeNode, "cache-miss", "(Int) -> Int")
	if !strings.Contains(buf.String(), `"name":"cache-miss"`) {
		t.Errorf("unexpected ndjson: %s", buf.String())
	}
}

func TestContextPropagation(t *testing.T) {
	ctx := context.Background()
	if FromContext(ctx) != Nop {
		t.Fatalf("empty context must yield Nop")
	}
	tr := NewRingTracer(8, LevelDebug)
	ctx = WithTracer(ctx, tr)
	if FromContext(ctx) != Tracer(tr) {
		t.Fatalf("tracer not propagated")
	}
	span := Begin(tr, ScopePass, "emit", 0)
	ctx = WithSpan(ctx, span)
	if CurrentSpan(ctx) != span.ID() {
		t.Errorf("CurrentSpan = %d, want %d", CurrentSpan(ctx), span.ID())
	}
}

func TestNewOffIsNop(t *testing.T) {
	tr, err := New(Config{Level: LevelOff})
	if err != nil {
		t.Fatal(err)
	}
	if tr.Enabled() {
		t.Errorf("off tracer must be disabled")
	}
}
