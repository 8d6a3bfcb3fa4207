package ui

import (
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"

	"callgen/internal/buildpipeline"
)

func TestRenderSigTableAligns(t *testing.T) {
	rows := []SigRow{
		{Name: "combine", Type: "(@owned Int, Point) -> Point", Signature: "native { i32, double } (i64, i32, double)", Source: "expanded"},
		{Name: "café", Type: "() -> ()", Signature: "native void ()", Source: "disk"},
	}
	out := RenderSigTable(rows, 0, false)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines %q", lines)
	}
	col := strings.Index(lines[0], "SOURCE")
	for _, l := range lines[1:] {
		// runewidth columns, not bytes: "café" has a two-byte rune
		if got := runewidth.StringWidth(l) - runewidth.StringWidth(strings.Fields(l)[len(strings.Fields(l))-1]); got != col {
			t.Errorf("source column at %d, want %d in %q", got, col, l)
		}
	}
}

func TestRenderSigTableTruncates(t *testing.T) {
	rows := []SigRow{{
		Name:      "f",
		Type:      strings.Repeat("T", 60),
		Signature: strings.Repeat("S", 60),
		Source:    "expanded",
	}}
	out := RenderSigTable(rows, 60, false)
	for _, l := range strings.Split(strings.TrimSuffix(out, "\n"), "\n") {
		if w := runewidth.StringWidth(l); w > 60 {
			t.Errorf("line of width %d: %q", w, l)
		}
	}
	if !strings.Contains(out, "...") {
		t.Errorf("nothing truncated:\n%s", out)
	}
	if RenderSigTable(nil, 80, true) != "" {
		t.Errorf("empty table rendered")
	}
}

func TestProgressModelTracksItems(t *testing.T) {
	m := NewProgressModel("lower", []string{"add", "add_one"}, nil).(*progressModel)
	m.Update(eventMsg(buildpipeline.Event{Stage: buildpipeline.StageExpand, Status: buildpipeline.StatusWorking}))
	m.Update(eventMsg(buildpipeline.Event{Item: "add", Stage: buildpipeline.StageExpand, Status: buildpipeline.StatusWorking}))
	m.Update(eventMsg(buildpipeline.Event{Item: "add_one", Stage: buildpipeline.StageEmit, Status: buildpipeline.StatusError}))
	m.Update(eventMsg(buildpipeline.Event{Item: "unknown", Stage: buildpipeline.StageEmit, Status: buildpipeline.StatusDone}))

	if m.stageLabel != "expanding" {
		t.Errorf("stage label %q", m.stageLabel)
	}
	if got := m.items[0].status; got != "expanded" {
		t.Errorf("add is %q", got)
	}
	if got := m.items[1].status; got != "error" {
		t.Errorf("add_one is %q", got)
	}
	view := m.View()
	if !strings.Contains(view, "lower (expanding)") || !strings.Contains(view, "add_one") {
		t.Errorf("view:\n%s", view)
	}
	m.Update(doneMsg{})
	if !m.done || !strings.Contains(m.View(), "done: lower") {
		t.Errorf("model not finished")
	}
}
