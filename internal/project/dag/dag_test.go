package dag

import (
	"slices"
	"testing"
)

func batchesToNames(idx Index, batches [][]NodeID) [][]string {
	out := make([][]string, len(batches))
	for i, batch := range batches {
		out[i] = idx.Names(batch)
	}
	return out
}

func TestBuildIndexSortsAndDedups(t *testing.T) {
	idx := BuildIndex([]string{"Point", "Line", "Point", "", "Box"})
	want := []string{"Box", "Line", "Point"}
	if !slices.Equal(idx.IDToName, want) {
		t.Fatalf("IDToName = %v, want %v", idx.IDToName, want)
	}
	for i, name := range want {
		if id, ok := idx.NameToID[name]; !ok || int(id) != i {
			t.Fatalf("NameToID[%q] = %v, want %d", name, id, i)
		}
	}
}

func TestToposortBatches(t *testing.T) {
	idx := BuildIndex([]string{"Point", "Line", "Shape", "Color"})
	g, problems := BuildGraph(idx, map[string][]string{
		"Line":  {"Point", "Point"},
		"Shape": {"Line", "Color"},
	})
	if len(problems) != 0 {
		t.Fatalf("problems: %v", problems)
	}
	topo := ToposortKahn(g)
	if topo.Cyclic {
		t.Fatalf("unexpected cycle: %v", idx.Names(topo.Cycles))
	}
	want := [][]string{{"Color", "Point"}, {"Line"}, {"Shape"}}
	got := batchesToNames(idx, topo.Batches)
	if len(got) != len(want) {
		t.Fatalf("batches = %v, want %v", got, want)
	}
	for i := range want {
		if !slices.Equal(got[i], want[i]) {
			t.Fatalf("batches = %v, want %v", got, want)
		}
	}
	if len(topo.Order) != 4 {
		t.Fatalf("order = %v", idx.Names(topo.Order))
	}
}

func TestToposortReportsCycles(t *testing.T) {
	tests := []struct {
		name string
		deps map[string][]string
		want []string
	}{
		{"self", map[string][]string{"Node": {"Node"}}, []string{"Node"}},
		{"pair", map[string][]string{"A": {"B"}, "B": {"A"}, "C": {"A"}}, []string{"A", "B", "C"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var names []string
			for name, deps := range tt.deps {
				names = append(names, name)
				names = append(names, deps...)
			}
			idx := BuildIndex(names)
			g, _ := BuildGraph(idx, tt.deps)
			topo := ToposortKahn(g)
			if !topo.Cyclic {
				t.Fatalf("cycle not detected")
			}
			if got := idx.Names(topo.Cycles); !slices.Equal(got, tt.want) {
				t.Fatalf("cycles = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildGraphReportsUnknownNames(t *testing.T) {
	idx := BuildIndex([]string{"Line"})
	_, problems := BuildGraph(idx, map[string][]string{"Line": {"Point"}})
	if len(problems) != 1 || problems[0].From != "Point" || problems[0].To != "Line" {
		t.Fatalf("problems = %v", problems)
	}
}
