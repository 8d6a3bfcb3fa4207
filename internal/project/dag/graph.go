// Package dag orders named declarations by their dependencies.
package dag

import (
	"fmt"
	"slices"
)

// Graph holds dependency edges: Edges[from] lists what must come after from.
type Graph struct {
	Edges [][]NodeID
	Indeg []int
}

// Problem is an edge that could not be added.
type Problem struct {
	From, To string
	Msg      string
}

func (p Problem) Error() string { return p.Msg }

// BuildGraph adds an edge dep -> name for every dependency of name. Unknown
// names are reported rather than added; self edges are kept, since a
// declaration that needs itself is a cycle.
func BuildGraph(idx Index, deps map[string][]string) (Graph, []Problem) {
	n := len(idx.IDToName)
	g := Graph{
		Edges: make([][]NodeID, n),
		Indeg: make([]int, n),
	}
	var problems []Problem
	for _, name := range idx.IDToName {
		to := idx.NameToID[name]
		seen := make(map[NodeID]struct{}, len(deps[name]))
		for _, dep := range deps[name] {
			from, ok := idx.NameToID[dep]
			if !ok {
				problems = append(problems, Problem{From: dep, To: name, Msg: fmt.Sprintf("%s depends on unknown %s", name, dep)})
				continue
			}
			if _, dup := seen[from]; dup {
				continue
			}
			seen[from] = struct{}{}
			g.Edges[from] = append(g.Edges[from], to)
			g.Indeg[to]++
		}
	}
	for from := range g.Edges {
		if len(g.Edges[from]) > 1 {
			slices.Sort(g.Edges[from])
		}
	}
	return g, problems
}
