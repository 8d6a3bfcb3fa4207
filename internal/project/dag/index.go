package dag

import "sort"

// NodeID is a dense index into an Index.
type NodeID uint32

// Index assigns dense IDs to names in sorted order.
type Index struct {
	NameToID map[string]NodeID
	IDToName []string
}

// BuildIndex collects the unique names, sorts them and numbers them.
func BuildIndex(names []string) Index {
	uniq := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name != "" {
			uniq[name] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(uniq))
	for name := range uniq {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	nameToID := make(map[string]NodeID, len(sorted))
	for i, name := range sorted {
		nameToID[name] = NodeID(i)
	}
	return Index{NameToID: nameToID, IDToName: sorted}
}

// Names maps ids back to names.
func (idx Index) Names(ids []NodeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = idx.IDToName[int(id)]
	}
	return out
}
