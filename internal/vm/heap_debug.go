package vm

import (
	"fmt"
	"sort"

	"callgen/internal/diag"
	"callgen/internal/source"
)

type heapCounters struct {
	allocCount  uint64
	freeCount   uint64
	rcIncrCount uint64
	rcDecrCount uint64
}

// Stats is a snapshot of heap activity.
type Stats struct {
	Allocs   uint64
	Frees    uint64
	Live     int
	Retains  uint64
	Releases uint64
}

// Stats returns the heap counters.
func (vm *VM) Stats() Stats {
	return Stats{
		Allocs:   vm.heapCounters.allocCount,
		Frees:    vm.heapCounters.freeCount,
		Live:     len(vm.heap.objs),
		Retains:  vm.heapCounters.rcIncrCount,
		Releases: vm.heapCounters.rcDecrCount,
	}
}

func (s Stats) String() string {
	return fmt.Sprintf("allocs=%d frees=%d live=%d retains=%d releases=%d",
		s.Allocs, s.Frees, s.Live, s.Retains, s.Releases)
}

// Leaks reports every heap object still alive, in allocation order.
func (vm *VM) Leaks(loc source.Loc) []diag.Diagnostic {
	handles := make([]Handle, 0, len(vm.heap.objs))
	for h := range vm.heap.objs {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	out := make([]diag.Diagnostic, 0, len(handles))
	for _, h := range handles {
		obj := vm.heap.objs[h]
		out = append(out, diag.Diagnostic{
			Severity: diag.SevError,
			Code:     diag.VMLeak,
			Message:  fmt.Sprintf("object %d of %d bytes leaked with %d references", h, obj.size, obj.strong.Load()),
			Primary:  loc,
		})
	}
	return out
}
