package driver

import "time"

// PhaseStatus reports the progress of a phase.
type PhaseStatus int

const (
	// PhaseStart indicates that a lowering phase has begun.
	PhaseStart PhaseStatus = iota
	// PhaseItem reports one finished item; Done and Total count them.
	PhaseItem
	PhaseEnd
)

// PhaseEvent describes a timing phase boundary or a finished item.
type PhaseEvent struct {
	Name    string
	Status  PhaseStatus
	Item    string
	Done    int
	Total   int
	Elapsed time.Duration
}

// PhaseObserver receives phase events emitted during Expand and Lower.
// Items of the expand phase are reported from worker goroutines.
type PhaseObserver func(PhaseEvent)
