package driver

import "time"

// PhaseStatus reports whether a phase started or finished.
type PhaseStatus int

const (
	// PhaseStart indicates that a driver phase has begun.
	PhaseStart PhaseStatus = iota
	PhaseEnd
)

// Driver phase names.
const (
	PhaseLoad    = "load"
	PhaseCache   = "cache"
	PhaseAnalyze = "analyze"
	PhaseStore   = "store"
)

// PhaseEvent describes a timing phase boundary.
type PhaseEvent struct {
	Name    string
	Status  PhaseStatus
	Elapsed time.Duration
}

// PhaseObserver receives phase events emitted during Check.
type PhaseObserver func(PhaseEvent)
