package engine

// UnitStatus reports what happened to one top-level declaration.
type UnitStatus int

const (
	// UnitStart is sent when a worker picks the declaration up.
	UnitStart UnitStatus = iota
	UnitDone
	// UnitCancelled is sent for declarations never analyzed because the context ended.
	UnitCancelled
)

func (s UnitStatus) String() string {
	switch s {
	case UnitStart:
		return "start"
	case UnitDone:
		return "done"
	case UnitCancelled:
		return "cancelled"
	}
	return "unknown"
}

// ProgressEvent describes one unit transition.
type ProgressEvent struct {
	Unit     string // qualified type name
	Index    int    // position among the declared types
	Total    int
	Status   UnitStatus
	Findings int // set on UnitDone
}

// ProgressObserver receives unit events. It is called from worker goroutines
// and must be safe for concurrent use.
type ProgressObserver func(ProgressEvent)
