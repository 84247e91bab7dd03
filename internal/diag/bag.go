package diag

// Bag collects diagnostics up to a limit. A limit of zero means unbounded.
type Bag struct {
	items   []Diagnostic
	max     int
	dropped int
}

func NewBag(max int) *Bag {
	if max < 0 {
		max = 0
	}
	return &Bag{
		items: make([]Diagnostic, 0, min(max, 64)),
		max:   max,
	}
}

// Add appends d unless the limit is reached, in which case it is counted as
// dropped and Add returns false.
func (b *Bag) Add(d Diagnostic) bool {
	if b.max > 0 && len(b.items) >= b.max {
		b.dropped++
		return false
	}
	b.items = append(b.items, d)
	return true
}

// Dropped returns how many diagnostics were rejected by the limit.
func (b *Bag) Dropped() int {
	return b.dropped
}

func (b *Bag) Len() int {
	return len(b.items)
}

// Items returns the collected diagnostics. The slice aliases the bag's
// storage; do not modify it.
func (b *Bag) Items() []Diagnostic {
	return b.items
}

// Merge appends the diagnostics of other in their order, honouring the limit,
// and returns how many were accepted.
func (b *Bag) Merge(other *Bag) int {
	if other == nil {
		return 0
	}
	before := len(b.items)
	for _, d := range other.items {
		b.Add(d)
	}
	b.dropped += other.dropped
	return len(b.items) - before
}
