package diag

import "retaincheck/internal/source"

type dedupKey struct {
	code    Code
	file    source.FileID
	start   uint32
	end     uint32
	subject string
}

// DedupReporter wraps another Reporter and drops diagnostics that repeat
// the code, primary span and subject of an earlier one.
type DedupReporter struct {
	next Reporter
	seen map[dedupKey]struct{}
}

// NewDedupReporter returns a Reporter that filters out duplicates while
// forwarding unique diagnostics to the provided reporter.
func NewDedupReporter(next Reporter) *DedupReporter {
	return &DedupReporter{
		next: next,
		seen: make(map[dedupKey]struct{}),
	}
}

func (r *DedupReporter) Report(d Diagnostic) {
	if r == nil {
		return
	}
	key := dedupKey{
		code:    d.Code,
		file:    d.Primary.File,
		start:   d.Primary.Start,
		end:     d.Primary.End,
		subject: d.Subject,
	}
	if _, ok := r.seen[key]; ok {
		return
	}
	r.seen[key] = struct{}{}
	if r.next != nil {
		r.next.Report(d)
	}
}
