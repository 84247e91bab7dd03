package testkit

import (
	"fmt"

	"fortio.org/safecast"

	"retaincheck/internal/graph"
	"retaincheck/internal/source"
)

// CheckSpanInvariants runs a minimal set of span invariants on a built graph:
// 1) every member name span is non-empty and inside its file
// 2) name and type spans lie within the member declaration when one is given
// 3) subscription handler spans lie within the statement span
func CheckSpanInvariants(g *graph.Graph) error {
	if g == nil || g.Files == nil {
		return fmt.Errorf("nil graph or file set")
	}
	for _, m := range g.Members {
		if err := checkInFile(g.Files, m.NameSpan); err != nil {
			return fmt.Errorf("%s: name: %w", m, err)
		}
		if m.NameSpan.Empty() {
			return fmt.Errorf("%s: empty name span", m)
		}
		if m.Decl.Empty() {
			continue
		}
		if !m.Decl.Contains(m.NameSpan) {
			return fmt.Errorf("%s: name span %v outside declaration %v", m, m.NameSpan, m.Decl)
		}
		if !m.TypeSpan.Empty() && !m.Decl.Contains(m.TypeSpan) {
			return fmt.Errorf("%s: type span %v outside declaration %v", m, m.TypeSpan, m.Decl)
		}
	}
	for _, s := range g.Subscriptions {
		if err := checkInFile(g.Files, s.HandlerSpan); err != nil {
			return fmt.Errorf("subscription in %s: %w", s.Containing, err)
		}
		if s.Stmt.Empty() {
			continue
		}
		if !s.Stmt.Contains(s.HandlerSpan) {
			return fmt.Errorf("subscription in %s: handler %v outside statement %v", s.Containing, s.HandlerSpan, s.Stmt)
		}
		if s.Qualified && !s.HandlerSpan.Contains(s.HandlerNameSpan) {
			return fmt.Errorf("subscription in %s: handler name %v outside handler %v", s.Containing, s.HandlerNameSpan, s.HandlerSpan)
		}
	}
	return nil
}

func checkInFile(fs *source.FileSet, sp source.Span) error {
	f := fs.Get(sp.File)
	if f == nil {
		return fmt.Errorf("unknown file %d", sp.File)
	}
	if !f.HasText() {
		return nil
	}
	lenContent, err := safecast.Conv[uint32](len(f.Content))
	if err != nil {
		return fmt.Errorf("len content overflow: %w", err)
	}
	if sp.End < sp.Start || sp.End > lenContent {
		return fmt.Errorf("span %v beyond content (%d bytes)", sp, lenContent)
	}
	return nil
}
