// Package suppress decides whether a member carries a justification annotation
// that silences a rule.
package suppress

import (
	"retaincheck/internal/graph"
)

const (
	checkIDArg       = "CheckId"
	justificationArg = "Justification"
)

// Resolver matches annotations against the configured suppression markers.
type Resolver struct {
	markers []graph.QualifiedName
}

func New(markers []graph.QualifiedName) *Resolver {
	return &Resolver{markers: markers}
}

// IsSuppressed reports whether any suppression annotation on m names ruleID,
// either as the second of exactly two positional arguments or, failing that
// form, as CheckId.
func (r *Resolver) IsSuppressed(m *graph.MemberNode, ruleID string) bool {
	if m == nil {
		return false
	}
	_, ok := r.Find(m.Annotations, ruleID)
	return ok
}

// Find returns the first annotation that suppresses ruleID.
func (r *Resolver) Find(annotations []graph.Annotation, ruleID string) (*graph.Annotation, bool) {
	for i := range annotations {
		a := &annotations[i]
		if !r.isMarker(a) {
			continue
		}
		if id, ok := checkID(a); ok && id == ruleID {
			return a, true
		}
	}
	return nil, false
}

// checkID picks exactly one id per annotation: the positional pair when
// present, so a CheckId next to it is ignored.
func checkID(a *graph.Annotation) (string, bool) {
	if len(a.Positional) == 2 {
		return a.Positional[1].AsString()
	}
	v, ok := a.NamedArg(checkIDArg)
	if !ok {
		return "", false
	}
	return v.AsString()
}

// Justification returns the Justification argument of a, if any.
func Justification(a *graph.Annotation) string {
	if a == nil {
		return ""
	}
	v, ok := a.NamedArg(justificationArg)
	if !ok {
		return ""
	}
	s, _ := v.AsString()
	return s
}

func (r *Resolver) isMarker(a *graph.Annotation) bool {
	for _, m := range r.markers {
		if a.Is(m) {
			return true
		}
	}
	return false
}
