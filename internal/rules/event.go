package rules

import (
	"retaincheck/internal/diag"
	"retaincheck/internal/graph"
)

// EventExposure reports field-backed, non-private events on bridge types.
// Every subscriber stays reachable from the native object for its whole lifetime.
type EventExposure struct{}

func (EventExposure) Code() diag.Code { return diag.RuleEventExposure }
func (EventExposure) Pass() Pass      { return PassEvents }

func (r EventExposure) CheckMember(ctx *Context, m *graph.MemberNode) *Finding {
	if m.Kind != graph.MemberEvent || m.Access == graph.AccessPrivate {
		return nil
	}
	if !ctx.Classifier.IsBridgeType(m.Containing) {
		return nil
	}
	if ctx.Suppress.IsSuppressed(m, r.Code().ID()) {
		return nil
	}
	// a hand-written add accessor manages its own subscribers
	if m.HasAddAccessor {
		return nil
	}
	return memberFinding(r.Code(), m)
}
