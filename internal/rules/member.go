package rules

import (
	"retaincheck/internal/classify"
	"retaincheck/internal/diag"
	"retaincheck/internal/graph"
)

// StrongMember reports fields and auto-properties of bridge types that hold a
// strong reference able to close a retain cycle.
type StrongMember struct{}

func (StrongMember) Code() diag.Code { return diag.RuleStrongMember }
func (StrongMember) Pass() Pass      { return PassMembers }

func (r StrongMember) CheckMember(ctx *Context, m *graph.MemberNode) *Finding {
	switch m.Kind {
	case graph.MemberField:
	case graph.MemberProperty:
		if !m.IsAuto {
			return nil
		}
	default:
		return nil
	}
	if !ctx.Classifier.IsBridgeType(m.Containing) {
		return nil
	}
	if ctx.Suppress.IsSuppressed(m, r.Code().ID()) {
		return nil
	}
	if !r.holdsStrongReference(ctx, m.Containing, m.Type) {
		return nil
	}
	return memberFinding(r.Code(), m)
}

func (StrongMember) holdsStrongReference(ctx *Context, containing, t *graph.TypeNode) bool {
	if t.IsValueType || ctx.Policy.IsWeakWrapper(t) {
		return false
	}
	if t.Kind == graph.KindArray {
		// arrays of references are reported whatever the element type is
		return t.Elem != nil && !t.Elem.IsValueType
	}
	if ctx.Policy.Table.IsSafeType(t) {
		return false
	}
	if !classify.IsObject(t) && !ctx.Classifier.IsDelegateType(t) && !ctx.Classifier.IsBridgeType(t) {
		return false
	}
	return !ctx.Policy.Table.IsGenerallySafe(containing, t)
}
