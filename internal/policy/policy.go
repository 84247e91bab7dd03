package policy

import (
	"fmt"
	"slices"

	"retaincheck/internal/diag"
	"retaincheck/internal/graph"
)

const (
	DefaultBridgeMarker      = "Foundation.RegisterAttribute"
	DefaultSuppressionMarker = "System.Diagnostics.CodeAnalysis.UnconditionalSuppressMessageAttribute"
	DefaultWeakWrapper       = "System.WeakReference"
)

// RuleSetting is the per-rule configuration.
type RuleSetting struct {
	Enabled  bool
	Severity diag.Severity
}

// Policy bundles everything the rules read besides the graph.
// A Policy is not modified after Load/Default return it.
type Policy struct {
	Table              *Table
	BridgeMarkers      []graph.QualifiedName
	SuppressionMarkers []graph.QualifiedName
	WeakWrappers       []graph.QualifiedName
	// RequireBridgeHandler restricts MA0003 to handlers declared on bridge types.
	RequireBridgeHandler bool
	Rules                map[diag.Code]RuleSetting
}

// Default returns the built-in policy.
func Default() *Policy {
	p := &Policy{
		Table:                DefaultTable(),
		BridgeMarkers:        []graph.QualifiedName{q(DefaultBridgeMarker)},
		SuppressionMarkers:   []graph.QualifiedName{q(DefaultSuppressionMarker)},
		WeakWrappers:         []graph.QualifiedName{q(DefaultWeakWrapper)},
		RequireBridgeHandler: true,
		Rules:                make(map[diag.Code]RuleSetting, len(diag.AllRules)),
	}
	for _, code := range diag.AllRules {
		p.Rules[code] = RuleSetting{Enabled: true, Severity: diag.SevWarning}
	}
	return p
}

// Rule returns the setting for code, defaulting to an enabled warning.
func (p *Policy) Rule(code diag.Code) RuleSetting {
	if s, ok := p.Rules[code]; ok {
		return s
	}
	return RuleSetting{Enabled: true, Severity: diag.SevWarning}
}

// IsWeakWrapper reports whether t is one of the weak-reference wrappers.
// Generic instantiations match by namespace and base name.
func (p *Policy) IsWeakWrapper(t *graph.TypeNode) bool {
	if t == nil {
		return false
	}
	for _, w := range p.WeakWrappers {
		if t.Name.Namespace == w.Namespace && t.Name.BaseName() == w.BaseName() {
			return true
		}
	}
	return false
}

// WithRule returns a copy of p with one rule setting replaced.
func (p *Policy) WithRule(code diag.Code, s RuleSetting) *Policy {
	cp := *p
	cp.Rules = make(map[diag.Code]RuleSetting, len(p.Rules)+1)
	for k, v := range p.Rules {
		cp.Rules[k] = v
	}
	cp.Rules[code] = s
	return &cp
}

// Enabled lists the enabled rule codes in registration order.
func (p *Policy) Enabled() []diag.Code {
	out := make([]diag.Code, 0, len(diag.AllRules))
	for _, code := range diag.AllRules {
		if p.Rule(code).Enabled {
			out = append(out, code)
		}
	}
	return out
}

// Validate checks that the policy is usable by the rules.
func (p *Policy) Validate() error {
	if p.Table == nil {
		return fmt.Errorf("policy: missing safety table")
	}
	if len(p.BridgeMarkers) == 0 {
		return fmt.Errorf("policy: at least one bridge marker is required")
	}
	if slices.ContainsFunc(p.BridgeMarkers, graph.QualifiedName.IsZero) ||
		slices.ContainsFunc(p.SuppressionMarkers, graph.QualifiedName.IsZero) ||
		slices.ContainsFunc(p.WeakWrappers, graph.QualifiedName.IsZero) {
		return fmt.Errorf("policy: empty type name")
	}
	return nil
}
