// Package rules implements the three leak rules. Each rule is a pure function
// of one graph node and the shared read-only Context.
package rules

import (
	"retaincheck/internal/classify"
	"retaincheck/internal/diag"
	"retaincheck/internal/graph"
	"retaincheck/internal/policy"
	"retaincheck/internal/source"
	"retaincheck/internal/suppress"
)

// Pass is a traversal over one kind of node.
type Pass uint8

const (
	PassEvents Pass = iota
	PassMembers
	PassSubscriptions
)

func (p Pass) String() string {
	switch p {
	case PassEvents:
		return "events"
	case PassMembers:
		return "members"
	case PassSubscriptions:
		return "subscriptions"
	}
	return "unknown"
}

// Context bundles the lookups shared by every rule.
type Context struct {
	Classifier *classify.Classifier
	Policy     *policy.Policy
	Suppress   *suppress.Resolver
}

// NewContext prepares the shared lookups for g.
func NewContext(g *graph.Graph, p *policy.Policy) *Context {
	return &Context{
		Classifier: classify.New(g, p.BridgeMarkers),
		Policy:     p,
		Suppress:   suppress.New(p.SuppressionMarkers),
	}
}

// Finding is a rule hit together with the node it was found on.
// Exactly one of Member and Site is set.
type Finding struct {
	Code    diag.Code
	Span    source.Span
	Subject string
	Member  *graph.MemberNode
	Site    *graph.SubscriptionSite
}

type Rule interface {
	Code() diag.Code
	Pass() Pass
}

// MemberRule inspects events, fields and properties.
type MemberRule interface {
	Rule
	CheckMember(ctx *Context, m *graph.MemberNode) *Finding
}

// SubscriptionRule inspects "target += handler" statements.
type SubscriptionRule interface {
	Rule
	CheckSubscription(ctx *Context, s *graph.SubscriptionSite) *Finding
}

// All returns the registered rules in code order.
func All() []Rule {
	return []Rule{EventExposure{}, StrongMember{}, SubscriptionOwnership{}}
}

func memberFinding(code diag.Code, m *graph.MemberNode) *Finding {
	return &Finding{Code: code, Span: m.NameSpan, Subject: m.Name, Member: m}
}
