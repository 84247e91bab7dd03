package rules

import (
	"retaincheck/internal/diag"
	"retaincheck/internal/graph"
)

// SubscriptionOwnership reports instance handlers of a bridge type subscribed
// to an event owned by another object: the publisher then retains the subscriber.
type SubscriptionOwnership struct{}

func (SubscriptionOwnership) Code() diag.Code { return diag.RuleSubscription }
func (SubscriptionOwnership) Pass() Pass      { return PassSubscriptions }

func (r SubscriptionOwnership) CheckSubscription(ctx *Context, s *graph.SubscriptionSite) *Finding {
	if !ctx.Classifier.IsBridgeType(s.Containing) {
		return nil
	}
	h := s.Handler
	if h == nil || h.IsStatic {
		return nil
	}
	if ctx.Policy.RequireBridgeHandler && !ctx.Classifier.IsBridgeType(h.Declaring) {
		return nil
	}
	// subscribing to one's own event
	if s.Target == graph.TargetIdentifier || s.Target == graph.TargetThis {
		return nil
	}
	return &Finding{Code: r.Code(), Span: s.ReportSpan(), Subject: h.Name, Site: s}
}
