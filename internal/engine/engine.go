// Package engine runs the leak rules over a built graph.
//
// Every declared type is one unit of work. Units are analyzed concurrently
// and their diagnostics merged in graph order, so the output does not depend
// on scheduling. Within a unit the order is events, then fields and
// properties, then subscriptions, each in declaration order.
package engine

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"golang.org/x/sync/errgroup"

	"retaincheck/internal/diag"
	"retaincheck/internal/graph"
	"retaincheck/internal/policy"
	"retaincheck/internal/propose"
	"retaincheck/internal/rules"
	"retaincheck/internal/trace"
)

type Options struct {
	// Jobs limits concurrent units; <= 0 means GOMAXPROCS.
	Jobs int
	// MaxDiagnostics caps the merged output; 0 means unbounded.
	MaxDiagnostics int
	// Fixes attaches proposed edits to every diagnostic.
	Fixes    bool
	Propose  propose.Options
	Observer ProgressObserver
}

// Stats summarizes one run.
type Stats struct {
	Units         int
	Analyzed      int
	Members       int
	Subscriptions int
	// Skipped counts malformed nodes dropped by the graph builder or the engine.
	Skipped  int
	Dropped  int
	Findings map[diag.Code]int
}

// Result is the outcome of Run. Findings[i] is the origin of Diagnostics[i].
type Result struct {
	Diagnostics []diag.Diagnostic
	Findings    []rules.Finding
	// Partial is set when the context ended before every unit was analyzed.
	Partial bool
	Stats   Stats
}

// Engine holds the per-graph lookups shared by all units. It is safe to Run
// more than once and from several goroutines.
type Engine struct {
	graph    *graph.Graph
	policy   *policy.Policy
	rctx     *rules.Context
	proposer *propose.Proposer
	opts     Options

	memberRules [2][]rules.MemberRule
	subRules    []rules.SubscriptionRule
}

// New prepares an engine for g. Disabled rules are not registered.
func New(g *graph.Graph, p *policy.Policy, opts Options) (*Engine, error) {
	if g == nil {
		return nil, fmt.Errorf("engine: nil graph")
	}
	if p == nil {
		p = policy.Default()
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		graph:  g,
		policy: p,
		rctx:   rules.NewContext(g, p),
		opts:   opts,
	}
	if opts.Fixes {
		e.proposer = propose.New(g.Files, opts.Propose)
	}
	for _, r := range rules.All() {
		if !p.Rule(r.Code()).Enabled {
			continue
		}
		switch r.Pass() {
		case rules.PassEvents, rules.PassMembers:
			if mr, ok := r.(rules.MemberRule); ok {
				e.memberRules[r.Pass()] = append(e.memberRules[r.Pass()], mr)
			}
		case rules.PassSubscriptions:
			if sr, ok := r.(rules.SubscriptionRule); ok {
				e.subRules = append(e.subRules, sr)
			}
		}
	}
	return e, nil
}

type unitResult struct {
	done bool
	bag  *diag.Bag
	// rep deduplicates into bag; findings[i] is the origin of bag.Items()[i].
	rep      diag.Reporter
	findings []rules.Finding
	members  int
	subs     int
	skipped  int
}

// Run analyzes every declared type. Cancellation is checked between units;
// a cancelled run returns what was finished with Partial set.
func (e *Engine) Run(ctx context.Context) *Result {
	tr := trace.FromContext(ctx)
	units := e.graph.Declared()

	jobs := e.opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	span := trace.Begin(tr, trace.ScopePass, "analyze", trace.CurrentSpan(ctx))
	span.WithExtra("units", strconv.Itoa(len(units))).WithExtra("jobs", strconv.Itoa(jobs))
	for _, s := range e.graph.Skipped {
		trace.Point(tr, trace.ScopeNode, "skip:"+s.Node, s.Reason, span.ID())
	}

	results := make([]unitResult, len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(jobs, len(units))))

	for i, t := range units {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			e.notify(ProgressEvent{Unit: t.Name.String(), Index: i, Total: len(units), Status: UnitStart})
			results[i] = e.analyzeUnit(tr, t, span.ID())
			e.notify(ProgressEvent{
				Unit:     t.Name.String(),
				Index:    i,
				Total:    len(units),
				Status:   UnitDone,
				Findings: results[i].bag.Len(),
			})
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never fail

	res := e.merge(units, results)
	span.WithExtra("findings", strconv.Itoa(len(res.Diagnostics)))
	if res.Partial {
		span.End("partial")
	} else {
		span.End("")
	}
	return res
}

func (e *Engine) notify(ev ProgressEvent) {
	if e.opts.Observer != nil {
		e.opts.Observer(ev)
	}
}

func (e *Engine) merge(units []*graph.TypeNode, results []unitResult) *Result {
	bag := diag.NewBag(e.opts.MaxDiagnostics)
	res := &Result{
		Stats: Stats{
			Units:    len(units),
			Skipped:  len(e.graph.Skipped),
			Findings: make(map[diag.Code]int, len(diag.AllRules)),
		},
	}
	for i := range results {
		r := &results[i]
		if !r.done {
			res.Partial = true
			e.notify(ProgressEvent{Unit: units[i].Name.String(), Index: i, Total: len(units), Status: UnitCancelled})
			continue
		}
		res.Stats.Analyzed++
		res.Stats.Members += r.members
		res.Stats.Subscriptions += r.subs
		res.Stats.Skipped += r.skipped
		accepted := bag.Merge(r.bag)
		for _, f := range r.findings[:accepted] {
			res.Findings = append(res.Findings, f)
			res.Stats.Findings[f.Code]++
		}
	}
	res.Diagnostics = bag.Items()
	res.Stats.Dropped = bag.Dropped()
	return res
}

func (e *Engine) analyzeUnit(tr trace.Tracer, t *graph.TypeNode, parent uint64) unitResult {
	span := trace.Begin(tr, trace.ScopeUnit, "unit:"+t.Name.String(), parent)
	bag := diag.NewBag(0)
	out := unitResult{done: true, bag: bag, rep: diag.NewDedupReporter(diag.BagReporter{Bag: bag})}

	for pass := rules.PassEvents; pass <= rules.PassMembers; pass++ {
		for _, m := range t.Members {
			if (pass == rules.PassEvents) != (m.Kind == graph.MemberEvent) {
				continue
			}
			if reason := malformedMember(m); reason != "" {
				out.skipped++
				trace.Point(tr, trace.ScopeNode, "skip:"+m.String(), reason, span.ID())
				continue
			}
			out.members++
			for _, r := range e.memberRules[pass] {
				if f := r.CheckMember(e.rctx, m); f != nil {
					e.report(&out, f)
				}
			}
		}
	}

	for _, s := range t.Subscriptions {
		if reason := malformedSite(s); reason != "" {
			out.skipped++
			trace.Point(tr, trace.ScopeNode, "skip:"+t.Name.String()+"."+s.Member, reason, span.ID())
			continue
		}
		out.subs++
		for _, r := range e.subRules {
			if f := r.CheckSubscription(e.rctx, s); f != nil {
				e.report(&out, f)
			}
		}
	}

	span.WithExtra("findings", strconv.Itoa(out.bag.Len())).End("")
	return out
}

// report emits f into the unit's reporter and keeps f only when the
// diagnostic was not a duplicate.
func (e *Engine) report(out *unitResult, f *rules.Finding) {
	b := diag.NewReportBuilder(out.rep, e.policy.Rule(f.Code).Severity, f.Code, f.Span, f.Subject)
	switch {
	case f.Member != nil && f.Member.Containing != nil && !f.Member.Containing.Decl.Empty():
		b.WithNote(f.Member.Containing.Decl, "declared in bridge type "+f.Member.Containing.Name.String())
	case f.Site != nil && !f.Site.Stmt.Empty():
		b.WithNote(f.Site.Stmt, "subscription in "+f.Site.Member)
	}
	if e.proposer != nil {
		for _, fx := range e.proposer.Fixes(f) {
			b.WithFixSuggestion(fx)
		}
	}
	before := out.bag.Len()
	b.Emit()
	if out.bag.Len() > before {
		out.findings = append(out.findings, *f)
	}
}

// malformedMember returns why m cannot be analyzed, or "".
func malformedMember(m *graph.MemberNode) string {
	switch {
	case m.Containing == nil:
		return "unknown containing type"
	case m.Type == nil:
		return "unresolved declared type"
	case m.NameSpan.Empty():
		return "missing name location"
	}
	return ""
}

func malformedSite(s *graph.SubscriptionSite) string {
	switch {
	case s.Containing == nil:
		return "unknown containing type"
	case s.ReportSpan().Empty():
		return "missing handler location"
	}
	return ""
}
