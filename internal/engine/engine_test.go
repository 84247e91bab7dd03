package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retaincheck/internal/diag"
	"retaincheck/internal/graph"
	"retaincheck/internal/policy"
	"retaincheck/internal/testkit"
	"retaincheck/internal/trace"
)

const bridgeSrc = `class Bridge : UIView
{
	public event EventHandler Clicked;
	UIView other;
	WeakReference<UIView> weakOther;
	CALayer layer;

	public Bridge(UIButton button)
	{
		button.TouchUpInside += OnHandler;
		this.TouchUpInside += OnHandler;
		button.TouchUpInside += OnStatic;
	}

	public void OnHandler(object s, EventArgs e) { }
	public static void OnStatic(object s, EventArgs e) { }
}
`

func bridgeWorld(t *testing.T) *testkit.World {
	t.Helper()
	w := testkit.NewWorld("Bridge.cs", bridgeSrc)
	w.Class("Bridge", "App.Bridge", "UIView", "class Bridge")
	return w
}

func build(t *testing.T, w *testkit.World) *graph.Graph {
	t.Helper()
	g, err := w.Build()
	require.NoError(t, err)
	return g
}

func run(t *testing.T, g *graph.Graph, p *policy.Policy, opts Options) *Result {
	t.Helper()
	e, err := New(g, p, opts)
	require.NoError(t, err)
	return e.Run(context.Background())
}

type hit struct {
	ID      string
	Subject string
}

func hits(res *Result) []hit {
	out := make([]hit, 0, len(res.Diagnostics))
	for _, d := range res.Diagnostics {
		out = append(out, hit{d.Code.ID(), d.Subject})
	}
	return out
}

func TestScenarioEventExposure(t *testing.T) {
	w := bridgeWorld(t)
	w.Member(graph.MemberEvent, "Bridge", "public event EventHandler Clicked;", "Clicked", "EventHandler", "EventHandler")
	res := run(t, build(t, w), nil, Options{})

	require.Equal(t, []hit{{"MA0001", "Clicked"}}, hits(res))
	d := res.Diagnostics[0]
	assert.Equal(t, diag.SevWarning, d.Severity)
	text, ok := w.Files.Text(d.Primary)
	require.True(t, ok)
	assert.Equal(t, "Clicked", text)
	assert.False(t, res.Partial)
}

func TestScenarioEventSuppressed(t *testing.T) {
	w := bridgeWorld(t)
	w.Member(graph.MemberEvent, "Bridge", "public event EventHandler Clicked;", "Clicked", "EventHandler", "EventHandler",
		testkit.WithAnnotations(testkit.Suppression("MA0001")))
	res := run(t, build(t, w), nil, Options{})
	assert.Empty(t, res.Diagnostics)
}

func TestScenarioStrongMemberAndWeakWrapper(t *testing.T) {
	w := bridgeWorld(t)
	w.Member(graph.MemberField, "Bridge", "UIView other;", "other", "UIView", "UIView")
	res := run(t, build(t, w), nil, Options{})
	assert.Equal(t, []hit{{"MA0002", "other"}}, hits(res))

	w = bridgeWorld(t)
	w.External("WeakUIView", "System.WeakReference`1<UIKit.UIView>", "WeakReference")
	w.Member(graph.MemberField, "Bridge", "WeakReference<UIView> weakOther;", "weakOther", "WeakReference<UIView>", "WeakUIView")
	res = run(t, build(t, w), nil, Options{})
	assert.Empty(t, res.Diagnostics)
}

func TestScenarioSubscription(t *testing.T) {
	w := bridgeWorld(t)
	h := w.Method("Bridge", "public void OnHandler(object s, EventArgs e) { }", "OnHandler")
	w.Subscribe("Bridge", ".ctor", "button.TouchUpInside += OnHandler;", h)
	res := run(t, build(t, w), nil, Options{})
	assert.Equal(t, []hit{{"MA0003", "OnHandler"}}, hits(res))

	w = bridgeWorld(t)
	st := w.Method("Bridge", "public static void OnStatic(object s, EventArgs e) { }", "OnStatic")
	w.Subscribe("Bridge", ".ctor", "button.TouchUpInside += OnStatic;", st)
	res = run(t, build(t, w), nil, Options{})
	assert.Empty(t, res.Diagnostics, "static handler")

	w = bridgeWorld(t)
	h = w.Method("Bridge", "public void OnHandler(object s, EventArgs e) { }", "OnHandler")
	w.Subscribe("Bridge", ".ctor", "this.TouchUpInside += OnHandler;", h)
	res = run(t, build(t, w), nil, Options{})
	assert.Empty(t, res.Diagnostics, "this-qualified target")
}

func TestScenarioSafeWhenInside(t *testing.T) {
	w := bridgeWorld(t)
	w.Member(graph.MemberField, "Bridge", "CALayer layer;", "layer", "CALayer", "CALayer")
	res := run(t, build(t, w), nil, Options{})
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, 1, res.Stats.Members)
}

// orderedSrc declares three bridge types whose members are deliberately
// listed fields-first so the pass order is visible in the output.
const orderedSrc = `class A : UIView
{
	UIView a1;
	public event EventHandler AEvent;
	object a2;
	public A(UIButton b) { b.TouchUpInside += OnA; }
	public void OnA(object s, EventArgs e) { }
}
class B : UIView
{
	Action b1;
	public event EventHandler BEvent;
	public B(UIButton b) { b.TouchUpInside += OnB; }
	public void OnB(object s, EventArgs e) { }
}
class C : UIView
{
	public event EventHandler CEvent;
	UIView c1;
}
`

func orderedGraph(t *testing.T) *graph.Graph {
	t.Helper()
	w := testkit.NewWorld("Ordered.cs", orderedSrc)
	w.Class("A", "App.A", "UIView", "class A")
	w.Class("B", "App.B", "UIView", "class B")
	w.Class("C", "App.C", "UIView", "class C")
	w.Member(graph.MemberField, "A", "UIView a1;", "a1", "UIView", "UIView")
	w.Member(graph.MemberEvent, "A", "public event EventHandler AEvent;", "AEvent", "EventHandler", "EventHandler")
	w.Member(graph.MemberField, "A", "object a2;", "a2", "object", "object")
	w.Subscribe("A", ".ctor", "b.TouchUpInside += OnA;", w.Method("A", "public void OnA(object s, EventArgs e) { }", "OnA"))
	w.Member(graph.MemberField, "B", "Action b1;", "b1", "Action", "Action")
	w.Member(graph.MemberEvent, "B", "public event EventHandler BEvent;", "BEvent", "EventHandler", "EventHandler")
	w.Subscribe("B", ".ctor", "b.TouchUpInside += OnB;", w.Method("B", "public void OnB(object s, EventArgs e) { }", "OnB"))
	w.Member(graph.MemberEvent, "C", "public event EventHandler CEvent;", "CEvent", "EventHandler", "EventHandler")
	w.Member(graph.MemberField, "C", "UIView c1;", "c1", "UIView", "UIView")
	return build(t, w)
}

var orderedWant = []hit{
	{"MA0001", "AEvent"}, {"MA0002", "a1"}, {"MA0002", "a2"}, {"MA0003", "OnA"},
	{"MA0001", "BEvent"}, {"MA0002", "b1"}, {"MA0003", "OnB"},
	{"MA0001", "CEvent"}, {"MA0002", "c1"},
}

func TestDiscoveryOrderStableAcrossJobs(t *testing.T) {
	g := orderedGraph(t)
	for _, jobs := range []int{1, 2, 3, 16} {
		t.Run(fmt.Sprintf("jobs=%d", jobs), func(t *testing.T) {
			res := run(t, g, nil, Options{Jobs: jobs})
			assert.Equal(t, orderedWant, hits(res))
			assert.Equal(t, 3, res.Stats.Analyzed)
			assert.Equal(t, 3, res.Stats.Findings[diag.RuleEventExposure])
			require.Len(t, res.Findings, len(res.Diagnostics))
			for i := range res.Findings {
				assert.Equal(t, res.Diagnostics[i].Subject, res.Findings[i].Subject)
			}
		})
	}
}

func TestRunTwiceSameResult(t *testing.T) {
	g := orderedGraph(t)
	e, err := New(g, nil, Options{Jobs: 4})
	require.NoError(t, err)
	first := e.Run(context.Background())
	second := e.Run(context.Background())
	assert.Equal(t, first.Diagnostics, second.Diagnostics)
	assert.Equal(t, first.Stats, second.Stats)
}

func TestCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e, err := New(orderedGraph(t), nil, Options{})
	require.NoError(t, err)
	res := e.Run(ctx)
	assert.True(t, res.Partial)
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, 0, res.Stats.Analyzed)
}

func TestCancelBetweenUnitsYieldsPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var statuses []UnitStatus
	e, err := New(orderedGraph(t), nil, Options{
		Jobs: 1,
		Observer: func(ev ProgressEvent) {
			mu.Lock()
			statuses = append(statuses, ev.Status)
			mu.Unlock()
			if ev.Status == UnitDone && ev.Index == 0 {
				cancel()
			}
		},
	})
	require.NoError(t, err)
	res := e.Run(ctx)

	assert.True(t, res.Partial)
	assert.Equal(t, 1, res.Stats.Analyzed)
	assert.Equal(t, orderedWant[:4], hits(res))
	assert.Equal(t, []UnitStatus{UnitStart, UnitDone, UnitCancelled, UnitCancelled}, statuses)
}

func TestRuleSettingsFromPolicy(t *testing.T) {
	g := orderedGraph(t)
	p := policy.Default().
		WithRule(diag.RuleEventExposure, policy.RuleSetting{Enabled: false}).
		WithRule(diag.RuleSubscription, policy.RuleSetting{Enabled: true, Severity: diag.SevError})
	res := run(t, g, p, Options{})

	for _, d := range res.Diagnostics {
		assert.NotEqual(t, diag.RuleEventExposure, d.Code)
		if d.Code == diag.RuleSubscription {
			assert.Equal(t, diag.SevError, d.Severity)
		} else {
			assert.Equal(t, diag.SevWarning, d.Severity)
		}
	}
	assert.Len(t, res.Diagnostics, 6)
}

func TestMaxDiagnostics(t *testing.T) {
	res := run(t, orderedGraph(t), nil, Options{MaxDiagnostics: 2})
	assert.Equal(t, orderedWant[:2], hits(res))
	assert.Len(t, res.Findings, 2)
	assert.Equal(t, len(orderedWant)-2, res.Stats.Dropped)
}

func TestDuplicateMemberReportedOnce(t *testing.T) {
	w := bridgeWorld(t)
	// partial declarations can hand the same member over twice
	w.Member(graph.MemberField, "Bridge", "UIView other;", "other", "UIView", "UIView")
	w.Member(graph.MemberField, "Bridge", "UIView other;", "other", "UIView", "UIView")
	res := run(t, build(t, w), nil, Options{})

	assert.Equal(t, []hit{{"MA0002", "other"}}, hits(res))
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "other", res.Findings[0].Subject)
	assert.Equal(t, 2, res.Stats.Members)
	assert.Equal(t, 1, res.Stats.Findings[res.Diagnostics[0].Code])
}

func TestFixesAttached(t *testing.T) {
	w := bridgeWorld(t)
	w.Member(graph.MemberField, "Bridge", "UIView other;", "other", "UIView", "UIView")
	res := run(t, build(t, w), nil, Options{Fixes: true})
	require.Len(t, res.Diagnostics, 1)
	fixes := res.Diagnostics[0].Fixes
	require.NotEmpty(t, fixes)
	assert.True(t, fixes[0].IsPreferred)
	assert.Equal(t, diag.FixKindSuppress, fixes[0].Kind)
}

func TestMalformedNodesSkippedAndTraced(t *testing.T) {
	w := bridgeWorld(t)
	w.Member(graph.MemberField, "Bridge", "UIView other;", "other", "UIView", "Missing")
	w.Member(graph.MemberEvent, "Bridge", "public event EventHandler Clicked;", "Clicked", "EventHandler", "EventHandler")
	g := build(t, w)

	ring := trace.NewRecorder(64, trace.LevelDebug)
	ctx := trace.WithTracer(context.Background(), ring)
	e, err := New(g, nil, Options{})
	require.NoError(t, err)
	res := e.Run(ctx)

	assert.Equal(t, []hit{{"MA0001", "Clicked"}}, hits(res))
	assert.Equal(t, 1, res.Stats.Skipped)

	var skipped []string
	for _, ev := range ring.Events() {
		if ev.Kind == trace.KindPoint && strings.HasPrefix(ev.Name, "skip:") {
			skipped = append(skipped, ev.Detail)
		}
	}
	assert.Equal(t, []string{"unresolved declared type"}, skipped)
}

func TestNewRejectsInvalidPolicy(t *testing.T) {
	p := policy.Default()
	p.BridgeMarkers = nil
	_, err := New(orderedGraph(t), p, Options{})
	require.Error(t, err)
}
