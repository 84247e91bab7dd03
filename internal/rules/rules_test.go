package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retaincheck/internal/diag"
	"retaincheck/internal/graph"
	"retaincheck/internal/policy"
	"retaincheck/internal/testkit"
)

const src = `class MyView : UIView
{
	public event EventHandler Clicked;
	private event EventHandler Hidden;
	public event EventHandler Manual { add { } remove { } }
	UIView child;
	WeakReference<UIView> weakChild;
	object tag;
	Action callback;
	UIColor tint;
	int count;
	string title;
	CALayer layer;
	UIView[] children;
	int[] counts;
	public UIView Auto { get; set; }
	public UIView Computed => child;

	public MyView(UIButton button)
	{
		button.TouchUpInside += OnTap;
		TouchUpInside += OnTap;
		this.TouchUpInside += OnTap;
		button.TouchUpInside += OnStatic;
		button.TouchUpInside += helper.OnHelp;
		button.TouchUpInside += unknown;
	}

	public void OnTap(object s, EventArgs e) { }
	public static void OnStatic(object s, EventArgs e) { }
}

class Helper
{
	public void OnHelp(object s, EventArgs e) { }
}

class Model
{
	public event EventHandler Changed;
	UIView view;
}

class AppDel : AppDelegate
{
	UIWindow window;
	UIView rootView;
}

class Layer : CALayer
{
	UIView owner;
}

class Leaf : Middle
{
	UIView leafView;
}
`

type harness struct {
	t   *testing.T
	g   *graph.Graph
	ctx *Context
}

func setup(t *testing.T, mutate func(w *testkit.World)) *harness {
	t.Helper()
	w := testkit.NewWorld("View.cs", src)
	w.Class("MyView", "App.MyView", "UIView", "class MyView")
	w.Class("Helper", "App.Helper", "object", "class Helper")
	w.Class("Model", "App.Model", "object", "class Model")
	w.Array("UIView[]", "UIView")
	w.Array("int[]", "int")
	if mutate != nil {
		mutate(w)
	}
	g, err := w.Build()
	require.NoError(t, err)
	return &harness{t: t, g: g, ctx: NewContext(g, policy.Default())}
}

func (h *harness) member(name string) *graph.MemberNode {
	for _, m := range h.g.Members {
		if m.Name == name {
			return m
		}
	}
	h.t.Fatalf("member %s not found", name)
	return nil
}

func event(w *testkit.World, containing, decl, name string, mods ...func(*graph.MemberSpec)) {
	w.Member(graph.MemberEvent, containing, decl, name, "EventHandler", "EventHandler", mods...)
}

func field(w *testkit.World, containing, decl, name, typ, typeID string, mods ...func(*graph.MemberSpec)) {
	w.Member(graph.MemberField, containing, decl, name, typ, typeID, mods...)
}

func TestEventExposure(t *testing.T) {
	h := setup(t, func(w *testkit.World) {
		event(w, "MyView", "public event EventHandler Clicked;", "Clicked")
		event(w, "MyView", "private event EventHandler Hidden;", "Hidden")
		event(w, "MyView", "public event EventHandler Manual { add { } remove { } }", "Manual", testkit.WithAddAccessor())
		event(w, "Model", "public event EventHandler Changed;", "Changed")
	})
	rule := EventExposure{}

	f := rule.CheckMember(h.ctx, h.member("Clicked"))
	require.NotNil(t, f)
	assert.Equal(t, diag.RuleEventExposure, f.Code)
	assert.Equal(t, "Clicked", f.Subject)
	assert.Equal(t, h.member("Clicked").NameSpan, f.Span)

	assert.Nil(t, rule.CheckMember(h.ctx, h.member("Hidden")), "private events are exempt")
	assert.Nil(t, rule.CheckMember(h.ctx, h.member("Manual")), "explicit add accessor is exempt")
	assert.Nil(t, rule.CheckMember(h.ctx, h.member("Changed")), "non-bridge container")
}

func TestEventExposureSuppressed(t *testing.T) {
	h := setup(t, func(w *testkit.World) {
		event(w, "MyView", "public event EventHandler Clicked;", "Clicked",
			testkit.WithAnnotations(testkit.Suppression("MA0001")))
	})
	assert.Nil(t, EventExposure{}.CheckMember(h.ctx, h.member("Clicked")))
}

func TestStrongMember(t *testing.T) {
	h := setup(t, func(w *testkit.World) {
		field(w, "MyView", "UIView child;", "child", "UIView", "UIView")
		w.External("WeakUIView", "System.WeakReference<UIKit.UIView>", "object")
		field(w, "MyView", "WeakReference<UIView> weakChild;", "weakChild", "WeakReference<UIView>", "WeakUIView")
		field(w, "MyView", "object tag;", "tag", "object", "object")
		field(w, "MyView", "Action callback;", "callback", "Action", "Action")
		field(w, "MyView", "UIColor tint;", "tint", "UIColor", "UIColor")
		field(w, "MyView", "int count;", "count", "int", "int")
		field(w, "MyView", "string title;", "title", "string", "string")
		field(w, "MyView", "CALayer layer;", "layer", "CALayer", "CALayer")
		field(w, "MyView", "UIView[] children;", "children", "UIView[]", "UIView[]")
		field(w, "MyView", "int[] counts;", "counts", "int[]", "int[]")
		w.Member(graph.MemberProperty, "MyView", "public UIView Auto { get; set; }", "Auto", "UIView", "UIView")
		w.Member(graph.MemberProperty, "MyView", "public UIView Computed => child;", "Computed", "UIView", "UIView")
		field(w, "Model", "UIView view;", "view", "UIView", "UIView")
	})
	rule := StrongMember{}

	tests := map[string]bool{
		"child":     true,
		"weakChild": false,
		"tag":       true,
		"callback":  true,
		"tint":      false,
		"count":     false,
		"title":     false,
		"layer":     false,
		"children":  true,
		"counts":    false,
		"Auto":      true,
		"Computed":  false,
		"view":      false,
	}
	for name, want := range tests {
		f := rule.CheckMember(h.ctx, h.member(name))
		if want {
			if assert.NotNil(t, f, name) {
				assert.Equal(t, name, f.Subject)
				assert.Equal(t, diag.RuleStrongMember, f.Code)
			}
		} else {
			assert.Nil(t, f, name)
		}
	}
}

func TestStrongMemberSafeInsideDefinedBySubclassOfContainer(t *testing.T) {
	h := setup(t, func(w *testkit.World) {
		w.External("AppDelegate", "App.AppDelegate", "NSObject", testkit.Implements("IUIApplicationDelegate"))
		w.Class("AppDel", "App.AppDel", "AppDelegate", "class AppDel")
		field(w, "AppDel", "UIWindow window;", "window", "UIWindow", "UIWindow")
		field(w, "AppDel", "UIView rootView;", "rootView", "UIView", "UIView")
	})
	assert.Nil(t, StrongMember{}.CheckMember(h.ctx, h.member("window")))
	assert.NotNil(t, StrongMember{}.CheckMember(h.ctx, h.member("rootView")))
}

func TestStrongMemberSwappedRolesNotSafe(t *testing.T) {
	// a UIView held inside a CALayer subclass is not covered by UIView -> CALayer
	h := setup(t, func(w *testkit.World) {
		w.Class("Layer", "App.Layer", "CALayer", "class Layer")
		field(w, "Layer", "UIView owner;", "owner", "UIView", "UIView")
	})
	assert.NotNil(t, StrongMember{}.CheckMember(h.ctx, h.member("owner")))
}

func TestSubscriptionOwnership(t *testing.T) {
	var sites []string
	h := setup(t, func(w *testkit.World) {
		onTap := w.Method("MyView", "public void OnTap(object s, EventArgs e) { }", "OnTap")
		onStatic := w.Method("MyView", "public static void OnStatic(object s, EventArgs e) { }", "OnStatic")
		onHelp := w.Method("Helper", "public void OnHelp(object s, EventArgs e) { }", "OnHelp")
		stmts := []struct {
			stmt    string
			handler *graph.MethodSpec
		}{
			{"button.TouchUpInside += OnTap;", onTap},
			{"TouchUpInside += OnTap;", onTap},
			{"this.TouchUpInside += OnTap;", onTap},
			{"button.TouchUpInside += OnStatic;", onStatic},
			{"button.TouchUpInside += helper.OnHelp;", onHelp},
			{"button.TouchUpInside += unknown;", nil},
		}
		for _, s := range stmts {
			w.Subscribe("MyView", ".ctor", s.stmt, s.handler)
			sites = append(sites, s.stmt)
		}
	})
	require.Len(t, h.g.Subscriptions, len(sites))
	rule := SubscriptionOwnership{}

	f := rule.CheckSubscription(h.ctx, h.g.Subscriptions[0])
	require.NotNil(t, f)
	assert.Equal(t, "OnTap", f.Subject)
	text, _ := h.g.Files.Text(f.Span)
	assert.Equal(t, "OnTap", text)

	for i := 1; i < len(sites); i++ {
		assert.Nil(t, rule.CheckSubscription(h.ctx, h.g.Subscriptions[i]), sites[i])
	}

	// handler on a plain type reports once the bridge-handler requirement is off
	relaxed := *h.ctx
	relaxedPolicy := *h.ctx.Policy
	relaxedPolicy.RequireBridgeHandler = false
	relaxed.Policy = &relaxedPolicy
	f = rule.CheckSubscription(&relaxed, h.g.Subscriptions[4])
	require.NotNil(t, f)
	assert.Equal(t, "OnHelp", f.Subject)
	text, _ = h.g.Files.Text(f.Span)
	assert.Equal(t, "OnHelp", text, "qualified handlers report at the name")
}

func TestSuppressionIsRuleSpecific(t *testing.T) {
	h := setup(t, func(w *testkit.World) {
		event(w, "MyView", "public event EventHandler Clicked;", "Clicked",
			testkit.WithAnnotations(testkit.Suppression("MA0002"), testkit.Suppression("MA0003")))
		field(w, "MyView", "UIView child;", "child", "UIView", "UIView",
			testkit.WithAnnotations(testkit.Suppression("MA0001")))
	})
	assert.NotNil(t, EventExposure{}.CheckMember(h.ctx, h.member("Clicked")))
	assert.NotNil(t, StrongMember{}.CheckMember(h.ctx, h.member("child")))
}

func TestUnmarkedIntermediateKeepsBridgeStatus(t *testing.T) {
	h := setup(t, func(w *testkit.World) {
		w.External("Middle", "App.Middle", "UIView")
		w.Class("Leaf", "App.Leaf", "Middle", "class Leaf")
		field(w, "Leaf", "UIView leafView;", "leafView", "UIView", "UIView")
	})
	assert.True(t, h.ctx.Classifier.IsBridgeType(h.g.Type("Middle")))
	assert.True(t, h.ctx.Classifier.IsBridgeType(h.g.Type("Leaf")))
	assert.NotNil(t, StrongMember{}.CheckMember(h.ctx, h.member("leafView")))
}

func TestRulesDoNotMutateGraph(t *testing.T) {
	h := setup(t, func(w *testkit.World) {
		field(w, "MyView", "UIView child;", "child", "UIView", "UIView")
	})
	m := h.member("child")
	before := *m
	for i := 0; i < 2; i++ {
		StrongMember{}.CheckMember(h.ctx, m)
		EventExposure{}.CheckMember(h.ctx, m)
	}
	assert.Equal(t, before, *m)
}

func TestAllRulesRegistered(t *testing.T) {
	all := All()
	require.Len(t, all, 3)
	assert.Equal(t, PassEvents, all[0].Pass())
	assert.Equal(t, PassMembers, all[1].Pass())
	assert.Equal(t, PassSubscriptions, all[2].Pass())
	_, isMember := all[1].(MemberRule)
	_, isSub := all[2].(SubscriptionRule)
	assert.True(t, isMember && isSub)
}
