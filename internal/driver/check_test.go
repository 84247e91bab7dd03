package driver

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"retaincheck/internal/diag"
	"retaincheck/internal/graphio"
	"retaincheck/internal/policy"
)

const viewSrc = `class MyView : UIView
{
	public event EventHandler Clicked;
	UIView child;
}
`

func span(t *testing.T, needle string) *graphio.SpanDoc {
	t.Helper()
	i := strings.Index(viewSrc, needle)
	if i < 0 {
		t.Fatalf("%q not in source", needle)
	}
	return &graphio.SpanDoc{Start: uint32(i), End: uint32(i + len(needle))} //nolint:gosec // tiny test text
}

func writeGraph(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "MyView.cs"), []byte(viewSrc), 0o600); err != nil {
		t.Fatal(err)
	}
	register := []graphio.AnnotationDoc{{
		Name: "Foundation.RegisterAttribute",
		Args: []graphio.ArgDoc{{Value: "UIView"}, {Value: true}},
	}}
	doc := &graphio.Document{
		Schema: graphio.CurrentSchema,
		Files:  []string{"MyView.cs"},
		Types: []graphio.TypeDoc{
			{ID: "object", Name: "System.Object"},
			{ID: "Delegate", Name: "System.Delegate", Base: "object"},
			{ID: "EventHandler", Name: "System.EventHandler", Kind: "delegate", Base: "Delegate"},
			{ID: "UIView", Name: "UIKit.UIView", Base: "object", Annotations: register},
			{ID: "MyView", Name: "App.MyView", Base: "UIView", Declared: true, Decl: span(t, "class MyView")},
		},
		Members: []graphio.MemberDoc{
			{Kind: "event", Name: "Clicked", Containing: "MyView", Access: "public", Type: "EventHandler",
				Decl: span(t, "public event EventHandler Clicked;"), NameSpan: span(t, "Clicked"), TypeSpan: span(t, "EventHandler")},
			{Kind: "field", Name: "child", Containing: "MyView", Type: "UIView",
				Decl: span(t, "UIView child;"), NameSpan: span(t, "child"), TypeSpan: span(t, "UIView child")},
		},
	}
	var buf bytes.Buffer
	if err := graphio.Encode(&buf, doc, graphio.FormatJSON); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "app.graph.json")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func codes(res *CheckResult) string {
	parts := make([]string, 0, len(res.Diagnostics))
	for _, d := range res.Diagnostics {
		parts = append(parts, d.Code.ID()+":"+d.Subject)
	}
	return strings.Join(parts, ",")
}

func TestCheckUsesCache(t *testing.T) {
	path := writeGraph(t)
	cache, err := OpenDiskCacheAt(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	opts := CheckOptions{Cache: cache, EnableTimings: true}

	first, err := Check(context.Background(), path, nil, opts)
	if err != nil {
		t.Fatalf("first check: %v", err)
	}
	if first.CacheHit {
		t.Fatal("first run must miss")
	}
	if got := codes(first); got != "MA0001:Clicked,MA0002:child" {
		t.Fatalf("diagnostics = %s", got)
	}
	if first.Timings == nil || len(first.Timings.Phases) != 4 {
		t.Fatalf("expected load/cache/analyze/store timings, got %+v", first.Timings)
	}

	second, err := Check(context.Background(), path, nil, opts)
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if !second.CacheHit {
		t.Fatal("second run must hit the cache")
	}
	if codes(second) != codes(first) {
		t.Fatalf("cached diagnostics differ: %s vs %s", codes(second), codes(first))
	}
	for i := range first.Diagnostics {
		a, b := first.Diagnostics[i], second.Diagnostics[i]
		if a.Primary != b.Primary || a.Message != b.Message || len(a.Notes) != len(b.Notes) {
			t.Errorf("diagnostic %d changed through the cache: %+v vs %+v", i, a, b)
		}
	}
	if second.Stats.Findings[diag.RuleStrongMember] != 1 {
		t.Errorf("cached stats lost findings: %+v", second.Stats)
	}
}

func TestCheckPolicyChangesKey(t *testing.T) {
	path := writeGraph(t)
	cache, err := OpenDiskCacheAt(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	opts := CheckOptions{Cache: cache}
	if _, err := Check(context.Background(), path, nil, opts); err != nil {
		t.Fatal(err)
	}

	off := policy.Default().WithRule(diag.RuleEventExposure, policy.RuleSetting{Enabled: false})
	res, err := Check(context.Background(), path, off, opts)
	if err != nil {
		t.Fatal(err)
	}
	if res.CacheHit {
		t.Fatal("a different policy must not reuse the cached result")
	}
	if got := codes(res); got != "MA0002:child" {
		t.Fatalf("diagnostics = %s", got)
	}
}

func TestCheckWithFixesBypassesCache(t *testing.T) {
	path := writeGraph(t)
	cache, err := OpenDiskCacheAt(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Check(context.Background(), path, nil, CheckOptions{Cache: cache}); err != nil {
		t.Fatal(err)
	}
	res, err := Check(context.Background(), path, nil, CheckOptions{Cache: cache, Fixes: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.CacheHit {
		t.Fatal("fix runs must analyze")
	}
	if len(res.Findings) != len(res.Diagnostics) || len(res.Diagnostics[0].Fixes) == 0 {
		t.Fatalf("expected findings with fixes, got %+v", res.Diagnostics)
	}
}

func TestCheckCancelledIsPartialAndNotCached(t *testing.T) {
	path := writeGraph(t)
	cache, err := OpenDiskCacheAt(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Check(ctx, path, nil, CheckOptions{Cache: cache})
	if err != nil {
		t.Fatalf("cancellation is not an error: %v", err)
	}
	if !res.Partial {
		t.Fatal("expected partial result")
	}
	var payload DiskPayload
	if hit, _ := cache.Get(res.Key, &payload); hit {
		t.Fatal("partial results must not be cached")
	}
}

func TestCheckReportsPhases(t *testing.T) {
	path := writeGraph(t)
	var seen []string
	_, err := Check(context.Background(), path, nil, CheckOptions{
		Phases: func(ev PhaseEvent) {
			if ev.Status == PhaseEnd {
				seen = append(seen, ev.Name)
			}
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(seen, ","); got != "load,analyze" {
		t.Fatalf("phases = %s", got)
	}
}

func TestCheckMissingDocument(t *testing.T) {
	_, err := Check(context.Background(), filepath.Join(t.TempDir(), "nope.json"), nil, CheckOptions{})
	if err == nil {
		t.Fatal("expected error for missing document")
	}
}

func TestDiskCacheDropAll(t *testing.T) {
	cache, err := OpenDiskCacheAt(filepath.Join(t.TempDir(), "c"))
	if err != nil {
		t.Fatal(err)
	}
	key := CacheKey([32]byte{1}, [32]byte{2}, 0)
	if err := cache.Put(key, &DiskPayload{Units: 3}); err != nil {
		t.Fatal(err)
	}
	var p DiskPayload
	if hit, err := cache.Get(key, &p); err != nil || !hit || p.Units != 3 {
		t.Fatalf("Get = %v, %v, %+v", hit, err, p)
	}
	if err := cache.DropAll(); err != nil {
		t.Fatal(err)
	}
	if hit, _ := cache.Get(key, &p); hit {
		t.Fatal("entry survived DropAll")
	}
}
