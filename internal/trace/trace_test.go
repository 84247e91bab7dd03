package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLevelShouldEmit(t *testing.T) {
	tests := []struct {
		level Level
		scope Scope
		want  bool
	}{
		{LevelOff, ScopeDriver, false},
		{LevelError, ScopeDriver, false},
		{LevelPhase, ScopePass, true},
		{LevelPhase, ScopeUnit, false},
		{LevelDetail, ScopeUnit, true},
		{LevelDetail, ScopeNode, false},
		{LevelDebug, ScopeNode, true},
	}
	for _, tt := range tests {
		if got := tt.level.ShouldEmit(tt.scope); got != tt.want {
			t.Errorf("%s.ShouldEmit(%s) = %v, want %v", tt.level, tt.scope, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"off", "error", "phase", "detail", "debug"} {
		l, err := ParseLevel(s)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", s, err)
		}
		if l.String() != s {
			t.Errorf("round trip %q -> %q", s, l.String())
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestStreamTracerNDJSON(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelDetail, FormatNDJSON)

	pass := Begin(tr, ScopePass, "members", 0)
	unit := Begin(tr, ScopeUnit, "unit:App.Controller", pass.ID())
	Point(tr, ScopeNode, "skip", "filtered at detail", unit.ID())
	unit.WithExtra("findings", "2").End("")
	pass.End("done")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 events, got %d:\n%s", len(lines), buf.String())
	}

	var ev struct {
		Kind     string            `json:"kind"`
		Scope    string            `json:"scope"`
		Name     string            `json:"name"`
		ParentID uint64            `json:"parent_id"`
		Extra    map[string]string `json:"extra"`
	}
	if err := json.Unmarshal([]byte(lines[2]), &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Kind != "end" || ev.Scope != "unit" || ev.Extra["findings"] != "2" {
		t.Errorf("unexpected unit end event: %+v", ev)
	}
	if ev.ParentID != pass.ID() {
		t.Errorf("parent = %d, want %d", ev.ParentID, pass.ID())
	}
}

func TestErrorLevelRecordsOnlyErrors(t *testing.T) {
	ring := NewRecorder(8, LevelError)
	Begin(ring, ScopeDriver, "load", 0).End("")
	Error(ring, ScopeDriver, "load", errors.New("boom"), 0)

	events := ring.Events()
	if len(events) != 1 || events[0].Kind != KindError || events[0].Detail != "boom" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestRecorderWraps(t *testing.T) {
	ring := NewRecorder(3, LevelDebug)
	for _, name := range []string{"a", "b", "c", "d"} {
		Point(ring, ScopeNode, name, "", 0)
	}
	events := ring.Events()
	var names []string
	for _, ev := range events {
		names = append(names, ev.Name)
	}
	if got := strings.Join(names, ","); got != "b,c,d" {
		t.Fatalf("snapshot order = %s, want b,c,d", got)
	}
	if ring.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", ring.Dropped())
	}

	var buf bytes.Buffer
	if err := ring.Dump(&buf, FormatText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "node d") {
		t.Errorf("text dump missing event: %q", buf.String())
	}
}

func TestContextPropagation(t *testing.T) {
	if FromContext(context.Background()) != Nop {
		t.Fatal("empty context should yield Nop")
	}
	ring := NewRecorder(4, LevelPhase)
	ctx := WithTracer(context.Background(), ring)
	if FromContext(ctx) != Tracer(ring) {
		t.Fatal("tracer not propagated")
	}
	span := Begin(ring, ScopeDriver, "check", 0)
	ctx = WithSpan(ctx, span)
	if CurrentSpan(ctx) != span.ID() {
		t.Fatal("span not propagated")
	}
}

func TestDisabledSpanKeepsParent(t *testing.T) {
	ring := NewRecorder(4, LevelPhase)
	s := Begin(ring, ScopeUnit, "unit", 42)
	if s.ID() != 42 {
		t.Fatalf("disabled span id = %d, want parent 42", s.ID())
	}
	if d := s.End(""); d != 0 {
		t.Fatalf("disabled span reported duration %v", d)
	}
	if len(ring.Events()) != 0 {
		t.Fatal("disabled span emitted events")
	}
}

func TestNewOff(t *testing.T) {
	tr, err := New(Config{Level: LevelOff})
	if err != nil || tr.Enabled() {
		t.Fatalf("New(off) = %v, %v", tr, err)
	}
}

func TestRecorderWritesOnlyOnFailure(t *testing.T) {
	dir := t.TempDir()
	newRecorder := func(name string) (Tracer, string) {
		path := filepath.Join(dir, name)
		tr, err := New(Config{Level: LevelPhase, Mode: ModeRing, Format: FormatText, OutputPath: path})
		if err != nil {
			t.Fatal(err)
		}
		return tr, path
	}

	clean, cleanPath := newRecorder("clean.trace")
	Begin(clean, ScopeDriver, "check", 0).End("")
	if err := clean.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(cleanPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("clean run left a recording: %v", err)
	}

	failed, failedPath := newRecorder("failed.trace")
	Begin(failed, ScopeDriver, "check", 0).End("")
	Error(failed, ScopeDriver, "load", errors.New("bad schema"), 0)
	if err := failed.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(failedPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "check") || !strings.Contains(string(data), "bad schema") {
		t.Errorf("recording incomplete:\n%s", data)
	}
}

func TestRecorderFail(t *testing.T) {
	rec := NewRecorder(0, LevelPhase)
	if rec.Failed() {
		t.Fatal("fresh recorder must not be failed")
	}
	rec.Fail()
	if !rec.Failed() {
		t.Fatal("Fail not recorded")
	}
}
