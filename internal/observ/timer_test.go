package observ

import (
	"errors"
	"strings"
	"testing"

	"retaincheck/internal/trace"
)

func TestTimerReportsPhasesInOrder(t *testing.T) {
	ring := trace.NewRecorder(16, trace.LevelPhase)
	tm := NewTimer(ring, 0)

	idx := tm.Begin("load")
	tm.End(idx, "3 types")
	err := tm.Time("analyze", func() (string, error) { return "", errors.New("cancelled") })
	if err == nil {
		t.Fatal("Time must return fn's error")
	}

	report := tm.Report()
	if len(report.Phases) != 2 {
		t.Fatalf("expected 2 phases, got %d", len(report.Phases))
	}
	if report.Phases[0].Name != "load" || report.Phases[0].Note != "3 types" {
		t.Errorf("unexpected first phase: %+v", report.Phases[0])
	}
	if report.Phases[1].Note != "failed" {
		t.Errorf("failed phase note = %q", report.Phases[1].Note)
	}

	summary := tm.Summary()
	if !strings.Contains(summary, "load") || !strings.Contains(summary, "total") {
		t.Errorf("summary missing rows:\n%s", summary)
	}

	// begin+end per phase plus one error point
	if got := len(ring.Events()); got != 5 {
		t.Errorf("trace events = %d, want 5", got)
	}
}

func TestTimerEndOutOfRange(t *testing.T) {
	tm := NewTimer(nil, 0)
	tm.End(3, "ignored")
	if r := tm.Report(); len(r.Phases) != 0 {
		t.Fatalf("unexpected phases: %+v", r.Phases)
	}
}
