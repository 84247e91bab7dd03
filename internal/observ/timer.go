package observ

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"retaincheck/internal/trace"
)

// Phase records the duration and metadata of one driver phase
// (load, cache, analyze, render).
type Phase struct {
	Name  string
	Start time.Time
	Dur   time.Duration
	Note  string
	span  *trace.Span
}

// Timer tracks driver phases and mirrors each one as a driver-scope trace span.
type Timer struct {
	mu     sync.Mutex
	tracer trace.Tracer
	parent uint64
	phases []Phase
}

// NewTimer creates a Timer. tr may be nil.
func NewTimer(tr trace.Tracer, parent uint64) *Timer {
	if tr == nil {
		tr = trace.Nop
	}
	return &Timer{tracer: tr, parent: parent, phases: make([]Phase, 0, 4)}
}

// Begin starts a new phase and returns its index.
func (t *Timer) Begin(name string) int {
	span := trace.Begin(t.tracer, trace.ScopeDriver, name, t.parent)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phases = append(t.phases, Phase{Name: name, Start: time.Now(), span: span})
	return len(t.phases) - 1
}

// End finishes a phase by its index.
func (t *Timer) End(idx int, note string) {
	t.mu.Lock()
	if idx < 0 || idx >= len(t.phases) {
		t.mu.Unlock()
		return
	}
	p := &t.phases[idx]
	p.Dur = time.Since(p.Start)
	p.Note = note
	span := p.span
	t.mu.Unlock()
	span.End(note)
}

// Time runs fn as a named phase.
func (t *Timer) Time(name string, fn func() (note string, err error)) error {
	idx := t.Begin(name)
	note, err := fn()
	if err != nil {
		trace.Error(t.tracer, trace.ScopeDriver, name, err, t.parent)
		if note == "" {
			note = "failed"
		}
	}
	t.End(idx, note)
	return err
}

// Summary returns a human-readable string summarizing all tracked phases.
func (t *Timer) Summary() string {
	report := t.Report()
	var sb strings.Builder
	sb.WriteString("timings:\n")
	for _, p := range report.Phases {
		fmt.Fprintf(&sb, "  %-12s %8.2f ms", p.Name, p.DurationMS)
		if p.Note != "" {
			sb.WriteString("  // " + p.Note)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "  %-12s %8.2f ms\n", "total", report.TotalMS)
	return sb.String()
}

// PhaseReport is the serializable summary of one phase.
type PhaseReport struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"duration_ms"`
	Note       string  `json:"note,omitempty"`
}

// Report aggregates all phases of a timer.
type Report struct {
	TotalMS float64       `json:"total_ms"`
	Phases  []PhaseReport `json:"phases"`
}

// Report returns the phases and the total duration in milliseconds.
func (t *Timer) Report() Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.phases) == 0 {
		return Report{}
	}
	report := Report{
		Phases: make([]PhaseReport, len(t.phases)),
	}
	var total time.Duration
	for i, phase := range t.phases {
		total += phase.Dur
		report.Phases[i] = PhaseReport{
			Name:       phase.Name,
			DurationMS: durationToMillis(phase.Dur),
			Note:       phase.Note,
		}
	}
	report.TotalMS = durationToMillis(total)
	return report
}

func durationToMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
