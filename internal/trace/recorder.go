package trace

import (
	"io"
	"sync"
)

// Recorder is a flight recorder: it keeps the most recent events in memory
// and writes them out on Close only when the run failed. An error event marks
// the run failed; so does Fail.
type Recorder struct {
	mu      sync.Mutex
	buf     []Event
	start   int // oldest event once buf is full
	limit   int
	dropped uint64
	failed  bool

	level  Level
	format Format
	open   func() (io.Writer, error)
}

// NewRecorder keeps up to limit events (4096 when limit <= 0).
func NewRecorder(limit int, level Level) *Recorder {
	if limit <= 0 {
		limit = 4096
	}
	return &Recorder{limit: limit, level: level, format: FormatText}
}

// Emit stores ev, evicting the oldest event when full.
func (r *Recorder) Emit(ev *Event) {
	if ev == nil || !r.level.accepts(ev) {
		return
	}
	stored := *ev
	stored.Seq = NextSeq()

	r.mu.Lock()
	defer r.mu.Unlock()
	if stored.Kind == KindError {
		r.failed = true
	}
	if len(r.buf) < r.limit {
		r.buf = append(r.buf, stored)
		return
	}
	r.buf[r.start] = stored
	r.start = (r.start + 1) % r.limit
	r.dropped++
}

// Events returns the retained events, oldest first.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0, len(r.buf))
	out = append(out, r.buf[r.start:]...)
	return append(out, r.buf[:r.start]...)
}

// Dropped is the number of events evicted so far.
func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Fail marks the run failed so Close writes the recording.
func (r *Recorder) Fail() {
	r.mu.Lock()
	r.failed = true
	r.mu.Unlock()
}

// Failed reports whether Close will write the recording.
func (r *Recorder) Failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}

// Dump writes the retained events to w.
func (r *Recorder) Dump(w io.Writer, format Format) error {
	events := r.Events()
	for i := range events {
		if _, err := w.Write(FormatEvent(&events[i], format)); err != nil {
			return err
		}
	}
	return nil
}

// Flush is a no-op; nothing is written before Close.
func (r *Recorder) Flush() error {
	return nil
}

// Close writes the recording to the configured output if the run failed.
// The output is opened only then, so a clean run leaves no file behind.
func (r *Recorder) Close() error {
	if r.open == nil || !r.Failed() {
		return nil
	}
	w, err := r.open()
	if err != nil {
		return err
	}
	err = r.Dump(w, r.format)
	if closer, ok := w.(io.Closer); ok {
		if cerr := closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Level returns the current tracing level.
func (r *Recorder) Level() Level {
	return r.level
}

// Enabled returns true if tracing is active.
func (r *Recorder) Enabled() bool {
	return r.level > LevelOff
}
