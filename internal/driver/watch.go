package driver

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"retaincheck/internal/source"
	"retaincheck/internal/trace"
)

// DefaultDebounce groups the burst of events an editor save produces.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reports changes to a set of files. fsnotify only watches
// directories portably, so the parent directories are watched and events
// are filtered by file name.
type Watcher struct {
	w        *fsnotify.Watcher
	debounce time.Duration

	mu    sync.Mutex
	files map[string]struct{}
	dirs  map[string]struct{}
}

// NewWatcher creates a watcher; debounce <= 0 selects DefaultDebounce.
func NewWatcher(debounce time.Duration) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		w:        w,
		debounce: debounce,
		files:    make(map[string]struct{}),
		dirs:     make(map[string]struct{}),
	}, nil
}

// Track adds files to the watch set. Already tracked files are ignored.
func (w *Watcher) Track(paths ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("watch %q: %w", p, err)
		}
		w.files[abs] = struct{}{}
		dir := filepath.Dir(abs)
		if _, ok := w.dirs[dir]; ok {
			continue
		}
		if err := w.w.Add(dir); err != nil {
			return fmt.Errorf("watch %q: %w", dir, err)
		}
		w.dirs[dir] = struct{}{}
	}
	return nil
}

// Tracked returns the watched files in sorted order.
func (w *Watcher) Tracked() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.files))
	for f := range w.files {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

func (w *Watcher) tracks(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.files[filepath.Clean(path)]
	return ok
}

// Run blocks until ctx is done, calling onChange with the sorted set of
// changed files once no further event arrived for the debounce interval.
// onChange runs on the Run goroutine; events arriving meanwhile are queued.
func (w *Watcher) Run(ctx context.Context, onChange func(changed []string)) error {
	tr := trace.FromContext(ctx)
	parent := trace.CurrentSpan(ctx)

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 || !w.tracks(ev.Name) {
				continue
			}
			trace.Point(tr, trace.ScopeDriver, "watch:"+ev.Op.String(), ev.Name, parent)
			pending[filepath.Clean(ev.Name)] = struct{}{}
			timer.Reset(w.debounce)
		case err, ok := <-w.w.Errors:
			if !ok {
				return nil
			}
			trace.Error(tr, trace.ScopeDriver, "watch", err, parent)
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			slices.Sort(changed)
			clear(pending)
			onChange(changed)
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.w.Close()
}

// WatchTargets lists the document and every readable source file it names.
func WatchTargets(res *CheckResult) []string {
	if res == nil || res.Loaded == nil {
		return nil
	}
	out := []string{res.Loaded.Path}
	fs := res.Loaded.Graph.Files
	for i := range fs.Len() {
		f := fs.Get(source.FileID(i))
		if f == nil || f.Flags&source.FileVirtual != 0 {
			continue
		}
		out = append(out, f.Path)
	}
	return out
}
