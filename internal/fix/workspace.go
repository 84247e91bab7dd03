package fix

import (
	"cmp"
	"fmt"
	"maps"
	"os"
	"slices"

	"retaincheck/internal/diag"
	"retaincheck/internal/source"
)

// fileState is the rewritten content of one file plus the edits already in it,
// kept sorted by original offset.
type fileState struct {
	buf     []byte
	applied []diag.TextEdit
}

// workspace stages fixes file by file. A fix is either staged completely or
// not at all; nothing touches the disk before commit.
type workspace struct {
	fs     *source.FileSet
	dryRun bool
	files  map[source.FileID]*fileState
}

func newWorkspace(fs *source.FileSet, dryRun bool) *workspace {
	return &workspace{fs: fs, dryRun: dryRun, files: make(map[source.FileID]*fileState)}
}

// stage applies the edits of c in memory and returns a skip reason on failure.
func (w *workspace) stage(c candidate) string {
	byFile := make(map[source.FileID][]diag.TextEdit)
	for _, e := range c.fix.Edits {
		byFile[e.Span.File] = append(byFile[e.Span.File], e)
	}

	staged := make(map[source.FileID]*fileState, len(byFile))
	for _, id := range slices.Sorted(maps.Keys(byFile)) {
		next, reason := w.rewrite(id, byFile[id])
		if reason != "" {
			return reason
		}
		staged[id] = next
	}
	maps.Copy(w.files, staged)
	return ""
}

func (w *workspace) rewrite(id source.FileID, edits []diag.TextEdit) (*fileState, string) {
	file := w.fs.Get(id)
	switch {
	case file == nil:
		return nil, "target file is unknown"
	case !file.HasText():
		return nil, "target file could not be read"
	case file.Flags&source.FileVirtual != 0 && !w.dryRun:
		return nil, "target file is virtual"
	}

	prev := w.files[id]
	if prev == nil {
		prev = &fileState{buf: file.Content}
	}
	for _, old := range prev.applied {
		for _, e := range edits {
			if spansConflict(old, e) {
				return nil, "conflicts with previously applied edits in " + w.displayPath(id, "auto")
			}
		}
	}

	next := &fileState{
		buf:     slices.Clone(prev.buf),
		applied: slices.Clone(prev.applied),
	}
	// back to front, so offsets of the remaining edits in this fix stay valid
	slices.SortStableFunc(edits, func(a, b diag.TextEdit) int {
		return cmp.Or(cmp.Compare(b.Span.Start, a.Span.Start), cmp.Compare(b.Span.End, a.Span.End))
	})
	for _, e := range edits {
		start := int(e.Span.Start) + shift(next.applied, int(e.Span.Start))
		end := int(e.Span.End) + shift(next.applied, int(e.Span.End))
		if start < 0 || end < start || end > len(next.buf) {
			return nil, "edit span out of range"
		}
		if e.OldText != "" && string(next.buf[start:end]) != e.OldText {
			return nil, "existing text does not match expected content"
		}
		next.buf = slices.Concat(next.buf[:start], []byte(e.NewText), next.buf[end:])
		next.applied = insertByOffset(next.applied, e)
	}
	return next, ""
}

// commit writes every rewritten file, or only reports the contents on a dry run.
func (w *workspace) commit() ([]FileChange, error) {
	changes := make([]FileChange, 0, len(w.files))
	for _, id := range slices.Sorted(maps.Keys(w.files)) {
		st := w.files[id]
		file := w.fs.Get(id)
		change := FileChange{
			Path:      w.displayPath(id, "relative"),
			EditCount: len(st.applied),
		}
		if w.dryRun {
			change.Content = st.buf
		} else {
			mode := os.FileMode(0o644)
			if info, err := os.Stat(file.Path); err == nil {
				mode = info.Mode()
			}
			if err := os.WriteFile(file.Path, st.buf, mode); err != nil {
				return changes, fmt.Errorf("write %s: %w", file.Path, err)
			}
		}
		changes = append(changes, change)
	}
	slices.SortStableFunc(changes, func(a, b FileChange) int { return cmp.Compare(a.Path, b.Path) })
	return changes, nil
}

func (w *workspace) displayPath(id source.FileID, mode string) string {
	file := w.fs.Get(id)
	if file == nil {
		return ""
	}
	return file.FormatPath(mode, w.fs.BaseDir())
}

// spansConflict reports whether two edits overlap. Spans are half-open; two
// insertions never conflict, and an insertion conflicts only with a range
// that strictly contains its position.
func spansConflict(a, b diag.TextEdit) bool {
	as, ae := a.Span.Start, a.Span.End
	bs, be := b.Span.Start, b.Span.End
	switch {
	case as == ae && bs == be:
		return false
	case as == ae:
		return bs < as && as < be
	case bs == be:
		return as < bs && bs < ae
	default:
		return as < be && bs < ae
	}
}

// shift is the length change at original offset pos caused by applied edits
// that end at or before it.
func shift(applied []diag.TextEdit, pos int) int {
	delta := 0
	for _, e := range applied {
		s, end := int(e.Span.Start), int(e.Span.End)
		if s > pos {
			break
		}
		if end <= pos {
			delta += len(e.NewText) - (end - s)
		}
	}
	return delta
}

func insertByOffset(applied []diag.TextEdit, e diag.TextEdit) []diag.TextEdit {
	i, _ := slices.BinarySearchFunc(applied, e, func(x, t diag.TextEdit) int {
		return cmp.Or(cmp.Compare(x.Span.Start, t.Span.Start), cmp.Compare(x.Span.End, t.Span.End))
	})
	return slices.Insert(applied, i, e)
}
