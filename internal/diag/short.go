package diag

import (
	"fmt"
	"path/filepath"
	"strings"

	"retaincheck/internal/source"
)

// FormatShortDiagnostics renders diagnostics one per line as
// "<severity> <id> <path>:<line>:<col> <message>", keeping the given order.
// Notes follow their diagnostic when includeNotes is set.
func FormatShortDiagnostics(diags []Diagnostic, fs *source.FileSet, includeNotes bool) string {
	if fs == nil || len(diags) == 0 {
		return ""
	}
	lines := make([]string, 0, len(diags))
	for i := range diags {
		d := &diags[i]
		id := d.Code.ID()
		lines = append(lines, shortLine(fs, SeverityLabel(d.Severity), id, d.Primary, d.Message))
		if !includeNotes {
			continue
		}
		for _, n := range d.Notes {
			lines = append(lines, shortLine(fs, "note", id, n.Span, n.Msg))
		}
	}
	return strings.Join(lines, "\n")
}

func shortLine(fs *source.FileSet, label, id string, span source.Span, msg string) string {
	return fmt.Sprintf("%s %s %s %s", label, id, shortLocation(fs, span), sanitizeMessage(msg))
}

func shortLocation(fs *source.FileSet, span source.Span) string {
	file := fs.Get(span.File)
	if file == nil {
		return "<unknown>:0:0"
	}
	start, _ := fs.Resolve(span)
	return fmt.Sprintf("%s:%d:%d", normalizePath(file.FormatPath("relative", fs.BaseDir())), start.Line, start.Col)
}

func normalizePath(path string) string {
	p := filepath.ToSlash(path)
	for strings.HasPrefix(p, "./") {
		p = strings.TrimPrefix(p, "./")
	}
	return p
}

// SeverityLabel returns the lower-case label used by text renderers.
func SeverityLabel(sev Severity) string {
	switch sev {
	case SevError:
		return "error"
	case SevWarning:
		return "warning"
	default:
		return "info"
	}
}

// sanitizeMessage folds a message onto one line.
func sanitizeMessage(msg string) string {
	return strings.Join(strings.Fields(msg), " ")
}
