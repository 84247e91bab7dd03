package diagfmt

import (
	"strings"
	"testing"

	"retaincheck/internal/diag"
	"retaincheck/internal/fix"
	"retaincheck/internal/source"
)

const hostSource = "class Host : NSObject {\n    public Action? Changed;\n    List<Host> children;\n}\n"

type fixture struct {
	fs     *source.FileSet
	file   source.FileID
	diags  []diag.Diagnostic
	change source.Span
}

func spanOf(t *testing.T, file source.FileID, text, needle string) source.Span {
	t.Helper()
	i := strings.Index(text, needle)
	if i < 0 {
		t.Fatalf("needle %q not found", needle)
	}
	return source.Span{File: file, Start: uint32(i), End: uint32(i + len(needle))}
}

// newFixture строит две диагностики над одним файлом: событие с фиксом и поле.
func newFixture(t *testing.T) fixture {
	t.Helper()
	fs := source.NewFileSetWithBase("/proj")
	file := fs.AddVirtual("/proj/src/Host.cs", []byte(hostSource))

	changed := spanOf(t, file, hostSource, "Changed")
	public := spanOf(t, file, hostSource, "public")
	children := spanOf(t, file, hostSource, "children")
	host := spanOf(t, file, hostSource, "Host")

	event := diag.New(diag.SevWarning, diag.RuleEventExposure, changed, "Changed").
		WithNote(host, "declared in bridge type Host").
		WithFixSuggestion(fix.ReplaceSpan("make 'Changed' private", public, "private", "public", fix.WithID("MA0001-private"), fix.Preferred()))
	member := diag.New(diag.SevError, diag.RuleStrongMember, children, "children")

	return fixture{fs: fs, file: file, diags: []diag.Diagnostic{event, member}, change: changed}
}
