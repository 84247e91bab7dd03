package fix

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"retaincheck/internal/diag"
	"retaincheck/internal/source"
)

func TestGatherCandidatesSkipsDuplicateFixIDs(t *testing.T) {
	fs := source.NewFileSet()
	fileID := fs.AddVirtual("View.cs", []byte(""))
	span := source.Span{File: fileID, Start: 0, End: 0}

	diagnostics := []diag.Diagnostic{{
		Code:    diag.RuleStrongMember,
		Message: "strong member",
		Primary: span,
		Fixes: []diag.Fix{
			{
				ID:    "fix-duplicate",
				Title: "suppress",
				Edits: []diag.TextEdit{{Span: span, NewText: "[A]"}},
			},
			{
				ID:    "fix-duplicate",
				Title: "suppress again",
				Edits: []diag.TextEdit{{Span: span, NewText: "[A]"}},
			},
			{Title: "empty"},
		},
	}}

	candidates, skips := gatherCandidates(diag.FixBuildContext{FileSet: fs}, diagnostics)
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if len(skips) != 2 {
		t.Fatalf("expected 2 skipped fixes, got %d", len(skips))
	}
	if skips[0].Reason != "duplicate fix id" || skips[1].Reason != "fix has no edits" {
		t.Fatalf("unexpected skip reasons: %+v", skips)
	}
}

const viewText = "class V\n{\n\tUIView child;\n\tobject tag;\n}\n"

func loadTemp(t *testing.T) (*source.FileSet, source.FileID, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "View.cs")
	if err := os.WriteFile(path, []byte(viewText), 0o600); err != nil {
		t.Fatal(err)
	}
	fs := source.NewFileSetWithBase(dir)
	id, err := fs.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	return fs, id, path
}

func suppressAndWeak(fs *source.FileSet, id source.FileID, name string, code diag.Code) diag.Diagnostic {
	f := fs.Get(id)
	start := uint32(len(viewText[:indexOf(viewText, name)]))
	nameSpan := source.Span{File: id, Start: start, End: start + uint32(len(name))}
	sup, _ := InsertLineAbove(fs, "Suppress", nameSpan, "[S]", WithID(name+"-suppress"), Preferred())
	typeStart, _ := f.LineBounds(start)
	typeStart++ // tab
	typeSpan := source.Span{File: id, Start: typeStart, End: start - 1}
	oldType, _ := fs.Text(typeSpan)
	weak := ReplaceSpan("Weak", typeSpan, "WeakReference<"+oldType+">", oldType,
		WithID(name+"-weak"), WithApplicability(diag.FixApplicabilityManualReview))
	return diag.Diagnostic{Code: code, Primary: nameSpan, Subject: name, Fixes: []diag.Fix{weak, sup}}
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestApplyAllWritesOnlySafeFixes(t *testing.T) {
	fs, id, path := loadTemp(t)
	diags := []diag.Diagnostic{
		suppressAndWeak(fs, id, "child", diag.RuleStrongMember),
		suppressAndWeak(fs, id, "tag", diag.RuleStrongMember),
	}

	res, err := Apply(fs, diags, ApplyOptions{Mode: ApplyModeAll})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Applied) != 2 || len(res.Skipped) != 2 {
		t.Fatalf("applied=%d skipped=%d", len(res.Applied), len(res.Skipped))
	}
	if res.Applied[0].ID != "child-suppress" || res.Applied[0].Subject != "child" {
		t.Fatalf("unexpected first applied fix %+v", res.Applied[0])
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "class V\n{\n\t[S]\n\tUIView child;\n\t[S]\n\tobject tag;\n}\n"
	if string(got) != want {
		t.Fatalf("unexpected file:\n%s", got)
	}
	if len(res.FileChanges) != 1 || res.FileChanges[0].Path != "View.cs" || res.FileChanges[0].EditCount != 2 {
		t.Fatalf("unexpected changes %+v", res.FileChanges)
	}
}

func TestApplyByIDAndDryRun(t *testing.T) {
	fs, id, path := loadTemp(t)
	diags := []diag.Diagnostic{suppressAndWeak(fs, id, "child", diag.RuleStrongMember)}

	res, err := Apply(fs, diags, ApplyOptions{Mode: ApplyModeID, TargetID: "child-weak", DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.FileChanges) != 1 {
		t.Fatalf("expected one change, got %+v", res.FileChanges)
	}
	want := "class V\n{\n\tWeakReference<UIView> child;\n\tobject tag;\n}\n"
	if string(res.FileChanges[0].Content) != want {
		t.Fatalf("unexpected content:\n%s", res.FileChanges[0].Content)
	}
	onDisk, _ := os.ReadFile(path)
	if string(onDisk) != viewText {
		t.Fatal("dry run must not write")
	}

	_, err = Apply(fs, diags, ApplyOptions{Mode: ApplyModeID, TargetID: "nope"})
	if !errors.Is(err, ErrNoFixes) {
		t.Fatalf("expected ErrNoFixes, got %v", err)
	}
}

func TestApplyOncePrefersSafeFix(t *testing.T) {
	fs, id, _ := loadTemp(t)
	diags := []diag.Diagnostic{suppressAndWeak(fs, id, "tag", diag.RuleStrongMember)}
	res, err := Apply(fs, diags, ApplyOptions{Mode: ApplyModeOnce, DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Applied) != 1 || res.Applied[0].ID != "tag-suppress" {
		t.Fatalf("unexpected applied %+v", res.Applied)
	}
}

func TestApplyFiltersByCode(t *testing.T) {
	fs, id, _ := loadTemp(t)
	diags := []diag.Diagnostic{suppressAndWeak(fs, id, "tag", diag.RuleStrongMember)}
	_, err := Apply(fs, diags, ApplyOptions{Mode: ApplyModeAll, Codes: []diag.Code{diag.RuleEventExposure}})
	if !errors.Is(err, ErrNoFixes) {
		t.Fatalf("expected ErrNoFixes, got %v", err)
	}
}

func TestApplySkipsConflictsAndStaleText(t *testing.T) {
	fs, id, _ := loadTemp(t)
	span := source.Span{File: id, Start: 11, End: 17} // UIView
	diags := []diag.Diagnostic{
		{Code: diag.RuleStrongMember, Primary: span, Fixes: []diag.Fix{ReplaceSpan("a", span, "X", "UIView", WithID("a"))}},
		{Code: diag.RuleStrongMember, Primary: span, Fixes: []diag.Fix{ReplaceSpan("b", span, "Y", "UIView", WithID("b"))}},
		{Code: diag.RuleStrongMember, Primary: source.Span{File: id, Start: 26, End: 32}, Fixes: []diag.Fix{ReplaceSpan("c", source.Span{File: id, Start: 26, End: 32}, "Z", "nope", WithID("c"))}},
	}
	res, err := Apply(fs, diags, ApplyOptions{Mode: ApplyModeAll, DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Applied) != 1 || len(res.Skipped) != 2 {
		t.Fatalf("applied=%+v skipped=%+v", res.Applied, res.Skipped)
	}
}

func TestSpansConflict(t *testing.T) {
	edit := func(s, e uint32) diag.TextEdit { return diag.TextEdit{Span: source.Span{Start: s, End: e}} }
	cases := []struct {
		a, b diag.TextEdit
		want bool
	}{
		{edit(1, 1), edit(1, 1), false},
		{edit(2, 2), edit(1, 4), true},
		{edit(1, 1), edit(1, 4), false},
		{edit(1, 3), edit(2, 5), true},
		{edit(1, 3), edit(3, 5), false},
	}
	for _, c := range cases {
		if got := spansConflict(c.a, c.b); got != c.want {
			t.Errorf("spansConflict(%v, %v) = %v, want %v", c.a.Span, c.b.Span, got, c.want)
		}
	}
}
