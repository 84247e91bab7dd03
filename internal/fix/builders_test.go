package fix

import (
	"errors"
	"testing"

	"retaincheck/internal/diag"
	"retaincheck/internal/source"
)

// TestMultipleOptions проверяет, что опции применяются по порядку
func TestMultipleOptions(t *testing.T) {
	fs := source.NewFileSet()
	fileID := fs.AddVirtual("View.cs", []byte("UIView child;"))

	span := source.Span{File: fileID, Start: 0, End: 6}
	fix := ReplaceSpan("Use WeakReference", span, "WeakReference<UIView>", "UIView",
		WithID("weak-1"),
		WithKind(diag.FixKindRefactorRewrite),
		WithApplicability(diag.FixApplicabilityManualReview),
		Preferred(),
	)

	if fix.ID != "weak-1" || fix.Kind != diag.FixKindRefactorRewrite || !fix.IsPreferred {
		t.Fatalf("options not applied: %+v", fix)
	}
	if fix.Applicability != diag.FixApplicabilityManualReview {
		t.Errorf("expected ManualReview, got %v", fix.Applicability)
	}
	if len(fix.Edits) != 1 || fix.Edits[0].OldText != "UIView" {
		t.Fatalf("unexpected edits %+v", fix.Edits)
	}
}

// TestNilOption проверяет, что nil опции игнорируются
func TestNilOption(t *testing.T) {
	var nilOpt Option
	fix := InsertText("Insert", source.Span{}, "static ", "", nilOpt, Preferred())
	if !fix.IsPreferred || len(fix.Edits) != 1 {
		t.Fatalf("unexpected fix %+v", fix)
	}
}

func TestDefaults(t *testing.T) {
	fix := DeleteSpan("Remove", source.Span{Start: 1, End: 2}, "x")
	if fix.Applicability != diag.FixApplicabilityAlwaysSafe {
		t.Errorf("expected default Applicability AlwaysSafe, got %v", fix.Applicability)
	}
	if fix.Kind != diag.FixKindQuickFix {
		t.Errorf("expected default Kind QuickFix, got %v", fix.Kind)
	}
	if fix.Edits[0].NewText != "" {
		t.Errorf("expected empty NewText for deletion, got %q", fix.Edits[0].NewText)
	}
}

func TestInsertLineAbove(t *testing.T) {
	fs := source.NewFileSet()
	fileID := fs.AddVirtual("View.cs", []byte("class V\n{\n\tUIView child;\n}\n"))
	at := source.Span{File: fileID, Start: 18, End: 23} // child

	fix, ok := InsertLineAbove(fs, "Suppress", at, "[Attr]")
	if !ok {
		t.Fatal("expected fix")
	}
	edit := fix.Edits[0]
	if edit.Span.Start != 10 || edit.Span.End != 10 {
		t.Fatalf("insert at %v, want line start 10", edit.Span)
	}
	if edit.NewText != "\t[Attr]\n" {
		t.Fatalf("unexpected text %q", edit.NewText)
	}

	missing := fs.AddMissing("Gone.cs")
	if _, ok := InsertLineAbove(fs, "Suppress", source.Span{File: missing}, "[Attr]"); ok {
		t.Fatal("files without text cannot take line edits")
	}
}

func TestDeleteLines(t *testing.T) {
	fs := source.NewFileSet()
	fileID := fs.AddVirtual("View.cs", []byte("class V\n{\n\tUIView child;\n}\n"))
	decl := source.Span{File: fileID, Start: 11, End: 24} // UIView child;

	fix, ok := DeleteLines(fs, "Remove", decl)
	if !ok {
		t.Fatal("expected fix")
	}
	edit := fix.Edits[0]
	if edit.Span.Start != 10 || edit.Span.End != 25 || edit.OldText != "\tUIView child;\n" {
		t.Fatalf("unexpected edit %+v", edit)
	}
}

func TestLazy(t *testing.T) {
	fix := Lazy("Later", func(diag.FixBuildContext) (diag.Fix, error) {
		return diag.Fix{}, errors.New("boom")
	}, WithApplicability(diag.FixApplicabilityManualReview))
	if fix.Thunk == nil || len(fix.Edits) != 0 {
		t.Fatalf("unexpected fix %+v", fix)
	}
	if _, err := fix.Resolve(diag.FixBuildContext{}); err == nil {
		t.Fatal("expected thunk error")
	}
}
