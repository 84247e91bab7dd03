package diagfmt

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"retaincheck/internal/diag"
	"retaincheck/internal/fix"
)

func decodeJSON(t *testing.T, diags []diag.Diagnostic, fx fixture, opts JSONOpts) DiagnosticsOutput {
	t.Helper()
	var buf bytes.Buffer
	if err := JSON(&buf, diags, fx.fs, opts); err != nil {
		t.Fatal(err)
	}
	var out DiagnosticsOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid json: %v\n%s", err, buf.String())
	}
	return out
}

func TestJSONBasic(t *testing.T) {
	fx := newFixture(t)
	out := decodeJSON(t, fx.diags, fx, JSONOpts{PathMode: PathModeRelative})

	if out.Count != 2 || len(out.Diagnostics) != 2 {
		t.Fatalf("count = %d, len = %d", out.Count, len(out.Diagnostics))
	}
	d := out.Diagnostics[0]
	if d.Severity != "warning" || d.Code != "MA0001" || d.Rule != "EVENT" || d.Subject != "Changed" {
		t.Errorf("unexpected header fields: %+v", d)
	}
	if d.Location.File != "src/Host.cs" {
		t.Errorf("file = %q", d.Location.File)
	}
	if d.Location.StartByte != fx.change.Start || d.Location.EndByte != fx.change.End {
		t.Errorf("bytes = %d..%d", d.Location.StartByte, d.Location.EndByte)
	}
	if d.Location.StartLine != 0 {
		t.Errorf("positions must be omitted by default")
	}
	if d.Notes != nil || d.Fixes != nil {
		t.Errorf("notes and fixes must be opt-in")
	}
	if out.Diagnostics[1].Severity != "error" {
		t.Errorf("second severity = %q", out.Diagnostics[1].Severity)
	}
}

func TestJSONPositionsNotesFixes(t *testing.T) {
	fx := newFixture(t)
	out := decodeJSON(t, fx.diags[:1], fx, JSONOpts{
		IncludePositions: true,
		IncludeNotes:     true,
		IncludeFixes:     true,
		IncludePreviews:  true,
	})
	d := out.Diagnostics[0]
	if d.Location.StartLine != 2 || d.Location.StartCol != 20 || d.Location.EndCol != 27 {
		t.Errorf("location = %+v", d.Location)
	}
	if len(d.Notes) != 1 || d.Notes[0].Message != "declared in bridge type Host" {
		t.Fatalf("notes = %+v", d.Notes)
	}
	if len(d.Fixes) != 1 {
		t.Fatalf("fixes = %+v", d.Fixes)
	}
	f := d.Fixes[0]
	if f.ID != "MA0001-private" || f.Kind != "quickfix" || f.Applicability != "always-safe" || !f.IsPreferred {
		t.Errorf("fix = %+v", f)
	}
	if len(f.Edits) != 1 || f.Edits[0].NewText != "private" || f.Edits[0].OldText != "public" {
		t.Fatalf("edits = %+v", f.Edits)
	}
	if got := f.Edits[0].AfterLines; len(got) != 1 || got[0] != "    private Action? Changed;" {
		t.Errorf("after = %q", got)
	}
}

func TestJSONMaxTruncates(t *testing.T) {
	fx := newFixture(t)
	out := decodeJSON(t, fx.diags, fx, JSONOpts{Max: 1})
	if out.Count != 1 || out.Truncated != 1 {
		t.Errorf("count = %d, truncated = %d", out.Count, out.Truncated)
	}
}

func TestJSONFixBuildError(t *testing.T) {
	fx := newFixture(t)
	broken := fix.Lazy("broken", func(diag.FixBuildContext) (diag.Fix, error) {
		return diag.Fix{}, errors.New("no anchor")
	})
	d := fx.diags[1].WithFixSuggestion(broken)

	out := decodeJSON(t, []diag.Diagnostic{d}, fx, JSONOpts{IncludeFixes: true})
	f := out.Diagnostics[0].Fixes[0]
	if f.Title != "broken" || f.BuildError == "" || len(f.Edits) != 0 {
		t.Errorf("fix = %+v", f)
	}
}

func TestSortedFixesPreferredFirst(t *testing.T) {
	a := diag.Fix{Title: "b", Applicability: diag.FixApplicabilityManualReview}
	b := diag.Fix{Title: "a", Applicability: diag.FixApplicabilityAlwaysSafe}
	c := diag.Fix{Title: "z", Applicability: diag.FixApplicabilityManualReview, IsPreferred: true}
	got := sortedFixes([]diag.Fix{a, b, c})
	if got[0].Title != "z" || got[1].Title != "a" || got[2].Title != "b" {
		t.Errorf("order = %s, %s, %s", got[0].Title, got[1].Title, got[2].Title)
	}
}
