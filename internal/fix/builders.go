package fix

import (
	"retaincheck/internal/diag"
	"retaincheck/internal/source"
)

// Option mutates fix during construction.
type Option func(*diag.Fix)

// WithApplicability overrides applicability metadata.
func WithApplicability(app diag.FixApplicability) Option {
	return func(f *diag.Fix) {
		f.Applicability = app
	}
}

// WithKind overrides fix classification.
func WithKind(kind diag.FixKind) Option {
	return func(f *diag.Fix) {
		f.Kind = kind
	}
}

// Preferred marks fix as preferred suggestion.
func Preferred() Option {
	return func(f *diag.Fix) {
		f.IsPreferred = true
	}
}

// WithID sets stable identifier for fix.
func WithID(id string) Option {
	return func(f *diag.Fix) {
		f.ID = id
	}
}

// WithThunk attaches lazy builder to fix.
func WithThunk(thunk diag.FixThunk) Option {
	return func(f *diag.Fix) {
		f.Thunk = thunk
	}
}

func applyOptions(f diag.Fix, opts []Option) diag.Fix {
	for _, opt := range opts {
		if opt != nil {
			opt(&f)
		}
	}
	return f
}

func single(title string, edit diag.TextEdit, opts []Option) diag.Fix {
	fix := diag.Fix{
		Title:         title,
		Kind:          diag.FixKindQuickFix,
		Applicability: diag.FixApplicabilityAlwaysSafe,
		Edits:         []diag.TextEdit{edit},
	}
	return applyOptions(fix, opts)
}

// InsertText creates fix that inserts text at span (Span.Start == Span.End).
func InsertText(title string, at source.Span, text, guard string, opts ...Option) diag.Fix {
	return single(title, diag.TextEdit{Span: at, NewText: text, OldText: guard}, opts)
}

// DeleteSpan removes text covered by span.
func DeleteSpan(title string, span source.Span, expect string, opts ...Option) diag.Fix {
	return single(title, diag.TextEdit{Span: span, OldText: expect}, opts)
}

// ReplaceSpan replaces text covered by span with newText.
func ReplaceSpan(title string, span source.Span, newText, expect string, opts ...Option) diag.Fix {
	return single(title, diag.TextEdit{Span: span, NewText: newText, OldText: expect}, opts)
}

// Lazy creates a fix whose edits are produced by build once file text is available.
func Lazy(title string, build func(ctx diag.FixBuildContext) (diag.Fix, error), opts ...Option) diag.Fix {
	fix := diag.Fix{
		Title:         title,
		Kind:          diag.FixKindQuickFix,
		Applicability: diag.FixApplicabilityAlwaysSafe,
		Thunk:         diag.FixThunkFunc(build),
	}
	return applyOptions(fix, opts)
}

// InsertLineAbove inserts line (without newline) above the line containing at,
// indented like that line.
func InsertLineAbove(fs *source.FileSet, title string, at source.Span, line string, opts ...Option) (diag.Fix, bool) {
	f := fs.Get(at.File)
	if !f.HasText() {
		return diag.Fix{}, false
	}
	start, _ := f.LineBounds(at.Start)
	indent := f.LineIndent(at.Start)
	point := source.Span{File: at.File, Start: start, End: start}
	return InsertText(title, point, indent+line+"\n", "", opts...), true
}

// DeleteLines removes the full lines covered by span, including the final newline.
func DeleteLines(fs *source.FileSet, title string, span source.Span, opts ...Option) (diag.Fix, bool) {
	f := fs.Get(span.File)
	if !f.HasText() || span.End < span.Start {
		return diag.Fix{}, false
	}
	start, _ := f.LineBounds(span.Start)
	end := span.End
	if end > span.Start {
		end--
	}
	_, next := f.LineBounds(end)
	full := source.Span{File: span.File, Start: start, End: next}
	expect, ok := fs.Text(full)
	if !ok {
		return diag.Fix{}, false
	}
	return DeleteSpan(title, full, expect, opts...), true
}
