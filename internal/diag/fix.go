package diag

import (
	"fmt"

	"retaincheck/internal/source"
)

// FixKind classifies a proposed edit.
type FixKind uint8

const (
	FixKindQuickFix FixKind = iota
	// FixKindSuppress adds a justification annotation instead of changing code.
	FixKindSuppress
	FixKindRefactorRewrite
)

func (k FixKind) String() string {
	switch k {
	case FixKindQuickFix:
		return "quickfix"
	case FixKindSuppress:
		return "suppress"
	case FixKindRefactorRewrite:
		return "refactor.rewrite"
	}
	return "unknown"
}

// FixApplicability tells the applier whether a fix can be applied unattended.
type FixApplicability uint8

const (
	FixApplicabilityAlwaysSafe FixApplicability = iota
	FixApplicabilitySafeWithHeuristics
	// FixApplicabilityManualReview changes program behaviour and is never applied by --all.
	FixApplicabilityManualReview
)

func (a FixApplicability) String() string {
	switch a {
	case FixApplicabilityAlwaysSafe:
		return "always-safe"
	case FixApplicabilitySafeWithHeuristics:
		return "safe-with-heuristics"
	case FixApplicabilityManualReview:
		return "manual-review"
	}
	return "unknown"
}

// TextEdit replaces Span with NewText. OldText, when set, must match the current text.
type TextEdit struct {
	Span    source.Span
	NewText string
	OldText string
}

// FixBuildContext gives lazy fixes access to file contents.
type FixBuildContext struct {
	FileSet *source.FileSet
}

// FixThunk builds a fix on demand, once text is available.
type FixThunk interface {
	Build(ctx FixBuildContext) (Fix, error)
}

// FixThunkFunc adapts a function to FixThunk.
type FixThunkFunc func(ctx FixBuildContext) (Fix, error)

func (f FixThunkFunc) Build(ctx FixBuildContext) (Fix, error) {
	return f(ctx)
}

type Fix struct {
	ID            string
	Title         string
	Kind          FixKind
	Applicability FixApplicability
	IsPreferred   bool
	Edits         []TextEdit
	Thunk         FixThunk
}

// Resolve returns the materialised fix, running the thunk when edits are deferred.
// Metadata set on the lazy fix wins over the one produced by the thunk.
func (f Fix) Resolve(ctx FixBuildContext) (Fix, error) {
	if f.Thunk == nil {
		return f, nil
	}
	built, err := f.Thunk.Build(ctx)
	if err != nil {
		return Fix{}, fmt.Errorf("fix %q: %w", f.Title, err)
	}
	if f.ID != "" {
		built.ID = f.ID
	}
	if f.Title != "" {
		built.Title = f.Title
	}
	built.Kind = f.Kind
	built.Applicability = f.Applicability
	built.IsPreferred = built.IsPreferred || f.IsPreferred
	built.Thunk = nil
	return built, nil
}

// MaterializeFixes resolves every fix, failing on the first thunk error.
func MaterializeFixes(ctx FixBuildContext, fixes []Fix) ([]Fix, error) {
	out := make([]Fix, 0, len(fixes))
	for _, f := range fixes {
		resolved, err := f.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return out, nil
}
