package fix

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"retaincheck/internal/diag"
	"retaincheck/internal/source"
)

// ErrNoFixes is returned when no fixes were applied.
var ErrNoFixes = errors.New("no applicable fixes found")

// ApplyMode determines selection strategy for fixes.
type ApplyMode uint8

const (
	// ApplyModeOnce applies the first always-safe fix, or the first fix at all.
	ApplyModeOnce ApplyMode = iota
	// ApplyModeAll applies every always-safe fix.
	ApplyModeAll
	// ApplyModeID applies the fix with ApplyOptions.TargetID regardless of applicability.
	ApplyModeID
)

// ApplyOptions configures how fixes are selected.
type ApplyOptions struct {
	Mode     ApplyMode
	TargetID string
	// Codes limits candidates to diagnostics of these rules when non-empty.
	Codes []diag.Code
	// DryRun computes the new contents without writing files.
	DryRun bool
}

// AppliedFix records a successfully applied fix.
type AppliedFix struct {
	ID            string
	Title         string
	Code          diag.Code
	Subject       string
	Applicability diag.FixApplicability
	PrimaryPath   string
	EditCount     int
}

// SkippedFix captures a skipped or failed fix with a reason.
type SkippedFix struct {
	ID     string
	Title  string
	Reason string
}

// FileChange summarises modifications performed on a file.
type FileChange struct {
	Path      string
	EditCount int
	// Content is the rewritten file; set only for dry runs.
	Content []byte
}

// ApplyResult aggregates applied fixes, skipped ones, and file changes.
type ApplyResult struct {
	Applied     []AppliedFix
	Skipped     []SkippedFix
	FileChanges []FileChange
}

type candidate struct {
	diag  diag.Diagnostic
	fix   diag.Fix
	order int
}

// Apply collects fixes from diagnostics, selects a subset according to opts, and applies them.
func Apply(fs *source.FileSet, diagnostics []diag.Diagnostic, opts ApplyOptions) (*ApplyResult, error) {
	result := &ApplyResult{
		Applied:     make([]AppliedFix, 0),
		Skipped:     make([]SkippedFix, 0),
		FileChanges: make([]FileChange, 0),
	}
	if fs == nil {
		return result, fmt.Errorf("fix: FileSet is nil")
	}

	if len(opts.Codes) > 0 {
		diagnostics = slices.DeleteFunc(slices.Clone(diagnostics), func(d diag.Diagnostic) bool {
			return !slices.Contains(opts.Codes, d.Code)
		})
	}

	ctx := diag.FixBuildContext{FileSet: fs}
	candidates, buildSkips := gatherCandidates(ctx, diagnostics)
	result.Skipped = append(result.Skipped, buildSkips...)

	if len(candidates) == 0 {
		return result, ErrNoFixes
	}

	sortCandidates(candidates)

	selected, selectionSkips := selectCandidates(candidates, opts)
	result.Skipped = append(result.Skipped, selectionSkips...)

	if len(selected) == 0 {
		return result, ErrNoFixes
	}

	ws := newWorkspace(fs, opts.DryRun)
	for _, c := range selected {
		if reason := ws.stage(c); reason != "" {
			result.Skipped = append(result.Skipped, c.skip(reason))
			continue
		}
		result.Applied = append(result.Applied, AppliedFix{
			ID:            c.fix.ID,
			Title:         c.fix.Title,
			Code:          c.diag.Code,
			Subject:       c.diag.Subject,
			Applicability: c.fix.Applicability,
			PrimaryPath:   ws.displayPath(c.diag.Primary.File, "auto"),
			EditCount:     len(c.fix.Edits),
		})
	}
	changes, err := ws.commit()
	result.FileChanges = append(result.FileChanges, changes...)
	if err != nil {
		return result, err
	}
	if len(result.Applied) == 0 {
		return result, ErrNoFixes
	}
	return result, nil
}

// gatherCandidates materialises the fixes of every diagnostic. Fixes that fail
// to build, have no edits or repeat an already seen id are reported as skipped.
// Missing ids are synthesised from the rule id, the primary span and the fix index.
func gatherCandidates(ctx diag.FixBuildContext, diagnostics []diag.Diagnostic) ([]candidate, []SkippedFix) {
	cands := make([]candidate, 0)
	skips := make([]SkippedFix, 0)
	seen := make(map[string]struct{})

	order := 0
	for _, d := range diagnostics {
		if len(d.Fixes) == 0 {
			continue
		}

		resolved, err := diag.MaterializeFixes(ctx, d.Fixes)
		if err != nil {
			skips = append(skips, SkippedFix{
				Title:  d.Message,
				Reason: fmt.Sprintf("failed to build fixes: %v", err),
			})
			continue
		}

		for idx, f := range resolved {
			if len(f.Edits) == 0 {
				skips = append(skips, SkippedFix{
					ID:     f.ID,
					Title:  f.Title,
					Reason: "fix has no edits",
				})
				continue
			}
			if f.ID == "" {
				f.ID = fmt.Sprintf("%s-%d-%d-%d", d.Code.ID(), d.Primary.File, d.Primary.Start, idx)
			}
			if _, dup := seen[f.ID]; dup {
				skips = append(skips, SkippedFix{
					ID:     f.ID,
					Title:  f.Title,
					Reason: "duplicate fix id",
				})
				continue
			}
			seen[f.ID] = struct{}{}
			cands = append(cands, candidate{
				diag:  d,
				fix:   f,
				order: order,
			})
			order++
		}
	}
	return cands, skips
}

// sortCandidates orders candidates by primary span, then preference
// (preferred first), discovery order, rule code, id and title.
func sortCandidates(candidates []candidate) {
	slices.SortStableFunc(candidates, func(a, b candidate) int {
		pa, pb := a.diag.Primary, b.diag.Primary
		return cmp.Or(
			cmp.Compare(pa.File, pb.File),
			cmp.Compare(pa.Start, pb.Start),
			cmp.Compare(pa.End, pb.End),
			preferredFirst(a.fix, b.fix),
			cmp.Compare(a.order, b.order),
			cmp.Compare(a.diag.Code, b.diag.Code),
			cmp.Compare(a.fix.ID, b.fix.ID),
			cmp.Compare(a.fix.Title, b.fix.Title),
		)
	})
}

func preferredFirst(a, b diag.Fix) int {
	switch {
	case a.IsPreferred == b.IsPreferred:
		return 0
	case a.IsPreferred:
		return -1
	default:
		return 1
	}
}

func alwaysSafe(c candidate) bool {
	return c.fix.Applicability == diag.FixApplicabilityAlwaysSafe
}

func selectCandidates(candidates []candidate, opts ApplyOptions) ([]candidate, []SkippedFix) {
	switch opts.Mode {
	case ApplyModeID:
		if i := slices.IndexFunc(candidates, func(c candidate) bool { return c.fix.ID == opts.TargetID }); i >= 0 {
			return candidates[i : i+1], nil
		}
		return nil, []SkippedFix{{ID: opts.TargetID, Reason: "fix id not found"}}
	case ApplyModeAll:
		var selected []candidate
		var skipped []SkippedFix
		for _, c := range candidates {
			if alwaysSafe(c) {
				selected = append(selected, c)
				continue
			}
			skipped = append(skipped, c.skip(fmt.Sprintf("applicability is %s", c.fix.Applicability)))
		}
		return selected, skipped
	case ApplyModeOnce:
		if i := slices.IndexFunc(candidates, alwaysSafe); i >= 0 {
			return candidates[i : i+1], nil
		}
		return candidates[:1], nil
	default:
		return nil, nil
	}
}

func (c candidate) skip(reason string) SkippedFix {
	return SkippedFix{ID: c.fix.ID, Title: c.fix.Title, Reason: reason}
}
