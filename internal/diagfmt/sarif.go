package diagfmt

import (
	"encoding/json"
	"io"
	"path/filepath"

	"retaincheck/internal/diag"
	"retaincheck/internal/source"
)

const (
	sarifSchema  = "https://json.schemastore.org/sarif-2.1.0.json"
	sarifVersion = "2.1.0"
)

type sarifLog struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool        sarifTool         `json:"tool"`
	Invocations []sarifInvocation `json:"invocations,omitempty"`
	Results     []sarifResult     `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version,omitempty"`
	InformationURI string      `json:"informationUri,omitempty"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string       `json:"id"`
	Name             string       `json:"name,omitempty"`
	ShortDescription sarifMessage `json:"shortDescription"`
	Properties       struct {
		Category string `json:"category"`
	} `json:"properties"`
}

type sarifInvocation struct {
	Arguments           []string `json:"arguments,omitempty"`
	ExecutionSuccessful bool     `json:"executionSuccessful"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID           string                 `json:"ruleId"`
	RuleIndex        int                    `json:"ruleIndex"`
	Level            string                 `json:"level"`
	Message          sarifMessage           `json:"message"`
	Locations        []sarifLocation        `json:"locations"`
	RelatedLocations []sarifRelatedLocation `json:"relatedLocations,omitempty"`
	Fixes            []sarifFix             `json:"fixes,omitempty"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifRelatedLocation struct {
	ID               int                   `json:"id"`
	Message          sarifMessage          `json:"message"`
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           sarifRegion           `json:"region"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine   uint32 `json:"startLine"`
	StartColumn uint32 `json:"startColumn"`
	EndLine     uint32 `json:"endLine"`
	EndColumn   uint32 `json:"endColumn"`
	ByteOffset  uint32 `json:"byteOffset"`
	ByteLength  uint32 `json:"byteLength"`
}

type sarifFix struct {
	Description     sarifMessage          `json:"description"`
	ArtifactChanges []sarifArtifactChange `json:"artifactChanges"`
}

type sarifArtifactChange struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Replacements     []sarifReplacement    `json:"replacements"`
}

type sarifReplacement struct {
	DeletedRegion   sarifRegion   `json:"deletedRegion"`
	InsertedContent *sarifMessage `json:"insertedContent,omitempty"`
}

func sarifLevel(s diag.Severity) string {
	switch s {
	case diag.SevError:
		return "error"
	case diag.SevWarning:
		return "warning"
	}
	return "note"
}

func sarifRules() ([]sarifRule, map[diag.Code]int) {
	rules := make([]sarifRule, 0, len(diag.AllRules))
	index := make(map[diag.Code]int, len(diag.AllRules))
	for i, c := range diag.AllRules {
		r := sarifRule{ID: c.ID(), Name: c.Alias(), ShortDescription: sarifMessage{Text: c.Title()}}
		r.Properties.Category = diag.Category
		rules = append(rules, r)
		index[c] = i
	}
	return rules, index
}

func (s *sarifBuilder) physical(sp source.Span) sarifPhysicalLocation {
	loc := sarifPhysicalLocation{
		ArtifactLocation: sarifArtifactLocation{URI: filepath.ToSlash(displayPath(s.fs, sp.File, s.mode))},
		Region:           sarifRegion{ByteOffset: sp.Start, ByteLength: sp.Len()},
	}
	if s.fs.Get(sp.File) != nil {
		start, end := s.fs.Resolve(sp)
		loc.Region.StartLine, loc.Region.StartColumn = start.Line, start.Col
		loc.Region.EndLine, loc.Region.EndColumn = end.Line, end.Col
	}
	return loc
}

type sarifBuilder struct {
	fs   *source.FileSet
	mode PathMode
}

// BuildSarif assembles a SARIF 2.1.0 log with one run.
func BuildSarif(diags []diag.Diagnostic, fs *source.FileSet, meta SarifRunMeta) any {
	b := &sarifBuilder{fs: fs, mode: meta.PathMode}
	rules, index := sarifRules()
	run := sarifRun{
		Tool: sarifTool{Driver: sarifDriver{
			Name:           meta.ToolName,
			Version:        meta.ToolVersion,
			InformationURI: meta.InformationURI,
			Rules:          rules,
		}},
		Results: make([]sarifResult, 0, len(diags)),
	}
	if len(meta.InvocationArgs) > 0 {
		run.Invocations = []sarifInvocation{{Arguments: meta.InvocationArgs, ExecutionSuccessful: true}}
	}

	ctx := diag.FixBuildContext{FileSet: fs}
	for i := range diags {
		d := &diags[i]
		ruleIndex, ok := index[d.Code]
		if !ok {
			ruleIndex = -1
		}
		res := sarifResult{
			RuleID:    d.Code.ID(),
			RuleIndex: ruleIndex,
			Level:     sarifLevel(d.Severity),
			Message:   sarifMessage{Text: d.Message},
			Locations: []sarifLocation{{PhysicalLocation: b.physical(d.Primary)}},
		}
		for j, n := range d.Notes {
			res.RelatedLocations = append(res.RelatedLocations, sarifRelatedLocation{
				ID:               j + 1,
				Message:          sarifMessage{Text: n.Msg},
				PhysicalLocation: b.physical(n.Span),
			})
		}
		for _, fx := range sortedFixes(d.Fixes) {
			resolved, err := fx.Resolve(ctx)
			if err != nil || len(resolved.Edits) == 0 {
				continue
			}
			res.Fixes = append(res.Fixes, b.fix(resolved))
		}
		run.Results = append(run.Results, res)
	}
	return sarifLog{Schema: sarifSchema, Version: sarifVersion, Runs: []sarifRun{run}}
}

// fix groups edits per file in first-seen order.
func (s *sarifBuilder) fix(fx diag.Fix) sarifFix {
	out := sarifFix{Description: sarifMessage{Text: fx.Title}}
	byFile := map[source.FileID]int{}
	for _, e := range fx.Edits {
		i, ok := byFile[e.Span.File]
		if !ok {
			i = len(out.ArtifactChanges)
			byFile[e.Span.File] = i
			out.ArtifactChanges = append(out.ArtifactChanges, sarifArtifactChange{
				ArtifactLocation: s.physical(e.Span).ArtifactLocation,
			})
		}
		r := sarifReplacement{DeletedRegion: s.physical(e.Span).Region}
		if e.NewText != "" {
			r.InsertedContent = &sarifMessage{Text: e.NewText}
		}
		out.ArtifactChanges[i].Replacements = append(out.ArtifactChanges[i].Replacements, r)
	}
	return out
}

// Sarif writes diagnostics as a SARIF 2.1.0 log.
func Sarif(w io.Writer, diags []diag.Diagnostic, fs *source.FileSet, meta SarifRunMeta) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(BuildSarif(diags, fs, meta))
}
