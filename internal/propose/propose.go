// Package propose turns findings into candidate code edits. It never decides
// whether a finding is real and never applies anything.
package propose

import (
	"fmt"
	"strconv"

	"retaincheck/internal/diag"
	"retaincheck/internal/fix"
	"retaincheck/internal/rules"
	"retaincheck/internal/source"
)

// DefaultJustification is the placeholder text of suppression fixes.
const DefaultJustification = "Proven safe in test: XYZ"

type Options struct {
	Justification string
	// SuppressAttribute is the attribute name written into source.
	SuppressAttribute string
	WeakWrapper       string
}

func (o Options) withDefaults() Options {
	if o.Justification == "" {
		o.Justification = DefaultJustification
	}
	if o.SuppressAttribute == "" {
		o.SuppressAttribute = "UnconditionalSuppressMessage"
	}
	if o.WeakWrapper == "" {
		o.WeakWrapper = "WeakReference"
	}
	return o
}

// Proposer builds fixes against the files of one graph.
type Proposer struct {
	files *source.FileSet
	opts  Options
}

func New(files *source.FileSet, opts Options) *Proposer {
	return &Proposer{files: files, opts: opts.withDefaults()}
}

// Fixes returns the edits offered for f, preferred fix first.
// Fixes whose text cannot be located are left out.
func (p *Proposer) Fixes(f *rules.Finding) []diag.Fix {
	var out []diag.Fix
	switch {
	case f.Member != nil:
		if sup, ok := p.suppress(f); ok {
			out = append(out, sup)
		}
		if f.Code == diag.RuleStrongMember {
			out = append(out, p.weak(f))
		}
		if rm, ok := p.remove(f, f.Member.Decl, "Remove "+f.Member.Kind.String()+" '"+f.Member.Name+"'"); ok {
			out = append(out, rm)
		}
	case f.Site != nil:
		if st, ok := p.makeStatic(f); ok {
			out = append(out, st)
		}
		if rm, ok := p.remove(f, f.Site.Stmt, "Remove subscription of '"+f.Subject+"'"); ok {
			out = append(out, rm)
		}
	}
	return out
}

func fixID(f *rules.Finding, kind string) string {
	return fmt.Sprintf("%s-%s-%d-%d", f.Code.ID(), kind, f.Span.File, f.Span.Start)
}

// SuppressionText is the attribute line inserted above a declaration.
func (p *Proposer) SuppressionText(code diag.Code) string {
	return fmt.Sprintf("[%s(%s, %s, Justification = %s)]",
		p.opts.SuppressAttribute,
		strconv.Quote(diag.Category),
		strconv.Quote(code.ID()),
		strconv.Quote(p.opts.Justification),
	)
}

func (p *Proposer) suppress(f *rules.Finding) (diag.Fix, bool) {
	anchor := f.Member.Decl
	if anchor.Empty() {
		anchor = f.Member.NameSpan
	}
	if !p.hasText(anchor.File) {
		return diag.Fix{}, false
	}
	line := p.SuppressionText(f.Code)
	files := p.files
	title := fmt.Sprintf("Suppress %s on '%s'", f.Code.ID(), f.Subject)
	return fix.Lazy(title, func(diag.FixBuildContext) (diag.Fix, error) {
		built, ok := fix.InsertLineAbove(files, title, anchor, line)
		if !ok {
			return diag.Fix{}, fmt.Errorf("no text for %s", anchor)
		}
		return built, nil
	},
		fix.WithID(fixID(f, "suppress")),
		fix.WithKind(diag.FixKindSuppress),
		fix.WithApplicability(diag.FixApplicabilityAlwaysSafe),
		fix.Preferred(),
	), true
}

func (p *Proposer) weak(f *rules.Finding) diag.Fix {
	m := f.Member
	files := p.files
	wrapper := p.opts.WeakWrapper
	title := fmt.Sprintf("Hold '%s' through %s", m.Name, wrapper)
	return fix.Lazy(title, func(diag.FixBuildContext) (diag.Fix, error) {
		old, ok := files.Text(m.TypeSpan)
		if !ok || m.TypeSpan.Empty() {
			return diag.Fix{}, fmt.Errorf("no declared type text for %s", m)
		}
		return fix.ReplaceSpan(title, m.TypeSpan, wrapper+"<"+old+">", old), nil
	},
		fix.WithID(fixID(f, "weak")),
		fix.WithKind(diag.FixKindRefactorRewrite),
		fix.WithApplicability(diag.FixApplicabilityManualReview),
	)
}

func (p *Proposer) makeStatic(f *rules.Finding) (diag.Fix, bool) {
	h := f.Site.Handler
	if h == nil || !h.HasStaticInsert || !p.hasText(h.StaticInsert.File) {
		return diag.Fix{}, false
	}
	return fix.InsertText(
		fmt.Sprintf("Make '%s' static", h.Name),
		h.StaticInsert, "static ", "",
		fix.WithID(fixID(f, "static")),
		fix.WithKind(diag.FixKindRefactorRewrite),
		fix.WithApplicability(diag.FixApplicabilityManualReview),
	), true
}

func (p *Proposer) remove(f *rules.Finding, span source.Span, title string) (diag.Fix, bool) {
	if span.Empty() {
		return diag.Fix{}, false
	}
	return fix.DeleteLines(p.files, title, span,
		fix.WithID(fixID(f, "remove")),
		fix.WithApplicability(diag.FixApplicabilityManualReview),
	)
}

func (p *Proposer) hasText(id source.FileID) bool {
	return p.files.Get(id).HasText()
}

// Origin names the declaration a finding came from, for fix listings.
func Origin(f *rules.Finding) string {
	switch {
	case f.Member != nil:
		return f.Member.String()
	case f.Site != nil:
		return f.Site.Containing.String() + "." + f.Site.Member
	}
	return ""
}
