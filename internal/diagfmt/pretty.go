package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"retaincheck/internal/diag"
	"retaincheck/internal/source"
)

const tabWidth = 4

type palette struct {
	err, warn, info, note, path, gutter, caret, fix, add, del *color.Color
}

func newPalette(enabled bool) palette {
	mk := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c
	}
	return palette{
		err:    mk(color.FgRed, color.Bold),
		warn:   mk(color.FgYellow, color.Bold),
		info:   mk(color.FgCyan, color.Bold),
		note:   mk(color.FgBlue, color.Bold),
		path:   mk(color.Bold),
		gutter: mk(color.FgBlue),
		caret:  mk(color.FgGreen, color.Bold),
		fix:    mk(color.FgMagenta),
		add:    mk(color.FgGreen),
		del:    mk(color.FgRed),
	}
}

func (p palette) severity(s diag.Severity) *color.Color {
	switch s {
	case diag.SevError:
		return p.err
	case diag.SevWarning:
		return p.warn
	}
	return p.info
}

// Pretty renders diagnostics for humans, keeping their order. Each one prints
// as
//
//	<path>:<line>:<col>: <SEV> <CODE>: <Message>
//
// followed by the source context with a ^~~~ underline under the span, and
// then its notes and fixes.
func Pretty(w io.Writer, diags []diag.Diagnostic, fs *source.FileSet, opts PrettyOpts) error {
	pw := &prettyWriter{w: w, fs: fs, opts: opts, pal: newPalette(opts.Color)}
	for i := range diags {
		if i > 0 {
			pw.printf("\n")
		}
		pw.diagnostic(&diags[i])
	}
	return pw.err
}

type prettyWriter struct {
	w    io.Writer
	fs   *source.FileSet
	opts PrettyOpts
	pal  palette
	err  error
}

func (pw *prettyWriter) printf(format string, args ...any) {
	if pw.err != nil {
		return
	}
	_, pw.err = fmt.Fprintf(pw.w, format, args...)
}

func (pw *prettyWriter) location(sp source.Span) string {
	if pw.fs.Get(sp.File) == nil {
		return "<unknown>"
	}
	start, _ := pw.fs.Resolve(sp)
	return fmt.Sprintf("%s:%d:%d", displayPath(pw.fs, sp.File, pw.opts.PathMode), start.Line, start.Col)
}

func (pw *prettyWriter) diagnostic(d *diag.Diagnostic) {
	pw.printf("%s: %s %s: %s\n",
		pw.pal.path.Sprint(pw.location(d.Primary)),
		pw.pal.severity(d.Severity).Sprint(d.Severity.String()),
		d.Code.ID(),
		d.Message,
	)
	pw.snippet(d.Primary)

	if pw.opts.ShowNotes {
		for _, n := range d.Notes {
			pw.printf("  %s %s: %s\n", pw.pal.note.Sprint("note:"), pw.location(n.Span), n.Msg)
		}
	}
	if pw.opts.ShowFixes {
		pw.fixes(d.Fixes)
	}
}

// snippet prints the primary line with Context lines around it and a caret underline.
func (pw *prettyWriter) snippet(sp source.Span) {
	f := pw.fs.Get(sp.File)
	if !f.HasText() {
		return
	}
	start, end := pw.fs.Resolve(sp)
	ctx := uint32(max(pw.opts.Context, 0))
	lineCount := uint32(len(f.LineIdx)) + 1
	first := start.Line - min(ctx, start.Line-1)
	last := min(start.Line+ctx, lineCount)
	gutter := len(fmt.Sprint(last))

	for line := first; line <= last; line++ {
		text := f.GetLine(line)
		display := pw.clip(expandTabs(text))
		pw.printf("%s %s\n", pw.pal.gutter.Sprintf("%*d |", gutter, line), display)
		if line != start.Line {
			continue
		}
		// caret column measured in display cells up to the span start
		prefix := expandTabs(prefixBytes(text, start.Col-1))
		width := 1
		if end.Line == start.Line && end.Col > start.Col {
			covered := expandTabs(prefixBytes(text, end.Col-1))
			width = max(runewidth.StringWidth(covered)-runewidth.StringWidth(prefix), 1)
		}
		marker := "^" + strings.Repeat("~", width-1)
		pw.printf("%s %s%s\n",
			pw.pal.gutter.Sprintf("%*s |", gutter, ""),
			strings.Repeat(" ", runewidth.StringWidth(prefix)),
			pw.pal.caret.Sprint(marker))
	}
}

func (pw *prettyWriter) clip(s string) string {
	if pw.opts.Width == 0 {
		return s
	}
	return runewidth.Truncate(s, int(pw.opts.Width), "…")
}

func (pw *prettyWriter) fixes(fixes []diag.Fix) {
	ctx := diag.FixBuildContext{FileSet: pw.fs}
	for i, fx := range fixes {
		resolved, err := fx.Resolve(ctx)
		var tags []string
		if resolved.ID != "" {
			tags = append(tags, "id="+resolved.ID)
		}
		tags = append(tags, resolved.Kind.String(), resolved.Applicability.String())
		if resolved.IsPreferred {
			tags = append(tags, "preferred")
		}
		pw.printf("  %s %s [%s]\n", pw.pal.fix.Sprintf("fix #%d:", i+1), resolved.Title, strings.Join(tags, ", "))
		if err != nil {
			pw.printf("    unavailable: %v\n", err)
			continue
		}
		for _, e := range resolved.Edits {
			pw.printf("    %s apply=%q\n", pw.location(e.Span), e.NewText)
			if !pw.opts.ShowPreview {
				continue
			}
			preview, perr := buildFixEditPreview(pw.fs, e)
			if perr != nil {
				continue
			}
			pw.printf("    preview:\n")
			for _, l := range preview.before {
				pw.printf("      %s\n", pw.pal.del.Sprint("- "+l))
			}
			for _, l := range preview.after {
				pw.printf("      %s\n", pw.pal.add.Sprint("+ "+l))
			}
		}
	}
}

func expandTabs(s string) string {
	if !strings.Contains(s, "\t") {
		return s
	}
	var b strings.Builder
	col := 0
	for _, r := range s {
		if r == '\t' {
			n := tabWidth - col%tabWidth
			b.WriteString(strings.Repeat(" ", n))
			col += n
			continue
		}
		b.WriteRune(r)
		col += runewidth.RuneWidth(r)
	}
	return b.String()
}

func prefixBytes(s string, n uint32) string {
	if int(n) > len(s) {
		return s
	}
	return s[:n]
}
