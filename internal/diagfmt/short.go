package diagfmt

import (
	"io"

	"retaincheck/internal/diag"
	"retaincheck/internal/source"
)

// Short prints one line per diagnostic in the compact CI form.
func Short(w io.Writer, diags []diag.Diagnostic, fs *source.FileSet, includeNotes bool) error {
	out := diag.FormatShortDiagnostics(diags, fs, includeNotes)
	if out == "" {
		return nil
	}
	_, err := io.WriteString(w, out+"\n")
	return err
}
