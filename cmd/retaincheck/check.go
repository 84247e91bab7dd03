package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"retaincheck/internal/diag"
	"retaincheck/internal/diagfmt"
	"retaincheck/internal/driver"
	"retaincheck/internal/propose"
	"retaincheck/internal/trace"
	"retaincheck/internal/version"
)

// errDiagnostics makes the process exit non-zero after diagnostics were already printed.
var errDiagnostics = errors.New("diagnostics reported")

var checkCmd = &cobra.Command{
	Use:   "check [flags] [graph.json|graph.yaml|graph.msgpack ...]",
	Short: "Analyze graph documents and report bridge-object leaks",
	Long: `Analyze one or more graph documents. Without arguments the documents listed
in [check].inputs of retaincheck.toml are analyzed.`,
	Args: cobra.ArbitraryArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().String("format", "pretty", "output format (pretty|short|json|sarif)")
	checkCmd.Flags().Int("jobs", 0, "max parallel workers (0=auto)")
	checkCmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
	checkCmd.Flags().Bool("watch", false, "re-run when the document or its sources change")
	checkCmd.Flags().Bool("warnings-as-errors", false, "treat warnings as errors")
	checkCmd.Flags().Bool("with-notes", false, "include diagnostic notes in output")
	checkCmd.Flags().Bool("suggest", false, "include fix suggestions in output")
	checkCmd.Flags().Bool("preview", false, "show fix previews (implies --suggest)")
	checkCmd.Flags().Bool("fullpath", false, "emit absolute file paths in output")
	checkCmd.Flags().Bool("no-cache", false, "do not read or write the result cache")
	checkCmd.Flags().String("policy", "", "policy TOML file overriding the project policy")
	checkCmd.Flags().String("justification", propose.DefaultJustification, "justification text used by suppression fixes")
}

type checkFlags struct {
	format           diagfmt.Format
	ui               uiMode
	watch            bool
	warningsAsErrors bool
	withNotes        bool
	suggest          bool
	preview          bool
	pathMode         diagfmt.PathMode
	justification    string
	quiet            bool
	timings          bool
	color            bool
}

func readCheckFlags(cmd *cobra.Command) (*checkFlags, error) {
	f := &checkFlags{}
	var err error

	formatStr, err := cmd.Flags().GetString("format")
	if err != nil {
		return nil, fmt.Errorf("failed to get format flag: %w", err)
	}
	if f.format, err = diagfmt.ParseFormat(formatStr); err != nil {
		return nil, err
	}
	uiStr, err := cmd.Flags().GetString("ui")
	if err != nil {
		return nil, fmt.Errorf("failed to get ui flag: %w", err)
	}
	if f.ui, err = readUIMode(uiStr); err != nil {
		return nil, err
	}
	if f.watch, err = cmd.Flags().GetBool("watch"); err != nil {
		return nil, fmt.Errorf("failed to get watch flag: %w", err)
	}
	if f.warningsAsErrors, err = cmd.Flags().GetBool("warnings-as-errors"); err != nil {
		return nil, fmt.Errorf("failed to get warnings-as-errors flag: %w", err)
	}
	if f.withNotes, err = cmd.Flags().GetBool("with-notes"); err != nil {
		return nil, fmt.Errorf("failed to get with-notes flag: %w", err)
	}
	if f.suggest, err = cmd.Flags().GetBool("suggest"); err != nil {
		return nil, fmt.Errorf("failed to get suggest flag: %w", err)
	}
	if f.preview, err = cmd.Flags().GetBool("preview"); err != nil {
		return nil, fmt.Errorf("failed to get preview flag: %w", err)
	}
	f.suggest = f.suggest || f.preview

	fullPath, err := cmd.Flags().GetBool("fullpath")
	if err != nil {
		return nil, fmt.Errorf("failed to get fullpath flag: %w", err)
	}
	f.pathMode = diagfmt.PathModeAuto
	if fullPath {
		f.pathMode = diagfmt.PathModeAbsolute
	}
	if f.justification, err = cmd.Flags().GetString("justification"); err != nil {
		return nil, fmt.Errorf("failed to get justification flag: %w", err)
	}
	if f.quiet, err = cmd.Root().PersistentFlags().GetBool("quiet"); err != nil {
		return nil, fmt.Errorf("failed to get quiet flag: %w", err)
	}
	if f.timings, err = cmd.Root().PersistentFlags().GetBool("timings"); err != nil {
		return nil, fmt.Errorf("failed to get timings flag: %w", err)
	}
	if f.color, err = useColor(cmd); err != nil {
		return nil, err
	}
	return f, nil
}

// runCheck executes the "check" command. It returns errDiagnostics when an
// error diagnostic (or a warning with --warnings-as-errors) was reported.
func runCheck(cmd *cobra.Command, args []string) error {
	flags, err := readCheckFlags(cmd)
	if err != nil {
		return err
	}
	settings, err := loadSettings(cmd, settingsStart(args))
	if err != nil {
		return err
	}
	inputs, err := settings.resolveInputs(args)
	if err != nil {
		return err
	}

	var cache *driver.DiskCache
	if settings.cache && !flags.suggest {
		cache, err = driver.OpenDiskCache(cacheApp)
		if err != nil && !flags.quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: result cache disabled: %v\n", err)
		}
	}

	r := &checkRunner{
		out:      cmd.OutOrStdout(),
		errOut:   cmd.ErrOrStderr(),
		flags:    flags,
		settings: settings,
		cache:    cache,
		useTUI:   !flags.watch && !flags.quiet && shouldUseTUI(flags.ui, flags.format == diagfmt.FormatPretty),
	}

	ctx := cmd.Context()
	results, failed, err := r.runAll(ctx, inputs)
	if err != nil {
		return err
	}
	if flags.watch {
		return r.watch(ctx, inputs, results)
	}
	if failed {
		cmd.SilenceErrors = true
		return errDiagnostics
	}
	return nil
}

type checkRunner struct {
	out      io.Writer
	errOut   io.Writer
	flags    *checkFlags
	settings *runSettings
	cache    *driver.DiskCache
	useTUI   bool
}

func (r *checkRunner) options() driver.CheckOptions {
	return driver.CheckOptions{
		Jobs:           r.settings.jobs,
		MaxDiagnostics: r.settings.maxDiagnostics,
		Fixes:          r.flags.suggest,
		Propose:        propose.Options{Justification: r.flags.justification},
		Cache:          r.cache,
		EnableTimings:  r.flags.timings,
	}
}

// runAll checks every input, renders the results and reports whether the run failed.
func (r *checkRunner) runAll(ctx context.Context, inputs []string) ([]*driver.CheckResult, bool, error) {
	results := make([]*driver.CheckResult, 0, len(inputs))
	for _, path := range inputs {
		var (
			res *driver.CheckResult
			err error
		)
		if r.useTUI {
			res, err = runCheckWithUI(ctx, "retaincheck "+filepath.Base(path), path, r.settings.policy, r.options())
		} else {
			res, err = driver.Check(ctx, path, r.settings.policy, r.options())
		}
		if err != nil {
			return results, false, fmt.Errorf("check %s: %w", path, err)
		}
		results = append(results, res)
	}

	if err := r.render(results); err != nil {
		return results, false, err
	}

	failed := false
	for _, res := range results {
		if r.flags.timings {
			printTimings(r.errOut, res.Loaded.Path, res.Timings)
		}
		if !r.flags.quiet {
			r.printStatus(res)
		}
		if hasFailure(res.Diagnostics, r.flags.warningsAsErrors) {
			failed = true
		}
	}
	return results, failed, nil
}

func hasFailure(diags []diag.Diagnostic, warningsAsErrors bool) bool {
	for i := range diags {
		switch diags[i].Severity {
		case diag.SevError:
			return true
		case diag.SevWarning:
			if warningsAsErrors {
				return true
			}
		}
	}
	return false
}

// printStatus reports conditions that are not diagnostics on stderr.
func (r *checkRunner) printStatus(res *driver.CheckResult) {
	st := res.Stats
	if res.Partial {
		fmt.Fprintf(r.errOut, "warning: %s: analysis cancelled, results are partial (%d of %d types)\n", res.Loaded.Path, st.Analyzed, st.Units)
	}
	if st.Dropped > 0 {
		fmt.Fprintf(r.errOut, "note: %s: %d more diagnostics not shown (max-diagnostics=%d)\n", res.Loaded.Path, st.Dropped, r.settings.maxDiagnostics)
	}
	if st.Skipped > 0 {
		fmt.Fprintf(r.errOut, "note: %s: skipped %d malformed graph nodes (use --trace-level detail to list them)\n", res.Loaded.Path, st.Skipped)
	}
	if res.CacheHit && r.flags.timings {
		fmt.Fprintf(r.errOut, "note: %s: cached result %s\n", res.Loaded.Path, res.Key.Short())
	}
}

func (r *checkRunner) displayPath(path string) string {
	if r.flags.pathMode == diagfmt.PathModeAbsolute {
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
	}
	return path
}

func (r *checkRunner) render(results []*driver.CheckResult) error {
	f := r.flags
	switch f.format {
	case diagfmt.FormatPretty:
		opts := diagfmt.PrettyOpts{
			Color:       f.color,
			Context:     2,
			PathMode:    f.pathMode,
			ShowNotes:   f.withNotes,
			ShowFixes:   f.suggest,
			ShowPreview: f.preview,
		}
		for idx, res := range results {
			if len(results) > 1 {
				if idx > 0 {
					fmt.Fprintln(r.out)
				}
				fmt.Fprintf(r.out, "== %s ==\n", r.displayPath(res.Loaded.Path))
			}
			if err := diagfmt.Pretty(r.out, res.Diagnostics, res.Loaded.Graph.Files, opts); err != nil {
				return fmt.Errorf("failed to format diagnostics: %w", err)
			}
			if len(res.Diagnostics) == 0 && !f.quiet {
				fmt.Fprintln(r.out, "no findings")
			}
		}
	case diagfmt.FormatShort:
		for _, res := range results {
			if err := diagfmt.Short(r.out, res.Diagnostics, res.Loaded.Graph.Files, f.withNotes); err != nil {
				return fmt.Errorf("failed to format diagnostics: %w", err)
			}
		}
	case diagfmt.FormatJSON:
		opts := diagfmt.JSONOpts{
			IncludePositions: true,
			PathMode:         f.pathMode,
			IncludeNotes:     f.withNotes,
			IncludeFixes:     f.suggest,
			IncludePreviews:  f.preview,
		}
		if len(results) == 1 {
			res := results[0]
			if err := diagfmt.JSON(r.out, res.Diagnostics, res.Loaded.Graph.Files, opts); err != nil {
				return fmt.Errorf("failed to format diagnostics: %w", err)
			}
			return nil
		}
		output := make(map[string]diagfmt.DiagnosticsOutput, len(results))
		for _, res := range results {
			output[r.displayPath(res.Loaded.Path)] = diagfmt.BuildDiagnosticsOutput(res.Diagnostics, res.Loaded.Graph.Files, opts)
		}
		encoder := json.NewEncoder(r.out)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(output); err != nil {
			return fmt.Errorf("failed to encode diagnostics output: %w", err)
		}
	case diagfmt.FormatSarif:
		meta := diagfmt.SarifRunMeta{
			ToolName:       "retaincheck",
			ToolVersion:    strings.TrimSpace(version.Version),
			InvocationArgs: os.Args[1:],
			PathMode:       f.pathMode,
		}
		for _, res := range results {
			if err := diagfmt.Sarif(r.out, res.Diagnostics, res.Loaded.Graph.Files, meta); err != nil {
				return fmt.Errorf("failed to format diagnostics: %w", err)
			}
		}
	}
	return nil
}

// watch re-runs the whole check whenever a document, one of its source
// files or the config changes, until the context is cancelled.
func (r *checkRunner) watch(ctx context.Context, inputs []string, results []*driver.CheckResult) error {
	w, err := driver.NewWatcher(driver.DefaultDebounce)
	if err != nil {
		return err
	}
	defer w.Close()

	track := func(results []*driver.CheckResult) error {
		// inputs are tracked even when loading failed so a fixed document triggers a run
		if err := w.Track(inputs...); err != nil {
			return err
		}
		if r.settings.configPath != "" {
			if err := w.Track(r.settings.configPath); err != nil {
				return err
			}
		}
		for _, res := range results {
			if err := w.Track(driver.WatchTargets(res)...); err != nil {
				return err
			}
		}
		return nil
	}
	if err := track(results); err != nil {
		return err
	}
	if !r.flags.quiet {
		fmt.Fprintf(r.errOut, "watching %d files, press Ctrl-C to stop\n", len(w.Tracked()))
	}

	tr := trace.FromContext(ctx)
	return w.Run(ctx, func(changed []string) {
		if !r.flags.quiet {
			fmt.Fprintf(r.errOut, "\nchanged: %s\n", strings.Join(changed, ", "))
		}
		results, _, err := r.runAll(ctx, inputs)
		if err != nil {
			trace.Error(tr, trace.ScopeDriver, "watch-run", err, trace.CurrentSpan(ctx))
			fmt.Fprintf(r.errOut, "error: %v\n", err)
		}
		if err := track(results); err != nil {
			fmt.Fprintf(r.errOut, "error: %v\n", err)
		}
	})
}
