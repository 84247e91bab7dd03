package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"retaincheck/internal/diag"
	"retaincheck/internal/driver"
	"retaincheck/internal/fix"
	"retaincheck/internal/propose"
)

var fixCmd = &cobra.Command{
	Use:   "fix [flags] <graph document>",
	Short: "Apply proposed fixes to the analyzed source files",
	Long: `Analyze a graph document, then apply the proposed fixes according to the chosen
strategy. --all applies every always-safe fix (suppressions); fixes that change
behaviour are only applied by --id.`,
	Args: cobra.ExactArgs(1),
	RunE: runFix,
}

func init() {
	fixCmd.Flags().Bool("all", false, "apply all safe fixes")
	fixCmd.Flags().Bool("once", false, "apply the first available fix (default)")
	fixCmd.Flags().String("id", "", "apply fix with a specific identifier")
	fixCmd.Flags().StringSlice("rule", nil, "limit fixes to these rules (MA0001, STRONG_MEMBER, ...)")
	fixCmd.Flags().Bool("dry-run", false, "print rewritten files instead of writing them")
	fixCmd.Flags().String("policy", "", "policy TOML file overriding the project policy")
	fixCmd.Flags().String("justification", propose.DefaultJustification, "justification text used by suppression fixes")
}

func runFix(cmd *cobra.Command, args []string) error {
	targetPath := args[0]

	applyAll, err := cmd.Flags().GetBool("all")
	if err != nil {
		return err
	}
	applyOnceFlag, err := cmd.Flags().GetBool("once")
	if err != nil {
		return err
	}
	targetID, err := cmd.Flags().GetString("id")
	if err != nil {
		return err
	}
	ruleNames, err := cmd.Flags().GetStringSlice("rule")
	if err != nil {
		return err
	}
	dryRun, err := cmd.Flags().GetBool("dry-run")
	if err != nil {
		return err
	}
	justification, err := cmd.Flags().GetString("justification")
	if err != nil {
		return err
	}

	if targetID != "" && (applyAll || applyOnceFlag) {
		return fmt.Errorf("--id cannot be combined with --all or --once")
	}
	if applyAll && applyOnceFlag {
		return fmt.Errorf("--all and --once are mutually exclusive")
	}

	mode := fix.ApplyModeOnce
	if targetID != "" {
		mode = fix.ApplyModeID
	} else if applyAll {
		mode = fix.ApplyModeAll
	}
	opts := fix.ApplyOptions{
		Mode:     mode,
		TargetID: targetID,
		DryRun:   dryRun,
	}
	for _, name := range ruleNames {
		code, err := diag.ParseCode(name)
		if err != nil {
			return fmt.Errorf("--rule: %w", err)
		}
		opts.Codes = append(opts.Codes, code)
	}

	settings, err := loadSettings(cmd, targetPath)
	if err != nil {
		return err
	}
	result, err := driver.Check(cmd.Context(), targetPath, settings.policy, driver.CheckOptions{
		Jobs:    settings.jobs,
		Fixes:   true,
		Propose: propose.Options{Justification: justification},
	})
	if err != nil {
		return fmt.Errorf("fix: %w", err)
	}
	if result.Partial {
		return fmt.Errorf("fix: analysis was cancelled, no fixes applied")
	}

	res, applyErr := fix.Apply(result.Loaded.Graph.Files, result.Diagnostics, opts)
	return handleApplyResult(cmd.OutOrStdout(), res, applyErr, dryRun)
}

func handleApplyResult(out io.Writer, res *fix.ApplyResult, applyErr error, dryRun bool) error {
	if res == nil {
		return applyErr
	}

	verb := "Applied"
	if dryRun {
		verb = "Would apply"
	}
	if len(res.Applied) > 0 {
		fmt.Fprintf(out, "%s %d fix(es):\n", verb, len(res.Applied))
		for _, item := range res.Applied {
			location := item.PrimaryPath
			if location == "" {
				location = "(unknown location)"
			}
			fmt.Fprintf(out, "  %s %s [%s] %s: %s (%d edits, %s)\n",
				item.Code.ID(), item.Title, item.ID, location, item.Subject,
				item.EditCount, item.Applicability.String())
		}
	}

	if len(res.FileChanges) > 0 {
		if dryRun {
			for _, change := range res.FileChanges {
				fmt.Fprintf(out, "== %s (%d edits) ==\n", change.Path, change.EditCount)
				content := string(change.Content)
				fmt.Fprint(out, content)
				if !strings.HasSuffix(content, "\n") {
					fmt.Fprintln(out)
				}
			}
		} else {
			fmt.Fprintln(out, "Updated files:")
			for _, change := range res.FileChanges {
				fmt.Fprintf(out, "  %s (%d edits)\n", change.Path, change.EditCount)
			}
		}
	}

	if len(res.Skipped) > 0 {
		fmt.Fprintln(out, "Skipped fixes:")
		for _, skip := range res.Skipped {
			id := skip.ID
			if id == "" {
				id = "(unnamed)"
			}
			if skip.Title != "" {
				fmt.Fprintf(out, "  %s [%s]: %s\n", skip.Title, id, skip.Reason)
			} else {
				fmt.Fprintf(out, "  [%s]: %s\n", id, skip.Reason)
			}
		}
	}

	if applyErr != nil {
		if errors.Is(applyErr, fix.ErrNoFixes) && len(res.Applied) == 0 {
			fmt.Fprintln(out, "No applicable fixes found.")
			return nil
		}
		return applyErr
	}
	if len(res.Applied) == 0 {
		fmt.Fprintln(out, "No fixes applied.")
	}
	return nil
}
