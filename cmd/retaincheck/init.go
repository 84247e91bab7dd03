package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"retaincheck/internal/project"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Create a retaincheck.toml with the default policy",
	Long: `Create retaincheck.toml in dir (default: current directory) holding the
default policy, rule settings and [check] table. Graph documents passed with
--input are recorded in [check].inputs so that a bare "retaincheck check" finds them.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringSlice("input", nil, "graph document to record in [check].inputs (repeatable)")
	initCmd.Flags().Bool("force", false, "overwrite an existing "+project.ConfigFileName)
}

// runInit writes retaincheck.toml into the target directory, creating the
// directory when it does not exist. It refuses to overwrite without --force.
func runInit(cmd *cobra.Command, args []string) error {
	target := "."
	if len(args) > 0 {
		target = args[0]
	}
	target, err := filepath.Abs(target)
	if err != nil {
		return err
	}
	inputs, err := cmd.Flags().GetStringSlice("input")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if st, err := os.Stat(target); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err = os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %q: %w", target, err)
		}
	} else if !st.IsDir() {
		return fmt.Errorf("%q is not a directory", target)
	}

	configPath := filepath.Join(target, project.ConfigFileName)
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("project already initialized: %s exists (use --force to overwrite)", configPath)
	}

	// inputs are stored relative to the project root
	rel := make([]string, 0, len(inputs))
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return err
		}
		if r, err := filepath.Rel(target, abs); err == nil {
			in = filepath.ToSlash(r)
		}
		rel = append(rel, in)
	}

	var buf bytes.Buffer
	if err := project.WriteDefault(&buf, rel); err != nil {
		return err
	}
	if err := os.WriteFile(configPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", configPath, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", configPath)
	return nil
}
