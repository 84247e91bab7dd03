package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"retaincheck/internal/policy"
	"retaincheck/internal/project"
)

const configFileHint = project.ConfigFileName

// runSettings is the merged view of retaincheck.toml and command-line flags.
type runSettings struct {
	configPath     string
	policy         *policy.Policy
	jobs           int
	maxDiagnostics int
	cache          bool
	inputs         []string
}

func errInvalidFlag(name, value, expected string) error {
	return fmt.Errorf("invalid --%s value %q (expected %s)", name, value, expected)
}

// loadSettings reads --config or the nearest config above start, then applies
// the flags the user set explicitly. A missing config is not an error.
func loadSettings(cmd *cobra.Command, start string) (*runSettings, error) {
	configPath, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}

	var cfg *project.Config
	if configPath != "" {
		cfg, err = project.LoadConfig(configPath)
	} else {
		cfg, err = project.Discover(start)
		if errors.Is(err, project.ErrNoConfig) {
			err = nil
		}
	}
	if err != nil {
		return nil, err
	}

	s := &runSettings{policy: policy.Default()}
	check := project.DefaultCheck()
	if cfg != nil {
		s.configPath = cfg.Path
		s.policy = cfg.Policy
		check = cfg.Check
	}
	s.jobs = check.Jobs
	s.maxDiagnostics = check.MaxDiagnostics
	s.cache = check.Cache
	s.inputs = check.Inputs

	if f := cmd.Root().PersistentFlags().Lookup("max-diagnostics"); f != nil && f.Changed {
		if s.maxDiagnostics, err = cmd.Root().PersistentFlags().GetInt("max-diagnostics"); err != nil {
			return nil, err
		}
	}
	if f := cmd.Flags().Lookup("jobs"); f != nil && f.Changed {
		if s.jobs, err = cmd.Flags().GetInt("jobs"); err != nil {
			return nil, err
		}
	}
	if f := cmd.Flags().Lookup("no-cache"); f != nil && f.Changed {
		noCache, err := cmd.Flags().GetBool("no-cache")
		if err != nil {
			return nil, err
		}
		s.cache = s.cache && !noCache
	}
	if f := cmd.Flags().Lookup("policy"); f != nil && f.Changed {
		path, err := cmd.Flags().GetString("policy")
		if err != nil {
			return nil, err
		}
		if s.policy, err = policy.Load(path); err != nil {
			return nil, err
		}
	}
	if s.jobs < 0 {
		return nil, fmt.Errorf("--jobs must be >= 0, got %d", s.jobs)
	}
	if s.maxDiagnostics < 0 {
		return nil, fmt.Errorf("--max-diagnostics must be >= 0, got %d", s.maxDiagnostics)
	}
	return s, nil
}

// resolveInputs returns args, or the configured inputs when no args were given.
func (s *runSettings) resolveInputs(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if len(s.inputs) == 0 {
		return nil, fmt.Errorf("no graph document given and no [check].inputs in %s", configFileHint)
	}
	return s.inputs, nil
}

// settingsStart picks the directory the config search begins from.
func settingsStart(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}
