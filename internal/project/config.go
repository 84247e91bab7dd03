package project

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"retaincheck/internal/policy"
)

// ErrNoConfig is returned by Discover when no retaincheck.toml exists above the start path.
var ErrNoConfig = errors.New("no " + ConfigFileName + " found")

// CheckSettings holds the [check] table after defaults are applied.
type CheckSettings struct {
	Jobs           int
	MaxDiagnostics int
	Cache          bool
	// Inputs are graph documents, resolved against the project root.
	Inputs []string
}

// Config is a loaded retaincheck.toml.
type Config struct {
	Path   string
	Root   string
	Check  CheckSettings
	Policy *policy.Policy
}

type checkFile struct {
	Jobs           int      `toml:"jobs"`
	MaxDiagnostics int      `toml:"max-diagnostics"`
	Cache          bool     `toml:"cache"`
	Inputs         []string `toml:"inputs,omitempty"`
}

type configFile struct {
	Check  checkFile                    `toml:"check"`
	Policy policy.TableConfig           `toml:"policy"`
	Rules  map[string]policy.RuleConfig `toml:"rules,omitempty"`
}

// DefaultCheck returns the settings used without a [check] table.
func DefaultCheck() CheckSettings {
	return CheckSettings{Cache: true}
}

// Discover finds and loads the nearest retaincheck.toml above start.
func Discover(start string) (*Config, error) {
	path, ok, err := FindConfig(start)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoConfig
	}
	return LoadConfig(path)
}

// LoadConfig reads the config at path.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := DecodeConfig(f, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// DecodeConfig parses a config whose relative inputs are anchored at root.
func DecodeConfig(r io.Reader, root string) (*Config, error) {
	var raw configFile
	meta, err := toml.NewDecoder(r).Decode(&raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		slices.Sort(keys)
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}

	check := DefaultCheck()
	if meta.IsDefined("check", "jobs") {
		if raw.Check.Jobs < 0 {
			return nil, fmt.Errorf("[check].jobs must be >= 0, got %d", raw.Check.Jobs)
		}
		check.Jobs = raw.Check.Jobs
	}
	if meta.IsDefined("check", "max-diagnostics") {
		if raw.Check.MaxDiagnostics < 0 {
			return nil, fmt.Errorf("[check].max-diagnostics must be >= 0, got %d", raw.Check.MaxDiagnostics)
		}
		check.MaxDiagnostics = raw.Check.MaxDiagnostics
	}
	if meta.IsDefined("check", "cache") {
		check.Cache = raw.Check.Cache
	}
	for _, in := range raw.Check.Inputs {
		in = strings.TrimSpace(in)
		if in == "" {
			return nil, fmt.Errorf("[check].inputs contains an empty path")
		}
		if !filepath.IsAbs(in) {
			in = filepath.Join(root, filepath.FromSlash(in))
		}
		check.Inputs = append(check.Inputs, in)
	}

	pol, err := policy.FromConfig(policy.FileConfig{Policy: raw.Policy, Rules: raw.Rules}, meta)
	if err != nil {
		return nil, err
	}
	return &Config{Root: root, Check: check, Policy: pol}, nil
}

// WriteDefault writes a config holding the default policy and [check] table.
func WriteDefault(w io.Writer, inputs []string) error {
	pc := policy.Default().Config()
	check := DefaultCheck()
	raw := configFile{
		Check: checkFile{
			Jobs:           check.Jobs,
			MaxDiagnostics: check.MaxDiagnostics,
			Cache:          check.Cache,
			Inputs:         inputs,
		},
		Policy: pc.Policy,
		Rules:  pc.Rules,
	}
	if err := toml.NewEncoder(w).Encode(raw); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
