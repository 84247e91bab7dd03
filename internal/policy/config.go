package policy

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"retaincheck/internal/diag"
	"retaincheck/internal/graph"
)

// FileConfig is the TOML form of a policy: the [policy] and [rules.*] tables.
type FileConfig struct {
	Policy TableConfig           `toml:"policy"`
	Rules  map[string]RuleConfig `toml:"rules,omitempty"`
}

type TableConfig struct {
	GenerallySafe      []string            `toml:"generally-safe"`
	SafeWhenInside     map[string][]string `toml:"safe-when-inside"`
	WeakWrappers       []string            `toml:"weak-wrappers"`
	BridgeMarkers      []string            `toml:"bridge-markers"`
	SuppressionMarkers []string            `toml:"suppression-markers"`
}

type RuleConfig struct {
	Enabled              *bool  `toml:"enabled,omitempty"`
	Severity             string `toml:"severity,omitempty"`
	RequireBridgeHandler *bool  `toml:"require-bridge-handler,omitempty"`
}

// Load reads a standalone policy file.
func Load(path string) (*Policy, error) {
	var cfg FileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	p, err := FromConfig(cfg, meta)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Decode reads a policy from r.
func Decode(r io.Reader) (*Policy, error) {
	var cfg FileConfig
	meta, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	return FromConfig(cfg, meta)
}

// FromConfig overlays cfg on the defaults. Lists that are present in the file
// replace the defaults, absent ones keep them.
func FromConfig(cfg FileConfig, meta toml.MetaData) (*Policy, error) {
	p := Default()

	table := p.Table
	if meta.IsDefined("policy", "generally-safe") || meta.IsDefined("policy", "safe-when-inside") {
		safe := table.GenerallySafe()
		if meta.IsDefined("policy", "generally-safe") {
			safe = parseNames(cfg.Policy.GenerallySafe)
		}
		inside := table.SafeWhenInsideOf()
		if meta.IsDefined("policy", "safe-when-inside") {
			inside = make(map[graph.QualifiedName][]graph.QualifiedName, len(cfg.Policy.SafeWhenInside))
			for container, members := range cfg.Policy.SafeWhenInside {
				inside[q(container)] = parseNames(members)
			}
		}
		table = NewTable(safe, inside)
	}
	p.Table = table

	if meta.IsDefined("policy", "weak-wrappers") {
		p.WeakWrappers = parseNames(cfg.Policy.WeakWrappers)
	}
	if meta.IsDefined("policy", "bridge-markers") {
		p.BridgeMarkers = parseNames(cfg.Policy.BridgeMarkers)
	}
	if meta.IsDefined("policy", "suppression-markers") {
		p.SuppressionMarkers = parseNames(cfg.Policy.SuppressionMarkers)
	}

	keys := make([]string, 0, len(cfg.Rules))
	for k := range cfg.Rules {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, key := range keys {
		code, err := diag.ParseCode(key)
		if err != nil {
			return nil, fmt.Errorf("[rules.%s]: %w", key, err)
		}
		rc := cfg.Rules[key]
		setting := p.Rule(code)
		if rc.Enabled != nil {
			setting.Enabled = *rc.Enabled
		}
		if strings.TrimSpace(rc.Severity) != "" {
			sev, err := diag.ParseSeverity(rc.Severity)
			if err != nil {
				return nil, fmt.Errorf("[rules.%s].severity: %w", key, err)
			}
			setting.Severity = sev
		}
		if rc.RequireBridgeHandler != nil {
			if code != diag.RuleSubscription {
				return nil, fmt.Errorf("[rules.%s]: require-bridge-handler only applies to %s", key, diag.RuleSubscription.ID())
			}
			p.RequireBridgeHandler = *rc.RequireBridgeHandler
		}
		p.Rules[code] = setting
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Config converts p back into its TOML form.
func (p *Policy) Config() FileConfig {
	cfg := FileConfig{
		Policy: TableConfig{
			GenerallySafe:      formatNames(p.Table.GenerallySafe()),
			SafeWhenInside:     make(map[string][]string),
			WeakWrappers:       formatNames(p.WeakWrappers),
			BridgeMarkers:      formatNames(p.BridgeMarkers),
			SuppressionMarkers: formatNames(p.SuppressionMarkers),
		},
		Rules: make(map[string]RuleConfig, len(diag.AllRules)),
	}
	inside := p.Table.SafeWhenInsideOf()
	for _, container := range p.Table.Containers() {
		cfg.Policy.SafeWhenInside[container.String()] = formatNames(inside[container])
	}
	for _, code := range diag.AllRules {
		s := p.Rule(code)
		enabled := s.Enabled
		rc := RuleConfig{Enabled: &enabled, Severity: diag.SeverityLabel(s.Severity)}
		if code == diag.RuleSubscription {
			require := p.RequireBridgeHandler
			rc.RequireBridgeHandler = &require
		}
		cfg.Rules[code.ID()] = rc
	}
	return cfg
}

// Encode writes p as TOML.
func Encode(w io.Writer, p *Policy) error {
	if err := toml.NewEncoder(w).Encode(p.Config()); err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}
	return nil
}

func parseNames(in []string) []graph.QualifiedName {
	out := make([]graph.QualifiedName, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, q(s))
	}
	return out
}

func formatNames(in []graph.QualifiedName) []string {
	out := make([]string, 0, len(in))
	for _, n := range in {
		out = append(out, n.String())
	}
	return out
}
