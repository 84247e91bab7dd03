package project

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"retaincheck/internal/diag"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFindConfigWalksUp(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ConfigFileName), "")
	doc := filepath.Join(root, "build", "graphs", "app.json")
	writeFile(t, doc, "{}")

	path, ok, err := FindConfig(doc)
	if err != nil || !ok {
		t.Fatalf("FindConfig: ok=%v err=%v", ok, err)
	}
	if path != filepath.Join(root, ConfigFileName) {
		t.Errorf("path = %q", path)
	}
	dir, ok, err := FindProjectRoot(filepath.Dir(doc))
	if err != nil || !ok || dir != root {
		t.Errorf("FindProjectRoot = %q, %v, %v", dir, ok, err)
	}
}

func TestDiscoverWithoutConfig(t *testing.T) {
	dir := t.TempDir()
	if _, err := Discover(dir); !errors.Is(err, ErrNoConfig) {
		// выше TempDir может лежать чужой retaincheck.toml, тогда тест не информативен
		if _, ok, _ := FindConfig(dir); !ok {
			t.Fatalf("expected ErrNoConfig, got %v", err)
		}
	}
}

func TestDecodeConfig(t *testing.T) {
	src := `
[check]
jobs = 4
max-diagnostics = 50
cache = false
inputs = ["graphs/app.json", "/abs/lib.yaml"]

[policy]
weak-wrappers = ["System.WeakReference", "App.Weak"]

[rules.MA0002]
severity = "error"

[rules.SUBSCRIPTION]
enabled = false
`
	cfg, err := DecodeConfig(strings.NewReader(src), "/proj")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Check.Jobs != 4 || cfg.Check.MaxDiagnostics != 50 || cfg.Check.Cache {
		t.Errorf("check = %+v", cfg.Check)
	}
	wantInputs := []string{filepath.Join("/proj", "graphs", "app.json"), "/abs/lib.yaml"}
	if len(cfg.Check.Inputs) != 2 || cfg.Check.Inputs[0] != wantInputs[0] || cfg.Check.Inputs[1] != wantInputs[1] {
		t.Errorf("inputs = %v", cfg.Check.Inputs)
	}
	if len(cfg.Policy.WeakWrappers) != 2 {
		t.Errorf("weak wrappers = %v", cfg.Policy.WeakWrappers)
	}
	if s := cfg.Policy.Rule(diag.RuleStrongMember); s.Severity != diag.SevError || !s.Enabled {
		t.Errorf("MA0002 = %+v", s)
	}
	if cfg.Policy.Rule(diag.RuleSubscription).Enabled {
		t.Error("MA0003 must be disabled")
	}
}

func TestDecodeConfigDefaults(t *testing.T) {
	cfg, err := DecodeConfig(strings.NewReader(""), "/proj")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Check.Jobs != 0 || cfg.Check.MaxDiagnostics != 0 || !cfg.Check.Cache || cfg.Check.Inputs != nil {
		t.Errorf("defaults = %+v", cfg.Check)
	}
	if !cfg.Policy.RequireBridgeHandler {
		t.Error("default policy expected")
	}
}

func TestDecodeConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"syntax", "[check\n", "failed to parse TOML"},
		{"negative jobs", "[check]\njobs = -1\n", "[check].jobs"},
		{"negative max", "[check]\nmax-diagnostics = -3\n", "[check].max-diagnostics"},
		{"empty input", "[check]\ninputs = [\" \"]\n", "empty path"},
		{"unknown key", "[check]\nworkers = 2\n", "unknown keys: check.workers"},
		{"unknown rule", "[rules.MA0999]\nenabled = true\n", "unknown rule"},
		{"bad severity", "[rules.EVENT]\nseverity = \"fatal\"\n", "severity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeConfig(strings.NewReader(tt.src), "/proj")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDefault(&buf, []string{"graph.json"}); err != nil {
		t.Fatal(err)
	}
	root := t.TempDir()
	path := filepath.Join(root, ConfigFileName)
	writeFile(t, path, buf.String())

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v\n%s", err, buf.String())
	}
	if cfg.Path != path || cfg.Root != root {
		t.Errorf("path = %q, root = %q", cfg.Path, cfg.Root)
	}
	if !cfg.Check.Cache || len(cfg.Check.Inputs) != 1 || cfg.Check.Inputs[0] != filepath.Join(root, "graph.json") {
		t.Errorf("check = %+v", cfg.Check)
	}
	for _, code := range diag.AllRules {
		if s := cfg.Policy.Rule(code); !s.Enabled || s.Severity != diag.SevWarning {
			t.Errorf("%s = %+v", code.ID(), s)
		}
	}
}
