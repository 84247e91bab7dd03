package diagfmt

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestSarifLog(t *testing.T) {
	fx := newFixture(t)
	var buf bytes.Buffer
	meta := SarifRunMeta{ToolName: "retaincheck", ToolVersion: "1.2.3", PathMode: PathModeRelative, InvocationArgs: []string{"check", "graph.json"}}
	if err := Sarif(&buf, fx.diags, fx.fs, meta); err != nil {
		t.Fatal(err)
	}

	var log sarifLog
	if err := json.Unmarshal(buf.Bytes(), &log); err != nil {
		t.Fatalf("invalid sarif: %v", err)
	}
	if log.Version != "2.1.0" || len(log.Runs) != 1 {
		t.Fatalf("version = %q, runs = %d", log.Version, len(log.Runs))
	}
	run := log.Runs[0]
	if run.Tool.Driver.Name != "retaincheck" || len(run.Tool.Driver.Rules) != 3 {
		t.Errorf("driver = %+v", run.Tool.Driver)
	}
	if run.Tool.Driver.Rules[1].ID != "MA0002" || run.Tool.Driver.Rules[1].Properties.Category != "Memory" {
		t.Errorf("rule[1] = %+v", run.Tool.Driver.Rules[1])
	}
	if len(run.Invocations) != 1 || run.Invocations[0].Arguments[1] != "graph.json" {
		t.Errorf("invocations = %+v", run.Invocations)
	}
	if len(run.Results) != 2 {
		t.Fatalf("results = %d", len(run.Results))
	}

	first := run.Results[0]
	if first.RuleID != "MA0001" || first.RuleIndex != 0 || first.Level != "warning" {
		t.Errorf("first = %+v", first)
	}
	loc := first.Locations[0].PhysicalLocation
	if loc.ArtifactLocation.URI != "src/Host.cs" || loc.Region.StartLine != 2 || loc.Region.StartColumn != 20 || loc.Region.ByteLength != 7 {
		t.Errorf("location = %+v", loc)
	}
	if len(first.RelatedLocations) != 1 || first.RelatedLocations[0].ID != 1 {
		t.Errorf("related = %+v", first.RelatedLocations)
	}
	if len(first.Fixes) != 1 {
		t.Fatalf("fixes = %+v", first.Fixes)
	}
	rep := first.Fixes[0].ArtifactChanges[0].Replacements[0]
	if rep.InsertedContent == nil || rep.InsertedContent.Text != "private" || rep.DeletedRegion.ByteLength != 6 {
		t.Errorf("replacement = %+v", rep)
	}

	if second := run.Results[1]; second.Level != "error" || second.RuleIndex != 1 || second.Fixes != nil {
		t.Errorf("second = %+v", second)
	}
}

func TestShortOutput(t *testing.T) {
	fx := newFixture(t)
	var buf bytes.Buffer
	if err := Short(&buf, fx.diags, fx.fs, false); err != nil {
		t.Fatal(err)
	}
	want := "warning MA0001 src/Host.cs:2:20 " + fx.diags[0].Message + "\n" +
		"error MA0002 src/Host.cs:3:16 " + fx.diags[1].Message + "\n"
	if buf.String() != want {
		t.Errorf("short =\n%s\nwant\n%s", buf.String(), want)
	}

	buf.Reset()
	if err := Short(&buf, nil, fx.fs, false); err != nil || buf.Len() != 0 {
		t.Errorf("empty input must print nothing, got %q", buf.String())
	}
}
