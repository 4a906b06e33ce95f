package reporter

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/kluth/npmsurvey/internal/analyzer"
)

func sampleSections() []Section {
	return []Section{
		{
			ID:      "dynamic_load",
			Title:   "Dynamic loads",
			Intro:   []string{"Dynamic loading can complicate code bundling."},
			Ratio:   &Ratio{Uses: 1, Total: 4, Suffix: "call `require(...)` without a literal string argument."},
			Matches: []string{"foo"},
			Findings: []analyzer.Finding{
				{Rule: "dynamic load", Module: "foo", File: "node_modules/foo/index.js"},
			},
		},
		{
			ID:    "grep-problems",
			Title: "Grepping for Problems",
			Table: &Table{
				ModuleCount: 4,
				Rows: []Row{
					{Violation: "eval", Modules: 2, Total: 5, Quartiles: [3]int{0, 1, 3}},
				},
			},
			Findings: []analyzer.Finding{
				{Rule: "eval", Module: "foo", File: "node_modules/foo/index.js", Line: 3, Column: 1},
				{Rule: analyzer.RuleParseError, Module: "bar", File: "node_modules/bar/index.js"},
			},
		},
	}
}

func TestRatioPercent(t *testing.T) {
	tests := []struct {
		ratio Ratio
		want  float64
	}{
		{Ratio{Uses: 1, Total: 4}, 25},
		{Ratio{Uses: 0, Total: 10}, 0},
		{Ratio{Uses: 3, Total: 3}, 100},
		{Ratio{Uses: 0, Total: 0}, 0},
	}
	for _, tt := range tests {
		if got := tt.ratio.Percent(); got != tt.want {
			t.Errorf("%+v.Percent() = %v, want %v", tt.ratio, got, tt.want)
		}
	}
}

func TestRatioString(t *testing.T) {
	r := Ratio{Uses: 1, Total: 3, Suffix: "use installation scripts"}
	want := "1 of 3 = 33.33% use installation scripts"
	if got := r.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestRenderMarkdown(t *testing.T) {
	var buf bytes.Buffer
	if err := New(&buf, FormatMarkdown).Render(sampleSections()...); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"## Dynamic loads {#dynamic_load}\n\nDynamic loading can complicate code bundling.\n\n",
		"1 of 4 = 25.00% call `require(...)` without a literal string argument.",
		"## Grepping for Problems {#grep-problems}",
		"| Violation | Count of Modules | Total Count | Quartiles |",
		"| `eval` | 2 | 5 | 0 / 1 / 3 |",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "* `foo`") {
		t.Error("matches listed without verbose")
	}
}

func TestRenderMarkdownVerbose(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWithOptions(&buf, FormatMarkdown, true).Render(sampleSections()...); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "* `foo`\n") {
		t.Errorf("verbose output missing module list:\n%s", buf.String())
	}
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := New(&buf, FormatJSON).Render(sampleSections()...); err != nil {
		t.Fatal(err)
	}
	var got []Section
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d sections, want 2", len(got))
	}
	if got[0].Ratio == nil || got[0].Ratio.Uses != 1 || got[0].Ratio.Total != 4 {
		t.Errorf("ratio = %+v", got[0].Ratio)
	}
	if got[1].Table == nil || got[1].Table.Rows[0].Quartiles != [3]int{0, 1, 3} {
		t.Errorf("table = %+v", got[1].Table)
	}
}

func TestRenderJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := New(&buf, FormatJSON).Render(); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty render = %q, want []", buf.String())
	}
}

func TestRenderTerminal(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWithOptions(&buf, FormatTerminal, true).Render(sampleSections()...); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Dynamic loads", "Grepping for Problems", "eval", "0 / 1 / 3", "foo"} {
		if !strings.Contains(out, want) {
			t.Errorf("terminal output missing %q", want)
		}
	}
}

func TestRenderSARIF(t *testing.T) {
	var buf bytes.Buffer
	if err := New(&buf, FormatSARIF).Render(sampleSections()...); err != nil {
		t.Fatal(err)
	}
	var log sarifLog
	if err := json.Unmarshal(buf.Bytes(), &log); err != nil {
		t.Fatalf("invalid SARIF: %v", err)
	}
	if log.Version != "2.1.0" || len(log.Runs) != 2 {
		t.Fatalf("version %q with %d runs", log.Version, len(log.Runs))
	}
	grep := log.Runs[1]
	if len(grep.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(grep.Results))
	}
	eval := grep.Results[0]
	if eval.RuleID != "eval" || eval.Level != "warning" {
		t.Errorf("eval result = %+v", eval)
	}
	if region := eval.Locations[0].PhysicalLocation.Region; region == nil || region.StartLine != 3 {
		t.Errorf("eval region = %+v", region)
	}
	if grep.Results[1].Level != "note" {
		t.Errorf("parse error level = %q, want note", grep.Results[1].Level)
	}
}

func TestRenderSARIFSkipsPassed(t *testing.T) {
	var buf bytes.Buffer
	s := Section{ID: "jsconf", Findings: []analyzer.Finding{{Rule: analyzer.RulePassed, Module: "foo"}}}
	if err := New(&buf, FormatSARIF).Render(s); err != nil {
		t.Fatal(err)
	}
	var log sarifLog
	if err := json.Unmarshal(buf.Bytes(), &log); err != nil {
		t.Fatal(err)
	}
	if n := len(log.Runs[0].Results); n != 0 {
		t.Errorf("got %d results, want 0", n)
	}
}

func TestRenderUnknownFormat(t *testing.T) {
	if err := New(&bytes.Buffer{}, "pdf").Render(); err == nil {
		t.Error("expected error for unknown format")
	}
}
