package survey

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/kluth/npmsurvey/internal/analyzer"
	"github.com/kluth/npmsurvey/internal/reporter"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// fakeDetector returns canned findings per module, or an error for
// modules without an entry.
type fakeDetector struct {
	name  string
	rules map[string][]string
}

func (f fakeDetector) Name() string { return f.name }

func (f fakeDetector) Detect(_ context.Context, module string) ([]analyzer.Finding, error) {
	rules, ok := f.rules[module]
	if !ok {
		return nil, errors.New("tool crashed")
	}
	var findings []analyzer.Finding
	for _, r := range rules {
		findings = append(findings, analyzer.Finding{Rule: r, Module: module})
	}
	return findings, nil
}

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	base := t.TempDir()
	nm := filepath.Join(base, "node_modules")
	sep := filepath.Join(base, "separate_modules")
	writeTree(t, nm, map[string]string{
		"foo/package.json": `{"name":"foo","main":"index.js"}`,
		"foo/index.js":     "var x = require(name);\neval(x);\n",
		"bar/package.json": `{"name":"bar","main":"index.js","scripts":{"postinstall":"node-gyp rebuild"}}`,
		"bar/index.js":     "function f() { return require('./lib'); }\n",
		"bar/lib.js":       "module.exports = 2;\n",
		"baz/package.json": `{"name":"baz","main":"index.js"}`,
		"baz/index.js":     "module.exports = 1;\n",
	})
	writeTree(t, sep, map[string]string{
		"foo/index.js": "module.exports = 1;\n",
		"baz/test.js":  "var assert = require('assert');\n",
	})

	return NewRunner(Input{
		NodeModules:     nm,
		SeparateModules: sep,
		Packages:        []string{"foo", "bar", "baz"},
	}, Config{
		Concurrency: 2,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Detectors: []analyzer.Detector{fakeDetector{
			name: JSConf,
			rules: map[string][]string{
				"foo": {analyzer.RulePassed, "Violation: eval is not allowed"},
				"bar": {analyzer.RuleClosureParseFail},
			},
		}},
	})
}

func TestRatioSurveys(t *testing.T) {
	r := newTestRunner(t)
	tests := []struct {
		survey  string
		id      string
		uses    int
		total   int
		matches []string
	}{
		{DynamicLoad, "dynamic_load", 1, 3, []string{"foo"}},
		{LazyLoad, "lazy_load", 1, 3, []string{"bar"}},
		{TestCode, "test_code", 1, 3, []string{"baz"}},
		{UsesScripts, "uses_scripts", 1, 3, []string{"bar"}},
	}
	for _, tt := range tests {
		t.Run(tt.survey, func(t *testing.T) {
			sections, err := r.Run(context.Background(), tt.survey)
			if err != nil {
				t.Fatal(err)
			}
			if len(sections) != 1 {
				t.Fatalf("got %d sections, want 1", len(sections))
			}
			s := sections[0]
			if s.ID != tt.id {
				t.Errorf("ID = %q, want %q", s.ID, tt.id)
			}
			if s.Ratio == nil || s.Ratio.Uses != tt.uses || s.Ratio.Total != tt.total {
				t.Fatalf("ratio = %+v, want %d of %d", s.Ratio, tt.uses, tt.total)
			}
			if !reflect.DeepEqual(s.Matches, tt.matches) {
				t.Errorf("matches = %v, want %v", s.Matches, tt.matches)
			}
		})
	}
}

func TestUsesScriptsTable(t *testing.T) {
	s, err := newTestRunner(t).UsesScripts(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.Table == nil {
		t.Fatal("expected a hook breakdown table")
	}
	var violations []string
	for _, row := range s.Table.Rows {
		violations = append(violations, row.Violation)
	}
	want := []string{"Native build in postinstall", "postinstall"}
	if !reflect.DeepEqual(violations, want) {
		t.Errorf("rows = %v, want %v", violations, want)
	}
}

func TestBadPatternsSurvey(t *testing.T) {
	s, err := newTestRunner(t).BadPatterns(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.ID != "grep-problems" || s.Table == nil {
		t.Fatalf("section = %+v", s)
	}
	if s.Table.ModuleCount != 3 {
		t.Errorf("ModuleCount = %d, want 3", s.Table.ModuleCount)
	}
	want := []reporter.Row{{Violation: "eval", Modules: 1, Total: 1, Quartiles: [3]int{0, 0, 1}}}
	if !reflect.DeepEqual(s.Table.Rows, want) {
		t.Errorf("rows = %+v, want %+v", s.Table.Rows, want)
	}
	if len(s.Findings) != 1 || s.Findings[0].Line != 2 {
		t.Errorf("findings = %+v", s.Findings)
	}
}

func TestJSConfSurvey(t *testing.T) {
	s, err := newTestRunner(t).JSConf(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.Table == nil {
		t.Fatal("expected a table")
	}
	if s.Table.Caption != "Out of 1 modules that parsed" {
		t.Errorf("caption = %q", s.Table.Caption)
	}
	if len(s.Table.Rows) != 3 {
		t.Errorf("rows = %+v", s.Table.Rows)
	}
}

func TestAll(t *testing.T) {
	sections, err := newTestRunner(t).All(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, s := range sections {
		ids = append(ids, s.ID)
	}
	want := []string{"grep-problems", "dynamic_load", "jsconf", "lazy_load", "test_code", "uses_scripts"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
}

func TestRunUnknownSurvey(t *testing.T) {
	if _, err := newTestRunner(t).Run(context.Background(), "nope"); err == nil {
		t.Error("expected error for unknown survey")
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, name := range []string{BadPatterns, DynamicLoad, UsesScripts} {
		if _, err := newTestRunner(t).Run(ctx, name); !errors.Is(err, context.Canceled) {
			t.Errorf("%s: err = %v, want context.Canceled", name, err)
		}
	}
}
