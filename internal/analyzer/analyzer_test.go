package analyzer

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/kluth/npmsurvey/internal/jslex"
	"github.com/kluth/npmsurvey/internal/npm"
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

func testWalker(nodeModules string) *npm.Walker {
	return npm.NewWalker(nodeModules, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func countRules(findings []Finding) map[string]int {
	counts := make(map[string]int)
	for _, f := range findings {
		counts[f.Rule]++
	}
	return counts
}

func TestIsUnparsed(t *testing.T) {
	for _, r := range []string{RuleParseError, RuleClosureParseFail, RuleArgListTooLong} {
		if !IsUnparsed(r) {
			t.Errorf("IsUnparsed(%q) = false", r)
		}
	}
	for _, r := range []string{RulePassed, RuleReadError, "eval"} {
		if IsUnparsed(r) {
			t.Errorf("IsUnparsed(%q) = true", r)
		}
	}
}

func TestGetLineCol(t *testing.T) {
	content := "ab\ncd\nef"
	tests := []struct {
		offset int
		line   int
		col    int
	}{
		{0, 1, 1},
		{1, 1, 2},
		{3, 2, 1},
		{7, 3, 2},
		{-1, 0, 0},
		{100, 0, 0},
	}
	for _, tt := range tests {
		line, col := GetLineCol(content, tt.offset)
		if line != tt.line || col != tt.col {
			t.Errorf("GetLineCol(%d) = (%d, %d), want (%d, %d)", tt.offset, line, col, tt.line, tt.col)
		}
	}
}

func TestRulesAreNamed(t *testing.T) {
	for detector, rules := range Rules() {
		if len(rules) == 0 {
			t.Errorf("%s has no rules", detector)
		}
		for _, r := range rules {
			if r.Name == "" {
				t.Errorf("%s has an unnamed rule", detector)
			}
		}
	}
}

func TestBadPatternRules(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want map[string]int
	}{
		{"eval call", "eval(x)", map[string]int{"eval": 1}},
		{"identifier containing eval", "myeval(x); evaluate(y)", map[string]int{}},
		{"member named eval", "obj.eval(x)", map[string]int{}},
		{"eval in string", "log('eval(x)')", map[string]int{}},
		{"eval in comment", "// eval(x)", map[string]int{}},
		{"function constructor", "var f = new Function('a', 'return a')", map[string]int{"Function constructor": 1}},
		{"function constructor no space", "new\nFunction(x)", map[string]int{"Function constructor": 1}},
		{"innerHTML", "el.innerHTML = html; el . outerHTML= x", map[string]int{"innerHTML assignment": 2}},
		{"innerHTML read", "var h = el.innerHTML;", map[string]int{}},
		{"src and href", "img.src = u; a.href=v", map[string]int{"URL property assignment": 2}},
		{"equality comparison also matches", "if (a.src == b) {}", map[string]int{"URL property assignment": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			canon, err := jslex.Preprocess(tt.src)
			if err != nil {
				t.Fatal(err)
			}
			got := countRules(matchRules(badPatternRules, npm.Source{Module: "m", Path: "x.js"}, canon))
			for rule, n := range tt.want {
				if got[rule] != n {
					t.Errorf("rule %q matched %d times, want %d", rule, got[rule], n)
				}
			}
			for rule, n := range got {
				if _, ok := tt.want[rule]; !ok {
					t.Errorf("unexpected %d matches of %q", n, rule)
				}
			}
		})
	}
}

func TestBadPatternsDetector(t *testing.T) {
	nm := t.TempDir()
	writeTree(t, nm, map[string]string{
		"foo/package.json": `{"main":"index.js","dependencies":{"bar":"1"}}`,
		"foo/index.js":     "require('./a');\nrequire('bar');\nvar x = 1;\neval(x);\n",
		"foo/a.js":         "document.body.innerHTML = '';",
		"bar/package.json": `{"main":"index.js"}`,
		"bar/index.js":     "var s = 'never closed",
	})

	d := NewBadPatternsDetector(testWalker(nm))
	if d.Name() != "bad-patterns" {
		t.Errorf("Name() = %q", d.Name())
	}
	findings, err := d.Detect(context.Background(), "foo")
	if err != nil {
		t.Fatal(err)
	}
	got := countRules(findings)
	if got["eval"] != 1 || got["innerHTML assignment"] != 1 || got[RuleParseError] != 1 {
		t.Errorf("unexpected findings: %v", got)
	}
	for _, f := range findings {
		if f.Rule == "eval" && (f.Line != 4 || f.Module != "foo") {
			t.Errorf("eval finding at %s:%d, want foo line 4", f.Module, f.Line)
		}
		if f.Rule == RuleParseError && f.Module != "bar" {
			t.Errorf("parse error attributed to %q, want bar", f.Module)
		}
	}
}

// crlfContinuation is a CRLF file with a string continued across lines.
const crlfContinuation = "var s = 'a\\\r\nb';\r\neval(s);\r\nrequire(name);\r\n"

func TestBadPatternsDetectorCRLF(t *testing.T) {
	nm := t.TempDir()
	writeTree(t, nm, map[string]string{
		"foo/package.json": `{"main":"index.js"}`,
		"foo/index.js":     crlfContinuation,
	})
	findings, err := NewBadPatternsDetector(testWalker(nm)).Detect(context.Background(), "foo")
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) != 1 || findings[0].Rule != "eval" || findings[0].Line != 3 {
		t.Errorf("findings = %+v, want one eval on line 3", findings)
	}
}

func TestBadPatternsDetectorCancelled(t *testing.T) {
	nm := t.TempDir()
	writeTree(t, nm, map[string]string{
		"foo/package.json": `{"main":"index.js"}`,
		"foo/index.js":     "eval(x)",
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewBadPatternsDetector(testWalker(nm)).Detect(ctx, "foo"); err == nil {
		t.Error("expected context error")
	}
}
