// Package analyzer holds the detectors that look for security-relevant
// patterns in installed npm packages.
package analyzer

import (
	"context"
	"regexp"

	"github.com/kluth/npmsurvey/internal/jslex"
)

// Synthetic rule names recorded instead of aborting a run.
const (
	RuleParseError       = "Parse error"
	RuleReadError        = "Read error"
	RuleArgListTooLong   = "Argument list too long"
	RuleNoSources        = "No sources"
	RulePassed           = "Passed"
	RuleClosureParseFail = "Parse error."
)

// IsUnparsed reports whether rule marks a module whose code could not be
// examined at all. Such modules are left out of per-module statistics.
func IsUnparsed(rule string) bool {
	switch rule {
	case RuleParseError, RuleClosureParseFail, RuleArgListTooLong:
		return true
	}
	return false
}

// Finding is a single rule match in a module.
type Finding struct {
	Rule   string `json:"rule"`
	Module string `json:"module"`
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// Detector is implemented by every survey that inspects one module at a
// time.
type Detector interface {
	Name() string
	Detect(ctx context.Context, module string) ([]Finding, error)
}

// Rule is a named pattern. Bounds keep identifiers such as `myeval` from
// matching `eval`.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Bounds  jslex.Bounds
}

// FindAll returns the offsets of every match of r in content.
func (r Rule) FindAll(content string) [][]int {
	return jslex.FindAllBounded(r.Pattern, content, r.Bounds)
}

// Match reports whether r matches anywhere in content.
func (r Rule) Match(content string) bool {
	return jslex.MatchBounded(r.Pattern, content, r.Bounds)
}

// Rules returns every content rule keyed by detector name, for listing.
func Rules() map[string][]Rule {
	return map[string][]Rule{
		"bad-patterns": badPatternRules,
		"dyn-load":     {dynamicLoadRule},
		"lazy-load":    {lazyRequireRule},
		"test-code":    {testCodeRule},
	}
}

// GetLineCol returns the 1-based line and column number for a given byte offset.
func GetLineCol(content string, offset int) (int, int) {
	if offset < 0 || offset > len(content) {
		return 0, 0
	}
	line := 1
	col := 1
	for i := 0; i < offset; i++ {
		if content[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}
