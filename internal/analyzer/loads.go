package analyzer

import (
	"context"
	"regexp"
	"strings"

	"github.com/kluth/npmsurvey/internal/jslex"
	"github.com/kluth/npmsurvey/internal/npm"
)

var requireBounds = jslex.Bounds{Left: true, Extra: "_$."}

// dynamicLoadRule matches require(...) whose first argument does not start
// with a quote. Indirect uses such as aliasing require to a variable are
// not counted.
var dynamicLoadRule = Rule{
	Name:    "dynamic load",
	Pattern: regexp.MustCompile(`require\s*\(\s*[^\s)"']`),
	Bounds:  requireBounds,
}

// lazyRequireRule is a require( call inside an open {...} block.
var lazyRequireRule = Rule{
	Name:    "lazy load",
	Pattern: regexp.MustCompile(`require\s*\(`),
	Bounds:  requireBounds,
}

// matchesLazyRequire reports whether some require( call has an unclosed
// '{' before it, i.e. the text before it matches [{][^}]*.
func matchesLazyRequire(content string) bool {
	for _, loc := range lazyRequireRule.FindAll(content) {
		if i := strings.LastIndexAny(content[:loc[0]], "{}"); i >= 0 && content[i] == '{' {
			return true
		}
	}
	return false
}

// LoadDetector reports the sources of a module that match a load pattern.
// Tools that run while bundling, such as babel and eslint, are excluded
// from the walk.
type LoadDetector struct {
	name       string
	rule       string
	walker     *npm.Walker
	earlyTools []string
	match      func(content string) bool
}

// NewDynamicLoadDetector finds require calls without a literal argument.
// Dynamic loading can complicate code bundling.
func NewDynamicLoadDetector(w *npm.Walker, earlyTools ...string) *LoadDetector {
	return &LoadDetector{
		name:       "dyn-load",
		rule:       dynamicLoadRule.Name,
		walker:     w,
		earlyTools: earlyTools,
		match:      dynamicLoadRule.Match,
	}
}

// NewLazyLoadDetector finds require calls inside a block. Lazy loading can
// complicate code bundling if care is not taken.
func NewLazyLoadDetector(w *npm.Walker, earlyTools ...string) *LoadDetector {
	return &LoadDetector{
		name:       "lazy-load",
		rule:       lazyRequireRule.Name,
		walker:     w,
		earlyTools: earlyTools,
		match:      matchesLazyRequire,
	}
}

func (d *LoadDetector) Name() string { return d.name }

// Detect returns one finding per matching source file.
func (d *LoadDetector) Detect(ctx context.Context, module string) ([]Finding, error) {
	w := d.walker.WithFilter(npm.IgnoreToolsThatCanRunEarly(module, d.earlyTools...))
	srcs, err := w.SourcesMatching(ctx, module, d.match)
	if err != nil {
		return nil, err
	}
	var findings []Finding
	for _, src := range srcs {
		findings = append(findings, Finding{Rule: d.rule, Module: src.Module, File: src.Path})
	}
	return findings, nil
}
