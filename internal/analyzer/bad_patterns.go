package analyzer

import (
	"context"
	"os"
	"regexp"

	"github.com/kluth/npmsurvey/internal/jslex"
	"github.com/kluth/npmsurvey/internal/npm"
)

// identBounds treats `$`, `_`, `.` and word characters as part of an
// identifier on either side of a match.
var identBounds = jslex.Bounds{Left: true, Right: true, Extra: ".$"}

// badPatternRules are problems that static checkers find with type
// reasoning and that grep can find reliably on its own. They are matched
// against preprocessed source, so string contents are upper-case and do
// not match.
var badPatternRules = []Rule{
	{Name: "eval", Pattern: regexp.MustCompile(`eval`), Bounds: identBounds},
	{Name: "Function constructor", Pattern: regexp.MustCompile(`new\s*Function`), Bounds: identBounds},
	{Name: "innerHTML assignment", Pattern: regexp.MustCompile(`[.]\s*(?:inner|outer)HTML\s*=`)},
	{Name: "URL property assignment", Pattern: regexp.MustCompile(`[.]\s*(?:src|href)\s*=`)},
}

// BadPatternsDetector greps a module's sources for calls to eval and
// assignments that often lead to XSS when not consistently guarded.
type BadPatternsDetector struct {
	walker *npm.Walker
}

func NewBadPatternsDetector(w *npm.Walker) *BadPatternsDetector {
	return &BadPatternsDetector{walker: w}
}

func (d *BadPatternsDetector) Name() string { return "bad-patterns" }

// Detect returns one finding per match. A source that cannot be read or
// lexed yields a single synthetic finding instead.
func (d *BadPatternsDetector) Detect(ctx context.Context, module string) ([]Finding, error) {
	srcs, err := d.walker.Sources(ctx, module)
	if err != nil {
		return nil, err
	}
	var findings []Finding
	for _, src := range srcs {
		if err := ctx.Err(); err != nil {
			return findings, err
		}
		content, err := os.ReadFile(src.Path)
		if err != nil {
			findings = append(findings, Finding{Rule: RuleReadError, Module: src.Module, File: src.Path})
			continue
		}
		canon, err := jslex.Preprocess(string(content))
		if err != nil {
			d.walker.Log().Debug("cannot lex source", "path", src.Path, "error", err)
			findings = append(findings, Finding{Rule: RuleParseError, Module: src.Module, File: src.Path})
			continue
		}
		findings = append(findings, matchRules(badPatternRules, src, canon)...)
	}
	return findings, nil
}

func matchRules(rules []Rule, src npm.Source, content string) []Finding {
	var findings []Finding
	for _, r := range rules {
		for _, loc := range r.FindAll(content) {
			line, col := GetLineCol(content, loc[0])
			findings = append(findings, Finding{
				Rule:   r.Name,
				Module: src.Module,
				File:   src.Path,
				Line:   line,
				Column: col,
			})
		}
	}
	return findings
}
