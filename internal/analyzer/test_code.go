package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"regexp"

	"github.com/kluth/npmsurvey/internal/npm"
)

// testCodeRule matches requires of common assertion and test-runner
// packages. It runs on raw source because string literals carry the
// package names.
var testCodeRule = Rule{
	Name:    "test code",
	Pattern: regexp.MustCompile(`(?m)(?:^|[^.\w])require\s*[(]\s*['"](?:assert|chai|chai/[^'"]*|mocha|should|unexpected)['"]`),
}

// TestCodeDetector looks for bundled test code in a separately installed,
// production-only copy of each package.
type TestCodeDetector struct {
	separateModules string
}

func NewTestCodeDetector(separateModules string) *TestCodeDetector {
	return &TestCodeDetector{separateModules: separateModules}
}

func (d *TestCodeDetector) Name() string { return "test-code" }

// Detect reports the first file under the module's install root that
// contains a test pattern. Unreadable files are skipped.
func (d *TestCodeDetector) Detect(ctx context.Context, module string) ([]Finding, error) {
	root := filepath.Join(d.separateModules, filepath.FromSlash(module))
	for _, f := range npm.JSFilesUnder(root) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		if loc := testCodeRule.Pattern.FindIndex(content); loc != nil {
			line, col := GetLineCol(string(content), loc[0])
			return []Finding{{Rule: testCodeRule.Name, Module: module, File: f, Line: line, Column: col}}, nil
		}
	}
	return nil, nil
}
