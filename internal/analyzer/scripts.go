package analyzer

import (
	"context"
	"path/filepath"
	"regexp"

	"github.com/kluth/npmsurvey/internal/npm"
)

// installScripts are the lifecycle scripts npm runs automatically on
// install. See https://docs.npmjs.com/cli/using-npm/scripts.
var installScripts = []string{
	"preinstall",
	"install",
	"postinstall",
}

// scriptPatterns flag operations inside an install script that deserve a
// human look before the script is allowed to run.
var scriptPatterns = []struct {
	pattern     *regexp.Regexp
	description string
}{
	{regexp.MustCompile(`(?i)curl\s|wget\s|http\.get|https\.get|fetch\(`), "Network request"},
	{regexp.MustCompile(`(?i)eval\s*\(|Function\s*\(`), "Dynamic code execution"},
	{regexp.MustCompile(`(?i)child_process|exec\(|execSync|spawn\(`), "Process execution"},
	{regexp.MustCompile(`(?i)node-gyp|prebuild|node-pre-gyp`), "Native build"},
	{regexp.MustCompile(`(?i)process\.env`), "Environment variable access"},
	{regexp.MustCompile(`(?i)Buffer\.from\(.*base64`), "Base64 decoding"},
}

// ScriptsDetector reports installation scripts. Unless steps are taken,
// they run code on a developer's workstation during npm install.
type ScriptsDetector struct {
	nodeModules string
}

func NewScriptsDetector(nodeModules string) *ScriptsDetector {
	return &ScriptsDetector{nodeModules: nodeModules}
}

func (s *ScriptsDetector) Name() string { return "uses-scripts" }

// Detect reads the module's manifest. A manifest that does not parse
// yields a single synthetic finding.
func (s *ScriptsDetector) Detect(_ context.Context, module string) ([]Finding, error) {
	m, err := npm.ReadManifest(filepath.Join(s.nodeModules, filepath.FromSlash(module)))
	if err != nil {
		return []Finding{{Rule: RuleParseError, Module: module}}, nil
	}
	return ScriptFindings(module, m), nil
}

// ScriptFindings returns one finding per install lifecycle script declared
// by m, even an empty one, followed by findings for suspicious operations
// in those scripts.
func ScriptFindings(module string, m *npm.Manifest) []Finding {
	var findings []Finding
	for _, name := range installScripts {
		body, ok := m.Scripts[name]
		if !ok {
			continue
		}
		findings = append(findings, Finding{Rule: name, Module: module, File: "package.json"})
		for _, sp := range scriptPatterns {
			if sp.pattern.MatchString(body) {
				findings = append(findings, Finding{
					Rule:   sp.description + " in " + name,
					Module: module,
					File:   "package.json",
				})
			}
		}
	}
	return findings
}

// UsesInstallScripts reports whether findings contain a lifecycle script.
func UsesInstallScripts(findings []Finding) bool {
	for _, f := range findings {
		for _, name := range installScripts {
			if f.Rule == name {
				return true
			}
		}
	}
	return false
}
