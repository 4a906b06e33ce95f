package analyzer

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kluth/npmsurvey/internal/npm"
)

// DefaultArgMax is `getconf ARG_MAX` on macOS, the lowest common limit.
const DefaultArgMax = 240000

// ClosureConfig locates the Closure Compiler and its conformance setup.
type ClosureConfig struct {
	Java              string
	Jar               string
	ConformanceConfig string
	Externs           []string
	ArgMax            int
}

// DefaultClosureConfig expects tools/ and jsconf/ directories next to the
// node_modules directory.
func DefaultClosureConfig(nodeModules string) ClosureConfig {
	base := filepath.Dir(filepath.Clean(nodeModules))
	return ClosureConfig{
		Java:              "java",
		Jar:               filepath.Join(base, "tools", "closure-compiler-latest", "closure-compiler.jar"),
		ConformanceConfig: filepath.Join(base, "jsconf", "conformance_proto.textproto"),
		Externs:           CollectExterns(filepath.Join(base, "jsconf", "externs")),
		ArgMax:            DefaultArgMax,
	}
}

// CollectExterns lists the extern files under dir, skipping files that sit
// directly in a tests directory.
func CollectExterns(dir string) []string {
	var externs []string
	for _, f := range npm.JSFilesUnder(dir) {
		if filepath.Base(filepath.Dir(f)) == "tests" {
			continue
		}
		externs = append(externs, f)
	}
	return externs
}

var (
	closureError = regexp.MustCompile(`(?m)^\S+: ERROR - ([^\r\n]*)`)
	// closureSimplifiers group messages by dropping everything outside the
	// capturing groups.
	closureSimplifiers = []*regexp.Regexp{
		regexp.MustCompile(`^(required ").*?(" namespace not provided yet)`),
		regexp.MustCompile(`^(type syntax is only supported in ES6 typed mode: ).*`),
		regexp.MustCompile(`^(Illegal redeclared variable: ).*`),
		regexp.MustCompile(`^(Parse error[.]).*`),
	}
	sentenceBreak = regexp.MustCompile(`^[.]\s`)
)

// ParseClosureOutput extracts the simplified error messages from compiler
// output.
func ParseClosureOutput(output string) []string {
	var violations []string
	for _, m := range closureError.FindAllStringSubmatch(output, -1) {
		v := m[1]
		if sentenceBreak.MatchString(v) {
			continue
		}
		for _, s := range closureSimplifiers {
			if sm := s.FindStringSubmatch(v); sm != nil {
				v = strings.Join(sm[1:], "...")
			}
		}
		violations = append(violations, v)
	}
	return violations
}

// commandRunner runs a command and returns its combined output and exit
// code.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, int, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, int, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out, exitErr.ExitCode(), nil
	}
	if err != nil {
		return out, -1, err
	}
	return out, 0, nil
}

// JSConfDetector runs JS Conformance checks, which identify uses of risky
// APIs, over a module's sources.
type JSConfDetector struct {
	walker     *npm.Walker
	cfg        ClosureConfig
	earlyTools []string
	run        commandRunner
}

func NewJSConfDetector(w *npm.Walker, cfg ClosureConfig, earlyTools ...string) *JSConfDetector {
	if cfg.Java == "" {
		cfg.Java = "java"
	}
	if cfg.ArgMax <= 0 {
		cfg.ArgMax = DefaultArgMax
	}
	return &JSConfDetector{walker: w, cfg: cfg, earlyTools: earlyTools, run: execRunner}
}

func (d *JSConfDetector) Name() string { return "jsconf" }

// Detect returns one finding per compiler error, "Passed" when the compiler
// exits cleanly, or a synthetic finding when the compiler cannot be run on
// the module.
func (d *JSConfDetector) Detect(ctx context.Context, module string) ([]Finding, error) {
	w := d.walker.WithFilter(npm.IgnoreToolsThatCanRunEarly(module, d.earlyTools...))
	srcs, err := w.Sources(ctx, module)
	if err != nil {
		return nil, err
	}
	if len(srcs) == 0 {
		return []Finding{{Rule: RuleNoSources, Module: module}}, nil
	}

	args, err := d.args(srcs)
	if err != nil {
		return nil, err
	}
	if len(strings.Join(append([]string{d.cfg.Java}, args...), " ")) >= d.cfg.ArgMax {
		return []Finding{{Rule: RuleArgListTooLong, Module: module}}, nil
	}

	out, code, err := d.run(ctx, d.cfg.Java, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run closure compiler: %w", err)
	}

	var findings []Finding
	if code == 0 {
		findings = append(findings, Finding{Rule: RulePassed, Module: module})
	}
	for _, v := range ParseClosureOutput(string(out)) {
		findings = append(findings, Finding{Rule: v, Module: module})
	}
	return findings, nil
}

func (d *JSConfDetector) args(srcs []npm.Source) ([]string, error) {
	root, err := filepath.Abs(d.walker.NodeModules)
	if err != nil {
		return nil, err
	}
	if r, err := filepath.EvalSymlinks(root); err == nil {
		root = r
	}
	args := []string{
		"-jar", d.cfg.Jar,
		"--process_common_js_modules",
		"--checks-only",
		"--third_party=true",
		"--module_resolution=NODE",
		"--js_module_root=" + root,
		"--jscomp_error=conformanceViolations",
		"--conformance_configs", d.cfg.ConformanceConfig,
	}
	for _, src := range srcs {
		p, err := filepath.Abs(src.Path)
		if err != nil {
			return nil, err
		}
		if r, err := filepath.EvalSymlinks(p); err == nil {
			p = r
		}
		args = append(args, "--js", p)
	}
	for _, e := range d.cfg.Externs {
		args = append(args, "--externs", e)
	}
	return args, nil
}
