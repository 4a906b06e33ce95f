package survey

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kluth/npmsurvey/internal/analyzer"
	"github.com/kluth/npmsurvey/internal/npm"
	"github.com/kluth/npmsurvey/internal/reporter"
)

// Survey names, in report order.
const (
	BadPatterns = "bad-patterns"
	DynamicLoad = "dyn-load"
	JSConf      = "jsconf"
	LazyLoad    = "lazy-load"
	TestCode    = "test-code"
	UsesScripts = "uses-scripts"
)

// Names lists every survey in report order.
var Names = []string{BadPatterns, DynamicLoad, JSConf, LazyLoad, TestCode, UsesScripts}

// Input is what every survey is run over.
type Input struct {
	// NodeModules holds the surveyed packages installed together.
	NodeModules string
	// SeparateModules holds each surveyed package installed on its own.
	SeparateModules string
	// Packages are the surveyed package names.
	Packages []string
}

// Config holds the survey configuration.
type Config struct {
	Resolver    npm.Resolver
	Closure     *analyzer.ClosureConfig
	EarlyTools  []string
	Concurrency int
	// Timeout bounds the work on one module, in seconds. Zero means no
	// limit.
	Timeout int
	Logger  *slog.Logger
	// Detectors replace the built-in detector with the same name.
	Detectors []analyzer.Detector
}

// Runner handles survey execution.
type Runner struct {
	in        Input
	cfg       Config
	logger    *slog.Logger
	detectors map[string]analyzer.Detector
}

// NewRunner creates a new Runner with the given configuration.
func NewRunner(in Input, cfg Config) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.EarlyTools) == 0 {
		cfg.EarlyTools = npm.DefaultEarlyTools
	}

	w := npm.NewWalker(in.NodeModules, cfg.Logger)
	if cfg.Resolver != nil {
		w.Resolver = cfg.Resolver
	}
	// Every walk over the same tree resolves the same shared dependencies.
	if cached, err := npm.NewCachingResolver(w.Resolver, 0); err == nil {
		w.Resolver = cached
	}
	closure := analyzer.DefaultClosureConfig(in.NodeModules)
	if cfg.Closure != nil {
		closure = *cfg.Closure
	}

	detectors := map[string]analyzer.Detector{}
	for _, d := range []analyzer.Detector{
		analyzer.NewBadPatternsDetector(w),
		analyzer.NewDynamicLoadDetector(w, cfg.EarlyTools...),
		analyzer.NewJSConfDetector(w, closure, cfg.EarlyTools...),
		analyzer.NewLazyLoadDetector(w, cfg.EarlyTools...),
		analyzer.NewTestCodeDetector(in.SeparateModules),
		analyzer.NewScriptsDetector(in.NodeModules),
	} {
		detectors[d.Name()] = d
	}
	for _, d := range cfg.Detectors {
		detectors[d.Name()] = d
	}

	return &Runner{in: in, cfg: cfg, logger: cfg.Logger, detectors: detectors}
}

// Run executes the named survey, or every survey for "all".
func (r *Runner) Run(ctx context.Context, name string) ([]reporter.Section, error) {
	if name == "all" {
		return r.All(ctx)
	}
	s, err := r.section(ctx, name)
	if err != nil {
		return nil, err
	}
	return []reporter.Section{s}, nil
}

// All runs every survey in report order.
func (r *Runner) All(ctx context.Context) ([]reporter.Section, error) {
	sections := make([]reporter.Section, 0, len(Names))
	for _, name := range Names {
		s, err := r.section(ctx, name)
		if err != nil {
			return nil, err
		}
		sections = append(sections, s)
	}
	return sections, nil
}

func (r *Runner) section(ctx context.Context, name string) (reporter.Section, error) {
	switch name {
	case BadPatterns:
		return r.BadPatterns(ctx)
	case DynamicLoad:
		return r.DynamicLoad(ctx)
	case JSConf:
		return r.JSConf(ctx)
	case LazyLoad:
		return r.LazyLoad(ctx)
	case TestCode:
		return r.TestCode(ctx)
	case UsesScripts:
		return r.UsesScripts(ctx)
	default:
		return reporter.Section{}, fmt.Errorf("unknown survey %q", name)
	}
}

// BadPatterns greps every module's sources for risky API uses.
func (r *Runner) BadPatterns(ctx context.Context) (reporter.Section, error) {
	results, err := r.detect(ctx, BadPatterns, r.in.Packages)
	if err != nil {
		return reporter.Section{}, err
	}
	s := sectionText[BadPatterns].section()
	s.Table = tallyOf(results).Table("")
	s.Findings = findingsOf(results)
	return s, nil
}

// JSConf runs conformance checks over every module's sources.
func (r *Runner) JSConf(ctx context.Context) (reporter.Section, error) {
	results, err := r.detect(ctx, JSConf, r.in.Packages)
	if err != nil {
		return reporter.Section{}, err
	}
	tally := tallyOf(results)
	s := sectionText[JSConf].section()
	s.Table = tally.Table(fmt.Sprintf("Out of %d modules that parsed", tally.ModuleCount()))
	s.Findings = findingsOf(results)
	return s, nil
}

// DynamicLoad counts modules that call require without a literal
// argument.
func (r *Runner) DynamicLoad(ctx context.Context) (reporter.Section, error) {
	return r.ratio(ctx, DynamicLoad, r.in.Packages, nil)
}

// LazyLoad counts modules that call require inside a block.
func (r *Runner) LazyLoad(ctx context.Context) (reporter.Section, error) {
	return r.ratio(ctx, LazyLoad, r.in.Packages, nil)
}

// TestCode counts modules whose production install contains test code.
func (r *Runner) TestCode(ctx context.Context) (reporter.Section, error) {
	return r.ratio(ctx, TestCode, r.in.Packages, nil)
}

// UsesScripts counts every installed package, not only the surveyed ones,
// that declares an install script. The table breaks down which hooks are
// used and what they do.
func (r *Runner) UsesScripts(ctx context.Context) (reporter.Section, error) {
	d, ok := r.detectors[UsesScripts]
	if !ok {
		return reporter.Section{}, fmt.Errorf("unknown survey %q", UsesScripts)
	}
	// Manifests are small, so packages are read one at a time.
	byName, err := npm.ForEachPackage(r.in.NodeModules, func(name, _ string) result {
		return r.detectModule(ctx, d, name)
	})
	if err != nil {
		return reporter.Section{}, fmt.Errorf("failed to list packages: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return reporter.Section{}, err
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	results := make([]result, 0, len(names))
	for _, name := range names {
		if res := byName[name]; !res.failed {
			results = append(results, res)
		}
	}

	s := r.ratioSection(UsesScripts, results, analyzer.UsesInstallScripts)
	s.Table = tallyOf(results).Table("Install hooks and the operations they perform")
	return s, nil
}

// ratio builds a ratio section over modules; see ratioSection.
func (r *Runner) ratio(ctx context.Context, name string, modules []string, uses func([]analyzer.Finding) bool) (reporter.Section, error) {
	results, err := r.detect(ctx, name, modules)
	if err != nil {
		return reporter.Section{}, err
	}
	return r.ratioSection(name, results, uses), nil
}

// ratioSection counts a module as using the property when uses reports so
// for its findings, or when it has any finding if uses is nil.
func (r *Runner) ratioSection(name string, results []result, uses func([]analyzer.Finding) bool) reporter.Section {
	if uses == nil {
		uses = func(fs []analyzer.Finding) bool { return len(fs) > 0 }
	}

	txt := sectionText[name]
	s := txt.section()
	s.Ratio = &reporter.Ratio{Total: len(results), Suffix: txt.suffix}
	for _, res := range results {
		if uses(res.findings) {
			s.Ratio.Uses++
			s.Matches = append(s.Matches, res.module)
		}
	}
	s.Findings = findingsOf(results)
	return s
}

type result struct {
	module   string
	findings []analyzer.Finding
	failed   bool
}

// detect runs the named detector over modules concurrently. Results keep
// the order of modules. A module whose detection fails is logged and
// marked failed; only cancellation of ctx aborts the survey.
func (r *Runner) detect(ctx context.Context, name string, modules []string) ([]result, error) {
	d, ok := r.detectors[name]
	if !ok {
		return nil, fmt.Errorf("unknown survey %q", name)
	}
	r.logger.Info("running survey", "survey", name, "modules", len(modules))
	start := time.Now()

	results := make([]result, len(modules))
	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for i, module := range modules {
		g.Go(func() error {
			results[i] = r.detectModule(ctx, d, module)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.logger.Debug("survey finished", "survey", name, "elapsed", time.Since(start))

	kept := results[:0]
	for _, res := range results {
		if !res.failed {
			kept = append(kept, res)
		}
	}
	return kept, nil
}

func (r *Runner) detectModule(ctx context.Context, d analyzer.Detector, module string) result {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(r.cfg.Timeout)*time.Second)
		defer cancel()
	}
	findings, err := d.Detect(ctx, module)
	if err != nil {
		r.logger.Error("detection failed", "survey", d.Name(), "module", module, "error", err)
		return result{module: module, failed: true}
	}
	r.logger.Debug("module surveyed", "survey", d.Name(), "module", module, "findings", len(findings))
	return result{module: module, findings: findings}
}

func tallyOf(results []result) *Tally {
	t := NewTally()
	for _, res := range results {
		rules := make([]string, len(res.findings))
		for i, f := range res.findings {
			rules[i] = f.Rule
		}
		t.Add(res.module, rules)
	}
	return t
}

func findingsOf(results []result) []analyzer.Finding {
	var all []analyzer.Finding
	for _, res := range results {
		all = append(all, res.findings...)
	}
	return all
}
