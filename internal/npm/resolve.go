package npm

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/kluth/npmsurvey/internal/jslex"
)

// RequireSet bounds the files a module loads.
type RequireSet struct {
	// Srcs are the entry points and the same-module files they require.
	Srcs []string `json:"srcs"`
	// Deps are the bare specifiers of other packages that are required.
	Deps []string `json:"deps"`
	// Upper is true when Srcs and Deps account for every require call.
	Upper bool `json:"upper"`
}

var (
	requireCall     = regexp.MustCompile(`require\s*[(]([^)]*)`)
	requireBounds   = jslex.Bounds{Left: true, Extra: "."}
	relativeRequire = regexp.MustCompile(`^\.\.?/`)
)

// Requires follows require() calls from the main entry points of module to
// bound the set of JavaScript files it loads. A package without a main
// entry yields a set whose Upper flag is false.
func Requires(nodeModules, module string) (RequireSet, error) {
	root := filepath.Join(nodeModules, filepath.FromSlash(module))
	m, err := ReadManifest(root)
	if err != nil {
		return RequireSet{}, err
	}
	if len(m.Main) == 0 {
		return RequireSet{}, nil
	}
	return RequireEntries(root, m.Main), nil
}

// RequireEntries is Requires starting from explicit entry paths relative to
// the package root.
func RequireEntries(root string, entries []string) RequireSet {
	srcs := make(map[string]bool)
	deps := make(map[string]bool)
	visited := make(map[string]bool)
	upper := true

	var unprocessed []string
	for _, e := range entries {
		unprocessed = append(unprocessed, resolveFile(filepath.Join(root, filepath.FromSlash(e))))
	}

	for len(unprocessed) > 0 {
		src := unprocessed[len(unprocessed)-1]
		unprocessed = unprocessed[:len(unprocessed)-1]
		if real, err := filepath.EvalSymlinks(src); err == nil {
			src = real
		}
		if visited[src] {
			continue
		}
		visited[src] = true

		if info, err := os.Stat(src); err == nil && info.IsDir() {
			unprocessed = append(unprocessed, JSFilesUnder(src)...)
			continue
		}

		srcs[src] = true
		content, err := os.ReadFile(src)
		if err != nil {
			upper = false
			continue
		}

		text := string(content)
		for _, loc := range jslex.FindAllBounded(requireCall, text, requireBounds) {
			arg := strings.TrimSpace(text[loc[2]:loc[3]])
			spec, ok := literalArg(arg)
			switch {
			case arg == "":
				// require() with no arguments loads nothing.
			case !ok:
				upper = false
			case relativeRequire.MatchString(spec):
				unprocessed = append(unprocessed, resolveFile(filepath.Join(filepath.Dir(src), filepath.FromSlash(spec))))
			case IsNodeBuiltin(spec):
			default:
				deps[spec] = true
			}
		}
	}

	return RequireSet{
		Srcs:  sortedKeys(srcs),
		Deps:  sortedKeys(deps),
		Upper: upper,
	}
}

// HasNonLiteralRequire reports whether content calls require with
// something other than a single string literal.
func HasNonLiteralRequire(content string) bool {
	for _, loc := range jslex.FindAllBounded(requireCall, content, requireBounds) {
		arg := strings.TrimSpace(content[loc[2]:loc[3]])
		if _, ok := literalArg(arg); arg != "" && !ok {
			return true
		}
	}
	return false
}

// literalArg decodes a quoted string literal argument using JSON string
// escapes. It reports false for anything that is not a single literal.
func literalArg(arg string) (string, bool) {
	if len(arg) <= 2 {
		return "", false
	}
	q := arg[0]
	if (q != '"' && q != '\'') || arg[len(arg)-1] != q {
		return "", false
	}
	var s string
	if err := json.Unmarshal([]byte(`"`+arg[1:len(arg)-1]+`"`), &s); err != nil {
		return "", false
	}
	return s, true
}

// resolveFile maps a require target to a path on disk the way node does for
// the common cases: the file itself, the file with a .js suffix, or a
// directory. Missing targets are returned unchanged so the read fails.
func resolveFile(p string) string {
	if info, err := os.Stat(p); err == nil && !info.IsDir() {
		return p
	}
	if !strings.HasSuffix(p, ".js") {
		if info, err := os.Stat(p + ".js"); err == nil && !info.IsDir() {
			return p + ".js"
		}
	}
	return p
}

// Source is a JavaScript file attributed to the package that owns it.
type Source struct {
	Module string `json:"module"`
	Path   string `json:"path"`
}

// Resolver computes the require set of a specifier.
type Resolver interface {
	Requires(nodeModules, spec string) (RequireSet, error)
}

// HeuristicResolver follows require calls textually.
type HeuristicResolver struct{}

// Requires resolves a bare specifier. A subpath such as "lodash/fp" starts
// the walk at that file instead of the package's main entry.
func (HeuristicResolver) Requires(nodeModules, spec string) (RequireSet, error) {
	pkg, sub := SplitSpecifier(spec)
	if sub == "" {
		return Requires(nodeModules, pkg)
	}
	root := filepath.Join(nodeModules, filepath.FromSlash(pkg))
	if _, err := os.Stat(root); err != nil {
		return RequireSet{}, err
	}
	return RequireEntries(root, []string{sub}), nil
}

// Walker collects the JavaScript files loaded by a package and its
// production dependencies.
//
// The walk is not entirely conservative. A require(x) where x is not a
// string literal is assumed to load only files from the same package,
// which does not hold for packages that load plugins by name. Such loads
// need not come from production dependencies either, so assuming
// otherwise would not make the walk conservative.
type Walker struct {
	NodeModules string
	Filter      ModuleFilter
	Resolver    Resolver
	Logger      *slog.Logger
}

// NewWalker returns a Walker using the textual resolver and accepting every
// module.
func NewWalker(nodeModules string, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{
		NodeModules: nodeModules,
		Filter:      AllModules,
		Resolver:    HeuristicResolver{},
		Logger:      logger,
	}
}

// Log returns the walker's logger, or the default logger when unset.
func (w *Walker) Log() *slog.Logger {
	if w.Logger == nil {
		return slog.Default()
	}
	return w.Logger
}

// WithFilter returns a copy of w using filter.
func (w *Walker) WithFilter(filter ModuleFilter) *Walker {
	c := *w
	c.Filter = filter
	return &c
}

// Sources returns the files module loads, sorted by module then path.
// Whenever the require set of a package is not a proven upper bound, every
// probable production file of that package is included along with every
// declared dependency. The walk stops with ctx's error once ctx is done.
func (w *Walker) Sources(ctx context.Context, module string) ([]Source, error) {
	filter := w.Filter
	if filter == nil {
		filter = AllModules
	}
	resolver := w.Resolver
	if resolver == nil {
		resolver = HeuristicResolver{}
	}
	logger := w.Log()
	realRoot := w.NodeModules
	if r, err := filepath.EvalSymlinks(w.NodeModules); err == nil {
		realRoot = r
	}

	files := make(map[Source]bool)
	visited := make(map[string]bool)
	worstCase := make(map[string]bool)
	unprocessed := []string{module}

	for len(unprocessed) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		spec := unprocessed[len(unprocessed)-1]
		unprocessed = unprocessed[:len(unprocessed)-1]
		if visited[spec] {
			continue
		}
		visited[spec] = true
		pkg, _ := SplitSpecifier(spec)
		if !filter(pkg) {
			continue
		}

		rs, err := resolver.Requires(w.NodeModules, spec)
		if err != nil {
			logger.Debug("require walk failed", "module", spec, "required_by", module, "error", err)
		}
		if err == nil && rs.Upper {
			for _, src := range rs.Srcs {
				owner := OwningModule(realRoot, src, pkg)
				if owner != pkg && !filter(owner) {
					continue
				}
				files[Source{Module: owner, Path: src}] = true
			}
			unprocessed = append(unprocessed, rs.Deps...)
			continue
		}

		if worstCase[pkg] {
			continue
		}
		worstCase[pkg] = true
		logger.Debug("falling back to worst case", "module", pkg, "required_by", module)

		root := filepath.Join(w.NodeModules, filepath.FromSlash(pkg))
		for _, f := range JSFilesUnder(root) {
			rel, err := filepath.Rel(root, f)
			if err != nil || ProbableNonProdFile(rel) {
				continue
			}
			// Nested node_modules hold other packages.
			owner := OwningModule(w.NodeModules, f, pkg)
			if owner != pkg && !filter(owner) {
				continue
			}
			files[Source{Module: owner, Path: f}] = true
		}

		m, err := ReadManifest(root)
		if err != nil {
			logger.Warn("undeclared dependency", "module", pkg, "required_by", module, "error", err)
			continue
		}
		unprocessed = append(unprocessed, m.DependencyNames()...)
	}

	out := make([]Source, 0, len(files))
	for s := range files {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}

// OwningModule returns the package that contains path, which must live
// under nodeModules. Files in nested node_modules directories belong to the
// innermost package. fallback is returned for paths outside nodeModules.
func OwningModule(nodeModules, path, fallback string) string {
	rel, err := filepath.Rel(nodeModules, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fallback
	}
	rel = filepath.ToSlash(rel)
	if i := strings.LastIndex(rel, "node_modules/"); i >= 0 {
		rel = rel[i+len("node_modules/"):]
	}
	pkg, sub := SplitSpecifier(rel)
	if sub == "" {
		// A bare file directly under node_modules has no owner.
		return fallback
	}
	return pkg
}

// SourcesMatching returns the sources of module whose preprocessed content
// satisfies match. Unreadable files are logged and skipped. A file that
// cannot be lexed is matched against its raw content.
func (w *Walker) SourcesMatching(ctx context.Context, module string, match func(content string) bool) ([]Source, error) {
	srcs, err := w.Sources(ctx, module)
	if err != nil {
		return nil, err
	}
	logger := w.Log()
	var matching []Source
	for _, src := range srcs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := os.ReadFile(src.Path)
		if err != nil {
			logger.Warn("unreadable source", "module", src.Module, "path", src.Path, "error", err)
			continue
		}
		canon, err := jslex.Preprocess(string(content))
		if err != nil {
			logger.Debug("cannot lex source, matching raw content", "module", src.Module, "path", src.Path, "error", err)
			canon = string(content)
		}
		if match(canon) {
			matching = append(matching, src)
		}
	}
	return matching, nil
}
