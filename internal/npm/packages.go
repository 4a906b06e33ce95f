package npm

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// ListPackages returns the names of all packages installed directly under
// nodeModules, including scoped packages, sorted.
//
// For a tree like
//
//	node_modules/
//	  foo/package.json
//	  @types/node/package.json
//	  .bin/
//
// it returns ["@types/node", "foo"].
func ListPackages(nodeModules string) ([]string, error) {
	entries, err := os.ReadDir(nodeModules)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		if strings.HasPrefix(entry.Name(), "@") {
			scoped, err := os.ReadDir(filepath.Join(nodeModules, entry.Name()))
			if err != nil {
				continue
			}
			for _, s := range scoped {
				name := entry.Name() + "/" + s.Name()
				if s.IsDir() && hasManifest(filepath.Join(nodeModules, name)) {
					names = append(names, name)
				}
			}
			continue
		}

		if hasManifest(filepath.Join(nodeModules, entry.Name())) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ForEachPackage calls fn with each installed package and collects the
// results keyed by package name.
func ForEachPackage[T any](nodeModules string, fn func(name, dir string) T) (map[string]T, error) {
	names, err := ListPackages(nodeModules)
	if err != nil {
		return nil, err
	}
	results := make(map[string]T, len(names))
	for _, name := range names {
		results[name] = fn(name, filepath.Join(nodeModules, filepath.FromSlash(name)))
	}
	return results, nil
}

func hasManifest(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, "package.json"))
	return err == nil && !info.IsDir()
}

// JSFilesUnder returns every .js and .ts file below root, sorted.
// Unreadable directories are skipped.
func JSFilesUnder(root string) []string {
	var files []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if isJSFile(path) {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files
}

func isJSFile(path string) bool {
	return strings.HasSuffix(path, ".js") || strings.HasSuffix(path, ".ts")
}

// nonProdPath was picked by eyeballing the distinct directory names of a
// large node_modules tree.
var nonProdPath = regexp.MustCompile(
	`(?i)(?:^|[/\\])(?:tests?|testdata|testing|\.github|__tests__|demo|examples?|benchmarks?)(?:$|[/\\])`)

// ProbableNonProdFile reports whether path looks like test, example or
// benchmark code. Used to trim the worst-case directory scan.
func ProbableNonProdFile(path string) bool {
	return nonProdPath.MatchString(path)
}

// ModuleFilter decides whether a module takes part in a walk.
type ModuleFilter func(module string) bool

// AllModules accepts every module.
func AllModules(string) bool { return true }

// DefaultEarlyTools are package name prefixes of tools that run while
// bundling or validating and so are not needed at runtime.
var DefaultEarlyTools = []string{"babel", "eslint"}

// IgnoreToolsThatCanRunEarly drops dependencies whose names start with one
// of prefixes. The root module itself is always kept.
func IgnoreToolsThatCanRunEarly(root string, prefixes ...string) ModuleFilter {
	if len(prefixes) == 0 {
		prefixes = DefaultEarlyTools
	}
	return func(module string) bool {
		if module == root {
			return true
		}
		for _, p := range prefixes {
			if strings.HasPrefix(module, p) {
				return false
			}
		}
		return true
	}
}

// SplitSpecifier splits a bare require specifier into its package name and
// the subpath inside that package. "lodash/fp" gives ("lodash", "fp") and
// "@babel/core/lib/x" gives ("@babel/core", "lib/x").
func SplitSpecifier(spec string) (pkg, subpath string) {
	parts := strings.Split(spec, "/")
	n := 1
	if strings.HasPrefix(spec, "@") && len(parts) > 1 {
		n = 2
	}
	if len(parts) <= n {
		return spec, ""
	}
	return strings.Join(parts[:n], "/"), strings.Join(parts[n:], "/")
}

// nodeBuiltinModules lists Node.js core modules, which are never installed
// under node_modules.
var nodeBuiltinModules = map[string]bool{
	"assert":              true,
	"async_hooks":         true,
	"buffer":              true,
	"child_process":       true,
	"cluster":             true,
	"console":             true,
	"constants":           true,
	"crypto":              true,
	"dgram":               true,
	"diagnostics_channel": true,
	"dns":                 true,
	"domain":              true,
	"events":              true,
	"fs":                  true,
	"http":                true,
	"http2":               true,
	"https":               true,
	"inspector":           true,
	"module":              true,
	"net":                 true,
	"os":                  true,
	"path":                true,
	"perf_hooks":          true,
	"process":             true,
	"punycode":            true,
	"querystring":         true,
	"readline":            true,
	"repl":                true,
	"stream":              true,
	"string_decoder":      true,
	"sys":                 true,
	"timers":              true,
	"tls":                 true,
	"trace_events":        true,
	"tty":                 true,
	"url":                 true,
	"util":                true,
	"v8":                  true,
	"vm":                  true,
	"wasi":                true,
	"worker_threads":      true,
	"zlib":                true,
}

// IsNodeBuiltin reports whether spec names a Node.js core module, with or
// without the "node:" prefix, including subpaths like "fs/promises".
func IsNodeBuiltin(spec string) bool {
	if strings.HasPrefix(spec, "node:") {
		return true
	}
	if i := strings.IndexByte(spec, '/'); i >= 0 {
		spec = spec[:i]
	}
	return nodeBuiltinModules[spec]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
