// Package bundle resolves require sets by asking a bundler which files it
// would include.
package bundle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/kluth/npmsurvey/internal/npm"
)

const stdinName = "<stdin>"

// Resolver computes require sets with esbuild. The files esbuild bundles
// for require(spec) span every package spec loads, so the returned set has
// no Deps to follow.
type Resolver struct{}

var _ npm.Resolver = Resolver{}

// Requires bundles a stub that requires spec from nodeModules. Build
// errors, warnings, and bundled files that call require with a
// non-literal argument mean the set is not an upper bound. esbuild does
// not warn about the latter inside node_modules.
func (Resolver) Requires(nodeModules, spec string) (npm.RequireSet, error) {
	root, err := filepath.Abs(nodeModules)
	if err != nil {
		return npm.RequireSet{}, err
	}
	if r, err := filepath.EvalSymlinks(root); err == nil {
		root = r
	}
	quoted, err := json.Marshal(spec)
	if err != nil {
		return npm.RequireSet{}, err
	}

	result := api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   "require(" + string(quoted) + ");",
			ResolveDir: root,
			Sourcefile: stdinName,
			Loader:     api.LoaderJS,
		},
		AbsWorkingDir: root,
		NodePaths:     []string{root},
		Bundle:        true,
		Write:         false,
		Outdir:        "out",
		Platform:      api.PlatformNode,
		Format:        api.FormatCommonJS,
		Metafile:      true,
		LogLevel:      api.LogLevelSilent,
		LogOverride: map[string]api.LogLevel{
			"unsupported-require-call": api.LogLevelWarning,
		},
	})

	srcs, err := metafileInputs(root, result.Metafile)
	if err != nil {
		return npm.RequireSet{}, err
	}
	if len(result.Errors) > 0 {
		return npm.RequireSet{Srcs: srcs}, fmt.Errorf("esbuild: %s", messages(result.Errors))
	}
	return npm.RequireSet{Srcs: srcs, Upper: len(result.Warnings) == 0 && !anyNonLiteralRequire(srcs)}, nil
}

func anyNonLiteralRequire(srcs []string) bool {
	for _, src := range srcs {
		content, err := os.ReadFile(src)
		if err != nil || npm.HasNonLiteralRequire(string(content)) {
			return true
		}
	}
	return false
}

// metafileInputs lists the JavaScript and TypeScript inputs recorded in an
// esbuild metafile as absolute paths. Input paths are relative to root.
func metafileInputs(root, metafile string) ([]string, error) {
	if metafile == "" {
		return nil, nil
	}
	var meta struct {
		Inputs map[string]json.RawMessage `json:"inputs"`
	}
	if err := json.Unmarshal([]byte(metafile), &meta); err != nil {
		return nil, fmt.Errorf("failed to parse esbuild metafile: %w", err)
	}
	var srcs []string
	for in := range meta.Inputs {
		if in == stdinName {
			continue
		}
		switch filepath.Ext(in) {
		case ".js", ".ts":
		default:
			continue
		}
		p := filepath.FromSlash(in)
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		srcs = append(srcs, p)
	}
	sort.Strings(srcs)
	return srcs, nil
}

func messages(msgs []api.Message) string {
	texts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			texts = append(texts, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
			continue
		}
		texts = append(texts, m.Text)
	}
	return strings.Join(texts, "; ")
}
