// Package npm reads installed npm packages and approximates which
// JavaScript files they load at runtime.
package npm

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrManifest is returned when a package.json cannot be decoded.
var ErrManifest = errors.New("malformed package.json")

// Manifest represents the parts of a package.json the surveys need.
type Manifest struct {
	// Name is the name of the package.
	Name string `json:"name"`
	// Version is the installed version of the package.
	Version string `json:"version"`
	// Main lists the entry points. package.json allows a string or an array.
	Main Entries `json:"main"`
	// Dependencies are the packages required for production.
	Dependencies map[string]string `json:"dependencies"`
	// Scripts maps lifecycle and custom script names to commands.
	Scripts map[string]string `json:"scripts"`
}

// Entries is a list of entry point paths relative to the package root.
type Entries []string

// UnmarshalJSON accepts a single string, an array of strings or null.
func (e *Entries) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*e = nil
		} else {
			*e = Entries{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("main must be a string or an array of strings: %w", err)
	}
	*e = nil
	for _, m := range many {
		if m != "" {
			*e = append(*e, m)
		}
	}
	return nil
}

// DependencyNames returns the declared production dependencies, sorted.
func (m *Manifest) DependencyNames() []string {
	return sortedKeys(m.Dependencies)
}

// ReadManifest reads and decodes <dir>/package.json.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w in %s: %v", ErrManifest, dir, err)
	}
	return &m, nil
}

// ReadPackageList reads a newline-delimited list of package names.
func ReadPackageList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open package list: %w", err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read package list: %w", err)
	}
	return names, nil
}
