package npm

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

// Installer installs packages into a fresh directory using the npm CLI.
type Installer struct {
	// NPM is the npm executable. Defaults to "npm" on PATH.
	NPM string
	// Stdout and Stderr receive npm's output. Nil discards it.
	Stdout, Stderr io.Writer
}

// Install creates a temporary directory with a node_modules child, installs
// the production dependencies of packages into it without running any
// lifecycle scripts, and returns the node_modules path.
func (i Installer) Install(ctx context.Context, packages ...string) (string, error) {
	if len(packages) == 0 {
		return "", fmt.Errorf("no packages to install")
	}
	npmBin := i.NPM
	if npmBin == "" {
		npmBin = "npm"
	}
	if _, err := exec.LookPath(npmBin); err != nil {
		return "", fmt.Errorf("npm not found: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "npmsurvey-*")
	if err != nil {
		return "", err
	}
	nodeModules := filepath.Join(tmpDir, "node_modules")
	if err := os.Mkdir(nodeModules, 0o755); err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, npmBin, installArgs(nodeModules, packages)...)
	cmd.Stdout = i.Stdout
	cmd.Stderr = i.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("npm install failed: %w", err)
	}
	return nodeModules, nil
}

func installArgs(prefix string, packages []string) []string {
	args := []string{
		"install", "--ignore-scripts", "--only=prod",
		"-g", "--prefix", prefix,
		"--",
	}
	return append(args, packages...)
}
