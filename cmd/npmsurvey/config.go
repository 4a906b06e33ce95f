package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const envPrefix = "NPMSURVEY_"

type configFile struct {
	Format            string   `yaml:"format"`
	Quiet             bool     `yaml:"quiet"`
	Verbose           bool     `yaml:"verbose"`
	Resolver          string   `yaml:"resolver"`
	Java              string   `yaml:"java"`
	NPM               string   `yaml:"npm"`
	ClosureJar        string   `yaml:"closure-jar"`
	ConformanceConfig string   `yaml:"conformance-config"`
	Externs           string   `yaml:"externs"`
	ArgMax            int      `yaml:"arg-max"`
	EarlyTools        []string `yaml:"early-tools"`
	Concurrency       int      `yaml:"concurrency"`
	Timeout           int      `yaml:"timeout"`
}

func loadConfigFile(path string) (*configFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var cfg configFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &cfg, nil
}

func findConfigFile() string {
	if _, err := os.Stat(".npmsurvey.yaml"); err == nil {
		return ".npmsurvey.yaml"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	p := filepath.Join(home, ".config", "npmsurvey", "config.yaml")
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}

// applyConfig copies file settings into options whose flags were not set
// on the command line.
func applyConfig(cmd *cobra.Command, cfg *configFile) {
	if cfg == nil {
		return
	}
	setString := func(flag, v string, target *string) {
		if v != "" && !flagChanged(cmd, flag) {
			*target = v
		}
	}
	setInt := func(flag string, v int, target *int) {
		if v != 0 && !flagChanged(cmd, flag) {
			*target = v
		}
	}
	setBool := func(flag string, v bool, target *bool) {
		if v && !flagChanged(cmd, flag) {
			*target = true
		}
	}

	setString("format", cfg.Format, &format)
	setString("resolver", cfg.Resolver, &resolverName)
	setString("java", cfg.Java, &javaPath)
	setString("npm", cfg.NPM, &npmPath)
	setString("closure-jar", cfg.ClosureJar, &closureJar)
	setString("conformance-config", cfg.ConformanceConfig, &conformanceConfig)
	setString("externs", cfg.Externs, &externsDir)
	setInt("arg-max", cfg.ArgMax, &argMax)
	setInt("concurrency", cfg.Concurrency, &concurrency)
	setInt("timeout", cfg.Timeout, &timeout)
	setBool("quiet", cfg.Quiet, &quiet)
	setBool("verbose", cfg.Verbose, &verbose)
	if len(cfg.EarlyTools) > 0 && !flagChanged(cmd, "early-tools") {
		earlyTools = cfg.EarlyTools
	}
}

// resolveConfig lets NPMSURVEY_* environment variables override the config
// file for options whose flags were not set.
func resolveConfig(cmd *cobra.Command) {
	resolveStringEnv(cmd, "format", envPrefix+"FORMAT", &format)
	resolveStringEnv(cmd, "resolver", envPrefix+"RESOLVER", &resolverName)
	resolveStringEnv(cmd, "java", envPrefix+"JAVA", &javaPath)
	resolveStringEnv(cmd, "npm", envPrefix+"NPM", &npmPath)
	resolveStringEnv(cmd, "closure-jar", envPrefix+"CLOSURE_JAR", &closureJar)
	resolveStringEnv(cmd, "conformance-config", envPrefix+"CONFORMANCE_CONFIG", &conformanceConfig)
	resolveStringEnv(cmd, "externs", envPrefix+"EXTERNS", &externsDir)
	resolveIntEnv(cmd, "arg-max", envPrefix+"ARG_MAX", &argMax)
	resolveIntEnv(cmd, "concurrency", envPrefix+"CONCURRENCY", &concurrency)
	resolveIntEnv(cmd, "timeout", envPrefix+"TIMEOUT", &timeout)
	resolveBoolEnv(cmd, "quiet", envPrefix+"QUIET", &quiet)
	resolveBoolEnv(cmd, "verbose", envPrefix+"VERBOSE", &verbose)
	resolveListEnv(cmd, "early-tools", envPrefix+"EARLY_TOOLS", &earlyTools)
}

func flagChanged(cmd *cobra.Command, name string) bool {
	if cmd == nil {
		return false
	}
	f := cmd.Flag(name)
	return f != nil && f.Changed
}

func resolveStringEnv(cmd *cobra.Command, flagName, envKey string, target *string) {
	if flagChanged(cmd, flagName) {
		return
	}
	if v := os.Getenv(envKey); v != "" {
		*target = v
	}
}

func resolveIntEnv(cmd *cobra.Command, flagName, envKey string, target *int) {
	if flagChanged(cmd, flagName) {
		return
	}
	if v := os.Getenv(envKey); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func resolveBoolEnv(cmd *cobra.Command, flagName, envKey string, target *bool) {
	if flagChanged(cmd, flagName) {
		return
	}
	if v := os.Getenv(envKey); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

// resolveListEnv reads a comma separated list.
func resolveListEnv(cmd *cobra.Command, flagName, envKey string, target *[]string) {
	if flagChanged(cmd, flagName) {
		return
	}
	v := os.Getenv(envKey)
	if v == "" {
		return
	}
	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) > 0 {
		*target = items
	}
}
