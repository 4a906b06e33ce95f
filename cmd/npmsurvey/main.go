package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kluth/npmsurvey/internal/analyzer"
	"github.com/kluth/npmsurvey/internal/bundle"
	"github.com/kluth/npmsurvey/internal/npm"
	"github.com/kluth/npmsurvey/internal/reporter"
	"github.com/kluth/npmsurvey/internal/survey"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Resolvers
const (
	resolverHeuristic = "heuristic"
	resolverESBuild   = "esbuild"
)

var (
	format            string
	outputFile        string
	verbose           bool
	quiet             bool
	resolverName      string
	javaPath          string
	closureJar        string
	conformanceConfig string
	externsDir        string
	argMax            int
	earlyTools        []string
	npmPath           string
	concurrency       int
	timeout           int
	packageList       string
)

var surveyDescriptions = map[string]string{
	survey.BadPatterns: "Grep module sources for risky API uses",
	survey.DynamicLoad: "Count modules that require without a literal argument",
	survey.JSConf:      "Run JS Conformance checks with the Closure Compiler",
	survey.LazyLoad:    "Count modules that require inside a block",
	survey.TestCode:    "Count production installs that bundle test code",
	survey.UsesScripts: "Count installed packages with install scripts",
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		if exitErr, ok := err.(*ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "npmsurvey",
		Short: "Survey the JavaScript in an npm dependency tree",
		Long: fmt.Sprintf(`npmsurvey measures how a set of npm packages and their production
dependencies load code and use risky APIs, and prints the results as a
report fragment.

Build Info: Commit %s, Date %s

Examples:
  npmsurvey all node_modules separate_modules top100.txt
  npmsurvey dyn-load node_modules separate_modules top100.txt --format json
  npmsurvey install --from top100.txt`, commit, date),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfiguration(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&format, "format", reporter.FormatMarkdown, "output format ("+strings.Join(reporter.Formats, ", ")+")")
	pf.StringVarP(&outputFile, "output", "o", "", "write report to file instead of stdout")
	pf.BoolVarP(&verbose, "verbose", "v", false, "log debug output and list matching modules")
	pf.BoolVarP(&quiet, "quiet", "q", false, "only log errors to stderr")
	pf.StringVar(&resolverName, "resolver", resolverHeuristic, "require resolver (heuristic, esbuild)")
	pf.StringVar(&javaPath, "java", "java", "java executable used to run the Closure Compiler")
	pf.StringVar(&closureJar, "closure-jar", "", "Closure Compiler jar (default: tools/closure-compiler-latest/closure-compiler.jar next to node_modules)")
	pf.StringVar(&conformanceConfig, "conformance-config", "", "JS Conformance config (default: jsconf/conformance_proto.textproto next to node_modules)")
	pf.StringVar(&externsDir, "externs", "", "directory of Closure externs (default: jsconf/externs next to node_modules)")
	pf.IntVar(&argMax, "arg-max", analyzer.DefaultArgMax, "longest compiler command line to attempt")
	pf.StringSliceVar(&earlyTools, "early-tools", npm.DefaultEarlyTools, "package name prefixes of build tools excluded from source walks")
	pf.StringVar(&npmPath, "npm", "npm", "npm executable used by install")
	pf.IntVarP(&concurrency, "concurrency", "c", 5, "max number of modules surveyed at once")
	pf.IntVar(&timeout, "timeout", 0, "timeout in seconds for each module, 0 for none")

	for _, name := range append(append([]string{}, survey.Names...), "all") {
		rootCmd.AddCommand(newSurveyCmd(name))
	}
	rootCmd.AddCommand(newInstallCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "rules",
		Short: "List the patterns each content survey matches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRules(cmd.OutOrStdout())
		},
	})
	return rootCmd
}

func newSurveyCmd(name string) *cobra.Command {
	short := surveyDescriptions[name]
	if name == "all" {
		short = "Run every survey in report order"
	}
	return &cobra.Command{
		Use:   name + " <node_modules> <separate_modules> <top100.txt>",
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSurvey(cmd.Context(), name, args)
		},
	}
}

func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install [packages...]",
		Short: "Install packages for production without running scripts and print the node_modules path",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd.Context(), cmd.OutOrStdout(), args)
		},
	}
	cmd.Flags().StringVar(&packageList, "from", "", "read package names from a file, one per line")
	return cmd
}

// ExitError signals a non-standard exit code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string { return e.Message }

func loadConfiguration(cmd *cobra.Command) error {
	// A .env file may set NPMSURVEY_* variables; the real environment wins.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("invalid .env file: %w", err)
	}
	if cfgPath := findConfigFile(); cfgPath != "" {
		cfg, err := loadConfigFile(cfgPath)
		if err != nil {
			return err
		}
		applyConfig(cmd, cfg)
	}
	resolveConfig(cmd)
	if quiet && verbose {
		return fmt.Errorf("--quiet and --verbose are mutually exclusive")
	}
	if err := parseFormat(format); err != nil {
		return err
	}
	if _, err := parseResolver(resolverName); err != nil {
		return err
	}
	slog.SetDefault(newLogger(os.Stderr))
	return nil
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func parseFormat(f string) error {
	for _, known := range reporter.Formats {
		if f == known {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be one of %s", f, strings.Join(reporter.Formats, ", "))
}

func parseResolver(name string) (npm.Resolver, error) {
	switch name {
	case resolverHeuristic, "":
		return npm.HeuristicResolver{}, nil
	case resolverESBuild:
		return bundle.Resolver{}, nil
	default:
		return nil, fmt.Errorf("invalid resolver %q: must be heuristic or esbuild", name)
	}
}

// closureConfig fills in the Closure Compiler locations that were not
// configured from the layout next to nodeModules.
func closureConfig(nodeModules string) analyzer.ClosureConfig {
	cfg := analyzer.DefaultClosureConfig(nodeModules)
	if javaPath != "" {
		cfg.Java = javaPath
	}
	if closureJar != "" {
		cfg.Jar = closureJar
	}
	if conformanceConfig != "" {
		cfg.ConformanceConfig = conformanceConfig
	}
	if externsDir != "" {
		cfg.Externs = analyzer.CollectExterns(externsDir)
	}
	if argMax > 0 {
		cfg.ArgMax = argMax
	}
	return cfg
}

func runSurvey(ctx context.Context, name string, args []string) error {
	nodeModules, separateModules, top100 := args[0], args[1], args[2]
	if info, err := os.Stat(nodeModules); err != nil || !info.IsDir() {
		return &ExitError{Code: 2, Message: fmt.Sprintf("node_modules directory %q not found", nodeModules)}
	}
	packages, err := npm.ReadPackageList(top100)
	if err != nil {
		return fmt.Errorf("failed to read package list: %w", err)
	}
	resolver, err := parseResolver(resolverName)
	if err != nil {
		return err
	}

	logger := slog.Default()
	closure := closureConfig(nodeModules)
	runner := survey.NewRunner(survey.Input{
		NodeModules:     nodeModules,
		SeparateModules: separateModules,
		Packages:        packages,
	}, survey.Config{
		Resolver:    resolver,
		Closure:     &closure,
		EarlyTools:  earlyTools,
		Concurrency: concurrency,
		Timeout:     timeout,
		Logger:      logger,
	})

	sections, err := runner.Run(ctx, name)
	if err != nil {
		return err
	}

	out, cleanup, err := resolveOutput()
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}
	rep := reporter.NewWithOptions(out, format, verbose)
	if f, ok := out.(*os.File); ok && format == reporter.FormatTerminal && term.IsTerminal(int(f.Fd())) {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil {
			rep.SetWidth(width)
		}
	}
	return rep.Render(sections...)
}

func runInstall(ctx context.Context, stdout io.Writer, args []string) error {
	packages := args
	if packageList != "" {
		listed, err := npm.ReadPackageList(packageList)
		if err != nil {
			return fmt.Errorf("failed to read package list: %w", err)
		}
		packages = append(packages, listed...)
	}
	if len(packages) == 0 {
		return fmt.Errorf("no packages given: pass package names or --from")
	}

	var npmOut io.Writer = os.Stderr
	if quiet {
		npmOut = io.Discard
	}
	slog.Info("installing packages", "count", len(packages))
	dir, err := npm.Installer{NPM: npmPath, Stdout: npmOut, Stderr: npmOut}.Install(ctx, packages...)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, dir)
	return nil
}

func listRules(w io.Writer) error {
	rules := analyzer.Rules()
	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Survey", "Rule", "Pattern"})
	for _, name := range names {
		for _, r := range rules[name] {
			t.AppendRow(table.Row{name, r.Name, r.Pattern.String()})
		}
	}
	t.Render()
	return nil
}

func resolveOutput() (io.Writer, func(), error) {
	if outputFile == "" {
		return os.Stdout, nil, nil
	}
	f, err := os.Create(outputFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}
