package survey

import "github.com/kluth/npmsurvey/internal/reporter"

type text struct {
	id     string
	title  string
	intro  []string
	suffix string
}

func (t text) section() reporter.Section {
	return reporter.Section{ID: t.id, Title: t.title, Intro: t.intro}
}

var sectionText = map[string]text{
	BadPatterns: {
		id:    "grep-problems",
		title: "Grepping for Problems",
		intro: []string{
			"JS Conformance uses sophisticated type reasoning to find problems in JavaScript code " +
				"(see [JS Conformance experiment](#jsconf)). " +
				"It may not find problems in code that lacks type hints or that does not parse.",
			"Grep can be used to reliably find some subset of problems that JS Conformance can identify.",
			"If grep finds more of the kinds of problems that it can find than JS Conformance, " +
				"then the code cannot be effectively vetted by code quality tools like JS Conformance.",
		},
	},
	DynamicLoad: {
		id:     "dynamic_load",
		title:  "Dynamic loads",
		intro:  []string{"Dynamic loading can complicate code bundling."},
		suffix: "call `require(...)` without a literal string argument.",
	},
	JSConf: {
		id:    "jsconf",
		title: "JS Conformance",
		intro: []string{
			"JS Conformance identifies uses of risky APIs.",
			"Some modules did not parse. This may be due to TypeScript. " +
				"The Closure Compiler doesn't deal well with mixed JavaScript and TypeScript inputs.",
			"If a module is both in the top 100 and is a dependency of another module in the top 100, " +
				"then it will be multiply counted.",
		},
	},
	LazyLoad: {
		id:     "lazy_load",
		title:  "Lazy loads",
		intro:  []string{"Lazy loading can complicate code bundling if care is not taken."},
		suffix: "contain a use of require inside a `{...}` block.",
	},
	TestCode: {
		id:    "test_code",
		title: "Prod bundle includes test code",
		intro: []string{
			"Some of the top 100 modules are test code, e.g. mocha, chai. " +
				"This measures which modules, when installed `--only=prod` include test patterns.",
		},
		suffix: "contain test code patterns",
	},
	UsesScripts: {
		id:    "uses_scripts",
		title: "Uses Scripts",
		intro: []string{
			"Unless steps are taken, installation scripts run code on a developer's workstation " +
				"when they have write access to local repositories. " +
				"If this number is small, having humans check installation scripts before running might be feasible.",
		},
		suffix: "use installation scripts",
	},
}
