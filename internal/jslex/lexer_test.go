package jslex

import (
	"errors"
	"regexp"
	"testing"
)

func TestPreprocess(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"plain code", "var x = eval(y);", "var x = eval(y);"},
		{"line comment", "a(); // eval(x)\nb();", "a();  \nb();"},
		{"block comment", "a(/* eval */1)", "a( 1)"},
		{"multi-line block comment", "a();/* x\n y\n */b();", "a(); \n\nb();"},
		{"single quoted", "f('eval me')", "f('EVAL ME')"},
		{"double quoted with escape", `f("say \"eval\"")`, `f("SAY \"EVAL\"")`},
		{"regex after paren", "s.replace(/ab+c/g, 'x')", "s.replace(/AB+C/G, 'X')"},
		{"division after identifier", "a = b / c / d", "a = b / c / d"},
		{"division after call", "a = f(x) / 2 / y", "a = f(x) / 2 / y"},
		{"regex after return", "return /x/.test(s)", "return /X/.test(s)"},
		{"regex with slash in class", "x = /[/]eval/", "x = /[/]EVAL/"},
		{"template", "`hello ${name} world`", "`HELLO ${name} WORLD`"},
		{"template with object", "`a${ {b: 1}.b }c`", "`A${ {b: 1}.b }C`"},
		{"nested template", "`a${`b${c}`}d`", "`A${`B${c}`}D`"},
		{"comment markers in string", `x = "// not a comment"`, `x = "// NOT A COMMENT"`},
		{"line continuation", "s = 'a\\\nb'; eval(s)", "s = 'A\\\nB'; eval(s)"},
		{"CRLF line continuation", "s = 'a\\\r\nb';\r\neval(s);", "s = 'A\\\r\nB';\r\neval(s);"},
		{"raw line break ends string", "x = 'open\neval(y)", "x = 'OPEN\neval(y)"},
		{"raw CRLF ends string", "x = \"open\r\neval(y)", "x = \"OPEN\r\neval(y)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Preprocess(tt.src)
			if err != nil {
				t.Fatalf("Preprocess(%q) error: %v", tt.src, err)
			}
			if got != tt.want {
				t.Errorf("Preprocess(%q)\n got %q\nwant %q", tt.src, got, tt.want)
			}
		})
	}
}

func TestPreprocessUnterminated(t *testing.T) {
	for _, src := range []string{
		"a(); /* never closed",
		"x = 'open",
		"`never closed",
		"`a${b",
	} {
		if _, err := Preprocess(src); !errors.Is(err, ErrUnterminated) {
			t.Errorf("Preprocess(%q) error = %v, want ErrUnterminated", src, err)
		}
	}
}

func TestFindAllBounded(t *testing.T) {
	eval := regexp.MustCompile(`eval`)
	b := Bounds{Left: true, Right: true, Extra: ".$"}

	tests := []struct {
		src  string
		want int
	}{
		{"eval(x)", 1},
		{"myeval(x)", 0},
		{"obj.eval(x)", 0},
		{"$eval(x)", 0},
		{"evaluate(x)", 0},
		{"eval.call(x)", 0},
		{"eval(eval(x))", 2},
		{"window.evalx; eval(y)", 1},
		{"caf\u00e9eval(x)", 0},
		{"eval\u00e9(x)", 0},
		{"\u00e9 eval(x)", 1},
	}
	for _, tt := range tests {
		if got := len(FindAllBounded(eval, tt.src, b)); got != tt.want {
			t.Errorf("FindAllBounded(%q) = %d matches, want %d", tt.src, got, tt.want)
		}
	}
}

func TestFindAllBoundedRetriesInsideRejectedMatch(t *testing.T) {
	re := regexp.MustCompile(`require\s*[(]([^)]*)`)
	src := "x.require(require('inner'))"
	got := FindAllBounded(re, src, Bounds{Left: true, Extra: "."})
	if len(got) != 1 {
		t.Fatalf("expected 1 match, got %d", len(got))
	}
	if arg := src[got[0][2]:got[0][3]]; arg != "'inner'" {
		t.Errorf("captured %q, want %q", arg, "'inner'")
	}
}

func TestMatchBounded(t *testing.T) {
	re := regexp.MustCompile(`new\s*Function`)
	b := Bounds{Left: true, Right: true, Extra: ".$"}
	if !MatchBounded(re, "var f = new Function('a', 'b')", b) {
		t.Error("expected new Function to match")
	}
	if MatchBounded(re, "renew Functions()", b) {
		t.Error("expected bounded identifiers not to match")
	}
}
