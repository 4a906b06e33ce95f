package jslex

import "regexp"

// Bounds describes which characters may not touch a match. Word
// characters are always identifier characters; Extra adds punctuation such
// as "." or "$" so that `x.eval` or `$eval` are not taken for `eval`.
type Bounds struct {
	Left  bool
	Right bool
	Extra string
}

// isIdent treats every non-ASCII byte as part of an identifier, as the
// lexer does, so a match never starts or ends inside a multi-byte letter.
func (b Bounds) isIdent(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c >= 0x80:
		return true
	}
	for i := 0; i < len(b.Extra); i++ {
		if b.Extra[i] == c {
			return true
		}
	}
	return false
}

func (b Bounds) accepts(src string, start, end int) bool {
	if b.Left && start > 0 && b.isIdent(src[start-1]) {
		return false
	}
	if b.Right && end < len(src) && b.isIdent(src[end]) {
		return false
	}
	return true
}

// FindAllBounded returns the submatch indices of every match of re in src
// that satisfies b. A rejected candidate does not consume input: scanning
// resumes one byte after its start, the way a look-behind assertion would.
// re must not use ^ or \A anchors since matching restarts mid-string.
func FindAllBounded(re *regexp.Regexp, src string, b Bounds) [][]int {
	var out [][]int
	pos := 0
	for pos <= len(src) {
		loc := re.FindStringSubmatchIndex(src[pos:])
		if loc == nil {
			break
		}
		for i := range loc {
			if loc[i] >= 0 {
				loc[i] += pos
			}
		}
		if !b.accepts(src, loc[0], loc[1]) {
			pos = loc[0] + 1
			continue
		}
		out = append(out, loc)
		if loc[1] == loc[0] {
			pos = loc[1] + 1
		} else {
			pos = loc[1]
		}
	}
	return out
}

// MatchBounded reports whether re matches somewhere in src within b.
func MatchBounded(re *regexp.Regexp, src string, b Bounds) bool {
	pos := 0
	for pos <= len(src) {
		loc := re.FindStringIndex(src[pos:])
		if loc == nil {
			return false
		}
		if b.accepts(src, loc[0]+pos, loc[1]+pos) {
			return true
		}
		pos += loc[0] + 1
	}
	return false
}
