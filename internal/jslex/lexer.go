// Package jslex canonicalizes JavaScript source so that textual patterns
// only match code, not comments or literal text.
package jslex

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnterminated is returned when a comment, string or template literal
// runs off the end of the input.
var ErrUnterminated = errors.New("unterminated token")

// keywords after which a slash starts a regular expression literal.
var regexKeywords = map[string]bool{
	"return": true, "typeof": true, "instanceof": true, "in": true, "of": true,
	"new": true, "delete": true, "void": true, "throw": true, "case": true,
	"do": true, "else": true, "yield": true, "await": true,
}

type lexer struct {
	src   string
	pos   int
	out   strings.Builder
	regex bool // whether a '/' at this point starts a regex literal
	// braces holds, for each open template substitution, the depth of
	// plain braces opened inside it.
	braces []int
}

// Preprocess replaces every comment with a single space (followed by the
// line breaks a block comment spanned) and upper-cases
// the contents of string, template and regular expression literals, so
// that lower-case keywords and identifiers can be told apart from similar
// text inside literals.
func Preprocess(src string) (string, error) {
	l := &lexer{src: src, regex: true}
	l.out.Grow(len(src))
	if err := l.run(); err != nil {
		return "", err
	}
	return l.out.String(), nil
}

func (l *lexer) run() error {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '/' && l.peek(1) == '/':
			l.lineComment()
		case c == '/' && l.peek(1) == '*':
			if err := l.blockComment(); err != nil {
				return err
			}
		case c == '\'' || c == '"':
			if err := l.str(c); err != nil {
				return err
			}
			l.regex = false
		case c == '`':
			l.out.WriteByte(c)
			l.pos++
			if err := l.template(); err != nil {
				return err
			}
		case c == '/' && l.regex:
			if !l.regexLiteral() {
				l.punct(c)
			}
		case c == '{':
			if n := len(l.braces); n > 0 {
				l.braces[n-1]++
			}
			l.punct(c)
		case c == '}':
			if n := len(l.braces); n > 0 {
				if l.braces[n-1] == 0 {
					// End of a ${...} substitution: resume the template.
					l.braces = l.braces[:n-1]
					l.out.WriteByte(c)
					l.pos++
					if err := l.template(); err != nil {
						return err
					}
					continue
				}
				l.braces[n-1]--
			}
			l.out.WriteByte(c)
			l.pos++
			l.regex = false
		case isSpace(c):
			l.out.WriteByte(c)
			l.pos++
		case isWordByte(c):
			l.word()
		case c == ')' || c == ']':
			l.out.WriteByte(c)
			l.pos++
			l.regex = false
		default:
			l.punct(c)
		}
	}
	if len(l.braces) > 0 {
		return fmt.Errorf("%w: template substitution", ErrUnterminated)
	}
	return nil
}

func (l *lexer) peek(n int) byte {
	if l.pos+n < len(l.src) {
		return l.src[l.pos+n]
	}
	return 0
}

func (l *lexer) punct(c byte) {
	l.out.WriteByte(c)
	l.pos++
	l.regex = true
}

func (l *lexer) word() {
	start := l.pos
	for l.pos < len(l.src) && isWordByte(l.src[l.pos]) {
		l.pos++
	}
	w := l.src[start:l.pos]
	l.out.WriteString(w)
	l.regex = regexKeywords[w]
}

func (l *lexer) lineComment() {
	for l.pos < len(l.src) && l.src[l.pos] != '\n' && l.src[l.pos] != '\r' {
		l.pos++
	}
	l.out.WriteByte(' ')
}

func (l *lexer) blockComment() error {
	end := strings.Index(l.src[l.pos+2:], "*/")
	if end < 0 {
		return fmt.Errorf("%w: block comment at offset %d", ErrUnterminated, l.pos)
	}
	body := l.src[l.pos : l.pos+2+end+2]
	l.pos += len(body)
	l.out.WriteByte(' ')
	// Keep line breaks so offsets in the output map to the same lines.
	l.out.WriteString(strings.Repeat("\n", strings.Count(body, "\n")))
	return nil
}

func (l *lexer) str(quote byte) error {
	start := l.pos
	l.pos++
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\\':
			// A line continuation may end in CRLF.
			if l.peek(1) == '\r' && l.peek(2) == '\n' {
				l.pos += 3
			} else {
				l.pos += 2
			}
			continue
		case c == quote:
			l.pos++
			l.out.WriteString(strings.ToUpper(l.src[start:l.pos]))
			return nil
		case c == '\n' || c == '\r':
			// A raw line break ends the literal so the rest of the file
			// still lexes.
			l.out.WriteString(strings.ToUpper(l.src[start:l.pos]))
			return nil
		}
		l.pos++
	}
	return fmt.Errorf("%w: string at offset %d", ErrUnterminated, start)
}

// template consumes template text up to the closing backtick or the next
// ${ substitution. The delimiter that opened this chunk has already been
// written.
func (l *lexer) template() error {
	start := l.pos
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\\':
			l.pos += 2
			continue
		case c == '`':
			l.out.WriteString(strings.ToUpper(l.src[start:l.pos]))
			l.out.WriteByte('`')
			l.pos++
			l.regex = false
			return nil
		case c == '$' && l.peek(1) == '{':
			l.out.WriteString(strings.ToUpper(l.src[start:l.pos]))
			l.out.WriteString("${")
			l.pos += 2
			l.braces = append(l.braces, 0)
			l.regex = true
			return nil
		}
		l.pos++
	}
	return fmt.Errorf("%w: template literal at offset %d", ErrUnterminated, start)
}

// regexLiteral consumes /body/flags. It reports false, consuming nothing,
// when no closing slash appears before the end of the line.
func (l *lexer) regexLiteral() bool {
	i := l.pos + 1
	inClass := false
	for i < len(l.src) {
		c := l.src[i]
		switch {
		case c == '\n' || c == '\r':
			return false
		case c == '\\':
			i += 2
			continue
		case c == '[':
			inClass = true
		case c == ']':
			inClass = false
		case c == '/' && !inClass:
			i++
			for i < len(l.src) && isWordByte(l.src[i]) {
				i++
			}
			l.out.WriteString(strings.ToUpper(l.src[l.pos:i]))
			l.pos = i
			l.regex = false
			return true
		}
		i++
	}
	return false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '_' || c == '$' || c >= 0x80
}
