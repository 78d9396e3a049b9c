// SPDX-License-Identifier: MPL-2.0

package rewrite

import (
	"sort"
	"strings"
)

type (
	tokenKind uint8

	// token is one lexical token. depth counts the brackets and template
	// substitutions enclosing it; an opening or closing bracket carries the
	// depth outside of itself.
	token struct {
		kind   tokenKind
		text   string
		start  int
		end    int
		depth  int
		nl     bool // a line terminator precedes the token
		native bool // a /* @native */ comment precedes the token
	}

	scanner struct {
		src    string
		pos    int
		stack  []byte
		toks   []token
		nl     bool
		native bool
	}
)

const (
	tokIdent tokenKind = iota + 1
	tokNumber
	tokString
	tokTemplate
	tokRegex
	tokPunct
	tokPrivate
)

const nativeMarker = "@native"

// punctuators sorted longest first so the first prefix match wins.
var punctuators = []string{
	">>>=",
	"...", "===", "!==", "**=", "<<=", ">>=", ">>>", "&&=", "||=", "??=",
	"=>", "==", "!=", "<=", ">=", "&&", "||", "??", "?.", "++", "--",
	"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "**", "<<", ">>",
}

var regexKeywords = map[string]bool{
	"return": true, "typeof": true, "instanceof": true, "in": true, "of": true,
	"new": true, "delete": true, "void": true, "throw": true, "case": true,
	"do": true, "else": true, "yield": true, "await": true, "export": true,
	"default": true, "extends": true,
}

// scan tokenizes JavaScript source. It never fails: malformed input ends the
// token stream early and esbuild reports the real syntax error later.
func scan(src string) []token {
	s := &scanner{src: src}
	if strings.HasPrefix(src, "#!") {
		s.skipLine()
	}
	for s.next() {
	}
	return s.toks
}

func (s *scanner) next() bool {
	s.skipTrivia()
	if s.pos >= len(s.src) {
		return false
	}

	c := s.src[s.pos]
	switch {
	case isIdentStart(c):
		s.emit(tokIdent, s.pos, s.scanIdent(s.pos))
	case c == '#' && s.pos+1 < len(s.src) && isIdentStart(s.src[s.pos+1]):
		s.emit(tokPrivate, s.pos, s.scanIdent(s.pos+1))
	case isDigit(c) || (c == '.' && s.pos+1 < len(s.src) && isDigit(s.src[s.pos+1])):
		s.emit(tokNumber, s.pos, s.scanNumber(s.pos))
	case c == '"' || c == '\'':
		end, ok := s.scanString(s.pos, c)
		if !ok {
			return false
		}
		s.emit(tokString, s.pos, end)
	case c == '`':
		return s.scanTemplate(s.pos, s.pos+1)
	case c == '/' && s.regexAllowed():
		end, ok := s.scanRegex(s.pos)
		if !ok {
			s.emitPunct(s.pos, s.pos+1)
			return true
		}
		s.emit(tokRegex, s.pos, end)
	case c == '}' && len(s.stack) > 0 && s.stack[len(s.stack)-1] == '$':
		s.stack = s.stack[:len(s.stack)-1]
		return s.scanTemplate(s.pos, s.pos+1)
	default:
		s.emitPunct(s.pos, s.pos+s.punctLen())
	}
	return true
}

func (s *scanner) emit(kind tokenKind, start, end int) {
	s.toks = append(s.toks, token{
		kind:   kind,
		text:   s.src[start:end],
		start:  start,
		end:    end,
		depth:  len(s.stack),
		nl:     s.nl,
		native: s.native,
	})
	s.nl, s.native = false, false
	s.pos = end
}

func (s *scanner) emitPunct(start, end int) {
	switch s.src[start] {
	case '(', '[', '{':
		if end == start+1 {
			s.emit(tokPunct, start, end)
			s.stack = append(s.stack, s.src[start])
			return
		}
	case ')', ']', '}':
		if end == start+1 && len(s.stack) > 0 {
			s.stack = s.stack[:len(s.stack)-1]
		}
	}
	s.emit(tokPunct, start, end)
}

func (s *scanner) punctLen() int {
	rest := s.src[s.pos:]
	for _, p := range punctuators {
		if strings.HasPrefix(rest, p) {
			// "?." followed by a digit is a conditional and a number.
			if p == "?." && len(rest) > 2 && isDigit(rest[2]) {
				continue
			}
			return len(p)
		}
	}
	return 1
}

func (s *scanner) skipTrivia() {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '\n' || c == '\r':
			s.nl = true
			s.pos++
		case c == ' ' || c == '\t' || c == '\v' || c == '\f':
			s.pos++
		case c == '/' && s.pos+1 < len(s.src) && s.src[s.pos+1] == '/':
			s.skipLine()
		case c == '/' && s.pos+1 < len(s.src) && s.src[s.pos+1] == '*':
			end := strings.Index(s.src[s.pos+2:], "*/")
			if end < 0 {
				s.pos = len(s.src)
				return
			}
			body := s.src[s.pos+2 : s.pos+2+end]
			if strings.Contains(body, nativeMarker) {
				s.native = true
			}
			if strings.ContainsAny(body, "\n\r") {
				s.nl = true
			}
			s.pos += end + 4
		default:
			if c >= 0x80 && s.skipUnicodeSpace() {
				continue
			}
			return
		}
	}
}

// skipUnicodeSpace consumes NBSP, BOM and the line/paragraph separators.
func (s *scanner) skipUnicodeSpace() bool {
	rest := s.src[s.pos:]
	for _, sp := range []string{"\u00a0", "\ufeff"} {
		if strings.HasPrefix(rest, sp) {
			s.pos += len(sp)
			return true
		}
	}
	for _, sp := range []string{"\u2028", "\u2029"} {
		if strings.HasPrefix(rest, sp) {
			s.pos += len(sp)
			s.nl = true
			return true
		}
	}
	return false
}

func (s *scanner) skipLine() {
	end := strings.IndexAny(s.src[s.pos:], "\n\r")
	if end < 0 {
		s.pos = len(s.src)
		return
	}
	s.pos += end
}

func (s *scanner) scanIdent(i int) int {
	for i < len(s.src) && isIdentPart(s.src[i]) {
		i++
	}
	return i
}

func (s *scanner) scanNumber(i int) int {
	start := i
	for i < len(s.src) {
		c := s.src[i]
		if isIdentPart(c) || c == '.' {
			i++
			continue
		}
		if (c == '+' || c == '-') && (s.src[i-1] == 'e' || s.src[i-1] == 'E') && !isHexLiteral(s.src[start:i]) {
			i++
			continue
		}
		break
	}
	return i
}

func (s *scanner) scanString(i int, quote byte) (int, bool) {
	for i++; i < len(s.src); i++ {
		switch s.src[i] {
		case '\\':
			i++
		case quote:
			return i + 1, true
		case '\n', '\r':
			return i, false
		}
	}
	return i, false
}

// scanTemplate emits one template chunk starting at start, with the body
// scanned from i. A "${" opens a substitution tracked on the bracket stack.
func (s *scanner) scanTemplate(start, i int) bool {
	for ; i < len(s.src); i++ {
		switch s.src[i] {
		case '\\':
			i++
		case '`':
			s.emit(tokTemplate, start, i+1)
			return true
		case '$':
			if i+1 < len(s.src) && s.src[i+1] == '{' {
				s.emit(tokTemplate, start, i+2)
				s.stack = append(s.stack, '$')
				return true
			}
		}
	}
	return false
}

func (s *scanner) scanRegex(i int) (int, bool) {
	inClass := false
	for i++; i < len(s.src); i++ {
		switch s.src[i] {
		case '\\':
			i++
		case '[':
			inClass = true
		case ']':
			inClass = false
		case '/':
			if !inClass {
				return s.scanIdent(i + 1), true
			}
		case '\n', '\r':
			return i, false
		}
	}
	return i, false
}

func (s *scanner) regexAllowed() bool {
	if len(s.toks) == 0 {
		return true
	}
	prev := s.toks[len(s.toks)-1]
	switch prev.kind {
	case tokIdent:
		return regexKeywords[prev.text]
	case tokPunct:
		switch prev.text {
		case ")", "]", "++", "--":
			return false
		}
		return true
	case tokTemplate:
		// A template head or middle ends in "${".
		return strings.HasSuffix(prev.text, "${")
	}
	return false
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func isHexLiteral(s string) bool {
	return len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// lineIndex converts byte offsets into 1-based line and column numbers.
type lineIndex []int

func newLineIndex(src string) lineIndex {
	idx := lineIndex{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			idx = append(idx, i+1)
		}
	}
	return idx
}

func (li lineIndex) position(offset int) (line, col int) {
	n := sort.Search(len(li), func(i int) bool { return li[i] > offset })
	return n, offset - li[n-1] + 1
}
