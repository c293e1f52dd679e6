package numeric

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokComma
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of expression"
	case tokNumber:
		return "number"
	case tokIdent:
		return "identifier"
	case tokOp:
		return "operator"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokComma:
		return "','"
	}
	return "token"
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// SyntaxError is a malformed expression. Pos is a byte offset.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string { return fmt.Sprintf("%s (at position %d)", e.Msg, e.Pos) }

func syntaxErrorf(pos int, format string, args ...any) error {
	return &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// tokenize splits src into tokens. "mod" is reported as an operator and the
// degree sign as the identifier "deg".
func tokenize(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		r, size := utf8.DecodeRuneInString(src[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case r >= '0' && r <= '9' || r == '.':
			n, err := scanNumber(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokNumber, text: src[i:n], pos: i})
			i = n
		case r == '°':
			toks = append(toks, token{kind: tokIdent, text: "deg", pos: i})
			i += size
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(src) {
				r, size = utf8.DecodeRuneInString(src[i:])
				if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
					break
				}
				i += size
			}
			word := src[start:i]
			if word == "mod" {
				toks = append(toks, token{kind: tokOp, text: word, pos: start})
			} else {
				toks = append(toks, token{kind: tokIdent, text: word, pos: start})
			}
		case strings.ContainsRune("+-*/^%!", r):
			toks = append(toks, token{kind: tokOp, text: string(r), pos: i})
			i += size
		case r == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i += size
		case r == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i += size
		case r == ',':
			toks = append(toks, token{kind: tokComma, text: ",", pos: i})
			i += size
		default:
			return nil, syntaxErrorf(i, "unexpected character %q", r)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}

// scanNumber returns the end offset of the number literal starting at i:
// digits, an optional fraction and an optional exponent. An "e" not
// followed by digits is left for the constant e, so "2e" is 2·e.
func scanNumber(src string, i int) (int, error) {
	start := i
	digits := 0
	for i < len(src) && isDigit(src[i]) {
		i++
		digits++
	}
	if i < len(src) && src[i] == '.' {
		i++
		for i < len(src) && isDigit(src[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0, syntaxErrorf(start, "malformed number %q", src[start:i])
	}
	if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
		j := i + 1
		if j < len(src) && (src[j] == '+' || src[j] == '-') {
			j++
		}
		if j < len(src) && isDigit(src[j]) {
			for j < len(src) && isDigit(src[j]) {
				j++
			}
			i = j
		}
	}
	if i < len(src) && src[i] == '.' {
		return 0, syntaxErrorf(i, "malformed number %q", src[start:i+1])
	}
	return i, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
