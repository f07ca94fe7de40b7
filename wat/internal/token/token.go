package token

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

type Type int

const (
	LParen Type = iota
	RParen
	Keyword // keywords, instruction names and offset=/align= forms
	ID      // $name
	String
	Number
	Annotation // "(@name" opener
)

func (t Type) String() string {
	switch t {
	case LParen:
		return "'('"
	case RParen:
		return "')'"
	case Keyword:
		return "keyword"
	case ID:
		return "identifier"
	case String:
		return "string"
	case Number:
		return "number"
	case Annotation:
		return "annotation"
	}
	return "unknown"
}

// Pos is a 1-based source location. Col counts runes.
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Error is a located diagnostic.
type Error struct {
	Msg string
	Pos Pos
}

func (e *Error) Error() string {
	return e.Pos.String() + ": " + e.Msg
}

// Errorf creates a located diagnostic.
func Errorf(pos Pos, format string, args ...any) *Error {
	return &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// Token is a lexical token. For String tokens Value holds the decoded bytes.
type Token struct {
	Value string
	Type  Type
	Pos   Pos
}

type lexer struct {
	src  string
	i    int
	line int
	col  int
}

func (l *lexer) pos() Pos { return Pos{Line: l.line, Col: l.col} }

func (l *lexer) peekAt(off int) byte {
	if l.i+off < len(l.src) {
		return l.src[l.i+off]
	}
	return 0
}

func (l *lexer) advance() {
	if l.i >= len(l.src) {
		return
	}
	c := l.src[l.i]
	l.i++
	switch {
	case c == '\n':
		l.line++
		l.col = 1
	case c < utf8.RuneSelf || c >= 0xC0:
		// count the first byte of each rune
		l.col++
	}
}

// Tokenize splits source into tokens, skipping whitespace and comments.
func Tokenize(src string) ([]Token, error) {
	l := &lexer{src: src, line: 1, col: 1}
	var tokens []Token

	for l.i < len(l.src) {
		c := l.src[l.i]
		start := l.pos()

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.advance()

		case c == ';' && l.peekAt(1) == ';':
			for l.i < len(l.src) && l.src[l.i] != '\n' {
				l.advance()
			}

		case c == '(' && l.peekAt(1) == ';':
			if err := l.blockComment(); err != nil {
				return nil, err
			}

		case c == '(' && l.peekAt(1) == '@':
			l.advance()
			l.advance()
			name := l.idchars()
			if name == "" {
				return nil, Errorf(start, "empty annotation name")
			}
			tokens = append(tokens, Token{Value: name, Type: Annotation, Pos: start})

		case c == '(':
			l.advance()
			tokens = append(tokens, Token{Value: "(", Type: LParen, Pos: start})

		case c == ')':
			l.advance()
			tokens = append(tokens, Token{Value: ")", Type: RParen, Pos: start})

		case c == '"':
			s, err := l.string()
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, Token{Value: s, Type: String, Pos: start})

		case c == '$':
			l.advance()
			name := l.idchars()
			if name == "" {
				return nil, Errorf(start, "empty identifier")
			}
			tokens = append(tokens, Token{Value: "$" + name, Type: ID, Pos: start})

		case isIDChar(c):
			word := l.idchars()
			typ := Keyword
			if isNumberStart(word) {
				typ = Number
			}
			tokens = append(tokens, Token{Value: word, Type: typ, Pos: start})

		default:
			r, _ := utf8.DecodeRuneInString(l.src[l.i:])
			return nil, Errorf(start, "unexpected character %q", r)
		}
	}
	return tokens, nil
}

func (l *lexer) blockComment() error {
	start := l.pos()
	depth := 0
	for l.i < len(l.src) {
		switch {
		case l.src[l.i] == '(' && l.peekAt(1) == ';':
			depth++
			l.advance()
			l.advance()
		case l.src[l.i] == ';' && l.peekAt(1) == ')':
			depth--
			l.advance()
			l.advance()
			if depth == 0 {
				return nil
			}
		default:
			l.advance()
		}
	}
	return Errorf(start, "unterminated block comment")
}

func (l *lexer) idchars() string {
	start := l.i
	for l.i < len(l.src) && isIDChar(l.src[l.i]) {
		l.advance()
	}
	return l.src[start:l.i]
}

func (l *lexer) string() (string, error) {
	start := l.pos()
	l.advance() // opening quote
	var b strings.Builder
	for {
		if l.i >= len(l.src) {
			return "", Errorf(start, "unterminated string")
		}
		c := l.src[l.i]
		switch {
		case c == '"':
			l.advance()
			return b.String(), nil
		case c == '\n':
			return "", Errorf(l.pos(), "newline in string")
		case c == '\\':
			escPos := l.pos()
			l.advance()
			if err := l.escape(&b, escPos); err != nil {
				return "", err
			}
		default:
			b.WriteByte(c)
			l.advance()
		}
	}
}

func (l *lexer) escape(b *strings.Builder, pos Pos) error {
	if l.i >= len(l.src) {
		return Errorf(pos, "unterminated escape")
	}
	c := l.src[l.i]
	switch c {
	case 't':
		b.WriteByte('\t')
	case 'n':
		b.WriteByte('\n')
	case 'r':
		b.WriteByte('\r')
	case '"', '\'', '\\':
		b.WriteByte(c)
	case 'u':
		l.advance()
		if l.peekAt(0) != '{' {
			return Errorf(pos, "expected '{' in unicode escape")
		}
		l.advance()
		startIdx := l.i
		for l.i < len(l.src) && l.src[l.i] != '}' {
			l.advance()
		}
		if l.i >= len(l.src) {
			return Errorf(pos, "unterminated unicode escape")
		}
		v, err := strconv.ParseUint(strings.ReplaceAll(l.src[startIdx:l.i], "_", ""), 16, 32)
		if err != nil || v > utf8.MaxRune || (v >= 0xD800 && v < 0xE000) {
			return Errorf(pos, "invalid unicode escape")
		}
		b.WriteRune(rune(v))
	default:
		if isHex(c) && isHex(l.peekAt(1)) {
			v, _ := strconv.ParseUint(l.src[l.i:l.i+2], 16, 8)
			b.WriteByte(byte(v))
			l.advance()
		} else {
			return Errorf(pos, "invalid escape %q", c)
		}
	}
	l.advance()
	return nil
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// isIDChar reports whether c may appear in keywords, numbers and identifiers.
func isIDChar(c byte) bool {
	if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
		return true
	}
	return strings.IndexByte("!#$%&'*+-./:<=>?@\\^_`|~", c) >= 0
}

func isNumberStart(word string) bool {
	s := word
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		s = s[1:]
	}
	if len(s) == 0 {
		return false
	}
	if s[0] >= '0' && s[0] <= '9' {
		return true
	}
	return s == "inf" || s == "nan" || strings.HasPrefix(s, "nan:0x")
}
