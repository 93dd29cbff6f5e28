// Package lexer turns smart script template source into tokens.
//
// The lexer runs in two modes. Outside tags it produces Text tokens until
// it reaches "{$"; inside a tag it produces identifiers, keywords, numbers,
// strings, operators and function names until "$}".
package lexer

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/vango-dev/smarthttp/internal/errors"
)

// Lexer produces tokens one at a time from template source.
type Lexer struct {
	name   string
	source string
	src    []rune
	pos    int
	line   int
	col    int

	inTag  bool
	tagPos Position
	done   bool
}

// New creates a lexer over src. The name is used in error locations.
func New(name, src string) *Lexer {
	return &Lexer{
		name:   name,
		source: src,
		src:    []rune(src),
		line:   1,
		col:    1,
	}
}

// InTag reports whether the lexer is currently inside a tag.
func (l *Lexer) InTag() bool {
	return l.inTag
}

// Next returns the next token. After EOF it keeps returning EOF.
func (l *Lexer) Next() (Token, error) {
	if l.done {
		return Token{Type: EOF, Pos: l.position()}, nil
	}
	if l.inTag {
		return l.nextInTag()
	}
	return l.nextText()
}

// Tokenize returns every token of src up to and including EOF.
func Tokenize(name, src string) ([]Token, error) {
	l := New(name, src)
	var tokens []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens, nil
		}
	}
}

func (l *Lexer) position() Position {
	return Position{Line: l.line, Column: l.col}
}

func (l *Lexer) peek(offset int) rune {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	return l.src[l.pos+offset]
}

func (l *Lexer) atEnd() bool {
	return l.pos >= len(l.src)
}

func (l *Lexer) advance() rune {
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *Lexer) fail(code string, at Position) *errors.Error {
	return errors.New(code).WithPosition(l.name, at.Line, at.Column).WithSource(l.source)
}

func (l *Lexer) nextText() (Token, error) {
	start := l.position()
	if l.atEnd() {
		l.done = true
		return Token{Type: EOF, Pos: start}, nil
	}
	if l.peek(0) == '{' && l.peek(1) == '$' {
		l.advance()
		l.advance()
		l.inTag = true
		l.tagPos = start
		return Token{Type: TagOpen, Pos: start}, nil
	}

	var b strings.Builder
	for !l.atEnd() {
		r := l.peek(0)
		if r == '{' && l.peek(1) == '$' {
			break
		}
		if r == '\\' {
			at := l.position()
			l.advance()
			if l.atEnd() {
				return Token{}, l.fail("E101", at).WithDetail("backslash at end of input")
			}
			next := l.peek(0)
			if next != '{' && next != '\\' {
				return Token{}, l.fail("E101", at).WithDetailf(`\%c`, next)
			}
			b.WriteRune(l.advance())
			continue
		}
		b.WriteRune(l.advance())
	}
	return Token{Type: Text, Value: b.String(), Pos: start}, nil
}

func (l *Lexer) nextInTag() (Token, error) {
	for !l.atEnd() && unicode.IsSpace(l.peek(0)) {
		l.advance()
	}
	start := l.position()
	if l.atEnd() {
		return Token{}, l.fail("E105", l.tagPos)
	}

	r := l.peek(0)
	switch {
	case r == '$' && l.peek(1) == '}':
		l.advance()
		l.advance()
		l.inTag = false
		return Token{Type: TagClose, Pos: start}, nil

	case r == '=':
		l.advance()
		return Token{Type: Echo, Value: "=", Pos: start}, nil

	case unicode.IsLetter(r):
		name := l.readIdent()
		switch strings.ToUpper(name) {
		case "FOR":
			return Token{Type: For, Value: name, Pos: start}, nil
		case "END":
			return Token{Type: End, Value: name, Pos: start}, nil
		}
		return Token{Type: Ident, Value: name, Pos: start}, nil

	case isDigit(r) || (r == '-' && isDigit(l.peek(1))):
		return l.readNumber(start)

	case r == '"':
		return l.readString(start)

	case r == '+' || r == '-' || r == '*' || r == '/':
		l.advance()
		return Token{Type: Operator, Value: string(r), Pos: start}, nil

	case r == '@':
		l.advance()
		if !unicode.IsLetter(l.peek(0)) {
			return Token{}, l.fail("E100", start).WithDetail("@ must be followed by a function name")
		}
		return Token{Type: Function, Value: l.readIdent(), Pos: start}, nil
	}

	return Token{}, l.fail("E100", start).WithDetailf("%q", r)
}

func (l *Lexer) readIdent() string {
	var b strings.Builder
	for !l.atEnd() {
		r := l.peek(0)
		if !unicode.IsLetter(r) && !isDigit(r) && r != '_' {
			break
		}
		b.WriteRune(l.advance())
	}
	return b.String()
}

func (l *Lexer) readNumber(start Position) (Token, error) {
	var b strings.Builder
	if l.peek(0) == '-' {
		b.WriteRune(l.advance())
	}
	for !l.atEnd() && (isDigit(l.peek(0)) || l.peek(0) == '.') {
		b.WriteRune(l.advance())
	}
	text := b.String()

	if isFloatLiteral(text) {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Token{}, l.fail("E103", start).WithDetailf("%q", text).Wrap(err)
		}
		return Token{Type: Float, Value: text, Float: f, Pos: start}, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return Token{}, l.fail("E103", start).WithDetailf("%q", text).Wrap(err)
	}
	return Token{Type: Integer, Value: text, Int: n, Pos: start}, nil
}

// isFloatLiteral reports whether text holds exactly one '.' and that '.' is
// followed by a digit.
func isFloatLiteral(text string) bool {
	if strings.Count(text, ".") != 1 {
		return false
	}
	i := strings.IndexByte(text, '.')
	return i+1 < len(text) && text[i+1] >= '0' && text[i+1] <= '9'
}

func (l *Lexer) readString(start Position) (Token, error) {
	l.advance() // opening quote
	var b strings.Builder
	for {
		if l.atEnd() {
			return Token{}, l.fail("E104", start)
		}
		r := l.advance()
		if r == '"' {
			return Token{Type: String, Value: b.String(), Pos: start}, nil
		}
		if r != '\\' {
			b.WriteRune(r)
			continue
		}
		if l.atEnd() {
			return Token{}, l.fail("E104", start)
		}
		at := l.position()
		switch esc := l.advance(); esc {
		case '"', '\\':
			b.WriteRune(esc)
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		default:
			return Token{}, l.fail("E102", at).WithDetailf(`\%c`, esc)
		}
	}
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
