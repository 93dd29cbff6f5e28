package lexer

import "fmt"

// TokenType identifies the kind of a token.
type TokenType int

const (
	// EOF marks the end of input.
	EOF TokenType = iota
	// Text is a run of literal template text with escapes resolved.
	Text
	// TagOpen is the "{$" marker.
	TagOpen
	// TagClose is the "$}" marker.
	TagClose
	// Echo is the "=" tag name.
	Echo
	// For is the FOR keyword.
	For
	// End is the END keyword.
	End
	// Ident is a variable name.
	Ident
	// Integer is an integer literal; Token.Int holds its value.
	Integer
	// Float is a floating literal; Token.Float holds its value.
	Float
	// String is a quoted string literal with escapes resolved.
	String
	// Operator is one of + - * /.
	Operator
	// Function is an @-prefixed function name; Value excludes the "@".
	Function
)

var tokenNames = map[TokenType]string{
	EOF:      "EOF",
	Text:     "TEXT",
	TagOpen:  "TAG_OPEN",
	TagClose: "TAG_CLOSE",
	Echo:     "ECHO",
	For:      "FOR",
	End:      "END",
	Ident:    "IDENT",
	Integer:  "INTEGER",
	Float:    "FLOAT",
	String:   "STRING",
	Operator: "OPERATOR",
	Function: "FUNCTION",
}

// String returns the token type name.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Position is a 1-based line/column location in the source.
type Position struct {
	Line   int
	Column int
}

// String returns "line:column".
func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token is a single lexical unit.
type Token struct {
	Type  TokenType
	Value string
	Int   int64
	Float float64
	Pos   Position
}

// String returns a debug representation of the token.
func (t Token) String() string {
	switch t.Type {
	case EOF, TagOpen, TagClose, Echo:
		return t.Type.String()
	case Integer:
		return fmt.Sprintf("%s(%d)", t.Type, t.Int)
	case Float:
		return fmt.Sprintf("%s(%g)", t.Type, t.Float)
	default:
		return fmt.Sprintf("%s(%q)", t.Type, t.Value)
	}
}
