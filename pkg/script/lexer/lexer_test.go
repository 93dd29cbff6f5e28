package lexer

import (
	"testing"

	"github.com/vango-dev/smarthttp/internal/errors"
)

func types(tokens []Token) []TokenType {
	out := make([]TokenType, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Type
	}
	return out
}

func equalTypes(a, b []TokenType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestTokenize_TextOnly(t *testing.T) {
	tokens, err := Tokenize("t", `Hello \{$ and \\ world`)
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("len(tokens) = %d, want 2", len(tokens))
	}
	if tokens[0].Type != Text {
		t.Errorf("tokens[0].Type = %v, want TEXT", tokens[0].Type)
	}
	want := `Hello {$ and \ world`
	if tokens[0].Value != want {
		t.Errorf("text = %q, want %q", tokens[0].Value, want)
	}
}

func TestTokenize_Tags(t *testing.T) {
	src := `A{$ for i 1 10 2 $}x{$= i "s" @sin + $}{$ End $}B`
	tokens, err := Tokenize("t", src)
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	want := []TokenType{
		Text,
		TagOpen, For, Ident, Integer, Integer, Integer, TagClose,
		Text,
		TagOpen, Echo, Ident, String, Function, Operator, TagClose,
		TagOpen, End, TagClose,
		Text,
		EOF,
	}
	if got := types(tokens); !equalTypes(got, want) {
		t.Fatalf("types = %v, want %v", got, want)
	}
	if tokens[3].Value != "i" {
		t.Errorf("loop var = %q, want %q", tokens[3].Value, "i")
	}
	if tokens[13].Value != "sin" {
		t.Errorf("function = %q, want %q", tokens[13].Value, "sin")
	}
}

func TestTokenize_Numbers(t *testing.T) {
	tests := []struct {
		src   string
		typ   TokenType
		int   int64
		float float64
	}{
		{"42", Integer, 42, 0},
		{"-7", Integer, -7, 0},
		{"3.14", Float, 0, 3.14},
		{"-0.5", Float, 0, -0.5},
		{"007", Integer, 7, 0},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			tokens, err := Tokenize("t", "{$= "+tt.src+" $}")
			if err != nil {
				t.Fatalf("Tokenize failed: %v", err)
			}
			tok := tokens[2]
			if tok.Type != tt.typ {
				t.Fatalf("Type = %v, want %v", tok.Type, tt.typ)
			}
			if tt.typ == Integer && tok.Int != tt.int {
				t.Errorf("Int = %d, want %d", tok.Int, tt.int)
			}
			if tt.typ == Float && tok.Float != tt.float {
				t.Errorf("Float = %g, want %g", tok.Float, tt.float)
			}
		})
	}
}

func TestTokenize_MinusOperator(t *testing.T) {
	tokens, err := Tokenize("t", "{$= 5 3 - $}")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	want := []TokenType{TagOpen, Echo, Integer, Integer, Operator, TagClose, EOF}
	if got := types(tokens); !equalTypes(got, want) {
		t.Fatalf("types = %v, want %v", got, want)
	}
}

func TestTokenize_StringEscapes(t *testing.T) {
	tokens, err := Tokenize("t", `{$= "a\"b\\c\nd" $}`)
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	want := "a\"b\\c\nd"
	if tokens[2].Value != want {
		t.Errorf("string = %q, want %q", tokens[2].Value, want)
	}
}

func TestTokenize_Positions(t *testing.T) {
	tokens, err := Tokenize("t", "ab\n{$= x $}")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	open := tokens[1]
	if open.Pos != (Position{Line: 2, Column: 1}) {
		t.Errorf("TagOpen pos = %v, want 2:1", open.Pos)
	}
	ident := tokens[3]
	if ident.Pos != (Position{Line: 2, Column: 5}) {
		t.Errorf("Ident pos = %v, want 2:5", ident.Pos)
	}
}

func TestTokenize_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
	}{
		{"bad text escape", `abc \n`, "E101"},
		{"trailing backslash", `abc \`, "E101"},
		{"bad string escape", `{$= "a\q" $}`, "E102"},
		{"two dots", `{$= 1.2.3 $}`, "E103"},
		{"dangling dot", `{$= 1. $}`, "E103"},
		{"unterminated string", `{$= "abc $}`, "E104"},
		{"unclosed tag", `hello {$= 1 2 +`, "E105"},
		{"unexpected character", `{$= 1 % 2 $}`, "E100"},
		{"bare at", `{$= @ $}`, "E100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Tokenize("t.smscr", tt.src)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Code(err); got != tt.code {
				t.Errorf("Code = %q, want %q (%v)", got, tt.code, err)
			}
		})
	}
}

func TestTokenize_ErrorLocation(t *testing.T) {
	_, err := Tokenize("page.smscr", "line one\n{$= 1 % $}")
	if err == nil {
		t.Fatal("expected error")
	}
	var e *errors.Error
	if !asError(err, &e) {
		t.Fatalf("error type = %T, want *errors.Error", err)
	}
	if e.Location == nil || e.Location.Line != 2 || e.Location.Column != 7 {
		t.Errorf("Location = %v, want page.smscr:2:7", e.Location)
	}
}

func TestNext_AfterEOF(t *testing.T) {
	l := New("t", "")
	for i := 0; i < 3; i++ {
		tok, err := l.Next()
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if tok.Type != EOF {
			t.Errorf("Next() = %v, want EOF", tok)
		}
	}
}

func asError(err error, target **errors.Error) bool {
	e, ok := err.(*errors.Error)
	if ok {
		*target = e
	}
	return ok
}
