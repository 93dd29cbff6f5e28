package parser

import (
	"strconv"
	"strings"

	"github.com/vango-dev/smarthttp/pkg/script/lexer"
)

// Node is a node of a parsed script. Nodes are not modified after parsing
// and may be executed any number of times, concurrently.
type Node interface {
	// Accept dispatches to the matching Visitor method.
	Accept(v Visitor) error
	// Position returns where the node starts in the source.
	Position() lexer.Position
	// Source renders the node back to template source.
	Source() string
}

// Visitor receives one call per node kind.
type Visitor interface {
	VisitDocument(n *DocumentNode) error
	VisitText(n *TextNode) error
	VisitForLoop(n *ForLoopNode) error
	VisitEcho(n *EchoNode) error
}

// DocumentNode is the root of a parsed script.
type DocumentNode struct {
	Name     string
	Children []Node
}

func (n *DocumentNode) Accept(v Visitor) error   { return v.VisitDocument(n) }
func (n *DocumentNode) Position() lexer.Position { return lexer.Position{Line: 1, Column: 1} }

func (n *DocumentNode) Source() string {
	return childrenSource(n.Children)
}

// TextNode is a run of literal text.
type TextNode struct {
	Text string
	Pos  lexer.Position
}

func (n *TextNode) Accept(v Visitor) error   { return v.VisitText(n) }
func (n *TextNode) Position() lexer.Position { return n.Pos }

// Source escapes backslashes and opening braces.
func (n *TextNode) Source() string {
	var b strings.Builder
	for _, r := range n.Text {
		if r == '\\' || r == '{' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ForLoopNode is a {$FOR var start end [step]$} ... {$END$} block.
// Step is nil when the tag omits it; the loop then steps by one.
type ForLoopNode struct {
	Variable string
	Start    Element
	End      Element
	Step     Element
	Children []Node
	Pos      lexer.Position
}

func (n *ForLoopNode) Accept(v Visitor) error   { return v.VisitForLoop(n) }
func (n *ForLoopNode) Position() lexer.Position { return n.Pos }

func (n *ForLoopNode) Source() string {
	var b strings.Builder
	b.WriteString("{$ FOR ")
	b.WriteString(n.Variable)
	b.WriteByte(' ')
	b.WriteString(n.Start.Source())
	b.WriteByte(' ')
	b.WriteString(n.End.Source())
	if n.Step != nil {
		b.WriteByte(' ')
		b.WriteString(n.Step.Source())
	}
	b.WriteString(" $}")
	b.WriteString(childrenSource(n.Children))
	b.WriteString("{$ END $}")
	return b.String()
}

// EchoNode is a {$= ... $} tag holding a postfix element list.
type EchoNode struct {
	Elements []Element
	Pos      lexer.Position
}

func (n *EchoNode) Accept(v Visitor) error   { return v.VisitEcho(n) }
func (n *EchoNode) Position() lexer.Position { return n.Pos }

func (n *EchoNode) Source() string {
	var b strings.Builder
	b.WriteString("{$=")
	for _, el := range n.Elements {
		b.WriteByte(' ')
		b.WriteString(el.Source())
	}
	b.WriteString(" $}")
	return b.String()
}

func childrenSource(children []Node) string {
	var b strings.Builder
	for _, c := range children {
		b.WriteString(c.Source())
	}
	return b.String()
}

// Element is one item of an echo tag or a FOR bound.
type Element interface {
	Source() string
	element()
}

// ElementInt is an integer literal.
type ElementInt struct{ Value int64 }

// ElementFloat is a floating literal.
type ElementFloat struct{ Value float64 }

// ElementString is a quoted string literal.
type ElementString struct{ Value string }

// ElementVariable references a loop variable by name.
type ElementVariable struct{ Name string }

// ElementOperator is one of + - * /.
type ElementOperator struct{ Symbol string }

// ElementFunction is an @-prefixed function reference.
type ElementFunction struct{ Name string }

func (ElementInt) element()      {}
func (ElementFloat) element()    {}
func (ElementString) element()   {}
func (ElementVariable) element() {}
func (ElementOperator) element() {}
func (ElementFunction) element() {}

func (e ElementInt) Source() string { return strconv.FormatInt(e.Value, 10) }

// Source always includes a decimal point so the literal lexes back as a float.
func (e ElementFloat) Source() string {
	s := strconv.FormatFloat(e.Value, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func (e ElementString) Source() string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range e.Value {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func (e ElementVariable) Source() string { return e.Name }
func (e ElementOperator) Source() string { return e.Symbol }
func (e ElementFunction) Source() string { return "@" + e.Name }
