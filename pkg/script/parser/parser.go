// Package parser builds an immutable node tree from smart script source.
//
// Parsing is a single forward pass over the lexer's tokens. FOR tags open a
// scope that END closes; echo tags collect their elements without checking
// operand counts, which is left to execution.
package parser

import (
	"github.com/vango-dev/smarthttp/internal/errors"
	"github.com/vango-dev/smarthttp/pkg/script/lexer"
)

// Parser converts tokens into a DocumentNode.
type Parser struct {
	name   string
	source string
	lex    *lexer.Lexer
}

// New creates a parser for src. The name is used in error locations.
func New(name, src string) *Parser {
	return &Parser{
		name:   name,
		source: src,
		lex:    lexer.New(name, src),
	}
}

// Parse lexes and parses src in one call.
func Parse(name, src string) (*DocumentNode, error) {
	return New(name, src).Parse()
}

// Parse runs the parser to completion.
func (p *Parser) Parse() (*DocumentNode, error) {
	doc := &DocumentNode{Name: p.name}
	var open []*ForLoopNode

	appendNode := func(n Node) {
		if len(open) > 0 {
			top := open[len(open)-1]
			top.Children = append(top.Children, n)
			return
		}
		doc.Children = append(doc.Children, n)
	}

	for {
		tok, err := p.lex.Next()
		if err != nil {
			return nil, err
		}

		switch tok.Type {
		case lexer.EOF:
			if len(open) > 0 {
				top := open[len(open)-1]
				return nil, p.fail("E111", top.Pos).WithDetailf("FOR %s", top.Variable)
			}
			return doc, nil

		case lexer.Text:
			appendNode(&TextNode{Text: tok.Value, Pos: tok.Pos})

		case lexer.TagOpen:
			name, err := p.lex.Next()
			if err != nil {
				return nil, err
			}
			switch name.Type {
			case lexer.TagClose:
				return nil, p.fail("E114", tok.Pos)

			case lexer.For:
				loop, err := p.parseFor(tok.Pos)
				if err != nil {
					return nil, err
				}
				appendNode(loop)
				open = append(open, loop)

			case lexer.End:
				next, err := p.lex.Next()
				if err != nil {
					return nil, err
				}
				if next.Type != lexer.TagClose {
					return nil, p.fail("E115", next.Pos).WithDetail(next.String())
				}
				if len(open) == 0 {
					return nil, p.fail("E110", tok.Pos)
				}
				open = open[:len(open)-1]

			case lexer.Echo:
				echo, err := p.parseEcho(tok.Pos)
				if err != nil {
					return nil, err
				}
				appendNode(echo)

			default:
				return nil, p.fail("E113", name.Pos).WithDetail(name.String())
			}
		}
	}
}

func (p *Parser) parseFor(pos lexer.Position) (*ForLoopNode, error) {
	var args []lexer.Token
	for {
		tok, err := p.lex.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == lexer.TagClose {
			break
		}
		args = append(args, tok)
	}

	if len(args) != 3 && len(args) != 4 {
		return nil, p.fail("E112", pos).WithDetailf("expected 3 or 4 arguments, got %d", len(args))
	}
	if args[0].Type != lexer.Ident {
		return nil, p.fail("E112", args[0].Pos).WithDetailf("loop variable must be a name, got %s", args[0])
	}

	bounds := make([]Element, 0, 3)
	for _, tok := range args[1:] {
		el, ok := boundElement(tok)
		if !ok {
			return nil, p.fail("E112", tok.Pos).WithDetailf("invalid loop bound %s", tok)
		}
		bounds = append(bounds, el)
	}

	loop := &ForLoopNode{
		Variable: args[0].Value,
		Start:    bounds[0],
		End:      bounds[1],
		Pos:      pos,
	}
	if len(bounds) == 3 {
		loop.Step = bounds[2]
	}
	return loop, nil
}

func boundElement(tok lexer.Token) (Element, bool) {
	switch tok.Type {
	case lexer.Integer:
		return ElementInt{Value: tok.Int}, true
	case lexer.Float:
		return ElementFloat{Value: tok.Float}, true
	case lexer.String:
		return ElementString{Value: tok.Value}, true
	case lexer.Ident:
		return ElementVariable{Name: tok.Value}, true
	}
	return nil, false
}

func (p *Parser) parseEcho(pos lexer.Position) (*EchoNode, error) {
	echo := &EchoNode{Pos: pos}
	for {
		tok, err := p.lex.Next()
		if err != nil {
			return nil, err
		}
		switch tok.Type {
		case lexer.TagClose:
			return echo, nil
		case lexer.Operator:
			echo.Elements = append(echo.Elements, ElementOperator{Symbol: tok.Value})
		case lexer.Function:
			echo.Elements = append(echo.Elements, ElementFunction{Name: tok.Value})
		case lexer.For, lexer.End:
			// keywords are plain names inside an echo
			echo.Elements = append(echo.Elements, ElementVariable{Name: tok.Value})
		default:
			el, ok := boundElement(tok)
			if !ok {
				return nil, p.fail("E100", tok.Pos).WithDetail(tok.String())
			}
			echo.Elements = append(echo.Elements, el)
		}
	}
}

func (p *Parser) fail(code string, pos lexer.Position) *errors.Error {
	return errors.New(code).WithPosition(p.name, pos.Line, pos.Column).WithSource(p.source)
}
