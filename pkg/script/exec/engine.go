// Package exec runs parsed smart scripts against a request context.
//
// Echo tags are evaluated as postfix expressions over an operand stack:
// literals and variables push, operators pop two values, and functions pop
// their arity and push their results. What remains on the stack is written
// bottom to top. FOR loops bind their variable on a MultiStack so nested
// loops shadow correctly.
package exec

import (
	"context"
	stderrors "errors"

	"github.com/vango-dev/smarthttp/internal/errors"
	"github.com/vango-dev/smarthttp/pkg/httpctx"
	"github.com/vango-dev/smarthttp/pkg/script/lexer"
	"github.com/vango-dev/smarthttp/pkg/script/parser"
)

// BinaryOp combines two operands; a is pushed before b.
type BinaryOp func(a, b Value) (Value, error)

// Function is a named @function. Call receives exactly Arity arguments in
// push order, so the last argument was on top of the stack.
type Function struct {
	Arity int
	Call  func(rc *httpctx.RequestContext, args []Value) ([]Value, error)
}

// DefaultOperators returns a fresh table of the four arithmetic operators.
func DefaultOperators() map[string]BinaryOp {
	ops := make(map[string]BinaryOp, 4)
	for _, sym := range []string{"+", "-", "*", "/"} {
		sym := sym
		ops[sym] = func(a, b Value) (Value, error) { return Arith(sym, a, b) }
	}
	return ops
}

// Engine executes one document against one request context. An Engine is
// used by a single goroutine; the document itself may be shared.
type Engine struct {
	doc       *parser.DocumentNode
	rc        *httpctx.RequestContext
	vars      *MultiStack
	operators map[string]BinaryOp
	functions map[string]Function
	ctx       context.Context
}

// Option configures an Engine.
type Option func(*Engine)

// WithOperator registers or replaces a binary operator.
func WithOperator(symbol string, op BinaryOp) Option {
	return func(e *Engine) {
		e.operators[symbol] = op
	}
}

// WithFunction registers or replaces a function.
func WithFunction(name string, fn Function) Option {
	return func(e *Engine) {
		e.functions[name] = fn
	}
}

// NewEngine creates an engine with the default operators and functions.
func NewEngine(doc *parser.DocumentNode, rc *httpctx.RequestContext, opts ...Option) *Engine {
	e := &Engine{
		doc:       doc,
		rc:        rc,
		vars:      NewMultiStack(),
		operators: DefaultOperators(),
		functions: DefaultFunctions(),
		ctx:       context.Background(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the document. On error the remaining nodes are skipped;
// output already written stays written.
func (e *Engine) Execute(ctx context.Context) error {
	if ctx != nil {
		e.ctx = ctx
	}
	return e.doc.Accept(e)
}

// Vars exposes the variable store, mainly for tests.
func (e *Engine) Vars() *MultiStack {
	return e.vars
}

func (e *Engine) VisitDocument(n *parser.DocumentNode) error {
	return e.children(n.Children)
}

func (e *Engine) VisitText(n *parser.TextNode) error {
	_, err := e.rc.WriteString(n.Text)
	return err
}

func (e *Engine) VisitForLoop(n *parser.ForLoopNode) error {
	start, err := e.resolve(n.Start, n.Pos)
	if err != nil {
		return err
	}
	end, err := e.resolve(n.End, n.Pos)
	if err != nil {
		return err
	}
	step := Int(1)
	if n.Step != nil {
		if step, err = e.resolve(n.Step, n.Pos); err != nil {
			return err
		}
	}
	if c, err := Compare(step, Int(0)); err != nil {
		return e.locate(err, n.Pos)
	} else if c <= 0 {
		return e.locate(errors.New("E209").WithDetail(step.String()), n.Pos)
	}

	e.vars.Push(n.Variable, start)
	defer e.vars.Pop(n.Variable)

	for {
		if err := e.ctx.Err(); err != nil {
			return err
		}
		cur, _ := e.vars.Peek(n.Variable)
		c, err := Compare(cur, end)
		if err != nil {
			return e.locate(err, n.Pos)
		}
		if c > 0 {
			return nil
		}
		if err := e.children(n.Children); err != nil {
			return err
		}
		cur, _ = e.vars.Peek(n.Variable)
		if addOverflows(cur, step) {
			return nil
		}
		next, err := Arith("+", cur, step)
		if err != nil {
			return e.locate(err, n.Pos)
		}
		if err := e.vars.Replace(n.Variable, next); err != nil {
			return e.locate(err, n.Pos)
		}
	}
}

func (e *Engine) VisitEcho(n *parser.EchoNode) error {
	var stack []Value

	for _, el := range n.Elements {
		switch el := el.(type) {
		case parser.ElementOperator:
			op, ok := e.operators[el.Symbol]
			if !ok {
				return e.locate(errors.New("E204").WithDetail(el.Symbol), n.Pos)
			}
			if len(stack) < 2 {
				return e.locate(errors.New("E200").WithDetailf("%s needs 2, have %d", el.Symbol, len(stack)), n.Pos)
			}
			a, b := stack[len(stack)-2], stack[len(stack)-1]
			stack = stack[:len(stack)-2]
			r, err := op(a, b)
			if err != nil {
				return e.locate(err, n.Pos)
			}
			stack = append(stack, r)

		case parser.ElementFunction:
			fn, ok := e.functions[el.Name]
			if !ok {
				return e.locate(errors.New("E203").WithDetail("@"+el.Name), n.Pos)
			}
			if len(stack) < fn.Arity {
				return e.locate(errors.New("E200").WithDetailf("@%s needs %d, have %d", el.Name, fn.Arity, len(stack)), n.Pos)
			}
			args := make([]Value, fn.Arity)
			copy(args, stack[len(stack)-fn.Arity:])
			stack = stack[:len(stack)-fn.Arity]
			results, err := fn.Call(e.rc, args)
			if err != nil {
				return e.locate(err, n.Pos)
			}
			stack = append(stack, results...)

		default:
			v, err := e.resolve(el, n.Pos)
			if err != nil {
				return err
			}
			stack = append(stack, v)
		}
	}

	for _, v := range stack {
		if _, err := e.rc.WriteString(v.String()); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) children(nodes []parser.Node) error {
	for _, c := range nodes {
		if err := c.Accept(e); err != nil {
			return err
		}
	}
	return nil
}

// resolve turns a literal or variable element into a value.
func (e *Engine) resolve(el parser.Element, pos lexer.Position) (Value, error) {
	switch el := el.(type) {
	case parser.ElementInt:
		return Int(el.Value), nil
	case parser.ElementFloat:
		return Float(el.Value), nil
	case parser.ElementString:
		return String(el.Value), nil
	case parser.ElementVariable:
		v, ok := e.vars.Peek(el.Name)
		if !ok {
			return Value{}, e.locate(errors.New("E202").WithDetail(el.Name), pos)
		}
		return v, nil
	}
	return Value{}, e.locate(errors.Newf(errors.CategoryRuntime, "unexpected element %s", el.Source()), pos)
}

// locate attaches the document position to coded errors that lack one.
func (e *Engine) locate(err error, pos lexer.Position) error {
	var se *errors.Error
	if !stderrors.As(err, &se) {
		return errors.Newf(errors.CategoryRuntime, "%v", err).Wrap(err).WithPosition(e.doc.Name, pos.Line, pos.Column)
	}
	if se.Location == nil {
		se.WithPosition(e.doc.Name, pos.Line, pos.Column)
	}
	return se
}
