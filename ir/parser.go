package ir

import (
	"fmt"
	"strconv"
	"strings"
	"text/scanner"

	"github.com/gomlx/pointwise/ir/primops"
	"github.com/pkg/errors"
)

// ErrSyntax is returned (wrapped with the position and details) by Parse and ParseExpr.
var ErrSyntax = errors.New("syntax error")

// Parse parses a graph in the text format written by Graph.Write.
//
// PythonOp callables can't be represented in text, so parsed PythonOp have a nil Callable.
// Parse doesn't validate the graph, see Graph.Validate.
func Parse(text string) (g *Graph, err error) {
	p := newParser(text)
	defer p.recover(&err)
	p.next()
	g = p.graph()
	p.expect(scanner.EOF)
	return g, nil
}

// ParseExpr parses a free-standing expression, as written by WriteExpr.
func ParseExpr(text string) (e Expr, err error) {
	p := newParser(text)
	defer p.recover(&err)
	p.next()
	e = p.expr()
	p.expect(scanner.EOF)
	return e, nil
}

// syntaxError is used to bail out of the recursive descent parser.
type syntaxError struct {
	err error
}

type parser struct {
	s   scanner.Scanner
	tok rune
}

func newParser(text string) *parser {
	p := &parser{}
	p.s.Init(strings.NewReader(text))
	p.s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats | scanner.ScanStrings |
		scanner.ScanComments | scanner.SkipComments
	p.s.Error = func(s *scanner.Scanner, msg string) { p.failf("%s", msg) }
	return p
}

func (p *parser) recover(err *error) {
	if r := recover(); r != nil {
		se, ok := r.(syntaxError)
		if !ok {
			panic(r)
		}
		*err = se.err
	}
}

func (p *parser) failf(format string, args ...any) {
	panic(syntaxError{errors.Wrapf(ErrSyntax, "%s: %s", p.s.Position, fmt.Sprintf(format, args...))})
}

func (p *parser) next() {
	p.tok = p.s.Scan()
}

func (p *parser) expect(tok rune) {
	if p.tok != tok {
		p.failf("expected %s, got %q", scanner.TokenString(tok), p.s.TokenText())
	}
	p.next()
}

func (p *parser) isKeyword(keyword string) bool {
	return p.tok == scanner.Ident && p.s.TokenText() == keyword
}

func (p *parser) expectKeyword(keyword string) {
	if !p.isKeyword(keyword) {
		p.failf("expected %q, got %q", keyword, p.s.TokenText())
	}
	p.next()
}

func (p *parser) local() Local {
	p.expect('%')
	if p.tok != scanner.Int {
		p.failf("expected local number after %%, got %q", p.s.TokenText())
	}
	n, err := strconv.Atoi(p.s.TokenText())
	if err != nil {
		p.failf("invalid local %q: %v", p.s.TokenText(), err)
	}
	p.next()
	return Local(n)
}

// localList parses a possibly empty comma separated list of locals.
func (p *parser) localList() []Local {
	var locals []Local
	if p.tok != '%' {
		return locals
	}
	locals = append(locals, p.local())
	for p.tok == ',' {
		p.next()
		locals = append(locals, p.local())
	}
	return locals
}

func (p *parser) args() []Local {
	p.expect('(')
	args := p.localList()
	p.expect(')')
	return args
}

func (p *parser) graph() *Graph {
	p.expectKeyword("graph")
	params := p.localList()
	p.expect('{')
	body := p.expr()
	p.expect('}')
	return &Graph{Params: params, Body: body}
}

func (p *parser) expr() Expr {
	var binds []Bind
	for !p.isKeyword("ret") {
		if p.tok == scanner.EOF || p.tok == '}' {
			p.failf("expected \"ret\" to end the bindings, got %q", p.s.TokenText())
		}
		var lvals []Local
		if p.tok == '%' {
			lvals = p.localList()
			p.expect('=')
		}
		binds = append(binds, Bind{LVals: lvals, RVal: p.instruction()})
	}
	p.next()
	return Chain(binds, &Tuple{Locals: p.localList()})
}

func (p *parser) instruction() *Instruction {
	if p.tok != scanner.Ident {
		p.failf("expected operator, got %q", p.s.TokenText())
	}
	name := p.s.TokenText()
	p.next()
	switch name {
	case "map":
		args := p.args()
		return &Instruction{Op: &MapOp{Graph: p.graph()}, Args: args}
	case "python":
		op := &PythonOp{}
		if p.tok != scanner.String {
			p.failf("expected python callable name as a quoted string, got %q", p.s.TokenText())
		}
		op.Name = p.unquote()
		if p.isKeyword("legacy") {
			op.IsLegacy = true
			p.next()
		}
		if p.tok == '[' {
			p.next()
			for p.tok != ']' {
				op.ScalarArgs = append(op.ScalarArgs, p.scalar())
				if p.tok != ',' {
					break
				}
				p.next()
			}
			p.expect(']')
		}
		return &Instruction{Op: op, Args: p.args()}
	default:
		primType, err := primops.PrimTypeString(name)
		if err != nil || primType == primops.Invalid || primType == primops.Last {
			p.failf("unknown operator %q", name)
		}
		return &Instruction{Op: &PrimOp{Type: primType}, Args: p.args()}
	}
}

func (p *parser) unquote() string {
	s, err := strconv.Unquote(p.s.TokenText())
	if err != nil {
		p.failf("invalid string %s: %v", p.s.TokenText(), err)
	}
	p.next()
	return s
}

// scalar parses a captured scalar: a string, a boolean, an integer or a float.
func (p *parser) scalar() any {
	sign := ""
	switch p.tok {
	case '-':
		sign = "-"
		p.next()
	case '+':
		p.next()
	}
	text := sign + p.s.TokenText()
	switch {
	case p.tok == scanner.String && sign == "":
		return p.unquote()
	case p.tok == scanner.Int:
		p.next()
		v, err := strconv.Atoi(text)
		if err != nil {
			p.failf("invalid integer %q: %v", text, err)
		}
		return v
	case p.tok == scanner.Float:
		p.next()
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			p.failf("invalid float %q: %v", text, err)
		}
		return v
	case p.tok == scanner.Ident:
		p.next()
		switch text {
		case "true":
			return true
		case "false":
			return false
		case "Inf", "+Inf", "-Inf", "NaN":
			v, _ := strconv.ParseFloat(text, 64)
			return v
		}
	}
	p.failf("invalid scalar argument %q", text)
	return nil
}
