package host

import (
	"fmt"
	"strconv"
	"strings"
	"text/scanner"

	"github.com/pkg/errors"
)

// program is the parsed kernel source, with every variable resolved to a slot.
// The first slots hold the buffers, in the order given to parseProgram.
type program struct {
	stmts    []stmt
	numSlots int

	// written marks the buffers assigned by the kernel.
	written []bool
}

type stmt struct {
	slot  int
	value node // nil for a declaration without initializer.
}

// node is a parsed expression.
type node interface{}

type (
	numberNode struct{ value float64 }
	slotNode   struct{ slot int }
	negNode    struct{ x node }
	binaryNode struct {
		op   rune
		x, y node
	}
	callNode struct {
		fn  string
		arg node
	}
)

// kernelFunctions are the functions that can be called by the kernels.
var kernelFunctions = map[string]bool{"expf": true, "tanhf": true, "exp": true, "tanh": true}

// scalarTypes that can be declared in the kernels.
var scalarTypes = map[string]bool{"float": true, "double": true}

type programParser struct {
	s      scanner.Scanner
	tok    rune
	prog   *program
	scopes []map[string]int
}

// programError is used to bail out of the parser.
type programError struct{ err error }

// parseProgram parses the kernel source, where buffers holds the names of the buffers.
func parseProgram(source string, buffers []string) (prog *program, err error) {
	p := &programParser{prog: &program{numSlots: len(buffers), written: make([]bool, len(buffers))}}
	p.s.Init(strings.NewReader(source))
	p.s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats | scanner.ScanComments | scanner.SkipComments
	p.s.Error = func(s *scanner.Scanner, msg string) { p.failf("%s", msg) }
	bufferScope := make(map[string]int, len(buffers))
	for i, name := range buffers {
		bufferScope[name] = i
	}
	p.scopes = []map[string]int{bufferScope, {}}

	defer func() {
		if r := recover(); r != nil {
			pe, ok := r.(programError)
			if !ok {
				panic(r)
			}
			err = pe.err
		}
	}()
	p.next()
	for p.tok != scanner.EOF {
		p.statement()
	}
	return p.prog, nil
}

func (p *programParser) failf(format string, args ...any) {
	panic(programError{errors.Errorf("kernel source %s: %s", p.s.Position, fmt.Sprintf(format, args...))})
}

func (p *programParser) next() {
	p.tok = p.s.Scan()
}

func (p *programParser) text() string {
	return p.s.TokenText()
}

func (p *programParser) expect(tok rune) {
	if p.tok != tok {
		p.failf("expected %s, got %q", scanner.TokenString(tok), p.text())
	}
	p.next()
}

func (p *programParser) ident() string {
	if p.tok != scanner.Ident {
		p.failf("expected identifier, got %q", p.text())
	}
	name := p.text()
	p.next()
	return name
}

func (p *programParser) lookup(name string) int {
	for i := len(p.scopes) - 1; i >= 0; i-- {
		if slot, found := p.scopes[i][name]; found {
			return slot
		}
	}
	p.failf("undeclared variable %q", name)
	return -1
}

func (p *programParser) declare(name string) int {
	scope := p.scopes[len(p.scopes)-1]
	if _, found := scope[name]; found {
		p.failf("variable %q declared twice", name)
	}
	slot := p.prog.numSlots
	p.prog.numSlots++
	scope[name] = slot
	return slot
}

func (p *programParser) statement() {
	switch {
	case p.tok == '{':
		p.next()
		p.scopes = append(p.scopes, map[string]int{})
		for p.tok != '}' {
			if p.tok == scanner.EOF {
				p.failf("unterminated block")
			}
			p.statement()
		}
		p.scopes = p.scopes[:len(p.scopes)-1]
		p.next()

	case p.tok == scanner.Ident && scalarTypes[p.text()]:
		p.next()
		for {
			name := p.ident()
			var value node
			if p.tok == '=' {
				p.next()
				value = p.expr()
			}
			// The slot is declared after parsing the initializer, so it can't refer to itself.
			p.prog.stmts = append(p.prog.stmts, stmt{slot: p.declare(name), value: value})
			if p.tok != ',' {
				break
			}
			p.next()
		}
		p.expect(';')

	default:
		slot := p.lookup(p.ident())
		p.expect('=')
		p.prog.stmts = append(p.prog.stmts, stmt{slot: slot, value: p.expr()})
		if slot < len(p.prog.written) {
			p.prog.written[slot] = true
		}
		p.expect(';')
	}
}

func (p *programParser) expr() node {
	x := p.term()
	for p.tok == '+' || p.tok == '-' {
		op := p.tok
		p.next()
		x = &binaryNode{op: op, x: x, y: p.term()}
	}
	return x
}

func (p *programParser) term() node {
	x := p.unary()
	for p.tok == '*' || p.tok == '/' {
		op := p.tok
		p.next()
		x = &binaryNode{op: op, x: x, y: p.unary()}
	}
	return x
}

func (p *programParser) unary() node {
	if p.tok == '-' {
		p.next()
		return &negNode{x: p.unary()}
	}
	return p.primary()
}

func (p *programParser) primary() node {
	switch p.tok {
	case scanner.Int, scanner.Float:
		text := p.text()
		if p.s.Peek() == 'f' {
			// C float literal suffix.
			p.s.Next()
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			p.failf("invalid number %q: %v", text, err)
		}
		p.next()
		return &numberNode{value: v}
	case '(':
		p.next()
		x := p.expr()
		p.expect(')')
		return x
	case scanner.Ident:
		name := p.ident()
		if p.tok != '(' {
			return &slotNode{slot: p.lookup(name)}
		}
		if !kernelFunctions[name] {
			p.failf("unknown function %q", name)
		}
		p.next()
		arg := p.expr()
		p.expect(')')
		return &callNode{fn: name, arg: arg}
	}
	p.failf("unexpected %q in expression", p.text())
	return nil
}
