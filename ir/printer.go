package ir

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// printer writes the IR text format, keeping the first error encountered.
type printer struct {
	writer io.Writer
	indent int
	err    error
}

func (p *printer) w(format string, args ...any) {
	if p.err != nil {
		// No op if an error was encountered earlier
		return
	}
	_, p.err = fmt.Fprintf(p.writer, format, args...)
}

func (p *printer) newLine() {
	p.w("\n%s", strings.Repeat("  ", p.indent))
}

func (p *printer) locals(locals []Local) {
	for i, l := range locals {
		if i > 0 {
			p.w(", ")
		}
		p.w("%s", l)
	}
}

func (p *printer) graph(g *Graph) {
	p.w("graph")
	if len(g.Params) > 0 {
		p.w(" ")
		p.locals(g.Params)
	}
	p.w(" {")
	p.indent++
	p.expr(g.Body)
	p.indent--
	p.newLine()
	p.w("}")
}

// expr writes each statement of e in its own line, preceded by a new line.
func (p *printer) expr(e Expr) {
	lets, ret := Unchain(e)
	for _, let := range lets {
		p.newLine()
		if len(let.Bind.LVals) > 0 {
			p.locals(let.Bind.LVals)
			p.w(" = ")
		}
		p.instruction(let.Bind.RVal)
	}
	p.newLine()
	p.w("ret")
	if len(ret.Locals) > 0 {
		p.w(" ")
		p.locals(ret.Locals)
	}
}

func (p *printer) instruction(insn *Instruction) {
	args := func() {
		p.w("(")
		p.locals(insn.Args)
		p.w(")")
	}
	switch op := insn.Op.(type) {
	case *PrimOp:
		p.w("%s", op.Type)
		args()
	case *PythonOp:
		p.w("python %q", op.Name)
		if op.IsLegacy {
			p.w(" legacy")
		}
		if len(op.ScalarArgs) > 0 {
			p.w(" [")
			for i, scalar := range op.ScalarArgs {
				if i > 0 {
					p.w(", ")
				}
				p.w("%s", scalarToText(scalar))
			}
			p.w("]")
		}
		args()
	case *MapOp:
		p.w("map")
		args()
		p.w(" ")
		p.graph(op.Graph)
	default:
		p.w("<unknown operator %T>", op)
	}
}

// scalarToText renders a captured scalar argument such that Parse recovers the same value.
func scalarToText(scalar any) string {
	switch v := scalar.(type) {
	case string:
		return strconv.Quote(v)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return floatToText(float64(v))
	case float64:
		return floatToText(v)
	default:
		return strconv.Quote(fmt.Sprintf("%v", v))
	}
}

func floatToText(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEIN") {
		// Make sure it is parsed back as a float.
		s += ".0"
	}
	return s
}

// Write writes the graph in the IR text format, recursing into nested maps.
func (g *Graph) Write(w io.Writer) error {
	p := &printer{writer: w}
	p.graph(g)
	return p.err
}

// String implements fmt.Stringer, see Write.
func (g *Graph) String() string {
	var sb strings.Builder
	_ = g.Write(&sb)
	return sb.String()
}

// WriteExpr writes a free-standing expression (not enclosed in a graph), one statement per line.
func WriteExpr(w io.Writer, e Expr) error {
	var sb strings.Builder
	p := &printer{writer: &sb}
	p.expr(e)
	if p.err != nil {
		return p.err
	}
	_, err := io.WriteString(w, strings.TrimPrefix(sb.String(), "\n")+"\n")
	return err
}

// ExprString returns the text format of a free-standing expression. See WriteExpr.
func ExprString(e Expr) string {
	var sb strings.Builder
	_ = WriteExpr(&sb, e)
	return sb.String()
}
