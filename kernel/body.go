package kernel

import (
	"fmt"
	"io"
	"strings"

	"github.com/gomlx/pointwise/ir"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Convention defines how the kernel body reads its inputs and writes its outputs.
type Convention struct {
	// ScalarType used in the declarations, e.g. "float".
	ScalarType string

	// InputName returns the name of the i-th input, already in scope when the body runs.
	InputName func(i int) string

	// OutputName returns the name of the i-th output, already declared when the body runs.
	OutputName func(i int) string
}

// DefaultConvention reads inputs from `input0..inputN` and writes outputs to `output0..outputM`, as floats.
var DefaultConvention = Convention{
	ScalarType: "float",
	InputName:  func(i int) string { return fmt.Sprintf("input%d", i) },
	OutputName: func(i int) string { return fmt.Sprintf("output%d", i) },
}

// localName is the name of a local in the kernel source.
func localName(l ir.Local) string {
	return fmt.Sprintf("v%d", int(l))
}

// bodyWriter writes kernel statements, keeping the first error encountered.
type bodyWriter struct {
	writer     io.Writer
	scalarType string
	indent     int
	err        error
}

func (bw *bodyWriter) w(format string, args ...any) {
	if bw.err != nil {
		// No op if an error was encountered earlier
		return
	}
	_, bw.err = fmt.Fprintf(bw.writer, "%s%s\n", strings.Repeat("  ", bw.indent), fmt.Sprintf(format, args...))
}

// WriteBody writes the kernel statements computing g: one declaration per parameter (bound to the inputs of
// conv), one declaration per result of each binding in order, and one assignment per output (to the outputs
// of conv).
//
// g must be valid (see ir.Graph.Validate), otherwise the error wraps ir.ErrMalformedGraph.
// Bindings of a MapOp are lowered inline, in their own block, but only one level deep: a map inside the graph
// of a map fails with ErrUnsupportedOperator. So do PythonOp bindings.
func WriteBody(w io.Writer, g *ir.Graph, conv Convention) error {
	if conv.ScalarType == "" {
		conv.ScalarType = DefaultConvention.ScalarType
	}
	if conv.InputName == nil {
		conv.InputName = DefaultConvention.InputName
	}
	if conv.OutputName == nil {
		conv.OutputName = DefaultConvention.OutputName
	}
	if err := g.Validate(); err != nil {
		return errors.WithMessage(err, "kernel body")
	}
	if !uniqueBinders(g) {
		// Nested graphs may reuse ids of the enclosing graph, which would shadow them in the map blocks.
		g = ir.Canonical(g)
	}
	bw := &bodyWriter{writer: w, scalarType: conv.ScalarType}
	for i, l := range g.Params {
		bw.w("%s %s = %s;", bw.scalarType, localName(l), conv.InputName(i))
	}
	outputs, err := bw.chain(g.Body, 0)
	if err != nil {
		return err
	}
	for i, output := range outputs {
		bw.w("%s = %s;", conv.OutputName(i), localName(output))
	}
	return bw.err
}

// Body returns the kernel statements for g using the DefaultConvention. See WriteBody.
func Body(g *ir.Graph) (string, error) {
	var sb strings.Builder
	if err := WriteBody(&sb, g, DefaultConvention); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func uniqueBinders(g *ir.Graph) bool {
	seen := make(map[ir.Local]bool)
	for _, l := range ir.Binders(g) {
		if seen[l] {
			return false
		}
		seen[l] = true
	}
	return true
}

// chain writes the bindings of e, and returns the locals returned by e.
// depth is the number of maps being lowered around e.
func (bw *bodyWriter) chain(e ir.Expr, depth int) ([]ir.Local, error) {
	lets, ret := ir.Unchain(e)
	for _, let := range lets {
		insn := let.Bind.RVal
		switch op := insn.Op.(type) {
		case *ir.PrimOp:
			args := make([]string, len(insn.Args))
			for i, l := range insn.Args {
				args[i] = localName(l)
			}
			formulas, err := Formulas(op.Type, args)
			if err != nil {
				return nil, err
			}
			if len(formulas) != len(let.Bind.LVals) {
				return nil, errors.Errorf("primitive %s has %d results, bound to %d locals",
					op.Type, len(formulas), len(let.Bind.LVals))
			}
			for i, l := range let.Bind.LVals {
				bw.w("%s %s = %s;", bw.scalarType, localName(l), formulas[i])
			}

		case *ir.MapOp:
			if depth > 0 {
				return nil, errors.Wrapf(ErrUnsupportedOperator, "map nested inside a map (bound to %v), it must be fused first",
					let.Bind.LVals)
			}
			if err := bw.mapBlock(let.Bind, op.Graph, depth); err != nil {
				return nil, err
			}

		default:
			return nil, errors.Wrapf(ErrUnsupportedOperator, "%s (bound to %v) can't be lowered to a kernel",
				insn.Op.OpName(), let.Bind.LVals)
		}
	}
	return ret.Locals, nil
}

// mapBlock lowers the nested graph of a map inline, in a block of its own so its locals don't leak.
func (bw *bodyWriter) mapBlock(bind ir.Bind, g *ir.Graph, depth int) error {
	if len(bind.RVal.Args) != len(g.Params) {
		return errors.Errorf("map over a graph with %d parameters given %d arguments", len(g.Params), len(bind.RVal.Args))
	}
	klog.V(2).Infof("kernel: lowering map bound to %v inline", bind.LVals)
	if len(bind.LVals) > 0 {
		names := make([]string, len(bind.LVals))
		for i, l := range bind.LVals {
			names[i] = localName(l)
		}
		bw.w("%s %s;", bw.scalarType, strings.Join(names, ", "))
	}
	bw.w("{")
	bw.indent++
	for i, l := range g.Params {
		bw.w("%s %s = %s;", bw.scalarType, localName(l), localName(bind.RVal.Args[i]))
	}
	outputs, err := bw.chain(g.Body, depth+1)
	if err != nil {
		return err
	}
	if len(outputs) != len(bind.LVals) {
		return errors.Errorf("map over a graph with %d outputs bound to %d results", len(outputs), len(bind.LVals))
	}
	for i, l := range bind.LVals {
		bw.w("%s = %s;", localName(l), localName(outputs[i]))
	}
	bw.indent--
	bw.w("}")
	return nil
}
