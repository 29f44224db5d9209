package pointwise

import (
	"fmt"
	"strings"

	"github.com/gomlx/pointwise/ir"
	"github.com/gomlx/pointwise/kernel"
	"github.com/pkg/errors"
)

// BufferName returns the name of the i-th buffer given to VariadicBackend.PointwiseApplyMany.
func BufferName(i int) string {
	return fmt.Sprintf("x%d", i)
}

// VariadicSource returns the kernel source of g for VariadicBackend.PointwiseApplyMany.
//
// The buffers are the outputs of g followed by its inputs: with M outputs, input i is read from
// buffer M+i and output j is written to buffer j.
// scalarType is the type of the values in the kernel, e.g. "float" (see dtypes.DType.CType).
func VariadicSource(g *ir.Graph, scalarType string) (string, error) {
	numOutputs := g.NumOutputs()
	if numOutputs == 0 {
		return "", errors.Wrapf(kernel.ErrUnsupportedGraph, "graph has no outputs")
	}
	conv := kernel.DefaultConvention
	conv.ScalarType = scalarType

	var sb strings.Builder
	for i := range g.Params {
		_, _ = fmt.Fprintf(&sb, "%s %s = %s;\n", scalarType, conv.InputName(i), BufferName(numOutputs+i))
	}
	for j := range numOutputs {
		_, _ = fmt.Fprintf(&sb, "%s %s;\n", scalarType, conv.OutputName(j))
	}
	if err := kernel.WriteBody(&sb, g, conv); err != nil {
		return "", err
	}
	for j := range numOutputs {
		_, _ = fmt.Fprintf(&sb, "%s = %s;\n", BufferName(j), conv.OutputName(j))
	}
	return sb.String(), nil
}

// FixedAritySource returns the kernel source of g for Backend.PointwiseApply2 and Backend.PointwiseApply3:
// a single assignment to kernel.OutputSlot.
//
// g must have one output and at most MaxFixedArityBuffers-1 parameters.
func FixedAritySource(g *ir.Graph) (string, error) {
	if numBuffers := len(g.Params) + 1; numBuffers > MaxFixedArityBuffers {
		return "", errors.Wrapf(ErrArityExceeded, "graph needs %d buffers, fixed-arity apply supports at most %d",
			numBuffers, MaxFixedArityBuffers)
	}
	expr, err := kernel.Expression(g)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s = %s;", kernel.OutputSlot, expr), nil
}
