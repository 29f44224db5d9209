// Package kernel lowers pointwise graphs (see package ir) to kernel source: scalar C/CUDA statements that an
// elementwise-apply primitive executes once per element of its buffers.
//
// Two printers are provided:
//
//   - Expression renders a flat chain of primitives with at most 2 inputs as a single expression, for the
//     fixed-arity apply entry points, where the inputs are the scalar slots `y` and `z`.
//   - WriteBody renders any graph of primitives (and at most one level of nested maps) as a sequence of
//     declarations, reading the inputs from `input0..inputN` and writing the outputs to `output0..outputM`.
//
// Only PrimOp can be lowered: a PythonOp, or a MapOp that was not flattened by fusion, makes the printers
// fail with ErrUnsupportedOperator.
package kernel

import (
	"fmt"

	"github.com/gomlx/pointwise/ir/primops"
	"github.com/pkg/errors"
)

var (
	// ErrUnsupportedOperator is returned when an operator that can't be lowered to kernel source is found.
	ErrUnsupportedOperator = errors.New("operator not supported by kernel printer")

	// ErrArityExceeded is returned when the graph needs more inputs than the printer (or the apply entry point
	// it targets) supports.
	ErrArityExceeded = errors.New("arity exceeded")

	// ErrUnsupportedGraph is returned for graphs whose outputs can't be rendered in the requested form.
	ErrUnsupportedGraph = errors.New("graph not supported by kernel printer")
)

// ScalarSlots are the names of the inputs of the fixed-arity form, in order.
// The output of the fixed-arity form is named OutputSlot.
var ScalarSlots = []string{"y", "z"}

// OutputSlot is the name of the output in the fixed-arity form.
const OutputSlot = "x"

// Formulas returns the scalar expressions computing each result of the primitive, given the expressions of
// its arguments. Argument expressions must be atomic: a name, a call or a parenthesized expression.
func Formulas(primType primops.PrimType, args []string) ([]string, error) {
	numInputs, _ := primType.Arity()
	if numInputs < 0 {
		return nil, errors.Wrapf(ErrUnsupportedOperator, "invalid primitive %s", primType)
	}
	if len(args) != numInputs {
		return nil, errors.Errorf("primitive %s takes %d arguments, got %d", primType, numInputs, len(args))
	}
	switch primType {
	case primops.Add:
		return []string{fmt.Sprintf("(%s + %s)", args[0], args[1])}, nil
	case primops.Mul:
		return []string{fmt.Sprintf("(%s * %s)", args[0], args[1])}, nil
	case primops.Sigmoid:
		return []string{sigmoid(args[0])}, nil
	case primops.Tanh:
		return []string{fmt.Sprintf("tanhf(%s)", args[0])}, nil
	case primops.Id:
		return []string{args[0]}, nil
	case primops.AddBackward:
		return []string{args[0], args[0]}, nil
	case primops.MulBackward:
		grad, lhs, rhs := args[0], args[1], args[2]
		return []string{fmt.Sprintf("(%s * %s)", grad, rhs), fmt.Sprintf("(%s * %s)", grad, lhs)}, nil
	case primops.SigmoidBackward:
		grad, y := args[0], args[1]
		return []string{fmt.Sprintf("(%s * (%s * (1.0f - %s)))", grad, y, y)}, nil
	case primops.TanhBackward:
		grad, y := args[0], args[1]
		return []string{fmt.Sprintf("(%s * (1.0f - (%s * %s)))", grad, y, y)}, nil
	}
	return nil, errors.Wrapf(ErrUnsupportedOperator, "no kernel formula for primitive %s", primType)
}

func sigmoid(x string) string {
	return fmt.Sprintf("(1.0f / (1.0f + expf(-%s)))", x)
}
