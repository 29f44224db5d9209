package pointwise

import (
	"github.com/gomlx/pointwise/ir"
	"github.com/gomlx/pointwise/kernel"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Callable is the Go implementation of a PythonOp: set it as the ir.PythonOp.Callable to make the operation
// executable by Execute. It is given the operation scalar arguments and its inputs, and it returns its
// outputs.
type Callable func(scalarArgs []any, inputs ...Buffer) ([]Buffer, error)

// Execute runs a whole graph, one binding at a time, and returns its outputs:
//
//   - MapOp bindings are applied with a Map (see Map.Apply).
//   - PrimOp bindings are applied as a Map over a graph with only that primitive.
//   - PythonOp bindings call their Callable.
//
// Fused graphs execute fewer (and larger) kernels than unfused ones, for the same results.
func Execute(backend Backend, g *ir.Graph, inputs ...Buffer) ([]Buffer, error) {
	if len(inputs) != len(g.Params) {
		return nil, errors.Wrapf(ErrMalformedInput, "Execute(): graph takes %d inputs, %d given", len(g.Params), len(inputs))
	}
	if err := g.Validate(); err != nil {
		return nil, errors.WithMessage(err, "Execute()")
	}
	values := make(map[ir.Local]Buffer, len(g.Params))
	for i, l := range g.Params {
		values[l] = inputs[i]
	}
	lets, ret := ir.Unchain(g.Body)
	for letIdx, let := range lets {
		insn := let.Bind.RVal
		args := make([]Buffer, len(insn.Args))
		for i, l := range insn.Args {
			args[i] = values[l]
		}
		results, err := executeInstruction(backend, insn, args)
		if err != nil {
			return nil, errors.WithMessagef(err, "Execute() binding #%d (%s)", letIdx, insn.Op.OpName())
		}
		if len(results) != len(let.Bind.LVals) {
			return nil, errors.Errorf("Execute() binding #%d (%s) returned %d results, %d expected",
				letIdx, insn.Op.OpName(), len(results), len(let.Bind.LVals))
		}
		for i, l := range let.Bind.LVals {
			values[l] = results[i]
		}
	}
	outputs := make([]Buffer, len(ret.Locals))
	for i, l := range ret.Locals {
		outputs[i] = values[l]
	}
	return outputs, nil
}

func executeInstruction(backend Backend, insn *ir.Instruction, args []Buffer) ([]Buffer, error) {
	switch op := insn.Op.(type) {
	case *ir.MapOp:
		return NewMap(backend, op.Graph).Apply(args...).Done()
	case *ir.PrimOp:
		g, err := primGraph(op, len(args))
		if err != nil {
			return nil, err
		}
		return NewMap(backend, g).Apply(args...).Done()
	case *ir.PythonOp:
		callable, ok := op.Callable.(Callable)
		if !ok {
			return nil, errors.Wrapf(kernel.ErrUnsupportedOperator, "python op %q has no pointwise.Callable (it has %T)",
				op.Name, op.Callable)
		}
		klog.V(1).Infof("pointwise: calling python op %q with %d inputs", op.Name, len(args))
		return callable(op.ScalarArgs, args...)
	}
	return nil, errors.Wrapf(kernel.ErrUnsupportedOperator, "unknown operator %T", insn.Op)
}

// primGraph returns a graph with the single primitive op applied to its parameters.
func primGraph(op *ir.PrimOp, numArgs int) (*ir.Graph, error) {
	b := ir.NewBuilder(ir.NewSupply(0))
	results, err := b.PrimN(op.Type, b.Params(numArgs)...)
	if err != nil {
		return nil, err
	}
	return b.Return(results...)
}
