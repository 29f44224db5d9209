package ir

import (
	"github.com/gomlx/pointwise/ir/primops"
	"github.com/pkg/errors"
)

// Builder constructs a Graph one binding at a time, the way a tracer records operations.
//
// Create one with NewBuilder, declare parameters with Param, add operations with Prim, Map or Python,
// and finish with Return (or ReturnExpr).
//
// Example: f(x, y) = tanh(x * y)
//
//	b := ir.NewBuilder(supply)
//	x, y := b.Param(), b.Param()
//	xy, _ := b.Prim(primops.Mul, x, y)
//	t, _ := b.Prim(primops.Tanh, xy)
//	g, _ := b.Return(t)
type Builder struct {
	supply  *Supply
	params  []Local
	binds   []Bind
	defined map[Local]bool
}

// NewBuilder creates a Builder that allocates its locals from supply.
func NewBuilder(supply *Supply) *Builder {
	return &Builder{
		supply:  supply,
		defined: make(map[Local]bool),
	}
}

// Param adds a new parameter to the graph being built.
func (b *Builder) Param() Local {
	l := b.newLocal()
	b.params = append(b.params, l)
	return l
}

// Params adds n new parameters.
func (b *Builder) Params(n int) []Local {
	params := make([]Local, n)
	for i := range params {
		params[i] = b.Param()
	}
	return params
}

// newLocal creates a new unique local within the graph's scope.
func (b *Builder) newLocal() Local {
	l := b.supply.Fresh()
	b.defined[l] = true
	return l
}

func (b *Builder) checkArgs(opName string, args []Local) error {
	for i, l := range args {
		if !b.defined[l] {
			return errors.Errorf("%s: argument #%d (%s) is not defined in the graph being built", opName, i, l)
		}
	}
	return nil
}

// addOp binds numOutputs new locals to the results of op applied to args.
func (b *Builder) addOp(op Operator, numOutputs int, args []Local) []Local {
	lvals := make([]Local, numOutputs)
	for i := range lvals {
		lvals[i] = b.newLocal()
	}
	b.binds = append(b.binds, Bind{LVals: lvals, RVal: NewInstruction(op, args...)})
	return lvals
}

// PrimN adds a primitive operation and returns all its results.
func (b *Builder) PrimN(primType primops.PrimType, args ...Local) ([]Local, error) {
	numInputs, numOutputs := primType.Arity()
	if numInputs < 0 {
		return nil, errors.Errorf("invalid primitive %s", primType)
	}
	if len(args) != numInputs {
		return nil, errors.Errorf("primitive %s takes %d arguments, %d given", primType, numInputs, len(args))
	}
	if err := b.checkArgs(primType.String(), args); err != nil {
		return nil, err
	}
	return b.addOp(&PrimOp{Type: primType}, numOutputs, args), nil
}

// Prim adds a primitive operation that has a single result, and returns it.
func (b *Builder) Prim(primType primops.PrimType, args ...Local) (Local, error) {
	if _, numOutputs := primType.Arity(); numOutputs > 1 {
		return -1, errors.Errorf("primitive %s has %d results, use PrimN instead", primType, numOutputs)
	}
	results, err := b.PrimN(primType, args...)
	if err != nil {
		return -1, err
	}
	return results[0], nil
}

// Map adds an elementwise map of g over args, and returns one local per output of g.
func (b *Builder) Map(g *Graph, args ...Local) ([]Local, error) {
	if g == nil {
		return nil, errors.New("map: nil graph")
	}
	if len(args) != len(g.Params) {
		return nil, errors.Errorf("map: graph takes %d parameters, %d arguments given", len(g.Params), len(args))
	}
	if err := b.checkArgs("map", args); err != nil {
		return nil, err
	}
	return b.addOp(&MapOp{Graph: g}, g.NumOutputs(), args), nil
}

// Python adds an opaque callable with numOutputs results.
func (b *Builder) Python(op *PythonOp, numOutputs int, args ...Local) ([]Local, error) {
	if op == nil {
		return nil, errors.New("python: nil operator")
	}
	if err := b.checkArgs(op.OpName(), args); err != nil {
		return nil, err
	}
	return b.addOp(op, numOutputs, args), nil
}

// ReturnExpr finishes the chain of bindings by returning the given locals.
func (b *Builder) ReturnExpr(locals ...Local) (Expr, error) {
	if err := b.checkArgs("ret", locals); err != nil {
		return nil, err
	}
	return Chain(b.binds, NewTuple(locals...)), nil
}

// Return finishes the graph, returning the given locals.
func (b *Builder) Return(locals ...Local) (*Graph, error) {
	body, err := b.ReturnExpr(locals...)
	if err != nil {
		return nil, err
	}
	return NewGraph(b.params, body), nil
}
