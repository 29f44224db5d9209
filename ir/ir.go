// Package ir defines a small intermediate representation for chains of elementwise (pointwise) tensor
// operations, in a-normal form (ANF): every intermediate value is named by a binding before it is used,
// forming a single straight-line chain of bindings that ends in a return.
//
// IR nodes are immutable once built: transformations (see package fusion) rebuild the parts they change
// and may share the rest, they never edit nodes in place.
//
// A Graph renders to a human-readable text format (see Graph.Write) like:
//
//	graph %0, %1 {
//	  %2 = Mul(%0, %1)
//	  %3 = map(%2) graph %4 {
//	    %5 = Tanh(%4)
//	    ret %5
//	  }
//	  ret %3
//	}
//
// which can be parsed back with Parse.
package ir

import (
	"fmt"
	"slices"

	"github.com/gomlx/pointwise/ir/primops"
)

// Operator is one of *PythonOp, *MapOp or *PrimOp.
type Operator interface {
	// OpName returns a short name of the operator, used in error messages and logs.
	OpName() string

	isOperator()
}

// PythonOp is an opaque callable captured by the tracer. It can be executed (see pointwise.Execute)
// but never lowered to a kernel.
type PythonOp struct {
	// Name of the callable, for printing.
	Name string

	// Callable is the opaque function value, owned by the tracer. It may be nil for parsed programs.
	Callable any

	// ScalarArgs are constant (non-tensor) arguments captured at trace time.
	ScalarArgs []any

	// IsLegacy marks callables written in the legacy function format.
	IsLegacy bool
}

// MapOp applies a nested Graph elementwise over its arguments. It is the unit of fusion.
type MapOp struct {
	Graph *Graph
}

// PrimOp is a primitive scalar operation, the only operator that can be lowered to kernel source.
type PrimOp struct {
	Type primops.PrimType
}

func (*PythonOp) isOperator() {}
func (*MapOp) isOperator()    {}
func (*PrimOp) isOperator()   {}

// OpName implements Operator.
func (op *PythonOp) OpName() string { return "python:" + op.Name }

// OpName implements Operator.
func (*MapOp) OpName() string { return "map" }

// OpName implements Operator.
func (op *PrimOp) OpName() string { return op.Type.String() }

// Instruction is an Operator applied to an ordered list of arguments.
type Instruction struct {
	Op   Operator
	Args []Local
}

// NewInstruction creates an Instruction. The arguments slice is copied.
func NewInstruction(op Operator, args ...Local) *Instruction {
	return &Instruction{Op: op, Args: slices.Clone(args)}
}

// Bind associates the results of an instruction (RVal) with the locals that name them (LVals), in order.
type Bind struct {
	LVals []Local
	RVal  *Instruction
}

// Expr is either a *Let or a *Tuple.
type Expr interface {
	isExpr()
}

// Let binds the results of an instruction and continues with Body, where the bound locals are in scope.
type Let struct {
	Bind Bind
	Body Expr
}

// Tuple returns its locals. It terminates a chain of Let.
type Tuple struct {
	Locals []Local
}

func (*Let) isExpr()   {}
func (*Tuple) isExpr() {}

// NewLet creates a Let binding lvals to the results of rval.
func NewLet(lvals []Local, rval *Instruction, body Expr) *Let {
	return &Let{Bind: Bind{LVals: slices.Clone(lvals), RVal: rval}, Body: body}
}

// NewTuple creates a Tuple returning the given locals.
func NewTuple(locals ...Local) *Tuple {
	return &Tuple{Locals: slices.Clone(locals)}
}

// Graph is a pure function from its parameters to the locals returned by the Tuple ending its body.
type Graph struct {
	Params []Local
	Body   Expr
}

// NewGraph creates a Graph. The params slice is copied.
func NewGraph(params []Local, body Expr) *Graph {
	return &Graph{Params: slices.Clone(params), Body: body}
}

// Outputs returns the locals returned by the graph.
func (g *Graph) Outputs() []Local {
	_, ret := Unchain(g.Body)
	return ret.Locals
}

// NumOutputs returns the number of values returned by the graph.
func (g *Graph) NumOutputs() int {
	return len(g.Outputs())
}

// Unchain flattens the chain of Let in e, returning them in order along with the terminal Tuple.
func Unchain(e Expr) (lets []*Let, ret *Tuple) {
	for {
		switch node := e.(type) {
		case *Let:
			lets = append(lets, node)
			e = node.Body
		case *Tuple:
			return lets, node
		default:
			panic(fmt.Sprintf("ir: unknown Expr type %T", e))
		}
	}
}

// Chain is the inverse of Unchain: it builds the chain of Let for the given binds ending with ret.
// The binds are used as is, not copied.
func Chain(binds []Bind, ret *Tuple) Expr {
	var e Expr = ret
	for _, bind := range slices.Backward(binds) {
		e = &Let{Bind: bind, Body: e}
	}
	return e
}
