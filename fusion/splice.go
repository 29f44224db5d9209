package fusion

import (
	"slices"

	"github.com/gomlx/pointwise/ir"
	"github.com/gomlx/pointwise/ir/primops"
	"github.com/pkg/errors"
)

// ErrInvalidEdge is returned by FuseEdge when the parameter or output index is out of range.
var ErrInvalidEdge = errors.New("invalid fusion edge")

// FuseEdge substitutes the computation of the output g2Output of g2 for the parameter g1Input of g1.
//
// Given:
//
//	g1 = graph x_1 ... x_i ... x_n { g1_body }
//	g2 = graph y_1 ... y_m { g2_body; ret r_1 ... r_j ... r_s }
//
// with i = g1Input and j = g2Output, it returns:
//
//	graph x_1 ... y'_1 ... y'_m ... x_n {
//	  g2_body'     // g2's bindings with all locals renamed to fresh ones
//	  x_i = Id(r'_j)
//	  g1_body      // unchanged, and shared with g1
//	}
//
// The renamed parameters of g2 take the place of x_i, the order of the other parameters is preserved.
// The result is closed if g1 and g2 are.
//
// Only the output g2Output is consumed: the other results of g2 are discarded, so they must not be needed
// elsewhere. Nested graphs inside g2 are renamed too. The locals of g1 are kept: if g1 is also used
// elsewhere, give FuseEdge a copy from ir.Freshen, otherwise both places bind the same locals.
//
// Fresh locals are allocated from supply, which must not return any local used in g1 or g2.
func FuseEdge(supply *ir.Supply, g1 *ir.Graph, g1Input int, g2 *ir.Graph, g2Output int) (*ir.Graph, error) {
	if g1Input < 0 || g1Input >= len(g1.Params) {
		return nil, errors.Wrapf(ErrInvalidEdge, "parameter #%d requested from a graph with %d parameters",
			g1Input, len(g1.Params))
	}
	g2Lets, g2Ret := ir.Unchain(g2.Body)
	if g2Output < 0 || g2Output >= len(g2Ret.Locals) {
		return nil, errors.Wrapf(ErrInvalidEdge, "output #%d requested from a graph with %d outputs",
			g2Output, len(g2Ret.Locals))
	}

	renaming := make(ir.Renaming)
	g2Params := make([]ir.Local, len(g2.Params))
	for i, l := range g2.Params {
		g2Params[i] = renaming.Fresh(supply, l)
	}

	// g2's bindings, in their original order, with fresh locals.
	binds := make([]ir.Bind, 0, len(g2Lets)+1)
	for _, let := range g2Lets {
		insn := let.Bind.RVal
		op := insn.Op
		if mapOp, ok := op.(*ir.MapOp); ok {
			op = &ir.MapOp{Graph: ir.Freshen(mapOp.Graph, supply)}
		}
		newInsn := &ir.Instruction{Op: op, Args: renaming.RenameAll(insn.Args)}
		lvals := make([]ir.Local, len(let.Bind.LVals))
		for i, l := range let.Bind.LVals {
			lvals[i] = renaming.Fresh(supply, l)
		}
		binds = append(binds, ir.Bind{LVals: lvals, RVal: newInsn})
	}

	// Connect g2's output to g1's parameter.
	binds = append(binds, ir.Bind{
		LVals: []ir.Local{g1.Params[g1Input]},
		RVal:  ir.NewInstruction(&ir.PrimOp{Type: primops.Id}, renaming.Rename(g2Ret.Locals[g2Output])),
	})

	body := g1.Body
	for _, bind := range slices.Backward(binds) {
		body = &ir.Let{Bind: bind, Body: body}
	}
	params := slices.Concat(g1.Params[:g1Input], g2Params, g1.Params[g1Input+1:])
	return &ir.Graph{Params: params, Body: body}, nil
}
