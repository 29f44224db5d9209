package kernel

import (
	"github.com/gomlx/pointwise/ir"
	"github.com/pkg/errors"
)

// MaxExpressionSize is the largest expression, in bytes, rendered by Expression.
const MaxExpressionSize = 1 << 16

// Expression renders the single output of g as one parenthesized scalar expression, with the parameters of g
// bound positionally to ScalarSlots. It is used for the fixed-arity apply entry points.
//
// g must be a flat chain of primitives, with at most len(ScalarSlots) parameters and exactly one output.
// Locals used more than once have their expression repeated, so the expression can grow exponentially with
// the depth of g: graphs whose expression exceeds MaxExpressionSize fail with ErrUnsupportedGraph, use
// WriteBody for those.
func Expression(g *ir.Graph) (string, error) {
	if len(g.Params) > len(ScalarSlots) {
		return "", errors.Wrapf(ErrArityExceeded, "single expression form supports at most %d inputs, graph has %d",
			len(ScalarSlots), len(g.Params))
	}
	exprs := make(map[ir.Local]string, len(g.Params))
	for i, l := range g.Params {
		exprs[l] = ScalarSlots[i]
	}
	lookup := func(l ir.Local) (string, error) {
		e, found := exprs[l]
		if !found {
			return "", errors.Errorf("local %s used before being defined", l)
		}
		return e, nil
	}

	lets, ret := ir.Unchain(g.Body)
	for _, let := range lets {
		insn := let.Bind.RVal
		primOp, ok := insn.Op.(*ir.PrimOp)
		if !ok {
			return "", errors.Wrapf(ErrUnsupportedOperator, "%s in single expression form (bound to %v)",
				insn.Op.OpName(), let.Bind.LVals)
		}
		args := make([]string, len(insn.Args))
		for i, l := range insn.Args {
			var err error
			if args[i], err = lookup(l); err != nil {
				return "", err
			}
		}
		formulas, err := Formulas(primOp.Type, args)
		if err != nil {
			return "", err
		}
		if len(formulas) != len(let.Bind.LVals) {
			return "", errors.Errorf("primitive %s has %d results, bound to %d locals",
				primOp.Type, len(formulas), len(let.Bind.LVals))
		}
		for i, l := range let.Bind.LVals {
			if len(formulas[i]) > MaxExpressionSize {
				return "", errors.Wrapf(ErrUnsupportedGraph, "single expression form of %s exceeds %d bytes", l, MaxExpressionSize)
			}
			exprs[l] = formulas[i]
		}
	}
	if len(ret.Locals) != 1 {
		return "", errors.Wrapf(ErrUnsupportedGraph, "single expression form requires exactly one output, graph has %d",
			len(ret.Locals))
	}
	return lookup(ret.Locals[0])
}
