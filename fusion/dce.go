package fusion

import (
	"slices"

	"github.com/gomlx/pointwise/ir"
	"k8s.io/klog/v2"
)

// EliminateDeadLets removes the bindings none of whose results is (transitively) used by the returned tuple.
// A binding with at least one live result is kept whole: multi-result bindings are never partially removed.
//
// It returns the new expression and the number of bindings removed. If nothing is removed, e itself is returned.
func EliminateDeadLets(e ir.Expr) (ir.Expr, int) {
	lets, ret := ir.Unchain(e)
	live := make(map[ir.Local]bool, len(ret.Locals))
	for _, l := range ret.Locals {
		live[l] = true
	}
	keep := make([]bool, len(lets))
	numRemoved := 0
	for i, let := range slices.Backward(lets) {
		if !slices.ContainsFunc(let.Bind.LVals, func(l ir.Local) bool { return live[l] }) {
			numRemoved++
			if klog.V(2).Enabled() {
				klog.Infof("fusion: removing dead binding of %v (%s)", let.Bind.LVals, let.Bind.RVal.Op.OpName())
			}
			continue
		}
		keep[i] = true
		for _, l := range let.Bind.RVal.Args {
			live[l] = true
		}
	}
	if numRemoved == 0 {
		return e, 0
	}
	binds := make([]ir.Bind, 0, len(lets)-numRemoved)
	for i, let := range lets {
		if keep[i] {
			binds = append(binds, let.Bind)
		}
	}
	return ir.Chain(binds, ret), numRemoved
}
