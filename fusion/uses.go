// Package fusion implements the pointwise fusion pass: adjacent elementwise maps whose intermediate result
// is used only once are merged into a single map, so they can be lowered to a single kernel.
//
// Given:
//
//	%1 = map(%0) graph %10 { ... }
//	%2 = map(%1, %0) graph %20, %21 { ... }
//	ret %2
//
// Fuse returns (up to renaming):
//
//	%2 = map(%0, %0) graph %30, %21 {
//	  ...            // body of the first graph, renamed
//	  %20 = Id(%31)  // its result feeds the second graph's parameter
//	  ...            // body of the second graph
//	}
//	ret %2
package fusion

import (
	"github.com/gomlx/pointwise/ir"
)

// Uses maps each local to the number of times it is used as an instruction argument or as a returned value.
// Binding occurrences are not counted, and locals that are never used are absent.
//
// It is a snapshot of an expression: it is not updated when the expression is transformed.
type Uses map[ir.Local]int

// CountUses returns the use-count table of e. Nested graphs are separate scopes and are not inspected.
func CountUses(e ir.Expr) Uses {
	uses := make(Uses)
	lets, ret := ir.Unchain(e)
	for _, let := range lets {
		for _, l := range let.Bind.RVal.Args {
			uses[l]++
		}
	}
	for _, l := range ret.Locals {
		uses[l]++
	}
	return uses
}

// Definition points to the binding that defines a local.
type Definition struct {
	// Bind defining the local.
	Bind ir.Bind

	// Output is the index of the local in Bind.LVals.
	Output int
}

// Definitions returns, for each local bound in e, its definition. Parameters and free locals are absent.
func Definitions(e ir.Expr) map[ir.Local]Definition {
	defs := make(map[ir.Local]Definition)
	lets, _ := ir.Unchain(e)
	for _, let := range lets {
		for i, l := range let.Bind.LVals {
			defs[l] = Definition{Bind: let.Bind, Output: i}
		}
	}
	return defs
}
