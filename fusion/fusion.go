package fusion

import (
	"slices"

	"github.com/gomlx/pointwise/ir"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Fuse merges elementwise maps into the maps that consume them, and returns the new expression.
// e itself is never modified.
//
// A map argument is fused when it is used exactly once (by that map), is the result of another map, and
// all the other results of that other map are unused. Its graph is then spliced into the consumer's graph
// (see FuseEdge), the consumer takes over its arguments, and its binding is removed. Bindings that don't
// contribute to the returned values are removed beforehand.
//
// Fresh locals are allocated from supply, which must not return any local used in e (see ir.SupplyAfter).
//
// Running Fuse on its own output doesn't change it further.
func Fuse(supply *ir.Supply, e ir.Expr) (ir.Expr, error) {
	if supply == nil {
		return nil, errors.New("fusion.Fuse requires a Supply for fresh locals")
	}
	e, numDead := EliminateDeadLets(e)
	f := &fuser{
		supply: supply,
		uses:   CountUses(e),
		defs:   make(map[ir.Local]Definition),
		killed: make(map[ir.Local]bool),
	}
	fused, err := f.fuse(e)
	if err != nil {
		return nil, err
	}
	if klog.V(1).Enabled() {
		klog.Infof("fusion: %d maps fused, %d dead bindings removed", f.numFused, numDead)
	}
	return fused, nil
}

// FuseGraph is like Fuse, but for the body of a graph.
func FuseGraph(supply *ir.Supply, g *ir.Graph) (*ir.Graph, error) {
	body, err := Fuse(supply, g.Body)
	if err != nil {
		return nil, err
	}
	return &ir.Graph{Params: g.Params, Body: body}, nil
}

// fuser holds the state of one pass over an expression.
//
// uses is computed once before the pass: fusing moves the uses of the producer's arguments to the
// consumer, and removes only the use of the fused local, so the counts of the locals not killed stay exact.
type fuser struct {
	supply *ir.Supply
	uses   Uses

	// defs points to the bindings already emitted (after their own fusion) that define each local.
	defs map[ir.Local]Definition

	// killed are the locals whose only use was removed by fusion.
	killed map[ir.Local]bool

	numFused int
}

func (f *fuser) fuse(e ir.Expr) (ir.Expr, error) {
	lets, ret := ir.Unchain(e)
	binds := make([]ir.Bind, 0, len(lets))
	for _, let := range lets {
		bind, err := f.fuseBind(let.Bind)
		if err != nil {
			return nil, err
		}
		for i, l := range bind.LVals {
			f.defs[l] = Definition{Bind: bind, Output: i}
		}
		binds = append(binds, bind)
	}

	// Dead-let elimination: drop the bindings all of whose results were fused away.
	binds = slices.DeleteFunc(binds, func(bind ir.Bind) bool {
		return len(bind.LVals) > 0 && !slices.ContainsFunc(bind.LVals, func(l ir.Local) bool { return !f.killed[l] })
	})
	return ir.Chain(binds, ret), nil
}

// fusible returns the definition of l if it can be fused into its only consumer.
func (f *fuser) fusible(l ir.Local) (def Definition, ok bool) {
	if f.uses[l] != 1 {
		return
	}
	def, found := f.defs[l]
	if !found {
		// Parameter or free local.
		return
	}
	if _, isMap := def.Bind.RVal.Op.(*ir.MapOp); !isMap {
		return
	}
	for i, other := range def.Bind.LVals {
		if i != def.Output && f.uses[other] > 0 {
			klog.V(2).Infof("fusion: not fusing %s, its sibling result %s is used %d times", l, other, f.uses[other])
			return
		}
	}
	return def, true
}

// fuseBind fuses into bind, if it is a map, all the fusible maps producing its arguments.
func (f *fuser) fuseBind(bind ir.Bind) (ir.Bind, error) {
	mapOp, ok := bind.RVal.Op.(*ir.MapOp)
	if !ok {
		return bind, nil
	}
	g := mapOp.Graph
	args := bind.RVal.Args
	changed := false
	for i := 0; i < len(args); {
		l := args[i]
		def, ok := f.fusible(l)
		if !ok {
			i++
			continue
		}
		producer := def.Bind.RVal
		if !changed {
			// The consumer graph may be shared with other map bindings: splice into a private copy.
			g = ir.Freshen(g, f.supply)
		}
		fused, err := FuseEdge(f.supply, g, i, producer.Op.(*ir.MapOp).Graph, def.Output)
		if err != nil {
			return bind, errors.WithMessagef(err, "fusing %s into the map binding %v", l, bind.LVals)
		}
		klog.V(1).Infof("fusion: fused map producing %s into map producing %v (argument #%d)", l, bind.LVals, i)
		for _, lval := range def.Bind.LVals {
			f.killed[lval] = true
		}
		f.uses[l]--
		f.numFused++
		g = fused
		args = slices.Concat(args[:i], producer.Args, args[i+1:])
		changed = true
		// Argument i is now the first argument of the producer: try again from there.
	}
	if !changed {
		return bind, nil
	}
	return ir.Bind{LVals: bind.LVals, RVal: &ir.Instruction{Op: &ir.MapOp{Graph: g}, Args: args}}, nil
}
