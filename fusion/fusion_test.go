package fusion

import (
	"flag"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gomlx/pointwise/ir"
	"github.com/gomlx/pointwise/ir/primops"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func init() {
	klog.InitFlags(nil)
}

var flagPrintFused = flag.Bool("print_fused", false, "Print the programs before and after fusion.")

// parse parses the graph and returns it along with a Supply that won't clash with its locals.
func parse(t *testing.T, text string) (*ir.Graph, *ir.Supply) {
	g, err := ir.Parse(text)
	require.NoError(t, err)
	require.NoError(t, g.Validate())
	return g, ir.NewSupply(g.MaxLocal() + 1)
}

// requireAlphaEqual checks that the graphs are equal up to a renaming of their locals.
func requireAlphaEqual(t *testing.T, want, got *ir.Graph) {
	if diff := cmp.Diff(ir.Canonical(want), ir.Canonical(got)); diff != "" {
		t.Fatalf("graphs differ (-want +got):\n%s\nwant:\n%s\ngot:\n%s", diff, want, got)
	}
}

// fuseAndCheck fuses g and checks the properties that must hold for any fusion output.
func fuseAndCheck(t *testing.T, g *ir.Graph, supply *ir.Supply) *ir.Graph {
	fused, err := FuseGraph(supply, g)
	require.NoError(t, err)
	if *flagPrintFused {
		t.Logf("Program:\n%s\nFused:\n%s", g, fused)
	}

	// Well-formed and closed, recursively.
	require.NoError(t, fused.Validate())

	// Every local bound only once, nested graphs included.
	seen := make(map[ir.Local]bool)
	for _, l := range ir.Binders(fused) {
		require.Falsef(t, seen[l], "local %s bound more than once in:\n%s", l, fused)
		seen[l] = true
	}

	// No dead bindings.
	uses := CountUses(fused.Body)
	lets, _ := ir.Unchain(fused.Body)
	for _, let := range lets {
		used := false
		for _, l := range let.Bind.LVals {
			used = used || uses[l] > 0
		}
		require.Truef(t, used, "dead binding of %v left in:\n%s", let.Bind.LVals, fused)
	}

	// Fixpoint: fusing again changes nothing.
	again, err := FuseGraph(supply, fused)
	require.NoError(t, err)
	require.Equal(t, fused.String(), again.String())
	return fused
}

func TestCountUses(t *testing.T) {
	g, _ := parse(t, `graph %0, %1 {
  %2 = Mul(%0, %0)
  %3, %4 = MulBackward(%2, %0, %1)
  ret %3, %3
}`)
	require.Equal(t, Uses{0: 3, 1: 1, 2: 1, 3: 2}, CountUses(g.Body))

	defs := Definitions(g.Body)
	require.Len(t, defs, 3)
	require.Equal(t, 1, defs[4].Output)
	require.Equal(t, []ir.Local{3, 4}, defs[4].Bind.LVals)
}

func TestEliminateDeadLets(t *testing.T) {
	g, _ := parse(t, `graph %0 {
  %1 = Tanh(%0)
  %2 = Sigmoid(%1)
  %3, %4 = AddBackward(%0)
  %5 = Add(%0, %4)
  %6 = Mul(%0, %0)
  ret %5
}`)
	e, numRemoved := EliminateDeadLets(g.Body)
	require.Equal(t, 3, numRemoved)
	// %3 is unused, but the binding is kept whole because %4 is used.
	require.Equal(t, "%3, %4 = AddBackward(%0)\n%5 = Add(%0, %4)\nret %5\n", ir.ExprString(e))

	e2, numRemoved := EliminateDeadLets(e)
	require.Zero(t, numRemoved)
	require.Same(t, e, e2)
}

func TestFuseEdge(t *testing.T) {
	g1, _ := parse(t, `graph %1, %2 {
  %3 = Mul(%1, %2)
  ret %3
}`)
	g2, err := ir.Parse(`graph %10 {
  %11 = Add(%10, %10)
  ret %11
}`)
	require.NoError(t, err)
	supply := ir.NewSupply(20)

	fused, err := FuseEdge(supply, g1, 0, g2, 0)
	require.NoError(t, err)
	require.NoError(t, fused.Validate())
	require.Empty(t, fused.FreeLocals())
	want, err := ir.Parse(`graph %0, %2 {
  %5 = Add(%0, %0)
  %1 = Id(%5)
  %3 = Mul(%1, %2)
  ret %3
}`)
	require.NoError(t, err)
	requireAlphaEqual(t, want, fused)
	require.Equal(t, `graph %20, %2 {
  %21 = Add(%20, %20)
  %1 = Id(%21)
  %3 = Mul(%1, %2)
  ret %3
}`, fused.String())

	// g1's body is shared, not copied.
	lets, _ := ir.Unchain(fused.Body)
	require.Same(t, g1.Body, lets[1].Body)

	// Second slot: parameter order is kept around the spliced parameters.
	g3, err := ir.Parse(`graph %30, %31 {
  %32, %33 = MulBackward(%30, %30, %31)
  ret %32, %33
}`)
	require.NoError(t, err)
	fused, err = FuseEdge(supply, g1, 1, g3, 1)
	require.NoError(t, err)
	require.Equal(t, `graph %1, %22, %23 {
  %24, %25 = MulBackward(%22, %22, %23)
  %2 = Id(%25)
  %3 = Mul(%1, %2)
  ret %3
}`, fused.String())

	_, err = FuseEdge(supply, g1, 2, g2, 0)
	require.ErrorIs(t, err, ErrInvalidEdge)
	_, err = FuseEdge(supply, g1, 0, g2, 1)
	require.ErrorIs(t, err, ErrInvalidEdge)
}

func TestFuseChain(t *testing.T) {
	g, supply := parse(t, `graph %0 {
  %1 = map(%0) graph %10 {
    %11 = Tanh(%10)
    ret %11
  }
  %2 = map(%1) graph %20 {
    %21 = Sigmoid(%20)
    ret %21
  }
  %3 = map(%2) graph %30 {
    %31 = Add(%30, %30)
    ret %31
  }
  ret %3
}`)
	fused := fuseAndCheck(t, g, supply)
	require.Equal(t, `graph %0 {
  %7 = map(%0) graph %1 {
    %2 = Tanh(%1)
    %3 = Id(%2)
    %4 = Sigmoid(%3)
    %5 = Id(%4)
    %6 = Add(%5, %5)
    ret %6
  }
  ret %7
}`, ir.Canonical(fused).String())

	// Only the three original instructions, in dependency order, glued by Id.
	lets, ret := ir.Unchain(fused.Body)
	require.Len(t, lets, 1)
	require.Equal(t, []ir.Local{3}, ret.Locals)
	inner := lets[0].Bind.RVal.Op.(*ir.MapOp).Graph
	require.Len(t, inner.Params, 1)
	require.Equal(t, []ir.Local{0}, lets[0].Bind.RVal.Args)
	innerLets, _ := ir.Unchain(inner.Body)
	var prims []primops.PrimType
	for _, let := range innerLets {
		if p := let.Bind.RVal.Op.(*ir.PrimOp).Type; p != primops.Id {
			prims = append(prims, p)
		}
	}
	require.Equal(t, []primops.PrimType{primops.Tanh, primops.Sigmoid, primops.Add}, prims)
}

func TestFuseArguments(t *testing.T) {
	// The producer's arguments replace the fused argument, in place.
	g, supply := parse(t, `graph %0, %1, %2 {
  %3 = map(%1, %2) graph %10, %11 {
    %12 = Mul(%10, %11)
    ret %12
  }
  %4 = map(%0, %3, %0) graph %20, %21, %22 {
    %23 = Add(%20, %21)
    %24 = Mul(%23, %22)
    ret %24
  }
  ret %4
}`)
	fused := fuseAndCheck(t, g, supply)
	want, err := ir.Parse(`graph %0, %1, %2 {
  %4 = map(%0, %1, %2, %0) graph %20, %10, %11, %22 {
    %12 = Mul(%10, %11)
    %21 = Id(%12)
    %23 = Add(%20, %21)
    %24 = Mul(%23, %22)
    ret %24
  }
  ret %4
}`)
	require.NoError(t, err)
	requireAlphaEqual(t, want, fused)
}

func TestFuseNotFusible(t *testing.T) {
	for name, text := range map[string]string{
		"used twice": `graph %0 {
  %1 = map(%0) graph %10 {
    %11 = Tanh(%10)
    ret %11
  }
  %2 = map(%1) graph %20 {
    %21 = Sigmoid(%20)
    ret %21
  }
  %3 = Add(%1, %2)
  ret %3
}`,
		"returned": `graph %0 {
  %1 = map(%0) graph %10 {
    %11 = Tanh(%10)
    ret %11
  }
  %2 = map(%1) graph %20 {
    %21 = Sigmoid(%20)
    ret %21
  }
  ret %2, %1
}`,
		"produced by a primitive": `graph %0 {
  %1 = Tanh(%0)
  %2 = map(%1) graph %20 {
    %21 = Sigmoid(%20)
    ret %21
  }
  ret %2
}`,
		"consumed by python": `graph %0 {
  %1 = map(%0) graph %10 {
    %11 = Tanh(%10)
    ret %11
  }
  %2 = python "Softmax"(%1)
  ret %2
}`,
		"sibling result used": `graph %0 {
  %1, %2 = map(%0) graph %10 {
    %11 = Tanh(%10)
    %12 = Sigmoid(%10)
    ret %11, %12
  }
  %3 = map(%1) graph %20 {
    %21 = Add(%20, %20)
    ret %21
  }
  ret %3, %2
}`,
		"same argument twice": `graph %0 {
  %1 = map(%0) graph %10 {
    %11 = Tanh(%10)
    ret %11
  }
  %2 = map(%1, %1) graph %20, %21 {
    %22 = Add(%20, %21)
    ret %22
  }
  ret %2
}`,
	} {
		t.Run(name, func(t *testing.T) {
			g, supply := parse(t, text)
			fused := fuseAndCheck(t, g, supply)
			require.Equal(t, g.String(), fused.String())
		})
	}
}

func TestFuseMultiOutputProducer(t *testing.T) {
	// The second result of the producer is dead: the map is fused and its whole binding removed.
	g, supply := parse(t, `graph %0 {
  %1, %2 = map(%0) graph %10 {
    %11 = Tanh(%10)
    %12 = Sigmoid(%10)
    ret %11, %12
  }
  %3 = map(%2) graph %20 {
    %21 = Add(%20, %20)
    ret %21
  }
  %4 = Tanh(%0)
  ret %3
}`)
	fused := fuseAndCheck(t, g, supply)
	want, err := ir.Parse(`graph %0 {
  %3 = map(%0) graph %10 {
    %11 = Tanh(%10)
    %12 = Sigmoid(%10)
    %20 = Id(%12)
    %21 = Add(%20, %20)
    ret %21
  }
  ret %3
}`)
	require.NoError(t, err)
	requireAlphaEqual(t, want, fused)
}

func TestFuseTree(t *testing.T) {
	// Two independent producers feed the same consumer, and one of them is itself a fusion chain.
	g, supply := parse(t, `graph %0, %1 {
  %2 = map(%0) graph %10 {
    %11 = Tanh(%10)
    ret %11
  }
  %3 = map(%2) graph %20 {
    %21 = Sigmoid(%20)
    ret %21
  }
  %4 = map(%1, %0) graph %30, %31 {
    %32 = Mul(%30, %31)
    ret %32
  }
  %5 = map(%3, %4) graph %40, %41 {
    %42 = Add(%40, %41)
    ret %42
  }
  %6 = Tanh(%5)
  ret %6
}`)
	fused := fuseAndCheck(t, g, supply)
	lets, _ := ir.Unchain(fused.Body)
	require.Len(t, lets, 2)
	mapInsn := lets[0].Bind.RVal
	require.Equal(t, []ir.Local{0, 1, 0}, mapInsn.Args)
	require.Len(t, mapInsn.Op.(*ir.MapOp).Graph.Params, 3)
	require.Equal(t, []ir.Local{6}, lets[1].Bind.LVals)
	require.Equal(t, []ir.Local{5}, lets[1].Bind.RVal.Args)
}

func TestFuseRequiresSupply(t *testing.T) {
	g, _ := parse(t, "graph %0 { ret %0 }")
	_, err := FuseGraph(nil, g)
	require.Error(t, err)
}

func TestFuseSharedGraphs(t *testing.T) {
	// The same producer and consumer graphs are used by two independent chains.
	supply := ir.NewSupply(0)
	newUnaryGraph := func(primType primops.PrimType) *ir.Graph {
		b := ir.NewBuilder(supply)
		x := b.Param()
		y, err := b.Prim(primType, x)
		require.NoError(t, err)
		g, err := b.Return(y)
		require.NoError(t, err)
		return g
	}
	producer, consumer := newUnaryGraph(primops.Tanh), newUnaryGraph(primops.Sigmoid)

	b := ir.NewBuilder(supply)
	x, y := b.Param(), b.Param()
	var outputs []ir.Local
	for _, input := range []ir.Local{x, y} {
		produced, err := b.Map(producer, input)
		require.NoError(t, err)
		consumed, err := b.Map(consumer, produced...)
		require.NoError(t, err)
		outputs = append(outputs, consumed...)
	}
	g, err := b.Return(outputs...)
	require.NoError(t, err)
	require.NoError(t, g.Validate())

	// fuseAndCheck verifies that no local is bound twice in the fused graph, nested graphs included.
	fused := fuseAndCheck(t, g, supply)
	lets, _ := ir.Unchain(fused.Body)
	require.Len(t, lets, 2)
	require.NotSame(t, lets[0].Bind.RVal.Op.(*ir.MapOp).Graph, lets[1].Bind.RVal.Op.(*ir.MapOp).Graph)

	// The shared graphs are left untouched.
	require.Equal(t, "graph %2 {\n  %3 = Sigmoid(%2)\n  ret %3\n}", consumer.String())
}
