package ir

import (
	"slices"

	"github.com/pkg/errors"
)

// ErrMalformedGraph is returned (wrapped with details) by Graph.Validate.
var ErrMalformedGraph = errors.New("malformed graph")

// MaxLocal returns the largest local used or defined in e, including in nested graphs, or -1 if there are none.
func MaxLocal(e Expr) Local {
	maxLocal := Local(-1)
	lets, ret := Unchain(e)
	for _, let := range lets {
		for _, l := range let.Bind.LVals {
			maxLocal = max(maxLocal, l)
		}
		for _, l := range let.Bind.RVal.Args {
			maxLocal = max(maxLocal, l)
		}
		if mapOp, ok := let.Bind.RVal.Op.(*MapOp); ok {
			maxLocal = max(maxLocal, mapOp.Graph.MaxLocal())
		}
	}
	for _, l := range ret.Locals {
		maxLocal = max(maxLocal, l)
	}
	return maxLocal
}

// MaxLocal returns the largest local of the graph (parameters included), or -1 if there are none.
func (g *Graph) MaxLocal() Local {
	maxLocal := MaxLocal(g.Body)
	for _, l := range g.Params {
		maxLocal = max(maxLocal, l)
	}
	return maxLocal
}

// FreeLocals returns the locals used in e (as arguments or returned values) that are not bound by a
// previous Let of e, in order of first use.
//
// Nested graphs are their own closed scopes, so their bodies are not inspected.
func FreeLocals(e Expr) []Local {
	bound := make(map[Local]bool)
	seen := make(map[Local]bool)
	var free []Local
	use := func(l Local) {
		if !bound[l] && !seen[l] {
			seen[l] = true
			free = append(free, l)
		}
	}
	lets, ret := Unchain(e)
	for _, let := range lets {
		for _, l := range let.Bind.RVal.Args {
			use(l)
		}
		for _, l := range let.Bind.LVals {
			bound[l] = true
		}
	}
	for _, l := range ret.Locals {
		use(l)
	}
	return free
}

// FreeLocals returns the locals used in the graph body that are not parameters nor defined in the body.
// It is empty for a closed graph.
func (g *Graph) FreeLocals() []Local {
	var free []Local
	for _, l := range FreeLocals(g.Body) {
		if !slices.Contains(g.Params, l) {
			free = append(free, l)
		}
	}
	return free
}

// Binders returns every binding occurrence of a local in g, that is, parameters and Let results, including
// the ones of nested graphs, in the order they appear.
func Binders(g *Graph) []Local {
	binders := slices.Clone(g.Params)
	lets, _ := Unchain(g.Body)
	for _, let := range lets {
		if mapOp, ok := let.Bind.RVal.Op.(*MapOp); ok {
			binders = append(binders, Binders(mapOp.Graph)...)
		}
		binders = append(binders, let.Bind.LVals...)
	}
	return binders
}

// Validate checks that the graph is well-formed:
//
//   - Every local is defined (as a parameter or by a previous Let) before it is used: this also means the
//     graph is closed.
//   - No local is bound twice in the same scope.
//   - PrimOp instructions have the number of arguments and results of their primitive.
//   - MapOp instructions have one argument per parameter and one result per output of their graph, and
//     their graphs are themselves valid.
//
// The errors returned wrap ErrMalformedGraph.
func (g *Graph) Validate() error {
	defined := make(map[Local]bool, len(g.Params))
	for _, l := range g.Params {
		if defined[l] {
			return errors.Wrapf(ErrMalformedGraph, "parameter %s declared more than once", l)
		}
		defined[l] = true
	}
	lets, ret := Unchain(g.Body)
	for letIdx, let := range lets {
		insn := let.Bind.RVal
		if insn == nil {
			return errors.Wrapf(ErrMalformedGraph, "binding #%d has no instruction", letIdx)
		}
		for _, l := range insn.Args {
			if !defined[l] {
				return errors.Wrapf(ErrMalformedGraph, "binding #%d (%s): argument %s used before being defined",
					letIdx, insn.Op.OpName(), l)
			}
		}
		switch op := insn.Op.(type) {
		case *PrimOp:
			numInputs, numOutputs := op.Type.Arity()
			if numInputs < 0 {
				return errors.Wrapf(ErrMalformedGraph, "binding #%d: invalid primitive %s", letIdx, op.Type)
			}
			if len(insn.Args) != numInputs || len(let.Bind.LVals) != numOutputs {
				return errors.Wrapf(ErrMalformedGraph, "binding #%d: %s takes %d arguments and returns %d results, got %d arguments and %d results",
					letIdx, op.Type, numInputs, numOutputs, len(insn.Args), len(let.Bind.LVals))
			}
		case *MapOp:
			if op.Graph == nil {
				return errors.Wrapf(ErrMalformedGraph, "binding #%d: map without a graph", letIdx)
			}
			if len(insn.Args) != len(op.Graph.Params) {
				return errors.Wrapf(ErrMalformedGraph, "binding #%d: map over a graph with %d parameters given %d arguments",
					letIdx, len(op.Graph.Params), len(insn.Args))
			}
			if numOutputs := op.Graph.NumOutputs(); len(let.Bind.LVals) != numOutputs {
				return errors.Wrapf(ErrMalformedGraph, "binding #%d: map over a graph with %d outputs bound to %d results",
					letIdx, numOutputs, len(let.Bind.LVals))
			}
			if err := op.Graph.Validate(); err != nil {
				return errors.WithMessagef(err, "in graph of binding #%d", letIdx)
			}
		case *PythonOp:
			// Opaque, nothing to check.
		default:
			return errors.Wrapf(ErrMalformedGraph, "binding #%d: unknown operator type %T", letIdx, op)
		}
		for _, l := range let.Bind.LVals {
			if defined[l] {
				return errors.Wrapf(ErrMalformedGraph, "binding #%d (%s): local %s is bound more than once",
					letIdx, insn.Op.OpName(), l)
			}
			defined[l] = true
		}
	}
	for _, l := range ret.Locals {
		if !defined[l] {
			return errors.Wrapf(ErrMalformedGraph, "returned local %s is not defined", l)
		}
	}
	return nil
}

// Canonical returns a copy of g with its locals renumbered from 0, in the order they are bound: parameters
// first, then for each Let the locals of its nested graph (if any) and then its results.
//
// Two graphs that differ only by a consistent renaming of their locals have the same canonical form, so
// comparing canonical forms (or their text) checks for alpha-equivalence.
//
// g must be valid (see Graph.Validate), otherwise it panics with a RenamingLookupError.
func Canonical(g *Graph) *Graph {
	return Freshen(g, NewSupply(0))
}

// Freshen returns a copy of g with all its locals, including the ones of nested graphs, replaced by fresh
// locals allocated from supply, in the order described in Canonical.
//
// g must be valid (see Graph.Validate), otherwise it panics with a RenamingLookupError.
func Freshen(g *Graph, supply *Supply) *Graph {
	renaming := make(Renaming)
	params := make([]Local, len(g.Params))
	for i, l := range g.Params {
		params[i] = renaming.Fresh(supply, l)
	}
	lets, ret := Unchain(g.Body)
	binds := make([]Bind, len(lets))
	for i, let := range lets {
		insn := let.Bind.RVal
		op := insn.Op
		if mapOp, ok := op.(*MapOp); ok {
			op = &MapOp{Graph: Freshen(mapOp.Graph, supply)}
		}
		newInsn := &Instruction{Op: op, Args: renaming.RenameAll(insn.Args)}
		lvals := make([]Local, len(let.Bind.LVals))
		for j, l := range let.Bind.LVals {
			lvals[j] = renaming.Fresh(supply, l)
		}
		binds[i] = Bind{LVals: lvals, RVal: newInsn}
	}
	return &Graph{Params: params, Body: Chain(binds, &Tuple{Locals: renaming.RenameAll(ret.Locals)})}
}
