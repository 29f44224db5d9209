package ir

import (
	"fmt"
	"sync/atomic"

	"github.com/gomlx/exceptions"
)

// Local names a value in the scope of a Graph, rendered as `%N`.
type Local int

// String implements fmt.Stringer.
func (l Local) String() string {
	return fmt.Sprintf("%%%d", int(l))
}

// Supply allocates fresh, monotonically increasing, Local identifiers.
//
// It must be passed explicitly to everything that creates locals (Builder, fusion passes), and one Supply
// should be used per session: identifiers are never reused within a Supply, including across graph splices.
// It is safe for concurrent use.
type Supply struct {
	next atomic.Int64
}

// NewSupply returns a Supply whose first fresh Local is next.
func NewSupply(next Local) *Supply {
	s := &Supply{}
	s.next.Store(int64(next))
	return s
}

// SupplyAfter returns a Supply whose locals don't clash with any local in the given expressions,
// including the ones in nested graphs.
func SupplyAfter(exprs ...Expr) *Supply {
	maxLocal := Local(-1)
	for _, e := range exprs {
		maxLocal = max(maxLocal, MaxLocal(e))
	}
	return NewSupply(maxLocal + 1)
}

// Fresh returns a new Local.
func (s *Supply) Fresh() Local {
	return Local(s.next.Add(1) - 1)
}

// Peek returns the next Local that will be returned by Fresh, without allocating it.
func (s *Supply) Peek() Local {
	return Local(s.next.Load())
}

// Renaming maps locals of one scope to the fresh locals allocated for them in another.
type Renaming map[Local]Local

// Fresh allocates a new local from supply for old and records it.
func (r Renaming) Fresh(supply *Supply, old Local) Local {
	l := supply.Fresh()
	r[old] = l
	return l
}

// Rename returns the local registered for old.
//
// It panics if old was never registered with Fresh: that means a local was used outside the scope where
// it was defined, which is a bug in the transformation, not a recoverable condition.
func (r Renaming) Rename(old Local) Local {
	l, found := r[old]
	if !found {
		exceptions.Panicf("RenamingLookupError: local %s used for renaming without ever being registered", old)
	}
	return l
}

// RenameAll returns a new slice with each local renamed. See Rename.
func (r Renaming) RenameAll(locals []Local) []Local {
	renamed := make([]Local, len(locals))
	for i, l := range locals {
		renamed[i] = r.Rename(l)
	}
	return renamed
}
