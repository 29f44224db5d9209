// Package pointwise runs (fused) elementwise graphs, see package ir, on an elementwise-apply backend.
//
// The backend is an external primitive that takes a list of buffers and the source of a scalar kernel,
// and executes the kernel once per element. There are fixed-arity entry points, taking 2 or 3 buffers, and
// optionally (see VariadicBackend) an entry point taking any number of buffers.
//
// Example:
//
//	m := pointwise.NewMap(backend, fusedGraph)
//	outputs, err := m.Apply(x, y).Done()
package pointwise

import (
	"github.com/gomlx/pointwise/dtypes"
	"github.com/gomlx/pointwise/kernel"
	"github.com/pkg/errors"
)

var (
	// ErrMalformedInput is returned when Map.Apply is given no inputs, or a number of inputs that doesn't
	// match the graph parameters.
	ErrMalformedInput = errors.New("malformed input")

	// ErrArityExceeded is returned when the graph needs more buffers than the selected apply entry point
	// supports. It is the same error returned by the kernel printers.
	ErrArityExceeded = kernel.ErrArityExceeded

	// ErrFusionExecution is returned when the backend reports a failure running the kernel.
	// Backends give no further details.
	ErrFusionExecution = errors.New("unspecified failure running fused op")

	// ErrBackwardUnsupported is returned by Map.Backward: gradients of fused maps are not supported.
	ErrBackwardUnsupported = errors.New("backwards for fused maps not supported")
)

// Buffer is a tensor stored by the backend. All buffers given to one apply call have the same shape and
// dtype: checking it is the responsibility of the backend.
type Buffer interface {
	DType() dtypes.DType
	Dims() []int
}

// Backend is the elementwise-apply primitive.
//
// The buffers are named in the kernel source: the fixed-arity entry points use the names "x", "y" and "z",
// in that order, and the kernel writes to "x".
// The entry points return false on failure.
type Backend interface {
	// NewBufferLike allocates a new buffer with the same shape and dtype as buffer.
	NewBufferLike(buffer Buffer) (Buffer, error)

	// PointwiseApply2 runs op for each element of out and in.
	PointwiseApply2(out, in Buffer, op string) bool

	// PointwiseApply3 runs op for each element of out, in0 and in1.
	PointwiseApply3(out, in0, in1 Buffer, op string) bool
}

// VariadicBackend is a Backend that also supports any number of buffers.
type VariadicBackend interface {
	Backend

	// PointwiseApplyMany runs op for each element of the buffers, named in the source "x0", "x1", ... in order.
	PointwiseApplyMany(buffers []Buffer, op string) bool
}

// MaxFixedArityBuffers is the largest number of buffers (outputs included) of the fixed-arity entry points.
const MaxFixedArityBuffers = 3
