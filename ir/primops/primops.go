// Package primops defines PrimType and lists the primitive elementwise operations that can be lowered to
// kernel source.
package primops

// PrimType is an enum of the primitive scalar operations of the IR.
type PrimType int

//go:generate go tool enumer -type PrimType primops.go

const (
	Invalid PrimType = iota

	Add
	Mul
	Sigmoid
	Tanh
	Id

	// Backward versions take the output gradient as their first argument.

	AddBackward
	MulBackward
	SigmoidBackward
	TanhBackward

	// Last should always be kept the last, it is used as a counter/marker.
	Last
)

// arities lists the number of inputs and outputs of each primitive.
var arities = [Last][2]int{
	Add:             {2, 1},
	Mul:             {2, 1},
	Sigmoid:         {1, 1},
	Tanh:            {1, 1},
	Id:              {1, 1},
	AddBackward:     {1, 2}, // grad -> (grad_lhs, grad_rhs)
	MulBackward:     {3, 2}, // grad, lhs, rhs -> (grad_lhs, grad_rhs)
	SigmoidBackward: {2, 1}, // grad, sigmoid(x)
	TanhBackward:    {2, 1}, // grad, tanh(x)
}

// Arity returns the number of inputs and outputs of the primitive.
// It returns (-1, -1) for Invalid, Last or unknown values.
func (p PrimType) Arity() (numInputs, numOutputs int) {
	if p <= Invalid || p >= Last {
		return -1, -1
	}
	a := arities[p]
	return a[0], a[1]
}

// IsBackward returns whether the primitive is the gradient of another primitive.
func (p PrimType) IsBackward() bool {
	switch p {
	case AddBackward, MulBackward, SigmoidBackward, TanhBackward:
		return true
	default:
		return false
	}
}
