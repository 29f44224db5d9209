// Package dtypes lists the element types of the buffers the pointwise kernels run over.
package dtypes

import (
	"github.com/x448/float16"
)

// DType is the element type of a buffer.
type DType int

//go:generate go tool enumer -type DType dtypes.go

const (
	// Invalid represents an invalid (or not set) dtype.
	Invalid DType = iota

	Float16
	Float32
	Float64
)

// Aliases to the names used by XLA and PJRT.
const (
	F16 = Float16
	F32 = Float32
	F64 = Float64
)

// Supported lists the Go types that can be stored in a buffer.
type Supported interface {
	float16.Float16 | float32 | float64
}

// FromGenericsType returns the DType enum for the given Go type.
func FromGenericsType[T Supported]() DType {
	var t T
	return FromAny(t)
}

// FromAny returns the DType of the given value, or Invalid if the type is not supported.
func FromAny(value any) DType {
	switch value.(type) {
	case float16.Float16:
		return Float16
	case float32:
		return Float32
	case float64:
		return Float64
	default:
		return Invalid
	}
}

// Size returns the number of bytes of one element of the dtype.
func (d DType) Size() int {
	switch d {
	case Float16:
		return 2
	case Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

// CType returns the scalar type used for this dtype in generated kernel source.
// Half precision values are computed in float.
func (d DType) CType() string {
	if d == Float64 {
		return "double"
	}
	return "float"
}
