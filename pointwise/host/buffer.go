package host

import (
	"fmt"
	"slices"

	"github.com/gomlx/pointwise/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Buffer is a tensor stored in host memory, as a flat Go slice.
type Buffer struct {
	dtype dtypes.DType
	dims  []int

	// flat is a []float16.Float16, []float32 or []float64, depending on dtype.
	flat any
}

// FromFlat creates a Buffer holding a copy of flat, with the given dimensions.
// If no dimensions are given, the buffer has one axis of length len(flat).
func FromFlat[T dtypes.Supported](flat []T, dims ...int) (*Buffer, error) {
	if len(dims) == 0 {
		dims = []int{len(flat)}
	}
	if size := sizeOf(dims); size != len(flat) {
		return nil, errors.Errorf("FromFlat: dimensions %v have %d elements, but %d values were given", dims, size, len(flat))
	}
	return &Buffer{
		dtype: dtypes.FromGenericsType[T](),
		dims:  slices.Clone(dims),
		flat:  slices.Clone(flat),
	}, nil
}

// Zeros creates a Buffer of the given dtype and dimensions, filled with zeros.
func Zeros(dtype dtypes.DType, dims ...int) (*Buffer, error) {
	size := sizeOf(dims)
	b := &Buffer{dtype: dtype, dims: slices.Clone(dims)}
	switch dtype {
	case dtypes.Float16:
		b.flat = make([]float16.Float16, size)
	case dtypes.Float32:
		b.flat = make([]float32, size)
	case dtypes.Float64:
		b.flat = make([]float64, size)
	default:
		return nil, errors.Errorf("Zeros: dtype %s not supported by the host backend", dtype)
	}
	return b, nil
}

func sizeOf(dims []int) int {
	size := 1
	for _, dim := range dims {
		size *= dim
	}
	return size
}

// DType returns the element type of the buffer.
func (b *Buffer) DType() dtypes.DType { return b.dtype }

// Dims returns the dimensions of the buffer. It shouldn't be modified.
func (b *Buffer) Dims() []int { return b.dims }

// Size returns the number of elements of the buffer.
func (b *Buffer) Size() int { return sizeOf(b.dims) }

// Flat returns the values of the buffer. It fails if T doesn't match the buffer dtype.
//
// The returned slice shares the buffer storage.
func Flat[T dtypes.Supported](b *Buffer) ([]T, error) {
	flat, ok := b.flat.([]T)
	if !ok {
		var t T
		return nil, errors.Errorf("Flat: buffer has dtype %s, requested %T", b.dtype, t)
	}
	return flat, nil
}

// Float64s returns a copy of the values of the buffer converted to float64.
func (b *Buffer) Float64s() []float64 {
	values := make([]float64, b.Size())
	switch flat := b.flat.(type) {
	case []float16.Float16:
		for i, v := range flat {
			values[i] = float64(v.Float32())
		}
	case []float32:
		for i, v := range flat {
			values[i] = float64(v)
		}
	case []float64:
		copy(values, flat)
	}
	return values
}

// String implements fmt.Stringer.
func (b *Buffer) String() string {
	return fmt.Sprintf("%s%v%v", b.dtype, b.dims, b.flat)
}
