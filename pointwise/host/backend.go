// Package host implements a pointwise.Backend over host memory, interpreting the kernel source.
//
// It is a reference implementation of the elementwise-apply primitive, used to execute and test fused
// graphs without an accelerator. The kernel source is parsed once per call and then evaluated for every
// element, in float32 (using github.com/chewxy/math32) for Float32 and Float16 buffers, and in float64
// for Float64 buffers.
package host

import (
	"slices"
	"sync/atomic"

	"github.com/gomlx/pointwise/dtypes"
	"github.com/gomlx/pointwise/pointwise"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

// Backend implements pointwise.Backend with the fixed-arity entry points only.
// See VariadicBackend for one that also accepts any number of buffers.
type Backend struct {
	failNext atomic.Bool
	numCalls atomic.Int64
}

var _ pointwise.Backend = (*Backend)(nil)

// New creates a host backend with only the fixed-arity entry points.
func New() *Backend {
	return &Backend{}
}

// VariadicBackend implements pointwise.VariadicBackend.
type VariadicBackend struct {
	Backend
}

var _ pointwise.VariadicBackend = (*VariadicBackend)(nil)

// NewVariadic creates a host backend that also supports PointwiseApplyMany.
func NewVariadic() *VariadicBackend {
	return &VariadicBackend{}
}

// FailNext makes the next apply call fail (return false), as if the kernel failed to execute.
func (b *Backend) FailNext() {
	b.failNext.Store(true)
}

// NumCalls returns the number of apply calls made so far, successful or not.
func (b *Backend) NumCalls() int {
	return int(b.numCalls.Load())
}

// NewBufferLike implements pointwise.Backend.
func (b *Backend) NewBufferLike(buffer pointwise.Buffer) (pointwise.Buffer, error) {
	return Zeros(buffer.DType(), buffer.Dims()...)
}

// PointwiseApply2 implements pointwise.Backend: out is named "x" and in is named "y" in op.
func (b *Backend) PointwiseApply2(out, in pointwise.Buffer, op string) bool {
	return b.apply([]pointwise.Buffer{out, in}, []string{"x", "y"}, op)
}

// PointwiseApply3 implements pointwise.Backend: out is named "x", in0 "y" and in1 "z" in op.
func (b *Backend) PointwiseApply3(out, in0, in1 pointwise.Buffer, op string) bool {
	return b.apply([]pointwise.Buffer{out, in0, in1}, []string{"x", "y", "z"}, op)
}

// PointwiseApplyMany implements pointwise.VariadicBackend: buffers are named "x0", "x1", ... in op.
func (b *VariadicBackend) PointwiseApplyMany(buffers []pointwise.Buffer, op string) bool {
	names := make([]string, len(buffers))
	for i := range names {
		names[i] = pointwise.BufferName(i)
	}
	return b.apply(buffers, names, op)
}

// apply reports errors by logging them and returning false, as the apply primitive does.
func (b *Backend) apply(buffers []pointwise.Buffer, names []string, op string) bool {
	b.numCalls.Add(1)
	if b.failNext.Swap(false) {
		klog.V(1).Infof("host backend: failing apply of %d buffers as requested", len(buffers))
		return false
	}
	if err := execute(buffers, names, op); err != nil {
		klog.Warningf("host backend: %v", err)
		return false
	}
	return true
}

func execute(buffers []pointwise.Buffer, names []string, op string) error {
	hostBuffers := make([]*Buffer, len(buffers))
	for i, buffer := range buffers {
		hostBuffer, ok := buffer.(*Buffer)
		if !ok || hostBuffer == nil {
			return errors.Errorf("buffer %s is a %T, not a host buffer", names[i], buffer)
		}
		if i > 0 {
			first := hostBuffers[0]
			if hostBuffer.dtype != first.dtype || !slices.Equal(hostBuffer.dims, first.dims) {
				return errors.Errorf("buffer %s (%s%v) doesn't match buffer %s (%s%v)",
					names[i], hostBuffer.dtype, hostBuffer.dims, names[0], first.dtype, first.dims)
			}
		}
		hostBuffers[i] = hostBuffer
	}
	prog, err := parseProgram(op, names)
	if err != nil {
		return err
	}

	switch hostBuffers[0].dtype {
	case dtypes.Float32:
		flats, err := flatsOf[float32](hostBuffers)
		if err != nil {
			return err
		}
		compile(prog, math32Functions).run(flats)
	case dtypes.Float64:
		flats, err := flatsOf[float64](hostBuffers)
		if err != nil {
			return err
		}
		compile(prog, math64Functions).run(flats)
	case dtypes.Float16:
		halves, err := flatsOf[float16.Float16](hostBuffers)
		if err != nil {
			return err
		}
		flats := make([][]float32, len(halves))
		for i, half := range halves {
			flats[i] = make([]float32, len(half))
			for j, v := range half {
				flats[i][j] = v.Float32()
			}
		}
		compile(prog, math32Functions).run(flats)
		for i, half := range halves {
			if !prog.written[i] {
				continue
			}
			for j, v := range flats[i] {
				half[j] = float16.Fromfloat32(v)
			}
		}
	default:
		return errors.Errorf("dtype %s not supported", hostBuffers[0].dtype)
	}
	return nil
}

func flatsOf[T dtypes.Supported](buffers []*Buffer) ([][]T, error) {
	flats := make([][]T, len(buffers))
	for i, buffer := range buffers {
		var err error
		flats[i], err = Flat[T](buffer)
		if err != nil {
			return nil, errors.WithMessagef(err, "buffer #%d", i)
		}
	}
	return flats, nil
}
