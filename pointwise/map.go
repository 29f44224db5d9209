package pointwise

import (
	"github.com/gomlx/pointwise/ir"
	"github.com/gomlx/pointwise/kernel"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Map is an elementwise operator defined by a graph, usually the result of fusion, executed on a Backend.
type Map struct {
	backend Backend
	graph   *ir.Graph
}

// NewMap creates a Map that applies g using backend.
//
// g can only contain primitives and at most one level of nested maps: see kernel.WriteBody.
func NewMap(backend Backend, g *ir.Graph) *Map {
	return &Map{backend: backend, graph: g}
}

// Graph returns the graph applied by the Map.
func (m *Map) Graph() *ir.Graph {
	return m.graph
}

// Apply the Map to the inputs. It returns an ApplyConfig for further configuration.
// Call ApplyConfig.Done and the kernel is generated and executed.
//
// By default, it uses the variadic entry point if the backend is a VariadicBackend, and the fixed-arity
// entry points otherwise.
//
// Example:
//
//	outputs, err := m.Apply(x, y).Done()
func (m *Map) Apply(inputs ...Buffer) *ApplyConfig {
	return &ApplyConfig{
		m:      m,
		inputs: inputs,
	}
}

// Backward returns the gradients of the inputs given the gradients of the outputs.
// It is not supported for fused maps and always returns ErrBackwardUnsupported.
func (m *Map) Backward(gradOutputs ...Buffer) ([]Buffer, error) {
	return nil, errors.Wrapf(ErrBackwardUnsupported, "Map.Backward() given %d gradients", len(gradOutputs))
}

// ApplyConfig holds the configuration for applying a Map. It is created with Map.Apply.
//
// After configuring it, call Done to actually trigger the execution.
type ApplyConfig struct {
	m          *Map
	inputs     []Buffer
	fixedArity bool
}

// WithFixedArity forces the use of the fixed-arity entry points (PointwiseApply2 and PointwiseApply3), even
// if the backend supports the variadic one. The graph must then have a single output and at most 2 inputs.
func (c *ApplyConfig) WithFixedArity() *ApplyConfig {
	c.fixedArity = true
	return c
}

// Done generates the kernel source and executes it, returning one new buffer per output of the graph.
func (c *ApplyConfig) Done() ([]Buffer, error) {
	g := c.m.graph
	numInputs := len(c.inputs)
	if numInputs == 0 {
		return nil, errors.Wrap(ErrMalformedInput, "cannot map over no inputs")
	}
	if numInputs != len(g.Params) {
		return nil, errors.Wrapf(ErrMalformedInput, "graph takes %d inputs, %d given", len(g.Params), numInputs)
	}
	for i, input := range c.inputs {
		if input == nil {
			return nil, errors.Wrapf(ErrMalformedInput, "input #%d is nil", i)
		}
	}
	if err := g.Validate(); err != nil {
		return nil, errors.WithMessage(err, "Map.Apply()")
	}

	variadic, isVariadic := c.m.backend.(VariadicBackend)
	if isVariadic && !c.fixedArity {
		return c.applyMany(variadic)
	}
	return c.applyFixed()
}

// newOutputs allocates n buffers shaped as the first input.
func (c *ApplyConfig) newOutputs(n int) ([]Buffer, error) {
	outputs := make([]Buffer, n)
	for i := range outputs {
		var err error
		outputs[i], err = c.m.backend.NewBufferLike(c.inputs[0])
		if err != nil {
			return nil, errors.WithMessagef(err, "Map.Apply() failed to allocate output #%d", i)
		}
	}
	return outputs, nil
}

func (c *ApplyConfig) applyMany(backend VariadicBackend) ([]Buffer, error) {
	g := c.m.graph
	source, err := VariadicSource(g, c.inputs[0].DType().CType())
	if err != nil {
		return nil, errors.WithMessage(err, "Map.Apply() failed to generate kernel")
	}
	outputs, err := c.newOutputs(g.NumOutputs())
	if err != nil {
		return nil, err
	}
	buffers := make([]Buffer, 0, len(outputs)+len(c.inputs))
	buffers = append(buffers, outputs...)
	buffers = append(buffers, c.inputs...)
	klog.V(1).Infof("pointwise: applying %d buffers (%d outputs) with the variadic entry point", len(buffers), len(outputs))
	klog.V(2).Infof("pointwise: kernel source:\n%s", source)
	if !backend.PointwiseApplyMany(buffers, source) {
		return nil, errors.Wrapf(ErrFusionExecution, "PointwiseApplyMany() with %d buffers", len(buffers))
	}
	return outputs, nil
}

func (c *ApplyConfig) applyFixed() ([]Buffer, error) {
	g := c.m.graph
	if g.NumOutputs() != 1 {
		return nil, errors.Wrapf(kernel.ErrUnsupportedGraph, "fixed-arity apply requires exactly one output, graph has %d",
			g.NumOutputs())
	}
	source, err := FixedAritySource(g)
	if err != nil {
		return nil, errors.WithMessage(err, "Map.Apply() failed to generate kernel")
	}
	outputs, err := c.newOutputs(1)
	if err != nil {
		return nil, err
	}
	out := outputs[0]
	klog.V(1).Infof("pointwise: applying %d buffers with the fixed-arity entry point", len(c.inputs)+1)
	klog.V(2).Infof("pointwise: kernel source: %s", source)
	var ok bool
	switch len(c.inputs) {
	case 1:
		ok = c.m.backend.PointwiseApply2(out, c.inputs[0], source)
	case 2:
		ok = c.m.backend.PointwiseApply3(out, c.inputs[0], c.inputs[1], source)
	}
	if !ok {
		return nil, errors.Wrapf(ErrFusionExecution, "fixed-arity apply with %d buffers", len(c.inputs)+1)
	}
	return outputs, nil
}
