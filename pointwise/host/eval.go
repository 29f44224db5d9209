package host

import (
	"math"

	"github.com/chewxy/math32"
)

// float is the type the kernels compute with. Half precision buffers are computed in float32.
type float interface {
	float32 | float64
}

// mathFunctions of the kernels, for one float type.
type mathFunctions[T float] struct {
	exp, tanh func(T) T
}

var (
	math32Functions = mathFunctions[float32]{exp: math32.Exp, tanh: math32.Tanh}
	math64Functions = mathFunctions[float64]{exp: math.Exp, tanh: math.Tanh}
)

// compiled is a program turned into closures for one float type.
type compiled[T float] struct {
	prog  *program
	stmts []func(vars []T)
}

func compile[T float](prog *program, fns mathFunctions[T]) *compiled[T] {
	c := &compiled[T]{prog: prog}
	for _, st := range prog.stmts {
		slot := st.slot
		if st.value == nil {
			c.stmts = append(c.stmts, func(vars []T) { vars[slot] = 0 })
			continue
		}
		value := compileNode(st.value, fns)
		c.stmts = append(c.stmts, func(vars []T) { vars[slot] = value(vars) })
	}
	return c
}

func compileNode[T float](n node, fns mathFunctions[T]) func(vars []T) T {
	switch n := n.(type) {
	case *numberNode:
		v := T(n.value)
		return func([]T) T { return v }
	case *slotNode:
		slot := n.slot
		return func(vars []T) T { return vars[slot] }
	case *negNode:
		x := compileNode(n.x, fns)
		return func(vars []T) T { return -x(vars) }
	case *binaryNode:
		x, y := compileNode(n.x, fns), compileNode(n.y, fns)
		switch n.op {
		case '+':
			return func(vars []T) T { return x(vars) + y(vars) }
		case '-':
			return func(vars []T) T { return x(vars) - y(vars) }
		case '*':
			return func(vars []T) T { return x(vars) * y(vars) }
		case '/':
			return func(vars []T) T { return x(vars) / y(vars) }
		}
	case *callNode:
		arg := compileNode(n.arg, fns)
		fn := fns.exp
		if n.fn == "tanhf" || n.fn == "tanh" {
			fn = fns.tanh
		}
		return func(vars []T) T { return fn(arg(vars)) }
	}
	panic("unknown kernel expression node")
}

// run executes the program once per element of the buffers, which must all have the same length.
func (c *compiled[T]) run(buffers [][]T) {
	if len(buffers) == 0 {
		return
	}
	vars := make([]T, c.prog.numSlots)
	for i := range buffers[0] {
		for b, buffer := range buffers {
			vars[b] = buffer[i]
		}
		for _, st := range c.stmts {
			st(vars)
		}
		for b, buffer := range buffers {
			if c.prog.written[b] {
				buffer[i] = vars[b]
			}
		}
	}
}
