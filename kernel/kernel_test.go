package kernel

import (
	"fmt"
	"strings"
	"testing"

	"github.com/gomlx/pointwise/ir"
	"github.com/gomlx/pointwise/ir/primops"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestFormulas(t *testing.T) {
	for primType, want := range map[primops.PrimType][]string{
		primops.Add:             {"(a + b)"},
		primops.Mul:             {"(a * b)"},
		primops.Sigmoid:         {"(1.0f / (1.0f + expf(-a)))"},
		primops.Tanh:            {"tanhf(a)"},
		primops.Id:              {"a"},
		primops.AddBackward:     {"a", "a"},
		primops.MulBackward:     {"(a * c)", "(a * b)"},
		primops.SigmoidBackward: {"(a * (b * (1.0f - b)))"},
		primops.TanhBackward:    {"(a * (1.0f - (b * b)))"},
	} {
		numInputs, numOutputs := primType.Arity()
		args := []string{"a", "b", "c"}[:numInputs]
		got, err := Formulas(primType, args)
		require.NoErrorf(t, err, "Formulas(%s)", primType)
		require.Equalf(t, want, got, "Formulas(%s)", primType)
		require.Len(t, got, numOutputs)
	}

	_, err := Formulas(primops.Add, []string{"a"})
	require.ErrorContains(t, err, "takes 2 arguments")
	_, err = Formulas(primops.Invalid, nil)
	require.True(t, errors.Is(err, ErrUnsupportedOperator))
}

func TestExpression(t *testing.T) {
	g := must.M1(ir.Parse(`graph %0, %1 {
  %2 = Mul(%0, %1)
  %3 = Sigmoid(%2)
  ret %3
}`))
	expr, err := Expression(g)
	require.NoError(t, err)
	require.Equal(t, "(1.0f / (1.0f + expf(-(y * z))))", expr)

	// Locals used twice are repeated, and a returned parameter is just its slot.
	g = must.M1(ir.Parse(`graph %0 {
  %1 = Tanh(%0)
  %2 = TanhBackward(%0, %1)
  ret %2
}`))
	expr, err = Expression(g)
	require.NoError(t, err)
	require.Equal(t, "(y * (1.0f - (tanhf(y) * tanhf(y))))", expr)
	expr, err = Expression(must.M1(ir.Parse("graph %7 { ret %7 }")))
	require.NoError(t, err)
	require.Equal(t, "y", expr)
}

func TestExpressionErrors(t *testing.T) {
	testCases := []struct {
		text    string
		wantErr error
	}{
		{`graph %0, %1, %2 {
  %3 = Add(%0, %1)
  ret %3
}`, ErrArityExceeded},
		{`graph %0 {
  %1 = map(%0) graph %2 {
    %3 = Tanh(%2)
    ret %3
  }
  ret %1
}`, ErrUnsupportedOperator},
		{`graph %0 {
  %1 = python "Linear"(%0)
  ret %1
}`, ErrUnsupportedOperator},
		{`graph %0 {
  %1, %2 = AddBackward(%0)
  ret %1, %2
}`, ErrUnsupportedGraph},
	}
	for _, tc := range testCases {
		_, err := Expression(must.M1(ir.Parse(tc.text)))
		require.Errorf(t, err, "Expression(%s)", tc.text)
		require.Truef(t, errors.Is(err, tc.wantErr), "Expression(%s) returned %v, wanted %v", tc.text, err, tc.wantErr)
	}
}

func TestBody(t *testing.T) {
	g := must.M1(ir.Parse(`graph %0, %1 {
  %2 = Add(%0, %1)
  %3, %4 = MulBackward(%2, %0, %1)
  ret %3, %4
}`))
	body, err := Body(g)
	require.NoError(t, err)
	want := `float v0 = input0;
float v1 = input1;
float v2 = (v0 + v1);
float v3 = (v2 * v1);
float v4 = (v2 * v0);
output0 = v3;
output1 = v4;
`
	require.Equal(t, want, body)
}

func TestBodyNestedMap(t *testing.T) {
	g := must.M1(ir.Parse(`graph %0 {
  %1 = Tanh(%0)
  %2 = map(%1) graph %3 {
    %4 = Sigmoid(%3)
    ret %4
  }
  ret %2
}`))
	body, err := Body(g)
	require.NoError(t, err)
	want := `float v0 = input0;
float v1 = tanhf(v0);
float v2;
{
  float v3 = v1;
  float v4 = (1.0f / (1.0f + expf(-v3)));
  v2 = v4;
}
output0 = v2;
`
	require.Equal(t, want, body)

	// Nested graph reusing the ids of the enclosing one: it's renumbered so nothing is shadowed.
	g = must.M1(ir.Parse(`graph %0 {
  %1 = map(%0) graph %0 {
    %1 = Tanh(%0)
    ret %1
  }
  ret %1
}`))
	require.NoError(t, g.Validate())
	body, err = Body(g)
	require.NoError(t, err)
	want = `float v0 = input0;
float v3;
{
  float v1 = v0;
  float v2 = tanhf(v1);
  v3 = v2;
}
output0 = v3;
`
	require.Equal(t, want, body)
}

func TestBodyErrors(t *testing.T) {
	for _, text := range []string{
		`graph %0 {
  %1 = python "Linear"(%0)
  ret %1
}`,
		`graph %0 {
  %1 = map(%0) graph %2 {
    %3 = map(%2) graph %4 {
      %5 = Tanh(%4)
      ret %5
    }
    ret %3
  }
  ret %1
}`,
	} {
		_, err := Body(must.M1(ir.Parse(text)))
		require.Truef(t, errors.Is(err, ErrUnsupportedOperator), "Body(%s) returned %v", text, err)
	}
}

func TestWriteBodyConvention(t *testing.T) {
	g := must.M1(ir.Parse(`graph %0, %1 {
  %2 = Mul(%0, %1)
  ret %2, %0
}`))
	conv := Convention{
		ScalarType: "double",
		InputName:  func(i int) string { return fmt.Sprintf("in[%d]", i) },
		OutputName: func(i int) string { return fmt.Sprintf("out[%d]", i) },
	}
	var sb strings.Builder
	require.NoError(t, WriteBody(&sb, g, conv))
	want := `double v0 = in[0];
double v1 = in[1];
double v2 = (v0 * v1);
out[0] = v2;
out[1] = v0;
`
	require.Equal(t, want, sb.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteBodyWriterError(t *testing.T) {
	g := must.M1(ir.Parse("graph %0 { ret %0 }"))
	require.ErrorContains(t, WriteBody(failingWriter{}, g, DefaultConvention), "disk full")
}

func TestBodyMalformedGraph(t *testing.T) {
	for _, text := range []string{
		"graph %0 { %0 = Tanh(%5) ret %0 }",
		"graph %0 { %1 = Tanh(%0) %1 = Sigmoid(%0) ret %1 }",
	} {
		_, err := Body(must.M1(ir.Parse(text)))
		require.Truef(t, errors.Is(err, ir.ErrMalformedGraph), "Body(%s) returned %v", text, err)
	}
}

func TestExpressionSizeLimit(t *testing.T) {
	// Each Add doubles the size of the expression.
	b := ir.NewBuilder(ir.NewSupply(0))
	x := b.Param()
	for range 22 {
		x = must.M1(b.Prim(primops.Add, x, x))
	}
	g := must.M1(b.Return(x))
	_, err := Expression(g)
	require.Truef(t, errors.Is(err, ErrUnsupportedGraph), "Expression() returned %v", err)

	// The body form is linear in the size of the graph.
	body, err := Body(g)
	require.NoError(t, err)
	require.Less(t, len(body), 2048)
}
