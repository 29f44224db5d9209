package main

import (
	"strings"
	"testing"

	"github.com/gomlx/pointwise/dtypes"
	"github.com/gomlx/pointwise/ir"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

func TestPrintKernels(t *testing.T) {
	g := must.M1(ir.Parse(`graph %0, %1 {
  %2 = map(%0, %1) graph %3, %4 {
    %5 = Add(%3, %4)
    ret %5
  }
  %6 = python "Linear"(%2)
  ret %6
}`))
	var sb strings.Builder
	require.NoError(t, printKernels(&sb, g))
	want := `
Kernel of map bound to [%2]:
float v3 = input0;
float v4 = input1;
float v5 = (v3 + v4);
output0 = v5;
Single expression form: x = (y + z);
`
	require.Equal(t, want, sb.String())
}

func TestParseBuffer(t *testing.T) {
	b := must.M1(parseBuffer(dtypes.Float64, "1, 2.5,-3"))
	require.Equal(t, dtypes.Float64, b.DType())
	require.Equal(t, []float64{1, 2.5, -3}, b.Float64s())
	b = must.M1(parseBuffer(dtypes.Float16, "0.5"))
	require.Equal(t, []float64{0.5}, b.Float64s())
	_, err := parseBuffer(dtypes.Float32, "1,x")
	require.Error(t, err)
}
