// fuse_ir reads a pointwise IR program, fuses its maps and prints the result along with the generated kernels.
// Optionally, it executes the fused program on the host backend.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gomlx/pointwise/dtypes"
	"github.com/gomlx/pointwise/fusion"
	"github.com/gomlx/pointwise/ir"
	"github.com/gomlx/pointwise/kernel"
	"github.com/gomlx/pointwise/pointwise"
	"github.com/gomlx/pointwise/pointwise/host"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

var (
	flagIRFile  = flag.String("ir", "-", "File with the IR program, or \"-\" to read from stdin")
	flagKernels = flag.Bool("kernels", true, "Print the kernel source of each map of the fused program")
	flagDType   = flag.String("dtype", "Float32", "DType of the inputs when executing the program: Float16, Float32 or Float64")
	flagFixed   = flag.Bool("fixed", false, "Execute with the fixed-arity entry points only (at most 2 inputs per map)")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `fuse_ir reads a program in the pointwise IR text format, fuses its maps, and prints
the fused program and the kernel source generated for each of its maps.

$ fuse_ir -ir=<program_file> [<x0> <x1> ...]

If inputs are given, one per parameter of the program, each as a comma-separated list of values, the fused
program is also executed on the host backend and its outputs are printed.

Usage:
`)
		flag.PrintDefaults()
	}
	klog.InitFlags(flag.CommandLine)
	flag.Parse()

	text := must.M1(readProgram(*flagIRFile))
	g := must.M1(ir.Parse(text))
	must.M(g.Validate())
	fused := must.M1(fusion.FuseGraph(ir.NewSupply(g.MaxLocal()+1), g))
	fmt.Printf("Fused program:\n%s\n", fused)

	if *flagKernels {
		must.M(printKernels(os.Stdout, fused))
	}

	if flag.NArg() == 0 {
		return
	}
	dtype := must.M1(dtypes.DTypeString(*flagDType))
	inputs := make([]pointwise.Buffer, flag.NArg())
	for i, arg := range flag.Args() {
		inputs[i] = must.M1(parseBuffer(dtype, arg))
	}
	var backend pointwise.Backend = host.NewVariadic()
	if *flagFixed {
		backend = host.New()
	}
	outputs := must.M1(pointwise.Execute(backend, fused, inputs...))
	for i, output := range outputs {
		fmt.Printf("\toutput #%d: %v\n", i, output.(*host.Buffer).Float64s())
	}
}

func readProgram(fileName string) (string, error) {
	var blob []byte
	var err error
	if fileName == "-" {
		blob, err = io.ReadAll(os.Stdin)
	} else {
		blob, err = os.ReadFile(fileName)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to read IR program from %q", fileName)
	}
	return string(blob), nil
}

// printKernels prints the kernel source of every map binding of g.
func printKernels(w io.Writer, g *ir.Graph) error {
	lets, _ := ir.Unchain(g.Body)
	for _, let := range lets {
		mapOp, ok := let.Bind.RVal.Op.(*ir.MapOp)
		if !ok {
			continue
		}
		body, err := kernel.Body(mapOp.Graph)
		if err != nil {
			klog.Warningf("map bound to %v can't be lowered: %v", let.Bind.LVals, err)
			continue
		}
		if _, err = fmt.Fprintf(w, "\nKernel of map bound to %v:\n%s", let.Bind.LVals, body); err != nil {
			return err
		}
		if expr, err := kernel.Expression(mapOp.Graph); err == nil {
			if _, err = fmt.Fprintf(w, "Single expression form: %s = %s;\n", kernel.OutputSlot, expr); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseBuffer(dtype dtypes.DType, arg string) (*host.Buffer, error) {
	parts := strings.Split(arg, ",")
	values := make([]float64, len(parts))
	for i, part := range parts {
		var err error
		values[i], err = strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid input value %q", part)
		}
	}
	switch dtype {
	case dtypes.Float16:
		return host.FromFlat(convert(values, func(v float64) float16.Float16 { return float16.Fromfloat32(float32(v)) }))
	case dtypes.Float32:
		return host.FromFlat(convert(values, func(v float64) float32 { return float32(v) }))
	case dtypes.Float64:
		return host.FromFlat(values)
	}
	return nil, errors.Errorf("dtype %s not supported", dtype)
}

func convert[T any](values []float64, fn func(float64) T) []T {
	converted := make([]T, len(values))
	for i, v := range values {
		converted[i] = fn(v)
	}
	return converted
}
