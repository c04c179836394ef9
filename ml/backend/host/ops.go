// ops.go - Operatoren der Host-Engine
// Enthaelt: kernel-Tabelle, Shape-Inferenz (prepare), Auswertung (eval),
// Custom-Operator-Registrierung
package host

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"golang.org/x/sync/errgroup"

	"github.com/7blacky7/gpurun/ml"
)

// kernel beschreibt einen Operator. prepare prueft Typen und setzt die
// Ausgabe-Shapes, eval rechnet auf allozierten Tensoren.
type kernel struct {
	name    string
	custom  bool
	gpu     bool
	prepare func(n *node) error
	eval    func(n *node, threads int) error
}

// node ist ein instanziierter Knoten im Interpreter
type node struct {
	index   int
	spec    nodeSpec
	kernel  *kernel
	inputs  []*Tensor
	outputs []*Tensor
}

var builtins = map[string]*kernel{
	"IDENTITY":        {name: "IDENTITY", gpu: true, prepare: preparePassthrough, eval: evalCopy},
	"RESHAPE":         {name: "RESHAPE", gpu: true, prepare: prepareReshape, eval: evalCopy},
	"ADD":             {name: "ADD", gpu: true, prepare: prepareBinary, eval: evalBinary(func(a, b float32) float32 { return a + b })},
	"MUL":             {name: "MUL", gpu: true, prepare: prepareBinary, eval: evalBinary(func(a, b float32) float32 { return a * b })},
	"RELU":            {name: "RELU", gpu: true, prepare: prepareUnary, eval: evalRelu},
	"SOFTMAX":         {name: "SOFTMAX", gpu: true, prepare: prepareUnary, eval: evalSoftmax},
	"FULLY_CONNECTED": {name: "FULLY_CONNECTED", gpu: true, prepare: prepareFullyConnected, eval: evalFullyConnected},
	"QUANTIZE":        {name: "QUANTIZE", prepare: prepareQuantize, eval: evalQuantize},
	"DEQUANTIZE":      {name: "DEQUANTIZE", prepare: prepareDequantize, eval: evalDequantize},
}

// CustomOp ist ein vom Aufrufer registrierter Operator. Alle Tensoren
// eines Custom-Operators sind f32.
type CustomOp struct {
	// Prepare bestimmt die Ausgabe-Shapes. nil: eine Ausgabe mit der Shape von Eingabe 0
	Prepare func(inputs [][]int) ([][]int, error)
	Eval    func(inputs [][]float32, outputs [][]float32) error
}

var (
	customMu  sync.RWMutex
	customOps = make(map[string]*kernel)
)

// RegisterCustomOp registriert einen Custom-Operator. Custom-Operatoren
// laufen immer auf dem Host.
func RegisterCustomOp(name string, op CustomOp) {
	customMu.Lock()
	defer customMu.Unlock()

	if _, ok := customOps[name]; ok {
		panic("host: custom op already registered: " + name)
	}

	customOps[name] = &kernel{
		name:    name,
		custom:  true,
		prepare: prepareCustom(op),
		eval:    evalCustom(op),
	}
}

func lookupKernel(spec nodeSpec) (*kernel, bool) {
	if spec.Custom != "" {
		customMu.RLock()
		defer customMu.RUnlock()
		k, ok := customOps[spec.Custom]
		return k, ok
	}

	k, ok := builtins[spec.Op]
	return k, ok
}

// =============================================================================
// Shape-Inferenz
// =============================================================================

func requireArity(n *node, in, out int) error {
	if len(n.inputs) != in || len(n.outputs) != out {
		return fmt.Errorf("%s: want %d inputs and %d outputs, got %d and %d", n.kernel.name, in, out, len(n.inputs), len(n.outputs))
	}
	return nil
}

func requireType(n *node, t *Tensor, want ...ml.DType) error {
	for _, w := range want {
		if t.dtype == w {
			return nil
		}
	}
	return fmt.Errorf("%s: tensor %s has type %s, want %v", n.kernel.name, t.name, t.dtype, want)
}

func preparePassthrough(n *node) error {
	if err := requireArity(n, 1, 1); err != nil {
		return err
	}

	in, out := n.inputs[0], n.outputs[0]
	if err := inheritType(n, in, out); err != nil {
		return err
	}
	out.shape = append(out.shape[:0], in.shape...)
	return nil
}

// inheritType uebernimmt Typ und Quantisierung der Eingabe, sofern der
// Ausgabetensor nicht explizit deklariert wurde
func inheritType(n *node, in, out *Tensor) error {
	if !out.declared {
		out.dtype, out.quant = in.dtype, in.quant
		return nil
	}
	if out.dtype != in.dtype {
		return fmt.Errorf("%s: output %s has type %s, input has %s", n.kernel.name, out.name, out.dtype, in.dtype)
	}
	return nil
}

func prepareReshape(n *node) error {
	if err := requireArity(n, 1, 1); err != nil {
		return err
	}

	in, out := n.inputs[0], n.outputs[0]
	if err := inheritType(n, in, out); err != nil {
		return err
	}

	shape, err := resolveShape(n.spec.NewShape, in.elements())
	if err != nil {
		return fmt.Errorf("RESHAPE %s: %w", out.name, err)
	}
	out.shape = shape
	return nil
}

// resolveShape ersetzt eine -1 Dimension und prueft die Elementanzahl
func resolveShape(shape []int, count int) ([]int, error) {
	if shape == nil {
		return nil, errors.New("missing new_shape")
	}

	resolved := make([]int, len(shape))
	unknown := -1
	known := 1
	for i, d := range shape {
		switch {
		case d == -1 && unknown < 0:
			unknown = i
		case d < 0:
			return nil, fmt.Errorf("invalid dimension %d in %v", d, shape)
		default:
			known *= d
		}
		resolved[i] = d
	}

	if unknown >= 0 {
		if known == 0 || count%known != 0 {
			return nil, fmt.Errorf("cannot infer dimension of %v for %d elements", shape, count)
		}
		resolved[unknown] = count / known
		known = count
	}

	if known != count {
		return nil, fmt.Errorf("shape %v has %d elements, input has %d", shape, known, count)
	}
	return resolved, nil
}

func prepareUnary(n *node) error {
	if err := requireArity(n, 1, 1); err != nil {
		return err
	}

	in, out := n.inputs[0], n.outputs[0]
	if err := requireType(n, in, ml.DTypeF32); err != nil {
		return err
	}
	if err := requireType(n, out, ml.DTypeF32); err != nil {
		return err
	}
	out.shape = append(out.shape[:0], in.shape...)
	return nil
}

func prepareBinary(n *node) error {
	if err := requireArity(n, 2, 1); err != nil {
		return err
	}

	a, b, out := n.inputs[0], n.inputs[1], n.outputs[0]
	for _, t := range []*Tensor{a, b, out} {
		if err := requireType(n, t, ml.DTypeF32); err != nil {
			return err
		}
	}

	// Broadcasting: gleiche Groesse, Skalar oder letzte Dimension
	na, nb := a.elements(), b.elements()
	last := 1
	if len(a.shape) > 0 {
		last = a.shape[len(a.shape)-1]
	}
	if nb != na && nb != 1 && nb != last {
		return fmt.Errorf("%s: cannot broadcast %v to %v", n.kernel.name, b.shape, a.shape)
	}

	out.shape = append(out.shape[:0], a.shape...)
	return nil
}

func prepareFullyConnected(n *node) error {
	if len(n.inputs) != 2 && len(n.inputs) != 3 || len(n.outputs) != 1 {
		return fmt.Errorf("FULLY_CONNECTED: want 2 or 3 inputs and 1 output, got %d and %d", len(n.inputs), len(n.outputs))
	}

	for _, t := range slices.Concat(n.inputs, n.outputs) {
		if err := requireType(n, t, ml.DTypeF32); err != nil {
			return err
		}
	}

	x, w := n.inputs[0], n.inputs[1]
	if len(w.shape) != 2 {
		return fmt.Errorf("FULLY_CONNECTED: weights %s must be 2D [units, depth], got %v", w.name, w.shape)
	}

	units, depth := w.shape[0], w.shape[1]
	if depth == 0 || x.elements()%depth != 0 {
		return fmt.Errorf("FULLY_CONNECTED: input %v does not match weights %v", x.shape, w.shape)
	}

	if len(n.inputs) == 3 && n.inputs[2].elements() != units {
		return fmt.Errorf("FULLY_CONNECTED: bias %v does not match %d units", n.inputs[2].shape, units)
	}

	n.outputs[0].shape = []int{x.elements() / depth, units}
	return nil
}

func prepareQuantize(n *node) error {
	if err := requireArity(n, 1, 1); err != nil {
		return err
	}

	in, out := n.inputs[0], n.outputs[0]
	if err := requireType(n, in, ml.DTypeF32); err != nil {
		return err
	}
	if err := requireType(n, out, ml.DTypeI8, ml.DTypeU8); err != nil {
		return err
	}
	if !out.quant.Quantized() {
		return fmt.Errorf("QUANTIZE: output %s has no quantization parameters", out.name)
	}
	out.shape = append(out.shape[:0], in.shape...)
	return nil
}

func prepareDequantize(n *node) error {
	if err := requireArity(n, 1, 1); err != nil {
		return err
	}

	in, out := n.inputs[0], n.outputs[0]
	if err := requireType(n, in, ml.DTypeI8, ml.DTypeU8); err != nil {
		return err
	}
	if err := requireType(n, out, ml.DTypeF32); err != nil {
		return err
	}
	if !in.quant.Quantized() {
		return fmt.Errorf("DEQUANTIZE: input %s has no quantization parameters", in.name)
	}
	out.shape = append(out.shape[:0], in.shape...)
	return nil
}

func prepareCustom(op CustomOp) func(n *node) error {
	return func(n *node) error {
		shapes := make([][]int, len(n.inputs))
		for i, t := range n.inputs {
			if err := requireType(n, t, ml.DTypeF32); err != nil {
				return err
			}
			shapes[i] = t.shape
		}

		var out [][]int
		if op.Prepare != nil {
			var err error
			if out, err = op.Prepare(shapes); err != nil {
				return fmt.Errorf("%s: %w", n.kernel.name, err)
			}
		} else if len(shapes) > 0 {
			out = [][]int{shapes[0]}
		}

		if len(out) != len(n.outputs) {
			return fmt.Errorf("%s: prepared %d output shapes for %d outputs", n.kernel.name, len(out), len(n.outputs))
		}

		for i, t := range n.outputs {
			if err := requireType(n, t, ml.DTypeF32); err != nil {
				return err
			}
			t.shape = append([]int(nil), out[i]...)
		}
		return nil
	}
}

// =============================================================================
// Auswertung
// =============================================================================

// parallelFor teilt [0, n) in hoechstens threads Bloecke auf
func parallelFor(n, threads int, fn func(lo, hi int)) {
	if threads <= 1 || n < 1024 {
		fn(0, n)
		return
	}

	chunk := (n + threads - 1) / threads
	var g errgroup.Group
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			fn(lo, hi)
			return nil
		})
	}
	_ = g.Wait()
}

func evalCopy(n *node, _ int) error {
	copy(n.outputs[0].data, n.inputs[0].data)
	return nil
}

func evalBinary(op func(a, b float32) float32) func(n *node, threads int) error {
	return func(n *node, threads int) error {
		a, b := n.inputs[0].float32s(), n.inputs[1].float32s()
		out := make([]float32, len(a))

		parallelFor(len(a), threads, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				out[i] = op(a[i], b[i%len(b)])
			}
		})

		n.outputs[0].setFloat32s(out)
		return nil
	}
}

func evalRelu(n *node, threads int) error {
	x := n.inputs[0].float32s()
	parallelFor(len(x), threads, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			x[i] = max(x[i], 0)
		}
	})
	n.outputs[0].setFloat32s(x)
	return nil
}

func evalSoftmax(n *node, _ int) error {
	in := n.inputs[0]
	x := in.float32s()

	beta := n.spec.Beta
	if beta == 0 {
		beta = 1
	}

	depth := 1
	if len(in.shape) > 0 {
		depth = in.shape[len(in.shape)-1]
	}
	if depth == 0 {
		return nil
	}

	for row := 0; row+depth <= len(x); row += depth {
		v := x[row : row+depth]
		maxv := v[0]
		for _, f := range v[1:] {
			maxv = max(maxv, f)
		}

		var sum float64
		for i, f := range v {
			e := math.Exp(float64((f - maxv) * beta))
			v[i] = float32(e)
			sum += e
		}
		for i := range v {
			v[i] = float32(float64(v[i]) / sum)
		}
	}

	n.outputs[0].setFloat32s(x)
	return nil
}

func evalFullyConnected(n *node, _ int) error {
	x, w := n.inputs[0], n.inputs[1]
	units, depth := w.shape[0], w.shape[1]
	batch := x.elements() / depth

	y := blas32.General{Rows: batch, Cols: units, Stride: units, Data: make([]float32, batch*units)}

	var beta float32
	if len(n.inputs) == 3 {
		bias := n.inputs[2].float32s()
		for r := range batch {
			copy(y.Data[r*units:(r+1)*units], bias)
		}
		beta = 1
	}

	blas32.Gemm(blas.NoTrans, blas.Trans, 1,
		blas32.General{Rows: batch, Cols: depth, Stride: depth, Data: x.float32s()},
		blas32.General{Rows: units, Cols: depth, Stride: depth, Data: w.float32s()},
		beta, y)

	switch n.spec.Activation {
	case "relu":
		for i, v := range y.Data {
			y.Data[i] = max(v, 0)
		}
	case "":
	default:
		return fmt.Errorf("FULLY_CONNECTED: unsupported activation %q", n.spec.Activation)
	}

	n.outputs[0].setFloat32s(y.Data)
	return nil
}

func evalQuantize(n *node, _ int) error {
	out := n.outputs[0]
	q := out.quant

	lo, hi := float64(math.MinInt8), float64(math.MaxInt8)
	if out.dtype == ml.DTypeU8 {
		lo, hi = 0, math.MaxUint8
	}

	for i, v := range n.inputs[0].float32s() {
		f := math.Round(float64(v)/float64(q.Scale)) + float64(q.ZeroPoint)
		f = math.Min(math.Max(f, lo), hi)
		if out.dtype == ml.DTypeU8 {
			out.data[i] = uint8(f)
		} else {
			out.data[i] = byte(int8(f))
		}
	}
	return nil
}

func evalDequantize(n *node, _ int) error {
	in := n.inputs[0]
	q := in.quant

	f32s := make([]float32, len(in.data))
	for i, b := range in.data {
		v := int32(b)
		if in.dtype == ml.DTypeI8 {
			v = int32(int8(b))
		}
		f32s[i] = float32(v-q.ZeroPoint) * q.Scale
	}

	n.outputs[0].setFloat32s(f32s)
	return nil
}

func evalCustom(op CustomOp) func(n *node, threads int) error {
	return func(n *node, _ int) error {
		inputs := make([][]float32, len(n.inputs))
		for i, t := range n.inputs {
			inputs[i] = t.float32s()
		}

		outputs := make([][]float32, len(n.outputs))
		for i, t := range n.outputs {
			outputs[i] = make([]float32, t.elements())
		}

		if err := op.Eval(inputs, outputs); err != nil {
			return fmt.Errorf("%s: %w", n.kernel.name, err)
		}

		for i, t := range n.outputs {
			t.setFloat32s(outputs[i])
		}
		return nil
	}
}
