package host

import (
	"encoding/binary"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/7blacky7/gpurun/fs/safetensors"
	"github.com/7blacky7/gpurun/ml"
)

const reshapeGraph = `{
	"inputs": [{"name": "x", "type": "f32", "shape": [1, 2, 2, 1]}],
	"outputs": ["y"],
	"nodes": [{"op": "RESHAPE", "inputs": ["x"], "outputs": ["y"], "new_shape": [1, -1]}]
}`

// mlpGraph: Dense(2->3, relu) -> Dense(3->2) -> Custom -> Softmax
const mlpGraph = `{
	"inputs": [{"name": "x", "type": "f32", "shape": [1, 2]}],
	"outputs": ["probs"],
	"nodes": [
		{"op": "FULLY_CONNECTED", "inputs": ["x", "w1", "b1"], "outputs": ["h"], "activation": "relu"},
		{"op": "FULLY_CONNECTED", "inputs": ["h", "w2"], "outputs": ["logits"]},
		{"op": "CUSTOM", "custom": "TEST_NEGATE", "inputs": ["logits"], "outputs": ["neg"]},
		{"op": "SOFTMAX", "inputs": ["neg"], "outputs": ["probs"]}
	]
}`

func init() {
	RegisterCustomOp("TEST_NEGATE", CustomOp{
		Eval: func(in, out [][]float32) error {
			for i, v := range in[0] {
				out[0][i] = -v
			}
			return nil
		},
	})

	RegisterCustomOp("TEST_FAIL", CustomOp{
		Eval: func(in, out [][]float32) error {
			return errors.New("boom")
		},
	})
}

func writeModel(t *testing.T, graph string, weights []safetensors.Tensor, extra map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.safetensors")
	if err := WriteModel(path, graph, weights, extra); err != nil {
		t.Fatalf("WriteModel: %v", err)
	}
	return path
}

func newTestInterpreter(t *testing.T, path string) (ml.Backend, ml.Interpreter) {
	t.Helper()

	b, err := New(ml.BackendParams{NumThreads: 2})
	if err != nil {
		t.Fatal(err)
	}

	m, err := b.LoadModel(path)
	if err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	t.Cleanup(func() { m.Close() })

	opts, err := b.NewInterpreterOptions()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { opts.Close() })

	it, err := b.NewInterpreter(m, opts)
	if err != nil {
		t.Fatalf("NewInterpreter: %v", err)
	}
	return b, it
}

func f32Bytes(values ...float32) []byte {
	bts := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(bts[i*4:], math.Float32bits(v))
	}
	return bts
}

func readF32(t *testing.T, tensor ml.Tensor) []float32 {
	t.Helper()
	bts := make([]byte, tensor.ByteSize())
	if err := tensor.CopyToBuffer(bts); err != nil {
		t.Fatal(err)
	}
	values := make([]float32, len(bts)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(bts[i*4:]))
	}
	return values
}

func TestRegistered(t *testing.T) {
	b, err := ml.NewBackend("host", ml.BackendParams{})
	if err != nil {
		t.Fatalf("NewBackend(host): %v", err)
	}
	if b.Name() != "host" {
		t.Errorf("Name() = %q, want host", b.Name())
	}
}

func TestReshapeGraph(t *testing.T) {
	_, it := newTestInterpreter(t, writeModel(t, reshapeGraph, nil, nil))

	if err := it.AllocateTensors(); err != nil {
		t.Fatalf("AllocateTensors: %v", err)
	}

	if diff := cmp.Diff([]int{1, 4}, it.OutputTensor(0).Shape()); diff != "" {
		t.Errorf("output shape mismatch (-want +got):\n%s", diff)
	}

	if err := it.InputTensor(0).CopyFromBuffer(f32Bytes(0.1, 0.2, 0.3, 0.4)); err != nil {
		t.Fatal(err)
	}

	if err := it.Invoke(); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	if diff := cmp.Diff([]float32{0.1, 0.2, 0.3, 0.4}, readF32(t, it.OutputTensor(0))); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestInvokeBeforeAllocate(t *testing.T) {
	_, it := newTestInterpreter(t, writeModel(t, reshapeGraph, nil, nil))
	if err := it.Invoke(); err == nil {
		t.Error("Invoke() without allocation should fail")
	}
}

func mlpWeights() []safetensors.Tensor {
	return []safetensors.Tensor{
		// w1 [units=3, depth=2]
		safetensors.F32("w1", []int{3, 2}, []float32{1, 0, 0, 1, 1, 1}),
		safetensors.F16("b1", []int{3}, []float32{0, 0, -10}),
		safetensors.F32("w2", []int{2, 3}, []float32{1, 0, 0, 0, 1, 0}),
	}
}

func TestMLPWithoutDelegate(t *testing.T) {
	_, it := newTestInterpreter(t, writeModel(t, mlpGraph, mlpWeights(), nil))
	if err := it.AllocateTensors(); err != nil {
		t.Fatal(err)
	}

	// h = relu([1, 2, 3-10]) = [1, 2, 0]; logits = [1, 2]; neg = [-1, -2]
	if err := it.InputTensor(0).CopyFromBuffer(f32Bytes(1, 2)); err != nil {
		t.Fatal(err)
	}
	if err := it.Invoke(); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	got := readF32(t, it.OutputTensor(0))
	e1, e2 := math.Exp(-1), math.Exp(-2)
	want := []float32{float32(e1 / (e1 + e2)), float32(e2 / (e1 + e2))}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("probs mismatch (-want +got):\n%s", diff)
	}

	plan := it.ExecutionPlan()
	if len(plan) != 4 {
		t.Fatalf("plan has %d nodes, want 4", len(plan))
	}
	for _, n := range plan {
		if n.Delegated {
			t.Errorf("node %v delegated without delegate", n)
		}
	}
	if plan[2].CustomName != "TEST_NEGATE" || plan[2].BuiltinName != "" {
		t.Errorf("custom node = %+v", plan[2])
	}
}

func TestMLPWithDelegate(t *testing.T) {
	b, it := newTestInterpreter(t, writeModel(t, mlpGraph, mlpWeights(), nil))

	d, err := b.NewGPUDelegate(ml.DefaultDelegateOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if err := it.ModifyGraphWithDelegate(d); err != nil {
		t.Fatalf("ModifyGraphWithDelegate: %v", err)
	}

	if err := it.ModifyGraphWithDelegate(d); err == nil {
		t.Error("second ModifyGraphWithDelegate should fail")
	}

	if err := it.AllocateTensors(); err != nil {
		t.Fatal(err)
	}
	if err := it.InputTensor(0).CopyFromBuffer(f32Bytes(1, 2)); err != nil {
		t.Fatal(err)
	}
	if err := it.Invoke(); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	// Partition(FC, FC) -> TEST_NEGATE (Host) -> Partition(SOFTMAX)
	plan := it.ExecutionPlan()
	var got []string
	for _, n := range plan {
		prefix := "cpu:"
		if n.Delegated {
			prefix = "gpu:"
		}
		got = append(got, prefix+n.OpName())
	}
	want := []string{"gpu:" + DelegateKernelName, "cpu:TEST_NEGATE", "gpu:" + DelegateKernelName}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}

	probs := readF32(t, it.OutputTensor(0))
	if probs[0] <= probs[1] {
		t.Errorf("probs = %v, want first > second", probs)
	}
}

func TestDelegateMaxPartitions(t *testing.T) {
	b, it := newTestInterpreter(t, writeModel(t, mlpGraph, mlpWeights(), nil))

	opts := ml.DefaultDelegateOptions()
	opts.MaxDelegatedPartitions = 1
	d, _ := b.NewGPUDelegate(opts)
	defer d.Close()

	if err := it.ModifyGraphWithDelegate(d); err != nil {
		t.Fatal(err)
	}

	var delegated, host int
	for _, n := range it.ExecutionPlan() {
		if n.Delegated {
			delegated++
		} else {
			host++
		}
	}

	// Groesste Partition (2x FC) bleibt, SOFTMAX faellt auf den Host zurueck
	if delegated != 1 || host != 2 {
		t.Errorf("delegated = %d, host = %d, want 1 and 2", delegated, host)
	}
}

func TestDelegateRejected(t *testing.T) {
	b, it := newTestInterpreter(t, writeModel(t, reshapeGraph, nil, map[string]string{MetadataDelegate: "reject"}))

	d, _ := b.NewGPUDelegate(ml.DefaultDelegateOptions())
	defer d.Close()

	if err := it.ModifyGraphWithDelegate(d); !errors.Is(err, ErrDelegateRejected) {
		t.Errorf("ModifyGraphWithDelegate() error = %v, want ErrDelegateRejected", err)
	}
}

func TestDelegateClaimsNone(t *testing.T) {
	b, it := newTestInterpreter(t, writeModel(t, reshapeGraph, nil, map[string]string{MetadataDelegate: "none"}))

	d, _ := b.NewGPUDelegate(ml.DefaultDelegateOptions())
	defer d.Close()

	if err := it.ModifyGraphWithDelegate(d); err != nil {
		t.Fatal(err)
	}

	plan := it.ExecutionPlan()
	if len(plan) != 1 || plan[0].Delegated || plan[0].BuiltinName != "RESHAPE" {
		t.Errorf("plan = %+v, want single host RESHAPE", plan)
	}
}

func TestDelegateRankLimit(t *testing.T) {
	graph := `{
		"inputs": [{"name": "x", "type": "f32", "shape": [1, 1, 1, 2, 2]}],
		"outputs": ["y"],
		"nodes": [{"op": "RELU", "inputs": ["x"], "outputs": ["y"]}]
	}`
	b, it := newTestInterpreter(t, writeModel(t, graph, nil, nil))

	// Ohne Delegate ist 5D erlaubt
	if err := it.AllocateTensors(); err != nil {
		t.Fatalf("AllocateTensors without delegate: %v", err)
	}

	d, _ := b.NewGPUDelegate(ml.DefaultDelegateOptions())
	defer d.Close()
	if err := it.ModifyGraphWithDelegate(d); err != nil {
		t.Fatal(err)
	}

	err := it.AllocateTensors()
	if err == nil || !strings.Contains(err.Error(), "rank 5") {
		t.Errorf("AllocateTensors() error = %v, want rank error", err)
	}
}

func TestResizeInput(t *testing.T) {
	_, it := newTestInterpreter(t, writeModel(t, reshapeGraph, nil, nil))

	if err := it.ResizeInputTensor(0, []int{2, 2, 2, 1}); err != nil {
		t.Fatal(err)
	}
	if err := it.AllocateTensors(); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]int{1, 8}, it.OutputTensor(0).Shape()); diff != "" {
		t.Errorf("output shape mismatch (-want +got):\n%s", diff)
	}
	if got := it.InputTensor(0).ByteSize(); got != 32 {
		t.Errorf("input ByteSize() = %d, want 32", got)
	}

	if err := it.ResizeInputTensor(3, []int{1}); err == nil {
		t.Error("ResizeInputTensor(3) should fail")
	}
}

func TestQuantizeRoundTrip(t *testing.T) {
	graph := `{
		"inputs": [{"name": "x", "type": "f32", "shape": [4]}],
		"outputs": ["q", "y"],
		"tensors": [{"name": "q", "type": "u8", "quant": {"scale": 0.5, "zero_point": 10}}],
		"nodes": [
			{"op": "QUANTIZE", "inputs": ["x"], "outputs": ["q"]},
			{"op": "DEQUANTIZE", "inputs": ["q"], "outputs": ["y"]}
		]
	}`
	_, it := newTestInterpreter(t, writeModel(t, graph, nil, nil))
	if err := it.AllocateTensors(); err != nil {
		t.Fatal(err)
	}

	if err := it.InputTensor(0).CopyFromBuffer(f32Bytes(0, 1, -5, 1000)); err != nil {
		t.Fatal(err)
	}
	if err := it.Invoke(); err != nil {
		t.Fatal(err)
	}

	q := it.OutputTensor(0)
	if q.Type() != ml.DTypeU8 || q.Quantization() != (ml.Quantization{Scale: 0.5, ZeroPoint: 10}) {
		t.Errorf("q type = %v quant = %+v", q.Type(), q.Quantization())
	}

	raw := make([]byte, q.ByteSize())
	if err := q.CopyToBuffer(raw); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{10, 12, 0, 255}, raw); diff != "" {
		t.Errorf("quantized mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]float32{0, 1, -5, 122.5}, readF32(t, it.OutputTensor(1))); diff != "" {
		t.Errorf("dequantized mismatch (-want +got):\n%s", diff)
	}
}

func TestInvokeError(t *testing.T) {
	graph := `{
		"inputs": [{"name": "x", "type": "f32", "shape": [2]}],
		"outputs": ["y"],
		"nodes": [{"op": "CUSTOM", "custom": "TEST_FAIL", "inputs": ["x"], "outputs": ["y"]}]
	}`
	_, it := newTestInterpreter(t, writeModel(t, graph, nil, nil))
	if err := it.AllocateTensors(); err != nil {
		t.Fatal(err)
	}

	err := it.Invoke()
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Invoke() error = %v, want boom", err)
	}
}

func TestLoadModelErrors(t *testing.T) {
	b, _ := New(ml.BackendParams{})

	cases := []struct {
		name  string
		graph string
		err   string
	}{
		{"unknown op", `{"inputs":[{"name":"x","type":"f32"}],"outputs":["y"],"nodes":[{"op":"CONV_2D","inputs":["x"],"outputs":["y"]}]}`, "unknown operator"},
		{"undefined input", `{"inputs":[{"name":"x","type":"f32"}],"outputs":["y"],"nodes":[{"op":"RELU","inputs":["z"],"outputs":["y"]}]}`, "undefined tensor"},
		{"missing output", `{"inputs":[{"name":"x","type":"f32"}],"outputs":["nope"],"nodes":[]}`, "never produced"},
		{"bad dtype", `{"inputs":[{"name":"x","type":"c64"}],"outputs":["x"],"nodes":[]}`, "unknown dtype"},
		{"no inputs", `{"inputs":[],"outputs":["x"],"nodes":[]}`, "no inputs"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.LoadModel(writeModel(t, tt.graph, nil, nil))
			if err == nil || !strings.Contains(err.Error(), tt.err) {
				t.Errorf("LoadModel() error = %v, want %q", err, tt.err)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		if _, err := b.LoadModel(filepath.Join(t.TempDir(), "missing")); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("no graph", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "weights.safetensors")
		if err := WriteModel(path, "{}", nil, nil); err != nil {
			t.Fatal(err)
		}
		// "{}" ist ein gueltiger, aber leerer Graph
		if _, err := b.LoadModel(path); err == nil {
			t.Error("expected error for empty graph")
		}
	})
}

func TestNewInterpreterShapeError(t *testing.T) {
	graph := `{
		"inputs": [{"name": "x", "type": "f32", "shape": [1, 3]}],
		"outputs": ["y"],
		"nodes": [{"op": "FULLY_CONNECTED", "inputs": ["x", "w"], "outputs": ["y"]}]
	}`
	b, _ := New(ml.BackendParams{})
	m, err := b.LoadModel(writeModel(t, graph, []safetensors.Tensor{safetensors.F32("w", []int{2, 2}, []float32{1, 2, 3, 4})}, nil))
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	opts, _ := b.NewInterpreterOptions()
	defer opts.Close()

	if _, err := b.NewInterpreter(m, opts); err == nil {
		t.Error("NewInterpreter() should reject mismatched weights")
	}
}

func TestResolveShape(t *testing.T) {
	cases := []struct {
		shape []int
		count int
		want  []int
		err   bool
	}{
		{[]int{1, -1}, 4, []int{1, 4}, false},
		{[]int{2, 2}, 4, []int{2, 2}, false},
		{[]int{3, -1}, 4, nil, true},
		{[]int{-1, -1}, 4, nil, true},
		{[]int{5}, 4, nil, true},
		{nil, 4, nil, true},
	}

	for _, c := range cases {
		got, err := resolveShape(c.shape, c.count)
		if (err != nil) != c.err {
			t.Errorf("resolveShape(%v, %d) error = %v, want error %t", c.shape, c.count, err, c.err)
			continue
		}
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Errorf("resolveShape(%v, %d) mismatch (-want +got):\n%s", c.shape, c.count, diff)
		}
	}
}
