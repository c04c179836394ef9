//go:build tflite && cgo

// tflite.go - TensorFlow-Lite-Backend ueber die C-API
// Enthaelt: Registrierung als "tflite", Backend, Model, Options, Interpreter,
// Tensor, GPU-Delegate (V2)
//
// Bauen mit: go build -tags tflite
// Erwartet Header unter $TFLITE_ROOT (CGO_CPPFLAGS) und libtensorflowlite_c
// sowie libtensorflowlite_gpu_delegate im Linker-Pfad.
package tflite

// #cgo CXXFLAGS: -std=c++17
// #cgo linux LDFLAGS: -ltensorflowlite_c -ltensorflowlite_gpu_delegate -lstdc++ -lm -ldl
// #cgo android LDFLAGS: -ltensorflowlite_c -ltensorflowlite_gpu_delegate -lEGL -lGLESv3 -llog
// #include <stdlib.h>
// #include <stdint.h>
// #include "tensorflow/lite/c/c_api.h"
// #include "tensorflow/lite/c/c_api_experimental.h"
// #include "tensorflow/lite/delegates/gpu/delegate.h"
// #include "shim.h"
import "C"

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"unsafe"

	"github.com/7blacky7/gpurun/ml"
)

func init() {
	ml.RegisterBackend("tflite", New)
}

// Backend implementiert ml.Backend
type Backend struct {
	params ml.BackendParams
}

// New erstellt ein neues TFLite-Backend
func New(params ml.BackendParams) (ml.Backend, error) {
	if params.NumThreads <= 0 {
		params.NumThreads = runtime.NumCPU()
	}
	slog.Debug("tflite backend", "version", C.GoString(C.TfLiteVersion()), "threads", params.NumThreads)
	return &Backend{params: params}, nil
}

func (b *Backend) Name() string { return "tflite" }

// ============================================================================
// Model / Options
// ============================================================================

type model struct {
	path string
	c    *C.TfLiteModel
}

func (m *model) Close() error {
	if m.c == nil {
		return fmt.Errorf("model %s: already closed", m.path)
	}
	C.TfLiteModelDelete(m.c)
	m.c = nil
	return nil
}

func (b *Backend) LoadModel(path string) (ml.Model, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	c := C.TfLiteModelCreateFromFile(cpath)
	if c == nil {
		return nil, fmt.Errorf("tflite: cannot load model %s", path)
	}
	return &model{path: path, c: c}, nil
}

type interpreterOptions struct {
	c *C.TfLiteInterpreterOptions
}

func (o *interpreterOptions) Close() error {
	if o.c == nil {
		return errors.New("tflite: interpreter options already closed")
	}
	C.TfLiteInterpreterOptionsDelete(o.c)
	o.c = nil
	return nil
}

func (b *Backend) NewInterpreterOptions() (ml.InterpreterOptions, error) {
	c := C.TfLiteInterpreterOptionsCreate()
	if c == nil {
		return nil, errors.New("tflite: cannot create interpreter options")
	}
	C.TfLiteInterpreterOptionsSetNumThreads(c, C.int32_t(b.params.NumThreads))
	return &interpreterOptions{c: c}, nil
}

// ============================================================================
// Interpreter
// ============================================================================

type interpreter struct {
	c *C.TfLiteInterpreter
}

func (b *Backend) NewInterpreter(m ml.Model, opts ml.InterpreterOptions) (ml.Interpreter, error) {
	tm, ok := m.(*model)
	if !ok || tm.c == nil {
		return nil, errors.New("tflite: model was not loaded by this backend")
	}

	var copts *C.TfLiteInterpreterOptions
	if o, ok := opts.(*interpreterOptions); ok {
		copts = o.c
	}

	c := C.TfLiteInterpreterCreate(tm.c, copts)
	if c == nil {
		return nil, fmt.Errorf("tflite: cannot build interpreter for %s", tm.path)
	}
	return &interpreter{c: c}, nil
}

func status(op string, s C.TfLiteStatus) error {
	if s == C.kTfLiteOk {
		return nil
	}
	return fmt.Errorf("tflite: %s failed (status %d)", op, int(s))
}

func (i *interpreter) ModifyGraphWithDelegate(d ml.Delegate) error {
	gd, ok := d.(*gpuDelegate)
	if !ok || gd.c == nil {
		return errors.New("tflite: delegate was not created by this backend")
	}
	return status("ModifyGraphWithDelegate", C.TfLiteInterpreterModifyGraphWithDelegate(i.c, gd.c))
}

func (i *interpreter) AllocateTensors() error {
	return status("AllocateTensors", C.TfLiteInterpreterAllocateTensors(i.c))
}

func (i *interpreter) ResizeInputTensor(index int, shape []int) error {
	dims := make([]C.int, len(shape))
	for k, d := range shape {
		dims[k] = C.int(d)
	}

	var p *C.int
	if len(dims) > 0 {
		p = &dims[0]
	}
	return status("ResizeInputTensor", C.TfLiteInterpreterResizeInputTensor(i.c, C.int32_t(index), p, C.int32_t(len(dims))))
}

func (i *interpreter) InputTensorCount() int {
	return int(C.TfLiteInterpreterGetInputTensorCount(i.c))
}

func (i *interpreter) InputTensor(index int) ml.Tensor {
	return &tensor{c: C.TfLiteInterpreterGetInputTensor(i.c, C.int32_t(index))}
}

func (i *interpreter) OutputTensorCount() int {
	return int(C.TfLiteInterpreterGetOutputTensorCount(i.c))
}

func (i *interpreter) OutputTensor(index int) ml.Tensor {
	// Ausgabe-Tensoren sind in der C-API const
	return &tensor{c: (*C.TfLiteTensor)(unsafe.Pointer(C.TfLiteInterpreterGetOutputTensor(i.c, C.int32_t(index))))}
}

func (i *interpreter) Invoke() error {
	return status("Invoke", C.TfLiteInterpreterInvoke(i.c))
}

func (i *interpreter) ExecutionPlan() []ml.Node {
	n := int(C.gpurun_execution_plan_size(i.c))
	if n <= 0 {
		return nil
	}

	nodes := make([]ml.Node, 0, n)
	for k := range n {
		var cn C.gpurun_node
		if C.gpurun_execution_plan_node(i.c, C.int(k), &cn) != 0 {
			slog.Warn("tflite: cannot read execution plan node", "position", k)
			continue
		}

		node := ml.Node{Index: int(cn.index), Delegated: cn.delegated != 0}
		if cn.builtin_name != nil {
			node.BuiltinName = C.GoString(cn.builtin_name)
		}
		if cn.custom_name != nil {
			node.CustomName = C.GoString(cn.custom_name)
		}
		nodes = append(nodes, node)
	}
	return nodes
}

func (i *interpreter) Close() error {
	if i.c == nil {
		return errors.New("tflite: interpreter already closed")
	}
	C.TfLiteInterpreterDelete(i.c)
	i.c = nil
	return nil
}

// ============================================================================
// Tensor
// ============================================================================

type tensor struct {
	c *C.TfLiteTensor
}

func (t *tensor) Name() string {
	if t.c == nil {
		return ""
	}
	return C.GoString(C.TfLiteTensorName(t.c))
}

func (t *tensor) Type() ml.DType {
	if t.c == nil {
		return ml.DTypeOther
	}
	return dtypeFromTFLite(int(C.TfLiteTensorType(t.c)))
}

func (t *tensor) Shape() []int {
	if t.c == nil {
		return nil
	}
	n := int(C.TfLiteTensorNumDims(t.c))
	if n < 0 {
		return nil
	}
	shape := make([]int, n)
	for k := range shape {
		shape[k] = int(C.TfLiteTensorDim(t.c, C.int32_t(k)))
	}
	return shape
}

func (t *tensor) Quantization() ml.Quantization {
	if t.c == nil {
		return ml.Quantization{}
	}
	q := C.TfLiteTensorQuantizationParams(t.c)
	return ml.Quantization{Scale: float32(q.scale), ZeroPoint: int32(q.zero_point)}
}

func (t *tensor) ByteSize() int {
	if t.c == nil {
		return 0
	}
	return int(C.TfLiteTensorByteSize(t.c))
}

func (t *tensor) CopyFromBuffer(src []byte) error {
	if t.c == nil {
		return errors.New("tflite: tensor unavailable")
	}
	if len(src) == 0 {
		return status("CopyFromBuffer", C.TfLiteTensorCopyFromBuffer(t.c, nil, 0))
	}
	return status("CopyFromBuffer", C.TfLiteTensorCopyFromBuffer(t.c, unsafe.Pointer(&src[0]), C.size_t(len(src))))
}

func (t *tensor) CopyToBuffer(dst []byte) error {
	if t.c == nil {
		return errors.New("tflite: tensor unavailable")
	}
	if len(dst) == 0 {
		return status("CopyToBuffer", C.TfLiteTensorCopyToBuffer(t.c, nil, 0))
	}
	return status("CopyToBuffer", C.TfLiteTensorCopyToBuffer(t.c, unsafe.Pointer(&dst[0]), C.size_t(len(dst))))
}

// ============================================================================
// GPU-Delegate
// ============================================================================

type gpuDelegate struct {
	c *C.TfLiteDelegate
}

func (d *gpuDelegate) Close() error {
	if d.c == nil {
		return errors.New("tflite: delegate already closed")
	}
	C.TfLiteGpuDelegateV2Delete(d.c)
	d.c = nil
	return nil
}

func (b *Backend) NewGPUDelegate(opts ml.DelegateOptions) (ml.Delegate, error) {
	g := newGPUOptions(opts)

	copts := C.TfLiteGpuDelegateOptionsV2Default()
	copts.inference_priority1 = C.int32_t(g.priority1)
	copts.inference_priority2 = C.int32_t(g.priority2)
	copts.inference_priority3 = C.int32_t(g.priority3)
	copts.inference_preference = C.int32_t(g.usage)
	copts.experimental_flags = C.int64_t(g.flags)
	if g.maxPartitions > 0 {
		copts.max_delegated_partitions = C.int32_t(g.maxPartitions)
	}

	c := C.TfLiteGpuDelegateV2Create(&copts)
	if c == nil {
		return nil, fmt.Errorf("tflite: %w", ml.ErrNoDelegate)
	}
	slog.Debug("tflite gpu delegate created", "priority1", opts.Priority1, "usage", opts.Usage, "quantized", opts.EnableQuantized)
	return &gpuDelegate{c: c}, nil
}
