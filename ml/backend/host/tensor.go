// tensor.go - Tensor-Speicher der Host-Engine
// Enthaelt: Tensor (implementiert ml.Tensor), float32-Zugriff fuer Kernel
package host

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/7blacky7/gpurun/ml"
)

// Tensor ist ein Tensor im Host-Speicher. Die Daten liegen little-endian
// im Format des Datentyps vor.
type Tensor struct {
	name     string
	dtype    ml.DType
	shape    []int
	quant    ml.Quantization
	data     []byte
	constant bool

	// declared: Typ stammt aus der Graph-Beschreibung und wird nicht vererbt
	declared bool
}

func (t *Tensor) Name() string                  { return t.name }
func (t *Tensor) Type() ml.DType                { return t.dtype }
func (t *Tensor) Shape() []int                  { return slices.Clone(t.shape) }
func (t *Tensor) Quantization() ml.Quantization { return t.quant }
func (t *Tensor) ByteSize() int                 { return len(t.data) }

// CopyFromBuffer kopiert src in den Tensor-Speicher
func (t *Tensor) CopyFromBuffer(src []byte) error {
	if t.data == nil {
		return fmt.Errorf("tensor %s: not allocated", t.name)
	}
	if len(src) != len(t.data) {
		return fmt.Errorf("tensor %s: buffer has %d bytes, want %d", t.name, len(src), len(t.data))
	}
	copy(t.data, src)
	return nil
}

// CopyToBuffer kopiert den Tensor-Speicher nach dst
func (t *Tensor) CopyToBuffer(dst []byte) error {
	if t.data == nil {
		return fmt.Errorf("tensor %s: not allocated", t.name)
	}
	if len(dst) != len(t.data) {
		return fmt.Errorf("tensor %s: buffer has %d bytes, want %d", t.name, len(dst), len(t.data))
	}
	copy(dst, t.data)
	return nil
}

// elements gibt die Anzahl Elemente zurueck (Skalar = 1)
func (t *Tensor) elements() int {
	return elements(t.shape)
}

func (t *Tensor) allocate() {
	size := t.elements() * t.dtype.Size()
	if cap(t.data) >= size {
		t.data = t.data[:size]
		clear(t.data)
		return
	}
	t.data = make([]byte, size)
}

// float32s dekodiert einen f32-Tensor
func (t *Tensor) float32s() []float32 {
	f32s := make([]float32, len(t.data)/4)
	for i := range f32s {
		f32s[i] = math.Float32frombits(binary.LittleEndian.Uint32(t.data[i*4:]))
	}
	return f32s
}

// setFloat32s schreibt Werte in einen f32-Tensor
func (t *Tensor) setFloat32s(f32s []float32) {
	for i, v := range f32s {
		binary.LittleEndian.PutUint32(t.data[i*4:], math.Float32bits(v))
	}
}

func elements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
