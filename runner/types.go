// types.go - Datentypen der Inferenz-Session
//
// Enthaelt:
// - State: Zustand der Session
// - TensorInfo: Deskriptor eines Ein- oder Ausgabetensors
// - Buffer: Host-Puffer (float32 + Shape)
// - Timing: Zeitmessung pro Pipeline-Stufe
package runner

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/7blacky7/gpurun/format"
	"github.com/7blacky7/gpurun/ml"
)

// State ist der Zustand einer Session
type State int

const (
	StateUnloaded State = iota
	StateModelLoaded
	StateGraphAllocated
	StateDelegateAttached
	StateInvoked
)

func (s State) String() string {
	switch s {
	case StateModelLoaded:
		return "model_loaded"
	case StateGraphAllocated:
		return "graph_allocated"
	case StateDelegateAttached:
		return "delegate_attached"
	case StateInvoked:
		return "invoked"
	default:
		return "unloaded"
	}
}

// TensorInfo beschreibt einen Tensor des allozierten Graphen. Nur gueltig,
// solange der Graph alloziert ist.
type TensorInfo struct {
	Index        int             `json:"index"`
	Name         string          `json:"name"`
	Type         ml.DType        `json:"-"`
	Shape        []int           `json:"shape"`
	Quantization ml.Quantization `json:"-"`
}

// Elements gibt die Anzahl Elemente zurueck (Skalar = 1)
func (t TensorInfo) Elements() int {
	return elements(t.Shape)
}

func (t TensorInfo) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("index", t.Index),
		slog.String("name", t.Name),
		slog.String("type", t.Type.String()),
		slog.String("shape", format.Shape(t.Shape)),
	}
	if t.Quantization.Quantized() {
		attrs = append(attrs,
			slog.Any("scale", t.Quantization.Scale),
			slog.Any("zero_point", t.Quantization.ZeroPoint))
	}
	return slog.GroupValue(attrs...)
}

func tensorInfo(index int, t ml.Tensor) TensorInfo {
	return TensorInfo{
		Index:        index,
		Name:         t.Name(),
		Type:         t.Type(),
		Shape:        t.Shape(),
		Quantization: t.Quantization(),
	}
}

// ErrInvalidBuffer wird zurueckgegeben, wenn Daten und Shape eines Puffers
// nicht zusammenpassen
var ErrInvalidBuffer = errors.New("invalid buffer")

// Buffer ist ein flacher float32-Puffer mit Shape. Ohne Shape wird der
// Puffer nur ueber seine Laenge beschrieben.
type Buffer struct {
	Data  []float32
	Shape []int
}

// Validate prueft, dass die Elementanzahl dem Produkt der Shape entspricht
func (b Buffer) Validate() error {
	if b.Shape == nil {
		return nil
	}

	for _, d := range b.Shape {
		if d < 0 {
			return fmt.Errorf("%w: negative dimension in %s", ErrInvalidBuffer, format.Shape(b.Shape))
		}
	}

	if want := elements(b.Shape); want != len(b.Data) {
		return fmt.Errorf("%w: shape %s has %s elements, data has %s", ErrInvalidBuffer,
			format.Shape(b.Shape), format.Count(want), format.Count(len(b.Data)))
	}
	return nil
}

// Clone gibt eine tiefe Kopie zurueck
func (b Buffer) Clone() Buffer {
	return Buffer{Data: slices.Clone(b.Data), Shape: slices.Clone(b.Shape)}
}

// Timing enthaelt die Dauer jeder Pipeline-Stufe. Felder werden pro Lauf
// ueberschrieben, nicht aufsummiert.
type Timing struct {
	ModelLoad        time.Duration
	DelegateInit     time.Duration
	TensorAllocation time.Duration
	InputCopy        time.Duration
	Inference        time.Duration
	OutputCopy       time.Duration

	// Total umfasst Input-Copy bis Output-Copy eines Laufs
	Total time.Duration
}

func elements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
