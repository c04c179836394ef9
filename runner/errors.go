// errors.go - Fehlertypen der Inferenz-Session
//
// Alle Fehler unterstuetzen errors.As; Fehler mit Ursache implementieren Unwrap.
package runner

import (
	"errors"
	"fmt"

	"github.com/7blacky7/gpurun/format"
	"github.com/7blacky7/gpurun/ml"
)

// ErrNoModel wird zurueckgegeben, wenn eine Operation ein geladenes Modell braucht
var ErrNoModel = errors.New("no model loaded")

// ModelLoadError: Modell fehlt, ist defekt oder der Graph ist nicht baubar.
// Die Session bleibt im Zustand Unloaded.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// Stufen, in denen die Delegate-Initialisierung fehlschlagen kann
const (
	StageCreate      = "create"
	StageModifyGraph = "modify_graph"
	StageAllocate    = "allocate"
)

// DelegateInitError: der Beschleuniger konnte nicht angebunden werden.
// Die Session laeuft danach ohne Delegate weiter.
type DelegateInitError struct {
	Stage string
	Err   error
}

func (e *DelegateInitError) Error() string {
	return fmt.Sprintf("delegate init (%s): %v", e.Stage, e.Err)
}

func (e *DelegateInitError) Unwrap() error { return e.Err }

// AllocationError: die Engine hat die Allokation der Tensoren abgelehnt
type AllocationError struct {
	Err error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocate tensors: %v", e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }

// InputCountError: Anzahl der Eingaben passt nicht zum Modell
type InputCountError struct {
	Expected, Actual int
}

func (e *InputCountError) Error() string {
	return fmt.Sprintf("input count mismatch: model has %d inputs, got %d", e.Expected, e.Actual)
}

// InputSizeMismatchError: Elementanzahl eines Eingabepuffers passt nicht zum Tensor
type InputSizeMismatchError struct {
	Index    int
	Expected int
	Actual   int
}

func (e *InputSizeMismatchError) Error() string {
	return fmt.Sprintf("input %d: size mismatch: expected %s elements, got %s",
		e.Index, format.Count(e.Expected), format.Count(e.Actual))
}

// InvokeError: die Ausfuehrung des Graphen ist fehlgeschlagen
type InvokeError struct {
	Err error
}

func (e *InvokeError) Error() string {
	return fmt.Sprintf("invoke: %v", e.Err)
}

func (e *InvokeError) Unwrap() error { return e.Err }

// UnsupportedTypeError: der Tensor hat einen Typ ausser f32, i8, u8
type UnsupportedTypeError struct {
	Index  int
	Name   string
	Type   ml.DType
	Output bool
}

func (e *UnsupportedTypeError) Error() string {
	kind := "input"
	if e.Output {
		kind = "output"
	}
	return fmt.Sprintf("%s %d (%s): unsupported tensor type %s", kind, e.Index, e.Name, e.Type)
}
