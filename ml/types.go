// types.go - Datentypen und Konstanten fuer Tensoren und Delegates
// Dieses Modul definiert grundlegende Typen wie DType, Quantization und Node.
package ml

import (
	"fmt"
	"log/slog"
)

// DType represents the data type of tensor elements.
type DType int

const (
	DTypeOther DType = iota
	DTypeF32
	DTypeF16
	DTypeI32
	DTypeU8
	DTypeI64
	DTypeBool
	DTypeI16
	DTypeI8
	DTypeF64
	DTypeBF16
)

// String liefert den Kurznamen, wie er auch im Modellformat verwendet wird
func (t DType) String() string {
	switch t {
	case DTypeF32:
		return "f32"
	case DTypeF16:
		return "f16"
	case DTypeBF16:
		return "bf16"
	case DTypeF64:
		return "f64"
	case DTypeI64:
		return "i64"
	case DTypeI32:
		return "i32"
	case DTypeI16:
		return "i16"
	case DTypeI8:
		return "i8"
	case DTypeU8:
		return "u8"
	case DTypeBool:
		return "bool"
	default:
		return "other"
	}
}

// Size gibt die Groesse eines Elements in Bytes zurueck (0 fuer DTypeOther)
func (t DType) Size() int {
	switch t {
	case DTypeF64, DTypeI64:
		return 8
	case DTypeF32, DTypeI32:
		return 4
	case DTypeF16, DTypeBF16, DTypeI16:
		return 2
	case DTypeI8, DTypeU8, DTypeBool:
		return 1
	default:
		return 0
	}
}

// ParseDType ist die Umkehrung von String
func ParseDType(s string) (DType, error) {
	for t := DTypeF32; t <= DTypeBF16; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return DTypeOther, fmt.Errorf("unknown dtype %q", s)
}

// Quantization beschreibt die affine Abbildung real = (q - ZeroPoint) * Scale.
// Scale 0 bedeutet: Tensor ist nicht quantisiert.
type Quantization struct {
	Scale     float32
	ZeroPoint int32
}

// Quantized meldet, ob Quantisierungsparameter vorhanden sind
func (q Quantization) Quantized() bool {
	return q.Scale != 0
}

// Node beschreibt einen Eintrag im finalen Ausfuehrungsplan.
type Node struct {
	Index int

	// Delegated ist gesetzt, wenn der Knoten von einem Delegate
	// (z.B. der GPU) uebernommen wurde
	Delegated bool

	// BuiltinName ist leer fuer Custom-Operatoren
	BuiltinName string
	CustomName  string
}

// OpName liefert den lesbaren Operator-Namen
func (n Node) OpName() string {
	switch {
	case n.BuiltinName != "":
		return n.BuiltinName
	case n.CustomName != "":
		return n.CustomName
	default:
		return "UNKNOWN"
	}
}

func (n Node) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("index", n.Index),
		slog.String("op", n.OpName()),
		slog.Bool("delegated", n.Delegated),
	)
}
