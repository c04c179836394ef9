// Package safetensors - Safetensors File Struktur und Open/Decode
//
// Dieses Modul enthaelt die File-Hauptstruktur fuer Safetensors-Dateien:
// - File: Repraesentiert eine vollstaendig geladene Safetensors-Datei
// - Open: Liest und parst eine Safetensors-Datei
// - Decode: Parst Safetensors-Bytes aus dem Speicher
// - TensorInfo: Header-Eintrag eines Tensors
//
// Layout: 8 Byte Header-Laenge (little endian), JSON-Header, Datenbereich.
package safetensors

import (
	"cmp"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
)

// ErrUnsupported wird bei nicht unterstuetzten Datentypen zurueckgegeben
var ErrUnsupported = errors.New("unsupported")

// ErrMalformed wird bei defekten Headern oder Offsets zurueckgegeben
var ErrMalformed = errors.New("malformed safetensors file")

// maxHeaderSize begrenzt den JSON-Header (wie die Referenz-Implementierung)
const maxHeaderSize = 100 << 20

const metadataKey = "__metadata__"

// TensorInfo beschreibt einen Tensor im Header
type TensorInfo struct {
	Name        string   `json:"-"`
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// Elements gibt die Anzahl Elemente zurueck (Skalar = 1)
func (t TensorInfo) Elements() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// NumBytes gibt die Groesse der Tensor-Daten zurueck
func (t TensorInfo) NumBytes() int64 {
	return t.DataOffsets[1] - t.DataOffsets[0]
}

// File repraesentiert eine geladene Safetensors-Datei
type File struct {
	metadata map[string]string
	tensors  []TensorInfo
	data     []byte
}

// Open liest eine Safetensors-Datei vollstaendig ein und parst den Header
func Open(path string) (*File, error) {
	bts, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Decode(bts)
}

// Decode parst Safetensors-Bytes. bts wird nicht kopiert.
func Decode(bts []byte) (*File, error) {
	if len(bts) < 8 {
		return nil, fmt.Errorf("%w: file too short (%d bytes)", ErrMalformed, len(bts))
	}

	n := binary.LittleEndian.Uint64(bts[:8])
	if n > maxHeaderSize || n > uint64(len(bts)-8) {
		return nil, fmt.Errorf("%w: header size %d", ErrMalformed, n)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(bts[8:8+n], &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	f := &File{data: bts[8+n:]}
	for name, msg := range raw {
		if name == metadataKey {
			if err := json.Unmarshal(msg, &f.metadata); err != nil {
				return nil, fmt.Errorf("%w: metadata: %v", ErrMalformed, err)
			}
			continue
		}

		var t TensorInfo
		if err := json.Unmarshal(msg, &t); err != nil {
			return nil, fmt.Errorf("%w: tensor %s: %v", ErrMalformed, name, err)
		}
		t.Name = name

		if err := f.validate(t); err != nil {
			return nil, err
		}
		f.tensors = append(f.tensors, t)
	}

	// Dateireihenfolge wiederherstellen, JSON-Objekte sind ungeordnet
	slices.SortFunc(f.tensors, func(a, b TensorInfo) int {
		return cmp.Or(cmp.Compare(a.DataOffsets[0], b.DataOffsets[0]), cmp.Compare(a.Name, b.Name))
	})

	return f, nil
}

// validate prueft Offsets und Groesse eines Tensors gegen den Datenbereich
func (f *File) validate(t TensorInfo) error {
	size := dtypeSize(t.DType)
	if size == 0 {
		return fmt.Errorf("%w dtype %q for tensor %s", ErrUnsupported, t.DType, t.Name)
	}

	for _, d := range t.Shape {
		if d < 0 {
			return fmt.Errorf("%w: tensor %s has negative dimension", ErrMalformed, t.Name)
		}
	}

	begin, end := t.DataOffsets[0], t.DataOffsets[1]
	if begin < 0 || end < begin || end > int64(len(f.data)) {
		return fmt.Errorf("%w: tensor %s offsets [%d, %d] outside data (%d bytes)", ErrMalformed, t.Name, begin, end, len(f.data))
	}

	want, ok := byteSize(t.Shape, size)
	if !ok {
		return fmt.Errorf("%w: tensor %s shape %v too large", ErrMalformed, t.Name, t.Shape)
	}
	if t.NumBytes() != want {
		return fmt.Errorf("%w: tensor %s has %d bytes, want %d", ErrMalformed, t.Name, t.NumBytes(), want)
	}

	return nil
}

// byteSize gibt die Datengroesse fuer shape zurueck, false bei Ueberlauf
func byteSize(shape []int, size int) (int64, bool) {
	n := int64(size)
	for _, d := range shape {
		if d < 0 || (d > 0 && n > math.MaxInt64/int64(d)) {
			return 0, false
		}
		n *= int64(d)
	}
	return n, true
}

// dtypeSize gibt die Elementgroesse eines Safetensors-Datentyps zurueck
func dtypeSize(dtype string) int {
	switch dtype {
	case "F64", "I64", "U64":
		return 8
	case "F32", "I32", "U32":
		return 4
	case "F16", "BF16", "I16", "U16":
		return 2
	case "I8", "U8", "BOOL":
		return 1
	default:
		return 0
	}
}
