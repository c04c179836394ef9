// Package safetensors - Safetensors Schreib-Funktionen
//
// Dieses Modul enthaelt:
// - Tensor: Zu schreibender Tensor mit Rohdaten
// - F32/F16: Konstruktoren aus float32-Werten
// - Write: Serialisiert Tensoren und Metadaten
package safetensors

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/x448/float16"
)

// Tensor ist ein zu schreibender Tensor
type Tensor struct {
	Name  string
	DType string
	Shape []int
	Data  []byte
}

// F32 erzeugt einen F32-Tensor aus float32-Werten
func F32(name string, shape []int, values []float32) Tensor {
	bts := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(bts[i*4:], math.Float32bits(v))
	}
	return Tensor{Name: name, DType: "F32", Shape: shape, Data: bts}
}

// F16 erzeugt einen F16-Tensor aus float32-Werten (verlustbehaftet)
func F16(name string, shape []int, values []float32) Tensor {
	bts := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(bts[i*2:], float16.Fromfloat32(v).Bits())
	}
	return Tensor{Name: name, DType: "F16", Shape: shape, Data: bts}
}

// Write serialisiert Tensoren in der gegebenen Reihenfolge
func Write(w io.Writer, tensors []Tensor, metadata map[string]string) error {
	header := make(map[string]any, len(tensors)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}

	var offset int64
	for _, t := range tensors {
		if _, ok := header[t.Name]; ok || t.Name == metadataKey {
			return fmt.Errorf("duplicate tensor name %q", t.Name)
		}

		info := TensorInfo{Name: t.Name, DType: t.DType, Shape: t.Shape}
		info.DataOffsets = [2]int64{offset, offset + int64(len(t.Data))}
		if want, ok := byteSize(info.Shape, dtypeSize(t.DType)); !ok || want != info.NumBytes() {
			return fmt.Errorf("tensor %s: %d bytes, want %d", t.Name, len(t.Data), want)
		}

		if info.Shape == nil {
			info.Shape = []int{}
		}
		header[t.Name] = info
		offset = info.DataOffsets[1]
	}

	bts, err := json.Marshal(header)
	if err != nil {
		return err
	}

	// Header auf 8 Byte ausrichten, Padding mit Leerzeichen
	if pad := (8 - len(bts)%8) % 8; pad > 0 {
		bts = append(bts, bytes.Repeat([]byte{' '}, pad)...)
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(bts))); err != nil {
		return err
	}

	if _, err := w.Write(bts); err != nil {
		return err
	}

	for _, t := range tensors {
		if _, err := w.Write(t.Data); err != nil {
			return err
		}
	}

	return nil
}
