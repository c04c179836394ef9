// Package safetensors - Safetensors File Accessor Methoden
//
// Dieses Modul enthaelt die Zugriffs-Methoden:
// - Metadata: Liest einen Eintrag aus __metadata__
// - TensorInfo/TensorInfos: Header-Eintraege nach Name bzw. in Dateireihenfolge
// - Data: Rohe Tensor-Bytes
// - Float32s: Tensor-Daten als float32 (F16/BF16/F64/Integer werden konvertiert)
package safetensors

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// Metadata sucht einen Eintrag aus dem __metadata__ Block
func (f *File) Metadata(key string) string {
	return f.metadata[key]
}

// MetadataMap gibt eine Kopie aller Metadaten zurueck
func (f *File) MetadataMap() map[string]string {
	m := make(map[string]string, len(f.metadata))
	for k, v := range f.metadata {
		m[k] = v
	}
	return m
}

// TensorInfo sucht Tensor-Info nach Name
func (f *File) TensorInfo(name string) (TensorInfo, bool) {
	if index := slices.IndexFunc(f.tensors, func(t TensorInfo) bool {
		return t.Name == name
	}); index >= 0 {
		return f.tensors[index], true
	}
	return TensorInfo{}, false
}

// TensorInfos gibt alle Tensor-Infos in Dateireihenfolge zurueck
func (f *File) TensorInfos() []TensorInfo {
	return slices.Clone(f.tensors)
}

// NumTensors gibt die Anzahl der Tensors zurueck
func (f *File) NumTensors() int {
	return len(f.tensors)
}

// Data gibt die rohen Tensor-Bytes zurueck (keine Kopie)
func (f *File) Data(name string) (TensorInfo, []byte, error) {
	t, ok := f.TensorInfo(name)
	if !ok {
		return TensorInfo{}, nil, fmt.Errorf("tensor %s not found", name)
	}
	return t, f.data[t.DataOffsets[0]:t.DataOffsets[1]], nil
}

// Float32s liest einen Tensor und konvertiert ihn nach float32
func (f *File) Float32s(name string) (TensorInfo, []float32, error) {
	t, bts, err := f.Data(name)
	if err != nil {
		return TensorInfo{}, nil, err
	}

	f32s, err := DecodeFloat32(t.DType, bts)
	if err != nil {
		return TensorInfo{}, nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	return t, f32s, nil
}

// DecodeFloat32 konvertiert little-endian Rohdaten eines Datentyps nach float32
func DecodeFloat32(dtype string, bts []byte) ([]float32, error) {
	size := dtypeSize(dtype)
	if size == 0 || dtype == "BOOL" {
		return nil, fmt.Errorf("%w dtype %q", ErrUnsupported, dtype)
	}

	n := len(bts) / size
	switch dtype {
	case "BF16":
		return bfloat16.DecodeFloat32(bts), nil
	}

	f32s := make([]float32, n)
	for i := range f32s {
		b := bts[i*size:]
		switch dtype {
		case "F32":
			f32s[i] = math.Float32frombits(binary.LittleEndian.Uint32(b))
		case "F16":
			f32s[i] = float16.Frombits(binary.LittleEndian.Uint16(b)).Float32()
		case "F64":
			f32s[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(b)))
		case "I64":
			f32s[i] = float32(int64(binary.LittleEndian.Uint64(b)))
		case "U64":
			f32s[i] = float32(binary.LittleEndian.Uint64(b))
		case "I32":
			f32s[i] = float32(int32(binary.LittleEndian.Uint32(b)))
		case "U32":
			f32s[i] = float32(binary.LittleEndian.Uint32(b))
		case "I16":
			f32s[i] = float32(int16(binary.LittleEndian.Uint16(b)))
		case "U16":
			f32s[i] = float32(binary.LittleEndian.Uint16(b))
		case "I8":
			f32s[i] = float32(int8(b[0]))
		case "U8":
			f32s[i] = float32(b[0])
		}
	}
	return f32s, nil
}
