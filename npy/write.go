// write.go - Schreiben von .npy Dateien
package npy

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/7blacky7/gpurun/format"
)

// headerAlign ist die Ausrichtung von Magic + Header, wie numpy sie schreibt
const headerAlign = 64

// Save schreibt einen float32-Puffer als <f4
func Save(path string, data []float32, shape []int) error {
	bts := make([]byte, len(data)*4)
	for i, v := range data {
		binary.LittleEndian.PutUint32(bts[i*4:], math.Float32bits(v))
	}
	return save(path, Float32, shape, len(data), bts)
}

// SaveInt8 schreibt einen int8-Puffer als |i1
func SaveInt8(path string, data []int8, shape []int) error {
	bts := make([]byte, len(data))
	for i, v := range data {
		bts[i] = byte(v)
	}
	return save(path, Int8, shape, len(data), bts)
}

// SaveUint8 schreibt einen uint8-Puffer als |u1
func SaveUint8(path string, data []uint8, shape []int) error {
	return save(path, Uint8, shape, len(data), data)
}

func save(path string, dtype DType, shape []int, n int, data []byte) error {
	if shape == nil {
		shape = []int{n}
	}

	if want := elements(shape); want != n {
		return fmt.Errorf("%w: shape %s needs %s elements, got %s", ErrShapeMismatch, format.Shape(shape), format.Count(want), format.Count(n))
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	if err := Encode(w, dtype, shape, data); err != nil {
		f.Close()
		return err
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return err
	}

	slog.Debug("saved npy", "path", path, "dtype", dtype, "shape", format.Shape(shape))
	return nil
}

// Encode schreibt Header und Rohdaten. Version 1.0 wird verwendet, solange
// der Header in 65535 Bytes passt, sonst 2.0.
func Encode(w io.Writer, dtype DType, shape []int, data []byte) error {
	if dtype.Size() == 0 {
		return fmt.Errorf("%w %q", ErrUnsupportedDType, dtype)
	}

	if want := elements(shape) * dtype.Size(); want != len(data) {
		return fmt.Errorf("%w: shape %s needs %d bytes, got %d", ErrShapeMismatch, format.Shape(shape), want, len(data))
	}

	text := formatHeader(dtype, shape)

	version, prefixLen := byte(1), len(magic)+2+2
	if len(text)+1+prefixLen+headerAlign > math.MaxUint16 {
		version, prefixLen = 2, len(magic)+2+4
	}

	// Padding mit Leerzeichen, abgeschlossen mit '\n'
	pad := headerAlign - (prefixLen+len(text)+1)%headerAlign
	if pad == headerAlign {
		pad = 0
	}
	text += strings.Repeat(" ", pad) + "\n"

	if _, err := io.WriteString(w, magic); err != nil {
		return err
	}
	if _, err := w.Write([]byte{version, 0}); err != nil {
		return err
	}

	var err error
	if version == 1 {
		err = binary.Write(w, binary.LittleEndian, uint16(len(text)))
	} else {
		err = binary.Write(w, binary.LittleEndian, uint32(len(text)))
	}
	if err != nil {
		return err
	}

	if _, err := io.WriteString(w, text); err != nil {
		return err
	}

	_, err = w.Write(data)
	return err
}
