// Package npy liest und schreibt NumPy .npy Dateien (Format v1.0, v2.0, v3.0).
//
// Layout: Magic "\x93NUMPY", Major/Minor-Version, Header-Laenge (uint16 fuer
// v1, uint32 fuer v2/v3), Python-Dict als Header, dann die Rohdaten in
// C-Reihenfolge. Unterstuetzt werden nur little-endian float32/float64 sowie
// int8 und uint8.
package npy

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/7blacky7/gpurun/format"
)

const magic = "\x93NUMPY"

// maxHeaderLen begrenzt den Header-Text (v2/v3 erlauben bis 4 GiB)
const maxHeaderLen = 1 << 20

var (
	// ErrMalformedHeader wird bei leeren oder defekten Headern zurueckgegeben
	ErrMalformedHeader = errors.New("npy: malformed header")

	// ErrUnsupportedDType wird fuer nicht unterstuetzte descr-Werte zurueckgegeben
	ErrUnsupportedDType = errors.New("npy: unsupported dtype")

	// ErrShapeMismatch wird beim Schreiben zurueckgegeben, wenn Daten und Shape nicht passen
	ErrShapeMismatch = errors.New("npy: data does not match shape")
)

// DType ist der normalisierte descr-Wert eines Arrays
type DType string

const (
	Float32 DType = "<f4"
	Float64 DType = "<f8"
	Int8    DType = "|i1"
	Uint8   DType = "|u1"
)

// Size gibt die Elementgroesse in Bytes zurueck (0 = unbekannt)
func (d DType) Size() int {
	switch d {
	case Float64:
		return 8
	case Float32:
		return 4
	case Int8, Uint8:
		return 1
	default:
		return 0
	}
}

// parseDType normalisiert descr. Byte-Order ist fuer 1-Byte-Typen egal.
func parseDType(descr string) (DType, error) {
	switch descr {
	case "<f4":
		return Float32, nil
	case "<f8":
		return Float64, nil
	case "|i1", "<i1", ">i1", "i1":
		return Int8, nil
	case "|u1", "<u1", ">u1", "u1", "|b1":
		return Uint8, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnsupportedDType, descr)
	}
}

// Array ist ein geladenes .npy Array. Data enthaelt die Rohdaten little-endian.
type Array struct {
	DType DType
	Shape []int
	Data  []byte

	// Version ist die Format-Version der Datei (1, 2 oder 3)
	Version int
}

// Elements gibt die Anzahl Elemente zurueck (Skalar = 1)
func (a *Array) Elements() int {
	return elements(a.Shape)
}

// Float32s wandelt die Daten nach float32. float64 wird gerundet, int8/uint8
// werden direkt uebernommen.
func (a *Array) Float32s() []float32 {
	n := a.Elements()
	out := make([]float32, n)

	switch a.DType {
	case Float32:
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(a.Data[i*4:]))
		}
	case Float64:
		for i := range out {
			out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(a.Data[i*8:])))
		}
	case Int8:
		for i := range out {
			out[i] = float32(int8(a.Data[i]))
		}
	case Uint8:
		for i := range out {
			out[i] = float32(a.Data[i])
		}
	}

	return out
}

// Int8s gibt die Daten eines int8-Arrays zurueck
func (a *Array) Int8s() ([]int8, error) {
	if a.DType != Int8 {
		return nil, fmt.Errorf("%w: want %s, have %s", ErrUnsupportedDType, Int8, a.DType)
	}

	out := make([]int8, len(a.Data))
	for i, b := range a.Data {
		out[i] = int8(b)
	}
	return out, nil
}

// Uint8s gibt die Daten eines uint8-Arrays zurueck
func (a *Array) Uint8s() ([]uint8, error) {
	if a.DType != Uint8 {
		return nil, fmt.Errorf("%w: want %s, have %s", ErrUnsupportedDType, Uint8, a.DType)
	}
	return a.Data, nil
}

// Read liest eine .npy Datei
func Read(path string) (*Array, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	a, err := Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	slog.Debug("loaded npy", "path", path, "dtype", a.DType, "shape", format.Shape(a.Shape), "version", a.Version)
	return a, nil
}

// LoadFloat32 liest eine .npy Datei als float32-Puffer mit Shape
func LoadFloat32(path string) ([]float32, []int, error) {
	a, err := Read(path)
	if err != nil {
		return nil, nil, err
	}
	return a.Float32s(), a.Shape, nil
}

// Decode liest ein Array aus r
func Decode(r io.Reader) (*Array, error) {
	var prefix [8]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}

	if string(prefix[:6]) != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrMalformedHeader, prefix[:6])
	}

	version := int(prefix[6])
	var headerLen int
	switch version {
	case 1:
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
		}
		headerLen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
		}
		if n > maxHeaderLen {
			return nil, fmt.Errorf("%w: header length %d", ErrMalformedHeader, n)
		}
		headerLen = int(n)
	default:
		return nil, fmt.Errorf("%w: unsupported version %d.%d", ErrMalformedHeader, prefix[6], prefix[7])
	}

	if headerLen == 0 {
		return nil, fmt.Errorf("%w: empty header", ErrMalformedHeader)
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}

	h, err := parseHeader(string(header))
	if err != nil {
		return nil, err
	}

	dtype, err := parseDType(h.descr)
	if err != nil {
		return nil, err
	}

	if h.fortranOrder {
		return nil, fmt.Errorf("%w: fortran_order arrays are not supported", ErrMalformedHeader)
	}

	n, ok := byteSize(h.shape, dtype.Size())
	if !ok {
		return nil, fmt.Errorf("%w: shape %v too large", ErrMalformedHeader, h.shape)
	}

	// Puffer waechst mit den gelesenen Daten, nicht mit der Header-Angabe
	var data bytes.Buffer
	data.Grow(min(n, 1<<20))
	if got, err := io.CopyN(&data, r, int64(n)); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("npy: read %s elements (got %s bytes): %w", format.Count(elements(h.shape)), format.Count(int(got)), err)
	}

	return &Array{DType: dtype, Shape: h.shape, Data: data.Bytes(), Version: version}, nil
}

// byteSize gibt die Datengroesse fuer shape zurueck, false bei Ueberlauf
func byteSize(shape []int, size int) (int, bool) {
	n := size
	for _, d := range shape {
		if d < 0 || (d > 0 && n > math.MaxInt/d) {
			return 0, false
		}
		n *= d
	}
	return n, true
}

func elements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
