// marshal.go - Konvertierung zwischen Host-Puffern und Tensor-Speicher
//
// f32 wird direkt kopiert. i8/u8 werden beim Schreiben abgeschnitten
// (nicht gerundet) und beim Lesen direkt nach float32 gewandelt. Mit
// affiner Dequantisierung gilt q = trunc(x/scale + zp) bzw.
// x = (q - zp) * scale, sofern der Tensor Quantisierungsparameter hat.
package runner

import (
	"encoding/binary"
	"math"

	"github.com/7blacky7/gpurun/ml"
)

// marshaller kapselt die Cast-Regeln einer Session
type marshaller struct {
	dequantize bool
}

func supported(t ml.DType) bool {
	switch t {
	case ml.DTypeF32, ml.DTypeI8, ml.DTypeU8:
		return true
	default:
		return false
	}
}

// encode wandelt data in das Speicherformat des Tensors
func (m marshaller) encode(t ml.DType, q ml.Quantization, data []float32) []byte {
	affine := m.dequantize && q.Quantized()

	switch t {
	case ml.DTypeF32:
		bts := make([]byte, 4*len(data))
		for i, v := range data {
			binary.LittleEndian.PutUint32(bts[i*4:], math.Float32bits(v))
		}
		return bts
	case ml.DTypeI8:
		bts := make([]byte, len(data))
		for i, v := range data {
			if affine {
				v = v/q.Scale + float32(q.ZeroPoint)
			}
			bts[i] = byte(int8(truncate(v, math.MinInt8, math.MaxInt8)))
		}
		return bts
	case ml.DTypeU8:
		bts := make([]byte, len(data))
		for i, v := range data {
			if affine {
				v = v/q.Scale + float32(q.ZeroPoint)
			}
			bts[i] = uint8(truncate(v, 0, math.MaxUint8))
		}
		return bts
	default:
		return nil
	}
}

// decode wandelt Tensor-Speicher nach float32
func (m marshaller) decode(t ml.DType, q ml.Quantization, bts []byte) []float32 {
	affine := m.dequantize && q.Quantized()

	switch t {
	case ml.DTypeF32:
		data := make([]float32, len(bts)/4)
		for i := range data {
			data[i] = math.Float32frombits(binary.LittleEndian.Uint32(bts[i*4:]))
		}
		return data
	case ml.DTypeI8, ml.DTypeU8:
		data := make([]float32, len(bts))
		for i, b := range bts {
			v := int32(b)
			if t == ml.DTypeI8 {
				v = int32(int8(b))
			}

			if affine {
				data[i] = float32(v-q.ZeroPoint) * q.Scale
			} else {
				data[i] = float32(v)
			}
		}
		return data
	default:
		return nil
	}
}

// truncate schneidet Richtung 0 ab. Werte ausserhalb des Zielbereichs
// saettigen, NaN wird 0.
func truncate(v float32, lo, hi float64) int64 {
	f := math.Trunc(float64(v))
	switch {
	case math.IsNaN(f):
		return 0
	case f < lo:
		return int64(lo)
	case f > hi:
		return int64(hi)
	default:
		return int64(f)
	}
}
