// types.go - Abbildung zwischen TFLite-Konstanten und ml-Typen
//
// Die Werte entsprechen den Enums aus tensorflow/lite/c/c_api_types.h und
// tensorflow/lite/delegates/gpu/delegate_options.h. Sie sind hier als Go-
// Konstanten hinterlegt, damit die Abbildung ohne cgo testbar bleibt.
package tflite

import (
	"errors"

	"github.com/7blacky7/gpurun/ml"
)

// ErrCGORequired wird zurueckgegeben, wenn gpurun ohne das Build-Tag
// "tflite" oder ohne cgo gebaut wurde
var ErrCGORequired = errors.New("tflite: backend requires cgo and the tflite build tag")

// DelegateKernelName ist der Kernel-Name der GPU-Delegate-Partitionen
const DelegateKernelName = "TfLiteGpuDelegateV2"

// TfLiteType
const (
	typeNoType   = 0
	typeFloat32  = 1
	typeInt32    = 2
	typeUInt8    = 3
	typeInt64    = 4
	typeBool     = 6
	typeInt16    = 7
	typeInt8     = 9
	typeFloat16  = 10
	typeFloat64  = 11
	typeBFloat16 = 19
)

func dtypeFromTFLite(t int) ml.DType {
	switch t {
	case typeFloat32:
		return ml.DTypeF32
	case typeInt32:
		return ml.DTypeI32
	case typeUInt8:
		return ml.DTypeU8
	case typeInt64:
		return ml.DTypeI64
	case typeBool:
		return ml.DTypeBool
	case typeInt16:
		return ml.DTypeI16
	case typeInt8:
		return ml.DTypeI8
	case typeFloat16:
		return ml.DTypeF16
	case typeFloat64:
		return ml.DTypeF64
	case typeBFloat16:
		return ml.DTypeBF16
	default:
		return ml.DTypeOther
	}
}

// TfLiteGpuInferencePriority
const (
	priorityAuto           = 0
	priorityMaxPrecision   = 1
	priorityMinLatency     = 2
	priorityMinMemoryUsage = 3
)

func gpuPriority(p ml.InferencePriority) int {
	switch p {
	case ml.PriorityMaxPrecision:
		return priorityMaxPrecision
	case ml.PriorityMinLatency:
		return priorityMinLatency
	case ml.PriorityMinMemoryUsage:
		return priorityMinMemoryUsage
	default:
		return priorityAuto
	}
}

// TfLiteGpuInferenceUsage
const (
	usageFastSingleAnswer = 0
	usageSustainedSpeed   = 1
)

func gpuUsage(u ml.InferenceUsage) int {
	if u == ml.UsageSustainedSpeed {
		return usageSustainedSpeed
	}
	return usageFastSingleAnswer
}

// TfLiteGpuExperimentalFlags
const (
	flagsNone        = 0
	flagsEnableQuant = 1 << 0
)

// gpuOptions sind die aufbereiteten Delegate-Optionen fuer den C-Aufruf
type gpuOptions struct {
	priority1, priority2, priority3 int
	usage                           int
	flags                           int
	maxPartitions                   int
}

func newGPUOptions(opts ml.DelegateOptions) gpuOptions {
	g := gpuOptions{
		priority1:     gpuPriority(opts.Priority1),
		priority2:     gpuPriority(opts.Priority2),
		priority3:     gpuPriority(opts.Priority3),
		usage:         gpuUsage(opts.Usage),
		flags:         flagsNone,
		maxPartitions: opts.MaxDelegatedPartitions,
	}
	if opts.EnableQuantized {
		g.flags |= flagsEnableQuant
	}
	return g
}
