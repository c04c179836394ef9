package tflite

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/7blacky7/gpurun/ml"
)

func TestDTypeFromTFLite(t *testing.T) {
	cases := map[int]ml.DType{
		typeNoType:   ml.DTypeOther,
		typeFloat32:  ml.DTypeF32,
		typeInt32:    ml.DTypeI32,
		typeUInt8:    ml.DTypeU8,
		typeInt64:    ml.DTypeI64,
		5:            ml.DTypeOther, // string
		typeBool:     ml.DTypeBool,
		typeInt16:    ml.DTypeI16,
		typeInt8:     ml.DTypeI8,
		typeFloat16:  ml.DTypeF16,
		typeFloat64:  ml.DTypeF64,
		typeBFloat16: ml.DTypeBF16,
	}

	for in, want := range cases {
		if got := dtypeFromTFLite(in); got != want {
			t.Errorf("dtypeFromTFLite(%d) = %v, want %v", in, got, want)
		}
	}
}

func TestNewGPUOptions(t *testing.T) {
	got := newGPUOptions(ml.DefaultDelegateOptions())
	want := gpuOptions{
		priority1: priorityMinLatency,
		priority2: priorityAuto,
		priority3: priorityAuto,
		usage:     usageFastSingleAnswer,
		flags:     flagsEnableQuant,
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(gpuOptions{})); diff != "" {
		t.Errorf("default options mismatch (-want +got):\n%s", diff)
	}

	got = newGPUOptions(ml.DelegateOptions{
		Priority1:              ml.PriorityMaxPrecision,
		Priority2:              ml.PriorityMinMemoryUsage,
		Usage:                  ml.UsageSustainedSpeed,
		MaxDelegatedPartitions: 4,
	})
	want = gpuOptions{
		priority1:     priorityMaxPrecision,
		priority2:     priorityMinMemoryUsage,
		priority3:     priorityAuto,
		usage:         usageSustainedSpeed,
		flags:         flagsNone,
		maxPartitions: 4,
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(gpuOptions{})); diff != "" {
		t.Errorf("custom options mismatch (-want +got):\n%s", diff)
	}
}
