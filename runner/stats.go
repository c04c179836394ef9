// stats.go - Gesammelte Profiling-Daten einer Session
package runner

import (
	"github.com/7blacky7/gpurun/telemetry"
)

// Checkpoint benennt einen Messpunkt in der Pipeline
type Checkpoint string

const (
	CheckpointModelLoad        Checkpoint = "after_model_load"
	CheckpointDelegateInit     Checkpoint = "after_delegate_init"
	CheckpointTensorAllocation Checkpoint = "after_tensor_allocation"
	CheckpointInference        Checkpoint = "after_inference"
)

// MemoryCheckpoints sind die Messpunkte fuer Prozess-Speicher in Pipeline-Reihenfolge
var MemoryCheckpoints = []Checkpoint{
	CheckpointModelLoad,
	CheckpointDelegateInit,
	CheckpointTensorAllocation,
	CheckpointInference,
}

// GPUCheckpoints sind die Messpunkte fuer GPU-Speicher in Pipeline-Reihenfolge
var GPUCheckpoints = []Checkpoint{
	CheckpointDelegateInit,
	CheckpointInference,
}

// Stats ist eine Kopie des Profiling-Zustands einer Session
type Stats struct {
	State            State
	DelegateAttached bool

	// Profiling: Speicher-Messpunkte wurden erfasst
	Profiling bool

	Timing Timing

	MemAfterModelLoad        telemetry.MemoryInfo
	MemAfterDelegateInit     telemetry.MemoryInfo
	MemAfterTensorAllocation telemetry.MemoryInfo
	MemAfterInference        telemetry.MemoryInfo

	GPUAfterDelegateInit telemetry.GPUMemoryInfo
	GPUAfterInference    telemetry.GPUMemoryInfo

	Placement Placement
}

// Memory gibt den Speicher-Messpunkt c zurueck
func (s *Stats) Memory(c Checkpoint) telemetry.MemoryInfo {
	if p := s.memory(c); p != nil {
		return *p
	}
	return telemetry.MemoryInfo{}
}

// GPU gibt den GPU-Messpunkt c zurueck
func (s *Stats) GPU(c Checkpoint) telemetry.GPUMemoryInfo {
	if p := s.gpu(c); p != nil {
		return *p
	}
	return telemetry.GPUMemoryInfo{}
}

func (s *Stats) memory(c Checkpoint) *telemetry.MemoryInfo {
	switch c {
	case CheckpointModelLoad:
		return &s.MemAfterModelLoad
	case CheckpointDelegateInit:
		return &s.MemAfterDelegateInit
	case CheckpointTensorAllocation:
		return &s.MemAfterTensorAllocation
	case CheckpointInference:
		return &s.MemAfterInference
	default:
		return nil
	}
}

func (s *Stats) gpu(c Checkpoint) *telemetry.GPUMemoryInfo {
	switch c {
	case CheckpointDelegateInit:
		return &s.GPUAfterDelegateInit
	case CheckpointInference:
		return &s.GPUAfterInference
	default:
		return nil
	}
}
