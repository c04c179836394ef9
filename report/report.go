// report.go - Profiling-Report einer Inferenz-Session
//
// Enthaelt:
// - Meta: Angaben zum Lauf (Modell, Backend, Run-ID, Zeitpunkt)
// - Report: Momentaufnahme von runner.Stats plus Meta
// - FromStats: Konstruktor
//
// Der Report rendert nur erfasste Werte und berechnet nichts neu.
// Nicht verfuegbare Messwerte werden explizit als "unavailable" ausgegeben.
package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/7blacky7/gpurun/runner"
)

// Meta beschreibt den Lauf, zu dem ein Report gehoert
type Meta struct {
	Model        string
	Backend      string
	GPURequested bool
	RunID        string
	Timestamp    time.Time
}

// Report ist ein formatierbarer Profiling-Bericht
type Report struct {
	Meta  Meta
	Stats runner.Stats
}

// FromStats erstellt einen Report. Fehlende Run-ID und Zeitstempel werden gesetzt.
func FromStats(stats runner.Stats, meta Meta) *Report {
	if meta.RunID == "" {
		meta.RunID = uuid.NewString()
	}

	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}

	return &Report{Meta: meta, Stats: stats}
}

// timingRows liefert die Zeitmessungen in Pipeline-Reihenfolge
func (r *Report) timingRows() []struct {
	label string
	key   string
	value time.Duration
} {
	t := r.Stats.Timing
	return []struct {
		label string
		key   string
		value time.Duration
	}{
		{"Model Load", "model_load", t.ModelLoad},
		{"Delegate Init", "delegate_init", t.DelegateInit},
		{"Tensor Allocation", "tensor_allocation", t.TensorAllocation},
		{"Input Copy", "input_copy", t.InputCopy},
		{"Inference", "inference", t.Inference},
		{"Output Copy", "output_copy", t.OutputCopy},
		{"Total Runtime", "total", t.Total},
	}
}

var checkpointLabels = map[runner.Checkpoint]string{
	runner.CheckpointModelLoad:        "After Model Load",
	runner.CheckpointDelegateInit:     "After Delegate",
	runner.CheckpointTensorAllocation: "After Allocation",
	runner.CheckpointInference:        "After Inference",
}

var gpuCheckpointLabels = map[runner.Checkpoint]string{
	runner.CheckpointDelegateInit: "After Delegate Init",
	runner.CheckpointInference:    "After Inference",
}
