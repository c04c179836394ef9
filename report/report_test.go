package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7blacky7/gpurun/runner"
	"github.com/7blacky7/gpurun/telemetry"
)

func sampleStats() runner.Stats {
	return runner.Stats{
		State:            runner.StateInvoked,
		DelegateAttached: true,
		Profiling:        true,
		Timing: runner.Timing{
			ModelLoad:        12340 * time.Microsecond,
			DelegateInit:     250 * time.Millisecond,
			TensorAllocation: 1500 * time.Microsecond,
			InputCopy:        100 * time.Microsecond,
			Inference:        8 * time.Millisecond,
			OutputCopy:       50 * time.Microsecond,
			Total:            8150 * time.Microsecond,
		},
		MemAfterModelLoad:    telemetry.MemoryInfo{RSSKB: 1000, VMSizeKB: 5000},
		MemAfterDelegateInit: telemetry.MemoryInfo{RSSKB: 2000, VMSizeKB: 6000},
		MemAfterInference:    telemetry.MemoryInfo{RSSKB: 2500, VMSizeKB: 6500, PeakRSSKB: 2600},
		GPUAfterDelegateInit: telemetry.GPUMemoryInfo{
			Available: true,
			Source:    "/sys/class/kgsl/kgsl-3d0/gpu_mem",
			Raw:       "total 1234",
		},
		Placement: runner.Placement{
			Total:     4,
			Delegated: 3,
			Host:      1,
			HostOps:   []string{"Convolution2DTransposeBias"},
			Analyzed:  true,
		},
	}
}

func TestFromStatsMeta(t *testing.T) {
	r := FromStats(runner.Stats{}, Meta{Model: "m.safetensors"})
	assert.NotEmpty(t, r.Meta.RunID)
	assert.False(t, r.Meta.Timestamp.IsZero())

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r = FromStats(runner.Stats{}, Meta{RunID: "fixed", Timestamp: ts})
	assert.Equal(t, "fixed", r.Meta.RunID)
	assert.Equal(t, ts, r.Meta.Timestamp)
}

func TestWriteText(t *testing.T) {
	r := FromStats(sampleStats(), Meta{RunID: "run"})

	var buf bytes.Buffer
	require.NoError(t, r.WriteText(&buf))
	out := buf.String()

	for _, want := range []string{
		"=== Profiling Information ===\n",
		"Model Load:         12.34 ms\n",
		"Delegate Init:      250.00 ms\n",
		"Tensor Allocation:  1.50 ms\n",
		"Total Runtime:      8.15 ms\n",
		"=== Memory Snapshots (kB) ===\n",
		"After Model Load:   RSS=1000, VM=5000\n",
		"After Delegate:     RSS=2000, VM=6000\n",
		"After Allocation:   unavailable\n",
		"After Inference:    RSS=2500, VM=6500\n",
		"Peak RSS:           2600\n",
		"After Delegate Init (source: /sys/class/kgsl/kgsl-3d0/gpu_mem):\ntotal 1234\n",
		"After Inference: GPU mem stats unavailable on this device\n",
		"Total Operations:   4\n",
		"GPU Operations:     3 (75.0%)\n",
		"CPU Operations:     1 (25.0%)\n",
		"GPU delegation: 1 ops executed on CPU fallback.\n",
		"CPU Operations:\n  - Convolution2DTransposeBias\n",
	} {
		assert.Contains(t, out, want)
	}

	assert.Equal(t, out, r.String())
}

func TestWriteTextProfilingDisabled(t *testing.T) {
	stats := sampleStats()
	stats.Profiling = false
	stats.Placement = runner.Placement{Total: 2, Delegated: 2, Analyzed: true}

	out := FromStats(stats, Meta{}).String()
	assert.Contains(t, out, "Memory profiling disabled.\n")
	assert.NotContains(t, out, "=== Memory Snapshots")
	assert.Contains(t, out, "GPU delegation: All ops executed on GPU.\n")
	assert.NotContains(t, out, "  - ")
}

func TestWriteTextWithoutRun(t *testing.T) {
	out := FromStats(runner.Stats{Profiling: true}, Meta{}).String()

	// alle Abschnitte bleiben sichtbar
	assert.Equal(t, 4, strings.Count(out, "unavailable\n"))
	assert.Contains(t, out, "After Delegate Init: GPU mem stats unavailable on this device\n")
	assert.Contains(t, out, "Operation placement unavailable")
}

func TestWriteTextGPURawVerbatim(t *testing.T) {
	stats := sampleStats()
	stats.GPUAfterInference = telemetry.GPUMemoryInfo{Available: true, Source: "/proc/mali/meminfo", Raw: "used 7\n\n", Truncated: true}

	out := FromStats(stats, Meta{}).String()
	assert.Contains(t, out, "After Inference (source: /proc/mali/meminfo):\nused 7\n\n(report truncated)\n")
}

func TestWriteTable(t *testing.T) {
	r := FromStats(sampleStats(), Meta{RunID: "run-1", Model: "model.safetensors", Backend: "host", GPURequested: true})

	var buf bytes.Buffer
	require.NoError(t, r.WriteTable(&buf))
	out := buf.String()

	for _, want := range []string{"run-1", "model.safetensors", "attached", "invoked", "250.00 ms", "after_tensor_allocation", "unavailable", "75.0%", "1 ops executed on CPU fallback"} {
		assert.Contains(t, out, want)
	}
}

func TestMarshalJSON(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := FromStats(sampleStats(), Meta{RunID: "run", Timestamp: ts, Backend: "host"})

	bts, err := json.Marshal(r)
	require.NoError(t, err)
	out := string(bts)

	// Reihenfolge der Pipeline
	order := []string{`"run_id"`, `"timing"`, `"model_load_ms"`, `"total_ms"`, `"memory"`, `"after_model_load"`, `"after_delegate_init"`, `"after_tensor_allocation"`, `"after_inference"`, `"gpu_memory"`, `"placement"`}
	last := -1
	for _, key := range order {
		idx := strings.Index(out[last+1:], key)
		require.GreaterOrEqual(t, idx, 0, "key %s missing or out of order", key)
		last += idx + 1
	}

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(bts, &decoded))
	assert.Equal(t, "2026-01-02T03:04:05Z", decoded["timestamp"])

	memory := decoded["memory"].(map[string]any)
	assert.Nil(t, memory["after_tensor_allocation"])
	assert.Equal(t, float64(1000), memory["after_model_load"].(map[string]any)["rss_kb"])

	timing := decoded["timing"].(map[string]any)
	assert.InDelta(t, 250.0, timing["delegate_init_ms"], 1e-9)

	placement := decoded["placement"].(map[string]any)
	assert.Equal(t, float64(3), placement["delegated"])
}

func TestMarshalJSONProfilingDisabled(t *testing.T) {
	bts, err := json.Marshal(FromStats(runner.Stats{}, Meta{RunID: "x"}))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(bts, &decoded))
	assert.NotContains(t, decoded, "memory")
	assert.Nil(t, decoded["placement"])
	assert.Equal(t, "unloaded", decoded["state"])
}
