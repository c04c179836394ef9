// config_utils.go - Utility-Funktionen und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - BoolWithDefault/Bool: Boolean-Getter mit Default-Wert
// - String: String-Getter
// - Uint: Integer-Getter mit Default-Wert
// - EnvVar: Struktur fuer Environment-Variablen-Info
// - AsMap: Gibt alle Konfigurationen als Map zurueck
// - Values: Gibt alle Konfigurationswerte als String-Map zurueck
package envconfig

import (
	"fmt"
	"log/slog"
	"strconv"
)

// =============================================================================
// Boolean-Getter
// =============================================================================

// BoolWithDefault gibt eine Funktion zurueck, die einen Bool mit Default-Wert liest
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool gibt eine Funktion zurueck, die einen Bool liest (Default: false)
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// =============================================================================
// String-Getter
// =============================================================================

// String gibt eine Funktion zurueck, die einen String liest
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// =============================================================================
// Integer-Getter
// =============================================================================

// Uint gibt eine Funktion zurueck, die einen uint mit Default-Wert liest
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// =============================================================================
// Export-Strukturen und -Funktionen
// =============================================================================

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
// Enthaelt Namen, aktuelle Werte und Beschreibungen
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"GPURUN_DEBUG":            {"GPURUN_DEBUG", LogLevel(), "Show additional debug information (e.g. GPURUN_DEBUG=1)"},
		"GPURUN_BACKEND":          {"GPURUN_BACKEND", Backend(), "Inference engine to use (default: host)"},
		"GPURUN_NO_GPU":           {"GPURUN_NO_GPU", NoGPU(), "Disable the GPU delegate and run all ops on the host"},
		"GPURUN_OUTPUT_DIR":       {"GPURUN_OUTPUT_DIR", OutputDir(), "Directory for auto-named outputs (default: outputs)"},
		"GPURUN_PROFILING":        {"GPURUN_PROFILING", Profiling(true), "Capture memory snapshots at pipeline checkpoints"},
		"GPURUN_DEQUANTIZE":       {"GPURUN_DEQUANTIZE", Dequantize(), "Apply scale/zero-point when copying quantized tensors"},
		"GPURUN_GPU_MEMINFO":      {"GPURUN_GPU_MEMINFO", GPUMemInfoPaths(), "Extra GPU memory report paths probed before the built-in list"},
		"GPURUN_NUM_THREADS":      {"GPURUN_NUM_THREADS", NumThreads(), "Number of host threads (0 = auto)"},
		"GPURUN_BENCH_ITERATIONS": {"GPURUN_BENCH_ITERATIONS", BenchIterations(), "Default number of measured benchmark runs"},
	}
}

// Values gibt alle Konfigurationswerte als String-Map zurueck
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
