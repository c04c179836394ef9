// config_features.go - Feature-Flags und Laufzeit-Konfiguration
//
// Dieses Modul enthaelt:
// - Feature-Flags (NoGPU, Profiling, Dequantize)
// - Laufzeit-Einstellungen (Threads, Benchmark-Iterationen)
package envconfig

// =============================================================================
// Feature-Flags
// =============================================================================

var (
	// NoGPU deaktiviert den GPU-Delegate, alle Operationen laufen auf dem Host
	NoGPU = Bool("GPURUN_NO_GPU")

	// Profiling aktiviert Speicher-Snapshots an den Checkpoints (Default: an)
	Profiling = BoolWithDefault("GPURUN_PROFILING")

	// Dequantize aktiviert affine Dequantisierung (scale/zero_point) fuer int8/uint8 Tensoren
	Dequantize = Bool("GPURUN_DEQUANTIZE")
)

// =============================================================================
// Laufzeit-Einstellungen
// =============================================================================

var (
	// NumThreads setzt die Anzahl Host-Threads der Engine (0 = auto)
	// Konfigurierbar via GPURUN_NUM_THREADS
	NumThreads = Uint("GPURUN_NUM_THREADS", 0)

	// BenchIterations setzt die Standard-Anzahl gemessener Benchmark-Laeufe
	// Konfigurierbar via GPURUN_BENCH_ITERATIONS
	BenchIterations = Uint("GPURUN_BENCH_ITERATIONS", 50)
)
