// MODUL: bench
// ZWECK: Wiederholte Inferenz-Laeufe mit Latenz-Statistik und Bewertung
// INPUT: runner.Session (geladen, ggf. mit Delegate), Eingabe-Puffer, Config
// OUTPUT: Result mit Einzelzeiten, Mittelwert, Median, Streuung, Platzierung
// NEBENEFFEKTE: CPU/GPU-Last waehrend des Benchmarks
// ABHAENGIGKEITEN: gonum/stat, gonum/floats (extern)
// HINWEISE: Gemessen wird die Inferenz-Zeit der Session, nicht die Kopierzeiten

package bench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/7blacky7/gpurun/envconfig"
	"github.com/7blacky7/gpurun/runner"
)

// ============================================================================
// Konfiguration
// ============================================================================

// Config steuert einen Benchmark-Lauf
type Config struct {
	Iterations int // gemessene Laeufe
	Warmup     int // Laeufe ohne Messung
}

// DefaultConfig liest die Iterationen aus GPURUN_BENCH_ITERATIONS
func DefaultConfig() Config {
	return Config{Iterations: int(envconfig.BenchIterations()), Warmup: 5}
}

// ============================================================================
// Ergebnis
// ============================================================================

// Result ist das Ergebnis eines Benchmarks
type Result struct {
	// Label unterscheidet Laeufe im Vergleich (z.B. "gpu", "cpu")
	Label            string          `json:"label"`
	DelegateAttached bool            `json:"delegate_attached"`
	Iterations       int             `json:"iterations"`
	Runs             []time.Duration `json:"runs_ns"`

	Mean   time.Duration `json:"mean_ns"`
	Median time.Duration `json:"median_ns"`
	StdDev time.Duration `json:"stddev_ns"`
	Min    time.Duration `json:"min_ns"`
	Max    time.Duration `json:"max_ns"`

	Placement runner.Placement `json:"placement"`
}

// ErrNoIterations wird bei Config.Iterations < 1 zurueckgegeben
var ErrNoIterations = errors.New("benchmark needs at least one iteration")

// Run fuehrt cfg.Warmup ungemessene und cfg.Iterations gemessene Inferenzen
// aus. ctx wird zwischen den Laeufen geprueft.
func Run(ctx context.Context, sess *runner.Session, inputs []runner.Buffer, cfg Config) (*Result, error) {
	if cfg.Iterations < 1 {
		return nil, ErrNoIterations
	}

	for i := range cfg.Warmup {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := sess.RunInference(inputs); err != nil {
			return nil, fmt.Errorf("warmup run %d: %w", i+1, err)
		}
	}

	runs := make([]time.Duration, 0, cfg.Iterations)
	for i := range cfg.Iterations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := sess.RunInference(inputs); err != nil {
			return nil, fmt.Errorf("run %d/%d: %w", i+1, cfg.Iterations, err)
		}

		d := sess.Stats().Timing.Inference
		slog.Debug("benchmark run", "run", i+1, "of", cfg.Iterations, "inference", d)
		runs = append(runs, d)
	}

	stats := sess.Stats()
	r := summarize(runs)
	r.DelegateAttached = stats.DelegateAttached
	r.Placement = stats.Placement
	r.Label = "cpu"
	if r.DelegateAttached {
		r.Label = "gpu"
	}
	return r, nil
}

// summarize berechnet die Kennzahlen. StdDev ist die Stichproben-
// Standardabweichung (0 bei einem Lauf).
func summarize(runs []time.Duration) *Result {
	r := &Result{Iterations: len(runs), Runs: runs}
	if len(runs) == 0 {
		return r
	}

	x := make([]float64, len(runs))
	for i, d := range runs {
		x[i] = float64(d)
	}

	r.Mean = time.Duration(stat.Mean(x, nil))
	r.Min = time.Duration(floats.Min(x))
	r.Max = time.Duration(floats.Max(x))
	if len(x) > 1 {
		r.StdDev = time.Duration(stat.StdDev(x, nil))
	}

	sorted := slices.Clone(x)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		r.Median = time.Duration(sorted[mid])
	} else {
		r.Median = time.Duration(math.Round((sorted[mid-1] + sorted[mid]) / 2))
	}

	return r
}

// Compare gibt den Faktor zurueck, um den accelerated schneller ist als
// baseline (Mittelwerte). 0 wenn nicht berechenbar.
func Compare(accelerated, baseline *Result) float64 {
	if accelerated == nil || baseline == nil || accelerated.Mean <= 0 {
		return 0
	}
	return float64(baseline.Mean) / float64(accelerated.Mean)
}

// ============================================================================
// Bewertung
// ============================================================================

// Class ist die Leistungsklasse eines Benchmarks
type Class string

const (
	ClassExcellent  Class = "Excellent"
	ClassGood       Class = "Good"
	ClassAcceptable Class = "Acceptable"
	ClassSlow       Class = "Slow"
)

// Describe gibt eine Kurzbeschreibung der Klasse zurueck
func (c Class) Describe() string {
	switch c {
	case ClassExcellent:
		return "suitable for real-time applications"
	case ClassGood:
		return "suitable for most interactive use cases"
	case ClassAcceptable:
		return "may struggle with real-time constraints"
	default:
		return "consider model optimization"
	}
}

// Classify ordnet eine mittlere Inferenz-Zeit einer Klasse zu
func Classify(mean time.Duration) Class {
	switch {
	case mean < 10*time.Millisecond:
		return ClassExcellent
	case mean < 20*time.Millisecond:
		return ClassGood
	case mean < 50*time.Millisecond:
		return ClassAcceptable
	default:
		return ClassSlow
	}
}

// Recommendations leitet Hinweise aus Platzierung und Latenz ab
func Recommendations(r *Result) []string {
	var out []string

	if p := r.Placement; p.Analyzed && p.Total > 0 {
		switch pct := p.GPUPercent(); {
		case pct < 70:
			out = append(out, fmt.Sprintf("Low GPU utilization (%.1f%%): %d operators run on CPU, consider model architecture changes", pct, p.Host))
		case pct > 90:
			out = append(out, "Excellent GPU utilization, the model is well optimised for the delegate")
		}
	}

	if r.Mean > 20*time.Millisecond {
		out = append(out,
			"Consider INT8 quantization for faster inference",
			"Reduce input resolution if possible",
		)
	}

	return out
}
