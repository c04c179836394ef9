// cmd_session.go - Aufbau einer Inferenz-Session aus CLI-Flags
// Hauptfunktionen: engineOptions, openSession, loadInputs
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/7blacky7/gpurun/envconfig"
	"github.com/7blacky7/gpurun/format"
	"github.com/7blacky7/gpurun/ml"
	"github.com/7blacky7/gpurun/runner"
	"github.com/7blacky7/gpurun/telemetry"
	"github.com/7blacky7/gpurun/tensorio"
)

// engineOptions - Aufgeloeste Engine-Einstellungen (Flags vor Environment)
type engineOptions struct {
	Model      string
	Backend    string
	GPU        bool
	Threads    int
	Dequantize bool
	Profiling  bool
}

// engineOptionsFromFlags - Liest die gemeinsamen Engine-Flags
func engineOptionsFromFlags(cmd *cobra.Command) (engineOptions, error) {
	opts := engineOptions{
		Backend:    envconfig.Backend(),
		GPU:        !envconfig.NoGPU(),
		Threads:    int(envconfig.NumThreads()),
		Dequantize: envconfig.Dequantize(),
		Profiling:  envconfig.Profiling(true),
	}

	var err error
	if opts.Model, err = cmd.Flags().GetString("model"); err != nil {
		return opts, err
	}

	if b, _ := cmd.Flags().GetString("backend"); b != "" {
		opts.Backend = b
	}
	if noGPU, _ := cmd.Flags().GetBool("no-gpu"); noGPU {
		opts.GPU = false
	}
	if cmd.Flags().Changed("threads") {
		opts.Threads, _ = cmd.Flags().GetInt("threads")
	}
	if cmd.Flags().Lookup("dequantize") != nil && cmd.Flags().Changed("dequantize") {
		opts.Dequantize, _ = cmd.Flags().GetBool("dequantize")
	}
	if noProfiling, _ := cmd.Flags().GetBool("no-profiling"); noProfiling {
		opts.Profiling = false
	}

	if opts.Threads < 0 {
		return opts, fmt.Errorf("threads must not be negative, got %d", opts.Threads)
	}
	return opts, nil
}

// openSession - Erstellt Backend und Session und laedt das Modell. Bei
// gpu wird der Delegate angebunden; ein Fehlschlag dort ist nur eine Warnung.
func openSession(opts engineOptions, gpu bool) (*runner.Session, error) {
	backend, err := ml.NewBackend(opts.Backend, ml.BackendParams{NumThreads: opts.Threads})
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}

	sess := runner.New(backend,
		runner.WithLogger(slog.Default()),
		runner.WithTelemetry(telemetry.System{}),
		runner.WithDequantize(opts.Dequantize),
		runner.WithProfiling(opts.Profiling),
	)

	if err := sess.LoadModel(opts.Model); err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}

	if gpu {
		if err := sess.InitAccelerator(); err != nil {
			var delegateErr *runner.DelegateInitError
			if !errors.As(err, &delegateErr) || sess.State() == runner.StateUnloaded {
				sess.Close()
				return nil, fmt.Errorf("init accelerator: %w", err)
			}
			slog.Warn("continuing without GPU delegate", "error", err)
		}
	}

	return sess, nil
}

// loadInputs - Liest alle Eingabedateien
func loadInputs(paths []string) ([]runner.Buffer, error) {
	inputs := make([]runner.Buffer, len(paths))
	for i, path := range paths {
		buf, err := tensorio.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load input %d: %w", i, err)
		}
		slog.Info("input loaded", "index", i, "path", path, "shape", format.Shape(buf.Shape), "elements", format.Count(len(buf.Data)))
		inputs[i] = buf
	}
	return inputs, nil
}

// applyInputShapes - Uebernimmt die Shapes der Eingabedateien. Unveraenderte
// Shapes ueberspringt die Session selbst.
func applyInputShapes(sess *runner.Session, inputs []runner.Buffer) error {
	if want := sess.InputCount(); want != len(inputs) {
		slog.Warn("input count differs from model", "model", want, "provided", len(inputs))
	}

	n := min(len(inputs), sess.InputCount())
	shapes := make([][]int, n)
	for i := range n {
		shapes[i] = inputs[i].Shape
	}

	if err := sess.ResizeInputs(shapes); err != nil {
		return fmt.Errorf("resize inputs: %w", err)
	}
	return nil
}

// zeroInputs - Erzeugt mit Nullen gefuellte Eingaben passend zum Modell
func zeroInputs(sess *runner.Session) ([]runner.Buffer, error) {
	if err := sess.AllocateTensors(); err != nil {
		return nil, fmt.Errorf("allocate tensors: %w", err)
	}

	inputs := make([]runner.Buffer, sess.InputCount())
	for i, info := range sess.Inputs() {
		inputs[i] = runner.Buffer{Data: make([]float32, info.Elements()), Shape: slices.Clone(info.Shape)}
	}
	return inputs, nil
}
