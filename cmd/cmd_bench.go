// cmd_bench.go - Bench Command: wiederholte Laeufe, optional mit CPU-Vergleich
// Hauptfunktionen: BenchHandler, benchSessions
package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/7blacky7/gpurun/bench"
	"github.com/7blacky7/gpurun/runner"
)

// BenchHandler - Fuehrt den Benchmark aus und gibt die Ergebnisse aus
func BenchHandler(cmd *cobra.Command, args []string) error {
	opts, err := engineOptionsFromFlags(cmd)
	if err != nil {
		return err
	}

	inputPaths, _ := cmd.Flags().GetStringArray("input")
	iterations, _ := cmd.Flags().GetInt("iterations")
	warmup, _ := cmd.Flags().GetInt("warmup")
	compareCPU, _ := cmd.Flags().GetBool("compare-cpu")
	formatName, _ := cmd.Flags().GetString("format")

	outFormat, err := bench.ParseFormat(formatName)
	if err != nil {
		return err
	}
	if warmup < 0 {
		return fmt.Errorf("warmup must not be negative, got %d", warmup)
	}
	cfg := bench.Config{Iterations: iterations, Warmup: warmup}

	modes := []bool{opts.GPU}
	if compareCPU && opts.GPU {
		modes = append(modes, false)
	}

	sessions, err := benchSessions(opts, modes)
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range sessions {
			s.Close()
		}
	}()

	// Laeufe nacheinander, damit sich die Messungen nicht gegenseitig stoeren
	var results []*bench.Result
	for _, sess := range sessions {
		inputs, err := benchInputs(sess, inputPaths)
		if err != nil {
			return err
		}

		r, err := bench.Run(cmd.Context(), sess, inputs, cfg)
		if err != nil {
			return fmt.Errorf("benchmark: %w", err)
		}
		slog.Info("benchmark complete", "mode", r.Label, "mean", r.Mean, "median", r.Median)
		results = append(results, r)
	}

	return bench.Write(cmd.OutOrStdout(), outFormat, results)
}

// benchSessions - Laedt eine Session pro Modus parallel
func benchSessions(opts engineOptions, modes []bool) ([]*runner.Session, error) {
	sessions := make([]*runner.Session, len(modes))

	var g errgroup.Group
	for i, gpu := range modes {
		g.Go(func() error {
			sess, err := openSession(opts, gpu)
			if err != nil {
				return err
			}
			sessions[i] = sess
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var errs []error
		for _, s := range sessions {
			if s != nil {
				errs = append(errs, s.Close())
			}
		}
		return nil, errors.Join(append([]error{err}, errs...)...)
	}
	return sessions, nil
}

// benchInputs - Eingaben aus Dateien oder mit Nullen gefuellt
func benchInputs(sess *runner.Session, paths []string) ([]runner.Buffer, error) {
	if len(paths) == 0 {
		return zeroInputs(sess)
	}

	inputs, err := loadInputs(paths)
	if err != nil {
		return nil, err
	}
	if err := applyInputShapes(sess, inputs); err != nil {
		return nil, err
	}
	return inputs, nil
}
