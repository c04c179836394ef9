// cmd_run.go - Run Command: einzelner Inferenz-Lauf mit Profiling-Report
// Hauptfunktionen: RunHandler, SanitizeFilename, autoOutputNames, resolveOutputPaths
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/7blacky7/gpurun/envconfig"
	"github.com/7blacky7/gpurun/format"
	"github.com/7blacky7/gpurun/imageutil"
	"github.com/7blacky7/gpurun/report"
	"github.com/7blacky7/gpurun/runner"
	"github.com/7blacky7/gpurun/tensorio"
)

// RunHandler - Laedt das Modell, fuehrt einen Lauf aus und speichert die Ausgaben
func RunHandler(cmd *cobra.Command, args []string) error {
	opts, err := engineOptionsFromFlags(cmd)
	if err != nil {
		return err
	}

	inputPaths, _ := cmd.Flags().GetStringArray("input")
	outputPaths, _ := cmd.Flags().GetStringArray("output")
	outputDir, _ := cmd.Flags().GetString("output-dir")
	pngPath, _ := cmd.Flags().GetString("output-png")
	bundlePath, _ := cmd.Flags().GetString("output-bundle")
	asJSON, _ := cmd.Flags().GetBool("json")

	if len(inputPaths) == 0 {
		return errors.New("at least one --input is required")
	}
	if outputDir == "" {
		outputDir = envconfig.OutputDir()
	}

	slog.Info("run", "model", opts.Model, "backend", opts.Backend, "gpu", opts.GPU, "inputs", len(inputPaths))

	sess, err := openSession(opts, opts.GPU)
	if err != nil {
		return err
	}
	defer sess.Close()

	inputs, err := loadInputs(inputPaths)
	if err != nil {
		return err
	}

	if err := applyInputShapes(sess, inputs); err != nil {
		return err
	}

	outputs, err := sess.RunInference(inputs)
	if err != nil {
		return fmt.Errorf("run inference: %w", err)
	}
	if len(outputs) == 0 {
		return errors.New("run inference: model produced no outputs")
	}

	outInfos := sess.Outputs()
	paths, err := resolveOutputPaths(outputPaths, outputDir, outInfos)
	if err != nil {
		return err
	}

	for i, out := range outputs {
		if err := ensureParentDir(paths[i]); err != nil {
			return fmt.Errorf("save output %d: %w", i, err)
		}
		if err := tensorio.Save(paths[i], out); err != nil {
			return fmt.Errorf("save output %d: %w", i, err)
		}
		slog.Info("output saved", "index", i, "shape", format.Shape(out.Shape), "path", paths[i])
	}

	if bundlePath != "" {
		if err := saveBundle(bundlePath, opts, outInfos, outputs); err != nil {
			return fmt.Errorf("save bundle: %w", err)
		}
	}

	if pngPath != "" {
		if err := saveImage(pngPath, outputs[0]); err != nil {
			return fmt.Errorf("save image: %w", err)
		}
	}

	rep := report.FromStats(sess.Stats(), report.Meta{
		Model:        opts.Model,
		Backend:      opts.Backend,
		GPURequested: opts.GPU,
	})

	w := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	if err := writeOutputSummary(w, outputs, paths); err != nil {
		return err
	}
	if isTerminal() {
		return rep.WriteTable(w)
	}
	return rep.WriteText(w)
}

// writeOutputSummary - Listet Shape und Zieldatei jeder Ausgabe
func writeOutputSummary(w io.Writer, outputs []runner.Buffer, paths []string) error {
	if _, err := fmt.Fprintf(w, "Outputs (%d tensors):\n", len(outputs)); err != nil {
		return err
	}
	for i, out := range outputs {
		fmt.Fprintf(w, "  [%d] shape = %s, file = %s\n", i, format.Shape(out.Shape), paths[i])
	}
	_, err := fmt.Fprintln(w)
	return err
}

// SanitizeFilename - Ersetzt Zeichen ausserhalb von [A-Za-z0-9_.-] durch '_'
// und entfernt fuehrende Unterstriche. Ein leeres Ergebnis wird zu "output".
func SanitizeFilename(name string) string {
	var sb strings.Builder
	sb.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}

	s := strings.TrimLeft(sb.String(), "_")
	if s == "" {
		return "output"
	}
	return s
}

// autoOutputNames - Dateinamen aus den Tensornamen. Unbenannte Tensoren und
// Kollisionen erhalten den Index als Suffix.
func autoOutputNames(infos []runner.TensorInfo, count int) []string {
	names := make([]string, count)
	seen := make(map[string]bool, count)
	for i := range names {
		base := ""
		if i < len(infos) {
			base = infos[i].Name
		}

		if base == "" {
			base = "output_" + strconv.Itoa(i)
		} else {
			base = SanitizeFilename(base)
		}

		if seen[base] {
			base += "_" + strconv.Itoa(i)
		}
		seen[base] = true
		names[i] = base + ".npy"
	}
	return names
}

// resolveOutputPaths - Explizite Pfade muessen zur Ausgabeanzahl passen,
// sonst werden Namen in dir erzeugt
func resolveOutputPaths(explicit []string, dir string, infos []runner.TensorInfo) ([]string, error) {
	count := len(infos)
	if len(explicit) > 0 {
		if len(explicit) != count {
			return nil, fmt.Errorf("provided %d output path(s) but model produced %d", len(explicit), count)
		}
		return explicit, nil
	}

	names := autoOutputNames(infos, count)
	paths := make([]string, count)
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}

// ensureParentDir - Legt das Elternverzeichnis einer Datei an
func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// saveBundle - Schreibt alle Ausgaben unter ihren Tensornamen in eine Datei
func saveBundle(path string, opts engineOptions, infos []runner.TensorInfo, outputs []runner.Buffer) error {
	names := autoOutputNames(infos, len(outputs))
	for i, name := range names {
		names[i] = strings.TrimSuffix(name, ".npy")
	}

	if err := ensureParentDir(path); err != nil {
		return err
	}

	return tensorio.SaveBundle(path, names, outputs, map[string]string{
		"gpurun.model":   opts.Model,
		"gpurun.backend": opts.Backend,
	})
}

// saveImage - Interpretiert die Ausgabe als Bild (NHWC, HWC oder HW)
func saveImage(path string, out runner.Buffer) error {
	width, height, channels, err := imageutil.ImageDims(out.Shape)
	if err != nil {
		return err
	}

	if err := ensureParentDir(path); err != nil {
		return err
	}
	return imageutil.SaveImage(path, out.Data, width, height, channels)
}
