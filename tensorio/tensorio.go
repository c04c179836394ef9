// Package tensorio laedt und speichert Host-Puffer in Tensor-Dateien.
//
// Unterstuetzte Formate:
// - .npy: NumPy-Arrays (npy-Paket)
// - .safetensors: erster Tensor oder "datei.safetensors:name"
package tensorio

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/7blacky7/gpurun/fs/safetensors"
	"github.com/7blacky7/gpurun/npy"
	"github.com/7blacky7/gpurun/runner"
)

// ErrUnknownFormat wird fuer nicht unterstuetzte Dateiendungen zurueckgegeben
var ErrUnknownFormat = errors.New("unknown tensor file format")

// Load liest einen Puffer. Das Format folgt der Dateiendung.
func Load(path string) (runner.Buffer, error) {
	file, name := splitTensorName(path)

	switch strings.ToLower(filepath.Ext(file)) {
	case ".npy":
		if name != "" {
			return runner.Buffer{}, fmt.Errorf("%s: npy files hold a single array", path)
		}

		data, shape, err := npy.LoadFloat32(file)
		if err != nil {
			return runner.Buffer{}, err
		}
		return runner.Buffer{Data: data, Shape: shape}, nil
	case ".safetensors":
		return loadSafetensors(file, name)
	default:
		return runner.Buffer{}, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// splitTensorName trennt "datei.safetensors:name" in Pfad und Tensorname
func splitTensorName(path string) (string, string) {
	if i := strings.LastIndex(path, ".safetensors:"); i >= 0 {
		return path[:i+len(".safetensors")], path[i+len(".safetensors:"):]
	}
	return path, ""
}

func loadSafetensors(path, name string) (runner.Buffer, error) {
	f, err := safetensors.Open(path)
	if err != nil {
		return runner.Buffer{}, fmt.Errorf("%s: %w", path, err)
	}

	if name == "" {
		infos := f.TensorInfos()
		if len(infos) == 0 {
			return runner.Buffer{}, fmt.Errorf("%s: no tensors", path)
		}
		name = infos[0].Name
	}

	t, data, err := f.Float32s(name)
	if err != nil {
		return runner.Buffer{}, fmt.Errorf("%s: %w", path, err)
	}

	return runner.Buffer{Data: data, Shape: t.Shape}, nil
}

// Save schreibt einen Puffer als float32 .npy
func Save(path string, buf runner.Buffer) error {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".npy" {
		return fmt.Errorf("%w: %s (outputs are written as .npy)", ErrUnknownFormat, path)
	}

	if err := buf.Validate(); err != nil {
		return err
	}

	return npy.Save(path, buf.Data, buf.Shape)
}

// SaveBundle schreibt alle Puffer als F32-Tensoren in eine Safetensors-Datei.
// metadata wird um Zeitstempel und Tensor-Anzahl ergaenzt.
func SaveBundle(path string, names []string, bufs []runner.Buffer, metadata map[string]string) error {
	if len(names) != len(bufs) {
		return fmt.Errorf("bundle: %d names for %d buffers", len(names), len(bufs))
	}

	tensors := make([]safetensors.Tensor, len(bufs))
	for i, buf := range bufs {
		if err := buf.Validate(); err != nil {
			return fmt.Errorf("bundle tensor %s: %w", names[i], err)
		}

		shape := buf.Shape
		if shape == nil {
			shape = []int{len(buf.Data)}
		}
		tensors[i] = safetensors.F32(names[i], shape, buf.Data)
	}

	meta := map[string]string{
		"gpurun.created": time.Now().UTC().Format(time.RFC3339),
		"gpurun.tensors": fmt.Sprint(len(bufs)),
	}
	for k, v := range metadata {
		meta[k] = v
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	if err := safetensors.Write(w, tensors, meta); err != nil {
		f.Close()
		return err
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
