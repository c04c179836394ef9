// model_write.go - Schreiben von Host-Modellen
// Enthaelt: WriteModel fuer Tests, Beispiele und "gpurun" Fixtures
package host

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"

	"github.com/7blacky7/gpurun/fs/safetensors"
)

// WriteModel schreibt ein Host-Modell. graph ist das Graph-JSON, extra
// sind zusaetzliche Metadaten (z.B. MetadataDelegate).
func WriteModel(path, graph string, weights []safetensors.Tensor, extra map[string]string) error {
	if !json.Valid([]byte(graph)) {
		return errors.New("host: graph is not valid JSON")
	}

	metadata := map[string]string{MetadataGraph: graph}
	for k, v := range extra {
		metadata[k] = v
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := safetensors.Write(w, weights, metadata); err != nil {
		return err
	}

	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}
