// graph.go - Graph-Beschreibung des Host-Modellformats
// Enthaelt: graphSpec/tensorSpec/nodeSpec, Parsen und Validieren des Graphen
//
// Ein Host-Modell ist eine Safetensors-Datei. Der Graph steht als JSON im
// Metadaten-Eintrag "gpurun.graph", Gewichte sind regulaere Tensoren.
package host

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/7blacky7/gpurun/ml"
)

const (
	// MetadataGraph ist der Metadaten-Schluessel mit dem Graph-JSON
	MetadataGraph = "gpurun.graph"

	// MetadataDelegate steuert den simulierten GPU-Delegate:
	// "reject" lehnt den Graphen ab, "none" uebernimmt keine Operatoren
	MetadataDelegate = "gpurun.delegate"
)

// ErrNoGraph wird zurueckgegeben, wenn die Datei keinen Graphen enthaelt
var ErrNoGraph = errors.New("host: model has no " + MetadataGraph + " metadata")

type quantSpec struct {
	Scale     float32 `json:"scale"`
	ZeroPoint int32   `json:"zero_point"`
}

type tensorSpec struct {
	Name  string     `json:"name"`
	Type  string     `json:"type"`
	Shape []int      `json:"shape,omitempty"`
	Quant *quantSpec `json:"quant,omitempty"`
}

type nodeSpec struct {
	Op      string   `json:"op"`
	Custom  string   `json:"custom,omitempty"`
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`

	// RESHAPE: Zielform, hoechstens eine Dimension -1
	NewShape []int `json:"new_shape,omitempty"`

	// FULLY_CONNECTED: "relu" oder leer
	Activation string `json:"activation,omitempty"`

	// SOFTMAX: Skalierung der Logits (0 = 1.0)
	Beta float32 `json:"beta,omitempty"`
}

type graphSpec struct {
	Inputs  []tensorSpec `json:"inputs"`
	Outputs []string     `json:"outputs"`
	Tensors []tensorSpec `json:"tensors,omitempty"`
	Nodes   []nodeSpec   `json:"nodes"`
}

func (q *quantSpec) quantization() ml.Quantization {
	if q == nil {
		return ml.Quantization{}
	}
	return ml.Quantization{Scale: q.Scale, ZeroPoint: q.ZeroPoint}
}

// parseGraph parst und validiert den Graphen. consts enthaelt die Namen
// der Gewichte aus der Safetensors-Datei.
func parseGraph(s string, consts map[string]bool) (*graphSpec, error) {
	var g graphSpec
	if err := json.Unmarshal([]byte(s), &g); err != nil {
		return nil, fmt.Errorf("graph: %w", err)
	}

	if len(g.Inputs) == 0 {
		return nil, errors.New("graph: no inputs")
	}

	if len(g.Outputs) == 0 {
		return nil, errors.New("graph: no outputs")
	}

	// Jeder Tensor wird genau einmal erzeugt: als Eingabe, Gewicht oder Knoten-Ausgabe
	defined := make(map[string]bool)
	for _, in := range g.Inputs {
		if in.Name == "" || defined[in.Name] || consts[in.Name] {
			return nil, fmt.Errorf("graph: invalid or duplicate input %q", in.Name)
		}
		if _, err := ml.ParseDType(in.Type); err != nil {
			return nil, fmt.Errorf("graph: input %s: %w", in.Name, err)
		}
		defined[in.Name] = true
	}

	for _, t := range g.Tensors {
		if _, err := ml.ParseDType(t.Type); err != nil {
			return nil, fmt.Errorf("graph: tensor %s: %w", t.Name, err)
		}
	}

	for i, n := range g.Nodes {
		if _, ok := lookupKernel(n); !ok {
			name := n.Op
			if n.Custom != "" {
				name = n.Custom
			}
			return nil, fmt.Errorf("graph: node %d: unknown operator %q", i, name)
		}

		if len(n.Outputs) == 0 {
			return nil, fmt.Errorf("graph: node %d (%s) has no outputs", i, n.Op)
		}

		// Knoten muessen in Ausfuehrungsreihenfolge stehen
		for _, in := range n.Inputs {
			if !defined[in] && !consts[in] {
				return nil, fmt.Errorf("graph: node %d (%s) reads undefined tensor %q", i, n.Op, in)
			}
		}

		for _, out := range n.Outputs {
			if defined[out] || consts[out] {
				return nil, fmt.Errorf("graph: node %d (%s) redefines tensor %q", i, n.Op, out)
			}
			defined[out] = true
		}
	}

	for _, out := range g.Outputs {
		if !defined[out] {
			return nil, fmt.Errorf("graph: output %q is never produced", out)
		}
	}

	return &g, nil
}
