// host.go - Host-Backend (reine Go-Referenz-Engine)
// Enthaelt: Registrierung als "host", Backend, Model, Options
//
// Die Host-Engine fuehrt kleine deklarative Graphen aus und stellt einen
// simulierten GPU-Delegate bereit. Sie dient als Referenz fuer die
// Orchestrierung und fuer Tests ohne native Bibliotheken.
package host

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/7blacky7/gpurun/fs/safetensors"
	"github.com/7blacky7/gpurun/ml"
)

func init() {
	ml.RegisterBackend("host", New)
}

// Backend implementiert ml.Backend
type Backend struct {
	params ml.BackendParams
}

// New erstellt ein neues Host-Backend
func New(params ml.BackendParams) (ml.Backend, error) {
	if params.NumThreads <= 0 {
		params.NumThreads = runtime.NumCPU()
	}
	return &Backend{params: params}, nil
}

func (b *Backend) Name() string { return "host" }

// Model ist ein geparstes Host-Modell
type Model struct {
	path     string
	graph    *graphSpec
	consts   map[string]*Tensor
	delegate string
	closed   bool
}

func (m *Model) Close() error {
	if m.closed {
		return fmt.Errorf("model %s: already closed", m.path)
	}
	m.closed = true
	m.consts = nil
	return nil
}

// LoadModel liest eine Safetensors-Datei mit Graph-Metadaten
func (b *Backend) LoadModel(path string) (ml.Model, error) {
	f, err := safetensors.Open(path)
	if err != nil {
		return nil, err
	}

	graph := f.Metadata(MetadataGraph)
	if graph == "" {
		return nil, ErrNoGraph
	}

	// Gewichte werden beim Laden nach f32 konvertiert (F16/BF16 inklusive)
	consts := make(map[string]*Tensor, f.NumTensors())
	names := make(map[string]bool, f.NumTensors())
	for _, info := range f.TensorInfos() {
		_, values, err := f.Float32s(info.Name)
		if err != nil {
			return nil, err
		}

		t := &Tensor{name: info.Name, dtype: ml.DTypeF32, shape: info.Shape, constant: true}
		t.allocate()
		t.setFloat32s(values)
		consts[info.Name] = t
		names[info.Name] = true
	}

	g, err := parseGraph(graph, names)
	if err != nil {
		return nil, err
	}

	slog.Debug("host model loaded", "path", path, "nodes", len(g.Nodes), "weights", len(consts))
	return &Model{path: path, graph: g, consts: consts, delegate: f.Metadata(MetadataDelegate)}, nil
}

// Options implementiert ml.InterpreterOptions
type Options struct {
	NumThreads int
	closed     bool
}

func (o *Options) Close() error {
	o.closed = true
	return nil
}

func (b *Backend) NewInterpreterOptions() (ml.InterpreterOptions, error) {
	return &Options{NumThreads: b.params.NumThreads}, nil
}

func (b *Backend) NewInterpreter(model ml.Model, opts ml.InterpreterOptions) (ml.Interpreter, error) {
	m, ok := model.(*Model)
	if !ok || m.closed {
		return nil, fmt.Errorf("host: invalid model %T", model)
	}

	o, ok := opts.(*Options)
	if !ok || o.closed {
		return nil, fmt.Errorf("host: invalid options %T", opts)
	}

	return newInterpreter(m, o.NumThreads)
}

// NewGPUDelegate erstellt den simulierten GPU-Delegate
func (b *Backend) NewGPUDelegate(opts ml.DelegateOptions) (ml.Delegate, error) {
	return newGPUDelegate(opts, b.params.NumThreads), nil
}
