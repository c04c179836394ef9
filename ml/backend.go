// backend.go - Backend-Interface und Registrierung fuer Inferenz-Engines
// Dieses Modul definiert das Backend-Interface und die Backend-Factory-Funktionen.
package ml

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrNoDelegate is returned by backends that cannot build an accelerator delegate.
var ErrNoDelegate = errors.New("backend: accelerator delegate not supported")

// Backend represents an inference engine (e.g. TFLite). It creates the native
// objects an interpreter session is built from; the caller owns every handle
// it receives and must close them.
type Backend interface {
	Name() string

	// LoadModel parses a serialized model file
	LoadModel(path string) (Model, error)

	// NewInterpreterOptions creates the execution configuration for NewInterpreter
	NewInterpreterOptions() (InterpreterOptions, error)

	// NewInterpreter builds an un-allocated execution graph for model
	NewInterpreter(model Model, opts InterpreterOptions) (Interpreter, error)

	// NewGPUDelegate creates an accelerator delegate. Returns ErrNoDelegate
	// (possibly wrapped) when no accelerator is available.
	NewGPUDelegate(opts DelegateOptions) (Delegate, error)
}

// BackendParams controls how the backend executes models
type BackendParams struct {
	// NumThreads sets the number of threads to use on the host (0 = backend default)
	NumThreads int
}

var (
	backendsMu sync.Mutex
	backends   = make(map[string]func(BackendParams) (Backend, error))
)

// RegisterBackend registers a backend factory function.
func RegisterBackend(name string, f func(BackendParams) (Backend, error)) {
	backendsMu.Lock()
	defer backendsMu.Unlock()

	if _, ok := backends[name]; ok {
		panic("backend: backend already registered")
	}

	backends[name] = f
}

// NewBackend creates a new backend instance by name.
func NewBackend(name string, params BackendParams) (Backend, error) {
	backendsMu.Lock()
	f, ok := backends[name]
	backendsMu.Unlock()

	if !ok {
		return nil, fmt.Errorf("unsupported backend %q (available: %v)", name, Backends())
	}

	return f(params)
}

// Backends lists the registered backend names in sorted order.
func Backends() []string {
	backendsMu.Lock()
	defer backendsMu.Unlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
