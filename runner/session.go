// session.go - Inferenz-Session: Modell, Graph, Delegate und Tensoren
//
// Enthaelt:
// - Session: Besitzer von Modell, Optionen, Interpreter und Delegate
// - LoadModel, InitAccelerator, AllocateTensors, ResizeInputs
// - RunInference/RunInferenceSingle mit Zeit- und Speicher-Messpunkten
// - Close: Freigabe in umgekehrter Erzeugungsreihenfolge
//
// Eine Session ist nicht fuer parallele Aufrufe geeignet; der Aufrufer
// serialisiert alle Operationen.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/7blacky7/gpurun/logutil"
	"github.com/7blacky7/gpurun/ml"
)

// Session fuehrt ein Modell auf einem Backend aus
type Session struct {
	backend ml.Backend
	config  sessionConfig
	marshal marshaller

	path     string
	model    ml.Model
	options  ml.InterpreterOptions
	interp   ml.Interpreter
	delegate ml.Delegate

	// inputShapes sind per ResizeInputs gesetzte Shapes (nil = Modell-Default)
	inputShapes [][]int

	allocated bool
	stats     Stats
}

// New erstellt eine leere Session fuer backend
func New(backend ml.Backend, opts ...Option) *Session {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	s := &Session{
		backend: backend,
		config:  config,
		marshal: marshaller{dequantize: config.dequantize},
	}
	s.resetStats()
	return s
}

func (s *Session) resetStats() {
	s.stats = Stats{Profiling: s.config.profiling}
}

// State gibt den aktuellen Zustand zurueck
func (s *Session) State() State {
	return s.stats.State
}

// DelegateAttached meldet, ob ein Beschleuniger angebunden ist
func (s *Session) DelegateAttached() bool {
	return s.delegate != nil
}

// ModelPath gibt den Pfad des geladenen Modells zurueck
func (s *Session) ModelPath() string {
	return s.path
}

// Backend gibt das Backend der Session zurueck
func (s *Session) Backend() ml.Backend {
	return s.backend
}

// LoadModel gibt alle Ressourcen frei, parst das Modell und baut einen
// nicht allozierten Graphen
func (s *Session) LoadModel(path string) error {
	if err := s.teardown(); err != nil {
		s.config.logger.Warn("releasing previous model", "error", err)
	}
	s.resetStats()

	s.config.logger.Info("loading model", "path", path, "backend", s.backend.Name())

	start := time.Now()
	if err := s.buildGraph(path); err != nil {
		if terr := s.teardown(); terr != nil {
			s.config.logger.Warn("releasing partially loaded model", "error", terr)
		}
		s.stats.State = StateUnloaded
		return &ModelLoadError{Path: path, Err: err}
	}
	s.stats.Timing.ModelLoad = time.Since(start)

	s.path = path
	s.stats.State = StateModelLoaded
	s.recordMemory(CheckpointModelLoad)

	s.config.logger.Debug("model loaded", "duration", s.stats.Timing.ModelLoad,
		"inputs", s.interp.InputTensorCount(), "outputs", s.interp.OutputTensorCount())
	return nil
}

func (s *Session) buildGraph(path string) error {
	model, err := s.backend.LoadModel(path)
	if err != nil {
		return err
	}
	s.model = model

	options, err := s.backend.NewInterpreterOptions()
	if err != nil {
		return fmt.Errorf("interpreter options: %w", err)
	}
	s.options = options

	interp, err := s.backend.NewInterpreter(model, options)
	if err != nil {
		return fmt.Errorf("interpreter: %w", err)
	}
	s.interp = interp
	return nil
}

// rebuildInterpreter ersetzt den Interpreter durch einen neuen ohne
// Delegate. Vorher gesetzte Eingabe-Shapes werden erneut angewendet.
func (s *Session) rebuildInterpreter() error {
	if s.interp != nil {
		if err := s.interp.Close(); err != nil {
			s.config.logger.Warn("closing interpreter", "error", err)
		}
		s.interp = nil
	}
	s.allocated = false

	interp, err := s.backend.NewInterpreter(s.model, s.options)
	if err != nil {
		return err
	}
	s.interp = interp

	return s.applyInputShapes()
}

// InitAccelerator bindet einen GPU-Delegate an und alloziert die Tensoren
// neu. Schlaegt das fehl, laeuft die Session ohne Delegate weiter und der
// Fehler ist ein *DelegateInitError. Ist bereits ein Delegate angebunden,
// passiert nichts.
func (s *Session) InitAccelerator() error {
	if s.interp == nil {
		return ErrNoModel
	}

	if s.delegate != nil {
		s.config.logger.Debug("GPU delegate already attached")
		return nil
	}

	start := time.Now()
	delegate, err := s.backend.NewGPUDelegate(s.config.delegateOptions)
	if err != nil {
		s.config.logger.Warn("GPU delegate unavailable, using host execution", "error", err)
		return &DelegateInitError{Stage: StageCreate, Err: err}
	}

	if err := s.interp.ModifyGraphWithDelegate(delegate); err != nil {
		return s.fallback(StageModifyGraph, err, delegate)
	}

	s.delegate = delegate
	s.allocated = false
	s.stats.Timing.DelegateInit = time.Since(start)
	s.stats.DelegateAttached = true
	s.stats.State = StateDelegateAttached
	s.recordMemory(CheckpointDelegateInit)
	s.recordGPU(CheckpointDelegateInit)

	s.config.logger.Info("GPU delegate attached", "duration", s.stats.Timing.DelegateInit)

	if err := s.AllocateTensors(); err != nil {
		s.delegate = nil
		s.stats.DelegateAttached = false
		return s.fallback(StageAllocate, err, delegate)
	}
	return nil
}

// fallback gibt den Delegate frei und baut den Graphen ohne Delegate neu
func (s *Session) fallback(stage string, cause error, delegate ml.Delegate) error {
	s.config.logger.Warn("GPU delegate failed, falling back to host execution", "stage", stage, "error", cause)

	// Delegate vor dem Interpreter freigeben, an den er gebunden war
	if err := delegate.Close(); err != nil {
		s.config.logger.Warn("closing delegate", "error", err)
	}

	if err := s.rebuildInterpreter(); err != nil {
		_ = s.teardown()
		s.resetStats()
		return &DelegateInitError{Stage: stage, Err: errors.Join(cause, fmt.Errorf("host fallback: %w", err))}
	}

	s.stats.State = StateModelLoaded
	return &DelegateInitError{Stage: stage, Err: cause}
}

// AllocateTensors reserviert den Speicher aller Tensoren fuer die aktuelle
// Graph-Konfiguration
func (s *Session) AllocateTensors() error {
	if s.interp == nil {
		return ErrNoModel
	}

	start := time.Now()
	if err := s.interp.AllocateTensors(); err != nil {
		s.allocated = false
		return &AllocationError{Err: err}
	}
	s.stats.Timing.TensorAllocation = time.Since(start)
	s.allocated = true
	s.stats.State = StateGraphAllocated

	if s.config.logger.Enabled(context.TODO(), slog.LevelDebug) {
		for _, info := range s.Inputs() {
			s.config.logger.Debug("input tensor", "tensor", info)
		}
		for _, info := range s.Outputs() {
			s.config.logger.Debug("output tensor", "tensor", info)
		}
	}

	s.recordMemory(CheckpointTensorAllocation)
	return nil
}

// ResizeInputs setzt neue Eingabe-Shapes. Leere Eintraege und unveraenderte
// Shapes werden uebersprungen. Danach ist eine neue Allokation noetig.
func (s *Session) ResizeInputs(shapes [][]int) error {
	if s.interp == nil {
		return ErrNoModel
	}

	if len(shapes) > s.interp.InputTensorCount() {
		return &InputCountError{Expected: s.interp.InputTensorCount(), Actual: len(shapes)}
	}

	if s.inputShapes == nil {
		s.inputShapes = make([][]int, s.interp.InputTensorCount())
	}

	for i, shape := range shapes {
		if len(shape) == 0 {
			continue
		}

		if slices.Equal(shape, s.interp.InputTensor(i).Shape()) {
			continue
		}

		if err := s.interp.ResizeInputTensor(i, shape); err != nil {
			return fmt.Errorf("resize input %d: %w", i, err)
		}
		s.inputShapes[i] = slices.Clone(shape)
		s.allocated = false
		s.config.logger.Debug("input resized", "index", i, "shape", shape)
	}

	if !s.allocated && s.stats.State >= StateGraphAllocated {
		s.stats.State = StateModelLoaded
		if s.delegate != nil {
			s.stats.State = StateDelegateAttached
		}
	}
	return nil
}

func (s *Session) applyInputShapes() error {
	for i, shape := range s.inputShapes {
		if shape == nil {
			continue
		}
		if err := s.interp.ResizeInputTensor(i, shape); err != nil {
			return fmt.Errorf("resize input %d: %w", i, err)
		}
	}
	return nil
}

// RunInference kopiert die Eingaben in den Graphen, fuehrt ihn aus und gibt
// einen Puffer pro Ausgabetensor in Engine-Reihenfolge zurueck. Alle
// Eingaben werden vor der ersten Kopie geprueft.
func (s *Session) RunInference(inputs []Buffer) ([]Buffer, error) {
	if s.interp == nil {
		return nil, ErrNoModel
	}

	if !s.allocated {
		if err := s.AllocateTensors(); err != nil {
			return nil, err
		}
	}

	if want := s.interp.InputTensorCount(); len(inputs) != want {
		return nil, &InputCountError{Expected: want, Actual: len(inputs)}
	}

	tensors := make([]ml.Tensor, len(inputs))
	for i, in := range inputs {
		t := s.interp.InputTensor(i)
		if err := in.Validate(); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}

		if want := elements(t.Shape()); len(in.Data) != want {
			return nil, &InputSizeMismatchError{Index: i, Expected: want, Actual: len(in.Data)}
		}

		if !supported(t.Type()) {
			return nil, &UnsupportedTypeError{Index: i, Name: t.Name(), Type: t.Type()}
		}
		tensors[i] = t
	}

	for i := range s.interp.OutputTensorCount() {
		if t := s.interp.OutputTensor(i); !supported(t.Type()) {
			return nil, &UnsupportedTypeError{Index: i, Name: t.Name(), Type: t.Type(), Output: true}
		}
	}

	start := time.Now()
	for i, t := range tensors {
		if err := t.CopyFromBuffer(s.marshal.encode(t.Type(), t.Quantization(), inputs[i].Data)); err != nil {
			return nil, fmt.Errorf("copy input %d: %w", i, err)
		}
	}
	s.stats.Timing.InputCopy = time.Since(start)

	invokeStart := time.Now()
	if err := s.interp.Invoke(); err != nil {
		// Nach einem fehlgeschlagenen Invoke wird vor dem naechsten Lauf neu alloziert
		s.allocated = false
		return nil, &InvokeError{Err: err}
	}
	s.stats.Timing.Inference = time.Since(invokeStart)

	outputStart := time.Now()
	outputs := make([]Buffer, s.interp.OutputTensorCount())
	for i := range outputs {
		t := s.interp.OutputTensor(i)
		bts := make([]byte, t.ByteSize())
		if err := t.CopyToBuffer(bts); err != nil {
			return nil, fmt.Errorf("copy output %d: %w", i, err)
		}
		outputs[i] = Buffer{Data: s.marshal.decode(t.Type(), t.Quantization(), bts), Shape: t.Shape()}
	}
	end := time.Now()
	s.stats.Timing.OutputCopy = end.Sub(outputStart)
	s.stats.Timing.Total = end.Sub(start)

	s.stats.State = StateInvoked
	s.recordMemory(CheckpointInference)
	s.recordGPU(CheckpointInference)
	s.stats.Placement = analyzePlacement(s.interp.ExecutionPlan())

	s.config.logger.Debug("inference complete",
		"inference", s.stats.Timing.Inference,
		"total", s.stats.Timing.Total,
		"placement", s.stats.Placement)
	for i, out := range outputs {
		logutil.TraceWith(context.TODO(), s.config.logger, "output", "index", i, "shape", out.Shape, "head", out.Data[:min(len(out.Data), 8)])
	}
	return outputs, nil
}

// RunInferenceSingle fuehrt ein Modell mit genau einer Eingabe aus und gibt
// die erste Ausgabe zurueck
func (s *Session) RunInferenceSingle(input Buffer) (Buffer, error) {
	outputs, err := s.RunInference([]Buffer{input})
	if err != nil {
		return Buffer{}, err
	}

	if len(outputs) == 0 {
		return Buffer{}, errors.New("model has no outputs")
	}
	return outputs[0], nil
}

// InputCount gibt die Anzahl der Eingabetensoren zurueck (0 ohne Modell)
func (s *Session) InputCount() int {
	if s.interp == nil {
		return 0
	}
	return s.interp.InputTensorCount()
}

// OutputCount gibt die Anzahl der Ausgabetensoren zurueck (0 ohne Modell)
func (s *Session) OutputCount() int {
	if s.interp == nil {
		return 0
	}
	return s.interp.OutputTensorCount()
}

// InputShape gibt die Shape von Eingabe i zurueck, nil wenn unbekannt
func (s *Session) InputShape(i int) []int {
	if !s.allocated || i < 0 || i >= s.InputCount() {
		return nil
	}
	return s.interp.InputTensor(i).Shape()
}

// OutputShape gibt die Shape von Ausgabe i zurueck, nil wenn unbekannt
func (s *Session) OutputShape(i int) []int {
	if !s.allocated || i < 0 || i >= s.OutputCount() {
		return nil
	}
	return s.interp.OutputTensor(i).Shape()
}

// Inputs gibt die Deskriptoren aller Eingaben zurueck (nil wenn nicht alloziert)
func (s *Session) Inputs() []TensorInfo {
	if !s.allocated {
		return nil
	}

	infos := make([]TensorInfo, s.interp.InputTensorCount())
	for i := range infos {
		infos[i] = tensorInfo(i, s.interp.InputTensor(i))
	}
	return infos
}

// Outputs gibt die Deskriptoren aller Ausgaben zurueck (nil wenn nicht alloziert)
func (s *Session) Outputs() []TensorInfo {
	if !s.allocated {
		return nil
	}

	infos := make([]TensorInfo, s.interp.OutputTensorCount())
	for i := range infos {
		infos[i] = tensorInfo(i, s.interp.OutputTensor(i))
	}
	return infos
}

// Stats gibt eine Kopie der gesammelten Messwerte zurueck
func (s *Session) Stats() Stats {
	stats := s.stats
	stats.DelegateAttached = s.delegate != nil
	stats.Placement = stats.Placement.clone()
	return stats
}

// Close gibt alle Ressourcen frei und setzt die Messwerte zurueck. Mehrfache
// Aufrufe sind erlaubt.
func (s *Session) Close() error {
	err := s.teardown()
	s.resetStats()
	return err
}

// teardown gibt Delegate, Interpreter, Optionen und Modell in dieser
// Reihenfolge frei
func (s *Session) teardown() error {
	var errs []error

	if s.delegate != nil {
		if err := s.delegate.Close(); err != nil {
			errs = append(errs, fmt.Errorf("delegate: %w", err))
		}
		s.delegate = nil
	}

	if s.interp != nil {
		if err := s.interp.Close(); err != nil {
			errs = append(errs, fmt.Errorf("interpreter: %w", err))
		}
		s.interp = nil
	}

	if s.options != nil {
		if err := s.options.Close(); err != nil {
			errs = append(errs, fmt.Errorf("interpreter options: %w", err))
		}
		s.options = nil
	}

	if s.model != nil {
		if err := s.model.Close(); err != nil {
			errs = append(errs, fmt.Errorf("model: %w", err))
		}
		s.model = nil
	}

	s.path = ""
	s.inputShapes = nil
	s.allocated = false
	return errors.Join(errs...)
}

func (s *Session) recordMemory(c Checkpoint) {
	if !s.config.profiling {
		return
	}

	mem := s.config.sampler.ProcessMemory()
	*s.stats.memory(c) = mem
	s.config.logger.Debug("memory checkpoint", "checkpoint", string(c), "memory", mem)
}

func (s *Session) recordGPU(c Checkpoint) {
	if !s.config.profiling {
		return
	}

	gpu := s.config.sampler.GPUMemory()
	*s.stats.gpu(c) = gpu
	s.config.logger.Debug("gpu memory checkpoint", "checkpoint", string(c), "gpu", gpu)
}
