// interpreter.go - Native Handles einer Inferenz-Engine
// Enthaelt: Model, InterpreterOptions, Interpreter, Tensor, Delegate, DelegateOptions
//
// Alle Handles besitzen native Ressourcen und muessen in umgekehrter
// Erzeugungsreihenfolge geschlossen werden:
// Delegate -> Interpreter -> InterpreterOptions -> Model
package ml

// Model is a parsed, immutable model file.
type Model interface {
	Close() error
}

// InterpreterOptions carries the execution configuration of an interpreter.
type InterpreterOptions interface {
	Close() error
}

// Interpreter is an execution graph bound to tensor memory.
type Interpreter interface {
	// ModifyGraphWithDelegate hands the supported operators to d. On error
	// the interpreter may be left in an unusable state and must be rebuilt.
	ModifyGraphWithDelegate(d Delegate) error

	// AllocateTensors commits memory for all tensors. Required after
	// construction, after ResizeInputTensor and after ModifyGraphWithDelegate.
	AllocateTensors() error

	ResizeInputTensor(index int, shape []int) error

	InputTensorCount() int
	InputTensor(index int) Tensor
	OutputTensorCount() int
	OutputTensor(index int) Tensor

	Invoke() error

	// ExecutionPlan lists the scheduled nodes in execution order
	ExecutionPlan() []Node

	Close() error
}

// Tensor is a view on engine tensor memory. It is only valid while the
// owning interpreter is alive.
type Tensor interface {
	Name() string
	Type() DType
	Shape() []int
	Quantization() Quantization

	// ByteSize is the size of the allocated tensor buffer
	ByteSize() int

	// CopyFromBuffer copies len(src) == ByteSize() bytes into the tensor
	CopyFromBuffer(src []byte) error

	// CopyToBuffer copies the tensor into len(dst) == ByteSize() bytes
	CopyToBuffer(dst []byte) error
}

// Delegate is an accelerator execution plan.
type Delegate interface {
	Close() error
}

// InferencePriority ordnet die Optimierungsziele des GPU-Delegates
type InferencePriority int

const (
	PriorityAuto InferencePriority = iota
	PriorityMaxPrecision
	PriorityMinLatency
	PriorityMinMemoryUsage
)

func (p InferencePriority) String() string {
	switch p {
	case PriorityMaxPrecision:
		return "max_precision"
	case PriorityMinLatency:
		return "min_latency"
	case PriorityMinMemoryUsage:
		return "min_memory_usage"
	default:
		return "auto"
	}
}

// InferenceUsage beschreibt das erwartete Aufrufmuster
type InferenceUsage int

const (
	UsageFastSingleAnswer InferenceUsage = iota
	UsageSustainedSpeed
)

func (u InferenceUsage) String() string {
	if u == UsageSustainedSpeed {
		return "sustained_speed"
	}
	return "fast_single_answer"
}

// DelegateOptions configures an accelerator delegate.
type DelegateOptions struct {
	Priority1, Priority2, Priority3 InferencePriority
	Usage                           InferenceUsage

	// EnableQuantized allows the delegate to run quantized models
	EnableQuantized bool

	// MaxDelegatedPartitions limits the number of graph partitions (0 = backend default)
	MaxDelegatedPartitions int
}

// DefaultDelegateOptions returns the minimum-latency configuration used for
// single inference runs.
func DefaultDelegateOptions() DelegateOptions {
	return DelegateOptions{
		Priority1:       PriorityMinLatency,
		Priority2:       PriorityAuto,
		Priority3:       PriorityAuto,
		Usage:           UsageFastSingleAnswer,
		EnableQuantized: true,
	}
}
