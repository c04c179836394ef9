// interpreter.go - Interpreter der Host-Engine
// Enthaelt: Interpreter (implementiert ml.Interpreter), Ausfuehrungsplan,
// Allokation und Invoke
package host

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/7blacky7/gpurun/ml"
)

// step ist ein Eintrag im Ausfuehrungsplan: ein Host-Knoten oder eine Partition
type step struct {
	node      *node
	partition *partition
}

// Interpreter implementiert ml.Interpreter
type Interpreter struct {
	model   *Model
	threads int

	tensors map[string]*Tensor
	inputs  []*Tensor
	outputs []*Tensor
	nodes   []*node

	delegate  *gpuDelegate
	plan      []step
	allocated bool
	closed    bool
}

func newInterpreter(m *Model, threads int) (*Interpreter, error) {
	g := m.graph
	it := &Interpreter{
		model:   m,
		threads: threads,
		tensors: make(map[string]*Tensor),
	}

	for _, spec := range g.Inputs {
		t, err := newTensor(spec, true)
		if err != nil {
			return nil, err
		}
		it.tensors[spec.Name] = t
		it.inputs = append(it.inputs, t)
	}

	lookup := func(name string) *Tensor {
		if t, ok := it.tensors[name]; ok {
			return t
		}
		return m.consts[name]
	}

	for i, spec := range g.Nodes {
		k, ok := lookupKernel(spec)
		if !ok {
			return nil, fmt.Errorf("node %d: unknown operator %q", i, spec.Op)
		}

		n := &node{index: i, spec: spec, kernel: k}
		for _, name := range spec.Inputs {
			n.inputs = append(n.inputs, lookup(name))
		}

		for _, name := range spec.Outputs {
			ts, declared := it.declared(name)
			if !declared {
				ts = tensorSpec{Name: name, Type: "f32"}
			}
			t, err := newTensor(ts, declared)
			if err != nil {
				return nil, err
			}
			it.tensors[name] = t
			n.outputs = append(n.outputs, t)
		}
		it.nodes = append(it.nodes, n)
	}

	for _, name := range g.Outputs {
		it.outputs = append(it.outputs, lookup(name))
	}

	// Initialer Prepare-Durchlauf: Typen und Shapes muessen aufloesbar sein
	if err := it.prepare(); err != nil {
		return nil, err
	}

	it.buildPlan()
	return it, nil
}

func (it *Interpreter) declared(name string) (tensorSpec, bool) {
	i := slices.IndexFunc(it.model.graph.Tensors, func(t tensorSpec) bool { return t.Name == name })
	if i < 0 {
		return tensorSpec{}, false
	}
	return it.model.graph.Tensors[i], true
}

func newTensor(spec tensorSpec, declared bool) (*Tensor, error) {
	dtype, err := ml.ParseDType(spec.Type)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", spec.Name, err)
	}

	return &Tensor{
		name:     spec.Name,
		dtype:    dtype,
		shape:    slices.Clone(spec.Shape),
		quant:    spec.Quant.quantization(),
		declared: declared,
	}, nil
}

// prepare fuehrt die Shape-Inferenz aller Knoten in Graph-Reihenfolge aus
func (it *Interpreter) prepare() error {
	for _, n := range it.nodes {
		if err := n.kernel.prepare(n); err != nil {
			return fmt.Errorf("node %d: %w", n.index, err)
		}
	}
	return nil
}

// buildPlan erstellt den Ausfuehrungsplan, mit Delegate als Partitionen
func (it *Interpreter) buildPlan() {
	it.plan = it.plan[:0]

	if it.delegate == nil {
		for _, n := range it.nodes {
			it.plan = append(it.plan, step{node: n})
		}
		return
	}

	parts := it.delegate.partitionGraph(it.nodes)
	owner := make(map[*node]*partition)
	for i, p := range parts {
		p.index = len(it.nodes) + i
		for _, n := range p.nodes {
			owner[n] = p
		}
	}

	var last *partition
	for _, n := range it.nodes {
		p, ok := owner[n]
		switch {
		case !ok:
			it.plan = append(it.plan, step{node: n})
			last = nil
		case p != last:
			it.plan = append(it.plan, step{partition: p})
			last = p
		}
	}
}

// ModifyGraphWithDelegate uebergibt unterstuetzte Knoten an den Delegate
func (it *Interpreter) ModifyGraphWithDelegate(d ml.Delegate) error {
	gd, ok := d.(*gpuDelegate)
	if !ok || gd.closed {
		return fmt.Errorf("host: invalid delegate %T", d)
	}

	if it.delegate != nil {
		return errors.New("host: delegate already applied")
	}

	switch it.model.delegate {
	case "reject":
		return ErrDelegateRejected
	case "none":
		// Delegate wird angewendet, uebernimmt aber keine Knoten
		gd.claimNone = true
	}

	it.delegate = gd
	it.buildPlan()
	it.allocated = false
	return nil
}

// AllocateTensors fuehrt die Shape-Inferenz aus und reserviert Speicher
func (it *Interpreter) AllocateTensors() error {
	if it.closed {
		return errors.New("host: interpreter closed")
	}

	if err := it.prepare(); err != nil {
		return err
	}

	for _, s := range it.plan {
		if s.partition != nil {
			if err := it.delegate.checkAllocation(s.partition); err != nil {
				return err
			}
		}
	}

	for _, t := range it.tensors {
		t.allocate()
	}

	it.allocated = true
	slog.Debug("host tensors allocated", "tensors", len(it.tensors), "plan", len(it.plan))
	return nil
}

// ResizeInputTensor setzt eine neue Eingabe-Shape; danach ist eine erneute Allokation noetig
func (it *Interpreter) ResizeInputTensor(index int, shape []int) error {
	if index < 0 || index >= len(it.inputs) {
		return fmt.Errorf("host: input index %d out of range", index)
	}

	for _, d := range shape {
		if d < 0 {
			return fmt.Errorf("host: invalid shape %v", shape)
		}
	}

	it.inputs[index].shape = slices.Clone(shape)
	it.allocated = false
	return nil
}

func (it *Interpreter) InputTensorCount() int  { return len(it.inputs) }
func (it *Interpreter) OutputTensorCount() int { return len(it.outputs) }

func (it *Interpreter) InputTensor(index int) ml.Tensor {
	if index < 0 || index >= len(it.inputs) {
		return nil
	}
	return it.inputs[index]
}

func (it *Interpreter) OutputTensor(index int) ml.Tensor {
	if index < 0 || index >= len(it.outputs) {
		return nil
	}
	return it.outputs[index]
}

// Invoke fuehrt den Ausfuehrungsplan aus
func (it *Interpreter) Invoke() error {
	if it.closed {
		return errors.New("host: interpreter closed")
	}

	if !it.allocated {
		return errors.New("host: tensors not allocated")
	}

	for _, s := range it.plan {
		if s.partition != nil {
			if err := it.delegate.run(s.partition); err != nil {
				return fmt.Errorf("%s %d: %w", DelegateKernelName, s.partition.index, err)
			}
			continue
		}

		n := s.node
		if err := n.kernel.eval(n, it.threads); err != nil {
			return fmt.Errorf("node %d (%s): %w", n.index, n.kernel.name, err)
		}
	}
	return nil
}

// ExecutionPlan gibt den finalen Plan zurueck. Delegierte Partitionen
// erscheinen als ein Knoten.
func (it *Interpreter) ExecutionPlan() []ml.Node {
	plan := make([]ml.Node, 0, len(it.plan))
	for _, s := range it.plan {
		if s.partition != nil {
			plan = append(plan, ml.Node{Index: s.partition.index, Delegated: true, CustomName: DelegateKernelName})
			continue
		}

		n := ml.Node{Index: s.node.index}
		if s.node.kernel.custom {
			n.CustomName = s.node.kernel.name
		} else {
			n.BuiltinName = s.node.kernel.name
		}
		plan = append(plan, n)
	}
	return plan
}

func (it *Interpreter) Close() error {
	if it.closed {
		return errors.New("host: interpreter already closed")
	}
	it.closed = true
	it.delegate = nil
	for _, t := range it.tensors {
		t.data = nil
	}
	return nil
}
