// delegate.go - Simulierter GPU-Delegate der Host-Engine
// Enthaelt: gpuDelegate, Partitionierung des Graphen, parallele Ausfuehrung
//
// Der Delegate uebernimmt zusammenhaengende Folgen unterstuetzter Knoten
// als Partition. Jede Partition erscheint im Ausfuehrungsplan als ein
// einzelner delegierter Knoten. Innerhalb einer Partition laufen
// unabhaengige Knoten parallel auf "Execution Units".
package host

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/7blacky7/gpurun/ml"
)

// DelegateKernelName ist der Operator-Name einer Delegate-Partition
const DelegateKernelName = "HostGpuDelegate"

// maxDelegatedRank entspricht der Grenze gaengiger Mobile-GPU-Delegates
const maxDelegatedRank = 4

// ErrDelegateRejected wird zurueckgegeben, wenn das Modell den Delegate ablehnt
var ErrDelegateRejected = errors.New("host: model rejected by GPU delegate")

type gpuDelegate struct {
	opts   ml.DelegateOptions
	units  int
	closed bool

	// claimNone: Delegate ist angewendet, uebernimmt aber keine Knoten
	claimNone bool
}

func newGPUDelegate(opts ml.DelegateOptions, units int) *gpuDelegate {
	return &gpuDelegate{opts: opts, units: max(units, 1)}
}

func (d *gpuDelegate) Close() error {
	if d.closed {
		return errors.New("host: delegate already closed")
	}
	d.closed = true
	return nil
}

// supports prueft, ob ein Knoten auf der GPU laufen darf
func (d *gpuDelegate) supports(n *node) bool {
	if d.claimNone || !n.kernel.gpu {
		return false
	}

	if !d.opts.EnableQuantized {
		for _, t := range slices.Concat(n.inputs, n.outputs) {
			if t.dtype == ml.DTypeI8 || t.dtype == ml.DTypeU8 {
				return false
			}
		}
	}
	return true
}

// partition ist eine Folge delegierter Knoten, gruppiert nach Abhaengigkeitsebene
type partition struct {
	index  int
	nodes  []*node
	levels [][]*node
}

// partitionGraph bildet Partitionen aus aufeinanderfolgenden unterstuetzten Knoten
func (d *gpuDelegate) partitionGraph(nodes []*node) []*partition {
	var parts []*partition
	var current *partition
	for _, n := range nodes {
		if !d.supports(n) {
			current = nil
			continue
		}
		if current == nil {
			current = &partition{}
			parts = append(parts, current)
		}
		current.nodes = append(current.nodes, n)
	}

	// Begrenzung: nur die groessten Partitionen werden delegiert
	if limit := d.opts.MaxDelegatedPartitions; limit > 0 && len(parts) > limit {
		bySize := slices.Clone(parts)
		slices.SortStableFunc(bySize, func(a, b *partition) int {
			return cmp.Compare(len(b.nodes), len(a.nodes))
		})
		keep := bySize[:limit]
		parts = slices.DeleteFunc(parts, func(p *partition) bool {
			return !slices.Contains(keep, p)
		})
	}

	for _, p := range parts {
		p.levels = levelize(p.nodes)
	}
	return parts
}

// levelize ordnet Knoten Ebenen zu: ein Knoten liegt eine Ebene hinter
// dem spaetesten Erzeuger seiner Eingaben innerhalb der Partition
func levelize(nodes []*node) [][]*node {
	producedAt := make(map[*Tensor]int)
	var levels [][]*node
	for _, n := range nodes {
		level := 0
		for _, in := range n.inputs {
			if l, ok := producedAt[in]; ok {
				level = max(level, l+1)
			}
		}

		if level == len(levels) {
			levels = append(levels, nil)
		}
		levels[level] = append(levels[level], n)

		for _, out := range n.outputs {
			producedAt[out] = level
		}
	}
	return levels
}

// checkAllocation prueft die Grenzen des Delegates fuer die aktuellen Shapes
func (d *gpuDelegate) checkAllocation(p *partition) error {
	for _, n := range p.nodes {
		for _, t := range slices.Concat(n.inputs, n.outputs) {
			if len(t.shape) > maxDelegatedRank {
				return fmt.Errorf("GPU delegate: node %d (%s) tensor %s has rank %d, max %d", n.index, n.kernel.name, t.name, len(t.shape), maxDelegatedRank)
			}
		}
	}
	return nil
}

// run fuehrt eine Partition Ebene fuer Ebene aus
func (d *gpuDelegate) run(p *partition) error {
	for _, level := range p.levels {
		var g errgroup.Group
		g.SetLimit(d.units)
		for _, n := range level {
			g.Go(func() error {
				if err := n.kernel.eval(n, 1); err != nil {
					return fmt.Errorf("node %d (%s): %w", n.index, n.kernel.name, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}
