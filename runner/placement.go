// placement.go - Auswertung der Operator-Platzierung nach einem Lauf
package runner

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/7blacky7/gpurun/ml"
)

// Placement zaehlt, welche Knoten des Ausfuehrungsplans auf dem Delegate
// und welche auf dem Host liefen. HostOps enthaelt die Operator-Namen der
// Host-Knoten in Ausfuehrungsreihenfolge.
type Placement struct {
	Total     int      `json:"total"`
	Delegated int      `json:"delegated"`
	Host      int      `json:"host"`
	HostOps   []string `json:"host_ops,omitempty"`

	// Analyzed ist gesetzt, sobald ein Lauf ausgewertet wurde
	Analyzed bool `json:"analyzed"`
}

func analyzePlacement(plan []ml.Node) Placement {
	p := Placement{Total: len(plan), Analyzed: true}
	for _, n := range plan {
		if n.Delegated {
			p.Delegated++
			continue
		}

		p.Host++
		p.HostOps = append(p.HostOps, n.OpName())
	}
	return p
}

// GPUPercent ist der Anteil delegierter Knoten in Prozent
func (p Placement) GPUPercent() float64 {
	if p.Total == 0 {
		return 0
	}
	return 100 * float64(p.Delegated) / float64(p.Total)
}

// HostPercent ist der Anteil der Host-Knoten in Prozent
func (p Placement) HostPercent() float64 {
	if p.Total == 0 {
		return 0
	}
	return 100 * float64(p.Host) / float64(p.Total)
}

// Summary fasst die Platzierung in einem Satz zusammen
func (p Placement) Summary() string {
	switch {
	case p.Total == 0:
		return "No ops scheduled"
	case p.Host == 0:
		return "All ops executed on GPU"
	default:
		return fmt.Sprintf("%d ops executed on CPU fallback", p.Host)
	}
}

func (p Placement) clone() Placement {
	p.HostOps = slices.Clone(p.HostOps)
	return p
}

func (p Placement) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("total", p.Total),
		slog.Int("gpu", p.Delegated),
		slog.Int("cpu", p.Host),
		slog.Any("cpu_ops", p.HostOps),
	)
}
