// telemetry.go - Speicher-Telemetrie fuer Inferenz-Sessions
// Enthaelt: MemoryInfo, GPUMemoryInfo, Sampler-Interface, System-Sampler
//
// Alle Werte sind Momentaufnahmen. Nicht lesbare Werte werden als 0 bzw.
// Available=false gemeldet, nie als Fehler.
package telemetry

import (
	"log/slog"

	"github.com/7blacky7/gpurun/envconfig"
)

// MemoryInfo ist der Speicherverbrauch des Prozesses in KB.
// 0 bedeutet: Wert nicht verfuegbar.
type MemoryInfo struct {
	RSSKB    int64 `json:"rss_kb"`
	VMSizeKB int64 `json:"vm_size_kb"`

	// PeakRSSKB ist das Maximum seit Prozessstart (getrusage)
	PeakRSSKB int64 `json:"peak_rss_kb,omitempty"`
}

// Available meldet, ob mindestens ein Wert gelesen werden konnte
func (m MemoryInfo) Available() bool {
	return m.RSSKB > 0 || m.VMSizeKB > 0
}

func (m MemoryInfo) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("rss_kb", m.RSSKB),
		slog.Int64("vm_kb", m.VMSizeKB),
		slog.Int64("peak_rss_kb", m.PeakRSSKB),
	)
}

// GPUMemoryInfo ist der Rohinhalt eines GPU-Speicherberichts
type GPUMemoryInfo struct {
	Available bool   `json:"available"`
	Source    string `json:"source,omitempty"`
	Raw       string `json:"raw,omitempty"`
	// Truncated ist gesetzt, wenn Raw auf maxGPUReportSize gekuerzt wurde
	Truncated bool `json:"truncated,omitempty"`
}

func (g GPUMemoryInfo) LogValue() slog.Value {
	if !g.Available {
		return slog.BoolValue(false)
	}
	return slog.GroupValue(
		slog.String("source", g.Source),
		slog.Int("bytes", len(g.Raw)),
		slog.Bool("truncated", g.Truncated),
	)
}

// Sampler liefert Speicher-Momentaufnahmen. Tests injizieren eigene
// Implementierungen fuer deterministische Werte.
type Sampler interface {
	ProcessMemory() MemoryInfo
	GPUMemory() GPUMemoryInfo
}

// System liest die Werte des laufenden Prozesses und des Geraets
type System struct {
	// StatusPath ersetzt /proc/self/status (leer = Default)
	StatusPath string

	// GPUPaths ersetzt die Kandidaten fuer GPU-Speicherberichte (nil = Default)
	GPUPaths []string
}

func (s System) ProcessMemory() MemoryInfo {
	path := s.StatusPath
	if path == "" {
		path = procStatusPath
	}
	return processMemory(path)
}

func (s System) GPUMemory() GPUMemoryInfo {
	paths := s.GPUPaths
	if paths == nil {
		paths = append(envconfig.GPUMemInfoPaths(), DefaultGPUMemInfoPaths...)
	}
	return probeGPUMemory(paths)
}

// ProcessMemory liest den Speicherverbrauch des aktuellen Prozesses
func ProcessMemory() MemoryInfo {
	return System{}.ProcessMemory()
}

// GPUMemory liest den ersten verfuegbaren GPU-Speicherbericht
func GPUMemory() GPUMemoryInfo {
	return System{}.GPUMemory()
}
