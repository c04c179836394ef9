// config.go - Haupt-Konfigurationsfunktionen fuer gpurun
//
// Dieses Modul enthaelt:
// - Backend: Name der Inferenz-Engine (GPURUN_BACKEND)
// - OutputDir: Standard-Ausgabeverzeichnis (GPURUN_OUTPUT_DIR)
// - GPUMemInfoPaths: Zusaetzliche GPU-Speicher-Quellen (GPURUN_GPU_MEMINFO)
// - LogLevel: Gibt Log-Level zurueck (GPURUN_DEBUG)
//
// Weitere Konfigurationen sind ausgelagert:
// - config_features.go: Feature-Flags und Laufzeit-Einstellungen
// - config_utils.go: Utility-Funktionen und AsMap/Values
package envconfig

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Backend gibt den Namen der Inferenz-Engine zurueck
// Konfigurierbar via GPURUN_BACKEND
// Default: host
func Backend() string {
	if s := Var("GPURUN_BACKEND"); s != "" {
		return strings.ToLower(s)
	}
	return "host"
}

// OutputDir gibt das Verzeichnis fuer automatisch benannte Ausgaben zurueck
// Konfigurierbar via GPURUN_OUTPUT_DIR
// Default: outputs
func OutputDir() string {
	if s := Var("GPURUN_OUTPUT_DIR"); s != "" {
		return filepath.Clean(s)
	}
	return "outputs"
}

// GPUMemInfoPaths gibt zusaetzliche Pfade fuer GPU-Speicherberichte zurueck.
// Die Pfade werden vor den eingebauten Kandidaten geprueft.
// Konfigurierbar via GPURUN_GPU_MEMINFO (getrennt durch os.PathListSeparator)
func GPUMemInfoPaths() (paths []string) {
	s := Var("GPURUN_GPU_MEMINFO")
	if s == "" {
		return nil
	}

	for _, p := range filepath.SplitList(s) {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via GPURUN_DEBUG
// Werte: true/1 = Debug, 2 = Trace, negative Werte erhoehen das Level
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("GPURUN_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
