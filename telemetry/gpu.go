// gpu.go - GPU-Speicherberichte (Adreno kgsl, Mali)
package telemetry

import (
	"io"
	"os"

	"github.com/7blacky7/gpurun/logutil"
)

// DefaultGPUMemInfoPaths sind die bekannten Speicherberichte mobiler GPU-Treiber
var DefaultGPUMemInfoPaths = []string{
	"/sys/kernel/debug/kgsl/kgsl-3d0/memstat",
	"/d/kgsl/kgsl-3d0/memstat",
	"/sys/devices/virtual/kgsl/kgsl-3d0/memstat",
	"/proc/mali/meminfo",
	"/sys/devices/platform/mali/meminfo",
}

// maxGPUReportSize begrenzt das Lesen von debugfs-Dateien
const maxGPUReportSize = 64 << 10

// probeGPUMemory gibt den Inhalt des ersten lesbaren Pfads zurueck
func probeGPUMemory(paths []string) GPUMemoryInfo {
	for _, path := range paths {
		raw, truncated, err := readBounded(path, maxGPUReportSize)
		if err != nil {
			logutil.Trace("gpu memory report unavailable", "path", path, "error", err)
			continue
		}

		return GPUMemoryInfo{Available: true, Source: path, Raw: raw, Truncated: truncated}
	}
	return GPUMemoryInfo{}
}

// readBounded liest hoechstens limit Bytes unveraendert. truncated meldet,
// ob die Datei laenger war.
func readBounded(path string, limit int64) (raw string, truncated bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, err
	}
	defer f.Close()

	bts, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return "", false, err
	}
	if int64(len(bts)) > limit {
		return string(bts[:limit]), true, nil
	}
	return string(bts), false, nil
}
