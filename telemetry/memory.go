// memory.go - Prozess-Speicher aus /proc/self/status
package telemetry

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/7blacky7/gpurun/logutil"
)

const procStatusPath = "/proc/self/status"

func processMemory(path string) MemoryInfo {
	var info MemoryInfo

	f, err := os.Open(path)
	if err == nil {
		info = parseStatus(f)
		f.Close()
	} else {
		logutil.Trace("process status unavailable", "path", path, "error", err)
	}

	info.PeakRSSKB = peakRSSKB()
	return info
}

// parseStatus liest VmRSS und VmSize aus dem /proc/<pid>/status Format:
//
//	VmSize:   123456 kB
//	VmRSS:     45678 kB
func parseStatus(r io.Reader) MemoryInfo {
	var info MemoryInfo

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}

		switch key {
		case "VmRSS":
			info.RSSKB = parseKB(value)
		case "VmSize":
			info.VMSizeKB = parseKB(value)
		}
	}
	return info
}

func parseKB(s string) int64 {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0
	}

	n, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
