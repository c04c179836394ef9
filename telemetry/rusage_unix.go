//go:build unix

package telemetry

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// peakRSSKB liefert ru_maxrss in KB. macOS meldet Bytes, Linux KB.
func peakRSSKB() int64 {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0
	}

	peak := int64(ru.Maxrss)
	if runtime.GOOS == "darwin" || runtime.GOOS == "ios" {
		peak /= 1024
	}
	return peak
}
