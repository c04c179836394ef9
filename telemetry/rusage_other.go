//go:build !unix

package telemetry

func peakRSSKB() int64 {
	return 0
}
