// text.go - Klassischer Profiling-Block als Text
package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/7blacky7/gpurun/format"
	"github.com/7blacky7/gpurun/runner"
)

// WriteText schreibt den Profiling-Block:
//
//	=== Profiling Information ===
//	Model Load:         1.23 ms
//	...
//	=== Operation Placement ===
func (r *Report) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "=== Profiling Information ===")
	for _, row := range r.timingRows() {
		fmt.Fprintf(bw, "%-20s%s ms\n", row.label+":", format.Millis(row.value))
	}

	if r.Stats.Profiling {
		fmt.Fprintln(bw, "=== Memory Snapshots (kB) ===")
		for _, c := range runner.MemoryCheckpoints {
			mem := r.Stats.Memory(c)
			label := checkpointLabels[c] + ":"
			if !mem.Available() {
				fmt.Fprintf(bw, "%-20sunavailable\n", label)
				continue
			}
			fmt.Fprintf(bw, "%-20sRSS=%d, VM=%d\n", label, mem.RSSKB, mem.VMSizeKB)
		}

		if peak := r.Stats.MemAfterInference.PeakRSSKB; peak > 0 {
			fmt.Fprintf(bw, "%-20s%d\n", "Peak RSS:", peak)
		}

		fmt.Fprintln(bw, "=== GPU Memory Snapshots ===")
		for _, c := range runner.GPUCheckpoints {
			gpu := r.Stats.GPU(c)
			if !gpu.Available {
				fmt.Fprintf(bw, "%s: GPU mem stats unavailable on this device\n", gpuCheckpointLabels[c])
				continue
			}
			fmt.Fprintf(bw, "%s (source: %s):\n", gpuCheckpointLabels[c], gpu.Source)
			fmt.Fprint(bw, gpu.Raw)
			if !strings.HasSuffix(gpu.Raw, "\n") {
				fmt.Fprintln(bw)
			}
			if gpu.Truncated {
				fmt.Fprintln(bw, "(report truncated)")
			}
		}
	} else {
		fmt.Fprintln(bw, "Memory profiling disabled.")
	}

	p := r.Stats.Placement
	fmt.Fprintln(bw, "=== Operation Placement ===")
	if !p.Analyzed {
		fmt.Fprintln(bw, "Operation placement unavailable (no inference run)")
		return bw.Flush()
	}

	fmt.Fprintf(bw, "%-20s%d\n", "Total Operations:", p.Total)
	fmt.Fprintf(bw, "%-20s%d (%.1f%%)\n", "GPU Operations:", p.Delegated, p.GPUPercent())
	fmt.Fprintf(bw, "%-20s%d (%.1f%%)\n", "CPU Operations:", p.Host, p.HostPercent())
	if p.Total > 0 {
		fmt.Fprintf(bw, "GPU delegation: %s.\n", p.Summary())
	}
	if len(p.HostOps) > 0 {
		fmt.Fprintln(bw, "CPU Operations:")
		for _, op := range p.HostOps {
			fmt.Fprintf(bw, "  - %s\n", op)
		}
	}

	return bw.Flush()
}

// String gibt den Text-Report zurueck
func (r *Report) String() string {
	var sb strings.Builder
	_ = r.WriteText(&sb)
	return sb.String()
}
