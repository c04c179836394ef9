// table.go - Tabellarische Ausgabe des Reports (tablewriter)
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/7blacky7/gpurun/format"
	"github.com/7blacky7/gpurun/runner"
)

// WriteTable schreibt Laufdaten, Zeiten, Speicher und Platzierung als Tabellen
func (r *Report) WriteTable(w io.Writer) error {
	gpu := "no"
	if r.Stats.DelegateAttached {
		gpu = "attached"
	} else if r.Meta.GPURequested {
		gpu = "fallback"
	}

	writeTable(w, []string{"RUN", "MODEL", "BACKEND", "GPU", "STATE"}, [][]string{{
		r.Meta.RunID,
		r.Meta.Model,
		r.Meta.Backend,
		gpu,
		r.Stats.State.String(),
	}})
	fmt.Fprintln(w)

	var timing [][]string
	for _, row := range r.timingRows() {
		timing = append(timing, []string{row.label, format.Millis(row.value) + " ms"})
	}
	writeTable(w, []string{"STAGE", "TIME"}, timing)
	fmt.Fprintln(w)

	if r.Stats.Profiling {
		var mem [][]string
		for _, c := range runner.MemoryCheckpoints {
			m := r.Stats.Memory(c)
			mem = append(mem, []string{
				string(c),
				format.HumanKB(uint64(max(m.RSSKB, 0))),
				format.HumanKB(uint64(max(m.VMSizeKB, 0))),
			})
		}
		writeTable(w, []string{"CHECKPOINT", "RSS", "VM"}, mem)
		fmt.Fprintln(w)

		var gpuRows [][]string
		for _, c := range runner.GPUCheckpoints {
			g := r.Stats.GPU(c)
			source := "unavailable"
			size := "-"
			if g.Available {
				source = g.Source
				size = format.HumanBytes2(uint64(len(g.Raw)))
				if g.Truncated {
					size += " (truncated)"
				}
			}
			gpuRows = append(gpuRows, []string{string(c), source, size})
		}
		writeTable(w, []string{"CHECKPOINT", "GPU SOURCE", "REPORT"}, gpuRows)
		fmt.Fprintln(w)
	}

	p := r.Stats.Placement
	if !p.Analyzed {
		_, err := fmt.Fprintln(w, "Operation placement unavailable")
		return err
	}

	writeTable(w, []string{"OPS", "GPU", "CPU", "SUMMARY"}, [][]string{{
		strconv.Itoa(p.Total),
		fmt.Sprintf("%d (%.1f%%)", p.Delegated, p.GPUPercent()),
		fmt.Sprintf("%d (%.1f%%)", p.Host, p.HostPercent()),
		p.Summary(),
	}})

	return nil
}

func writeTable(w io.Writer, header []string, data [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}
