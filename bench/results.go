// MODUL: results
// ZWECK: Formatierung von Benchmark-Ergebnissen
// INPUT: Result Slices, optionaler Speedup
// OUTPUT: Tabelle (Terminal), Markdown oder CSV
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: tablewriter (extern), encoding/csv
// HINWEISE: CSV verwendet Semikolon als Trennzeichen

package bench

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/7blacky7/gpurun/format"
)

// Format ist ein Ausgabeformat fuer Ergebnisse
type Format string

const (
	FormatTable    Format = "table"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
)

// ParseFormat prueft einen Formatnamen
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatTable, FormatMarkdown, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (want table, markdown or csv)", s)
	}
}

// Write schreibt die Ergebnisse im gewaehlten Format
func Write(w io.Writer, f Format, results []*Result) error {
	switch f {
	case FormatMarkdown:
		return WriteMarkdown(w, results)
	case FormatCSV:
		return WriteCSV(w, results)
	default:
		return WriteTable(w, results)
	}
}

var header = []string{"MODE", "RUNS", "MEAN", "MEDIAN", "STDDEV", "MIN", "MAX", "GPU OPS", "CLASS"}

func row(r *Result) []string {
	gpuOps := "-"
	if r.Placement.Analyzed {
		gpuOps = fmt.Sprintf("%d/%d (%.1f%%)", r.Placement.Delegated, r.Placement.Total, r.Placement.GPUPercent())
	}

	return []string{
		r.Label,
		strconv.Itoa(r.Iterations),
		format.Millis(r.Mean) + " ms",
		format.Millis(r.Median) + " ms",
		format.Millis(r.StdDev) + " ms",
		format.Millis(r.Min) + " ms",
		format.Millis(r.Max) + " ms",
		gpuOps,
		string(Classify(r.Mean)),
	}
}

// WriteTable schreibt eine Terminal-Tabelle und darunter Speedup und Hinweise
func WriteTable(w io.Writer, results []*Result) error {
	if len(results) == 0 {
		_, err := fmt.Fprintln(w, "No results.")
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	for _, r := range results {
		table.Append(row(r))
	}
	table.Render()

	return writeFooter(w, results)
}

// WriteMarkdown schreibt eine Markdown-Tabelle
func WriteMarkdown(w io.Writer, results []*Result) error {
	if len(results) == 0 {
		_, err := fmt.Fprintln(w, "_No results._")
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	for _, r := range results {
		table.Append(row(r))
	}
	table.Render()

	return writeFooter(w, results)
}

func writeFooter(w io.Writer, results []*Result) error {
	if len(results) >= 2 {
		if speedup := Compare(results[0], results[1]); speedup > 0 {
			fmt.Fprintf(w, "\n%s speedup: %.2fx vs %s\n", results[0].Label, speedup, results[1].Label)
		}
	}

	first := results[0]
	fmt.Fprintf(w, "\nPerformance: %s (%s)\n", Classify(first.Mean), Classify(first.Mean).Describe())

	if recs := Recommendations(first); len(recs) > 0 {
		fmt.Fprintln(w, "\nRecommendations:")
		for _, rec := range recs {
			fmt.Fprintf(w, "  - %s\n", rec)
		}
	}
	return nil
}

// WriteCSV schreibt alle Ergebnisse als CSV, eine Zeile pro Modus
func WriteCSV(w io.Writer, results []*Result) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'

	if err := cw.Write([]string{
		"mode", "iterations", "mean_ms", "median_ms", "stddev_ms", "min_ms", "max_ms",
		"total_ops", "gpu_ops", "cpu_ops", "class",
	}); err != nil {
		return err
	}

	for _, r := range results {
		if err := cw.Write([]string{
			r.Label,
			strconv.Itoa(r.Iterations),
			ms(r.Mean),
			ms(r.Median),
			ms(r.StdDev),
			ms(r.Min),
			ms(r.Max),
			strconv.Itoa(r.Placement.Total),
			strconv.Itoa(r.Placement.Delegated),
			strconv.Itoa(r.Placement.Host),
			string(Classify(r.Mean)),
		}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func ms(d time.Duration) string {
	return strconv.FormatFloat(float64(d)/float64(time.Millisecond), 'f', 3, 64)
}
