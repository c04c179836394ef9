// dump.go - Lesbare Ausgabe von Tensor-Inhalten
package analyze

import (
	"math"
	"strconv"
	"strings"

	"github.com/7blacky7/gpurun/runner"
)

// DumpOption konfiguriert Dump
type DumpOption func(*dumpOptions)

// DumpWithPrecision setzt die Anzahl Nachkommastellen
func DumpWithPrecision(n int) DumpOption {
	return func(opts *dumpOptions) {
		opts.Precision = n
	}
}

// DumpWithThreshold setzt die Elementanzahl, bis zu der der ganze Tensor
// ausgegeben wird. Groessere Tensoren werden pro Dimension gekuerzt.
func DumpWithThreshold(n int) DumpOption {
	return func(opts *dumpOptions) {
		opts.Threshold = n
	}
}

// DumpWithEdgeItems setzt die Anzahl Elemente am Anfang und Ende jeder
// gekuerzten Dimension
func DumpWithEdgeItems(n int) DumpOption {
	return func(opts *dumpOptions) {
		opts.EdgeItems = n
	}
}

type dumpOptions struct {
	Precision, Threshold, EdgeItems int
}

// Dump formatiert einen Puffer zeilenweise (row-major) wie numpy
func Dump(buf runner.Buffer, optsFuncs ...DumpOption) string {
	opts := dumpOptions{Precision: 4, Threshold: 1000, EdgeItems: 3}
	for _, optsFunc := range optsFuncs {
		optsFunc(&opts)
	}

	shape := buf.Shape
	if shape == nil {
		shape = []int{len(buf.Data)}
	}
	if err := (runner.Buffer{Data: buf.Data, Shape: shape}).Validate(); err != nil {
		return "<invalid: " + err.Error() + ">"
	}

	if len(buf.Data) <= opts.Threshold {
		opts.EdgeItems = math.MaxInt
	}

	fn := func(f float32) string {
		return strconv.FormatFloat(float64(f), 'f', opts.Precision, 32)
	}

	if len(shape) == 0 {
		return fn(buf.Data[0])
	}

	var sb strings.Builder
	dump(&sb, buf.Data, shape, 0, len(shape), opts.EdgeItems, fn)
	return sb.String()
}

func dump(sb *strings.Builder, data []float32, dims []int, offset, rank, items int, fn func(float32) string) {
	prefix := strings.Repeat(" ", rank-len(dims)+1)
	inner := 1
	for _, d := range dims[1:] {
		inner *= d
	}

	sb.WriteString("[")
	defer sb.WriteString("]")

	n := dims[0]
	for i := 0; i < n; i++ {
		if i == items && items < n-items {
			sb.WriteString("..., ")
			if len(dims) > 1 {
				sb.WriteString(strings.Repeat("\n", len(dims)-1) + prefix)
			}
			// weiter beim ersten Element des hinteren Randes
			i = n - items - 1
			continue
		}

		if len(dims) > 1 {
			dump(sb, data, dims[1:], offset+i*inner, rank, items, fn)
			if i < n-1 {
				sb.WriteString("," + strings.Repeat("\n", len(dims)-1) + prefix)
			}
			continue
		}

		text := fn(data[offset+i])
		if len(text) > 0 && text[0] != '-' {
			sb.WriteString(" ")
		}
		sb.WriteString(text)
		if i < n-1 {
			sb.WriteString(", ")
		}
	}
}
