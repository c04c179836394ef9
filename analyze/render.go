// render.go - Textausgabe der Analyse
package analyze

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/7blacky7/gpurun/format"
	"github.com/7blacky7/gpurun/runner"
)

// Result ist eine vollstaendige Analyse eines Ausgabe-Puffers
type Result struct {
	Summary     Summary      `json:"summary"`
	Kind        Kind         `json:"kind"`
	Detected    bool         `json:"detected"`
	Predictions []Prediction `json:"predictions,omitempty"`
	Classes     []ClassShare `json:"classes,omitempty"`
}

// Options steuert Analyze
type Options struct {
	// Kind erzwingt einen Modelltyp (leer = automatisch)
	Kind   Kind
	TopK   int
	Labels []string
}

// Analyze wertet buf gemaess opts aus
func Analyze(buf runner.Buffer, opts Options) (*Result, error) {
	r := &Result{Summary: Summarize(buf), Kind: opts.Kind}
	if r.Kind == "" {
		r.Kind = DetectKind(buf.Shape)
		r.Detected = true
	}

	switch r.Kind {
	case KindClassification:
		r.Predictions = TopK(buf.Data, opts.TopK, opts.Labels)
	case KindSegmentation:
		classes, err := Segmentation(buf, opts.Labels)
		if err != nil {
			return nil, err
		}
		r.Classes = classes
	}

	return r, nil
}

// WriteText gibt die Analyse im Stil der Profiling-Ausgabe aus
func (r *Result) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	s := r.Summary

	fmt.Fprintln(bw, "=== Output Information ===")
	fmt.Fprintf(bw, "Shape: %s\n", format.Shape(s.Shape))
	fmt.Fprintf(bw, "Elements: %s\n", format.Count(s.Count))
	fmt.Fprintf(bw, "Value range: [%.4f, %.4f]\n", s.Min, s.Max)
	fmt.Fprintf(bw, "Mean: %.4f\n", s.Mean)
	fmt.Fprintf(bw, "Std: %.4f\n", s.Std)

	if r.Detected {
		fmt.Fprintf(bw, "\nAuto-detected model type: %s\n", r.Kind)
	}

	switch r.Kind {
	case KindClassification:
		fmt.Fprintln(bw, "\n=== Classification Results ===")
		fmt.Fprintf(bw, "Top %d predictions:\n", len(r.Predictions))

		// Labels koennen breite Zeichen enthalten, daher Anzeigebreite
		width := 0
		for _, p := range r.Predictions {
			width = max(width, runewidth.StringWidth(p.Label))
		}
		for _, p := range r.Predictions {
			pad := strings.Repeat(" ", width-runewidth.StringWidth(p.Label))
			fmt.Fprintf(bw, "  %d. %s:%s %.4f (%.2f%%)\n", p.Rank, p.Label, pad, p.Score, p.Score*100)
		}
	case KindDetection:
		fmt.Fprintln(bw, "\n=== Object Detection Results ===")
		switch len(s.Shape) {
		case 2:
			fmt.Fprintf(bw, "Number of detections: %d\n", s.Shape[1])
		case 3, 4:
			fmt.Fprintf(bw, "Grid size: %dx%d\n", s.Shape[1], s.Shape[2])
		}
		fmt.Fprintln(bw, "Detection output format varies by model.")
	case KindSegmentation:
		fmt.Fprintln(bw, "\n=== Segmentation Results ===")
		if len(s.Shape) == 4 {
			fmt.Fprintf(bw, "Segmentation map size: %dx%d\n", s.Shape[1], s.Shape[2])
			fmt.Fprintf(bw, "Number of classes: %d\n", s.Shape[3])
		}
		for _, c := range r.Classes {
			fmt.Fprintf(bw, "  %s: %d pixels (%.2f%%)\n", c.Label, c.Pixels, c.Percent)
		}
	default:
		fmt.Fprintln(bw, "\nNo interpretation for this output shape.")
	}

	return bw.Flush()
}
