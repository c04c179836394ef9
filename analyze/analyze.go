// analyze.go - Auswertung von Modell-Ausgaben
//
// Enthaelt:
// - Summarize: Kennzahlen eines Ausgabe-Puffers
// - DetectKind: Modelltyp aus der Shape ableiten
// - TopK: Klassifikations-Ergebnisse
// - Segmentation: Klassenverteilung einer Segmentierungskarte
// - LoadLabels: Label-Datei (eine Zeile pro Klasse)
package analyze

import (
	"bufio"
	"cmp"
	"fmt"
	"os"
	"slices"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/7blacky7/gpurun/runner"
)

// Kind ist der vermutete Modelltyp einer Ausgabe
type Kind string

const (
	KindClassification Kind = "classification"
	KindDetection      Kind = "detection"
	KindSegmentation   Kind = "segmentation"
	KindUnknown        Kind = "unknown"
)

// ParseKind akzeptiert die Kind-Namen sowie "auto" (leerer Kind)
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindClassification, KindDetection, KindSegmentation:
		return k, nil
	case "", "auto":
		return "", nil
	default:
		return "", fmt.Errorf("unknown model type %q", s)
	}
}

// segmentationClasses ist die Mindestanzahl Klassen im letzten Rang,
// ab der eine 4D-Ausgabe als Segmentierung gilt
const segmentationClasses = 100

// DetectKind leitet den Modelltyp aus der Shape ab
func DetectKind(shape []int) Kind {
	switch {
	case len(shape) <= 2, len(shape) == 3 && shape[0] == 1:
		return KindClassification
	case len(shape) == 4 && shape[3] > segmentationClasses:
		return KindSegmentation
	case len(shape) == 4:
		return KindDetection
	case len(shape) == 3:
		return KindClassification
	default:
		return KindUnknown
	}
}

// Summary fasst die Werte eines Puffers zusammen
type Summary struct {
	Shape []int   `json:"shape"`
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`

	// Std ist die Populations-Standardabweichung
	Std float64 `json:"std"`
}

// Summarize berechnet Min, Max, Mittelwert und Standardabweichung
func Summarize(buf runner.Buffer) Summary {
	s := Summary{Shape: buf.Shape, Count: len(buf.Data)}
	if len(buf.Data) == 0 {
		return s
	}

	x := float64s(buf.Data)
	s.Min = floats.Min(x)
	s.Max = floats.Max(x)
	s.Mean, s.Std = stat.PopMeanStdDev(x, nil)
	return s
}

func float64s(data []float32) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v)
	}
	return out
}

// Prediction ist ein Klassifikations-Ergebnis
type Prediction struct {
	Rank  int     `json:"rank"`
	Index int     `json:"index"`
	Score float32 `json:"score"`
	Label string  `json:"label"`
}

// TopK gibt die k hoechsten Werte absteigend zurueck. Ohne passendes
// Label wird "Class <index>" verwendet. Gleiche Werte bleiben in
// Index-Reihenfolge.
func TopK(data []float32, k int, labels []string) []Prediction {
	idx := make([]int, len(data))
	for i := range idx {
		idx[i] = i
	}

	slices.SortStableFunc(idx, func(a, b int) int {
		return cmp.Compare(data[b], data[a])
	})

	k = min(max(k, 0), len(idx))
	out := make([]Prediction, k)
	for r, i := range idx[:k] {
		out[r] = Prediction{Rank: r + 1, Index: i, Score: data[i], Label: label(labels, i)}
	}
	return out
}

func label(labels []string, i int) string {
	if i < len(labels) {
		return labels[i]
	}
	return fmt.Sprintf("Class %d", i)
}

// ClassShare ist der Anteil einer Klasse an einer Segmentierungskarte
type ClassShare struct {
	Class   int     `json:"class"`
	Label   string  `json:"label"`
	Pixels  int     `json:"pixels"`
	Percent float64 `json:"percent"`
}

// Segmentation bestimmt pro Pixel die dominante Klasse (argmax ueber den
// letzten Rang von NHWC) und zaehlt die Pixel je Klasse.
func Segmentation(buf runner.Buffer, labels []string) ([]ClassShare, error) {
	if len(buf.Shape) != 4 {
		return nil, fmt.Errorf("segmentation output needs rank 4, got %d", len(buf.Shape))
	}
	if err := buf.Validate(); err != nil {
		return nil, err
	}

	h, w, classes := buf.Shape[1], buf.Shape[2], buf.Shape[3]
	pixels := h * w
	if pixels == 0 || classes == 0 {
		return nil, nil
	}

	counts := make(map[int]int)
	for p := range pixels {
		row := buf.Data[p*classes : (p+1)*classes]
		best := 0
		for c, v := range row {
			if v > row[best] {
				best = c
			}
		}
		counts[best]++
	}

	out := make([]ClassShare, 0, len(counts))
	for c, n := range counts {
		out = append(out, ClassShare{
			Class:   c,
			Label:   label(labels, c),
			Pixels:  n,
			Percent: 100 * float64(n) / float64(pixels),
		})
	}

	slices.SortFunc(out, func(a, b ClassShare) int { return cmp.Compare(a.Class, b.Class) })
	return out, nil
}

// LoadLabels liest eine Label-Datei, eine Klasse pro Zeile
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		labels = append(labels, strings.TrimSpace(scanner.Text()))
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read labels %s: %w", path, err)
	}
	return labels, nil
}
