package analyze

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7blacky7/gpurun/runner"
)

func TestDetectKind(t *testing.T) {
	cases := []struct {
		shape []int
		want  Kind
	}{
		{[]int{1000}, KindClassification},
		{[]int{1, 1001}, KindClassification},
		{[]int{1, 10, 4}, KindClassification},
		{[]int{2, 10, 4}, KindClassification},
		{[]int{1, 13, 13, 85}, KindDetection},
		{[]int{1, 257, 257, 150}, KindSegmentation},
		{[]int{1, 2, 3, 4, 5}, KindUnknown},
	}

	for _, tt := range cases {
		assert.Equal(t, tt.want, DetectKind(tt.shape), "shape %v", tt.shape)
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("auto")
	require.NoError(t, err)
	assert.Equal(t, Kind(""), k)

	k, err = ParseKind("detection")
	require.NoError(t, err)
	assert.Equal(t, KindDetection, k)

	_, err = ParseKind("regression")
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	s := Summarize(runner.Buffer{Data: []float32{2, 4, 4, 4, 5, 5, 7, 9}, Shape: []int{2, 4}})
	assert.Equal(t, 8, s.Count)
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 9.0, s.Max)
	assert.InDelta(t, 5.0, s.Mean, 1e-12)
	assert.InDelta(t, 2.0, s.Std, 1e-12)

	empty := Summarize(runner.Buffer{})
	assert.Equal(t, 0, empty.Count)
	assert.Zero(t, empty.Mean)
}

func TestTopK(t *testing.T) {
	data := []float32{0.1, 0.7, 0.05, 0.7, 0.15}
	got := TopK(data, 3, []string{"cat", "dog", "bird"})

	want := []Prediction{
		{Rank: 1, Index: 1, Score: 0.7, Label: "dog"},
		{Rank: 2, Index: 3, Score: 0.7, Label: "Class 3"},
		{Rank: 3, Index: 4, Score: 0.15, Label: "Class 4"},
	}
	assert.Equal(t, want, got)

	assert.Len(t, TopK(data, 10, nil), 5)
	assert.Empty(t, TopK(data, -1, nil))
}

func TestSegmentation(t *testing.T) {
	// 1x2x2x3: Pixel-Klassen 2, 0, 2, 1
	buf := runner.Buffer{
		Data: []float32{
			0, 1, 5,
			9, 1, 2,
			0, 0, 3,
			0, 4, 1,
		},
		Shape: []int{1, 2, 2, 3},
	}

	got, err := Segmentation(buf, []string{"background"})
	require.NoError(t, err)
	assert.Equal(t, []ClassShare{
		{Class: 0, Label: "background", Pixels: 1, Percent: 25},
		{Class: 1, Label: "Class 1", Pixels: 1, Percent: 25},
		{Class: 2, Label: "Class 2", Pixels: 2, Percent: 50},
	}, got)

	_, err = Segmentation(runner.Buffer{Data: []float32{1}, Shape: []int{1}}, nil)
	assert.Error(t, err)
}

func TestLoadLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte("background\n  tench \r\ngoldfish\n"), 0o644))

	labels, err := LoadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"background", "tench", "goldfish"}, labels)

	_, err = LoadLabels(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestAnalyzeText(t *testing.T) {
	buf := runner.Buffer{Data: []float32{0.1, 0.6, 0.3}, Shape: []int{1, 3}}

	r, err := Analyze(buf, Options{TopK: 2, Labels: []string{"a", "猫", "c"}})
	require.NoError(t, err)
	assert.True(t, r.Detected)
	assert.Equal(t, KindClassification, r.Kind)

	var out bytes.Buffer
	require.NoError(t, r.WriteText(&out))

	text := out.String()
	assert.Contains(t, text, "Shape: [1 3]\n")
	assert.Contains(t, text, "Auto-detected model type: classification\n")
	assert.Contains(t, text, "  1. 猫: 0.6000 (60.00%)\n")
	assert.Contains(t, text, "  2. c:  0.3000 (30.00%)\n")
}

func TestAnalyzeForcedKind(t *testing.T) {
	buf := runner.Buffer{Data: make([]float32, 40), Shape: []int{1, 10, 4}}

	r, err := Analyze(buf, Options{Kind: KindDetection})
	require.NoError(t, err)
	assert.False(t, r.Detected)
	assert.Empty(t, r.Predictions)

	var out bytes.Buffer
	require.NoError(t, r.WriteText(&out))
	assert.Contains(t, out.String(), "Grid size: 10x4\n")
}

func TestDump(t *testing.T) {
	cases := []struct {
		name string
		buf  runner.Buffer
		opts []DumpOption
		want string
	}{
		{
			name: "matrix",
			buf:  runner.Buffer{Data: []float32{1, 2, 3, 4, 5, 6}, Shape: []int{2, 3}},
			opts: []DumpOption{DumpWithPrecision(1)},
			want: "[[ 1.0,  2.0,  3.0],\n [ 4.0,  5.0,  6.0]]",
		},
		{
			name: "negative",
			buf:  runner.Buffer{Data: []float32{-1, 2}},
			opts: []DumpOption{DumpWithPrecision(0)},
			want: "[-1,  2]",
		},
		{
			name: "truncated",
			buf:  runner.Buffer{Data: []float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, Shape: []int{10}},
			opts: []DumpOption{DumpWithPrecision(0), DumpWithThreshold(5), DumpWithEdgeItems(2)},
			want: "[ 0,  1, ...,  8,  9]",
		},
		{
			name: "truncated rows",
			buf:  runner.Buffer{Data: []float32{0, 1, 2, 3, 4, 5, 6, 7}, Shape: []int{4, 2}},
			opts: []DumpOption{DumpWithPrecision(0), DumpWithThreshold(4), DumpWithEdgeItems(1)},
			want: "[[ 0,  1],\n ..., \n [ 6,  7]]",
		},
		{
			name: "scalar",
			buf:  runner.Buffer{Data: []float32{2.5}, Shape: []int{}},
			opts: []DumpOption{DumpWithPrecision(2)},
			want: "2.50",
		},
		{
			name: "invalid",
			buf:  runner.Buffer{Data: []float32{1, 2, 3}, Shape: []int{2, 2}},
			want: "<invalid: invalid buffer: shape [2 2] has 4 elements, data has 3>",
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := Dump(tt.buf, tt.opts...); got != tt.want {
				t.Errorf("Dump() =\n%q\nwant\n%q", got, tt.want)
			}
		})
	}
}
