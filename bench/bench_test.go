package bench

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7blacky7/gpurun/logutil"
	"github.com/7blacky7/gpurun/ml"
	"github.com/7blacky7/gpurun/ml/backend/host"
	"github.com/7blacky7/gpurun/runner"
	"github.com/7blacky7/gpurun/telemetry"
)

const reluGraph = `{
	"inputs": [{"name": "x", "type": "f32", "shape": [1, 4]}],
	"outputs": ["y"],
	"nodes": [{"op": "RELU", "inputs": ["x"], "outputs": ["y"]}]
}`

func newSession(t *testing.T, gpu bool) *runner.Session {
	t.Helper()

	b, err := host.New(ml.BackendParams{NumThreads: 1})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.safetensors")
	require.NoError(t, host.WriteModel(path, reluGraph, nil, nil))

	s := runner.New(b,
		runner.WithLogger(logutil.NewLogger(io.Discard, logutil.LevelTrace)),
		runner.WithTelemetry(telemetry.System{StatusPath: filepath.Join(t.TempDir(), "none")}),
	)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.LoadModel(path))
	if gpu {
		require.NoError(t, s.InitAccelerator())
	} else {
		require.NoError(t, s.AllocateTensors())
	}
	return s
}

func TestRun(t *testing.T) {
	inputs := []runner.Buffer{{Data: []float32{-1, 2, -3, 4}, Shape: []int{1, 4}}}

	s := newSession(t, true)
	r, err := Run(context.Background(), s, inputs, Config{Iterations: 5, Warmup: 2})
	require.NoError(t, err)

	assert.Equal(t, "gpu", r.Label)
	assert.True(t, r.DelegateAttached)
	assert.Equal(t, 5, r.Iterations)
	assert.Len(t, r.Runs, 5)
	assert.LessOrEqual(t, r.Min, r.Median)
	assert.LessOrEqual(t, r.Median, r.Max)
	assert.Equal(t, 1, r.Placement.Delegated)
	assert.Equal(t, 1, r.Placement.Total)

	cpu, err := Run(context.Background(), newSession(t, false), inputs, Config{Iterations: 2})
	require.NoError(t, err)
	assert.Equal(t, "cpu", cpu.Label)
	assert.Equal(t, 1, cpu.Placement.Host)
}

func TestRunErrors(t *testing.T) {
	s := newSession(t, false)
	inputs := []runner.Buffer{{Data: make([]float32, 4)}}

	_, err := Run(context.Background(), s, inputs, Config{})
	assert.ErrorIs(t, err, ErrNoIterations)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, s, inputs, Config{Iterations: 3})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = Run(context.Background(), s, []runner.Buffer{{Data: make([]float32, 3)}}, Config{Iterations: 1})
	var sizeErr *runner.InputSizeMismatchError
	assert.ErrorAs(t, err, &sizeErr)
}

func TestSummarize(t *testing.T) {
	ms := time.Millisecond
	r := summarize([]time.Duration{4 * ms, 1 * ms, 3 * ms, 2 * ms})

	assert.Equal(t, 2500*time.Microsecond, r.Mean)
	assert.Equal(t, 2500*time.Microsecond, r.Median)
	assert.Equal(t, 1*ms, r.Min)
	assert.Equal(t, 4*ms, r.Max)
	// Stichproben-Standardabweichung von 1..4 ms
	assert.InDelta(t, float64(1290994*time.Nanosecond), float64(r.StdDev), 1000)

	single := summarize([]time.Duration{7 * ms})
	assert.Equal(t, 7*ms, single.Median)
	assert.Zero(t, single.StdDev)
}

func TestCompare(t *testing.T) {
	gpu := &Result{Mean: 5 * time.Millisecond}
	cpu := &Result{Mean: 20 * time.Millisecond}
	assert.InDelta(t, 4.0, Compare(gpu, cpu), 1e-9)
	assert.Zero(t, Compare(&Result{}, cpu))
	assert.Zero(t, Compare(gpu, nil))
}

func TestClassify(t *testing.T) {
	cases := map[time.Duration]Class{
		9 * time.Millisecond:  ClassExcellent,
		10 * time.Millisecond: ClassGood,
		19 * time.Millisecond: ClassGood,
		49 * time.Millisecond: ClassAcceptable,
		50 * time.Millisecond: ClassSlow,
	}

	for d, want := range cases {
		assert.Equal(t, want, Classify(d), "mean %s", d)
	}
}

func TestRecommendations(t *testing.T) {
	low := &Result{
		Mean:      30 * time.Millisecond,
		Placement: runner.Placement{Total: 10, Delegated: 5, Host: 5, Analyzed: true},
	}
	recs := Recommendations(low)
	require.Len(t, recs, 3)
	assert.Contains(t, recs[0], "5 operators run on CPU")
	assert.Contains(t, recs[1], "quantization")

	high := &Result{
		Mean:      5 * time.Millisecond,
		Placement: runner.Placement{Total: 10, Delegated: 10, Analyzed: true},
	}
	recs = Recommendations(high)
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0], "well optimised")

	assert.Empty(t, Recommendations(&Result{Mean: time.Millisecond}))
}

func sampleResults() []*Result {
	return []*Result{
		{
			Label: "gpu", Iterations: 3, Mean: 5 * time.Millisecond, Median: 5 * time.Millisecond,
			Min: 4 * time.Millisecond, Max: 6 * time.Millisecond,
			Placement: runner.Placement{Total: 4, Delegated: 4, Analyzed: true},
		},
		{
			Label: "cpu", Iterations: 3, Mean: 25 * time.Millisecond, Median: 25 * time.Millisecond,
			Min: 20 * time.Millisecond, Max: 30 * time.Millisecond,
			Placement: runner.Placement{Total: 4, Host: 4, Analyzed: true},
		},
	}
}

func TestWriteFormats(t *testing.T) {
	results := sampleResults()

	var table bytes.Buffer
	require.NoError(t, Write(&table, FormatTable, results))
	assert.Contains(t, table.String(), "5.00 ms")
	assert.Contains(t, table.String(), "gpu speedup: 5.00x vs cpu")
	assert.Contains(t, table.String(), "Performance: Excellent")

	var md bytes.Buffer
	require.NoError(t, Write(&md, FormatMarkdown, results))
	assert.True(t, strings.HasPrefix(md.String(), "|"), md.String())
	assert.Contains(t, md.String(), "4/4 (100.0%)")

	var out bytes.Buffer
	require.NoError(t, Write(&out, FormatCSV, results))

	r := csv.NewReader(&out)
	r.Comma = ';'
	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"gpu", "3", "5.000", "5.000", "0.000", "4.000", "6.000", "4", "4", "0", "Excellent"}, rows[1])
	assert.Equal(t, "Acceptable", rows[2][10])
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("markdown")
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, nil))
	assert.Equal(t, "No results.\n", buf.String())
}
