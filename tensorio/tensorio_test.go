package tensorio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7blacky7/gpurun/fs/safetensors"
	"github.com/7blacky7/gpurun/runner"
)

func TestNpyRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.npy")

	buf := runner.Buffer{Data: []float32{1, 2, 3, 4}, Shape: []int{1, 2, 2, 1}}
	require.NoError(t, Save(path, buf))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, buf, got)
}

func TestSaveRejects(t *testing.T) {
	dir := t.TempDir()

	err := Save(filepath.Join(dir, "x.bin"), runner.Buffer{Data: []float32{1}})
	assert.ErrorIs(t, err, ErrUnknownFormat)

	err = Save(filepath.Join(dir, "x.npy"), runner.Buffer{Data: []float32{1}, Shape: []int{2}})
	assert.ErrorIs(t, err, runner.ErrInvalidBuffer)
}

func TestSafetensors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.safetensors")

	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, safetensors.Write(f, []safetensors.Tensor{
		safetensors.F32("first", []int{2}, []float32{1, 2}),
		safetensors.F16("half", []int{1, 3}, []float32{0.5, -2, 4}),
	}, nil))
	require.NoError(t, f.Close())

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, runner.Buffer{Data: []float32{1, 2}, Shape: []int{2}}, got)

	got, err = Load(path + ":half")
	require.NoError(t, err)
	assert.Equal(t, runner.Buffer{Data: []float32{0.5, -2, 4}, Shape: []int{1, 3}}, got)

	_, err = Load(path + ":missing")
	assert.Error(t, err)
}

func TestSaveBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.safetensors")

	bufs := []runner.Buffer{
		{Data: []float32{1, 2, 3, 4}, Shape: []int{1, 4}},
		{Data: []float32{9}},
	}
	require.NoError(t, SaveBundle(path, []string{"logits", "score"}, bufs, map[string]string{"model": "m"}))

	f, err := safetensors.Open(path)
	require.NoError(t, err)
	assert.Equal(t, "m", f.Metadata("model"))
	assert.Equal(t, "2", f.Metadata("gpurun.tensors"))

	info, data, err := f.Float32s("score")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, info.Shape)
	assert.Equal(t, []float32{9}, data)

	err = SaveBundle(path, []string{"a"}, bufs, nil)
	assert.Error(t, err)
}

func TestUnknownFormat(t *testing.T) {
	_, err := Load("input.txt")
	if !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("got %v, want ErrUnknownFormat", err)
	}
}
