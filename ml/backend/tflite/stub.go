//go:build !(tflite && cgo)

package tflite

import "github.com/7blacky7/gpurun/ml"

func init() {
	ml.RegisterBackend("tflite", func(ml.BackendParams) (ml.Backend, error) {
		return nil, ErrCGORequired
	})
}
