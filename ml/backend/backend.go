// backend.go - Registriert alle eingebauten Inferenz-Engines
package backend

import (
	_ "github.com/7blacky7/gpurun/ml/backend/host"
	_ "github.com/7blacky7/gpurun/ml/backend/tflite"
)
