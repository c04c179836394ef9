// MODUL: options
// ZWECK: Functional Options fuer die Inferenz-Session
// INPUT: Logger, Telemetrie-Sampler, Dequantisierung, Profiling
// OUTPUT: sessionConfig
// NEBENEFFEKTE: Keine
// HINWEISE: Defaults kommen aus envconfig (GPURUN_DEQUANTIZE, GPURUN_PROFILING)

package runner

import (
	"log/slog"

	"github.com/7blacky7/gpurun/envconfig"
	"github.com/7blacky7/gpurun/ml"
	"github.com/7blacky7/gpurun/telemetry"
)

type sessionConfig struct {
	logger          *slog.Logger
	sampler         telemetry.Sampler
	dequantize      bool
	profiling       bool
	delegateOptions ml.DelegateOptions
}

// Option ist eine funktionale Option fuer New
type Option func(*sessionConfig)

func defaultConfig() sessionConfig {
	return sessionConfig{
		logger:          slog.Default(),
		sampler:         telemetry.System{},
		dequantize:      envconfig.Dequantize(),
		profiling:       envconfig.Profiling(true),
		delegateOptions: ml.DefaultDelegateOptions(),
	}
}

// WithLogger setzt den Logger der Session
func WithLogger(logger *slog.Logger) Option {
	return func(c *sessionConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTelemetry ersetzt die Quelle fuer Speicher-Messpunkte
func WithTelemetry(s telemetry.Sampler) Option {
	return func(c *sessionConfig) {
		if s != nil {
			c.sampler = s
		}
	}
}

// WithDequantize aktiviert die affine (De-)Quantisierung fuer i8/u8-Tensoren.
// Ohne diese Option werden Werte nur abgeschnitten bzw. direkt gewandelt.
func WithDequantize(enabled bool) Option {
	return func(c *sessionConfig) {
		c.dequantize = enabled
	}
}

// WithProfiling schaltet die Speicher-Messpunkte ein oder aus. Zeiten
// werden immer erfasst.
func WithProfiling(enabled bool) Option {
	return func(c *sessionConfig) {
		c.profiling = enabled
	}
}

// WithDelegateOptions ersetzt die Delegate-Konfiguration (Default:
// minimale Latenz, einzelne schnelle Antwort, Quantisierung erlaubt)
func WithDelegateOptions(opts ml.DelegateOptions) Option {
	return func(c *sessionConfig) {
		c.delegateOptions = opts
	}
}
