// cmd_builders.go - Command-Builder fuer alle Sub-Commands
// Hauptfunktionen: newRunCmd, newInspectCmd, newBenchCmd, newPrepareCmd, newAnalyzeCmd, newEnvCmd
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/7blacky7/gpurun/envconfig"
	"github.com/7blacky7/gpurun/imageutil"
)

// addEngineFlags - Gemeinsame Flags fuer Commands, die ein Modell laden
func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("model", "m", "", "Path to the model file")
	cmd.Flags().String("backend", "", "Inference engine (default $GPURUN_BACKEND or host)")
	cmd.Flags().Bool("no-gpu", false, "Disable the GPU delegate and run all ops on the host")
	cmd.Flags().Int("threads", 0, "Number of host threads (0 = auto)")
	_ = cmd.MarkFlagRequired("model")
}

// newRunCmd - Erstellt den run Command
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run --model MODEL --input FILE [--input FILE...]",
		Short: "Run a model once and print the profiling report",
		Args:  cobra.NoArgs,
		RunE:  RunHandler,
	}

	addEngineFlags(runCmd)
	runCmd.Flags().StringArrayP("input", "i", nil, "Input tensor file (.npy or .safetensors[:name]), repeatable")
	runCmd.Flags().StringArrayP("output", "o", nil, "Output .npy path, repeatable (default: auto-named in --output-dir)")
	runCmd.Flags().String("output-dir", "", "Directory for auto-named outputs (default $GPURUN_OUTPUT_DIR or outputs)")
	runCmd.Flags().String("output-png", "", "Write the first output as an image (.png, .bmp or .tiff)")
	runCmd.Flags().String("output-bundle", "", "Write all outputs into one .safetensors file")
	runCmd.Flags().Bool("dequantize", false, "Apply scale/zero-point when copying quantized tensors")
	runCmd.Flags().Bool("no-profiling", false, "Skip memory snapshots at pipeline checkpoints")
	runCmd.Flags().Bool("json", false, "Print the report as JSON")
	_ = runCmd.MarkFlagRequired("input")

	return runCmd
}

// newInspectCmd - Erstellt den inspect Command
func newInspectCmd() *cobra.Command {
	inspectCmd := &cobra.Command{
		Use:   "inspect --model MODEL",
		Short: "Show input and output tensors of a model",
		Args:  cobra.NoArgs,
		RunE:  InspectHandler,
	}

	addEngineFlags(inspectCmd)
	return inspectCmd
}

// newBenchCmd - Erstellt den bench Command
func newBenchCmd() *cobra.Command {
	benchCmd := &cobra.Command{
		Use:   "bench --model MODEL [--input FILE...]",
		Short: "Benchmark repeated inference runs",
		Args:  cobra.NoArgs,
		RunE:  BenchHandler,
	}

	addEngineFlags(benchCmd)
	benchCmd.Flags().StringArrayP("input", "i", nil, "Input tensor file, repeatable (default: zero-filled inputs)")
	benchCmd.Flags().Int("iterations", int(envconfig.BenchIterations()), "Number of measured runs")
	benchCmd.Flags().Int("warmup", 5, "Number of unmeasured warmup runs")
	benchCmd.Flags().Bool("compare-cpu", false, "Also benchmark without the GPU delegate and report the speedup")
	benchCmd.Flags().String("format", "table", "Output format (table, markdown, csv)")

	return benchCmd
}

// newPrepareCmd - Erstellt den prepare Command
func newPrepareCmd() *cobra.Command {
	prepareCmd := &cobra.Command{
		Use:   "prepare IMAGE",
		Short: "Convert an image into an input tensor file",
		Args:  cobra.ExactArgs(1),
		RunE:  PrepareHandler,
	}

	defaults := imageutil.DefaultPrepareOptions()
	prepareCmd.Flags().Int("size", defaults.Size, "Edge length of the square model input")
	prepareCmd.Flags().String("normalize", string(defaults.Normalize), "Normalization (imagenet, mobilenet, inception, zero_one, none)")
	prepareCmd.Flags().Bool("quantize", false, "Write raw uint8 pixels instead of floats")
	prepareCmd.Flags().Bool("channels-first", false, "Write NCHW instead of NHWC")
	prepareCmd.Flags().StringP("output", "o", "input.npy", "Output .npy path")

	return prepareCmd
}

// newAnalyzeCmd - Erstellt den analyze Command
func newAnalyzeCmd() *cobra.Command {
	analyzeCmd := &cobra.Command{
		Use:   "analyze OUTPUT",
		Short: "Summarize a model output tensor",
		Args:  cobra.ExactArgs(1),
		RunE:  AnalyzeHandler,
	}

	analyzeCmd.Flags().String("labels", "", "Class label file, one label per line")
	analyzeCmd.Flags().Int("top-k", 5, "Number of classification results")
	analyzeCmd.Flags().String("kind", "auto", "Output kind (auto, classification, detection, segmentation)")
	analyzeCmd.Flags().Bool("json", false, "Print the analysis as JSON")
	analyzeCmd.Flags().Bool("dump", false, "Also print the tensor values")
	analyzeCmd.Flags().Int("precision", 4, "Decimal places for --dump")

	return analyzeCmd
}

// newEnvCmd - Erstellt den env Command
func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show environment configuration",
		Args:  cobra.NoArgs,
		RunE:  EnvHandler,
	}
}
