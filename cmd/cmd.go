// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs, setupLogging
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/containerd/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/7blacky7/gpurun/envconfig"
	"github.com/7blacky7/gpurun/logutil"
	_ "github.com/7blacky7/gpurun/ml/backend"
)

// version wird beim Release per -ldflags gesetzt
var version = "0.0.0"

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// setupLogging - Setzt den Standard-Logger gemaess GPURUN_DEBUG
func setupLogging(cmd *cobra.Command, _ []string) {
	slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), envconfig.LogLevel()))
}

// isTerminal - Prueft, ob stdout ein Terminal ist
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	if runtime.GOOS == "windows" && isTerminal() {
		console.ConsoleFromFile(os.Stdin) //nolint:errcheck
	}

	rootCmd := &cobra.Command{
		Use:           "gpurun",
		Short:         "Run and profile neural-network models with GPU delegation",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: setupLogging,
		Run: func(cmd *cobra.Command, args []string) {
			if v, _ := cmd.Flags().GetBool("version"); v {
				fmt.Fprintf(cmd.OutOrStdout(), "gpurun version %s\n", version)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	// Commands erstellen
	runCmd := newRunCmd()
	inspectCmd := newInspectCmd()
	benchCmd := newBenchCmd()
	prepareCmd := newPrepareCmd()
	analyzeCmd := newAnalyzeCmd()
	envCmd := newEnvCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	engineEnvs := []envconfig.EnvVar{
		envVars["GPURUN_DEBUG"],
		envVars["GPURUN_BACKEND"],
		envVars["GPURUN_NO_GPU"],
		envVars["GPURUN_NUM_THREADS"],
	}

	for _, cmd := range []*cobra.Command{runCmd, inspectCmd, benchCmd} {
		switch cmd {
		case runCmd:
			appendEnvDocs(cmd, append(engineEnvs,
				envVars["GPURUN_OUTPUT_DIR"],
				envVars["GPURUN_PROFILING"],
				envVars["GPURUN_DEQUANTIZE"],
				envVars["GPURUN_GPU_MEMINFO"],
			))
		case benchCmd:
			appendEnvDocs(cmd, append(engineEnvs, envVars["GPURUN_BENCH_ITERATIONS"]))
		default:
			appendEnvDocs(cmd, engineEnvs)
		}
	}

	rootCmd.AddCommand(
		runCmd,
		inspectCmd,
		benchCmd,
		prepareCmd,
		analyzeCmd,
		envCmd,
	)

	return rootCmd
}
