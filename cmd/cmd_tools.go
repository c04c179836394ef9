// cmd_tools.go - Hilfs-Commands rund um Ein- und Ausgabedateien
// Hauptfunktionen: PrepareHandler, AnalyzeHandler, EnvHandler
package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/7blacky7/gpurun/analyze"
	"github.com/7blacky7/gpurun/envconfig"
	"github.com/7blacky7/gpurun/format"
	"github.com/7blacky7/gpurun/imageutil"
	"github.com/7blacky7/gpurun/npy"
	"github.com/7blacky7/gpurun/tensorio"
)

// PrepareHandler - Wandelt ein Bild in eine .npy-Eingabe
func PrepareHandler(cmd *cobra.Command, args []string) error {
	size, _ := cmd.Flags().GetInt("size")
	normalize, _ := cmd.Flags().GetString("normalize")
	quantize, _ := cmd.Flags().GetBool("quantize")
	channelsFirst, _ := cmd.Flags().GetBool("channels-first")
	output, _ := cmd.Flags().GetString("output")

	p, err := imageutil.Prepare(args[0], imageutil.PrepareOptions{
		Size:          size,
		Normalize:     imageutil.NormalizeMode(strings.ToLower(normalize)),
		Quantize:      quantize,
		ChannelsFirst: channelsFirst,
	})
	if err != nil {
		return fmt.Errorf("prepare %s: %w", args[0], err)
	}

	if err := ensureParentDir(output); err != nil {
		return err
	}

	if p.Bytes != nil {
		err = npy.SaveUint8(output, p.Bytes, p.Shape)
	} else {
		err = npy.Save(output, p.Float, p.Shape)
	}
	if err != nil {
		return fmt.Errorf("save %s: %w", output, err)
	}

	slog.Info("input prepared", "image", args[0], "shape", format.Shape(p.Shape), "path", output)
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s tensor %s to %s\n", dtypeLabel(p), format.Shape(p.Shape), output)
	return nil
}

func dtypeLabel(p *imageutil.Prepared) string {
	if p.Bytes != nil {
		return "uint8"
	}
	return "float32"
}

// AnalyzeHandler - Wertet eine gespeicherte Modell-Ausgabe aus
func AnalyzeHandler(cmd *cobra.Command, args []string) error {
	labelsPath, _ := cmd.Flags().GetString("labels")
	topK, _ := cmd.Flags().GetInt("top-k")
	kindName, _ := cmd.Flags().GetString("kind")
	asJSON, _ := cmd.Flags().GetBool("json")
	dump, _ := cmd.Flags().GetBool("dump")
	precision, _ := cmd.Flags().GetInt("precision")

	kind, err := analyze.ParseKind(kindName)
	if err != nil {
		return err
	}

	buf, err := tensorio.Load(args[0])
	if err != nil {
		return fmt.Errorf("load output: %w", err)
	}

	var labels []string
	if labelsPath != "" {
		if labels, err = analyze.LoadLabels(labelsPath); err != nil {
			return fmt.Errorf("load labels: %w", err)
		}
	}

	result, err := analyze.Analyze(buf, analyze.Options{Kind: kind, TopK: topK, Labels: labels})
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	if err := result.WriteText(cmd.OutOrStdout()); err != nil {
		return err
	}

	if dump {
		fmt.Fprintf(cmd.OutOrStdout(), "\n=== Values ===\n%s\n", analyze.Dump(buf, analyze.DumpWithPrecision(precision)))
	}
	return nil
}

// EnvHandler - Gibt alle Umgebungsvariablen mit aktuellem Wert aus
func EnvHandler(cmd *cobra.Command, args []string) error {
	vars := envconfig.AsMap()
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var data [][]string
	for _, k := range keys {
		v := vars[k]
		data = append(data, []string{v.Name, fmt.Sprintf("%v", v.Value), v.Description})
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"NAME", "VALUE", "DESCRIPTION"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
	return nil
}
