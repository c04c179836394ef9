// cmd_inspect.go - Inspect Command und Tensor-Tabellen
// Hauptfunktionen: InspectHandler, writeTensorTable
package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/7blacky7/gpurun/format"
	"github.com/7blacky7/gpurun/runner"
)

// InspectHandler - Zeigt Ein- und Ausgabetensoren eines Modells an
func InspectHandler(cmd *cobra.Command, args []string) error {
	opts, err := engineOptionsFromFlags(cmd)
	if err != nil {
		return err
	}

	sess, err := openSession(opts, opts.GPU)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.AllocateTensors(); err != nil {
		return fmt.Errorf("allocate tensors: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Model:    %s\n", opts.Model)
	fmt.Fprintf(w, "Backend:  %s\n", sess.Backend().Name())
	fmt.Fprintf(w, "Delegate: %t\n\n", sess.DelegateAttached())

	fmt.Fprintln(w, "Inputs:")
	writeTensorTable(w, sess.Inputs())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Outputs:")
	writeTensorTable(w, sess.Outputs())
	return nil
}

// writeTensorTable - Tabelle mit Index, Name, Typ, Shape und Quantisierung
func writeTensorTable(w io.Writer, infos []runner.TensorInfo) {
	var data [][]string
	for _, info := range infos {
		quant := "-"
		if q := info.Quantization; q.Quantized() {
			quant = fmt.Sprintf("scale=%g zero_point=%d", q.Scale, q.ZeroPoint)
		}

		data = append(data, []string{
			strconv.Itoa(info.Index),
			info.Name,
			info.Type.String(),
			format.Shape(info.Shape),
			format.Count(info.Elements()),
			quant,
		})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"INDEX", "NAME", "TYPE", "SHAPE", "ELEMENTS", "QUANTIZATION"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}
