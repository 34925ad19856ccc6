// Reduce the per epoch CSV to the final epoch of each configuration and plot the final accuracy.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jnb666/mnistrun/cli"
	"github.com/jnb666/mnistrun/metrics"
	"github.com/jnb666/mnistrun/plots"
)

var cmd = &cobra.Command{
	Use:   "aggregate <input_csv> <output_plot>",
	Short: "Aggregate results and plot final accuracy",
	Long: `Read the per epoch CSV written by collect, keep the last epoch for each config id and save a bar chart
of the final accuracy. The image format is taken from the output file extension.`,
	Args: cli.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(args[0], args[1], viper.GetString("table"))
	},
}

func init() {
	cli.Setup(cmd)
	cmd.Flags().String("table", "", "also write the aggregated rows to this CSV file")
	cli.Bind(cmd, "table")
}

func run(input, output, table string) error {
	f, err := os.Open(input)
	if err != nil {
		return &metrics.IOError{Op: "open", Path: input, Err: err}
	}
	records, err := metrics.ReadEpochCSV(f, input)
	f.Close()
	if err != nil {
		return err
	}
	rows, err := metrics.Aggregate(records)
	if err != nil {
		return err
	}
	printRows(rows)
	if table != "" {
		if err := writeTable(table, rows); err != nil {
			return err
		}
	}
	return plots.FinalAccuracy(rows, output)
}

func printRows(rows []metrics.Row) {
	t := cli.NewTable(metrics.Header...)
	for _, r := range rows {
		t.AddRow(r.ConfigID, r.Epoch, format(&r.Loss), format(r.ValidationLoss), format(&r.Accuracy), format(r.ValidationAccuracy))
	}
	fmt.Println(t.Render())
}

func format(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *v)
}

func writeTable(path string, rows []metrics.Row) error {
	f, err := os.Create(path)
	if err != nil {
		return &metrics.IOError{Op: "create", Path: path, Err: err}
	}
	if err = metrics.WriteRowsCSV(f, rows); err != nil {
		f.Close()
		return &metrics.IOError{Op: "write", Path: path, Err: err}
	}
	if err = f.Close(); err != nil {
		return &metrics.IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}

func main() {
	cli.Execute(cmd)
}
