// Plot the training and validation loss for each configuration from the per epoch CSV.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jnb666/mnistrun/cli"
	"github.com/jnb666/mnistrun/metrics"
	"github.com/jnb666/mnistrun/plots"
)

var cmd = &cobra.Command{
	Use:   "plot <input_csv> <output_file>",
	Short: "Plot loss curves",
	Args:  cli.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return &metrics.IOError{Op: "open", Path: args[0], Err: err}
		}
		records, err := metrics.ReadEpochCSV(f, args[0])
		f.Close()
		if err != nil {
			return err
		}
		return plots.LossCurves(records, args[1])
	},
}

func init() {
	cli.Setup(cmd)
}

func main() {
	cli.Execute(cmd)
}
