// Merge metrics files from several training runs into a per epoch CSV keyed by config id.
package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jnb666/mnistrun/cli"
	"github.com/jnb666/mnistrun/log"
	"github.com/jnb666/mnistrun/metrics"
)

var cmd = &cobra.Command{
	Use:   "collect -o <out.csv> <config_id=metrics_file>...",
	Short: "Combine metrics files into a CSV",
	Long: `Read the metrics files written by train and write one CSV row per epoch.
Each argument is config_id=path; if the config id is omitted it is taken from the file name.`,
	Args: cli.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), args, viper.GetString("out"))
	},
}

func init() {
	cli.Setup(cmd)
	cmd.Flags().StringP("out", "o", "", "output CSV file (default stdout)")
	cli.Bind(cmd, "out")
}

func run(ctx context.Context, args []string, out string) error {
	inputs := make([]metrics.Input, len(args))
	for i, arg := range args {
		in, err := metrics.ParseInput(arg)
		if err != nil {
			return cli.UsageError{Msg: err.Error()}
		}
		inputs[i] = in
	}
	records, err := metrics.LoadAll(ctx, inputs)
	if err != nil {
		return err
	}
	if out == "" {
		return metrics.WriteEpochCSV(os.Stdout, records)
	}
	f, err := os.Create(out)
	if err != nil {
		return &metrics.IOError{Op: "create", Path: out, Err: err}
	}
	if err = metrics.WriteEpochCSV(f, records); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", out)
	}
	if err = f.Close(); err != nil {
		return &metrics.IOError{Op: "write", Path: out, Err: err}
	}
	log.Printf("wrote %d runs to %s", len(records), out)
	return nil
}

func main() {
	cli.Execute(cmd)
}
