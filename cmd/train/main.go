// Train the digit classifier on MNIST, saving the model and the per epoch metrics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jnb666/mnistrun/cli"
	"github.com/jnb666/mnistrun/img"
	"github.com/jnb666/mnistrun/log"
	"github.com/jnb666/mnistrun/metrics"
	"github.com/jnb666/mnistrun/nnet"
	"github.com/jnb666/mnistrun/train"
)

var cmd = &cobra.Command{
	Use:   "train --output <model> [flags]",
	Short: "Train the MNIST classifier",
	Long: `Train the convolutional network on the MNIST digits for the given number of epochs.
The model is saved to the output path and the metrics for each epoch are written alongside it
with the extension replaced by _output.txt.`,
	Args: cli.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	cli.Setup(cmd)
	f := cmd.Flags()
	f.String("output", "", "path to save the trained model")
	f.Int("epochs", 3, "number of training epochs")
	f.Int("batch_size", 128, "training batch size")
	f.String("data", "data/mnist", "directory with the MNIST idx files")
	f.String("id", "", "config id stored in the metrics record")
	f.Int64("seed", 0, "random number seed (0 to seed from the clock)")
	f.Float64("eta", 0.001, "learning rate")
	f.String("optimizer", "adam", "optimizer: adam or sgd")
	f.Int("valid_split", 0, "hold out this many training images for validation instead of the test set")
	f.Int("samples", 0, "limit the number of training images")
	f.String("net", "", "JSON network config file (default is the built in network)")
	f.StringSlice("set", nil, "override a network config field, e.g. --set Lambda=0.0001")
	cli.Bind(cmd, "output", "epochs", "batch_size", "data", "id", "seed", "eta", "optimizer", "valid_split", "samples", "net", "set")
	cmd.MarkFlagRequired("output")
}

// netConfig returns the network settings. Values from the --net file are kept unless the flag is set.
func netConfig() (nnet.Config, error) {
	conf := nnet.Config{DataSet: "mnist", Shuffle: true, TestBatch: 1000, LogEvery: 1}
	file := viper.GetString("net")
	if file != "" {
		var err error
		if conf, err = nnet.LoadConfig(file); err != nil {
			return conf, err
		}
	}
	override := func(key string) bool { return file == "" || viper.IsSet(key) }
	if override("eta") {
		conf.Eta = viper.GetFloat64("eta")
	}
	if override("optimizer") {
		conf.Optimizer = viper.GetString("optimizer")
	}
	if override("seed") {
		conf.RandSeed = viper.GetInt64("seed")
	}
	if override("samples") {
		conf.MaxSamples = viper.GetInt("samples")
	}
	conf.TrainBatch = viper.GetInt("batch_size")
	conf.MaxEpoch = viper.GetInt("epochs")
	for _, kv := range viper.GetStringSlice("set") {
		i := strings.Index(kv, "=")
		if i <= 0 {
			return conf, cli.UsageError{Msg: fmt.Sprintf("invalid --set %q: expecting key=value", kv)}
		}
		var err error
		if conf, err = conf.SetString(kv[:i], kv[i+1:]); err != nil {
			return conf, err
		}
	}
	return conf, nil
}

func run() error {
	hp := train.Hyperparameters{
		Epochs:     viper.GetInt("epochs"),
		BatchSize:  viper.GetInt("batch_size"),
		OutputPath: viper.GetString("output"),
	}
	if err := hp.Validate(); err != nil {
		return cli.UsageError{Msg: err.Error()}
	}
	conf, err := netConfig()
	if err != nil {
		return err
	}
	src := img.MNIST{Dir: viper.GetString("data"), ValidSplit: viper.GetInt("valid_split")}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runner := train.NewRunner(nnet.NewBackend(conf))
	runner.ConfigID = viper.GetString("id")
	if runner.ConfigID == "" {
		runner.ConfigID = metrics.ConfigName(train.MetricsPath(hp.OutputPath))
	}
	artifact, rec, err := runner.Run(ctx, hp, src)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Printf("interrupted after %d epochs", len(rec.Epochs))
		}
		return err
	}
	if last, ok := rec.Last(); ok {
		fmt.Printf("saved %s: epoch %d loss %s accuracy %s\n", artifact, last.Epoch,
			metrics.FormatFloat(last.Loss), metrics.FormatFloat(last.Accuracy))
	}
	return nil
}

func main() {
	cli.Execute(cmd)
}
