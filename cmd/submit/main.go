// Submit a training run to the Slurm scheduler.
package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jnb666/mnistrun/cli"
	"github.com/jnb666/mnistrun/slurm"
	"github.com/jnb666/mnistrun/train"
)

var cmd = &cobra.Command{
	Use:   "submit --output <model> [flags]",
	Short: "Submit a training job with sbatch",
	Long: `Write the Slurm job script for a training run and submit it with sbatch. The job id is printed.
The #SBATCH directives are read from the slurm section of the config file.`,
	Args: cli.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		hp := train.Hyperparameters{
			Epochs:     viper.GetInt("epochs"),
			BatchSize:  viper.GetInt("batch_size"),
			OutputPath: viper.GetString("output"),
		}
		if err := hp.Validate(); err != nil {
			return cli.UsageError{Msg: err.Error()}
		}
		opts, err := slurm.OptionsFromConfig(viper.GetViper())
		if err != nil {
			return err
		}
		if s := viper.GetString("script"); s != "" {
			opts.ScriptPath = s
		}
		if viper.GetBool("unique") {
			opts.UniqueScript = true
		}
		id, err := slurm.NewSubmitter(opts).Submit(cmd.Context(), hp)
		if err != nil {
			return err
		}
		fmt.Printf("Submitted job %s\n", color.New(color.FgHiGreen, color.Bold).Sprint(id))
		return nil
	},
}

func init() {
	cli.Setup(cmd)
	f := cmd.Flags()
	f.String("output", "", "path to save the trained model")
	f.Int("epochs", 3, "number of training epochs")
	f.Int("batch_size", 128, "training batch size")
	f.String("script", "", "job script path (default "+slurm.DefaultScriptPath+")")
	f.Bool("unique", false, "add a unique suffix to the job script name")
	cli.Bind(cmd, "output", "epochs", "batch_size", "script", "unique")
	cmd.MarkFlagRequired("output")
}

func main() {
	cli.Execute(cmd)
}
