// Package cli holds the command line setup shared by the mnistrun programs: viper configuration, logging flags,
// error reporting and table output.
package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stevedomin/termtable"

	"github.com/jnb666/mnistrun/log"
)

// EnvPrefix is the prefix of environment variables overriding settings, e.g. MNISTRUN_EPOCHS.
const EnvPrefix = "mnistrun"

// UsageError is returned when the command line arguments are invalid. The usage is printed and the program
// exits with status 1.
type UsageError struct {
	Msg string
}

func (e UsageError) Error() string {
	return e.Msg
}

// ExactArgs is like cobra.ExactArgs but returns a UsageError.
func ExactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return UsageError{Msg: fmt.Sprintf("accepts %d arg(s), received %d", n, len(args))}
		}
		return nil
	}
}

// MinimumNArgs is like cobra.MinimumNArgs but returns a UsageError.
func MinimumNArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < n {
			return UsageError{Msg: fmt.Sprintf("requires at least %d arg(s), only received %d", n, len(args))}
		}
		return nil
	}
}

// Setup adds the --config and --debug flags to the command and reads the configuration before it runs.
// Flags which are bound with Bind can then be read back with viper.
func Setup(cmd *cobra.Command) {
	var cfgFile string
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./mnistrun.yaml or $HOME/.mnistrun/mnistrun.yaml)")
	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	viper.BindPFlag("debug", cmd.PersistentFlags().Lookup("debug"))
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := initConfig(cfgFile); err != nil {
			return err
		}
		if viper.GetBool("debug") {
			log.SetDebug(true)
		}
		return nil
	}
}

// Bind binds the named flags of the command to viper keys of the same name.
func Bind(cmd *cobra.Command, names ...string) {
	for _, name := range names {
		if err := viper.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %s", name, err))
		}
	}
}

func initConfig(cfgFile string) error {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("mnistrun")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".mnistrun"))
		}
	}
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return errors.Wrap(err, "reading config")
	}
	log.Debugln("using config file:", viper.ConfigFileUsed())
	return nil
}

// Execute runs the command. On a usage error the usage is printed, any other error is printed in red.
// Either way the program exits with status 1.
func Execute(cmd *cobra.Command) {
	c, err := cmd.ExecuteC()
	if err == nil {
		return
	}
	code := Report(os.Stderr, c, err)
	os.Exit(code)
}

// Report prints the error and returns the exit status.
func Report(w io.Writer, cmd *cobra.Command, err error) int {
	fmt.Fprintf(w, "%s: %s\n", color.New(color.FgHiRed, color.Bold).Sprint("Error"), err)
	if isUsage(err) && cmd != nil {
		cmd.SetOut(w)
		cmd.Usage()
	}
	return 1
}

// flag parsing errors from cobra are plain strings
var usagePrefixes = []string{"unknown flag", "unknown shorthand flag", "required flag", "invalid argument", "flag needs an argument"}

func isUsage(err error) bool {
	var uerr UsageError
	if errors.As(err, &uerr) {
		return true
	}
	for _, p := range usagePrefixes {
		if strings.HasPrefix(err.Error(), p) {
			return true
		}
	}
	return false
}

// Table renders rows in aligned columns for the terminal.
type Table struct {
	tt *termtable.Table
}

func NewTable(headers ...string) *Table {
	t := &Table{tt: termtable.NewTable(nil, &termtable.TableOptions{
		Padding:      1,
		UseSeparator: true,
	})}
	t.tt.SetHeader(headers)
	return t
}

// AddRow adds a new line to the table
func (t *Table) AddRow(items ...interface{}) {
	its := make([]string, len(items))
	for i, item := range items {
		its[i] = fmt.Sprint(item)
	}
	t.tt.AddRow(its)
}

func (t *Table) Render() string {
	return t.tt.Render()
}
