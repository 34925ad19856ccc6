package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCmd(run func(args []string) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:  "test <arg>",
		Args: ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error { return run(args) },
	}
	Setup(cmd)
	cmd.Flags().Int("epochs", 3, "number of epochs")
	Bind(cmd, "epochs")
	return cmd
}

func TestUsageError(t *testing.T) {
	viper.Reset()
	cmd := newCmd(func([]string) error { return nil })
	cmd.SetArgs([]string{})
	c, err := cmd.ExecuteC()
	require.Error(t, err)
	var buf bytes.Buffer
	assert.Equal(t, 1, Report(&buf, c, err))
	assert.Contains(t, buf.String(), "accepts 1 arg(s), received 0")
	assert.Contains(t, buf.String(), "Usage:")
}

func TestRunError(t *testing.T) {
	viper.Reset()
	cmd := newCmd(func([]string) error { return errors.New("boom") })
	cmd.SetArgs([]string{"x"})
	c, err := cmd.ExecuteC()
	require.Error(t, err)
	var buf bytes.Buffer
	assert.Equal(t, 1, Report(&buf, c, err))
	assert.Contains(t, buf.String(), "boom")
	assert.NotContains(t, buf.String(), "Usage:")
}

func TestConfigFile(t *testing.T) {
	viper.Reset()
	cfg := filepath.Join(t.TempDir(), "conf.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("epochs: 7\n"), 0644))
	var epochs int
	cmd := newCmd(func([]string) error {
		epochs = viper.GetInt("epochs")
		return nil
	})
	cmd.SetArgs([]string{"--config", cfg, "x"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, 7, epochs)

	// flags override the config file
	viper.Reset()
	cmd = newCmd(func([]string) error {
		epochs = viper.GetInt("epochs")
		return nil
	})
	cmd.SetArgs([]string{"--config", cfg, "--epochs", "2", "x"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, 2, epochs)
}

func TestEnv(t *testing.T) {
	viper.Reset()
	t.Setenv("MNISTRUN_EPOCHS", "5")
	var epochs int
	cmd := newCmd(func([]string) error {
		epochs = viper.GetInt("epochs")
		return nil
	})
	cmd.SetArgs([]string{"x"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, 5, epochs)
}

func TestTable(t *testing.T) {
	tab := NewTable("config_id", "Epoch")
	tab.AddRow("cfg1", 3)
	out := tab.Render()
	assert.Contains(t, out, "config_id")
	assert.Contains(t, out, "cfg1")
}
