package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnb666/mnistrun/nnet"
)

func TestNetConfigBadFile(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	path := filepath.Join(t.TempDir(), "net.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Layers":[{"Type":"dense"}]}`), 0644))
	viper.Set("net", path)
	_, err := netConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
	assert.Contains(t, err.Error(), "layer 0")
}

func TestNetConfigOverrides(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	path := filepath.Join(t.TempDir(), "net.json")
	conf := nnet.DefaultConfig(10)
	conf.Eta = 0.05
	require.NoError(t, conf.Save(path))
	viper.Set("net", path)
	viper.Set("batch_size", 64)
	viper.Set("set", []string{"Lambda=0.01"})
	c, err := netConfig()
	require.NoError(t, err)
	assert.Equal(t, 0.05, c.Eta)
	assert.Equal(t, 0.01, c.Lambda)
	assert.Equal(t, 64, c.TrainBatch)

	viper.Set("set", []string{"Lambda"})
	_, err = netConfig()
	assert.Error(t, err)
}
