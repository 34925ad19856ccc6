package nnet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/jnb666/mnistrun/log"
)

// Training configuration settings
type Config struct {
	DataSet       string
	Optimizer     string
	Eta           float64
	Lambda        float64
	Bias          float64
	NormalWeights bool
	Shuffle       bool
	TrainBatch    int
	TestBatch     int
	MaxEpoch      int
	MaxSamples    int
	LogEvery      int
	RandSeed      int64
	DebugLevel    int
	Layers        []LayerConfig
}

// DefaultConfig returns the settings used for MNIST training with the default network layers.
func DefaultConfig(classes int) Config {
	c := Config{
		DataSet:    "mnist",
		Optimizer:  "adam",
		Eta:        0.001,
		Shuffle:    true,
		TrainBatch: 128,
		TestBatch:  1000,
		MaxEpoch:   3,
		LogEvery:   1,
	}
	return c.AddLayers(DefaultLayers(classes)...)
}

// DefaultLayers is the convolutional network used for digit classification.
func DefaultLayers(classes int) []ConfigLayer {
	return []ConfigLayer{
		Conv{Nfeats: 32, Size: 3},
		Activation{Atype: "relu"},
		MaxPool{Size: 2},
		Conv{Nfeats: 64, Size: 3},
		Activation{Atype: "relu"},
		MaxPool{Size: 2},
		Flatten{},
		Linear{Nout: 128},
		Activation{Atype: "sigmoid"},
		Linear{Nout: classes},
		LogRegression{},
	}
}

// Load network from json file
func LoadConfig(name string) (c Config, err error) {
	var f *os.File
	if f, err = os.Open(name); err != nil {
		return c, errors.Wrap(err, "loading network config")
	}
	defer f.Close()
	log.Debugln("loading network config from", name)
	if err = json.NewDecoder(f).Decode(&c); err != nil {
		return c, errors.Wrapf(err, "decoding network config from %s", name)
	}
	for i, l := range c.Layers {
		if _, err = l.Unmarshal(); err != nil {
			return c, errors.Wrapf(err, "network config %s: layer %d", name, i)
		}
	}
	return c, nil
}

// Append layers to the config struct
func (c Config) AddLayers(layers ...ConfigLayer) Config {
	for _, l := range layers {
		c.Layers = append(c.Layers, l.Marshal())
	}
	return c
}

// Save config to JSON file, the data is written to a temporary file first and then renamed.
func (c Config) Save(name string) error {
	dir, base := filepath.Split(name)
	tmpPath := filepath.Join(dir, "."+base)
	f, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrap(err, "saving network config")
	}
	log.Debugln("saving network config to", name)
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err = enc.Encode(c); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return errors.Wrapf(err, "encoding network config to %s", name)
	}
	if err = f.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "saving network config to %s", name)
	}
	return errors.Wrap(os.Rename(tmpPath, name), "saving network config")
}

func (c Config) Fields() []string {
	st := reflect.TypeOf(c)
	fld := make([]string, st.NumField()-1)
	for i := range fld {
		fld[i] = st.Field(i).Name
	}
	return fld
}

func (c Config) Get(key string) interface{} {
	s := reflect.ValueOf(c)
	return s.FieldByName(key).Interface()
}

func (c Config) configString() string {
	fields := c.Fields()
	str := []string{"== Config =="}
	for _, key := range fields {
		str = append(str, fmt.Sprintf("%-14s: %v", key, c.Get(key)))
	}
	return strings.Join(str, "\n")
}

func (c Config) String() string {
	s := c.configString()
	if c.Layers != nil {
		str := []string{"\n== Network =="}
		for i, layer := range c.Layers {
			str = append(str, fmt.Sprintf("%2d: %s", i, layer))
		}
		s += strings.Join(str, "\n")
	}
	return s
}

// SetString updates the named field from its string representation.
func (c Config) SetString(key, val string) (Config, error) {
	s := reflect.ValueOf(&c).Elem()
	f := s.FieldByName(key)
	if !f.IsValid() || key == "Layers" {
		return c, errors.Errorf("invalid config field %q", key)
	}
	var err error
	switch f.Type().Kind() {
	case reflect.Int, reflect.Int64:
		var x int64
		if x, err = strconv.ParseInt(val, 10, 64); err == nil {
			f.SetInt(x)
		}
	case reflect.Float64:
		var x float64
		if x, err = strconv.ParseFloat(val, 64); err == nil {
			f.SetFloat(x)
		}
	case reflect.Bool:
		var x bool
		if x, err = strconv.ParseBool(val); err == nil {
			f.SetBool(x)
		}
	case reflect.String:
		f.SetString(val)
	default:
		return c, errors.Errorf("invalid type for SetString: %v", f.Type().Kind())
	}
	return c, errors.Wrapf(err, "setting %s", key)
}
