package nnet

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/jnb666/mnistrun/log"
	"github.com/jnb666/mnistrun/num"
)

// Model is the saved form of a trained network.
type Model struct {
	Config  Config
	InShape []int
	Classes []string
	Params  []ModelParams
}

// ModelParams holds the weights and bias for one ParamLayer.
type ModelParams struct {
	W, B []float32
}

// Model returns a copy of the network configuration and weights.
func (n *Network) Model(classes []string) Model {
	m := Model{Config: n.Config, InShape: n.inShape, Classes: classes}
	for _, l := range n.ParamLayers() {
		W, B := l.Params()
		m.Params = append(m.Params, ModelParams{
			W: append([]float32{}, W.Data()...),
			B: append([]float32{}, B.Data()...),
		})
	}
	return m
}

// Network constructs a new network with the saved weights.
func (m Model) Network() (*Network, error) {
	net, err := New(m.Config, m.InShape)
	if err != nil {
		return nil, err
	}
	layers := net.ParamLayers()
	if len(layers) != len(m.Params) {
		return nil, errors.Errorf("model has %d parameter sets for %d layers", len(m.Params), len(layers))
	}
	for i, l := range layers {
		W, B := l.Params()
		if len(m.Params[i].W) != W.Size() || len(m.Params[i].B) != B.Size() {
			return nil, errors.Errorf("layer %d: parameter size mismatch", i)
		}
		l.SetParams(num.FromSlice(m.Params[i].W, W.Dims()...), num.FromSlice(m.Params[i].B, B.Dims()...))
	}
	return net, nil
}

// Save encodes the model in gob format. It is written to a temporary file in the same directory which is
// then renamed, so a partially written model is never left at path. Returns the number of bytes written.
func (m Model) Save(path string) (size int64, err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return 0, errors.Wrap(err, "saving model")
	}
	defer func() {
		if err != nil {
			if rerr := os.Remove(f.Name()); rerr != nil && !os.IsNotExist(rerr) {
				err = multierror.Append(err, rerr)
			}
		}
	}()
	if err = gob.NewEncoder(f).Encode(m); err != nil {
		f.Close()
		return 0, errors.Wrapf(err, "encoding model to %s", path)
	}
	if err = f.Chmod(0644); err != nil {
		f.Close()
		return 0, errors.Wrapf(err, "saving model to %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, errors.Wrapf(err, "saving model to %s", path)
	}
	if err = f.Close(); err != nil {
		return 0, errors.Wrapf(err, "saving model to %s", path)
	}
	if err = os.Rename(f.Name(), path); err != nil {
		return 0, errors.Wrapf(err, "saving model to %s", path)
	}
	log.Debugf("saved model to %s: %s", path, humanize.Bytes(uint64(info.Size())))
	return info.Size(), nil
}

// LoadModel decodes a model saved with Save.
func LoadModel(path string) (m Model, err error) {
	f, err := os.Open(path)
	if err != nil {
		return m, errors.Wrap(err, "loading model")
	}
	defer f.Close()
	if err = gob.NewDecoder(f).Decode(&m); err != nil {
		return m, errors.Wrapf(err, "decoding model from %s", path)
	}
	return m, nil
}
