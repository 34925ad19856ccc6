package nnet

import (
	"context"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/jnb666/mnistrun/log"
)

// Backend builds, trains and saves a network. Each backend has its own random number generator
// so there is no shared global state between runs.
type Backend struct {
	Config
	net     *Network
	classes []string
	rng     *rand.Rand
}

// NewBackend returns a backend using the given settings. If conf.Layers is empty then DefaultLayers are used.
func NewBackend(conf Config) *Backend {
	return &Backend{Config: conf, rng: NewRand(conf.RandSeed)}
}

// Build constructs the network for inputs of the given shape and initialises the weights.
func (b *Backend) Build(classes []string, inShape []int) error {
	if len(classes) < 2 {
		return errors.Errorf("need at least 2 classes, got %d", len(classes))
	}
	conf := b.Config
	if len(conf.Layers) == 0 {
		conf = conf.AddLayers(DefaultLayers(len(classes))...)
	}
	net, err := New(conf, inShape)
	if err != nil {
		return err
	}
	if out := net.OutShape(); len(out) != 1 || out[0] != len(classes) {
		return errors.Errorf("network output shape %v does not match %d classes", out, len(classes))
	}
	net.InitWeights(b.rng)
	b.net, b.classes = net, classes
	log.Debugf("network:\n%s", net)
	return nil
}

// Fit trains for the given number of epochs, epochDone is called with the stats at the end of each epoch.
// valid may be nil.
func (b *Backend) Fit(ctx context.Context, train, valid Data, epochs, batchSize int, epochDone func(Stats)) error {
	if b.net == nil {
		return errors.New("network not built")
	}
	b.net.MaxEpoch = epochs
	b.net.TrainBatch = batchSize
	dset := NewDataset(train, batchSize, b.MaxSamples, b.rng)
	return Train(ctx, b.net, dset, NewTestLogger(b.net.Config, valid, epochDone))
}

// Save writes the trained model to path, returning the size in bytes.
func (b *Backend) Save(path string) (int64, error) {
	if b.net == nil {
		return 0, errors.New("network not built")
	}
	return b.net.Model(b.classes).Save(path)
}

// Network returns the network built by the last call to Build.
func (b *Backend) Network() *Network { return b.net }
