package nnet

import (
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnb666/mnistrun/num"
)

const batch = 4

func randArray(rng *rand.Rand, size int, min, max float32) []float32 {
	v := make([]float32, size)
	for i := range v {
		v[i] = min + rng.Float32()*(max-min)
	}
	return v
}

func randLabels(rng *rand.Rand, n, classes int) []int32 {
	labels := make([]int32, n)
	for i := range labels {
		labels[i] = int32(rng.Intn(classes))
	}
	return labels
}

// summed cross entropy loss over the batch
func totalLoss(net *Network, x, yOneHot *num.Array) float64 {
	yPred := net.Fprop(x)
	return num.Sum(net.OutLayer().Loss(yOneHot, yPred))
}

// compare the back propagated weight gradients with a central difference estimate
func checkGradients(t *testing.T, net *Network, x *num.Array, labels []int32, classes int) {
	yOneHot := num.NewArray(len(labels), classes)
	num.Onehot(labels, yOneHot, classes)
	yPred := net.Fprop(x)
	grad := num.NewArrayLike(yPred)
	num.Copy(grad, yPred)
	num.Axpy(-1, yOneHot, grad)
	for i := len(net.Layers) - 1; i >= 0; i-- {
		grad = net.Layers[i].Bprop(grad)
	}
	const h = 1e-2
	for li, l := range net.ParamLayers() {
		W, _ := l.Params()
		dW, _ := l.ParamGrads()
		analytic := append([]float32{}, dW.Data()...)
		for _, ix := range []int{0, W.Size() / 2, W.Size() - 1} {
			w := W.Data()
			orig := w[ix]
			w[ix] = orig + h
			lossPlus := totalLoss(net, x, yOneHot)
			w[ix] = orig - h
			lossMinus := totalLoss(net, x, yOneHot)
			w[ix] = orig
			numeric := (lossPlus - lossMinus) / (2 * h)
			tol := 1e-2 + 0.05*math.Abs(numeric)
			assert.InDelta(t, numeric, float64(analytic[ix]), tol, "layer %d weight %d", li, ix)
		}
	}
}

func TestLinearGradient(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	conf := Config{Optimizer: "sgd", Eta: 0.1}.AddLayers(
		Linear{Nout: 5},
		Activation{Atype: "sigmoid"},
		Linear{Nout: 3},
		LogRegression{},
	)
	net, err := New(conf, []int{6})
	require.NoError(t, err)
	net.InitWeights(rng)
	x := num.FromSlice(randArray(rng, batch*6, 0, 1), batch, 6)
	checkGradients(t, net, x, randLabels(rng, batch, 3), 3)
}

func TestConvGradient(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	conf := Config{}.AddLayers(
		Conv{Nfeats: 3, Size: 3},
		Activation{Atype: "tanh"},
		Flatten{},
		Linear{Nout: 4},
		LogRegression{},
	)
	net, err := New(conf, []int{2, 5, 5})
	require.NoError(t, err)
	net.InitWeights(rng)
	assert.Equal(t, []int{4}, net.Layers[3].OutShape([]int{27}))
	x := num.FromSlice(randArray(rng, batch*2*5*5, 0, 1), batch, 2, 5, 5)
	checkGradients(t, net, x, randLabels(rng, batch, 4), 4)
}

func TestDefaultShapes(t *testing.T) {
	net, err := New(DefaultConfig(10), []int{1, 28, 28})
	require.NoError(t, err)
	expect := [][]int{
		{32, 26, 26}, {32, 26, 26}, {32, 13, 13},
		{64, 11, 11}, {64, 11, 11}, {64, 5, 5},
		{1600}, {128}, {128}, {10}, {10},
	}
	shape := net.InShape()
	for i, l := range net.Layers {
		shape = l.OutShape(shape)
		assert.Equal(t, expect[i], shape, "layer %d", i)
	}
	t.Log(net)
}

func TestNoOutputLayer(t *testing.T) {
	_, err := New(Config{}.AddLayers(Linear{Nout: 2}), []int{3})
	assert.Error(t, err)
	_, err = New(Config{Optimizer: "rmsprop"}.AddLayers(LogRegression{}), []int{3})
	assert.Error(t, err)
}

// two classes of 10x10 images: bright left half or bright right half
func stripeData(rng *rand.Rand, n int) Data {
	const size = 10
	inputs := make([]float32, n*size*size)
	labels := make([]int32, n)
	for i := range labels {
		labels[i] = int32(i % 2)
		img := inputs[i*size*size : (i+1)*size*size]
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				v := 0.1 * rng.Float32()
				if (x < size/2) == (labels[i] == 0) {
					v += 0.8
				}
				img[y*size+x] = v
			}
		}
	}
	return NewData(2, []int{1, size, size}, labels, inputs)
}

func TestTrain(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	conf := Config{Optimizer: "adam", Eta: 0.01, Shuffle: true, RandSeed: 1, TestBatch: 16}
	b := NewBackend(conf)
	train, valid := stripeData(rng, 64), stripeData(rng, 16)
	require.NoError(t, b.Build(train.Classes(), train.Shape()))

	var res []Stats
	err := b.Fit(context.Background(), train, valid, 4, 8, func(s Stats) { res = append(res, s) })
	require.NoError(t, err)
	require.Len(t, res, 4)
	for i, s := range res {
		assert.Equal(t, i+1, s.Epoch)
		assert.True(t, s.Validated)
		assert.True(t, s.Accuracy >= 0 && s.Accuracy <= 1)
	}
	assert.Less(t, res[3].Loss, res[0].Loss)

	path := filepath.Join(t.TempDir(), "model.gob")
	size, err := b.Save(path)
	require.NoError(t, err)
	assert.Greater(t, size, int64(0))

	m, err := LoadModel(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1"}, m.Classes)
	net2, err := m.Network()
	require.NoError(t, err)
	dset := NewDataset(valid, 16, 0, nil)
	loss1, acc1 := b.Network().Evaluate(dset)
	loss2, acc2 := net2.Evaluate(dset)
	assert.InDelta(t, loss1, loss2, 1e-6)
	assert.Equal(t, acc1, acc2)
}

func TestTrainNoValidation(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	b := NewBackend(Config{Eta: 0.01, RandSeed: 2})
	train := stripeData(rng, 10)
	require.NoError(t, b.Build(train.Classes(), train.Shape()))
	var res []Stats
	err := b.Fit(context.Background(), train, nil, 2, 4, func(s Stats) { res = append(res, s) })
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.False(t, res[1].Validated)
}

func TestTrainCancel(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	b := NewBackend(Config{RandSeed: 3})
	train := stripeData(rng, 16)
	require.NoError(t, b.Build(train.Classes(), train.Shape()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var res []Stats
	err := b.Fit(ctx, train, nil, 2, 4, func(s Stats) { res = append(res, s) })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res)
}

func TestDataset(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	d := NewDataset(stripeData(rng, 10), 4, 0, rng)
	assert.Equal(t, 3, d.Batches)
	d.Shuffle()
	d.NextEpoch()
	seen := 0
	for i := 0; i < d.Batches; i++ {
		x, y, yOneHot := d.NextBatch()
		assert.Equal(t, len(y), x.Dims()[0])
		assert.Equal(t, []int{len(y), 2}, yOneHot.Dims())
		seen += len(y)
	}
	assert.Equal(t, 10, seen)
}

func TestConfig(t *testing.T) {
	c := DefaultConfig(10)
	c, err := c.SetString("Eta", "0.5")
	require.NoError(t, err)
	c, err = c.SetString("Shuffle", "false")
	require.NoError(t, err)
	assert.Equal(t, 0.5, c.Eta)
	assert.False(t, c.Shuffle)
	_, err = c.SetString("Missing", "1")
	assert.Error(t, err)
	_, err = c.SetString("MaxEpoch", "x")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "net.json")
	require.NoError(t, c.Save(path))
	c2, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, c.String(), c2.String())
}

func TestBadNetConfig(t *testing.T) {
	dir := t.TempDir()
	for name, json := range map[string]string{
		"type":  `{"Layers":[{"Type":"linear","Data":{"Nout":2}},{"Type":"dense"}]}`,
		"value": `{"Layers":[{"Type":"linear","Data":{"Nout":"ten"}}]}`,
		"activ": `{"Layers":[{"Type":"activation","Data":{"Atype":"softplus"}}]}`,
	} {
		path := filepath.Join(dir, name+".json")
		require.NoError(t, os.WriteFile(path, []byte(json), 0644))
		_, err := LoadConfig(path)
		require.Error(t, err, name)
		assert.Contains(t, err.Error(), path, name)
		assert.Contains(t, err.Error(), "layer ", name)
	}

	// the same errors from New when the config is built in code
	_, err := New(Config{Layers: []LayerConfig{{Type: "dense"}}}, []int{3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "layer 0")
}

func TestBadLayerShape(t *testing.T) {
	// linear layer needs a flatten first
	_, err := New(Config{}.AddLayers(Linear{Nout: 2}, LogRegression{}), []int{1, 10, 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "layer 0")

	// window larger than the image
	_, err = New(Config{}.AddLayers(Conv{Nfeats: 2, Size: 5}, Flatten{}, Linear{Nout: 2}, LogRegression{}), []int{1, 3, 3})
	require.Error(t, err)

	// network output does not match the classes
	b := NewBackend(Config{}.AddLayers(Flatten{}, Linear{Nout: 3}, LogRegression{}))
	err = b.Build([]string{"a", "b"}, []int{1, 4, 4})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 classes")
	require.NoError(t, NewBackend(Config{}).Build([]string{"a", "b"}, []int{1, 10, 10}))
}
