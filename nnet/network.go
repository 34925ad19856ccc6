// Package nnet contains routines for constructing, training and testing neural networks.
package nnet

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jnb666/mnistrun/log"
	"github.com/jnb666/mnistrun/num"
	"github.com/jnb666/mnistrun/stats"
)

// Network type represents a multilayer neural network model.
type Network struct {
	Config
	Layers    []Layer
	inShape   []int
	opt       Optimizer
	inputGrad *num.Array
	classes   []int32
}

// New function creates a new network with the given layers. inShape is the shape of a single input sample.
func New(conf Config, inShape []int) (*Network, error) {
	opt, err := NewOptimizer(conf)
	if err != nil {
		return nil, err
	}
	n := &Network{Config: conf, inShape: append([]int{}, inShape...), opt: opt}
	shape := n.inShape
	for i, l := range conf.Layers {
		layer, err := l.Unmarshal()
		if err != nil {
			return nil, errors.Wrapf(err, "layer %d", i)
		}
		if c, ok := layer.(shapeChecker); ok {
			if err = c.checkShape(shape); err != nil {
				return nil, errors.Wrapf(err, "layer %d", i)
			}
		}
		layer = layer.Init(shape)
		n.Layers = append(n.Layers, layer)
		shape = layer.OutShape(shape)
	}
	if len(n.Layers) == 0 {
		return nil, errors.New("network has no layers")
	}
	if _, ok := n.Layers[len(n.Layers)-1].(OutputLayer); !ok {
		return nil, errors.Errorf("final layer %s is not an output layer", n.Layers[len(n.Layers)-1].ToString())
	}
	return n, nil
}

// Initialise network weights using a uniform or normal distribution.
// Weights for each layer are scaled by 1/sqrt(nin)
func (n *Network) InitWeights(rng *rand.Rand) {
	shape := n.inShape
	for _, layer := range n.Layers {
		if l, ok := layer.(ParamLayer); ok {
			nin := num.Prod(shape)
			if c, ok := layer.(*conv); ok {
				nin = shape[0] * c.Size * c.Size
			}
			scale := float32(1 / math.Sqrt(float64(nin)))
			l.InitParams(scale, float32(n.Bias), n.NormalWeights, rng)
		}
		shape = layer.OutShape(shape)
	}
	if n.DebugLevel >= 2 {
		n.PrintWeights()
	}
}

// Accessor for output layer
func (n *Network) OutLayer() OutputLayer {
	return n.Layers[len(n.Layers)-1].(OutputLayer)
}

// ParamLayers returns the layers with weights and bias.
func (n *Network) ParamLayers() []ParamLayer {
	var res []ParamLayer
	for _, layer := range n.Layers {
		if l, ok := layer.(ParamLayer); ok {
			res = append(res, l)
		}
	}
	return res
}

// InShape returns the shape of each input sample.
func (n *Network) InShape() []int { return n.inShape }

// OutShape returns the shape of the network output for each sample.
func (n *Network) OutShape() []int {
	shape := n.inShape
	for _, layer := range n.Layers {
		shape = layer.OutShape(shape)
	}
	return shape
}

// Feed forward the input to get the predicted output
func (n *Network) Fprop(input *num.Array) *num.Array {
	pred := input
	for i, layer := range n.Layers {
		if n.DebugLevel >= 3 {
			log.Debugf("layer %d input\n%s", i, pred)
		}
		pred = layer.Fprop(pred)
	}
	return pred
}

// Predict output given input data, the predicted class for each sample is returned in classes.
func (n *Network) Predict(input *num.Array, classes []int32) *num.Array {
	yPred := n.Fprop(input)
	if n.DebugLevel >= 3 {
		log.Debugf("yPred\n%s", yPred)
	}
	num.Unhot(yPred, classes)
	return yPred
}

// Evaluate returns the mean loss and the fraction of samples correctly classified.
func (n *Network) Evaluate(dset *Dataset) (loss, accuracy float64) {
	var lossAvg, accAvg stats.Average
	dset.NextEpoch()
	for batch := 0; batch < dset.Batches; batch++ {
		x, y, yOneHot := dset.NextBatch()
		_, batchLoss, correct := n.batchStats(x, y, yOneHot)
		lossAvg.AddWeighted(batchLoss, float64(len(y)))
		accAvg.AddWeighted(correct, float64(len(y)))
	}
	return lossAvg.Mean, accAvg.Mean
}

// forward pass on one batch returning the predictions, the mean loss and the fraction correct
func (n *Network) batchStats(x *num.Array, y []int32, yOneHot *num.Array) (yPred *num.Array, loss, accuracy float64) {
	if cap(n.classes) < len(y) {
		n.classes = make([]int32, len(y))
	}
	classes := n.classes[:len(y)]
	yPred = n.Predict(x, classes)
	losses := n.OutLayer().Loss(yOneHot, yPred)
	correct := 0
	for i, c := range classes {
		if c == y[i] {
			correct++
		}
	}
	return yPred, num.Sum(losses) / float64(len(y)), float64(correct) / float64(len(y))
}

// Print network description
func (n *Network) String() string {
	s := make([]string, len(n.Layers))
	shape := n.inShape
	for i, layer := range n.Layers {
		s[i] = fmt.Sprintf("%2d: %-40s %v", i, layer.ToString(), shape)
		shape = layer.OutShape(shape)
	}
	return fmt.Sprintf("%s\n== Layers ==\n%s", n.Config.configString(), strings.Join(s, "\n"))
}

// Print network weights
func (n *Network) PrintWeights() {
	for i, layer := range n.Layers {
		if l, ok := layer.(ParamLayer); ok {
			W, B := l.Params()
			log.Debugf("== Layer %d weights ==\n%s %s", i, W, B)
		}
	}
}

// NewRand returns a random number generator with the given seed, or a time based seed if seed <= 0
func NewRand(seed int64) *rand.Rand {
	if seed <= 0 {
		seed = time.Now().UTC().UnixNano()
	}
	log.Debugln("random seed =", seed)
	return rand.New(rand.NewSource(seed))
}
