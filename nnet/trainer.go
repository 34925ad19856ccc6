package nnet

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jnb666/mnistrun/log"
	"github.com/jnb666/mnistrun/num"
	"github.com/jnb666/mnistrun/stats"
)

const emaN = 10

// Training statistics
type Stats struct {
	Epoch         int
	Loss          float64
	Accuracy      float64
	ValidLoss     float64
	ValidAccuracy float64
	Validated     bool
	ValidAvg      float64
	BestSince     int
	Elapsed       time.Duration
}

func StatsHeaders(validated bool) []string {
	h := []string{"loss", "accuracy"}
	if validated {
		h = append(h, "valid loss", "valid accuracy", "valid avg")
	}
	return h
}

func (s Stats) Format() []string {
	str := []string{fmt.Sprintf("%7.4f", s.Loss), fmt.Sprintf("%6.2f%%", s.Accuracy*100)}
	if s.Validated {
		str = append(str, fmt.Sprintf("%7.4f", s.ValidLoss), fmt.Sprintf("%6.2f%%", s.ValidAccuracy*100),
			fmt.Sprintf("%6.2f%%", s.ValidAvg*100))
	}
	return str
}

// Tester interface to evaluate the performance after each epoch, Test method returns true if training should stop.
type Tester interface {
	Test(net *Network, epoch int, loss, accuracy float64, start time.Time) bool
}

// Tester which evaluates the loss and accuracy on the validation set and updates the stats.
type TestBase struct {
	Valid    *Dataset
	Stats    []Stats
	Headers  []string
	Callback func(Stats)
}

// Create a new base class which implements the Tester interface. valid may be nil if there is no validation data.
func NewTestBase(conf Config, valid Data) *TestBase {
	t := &TestBase{Stats: []Stats{}}
	if valid != nil && valid.Len() > 0 {
		t.Valid = NewDataset(valid, conf.TestBatch, 0, nil)
		if conf.DebugLevel >= 1 {
			log.Debugf("init tester: samples=%d batch size=%d", t.Valid.Samples, t.Valid.BatchSize)
		}
	}
	t.Headers = StatsHeaders(t.Valid != nil)
	return t
}

// Test performance of the network, called from the Train function on completion of each epoch.
func (t *TestBase) Test(net *Network, epoch int, loss, accuracy float64, start time.Time) bool {
	s := Stats{Epoch: epoch, Loss: loss, Accuracy: accuracy, BestSince: -1}
	if t.Valid != nil {
		s.Validated = true
		s.ValidLoss, s.ValidAccuracy = net.Evaluate(t.Valid)
		// average validation error and number of epochs since it was lowest
		avgVal := 0.0
		if len(t.Stats) > 0 {
			avgVal = t.Stats[len(t.Stats)-1].ValidAvg
		}
		s.ValidAvg = stats.EMA(avgVal).Add(1-s.ValidAccuracy, emaN)
		for ep := len(t.Stats) - 1; ep >= 0; ep-- {
			if t.Stats[ep].ValidAvg > s.ValidAvg {
				s.BestSince = len(t.Stats) - ep - 1
				break
			}
		}
	}
	s.Elapsed = time.Since(start)
	t.Stats = append(t.Stats, s)
	if t.Callback != nil {
		t.Callback(s)
	}
	return epoch >= net.MaxEpoch
}

type testLogger struct {
	*TestBase
}

// Create a new tester which logs stats after each epoch. callback, if not nil, is called with the stats
// for each epoch.
func NewTestLogger(conf Config, valid Data, callback func(Stats)) Tester {
	t := testLogger{TestBase: NewTestBase(conf, valid)}
	t.Callback = callback
	return t
}

func (t testLogger) Test(net *Network, epoch int, loss, accuracy float64, start time.Time) bool {
	done := t.TestBase.Test(net, epoch, loss, accuracy, start)
	s := t.Stats[len(t.Stats)-1]
	if done || net.LogEvery == 0 || epoch%net.LogEvery == 0 {
		msg := fmt.Sprintf("epoch %3d:", epoch)
		for i, val := range s.Format() {
			msg += fmt.Sprintf("  %s =%s", t.Headers[i], val)
		}
		if s.BestSince >= 0 {
			msg += fmt.Sprintf(" [%d]", s.BestSince)
		}
		log.Println(msg)
	}
	if done {
		log.Printf("run time: %s", s.Elapsed.Round(10*time.Millisecond))
	}
	return done
}

// Train the network on the given training set by updating the weights. The context is checked between batches.
func Train(ctx context.Context, net *Network, dset *Dataset, test Tester) error {
	start := time.Now()
	for epoch := 1; epoch <= net.MaxEpoch; epoch++ {
		loss, accuracy, err := TrainEpoch(ctx, net, dset)
		if err != nil {
			return err
		}
		if test.Test(net, epoch, loss, accuracy, start) {
			break
		}
	}
	return nil
}

// Perform one training epoch on dataset, returns the mean loss and accuracy over the batches, measured prior to
// updating the weights for each batch.
func TrainEpoch(ctx context.Context, net *Network, dset *Dataset) (loss, accuracy float64, err error) {
	if net.Shuffle {
		dset.Shuffle()
	}
	var lossAvg, accAvg stats.Average
	var ema stats.EMA
	layers := net.ParamLayers()
	dset.NextEpoch()
	for batch := 0; batch < dset.Batches; batch++ {
		if err = ctx.Err(); err != nil {
			dset.Wait()
			return lossAvg.Mean, accAvg.Mean, err
		}
		x, y, yOneHot := dset.NextBatch()
		yPred, batchLoss, batchAcc := net.batchStats(x, y, yOneHot)
		lossAvg.AddWeighted(batchLoss, float64(len(y)))
		accAvg.AddWeighted(batchAcc, float64(len(y)))
		if log.IsDebug() {
			ema = stats.EMA(ema.Add(batchLoss, 100))
			if net.DebugLevel >= 2 || (batch+1)%100 == 0 {
				log.Debugf("batch %d/%d: loss %.4f avg %.4f", batch+1, dset.Batches, batchLoss, float64(ema))
			}
		}
		// get difference at output
		net.inputGrad = num.Resize(net.inputGrad, yPred.Dims()...)
		num.Copy(net.inputGrad, yPred)
		num.Axpy(-1, yOneHot, net.inputGrad)
		grad := net.inputGrad
		// back propagate gradient
		for i := len(net.Layers) - 1; i >= 0; i-- {
			grad = net.Layers[i].Bprop(grad)
			if net.DebugLevel >= 3 {
				log.Debugf("layer %d bprop output:\n%s", i, grad)
			}
		}
		net.opt.Update(layers, len(y))
	}
	if net.DebugLevel >= 1 {
		log.Debugf("trained %s samples", humanize.Comma(int64(dset.Samples)))
	}
	return lossAvg.Mean, accAvg.Mean, nil
}
