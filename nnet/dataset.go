package nnet

import (
	"math/rand"
	"strconv"
	"sync"

	"github.com/jnb666/mnistrun/num"
)

// Data interface type represents the raw data for a training or test set
type Data interface {
	Len() int
	Classes() []string
	Shape() []int
	Label(index []int, label []int32)
	Input(index []int, buf []float32)
}

// Dataset type encapsulates a set of training, test or validation data.
// The next batch is loaded in the background while the current one is being processed.
type Dataset struct {
	Data
	Samples   int
	BatchSize int
	Batches   int
	x, y1H    [2]*num.Array
	y         [2][]int32
	indexes   []int
	buf       int
	batch     int
	rng       *rand.Rand
	sync.WaitGroup
}

// Create a new Dataset struct, allocate array buffers and set the batch size and maxSamples
func NewDataset(data Data, batchSize, maxSamples int, rng *rand.Rand) *Dataset {
	d := &Dataset{Data: data, Samples: data.Len(), rng: rng}
	if maxSamples > 0 && d.Samples > maxSamples {
		d.Samples = maxSamples
	}
	if batchSize <= 0 || batchSize > d.Samples {
		d.BatchSize = d.Samples
	} else {
		d.BatchSize = batchSize
	}
	if d.BatchSize > 0 {
		d.Batches = d.Samples / d.BatchSize
		if d.Samples%d.BatchSize != 0 {
			d.Batches++
		}
	}
	shape := append([]int{d.BatchSize}, data.Shape()...)
	for i := range d.x {
		d.x[i] = num.NewArray(shape...)
		d.y[i] = make([]int32, d.BatchSize)
		d.y1H[i] = num.NewArray(d.BatchSize, len(data.Classes()))
	}
	d.indexes = make([]int, d.Samples)
	for i := range d.indexes {
		d.indexes[i] = i
	}
	return d
}

// kick off load of next batch of data in background
func (d *Dataset) loadBatch() {
	start := d.batch * d.BatchSize
	end := start + d.BatchSize
	if end > d.Samples {
		end = d.Samples
	}
	index, buf := d.indexes[start:end], d.buf
	d.Add(1)
	go func() {
		defer d.Done()
		d.Input(index, d.x[buf].Data())
		d.Label(index, d.y[buf])
	}()
}

// Get next batch of data. The returned arrays are only valid until the following call.
func (d *Dataset) NextBatch() (x *num.Array, y []int32, yOneHot *num.Array) {
	d.Wait()
	n := d.BatchSize
	if rem := d.Samples - d.batch*d.BatchSize; rem < n {
		n = rem
	}
	shape := append([]int{n}, d.Shape()...)
	x = num.Resize(d.x[d.buf], shape...)
	y = d.y[d.buf][:n]
	yOneHot = num.Resize(d.y1H[d.buf], n, len(d.Classes()))
	num.Onehot(y, yOneHot, len(d.Classes()))
	d.batch++
	d.buf = (d.buf + 1) % 2
	if d.batch < d.Batches {
		d.loadBatch()
	}
	return
}

// Called at start of each epoch
func (d *Dataset) NextEpoch() {
	d.Wait()
	d.batch = 0
	if d.Batches > 0 {
		d.loadBatch()
	}
}

// Shuffle the data set
func (d *Dataset) Shuffle() {
	d.Wait()
	d.indexes = d.rng.Perm(d.Data.Len())[:d.Samples]
}

type data struct {
	Class  []string
	Dims   []int
	Labels []int32
	Inputs []float32
}

// NewData function creates a new in memory data set which implements the Data interface
func NewData(nclasses int, shape []int, labels []int32, inputs []float32) Data {
	classes := make([]string, nclasses)
	for i := range classes {
		classes[i] = strconv.Itoa(i)
	}
	return data{Class: classes, Dims: shape, Labels: labels, Inputs: inputs}
}

func (d data) Len() int { return len(d.Labels) }

func (d data) Classes() []string { return d.Class }

func (d data) Shape() []int { return d.Dims }

func (d data) Label(index []int, label []int32) {
	for i, ix := range index {
		label[i] = d.Labels[ix]
	}
}

func (d data) Input(index []int, buf []float32) {
	nfeat := num.Prod(d.Dims)
	for i, ix := range index {
		copy(buf[i*nfeat:], d.Inputs[ix*nfeat:(ix+1)*nfeat])
	}
}
