package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAverage(t *testing.T) {
	var s Average
	for _, x := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		s.Add(x)
	}
	assert.Equal(t, 8.0, s.Count)
	assert.InDelta(t, 5.0, s.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(32.0/7.0), s.StdDev, 1e-12)
}

func TestAverageWeighted(t *testing.T) {
	var a, b Average
	// a batch mean of 2 over 3 samples then 5 over 1 sample
	a.AddWeighted(2, 3)
	a.AddWeighted(5, 1)
	for _, x := range []float64{2, 2, 2, 5} {
		b.Add(x)
	}
	assert.InDelta(t, b.Mean, a.Mean, 1e-12)
	assert.InDelta(t, 2.75, a.Mean, 1e-12)
	a.AddWeighted(100, 0)
	assert.Equal(t, 4.0, a.Count)
}

func TestEMA(t *testing.T) {
	var e EMA
	v := e.Add(1, 10)
	assert.Equal(t, 1.0, v)
	v = EMA(v).Add(2, 1)
	assert.Equal(t, 2.0, v)
}
