// Package stats has running summary statistics used while training and aggregating results.
package stats

import (
	"fmt"
	"math"
)

// Calc exponentional moving average
type EMA float64

func (e EMA) Add(val, n float64) float64 {
	if e == 0 {
		return val
	}
	k := 2.0 / (n + 1.0)
	return val*k + float64(e)*(1-k)
}

// Running mean and stddev as per http://www.johndcook.com/blog/standard_deviation/
// extended to weighted samples (West 1979). Count is the total weight.
type Average struct {
	Count, Mean float64
	Var, StdDev float64
}

// Add a single sample.
func (s *Average) Add(x float64) {
	s.AddWeighted(x, 1)
}

// AddWeighted adds a sample which counts as w observations, e.g. the mean loss over a batch of w images.
func (s *Average) AddWeighted(x, w float64) {
	if w <= 0 {
		return
	}
	s.Count += w
	delta := x - s.Mean
	s.Mean += delta * w / s.Count
	s.Var += w * delta * (x - s.Mean)
	if s.Count > 1 {
		s.StdDev = math.Sqrt(s.Var / (s.Count - 1))
	}
}

func (s *Average) String() string {
	if s.Mean > 10 {
		if s.StdDev < 0.1 {
			return fmt.Sprintf("%.1f", s.Mean)
		}
		return fmt.Sprintf("%.1f±%.1f", s.Mean, s.StdDev)
	}
	if s.StdDev < 0.0001 {
		return fmt.Sprintf("%.4f", s.Mean)
	}
	return fmt.Sprintf("%.4f±%.4f", s.Mean, s.StdDev)
}
