// Package metrics reads and writes the per-epoch results of a training run and aggregates them across
// configurations.
package metrics

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// EpochMetric holds the results for one completed epoch. The validation values are nil if the run had no
// validation data.
type EpochMetric struct {
	Epoch              int
	Loss               float64
	Accuracy           float64
	ValidationLoss     *float64
	ValidationAccuracy *float64
}

// Validated returns true if both validation values are set.
func (m EpochMetric) Validated() bool {
	return m.ValidationLoss != nil && m.ValidationAccuracy != nil
}

// Finite returns false if any of the values is NaN or infinite.
func (m EpochMetric) Finite() bool {
	for _, v := range []*float64{&m.Loss, &m.Accuracy, m.ValidationLoss, m.ValidationAccuracy} {
		if v != nil && !IsFinite(*v) {
			return false
		}
	}
	return true
}

// IsFinite returns false for NaN and infinite values.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Float returns a pointer to a copy of v.
func Float(v float64) *float64 { return &v }

// Record is the ordered set of epoch results for one run.
type Record struct {
	ConfigID string
	Epochs   []EpochMetric
}

// Last returns the final epoch, or false if the record is empty.
func (r Record) Last() (EpochMetric, bool) {
	if len(r.Epochs) == 0 {
		return EpochMetric{}, false
	}
	return r.Epochs[len(r.Epochs)-1], true
}

// Check verifies the epochs are numbered 1 to n. A shorter sequence which is otherwise valid returns an error
// wrapping ErrIncomplete.
func (r Record) Check(n int) error {
	for i, m := range r.Epochs {
		if m.Epoch != i+1 {
			return &FormatError{Msg: fmt.Sprintf("epoch %d at position %d, expected %d", m.Epoch, i, i+1)}
		}
	}
	switch {
	case len(r.Epochs) > n:
		return &FormatError{Msg: fmt.Sprintf("%d epochs recorded, expected %d", len(r.Epochs), n)}
	case len(r.Epochs) < n:
		return errors.Wrapf(ErrIncomplete, "%d of %d epochs", len(r.Epochs), n)
	}
	return nil
}

// Recorder accumulates the metrics for a run as each epoch completes.
type Recorder struct {
	rec Record
}

// NewRecorder returns an empty recorder for the given configuration, which may be blank.
func NewRecorder(configID string) *Recorder {
	return &Recorder{rec: Record{ConfigID: configID}}
}

// Add appends the metrics for the next epoch.
func (r *Recorder) Add(m EpochMetric) {
	r.rec.Epochs = append(r.rec.Epochs, m)
}

// Len returns the number of epochs recorded.
func (r *Recorder) Len() int { return len(r.rec.Epochs) }

// Record returns a copy of the metrics recorded so far.
func (r *Recorder) Record() Record {
	return Record{ConfigID: r.rec.ConfigID, Epochs: append([]EpochMetric{}, r.rec.Epochs...)}
}
