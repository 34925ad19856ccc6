// Package train runs a training job: it loads the data, fits a model, saves the model and writes the per-epoch
// metrics alongside it.
package train

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/jnb666/mnistrun/log"
	"github.com/jnb666/mnistrun/metrics"
	"github.com/jnb666/mnistrun/nnet"
)

// ErrEmptyDataset is the cause of a DataError when there are no training samples.
var ErrEmptyDataset = errors.New("empty training set")

// Hyperparameters for one run. They are passed by value so cannot change once the run has started.
type Hyperparameters struct {
	Epochs     int
	BatchSize  int
	OutputPath string
}

// Validate checks that the settings are usable.
func (hp Hyperparameters) Validate() error {
	switch {
	case hp.Epochs <= 0:
		return errors.Errorf("epochs must be positive, got %d", hp.Epochs)
	case hp.BatchSize <= 0:
		return errors.Errorf("batch size must be positive, got %d", hp.BatchSize)
	case hp.OutputPath == "":
		return errors.New("output path is required")
	}
	return nil
}

// Source loads the training and validation data. valid may be nil.
type Source interface {
	Load() (train, valid nnet.Data, err error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func() (train, valid nnet.Data, err error)

func (f SourceFunc) Load() (train, valid nnet.Data, err error) { return f() }

// ModelBackend builds, trains and saves a classifier.
type ModelBackend interface {
	Build(classes []string, inShape []int) error
	Fit(ctx context.Context, train, valid nnet.Data, epochs, batchSize int, epochDone func(nnet.Stats)) error
	Save(path string) (int64, error)
}

// Artifact describes the saved model.
type Artifact struct {
	Path string
	Size int64
}

func (a Artifact) String() string {
	return fmt.Sprintf("%s (%s)", a.Path, humanize.Bytes(uint64(a.Size)))
}

// DataError is returned if the data set could not be loaded or is empty.
type DataError struct {
	Err error
}

func (e *DataError) Error() string { return "loading data: " + e.Err.Error() }

func (e *DataError) Unwrap() error { return e.Err }

func (e *DataError) Cause() error { return e.Err }

// MetricsPath returns the metrics file name for a model path: the extension is replaced by _output.txt.
func MetricsPath(outputPath string) string {
	return strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + metrics.Suffix
}

// Runner executes training runs using the given backend.
type Runner struct {
	Backend  ModelBackend
	ConfigID string
}

// NewRunner returns a runner which uses backend for the model.
func NewRunner(backend ModelBackend) *Runner {
	return &Runner{Backend: backend}
}

// Run loads the data, trains for hp.Epochs epochs, then saves the model to hp.OutputPath and the metrics to
// MetricsPath(hp.OutputPath). If the context is cancelled the epochs completed so far are returned with the
// context error and nothing is written.
func (r *Runner) Run(ctx context.Context, hp Hyperparameters, src Source) (Artifact, metrics.Record, error) {
	rec := metrics.NewRecorder(r.ConfigID)
	if err := hp.Validate(); err != nil {
		return Artifact{}, rec.Record(), err
	}
	trainData, validData, err := src.Load()
	if err != nil {
		return Artifact{}, rec.Record(), &DataError{Err: err}
	}
	if trainData == nil || trainData.Len() == 0 {
		return Artifact{}, rec.Record(), &DataError{Err: ErrEmptyDataset}
	}
	if validData != nil && validData.Len() == 0 {
		validData = nil
	}
	if validData != nil {
		log.Printf("loaded %s training and %s validation samples", humanize.Comma(int64(trainData.Len())),
			humanize.Comma(int64(validData.Len())))
	} else {
		log.Printf("loaded %s training samples", humanize.Comma(int64(trainData.Len())))
	}
	if err = r.Backend.Build(trainData.Classes(), trainData.Shape()); err != nil {
		return Artifact{}, rec.Record(), errors.Wrap(err, "building model")
	}
	start := time.Now()
	err = r.Backend.Fit(ctx, trainData, validData, hp.Epochs, hp.BatchSize, func(s nnet.Stats) {
		rec.Add(EpochMetric(s))
	})
	if err != nil {
		return Artifact{}, rec.Record(), errors.Wrapf(err, "training stopped after %d epochs", rec.Len())
	}
	log.Debugf("trained %d epochs in %s", rec.Len(), time.Since(start).Round(time.Millisecond))
	result := rec.Record()
	if err = result.Check(hp.Epochs); err != nil {
		log.Logger().Warn("training finished early", "config", r.ConfigID, "epochs", rec.Len(),
			"expected", hp.Epochs, "error", err)
	}
	if last, ok := result.Last(); ok && !last.Finite() {
		log.Logger().Warn("non-finite metrics", "config", r.ConfigID, "epoch", last.Epoch, "loss", last.Loss)
	}

	art := Artifact{Path: hp.OutputPath}
	if art.Size, err = r.Backend.Save(hp.OutputPath); err != nil {
		return art, rec.Record(), &metrics.IOError{Op: "save model", Path: hp.OutputPath, Err: err}
	}
	metricsPath := MetricsPath(hp.OutputPath)
	if err = metrics.Write(metricsPath, result); err != nil {
		return art, result, err
	}
	log.Printf("saved model to %s and metrics to %s", art, metricsPath)
	return art, result, nil
}

// EpochMetric converts the training stats for an epoch.
func EpochMetric(s nnet.Stats) metrics.EpochMetric {
	m := metrics.EpochMetric{Epoch: s.Epoch, Loss: s.Loss, Accuracy: s.Accuracy}
	if s.Validated {
		m.ValidationLoss = metrics.Float(s.ValidLoss)
		m.ValidationAccuracy = metrics.Float(s.ValidAccuracy)
	}
	return m
}
