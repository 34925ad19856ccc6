package metrics

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrIncomplete is returned by Record.Check when a run stopped before the configured number of epochs.
var ErrIncomplete = errors.New("incomplete run")

// ErrEmptyGroup is the cause of an AggregationError.
var ErrEmptyGroup = errors.New("no epoch metrics")

// FormatError reports a malformed metrics or CSV file.
type FormatError struct {
	Path string
	Line int
	Msg  string
	Err  error
}

func (e *FormatError) Error() string {
	s := e.Msg
	if e.Line > 0 {
		s = fmt.Sprintf("line %d: %s", e.Line, s)
	}
	if e.Path != "" {
		s = e.Path + ": " + s
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *FormatError) Unwrap() error { return e.Err }

func (e *FormatError) Cause() error { return e.Err }

// IOError reports a failure reading or writing a file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Cause() error { return e.Err }

// AggregationError is returned when a configuration has no epoch metrics to aggregate.
type AggregationError struct {
	ConfigID string
	Err      error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregate config %q: %v", e.ConfigID, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }

func (e *AggregationError) Cause() error { return e.Err }
