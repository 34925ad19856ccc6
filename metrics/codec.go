package metrics

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Field names used in the metrics text file.
const (
	epochKey     = "Epoch"
	lossKey      = "Loss"
	validLossKey = "Validation Loss"
	accKey       = "Accuracy"
	validAccKey  = "Validation Accuracy"
)

// FormatFloat writes the shortest representation which parses back to the same value.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Encode writes the record in text format with one block per epoch. The config id is not written.
func Encode(w io.Writer, rec Record) error {
	bw := bufio.NewWriter(w)
	for _, m := range rec.Epochs {
		fmt.Fprintf(bw, "%s %d\n", epochKey, m.Epoch)
		fmt.Fprintf(bw, "%s: %s\n", lossKey, FormatFloat(m.Loss))
		if m.ValidationLoss != nil {
			fmt.Fprintf(bw, "%s: %s\n", validLossKey, FormatFloat(*m.ValidationLoss))
		}
		fmt.Fprintf(bw, "%s: %s\n", accKey, FormatFloat(m.Accuracy))
		if m.ValidationAccuracy != nil {
			fmt.Fprintf(bw, "%s: %s\n", validAccKey, FormatFloat(*m.ValidationAccuracy))
		}
		bw.WriteString("\n")
	}
	return bw.Flush()
}

// block being parsed
type block struct {
	line   int
	metric EpochMetric
	seen   map[string]bool
}

// Decode parses a record written by Encode. The name is used in error messages.
func Decode(r io.Reader, name string) (Record, error) {
	var rec Record
	var cur *block
	finish := func() error {
		if cur == nil {
			return nil
		}
		for _, key := range []string{lossKey, accKey} {
			if !cur.seen[key] {
				return &FormatError{Path: name, Line: cur.line, Msg: fmt.Sprintf("epoch %d: missing %s", cur.metric.Epoch, key)}
			}
		}
		rec.Epochs = append(rec.Epochs, cur.metric)
		cur = nil
		return nil
	}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			if err := finish(); err != nil {
				return rec, err
			}
			continue
		}
		if strings.HasPrefix(line, epochKey+" ") {
			if err := finish(); err != nil {
				return rec, err
			}
			n, err := strconv.Atoi(strings.TrimSpace(line[len(epochKey)+1:]))
			if err != nil {
				return rec, &FormatError{Path: name, Line: lineNo, Msg: "invalid epoch number", Err: err}
			}
			cur = &block{line: lineNo, metric: EpochMetric{Epoch: n}, seen: map[string]bool{}}
			continue
		}
		i := strings.Index(line, ":")
		if i < 0 {
			return rec, &FormatError{Path: name, Line: lineNo, Msg: fmt.Sprintf("unrecognised line %q", line)}
		}
		key := line[:i]
		if cur == nil {
			return rec, &FormatError{Path: name, Line: lineNo, Msg: fmt.Sprintf("%s before Epoch", key)}
		}
		var dst **float64
		var val *float64
		switch key {
		case lossKey:
			val = &cur.metric.Loss
		case accKey:
			val = &cur.metric.Accuracy
		case validLossKey:
			dst = &cur.metric.ValidationLoss
		case validAccKey:
			dst = &cur.metric.ValidationAccuracy
		default:
			return rec, &FormatError{Path: name, Line: lineNo, Msg: fmt.Sprintf("unrecognised field %q", key)}
		}
		if cur.seen[key] {
			return rec, &FormatError{Path: name, Line: lineNo, Msg: fmt.Sprintf("duplicate %s", key)}
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(line[i+1:]), 64)
		if err != nil {
			return rec, &FormatError{Path: name, Line: lineNo, Msg: "invalid value for " + key, Err: err}
		}
		cur.seen[key] = true
		if dst != nil {
			*dst = Float(v)
		} else {
			*val = v
		}
	}
	if err := sc.Err(); err != nil {
		return rec, &IOError{Op: "read", Path: name, Err: err}
	}
	return rec, finish()
}

// Read loads a metrics file.
func Read(path string) (Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return Record{}, &IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()
	return Decode(f, path)
}

// Write saves the record to path. The data is written to a temporary file in the same directory which is
// renamed over path once complete, so readers never see a partial file.
func Write(path string, rec Record) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return &IOError{Op: "create", Path: path, Err: err}
	}
	tmpName := f.Name()
	defer func() {
		if err == nil {
			return
		}
		var errs error = err
		if cerr := f.Close(); cerr != nil && !isClosed(cerr) {
			errs = multierror.Append(errs, cerr)
		}
		if rerr := os.Remove(tmpName); rerr != nil && !os.IsNotExist(rerr) {
			errs = multierror.Append(errs, rerr)
		}
		err = &IOError{Op: "write", Path: path, Err: errs}
	}()
	if err = Encode(f, rec); err != nil {
		return err
	}
	if err = f.Chmod(0644); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func isClosed(err error) bool {
	return errors.Is(err, os.ErrClosed)
}
