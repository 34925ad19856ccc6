package metrics

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(id string, n int, valid bool) Record {
	rec := Record{ConfigID: id}
	for i := 1; i <= n; i++ {
		m := EpochMetric{Epoch: i, Loss: 1 / float64(i), Accuracy: 0.9 + float64(i)/100}
		if valid {
			m.ValidationLoss = Float(1.5 / float64(i))
			m.ValidationAccuracy = Float(0.85 + float64(i)/100)
		}
		rec.Epochs = append(rec.Epochs, m)
	}
	return rec
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, rec := range []Record{
		sampleRecord("", 3, true),
		sampleRecord("", 2, false),
		{Epochs: []EpochMetric{{Epoch: 1, Loss: math.NaN(), Accuracy: math.Inf(1), ValidationLoss: Float(math.Inf(-1))}}},
		{},
	} {
		path := filepath.Join(dir, "model_output.txt")
		require.NoError(t, Write(path, rec))
		got, err := Read(path)
		require.NoError(t, err)
		require.Len(t, got.Epochs, len(rec.Epochs))
		for i, m := range rec.Epochs {
			g := got.Epochs[i]
			assert.Equal(t, m.Epoch, g.Epoch)
			assert.Equal(t, FormatFloat(m.Loss), FormatFloat(g.Loss))
			assert.Equal(t, FormatFloat(m.Accuracy), FormatFloat(g.Accuracy))
			assert.Equal(t, optFloat(m.ValidationLoss), optFloat(g.ValidationLoss))
			assert.Equal(t, optFloat(m.ValidationAccuracy), optFloat(g.ValidationAccuracy))
		}
	}
	// no temporary files left behind
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestEncodeFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Record{Epochs: []EpochMetric{
		{Epoch: 1, Loss: 0.25, Accuracy: 0.5, ValidationLoss: Float(0.125), ValidationAccuracy: Float(0.75)},
		{Epoch: 2, Loss: 0.1, Accuracy: 0.9},
	}}))
	expect := "Epoch 1\nLoss: 0.25\nValidation Loss: 0.125\nAccuracy: 0.5\nValidation Accuracy: 0.75\n\n" +
		"Epoch 2\nLoss: 0.1\nAccuracy: 0.9\n\n"
	assert.Equal(t, expect, buf.String())
}

func TestDecodePythonOutput(t *testing.T) {
	in := "Epoch 1\nLoss: 0.2883145809173584\nValidation Loss: nan\nAccuracy: 0.9168999791145325\n" +
		"Validation Accuracy: inf\n\nEpoch 2\nLoss: 0.1\nAccuracy: 0.97\n"
	rec, err := Decode(strings.NewReader(in), "test")
	require.NoError(t, err)
	require.Len(t, rec.Epochs, 2)
	assert.True(t, math.IsNaN(*rec.Epochs[0].ValidationLoss))
	assert.True(t, math.IsInf(*rec.Epochs[0].ValidationAccuracy, 1))
	assert.False(t, rec.Epochs[0].Finite())
	assert.True(t, rec.Epochs[1].Finite())
	assert.False(t, rec.Epochs[1].Validated())
	assert.Equal(t, 0.97, rec.Epochs[1].Accuracy)
}

func TestDecodeErrors(t *testing.T) {
	for name, in := range map[string]string{
		"missing loss":     "Epoch 1\nAccuracy: 0.5\n\n",
		"missing accuracy": "Epoch 1\nLoss: 0.5\n",
		"bad value":        "Epoch 1\nLoss: abc\nAccuracy: 0.5\n",
		"bad epoch":        "Epoch one\nLoss: 1\nAccuracy: 0.5\n",
		"before epoch":     "Loss: 1\nEpoch 1\n",
		"duplicate":        "Epoch 1\nLoss: 1\nLoss: 2\nAccuracy: 0.5\n",
		"unknown field":    "Epoch 1\nLoss: 1\nPrecision: 2\nAccuracy: 0.5\n",
		"unknown line":     "Epoch 1\nLoss 1\n",
	} {
		_, err := Decode(strings.NewReader(in), "test.txt")
		var ferr *FormatError
		if assert.True(t, errors.As(err, &ferr), name) {
			assert.Equal(t, "test.txt", ferr.Path)
			assert.Greater(t, ferr.Line, 0)
		}
	}
}

func TestMissingLoss(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad_output.txt")
	require.NoError(t, os.WriteFile(path, []byte("Epoch 1\nValidation Loss: 0.5\nAccuracy: 0.5\n"), 0644))
	_, err := Read(path)
	var ferr *FormatError
	require.True(t, errors.As(err, &ferr))
	assert.Contains(t, err.Error(), "missing Loss")
}

func TestIOErrors(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.txt"))
	var ioerr *IOError
	require.True(t, errors.As(err, &ioerr))
	assert.Equal(t, "open", ioerr.Op)
	assert.True(t, os.IsNotExist(errors.Cause(err)))

	err = Write(filepath.Join(t.TempDir(), "nodir", "x.txt"), sampleRecord("", 1, false))
	require.True(t, errors.As(err, &ioerr))
}

func TestCheck(t *testing.T) {
	rec := sampleRecord("", 3, true)
	assert.NoError(t, rec.Check(3))
	err := rec.Check(5)
	assert.True(t, errors.Is(err, ErrIncomplete))
	var ferr *FormatError
	assert.True(t, errors.As(rec.Check(2), &ferr))
	rec.Epochs[1].Epoch = 3
	assert.True(t, errors.As(rec.Check(3), &ferr))
}

func TestRecorder(t *testing.T) {
	r := NewRecorder("cfg")
	r.Add(EpochMetric{Epoch: 1, Loss: 1})
	rec := r.Record()
	r.Add(EpochMetric{Epoch: 2, Loss: 0.5})
	assert.Len(t, rec.Epochs, 1)
	assert.Equal(t, 2, r.Len())
	last, ok := r.Record().Last()
	assert.True(t, ok)
	assert.Equal(t, 2, last.Epoch)
	assert.Equal(t, "cfg", rec.ConfigID)
}

func TestAggregate(t *testing.T) {
	rows, err := Aggregate(nil)
	require.NoError(t, err)
	assert.Empty(t, rows)

	records := []Record{
		sampleRecord("b", 3, true),
		sampleRecord("a", 2, false),
		sampleRecord("c", 1, true),
	}
	rows, err = Aggregate(records)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, rec := range records {
		last, _ := rec.Last()
		assert.Equal(t, RowFromMetric(rec.ConfigID, last), rows[i])
	}
}

func TestAggregateGroups(t *testing.T) {
	// a config split over two records with the highest epoch first, and a tie on epoch 2
	records := []Record{
		{ConfigID: "x", Epochs: []EpochMetric{{Epoch: 3, Loss: 3}}},
		{ConfigID: "y", Epochs: []EpochMetric{{Epoch: 2, Loss: 1}, {Epoch: 2, Loss: 2}}},
		{ConfigID: "x", Epochs: []EpochMetric{{Epoch: 1, Loss: 1}}},
	}
	rows, err := Aggregate(records)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "x", rows[0].ConfigID)
	assert.Equal(t, 3, rows[0].Epoch)
	assert.Equal(t, 2.0, rows[1].Loss)

	_, err = Aggregate([]Record{{ConfigID: "empty"}})
	var aerr *AggregationError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, "empty", aerr.ConfigID)
	assert.True(t, errors.Is(err, ErrEmptyGroup))
}

func TestCSV(t *testing.T) {
	records := []Record{sampleRecord("cfg1", 2, true), sampleRecord("cfg2", 3, false)}
	var buf bytes.Buffer
	require.NoError(t, WriteEpochCSV(&buf, records))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "config_id,Epoch,Loss,Validation Loss,Accuracy,Validation Accuracy", lines[0])
	assert.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[3], "cfg2,1,1,,"), lines[3])
	assert.True(t, strings.HasSuffix(lines[3], ","), lines[3])

	got, err := ReadEpochCSV(&buf, "epochs.csv")
	require.NoError(t, err)
	assert.Equal(t, records, got)

	rows, err := Aggregate(got)
	require.NoError(t, err)
	buf.Reset()
	require.NoError(t, WriteRowsCSV(&buf, rows))
	rows2, err := ReadRowsCSV(&buf, "agg.csv")
	require.NoError(t, err)
	assert.Equal(t, rows, rows2)
}

func TestCSVErrors(t *testing.T) {
	var ferr *FormatError
	_, err := ReadEpochCSV(strings.NewReader(""), "empty.csv")
	assert.True(t, errors.As(err, &ferr))
	_, err = ReadEpochCSV(strings.NewReader("a,b,c,d,e,f\n"), "head.csv")
	assert.True(t, errors.As(err, &ferr))
	_, err = ReadEpochCSV(strings.NewReader(strings.Join(Header, ",")+"\ncfg,x,1,,1,\n"), "val.csv")
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, 2, ferr.Line)
	_, err = ReadEpochCSV(strings.NewReader(strings.Join(Header, ",")+"\ncfg,1,1\n"), "short.csv")
	assert.True(t, errors.As(err, &ferr))
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	var inputs []Input
	for _, id := range []string{"c", "a", "b"} {
		path := filepath.Join(dir, id+Suffix)
		require.NoError(t, Write(path, sampleRecord("", 2, true)))
		in, err := ParseInput(id + "=" + path)
		require.NoError(t, err)
		inputs = append(inputs, in)
	}
	records, err := LoadAll(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "c", records[0].ConfigID)
	assert.Equal(t, "b", records[2].ConfigID)

	records, err = LoadDir(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "a", records[0].ConfigID)

	inputs = append(inputs, Input{ConfigID: "x", Path: filepath.Join(dir, "missing.txt")})
	_, err = LoadAll(context.Background(), inputs)
	var ioerr *IOError
	assert.True(t, errors.As(err, &ioerr))

	in, err := ParseInput("/tmp/run1" + Suffix)
	require.NoError(t, err)
	assert.Equal(t, "run1", in.ConfigID)
	_, err = ParseInput("=path")
	assert.Error(t, err)
}

func TestLoadDirPatternChars(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "runs[1]*")
	require.NoError(t, os.Mkdir(dir, 0755))
	require.NoError(t, Write(filepath.Join(dir, "b"+Suffix), sampleRecord("", 1, false)))
	require.NoError(t, Write(filepath.Join(dir, "a"+Suffix), sampleRecord("", 2, false)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	records, err := LoadDir(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].ConfigID)
	assert.Equal(t, "b", records[1].ConfigID)

	_, err = LoadDir(context.Background(), filepath.Join(dir, "missing"))
	var ioerr *IOError
	assert.True(t, errors.As(err, &ioerr))
}
