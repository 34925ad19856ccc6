package metrics

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// Header is the column list shared by the per-epoch and aggregate CSV files.
var Header = []string{"config_id", "Epoch", "Loss", "Validation Loss", "Accuracy", "Validation Accuracy"}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return FormatFloat(*v)
}

func (r Row) csvRecord() []string {
	return []string{
		r.ConfigID,
		strconv.Itoa(r.Epoch),
		FormatFloat(r.Loss),
		optFloat(r.ValidationLoss),
		FormatFloat(r.Accuracy),
		optFloat(r.ValidationAccuracy),
	}
}

// WriteEpochCSV writes one row for every epoch of each record.
func WriteEpochCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	for _, rec := range records {
		for _, m := range rec.Epochs {
			if err := cw.Write(RowFromMetric(rec.ConfigID, m).csvRecord()); err != nil {
				return errors.Wrap(err, "writing csv")
			}
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "writing csv")
}

// WriteRowsCSV writes the aggregate rows.
func WriteRowsCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	for _, r := range rows {
		if err := cw.Write(r.csvRecord()); err != nil {
			return errors.Wrap(err, "writing csv")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "writing csv")
}

// ReadEpochCSV reads a per-epoch CSV file, grouping the rows into one record per config in order of first
// appearance. The name is used in error messages.
func ReadEpochCSV(r io.Reader, name string) ([]Record, error) {
	rows, err := ReadRowsCSV(r, name)
	if err != nil {
		return nil, err
	}
	var records []Record
	index := make(map[string]int)
	for _, row := range rows {
		i, ok := index[row.ConfigID]
		if !ok {
			i = len(records)
			index[row.ConfigID] = i
			records = append(records, Record{ConfigID: row.ConfigID})
		}
		records[i].Epochs = append(records[i].Epochs, EpochMetric{
			Epoch:              row.Epoch,
			Loss:               row.Loss,
			ValidationLoss:     row.ValidationLoss,
			Accuracy:           row.Accuracy,
			ValidationAccuracy: row.ValidationAccuracy,
		})
	}
	return records, nil
}

// ReadRowsCSV reads the rows of either CSV format.
func ReadRowsCSV(r io.Reader, name string) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	head, err := cr.Read()
	if err == io.EOF {
		return nil, &FormatError{Path: name, Line: 1, Msg: "missing header"}
	}
	if err != nil {
		return nil, &FormatError{Path: name, Line: 1, Msg: "invalid header", Err: err}
	}
	for i, col := range Header {
		if head[i] != col {
			return nil, &FormatError{Path: name, Line: 1, Msg: "unexpected column " + strconv.Quote(head[i])}
		}
	}
	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &FormatError{Path: name, Line: line, Msg: "invalid row", Err: err}
		}
		row, err := parseRow(rec)
		if err != nil {
			return nil, &FormatError{Path: name, Line: line, Msg: "invalid row", Err: err}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(rec []string) (row Row, err error) {
	row.ConfigID = rec[0]
	if row.Epoch, err = strconv.Atoi(rec[1]); err != nil {
		return row, errors.Wrap(err, "Epoch")
	}
	if row.Loss, err = strconv.ParseFloat(rec[2], 64); err != nil {
		return row, errors.Wrap(err, "Loss")
	}
	if row.ValidationLoss, err = parseOpt(rec[3]); err != nil {
		return row, errors.Wrap(err, "Validation Loss")
	}
	if row.Accuracy, err = strconv.ParseFloat(rec[4], 64); err != nil {
		return row, errors.Wrap(err, "Accuracy")
	}
	if row.ValidationAccuracy, err = parseOpt(rec[5]); err != nil {
		return row, errors.Wrap(err, "Validation Accuracy")
	}
	return row, nil
}

func parseOpt(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
