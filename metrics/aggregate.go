package metrics

// Row is the final epoch summary for one configuration.
type Row struct {
	ConfigID           string
	Epoch              int
	Loss               float64
	ValidationLoss     *float64
	Accuracy           float64
	ValidationAccuracy *float64
}

// RowFromMetric returns a row for the given config and epoch.
func RowFromMetric(configID string, m EpochMetric) Row {
	return Row{
		ConfigID:           configID,
		Epoch:              m.Epoch,
		Loss:               m.Loss,
		ValidationLoss:     m.ValidationLoss,
		Accuracy:           m.Accuracy,
		ValidationAccuracy: m.ValidationAccuracy,
	}
}

// Aggregate groups the records by ConfigID in order of first appearance and returns one row per group taken
// from the metric with the highest epoch number. Where epochs tie the later one is used. An empty input gives
// an empty result, a group with no metrics gives an AggregationError.
func Aggregate(records []Record) ([]Row, error) {
	rows := []Row{}
	index := make(map[string]int)
	found := []bool{}
	for _, rec := range records {
		i, ok := index[rec.ConfigID]
		if !ok {
			i = len(rows)
			index[rec.ConfigID] = i
			rows = append(rows, Row{ConfigID: rec.ConfigID})
			found = append(found, false)
		}
		for _, m := range rec.Epochs {
			if !found[i] || m.Epoch >= rows[i].Epoch {
				rows[i] = RowFromMetric(rec.ConfigID, m)
				found[i] = true
			}
		}
	}
	for i, ok := range found {
		if !ok {
			return nil, &AggregationError{ConfigID: rows[i].ConfigID, Err: ErrEmptyGroup}
		}
	}
	return rows, nil
}
