// Package plots draws charts of the training metrics using gonum plot.
package plots

import (
	"bytes"
	"io"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/jnb666/mnistrun/log"
	"github.com/jnb666/mnistrun/metrics"
)

// Default image size for saved plots.
var (
	Width  = 10 * vg.Inch
	Height = 6 * vg.Inch
)

func newPlot(title, xlabel, ylabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = ylabel
	p.Legend.Top = true
	p.Add(plotter.NewGrid())
	return p
}

// Accuracy returns a bar chart of the final accuracy for each configuration.
func Accuracy(rows []metrics.Row) (*plot.Plot, error) {
	p := newPlot("Final Accuracy per Configuration", "Configuration ID", "Final Accuracy")
	if len(rows) == 0 {
		return p, nil
	}
	values := make(plotter.Values, len(rows))
	names := make([]string, len(rows))
	for i, r := range rows {
		names[i] = r.ConfigID
		values[i] = r.Accuracy
		if !metrics.IsFinite(r.Accuracy) {
			log.Warnf("config %s has non-finite accuracy %v", r.ConfigID, r.Accuracy)
			values[i] = 0
		}
	}
	bars, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return nil, errors.Wrap(err, "creating bar chart")
	}
	bars.LineStyle.Width = 0
	bars.Color = plotutil.Color(0)
	p.Add(bars)
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.Y.Min = 0
	return p, nil
}

// Loss returns a plot of the training and validation loss against epoch with one pair of lines per record.
func Loss(records []metrics.Record) (*plot.Plot, error) {
	p := newPlot("Training and Validation Loss Over Epochs", "Epoch", "Loss")
	for i, rec := range records {
		var train, valid plotter.XYs
		for _, m := range rec.Epochs {
			if metrics.IsFinite(m.Loss) {
				train = append(train, plotter.XY{X: float64(m.Epoch), Y: m.Loss})
			}
			if m.ValidationLoss != nil && metrics.IsFinite(*m.ValidationLoss) {
				valid = append(valid, plotter.XY{X: float64(m.Epoch), Y: *m.ValidationLoss})
			}
		}
		name := rec.ConfigID
		if name != "" {
			name += " "
		}
		if err := addLine(p, train, i, nil, name+"Training Loss"); err != nil {
			return nil, err
		}
		if err := addLine(p, valid, i, []vg.Length{vg.Points(6), vg.Points(3)}, name+"Validation Loss"); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func addLine(p *plot.Plot, pts plotter.XYs, ix int, dashes []vg.Length, label string) error {
	if len(pts) == 0 {
		return nil
	}
	l, err := plotter.NewLine(pts)
	if err != nil {
		return errors.Wrap(err, "creating line plot")
	}
	l.Width = 2
	l.Color = plotutil.Color(ix)
	l.Dashes = dashes
	p.Add(l)
	p.Legend.Add(label, l)
	return nil
}

// FinalAccuracy saves the bar chart of final accuracy to path. The image format is taken from the extension.
func FinalAccuracy(rows []metrics.Row, path string) error {
	p, err := Accuracy(rows)
	if err != nil {
		return err
	}
	return save(p, path)
}

// LossCurves saves the loss plot to path.
func LossCurves(records []metrics.Record, path string) error {
	p, err := Loss(records)
	if err != nil {
		return err
	}
	return save(p, path)
}

func save(p *plot.Plot, path string) error {
	if err := p.Save(Width, Height, path); err != nil {
		return errors.Wrapf(err, "saving plot to %s", path)
	}
	log.Printf("saving plot to: %s", path)
	return nil
}

// WriteSVG renders the plot in SVG format with the given size in pixels.
func WriteSVG(w io.Writer, p *plot.Plot, width, height int) error {
	writer, err := p.WriterTo(vg.Length(width)*vg.Inch/96, vg.Length(height)*vg.Inch/96, "svg")
	if err != nil {
		return errors.Wrap(err, "rendering plot")
	}
	var buf bytes.Buffer
	if _, err = writer.WriteTo(&buf); err != nil {
		return errors.Wrap(err, "rendering plot")
	}
	_, err = buf.WriteTo(w)
	return err
}
