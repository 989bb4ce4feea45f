// Package report renders model summaries as images.
package report

import (
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/scigo-studio/pkg/errors"
)

var barColor = color.RGBA{R: 0x3b, G: 0x75, B: 0xaf, A: 0xff}

// ImportanceChart writes a PNG bar chart of feature importances, one bar per
// name in the given order.
func ImportanceChart(w io.Writer, title string, names []string, values []float64) error {
	if len(names) == 0 {
		return errors.WithStack(errors.ErrEmptyData)
	}
	if len(names) != len(values) {
		return errors.NewDimensionError("report.ImportanceChart", len(names), len(values), 0)
	}

	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "Importance"
	p.Y.Min = 0

	bars, err := plotter.NewBarChart(plotter.Values(values), vg.Points(20))
	if err != nil {
		return errors.Wrap(err, "build bar chart")
	}
	bars.Color = barColor
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalX(names...)

	width := vg.Length(len(names)) * 0.6 * vg.Inch
	if width < 4*vg.Inch {
		width = 4 * vg.Inch
	}
	wt, err := p.WriterTo(width, 3*vg.Inch, "png")
	if err != nil {
		return errors.Wrap(err, "render chart")
	}
	if _, err := wt.WriteTo(w); err != nil {
		return errors.Wrap(err, "write chart")
	}
	return nil
}
