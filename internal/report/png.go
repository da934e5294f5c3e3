package report

import (
	"fmt"
	"image/color"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/glucose.report/internal/fsutil"
	"github.com/banshee-data/glucose.report/internal/security"
)

// PNGFile names the predicted-vs-actual plot for a model.
func PNGFile(name string) string {
	return security.SanitizeFilename(name) + "_predicted_vs_actual.png"
}

// EvaluationPlot builds a predicted-vs-actual scatter with the identity line.
func EvaluationPlot(e Evaluation) (*plot.Plot, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	lo, hi := e.bounds()

	pts := make(plotter.XYs, len(e.Predicted))
	for i := range e.Predicted {
		pts[i] = plotter.XY{X: e.Actual[i], Y: e.Predicted[i]}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s (MAE %.2f, R2 %.3f)", e.Name, e.Metrics.MAE, e.Metrics.R2)
	p.X.Label.Text = "actual"
	p.Y.Label.Text = "predicted"
	p.X.Min, p.X.Max = lo, hi
	p.Y.Min, p.Y.Max = lo, hi
	p.Add(plotter.NewGrid())

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, err
	}
	sc.GlyphStyle.Shape = draw.CircleGlyph{}
	sc.GlyphStyle.Radius = vg.Points(1.5)
	sc.GlyphStyle.Color = color.RGBA{R: 31, G: 119, B: 180, A: 160}

	ident, err := plotter.NewLine(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}})
	if err != nil {
		return nil, err
	}
	ident.Width = vg.Points(1)
	ident.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	ident.Color = color.Gray{Y: 96}

	p.Add(sc, ident)
	p.Legend.Add("held-out", sc)
	p.Legend.Add("ideal", ident)
	p.Legend.Top = true
	p.Legend.Left = true
	return p, nil
}

// SavePNG writes the evaluation plot for e under dir and returns its path.
func SavePNG(fsys fsutil.FileSystem, dir string, e Evaluation) (string, error) {
	p, err := EvaluationPlot(e)
	if err != nil {
		return "", err
	}
	wt, err := p.WriterTo(6*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return "", err
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, PNGFile(e.Name))
	f, err := fsys.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}
