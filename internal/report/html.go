// Package report renders glucose trajectories and model evaluations as
// interactive echarts pages and static PNG plots.
package report

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/glucose.report/internal/events"
	"github.com/banshee-data/glucose.report/internal/model"
	"github.com/banshee-data/glucose.report/internal/units"
)

// AssetsHost serves the echarts javascript.
const AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// ErrNoPoints is returned when there is nothing to draw.
var ErrNoPoints = errors.New("report: no points to plot")

// Prediction is a predicted reading at Time, made Horizon minutes earlier.
type Prediction struct {
	Time    time.Time
	Value   float64
	Horizon int
	Method  model.Method
}

// Trajectory is one subject's readings with predictions overlaid.
type Trajectory struct {
	SubjectID   string
	Readings    []events.Glucose
	Predictions []Prediction
	// Units is the display unit; values stay in mg/dL otherwise.
	Units string
}

func (tr Trajectory) unit() string {
	if units.IsValid(tr.Units) {
		return units.Normalize(tr.Units)
	}
	return units.MgDL
}

// TrajectoryChart builds a time-axis line chart of tr.
func TrajectoryChart(tr Trajectory) *charts.Line {
	u := tr.unit()
	readings := make([]opts.LineData, 0, len(tr.Readings))
	for _, g := range tr.Readings {
		readings = append(readings, opts.LineData{Value: []interface{}{g.Time.UnixMilli(), units.ConvertGlucose(g.Value, u)}})
	}
	byHorizon := make(map[int][]opts.LineData)
	var horizons []int
	for _, p := range tr.Predictions {
		if _, ok := byHorizon[p.Horizon]; !ok {
			horizons = append(horizons, p.Horizon)
		}
		byHorizon[p.Horizon] = append(byHorizon[p.Horizon], opts.LineData{Value: []interface{}{p.Time.UnixMilli(), units.ConvertGlucose(p.Value, u)}})
	}

	subtitle := fmt.Sprintf("%d readings, %d predictions", len(tr.Readings), len(tr.Predictions))
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Glucose trajectory", Width: "100%", Height: "600px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Subject " + tr.SubjectID, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time", Type: "time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: u, Type: "value"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.AddSeries("readings", readings, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	for _, h := range horizons {
		line.AddSeries(fmt.Sprintf("predicted +%dmin", h), byHorizon[h],
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}),
			charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed"}),
		)
	}
	return line
}

// WriteTrajectory renders tr as a standalone HTML page.
func WriteTrajectory(w io.Writer, tr Trajectory) error {
	if len(tr.Readings) == 0 && len(tr.Predictions) == 0 {
		return ErrNoPoints
	}
	page := components.NewPage()
	page.SetAssetsHost(AssetsHost)
	page.PageTitle = "Glucose trajectory " + tr.SubjectID
	page.AddCharts(TrajectoryChart(tr))
	return page.Render(w)
}

// Evaluation is one model's held-out predictions.
type Evaluation struct {
	Name      string
	Predicted []float64
	Actual    []float64
	Metrics   model.Metrics
}

func (e Evaluation) check() error {
	if len(e.Predicted) == 0 {
		return fmt.Errorf("%s: %w", e.Name, ErrNoPoints)
	}
	if len(e.Predicted) != len(e.Actual) {
		return fmt.Errorf("%s: %d predictions for %d actual values", e.Name, len(e.Predicted), len(e.Actual))
	}
	return nil
}

// bounds returns a shared axis range covering both series.
func (e Evaluation) bounds() (lo, hi float64) {
	lo = min(floats.Min(e.Predicted), floats.Min(e.Actual))
	hi = max(floats.Max(e.Predicted), floats.Max(e.Actual))
	return lo, hi
}

// EvaluationChart scatters predicted against actual values.
func EvaluationChart(e Evaluation) (*charts.Scatter, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	lo, hi := e.bounds()
	pts := make([]opts.ScatterData, len(e.Predicted))
	for i := range e.Predicted {
		pts[i] = opts.ScatterData{Value: []interface{}{e.Actual[i], e.Predicted[i]}, SymbolSize: 4}
	}
	subtitle := fmt.Sprintf("n=%d MAE=%.2f RMSE=%.2f R2=%.3f", e.Metrics.Samples, e.Metrics.MAE, e.Metrics.RMSE, e.Metrics.R2)

	sc := charts.NewScatter()
	sc.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Model evaluation", Width: "720px", Height: "720px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: e.Name, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "actual", Min: lo, Max: hi, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "predicted", Min: lo, Max: hi, NameLocation: "middle", NameGap: 40}),
	)
	sc.AddSeries("held-out", pts)
	return sc, nil
}

// WriteEvaluation renders one scatter per evaluation on a single page.
func WriteEvaluation(w io.Writer, evals []Evaluation) error {
	if len(evals) == 0 {
		return ErrNoPoints
	}
	page := components.NewPage()
	page.SetAssetsHost(AssetsHost)
	page.PageTitle = "Model evaluation"
	for _, e := range evals {
		sc, err := EvaluationChart(e)
		if err != nil {
			return err
		}
		page.AddCharts(sc)
	}
	return page.Render(w)
}
