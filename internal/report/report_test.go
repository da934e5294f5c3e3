package report

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/glucose.report/internal/events"
	"github.com/banshee-data/glucose.report/internal/fsutil"
	"github.com/banshee-data/glucose.report/internal/model"
)

var t0 = time.Date(2023, 3, 6, 6, 0, 0, 0, time.UTC)

func trajectory() Trajectory {
	tr := Trajectory{SubjectID: "7"}
	for i := range 24 {
		tr.Readings = append(tr.Readings, events.Glucose{Time: t0.Add(time.Duration(5*i) * time.Minute), Value: 110 + float64(i)})
	}
	tr.Predictions = []Prediction{
		{Time: t0.Add(30 * time.Minute), Value: 121, Horizon: 30, Method: model.MethodModel},
		{Time: t0.Add(60 * time.Minute), Value: 131, Horizon: 60, Method: model.MethodRules},
		{Time: t0.Add(90 * time.Minute), Value: 127, Horizon: 30, Method: model.MethodModel},
	}
	return tr
}

func evaluation() Evaluation {
	return Evaluation{
		Name:      "glucose_60min",
		Predicted: []float64{101, 148, 182, 95, 240},
		Actual:    []float64{98, 150, 190, 90, 231},
		Metrics:   model.Metrics{Samples: 5, MAE: 5.4, RMSE: 6.1, R2: 0.98},
	}
}

func TestWriteTrajectory(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTrajectory(&buf, trajectory()))

	html := buf.String()
	assert.Contains(t, html, "Subject 7")
	assert.Contains(t, html, "predicted +30min")
	assert.Contains(t, html, "predicted +60min")
	assert.Contains(t, html, "24 readings, 3 predictions")
	assert.Contains(t, html, AssetsHost)
}

func TestTrajectoryUnits(t *testing.T) {
	tr := trajectory()
	tr.Units = "mmol/L"
	var buf bytes.Buffer
	require.NoError(t, WriteTrajectory(&buf, tr))
	assert.Contains(t, buf.String(), "mmol/L")

	tr.Units = "bogus"
	assert.Equal(t, "mg/dL", tr.unit())
}

func TestWriteTrajectoryEmpty(t *testing.T) {
	var buf bytes.Buffer
	err := WriteTrajectory(&buf, Trajectory{SubjectID: "1"})
	assert.ErrorIs(t, err, ErrNoPoints)
}

func TestWriteEvaluation(t *testing.T) {
	var buf bytes.Buffer
	second := evaluation()
	second.Name = "insulin"
	require.NoError(t, WriteEvaluation(&buf, []Evaluation{evaluation(), second}))

	html := buf.String()
	assert.Contains(t, html, "glucose_60min")
	assert.Contains(t, html, "insulin")
	assert.Contains(t, html, "MAE=5.40")
}

func TestEvaluationChecks(t *testing.T) {
	tests := []struct {
		name string
		eval Evaluation
	}{
		{"empty", Evaluation{Name: "e"}},
		{"length mismatch", Evaluation{Name: "e", Predicted: []float64{1, 2}, Actual: []float64{1}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := EvaluationChart(tc.eval)
			assert.Error(t, err)
			_, err = EvaluationPlot(tc.eval)
			assert.Error(t, err)
		})
	}
	assert.ErrorIs(t, WriteEvaluation(&bytes.Buffer{}, nil), ErrNoPoints)
}

func TestBounds(t *testing.T) {
	lo, hi := evaluation().bounds()
	assert.Equal(t, 90.0, lo)
	assert.Equal(t, 240.0, hi)
}

func TestSavePNG(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	path, err := SavePNG(fsys, "reports", evaluation())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("reports", "glucose_60min_predicted_vs_actual.png"), path)

	data, err := fsys.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, []byte("\x89PNG"), data[:4])
}

func TestSavePNGEmpty(t *testing.T) {
	_, err := SavePNG(fsutil.NewMemoryFileSystem(), "reports", Evaluation{Name: "x"})
	assert.True(t, errors.Is(err, ErrNoPoints))
}

func TestPNGFile(t *testing.T) {
	assert.Equal(t, "glucose_30min_predicted_vs_actual.png", PNGFile("glucose_30min"))
	assert.Equal(t, "a_b_predicted_vs_actual.png", PNGFile("a/b"))
}
