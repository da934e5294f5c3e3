package model

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/glucose.report/internal/dataset"
	"github.com/banshee-data/glucose.report/internal/features"
	"github.com/banshee-data/glucose.report/internal/monitoring"
	"github.com/banshee-data/glucose.report/internal/timeutil"
)

// TrainOptions configures Train. Zero values select the defaults.
type TrainOptions struct {
	Algorithm Algorithm
	// Lambda is the ridge penalty. Default 1.
	Lambda float64
	// TestFraction is the trailing share of rows held out. Default 0.2.
	TestFraction float64
	Tolerances   []float64
	RunID        string
	Clock        timeutil.Clock
}

func (o TrainOptions) withDefaults() TrainOptions {
	if o.Algorithm == "" {
		o.Algorithm = AlgorithmRidge
	}
	if o.Lambda <= 0 {
		o.Lambda = 1
	}
	if o.TestFraction <= 0 || o.TestFraction >= 1 {
		o.TestFraction = 0.2
	}
	if o.RunID == "" {
		o.RunID = uuid.NewString()
	}
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	return o
}

// Split is a time-ordered partition of dataset rows.
type Split struct {
	Train []int
	Test  []int
}

// TimeSplit orders rows by timestamp, stably, and holds out the latest
// testFraction of them.
func TimeSplit(timestamps []string, testFraction float64) (Split, error) {
	n := len(timestamps)
	nTest := int(math.Ceil(float64(n)*testFraction - 1e-9))
	if n < 2 || nTest < 1 || nTest >= n {
		return Split{}, fmt.Errorf("split: %d rows is too few", n)
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return timestamps[order[a]] < timestamps[order[b]] })
	return Split{Train: order[:n-nTest], Test: order[n-nTest:]}, nil
}

func rows(x *mat.Dense, y []float64, idx []int) (*mat.Dense, []float64) {
	_, p := x.Dims()
	out := mat.NewDense(len(idx), p, nil)
	ys := make([]float64, len(idx))
	for k, i := range idx {
		out.SetRow(k, x.RawRowView(i))
		ys[k] = y[i]
	}
	return out, ys
}

// Train fits schema's regressor on ds and evaluates it on the held-out
// trailing rows.
func Train(ds *dataset.Frame, schema features.Schema, opts TrainOptions) (*Artifact, error) {
	opts = opts.withDefaults()
	defer monitoring.Stage("train " + schema.Name)()

	x, y, err := ds.Matrix(schema)
	if err != nil {
		return nil, err
	}
	ts, ok := ds.Strings(features.Timestamp)
	if !ok {
		return nil, &dataset.SchemaError{Dataset: schema.Name, Missing: []string{features.Timestamp}}
	}
	split, err := TimeSplit(ts, opts.TestFraction)
	if err != nil {
		return nil, fmt.Errorf("train %s: %w", schema.Name, err)
	}
	xTrain, yTrain := rows(x, y, split.Train)
	xTest, yTest := rows(x, y, split.Test)

	scaler := FitScaler(xTrain, schema.Mask())
	zTrain, err := scaler.TransformMatrix(xTrain)
	if err != nil {
		return nil, fmt.Errorf("train %s: %w", schema.Name, err)
	}
	reg, err := NewRegressor(opts.Algorithm, opts.Lambda)
	if err != nil {
		return nil, err
	}
	lin, err := reg.Fit(zTrain, yTrain)
	if err != nil {
		return nil, fmt.Errorf("train %s: %w", schema.Name, err)
	}

	pred := make([]float64, len(yTest))
	for i := range pred {
		z, err := scaler.Transform(xTest.RawRowView(i))
		if err != nil {
			return nil, fmt.Errorf("train %s: test row %d: %w", schema.Name, i, err)
		}
		if pred[i], err = lin.Predict(z); err != nil {
			return nil, err
		}
	}
	metrics, err := Evaluate(pred, yTest, opts.Tolerances...)
	if err != nil {
		return nil, fmt.Errorf("train %s: %w", schema.Name, err)
	}
	monitoring.Logf("train %s: %s on %d rows, test MAE %.3f RMSE %.3f R² %.3f",
		schema.Name, opts.Algorithm, len(yTrain), metrics.MAE, metrics.RMSE, metrics.R2)

	return &Artifact{
		Schema:      schema,
		Fingerprint: schema.Fingerprint(),
		Algorithm:   opts.Algorithm,
		Scaler:      scaler,
		Model:       lin,
		Metrics:     metrics,
		Importance:  RankFeatures(schema.Columns, lin.Weights),
		Rows:        len(yTrain),
		RunID:       opts.RunID,
		TrainedAt:   opts.Clock.Now().UTC(),
	}, nil
}

// Holdout predicts the rows Train held out of ds, using the same split, and
// returns them with the actual targets in split order.
func Holdout(ds *dataset.Frame, a *Artifact, testFraction float64) (pred, actual []float64, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		testFraction = 0.2
	}
	x, y, err := ds.Matrix(a.Schema)
	if err != nil {
		return nil, nil, err
	}
	ts, ok := ds.Strings(features.Timestamp)
	if !ok {
		return nil, nil, &dataset.SchemaError{Dataset: a.Schema.Name, Missing: []string{features.Timestamp}}
	}
	split, err := TimeSplit(ts, testFraction)
	if err != nil {
		return nil, nil, fmt.Errorf("holdout %s: %w", a.Schema.Name, err)
	}
	pred = make([]float64, len(split.Test))
	actual = make([]float64, len(split.Test))
	for k, i := range split.Test {
		z, err := a.Scaler.Transform(x.RawRowView(i))
		if err != nil {
			return nil, nil, &InferenceError{Model: a.Schema.Name, Stage: "transform", Err: err}
		}
		if pred[k], err = a.Model.Predict(z); err != nil {
			return nil, nil, &InferenceError{Model: a.Schema.Name, Stage: "predict", Err: err}
		}
		actual[k] = y[i]
	}
	return pred, actual, nil
}
