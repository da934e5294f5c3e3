package model

import (
	"errors"
	"fmt"
	"math"

	"github.com/sajari/regression"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/glucose.report/internal/monitoring"
)

// Algorithm names a regressor.
type Algorithm string

const (
	AlgorithmRidge Algorithm = "ridge"
	AlgorithmOLS   Algorithm = "ols"
)

// Linear is a fitted linear model over standardised features.
type Linear struct {
	Bias    float64   `json:"bias"`
	Weights []float64 `json:"weights"`
}

// Predict returns Bias + Weights·x.
func (l Linear) Predict(x []float64) (float64, error) {
	if len(x) != len(l.Weights) {
		return 0, fmt.Errorf("got %d features, model has %d", len(x), len(l.Weights))
	}
	if len(x) == 0 {
		return l.Bias, nil
	}
	return l.Bias + mat.Dot(mat.NewVecDense(len(x), x), mat.NewVecDense(len(x), l.Weights)), nil
}

// Regressor fits a Linear model to x (rows are samples) and y.
type Regressor interface {
	Fit(x mat.Matrix, y []float64) (Linear, error)
}

// NewRegressor returns the regressor for algo.
func NewRegressor(algo Algorithm, lambda float64) (Regressor, error) {
	switch algo {
	case AlgorithmRidge, "":
		return Ridge{Lambda: lambda}, nil
	case AlgorithmOLS:
		return OLS{}, nil
	}
	return nil, fmt.Errorf("unknown algorithm %q", algo)
}

// Ridge solves the L2-regularised normal equations. The intercept is not
// penalised.
type Ridge struct {
	Lambda float64
}

func (r Ridge) Fit(x mat.Matrix, y []float64) (Linear, error) {
	n, p := x.Dims()
	if n != len(y) {
		return Linear{}, fmt.Errorf("ridge: %d rows, %d targets", n, len(y))
	}
	if n == 0 {
		return Linear{}, errors.New("ridge: no samples")
	}

	// Augment with a leading column of ones for the intercept.
	a := mat.NewDense(n, p+1, nil)
	for i := 0; i < n; i++ {
		a.Set(i, 0, 1)
		for j := 0; j < p; j++ {
			a.Set(i, j+1, x.At(i, j))
		}
	}
	var ata mat.Dense
	ata.Mul(a.T(), a)
	for j := 1; j <= p; j++ {
		ata.Set(j, j, ata.At(j, j)+r.Lambda)
	}
	var aty mat.VecDense
	aty.MulVec(a.T(), mat.NewVecDense(n, y))

	var beta mat.VecDense
	if err := beta.SolveVec(&ata, &aty); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return Linear{}, fmt.Errorf("ridge: %w", err)
		}
		monitoring.Logf("ridge: %v", err)
	}
	out := Linear{Bias: beta.AtVec(0), Weights: make([]float64, p)}
	for j := 0; j < p; j++ {
		out.Weights[j] = beta.AtVec(j + 1)
	}
	return out, finite(out)
}

// OLS fits ordinary least squares. Columns without variance carry no
// information and would make the system singular, so they get weight 0.
type OLS struct{}

func (OLS) Fit(x mat.Matrix, y []float64) (Linear, error) {
	n, p := x.Dims()
	if n != len(y) {
		return Linear{}, fmt.Errorf("ols: %d rows, %d targets", n, len(y))
	}
	var keep []int
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		mat.Col(col, j, x)
		if _, sd := stat.MeanStdDev(col, nil); sd > 0 {
			keep = append(keep, j)
		}
	}
	if n <= len(keep)+1 {
		return Linear{}, fmt.Errorf("ols: %d samples for %d features", n, len(keep))
	}

	var r regression.Regression
	r.SetObserved("target")
	for k, j := range keep {
		r.SetVar(k, fmt.Sprintf("x%d", j))
	}
	row := make([]float64, len(keep))
	for i := 0; i < n; i++ {
		for k, j := range keep {
			row[k] = x.At(i, j)
		}
		r.Train(regression.DataPoint(y[i], append([]float64(nil), row...)))
	}
	if err := r.Run(); err != nil {
		return Linear{}, fmt.Errorf("ols: %w", err)
	}
	coeffs := r.GetCoeffs()
	out := Linear{Bias: coeffs[0], Weights: make([]float64, p)}
	for k, j := range keep {
		out.Weights[j] = coeffs[k+1]
	}
	return out, finite(out)
}

func finite(l Linear) error {
	if math.IsNaN(l.Bias) || math.IsInf(l.Bias, 0) {
		return errors.New("non-finite intercept")
	}
	for j, w := range l.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("non-finite weight for feature %d", j)
		}
	}
	return nil
}
