package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Scaler standardises numeric features to zero mean and unit variance.
// Categorical columns pass through unchanged.
type Scaler struct {
	Mean        []float64 `json:"mean"`
	Scale       []float64 `json:"scale"`
	Categorical []bool    `json:"categorical"`
}

// FitScaler computes column statistics of x. Constant columns get scale 1.
func FitScaler(x mat.Matrix, categorical []bool) Scaler {
	n, p := x.Dims()
	s := Scaler{Mean: make([]float64, p), Scale: make([]float64, p), Categorical: make([]bool, p)}
	copy(s.Categorical, categorical)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		s.Scale[j] = 1
		if s.Categorical[j] {
			continue
		}
		mat.Col(col, j, x)
		// Population deviation, matching the usual standard-scaler convention.
		mean, variance := stat.PopMeanVariance(col, nil)
		s.Mean[j] = mean
		if sd := math.Sqrt(variance); sd > 0 {
			s.Scale[j] = sd
		}
	}
	return s
}

// Transform returns the standardised copy of x.
func (s Scaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) {
		return nil, fmt.Errorf("scaler: got %d features, fitted on %d", len(x), len(s.Mean))
	}
	out := make([]float64, len(x))
	for j, v := range x {
		if s.Categorical[j] {
			out[j] = v
		} else {
			out[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		if math.IsNaN(out[j]) || math.IsInf(out[j], 0) {
			return nil, fmt.Errorf("scaler: feature %d is not finite", j)
		}
	}
	return out, nil
}

// TransformMatrix standardises every row of x.
func (s Scaler) TransformMatrix(x mat.Matrix) (*mat.Dense, error) {
	n, p := x.Dims()
	out := mat.NewDense(n, p, nil)
	row := make([]float64, p)
	for i := 0; i < n; i++ {
		mat.Row(row, i, x)
		z, err := s.Transform(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out.SetRow(i, z)
	}
	return out, nil
}
