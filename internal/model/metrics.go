package model

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Tolerances for the share of predictions within a distance of the actual
// value.
var (
	GlucoseTolerances = []float64{20, 30}
	InsulinTolerances = []float64{0.5, 1.0}
)

// Metrics summarises predictions against held-out actual values.
type Metrics struct {
	Samples int     `json:"samples"`
	MAE     float64 `json:"mae"`
	RMSE    float64 `json:"rmse"`
	R2      float64 `json:"r2"`
	// Within maps "within_<tolerance>" to the share of predictions whose
	// absolute error is at most tolerance.
	Within map[string]float64 `json:"within,omitempty"`
}

func withinKey(tol float64) string {
	return "within_" + strconv.FormatFloat(tol, 'g', -1, 64)
}

// Evaluate computes Metrics. R² is 0 when actual has no variance.
func Evaluate(pred, actual []float64, tolerances ...float64) (Metrics, error) {
	if len(pred) != len(actual) {
		return Metrics{}, fmt.Errorf("evaluate: %d predictions, %d actual values", len(pred), len(actual))
	}
	if len(pred) == 0 {
		return Metrics{}, errors.New("evaluate: no samples")
	}
	n := float64(len(pred))
	resid := make([]float64, len(pred))
	floats.SubTo(resid, actual, pred)

	abs := make([]float64, len(resid))
	for i, r := range resid {
		abs[i] = math.Abs(r)
	}
	m := Metrics{
		Samples: len(pred),
		MAE:     floats.Sum(abs) / n,
		RMSE:    floats.Norm(resid, 2) / math.Sqrt(n),
	}
	if r2 := stat.RSquaredFrom(pred, actual, nil); !math.IsNaN(r2) && !math.IsInf(r2, 0) {
		m.R2 = r2
	}
	if len(tolerances) > 0 {
		m.Within = make(map[string]float64, len(tolerances))
		for _, tol := range tolerances {
			var count int
			for _, a := range abs {
				if a <= tol {
					count++
				}
			}
			m.Within[withinKey(tol)] = float64(count) / n
		}
	}
	return m, nil
}

// Importance is a feature's absolute standardised coefficient.
type Importance struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

// RankFeatures orders features by absolute weight, largest first.
func RankFeatures(names []string, weights []float64) []Importance {
	out := make([]Importance, len(names))
	for i, n := range names {
		out[i] = Importance{Feature: n, Weight: math.Abs(weights[i])}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	return out
}
