package features

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Lag returns the reading k positions before the last element of values.
// When the series is shorter than k the oldest reading stands in, which is
// what forward-then-backward filling a shifted column produces.
func Lag(values []float64, k int) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	i := n - 1 - k
	if i < 0 {
		i = 0
	}
	return values[i]
}

// Rolling returns the mean and sample standard deviation of the last window
// elements of values. A single sample has zero deviation.
func Rolling(values []float64, window int) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	if window > 0 && len(values) > window {
		values = values[len(values)-window:]
	}
	if len(values) == 1 {
		return values[0], 0
	}
	mean, std = stat.MeanStdDev(values, nil)
	return mean, std
}

// RateOfChange is (current - previous) / minutes in mg/dL per minute. It is
// zero when no time has elapsed.
func RateOfChange(current, previous, minutes float64) float64 {
	if !usable(minutes) || minutes <= 0 {
		return 0
	}
	return (current - previous) / minutes
}
