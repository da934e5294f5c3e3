package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsulinActivity(t *testing.T) {
	tests := []struct {
		name    string
		dose    float64
		minutes float64
		want    float64
	}{
		{"no dose", 0, 60, 0},
		{"negative dose", -1, 60, 0},
		{"just injected", 4, 0, 0},
		{"rising", 4, 30, 30.0 / 75 * math.Exp(45.0/50)},
		{"peak", 4, 75, 1},
		{"decaying", 4, 125, math.Exp(-1)},
		{"at duration", 4, 300, 0},
		{"beyond duration", 4, 1440, 0},
		{"nan minutes", 4, math.NaN(), 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, InsulinActivityAt(tc.dose, tc.minutes), 1e-12)
		})
	}
	assert.InDelta(t, 4*math.Exp(-1), ActiveInsulinMinutes(4, 125), 1e-12)
}

func TestCarbActivity(t *testing.T) {
	tests := []struct {
		name    string
		amount  float64
		minutes float64
		want    float64
	}{
		{"no carbs", 0, 10, 0},
		{"rising", 50, 15, 0.5},
		{"peak", 50, 30, 1},
		{"decaying", 50, 180, math.Exp(-1)},
		{"just before bound", 50, 239, math.Exp(-209.0 / 150)},
		{"at bound", 50, 240, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, CarbActivityAt(tc.amount, tc.minutes), 1e-12)
		})
	}
	assert.InDelta(t, 25.0, ActiveCarbsAt(50, 15), 1e-12)
}

// Past the peak both curves only fall, and they are zero from their bound on.
func TestActivityCurvesDecay(t *testing.T) {
	prev := InsulinActivityAt(1, InsulinPeakMinutes)
	for m := InsulinPeakMinutes + 1; m <= 600; m++ {
		cur := InsulinActivityAt(1, m)
		assert.LessOrEqual(t, cur, prev, "insulin minute %v", m)
		if m >= InsulinDurationMinutes {
			assert.Zero(t, cur)
		}
		prev = cur
	}
	prev = CarbActivityAt(1, CarbPeakMinutes)
	for m := CarbPeakMinutes + 1; m <= 600; m++ {
		cur := CarbActivityAt(1, m)
		assert.LessOrEqual(t, cur, prev, "carb minute %v", m)
		if m >= CarbDurationMinutes {
			assert.Zero(t, cur)
		}
		prev = cur
	}
}

func TestResidualInsulinHours(t *testing.T) {
	tests := []struct {
		hours float64
		want  float64
	}{
		{0, 2},
		{1, 2 * 0.95},
		{2, 2 * 0.70},
		{3, 2 * 0.45},
		{4, 2 * 0.45 * math.Exp(-1)},
		{5, 0},
		{8, 0},
	}
	for _, tc := range tests {
		assert.InDelta(t, tc.want, ResidualInsulinHours(2, tc.hours), 1e-12, "hours %v", tc.hours)
	}
	assert.Zero(t, ResidualInsulinHours(0, 1))

	prev := ResidualInsulinHours(1, 0)
	for h := 0.1; h < 6; h += 0.1 {
		cur := ResidualInsulinHours(1, h)
		assert.LessOrEqual(t, cur, prev+1e-12, "hours %v", h)
		prev = cur
	}
}

func TestLinearInsulinOnBoard(t *testing.T) {
	assert.InDelta(t, 3.0, LinearInsulinOnBoard(4, 1), 1e-12)
	assert.Zero(t, LinearInsulinOnBoard(4, 4))
	assert.Zero(t, LinearInsulinOnBoard(4, 8))
}
