package features

import "github.com/banshee-data/glucose.report/internal/events"

// totalDailyInsulin estimates daily insulin from body weight in kg.
func totalDailyInsulin(weightKg float64) float64 {
	return weightKg * 2.2 * 0.55
}

func weightOrDefault(weightKg float64) float64 {
	if !usable(weightKg) || weightKg <= 0 {
		return events.DefaultWeightKg
	}
	return weightKg
}

// SensitivityFor is the insulin sensitivity factor (mg/dL per unit) by the
// 1800 rule.
func SensitivityFor(weightKg float64) float64 {
	return 1800 / totalDailyInsulin(weightOrDefault(weightKg))
}

// CarbRatioFor is the insulin-to-carbohydrate ratio (grams per unit) by the
// 500 rule.
func CarbRatioFor(weightKg float64) float64 {
	return 500 / totalDailyInsulin(weightOrDefault(weightKg))
}

// Factors resolves ISF and ICR, preferring explicit positive overrides.
func Factors(weightKg float64, isf, icr *float64) (float64, float64) {
	s, r := SensitivityFor(weightKg), CarbRatioFor(weightKg)
	if isf != nil && usable(*isf) && *isf > 0 {
		s = *isf
	}
	if icr != nil && usable(*icr) && *icr > 0 {
		r = *icr
	}
	return s, r
}
