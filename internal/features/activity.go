package features

import "math"

// Insulin and carbohydrate action curve constants, in minutes.
const (
	InsulinPeakMinutes     = 75.0
	InsulinDecayMinutes    = 50.0
	InsulinDurationMinutes = 300.0

	CarbPeakMinutes     = 30.0
	CarbDecayMinutes    = 150.0
	CarbDurationMinutes = 240.0
)

func usable(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// InsulinActivityAt is the fraction of a dose acting after minutes. It rises
// to the 75 minute peak, decays exponentially, and is zero from 300 minutes.
func InsulinActivityAt(dose, minutes float64) float64 {
	if !usable(dose) || !usable(minutes) || dose <= 0 || minutes <= 0 || minutes >= InsulinDurationMinutes {
		return 0
	}
	decay := math.Exp(-(minutes - InsulinPeakMinutes) / InsulinDecayMinutes)
	if minutes < InsulinPeakMinutes {
		return minutes / InsulinPeakMinutes * decay
	}
	return decay
}

// ActiveInsulinMinutes is dose × InsulinActivityAt.
func ActiveInsulinMinutes(dose, minutes float64) float64 {
	return dose * InsulinActivityAt(dose, minutes)
}

// ResidualInsulinHours is the hours-keyed insulin-on-board form used for the
// dosage dataset: a slow linear fall over the first hour, a steeper one to
// three hours, then an exponential tail, zero from five hours.
func ResidualInsulinHours(dose, hours float64) float64 {
	if !usable(dose) || !usable(hours) || dose == 0 || hours >= 5 || hours < 0 {
		return 0
	}
	var f float64
	switch {
	case hours <= 1:
		f = 1 - 0.05*hours
	case hours <= 3:
		f = 0.95 - 0.25*(hours-1)
	default:
		f = 0.45 * math.Exp(-(hours - 3))
	}
	return dose * f
}

// LinearInsulinOnBoard decays dose linearly to zero over four hours.
func LinearInsulinOnBoard(dose, hours float64) float64 {
	if !usable(dose) || !usable(hours) || hours >= 4 || hours < 0 {
		return 0
	}
	return dose * math.Max(0, 1-hours/4)
}

// CarbActivityAt is the fraction of a carbohydrate intake being absorbed after
// minutes: linear to 30 minutes, exponential decay afterwards, zero from 240.
func CarbActivityAt(amount, minutes float64) float64 {
	if !usable(amount) || !usable(minutes) || amount <= 0 || minutes <= 0 || minutes >= CarbDurationMinutes {
		return 0
	}
	if minutes < CarbPeakMinutes {
		return minutes / CarbPeakMinutes
	}
	return math.Exp(-(minutes - CarbPeakMinutes) / CarbDecayMinutes)
}

// ActiveCarbsAt is amount × CarbActivityAt.
func ActiveCarbsAt(amount, minutes float64) float64 {
	return amount * CarbActivityAt(amount, minutes)
}
