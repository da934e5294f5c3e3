package features

import "time"

// Params holds the constants of feature construction. Training and
// inference must use the same Params.
type Params struct {
	// SampleInterval is the native glucose sampling interval.
	SampleInterval time.Duration
	// RollingWindow is the number of readings in the rolling statistics.
	RollingWindow int

	// NoEventMinutes encodes "no prior event" for the glucose dataset's
	// elapsed-time features.
	NoEventMinutes float64
	// DefaultGlucose replaces an insulin row's missing glucose reading.
	DefaultGlucose float64
	// NoGlucoseMinutes replaces an insulin row's missing glucose age.
	NoGlucoseMinutes float64
	// NoInsulinHours replaces the first dose's hours since the previous one.
	NoInsulinHours float64
	// NoExerciseMinutes replaces an insulin row's missing exercise age.
	NoExerciseMinutes float64

	TargetGlucose float64
	// RecentExerciseMinutes is the age below which exercise lowers the
	// theoretical insulin need.
	RecentExerciseMinutes float64
}

func DefaultParams() Params {
	return Params{
		SampleInterval:        5 * time.Minute,
		RollingWindow:         12,
		NoEventMinutes:        1440,
		DefaultGlucose:        120,
		NoGlucoseMinutes:      60,
		NoInsulinHours:        8,
		NoExerciseMinutes:     360,
		TargetGlucose:         120,
		RecentExerciseMinutes: 240,
	}
}

// historyLen is the number of prior readings the batch path hands to the
// scalar path: enough for the rolling window and the longest lag.
func (p Params) historyLen() int {
	return max(p.RollingWindow-1, maxLag)
}

// SampleOffset converts a horizon into a number of sample positions.
func (p Params) SampleOffset(horizon time.Duration) int {
	if p.SampleInterval <= 0 {
		return 0
	}
	return int(horizon / p.SampleInterval)
}

// elapsedOr returns *v when set, 0 when an event with a positive amount is
// implied but its age is unknown, and the no-event sentinel otherwise.
func elapsedOr(v *float64, amount, sentinel float64) float64 {
	if v != nil && usable(*v) {
		return *v
	}
	if amount > 0 {
		return 0
	}
	return sentinel
}
