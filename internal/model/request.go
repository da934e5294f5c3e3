package model

import (
	"math"
	"time"

	"github.com/banshee-data/glucose.report/internal/features"
)

// Request defaults.
const (
	DefaultExerciseIntensity = 2
	DefaultHorizon           = 60
)

// NormalizeHorizon maps a requested horizon to a trained one: 30 and 60 are
// kept, anything else becomes 60 above 45 minutes and 30 otherwise.
func NormalizeHorizon(minutes int) int {
	switch {
	case minutes == 30 || minutes == 60:
		return minutes
	case minutes > 45:
		return 60
	}
	return 30
}

// GlucoseRequest asks for the glucose level a horizon ahead.
type GlucoseRequest struct {
	CurrentGlucose    float64  `json:"currentGlucose"`
	InsulinDose       float64  `json:"insulinDose"`
	TotalCarbs        float64  `json:"totalCarbs"`
	ExerciseDuration  float64  `json:"exerciseDuration"`
	ExerciseIntensity *float64 `json:"exerciseIntensity,omitempty"`
	PredictionHorizon *int     `json:"predictionHorizon,omitempty"`

	Timestamp *time.Time `json:"timestamp,omitempty"`
	Hour      *int       `json:"hour,omitempty"`
	DayOfWeek *int       `json:"dayOfWeek,omitempty"`
	Weight    *float64   `json:"weight,omitempty"`

	GlucoseLag1     *float64 `json:"glucoseLag1,omitempty"`
	GlucoseLag2     *float64 `json:"glucoseLag2,omitempty"`
	GlucoseLag3     *float64 `json:"glucoseLag3,omitempty"`
	GlucoseVelocity *float64 `json:"glucoseVelocity,omitempty"`

	MinutesSinceInsulin  *float64 `json:"minutesSinceInsulin,omitempty"`
	MinutesSinceCarbs    *float64 `json:"minutesSinceCarbs,omitempty"`
	MinutesSinceExercise *float64 `json:"minutesSinceExercise,omitempty"`

	InsulinSensitivityFactor *float64 `json:"insulinSensitivityFactor,omitempty"`
	InsulinToCarbRatio       *float64 `json:"insulinToCarbRatio,omitempty"`
}

// Horizon returns the normalised prediction horizon in minutes.
func (r GlucoseRequest) Horizon() int {
	if r.PredictionHorizon == nil {
		return DefaultHorizon
	}
	return NormalizeHorizon(*r.PredictionHorizon)
}

// Intensity returns the exercise intensity, defaulting to moderate.
func (r GlucoseRequest) Intensity() float64 {
	if r.ExerciseIntensity == nil {
		return DefaultExerciseIntensity
	}
	return *r.ExerciseIntensity
}

func (r GlucoseRequest) Validate() error {
	if err := positive("currentGlucose", r.CurrentGlucose); err != nil {
		return err
	}
	checks := []error{
		nonNegative("insulinDose", r.InsulinDose),
		nonNegative("totalCarbs", r.TotalCarbs),
		nonNegative("exerciseDuration", r.ExerciseDuration),
		nonNegative("exerciseIntensity", r.Intensity()),
		optional(positive, "weight", r.Weight),
		optional(positive, "glucoseLag1", r.GlucoseLag1),
		optional(positive, "glucoseLag2", r.GlucoseLag2),
		optional(positive, "glucoseLag3", r.GlucoseLag3),
		optional(finiteValue, "glucoseVelocity", r.GlucoseVelocity),
		optional(nonNegative, "minutesSinceInsulin", r.MinutesSinceInsulin),
		optional(nonNegative, "minutesSinceCarbs", r.MinutesSinceCarbs),
		optional(nonNegative, "minutesSinceExercise", r.MinutesSinceExercise),
		optional(positive, "insulinSensitivityFactor", r.InsulinSensitivityFactor),
		optional(positive, "insulinToCarbRatio", r.InsulinToCarbRatio),
		calendar(r.Hour, r.DayOfWeek),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	if r.PredictionHorizon != nil && *r.PredictionHorizon <= 0 {
		return &ValidationError{Field: "predictionHorizon", Reason: "must be positive"}
	}
	return nil
}

// Input converts r to the feature input. r must be valid.
func (r GlucoseRequest) Input() features.GlucoseInput {
	in := features.GlucoseInput{
		Calendar:             features.Calendar{Time: r.Timestamp, Hour: r.Hour, DayOfWeek: r.DayOfWeek},
		Current:              r.CurrentGlucose,
		Lags:                 [3]*float64{r.GlucoseLag1, r.GlucoseLag2, r.GlucoseLag3},
		Velocity:             r.GlucoseVelocity,
		InsulinDose:          r.InsulinDose,
		MinutesSinceInsulin:  r.MinutesSinceInsulin,
		CarbIntake:           r.TotalCarbs,
		MinutesSinceCarbs:    r.MinutesSinceCarbs,
		ExerciseIntensity:    r.Intensity(),
		ExerciseDuration:     r.ExerciseDuration,
		MinutesSinceExercise: r.MinutesSinceExercise,
		ISF:                  r.InsulinSensitivityFactor,
		ICR:                  r.InsulinToCarbRatio,
	}
	if r.Weight != nil {
		in.WeightKg = *r.Weight
	}
	return in
}

// InsulinRequest asks for a recommended insulin dose.
type InsulinRequest struct {
	BloodGlucose         float64  `json:"bloodGlucose"`
	CarbIntake           float64  `json:"carbIntake"`
	ExerciseTime         float64  `json:"exerciseTime"`
	ExerciseIntensity    float64  `json:"exerciseIntensity"`
	Weight               *float64 `json:"weight,omitempty"`
	CurrentInsulinDosage float64  `json:"currentInsulinDosage"`

	Timestamp *time.Time `json:"timestamp,omitempty"`
	Hour      *int       `json:"hour,omitempty"`
	DayOfWeek *int       `json:"dayOfWeek,omitempty"`

	InsulinSensitivityFactor *float64 `json:"insulinSensitivityFactor,omitempty"`
	InsulinToCarbRatio       *float64 `json:"insulinToCarbRatio,omitempty"`

	MinutesSinceGlucose   *float64 `json:"minutesSinceGlucose,omitempty"`
	MinutesSinceExercise  *float64 `json:"minutesSinceExercise,omitempty"`
	PreviousInsulinDose   float64  `json:"previousInsulinDose"`
	PreviousMealCarbs     float64  `json:"previousMealCarbs"`
	HoursSinceLastInsulin *float64 `json:"hoursSinceLastInsulin,omitempty"`
	TotalInsulin24h       float64  `json:"totalInsulin24h"`
}

func (r InsulinRequest) Validate() error {
	if err := positive("bloodGlucose", r.BloodGlucose); err != nil {
		return err
	}
	checks := []error{
		nonNegative("carbIntake", r.CarbIntake),
		nonNegative("exerciseTime", r.ExerciseTime),
		nonNegative("exerciseIntensity", r.ExerciseIntensity),
		nonNegative("currentInsulinDosage", r.CurrentInsulinDosage),
		nonNegative("previousInsulinDose", r.PreviousInsulinDose),
		nonNegative("previousMealCarbs", r.PreviousMealCarbs),
		nonNegative("totalInsulin24h", r.TotalInsulin24h),
		optional(positive, "weight", r.Weight),
		optional(positive, "insulinSensitivityFactor", r.InsulinSensitivityFactor),
		optional(positive, "insulinToCarbRatio", r.InsulinToCarbRatio),
		optional(nonNegative, "minutesSinceGlucose", r.MinutesSinceGlucose),
		optional(nonNegative, "minutesSinceExercise", r.MinutesSinceExercise),
		optional(nonNegative, "hoursSinceLastInsulin", r.HoursSinceLastInsulin),
		calendar(r.Hour, r.DayOfWeek),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}

// Input converts r to the feature input. r must be valid.
func (r InsulinRequest) Input() features.InsulinInput {
	in := features.InsulinInput{
		Calendar:              features.Calendar{Time: r.Timestamp, Hour: r.Hour, DayOfWeek: r.DayOfWeek},
		BloodGlucose:          r.BloodGlucose,
		MinutesSinceGlucose:   r.MinutesSinceGlucose,
		CarbIntake:            r.CarbIntake,
		ExerciseIntensity:     r.ExerciseIntensity,
		ExerciseTime:          r.ExerciseTime,
		MinutesSinceExercise:  r.MinutesSinceExercise,
		ISF:                   r.InsulinSensitivityFactor,
		ICR:                   r.InsulinToCarbRatio,
		PreviousDose:          r.PreviousInsulinDose,
		PreviousMealCarbs:     r.PreviousMealCarbs,
		HoursSinceLastInsulin: r.HoursSinceLastInsulin,
		TotalInsulin24h:       r.TotalInsulin24h,
	}
	if r.Weight != nil {
		in.WeightKg = *r.Weight
	}
	return in
}

func finiteValue(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &ValidationError{Field: field, Reason: "must be a finite number"}
	}
	return nil
}

func positive(field string, v float64) error {
	if err := finiteValue(field, v); err != nil {
		return err
	}
	if v <= 0 {
		return &ValidationError{Field: field, Reason: "must be greater than 0"}
	}
	return nil
}

func nonNegative(field string, v float64) error {
	if err := finiteValue(field, v); err != nil {
		return err
	}
	if v < 0 {
		return &ValidationError{Field: field, Reason: "must not be negative"}
	}
	return nil
}

func optional(check func(string, float64) error, field string, v *float64) error {
	if v == nil {
		return nil
	}
	return check(field, *v)
}

func calendar(hour, dow *int) error {
	if hour != nil && (*hour < 0 || *hour > 23) {
		return &ValidationError{Field: "hour", Reason: "must be between 0 and 23"}
	}
	if dow != nil && (*dow < 0 || *dow > 6) {
		return &ValidationError{Field: "dayOfWeek", Reason: "must be between 0 (Monday) and 6"}
	}
	return nil
}
