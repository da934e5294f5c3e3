package features

// Column names shared by the prepared datasets and the model schemas.
const (
	PatientID  = "patient_id"
	SourceFile = "source_file"
	Timestamp  = "timestamp_str"
	Weight     = "weight"

	Hour        = "hour"
	DayOfWeek   = "day_of_week"
	Month       = "month"
	Day         = "day"
	WeekOfYear  = "week_of_year"
	Quarter     = "quarter"
	IsMorning   = "is_morning"
	IsAfternoon = "is_afternoon"
	IsEvening   = "is_evening"
	IsNight     = "is_night"
	IsWeekend   = "is_weekend"

	Value          = "value"
	CurrentGlucose = "current_glucose"
	TimeDiff       = "time_diff"
	GlucoseLag1    = "glucose_lag_1"
	GlucoseLag2    = "glucose_lag_2"
	GlucoseLag3    = "glucose_lag_3"
	GlucoseLag6    = "glucose_lag_6"
	GlucoseLag12   = "glucose_lag_12"
	Velocity       = "glucose_velocity"
	RollingMean    = "glucose_rolling_mean"
	RollingStd     = "glucose_rolling_std"

	RecentInsulinDose   = "recent_insulin_dose"
	MinutesSinceInsulin = "minutes_since_insulin"
	InsulinActivity     = "insulin_activity"
	ActiveInsulin       = "active_insulin"

	RecentCarbIntake  = "recent_carb_intake"
	MinutesSinceCarbs = "minutes_since_carbs"
	CarbActivity      = "carb_activity"
	ActiveCarbs       = "active_carbs"

	RecentExerciseIntensity = "recent_exercise_intensity"
	RecentExerciseDuration  = "recent_exercise_duration"
	MinutesSinceExercise    = "minutes_since_exercise"

	SensitivityFactor = "insulin_sensitivity_factor"
	CarbRatio         = "insulin_to_carb_ratio"

	Future30 = "glucose_future_30min"
	Future60 = "glucose_future_60min"

	// insulin dataset
	Dose                  = "dose"
	InsulinDosage         = "insulin_dosage"
	TimeDiffHours         = "time_diff_hours"
	BloodGlucose          = "blood_glucose"
	MinutesSinceGlucose   = "minutes_since_glucose"
	MealCarbs             = "meal_carbs"
	CarbIntake            = "carb_intake"
	IsMealBolus           = "is_meal_bolus"
	IsCorrectionDose      = "is_correction_dose"
	PreviousInsulinDose   = "previous_insulin_dose"
	PreviousMealCarbs     = "previous_meal_carbs"
	HoursSinceLastInsulin = "hours_since_last_insulin"
	TotalInsulin24h       = "total_insulin_past_24h"
	ExerciseIntensity     = "exercise_intensity"
	ExerciseDuration      = "exercise_duration"
	ExerciseTime          = "exercise_time"
	TargetGlucose         = "target_glucose"
	GlucoseCorrection     = "glucose_correction"
	CarbInsulin           = "carb_insulin"
	ExerciseFactor        = "exercise_factor"
	ExerciseRecency       = "exercise_recency_factor"
	TheoreticalNeed       = "theoretical_insulin_need"
	InsulinOnBoard        = "insulin_on_board"
)

// GlucoseRenames maps glucose frame columns to their dataset names.
var GlucoseRenames = map[string]string{
	Value: CurrentGlucose,
}

// InsulinRenames maps insulin frame columns to their dataset names.
var InsulinRenames = map[string]string{
	Dose:             InsulinDosage,
	MealCarbs:        CarbIntake,
	ExerciseDuration: ExerciseTime,
}

// StringColumns are the non-numeric dataset columns.
var StringColumns = []string{PatientID, Timestamp, SourceFile}

// GlucoseFrameColumns is the column order of the full per-reading frame.
var GlucoseFrameColumns = []string{
	PatientID, Weight,
	Hour, DayOfWeek, Month, Day, WeekOfYear, Quarter,
	IsMorning, IsAfternoon, IsEvening, IsNight, IsWeekend,
	Value, TimeDiff,
	GlucoseLag1, GlucoseLag2, GlucoseLag3, GlucoseLag6, GlucoseLag12,
	Velocity, RollingMean, RollingStd,
	RecentInsulinDose, MinutesSinceInsulin, InsulinActivity, ActiveInsulin,
	RecentCarbIntake, MinutesSinceCarbs, CarbActivity, ActiveCarbs,
	RecentExerciseIntensity, RecentExerciseDuration, MinutesSinceExercise,
	SensitivityFactor, CarbRatio,
	Timestamp, SourceFile,
}

// InsulinFrameColumns is the column order of the full per-dose frame.
var InsulinFrameColumns = []string{
	PatientID, Weight,
	Hour, DayOfWeek, Month, Day, IsWeekend,
	IsMorning, IsAfternoon, IsEvening, IsNight,
	TimeDiffHours,
	BloodGlucose, MinutesSinceGlucose,
	MealCarbs, IsMealBolus, IsCorrectionDose,
	PreviousInsulinDose, PreviousMealCarbs, HoursSinceLastInsulin, TotalInsulin24h,
	ExerciseIntensity, ExerciseDuration, MinutesSinceExercise,
	SensitivityFactor, CarbRatio, TargetGlucose,
	GlucoseCorrection, CarbInsulin, ExerciseFactor, ExerciseRecency, TheoreticalNeed,
	InsulinOnBoard, ActiveInsulin,
	Dose,
	Timestamp, SourceFile,
}
