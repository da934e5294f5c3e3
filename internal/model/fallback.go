package model

import (
	"math"

	"github.com/banshee-data/glucose.report/internal/features"
)

// Method reports which path produced a prediction.
type Method string

const (
	MethodModel Method = "ml-model"
	MethodRules Method = "rule-based"
)

// Confidence scores reported with each method.
const (
	ModelConfidence = 0.85
	RulesConfidence = 0.6
)

// Per-hour effects used by the rule-based glucose estimate.
const (
	insulinEffectPerUnit  = -3.0
	carbEffectPerGram     = 0.2
	exerciseEffectPerLoad = -0.1
	exerciseDoseReduction = 0.2
)

// Limits bound the reported predictions.
type Limits struct {
	MinGlucose float64
	MaxGlucose float64
	DoseStep   float64
}

func DefaultLimits() Limits {
	return Limits{MinGlucose: 40, MaxGlucose: 400, DoseStep: 0.5}
}

// Glucose clamps v to the plausible range and rounds it to a whole mg/dL.
func (l Limits) Glucose(v float64) float64 {
	return math.RoundToEven(math.Min(l.MaxGlucose, math.Max(l.MinGlucose, v)))
}

// Dose rounds v to the dose step and floors it at zero.
func (l Limits) Dose(v float64) float64 {
	step := l.DoseStep
	if step <= 0 {
		step = 0.5
	}
	return math.Max(0, math.RoundToEven(v/step)*step)
}

// round1 rounds to one decimal. Adding zero clears a negative zero.
func round1(v float64) float64 { return math.Round(v*10)/10 + 0 }

// GlucoseDetails are the effects behind a glucose prediction, in mg/dL.
type GlucoseDetails struct {
	InsulinEffect  float64 `json:"insulinEffect"`
	CarbEffect     float64 `json:"carbEffect"`
	ExerciseEffect float64 `json:"exerciseEffect"`
}

// GlucosePrediction is the answer to a GlucoseRequest.
type GlucosePrediction struct {
	PredictedGlucose  float64        `json:"predictedGlucose"`
	Details           GlucoseDetails `json:"details"`
	PredictionHorizon int            `json:"predictionHorizon"`
	Method            Method         `json:"method"`
	Confidence        float64        `json:"confidence"`
}

// glucoseEffects returns the insulin, carb and exercise effects over hours.
func glucoseEffects(r GlucoseRequest, hours float64) (insulin, carbs, exercise float64) {
	insulin = r.InsulinDose * insulinEffectPerUnit * hours
	carbs = r.TotalCarbs * carbEffectPerGram * hours
	exercise = r.ExerciseDuration * r.Intensity() * exerciseEffectPerLoad * hours
	return
}

// GlucoseRules is the deterministic glucose estimate used without a model.
func GlucoseRules(r GlucoseRequest, l Limits) GlucosePrediction {
	h := r.Horizon()
	ins, carbs, ex := glucoseEffects(r, float64(h)/60)
	return GlucosePrediction{
		PredictedGlucose:  l.Glucose(r.CurrentGlucose + ins + carbs + ex),
		Details:           GlucoseDetails{InsulinEffect: round1(ins), CarbEffect: round1(carbs), ExerciseEffect: round1(ex)},
		PredictionHorizon: h,
		Method:            MethodRules,
		Confidence:        RulesConfidence,
	}
}

// InsulinDetails are the components behind a dose recommendation.
type InsulinDetails struct {
	CurrentGlucose    float64 `json:"currentGlucose"`
	GlucoseDifference float64 `json:"glucoseDifference"`
	CarbEffect        float64 `json:"carbEffect"`
	ExerciseReduction float64 `json:"exerciseReduction"`
}

// InsulinPrediction is the answer to an InsulinRequest.
type InsulinPrediction struct {
	RecommendedDosage float64        `json:"recommendedDosage"`
	Details           InsulinDetails `json:"details"`
	Method            Method         `json:"method"`
	Confidence        float64        `json:"confidence"`
}

type insulinTerms struct {
	diff, correction, carbs, exercise float64
}

func doseTerms(r InsulinRequest, p features.Params) insulinTerms {
	var weight float64
	if r.Weight != nil {
		weight = *r.Weight
	}
	isf, icr := features.Factors(weight, r.InsulinSensitivityFactor, r.InsulinToCarbRatio)
	t := insulinTerms{
		diff:     r.BloodGlucose - p.TargetGlucose,
		carbs:    r.CarbIntake / icr,
		exercise: r.ExerciseTime * exerciseDoseReduction,
	}
	if t.diff > 0 {
		t.correction = math.Ceil(t.diff / isf)
	}
	return t
}

func (t insulinTerms) details(r InsulinRequest) InsulinDetails {
	return InsulinDetails{
		CurrentGlucose:    r.BloodGlucose,
		GlucoseDifference: round1(t.diff),
		CarbEffect:        round1(t.carbs),
		ExerciseReduction: round1(t.exercise),
	}
}

// InsulinRules is the deterministic dose recommendation used without a
// model: the current dosage plus a whole-unit correction and the carb
// coverage, less the exercise reduction.
func InsulinRules(r InsulinRequest, p features.Params, l Limits) InsulinPrediction {
	t := doseTerms(r, p)
	dose := math.Max(0, r.CurrentInsulinDosage+t.correction+t.carbs-t.exercise)
	return InsulinPrediction{
		RecommendedDosage: l.Dose(dose),
		Details:           t.details(r),
		Method:            MethodRules,
		Confidence:        RulesConfidence,
	}
}
