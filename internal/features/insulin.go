package features

import (
	"math"
	"sort"
	"time"

	"github.com/banshee-data/glucose.report/internal/align"
)

// InsulinInput is everything known when a dose is being decided.
type InsulinInput struct {
	Calendar Calendar

	BloodGlucose        float64
	MinutesSinceGlucose *float64
	CarbIntake          float64

	ExerciseIntensity    float64
	ExerciseTime         float64
	MinutesSinceExercise *float64

	WeightKg float64
	ISF      *float64
	ICR      *float64

	PreviousDose      float64
	PreviousMealCarbs float64
	// HoursSinceLastInsulin is nil when no earlier dose is known.
	HoursSinceLastInsulin *float64
	TotalInsulin24h       float64
}

// insulinRow computes the full per-dose row under frame column names.
// The dose itself is not part of it.
func insulinRow(in InsulinInput, p Params) Row {
	row := make(Row, len(InsulinFrameColumns))
	in.Calendar.apply(row, true)
	delete(row, WeekOfYear)
	delete(row, Quarter)

	row[BloodGlucose] = in.BloodGlucose
	row[MinutesSinceGlucose] = p.NoGlucoseMinutes
	if in.MinutesSinceGlucose != nil && usable(*in.MinutesSinceGlucose) {
		row[MinutesSinceGlucose] = *in.MinutesSinceGlucose
	}

	row[MealCarbs] = in.CarbIntake
	row[IsMealBolus] = flag(in.CarbIntake > 0)
	row[IsCorrectionDose] = flag(in.CarbIntake == 0)

	row[PreviousInsulinDose] = in.PreviousDose
	row[PreviousMealCarbs] = in.PreviousMealCarbs
	row[TimeDiffHours] = math.NaN()
	hours := p.NoInsulinHours
	if in.HoursSinceLastInsulin != nil && usable(*in.HoursSinceLastInsulin) {
		hours = *in.HoursSinceLastInsulin
		row[TimeDiffHours] = hours
	}
	row[HoursSinceLastInsulin] = hours
	row[TotalInsulin24h] = in.TotalInsulin24h

	exMin := elapsedOr(in.MinutesSinceExercise, in.ExerciseTime, p.NoExerciseMinutes)
	row[ExerciseIntensity] = in.ExerciseIntensity
	row[ExerciseDuration] = in.ExerciseTime
	row[MinutesSinceExercise] = exMin

	w := weightOrDefault(in.WeightKg)
	isf, icr := Factors(w, in.ISF, in.ICR)
	row[Weight] = w
	row[SensitivityFactor] = isf
	row[CarbRatio] = icr
	row[TargetGlucose] = p.TargetGlucose

	row[GlucoseCorrection] = math.Max(0, (in.BloodGlucose-p.TargetGlucose)/(isf*100))
	row[CarbInsulin] = in.CarbIntake / icr
	load := in.ExerciseIntensity * in.ExerciseTime / 60 / 10
	row[ExerciseFactor] = 1 - math.Min(math.Max(load, 0), 0.5)
	row[ExerciseRecency] = 1
	if exMin < p.RecentExerciseMinutes {
		row[ExerciseRecency] = 0.8
	}
	row[TheoreticalNeed] = (row[GlucoseCorrection] + row[CarbInsulin]) * row[ExerciseRecency]

	row[InsulinOnBoard] = LinearInsulinOnBoard(in.PreviousDose, hours)
	row[ActiveInsulin] = ResidualInsulinHours(in.PreviousDose, hours)
	return row
}

// Insulin computes the insulin model's features for a single decision,
// under dataset column names.
func Insulin(in InsulinInput, p Params) Row {
	return insulinRow(in, p).Renamed(InsulinRenames)
}

// InsulinInputAt builds the point-in-time input for recs[i]. recs must be a
// single subject's records in time order.
func InsulinInputAt(recs []align.InsulinRecord, i int, p Params) InsulinInput {
	r := recs[i]
	in := InsulinInput{
		Calendar:          CalendarAt(r.Dose.Time),
		BloodGlucose:      p.DefaultGlucose,
		CarbIntake:        r.Dose.MealCarbs,
		ExerciseIntensity: r.Exercise.Event.Intensity,
		ExerciseTime:      r.Exercise.Event.Duration,
		WeightKg:          r.Subject.WeightKg,
		TotalInsulin24h:   dosesBetween(recs, r.Dose.Time.Add(-24*time.Hour), r.Dose.Time),
	}
	if r.Glucose.Found() {
		in.BloodGlucose = r.Glucose.Event.Value
		in.MinutesSinceGlucose = minutesPtr(r.Glucose.Match)
	}
	in.MinutesSinceExercise = minutesPtr(r.Exercise.Match)
	if i > 0 {
		prev := recs[i-1].Dose
		in.PreviousDose = prev.Dose
		in.PreviousMealCarbs = prev.MealCarbs
		h := r.Dose.Time.Sub(prev.Time).Hours()
		in.HoursSinceLastInsulin = &h
	}
	return in
}

// dosesBetween sums doses with timestamps in [from, to).
func dosesBetween(recs []align.InsulinRecord, from, to time.Time) float64 {
	lo := sort.Search(len(recs), func(j int) bool { return !recs[j].Dose.Time.Before(from) })
	hi := sort.Search(len(recs), func(j int) bool { return !recs[j].Dose.Time.Before(to) })
	var sum float64
	for _, r := range recs[lo:hi] {
		sum += r.Dose.Dose
	}
	return sum
}

// InsulinPoints computes the full frame rows for one subject's aligned
// insulin records, including the dose column used as the label.
func InsulinPoints(recs []align.InsulinRecord, p Params) []Point {
	out := make([]Point, len(recs))
	for i, r := range recs {
		row := insulinRow(InsulinInputAt(recs, i, p), p)
		row[Dose] = r.Dose.Dose
		out[i] = Point{
			SubjectID:  r.Subject.ID,
			SourceFile: r.Subject.SourceFile,
			Time:       r.Dose.Time,
			Values:     row,
		}
	}
	return out
}
