package features

import (
	"math"
	"time"

	"github.com/banshee-data/glucose.report/internal/align"
	"github.com/banshee-data/glucose.report/internal/events"
)

const maxLag = 12

var lagNames = map[int]string{1: GlucoseLag1, 2: GlucoseLag2, 3: GlucoseLag3, 6: GlucoseLag6, 12: GlucoseLag12}

// GlucoseInput is everything known at one point in time for the glucose
// model. Pointer fields are optional; nil selects the default the training
// data uses for the same situation.
type GlucoseInput struct {
	Calendar Calendar

	Current float64
	// History holds earlier readings, oldest first, excluding Current.
	History []float64
	// Lags override glucose_lag_1..3.
	Lags [3]*float64
	// Velocity overrides the rate of change.
	Velocity *float64
	// MinutesSinceReading is the gap to the previous reading. Nil means one
	// sample interval.
	MinutesSinceReading *float64

	InsulinDose         float64
	MinutesSinceInsulin *float64
	CarbIntake          float64
	MinutesSinceCarbs   *float64

	ExerciseIntensity    float64
	ExerciseDuration     float64
	MinutesSinceExercise *float64

	WeightKg float64
	ISF      *float64
	ICR      *float64
}

// series returns the readings the lag and rolling features are computed on,
// oldest first, ending with Current. Without History the lag overrides stand
// in for the missing readings and unset lags repeat Current.
func (in GlucoseInput) series() []float64 {
	if len(in.History) > 0 {
		out := make([]float64, 0, len(in.History)+1)
		out = append(out, in.History...)
		return append(out, in.Current)
	}
	if in.Lags == [3]*float64{} {
		return []float64{in.Current}
	}
	out := make([]float64, 0, len(in.Lags)+1)
	for k := len(in.Lags) - 1; k >= 0; k-- {
		v := in.Current
		if in.Lags[k] != nil {
			v = *in.Lags[k]
		}
		out = append(out, v)
	}
	return append(out, in.Current)
}

// glucoseRow computes the full per-reading row under frame column names.
func glucoseRow(in GlucoseInput, p Params) Row {
	row := make(Row, len(GlucoseFrameColumns))
	in.Calendar.apply(row, true)

	values := in.series()
	row[Value] = in.Current
	for k, name := range lagNames {
		row[name] = Lag(values, k)
	}
	for k := range in.Lags {
		if in.Lags[k] != nil {
			row[lagNames[k+1]] = *in.Lags[k]
		}
	}

	gap := p.SampleInterval.Minutes()
	if in.MinutesSinceReading != nil {
		gap = *in.MinutesSinceReading
	}
	row[TimeDiff] = math.NaN()
	if in.MinutesSinceReading != nil {
		row[TimeDiff] = gap
	}
	if in.Velocity != nil {
		row[Velocity] = *in.Velocity
	} else {
		row[Velocity] = RateOfChange(in.Current, row[GlucoseLag1], gap)
	}
	row[RollingMean], row[RollingStd] = Rolling(values, p.RollingWindow)

	insMin := elapsedOr(in.MinutesSinceInsulin, in.InsulinDose, p.NoEventMinutes)
	row[RecentInsulinDose] = in.InsulinDose
	row[MinutesSinceInsulin] = insMin
	row[InsulinActivity] = InsulinActivityAt(in.InsulinDose, insMin)
	row[ActiveInsulin] = in.InsulinDose * row[InsulinActivity]

	carbMin := elapsedOr(in.MinutesSinceCarbs, in.CarbIntake, p.NoEventMinutes)
	row[RecentCarbIntake] = in.CarbIntake
	row[MinutesSinceCarbs] = carbMin
	row[CarbActivity] = CarbActivityAt(in.CarbIntake, carbMin)
	row[ActiveCarbs] = in.CarbIntake * row[CarbActivity]

	row[RecentExerciseIntensity] = in.ExerciseIntensity
	row[RecentExerciseDuration] = in.ExerciseDuration
	row[MinutesSinceExercise] = elapsedOr(in.MinutesSinceExercise, in.ExerciseDuration, p.NoEventMinutes)

	w := weightOrDefault(in.WeightKg)
	row[Weight] = w
	row[SensitivityFactor], row[CarbRatio] = Factors(w, in.ISF, in.ICR)
	return row
}

// Glucose computes the glucose model's features for a single point in time,
// under dataset column names.
func Glucose(in GlucoseInput, p Params) Row {
	return glucoseRow(in, p).Renamed(GlucoseRenames)
}

// Point is one computed row with the identifying metadata the datasets
// carry as string columns.
type Point struct {
	SubjectID  string
	SourceFile string
	Time       time.Time
	Values     Row
}

// Strings returns the string column values of p.
func (p Point) Strings() map[string]string {
	return map[string]string{
		PatientID:  p.SubjectID,
		SourceFile: p.SourceFile,
		Timestamp:  p.Time.Format(events.OutputLayout),
	}
}

func minutesPtr(m align.Match) *float64 {
	if !m.Found() {
		return nil
	}
	v := m.Minutes()
	return &v
}

// GlucoseInputAt builds the point-in-time input for recs[i]. recs must be a
// single subject's records in time order.
func GlucoseInputAt(recs []align.GlucoseRecord, i int, p Params) GlucoseInput {
	r := recs[i]
	in := GlucoseInput{
		Calendar:             CalendarAt(r.Reading.Time),
		Current:              r.Reading.Value,
		WeightKg:             r.Subject.WeightKg,
		InsulinDose:          r.Insulin.Event.Dose,
		MinutesSinceInsulin:  minutesPtr(r.Insulin.Match),
		CarbIntake:           r.Carbs.Event.Amount,
		MinutesSinceCarbs:    minutesPtr(r.Carbs.Match),
		ExerciseIntensity:    r.Exercise.Event.Intensity,
		ExerciseDuration:     r.Exercise.Event.Duration,
		MinutesSinceExercise: minutesPtr(r.Exercise.Match),
	}
	if i > 0 {
		lo := max(0, i-p.historyLen())
		in.History = make([]float64, 0, i-lo)
		for _, h := range recs[lo:i] {
			in.History = append(in.History, h.Reading.Value)
		}
		gap := r.Reading.Time.Sub(recs[i-1].Reading.Time).Minutes()
		in.MinutesSinceReading = &gap
	}
	return in
}

// GlucosePoints computes the full frame rows for one subject's aligned
// glucose records. Each row goes through the same code as a single
// inference request built from the same history.
func GlucosePoints(recs []align.GlucoseRecord, p Params) []Point {
	out := make([]Point, len(recs))
	for i, r := range recs {
		out[i] = Point{
			SubjectID:  r.Subject.ID,
			SourceFile: r.Subject.SourceFile,
			Time:       r.Reading.Time,
			Values:     glucoseRow(GlucoseInputAt(recs, i, p), p),
		}
	}
	return out
}
