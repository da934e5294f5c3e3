package align

import (
	"time"

	"github.com/banshee-data/glucose.report/internal/events"
)

// Windows are the lookback limits applied by the joins.
type Windows struct {
	// GlucoseExercise bounds the exercise lookup for glucose rows.
	GlucoseExercise time.Duration
	// InsulinExercise bounds the exercise lookup for insulin rows.
	InsulinExercise time.Duration
	// InsulinGlucose is the preferred window for an insulin row's glucose
	// reading; older readings are still used when nothing falls inside it.
	InsulinGlucose time.Duration
}

func DefaultWindows() Windows {
	return Windows{
		GlucoseExercise: 12 * time.Hour,
		InsulinExercise: 6 * time.Hour,
		InsulinGlucose:  30 * time.Minute,
	}
}

// Prior is the most recent qualifying event of one kind. Event is the zero
// value when nothing qualified.
type Prior[E any] struct {
	Event E
	Match Match
}

func (p Prior[E]) Found() bool { return p.Match.Found() }

func prior[E any](src []E, m Match) Prior[E] {
	p := Prior[E]{Match: m}
	if m.Found() {
		p.Event = src[m.Index]
	}
	return p
}

// GlucoseRecord is one glucose reading with the latest prior insulin, carb and
// exercise events attached.
type GlucoseRecord struct {
	Subject events.Subject
	// Position is the index of Reading in the subject's time-ordered series.
	Position int
	Reading  events.Glucose
	Insulin  Prior[events.Insulin]
	Carbs    Prior[events.Carb]
	Exercise Prior[events.Exercise]
}

// InsulinRecord is one insulin dose with the latest prior glucose reading and
// exercise session attached.
type InsulinRecord struct {
	Subject  events.Subject
	Position int
	Dose     events.Insulin
	Glucose  Prior[events.Glucose]
	Exercise Prior[events.Exercise]
}

// Glucose aligns every glucose reading of s. Insulin is joined without a
// window. Carbs come from the dedicated carb stream when s has one, otherwise
// from the joined insulin event's meal carbs at the same elapsed time.
// Exercise is limited to w.GlucoseExercise.
func Glucose(s *events.Streams, w Windows) []GlucoseRecord {
	readings := sorted(s.Glucose)
	insulin := sorted(s.Insulin)
	carbs := sorted(s.Carbs)
	exercise := sorted(s.Exercise)

	ts := times(readings)
	insM := Asof(ts, insulin, Unbounded, 0)
	exM := Asof(ts, exercise, Windowed, w.GlucoseExercise)
	var carbM []Match
	if s.CarbStream {
		carbM = Asof(ts, carbs, Unbounded, 0)
	}

	out := make([]GlucoseRecord, len(readings))
	for i, g := range readings {
		r := GlucoseRecord{
			Subject:  s.Subject,
			Position: i,
			Reading:  g,
			Insulin:  prior(insulin, insM[i]),
			Exercise: prior(exercise, exM[i]),
		}
		if s.CarbStream {
			r.Carbs = prior(carbs, carbM[i])
		} else {
			r.Carbs = Prior[events.Carb]{Match: insM[i]}
			if insM[i].Found() {
				in := insulin[insM[i].Index]
				r.Carbs.Event = events.Carb{Time: in.Time, Amount: in.MealCarbs}
			}
		}
		out[i] = r
	}
	return out
}

// Insulin aligns every insulin dose of s with the latest glucose reading,
// preferring one within w.InsulinGlucose, and the latest exercise session
// within w.InsulinExercise.
func Insulin(s *events.Streams, w Windows) []InsulinRecord {
	doses := sorted(s.Insulin)
	readings := sorted(s.Glucose)
	exercise := sorted(s.Exercise)

	ts := times(doses)
	gM := Asof(ts, readings, WindowedFallback, w.InsulinGlucose)
	exM := Asof(ts, exercise, Windowed, w.InsulinExercise)

	out := make([]InsulinRecord, len(doses))
	for i, d := range doses {
		out[i] = InsulinRecord{
			Subject:  s.Subject,
			Position: i,
			Dose:     d,
			Glucose:  prior(readings, gM[i]),
			Exercise: prior(exercise, exM[i]),
		}
	}
	return out
}
