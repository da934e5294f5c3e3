// Package events models the raw per-subject event streams (glucose readings,
// insulin doses, carbohydrate intake and exercise sessions) and reads them
// from the historical CSV logs.
package events

import (
	"fmt"
	"slices"
	"time"
)

// Kind identifies the event stream an Event belongs to.
type Kind int

const (
	KindGlucose Kind = iota
	KindInsulin
	KindCarb
	KindExercise
)

var kindNames = [...]string{"glucose", "insulin", "carb", "exercise"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for i, n := range kindNames {
		if n == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// Glucose is a single sensor reading in mg/dL.
type Glucose struct {
	Time  time.Time
	Value float64
}

// Insulin is a bolus dose in units. MealCarbs carries the bolus wizard carb
// input in grams, zero when the dose was not tied to a meal.
type Insulin struct {
	Time      time.Time
	Dose      float64
	MealCarbs float64
}

// Carb is a carbohydrate intake in grams.
type Carb struct {
	Time   time.Time
	Amount float64
}

// Exercise is a session with an ordinal intensity (1-3) and a duration in
// minutes.
type Exercise struct {
	Time      time.Time
	Intensity float64
	Duration  float64
}

func (g Glucose) Timestamp() time.Time  { return g.Time }
func (i Insulin) Timestamp() time.Time  { return i.Time }
func (c Carb) Timestamp() time.Time     { return c.Time }
func (e Exercise) Timestamp() time.Time { return e.Time }

// Subject is a person whose events are being processed.
type Subject struct {
	ID         string
	WeightKg   float64
	SourceFile string
}

// Event is the kind-agnostic form used for storage. Only the payload fields
// relevant to Kind are meaningful.
type Event struct {
	SubjectID string
	Time      time.Time
	Kind      Kind
	Value     float64
	Dose      float64
	Carbs     float64
	Intensity float64
	Duration  float64
}

// DropCounts tallies rows removed per stream because a timestamp or value
// could not be parsed.
type DropCounts struct {
	Glucose  int
	Insulin  int
	Carb     int
	Exercise int
}

func (d DropCounts) Total() int {
	return d.Glucose + d.Insulin + d.Carb + d.Exercise
}

func (d *DropCounts) add(k Kind) {
	switch k {
	case KindGlucose:
		d.Glucose++
	case KindInsulin:
		d.Insulin++
	case KindCarb:
		d.Carb++
	case KindExercise:
		d.Exercise++
	}
}

// Streams holds one subject's events, each stream sorted by time ascending.
//
// CarbStream reports whether the carbohydrate events came from a dedicated
// carb timestamp column. When false, Carbs is empty and carbohydrate intake is
// taken from the insulin events' MealCarbs.
type Streams struct {
	Subject    Subject
	Glucose    []Glucose
	Insulin    []Insulin
	Carbs      []Carb
	Exercise   []Exercise
	CarbStream bool
	Dropped    DropCounts
}

// Sort orders every stream by time. Equal timestamps keep their input order.
func (s *Streams) Sort() {
	slices.SortStableFunc(s.Glucose, func(a, b Glucose) int { return a.Time.Compare(b.Time) })
	slices.SortStableFunc(s.Insulin, func(a, b Insulin) int { return a.Time.Compare(b.Time) })
	slices.SortStableFunc(s.Carbs, func(a, b Carb) int { return a.Time.Compare(b.Time) })
	slices.SortStableFunc(s.Exercise, func(a, b Exercise) int { return a.Time.Compare(b.Time) })
}

// Events flattens the streams into storage form ordered by time, then kind.
func (s *Streams) Events() []Event {
	id := s.Subject.ID
	out := make([]Event, 0, len(s.Glucose)+len(s.Insulin)+len(s.Carbs)+len(s.Exercise))
	for _, g := range s.Glucose {
		out = append(out, Event{SubjectID: id, Time: g.Time, Kind: KindGlucose, Value: g.Value})
	}
	for _, i := range s.Insulin {
		out = append(out, Event{SubjectID: id, Time: i.Time, Kind: KindInsulin, Dose: i.Dose, Carbs: i.MealCarbs})
	}
	for _, c := range s.Carbs {
		out = append(out, Event{SubjectID: id, Time: c.Time, Kind: KindCarb, Carbs: c.Amount})
	}
	for _, e := range s.Exercise {
		out = append(out, Event{SubjectID: id, Time: e.Time, Kind: KindExercise, Intensity: e.Intensity, Duration: e.Duration})
	}
	slices.SortStableFunc(out, func(a, b Event) int {
		if c := a.Time.Compare(b.Time); c != 0 {
			return c
		}
		return int(a.Kind) - int(b.Kind)
	})
	return out
}

// FromEvents rebuilds a subject's streams from storage form. Events that
// belong to a different subject are ignored.
func FromEvents(subject Subject, evs []Event) *Streams {
	s := &Streams{Subject: subject}
	for _, e := range evs {
		if e.SubjectID != subject.ID {
			continue
		}
		switch e.Kind {
		case KindGlucose:
			s.Glucose = append(s.Glucose, Glucose{Time: e.Time, Value: e.Value})
		case KindInsulin:
			s.Insulin = append(s.Insulin, Insulin{Time: e.Time, Dose: e.Dose, MealCarbs: e.Carbs})
		case KindCarb:
			s.Carbs = append(s.Carbs, Carb{Time: e.Time, Amount: e.Carbs})
			s.CarbStream = true
		case KindExercise:
			s.Exercise = append(s.Exercise, Exercise{Time: e.Time, Intensity: e.Intensity, Duration: e.Duration})
		}
	}
	s.Sort()
	return s
}
