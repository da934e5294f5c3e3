package features

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/glucose.report/internal/align"
	"github.com/banshee-data/glucose.report/internal/events"
)

func TestInsulinPoints(t *testing.T) {
	s := fixtureStreams()
	s.Insulin = append(s.Insulin, events.Insulin{Time: at(180), Dose: 2, MealCarbs: 20})
	p := DefaultParams()
	points := InsulinPoints(align.Insulin(s, align.DefaultWindows()), p)
	require.Len(t, points, 3)

	first := points[0].Values
	assert.Equal(t, 5.0, first[Dose])
	assert.Equal(t, s.Glucose[4].Value, first[BloodGlucose])
	assert.Equal(t, 2.0, first[MinutesSinceGlucose])
	assert.Equal(t, 8.0, first[HoursSinceLastInsulin])
	assert.True(t, math.IsNaN(first[TimeDiffHours]))
	assert.Zero(t, first[PreviousInsulinDose])
	assert.Zero(t, first[TotalInsulin24h])
	assert.Equal(t, 360.0, first[MinutesSinceExercise])
	assert.Equal(t, 1.0, first[IsMealBolus])
	assert.Equal(t, 0.0, first[IsCorrectionDose])
	assert.Equal(t, 1.0, first[ExerciseRecency])

	second := points[1].Values
	assert.Equal(t, 5.0, second[PreviousInsulinDose])
	assert.Equal(t, 60.0, second[PreviousMealCarbs])
	assert.InDelta(t, 79.0/60, second[HoursSinceLastInsulin], 1e-12)
	assert.Equal(t, 5.0, second[TotalInsulin24h])
	assert.Equal(t, 1.0, second[IsCorrectionDose])
	assert.InDelta(t, LinearInsulinOnBoard(5, 79.0/60), second[InsulinOnBoard], 1e-12)
	assert.InDelta(t, ResidualInsulinHours(5, 79.0/60), second[ActiveInsulin], 1e-12)

	third := points[2].Values
	assert.Equal(t, 6.5, third[TotalInsulin24h])
	assert.Equal(t, 40.0, third[MinutesSinceExercise])
	assert.Equal(t, 3.0, third[ExerciseIntensity])
	assert.Equal(t, 25.0, third[ExerciseDuration])
	assert.Equal(t, 0.8, third[ExerciseRecency])
	assert.InDelta(t, 1-(3*25.0/60)/10, third[ExerciseFactor], 1e-12)

	isf, icr := SensitivityFor(82), CarbRatioFor(82)
	wantCorr := math.Max(0, (third[BloodGlucose]-120)/(isf*100))
	assert.InDelta(t, wantCorr, third[GlucoseCorrection], 1e-12)
	assert.InDelta(t, 20/icr, third[CarbInsulin], 1e-12)
	assert.InDelta(t, (wantCorr+20/icr)*0.8, third[TheoreticalNeed], 1e-12)
}

func TestInsulinBatchMatchesScalar(t *testing.T) {
	s := fixtureStreams()
	p := DefaultParams()
	recs := align.Insulin(s, align.DefaultWindows())
	points := InsulinPoints(recs, p)

	second := s.Insulin[1]
	in := InsulinInput{
		Calendar:              CalendarAt(second.Time),
		BloodGlucose:          s.Glucose[20].Value,
		MinutesSinceGlucose:   ptr(1.0),
		CarbIntake:            0,
		WeightKg:              82,
		PreviousDose:          5,
		PreviousMealCarbs:     60,
		HoursSinceLastInsulin: ptr(79.0 / 60),
		TotalInsulin24h:       5,
		MinutesSinceExercise:  nil,
	}
	want := points[1].Values.Renamed(InsulinRenames)
	delete(want, InsulinDosage)
	if diff := cmp.Diff(want, Insulin(in, p), floatOpts); diff != "" {
		t.Errorf("(-batch +scalar):\n%s", diff)
	}
}

func TestInsulinNoGlucose(t *testing.T) {
	s := fixtureStreams()
	s.Glucose = nil
	points := InsulinPoints(align.Insulin(s, align.DefaultWindows()), DefaultParams())
	for _, pt := range points {
		assert.Equal(t, 120.0, pt.Values[BloodGlucose])
		assert.Equal(t, 60.0, pt.Values[MinutesSinceGlucose])
	}
}

func TestInsulinSchemaCovered(t *testing.T) {
	row := Insulin(InsulinInput{BloodGlucose: 180, CarbIntake: 50, ExerciseTime: 30, WeightKg: 70}, DefaultParams())
	assert.Empty(t, InsulinSchema().Missing(row))
	assert.Equal(t, 0.0, row[MinutesSinceExercise])
	assert.Equal(t, 30.0, row[ExerciseTime])
	assert.Equal(t, 50.0, row[CarbIntake])
}
