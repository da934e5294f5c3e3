package dataset

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/glucose.report/internal/align"
	"github.com/banshee-data/glucose.report/internal/events"
	"github.com/banshee-data/glucose.report/internal/features"
	"github.com/banshee-data/glucose.report/internal/fsutil"
)

var t0 = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

func streams(id string, n int, base float64) *events.Streams {
	s := &events.Streams{Subject: events.Subject{ID: id, WeightKg: 70, SourceFile: id + ".csv"}}
	for i := 0; i < n; i++ {
		s.Glucose = append(s.Glucose, events.Glucose{Time: t0.Add(time.Duration(5*i) * time.Minute), Value: base + float64(i)})
	}
	s.Insulin = []events.Insulin{
		{Time: t0.Add(12 * time.Minute), Dose: 4, MealCarbs: 45},
		{Time: t0.Add(50 * time.Minute), Dose: 1},
	}
	return s
}

func fullGlucose(ss ...*events.Streams) *Frame {
	var pts []features.Point
	for _, s := range ss {
		pts = append(pts, features.GlucosePoints(align.Glucose(s, align.DefaultWindows()), features.DefaultParams())...)
	}
	return GlucoseFrame(pts)
}

func TestBuildGlucoseTargets(t *testing.T) {
	full := fullGlucose(streams("a", 20, 100), streams("b", 10, 200))
	require.Equal(t, 30, full.Len())

	tests := []struct {
		name     string
		horizon  int
		wantRows int
		firstA   float64
		firstB   float64
	}{
		{"30 minutes", 30, 14 + 4, 106, 206},
		{"60 minutes", 60, 8, 112, -1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ds, err := BuildGlucose(full, tc.horizon, features.DefaultParams())
			require.NoError(t, err)
			assert.Equal(t, tc.wantRows, ds.Len())

			target, ok := ds.Float(features.FutureColumn(tc.horizon))
			require.True(t, ok)
			cur, ok := ds.Float(features.CurrentGlucose)
			require.True(t, ok)
			ids, _ := ds.Strings(features.PatientID)

			assert.Equal(t, tc.firstA, target[0])
			for i := range target {
				assert.False(t, math.IsNaN(target[i]))
				assert.Equal(t, cur[i]+float64(tc.horizon/5), target[i], "row %d subject %s", i, ids[i])
			}
			if tc.firstB > 0 {
				j := 20 - tc.horizon/5
				assert.Equal(t, "b", ids[j])
				assert.Equal(t, tc.firstB, target[j])
			} else {
				assert.NotContains(t, ids, "b")
			}

			assert.False(t, ds.Has(features.Value))
			assert.False(t, ds.Has(features.FutureColumn(90-tc.horizon)))
			td, _ := ds.Float(features.TimeDiff)
			assert.Zero(t, td[0])
		})
	}
}

func TestBuildGlucoseMissingColumns(t *testing.T) {
	full := fullGlucose(streams("a", 20, 100))
	sel, err := full.Select(features.PatientID, features.Timestamp, features.Hour)
	require.NoError(t, err)

	_, err = BuildGlucose(sel, 30, features.DefaultParams())
	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "glucose_30min", se.Dataset)
	assert.Equal(t, []string{features.Value}, se.Missing)
	assert.Contains(t, err.Error(), "value")

	noLag, err := full.Select(features.PatientID, features.Timestamp, features.Value)
	require.NoError(t, err)
	_, err = BuildGlucose(noLag, 30, features.DefaultParams())
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Missing, features.GlucoseLag1)
}

func TestBuildInsulin(t *testing.T) {
	s := streams("a", 20, 100)
	pts := features.InsulinPoints(align.Insulin(s, align.DefaultWindows()), features.DefaultParams())
	ds, err := BuildInsulin(InsulinFrame(pts))
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())

	dose, ok := ds.Float(features.InsulinDosage)
	require.True(t, ok)
	assert.Equal(t, []float64{4, 1}, dose)
	carbs, _ := ds.Float(features.CarbIntake)
	assert.Equal(t, []float64{45, 0}, carbs)
	assert.True(t, ds.Has(features.ExerciseTime))
	assert.False(t, ds.Has(features.Dose))
	td, _ := ds.Float(features.TimeDiffHours)
	assert.Zero(t, td[0])

	x, y, err := ds.Matrix(features.InsulinSchema())
	require.NoError(t, err)
	r, c := x.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 16, c)
	assert.Equal(t, dose, y)

	_, err = BuildInsulin(NewFrame())
	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Len(t, se.Missing, 4)
}

func TestCSVRoundTrip(t *testing.T) {
	full := fullGlucose(streams("a", 8, 100))
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, full))

	header := strings.SplitN(buf.String(), "\n", 2)[0]
	assert.Equal(t, strings.Join(features.GlucoseFrameColumns, ","), header)
	assert.Contains(t, buf.String(), "2023-01-01 00:05:00")

	back, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, full.Columns(), back.Columns())
	assert.True(t, back.IsString(features.Timestamp))
	for _, c := range full.Columns() {
		if full.IsString(c) {
			a, _ := full.Strings(c)
			b, _ := back.Strings(c)
			assert.Equal(t, a, b, c)
			continue
		}
		a, _ := full.Float(c)
		b, _ := back.Float(c)
		if diff := cmp.Diff(a, b, cmpopts.EquateNaNs()); diff != "" {
			t.Errorf("column %s (-want +got):\n%s", c, diff)
		}
	}
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("value,patient_id\nabc,1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2 column value")

	_, err = ReadCSV(strings.NewReader("value,patient_id\n1\n"))
	require.Error(t, err)

	f, err := ReadCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, f.Len())

	f, err = ReadCSV(strings.NewReader("value,patient_id\n"))
	require.NoError(t, err)
	assert.Zero(t, f.Len())
	assert.Equal(t, []string{"value", "patient_id"}, f.Columns())
}

func TestFileRoundTrip(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	f := NewFrame()
	require.NoError(t, f.AddString(features.PatientID, []string{"1", "2"}))
	require.NoError(t, f.AddFloat(features.Value, []float64{1.5, math.NaN()}))
	require.NoError(t, WriteFile(mfs, "/out/"+InsulinFile, f))

	back, err := ReadFile(mfs, "/out/"+InsulinFile)
	require.NoError(t, err)
	v, _ := back.Float(features.Value)
	assert.Equal(t, 1.5, v[0])
	assert.True(t, math.IsNaN(v[1]))

	_, err = ReadFile(mfs, "/out/missing.csv")
	assert.Error(t, err)
}

func TestFrameOps(t *testing.T) {
	f := NewFrame()
	require.NoError(t, f.AddFloat("x", []float64{1, 2, 3}))
	require.NoError(t, f.AddString("id", []string{"a", "b", "c"}))
	assert.Error(t, f.AddFloat("y", []float64{1}))
	assert.Error(t, f.AddFloat("x", []float64{1, 2, 3}))

	odd := f.Filter(func(i int) bool { return i%2 == 0 })
	xs, _ := odd.Float("x")
	assert.Equal(t, []float64{1, 3}, xs)

	require.NoError(t, odd.Append(odd.Filter(func(i int) bool { return i == 0 })))
	xs, _ = odd.Float("x")
	assert.Equal(t, []float64{1, 3, 1}, xs)
	assert.Equal(t, 3, odd.Len())

	f.Rename(map[string]string{"x": "z"})
	assert.Equal(t, []string{"z", "id"}, f.Columns())
	assert.Equal(t, features.Row{"z": 2}, f.Row(1))

	other := NewFrame()
	require.NoError(t, other.AddFloat("q", []float64{1}))
	assert.Error(t, f.Append(other))

	empty := NewFrame()
	require.NoError(t, empty.Append(f))
	assert.Equal(t, 3, empty.Len())

	_, err := f.Select("nope")
	assert.Error(t, err)
	_, _, err = f.Matrix(features.Schema{Name: "t", Columns: []string{"z"}, Target: "y"})
	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"y"}, se.Missing)
}
