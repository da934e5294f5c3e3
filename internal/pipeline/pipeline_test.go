package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/glucose.report/internal/dataset"
	"github.com/banshee-data/glucose.report/internal/events"
	"github.com/banshee-data/glucose.report/internal/features"
	"github.com/banshee-data/glucose.report/internal/fsutil"
)

var t0 = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

func subject(id string, n int) *events.Streams {
	s := &events.Streams{Subject: events.Subject{ID: id, WeightKg: 65, SourceFile: "raw.csv"}}
	for i := 0; i < n; i++ {
		s.Glucose = append(s.Glucose, events.Glucose{Time: t0.Add(time.Duration(5*i) * time.Minute), Value: 100 + float64(i%7)})
	}
	s.Insulin = []events.Insulin{{Time: t0.Add(31 * time.Minute), Dose: 3, MealCarbs: 40}}
	s.Exercise = []events.Exercise{{Time: t0.Add(40 * time.Minute), Intensity: 2, Duration: 30}}
	return s
}

func TestRunMergesInInputOrder(t *testing.T) {
	streams := []*events.Streams{subject("7", 40), subject("2", 25), subject("9", 30)}

	var frames []*Result
	for _, workers := range []int{1, 3} {
		opts := DefaultOptions()
		opts.Workers = workers
		res, err := Run(context.Background(), streams, opts)
		require.NoError(t, err)
		frames = append(frames, res)
	}
	res := frames[0]
	require.Len(t, res.Subjects, 3)
	assert.Equal(t, "7", res.Subjects[0].Subject.ID)
	assert.Equal(t, 95, res.GlucoseFull.Len())
	assert.Equal(t, 3, res.InsulinFull.Len())
	assert.Empty(t, res.Errors)

	require.Contains(t, res.Glucose, 30)
	require.Contains(t, res.Glucose, 60)
	assert.Equal(t, 95-3*6, res.Glucose[30].Len())
	assert.Equal(t, 95-3*12, res.Glucose[60].Len())
	assert.Equal(t, 3, res.Insulin.Len())

	ids, _ := res.Glucose[30].Strings(features.PatientID)
	assert.Equal(t, "7", ids[0])
	assert.Equal(t, "2", ids[40-6])
	assert.Equal(t, "9", ids[len(ids)-1])

	want := ProcessSubject(streams[1], DefaultOptions())
	assert.Equal(t, want.Glucose[5].Values[features.MinutesSinceInsulin], res.Subjects[1].Glucose[5].Values[features.MinutesSinceInsulin])

	for _, c := range res.Glucose[60].Columns() {
		if res.Glucose[60].IsString(c) {
			a, _ := res.Glucose[60].Strings(c)
			b, _ := frames[1].Glucose[60].Strings(c)
			assert.Equal(t, a, b, c)
			continue
		}
		a, _ := res.Glucose[60].Float(c)
		b, _ := frames[1].Glucose[60].Float(c)
		assert.Equal(t, a, b, c)
	}
}

func TestRunKeepsTargetsWithinSourceFile(t *testing.T) {
	stream := func(file string, start time.Time, base float64) *events.Streams {
		s := &events.Streams{Subject: events.Subject{ID: "1", WeightKg: 70, SourceFile: file}}
		for i := 0; i < 10; i++ {
			s.Glucose = append(s.Glucose, events.Glucose{Time: start.Add(time.Duration(5*i) * time.Minute), Value: base + float64(i)})
		}
		return s
	}
	streams := []*events.Streams{
		stream("a.csv", t0.AddDate(0, 0, 2), 100),
		stream("b.csv", t0, 200),
	}

	res, err := Run(context.Background(), streams, DefaultOptions())
	require.NoError(t, err)
	ds := res.Glucose[30]
	require.NotNil(t, ds)
	require.Equal(t, 8, ds.Len())

	target, _ := ds.Float(features.FutureColumn(30))
	cur, _ := ds.Float(features.CurrentGlucose)
	files, _ := ds.Strings(features.SourceFile)
	for i := range target {
		assert.Equal(t, cur[i]+6, target[i], "row %d from %s", i, files[i])
	}
	assert.Equal(t, []string{"a.csv", "a.csv", "a.csv", "a.csv", "b.csv", "b.csv", "b.csv", "b.csv"}, files)
	require.Contains(t, res.Glucose, 60)
	assert.Zero(t, res.Glucose[60].Len())
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, []*events.Streams{subject("1", 10)}, DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAbsorbSchemaError(t *testing.T) {
	var r Result
	assert.NoError(t, r.absorb(nil))
	assert.NoError(t, r.absorb(&dataset.SchemaError{Dataset: "insulin", Missing: []string{"dose"}}))
	require.Len(t, r.Errors, 1)
	other := errors.New("disk full")
	assert.ErrorIs(t, r.absorb(other), other)
}

func TestLoadAndWrite(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.csv", "b.csv"} {
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		require.NoError(t, err)
		id := name[:1]
		require.NoError(t, events.WriteCSV(f, []*events.Streams{subject(id, 30)}))
		require.NoError(t, f.Close())
		paths = append(paths, path)
	}

	streams, err := LoadFiles(context.Background(), paths, events.ReadOptions{}, 2)
	require.NoError(t, err)
	require.Len(t, streams, 2)
	assert.Equal(t, "a", streams[0].Subject.ID)
	assert.Equal(t, "b.csv", streams[1].Subject.SourceFile)
	assert.Len(t, streams[1].Glucose, 30)

	_, err = LoadFiles(context.Background(), []string{filepath.Join(dir, "missing.csv")}, events.ReadOptions{}, 0)
	assert.Error(t, err)

	res, err := Run(context.Background(), streams, DefaultOptions())
	require.NoError(t, err)
	mfs := fsutil.NewMemoryFileSystem()
	written, err := WriteDatasets(mfs, "/out", res)
	require.NoError(t, err)
	assert.Equal(t, []string{"/out/glucose_30min_data.csv", "/out/glucose_60min_data.csv", "/out/insulin_data.csv"}, written)

	back, err := dataset.ReadFile(mfs, written[0])
	require.NoError(t, err)
	assert.Equal(t, res.Glucose[30].Len(), back.Len())
	assert.True(t, back.Has(features.FutureColumn(30)))
}
