// Package pipeline turns raw per-subject event streams into the training
// datasets. Subjects are independent and are processed in parallel.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/glucose.report/internal/align"
	"github.com/banshee-data/glucose.report/internal/dataset"
	"github.com/banshee-data/glucose.report/internal/events"
	"github.com/banshee-data/glucose.report/internal/features"
	"github.com/banshee-data/glucose.report/internal/fsutil"
	"github.com/banshee-data/glucose.report/internal/monitoring"
)

// Options configures a pipeline run.
type Options struct {
	Params   features.Params
	Windows  align.Windows
	Horizons []int
	// Workers bounds concurrent subjects. Zero means GOMAXPROCS.
	Workers int
}

// DefaultOptions builds datasets for the 30 and 60 minute horizons.
func DefaultOptions() Options {
	return Options{
		Params:   features.DefaultParams(),
		Windows:  align.DefaultWindows(),
		Horizons: []int{30, 60},
	}
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// SubjectResult holds one subject's computed rows.
type SubjectResult struct {
	Subject events.Subject
	Glucose []features.Point
	Insulin []features.Point
	Dropped events.DropCounts
}

// ProcessSubject aligns and featurises one subject. It only reads s.
func ProcessSubject(s *events.Streams, opts Options) SubjectResult {
	return SubjectResult{
		Subject: s.Subject,
		Glucose: features.GlucosePoints(align.Glucose(s, opts.Windows), opts.Params),
		Insulin: features.InsulinPoints(align.Insulin(s, opts.Windows), opts.Params),
		Dropped: s.Dropped,
	}
}

// Result is the merged output of a run.
type Result struct {
	Subjects []SubjectResult
	// GlucoseFull and InsulinFull hold every computed row before target
	// construction.
	GlucoseFull *dataset.Frame
	InsulinFull *dataset.Frame
	// Glucose holds one dataset per horizon that could be built.
	Glucose map[int]*dataset.Frame
	Insulin *dataset.Frame
	// Errors lists the datasets that could not be built.
	Errors []error
}

// Run processes every subject and builds the datasets. Rows are merged in
// the order of streams regardless of completion order. A dataset that
// fails with a *dataset.SchemaError is reported in Result.Errors and the
// others are still built.
func Run(ctx context.Context, streams []*events.Streams, opts Options) (*Result, error) {
	defer monitoring.Stage(fmt.Sprintf("pipeline subjects=%d", len(streams)))()

	results := make([]SubjectResult, len(streams))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())
	for i, s := range streams {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = ProcessSubject(s, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var glucose, insulin []features.Point
	for _, r := range results {
		glucose = append(glucose, r.Glucose...)
		insulin = append(insulin, r.Insulin...)
		monitoring.Logf("subject %s: %d glucose rows, %d insulin rows, %d dropped",
			r.Subject.ID, len(r.Glucose), len(r.Insulin), r.Dropped.Total())
	}

	res := &Result{
		Subjects:    results,
		GlucoseFull: dataset.GlucoseFrame(glucose),
		InsulinFull: dataset.InsulinFrame(insulin),
		Glucose:     make(map[int]*dataset.Frame, len(opts.Horizons)),
	}
	for _, h := range opts.Horizons {
		ds, err := dataset.BuildGlucose(res.GlucoseFull, h, opts.Params)
		if err := res.absorb(err); err != nil {
			return nil, err
		}
		if ds != nil {
			res.Glucose[h] = ds
		}
	}
	ds, err := dataset.BuildInsulin(res.InsulinFull)
	if err := res.absorb(err); err != nil {
		return nil, err
	}
	res.Insulin = ds
	return res, nil
}

func (r *Result) absorb(err error) error {
	var se *dataset.SchemaError
	if errors.As(err, &se) {
		monitoring.Logf("pipeline: %v", err)
		r.Errors = append(r.Errors, err)
		return nil
	}
	return err
}

// LoadFiles reads raw event logs in parallel. Subjects keep file order,
// then first-appearance order within a file.
func LoadFiles(ctx context.Context, paths []string, ropts events.ReadOptions, workers int) ([]*events.Streams, error) {
	perFile := make([][]*events.Streams, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ss, err := events.LoadFile(path, ropts)
			if err != nil {
				return fmt.Errorf("load %s: %w", path, err)
			}
			perFile[i] = ss
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []*events.Streams
	for _, ss := range perFile {
		out = append(out, ss...)
	}
	return out, nil
}

// WriteDatasets writes every built dataset to dir and returns the paths.
func WriteDatasets(fsys fsutil.FileSystem, dir string, r *Result) ([]string, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var paths []string
	write := func(name string, f *dataset.Frame) error {
		path := filepath.Join(dir, name)
		if err := dataset.WriteFile(fsys, path, f); err != nil {
			return err
		}
		monitoring.Logf("wrote %s (%d rows)", path, f.Len())
		paths = append(paths, path)
		return nil
	}
	for _, h := range slices.Sorted(maps.Keys(r.Glucose)) {
		if err := write(dataset.GlucoseFile(h), r.Glucose[h]); err != nil {
			return paths, err
		}
	}
	if r.Insulin != nil {
		if err := write(dataset.InsulinFile, r.Insulin); err != nil {
			return paths, err
		}
	}
	return paths, nil
}
