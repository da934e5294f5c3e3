// Command train fits the glucose and insulin models on prepared datasets and
// writes their artifacts.
package main

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/banshee-data/glucose.report/internal/config"
	"github.com/banshee-data/glucose.report/internal/dataset"
	"github.com/banshee-data/glucose.report/internal/db"
	"github.com/banshee-data/glucose.report/internal/features"
	"github.com/banshee-data/glucose.report/internal/fsutil"
	"github.com/banshee-data/glucose.report/internal/model"
	"github.com/banshee-data/glucose.report/internal/report"
	"github.com/banshee-data/glucose.report/internal/security"
	"github.com/banshee-data/glucose.report/internal/timeutil"
)

// EvaluationFile is the HTML page written alongside the PNG plots.
const EvaluationFile = "evaluation.html"

type options struct {
	dataDir   string
	modelDir  string
	dbPath    string
	reportDir string
	runID     string
	fsys      fsutil.FileSystem
	clock     timeutil.Clock
}

// job is one model to fit.
type job struct {
	file       string
	schema     features.Schema
	tolerances []float64
	data       *dataset.Frame
}

func main() {
	var (
		configPath string
		envPath    string
		o          options
	)
	flag.StringVar(&configPath, "config", "", "Path to a JSON or YAML tuning file")
	flag.StringVar(&envPath, "env", ".env", "Optional .env file with GLUCOSE_* overrides")
	flag.StringVar(&o.dataDir, "data", "", "Directory holding dataset CSVs (overrides config output_dir)")
	flag.StringVar(&o.modelDir, "models", "", "Directory to write model artifacts to (overrides config)")
	flag.StringVar(&o.dbPath, "db", "", "Record the training run in this SQLite database")
	flag.StringVar(&o.reportDir, "report", "", "Write evaluation plots to this directory")
	flag.StringVar(&o.runID, "run", "", "Training run ID (default: random UUID)")
	flag.Parse()

	cfg, err := config.Resolve(configPath, envPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if o.reportDir != "" {
		if err := security.ValidateExportPath(o.reportDir); err != nil {
			log.Fatalf("invalid report directory: %v", err)
		}
	}
	o.fsys = fsutil.OSFileSystem{}
	o.clock = timeutil.RealClock{}

	artifacts, err := run(context.Background(), cfg, o)
	if err != nil {
		log.Fatalf("train: %v", err)
	}
	for _, a := range artifacts {
		fmt.Printf("%-14s rows=%-6d MAE=%.3f RMSE=%.3f R2=%.3f\n",
			a.Schema.Name, a.Rows, a.Metrics.MAE, a.Metrics.RMSE, a.Metrics.R2)
	}
}

// loadJobs reads every dataset present in dir. Missing files are skipped.
func loadJobs(fsys fsutil.FileSystem, dir string, horizons []int) ([]job, error) {
	var jobs []job
	for _, h := range horizons {
		jobs = append(jobs, job{file: dataset.GlucoseFile(h), schema: features.GlucoseSchema(h), tolerances: model.GlucoseTolerances})
	}
	jobs = append(jobs, job{file: dataset.InsulinFile, schema: features.InsulinSchema(), tolerances: model.InsulinTolerances})

	out := jobs[:0]
	for _, j := range jobs {
		f, err := dataset.ReadFile(fsys, filepath.Join(dir, j.file))
		if errors.Is(err, fs.ErrNotExist) {
			log.Printf("no %s in %s, skipping %s", j.file, dir, j.schema.Name)
			continue
		}
		if err != nil {
			return nil, err
		}
		j.data = f
		out = append(out, j)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no datasets found in %s", dir)
	}
	return out, nil
}

func run(ctx context.Context, cfg *config.Config, o options) (artifacts []*model.Artifact, err error) {
	dataDir := cmp.Or(o.dataDir, cfg.GetOutputDir())
	modelDir := cmp.Or(o.modelDir, cfg.GetModelDir())
	jobs, err := loadJobs(o.fsys, dataDir, cfg.GetHorizons())
	if err != nil {
		return nil, err
	}

	topts := cfg.TrainOptions()
	topts.RunID = cmp.Or(o.runID, uuid.NewString())
	topts.Clock = o.clock

	var store *db.DB
	if o.dbPath != "" {
		if store, err = db.NewDB(o.dbPath); err != nil {
			return nil, err
		}
		defer store.Close()
		if err := store.BeginRun(ctx, topts.RunID, cfg, o.clock.Now()); err != nil {
			return nil, fmt.Errorf("begin run: %w", err)
		}
		defer func() {
			if ferr := store.FinishRun(ctx, topts.RunID, err, o.clock.Now()); ferr != nil && err == nil {
				err = ferr
			}
		}()
	}

	var evals []report.Evaluation
	for _, j := range jobs {
		if store != nil {
			if err := store.SnapshotDataset(ctx, topts.RunID, j.file, j.data); err != nil {
				return artifacts, fmt.Errorf("snapshot %s: %w", j.file, err)
			}
		}

		opts := topts
		opts.Tolerances = j.tolerances
		a, err := model.Train(j.data, j.schema, opts)
		if err != nil {
			return artifacts, err
		}
		path, err := a.Save(o.fsys, modelDir)
		if err != nil {
			return artifacts, err
		}
		log.Printf("saved %s", path)
		artifacts = append(artifacts, a)

		if store != nil {
			if err := store.RecordModel(ctx, a); err != nil {
				return artifacts, fmt.Errorf("record %s: %w", a.Schema.Name, err)
			}
		}
		if o.reportDir != "" {
			pred, actual, err := model.Holdout(j.data, a, topts.TestFraction)
			if err != nil {
				return artifacts, err
			}
			evals = append(evals, report.Evaluation{Name: a.Schema.Name, Predicted: pred, Actual: actual, Metrics: a.Metrics})
		}
	}

	if o.reportDir != "" {
		if err := writeReport(o.fsys, o.reportDir, evals); err != nil {
			return artifacts, err
		}
	}
	return artifacts, nil
}

// writeReport saves a PNG per model and one interactive page with them all.
func writeReport(fsys fsutil.FileSystem, dir string, evals []report.Evaluation) error {
	for _, e := range evals {
		path, err := report.SavePNG(fsys, dir, e)
		if err != nil {
			return fmt.Errorf("plot %s: %w", e.Name, err)
		}
		log.Printf("wrote %s", path)
	}
	f, err := fsys.Create(filepath.Join(dir, EvaluationFile))
	if err != nil {
		return err
	}
	if err := report.WriteEvaluation(f, evals); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
