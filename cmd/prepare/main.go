// Command prepare turns raw event logs into the glucose and insulin
// training datasets.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"

	"github.com/banshee-data/glucose.report/internal/config"
	"github.com/banshee-data/glucose.report/internal/dataset"
	"github.com/banshee-data/glucose.report/internal/db"
	"github.com/banshee-data/glucose.report/internal/events"
	"github.com/banshee-data/glucose.report/internal/fsutil"
	"github.com/banshee-data/glucose.report/internal/pipeline"
	"github.com/banshee-data/glucose.report/internal/timeutil"
)

type options struct {
	inputs []string
	outDir string
	dbPath string
	runID  string
	fsys   fsutil.FileSystem
	clock  timeutil.Clock
}

func main() {
	var (
		configPath string
		envPath    string
		o          options
	)
	flag.StringVar(&configPath, "config", "", "Path to a JSON or YAML tuning file")
	flag.StringVar(&envPath, "env", ".env", "Optional .env file with GLUCOSE_* overrides")
	flag.StringVar(&o.outDir, "out", "", "Output directory for dataset CSVs (overrides config)")
	flag.StringVar(&o.dbPath, "db", "", "Also import events and snapshot datasets into this SQLite database")
	flag.StringVar(&o.runID, "run", "", "Run ID for database snapshots (default: random UUID)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <log.csv|dir>...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Resolve(configPath, envPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	o.inputs = flag.Args()
	o.fsys = fsutil.OSFileSystem{}
	o.clock = timeutil.RealClock{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	paths, err := run(ctx, cfg, o)
	if err != nil {
		log.Fatalf("prepare: %v", err)
	}
	for _, p := range paths {
		fmt.Println(p)
	}
}

// expandInputs replaces each directory with the CSV files directly inside it.
func expandInputs(inputs []string) ([]string, error) {
	var out []string
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, in)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(in, "*.csv"))
		if err != nil {
			return nil, err
		}
		slices.Sort(matches)
		out = append(out, matches...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no input files")
	}
	return out, nil
}

func run(ctx context.Context, cfg *config.Config, o options) ([]string, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	inputs, err := expandInputs(o.inputs)
	if err != nil {
		return nil, err
	}
	popts := cfg.PipelineOptions()
	streams, err := pipeline.LoadFiles(ctx, inputs, events.ReadOptions{Location: loc}, popts.Workers)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded %d subjects from %d files", len(streams), len(inputs))

	res, err := pipeline.Run(ctx, streams, popts)
	if err != nil {
		return nil, err
	}
	for _, e := range res.Errors {
		log.Printf("skipped dataset: %v", e)
	}

	outDir := o.outDir
	if outDir == "" {
		outDir = cfg.GetOutputDir()
	}
	paths, err := pipeline.WriteDatasets(o.fsys, outDir, res)
	if err != nil {
		return paths, err
	}

	if o.dbPath != "" {
		if err := store(ctx, o, streams, res); err != nil {
			return paths, err
		}
	}
	return paths, nil
}

// store imports the raw events and freezes every built dataset under one run.
func store(ctx context.Context, o options, streams []*events.Streams, res *pipeline.Result) (err error) {
	conn, err := db.NewDB(o.dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	st, err := conn.ImportStreams(ctx, streams, o.clock.Now())
	if err != nil {
		return fmt.Errorf("import events: %w", err)
	}
	log.Printf("imported %d subjects: %d events inserted, %d already stored", st.Subjects, st.Inserted, st.Skipped)

	runID := o.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	if err := conn.BeginRun(ctx, runID, map[string]any{"stage": "prepare", "inputs": o.inputs}, o.clock.Now()); err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	defer func() {
		if ferr := conn.FinishRun(ctx, runID, err, o.clock.Now()); ferr != nil && err == nil {
			err = ferr
		}
	}()

	for name, f := range snapshots(res) {
		if err := conn.SnapshotDataset(ctx, runID, name, f); err != nil {
			return fmt.Errorf("snapshot %s: %w", name, err)
		}
	}
	log.Printf("snapshotted datasets under run %s", runID)
	return nil
}

// snapshots names each built dataset by its CSV file name.
func snapshots(res *pipeline.Result) map[string]*dataset.Frame {
	out := make(map[string]*dataset.Frame, len(res.Glucose)+1)
	for h, f := range res.Glucose {
		out[dataset.GlucoseFile(h)] = f
	}
	if res.Insulin != nil {
		out[dataset.InsulinFile] = res.Insulin
	}
	return out
}
