package main

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/banshee-data/glucose.report/internal/api"
	"github.com/banshee-data/glucose.report/internal/config"
	"github.com/banshee-data/glucose.report/internal/db"
	"github.com/banshee-data/glucose.report/internal/fsutil"
	"github.com/banshee-data/glucose.report/internal/httputil"
	"github.com/banshee-data/glucose.report/internal/model"
	"github.com/banshee-data/glucose.report/internal/report"
	"github.com/banshee-data/glucose.report/internal/security"
	"github.com/banshee-data/glucose.report/internal/timeutil"
	"github.com/banshee-data/glucose.report/internal/units"
)

// backend answers prediction commands.
type backend interface {
	PredictGlucose(ctx context.Context, req model.GlucoseRequest) (api.GlucoseResponse, error)
	PredictInsulin(ctx context.Context, req model.InsulinRequest) (api.InsulinResponse, error)
	Status(ctx context.Context) ([]model.ModelStatus, error)
}

// remoteBackend calls a running glucose-server.
type remoteBackend struct {
	client *httputil.Client
}

func (b remoteBackend) PredictGlucose(ctx context.Context, req model.GlucoseRequest) (api.GlucoseResponse, error) {
	var resp api.GlucoseResponse
	err := b.client.PostJSON(ctx, "/api/predict/glucose", req, &resp)
	return resp, err
}

func (b remoteBackend) PredictInsulin(ctx context.Context, req model.InsulinRequest) (api.InsulinResponse, error) {
	var resp api.InsulinResponse
	err := b.client.PostJSON(ctx, "/api/predict/insulin", req, &resp)
	return resp, err
}

func (b remoteBackend) Status(ctx context.Context) ([]model.ModelStatus, error) {
	var out []model.ModelStatus
	err := b.client.GetJSON(ctx, "/api/models", &out)
	return out, err
}

// localBackend predicts in-process from artifacts on disk.
type localBackend struct {
	svc   *model.Service
	clock timeutil.Clock
}

func (b localBackend) PredictGlucose(_ context.Context, req model.GlucoseRequest) (api.GlucoseResponse, error) {
	start := b.clock.Now()
	pred, err := b.svc.PredictGlucose(req)
	return api.GlucoseResponse{GlucosePrediction: pred, ProcessingTime: millis(b.clock.Since(start))}, err
}

func (b localBackend) PredictInsulin(_ context.Context, req model.InsulinRequest) (api.InsulinResponse, error) {
	start := b.clock.Now()
	pred, err := b.svc.PredictInsulin(req)
	return api.InsulinResponse{InsulinPrediction: pred, ProcessingTime: millis(b.clock.Since(start))}, err
}

func (b localBackend) Status(context.Context) ([]model.ModelStatus, error) {
	return b.svc.Status(), nil
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// backendFlags are shared by the prediction commands.
type backendFlags struct {
	server     *string
	models     *string
	configPath *string
	envPath    *string
}

func addBackendFlags(fs *flag.FlagSet) backendFlags {
	return backendFlags{
		server:     fs.String("server", "", "Base URL of a running glucose-server"),
		models:     fs.String("models", "", "Local model artifact directory (overrides config)"),
		configPath: fs.String("config", "", "Path to a JSON or YAML tuning file"),
		envPath:    fs.String("env", ".env", "Optional .env file with GLUCOSE_* overrides"),
	}
}

func (c *cli) backend(f backendFlags) (backend, error) {
	if *f.server != "" {
		return remoteBackend{client: httputil.NewClient(*f.server, c.http)}, nil
	}
	cfg, err := config.Resolve(*f.configPath, *f.envPath)
	if err != nil {
		return nil, err
	}
	svc := model.NewService(cfg.Params(), cfg.Limits(), cfg.GetHorizons())
	dir := cmp.Or(*f.models, cfg.GetModelDir())
	n := svc.LoadDir(fsutil.OSFileSystem{}, dir)
	fmt.Fprintf(c.stderr, "loaded %d of %d models from %s\n", n, len(svc.Predictors()), dir)
	return localBackend{svc: svc, clock: timeutil.RealClock{}}, nil
}

func (c *cli) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

// readRequest decodes one JSON object from path, or from stdin for "" and
// "-". Unknown fields are rejected.
func (c *cli) readRequest(path string, v any) error {
	var r io.Reader = c.stdin
	if path != "" && path != "-" {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) glucose(ctx context.Context, args []string) error {
	fs := c.flagSet("glucose")
	bf := addBackendFlags(fs)
	in := fs.String("f", "-", "Request JSON file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var req model.GlucoseRequest
	if err := c.readRequest(*in, &req); err != nil {
		return err
	}
	b, err := c.backend(bf)
	if err != nil {
		return err
	}
	resp, err := b.PredictGlucose(ctx, req)
	if err != nil {
		return err
	}
	return c.print(resp)
}

func (c *cli) insulin(ctx context.Context, args []string) error {
	fs := c.flagSet("insulin")
	bf := addBackendFlags(fs)
	in := fs.String("f", "-", "Request JSON file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var req model.InsulinRequest
	if err := c.readRequest(*in, &req); err != nil {
		return err
	}
	b, err := c.backend(bf)
	if err != nil {
		return err
	}
	resp, err := b.PredictInsulin(ctx, req)
	if err != nil {
		return err
	}
	return c.print(resp)
}

func (c *cli) status(ctx context.Context, args []string) error {
	fs := c.flagSet("status")
	bf := addBackendFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	b, err := c.backend(bf)
	if err != nil {
		return err
	}
	st, err := b.Status(ctx)
	if err != nil {
		return err
	}
	for _, m := range st {
		line := fmt.Sprintf("%-14s %-10s schema=v%d features=%d", m.Name, m.State, m.SchemaVersion, m.Features)
		if m.Metrics != nil {
			line += fmt.Sprintf(" %s run=%s MAE=%.3f R2=%.3f", m.Algorithm, m.RunID, m.Metrics.MAE, m.Metrics.R2)
		}
		fmt.Fprintln(c.stdout, line)
	}
	return nil
}

func (c *cli) runs(ctx context.Context, args []string) error {
	fs := c.flagSet("runs")
	dbPath := fs.String("db", "glucose.db", "SQLite database path")
	limit := fs.Int("limit", 20, "Maximum runs to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, err := db.NewDB(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	runs, err := store.Runs(ctx, *limit)
	if err != nil {
		return err
	}
	if runs == nil {
		runs = []db.TrainingRun{}
	}
	return c.print(runs)
}

func parseTime(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return t, fmt.Errorf("invalid -%s: expected RFC 3339 time", name)
	}
	return t, nil
}

func (c *cli) trajectory(ctx context.Context, args []string) error {
	fs := c.flagSet("trajectory")
	dbPath := fs.String("db", "glucose.db", "SQLite database path")
	subject := fs.String("subject", "", "Subject ID (required)")
	fromStr := fs.String("from", "", "Start of range (RFC3339)")
	toStr := fs.String("to", "", "End of range (RFC3339)")
	limit := fs.Int("limit", 0, "Keep only the most recent readings (0 keeps all)")
	unit := fs.String("units", units.MgDL, "Display units: "+units.GetValidUnitsString())
	horizon := fs.Int("horizon", 60, "Longest prediction horizon to include past the last reading")
	out := fs.String("o", "", "Output HTML file (default: stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return errors.New("-subject is required")
	}
	if !units.IsValid(*unit) {
		return fmt.Errorf("invalid -units; must be one of: %s", units.GetValidUnitsString())
	}
	from, err := parseTime("from", *fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime("to", *toStr)
	if err != nil {
		return err
	}

	store, err := db.NewDB(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	tr, err := api.LoadTrajectory(ctx, store, *subject, from, to, *limit, *horizon)
	if err != nil {
		return fmt.Errorf("subject %s: %w", *subject, err)
	}
	tr.Units = *unit

	w := c.stdout
	if *out != "" {
		if err := security.ValidateExportPath(*out); err != nil {
			return err
		}
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := report.WriteTrajectory(w, tr); err != nil {
		return err
	}
	if *out != "" {
		fmt.Fprintf(c.stderr, "wrote %d readings and %d predictions to %s\n", len(tr.Readings), len(tr.Predictions), *out)
	}
	return nil
}

func (c *cli) migrate(args []string) error {
	fs := c.flagSet("migrate")
	dbPath := fs.String("db", "glucose.db", "SQLite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return db.RunMigrateCommand(fs.Args(), *dbPath, c.stdout, c.stdin)
}
