// Package config loads the pipeline, model and server settings from a JSON
// or YAML file, with environment overrides for deployment paths.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/glucose.report/internal/align"
	"github.com/banshee-data/glucose.report/internal/features"
	"github.com/banshee-data/glucose.report/internal/model"
	"github.com/banshee-data/glucose.report/internal/pipeline"
	"github.com/banshee-data/glucose.report/internal/units"
)

// DefaultConfigPath is the checked-in defaults file.
const DefaultConfigPath = "config/glucose.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is the root configuration. Every field is optional; the Get*
// methods supply the defaults for fields left unset.
type Config struct {
	// Feature construction
	SampleIntervalMinutes *int    `json:"sample_interval_minutes,omitempty" yaml:"sample_interval_minutes,omitempty"`
	Horizons              []int   `json:"horizons,omitempty" yaml:"horizons,omitempty"`
	RollingWindow         *int    `json:"rolling_window,omitempty" yaml:"rolling_window,omitempty"`
	Timezone              *string `json:"timezone,omitempty" yaml:"timezone,omitempty"`

	// Join windows, duration strings like "12h"
	GlucoseExerciseWindow *string `json:"glucose_exercise_window,omitempty" yaml:"glucose_exercise_window,omitempty"`
	InsulinExerciseWindow *string `json:"insulin_exercise_window,omitempty" yaml:"insulin_exercise_window,omitempty"`
	InsulinGlucoseWindow  *string `json:"insulin_glucose_window,omitempty" yaml:"insulin_glucose_window,omitempty"`

	// Sentinels for missing prior events
	NoEventMinutes    *float64 `json:"no_event_minutes,omitempty" yaml:"no_event_minutes,omitempty"`
	DefaultGlucose    *float64 `json:"default_glucose,omitempty" yaml:"default_glucose,omitempty"`
	NoGlucoseMinutes  *float64 `json:"no_glucose_minutes,omitempty" yaml:"no_glucose_minutes,omitempty"`
	NoInsulinHours    *float64 `json:"no_insulin_hours,omitempty" yaml:"no_insulin_hours,omitempty"`
	NoExerciseMinutes *float64 `json:"no_exercise_minutes,omitempty" yaml:"no_exercise_minutes,omitempty"`

	// Prediction bounds
	TargetGlucose *float64 `json:"target_glucose,omitempty" yaml:"target_glucose,omitempty"`
	MinGlucose    *float64 `json:"min_glucose,omitempty" yaml:"min_glucose,omitempty"`
	MaxGlucose    *float64 `json:"max_glucose,omitempty" yaml:"max_glucose,omitempty"`
	DoseStep      *float64 `json:"dose_step,omitempty" yaml:"dose_step,omitempty"`

	// Training
	Algorithm    *string  `json:"algorithm,omitempty" yaml:"algorithm,omitempty"`
	RidgeLambda  *float64 `json:"ridge_lambda,omitempty" yaml:"ridge_lambda,omitempty"`
	TestFraction *float64 `json:"test_fraction,omitempty" yaml:"test_fraction,omitempty"`
	Workers      *int     `json:"workers,omitempty" yaml:"workers,omitempty"`

	// Paths and serving
	ModelDir  *string `json:"model_dir,omitempty" yaml:"model_dir,omitempty"`
	OutputDir *string `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	DBPath    *string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	Listen    *string `json:"listen,omitempty" yaml:"listen,omitempty"`
	Units     *string `json:"units,omitempty" yaml:"units,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// Load reads a Config from a .json, .yaml or .yml file and validates it.
// Fields omitted from the file keep their defaults.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(cleanPath), err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, or returns an empty Config when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}
	return Load(path)
}

func parseDuration(name string, s *string) error {
	if s == nil || *s == "" {
		return nil
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *s, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", name, *s)
	}
	return nil
}

func nonNegative(name string, v *float64) error {
	if v != nil && *v < 0 {
		return fmt.Errorf("%s must be non-negative, got %f", name, *v)
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if c.SampleIntervalMinutes != nil && *c.SampleIntervalMinutes <= 0 {
		return fmt.Errorf("sample_interval_minutes must be positive, got %d", *c.SampleIntervalMinutes)
	}
	for _, h := range c.Horizons {
		if h <= 0 || h%c.GetSampleIntervalMinutes() != 0 {
			return fmt.Errorf("horizon %d must be a positive multiple of the %d minute sample interval", h, c.GetSampleIntervalMinutes())
		}
	}
	if c.RollingWindow != nil && *c.RollingWindow < 1 {
		return fmt.Errorf("rolling_window must be at least 1, got %d", *c.RollingWindow)
	}
	if c.Timezone != nil && *c.Timezone != "" && !units.IsTimezoneValid(*c.Timezone) {
		return fmt.Errorf("invalid timezone %q, try one of %s", *c.Timezone, units.GetValidTimezonesString())
	}

	for name, s := range map[string]*string{
		"glucose_exercise_window": c.GlucoseExerciseWindow,
		"insulin_exercise_window": c.InsulinExerciseWindow,
		"insulin_glucose_window":  c.InsulinGlucoseWindow,
	} {
		if err := parseDuration(name, s); err != nil {
			return err
		}
	}
	for name, v := range map[string]*float64{
		"no_event_minutes":    c.NoEventMinutes,
		"no_glucose_minutes":  c.NoGlucoseMinutes,
		"no_insulin_hours":    c.NoInsulinHours,
		"no_exercise_minutes": c.NoExerciseMinutes,
		"ridge_lambda":        c.RidgeLambda,
	} {
		if err := nonNegative(name, v); err != nil {
			return err
		}
	}

	if c.GetMinGlucose() <= 0 || c.GetMinGlucose() >= c.GetMaxGlucose() {
		return fmt.Errorf("glucose bounds must satisfy 0 < min < max, got %g..%g", c.GetMinGlucose(), c.GetMaxGlucose())
	}
	if c.DoseStep != nil && *c.DoseStep <= 0 {
		return fmt.Errorf("dose_step must be positive, got %f", *c.DoseStep)
	}
	if c.Algorithm != nil {
		if _, err := model.NewRegressor(model.Algorithm(*c.Algorithm), c.GetRidgeLambda()); err != nil {
			return err
		}
	}
	if c.TestFraction != nil && (*c.TestFraction <= 0 || *c.TestFraction >= 1) {
		return fmt.Errorf("test_fraction must be between 0 and 1, got %f", *c.TestFraction)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.Units != nil && !units.IsValid(*c.Units) {
		return fmt.Errorf("invalid units %q, must be one of %s", *c.Units, units.GetValidUnitsString())
	}
	return nil
}

func getFloat(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func getString(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

func getDuration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func (c *Config) GetSampleIntervalMinutes() int {
	if c.SampleIntervalMinutes == nil || *c.SampleIntervalMinutes <= 0 {
		return 5
	}
	return *c.SampleIntervalMinutes
}

// GetHorizons returns the glucose horizons in minutes, sorted and unique.
func (c *Config) GetHorizons() []int {
	if len(c.Horizons) == 0 {
		return []int{30, 60}
	}
	hs := slices.Clone(c.Horizons)
	slices.Sort(hs)
	return slices.Compact(hs)
}

func (c *Config) GetRollingWindow() int {
	if c.RollingWindow == nil || *c.RollingWindow < 1 {
		return 12
	}
	return *c.RollingWindow
}

func (c *Config) GetTimezone() string { return getString(c.Timezone, "UTC") }

// Location resolves GetTimezone.
func (c *Config) Location() (*time.Location, error) {
	return units.LoadLocation(c.GetTimezone())
}

func (c *Config) GetMinGlucose() float64 { return getFloat(c.MinGlucose, 40) }
func (c *Config) GetMaxGlucose() float64 { return getFloat(c.MaxGlucose, 400) }
func (c *Config) GetDoseStep() float64   { return getFloat(c.DoseStep, 0.5) }

func (c *Config) GetAlgorithm() model.Algorithm {
	return model.Algorithm(getString(c.Algorithm, string(model.AlgorithmRidge)))
}

func (c *Config) GetRidgeLambda() float64  { return getFloat(c.RidgeLambda, 1.0) }
func (c *Config) GetTestFraction() float64 { return getFloat(c.TestFraction, 0.2) }

// GetWorkers defaults to GOMAXPROCS.
func (c *Config) GetWorkers() int {
	if c.Workers == nil || *c.Workers == 0 {
		return runtime.GOMAXPROCS(0)
	}
	return *c.Workers
}

func (c *Config) GetModelDir() string  { return getString(c.ModelDir, "models") }
func (c *Config) GetOutputDir() string { return getString(c.OutputDir, "data") }
func (c *Config) GetDBPath() string    { return getString(c.DBPath, "glucose.db") }
func (c *Config) GetListen() string    { return getString(c.Listen, "localhost:5000") }

func (c *Config) GetUnits() string { return units.Normalize(getString(c.Units, units.MgDL)) }

// Params builds the feature construction constants.
func (c *Config) Params() features.Params {
	p := features.DefaultParams()
	p.SampleInterval = time.Duration(c.GetSampleIntervalMinutes()) * time.Minute
	p.RollingWindow = c.GetRollingWindow()
	p.NoEventMinutes = getFloat(c.NoEventMinutes, p.NoEventMinutes)
	p.DefaultGlucose = getFloat(c.DefaultGlucose, p.DefaultGlucose)
	p.NoGlucoseMinutes = getFloat(c.NoGlucoseMinutes, p.NoGlucoseMinutes)
	p.NoInsulinHours = getFloat(c.NoInsulinHours, p.NoInsulinHours)
	p.NoExerciseMinutes = getFloat(c.NoExerciseMinutes, p.NoExerciseMinutes)
	p.TargetGlucose = getFloat(c.TargetGlucose, p.TargetGlucose)
	return p
}

// Windows builds the join lookback limits.
func (c *Config) Windows() align.Windows {
	w := align.DefaultWindows()
	w.GlucoseExercise = getDuration(c.GlucoseExerciseWindow, w.GlucoseExercise)
	w.InsulinExercise = getDuration(c.InsulinExerciseWindow, w.InsulinExercise)
	w.InsulinGlucose = getDuration(c.InsulinGlucoseWindow, w.InsulinGlucose)
	return w
}

// Limits builds the clamp and rounding bounds for predictions.
func (c *Config) Limits() model.Limits {
	return model.Limits{MinGlucose: c.GetMinGlucose(), MaxGlucose: c.GetMaxGlucose(), DoseStep: c.GetDoseStep()}
}

// PipelineOptions builds the dataset pipeline settings.
func (c *Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		Params:   c.Params(),
		Windows:  c.Windows(),
		Horizons: c.GetHorizons(),
		Workers:  c.GetWorkers(),
	}
}

// TrainOptions builds the regressor settings. RunID and Clock are left to
// the caller.
func (c *Config) TrainOptions() model.TrainOptions {
	return model.TrainOptions{
		Algorithm:    c.GetAlgorithm(),
		Lambda:       c.GetRidgeLambda(),
		TestFraction: c.GetTestFraction(),
	}
}
