package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/glucose.report/internal/align"
	"github.com/banshee-data/glucose.report/internal/features"
	"github.com/banshee-data/glucose.report/internal/model"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Validate())

	if diff := cmp.Diff(features.DefaultParams(), cfg.Params()); diff != "" {
		t.Errorf("Params() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, align.DefaultWindows(), cfg.Windows())
	assert.Equal(t, model.DefaultLimits(), cfg.Limits())
	assert.Equal(t, []int{30, 60}, cfg.GetHorizons())
	assert.Equal(t, model.AlgorithmRidge, cfg.GetAlgorithm())
	assert.Equal(t, 1.0, cfg.GetRidgeLambda())
	assert.Equal(t, 0.2, cfg.GetTestFraction())
	assert.Equal(t, runtime.GOMAXPROCS(0), cfg.GetWorkers())
	assert.Equal(t, "UTC", cfg.GetTimezone())
	assert.Equal(t, "mg/dL", cfg.GetUnits())
	assert.Equal(t, "localhost:5000", cfg.GetListen())
	assert.Equal(t, "glucose.db", cfg.GetDBPath())
	assert.Equal(t, "models", cfg.GetModelDir())
	assert.Equal(t, "data", cfg.GetOutputDir())
}

func TestDefaultsFileMatchesBuiltins(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", DefaultConfigPath))
	require.NoError(t, err)

	empty := &Config{}
	assert.Equal(t, empty.Params(), cfg.Params())
	assert.Equal(t, empty.Windows(), cfg.Windows())
	assert.Equal(t, empty.Limits(), cfg.Limits())
	assert.Equal(t, empty.GetHorizons(), cfg.GetHorizons())
	assert.Equal(t, empty.TrainOptions(), cfg.TrainOptions())
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "glucose.json", `{
		"horizons": [60, 30, 90, 60],
		"rolling_window": 6,
		"insulin_glucose_window": "45m",
		"no_event_minutes": 720,
		"algorithm": "ols",
		"workers": 3
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []int{30, 60, 90}, cfg.GetHorizons())
	assert.Equal(t, 6, cfg.Params().RollingWindow)
	assert.Equal(t, 720.0, cfg.Params().NoEventMinutes)
	assert.Equal(t, 45*time.Minute, cfg.Windows().InsulinGlucose)
	assert.Equal(t, 12*time.Hour, cfg.Windows().GlucoseExercise)
	assert.Equal(t, model.AlgorithmOLS, cfg.TrainOptions().Algorithm)

	opts := cfg.PipelineOptions()
	assert.Equal(t, 3, opts.Workers)
	assert.Equal(t, []int{30, 60, 90}, opts.Horizons)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "glucose.yaml", `
sample_interval_minutes: 15
horizons: [30, 60]
timezone: Europe/Berlin
min_glucose: 50
max_glucose: 350
dose_step: 0.25
units: mmol/L
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.Params().SampleInterval)
	assert.Equal(t, model.Limits{MinGlucose: 50, MaxGlucose: 350, DoseStep: 0.25}, cfg.Limits())
	assert.Equal(t, "mmol/L", cfg.GetUnits())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	big := filepath.Join(dir, "big.json")
	require.NoError(t, os.WriteFile(big, make([]byte, maxFileSize+1), 0o644))

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"extension", writeFile(t, "glucose.toml", "x = 1"), "extension"},
		{"missing", filepath.Join(dir, "absent.json"), "stat"},
		{"too large", big, "too large"},
		{"bad json", writeFile(t, "bad.json", "{"), "parse"},
		{"bad yaml", writeFile(t, "bad.yaml", "horizons: [30"), "parse"},
		{"invalid value", writeFile(t, "v.json", `{"test_fraction": 1.5}`), "test_fraction"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(tc.path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"zero interval", Config{SampleIntervalMinutes: ptrInt(0)}, "sample_interval_minutes"},
		{"horizon off grid", Config{Horizons: []int{32}}, "horizon 32"},
		{"negative horizon", Config{Horizons: []int{-30}}, "horizon -30"},
		{"rolling window", Config{RollingWindow: ptrInt(0)}, "rolling_window"},
		{"timezone", Config{Timezone: ptrString("Moon/Base")}, "timezone"},
		{"window syntax", Config{InsulinGlucoseWindow: ptrString("half an hour")}, "insulin_glucose_window"},
		{"window sign", Config{GlucoseExerciseWindow: ptrString("-1h")}, "glucose_exercise_window"},
		{"sentinel", Config{NoInsulinHours: ptrFloat64(-8)}, "no_insulin_hours"},
		{"bounds", Config{MinGlucose: ptrFloat64(400), MaxGlucose: ptrFloat64(40)}, "glucose bounds"},
		{"dose step", Config{DoseStep: ptrFloat64(0)}, "dose_step"},
		{"algorithm", Config{Algorithm: ptrString("xgboost")}, "unknown algorithm"},
		{"test fraction", Config{TestFraction: ptrFloat64(0)}, "test_fraction"},
		{"workers", Config{Workers: ptrInt(-1)}, "workers"},
		{"units", Config{Units: ptrString("mph")}, "units"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvListen, ":9000")

	cfg := &Config{Listen: ptrString("localhost:5000"), DBPath: ptrString("file.db")}
	dotenv := map[string]string{
		EnvListen:   ":7000",
		EnvModelDir: "/srv/models",
		EnvUnits:    "mmol/L",
	}
	require.NoError(t, cfg.ApplyEnv(dotenv))

	assert.Equal(t, ":9000", cfg.GetListen(), "process environment wins over .env")
	assert.Equal(t, "/srv/models", cfg.GetModelDir())
	assert.Equal(t, "mmol/L", cfg.GetUnits())
	assert.Equal(t, "file.db", cfg.GetDBPath())
}

func TestApplyEnvInvalid(t *testing.T) {
	cfg := &Config{}
	err := cfg.ApplyEnv(map[string]string{EnvTimezone: "Not/AZone"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "environment")
}

func TestReadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "GLUCOSE_DB_PATH=/var/lib/glucose.db\n# comment\nGLUCOSE_UNITS=mg/dL\n")
	vars, err := ReadDotEnv(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{EnvDBPath: "/var/lib/glucose.db", EnvUnits: "mg/dL"}, vars)

	vars, err = ReadDotEnv(filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
	assert.Empty(t, vars)
}

func TestResolve(t *testing.T) {
	t.Setenv(EnvListen, "")
	t.Setenv(EnvModelDir, "")
	cfgPath := writeFile(t, "glucose.yaml", "listen: \":9000\"\nmodel_dir: /srv/models\n")
	envPath := writeFile(t, ".env", "GLUCOSE_MODEL_DIR=/opt/models\n")

	cfg, err := Resolve(cfgPath, envPath)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.GetListen())
	assert.Equal(t, "/opt/models", cfg.GetModelDir())

	cfg, err = Resolve("", "")
	require.NoError(t, err)
	assert.Equal(t, "localhost:5000", cfg.GetListen())

	_, err = Resolve(filepath.Join(t.TempDir(), "missing.json"), "")
	assert.Error(t, err)
}
