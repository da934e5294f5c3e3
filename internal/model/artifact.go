package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/banshee-data/glucose.report/internal/features"
	"github.com/banshee-data/glucose.report/internal/fsutil"
)

// Artifact is a trained model with everything inference needs to rebuild its
// input: the schema it was fitted on, the scaler and the coefficients.
type Artifact struct {
	Schema      features.Schema `json:"schema"`
	Fingerprint string          `json:"fingerprint"`
	Algorithm   Algorithm       `json:"algorithm"`
	Scaler      Scaler          `json:"scaler"`
	Model       Linear          `json:"model"`
	Metrics     Metrics         `json:"metrics"`
	Importance  []Importance    `json:"importance"`
	Rows        int             `json:"training_rows"`
	RunID       string          `json:"run_id"`
	TrainedAt   time.Time       `json:"trained_at"`
}

// ArtifactFile is the file name an artifact for s is stored under.
func ArtifactFile(s features.Schema) string {
	return s.Name + ".json"
}

// Save writes a to dir and returns the file path.
func (a *Artifact) Save(fsys fsutil.FileSystem, dir string) (string, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model dir: %w", err)
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode artifact: %w", err)
	}
	path := filepath.Join(dir, ArtifactFile(a.Schema))
	if err := fsys.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}

// LoadArtifact reads the artifact at path and checks it against the schema
// the caller computes features with. Every failure wraps ErrModelUnavailable.
func LoadArtifact(fsys fsutil.FileSystem, path string, want features.Schema) (*Artifact, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelUnavailable, path, err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %s: decode: %v", ErrModelUnavailable, path, err)
	}
	if a.Fingerprint != a.Schema.Fingerprint() {
		return nil, fmt.Errorf("%w: %s: fingerprint does not match stored schema", ErrModelUnavailable, path)
	}
	if err := want.Compatible(a.Schema); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelUnavailable, path, err)
	}
	p := a.Schema.Len()
	if len(a.Model.Weights) != p || len(a.Scaler.Mean) != p || len(a.Scaler.Scale) != p || len(a.Scaler.Categorical) != p {
		return nil, fmt.Errorf("%w: %s: coefficient count does not match %d features", ErrModelUnavailable, path, p)
	}
	return &a, nil
}

// Predict runs the raw regressor on row. Failures are InferenceErrors.
func (a *Artifact) Predict(row features.Row) (float64, error) {
	if missing := a.Schema.Missing(row); len(missing) > 0 {
		return 0, &InferenceError{Model: a.Schema.Name, Stage: "features", Err: fmt.Errorf("missing %v", missing)}
	}
	z, err := a.Scaler.Transform(a.Schema.Vector(row))
	if err != nil {
		return 0, &InferenceError{Model: a.Schema.Name, Stage: "transform", Err: err}
	}
	v, err := a.Model.Predict(z)
	if err != nil {
		return 0, &InferenceError{Model: a.Schema.Name, Stage: "predict", Err: err}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &InferenceError{Model: a.Schema.Name, Stage: "predict", Err: errors.New("non-finite prediction")}
	}
	return v, nil
}
