package model

import (
	"errors"
	"path/filepath"
	"slices"
	"sync"

	"github.com/banshee-data/glucose.report/internal/features"
	"github.com/banshee-data/glucose.report/internal/fsutil"
	"github.com/banshee-data/glucose.report/internal/monitoring"
)

// State is a predictor's lifecycle state.
type State int

const (
	Untrained State = iota
	Trained
)

func (s State) String() string {
	if s == Trained {
		return "TRAINED"
	}
	return "UNTRAINED"
}

// Result is the outcome of the ML path. Err is set when no model prediction
// is available, and the caller falls back explicitly.
type Result struct {
	Value float64
	Err   error
}

func (r Result) OK() bool { return r.Err == nil }

// Predictor serves one schema's model. It is safe for concurrent use; a
// loaded artifact is never mutated, only replaced.
type Predictor struct {
	schema features.Schema

	mu  sync.RWMutex
	art *Artifact
}

func NewPredictor(schema features.Schema) *Predictor {
	return &Predictor{schema: schema}
}

func (p *Predictor) Schema() features.Schema { return p.schema }

func (p *Predictor) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.art == nil {
		return Untrained
	}
	return Trained
}

// Artifact returns the loaded artifact, or nil.
func (p *Predictor) Artifact() *Artifact {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.art
}

// Set installs a freshly trained artifact.
func (p *Predictor) Set(a *Artifact) error {
	if err := p.schema.Compatible(a.Schema); err != nil {
		return err
	}
	p.mu.Lock()
	p.art = a
	p.mu.Unlock()
	return nil
}

// Load reads an artifact from path. On failure the current artifact, if
// any, stays in place.
func (p *Predictor) Load(fsys fsutil.FileSystem, path string) error {
	a, err := LoadArtifact(fsys, path, p.schema)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.art = a
	p.mu.Unlock()
	return nil
}

// Infer runs the model on row.
func (p *Predictor) Infer(row features.Row) Result {
	a := p.Artifact()
	if a == nil {
		return Result{Err: ErrModelUnavailable}
	}
	v, err := a.Predict(row)
	if err != nil {
		return Result{Err: err}
	}
	return Result{Value: v}
}

// Service answers glucose and insulin requests, using the trained models
// where available and the rule-based formulas otherwise.
type Service struct {
	params  features.Params
	limits  Limits
	glucose map[int]*Predictor
	insulin *Predictor
}

// NewService creates untrained predictors for each glucose horizon and for
// insulin dosage.
func NewService(p features.Params, l Limits, horizons []int) *Service {
	s := &Service{
		params:  p,
		limits:  l,
		glucose: make(map[int]*Predictor, len(horizons)),
		insulin: NewPredictor(features.InsulinSchema()),
	}
	for _, h := range horizons {
		s.glucose[h] = NewPredictor(features.GlucoseSchema(h))
	}
	return s
}

func (s *Service) Params() features.Params { return s.params }

// Horizons returns the served glucose horizons in ascending order.
func (s *Service) Horizons() []int {
	hs := make([]int, 0, len(s.glucose))
	for h := range s.glucose {
		hs = append(hs, h)
	}
	slices.Sort(hs)
	return hs
}

// Glucose returns the predictor for horizon, or nil.
func (s *Service) Glucose(horizon int) *Predictor { return s.glucose[horizon] }

func (s *Service) Insulin() *Predictor { return s.insulin }

// Predictors returns every predictor, glucose horizons first.
func (s *Service) Predictors() []*Predictor {
	var out []*Predictor
	for _, h := range s.Horizons() {
		out = append(out, s.glucose[h])
	}
	return append(out, s.insulin)
}

// LoadDir loads every predictor's artifact from dir and returns how many
// were loaded. Missing or unusable artifacts leave that predictor on the
// rule-based path.
func (s *Service) LoadDir(fsys fsutil.FileSystem, dir string) int {
	var loaded int
	for _, p := range s.Predictors() {
		path := filepath.Join(dir, ArtifactFile(p.Schema()))
		if err := p.Load(fsys, path); err != nil {
			monitoring.Logf("model %s: %v; using rule-based predictions", p.Schema().Name, err)
			continue
		}
		loaded++
		monitoring.Logf("model %s: loaded %s", p.Schema().Name, path)
	}
	return loaded
}

func logFallback(model string, err error) {
	if errors.Is(err, ErrModelUnavailable) {
		return
	}
	monitoring.Logf("model %s: falling back to rule-based prediction: %v", model, err)
}

// PredictGlucose validates r and predicts glucose at its horizon. The only
// error returned is a *ValidationError.
func (s *Service) PredictGlucose(r GlucoseRequest) (GlucosePrediction, error) {
	if err := r.Validate(); err != nil {
		return GlucosePrediction{}, err
	}
	h := r.Horizon()
	res := Result{Err: ErrModelUnavailable}
	if p := s.glucose[h]; p != nil {
		res = p.Infer(features.Glucose(r.Input(), s.params))
	}
	if !res.OK() {
		logFallback(features.GlucoseSchema(h).Name, res.Err)
		return GlucoseRules(r, s.limits), nil
	}
	// The model path reports the per-hour effects.
	ins, carbs, ex := glucoseEffects(r, 1)
	return GlucosePrediction{
		PredictedGlucose:  s.limits.Glucose(res.Value),
		Details:           GlucoseDetails{InsulinEffect: round1(ins), CarbEffect: round1(carbs), ExerciseEffect: round1(ex)},
		PredictionHorizon: h,
		Method:            MethodModel,
		Confidence:        ModelConfidence,
	}, nil
}

// PredictInsulin validates r and recommends a dose. The only error returned
// is a *ValidationError.
func (s *Service) PredictInsulin(r InsulinRequest) (InsulinPrediction, error) {
	if err := r.Validate(); err != nil {
		return InsulinPrediction{}, err
	}
	res := s.insulin.Infer(features.Insulin(r.Input(), s.params))
	if !res.OK() {
		logFallback(s.insulin.Schema().Name, res.Err)
		return InsulinRules(r, s.params, s.limits), nil
	}
	return InsulinPrediction{
		RecommendedDosage: s.limits.Dose(res.Value),
		Details:           doseTerms(r, s.params).details(r),
		Method:            MethodModel,
		Confidence:        ModelConfidence,
	}, nil
}

// ModelStatus describes one predictor for status reporting.
type ModelStatus struct {
	Name          string       `json:"name"`
	State         string       `json:"state"`
	SchemaVersion int          `json:"schemaVersion"`
	Fingerprint   string       `json:"fingerprint"`
	Features      int          `json:"features"`
	Algorithm     Algorithm    `json:"algorithm,omitempty"`
	RunID         string       `json:"runId,omitempty"`
	Metrics       *Metrics     `json:"metrics,omitempty"`
	Importance    []Importance `json:"importance,omitempty"`
}

// Status reports every predictor.
func (s *Service) Status() []ModelStatus {
	var out []ModelStatus
	for _, p := range s.Predictors() {
		st := ModelStatus{
			Name:          p.schema.Name,
			State:         p.State().String(),
			SchemaVersion: p.schema.Version,
			Fingerprint:   p.schema.Fingerprint(),
			Features:      p.schema.Len(),
		}
		if a := p.Artifact(); a != nil {
			m := a.Metrics
			st.Algorithm, st.RunID, st.Metrics, st.Importance = a.Algorithm, a.RunID, &m, a.Importance
		}
		out = append(out, st)
	}
	return out
}
