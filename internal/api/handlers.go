package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/banshee-data/glucose.report/internal/db"
	"github.com/banshee-data/glucose.report/internal/httputil"
	"github.com/banshee-data/glucose.report/internal/model"
	"github.com/banshee-data/glucose.report/internal/report"
	"github.com/banshee-data/glucose.report/internal/units"
	"github.com/banshee-data/glucose.report/internal/version"
)

// Query defaults for the history routes.
const (
	defaultReadingLimit    = 288 // one day of 5-minute readings
	defaultPredictionLimit = 100
	maxLimit               = 10000
)

// HealthResponse reports liveness and which predictors run on a model.
type HealthResponse struct {
	Status   string       `json:"status"`
	Version  version.Info `json:"version"`
	Loaded   int          `json:"modelsLoaded"`
	Models   int          `json:"models"`
	Database bool         `json:"database"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := HealthResponse{Status: "ok", Version: version.Current(), Database: s.db != nil}
	for _, p := range s.svc.Predictors() {
		resp.Models++
		if p.State() == model.Trained {
			resp.Loaded++
		}
	}
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			resp.Status = "degraded"
		}
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.svc.Status())
}

// storeOrUnavailable writes a 503 and returns false when no store is set.
func (s *Server) storeOrUnavailable(w http.ResponseWriter) bool {
	if s.db == nil {
		httputil.ServiceUnavailable(w, "event store is not configured")
		return false
	}
	return true
}

func (s *Server) listSubjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if !s.storeOrUnavailable(w) {
		return
	}
	subjects, err := s.db.Subjects(r.Context())
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list subjects: %v", err))
		return
	}
	if subjects == nil {
		subjects = []db.SubjectSummary{}
	}
	httputil.WriteJSONOK(w, subjects)
}

// Reading is a stored glucose reading in display units.
type Reading struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// ReadingsResponse is the body of GET /api/subjects/{id}/glucose.
type ReadingsResponse struct {
	SubjectID string    `json:"subjectId"`
	Units     string    `json:"units"`
	Readings  []Reading `json:"readings"`
}

// rangeQuery holds the parsed from, to and limit parameters.
type rangeQuery struct {
	from, to time.Time
	limit    int
}

func parseRange(r *http.Request, defaultLimit int) (rangeQuery, error) {
	q := r.URL.Query()
	rq := rangeQuery{limit: defaultLimit}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &rq.from}, {"to", &rq.to}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return rq, fmt.Errorf("invalid '%s' parameter: expected RFC 3339 time", p.name)
		}
		*p.dst = t
	}
	if !rq.from.IsZero() && !rq.to.IsZero() && !rq.from.Before(rq.to) {
		return rq, errors.New("'from' must be before 'to'")
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxLimit {
			return rq, fmt.Errorf("invalid 'limit' parameter: must be between 1 and %d", maxLimit)
		}
		rq.limit = n
	}
	return rq, nil
}

func (s *Server) subjectGlucose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if !s.storeOrUnavailable(w) {
		return
	}
	u, ok := s.displayUnits(r)
	if !ok {
		httputil.BadRequest(w, "invalid 'units' parameter; must be one of: "+units.GetValidUnitsString())
		return
	}
	rq, err := parseRange(r, defaultReadingLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	id := r.PathValue("id")
	if _, err := s.db.Subject(r.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			httputil.NotFound(w, fmt.Sprintf("subject %q not found", id))
			return
		}
		httputil.InternalServerError(w, err.Error())
		return
	}
	readings, err := s.db.GlucoseReadings(r.Context(), id, rq.from, rq.to, rq.limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to read glucose: %v", err))
		return
	}

	resp := ReadingsResponse{SubjectID: id, Units: u, Readings: make([]Reading, 0, len(readings))}
	for _, g := range readings {
		resp.Readings = append(resp.Readings, Reading{Time: g.Time, Value: units.ConvertGlucose(g.Value, u)})
	}
	httputil.WriteJSONOK(w, resp)
}

// trajectoryChart renders a subject's readings with the logged glucose
// predictions whose targets fall inside the plotted range.
func (s *Server) trajectoryChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if !s.storeOrUnavailable(w) {
		return
	}
	id := r.URL.Query().Get("subject")
	if id == "" {
		httputil.BadRequest(w, "missing 'subject' parameter")
		return
	}
	u, ok := s.displayUnits(r)
	if !ok {
		httputil.BadRequest(w, "invalid 'units' parameter; must be one of: "+units.GetValidUnitsString())
		return
	}
	rq, err := parseRange(r, defaultReadingLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	maxHorizon := 0
	if hs := s.svc.Horizons(); len(hs) > 0 {
		maxHorizon = slices.Max(hs)
	}
	tr, err := LoadTrajectory(r.Context(), s.db, id, rq.from, rq.to, rq.limit, maxHorizon)
	if errors.Is(err, ErrNoReadings) {
		httputil.NotFound(w, fmt.Sprintf("no readings for subject %q", id))
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	tr.Units = u

	var buf bytes.Buffer
	if err := report.WriteTrajectory(&buf, tr); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

// ErrNoReadings is returned by LoadTrajectory for a range with no readings.
var ErrNoReadings = errors.New("no readings in range")

// LoadTrajectory reads a subject's readings in [from, to) and the logged
// glucose predictions that target them. Predictions may land up to
// maxHorizon minutes past the last reading.
func LoadTrajectory(ctx context.Context, store *db.DB, id string, from, to time.Time, limit, maxHorizon int) (report.Trajectory, error) {
	tr := report.Trajectory{SubjectID: id}
	readings, err := store.GlucoseReadings(ctx, id, from, to, limit)
	if err != nil {
		return tr, fmt.Errorf("failed to read glucose: %w", err)
	}
	if len(readings) == 0 {
		return tr, ErrNoReadings
	}
	tr.Readings = readings

	upTo := readings[len(readings)-1].Time.Add(time.Millisecond + time.Duration(maxHorizon)*time.Minute)
	recs, err := store.SubjectGlucosePredictions(ctx, id, readings[0].Time, upTo)
	if err != nil {
		return tr, fmt.Errorf("failed to read predictions: %w", err)
	}
	for _, p := range recs {
		tr.Predictions = append(tr.Predictions, report.Prediction{
			Time:    p.Target,
			Value:   p.Value,
			Horizon: p.HorizonMinutes,
			Method:  model.Method(p.Method),
		})
	}
	return tr, nil
}

func (s *Server) listPredictions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if !s.storeOrUnavailable(w) {
		return
	}
	kind := r.URL.Query().Get("kind")
	switch kind {
	case "", db.PredictionGlucose, db.PredictionInsulin:
	default:
		httputil.BadRequest(w, fmt.Sprintf("invalid 'kind' parameter; must be %s or %s", db.PredictionGlucose, db.PredictionInsulin))
		return
	}
	rq, err := parseRange(r, defaultPredictionLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	recs, err := s.db.RecentPredictions(r.Context(), kind, rq.limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list predictions: %v", err))
		return
	}
	if recs == nil {
		recs = []db.PredictionRecord{}
	}
	httputil.WriteJSONOK(w, recs)
}
