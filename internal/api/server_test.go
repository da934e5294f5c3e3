package api

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/glucose.report/internal/db"
	"github.com/banshee-data/glucose.report/internal/events"
	"github.com/banshee-data/glucose.report/internal/features"
	"github.com/banshee-data/glucose.report/internal/model"
	"github.com/banshee-data/glucose.report/internal/monitoring"
	"github.com/banshee-data/glucose.report/internal/testutil"
	"github.com/banshee-data/glucose.report/internal/timeutil"
)

var t0 = time.Date(2023, 1, 1, 8, 0, 0, 0, time.UTC)

func newService() *model.Service {
	return model.NewService(features.DefaultParams(), model.DefaultLimits(), []int{30, 60})
}

func newStore(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.NewDB(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	s := &events.Streams{Subject: events.Subject{ID: "3", WeightKg: 82, SourceFile: "subject3.csv"}}
	for i := range 6 {
		s.Glucose = append(s.Glucose, events.Glucose{Time: t0.Add(time.Duration(5*i) * time.Minute), Value: 90 + float64(18*i)})
	}
	_, err = store.ImportStreams(context.Background(), []*events.Streams{s}, t0)
	require.NoError(t, err)
	return store
}

// newTestServer returns a server whose clock steps 2ms per reading.
func newTestServer(t *testing.T, withStore bool) (*Server, *db.DB) {
	t.Helper()
	monitoring.SetLogger(t.Logf)
	t.Cleanup(func() { monitoring.SetLogger(log.Printf) })

	var store *db.DB
	if withStore {
		store = newStore(t)
	}
	clock := timeutil.NewMockClock(t0.Add(time.Hour))
	clock.AutoStep(2 * time.Millisecond)
	return NewServer(newService(), store, "mg/dL").WithClock(clock), store
}

func serve(s *Server, r *http.Request) *httptest.ResponseRecorder {
	rec := testutil.NewTestRecorder()
	s.ServeMux().ServeHTTP(rec, r)
	return rec
}

func ptr[T any](v T) *T { return &v }

func TestPredictGlucose(t *testing.T) {
	s, store := newTestServer(t, true)

	req := model.GlucoseRequest{CurrentGlucose: 150, InsulinDose: 2, TotalCarbs: 30, PredictionHorizon: ptr(40)}
	rec := serve(s, testutil.NewJSONRequest(t, http.MethodPost, "/api/predict/glucose?subject=3", req))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	got := testutil.DecodeJSON[GlucoseResponse](t, rec)
	want := model.GlucoseRules(req, model.DefaultLimits())
	assert.Equal(t, want, got.GlucosePrediction)
	assert.Equal(t, 30, got.PredictionHorizon)
	assert.Equal(t, model.MethodRules, got.Method)
	assert.InDelta(t, 2.0, got.ProcessingTime, 1e-9)

	recs, err := store.RecentPredictions(context.Background(), db.PredictionGlucose, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "3", recs[0].SubjectID)
	assert.Equal(t, 30, recs[0].HorizonMinutes)
	assert.Equal(t, got.PredictedGlucose, recs[0].Value)
	assert.Equal(t, t0.Add(time.Hour+30*time.Minute), recs[0].Target)
	assert.JSONEq(t, `{"currentGlucose":150,"insulinDose":2,"totalCarbs":30,"exerciseDuration":0,"predictionHorizon":40}`, string(recs[0].Request))
}

func TestPredictGlucose_TimestampSetsTarget(t *testing.T) {
	s, store := newTestServer(t, true)
	req := model.GlucoseRequest{CurrentGlucose: 120, Timestamp: ptr(t0.Add(25 * time.Minute))}
	rec := serve(s, testutil.NewJSONRequest(t, http.MethodPost, "/api/predict/glucose?subject=3", req))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	recs, err := store.SubjectGlucosePredictions(context.Background(), "3", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, t0.Add(85*time.Minute), recs[0].Target)
}

func TestPredictInsulin(t *testing.T) {
	s, store := newTestServer(t, true)

	req := model.InsulinRequest{BloodGlucose: 180, CarbIntake: 45, ExerciseTime: 20, ExerciseIntensity: 2, Weight: ptr(80.0)}
	rec := serve(s, testutil.NewJSONRequest(t, http.MethodPost, "/api/predict/insulin", req))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	got := testutil.DecodeJSON[InsulinResponse](t, rec)
	want := model.InsulinRules(req, features.DefaultParams(), model.DefaultLimits())
	assert.Equal(t, want, got.InsulinPrediction)
	assert.Equal(t, model.RulesConfidence, got.Confidence)

	recs, err := store.RecentPredictions(context.Background(), db.PredictionInsulin, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, got.RecommendedDosage, recs[0].Value)
	assert.Empty(t, recs[0].SubjectID)
}

func TestPredict_BadRequests(t *testing.T) {
	s, store := newTestServer(t, true)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		msg    string
	}{
		{name: "negative glucose", method: http.MethodPost, path: "/api/predict/glucose", body: `{"currentGlucose": -5}`, status: http.StatusBadRequest, msg: "currentGlucose"},
		{name: "missing glucose", method: http.MethodPost, path: "/api/predict/glucose", body: `{"insulinDose": 1}`, status: http.StatusBadRequest, msg: "currentGlucose"},
		{name: "negative carbs", method: http.MethodPost, path: "/api/predict/insulin", body: `{"bloodGlucose": 150, "carbIntake": -1}`, status: http.StatusBadRequest, msg: "carbIntake"},
		{name: "unknown field", method: http.MethodPost, path: "/api/predict/insulin", body: `{"bloodSugar": 150}`, status: http.StatusBadRequest, msg: "unknown field"},
		{name: "malformed", method: http.MethodPost, path: "/api/predict/glucose", body: `{`, status: http.StatusBadRequest, msg: "invalid JSON"},
		{name: "empty", method: http.MethodPost, path: "/api/predict/glucose", body: ``, status: http.StatusBadRequest, msg: "empty"},
		{name: "GET glucose", method: http.MethodGet, path: "/api/predict/glucose", body: ``, status: http.StatusMethodNotAllowed, msg: "method not allowed"},
		{name: "GET insulin", method: http.MethodGet, path: "/api/predict/insulin", body: ``, status: http.StatusMethodNotAllowed, msg: "method not allowed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(s, testutil.NewJSONRequest(t, tc.method, tc.path, tc.body))
			testutil.AssertStatusCode(t, rec.Code, tc.status)
			got := testutil.DecodeJSON[map[string]string](t, rec)
			assert.Contains(t, got["error"], tc.msg)
		})
	}

	recs, err := store.RecentPredictions(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, recs, "rejected requests are not recorded")
}

func TestPredictWithoutStore(t *testing.T) {
	s, _ := newTestServer(t, false)
	rec := serve(s, testutil.NewJSONRequest(t, http.MethodPost, "/api/predict/glucose?subject=3", `{"currentGlucose": 100}`))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	for _, path := range []string{"/api/subjects", "/api/subjects/3/glucose", "/api/charts/trajectory?subject=3", "/api/predictions"} {
		t.Run(path, func(t *testing.T) {
			rec := serve(s, testutil.NewTestRequest(http.MethodGet, path))
			testutil.AssertStatusCode(t, rec.Code, http.StatusServiceUnavailable)
		})
	}
}

func TestHealthAndModels(t *testing.T) {
	s, _ := newTestServer(t, true)

	rec := serve(s, testutil.NewTestRequest(http.MethodGet, "/api/health"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	health := testutil.DecodeJSON[HealthResponse](t, rec)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 3, health.Models)
	assert.Zero(t, health.Loaded)
	assert.True(t, health.Database)

	rec = serve(s, testutil.NewTestRequest(http.MethodGet, "/api/models"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	models := testutil.DecodeJSON[[]model.ModelStatus](t, rec)
	require.Len(t, models, 3)
	for _, m := range models {
		assert.Equal(t, "UNTRAINED", m.State, m.Name)
		assert.Equal(t, features.SchemaVersion, m.SchemaVersion)
		assert.Nil(t, m.Metrics)
	}

	rec = serve(s, testutil.NewTestRequest(http.MethodPost, "/api/health"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestSubjects(t *testing.T) {
	s, _ := newTestServer(t, true)

	rec := serve(s, testutil.NewTestRequest(http.MethodGet, "/api/subjects"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	subjects := testutil.DecodeJSON[[]db.SubjectSummary](t, rec)
	require.Len(t, subjects, 1)
	assert.Equal(t, "3", subjects[0].ID)
	assert.Equal(t, 6, subjects[0].Readings)
}

func TestSubjectGlucose(t *testing.T) {
	s, _ := newTestServer(t, true)

	tests := []struct {
		name   string
		path   string
		status int
		units  string
		values []float64
	}{
		{name: "default units", path: "/api/subjects/3/glucose", status: http.StatusOK, units: "mg/dL", values: []float64{90, 108, 126, 144, 162, 180}},
		{name: "mmol", path: "/api/subjects/3/glucose?units=mmol/L", status: http.StatusOK, units: "mmol/L", values: []float64{5, 6, 7, 8, 9, 10}},
		{name: "limit keeps latest", path: "/api/subjects/3/glucose?limit=2", status: http.StatusOK, units: "mg/dL", values: []float64{162, 180}},
		{name: "range", path: "/api/subjects/3/glucose?from=2023-01-01T08:05:00Z&to=2023-01-01T08:15:00Z", status: http.StatusOK, units: "mg/dL", values: []float64{108, 126}},
		{name: "unknown subject", path: "/api/subjects/99/glucose", status: http.StatusNotFound},
		{name: "bad units", path: "/api/subjects/3/glucose?units=kelvin", status: http.StatusBadRequest},
		{name: "bad limit", path: "/api/subjects/3/glucose?limit=0", status: http.StatusBadRequest},
		{name: "bad time", path: "/api/subjects/3/glucose?from=yesterday", status: http.StatusBadRequest},
		{name: "inverted range", path: "/api/subjects/3/glucose?from=2023-01-02T00:00:00Z&to=2023-01-01T00:00:00Z", status: http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(s, testutil.NewTestRequest(http.MethodGet, tc.path))
			testutil.AssertStatusCode(t, rec.Code, tc.status)
			if tc.status != http.StatusOK {
				return
			}
			got := testutil.DecodeJSON[ReadingsResponse](t, rec)
			assert.Equal(t, "3", got.SubjectID)
			assert.Equal(t, tc.units, got.Units)
			var values []float64
			for _, r := range got.Readings {
				values = append(values, r.Value)
			}
			assert.InDeltaSlice(t, tc.values, values, 0.051)
		})
	}
}

func TestTrajectoryChart(t *testing.T) {
	s, store := newTestServer(t, true)
	require.NoError(t, store.RecordPrediction(context.Background(), &db.PredictionRecord{
		Kind: db.PredictionGlucose, SubjectID: "3", Created: t0.Add(20 * time.Minute),
		HorizonMinutes: 30, Value: 170, Method: string(model.MethodRules), Confidence: model.RulesConfidence,
	}))

	rec := serve(s, testutil.NewTestRequest(http.MethodGet, "/api/charts/trajectory?subject=3&units=mmol"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "Subject 3")
	assert.Contains(t, body, "6 readings, 1 predictions")
	assert.Contains(t, body, "predicted +30min")

	tests := []struct {
		path   string
		status int
	}{
		{"/api/charts/trajectory", http.StatusBadRequest},
		{"/api/charts/trajectory?subject=99", http.StatusNotFound},
		{"/api/charts/trajectory?subject=3&units=x", http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			rec := serve(s, testutil.NewTestRequest(http.MethodGet, tc.path))
			testutil.AssertStatusCode(t, rec.Code, tc.status)
		})
	}
}

func TestListPredictions(t *testing.T) {
	s, _ := newTestServer(t, true)
	for _, body := range []string{`{"currentGlucose": 100}`, `{"currentGlucose": 200}`} {
		rec := serve(s, testutil.NewJSONRequest(t, http.MethodPost, "/api/predict/glucose", body))
		testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	}
	rec := serve(s, testutil.NewJSONRequest(t, http.MethodPost, "/api/predict/insulin", `{"bloodGlucose": 150}`))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	tests := []struct {
		path   string
		status int
		count  int
	}{
		{"/api/predictions", http.StatusOK, 3},
		{"/api/predictions?kind=glucose", http.StatusOK, 2},
		{"/api/predictions?kind=insulin", http.StatusOK, 1},
		{"/api/predictions?limit=1", http.StatusOK, 1},
		{"/api/predictions?kind=carbs", http.StatusBadRequest, 0},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			rec := serve(s, testutil.NewTestRequest(http.MethodGet, tc.path))
			testutil.AssertStatusCode(t, rec.Code, tc.status)
			if tc.status == http.StatusOK {
				assert.Len(t, testutil.DecodeJSON[[]db.PredictionRecord](t, rec), tc.count)
			}
		})
	}

	// Newest first.
	rec = serve(s, testutil.NewTestRequest(http.MethodGet, "/api/predictions?kind=glucose"))
	got := testutil.DecodeJSON[[]db.PredictionRecord](t, rec)
	assert.True(t, got[0].Created.After(got[1].Created))
}

func TestNewServerUnits(t *testing.T) {
	assert.Equal(t, "mmol/L", NewServer(newService(), nil, "mmol").units)
	assert.Equal(t, "mg/dL", NewServer(newService(), nil, "furlongs").units)
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(orig)

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health?x=1", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	line := buf.String()
	assert.Contains(t, line, "418")
	assert.Contains(t, line, "GET")
	assert.Contains(t, line, "/api/health?x=1")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(line), "ms"), line)
}

func TestStatusCodeColor(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, colorBoldGreen},
		{302, colorYellow},
		{404, colorBoldRed},
		{503, colorBoldRed},
		{100, ""},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprint(tc.code), func(t *testing.T) {
			got := statusCodeColor(tc.code)
			assert.Contains(t, got, fmt.Sprint(tc.code))
			if tc.want == "" {
				assert.Equal(t, fmt.Sprint(tc.code), got)
			} else {
				assert.True(t, strings.HasPrefix(got, tc.want))
			}
		})
	}
}
