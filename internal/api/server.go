// Package api serves glucose and insulin predictions over HTTP, along with
// model status and the stored event history.
package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/glucose.report/internal/db"
	"github.com/banshee-data/glucose.report/internal/model"
	"github.com/banshee-data/glucose.report/internal/timeutil"
	"github.com/banshee-data/glucose.report/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server holds the prediction service and the optional event store. A nil
// store disables the history routes and prediction logging.
type Server struct {
	svc   *model.Service
	db    *db.DB
	units string
	clock timeutil.Clock
}

// NewServer returns a Server. displayUnits is the default for readings and
// charts; an invalid value falls back to mg/dL.
func NewServer(svc *model.Service, store *db.DB, displayUnits string) *Server {
	if !units.IsValid(displayUnits) {
		displayUnits = units.MgDL
	}
	return &Server{
		svc:   svc,
		db:    store,
		units: units.Normalize(displayUnits),
		clock: timeutil.RealClock{},
	}
}

// WithClock replaces the clock used for timing and prediction records.
func (s *Server) WithClock(c timeutil.Clock) *Server {
	s.clock = c
	return s
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes. Admin routes are mounted separately
// with db.AttachAdminRoutes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/predict/glucose", s.predictGlucose)
	mux.HandleFunc("/api/predict/insulin", s.predictInsulin)
	mux.HandleFunc("/api/health", s.health)
	mux.HandleFunc("/api/models", s.listModels)
	mux.HandleFunc("/api/subjects", s.listSubjects)
	mux.HandleFunc("/api/subjects/{id}/glucose", s.subjectGlucose)
	mux.HandleFunc("/api/charts/trajectory", s.trajectoryChart)
	mux.HandleFunc("/api/predictions", s.listPredictions)
	return mux
}

// displayUnits returns the ?units override or the server default. ok is
// false when the override is not a known unit.
func (s *Server) displayUnits(r *http.Request) (u string, ok bool) {
	q := r.URL.Query().Get("units")
	if q == "" {
		return s.units, true
	}
	if !units.IsValid(q) {
		return "", false
	}
	return units.Normalize(q), true
}
