package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/banshee-data/glucose.report/internal/db"
	"github.com/banshee-data/glucose.report/internal/httputil"
	"github.com/banshee-data/glucose.report/internal/model"
	"github.com/banshee-data/glucose.report/internal/monitoring"
)

// GlucoseResponse is a glucose prediction with its server-side latency.
type GlucoseResponse struct {
	model.GlucosePrediction
	ProcessingTime float64 `json:"processingTime"`
}

// InsulinResponse is a dose recommendation with its server-side latency.
type InsulinResponse struct {
	model.InsulinPrediction
	ProcessingTime float64 `json:"processingTime"`
}

func (s *Server) predictGlucose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req model.GlucoseRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	start := s.clock.Now()
	pred, err := s.svc.PredictGlucose(req)
	if err != nil {
		writePredictError(w, err)
		return
	}
	resp := GlucoseResponse{GlucosePrediction: pred, ProcessingTime: millis(s.clock.Since(start))}

	rec := &db.PredictionRecord{
		Kind:           db.PredictionGlucose,
		Created:        start,
		HorizonMinutes: pred.PredictionHorizon,
		Value:          pred.PredictedGlucose,
		Method:         string(pred.Method),
		Confidence:     pred.Confidence,
		ProcessingMs:   resp.ProcessingTime,
	}
	if req.Timestamp != nil {
		rec.Target = req.Timestamp.Add(time.Duration(pred.PredictionHorizon) * time.Minute)
	}
	s.record(r, rec, req)

	httputil.WriteJSONOK(w, resp)
}

func (s *Server) predictInsulin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req model.InsulinRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	start := s.clock.Now()
	pred, err := s.svc.PredictInsulin(req)
	if err != nil {
		writePredictError(w, err)
		return
	}
	resp := InsulinResponse{InsulinPrediction: pred, ProcessingTime: millis(s.clock.Since(start))}

	rec := &db.PredictionRecord{
		Kind:         db.PredictionInsulin,
		Created:      start,
		Value:        pred.RecommendedDosage,
		Method:       string(pred.Method),
		Confidence:   pred.Confidence,
		ProcessingMs: resp.ProcessingTime,
	}
	if req.Timestamp != nil {
		rec.Target = *req.Timestamp
	}
	s.record(r, rec, req)

	httputil.WriteJSONOK(w, resp)
}

func writePredictError(w http.ResponseWriter, err error) {
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		httputil.BadRequest(w, ve.Error())
		return
	}
	httputil.InternalServerError(w, err.Error())
}

// record logs a served prediction when a store is configured. The optional
// ?subject query parameter links it to a subject's trajectory. A failed
// write is logged and does not affect the response.
func (s *Server) record(r *http.Request, rec *db.PredictionRecord, req any) {
	if s.db == nil {
		return
	}
	rec.SubjectID = r.URL.Query().Get("subject")
	if b, err := json.Marshal(req); err == nil {
		rec.Request = b
	}
	if err := s.db.RecordPrediction(r.Context(), rec); err != nil {
		monitoring.Logf("api: %v", err)
	}
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
