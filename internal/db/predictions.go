package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Prediction kinds.
const (
	PredictionGlucose = "glucose"
	PredictionInsulin = "insulin"
)

// PredictionRecord is one served prediction. Target is the time the value
// refers to: the request time plus the horizon for glucose, the request time
// for insulin.
type PredictionRecord struct {
	ID             string          `json:"id"`
	Kind           string          `json:"kind"`
	SubjectID      string          `json:"subjectId,omitempty"`
	Created        time.Time       `json:"created"`
	Target         time.Time       `json:"target"`
	HorizonMinutes int             `json:"horizonMinutes,omitempty"`
	Value          float64         `json:"value"`
	Method         string          `json:"method"`
	Confidence     float64         `json:"confidence"`
	ProcessingMs   float64         `json:"processingTime"`
	Request        json.RawMessage `json:"request"`
}

// RecordPrediction stores p, assigning an ID when it has none.
func (db *DB) RecordPrediction(ctx context.Context, p *PredictionRecord) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Target.IsZero() {
		p.Target = p.Created.Add(time.Duration(p.HorizonMinutes) * time.Minute)
	}
	req := p.Request
	if len(req) == 0 {
		req = json.RawMessage("{}")
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO predictions (prediction_id, kind, subject_id, created_unix_ms, target_unix_ms,
			horizon_minutes, value, method, confidence, processing_ms, request_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Kind, p.SubjectID, unixMs(p.Created), unixMs(p.Target),
		p.HorizonMinutes, p.Value, p.Method, p.Confidence, p.ProcessingMs, string(req))
	if err != nil {
		return fmt.Errorf("record %s prediction: %w", p.Kind, err)
	}
	return nil
}

const predictionColumns = `prediction_id, kind, subject_id, created_unix_ms, target_unix_ms,
	horizon_minutes, value, method, confidence, processing_ms, request_json`

func (db *DB) queryPredictions(ctx context.Context, q string, args ...any) ([]PredictionRecord, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PredictionRecord
	for rows.Next() {
		var (
			p               PredictionRecord
			created, target int64
			req             string
		)
		if err := rows.Scan(&p.ID, &p.Kind, &p.SubjectID, &created, &target,
			&p.HorizonMinutes, &p.Value, &p.Method, &p.Confidence, &p.ProcessingMs, &req); err != nil {
			return nil, err
		}
		p.Created, p.Target, p.Request = fromUnixMs(created), fromUnixMs(target), json.RawMessage(req)
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecentPredictions returns up to limit predictions, newest first. An empty
// kind matches both kinds.
func (db *DB) RecentPredictions(ctx context.Context, kind string, limit int) ([]PredictionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	return db.queryPredictions(ctx, `SELECT `+predictionColumns+` FROM predictions
		WHERE (? = '' OR kind = ?) ORDER BY created_unix_ms DESC, prediction_id LIMIT ?`, kind, kind, limit)
}

// SubjectGlucosePredictions returns a subject's glucose predictions whose
// target falls in [from, to), ordered by target time. A zero bound is open.
func (db *DB) SubjectGlucosePredictions(ctx context.Context, subjectID string, from, to time.Time) ([]PredictionRecord, error) {
	lo, hi := int64(0), int64(1<<62)
	if !from.IsZero() {
		lo = unixMs(from)
	}
	if !to.IsZero() {
		hi = unixMs(to)
	}
	return db.queryPredictions(ctx, `SELECT `+predictionColumns+` FROM predictions
		WHERE kind = 'glucose' AND subject_id = ? AND target_unix_ms >= ? AND target_unix_ms < ?
		ORDER BY target_unix_ms, prediction_id`, subjectID, lo, hi)
}
