package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/glucose.report/internal/dataset"
	"github.com/banshee-data/glucose.report/internal/model"
)

// Run states.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// TrainingRun is one invocation of the training pipeline.
type TrainingRun struct {
	ID         string          `json:"runId"`
	Started    time.Time       `json:"started"`
	Finished   time.Time       `json:"finished,omitzero"`
	Status     string          `json:"status"`
	ConfigJSON json.RawMessage `json:"config"`
	Error      string          `json:"error,omitempty"`
	Models     []RunModel      `json:"models,omitempty"`
}

// RunModel is an artifact produced by a run.
type RunModel struct {
	Model        string             `json:"model"`
	Algorithm    string             `json:"algorithm"`
	Fingerprint  string             `json:"fingerprint"`
	TrainingRows int                `json:"trainingRows"`
	Metrics      model.Metrics      `json:"metrics"`
	Importance   []model.Importance `json:"importance"`
}

// BeginRun records a new running training run. config is stored as given
// and may be nil.
func (db *DB) BeginRun(ctx context.Context, runID string, config any, started time.Time) error {
	cfg, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("encode run config: %w", err)
	}
	_, err = db.ExecContext(ctx, `INSERT INTO training_runs (run_id, started_unix_ms, status, config_json) VALUES (?, ?, ?, ?)`,
		runID, unixMs(started), RunRunning, string(cfg))
	return err
}

// FinishRun marks a run completed, or failed when runErr is non-nil.
func (db *DB) FinishRun(ctx context.Context, runID string, runErr error, finished time.Time) error {
	status, msg := RunCompleted, ""
	if runErr != nil {
		status, msg = RunFailed, runErr.Error()
	}
	res, err := db.ExecContext(ctx, `UPDATE training_runs SET status = ?, error = ?, finished_unix_ms = ? WHERE run_id = ?`,
		status, msg, unixMs(finished), runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// RecordModel stores an artifact's summary under its run.
func (db *DB) RecordModel(ctx context.Context, a *model.Artifact) error {
	metrics, err := json.Marshal(a.Metrics)
	if err != nil {
		return err
	}
	importance, err := json.Marshal(a.Importance)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO run_models (run_id, model, algorithm, fingerprint, training_rows, metrics_json, importance_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, model) DO UPDATE SET
			algorithm = excluded.algorithm,
			fingerprint = excluded.fingerprint,
			training_rows = excluded.training_rows,
			metrics_json = excluded.metrics_json,
			importance_json = excluded.importance_json`,
		a.RunID, a.Schema.Name, string(a.Algorithm), a.Fingerprint, a.Rows, string(metrics), string(importance))
	return err
}

func (db *DB) runModels(ctx context.Context, runID string) ([]RunModel, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT model, algorithm, fingerprint, training_rows, metrics_json, importance_json
		FROM run_models WHERE run_id = ? ORDER BY model`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunModel
	for rows.Next() {
		var (
			m                   RunModel
			metrics, importance string
		)
		if err := rows.Scan(&m.Model, &m.Algorithm, &m.Fingerprint, &m.TrainingRows, &metrics, &importance); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(metrics), &m.Metrics); err != nil {
			return nil, fmt.Errorf("run %s model %s metrics: %w", runID, m.Model, err)
		}
		if err := json.Unmarshal([]byte(importance), &m.Importance); err != nil {
			return nil, fmt.Errorf("run %s model %s importance: %w", runID, m.Model, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Runs returns the most recent runs first, with their models.
func (db *DB) Runs(ctx context.Context, limit int) ([]TrainingRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, started_unix_ms, finished_unix_ms, status, config_json, error
		FROM training_runs ORDER BY started_unix_ms DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	var out []TrainingRun
	for rows.Next() {
		var (
			r        TrainingRun
			started  int64
			finished sql.NullInt64
			cfg      string
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Status, &cfg, &r.Error); err != nil {
			rows.Close()
			return nil, err
		}
		r.Started, r.ConfigJSON = fromUnixMs(started), json.RawMessage(cfg)
		if finished.Valid {
			r.Finished = fromUnixMs(finished.Int64)
		}
		out = append(out, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Models, err = db.runModels(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type snapshotColumn struct {
	Name   string `json:"name"`
	String bool   `json:"string,omitempty"`
}

// SnapshotDataset freezes f under runID before any model is fitted on it.
// NaN cells are stored as JSON null.
func (db *DB) SnapshotDataset(ctx context.Context, runID, name string, f *dataset.Frame) error {
	cols := f.Columns()
	layout := make([]snapshotColumn, len(cols))
	for i, c := range cols {
		layout[i] = snapshotColumn{Name: c, String: f.IsString(c)}
	}
	colsJSON, err := json.Marshal(layout)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO run_datasets (run_id, dataset, columns_json, row_count) VALUES (?, ?, ?, ?)`,
		runID, name, string(colsJSON), f.Len()); err != nil {
		return fmt.Errorf("snapshot %s/%s: %w", runID, name, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO dataset_rows (run_id, dataset, row_index, row_json) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	nums := make(map[string][]float64)
	strs := make(map[string][]string)
	for _, c := range cols {
		if f.IsString(c) {
			strs[c], _ = f.Strings(c)
		} else {
			nums[c], _ = f.Float(c)
		}
	}
	row := make(map[string]any, len(cols))
	for i := range f.Len() {
		clear(row)
		for c, v := range nums {
			if math.IsNaN(v[i]) || math.IsInf(v[i], 0) {
				row[c] = nil
			} else {
				row[c] = v[i]
			}
		}
		for c, v := range strs {
			row[c] = v[i]
		}
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, runID, name, i, string(data)); err != nil {
			return fmt.Errorf("snapshot %s/%s row %d: %w", runID, name, i, err)
		}
	}
	return tx.Commit()
}

// LoadSnapshot rebuilds a frozen dataset with its original column order.
func (db *DB) LoadSnapshot(ctx context.Context, runID, name string) (*dataset.Frame, error) {
	var colsJSON string
	err := db.QueryRowContext(ctx, `SELECT columns_json FROM run_datasets WHERE run_id = ? AND dataset = ?`, runID, name).Scan(&colsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s/%s: %w", runID, name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var cols []snapshotColumn
	if err := json.Unmarshal([]byte(colsJSON), &cols); err != nil {
		return nil, fmt.Errorf("snapshot %s/%s columns: %w", runID, name, err)
	}

	rows, err := db.QueryContext(ctx, `SELECT row_json FROM dataset_rows WHERE run_id = ? AND dataset = ? ORDER BY row_index`, runID, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []map[string]any
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		rec := make(map[string]any, len(cols))
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("snapshot %s/%s row %d: %w", runID, name, len(records), err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	f := dataset.NewFrame()
	for _, c := range cols {
		var err error
		if c.String {
			vals := make([]string, len(records))
			for i, rec := range records {
				vals[i], _ = rec[c.Name].(string)
			}
			err = f.AddString(c.Name, vals)
		} else {
			vals := make([]float64, len(records))
			for i, rec := range records {
				v, ok := rec[c.Name].(float64)
				if !ok {
					v = math.NaN()
				}
				vals[i] = v
			}
			err = f.AddFloat(c.Name, vals)
		}
		if err != nil {
			return nil, err
		}
	}
	return f, nil
}
