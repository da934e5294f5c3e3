package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/glucose.report/internal/events"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("db: not found")

// SubjectSummary is a stored subject with its glucose coverage.
type SubjectSummary struct {
	ID           string    `json:"id"`
	WeightKg     float64   `json:"weightKg"`
	SourceFile   string    `json:"sourceFile"`
	Readings     int       `json:"readings"`
	FirstReading time.Time `json:"firstReading,omitzero"`
	LastReading  time.Time `json:"lastReading,omitzero"`
}

// ImportStats counts the rows written by ImportStreams. Duplicates of
// events already stored are skipped.
type ImportStats struct {
	Subjects int
	Inserted int
	Skipped  int
}

// ImportStreams stores each subject and its events in a single transaction.
// Re-importing the same log is a no-op.
func (db *DB) ImportStreams(ctx context.Context, streams []*events.Streams, now time.Time) (ImportStats, error) {
	var st ImportStats
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return st, err
	}
	defer tx.Rollback()

	subj, err := tx.PrepareContext(ctx, `
		INSERT INTO subjects (subject_id, weight_kg, source_file, carb_stream, created_unix_ms, updated_unix_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (subject_id) DO UPDATE SET
			weight_kg = excluded.weight_kg,
			source_file = excluded.source_file,
			carb_stream = MAX(subjects.carb_stream, excluded.carb_stream),
			updated_unix_ms = excluded.updated_unix_ms`)
	if err != nil {
		return st, err
	}
	defer subj.Close()

	ev, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO events (subject_id, kind, ts_unix_ms, value, dose, carbs, intensity, duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return st, err
	}
	defer ev.Close()

	for _, s := range streams {
		if _, err := subj.ExecContext(ctx, s.Subject.ID, s.Subject.WeightKg, s.Subject.SourceFile, s.CarbStream, unixMs(now), unixMs(now)); err != nil {
			return st, fmt.Errorf("subject %s: %w", s.Subject.ID, err)
		}
		st.Subjects++
		for _, e := range s.Events() {
			res, err := ev.ExecContext(ctx, e.SubjectID, e.Kind.String(), unixMs(e.Time), e.Value, e.Dose, e.Carbs, e.Intensity, e.Duration)
			if err != nil {
				return st, fmt.Errorf("subject %s %s event at %s: %w", e.SubjectID, e.Kind, e.Time.Format(time.RFC3339), err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				st.Inserted++
			} else {
				st.Skipped++
			}
		}
	}
	return st, tx.Commit()
}

const subjectSummarySQL = `
	SELECT s.subject_id, s.weight_kg, s.source_file,
		COUNT(e.event_id), MIN(e.ts_unix_ms), MAX(e.ts_unix_ms)
	FROM subjects s
	LEFT JOIN events e ON e.subject_id = s.subject_id AND e.kind = 'glucose'`

func scanSummary(row interface{ Scan(...any) error }) (SubjectSummary, error) {
	var (
		s           SubjectSummary
		first, last sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.WeightKg, &s.SourceFile, &s.Readings, &first, &last); err != nil {
		return s, err
	}
	if first.Valid {
		s.FirstReading = fromUnixMs(first.Int64)
	}
	if last.Valid {
		s.LastReading = fromUnixMs(last.Int64)
	}
	return s, nil
}

// Subjects lists every stored subject ordered by id.
func (db *DB) Subjects(ctx context.Context) ([]SubjectSummary, error) {
	rows, err := db.QueryContext(ctx, subjectSummarySQL+` GROUP BY s.subject_id ORDER BY s.subject_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SubjectSummary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Subject returns one subject's summary or ErrNotFound.
func (db *DB) Subject(ctx context.Context, id string) (SubjectSummary, error) {
	s, err := scanSummary(db.QueryRowContext(ctx, subjectSummarySQL+` WHERE s.subject_id = ? GROUP BY s.subject_id`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return s, fmt.Errorf("subject %s: %w", id, ErrNotFound)
	}
	return s, err
}

// GlucoseReadings returns a subject's readings in [from, to), ascending. A
// zero bound is open. limit <= 0 returns everything; otherwise the most
// recent limit readings are kept.
func (db *DB) GlucoseReadings(ctx context.Context, subjectID string, from, to time.Time, limit int) ([]events.Glucose, error) {
	q := `SELECT ts_unix_ms, value FROM events WHERE subject_id = ? AND kind = 'glucose'`
	args := []any{subjectID}
	if !from.IsZero() {
		q += ` AND ts_unix_ms >= ?`
		args = append(args, unixMs(from))
	}
	if !to.IsZero() {
		q += ` AND ts_unix_ms < ?`
		args = append(args, unixMs(to))
	}
	q += ` ORDER BY ts_unix_ms DESC, event_id DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []events.Glucose
	for rows.Next() {
		var ms int64
		var g events.Glucose
		if err := rows.Scan(&ms, &g.Value); err != nil {
			return nil, err
		}
		g.Time = fromUnixMs(ms)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// LoadStreams rebuilds a subject's streams from storage.
func (db *DB) LoadStreams(ctx context.Context, subjectID string) (*events.Streams, error) {
	var (
		subj       events.Subject
		carbStream bool
	)
	err := db.QueryRowContext(ctx, `SELECT subject_id, weight_kg, source_file, carb_stream FROM subjects WHERE subject_id = ?`, subjectID).
		Scan(&subj.ID, &subj.WeightKg, &subj.SourceFile, &carbStream)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subject %s: %w", subjectID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT kind, ts_unix_ms, value, dose, carbs, intensity, duration
		FROM events WHERE subject_id = ? ORDER BY ts_unix_ms, event_id`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evs []events.Event
	for rows.Next() {
		var (
			kind string
			ms   int64
		)
		e := events.Event{SubjectID: subjectID}
		if err := rows.Scan(&kind, &ms, &e.Value, &e.Dose, &e.Carbs, &e.Intensity, &e.Duration); err != nil {
			return nil, err
		}
		if e.Kind, err = events.ParseKind(kind); err != nil {
			return nil, err
		}
		e.Time = fromUnixMs(ms)
		evs = append(evs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s := events.FromEvents(subj, evs)
	s.CarbStream = s.CarbStream || carbStream
	return s, nil
}

// AllStreams rebuilds every stored subject, ordered by id.
func (db *DB) AllStreams(ctx context.Context) ([]*events.Streams, error) {
	subjects, err := db.Subjects(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*events.Streams, 0, len(subjects))
	for _, s := range subjects {
		st, err := db.LoadStreams(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}
