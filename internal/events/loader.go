package events

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/glucose.report/internal/monitoring"
)

// Raw log column names.
const (
	ColID           = "id"
	ColWeight       = "weight"
	ColTimestamp    = "ts"
	ColValue        = "value"
	ColDose         = "dose"
	ColBolusCarbs   = "bwz_carb_input"
	ColCarbs        = "carbs"
	ColCarbTime     = "ts9"
	ColIntensity    = "intensity"
	ColDuration     = "duration"
	exerciseTimeTag = "ts_begin"
	exerciseEndTag  = "ts_end"
)

// DefaultWeightKg is used when a subject's weight is absent or invalid.
const DefaultWeightKg = 70.0

// ReadOptions controls how a raw log is interpreted.
type ReadOptions struct {
	// Source is recorded on each subject as SourceFile.
	Source string
	// Location is applied to timestamps carrying no zone. Nil means UTC.
	Location *time.Location
	// DefaultWeightKg replaces missing weights. Zero means DefaultWeightKg.
	DefaultWeightKg float64
}

func (o ReadOptions) defaultWeight() float64 {
	if o.DefaultWeightKg > 0 {
		return o.DefaultWeightKg
	}
	return DefaultWeightKg
}

// ErrNoIDColumn is returned when a log has no subject id column.
var ErrNoIDColumn = errors.New("events: log has no id column")

type header struct {
	names []string
	index map[string]int
}

func newHeader(names []string) header {
	h := header{names: make([]string, len(names)), index: make(map[string]int, len(names))}
	for i, n := range names {
		n = strings.TrimSpace(strings.TrimPrefix(n, "\ufeff"))
		h.names[i] = n
		if _, dup := h.index[n]; !dup {
			h.index[n] = i
		}
	}
	return h
}

func (h header) col(name string) int {
	if i, ok := h.index[name]; ok {
		return i
	}
	return -1
}

func (h header) has(name string) bool { return h.col(name) >= 0 }

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// present reports whether a cell holds a value. Pandas-style NaN markers count
// as empty.
func present(s string) bool {
	switch strings.ToLower(s) {
	case "", "nan", "na", "n/a", "null", "none":
		return false
	}
	return true
}

func parseNumber(col, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &ParseError{Column: col, Value: s, Err: err}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ParseError{Column: col, Value: s, Err: fmt.Errorf("not finite")}
	}
	return v, nil
}

// LoadFile reads a raw log from disk. The base name of path becomes the
// subjects' SourceFile unless opts.Source is set.
func LoadFile(path string, opts ReadOptions) ([]*Streams, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if opts.Source == "" {
		opts.Source = filepath.Base(path)
	}
	return ReadCSV(f, opts)
}

// ReadCSV splits a raw event log into per-subject streams, in order of each
// subject's first appearance. A row may carry events of several kinds. Rows
// whose timestamp or value cannot be parsed are dropped and counted in
// Streams.Dropped.
func ReadCSV(r io.Reader, opts ReadOptions) ([]*Streams, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	names, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	h := newHeader(names)
	if !h.has(ColID) {
		return nil, ErrNoIDColumn
	}

	idCol := h.col(ColID)
	var order []string
	rows := make(map[string][][]string)
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		id := field(rec, idCol)
		if !present(id) {
			continue
		}
		if _, ok := rows[id]; !ok {
			order = append(order, id)
		}
		rows[id] = append(rows[id], rec)
	}

	out := make([]*Streams, 0, len(order))
	for _, id := range order {
		s := extract(h, id, rows[id], opts)
		if n := s.Dropped.Total(); n > 0 {
			monitoring.Logf("subject %s: dropped %d rows (glucose=%d insulin=%d carb=%d exercise=%d)",
				id, n, s.Dropped.Glucose, s.Dropped.Insulin, s.Dropped.Carb, s.Dropped.Exercise)
		}
		out = append(out, s)
	}
	return out, nil
}

func extract(h header, id string, rows [][]string, opts ReadOptions) *Streams {
	s := &Streams{Subject: Subject{ID: id, SourceFile: opts.Source, WeightKg: opts.defaultWeight()}}

	if wc := h.col(ColWeight); wc >= 0 && len(rows) > 0 {
		if raw := field(rows[0], wc); present(raw) {
			if w, err := parseNumber(ColWeight, raw); err == nil && w > 0 {
				s.Subject.WeightKg = w
			} else {
				monitoring.Logf("subject %s: invalid weight %q, using %.1f kg", id, raw, s.Subject.WeightKg)
			}
		}
	}

	extractGlucose(h, rows, opts.Location, s)
	extractInsulin(h, rows, opts.Location, s)
	extractCarbs(h, rows, opts.Location, s)
	extractExercise(h, rows, opts.Location, s)
	s.Sort()
	return s
}

func extractGlucose(h header, rows [][]string, loc *time.Location, s *Streams) {
	vc, tc := h.col(ColValue), h.col(ColTimestamp)
	if vc < 0 {
		return
	}
	for _, rec := range rows {
		raw := field(rec, vc)
		if !present(raw) {
			continue
		}
		v, err := parseNumber(ColValue, raw)
		if err != nil {
			s.Dropped.add(KindGlucose)
			continue
		}
		t, err := ParseTimestamp(field(rec, tc), loc)
		if err != nil {
			s.Dropped.add(KindGlucose)
			continue
		}
		s.Glucose = append(s.Glucose, Glucose{Time: t, Value: v})
	}
}

// insulinTimeColumn picks the first timestamp-like column, other than the
// exercise bounds, holding any value among the dose rows.
func insulinTimeColumn(h header, doseRows [][]string) int {
	for i, n := range h.names {
		l := strings.ToLower(n)
		if !strings.Contains(l, "ts") || strings.HasPrefix(l, exerciseTimeTag) || strings.HasPrefix(l, exerciseEndTag) {
			continue
		}
		for _, rec := range doseRows {
			if present(field(rec, i)) {
				return i
			}
		}
	}
	return -1
}

func extractInsulin(h header, rows [][]string, loc *time.Location, s *Streams) {
	dc := h.col(ColDose)
	if dc < 0 {
		return
	}
	var doseRows [][]string
	for _, rec := range rows {
		if present(field(rec, dc)) {
			doseRows = append(doseRows, rec)
		}
	}
	if len(doseRows) == 0 {
		return
	}
	tc := insulinTimeColumn(h, doseRows)
	if tc < 0 {
		monitoring.Logf("subject %s: no timestamp column for %d insulin rows", s.Subject.ID, len(doseRows))
		s.Dropped.Insulin += len(doseRows)
		return
	}
	cc := h.col(ColBolusCarbs)
	for _, rec := range doseRows {
		dose, err := parseNumber(ColDose, field(rec, dc))
		if err != nil {
			s.Dropped.add(KindInsulin)
			continue
		}
		t, err := ParseTimestamp(field(rec, tc), loc)
		if err != nil {
			s.Dropped.add(KindInsulin)
			continue
		}
		var carbs float64
		if raw := field(rec, cc); present(raw) {
			if v, err := parseNumber(ColBolusCarbs, raw); err == nil {
				carbs = v
			}
		}
		s.Insulin = append(s.Insulin, Insulin{Time: t, Dose: dose, MealCarbs: carbs})
	}
}

func extractCarbs(h header, rows [][]string, loc *time.Location, s *Streams) {
	cc, tc := h.col(ColCarbs), h.col(ColCarbTime)
	if cc < 0 || tc < 0 {
		return
	}
	for _, rec := range rows {
		raw := field(rec, cc)
		if !present(raw) {
			continue
		}
		s.CarbStream = true
		v, err := parseNumber(ColCarbs, raw)
		if err != nil {
			s.Dropped.add(KindCarb)
			continue
		}
		t, err := ParseTimestamp(field(rec, tc), loc)
		if err != nil {
			s.Dropped.add(KindCarb)
			continue
		}
		s.Carbs = append(s.Carbs, Carb{Time: t, Amount: v})
	}
}

func extractExercise(h header, rows [][]string, loc *time.Location, s *Streams) {
	ic, dc := h.col(ColIntensity), h.col(ColDuration)
	if ic < 0 || dc < 0 {
		return
	}
	tc := -1
	for i, n := range h.names {
		if strings.Contains(strings.ToLower(n), exerciseTimeTag) {
			tc = i
			break
		}
	}
	for _, rec := range rows {
		raw := field(rec, ic)
		if !present(raw) {
			continue
		}
		if tc < 0 {
			s.Dropped.add(KindExercise)
			continue
		}
		intensity, err := parseNumber(ColIntensity, raw)
		if err != nil {
			s.Dropped.add(KindExercise)
			continue
		}
		t, err := ParseTimestamp(field(rec, tc), loc)
		if err != nil {
			s.Dropped.add(KindExercise)
			continue
		}
		var duration float64
		if d := field(rec, dc); present(d) {
			if v, err := parseNumber(ColDuration, d); err == nil {
				duration = v
			}
		}
		s.Exercise = append(s.Exercise, Exercise{Time: t, Intensity: intensity, Duration: duration})
	}
}
