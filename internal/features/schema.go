package features

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"slices"
	"strings"
)

// Row is one record's named feature values.
type Row map[string]float64

// Get returns the value for name, or 0 when it is absent or NaN.
func (r Row) Get(name string) float64 {
	v, ok := r[name]
	if !ok || math.IsNaN(v) {
		return 0
	}
	return v
}

// Renamed returns a copy of r with keys mapped through m.
func (r Row) Renamed(m map[string]string) Row {
	out := make(Row, len(r))
	for k, v := range r {
		if n, ok := m[k]; ok {
			k = n
		}
		out[k] = v
	}
	return out
}

// Schema is the ordered feature contract shared by training and inference.
// A trained artifact records the schema it was fitted with; inference refuses
// an artifact whose fingerprint differs from the running schema.
type Schema struct {
	Name    string   `json:"name"`
	Version int      `json:"version"`
	Target  string   `json:"target"`
	Columns []string `json:"features"`
	// Categorical columns are passed to the regressor unscaled.
	Categorical []string `json:"categorical,omitempty"`
}

// Len returns the feature count.
func (s Schema) Len() int { return len(s.Columns) }

// IsCategorical reports whether name is a categorical column.
func (s Schema) IsCategorical(name string) bool {
	return slices.Contains(s.Categorical, name)
}

// Mask reports, per column, whether it is categorical.
func (s Schema) Mask() []bool {
	m := make([]bool, len(s.Columns))
	for i, c := range s.Columns {
		m[i] = s.IsCategorical(c)
	}
	return m
}

// Vector orders row by the schema. Absent features are filled with 0.
func (s Schema) Vector(row Row) []float64 {
	out := make([]float64, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = row.Get(c)
	}
	return out
}

// Missing lists schema columns absent from row.
func (s Schema) Missing(row Row) []string {
	var out []string
	for _, c := range s.Columns {
		if _, ok := row[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// Fingerprint identifies the name, version, target and ordered columns.
func (s Schema) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00%s\x00", s.Name, s.Version, s.Target)
	h.Write([]byte(strings.Join(s.Columns, "\x00")))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(s.Categorical, "\x00")))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Compatible returns an error describing how other differs from s.
func (s Schema) Compatible(other Schema) error {
	if s.Fingerprint() == other.Fingerprint() {
		return nil
	}
	var diffs []string
	if s.Name != other.Name {
		diffs = append(diffs, fmt.Sprintf("name %q != %q", other.Name, s.Name))
	}
	if s.Version != other.Version {
		diffs = append(diffs, fmt.Sprintf("version %d != %d", other.Version, s.Version))
	}
	if s.Target != other.Target {
		diffs = append(diffs, fmt.Sprintf("target %q != %q", other.Target, s.Target))
	}
	if !slices.Equal(s.Columns, other.Columns) {
		diffs = append(diffs, fmt.Sprintf("features %d != %d or reordered", len(other.Columns), len(s.Columns)))
	}
	if !slices.Equal(s.Categorical, other.Categorical) {
		diffs = append(diffs, "categorical set differs")
	}
	return fmt.Errorf("schema mismatch: %s", strings.Join(diffs, ", "))
}

// SchemaVersion is bumped whenever a schema's columns or their meaning change.
const SchemaVersion = 1

var timeColumns = []string{Hour, DayOfWeek, IsMorning, IsAfternoon, IsEvening, IsNight, IsWeekend}

var timeFlags = []string{IsMorning, IsAfternoon, IsEvening, IsNight, IsWeekend}

// GlucoseColumns is the glucose model's feature order.
var GlucoseColumns = slices.Concat(
	timeColumns,
	[]string{CurrentGlucose, GlucoseLag1, GlucoseLag2, GlucoseLag3, Velocity, RollingMean, RollingStd},
	[]string{RecentInsulinDose, MinutesSinceInsulin, ActiveInsulin},
	[]string{RecentCarbIntake, MinutesSinceCarbs, ActiveCarbs},
	[]string{RecentExerciseIntensity, RecentExerciseDuration, MinutesSinceExercise},
	[]string{Weight, SensitivityFactor, CarbRatio},
)

// InsulinColumns is the insulin model's feature order.
var InsulinColumns = []string{
	IsMorning, IsAfternoon, IsEvening, IsNight, IsWeekend, IsCorrectionDose,
	BloodGlucose, CarbIntake, ExerciseTime, Weight,
	SensitivityFactor, CarbRatio,
	PreviousInsulinDose, HoursSinceLastInsulin, TotalInsulin24h, ActiveInsulin,
}

// FutureColumn names the target column for a horizon in minutes.
func FutureColumn(horizonMinutes int) string {
	return fmt.Sprintf("glucose_future_%dmin", horizonMinutes)
}

// GlucoseSchema is the contract for the glucose model at one horizon.
func GlucoseSchema(horizonMinutes int) Schema {
	return Schema{
		Name:        fmt.Sprintf("glucose_%dmin", horizonMinutes),
		Version:     SchemaVersion,
		Target:      FutureColumn(horizonMinutes),
		Columns:     slices.Clone(GlucoseColumns),
		Categorical: slices.Clone(timeFlags),
	}
}

// InsulinSchema is the contract for the insulin dosage model.
func InsulinSchema() Schema {
	return Schema{
		Name:        "insulin",
		Version:     SchemaVersion,
		Target:      InsulinDosage,
		Columns:     slices.Clone(InsulinColumns),
		Categorical: []string{IsMorning, IsAfternoon, IsEvening, IsNight, IsWeekend, IsCorrectionDose},
	}
}
