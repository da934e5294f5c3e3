package dataset

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/glucose.report/internal/features"
	"github.com/banshee-data/glucose.report/internal/monitoring"
)

// Names of the dataset files written by the prepare step.
const (
	InsulinFile = "insulin_data.csv"
)

// GlucoseFile names the dataset file for a horizon in minutes.
func GlucoseFile(horizonMinutes int) string {
	return fmt.Sprintf("glucose_%dmin_data.csv", horizonMinutes)
}

// GlucoseFrame lays out glucose points as the full per-reading frame.
func GlucoseFrame(points []features.Point) *Frame {
	return FromPoints(points, features.GlucoseFrameColumns)
}

// InsulinFrame lays out insulin points as the full per-dose frame.
func InsulinFrame(points []features.Point) *Frame {
	return FromPoints(points, features.InsulinFrameColumns)
}

// seriesKeys identifies the series each row belongs to. A series is one
// subject within one source file; frames without source_file group by
// patient_id alone.
func seriesKeys(full *Frame) []string {
	subjects, _ := full.Strings(features.PatientID)
	files, ok := full.Strings(features.SourceFile)
	if !ok {
		return subjects
	}
	keys := make([]string, len(subjects))
	for i := range subjects {
		keys[i] = subjects[i] + "\x00" + files[i]
	}
	return keys
}

// futureValues shifts value back by offset positions within each series.
// Rows are grouped by key in their existing order, so each series' rows
// must already be time ordered.
func futureValues(keys []string, value []float64, offset int) []float64 {
	out := make([]float64, len(value))
	groups := map[string][]int{}
	for i, k := range keys {
		groups[k] = append(groups[k], i)
	}
	for i := range out {
		out[i] = math.NaN()
	}
	for _, idx := range groups {
		for k := 0; k+offset < len(idx); k++ {
			out[idx[k]] = value[idx[k+offset]]
		}
	}
	return out
}

// BuildGlucose derives the training dataset for one horizon from the full
// glucose frame. The target is the reading horizon minutes later in the
// same series (subject and source file), located by sample position. Rows without a target
// are dropped, never imputed; remaining gaps in the numeric features are
// filled with 0.
func BuildGlucose(full *Frame, horizonMinutes int, p features.Params) (*Frame, error) {
	schema := features.GlucoseSchema(horizonMinutes)
	if missing := full.Missing(features.PatientID, features.Value, features.Timestamp); len(missing) > 0 {
		return nil, &SchemaError{Dataset: schema.Name, Missing: missing}
	}
	offset := p.SampleOffset(time.Duration(horizonMinutes) * time.Minute)
	if offset <= 0 {
		return nil, fmt.Errorf("dataset %s: horizon shorter than one sample", schema.Name)
	}

	value, ok := full.Float(features.Value)
	if !ok {
		return nil, &SchemaError{Dataset: schema.Name, Missing: []string{features.Value}}
	}
	target := futureValues(seriesKeys(full), value, offset)

	out := full.Filter(func(int) bool { return true })
	if err := out.AddFloat(schema.Target, target); err != nil {
		return nil, fmt.Errorf("dataset %s: %w", schema.Name, err)
	}
	out.Rename(features.GlucoseRenames)
	if missing := out.Missing(schema.Columns...); len(missing) > 0 {
		return nil, &SchemaError{Dataset: schema.Name, Missing: missing}
	}

	out = out.Filter(func(i int) bool { return !math.IsNaN(target[i]) })
	out.FillNaN(0)
	monitoring.Logf("dataset %s: %d of %d rows have a target", schema.Name, out.Len(), full.Len())
	return out, nil
}

// BuildInsulin derives the insulin dosage dataset from the full insulin
// frame, renaming the dose to the target column.
func BuildInsulin(full *Frame) (*Frame, error) {
	schema := features.InsulinSchema()
	if missing := full.Missing(features.BloodGlucose, features.MealCarbs, features.Dose, features.Timestamp); len(missing) > 0 {
		return nil, &SchemaError{Dataset: schema.Name, Missing: missing}
	}
	out := full.Filter(func(int) bool { return true })
	out.Rename(features.InsulinRenames)
	if missing := out.Missing(schema.Columns...); len(missing) > 0 {
		return nil, &SchemaError{Dataset: schema.Name, Missing: missing}
	}
	dose, _ := out.Float(schema.Target)
	out = out.Filter(func(i int) bool { return !math.IsNaN(dose[i]) })
	out.FillNaN(0)
	monitoring.Logf("dataset %s: %d rows", schema.Name, out.Len())
	return out, nil
}
