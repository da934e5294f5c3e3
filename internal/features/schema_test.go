package features

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaVector(t *testing.T) {
	s := Schema{Name: "t", Columns: []string{"b", "a", "c"}}
	got := s.Vector(Row{"a": 1, "b": 2, "c": math.NaN(), "extra": 9})
	assert.Equal(t, []float64{2, 1, 0}, got)

	assert.Equal(t, []float64{0, 0, 0}, s.Vector(Row{}))
	assert.Equal(t, []string{"b", "c"}, s.Missing(Row{"a": 1}))
	assert.Empty(t, s.Missing(Row{"a": 1, "b": 1, "c": 1}))
}

func TestSchemaShapes(t *testing.T) {
	g := GlucoseSchema(30)
	assert.Equal(t, 26, g.Len())
	assert.Equal(t, "glucose_future_30min", g.Target)
	assert.Equal(t, "glucose_30min", g.Name)
	assert.True(t, g.IsCategorical(IsWeekend))
	assert.False(t, g.IsCategorical(CurrentGlucose))

	ins := InsulinSchema()
	require.Equal(t, 16, ins.Len())
	mask := ins.Mask()
	var cat int
	for _, m := range mask {
		if m {
			cat++
		}
	}
	assert.Equal(t, 6, cat)
	assert.True(t, mask[5])
	assert.False(t, mask[6])
}

func TestSchemaFingerprint(t *testing.T) {
	a := GlucoseSchema(30)
	assert.Len(t, a.Fingerprint(), 16)
	assert.Equal(t, a.Fingerprint(), GlucoseSchema(30).Fingerprint())
	assert.NoError(t, a.Compatible(GlucoseSchema(30)))

	tests := []struct {
		name   string
		mutate func(*Schema)
		want   string
	}{
		{"horizon", func(s *Schema) { *s = GlucoseSchema(60) }, "target"},
		{"version", func(s *Schema) { s.Version++ }, "version"},
		{"reordered", func(s *Schema) { s.Columns[0], s.Columns[1] = s.Columns[1], s.Columns[0] }, "reordered"},
		{"dropped column", func(s *Schema) { s.Columns = s.Columns[1:] }, "features 25 != 26"},
		{"categorical", func(s *Schema) { s.Categorical = nil }, "categorical"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			other := GlucoseSchema(30)
			tc.mutate(&other)
			assert.NotEqual(t, a.Fingerprint(), other.Fingerprint())
			err := a.Compatible(other)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestSchemaJSON(t *testing.T) {
	s := InsulinSchema()
	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"features":[`)

	var back Schema
	require.NoError(t, json.Unmarshal(b, &back))
	assert.NoError(t, s.Compatible(back))
}

func TestRowHelpers(t *testing.T) {
	r := Row{Value: 120, Dose: math.NaN()}
	assert.Equal(t, 120.0, r.Get(Value))
	assert.Zero(t, r.Get(Dose))
	assert.Zero(t, r.Get("absent"))

	renamed := r.Renamed(GlucoseRenames)
	assert.Equal(t, 120.0, renamed[CurrentGlucose])
	assert.NotContains(t, renamed, Value)
	assert.Contains(t, r, Value)
}
