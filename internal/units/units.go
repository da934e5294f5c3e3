// Package units provides display units for glucose values and time zone
// helpers for naive timestamps.
package units

import (
	"math"
	"strings"
)

// Glucose display units. Values are stored and modelled in mg/dL.
const (
	MgDL  = "mg/dL"
	MmolL = "mmol/L"
)

// MgDLPerMmolL converts between the two glucose units.
const MgDLPerMmolL = 18.0182

// ValidUnits contains all valid unit values
var ValidUnits = []string{MgDL, MmolL}

// Normalize maps common spellings ("mgdl", "mmol") onto the canonical unit
// names. Unknown values are returned unchanged.
func Normalize(unit string) string {
	switch strings.ToLower(strings.ReplaceAll(unit, "/", "")) {
	case "mgdl":
		return MgDL
	case "mmoll", "mmol":
		return MmolL
	}
	return unit
}

// IsValid reports whether unit, after normalization, is a known unit.
func IsValid(unit string) bool {
	switch Normalize(unit) {
	case MgDL, MmolL:
		return true
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ConvertGlucose converts a reading in mg/dL to the target units, rounded to
// one decimal for mmol/L. Unknown units leave the value in mg/dL.
func ConvertGlucose(mgdl float64, targetUnits string) float64 {
	if Normalize(targetUnits) == MmolL {
		return math.Round(mgdl/MgDLPerMmolL*10) / 10
	}
	return mgdl
}

// ToMgDL converts a value in the given units back to mg/dL.
func ToMgDL(v float64, fromUnits string) float64 {
	if Normalize(fromUnits) == MmolL {
		return v * MgDLPerMmolL
	}
	return v
}
