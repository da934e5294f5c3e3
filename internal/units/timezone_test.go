package units

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTimezoneValid(t *testing.T) {
	tests := []struct {
		name     string
		timezone string
		expected bool
	}{
		{"valid UTC", "UTC", true},
		{"valid US Eastern", "America/New_York", true},
		{"invalid", "Invalid/Timezone", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsTimezoneValid(tt.timezone))
		})
	}
}

func TestGetValidTimezonesString(t *testing.T) {
	res := GetValidTimezonesString()
	for _, s := range []string{"UTC", "Europe/London", "America/New_York"} {
		assert.Contains(t, res, s)
	}
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	loc, err = LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())

	_, err = LoadLocation("Mars/Olympus_Mons")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Mars/Olympus_Mons")
}

func TestConvertTime(t *testing.T) {
	utcTime := time.Date(2025, 9, 13, 12, 0, 0, 0, time.UTC)

	out, err := ConvertTime(utcTime, "UTC")
	require.NoError(t, err)
	assert.True(t, out.Equal(utcTime))

	out, err = ConvertTime(utcTime, "Asia/Kolkata")
	require.NoError(t, err)
	assert.True(t, out.Equal(utcTime))
	assert.Equal(t, 17, out.Hour())

	_, err = ConvertTime(utcTime, "Nowhere/Land")
	assert.Error(t, err)
}
