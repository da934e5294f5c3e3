package events

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"day-month-year", "25-04-2023 10:15:00", time.Date(2023, 4, 25, 10, 15, 0, 0, time.UTC)},
		{"iso", "2023-04-25 10:15:00", time.Date(2023, 4, 25, 10, 15, 0, 0, time.UTC)},
		{"us wins when ambiguous", "03/04/2023 08:00:00", time.Date(2023, 3, 4, 8, 0, 0, 0, time.UTC)},
		{"european when us is invalid", "25/04/2023 08:00:00", time.Date(2023, 4, 25, 8, 0, 0, 0, time.UTC)},
		{"rfc3339", "2023-04-25T10:15:00Z", time.Date(2023, 4, 25, 10, 15, 0, 0, time.UTC)},
		{"surrounding space", "  2023-04-25 10:15:00 ", time.Date(2023, 4, 25, 10, 15, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseTimestamp(tc.in, nil)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "got %v want %v", got, tc.want)
		})
	}
}

func TestParseTimestampLocation(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	got, err := ParseTimestamp("2023-07-01 12:00:00", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 7, 1, 10, 0, 0, 0, time.UTC), got.UTC())
}

func TestParseTimestampInvalid(t *testing.T) {
	for _, in := range []string{"", "   ", "yesterday", "32-13-2023 10:00:00", "2023/04/25"} {
		_, err := ParseTimestamp(in, nil)
		var pe *ParseError
		require.True(t, errors.As(err, &pe), "input %q: expected ParseError, got %v", in, err)
		assert.Equal(t, "timestamp", pe.Column)
	}
}
