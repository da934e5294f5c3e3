package events

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayouts are tried in order: day-month-year, ISO, US, then
// European. The dataset's native format comes first because "01/02/2006"
// style strings are ambiguous and the US reading wins over the European one.
var TimestampLayouts = []string{
	"02-01-2006 15:04:05",
	"2006-01-02 15:04:05",
	"01/02/2006 15:04:05",
	"02/01/2006 15:04:05",
}

// lenientLayouts are accepted after the primary layouts fail.
var lenientLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// OutputLayout is the timestamp format written to the prepared datasets.
const OutputLayout = "2006-01-02 15:04:05"

// ParseError reports a value that could not be parsed. The row carrying it
// is dropped.
type ParseError struct {
	Column string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s %q: %v", e.Column, e.Value, e.Err)
	}
	return fmt.Sprintf("parse %s %q", e.Column, e.Value)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseTimestamp parses s in loc using the known layouts. A nil loc means
// UTC.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	v := strings.TrimSpace(s)
	if v == "" {
		return time.Time{}, &ParseError{Column: "timestamp", Value: s, Err: fmt.Errorf("empty")}
	}
	for _, layout := range TimestampLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	for _, layout := range lenientLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &ParseError{Column: "timestamp", Value: s}
}
