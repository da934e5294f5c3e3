// Package testutil provides shared test helpers and fixtures.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewTestRequest creates a test HTTP request with no body.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewJSONRequest creates a test request whose body is v encoded as JSON.
// A string v is sent verbatim.
func NewJSONRequest(t testing.TB, method, path string, v any) *http.Request {
	t.Helper()
	var body []byte
	switch b := v.(type) {
	case string:
		body = []byte(b)
	default:
		var err error
		if body, err = json.Marshal(v); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	r := httptest.NewRequest(method, path, bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// DecodeJSON decodes a recorded response body into a T.
func DecodeJSON[T any](t testing.TB, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

// WriteFile writes content to name under dir and returns the path.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create fixture dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

// FixtureStart is the first reading time in RawLog.
var FixtureStart = time.Date(2023, 1, 1, 6, 0, 0, 0, time.UTC)

// RawLog returns a raw event log for one subject with n glucose readings
// five minutes apart starting at FixtureStart, one meal bolus at 30 minutes,
// a carb entry at 25 minutes and an exercise session at 90 minutes.
func RawLog(id string, weight float64, n int) string {
	const layout = "02-01-2006 15:04:05"
	var b strings.Builder
	b.WriteString("id,weight,ts,value,dose,bwz_carb_input,carbs,ts9,intensity,duration,ts_begin\n")
	for i := range n {
		ts := FixtureStart.Add(time.Duration(5*i) * time.Minute).Format(layout)
		fmt.Fprintf(&b, "%s,%g,%s,%d,,,,,,,\n", id, weight, ts, 100+(i*7)%40)
	}
	fmt.Fprintf(&b, "%s,%g,%s,,4,45,,,,,\n", id, weight, FixtureStart.Add(30*time.Minute).Format(layout))
	fmt.Fprintf(&b, "%s,%g,,,,,45,%s,,,\n", id, weight, FixtureStart.Add(25*time.Minute).Format(layout))
	fmt.Fprintf(&b, "%s,%g,,,,,,,2,30,%s\n", id, weight, FixtureStart.Add(90*time.Minute).Format(layout))
	return b.String()
}
