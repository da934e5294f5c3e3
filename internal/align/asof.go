// Package align performs point-in-time (asof) joins between a subject's event
// streams: for each target timestamp it finds the most recent source event at
// or before it, optionally constrained to a lookback window.
package align

import (
	"slices"
	"time"
)

// Timed is implemented by every event type.
type Timed interface {
	Timestamp() time.Time
}

// Match is the result of joining one target against a source stream. Index is
// -1 when no source event qualified.
type Match struct {
	Index   int
	Elapsed time.Duration
	// Widened is set when the match came from the unbounded fallback rather
	// than from inside the lookback window.
	Widened bool
}

func (m Match) Found() bool { return m.Index >= 0 }

// Minutes returns the elapsed time in minutes.
func (m Match) Minutes() float64 { return m.Elapsed.Minutes() }

var noMatch = Match{Index: -1}

// Mode selects how a lookback window is applied.
type Mode int

const (
	// Unbounded takes the latest prior event regardless of age.
	Unbounded Mode = iota
	// Windowed drops the match when the latest prior event is older than the
	// window.
	Windowed
	// WindowedFallback prefers the latest prior event inside the window and
	// otherwise falls back to the latest prior event of any age.
	WindowedFallback
)

// Asof joins each target time against sources. Both slices must be sorted by
// time ascending. Among sources sharing a timestamp the last one wins.
//
// The scan is a single forward merge: the latest-seen pointer only moves
// forward as targets advance. The latest event at or before T is also the
// youngest candidate, so the window test is applied to it alone.
func Asof[S Timed](targets []time.Time, sources []S, mode Mode, window time.Duration) []Match {
	out := make([]Match, len(targets))
	latest := -1
	for i, t := range targets {
		for latest+1 < len(sources) && !sources[latest+1].Timestamp().After(t) {
			latest++
		}
		if latest < 0 {
			out[i] = noMatch
			continue
		}
		elapsed := t.Sub(sources[latest].Timestamp())
		switch {
		case mode == Unbounded || elapsed <= window:
			out[i] = Match{Index: latest, Elapsed: elapsed}
		case mode == WindowedFallback:
			out[i] = Match{Index: latest, Elapsed: elapsed, Widened: true}
		default:
			out[i] = noMatch
		}
	}
	return out
}

// Scan is the reference O(N×M) form of Asof, kept for property tests.
func Scan[S Timed](targets []time.Time, sources []S, mode Mode, window time.Duration) []Match {
	out := make([]Match, len(targets))
	for i, t := range targets {
		within, prior := -1, -1
		for j, s := range sources {
			ts := s.Timestamp()
			if ts.After(t) {
				continue
			}
			prior = j
			if !ts.Before(t.Add(-window)) {
				within = j
			}
		}
		switch {
		case prior < 0:
			out[i] = noMatch
		case mode == Unbounded:
			out[i] = Match{Index: prior, Elapsed: t.Sub(sources[prior].Timestamp())}
		case within >= 0:
			out[i] = Match{Index: within, Elapsed: t.Sub(sources[within].Timestamp())}
		case mode == WindowedFallback:
			out[i] = Match{Index: prior, Elapsed: t.Sub(sources[prior].Timestamp()), Widened: true}
		default:
			out[i] = noMatch
		}
	}
	return out
}

func times[S Timed](s []S) []time.Time {
	out := make([]time.Time, len(s))
	for i, e := range s {
		out[i] = e.Timestamp()
	}
	return out
}

func sorted[S Timed](s []S) []S {
	less := func(a, b S) int { return a.Timestamp().Compare(b.Timestamp()) }
	if slices.IsSortedFunc(s, less) {
		return s
	}
	c := slices.Clone(s)
	slices.SortStableFunc(c, less)
	return c
}
