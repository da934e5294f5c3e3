// Package synth generates reproducible raw event logs for tests and demos.
package synth

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/glucose.report/internal/events"
)

// Config describes the generated logs.
type Config struct {
	Seed     uint64
	Start    time.Time
	Points   int
	Interval time.Duration
	Subjects int
	WeightKg float64
	// GlucoseNoise is the standard deviation of the reading noise in mg/dL.
	GlucoseNoise float64
}

func DefaultConfig() Config {
	return Config{
		Seed:         42,
		Start:        time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		Points:       1000,
		Interval:     5 * time.Minute,
		Subjects:     1,
		WeightKg:     70,
		GlucoseNoise: 15,
	}
}

const (
	baseGlucose   = 120.0
	carbRatio     = 10.0 // grams per unit
	correction    = 50.0 // mg/dL per unit
	targetGlucose = 120.0
)

// hourOffset is the typical deviation from the base level at hour.
func hourOffset(hour int) float64 {
	switch {
	case hour >= 4 && hour < 8:
		return 30
	case hour >= 8 && hour < 10, hour >= 13 && hour < 15, hour >= 19 && hour < 21:
		return 40
	case hour < 4:
		return -10
	}
	return 0
}

type meal struct {
	hour, minute int
	jitter       float64 // minutes
	carbMin      float64
	carbMax      float64
}

var meals = []meal{
	{7, 30, 20, 30, 60},
	{12, 45, 20, 45, 75},
	{18, 45, 20, 60, 90},
}

type generator struct {
	cfg   Config
	src   rand.Source
	rng   *rand.Rand
	noise distuv.Normal
}

func newGenerator(cfg Config, subject int) *generator {
	src := rand.NewPCG(cfg.Seed, uint64(subject))
	return &generator{
		cfg:   cfg,
		src:   src,
		rng:   rand.New(src),
		noise: distuv.Normal{Mu: 0, Sigma: cfg.GlucoseNoise, Src: src},
	}
}

func (g *generator) uniform(lo, hi float64) float64 {
	return distuv.Uniform{Min: lo, Max: hi, Src: g.src}.Rand()
}

func roundHalf(v float64) float64 { return math.Round(v*2) / 2 }

// nearest returns the reading closest to t within 15 minutes.
func nearest(readings []events.Glucose, t time.Time, fallback float64) float64 {
	best, bestGap := fallback, 15*time.Minute
	for _, r := range readings {
		gap := r.Time.Sub(t)
		if gap < 0 {
			gap = -gap
		}
		if gap < bestGap {
			best, bestGap = r.Value, gap
		}
	}
	return best
}

func (g *generator) subject(i int) *events.Streams {
	cfg := g.cfg
	s := &events.Streams{Subject: events.Subject{
		ID:         fmt.Sprint(i + 1),
		WeightKg:   cfg.WeightKg,
		SourceFile: "synthetic",
	}}

	for k := 0; k < cfg.Points; k++ {
		t := cfg.Start.Add(time.Duration(k) * cfg.Interval)
		v := baseGlucose + hourOffset(t.Hour()) + g.noise.Rand() + 5*math.Sin(float64(k)/100)
		s.Glucose = append(s.Glucose, events.Glucose{Time: t, Value: math.Round(math.Min(400, math.Max(40, v))*10) / 10})
	}
	if len(s.Glucose) == 0 {
		return s
	}
	end := s.Glucose[len(s.Glucose)-1].Time
	day := time.Date(cfg.Start.Year(), cfg.Start.Month(), cfg.Start.Day(), 0, 0, 0, 0, cfg.Start.Location())

	for ; !day.After(end); day = day.AddDate(0, 0, 1) {
		for _, m := range meals {
			at := day.Add(time.Duration(m.hour)*time.Hour + time.Duration(m.minute)*time.Minute)
			at = at.Add(time.Duration(g.uniform(-m.jitter, m.jitter)) * time.Minute)
			if at.Before(cfg.Start) || at.After(end) {
				continue
			}
			carbs := math.Floor(g.uniform(m.carbMin, m.carbMax))
			bg := nearest(s.Glucose, at, targetGlucose)
			dose := (carbs/carbRatio + math.Max(0, (bg-targetGlucose)/correction)) * g.uniform(0.9, 1.1)
			s.Insulin = append(s.Insulin, events.Insulin{Time: at, Dose: roundHalf(dose), MealCarbs: carbs})
		}

		corr := day.Add(15*time.Hour + time.Duration(g.rng.IntN(120))*time.Minute)
		if !corr.Before(cfg.Start) && !corr.After(end) {
			bg := nearest(s.Glucose, corr, 200)
			if bg < 150 {
				bg = 150 + float64(g.rng.IntN(100))
			}
			if dose := roundHalf((bg - targetGlucose) / correction); dose > 0 {
				s.Insulin = append(s.Insulin, events.Insulin{Time: corr, Dose: dose})
			}
		}

		ex := day.Add(17*time.Hour + time.Duration(g.rng.IntN(60))*time.Minute)
		if !ex.Before(cfg.Start) && !ex.After(end) && g.rng.Float64() < 0.7 {
			s.Exercise = append(s.Exercise, events.Exercise{
				Time:      ex,
				Intensity: float64(1 + g.rng.IntN(3)),
				Duration:  float64(20 + 5*g.rng.IntN(9)),
			})
		}
	}
	s.Sort()
	return s
}

// Generate returns cfg.Subjects subjects. The same Config always yields the
// same events.
func Generate(cfg Config) []*events.Streams {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Subjects <= 0 {
		cfg.Subjects = 1
	}
	if cfg.WeightKg <= 0 {
		cfg.WeightKg = events.DefaultWeightKg
	}
	out := make([]*events.Streams, cfg.Subjects)
	for i := range out {
		out[i] = newGenerator(cfg, i).subject(i)
	}
	return out
}
