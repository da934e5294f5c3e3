// Command gen-events writes a reproducible synthetic raw event log.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/banshee-data/glucose.report/internal/events"
	"github.com/banshee-data/glucose.report/internal/security"
	"github.com/banshee-data/glucose.report/internal/synth"
)

func main() {
	def := synth.DefaultConfig()
	var (
		cfg   = def
		start string
		out   string
	)
	flag.Uint64Var(&cfg.Seed, "seed", def.Seed, "random seed")
	flag.StringVar(&start, "start", def.Start.Format(time.RFC3339), "first reading (RFC3339)")
	flag.IntVar(&cfg.Points, "points", def.Points, "readings per subject")
	flag.DurationVar(&cfg.Interval, "interval", def.Interval, "time between readings")
	flag.IntVar(&cfg.Subjects, "subjects", def.Subjects, "number of subjects")
	flag.Float64Var(&cfg.WeightKg, "weight", def.WeightKg, "weight of the first subject in kg")
	flag.Float64Var(&cfg.GlucoseNoise, "noise", def.GlucoseNoise, "reading noise standard deviation in mg/dL")
	flag.StringVar(&out, "o", "", "output file (default: stdout)")
	flag.Parse()

	t, err := time.Parse(time.RFC3339, start)
	if err != nil {
		log.Fatalf("invalid start: %v", err)
	}
	cfg.Start = t

	var w io.Writer = os.Stdout
	if out != "" {
		if err := security.ValidateExportPath(out); err != nil {
			log.Fatalf("invalid output path: %v", err)
		}
		f, err := os.Create(out)
		if err != nil {
			log.Fatalf("create output: %v", err)
		}
		defer f.Close()
		w = f
	}
	if err := generate(w, cfg); err != nil {
		log.Fatalf("generate: %v", err)
	}
	if out != "" {
		fmt.Fprintf(os.Stderr, "wrote %d subjects x %d readings to %s\n", cfg.Subjects, cfg.Points, out)
	}
}

func generate(w io.Writer, cfg synth.Config) error {
	if cfg.Points <= 0 || cfg.Subjects <= 0 {
		return fmt.Errorf("points and subjects must be positive")
	}
	if cfg.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	bw := bufio.NewWriter(w)
	if err := events.WriteCSV(bw, synth.Generate(cfg)); err != nil {
		return err
	}
	return bw.Flush()
}
