package events

import (
	"encoding/csv"
	"io"
	"strconv"
)

// RawHeader is the column order written by WriteCSV.
var RawHeader = []string{
	ColID, ColWeight, ColTimestamp, ColValue, ColDose, ColBolusCarbs,
	ColCarbs, ColCarbTime, ColIntensity, ColDuration, exerciseTimeTag,
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// WriteCSV writes streams in the raw log format read by ReadCSV, one row per
// event, timestamps in the day-month-year layout.
func WriteCSV(w io.Writer, streams []*Streams) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RawHeader); err != nil {
		return err
	}
	layout := TimestampLayouts[0]
	for _, s := range streams {
		id, weight := s.Subject.ID, num(s.Subject.WeightKg)
		row := func() []string {
			r := make([]string, len(RawHeader))
			r[0], r[1] = id, weight
			return r
		}
		for _, g := range s.Glucose {
			r := row()
			r[2], r[3] = g.Time.Format(layout), num(g.Value)
			if err := cw.Write(r); err != nil {
				return err
			}
		}
		for _, in := range s.Insulin {
			r := row()
			r[2], r[4], r[5] = in.Time.Format(layout), num(in.Dose), num(in.MealCarbs)
			if err := cw.Write(r); err != nil {
				return err
			}
		}
		for _, c := range s.Carbs {
			r := row()
			r[6], r[7] = num(c.Amount), c.Time.Format(layout)
			if err := cw.Write(r); err != nil {
				return err
			}
		}
		for _, e := range s.Exercise {
			r := row()
			r[8], r[9], r[10] = num(e.Intensity), num(e.Duration), e.Time.Format(layout)
			if err := cw.Write(r); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
