package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"

	"github.com/banshee-data/glucose.report/internal/features"
	"github.com/banshee-data/glucose.report/internal/fsutil"
)

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteCSV writes f with a header row. NaN is written as an empty field.
func WriteCSV(w io.Writer, f *Frame) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.columns); err != nil {
		return err
	}
	rec := make([]string, len(f.columns))
	for i := 0; i < f.n; i++ {
		for j, c := range f.columns {
			if v, ok := f.num[c]; ok {
				rec[j] = formatFloat(v[i])
			} else {
				rec[j] = f.str[c][i]
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a frame written by WriteCSV. The known string columns stay
// strings; every other column must parse as a number or be empty (NaN).
func ReadCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return NewFrame(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	isStr := make([]bool, len(header))
	num := make([][]float64, len(header))
	str := make([][]string, len(header))
	for j, h := range header {
		isStr[j] = slices.Contains(features.StringColumns, h)
	}

	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		for j, field := range rec {
			if isStr[j] {
				str[j] = append(str[j], field)
				continue
			}
			v := math.NaN()
			if field != "" {
				if v, err = strconv.ParseFloat(field, 64); err != nil {
					return nil, fmt.Errorf("line %d column %s: %w", line, header[j], err)
				}
			}
			num[j] = append(num[j], v)
		}
	}

	f := NewFrame()
	rows := line - 1
	for j, h := range header {
		if isStr[j] {
			col := str[j]
			if col == nil {
				col = make([]string, 0)
			}
			err = f.AddString(h, col[:rows:rows])
		} else {
			col := num[j]
			if col == nil {
				col = make([]float64, 0)
			}
			err = f.AddFloat(h, col[:rows:rows])
		}
		if err != nil {
			return nil, err
		}
	}
	return f, nil
}

// WriteFile writes f as CSV to path on fsys.
func WriteFile(fsys fsutil.FileSystem, path string, f *Frame) error {
	w, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteCSV(w, f); err != nil {
		w.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return w.Close()
}

// ReadFile reads a CSV frame from path on fsys.
func ReadFile(fsys fsutil.FileSystem, path string) (*Frame, error) {
	r, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	f, err := ReadCSV(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}
