// Package dataset builds the training tables from computed feature points and
// persists them as CSV.
package dataset

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/glucose.report/internal/features"
)

// SchemaError reports columns a dataset needs but its input lacks.
type SchemaError struct {
	Dataset string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("dataset %s: missing required columns: %s", e.Dataset, strings.Join(e.Missing, ", "))
}

// Frame is a column-oriented table of numeric and string columns sharing
// one row count.
type Frame struct {
	columns []string
	num     map[string][]float64
	str     map[string][]string
	n       int
}

func NewFrame() *Frame {
	return &Frame{num: map[string][]float64{}, str: map[string][]string{}}
}

func (f *Frame) Len() int { return f.n }

// Columns returns the column names in insertion order.
func (f *Frame) Columns() []string { return slices.Clone(f.columns) }

func (f *Frame) Has(name string) bool {
	_, n := f.num[name]
	_, s := f.str[name]
	return n || s
}

// IsString reports whether name is a string column.
func (f *Frame) IsString(name string) bool {
	_, ok := f.str[name]
	return ok
}

func (f *Frame) checkAdd(name string, n int) error {
	if f.Has(name) {
		return fmt.Errorf("column %q already exists", name)
	}
	if len(f.columns) > 0 && n != f.n {
		return fmt.Errorf("column %q has %d rows, frame has %d", name, n, f.n)
	}
	return nil
}

// AddFloat appends a numeric column. The first column fixes the row count.
func (f *Frame) AddFloat(name string, values []float64) error {
	if err := f.checkAdd(name, len(values)); err != nil {
		return err
	}
	f.columns = append(f.columns, name)
	f.num[name] = values
	f.n = len(values)
	return nil
}

// AddString appends a string column.
func (f *Frame) AddString(name string, values []string) error {
	if err := f.checkAdd(name, len(values)); err != nil {
		return err
	}
	f.columns = append(f.columns, name)
	f.str[name] = values
	f.n = len(values)
	return nil
}

// Float returns the numeric column name. The slice is shared with f.
func (f *Frame) Float(name string) ([]float64, bool) {
	v, ok := f.num[name]
	return v, ok
}

// Strings returns the string column name. The slice is shared with f.
func (f *Frame) Strings(name string) ([]string, bool) {
	v, ok := f.str[name]
	return v, ok
}

// Missing lists the names absent from f.
func (f *Frame) Missing(names ...string) []string {
	var out []string
	for _, n := range names {
		if !f.Has(n) {
			out = append(out, n)
		}
	}
	return out
}

// Select returns a frame with only the named columns, in that order. Column
// data is shared.
func (f *Frame) Select(names ...string) (*Frame, error) {
	if missing := f.Missing(names...); len(missing) > 0 {
		return nil, fmt.Errorf("select: unknown columns %s", strings.Join(missing, ", "))
	}
	out := NewFrame()
	out.n = f.n
	for _, n := range names {
		out.columns = append(out.columns, n)
		if v, ok := f.num[n]; ok {
			out.num[n] = v
		} else {
			out.str[n] = f.str[n]
		}
	}
	return out, nil
}

// Rename renames columns in place. Names absent from f are ignored.
func (f *Frame) Rename(m map[string]string) {
	for i, c := range f.columns {
		to, ok := m[c]
		if !ok || to == c {
			continue
		}
		f.columns[i] = to
		if v, ok := f.num[c]; ok {
			delete(f.num, c)
			f.num[to] = v
		} else {
			f.str[to] = f.str[c]
			delete(f.str, c)
		}
	}
}

// Filter returns a new frame holding the rows for which keep is true.
func (f *Frame) Filter(keep func(i int) bool) *Frame {
	var idx []int
	for i := 0; i < f.n; i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	out := NewFrame()
	out.n = len(idx)
	out.columns = slices.Clone(f.columns)
	for name, v := range f.num {
		col := make([]float64, len(idx))
		for j, i := range idx {
			col[j] = v[i]
		}
		out.num[name] = col
	}
	for name, v := range f.str {
		col := make([]string, len(idx))
		for j, i := range idx {
			col[j] = v[i]
		}
		out.str[name] = col
	}
	return out
}

// Append adds the rows of o, which must have the same columns and kinds.
func (f *Frame) Append(o *Frame) error {
	if len(f.columns) == 0 {
		*f = *o.Filter(func(int) bool { return true })
		return nil
	}
	if !slices.Equal(f.columns, o.columns) {
		return fmt.Errorf("append: column mismatch")
	}
	for _, c := range f.columns {
		if f.IsString(c) != o.IsString(c) {
			return fmt.Errorf("append: column %q kind mismatch", c)
		}
	}
	for name := range f.num {
		f.num[name] = append(f.num[name], o.num[name]...)
	}
	for name := range f.str {
		f.str[name] = append(f.str[name], o.str[name]...)
	}
	f.n += o.n
	return nil
}

// FillNaN replaces NaN in every numeric column except those in skip.
func (f *Frame) FillNaN(v float64, skip ...string) {
	for name, col := range f.num {
		if slices.Contains(skip, name) {
			continue
		}
		for i, x := range col {
			if math.IsNaN(x) {
				col[i] = v
			}
		}
	}
}

// Row returns the numeric values of row i.
func (f *Frame) Row(i int) features.Row {
	r := make(features.Row, len(f.num))
	for name, col := range f.num {
		r[name] = col[i]
	}
	return r
}

// Matrix returns the design matrix ordered by s.Columns and the target
// column s.Target.
func (f *Frame) Matrix(s features.Schema) (*mat.Dense, []float64, error) {
	missing := f.Missing(s.Columns...)
	if !f.Has(s.Target) {
		missing = append(missing, s.Target)
	}
	if len(missing) > 0 {
		return nil, nil, &SchemaError{Dataset: s.Name, Missing: missing}
	}
	if f.n == 0 {
		return nil, nil, fmt.Errorf("dataset %s: no rows", s.Name)
	}
	x := mat.NewDense(f.n, s.Len(), nil)
	for j, c := range s.Columns {
		col, ok := f.num[c]
		if !ok {
			return nil, nil, fmt.Errorf("dataset %s: column %q is not numeric", s.Name, c)
		}
		for i, v := range col {
			x.Set(i, j, v)
		}
	}
	y, ok := f.num[s.Target]
	if !ok {
		return nil, nil, fmt.Errorf("dataset %s: target %q is not numeric", s.Name, s.Target)
	}
	return x, slices.Clone(y), nil
}

// FromPoints lays out points under columns. String columns come from
// Point.Strings; absent numeric values are NaN.
func FromPoints(points []features.Point, columns []string) *Frame {
	f := NewFrame()
	f.n = len(points)
	for _, c := range columns {
		f.columns = append(f.columns, c)
		if slices.Contains(features.StringColumns, c) {
			col := make([]string, len(points))
			for i, p := range points {
				col[i] = p.Strings()[c]
			}
			f.str[c] = col
			continue
		}
		col := make([]float64, len(points))
		for i, p := range points {
			v, ok := p.Values[c]
			if !ok {
				v = math.NaN()
			}
			col[i] = v
		}
		f.num[c] = col
	}
	return f
}
