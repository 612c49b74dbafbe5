package models

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

var (
	ErrUnsortedIndex = errors.New("frame: index must be strictly increasing")
	ErrShapeMismatch = errors.New("frame: column length does not match index")
)

// Frame is a column-major, timestamp-indexed table. Missing cells are NaN.
// Signal, price and on-chain metric tables are all Frames.
type Frame struct {
	Index   []time.Time
	Columns []string
	Values  [][]float64 // Values[col][row]

	pos map[string]int
}

// NewFrame builds a frame with NaN-filled columns.
func NewFrame(index []time.Time, columns []string) *Frame {
	f := &Frame{
		Index:   index,
		Columns: append([]string(nil), columns...),
		Values:  make([][]float64, len(columns)),
	}
	for c := range f.Values {
		f.Values[c] = NaNs(len(index))
	}
	f.reindex()
	return f
}

// NaNs returns a slice of n NaN values.
func NaNs(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func (f *Frame) reindex() {
	f.pos = make(map[string]int, len(f.Columns))
	for i, c := range f.Columns {
		f.pos[c] = i
	}
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Index) }

// ColIndex returns the position of a column or -1.
func (f *Frame) ColIndex(name string) int {
	if f.pos == nil || len(f.pos) != len(f.Columns) {
		f.reindex()
	}
	if i, ok := f.pos[name]; ok {
		return i
	}
	return -1
}

// Col returns the values of a column.
func (f *Frame) Col(name string) ([]float64, bool) {
	i := f.ColIndex(name)
	if i < 0 {
		return nil, false
	}
	return f.Values[i], true
}

// At returns the cell at (row, column name), NaN if the column is absent.
func (f *Frame) At(row int, name string) float64 {
	i := f.ColIndex(name)
	if i < 0 || row < 0 || row >= f.Len() {
		return math.NaN()
	}
	return f.Values[i][row]
}

// Set writes a cell, adding the column if needed.
func (f *Frame) Set(row int, name string, v float64) {
	i := f.ColIndex(name)
	if i < 0 {
		f.AddColumn(name, NaNs(f.Len()))
		i = len(f.Columns) - 1
	}
	f.Values[i][row] = v
}

// AddColumn appends or replaces a column.
func (f *Frame) AddColumn(name string, values []float64) {
	if i := f.ColIndex(name); i >= 0 {
		f.Values[i] = values
		return
	}
	f.Columns = append(f.Columns, name)
	f.Values = append(f.Values, values)
	f.pos[name] = len(f.Columns) - 1
}

// Validate checks shape and index ordering.
func (f *Frame) Validate() error {
	for c, vals := range f.Values {
		if len(vals) != len(f.Index) {
			return fmt.Errorf("%w: column %q has %d rows, index has %d", ErrShapeMismatch, f.Columns[c], len(vals), len(f.Index))
		}
	}
	for i := 1; i < len(f.Index); i++ {
		if !f.Index[i].After(f.Index[i-1]) {
			return fmt.Errorf("%w: row %d (%s) <= row %d (%s)", ErrUnsortedIndex,
				i, f.Index[i].Format(time.RFC3339), i-1, f.Index[i-1].Format(time.RFC3339))
		}
	}
	return nil
}

// Slice returns rows [i0, i1). Column slices share storage with f.
func (f *Frame) Slice(i0, i1 int) *Frame {
	if i0 < 0 {
		i0 = 0
	}
	if i1 > f.Len() {
		i1 = f.Len()
	}
	if i0 > i1 {
		i0 = i1
	}
	out := &Frame{
		Index:   f.Index[i0:i1],
		Columns: append([]string(nil), f.Columns...),
		Values:  make([][]float64, len(f.Columns)),
	}
	for c := range f.Values {
		out.Values[c] = f.Values[c][i0:i1]
	}
	out.reindex()
	return out
}

// Take returns a copy holding the given rows, in the given order.
func (f *Frame) Take(rows []int) *Frame {
	out := &Frame{
		Index:   make([]time.Time, len(rows)),
		Columns: append([]string(nil), f.Columns...),
		Values:  make([][]float64, len(f.Columns)),
	}
	for c := range out.Values {
		out.Values[c] = make([]float64, len(rows))
	}
	for k, r := range rows {
		out.Index[k] = f.Index[r]
		for c := range f.Values {
			out.Values[c][k] = f.Values[c][r]
		}
	}
	out.reindex()
	return out
}

// Between returns rows with start <= t <= end.
func (f *Frame) Between(start, end time.Time) *Frame {
	return f.Slice(AtOrAfter(f.Index, start), After(f.Index, end))
}

// Locate returns the row holding exactly t.
func (f *Frame) Locate(t time.Time) (int, bool) {
	i := AtOrAfter(f.Index, t)
	if i < f.Len() && f.Index[i].Equal(t) {
		return i, true
	}
	return -1, false
}

// Select returns a frame with only the named columns that exist, in order.
func (f *Frame) Select(names []string) *Frame {
	out := &Frame{Index: f.Index}
	for _, n := range names {
		if vals, ok := f.Col(n); ok {
			out.Columns = append(out.Columns, n)
			out.Values = append(out.Values, vals)
		}
	}
	out.reindex()
	return out
}

// Clone deep-copies the frame.
func (f *Frame) Clone() *Frame {
	out := &Frame{
		Index:   append([]time.Time(nil), f.Index...),
		Columns: append([]string(nil), f.Columns...),
		Values:  make([][]float64, len(f.Values)),
	}
	for c := range f.Values {
		out.Values[c] = append([]float64(nil), f.Values[c]...)
	}
	out.reindex()
	return out
}

// First and Last return the index bounds. ok is false for an empty frame.
func (f *Frame) First() (time.Time, bool) {
	if f.Len() == 0 {
		return time.Time{}, false
	}
	return f.Index[0], true
}

func (f *Frame) Last() (time.Time, bool) {
	if f.Len() == 0 {
		return time.Time{}, false
	}
	return f.Index[f.Len()-1], true
}

// CommonColumns returns columns present in both frames, in a's order.
func CommonColumns(a, b *Frame) []string {
	out := make([]string, 0, len(a.Columns))
	for _, c := range a.Columns {
		if b.ColIndex(c) >= 0 {
			out = append(out, c)
		}
	}
	return out
}

// AtOrAfter returns the first i with index[i] >= t.
func AtOrAfter(index []time.Time, t time.Time) int {
	return sort.Search(len(index), func(i int) bool { return !index[i].Before(t) })
}

// After returns the first i with index[i] > t.
func After(index []time.Time, t time.Time) int {
	return sort.Search(len(index), func(i int) bool { return index[i].After(t) })
}
