package dataset

import (
	"errors"
	"fmt"
	"math"
	"time"

	"MetaGate/internal/domain/models"
)

var ErrNoOverlap = errors.New("dataset: inputs have no overlapping time range")

// Align restricts signals, prices and metrics to their common time range
// [max(first), min(last)]. metrics may be nil.
func Align(signals, prices, metrics *models.Frame) (*models.Frame, *models.Frame, *models.Frame, error) {
	frames := []*models.Frame{signals, prices}
	if metrics != nil {
		frames = append(frames, metrics)
	}

	var start, end time.Time
	for i, f := range frames {
		first, ok := f.First()
		if !ok {
			return nil, nil, nil, fmt.Errorf("%w: input %d is empty", ErrNoOverlap, i)
		}
		last, _ := f.Last()
		if i == 0 || first.After(start) {
			start = first
		}
		if i == 0 || last.Before(end) {
			end = last
		}
	}
	if start.After(end) {
		return nil, nil, nil, fmt.Errorf("%w: start %s after end %s", ErrNoOverlap, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	s := signals.Between(start, end)
	p := prices.Between(start, end)
	var m *models.Frame
	if metrics != nil {
		m = metrics.Between(start, end)
	}
	return s, p, m, nil
}

// ForwardFill carries the last non-missing value of every column forward.
func ForwardFill(f *models.Frame) *models.Frame {
	out := f.Clone()
	for c := range out.Values {
		last := math.NaN()
		for i, v := range out.Values[c] {
			if math.IsNaN(v) {
				out.Values[c][i] = last
				continue
			}
			last = v
		}
	}
	return out
}

// AsOf projects a lower-frequency frame onto index: every target row takes the
// last source row whose timestamp is at or before the target. Source gaps are
// forward filled first. Rows before the first source timestamp are NaN.
func AsOf(src *models.Frame, index []time.Time) *models.Frame {
	filled := ForwardFill(src)
	out := models.NewFrame(index, filled.Columns)
	for i, t := range index {
		j := models.After(filled.Index, t) - 1
		if j < 0 {
			continue
		}
		for c := range filled.Values {
			out.Values[c][i] = filled.Values[c][j]
		}
	}
	return out
}

// SourceRow returns the source row AsOf used for target t, or -1.
func SourceRow(src *models.Frame, t time.Time) int {
	return models.After(src.Index, t) - 1
}
