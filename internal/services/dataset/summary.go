package dataset

import (
	"math"

	"MetaGate/internal/domain/models"
)

// Summarize reports shape, range and missing percentage per column.
func Summarize(f *models.Frame, name string) models.DataSummary {
	s := models.DataSummary{
		Name:       name,
		Rows:       f.Len(),
		Columns:    append([]string(nil), f.Columns...),
		MissingPct: make(map[string]float64, len(f.Columns)),
	}
	s.From, _ = f.First()
	s.To, _ = f.Last()
	for c, col := range f.Columns {
		if f.Len() == 0 {
			s.MissingPct[col] = 0
			continue
		}
		missing := 0
		for _, v := range f.Values[c] {
			if math.IsNaN(v) {
				missing++
			}
		}
		s.MissingPct[col] = float64(missing) / float64(f.Len()) * 100
	}
	return s
}

// Returns computes simple returns p[i]/p[i-periods]-1 per column.
func Returns(prices *models.Frame, periods int) *models.Frame {
	out := models.NewFrame(prices.Index, prices.Columns)
	for c := range prices.Values {
		out.Values[c] = PctChange(prices.Values[c], periods)
	}
	return out
}

// LogReturns computes ln(p[i]/p[i-periods]) per column.
func LogReturns(prices *models.Frame, periods int) *models.Frame {
	out := models.NewFrame(prices.Index, prices.Columns)
	for c, col := range prices.Values {
		for i := periods; i < len(col); i++ {
			prev, cur := col[i-periods], col[i]
			if prev > 0 && cur > 0 {
				out.Values[c][i] = math.Log(cur / prev)
			}
		}
	}
	return out
}

// PctChange returns x[i]/x[i-periods]-1, NaN where undefined.
func PctChange(x []float64, periods int) []float64 {
	out := models.NaNs(len(x))
	if periods <= 0 {
		return out
	}
	for i := periods; i < len(x); i++ {
		prev := x[i-periods]
		if prev == 0 || math.IsNaN(prev) || math.IsNaN(x[i]) {
			continue
		}
		out[i] = x[i]/prev - 1
	}
	return out
}
