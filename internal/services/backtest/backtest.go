// Package backtest turns long/cash signals into per-period returns.
package backtest

import (
	"math"
	"time"

	"MetaGate/internal/domain/models"
	"MetaGate/internal/services/dataset"
)

// Result is a portfolio return series and its derived curves.
type Result struct {
	Index    []time.Time
	Returns  []float64
	Equity   []float64
	Drawdown []float64
}

// StrategyReturns holds position s[t] over (t, t+1]:
// r[t] = s[t]·(p[t+1]/p[t]-1) - |s[t]-s[t-1]|·cost.
// The first row (no prior position) and the last row (no next price) are NaN.
// Prices are looked up by timestamp, so signals may cover a sub-range or
// several disjoint windows; the first row of each window is treated like the
// first row of the series.
func StrategyReturns(signals, prices *models.Frame, cost float64) *models.Frame {
	assets := models.CommonColumns(signals, prices)
	out := models.NewFrame(signals.Index, assets)
	pos := make([]int, signals.Len())
	for i, t := range signals.Index {
		pos[i] = -1
		if j, ok := prices.Locate(t); ok {
			pos[i] = j
		}
	}
	for a, asset := range assets {
		s, _ := signals.Col(asset)
		p, _ := prices.Col(asset)
		fwd := dataset.PctChange(p, 1)
		for i := range signals.Index {
			j := pos[i]
			if i == 0 || j < 0 || j+1 >= len(p) {
				continue
			}
			if pos[i-1] != j-1 {
				continue
			}
			r := fwd[j+1]
			if math.IsNaN(r) || math.IsNaN(s[i]) || math.IsNaN(s[i-1]) {
				continue
			}
			out.Values[a][i] = s[i]*r - math.Abs(s[i]-s[i-1])*cost
		}
	}
	return out
}

// Portfolio averages asset returns with equal weight among assets that have
// a return for the row. Rows with none are 0.
func Portfolio(returns *models.Frame) []float64 {
	out := make([]float64, returns.Len())
	for i := range out {
		var sum float64
		var n int
		for c := range returns.Values {
			if v := returns.Values[c][i]; !math.IsNaN(v) {
				sum += v
				n++
			}
		}
		if n > 0 {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// Equity compounds returns from a starting capital of 1.
func Equity(returns []float64) []float64 {
	out := make([]float64, len(returns))
	v := 1.0
	for i, r := range returns {
		v *= 1 + r
		out[i] = v
	}
	return out
}

// Drawdown is (equity - running max) / running max, so values are <= 0.
func Drawdown(equity []float64) []float64 {
	out := make([]float64, len(equity))
	peak := math.Inf(-1)
	for i, v := range equity {
		peak = math.Max(peak, v)
		out[i] = (v - peak) / peak
	}
	return out
}

// Run backtests signals and returns the portfolio curves.
func Run(signals, prices *models.Frame, cost float64) Result {
	r := Portfolio(StrategyReturns(signals, prices, cost))
	eq := Equity(r)
	return Result{
		Index:    signals.Index,
		Returns:  r,
		Equity:   eq,
		Drawdown: Drawdown(eq),
	}
}
