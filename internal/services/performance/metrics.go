// Package performance computes return-series statistics. Ratios that are
// undefined because there is no risk (no losses, no drawdown) are +Inf when
// the mean return is positive and 0 otherwise.
package performance

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"MetaGate/internal/domain/models"
	"MetaGate/internal/services/backtest"
)

// DefaultPeriodsPerYear is the number of 3-hour bars in a year.
const DefaultPeriodsPerYear = 2920

func clean(r []float64) []float64 {
	out := make([]float64, 0, len(r))
	for _, v := range r {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func std(r []float64) float64 {
	if len(r) < 2 {
		return math.NaN()
	}
	return stat.StdDev(r, nil)
}

// Sharpe is the annualized mean over std, with a zero risk-free rate.
func Sharpe(r []float64, ppy int) float64 {
	r = clean(r)
	sd := std(r)
	if math.IsNaN(sd) || sd == 0 {
		return 0
	}
	return math.Sqrt(float64(ppy)) * stat.Mean(r, nil) / sd
}

// Sortino divides by the std of negative returns only.
func Sortino(r []float64, ppy int) float64 {
	r = clean(r)
	if len(r) == 0 {
		return 0
	}
	mean := stat.Mean(r, nil)
	var down []float64
	for _, v := range r {
		if v < 0 {
			down = append(down, v)
		}
	}
	sd := std(down)
	if math.IsNaN(sd) || sd == 0 {
		return undefinedRatio(mean)
	}
	return math.Sqrt(float64(ppy)) * mean / sd
}

// MaxDrawdown is the largest peak-to-trough loss as a positive fraction.
func MaxDrawdown(r []float64) float64 {
	dd := backtest.Drawdown(backtest.Equity(clean(r)))
	worst := 0.0
	for _, v := range dd {
		worst = math.Min(worst, v)
	}
	return math.Abs(worst)
}

// Calmar divides the compounded mean return by max drawdown.
func Calmar(r []float64, ppy int) float64 {
	r = clean(r)
	if len(r) == 0 {
		return 0
	}
	mean := stat.Mean(r, nil)
	mdd := MaxDrawdown(r)
	if mdd == 0 {
		return undefinedRatio(mean)
	}
	return (math.Pow(1+mean, float64(ppy)) - 1) / mdd
}

func WinRate(r []float64) float64 {
	r = clean(r)
	if len(r) == 0 {
		return 0
	}
	wins := 0
	for _, v := range r {
		if v > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(r))
}

// ProfitFactor is gross profit over gross loss.
func ProfitFactor(r []float64) float64 {
	var gain, loss float64
	for _, v := range clean(r) {
		if v > 0 {
			gain += v
		} else if v < 0 {
			loss -= v
		}
	}
	if loss == 0 {
		if gain > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return gain / loss
}

func TotalReturn(r []float64) float64 {
	v := 1.0
	for _, x := range clean(r) {
		v *= 1 + x
	}
	return v - 1
}

// AnnualizedReturn compounds the total return over len(r)/ppy years.
func AnnualizedReturn(r []float64, ppy int) float64 {
	r = clean(r)
	years := float64(len(r)) / float64(ppy)
	if years == 0 {
		return 0
	}
	return math.Pow(1+TotalReturn(r), 1/years) - 1
}

func undefinedRatio(mean float64) float64 {
	if mean > 0 {
		return math.Inf(1)
	}
	return 0
}

// Summarize computes every metric. ppy <= 0 uses DefaultPeriodsPerYear.
func Summarize(r []float64, ppy int) models.Summary {
	if ppy <= 0 {
		ppy = DefaultPeriodsPerYear
	}
	r = clean(r)
	trades := 0
	for _, v := range r {
		if v != 0 {
			trades++
		}
	}
	vol := std(r)
	if math.IsNaN(vol) {
		vol = 0
	}
	return models.Summary{
		TotalReturn:      TotalReturn(r),
		AnnualizedReturn: AnnualizedReturn(r, ppy),
		Sharpe:           Sharpe(r, ppy),
		Sortino:          Sortino(r, ppy),
		MaxDrawdown:      MaxDrawdown(r),
		Calmar:           Calmar(r, ppy),
		WinRate:          WinRate(r),
		ProfitFactor:     ProfitFactor(r),
		Trades:           trades,
		VolatilityAnnual: vol * math.Sqrt(float64(ppy)),
	}
}
