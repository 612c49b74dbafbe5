package features

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"MetaGate/internal/domain/models"
	"MetaGate/internal/services/dataset"
)

// All indicators are trailing: out[i] depends only on x[0..i]. A window that
// is not yet full, or that holds a NaN, yields NaN.

func window(x []float64, i, w int) ([]float64, bool) {
	if w <= 0 || i+1 < w {
		return nil, false
	}
	win := x[i-w+1 : i+1]
	for _, v := range win {
		if math.IsNaN(v) {
			return nil, false
		}
	}
	return win, true
}

// RollingMean is the simple moving average over w periods.
func RollingMean(x []float64, w int) []float64 {
	out := models.NaNs(len(x))
	for i := range x {
		if win, ok := window(x, i, w); ok {
			out[i] = stat.Mean(win, nil)
		}
	}
	return out
}

// RollingStd is the sample standard deviation over w periods.
func RollingStd(x []float64, w int) []float64 {
	out := models.NaNs(len(x))
	if w < 2 {
		return out
	}
	for i := range x {
		if win, ok := window(x, i, w); ok {
			out[i] = stat.StdDev(win, nil)
		}
	}
	return out
}

// Volatility is the rolling std of one-period returns.
func Volatility(prices []float64, w int) []float64 {
	return RollingStd(dataset.PctChange(prices, 1), w)
}

// MARatio is price divided by its w-period moving average.
func MARatio(prices []float64, w int) []float64 {
	ma := RollingMean(prices, w)
	out := models.NaNs(len(prices))
	for i := range prices {
		if !math.IsNaN(ma[i]) && ma[i] != 0 {
			out[i] = prices[i] / ma[i]
		}
	}
	return out
}

// RSI on a 0..100 scale with simple-average gains and losses. The first
// (undefined) delta counts as no move. Zero average loss gives NaN.
func RSI(prices []float64, w int) []float64 {
	n := len(prices)
	gain := make([]float64, n)
	loss := make([]float64, n)
	for i := 1; i < n; i++ {
		d := prices[i] - prices[i-1]
		switch {
		case math.IsNaN(d):
			gain[i], loss[i] = math.NaN(), math.NaN()
		case d > 0:
			gain[i] = d
		case d < 0:
			loss[i] = -d
		}
	}
	avgGain := RollingMean(gain, w)
	avgLoss := RollingMean(loss, w)

	out := models.NaNs(n)
	for i := range out {
		if math.IsNaN(avgGain[i]) || math.IsNaN(avgLoss[i]) || avgLoss[i] == 0 {
			continue
		}
		rs := avgGain[i] / avgLoss[i]
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// BollingerPosition is (p - lower) / (upper - lower) with bands at
// mean ± k·std over w periods. 0 is the lower band, 1 the upper.
func BollingerPosition(prices []float64, w int, k float64) []float64 {
	ma := RollingMean(prices, w)
	sd := RollingStd(prices, w)
	out := models.NaNs(len(prices))
	for i := range prices {
		if math.IsNaN(ma[i]) || math.IsNaN(sd[i]) || sd[i] == 0 {
			continue
		}
		lower := ma[i] - k*sd[i]
		upper := ma[i] + k*sd[i]
		out[i] = (prices[i] - lower) / (upper - lower)
	}
	return out
}

// ROC is the w-period rate of change.
func ROC(prices []float64, w int) []float64 {
	return dataset.PctChange(prices, w)
}
