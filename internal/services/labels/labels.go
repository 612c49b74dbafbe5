// Package labels builds binary training targets from future price moves.
// Labels look forward by design; they are targets only and never enter the
// feature matrix.
package labels

import (
	"fmt"
	"math"

	"MetaGate/internal/domain/models"
	"MetaGate/internal/services/dataset"
	"MetaGate/internal/services/features"
)

const (
	KindForward      = "forward"
	KindCostAdjusted = "cost_adjusted"
	KindRiskAdjusted = "risk_adjusted"
)

type Config struct {
	Kind      string
	Horizon   int
	Threshold float64
	EntryCost float64
	ExitCost  float64
	VolWindow int
}

// Build dispatches on cfg.Kind.
func Build(prices, signals *models.Frame, cfg Config) (*models.Frame, error) {
	if cfg.Horizon < 1 {
		return nil, fmt.Errorf("labels: horizon must be >= 1, got %d", cfg.Horizon)
	}
	switch cfg.Kind {
	case "", KindForward:
		return ForwardReturn(prices, signals, cfg.Horizon, cfg.Threshold), nil
	case KindCostAdjusted:
		return CostAdjusted(prices, signals, cfg.Horizon, cfg.EntryCost, cfg.ExitCost), nil
	case KindRiskAdjusted:
		return RiskAdjusted(prices, signals, cfg.Horizon, cfg.Threshold, cfg.VolWindow), nil
	default:
		return nil, fmt.Errorf("labels: unknown kind %q", cfg.Kind)
	}
}

// ForwardReturn labels (t, asset) 1 when p[t+h]/p[t]-1 > threshold and 0
// otherwise. Only rows where the baseline signal is 1 are labeled; the rest,
// and rows without a forward price, are NaN.
func ForwardReturn(prices, signals *models.Frame, horizon int, threshold float64) *models.Frame {
	return label(prices, signals, func(p []float64) []float64 {
		return forwardReturns(p, horizon)
	}, threshold)
}

// CostAdjusted requires the forward return to cover entry and exit costs.
func CostAdjusted(prices, signals *models.Frame, horizon int, entry, exit float64) *models.Frame {
	return ForwardReturn(prices, signals, horizon, entry+exit)
}

// RiskAdjusted labels on forward return divided by trailing volatility of
// one-period returns.
func RiskAdjusted(prices, signals *models.Frame, horizon int, threshold float64, volWindow int) *models.Frame {
	return label(prices, signals, func(p []float64) []float64 {
		fwd := forwardReturns(p, horizon)
		vol := features.Volatility(p, volWindow)
		out := models.NaNs(len(p))
		for i := range p {
			if !math.IsNaN(fwd[i]) && !math.IsNaN(vol[i]) && vol[i] != 0 {
				out[i] = fwd[i] / vol[i]
			}
		}
		return out
	}, threshold)
}

func forwardReturns(p []float64, horizon int) []float64 {
	back := dataset.PctChange(p, horizon)
	out := models.NaNs(len(p))
	for i := 0; i+horizon < len(p); i++ {
		out[i] = back[i+horizon]
	}
	return out
}

func label(prices, signals *models.Frame, score func([]float64) []float64, threshold float64) *models.Frame {
	assets := models.CommonColumns(signals, prices)
	out := models.NewFrame(signals.Index, assets)
	for a, asset := range assets {
		p, _ := prices.Col(asset)
		s, _ := signals.Col(asset)
		sc := score(p)
		for i, t := range signals.Index {
			if s[i] != 1 {
				continue
			}
			j, ok := prices.Locate(t)
			if !ok || math.IsNaN(sc[j]) {
				continue
			}
			if sc[j] > threshold {
				out.Values[a][i] = 1
			} else {
				out.Values[a][i] = 0
			}
		}
	}
	return out
}

// Distribution counts labels overall and per asset.
func Distribution(labels *models.Frame) models.LabelDistribution {
	d := models.LabelDistribution{PerAsset: make(map[string]models.LabelStats, len(labels.Columns))}
	var all models.LabelStats
	for c, asset := range labels.Columns {
		var st models.LabelStats
		for _, v := range labels.Values[c] {
			switch v {
			case 1:
				st.Positive++
			case 0:
				st.Negative++
			}
		}
		st.Total = st.Positive + st.Negative
		if st.Total > 0 {
			st.PositiveRate = float64(st.Positive) / float64(st.Total)
		}
		d.PerAsset[asset] = st

		all.Positive += st.Positive
		all.Negative += st.Negative
	}
	all.Total = all.Positive + all.Negative
	if all.Total > 0 {
		all.PositiveRate = float64(all.Positive) / float64(all.Total)
	}
	all.ImbalanceRatio = float64(all.Negative) / math.Max(float64(all.Positive), 1)
	d.Overall = all
	return d
}
