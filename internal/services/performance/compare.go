package performance

import (
	"math"

	"MetaGate/internal/domain/models"
)

// Compare lines up baseline and improved metrics. Improvement % is relative
// to |baseline|. Non-finite cells, including the percentage for a zero
// baseline, are reported as 0.
func Compare(baseline, improved models.Summary) []models.ComparisonRow {
	pairs := []struct {
		name string
		b, i float64
	}{
		{"total_return", baseline.TotalReturn, improved.TotalReturn},
		{"annualized_return", baseline.AnnualizedReturn, improved.AnnualizedReturn},
		{"sharpe_ratio", baseline.Sharpe, improved.Sharpe},
		{"sortino_ratio", baseline.Sortino, improved.Sortino},
		{"max_drawdown", baseline.MaxDrawdown, improved.MaxDrawdown},
		{"calmar_ratio", baseline.Calmar, improved.Calmar},
		{"win_rate", baseline.WinRate, improved.WinRate},
		{"profit_factor", baseline.ProfitFactor, improved.ProfitFactor},
		{"n_trades", float64(baseline.Trades), float64(improved.Trades)},
		{"volatility_annual", baseline.VolatilityAnnual, improved.VolatilityAnnual},
	}
	rows := make([]models.ComparisonRow, len(pairs))
	for k, p := range pairs {
		diff := p.i - p.b
		pct := math.NaN()
		if p.b != 0 {
			pct = diff / math.Abs(p.b) * 100
		}
		rows[k] = models.ComparisonRow{
			Metric:         p.name,
			Baseline:       finite(p.b),
			Improved:       finite(p.i),
			Improvement:    finite(diff),
			ImprovementPct: finite(pct),
		}
	}
	return rows
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
