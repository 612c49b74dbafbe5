package performance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MetaGate/internal/domain/models"
)

func TestSummarize(t *testing.T) {
	r := []float64{0.1, -0.05, 0, 0.02, math.NaN()}
	s := Summarize(r, 4)

	assert.InDelta(t, 1.1*0.95*1.02-1, s.TotalReturn, 1e-12)
	assert.InDelta(t, 1.1*0.95*1.02-1, s.AnnualizedReturn, 1e-12) // four periods = one year
	assert.InDelta(t, 0.05, s.MaxDrawdown, 1e-12)
	assert.InDelta(t, 0.5, s.WinRate, 1e-12)
	assert.InDelta(t, 0.12/0.05, s.ProfitFactor, 1e-12)
	assert.Equal(t, 3, s.Trades)
	assert.Greater(t, s.Sharpe, 0.0)
}

func TestUndefinedRatios(t *testing.T) {
	tests := []struct {
		name    string
		r       []float64
		sortino float64
		calmar  float64
		pf      float64
	}{
		{"only gains", []float64{0.01, 0.02}, math.Inf(1), math.Inf(1), math.Inf(1)},
		{"flat", []float64{0, 0}, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.sortino, Sortino(tt.r, 2920))
			assert.Equal(t, tt.calmar, Calmar(tt.r, 2920))
			assert.Equal(t, tt.pf, ProfitFactor(tt.r))
		})
	}
}

func TestSharpeZeroVariance(t *testing.T) {
	assert.Equal(t, 0.0, Sharpe([]float64{0.01, 0.01, 0.01}, 2920))
	assert.Equal(t, 0.0, Sharpe(nil, 2920))
}

func TestSanitizedSummary(t *testing.T) {
	s := Summarize([]float64{0.01, 0.02}, 2920).Sanitized()
	assert.Equal(t, 0.0, s.Sortino)
	assert.Equal(t, 0.0, s.ProfitFactor)
	assert.Greater(t, s.TotalReturn, 0.0)
}

func TestCompare(t *testing.T) {
	base := models.Summary{Sharpe: 1, TotalReturn: 0, Sortino: math.Inf(1), Trades: 10}
	imp := models.Summary{Sharpe: 1.5, TotalReturn: 0.2, Sortino: 2, Trades: 5}

	rows := Compare(base, imp)
	require.Len(t, rows, 10)
	byName := map[string]models.ComparisonRow{}
	for _, r := range rows {
		byName[r.Metric] = r
	}

	assert.InDelta(t, 0.5, byName["sharpe_ratio"].Improvement, 1e-12)
	assert.InDelta(t, 50, byName["sharpe_ratio"].ImprovementPct, 1e-12)
	assert.Equal(t, 0.0, byName["total_return"].ImprovementPct)
	assert.Equal(t, 0.0, byName["sortino_ratio"].Baseline)
	assert.InDelta(t, -50, byName["n_trades"].ImprovementPct, 1e-12)
}
