package models

import (
	"math"
	"time"
)

// Summary holds the performance metrics of one return series. Undefined
// ratios (no losses, zero drawdown) are +Inf until Sanitized.
type Summary struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Sharpe           float64 `json:"sharpe_ratio"`
	Sortino          float64 `json:"sortino_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	Calmar           float64 `json:"calmar_ratio"`
	WinRate          float64 `json:"win_rate"`
	ProfitFactor     float64 `json:"profit_factor"`
	Trades           int     `json:"n_trades"`
	VolatilityAnnual float64 `json:"volatility_annual"`
}

// Sanitized replaces non-finite values with 0 so the summary can be encoded
// as JSON or stored in SQL.
func (s Summary) Sanitized() Summary {
	fix := func(v *float64) {
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			*v = 0
		}
	}
	fix(&s.TotalReturn)
	fix(&s.AnnualizedReturn)
	fix(&s.Sharpe)
	fix(&s.Sortino)
	fix(&s.MaxDrawdown)
	fix(&s.Calmar)
	fix(&s.WinRate)
	fix(&s.ProfitFactor)
	fix(&s.VolatilityAnnual)
	return s
}

// StrategyResult is the evaluation of one gate configuration.
type StrategyResult struct {
	Model        string  `json:"model"`
	Threshold    float64 `json:"threshold"`
	RegimeFilter bool    `json:"regime_filter"`
	Passed       int     `json:"passed"`
	Vetoed       int     `json:"vetoed"`
	Summary      Summary `json:"summary"`
}

// ComparisonRow is one metric of a baseline-vs-improved comparison.
type ComparisonRow struct {
	Metric         string  `json:"metric"`
	Baseline       float64 `json:"baseline"`
	Improved       float64 `json:"improved"`
	Improvement    float64 `json:"improvement"`
	ImprovementPct float64 `json:"improvement_pct"` // NaN (stored as 0) when baseline is 0
}

// Comparison pairs a strategy with the baseline.
type Comparison struct {
	Model        string          `json:"model"`
	Threshold    float64         `json:"threshold"`
	RegimeFilter bool            `json:"regime_filter"`
	Rows         []ComparisonRow `json:"rows"`
}

// DataSummary describes one input table.
type DataSummary struct {
	Name       string             `json:"name"`
	Rows       int                `json:"rows"`
	Columns    []string           `json:"columns"`
	From       time.Time          `json:"from"`
	To         time.Time          `json:"to"`
	MissingPct map[string]float64 `json:"missing_pct"`
}

// LabelStats counts labels for one asset or overall.
type LabelStats struct {
	Total          int     `json:"total"`
	Positive       int     `json:"positive"`
	Negative       int     `json:"negative"`
	PositiveRate   float64 `json:"positive_rate"`
	ImbalanceRatio float64 `json:"imbalance_ratio,omitempty"`
}

// LabelDistribution summarizes class balance.
type LabelDistribution struct {
	Overall  LabelStats            `json:"overall"`
	PerAsset map[string]LabelStats `json:"per_asset"`
}

// RunReport is the full outcome of one pipeline run.
type RunReport struct {
	ID          string            `json:"id"`
	CreatedAt   time.Time         `json:"created_at"`
	Duration    time.Duration     `json:"duration_ns"`
	Assets      []string          `json:"assets"`
	From        time.Time         `json:"from"`
	To          time.Time         `json:"to"`
	Data        []DataSummary     `json:"data"`
	Labels      LabelDistribution `json:"labels"`
	Folds       []FoldResult      `json:"folds"`
	Baseline    Summary           `json:"baseline"`
	Strategies  []StrategyResult  `json:"strategies"`
	Comparisons []Comparison      `json:"comparisons"`
	Params      RunParams         `json:"params"`

	// Signals holds final decisions per strategy; not serialized in reports.
	Signals []GatedSignal `json:"-"`
}

// RunInfo is the short listing form of a stored report.
type RunInfo struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Strategies int       `json:"strategies"`
	BestModel  string    `json:"best_model"`
	BestSharpe float64   `json:"best_sharpe"`
}

// RunParams are the per-run overrides accepted from HTTP or Kafka requests.
type RunParams struct {
	Models     []string  `json:"models,omitempty" validate:"omitempty,dive,required"`
	Thresholds []float64 `json:"thresholds,omitempty" validate:"omitempty,dive,gte=0,lte=1"`
	Regime     *bool     `json:"regime,omitempty"`
	Trigger    string    `json:"trigger,omitempty"`
}
