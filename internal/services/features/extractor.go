package features

import (
	"errors"
	"fmt"
	"math"
	"time"

	"MetaGate/internal/domain/models"
	"MetaGate/internal/services/dataset"
)

var ErrNoAssets = errors.New("features: prices and signals share no asset columns")

// DefaultMetrics are the on-chain series used when Config.Metrics is empty.
var DefaultMetrics = []string{
	"btc_mvrv_z_score",
	"btc_adjusted_sopr",
	"btc_fear_greed_index",
	"reserve_risk",
	"btc_puell_multiple",
	"btc_percent_upply_in_profit",
	"btc_futures_perpetual_funding_rate_mean",
	"btc_stablecoin_supply_ratio_oscillator",
}

// Config selects the indicator windows. Windows are in bars.
type Config struct {
	ReturnWindows   []int
	VolWindows      []int
	MAWindows       []int
	RSIWindow       int
	BBWindow        int
	BBStd           float64
	MomentumWindows []int
	IncludeSignal   bool
	Metrics         []string
}

// DefaultConfig uses 3-hour bar windows: 8 = 1 day, 56 = 1 week, 224 = 1 month.
func DefaultConfig() Config {
	return Config{
		ReturnWindows:   []int{1, 8, 56, 224},
		VolWindows:      []int{56, 224},
		MAWindows:       []int{56, 224, 672},
		RSIWindow:       112,
		BBWindow:        160,
		BBStd:           2,
		MomentumWindows: []int{8, 56, 224},
		IncludeSignal:   true,
	}
}

// Matrix is the stacked feature table. Row r is (Times[r], Assets[r]); rows
// are ordered by timestamp, then by asset. Columns carry no asset name so
// every asset shares one schema.
type Matrix struct {
	Columns []string
	Times   []time.Time
	Assets  []string
	Rows    [][]float64
	Pos     []int // Pos[r] is the position of Times[r] in Index

	// Index is the distinct timestamp axis; Offsets[k] is the first row of Index[k].
	Index   []time.Time
	Offsets []int
}

func (m *Matrix) Len() int { return len(m.Rows) }

// Complete reports whether row i has no missing feature.
func (m *Matrix) Complete(i int) bool {
	for _, v := range m.Rows[i] {
		if math.IsNaN(v) {
			return false
		}
	}
	return true
}

// RowRange returns the rows whose timestamp lies in Index[k0:k1].
func (m *Matrix) RowRange(k0, k1 int) (int, int) {
	if k0 >= len(m.Index) {
		return len(m.Rows), len(m.Rows)
	}
	end := len(m.Rows)
	if k1 < len(m.Index) {
		end = m.Offsets[k1]
	}
	return m.Offsets[k0], end
}

// Build computes features for every asset present in both prices and signals.
// metrics may be nil; its columns are projected onto the price index as-of.
func Build(prices, signals, metrics *models.Frame, cfg Config) (*Matrix, error) {
	assets := models.CommonColumns(prices, signals)
	if len(assets) == 0 {
		return nil, ErrNoAssets
	}

	perAsset := make([]*models.Frame, len(assets))
	for a, asset := range assets {
		p, _ := prices.Col(asset)
		f := priceFeatures(prices.Index, p, cfg)
		if cfg.IncludeSignal {
			f.AddColumn("signal", signalOn(prices.Index, signals, asset))
		}
		perAsset[a] = f
	}

	var gn *models.Frame
	if metrics != nil {
		names := cfg.Metrics
		if len(names) == 0 {
			names = DefaultMetrics
		}
		gn = dataset.AsOf(metrics.Select(names), prices.Index)
	}

	m := &Matrix{
		Columns: append([]string(nil), perAsset[0].Columns...),
		Index:   prices.Index,
		Offsets: make([]int, len(prices.Index)),
	}
	if gn != nil {
		for _, c := range gn.Columns {
			m.Columns = append(m.Columns, "gn_"+c)
		}
	}

	width := len(m.Columns)
	for i, t := range prices.Index {
		m.Offsets[i] = len(m.Rows)
		for a, asset := range assets {
			row := make([]float64, 0, width)
			for c := range perAsset[a].Values {
				row = append(row, perAsset[a].Values[c][i])
			}
			if gn != nil {
				for c := range gn.Values {
					row = append(row, gn.Values[c][i])
				}
			}
			m.Times = append(m.Times, t)
			m.Pos = append(m.Pos, i)
			m.Assets = append(m.Assets, asset)
			m.Rows = append(m.Rows, row)
		}
	}
	if len(m.Rows) > 0 && len(m.Rows[0]) != width {
		return nil, fmt.Errorf("features: row width %d, want %d", len(m.Rows[0]), width)
	}
	return m, nil
}

func priceFeatures(index []time.Time, p []float64, cfg Config) *models.Frame {
	f := models.NewFrame(index, nil)
	for _, w := range cfg.ReturnWindows {
		f.AddColumn(fmt.Sprintf("return_%dp", w), dataset.PctChange(p, w))
	}
	for _, w := range cfg.VolWindows {
		f.AddColumn(fmt.Sprintf("volatility_%dp", w), Volatility(p, w))
	}
	for _, w := range cfg.MAWindows {
		f.AddColumn(fmt.Sprintf("ma_ratio_%dp", w), MARatio(p, w))
	}
	if cfg.RSIWindow > 0 {
		f.AddColumn(fmt.Sprintf("rsi_%dp", cfg.RSIWindow), RSI(p, cfg.RSIWindow))
	}
	if cfg.BBWindow > 0 {
		f.AddColumn(fmt.Sprintf("bb_position_%dp", cfg.BBWindow), BollingerPosition(p, cfg.BBWindow, cfg.BBStd))
	}
	for _, w := range cfg.MomentumWindows {
		f.AddColumn(fmt.Sprintf("roc_%dp", w), ROC(p, w))
	}
	return f
}

// signalOn reads an asset's signal at each target timestamp; NaN where the
// signal table has no row.
func signalOn(index []time.Time, signals *models.Frame, asset string) []float64 {
	out := models.NaNs(len(index))
	col, ok := signals.Col(asset)
	if !ok {
		return out
	}
	for i, t := range index {
		if j, found := signals.Locate(t); found {
			out[i] = col[j]
		}
	}
	return out
}
