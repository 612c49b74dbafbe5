package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MetaGate/internal/domain/models"
)

// syntheticPrices oscillates with a small drift so every short window has
// both gains and losses.
func syntheticPrices(n int, phase float64) []float64 {
	p := make([]float64, n)
	for i := range p {
		p[i] = 100 + 5*math.Sin(0.9*float64(i)+phase) + 0.05*float64(i)
	}
	return p
}

func grid(n int) []time.Time {
	t0 := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = t0.Add(time.Duration(i) * 3 * time.Hour)
	}
	return out
}

func smallConfig() Config {
	return Config{
		ReturnWindows:   []int{1, 4},
		VolWindows:      []int{5},
		MAWindows:       []int{6},
		RSIWindow:       5,
		BBWindow:        6,
		BBStd:           2,
		MomentumWindows: []int{3},
		IncludeSignal:   true,
	}
}

func buildInputs(n int) (*models.Frame, *models.Frame, *models.Frame) {
	idx := grid(n)
	prices := models.NewFrame(idx, nil)
	prices.AddColumn("BTC", syntheticPrices(n, 1))
	prices.AddColumn("ETH", syntheticPrices(n, 2))

	signals := models.NewFrame(idx, nil)
	s := make([]float64, n)
	for i := range s {
		s[i] = float64(i % 2)
	}
	signals.AddColumn("BTC", s)
	signals.AddColumn("ETH", append([]float64(nil), s...))

	days := []time.Time{idx[0], idx[0].Add(24 * time.Hour), idx[0].Add(48 * time.Hour)}
	metrics := models.NewFrame(days, nil)
	metrics.AddColumn("btc_mvrv_z_score", []float64{1, 2, 3})
	metrics.AddColumn("unused", []float64{9, 9, 9})
	return prices, signals, metrics
}

func TestBuildStacksAssetAgnosticColumns(t *testing.T) {
	prices, signals, metrics := buildInputs(30)

	m, err := Build(prices, signals, metrics, smallConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"return_1p", "return_4p", "volatility_5p", "ma_ratio_6p", "rsi_5p",
		"bb_position_6p", "roc_3p", "signal", "gn_btc_mvrv_z_score",
	}, m.Columns)
	assert.Equal(t, 60, m.Len())
	assert.Equal(t, "BTC", m.Assets[0])
	assert.Equal(t, "ETH", m.Assets[1])
	assert.True(t, m.Times[0].Equal(m.Times[1]))

	assert.False(t, m.Complete(0))
	assert.True(t, m.Complete(m.Len()-1))

	r0, r1 := m.RowRange(10, 12)
	assert.Equal(t, 20, r0)
	assert.Equal(t, 24, r1)
}

func TestBuildNoLookahead(t *testing.T) {
	const n, cut = 80, 40
	prices, signals, metrics := buildInputs(n)
	base, err := Build(prices, signals, metrics, smallConfig())
	require.NoError(t, err)

	perturbed := prices.Clone()
	for c := range perturbed.Values {
		for i := cut + 1; i < n; i++ {
			perturbed.Values[c][i] *= 3
		}
	}
	changed, err := Build(perturbed, signals, metrics, smallConfig())
	require.NoError(t, err)

	for r := 0; r < base.Len(); r++ {
		if base.Times[r].After(prices.Index[cut]) {
			break
		}
		for c := range base.Rows[r] {
			want, got := base.Rows[r][c], changed.Rows[r][c]
			if math.IsNaN(want) {
				assert.True(t, math.IsNaN(got))
				continue
			}
			assert.Equal(t, want, got, "row %d column %s", r, base.Columns[c])
		}
	}
}

func TestBuildNoCommonAssets(t *testing.T) {
	prices, _, _ := buildInputs(10)
	other := models.NewFrame(prices.Index, []string{"SOL"})
	_, err := Build(prices, other, nil, smallConfig())
	assert.ErrorIs(t, err, ErrNoAssets)
}

func TestIndicators(t *testing.T) {
	tests := []struct {
		name string
		got  []float64
		want []float64
	}{
		{
			name: "rolling mean",
			got:  RollingMean([]float64{1, 2, 3, 4}, 2),
			want: []float64{math.NaN(), 1.5, 2.5, 3.5},
		},
		{
			name: "rolling mean skips windows with gaps",
			got:  RollingMean([]float64{1, math.NaN(), 3, 4}, 2),
			want: []float64{math.NaN(), math.NaN(), math.NaN(), 3.5},
		},
		{
			name: "rsi all gains has no loss",
			got:  RSI([]float64{1, 2, 3, 4}, 2),
			want: []float64{math.NaN(), math.NaN(), math.NaN(), math.NaN()},
		},
		{
			name: "rsi balanced moves",
			got:  RSI([]float64{10, 11, 10, 11}, 2),
			want: []float64{math.NaN(), math.NaN(), 50, 50},
		},
		{
			name: "bollinger at mean is one half",
			got:  BollingerPosition([]float64{1, 3, 2}, 3, 2),
			want: []float64{math.NaN(), math.NaN(), 0.5},
		},
		{
			name: "ma ratio",
			got:  MARatio([]float64{2, 4}, 2),
			want: []float64{math.NaN(), 4.0 / 3.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Len(t, tt.got, len(tt.want))
			for i := range tt.want {
				if math.IsNaN(tt.want[i]) {
					assert.True(t, math.IsNaN(tt.got[i]), "index %d: got %v", i, tt.got[i])
					continue
				}
				assert.InDelta(t, tt.want[i], tt.got[i], 1e-9, "index %d", i)
			}
		})
	}
}
