package labels

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MetaGate/internal/domain/models"
)

func frames() (*models.Frame, *models.Frame) {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	idx := make([]time.Time, 5)
	for i := range idx {
		idx[i] = t0.Add(time.Duration(i) * 3 * time.Hour)
	}
	prices := models.NewFrame(idx, nil)
	prices.AddColumn("BTC", []float64{100, 102, 101, 101.1, 110})
	prices.AddColumn("ETH", []float64{10, 9, 8, 9, 10})

	signals := models.NewFrame(idx, nil)
	signals.AddColumn("BTC", []float64{1, 1, 1, 0, 1})
	signals.AddColumn("ETH", []float64{1, 0, 1, 1, 1})
	return prices, signals
}

func assertSeries(t *testing.T, want, got []float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		if math.IsNaN(want[i]) {
			assert.True(t, math.IsNaN(got[i]), "index %d: got %v", i, got[i])
			continue
		}
		assert.Equal(t, want[i], got[i], "index %d", i)
	}
}

func TestForwardReturn(t *testing.T) {
	prices, signals := frames()
	nan := math.NaN()

	tests := []struct {
		name      string
		threshold float64
		btc, eth  []float64
	}{
		{
			name: "zero threshold",
			btc:  []float64{1, 0, 1, nan, nan},
			eth:  []float64{0, nan, 1, 1, nan},
		},
		{
			name:      "threshold above small gains",
			threshold: 0.05,
			btc:       []float64{0, 0, 0, nan, nan},
			eth:       []float64{0, nan, 1, 1, nan},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ForwardReturn(prices, signals, 1, tt.threshold)
			btc, _ := got.Col("BTC")
			eth, _ := got.Col("ETH")
			assertSeries(t, tt.btc, btc)
			assertSeries(t, tt.eth, eth)
		})
	}
}

func TestCostAdjustedRaisesThreshold(t *testing.T) {
	prices, signals := frames()
	got := CostAdjusted(prices, signals, 1, 0.01, 0.02)
	btc, _ := got.Col("BTC")
	// +2% does not cover 3% round-trip costs.
	assert.Equal(t, 0.0, btc[0])
}

func TestBuildRejectsBadConfig(t *testing.T) {
	prices, signals := frames()
	_, err := Build(prices, signals, Config{Kind: "forward", Horizon: 0})
	assert.Error(t, err)
	_, err = Build(prices, signals, Config{Kind: "nope", Horizon: 1})
	assert.Error(t, err)
}

func TestDistribution(t *testing.T) {
	prices, signals := frames()
	d := Distribution(ForwardReturn(prices, signals, 1, 0))

	assert.Equal(t, 6, d.Overall.Total)
	assert.Equal(t, 4, d.Overall.Positive)
	assert.Equal(t, 2, d.Overall.Negative)
	assert.InDelta(t, 4.0/6.0, d.Overall.PositiveRate, 1e-12)
	assert.InDelta(t, 0.5, d.Overall.ImbalanceRatio, 1e-12)
	assert.Equal(t, 3, d.PerAsset["BTC"].Total)
	assert.Equal(t, 2, d.PerAsset["ETH"].Positive)
}

func TestRiskAdjusted(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	idx := make([]time.Time, 6)
	for i := range idx {
		idx[i] = t0.Add(time.Duration(i) * 3 * time.Hour)
	}
	prices := models.NewFrame(idx, nil)
	prices.AddColumn("BTC", []float64{100, 100, 110, 99, 108.9, 108.9})
	prices.AddColumn("FLAT", []float64{50, 50, 50, 50, 50, 50})
	signals := models.NewFrame(idx, nil)
	signals.AddColumn("BTC", []float64{1, 1, 1, 1, 0, 1})
	signals.AddColumn("FLAT", []float64{1, 1, 1, 1, 1, 1})
	nan := math.NaN()

	// With a 2-period vol window the scores are
	// [warm-up, warm-up, -1.41, 0.71, 0, no forward price].
	tests := []struct {
		name      string
		threshold float64
		btc       []float64
	}{
		{"zero threshold", 0, []float64{nan, nan, 0, 1, nan, nan}},
		{"above every score", 1, []float64{nan, nan, 0, 0, nan, nan}},
		{"below every score", -2, []float64{nan, nan, 1, 1, nan, nan}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RiskAdjusted(prices, signals, 1, tt.threshold, 2)
			btc, _ := got.Col("BTC")
			assertSeries(t, tt.btc, btc)

			flat, _ := got.Col("FLAT")
			assertSeries(t, []float64{nan, nan, nan, nan, nan, nan}, flat)

			built, err := Build(prices, signals, Config{Kind: KindRiskAdjusted, Horizon: 1, Threshold: tt.threshold, VolWindow: 2})
			require.NoError(t, err)
			b, _ := built.Col("BTC")
			assertSeries(t, tt.btc, b)
		})
	}
}
