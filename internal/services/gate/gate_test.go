package gate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MetaGate/internal/domain/models"
)

var (
	t1 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	t2 = t1.Add(3 * time.Hour)
)

func scenario() (*models.Frame, *models.Frame) {
	idx := []time.Time{t1, t2}
	baseline := models.NewFrame(idx, nil)
	baseline.AddColumn("A", []float64{1, 1})
	baseline.AddColumn("B", []float64{0, 1})

	probs := models.NewFrame(idx, nil)
	probs.AddColumn("A", []float64{0.8, 0.3})
	probs.AddColumn("B", []float64{math.NaN(), 0.9})
	return baseline, probs
}

func col(t *testing.T, f *models.Frame, name string) []float64 {
	t.Helper()
	v, ok := f.Col(name)
	require.True(t, ok, "column %s", name)
	return v
}

func TestApplyThresholdScenario(t *testing.T) {
	baseline, probs := scenario()
	got := ApplyThreshold(baseline, probs, 0.5)

	assert.Equal(t, []float64{1, 0}, col(t, got, "A"))
	assert.Equal(t, []float64{0, 1}, col(t, got, "B"))
}

func TestGateNeverOpensPositions(t *testing.T) {
	idx := []time.Time{t1, t2}
	baseline := models.NewFrame(idx, nil)
	baseline.AddColumn("A", []float64{0, 0})
	probs := models.NewFrame(idx, nil)
	probs.AddColumn("A", []float64{0.99, 0.99})
	regimes := models.RegimeSeries{t1: {State: "bull"}, t2: {State: "bull"}}

	for _, tau := range []float64{0, 0.5, 0.9} {
		got, stats := Apply(Input{Baseline: baseline, Probabilities: probs, Threshold: tau, Regimes: regimes, Allowed: []string{"bull"}})
		assert.Equal(t, []float64{0, 0}, col(t, got, "A"))
		assert.Equal(t, Stats{}, stats)
	}
}

func TestMissingProbabilityVetoes(t *testing.T) {
	baseline, _ := scenario()
	empty := models.NewFrame(baseline.Index[:1], nil)
	got := ApplyThreshold(baseline, empty, 0)
	assert.Equal(t, []float64{0, 0}, col(t, got, "A"))
}

func TestApplyRegime(t *testing.T) {
	baseline, probs := scenario()
	regimes := models.RegimeSeries{t1: {State: "bear"}, t2: {State: "bull"}}

	tests := []struct {
		name    string
		regimes models.RegimeSeries
		allowed []string
		a, b    []float64
	}{
		{"bear vetoed", regimes, []string{"bull", "sideways"}, []float64{0, 0}, []float64{0, 1}},
		{"all allowed", regimes, []string{"bull", "sideways", "bear"}, []float64{1, 0}, []float64{0, 1}},
		{"missing regime vetoes", models.RegimeSeries{t1: {State: "bull"}}, []string{"bull"}, []float64{1, 0}, []float64{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Apply(Input{Baseline: baseline, Probabilities: probs, Threshold: 0.5, Regimes: tt.regimes, Allowed: tt.allowed})
			assert.Equal(t, tt.a, col(t, got, "A"))
			assert.Equal(t, tt.b, col(t, got, "B"))
		})
	}
}

func TestAllRegimesAllowedMatchesThresholdGate(t *testing.T) {
	baseline, probs := scenario()
	regimes := models.RegimeSeries{t1: {State: "bear"}, t2: {State: "sideways"}}

	ml := ApplyThreshold(baseline, probs, 0.5)
	both, _ := Apply(Input{Baseline: baseline, Probabilities: probs, Threshold: 0.5, Regimes: regimes, Allowed: []string{"bear", "sideways", "bull"}})
	assert.Equal(t, ml.Values, both.Values)
}

func TestMissingRegimePassesWhenAllStatesAllowed(t *testing.T) {
	baseline, probs := scenario()
	partial := models.RegimeSeries{t1: {State: "bear"}}
	states := []string{"bear", "sideways", "bull"}

	ml := ApplyThreshold(baseline, probs, 0.5)
	both, _ := Apply(Input{Baseline: baseline, Probabilities: probs, Threshold: 0.5, Regimes: partial, Allowed: states, States: states})
	assert.Equal(t, ml.Values, both.Values)

	narrowed, _ := Apply(Input{Baseline: baseline, Probabilities: probs, Threshold: 0.5, Regimes: partial, Allowed: []string{"bear", "bull"}, States: states})
	assert.Equal(t, []float64{1, 0}, col(t, narrowed, "A"))
	assert.Equal(t, []float64{0, 0}, col(t, narrowed, "B"), "t2 has no regime")
}

func TestCovers(t *testing.T) {
	assert.True(t, Covers([]string{"bull", "bear", "sideways", "x"}, []string{"bear", "sideways", "bull"}))
	assert.False(t, Covers([]string{"bull"}, []string{"bear", "bull"}))
	assert.False(t, Covers([]string{"bull"}, nil))
}

func TestCountAndDecisions(t *testing.T) {
	baseline, probs := scenario()
	gated, stats := Apply(Input{Baseline: baseline, Probabilities: probs, Threshold: 0.5})
	assert.Equal(t, Stats{Baseline: 3, Passed: 2, Vetoed: 1}, stats)

	d := Decisions(baseline, gated, probs, nil)
	require.Len(t, d, 3)
	assert.Equal(t, "A", d[0].Asset)
	assert.Equal(t, 1, d[0].Signal)
	assert.InDelta(t, 0.8, d[0].Probability, 1e-12)
	assert.Equal(t, 0, d[1].Signal)
	assert.Equal(t, "B", d[2].Asset)
	assert.True(t, d[2].Timestamp.Equal(t2))
}
