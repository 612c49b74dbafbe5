// Package gate filters a baseline long/cash signal. The gate can only turn a
// baseline 1 into 0; it never opens a position the baseline did not take.
package gate

import (
	"math"
	"time"

	"MetaGate/internal/domain/models"
)

// Input is one gate evaluation. Regimes is ignored when Allowed is nil.
// States is the full set of regimes the detector can emit; when Allowed
// covers it, rows with no regime pass.
type Input struct {
	Baseline      *models.Frame
	Probabilities *models.Frame
	Threshold     float64
	Regimes       models.RegimeSeries
	Allowed       []string
	States        []string
}

type Stats struct {
	Baseline int `json:"baseline"`
	Passed   int `json:"passed"`
	Vetoed   int `json:"vetoed"`
}

// ApplyThreshold keeps baseline[t,a] = 1 only when p[t,a] > tau. A missing
// probability vetoes.
func ApplyThreshold(baseline, probs *models.Frame, tau float64) *models.Frame {
	out := models.NewFrame(baseline.Index, baseline.Columns)
	for c, asset := range baseline.Columns {
		p, ok := probs.Col(asset)
		for i, t := range baseline.Index {
			out.Values[c][i] = 0
			if baseline.Values[c][i] != 1 || !ok {
				continue
			}
			j, found := probs.Locate(t)
			if found && p[j] > tau {
				out.Values[c][i] = 1
			}
		}
	}
	return out
}

// ApplyRegime zeroes every row whose regime is not allowed. A row with no
// regime is zeroed too, unless allowed covers every state in states.
func ApplyRegime(signals *models.Frame, regimes models.RegimeSeries, allowed, states []string) *models.Frame {
	ok := make(map[string]bool, len(allowed))
	for _, s := range allowed {
		ok[s] = true
	}
	out := signals.Clone()
	if Covers(allowed, states) {
		return out
	}
	for i, t := range out.Index {
		if ok[regimes.State(t)] {
			continue
		}
		for c := range out.Values {
			out.Values[c][i] = 0
		}
	}
	return out
}

// Apply runs the threshold gate, then the regime gate when Allowed is set.
func Apply(in Input) (*models.Frame, Stats) {
	out := ApplyThreshold(in.Baseline, in.Probabilities, in.Threshold)
	if in.Allowed != nil {
		out = ApplyRegime(out, in.Regimes, in.Allowed, in.States)
	}
	return out, Count(in.Baseline, out)
}

// Covers reports whether allowed contains every state. An empty state set is
// never covered.
func Covers(allowed, states []string) bool {
	if len(states) == 0 {
		return false
	}
	set := make(map[string]bool, len(allowed))
	for _, s := range allowed {
		set[s] = true
	}
	for _, s := range states {
		if !set[s] {
			return false
		}
	}
	return true
}

// Count compares gated signals to the baseline.
func Count(baseline, gated *models.Frame) Stats {
	var s Stats
	for c, asset := range baseline.Columns {
		g, _ := gated.Col(asset)
		for i := range baseline.Index {
			if baseline.Values[c][i] != 1 {
				continue
			}
			s.Baseline++
			if g != nil && g[i] == 1 {
				s.Passed++
			} else {
				s.Vetoed++
			}
		}
	}
	return s
}

// Decisions flattens a gated frame into per-cell signals for publishing.
// Only cells where the baseline was long are emitted.
func Decisions(baseline, gated, probs *models.Frame, regimes models.RegimeSeries) []models.GatedSignal {
	var out []models.GatedSignal
	for c, asset := range baseline.Columns {
		g, _ := gated.Col(asset)
		p, hasP := probs.Col(asset)
		for i, t := range baseline.Index {
			if baseline.Values[c][i] != 1 {
				continue
			}
			sig := models.GatedSignal{
				Timestamp: t,
				Asset:     asset,
				Baseline:  1,
				Regime:    regimes.State(t),
			}
			if g != nil && g[i] == 1 {
				sig.Signal = 1
			}
			sig.Probability = probAt(probs, p, hasP, t)
			out = append(out, sig)
		}
	}
	return out
}

func probAt(probs *models.Frame, p []float64, ok bool, t time.Time) float64 {
	if !ok {
		return 0
	}
	if j, found := probs.Locate(t); found && !math.IsNaN(p[j]) {
		return p[j]
	}
	return 0
}
