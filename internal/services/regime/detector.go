// Package regime detects market regimes with a hidden Markov model fit on a
// reference asset. One regime series applies to every asset.
package regime

import (
	"fmt"
	"math"
	"time"

	"MetaGate/internal/domain/models"
	domsvc "MetaGate/internal/domain/service"
	"MetaGate/internal/services/features"
)

type Config struct {
	States    int
	MaxIter   int
	Tolerance float64
	Decode    string
	VolWindow int
}

// Observations returns [log return, trailing std of log returns] per row.
// valid[i] is false while either value is undefined.
func Observations(prices []float64, volWindow int) ([][]float64, []bool) {
	n := len(prices)
	lr := models.NaNs(n)
	for i := 1; i < n; i++ {
		if prices[i-1] > 0 && prices[i] > 0 {
			lr[i] = math.Log(prices[i] / prices[i-1])
		}
	}
	vol := features.RollingStd(lr, volWindow)

	obs := make([][]float64, n)
	valid := make([]bool, n)
	for i := range obs {
		obs[i] = []float64{lr[i], vol[i]}
		valid[i] = !math.IsNaN(lr[i]) && !math.IsNaN(vol[i])
	}
	return obs, valid
}

// Detector fits a fresh model per call so regimes used in a test window come
// from parameters estimated on its train window only.
type Detector struct {
	cfg      Config
	newModel func() domsvc.RegimeModel
}

func NewDetector(cfg Config) *Detector {
	return &Detector{
		cfg: cfg,
		newModel: func() domsvc.RegimeModel {
			return NewHMM(cfg.States, cfg.MaxIter, cfg.Tolerance, cfg.Decode)
		},
	}
}

// Labels returns the state names the detector produces.
func (d *Detector) Labels() []string { return StateNames(d.cfg.States) }

// FitDecode fits on rows [trainStart, trainEnd) and returns regimes for rows
// [from, to). Decoding starts at trainStart so the filter has history.
func (d *Detector) FitDecode(index []time.Time, prices []float64, trainStart, trainEnd, from, to int) (models.RegimeSeries, error) {
	if to > len(index) || to > len(prices) || trainStart < 0 || trainEnd > from || from > to {
		return nil, fmt.Errorf("regime: bad ranges train [%d,%d) decode [%d,%d) over %d rows", trainStart, trainEnd, from, to, len(index))
	}
	obs, valid := Observations(prices[:to], d.cfg.VolWindow)

	var train [][]float64
	for i := trainStart; i < trainEnd; i++ {
		if valid[i] {
			train = append(train, obs[i])
		}
	}
	m := d.newModel()
	if err := m.Fit(train); err != nil {
		return nil, fmt.Errorf("fit regime model: %w", err)
	}

	var seq [][]float64
	var rows []int
	for i := trainStart; i < to; i++ {
		if valid[i] {
			seq = append(seq, obs[i])
			rows = append(rows, i)
		}
	}
	decoded, err := m.Decode(seq)
	if err != nil {
		return nil, fmt.Errorf("decode regimes: %w", err)
	}

	out := make(models.RegimeSeries, to-from)
	for k, i := range rows {
		if i < from {
			continue
		}
		r := decoded[k]
		r.Timestamp = index[i]
		out[index[i]] = r
	}
	return out, nil
}
