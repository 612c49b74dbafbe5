package classifier

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// varSmoothing is added to every per-class variance, scaled by the largest
// feature variance.
const varSmoothing = 1e-9

// NaiveBayes is Gaussian naive Bayes for two classes.
type NaiveBayes struct {
	logPrior [2]float64
	dists    [2][]distuv.Normal
}

func NewNaiveBayes() *NaiveBayes { return &NaiveBayes{} }

func (m *NaiveBayes) Name() string { return NameNaiveBayes }

func (m *NaiveBayes) Fit(X [][]float64, y []float64) error {
	if err := checkTrain(X, y); err != nil {
		return err
	}
	d := len(X[0])

	var maxVar float64
	col := make([]float64, len(X))
	for j := 0; j < d; j++ {
		for i := range X {
			col[i] = X[i][j]
		}
		maxVar = math.Max(maxVar, stat.Variance(col, nil))
	}
	eps := varSmoothing * math.Max(maxVar, 1)

	for c := 0; c < 2; c++ {
		var rows [][]float64
		for i := range X {
			if int(y[i]) == c {
				rows = append(rows, X[i])
			}
		}
		m.logPrior[c] = math.Log(float64(len(rows)) / float64(len(X)))
		m.dists[c] = make([]distuv.Normal, d)
		vals := make([]float64, len(rows))
		for j := 0; j < d; j++ {
			for i, r := range rows {
				vals[i] = r[j]
			}
			mu := stat.Mean(vals, nil)
			v := stat.PopVariance(vals, nil)
			m.dists[c][j] = distuv.Normal{Mu: mu, Sigma: math.Sqrt(v + eps)}
		}
	}
	return nil
}

func (m *NaiveBayes) PredictProba(X [][]float64) ([]float64, error) {
	if m.dists[0] == nil {
		return nil, ErrNotFitted
	}
	d := len(m.dists[0])
	out := make([]float64, len(X))
	var joint [2]float64
	for i, x := range X {
		if len(x) != d {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrShape, i, len(x), d)
		}
		for c := 0; c < 2; c++ {
			joint[c] = m.logPrior[c]
			for j, v := range x {
				joint[c] += m.dists[c][j].LogProb(v)
			}
		}
		out[i] = math.Exp(joint[1] - floats.LogSumExp(joint[:]))
	}
	return out, nil
}
