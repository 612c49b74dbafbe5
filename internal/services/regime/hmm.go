package regime

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"MetaGate/internal/domain/models"
)

var (
	ErrTooFewObservations = errors.New("regime: too few observations")
	ErrNotFitted          = errors.New("regime: decode before fit")
)

const (
	DecodeFilter  = "filter"
	DecodeViterbi = "viterbi"
)

// HMM is a Gaussian hidden Markov model with diagonal covariance. States are
// relabeled after fitting so state 0 has the lowest mean of the first
// observation dimension.
type HMM struct {
	States    int
	MaxIter   int
	Tolerance float64
	Method    string

	pi    []float64
	trans [][]float64
	dists [][]distuv.Normal // [state][dim]
	names []string

	LogLikelihood float64
	Iterations    int
}

func NewHMM(states, maxIter int, tol float64, method string) *HMM {
	return &HMM{States: states, MaxIter: maxIter, Tolerance: tol, Method: method}
}

func (h *HMM) Labels() []string { return h.names }

// Fit runs Baum-Welch from a quantile-based initialization.
func (h *HMM) Fit(obs [][]float64) error {
	k := h.States
	if k < 2 {
		return fmt.Errorf("regime: need at least 2 states, got %d", k)
	}
	if len(obs) < 2*k {
		return fmt.Errorf("%w: %d for %d states", ErrTooFewObservations, len(obs), k)
	}
	d := len(obs[0])
	h.init(obs)

	floor := make([]float64, d)
	col := make([]float64, len(obs))
	for j := 0; j < d; j++ {
		for t := range obs {
			col[t] = obs[t][j]
		}
		floor[j] = 1e-6*stat.Variance(col, nil) + 1e-12
	}

	prev := math.Inf(-1)
	T := len(obs)
	for iter := 1; iter <= h.MaxIter; iter++ {
		b, offset := h.emissions(obs)
		alpha, scale := h.forward(b)
		beta := h.backward(b, scale)

		ll := 0.0
		for t := range scale {
			ll += math.Log(scale[t]) + offset[t]
		}

		gamma := posterior(alpha, beta)

		xi := make([][]float64, k)
		for i := range xi {
			xi[i] = make([]float64, k)
		}
		for t := 0; t < T-1; t++ {
			for i := 0; i < k; i++ {
				for j := 0; j < k; j++ {
					xi[i][j] += alpha[t][i] * h.trans[i][j] * b[t+1][j] * beta[t+1][j] / scale[t+1]
				}
			}
		}

		copy(h.pi, gamma[0])
		for i := 0; i < k; i++ {
			if s := floats.Sum(xi[i]); s > 0 {
				for j := 0; j < k; j++ {
					h.trans[i][j] = xi[i][j] / s
				}
			}
		}
		w := make([]float64, T)
		dev := make([]float64, T)
		for i := 0; i < k; i++ {
			for t := range gamma {
				w[t] = gamma[t][i]
			}
			sw := floats.Sum(w)
			if sw == 0 {
				continue
			}
			for j := 0; j < d; j++ {
				for t := range obs {
					col[t] = obs[t][j]
				}
				mu := floats.Dot(w, col) / sw
				for t := range col {
					dev[t] = (col[t] - mu) * (col[t] - mu)
				}
				v := floats.Dot(w, dev) / sw
				h.dists[i][j] = distuv.Normal{Mu: mu, Sigma: math.Sqrt(v + floor[j])}
			}
		}

		h.LogLikelihood, h.Iterations = ll, iter
		if math.Abs(ll-prev) < h.Tolerance {
			break
		}
		prev = ll
	}

	h.relabel()
	return nil
}

func (h *HMM) init(obs [][]float64) {
	k, d := h.States, len(obs[0])
	order := make([]int, len(obs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return obs[order[a]][0] < obs[order[b]][0] })

	h.pi = make([]float64, k)
	h.trans = make([][]float64, k)
	h.dists = make([][]distuv.Normal, k)
	chunk := len(obs) / k
	col := make([]float64, 0, chunk+k)
	for i := 0; i < k; i++ {
		h.pi[i] = 1 / float64(k)
		h.trans[i] = make([]float64, k)
		for j := range h.trans[i] {
			h.trans[i][j] = 0.1 / float64(k-1)
		}
		h.trans[i][i] = 0.9

		lo, hi := i*chunk, (i+1)*chunk
		if i == k-1 {
			hi = len(obs)
		}
		h.dists[i] = make([]distuv.Normal, d)
		for j := 0; j < d; j++ {
			col = col[:0]
			for _, r := range order[lo:hi] {
				col = append(col, obs[r][j])
			}
			mu, sd := stat.MeanStdDev(col, nil)
			if sd == 0 || math.IsNaN(sd) {
				sd = 1e-3
			}
			h.dists[i][j] = distuv.Normal{Mu: mu, Sigma: sd}
		}
	}
}

// emissions returns per-row likelihoods scaled by their row maximum, and the
// log of that scale.
func (h *HMM) emissions(obs [][]float64) ([][]float64, []float64) {
	b := make([][]float64, len(obs))
	offset := make([]float64, len(obs))
	for t, x := range obs {
		b[t] = make([]float64, h.States)
		for i := range b[t] {
			for j, v := range x {
				b[t][i] += h.dists[i][j].LogProb(v)
			}
		}
		offset[t] = floats.Max(b[t])
		for i := range b[t] {
			b[t][i] = math.Exp(b[t][i] - offset[t])
		}
	}
	return b, offset
}

// forward returns normalized alphas, i.e. P(state_t | obs_0..t), and the
// per-step normalizers.
func (h *HMM) forward(b [][]float64) ([][]float64, []float64) {
	k := h.States
	alpha := make([][]float64, len(b))
	scale := make([]float64, len(b))
	for t := range b {
		alpha[t] = make([]float64, k)
		for j := 0; j < k; j++ {
			if t == 0 {
				alpha[t][j] = h.pi[j] * b[t][j]
				continue
			}
			var s float64
			for i := 0; i < k; i++ {
				s += alpha[t-1][i] * h.trans[i][j]
			}
			alpha[t][j] = s * b[t][j]
		}
		scale[t] = floats.Sum(alpha[t])
		if scale[t] == 0 {
			scale[t] = math.SmallestNonzeroFloat64
			for j := range alpha[t] {
				alpha[t][j] = 1 / float64(k)
			}
			continue
		}
		floats.Scale(1/scale[t], alpha[t])
	}
	return alpha, scale
}

func (h *HMM) backward(b [][]float64, scale []float64) [][]float64 {
	k, T := h.States, len(b)
	beta := make([][]float64, T)
	beta[T-1] = make([]float64, k)
	for i := range beta[T-1] {
		beta[T-1][i] = 1
	}
	for t := T - 2; t >= 0; t-- {
		beta[t] = make([]float64, k)
		for i := 0; i < k; i++ {
			var s float64
			for j := 0; j < k; j++ {
				s += h.trans[i][j] * b[t+1][j] * beta[t+1][j]
			}
			beta[t][i] = s / scale[t+1]
		}
	}
	return beta
}

// posterior returns the smoothed state probabilities P(state_t | all obs).
func posterior(alpha, beta [][]float64) [][]float64 {
	gamma := make([][]float64, len(alpha))
	for t := range gamma {
		gamma[t] = make([]float64, len(alpha[t]))
		floats.MulTo(gamma[t], alpha[t], beta[t])
		if s := floats.Sum(gamma[t]); s > 0 {
			floats.Scale(1/s, gamma[t])
		}
	}
	return gamma
}

// relabel sorts states by mean of the first dimension and names them.
func (h *HMM) relabel() {
	k := h.States
	order := make([]int, k)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return h.dists[order[a]][0].Mu < h.dists[order[b]][0].Mu })

	pi := make([]float64, k)
	trans := make([][]float64, k)
	dists := make([][]distuv.Normal, k)
	for n, old := range order {
		pi[n] = h.pi[old]
		dists[n] = h.dists[old]
		trans[n] = make([]float64, k)
		for m, oldTo := range order {
			trans[n][m] = h.trans[old][oldTo]
		}
	}
	h.pi, h.trans, h.dists = pi, trans, dists
	h.names = StateNames(k)
}

// StateNames names states ordered from lowest to highest mean return.
func StateNames(k int) []string {
	if k == 3 {
		return []string{"bear", "sideways", "bull"}
	}
	out := make([]string, k)
	for i := range out {
		out[i] = fmt.Sprintf("regime_%d", i)
	}
	return out
}

// Decode labels every observation. The filter method uses only observations
// up to each row and reports filtered probabilities. Viterbi uses the whole
// sequence and reports smoothed probabilities; Confidence is the probability
// of the reported state.
func (h *HMM) Decode(obs [][]float64) ([]models.Regime, error) {
	if h.names == nil {
		return nil, ErrNotFitted
	}
	if len(obs) == 0 {
		return nil, nil
	}
	b, _ := h.emissions(obs)
	alpha, scale := h.forward(b)

	probs := alpha
	path := make([]int, len(obs))
	if h.Method == DecodeViterbi {
		path = h.viterbi(b)
		probs = posterior(alpha, h.backward(b, scale))
	} else {
		for t := range alpha {
			path[t] = floats.MaxIdx(alpha[t])
		}
	}

	out := make([]models.Regime, len(obs))
	for t := range obs {
		out[t] = models.Regime{
			State:      h.names[path[t]],
			Prob:       probs[t],
			Confidence: probs[t][path[t]],
		}
	}
	return out, nil
}

func (h *HMM) viterbi(b [][]float64) []int {
	k, T := h.States, len(b)
	logA := make([][]float64, k)
	for i := range logA {
		logA[i] = make([]float64, k)
		for j := range logA[i] {
			logA[i][j] = math.Log(h.trans[i][j])
		}
	}
	delta := make([]float64, k)
	next := make([]float64, k)
	back := make([][]int, T)
	for i := 0; i < k; i++ {
		delta[i] = math.Log(h.pi[i]) + math.Log(b[0][i])
	}
	for t := 1; t < T; t++ {
		back[t] = make([]int, k)
		for j := 0; j < k; j++ {
			best, arg := math.Inf(-1), 0
			for i := 0; i < k; i++ {
				if v := delta[i] + logA[i][j]; v > best {
					best, arg = v, i
				}
			}
			next[j] = best + math.Log(b[t][j])
			back[t][j] = arg
		}
		delta, next = next, delta
	}
	path := make([]int, T)
	path[T-1] = floats.MaxIdx(delta)
	for t := T - 1; t > 0; t-- {
		path[t-1] = back[t][path[t]]
	}
	return path
}
