package classifier

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domsvc "MetaGate/internal/domain/service"
	xhttp "MetaGate/pkg/http"
)

// separable returns two Gaussian blobs; class 1 sits at +2 on feature 0.
func separable(n int, seed int64) ([][]float64, []float64) {
	r := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		c := float64(i % 2)
		X[i] = []float64{4*c - 2 + 0.5*r.NormFloat64(), r.NormFloat64()}
		y[i] = c
	}
	return X, y
}

func accuracy(p, y []float64) float64 {
	hit := 0
	for i := range p {
		if (p[i] > 0.5) == (y[i] == 1) {
			hit++
		}
	}
	return float64(hit) / float64(len(p))
}

func TestModelsLearnSeparableData(t *testing.T) {
	X, y := separable(400, 1)
	Xt, yt := separable(200, 2)

	models := []domsvc.Classifier{
		NewLogistic(0.1, 300, 0.001),
		NewNaiveBayes(),
	}
	for _, m := range models {
		t.Run(m.Name(), func(t *testing.T) {
			require.NoError(t, m.Fit(X, y))
			p, err := m.PredictProba(Xt)
			require.NoError(t, err)
			require.Len(t, p, len(Xt))
			for _, v := range p {
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 1.0)
			}
			assert.Greater(t, accuracy(p, yt), 0.95)
		})
	}
}

func TestFitErrors(t *testing.T) {
	tests := []struct {
		name string
		X    [][]float64
		y    []float64
		err  error
	}{
		{"empty", nil, nil, ErrInsufficientData},
		{"single class", [][]float64{{1}, {2}}, []float64{1, 1}, ErrInsufficientData},
		{"ragged rows", [][]float64{{1}, {2, 3}}, []float64{0, 1}, ErrShape},
		{"non binary label", [][]float64{{1}, {2}}, []float64{0, 2}, ErrShape},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, NewLogistic(0.1, 10, 0).Fit(tt.X, tt.y), tt.err)
			assert.ErrorIs(t, NewNaiveBayes().Fit(tt.X, tt.y), tt.err)
		})
	}
}

func TestPredictBeforeFit(t *testing.T) {
	_, err := NewLogistic(0.1, 10, 0).PredictProba([][]float64{{1}})
	assert.ErrorIs(t, err, ErrNotFitted)
	_, err = NewNaiveBayes().PredictProba([][]float64{{1}})
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestConstantFeatureIsHarmless(t *testing.T) {
	X := [][]float64{{1, 5}, {2, 5}, {8, 5}, {9, 5}}
	y := []float64{0, 0, 1, 1}
	m := NewLogistic(0.5, 200, 0)
	require.NoError(t, m.Fit(X, y))
	p, err := m.PredictProba([][]float64{{0, 5}, {10, 5}})
	require.NoError(t, err)
	assert.Less(t, p[0], 0.5)
	assert.Greater(t, p[1], 0.5)
}

func TestResolve(t *testing.T) {
	r := NewRegistry(Options{LearningRate: 0.1, Epochs: 10}, nil)

	tests := []struct {
		name     string
		model    string
		fallback string
		want     string
		err      bool
	}{
		{"known", NameNaiveBayes, NameLogistic, NameNaiveBayes, false},
		{"unknown uses fallback", "xgboost", NameLogistic, NameLogistic, false},
		{"unknown fallback", "xgboost", "lightgbm", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, used, err := r.Resolve(tt.model, tt.fallback)
			if tt.err {
				assert.ErrorIs(t, err, ErrUnknownModel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, used)
			assert.Equal(t, tt.want, f().Name())
		})
	}
}

func TestRemoteClassifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/fit":
			var in fitRequest
			assert.NoError(t, json.NewDecoder(req.Body).Decode(&in))
			assert.Equal(t, "xgboost", in.Model)
			_ = json.NewEncoder(w).Encode(fitResponse{ModelID: "m-1"})
		case "/predict":
			var in predictRequest
			assert.NoError(t, json.NewDecoder(req.Body).Decode(&in))
			assert.Equal(t, "m-1", in.ModelID)
			out := make([]float64, len(in.X))
			for i := range out {
				out[i] = 0.7
			}
			_ = json.NewEncoder(w).Encode(predictResponse{Proba: out})
		default:
			http.NotFound(w, req)
		}
	}))
	defer srv.Close()

	r := NewRegistry(Options{LearningRate: 0.1, Epochs: 10}, nil)
	RegisterRemote(context.Background(), r, RemoteConfig{URL: srv.URL, Models: []string{"xgboost"}})

	f, used, err := r.Resolve("xgboost", NameLogistic)
	require.NoError(t, err)
	assert.Equal(t, "xgboost", used)

	m := f()
	require.NoError(t, m.Fit([][]float64{{1}, {2}}, []float64{0, 1}))
	p, err := m.PredictProba([][]float64{{1}, {2}, {3}})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.7, 0.7, 0.7}, p)
}

func TestRemoteRetries(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		status    int
		wantCalls int
		wantErr   bool
	}{
		{"recovers after server error", 1, http.StatusBadGateway, 2, false},
		{"gives up after retries", 5, http.StatusServiceUnavailable, 3, true},
		{"bad request is not retried", 5, http.StatusBadRequest, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				if int(atomic.AddInt32(&calls, 1)) <= tt.failures {
					http.Error(w, "model server says no", tt.status)
					return
				}
				_ = json.NewEncoder(w).Encode(fitResponse{ModelID: "m-2"})
			}))
			defer srv.Close()

			m := NewRemote(context.Background(), "lightgbm", RemoteConfig{URL: srv.URL, Retries: 2})
			err := m.Fit([][]float64{{1}, {2}}, []float64{0, 1})
			assert.EqualValues(t, tt.wantCalls, atomic.LoadInt32(&calls))
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			var se *xhttp.StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.status, se.Code)
			assert.Contains(t, se.Body, "model server says no")
		})
	}
}
