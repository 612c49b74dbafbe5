package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	domsvc "MetaGate/internal/domain/service"
	xhttp "MetaGate/pkg/http"
)

// RemoteConfig points at a model server that hosts models not built in, such
// as gradient-boosted trees.
type RemoteConfig struct {
	URL     string
	Timeout time.Duration
	Models  []string
	Retries int
}

// Remote delegates fit and predict to a model server over JSON:
//
//	POST {url}/fit     {"model": name, "x": [[...]], "y": [...]} -> {"model_id": "..."}
//	POST {url}/predict {"model_id": id, "x": [[...]]}            -> {"proba": [...]}
type Remote struct {
	name    string
	baseURL string
	client  *xhttp.Client
	retries int
	ctx     context.Context

	modelID string
}

type fitRequest struct {
	Model string      `json:"model"`
	X     [][]float64 `json:"x"`
	Y     []float64   `json:"y"`
}

type fitResponse struct {
	ModelID string `json:"model_id"`
}

type predictRequest struct {
	ModelID string      `json:"model_id"`
	X       [][]float64 `json:"x"`
}

type predictResponse struct {
	Proba []float64 `json:"proba"`
}

func NewRemote(ctx context.Context, name string, cfg RemoteConfig) *Remote {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Remote{
		name:    name,
		baseURL: cfg.URL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
		retries: cfg.Retries,
		ctx:     ctx,
	}
}

func (m *Remote) Name() string { return m.name }

func (m *Remote) Fit(X [][]float64, y []float64) error {
	if err := checkTrain(X, y); err != nil {
		return err
	}
	var resp fitResponse
	if err := m.post("/fit", fitRequest{Model: m.name, X: X, Y: y}, &resp); err != nil {
		return fmt.Errorf("remote fit %s: %w", m.name, err)
	}
	if resp.ModelID == "" {
		return fmt.Errorf("remote fit %s: empty model id", m.name)
	}
	m.modelID = resp.ModelID
	return nil
}

func (m *Remote) PredictProba(X [][]float64) ([]float64, error) {
	if m.modelID == "" {
		return nil, ErrNotFitted
	}
	var resp predictResponse
	if err := m.post("/predict", predictRequest{ModelID: m.modelID, X: X}, &resp); err != nil {
		return nil, fmt.Errorf("remote predict %s: %w", m.name, err)
	}
	if len(resp.Proba) != len(X) {
		return nil, fmt.Errorf("%w: %d probabilities for %d rows", ErrShape, len(resp.Proba), len(X))
	}
	return resp.Proba, nil
}

// post retries transient failures with a linear backoff. Client errors (4xx
// other than 429) are returned at once.
func (m *Remote) post(path string, payload, dest interface{}) error {
	var err error
	for i := 0; i <= m.retries; i++ {
		if err = m.client.PostJSON(m.ctx, m.baseURL+path, payload, dest); err == nil {
			return nil
		}
		var se *xhttp.StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return err
		}
		if i == m.retries {
			break
		}
		select {
		case <-time.After(time.Duration(i+1) * 50 * time.Millisecond):
		case <-m.ctx.Done():
			return m.ctx.Err()
		}
	}
	return err
}

// RegisterRemote adds every model the server hosts to r. Nothing is
// registered without a URL, so those names resolve to the fallback.
func RegisterRemote(ctx context.Context, r *Registry, cfg RemoteConfig) {
	if cfg.URL == "" {
		return
	}
	for _, name := range cfg.Models {
		name := name
		r.Register(name, func() domsvc.Classifier { return NewRemote(ctx, name, cfg) })
	}
}
