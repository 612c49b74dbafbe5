package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"MetaGate/internal/domain/models"
)

type mockRunner struct{ mock.Mock }

func (m *mockRunner) Run(ctx context.Context, params models.RunParams) (*models.RunReport, error) {
	args := m.Called(ctx, params)
	r, _ := args.Get(0).(*models.RunReport)
	return r, args.Error(1)
}

func TestRunRequestHandler(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    *models.RunParams
		runErr  error
		wantErr bool
	}{
		{
			name:    "overrides",
			payload: `{"models":["naive_bayes"],"thresholds":[0.6]}`,
			want:    &models.RunParams{Models: []string{"naive_bayes"}, Thresholds: []float64{0.6}, Trigger: "kafka"},
		},
		{
			name:    "empty body runs defaults",
			payload: ``,
			want:    &models.RunParams{Trigger: "kafka"},
		},
		{
			name:    "bad json",
			payload: `{"models":`,
			wantErr: true,
		},
		{
			name:    "threshold out of range",
			payload: `{"thresholds":[1.5]}`,
			wantErr: true,
		},
		{
			name:    "run failure is returned for retry",
			payload: `{}`,
			want:    &models.RunParams{Trigger: "kafka"},
			runErr:  errors.New("no data"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := new(mockRunner)
			m := newCountingMetrics()
			if tt.want != nil {
				var report *models.RunReport
				if tt.runErr == nil {
					report = &models.RunReport{ID: "run-1"}
				}
				runner.On("Run", mock.Anything, *tt.want).Return(report, tt.runErr).Once()
			}
			h := NewRunRequestHandler("metagate.run_requests", runner, m, nil)
			assert.Equal(t, "metagate.run_requests", h.Topic())

			err := h.Handle(context.Background(), []byte(tt.payload))
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			runner.AssertExpectations(t)
			if tt.want == nil {
				runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
			}
		})
	}
}
