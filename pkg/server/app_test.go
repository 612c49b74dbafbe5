package server

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MetaGate/internal/domain/models"
	domrepo "MetaGate/internal/domain/repository"
	"MetaGate/internal/services/classifier"
	"MetaGate/internal/usecase"
	"MetaGate/pkg/config"
	applogger "MetaGate/pkg/logger"
)

type failingSource struct{}

func (failingSource) Load(context.Context) (*domrepo.Dataset, error) {
	return nil, errors.New("file missing")
}

func (failingSource) Name() string { return "test" }

type closeCounter struct {
	order *[]string
	name  string
}

func (c closeCounter) Close() error {
	*c.order = append(*c.order, c.name)
	return nil
}

func TestRunOnceClosesResources(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	p := usecase.NewPipeline(usecase.NewPipelineConfig(cfg), failingSource{},
		classifier.NewRegistry(classifier.Options{LearningRate: 0.1, Epochs: 10}, nil),
		nil, nil, nil, nil, nil)
	app := New(cfg, applogger.Nop(), p, nil, nil, nil, nil)

	var order []string
	app.OnClose("store", closeCounter{&order, "store"})
	app.OnClose("sink", closeCounter{&order, "sink"})
	app.OnClose("nil", nil)

	_, err = app.RunOnce(context.Background())
	assert.ErrorContains(t, err, "file missing")
	assert.Equal(t, []string{"sink", "store"}, order)
}

func TestLogReportHandlesEmptyComparisons(t *testing.T) {
	assert.NotPanics(t, func() {
		LogReport(applogger.Nop(), &models.RunReport{
			ID:         "r",
			Strategies: []models.StrategyResult{{Model: "logistic", Threshold: 0.5}},
		})
	})
}
