package service

import (
	"MetaGate/internal/domain/models"
)

// Classifier predicts the probability that a baseline long is profitable.
type Classifier interface {
	Name() string
	Fit(X [][]float64, y []float64) error
	PredictProba(X [][]float64) ([]float64, error)
}

// ClassifierFactory builds a fresh, unfitted classifier for each fold.
type ClassifierFactory func() Classifier

// RegimeModel is fitted on one window of observations and decodes states for
// a (usually longer) sequence.
type RegimeModel interface {
	Fit(obs [][]float64) error
	Decode(obs [][]float64) ([]models.Regime, error)
	Labels() []string
}
