package models

import "time"

// Requests for HTTP endpoints. Defined in domain for consistency and reuse.

type FoldsRequest struct {
	N         int  `query:"n" json:"n" validate:"gte=1,lte=10000000"`
	Train     int  `query:"train" json:"train" validate:"gte=1"`
	Test      int  `query:"test" json:"test" validate:"gte=1"`
	Step      int  `query:"step" json:"step" validate:"gte=0"`
	Embargo   int  `query:"embargo" json:"embargo" validate:"gte=0"`
	Expanding bool `query:"expanding" json:"expanding"`
}

type ListRunsRequest struct {
	Limit int `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=500"`
}

// GateCell is one (timestamp, asset) value in a gate request.
type GateCell struct {
	Timestamp time.Time `json:"ts" validate:"required"`
	Asset     string    `json:"asset" validate:"required"`
	Value     float64   `json:"value"`
}

// GateRequest applies the gate to caller-provided tables.
type GateRequest struct {
	Baseline      []GateCell        `json:"baseline" validate:"required,min=1,dive"`
	Probabilities []GateCell        `json:"probabilities" validate:"dive"`
	Threshold     float64           `json:"threshold" default:"0.5" validate:"gte=0,lte=1"`
	Regimes       map[string]string `json:"regimes,omitempty"` // RFC3339 timestamp -> state
	Allowed       []string          `json:"allowed,omitempty"`
}

type GateResponse struct {
	Signals []GateCell `json:"signals"`
	Passed  int        `json:"passed"`
	Vetoed  int        `json:"vetoed"`
}
