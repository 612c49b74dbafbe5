package models

import "time"

// Regime is the decoded market state for one timestamp. One regime applies to
// every asset.
type Regime struct {
	Timestamp  time.Time
	State      string    // "bull", "bear", "sideways" for a 3-state model
	Prob       []float64 // state probabilities, ordered like the detector's labels
	Confidence float64
}

// RegimeSeries maps timestamps to decoded regimes.
type RegimeSeries map[time.Time]Regime

// State returns the label at t, "" when no regime was decoded for t.
func (s RegimeSeries) State(t time.Time) string {
	if r, ok := s[t]; ok {
		return r.State
	}
	return ""
}

// GatedSignal is one final trade decision, as published downstream.
type GatedSignal struct {
	RunID       string    `json:"run_id"`
	Model       string    `json:"model"`
	Threshold   float64   `json:"threshold"`
	Timestamp   time.Time `json:"ts"`
	Asset       string    `json:"asset"`
	Baseline    int       `json:"baseline"`
	Signal      int       `json:"signal"`
	Probability float64   `json:"probability"`
	Regime      string    `json:"regime,omitempty"`
}

// FoldResult describes one walk-forward fold for one model.
type FoldResult struct {
	Model        string    `json:"model"`
	Fold         int       `json:"fold"`
	TrainStart   time.Time `json:"train_start"`
	TrainEnd     time.Time `json:"train_end"`
	TestStart    time.Time `json:"test_start"`
	TestEnd      time.Time `json:"test_end"`
	TrainRows    int       `json:"train_rows"`
	TestRows     int       `json:"test_rows"`
	Accuracy     float64   `json:"accuracy"`
	PositiveRate float64   `json:"positive_rate"`
	Sharpe       float64   `json:"sharpe"`
	Skipped      string    `json:"skipped,omitempty"`
}
