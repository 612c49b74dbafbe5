// Package walkforward splits a timestamp axis into successive train/test
// windows so a model is always evaluated on data after what it was fit on.
package walkforward

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidConfig = errors.New("walkforward: invalid config")
	ErrInvalidFold   = errors.New("walkforward: invalid fold")
	ErrNoFolds       = errors.New("walkforward: not enough data for a single fold")
)

// Config sizes are in rows of the timestamp axis.
type Config struct {
	Train     int
	Test      int
	Step      int  // 0 means Test
	Embargo   int  // rows dropped between train end and test start
	Expanding bool // anchor every train window at row 0
}

// Fold holds half-open row ranges [start, end).
type Fold struct {
	Number     int `json:"fold"`
	TrainStart int `json:"train_start"`
	TrainEnd   int `json:"train_end"`
	TestStart  int `json:"test_start"`
	TestEnd    int `json:"test_end"`
}

func (f Fold) TrainLen() int { return f.TrainEnd - f.TrainStart }
func (f Fold) TestLen() int  { return f.TestEnd - f.TestStart }

func (c Config) step() int {
	if c.Step == 0 {
		return c.Test
	}
	return c.Step
}

func (c Config) validate() error {
	switch {
	case c.Train < 1:
		return fmt.Errorf("%w: train must be >= 1, got %d", ErrInvalidConfig, c.Train)
	case c.Test < 1:
		return fmt.Errorf("%w: test must be >= 1, got %d", ErrInvalidConfig, c.Test)
	case c.Step < 0 || c.Embargo < 0:
		return fmt.Errorf("%w: step and embargo must be >= 0", ErrInvalidConfig)
	case c.step() < c.Test:
		return fmt.Errorf("%w: step %d < test %d would overlap test windows", ErrInvalidConfig, c.Step, c.Test)
	}
	return nil
}

// Generate returns every fold that fits in n rows.
func Generate(n int, cfg Config) ([]Fold, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var folds []Fold
	for k := 0; ; k++ {
		offset := k * cfg.step()
		f := Fold{Number: k, TrainStart: offset, TrainEnd: offset + cfg.Train}
		if cfg.Expanding {
			f.TrainStart = 0
		}
		f.TestStart = f.TrainEnd + cfg.Embargo
		f.TestEnd = f.TestStart + cfg.Test
		if f.TestEnd > n {
			break
		}
		folds = append(folds, f)
	}
	if len(folds) == 0 {
		return nil, fmt.Errorf("%w: n=%d, need %d", ErrNoFolds, n, cfg.Train+cfg.Embargo+cfg.Test)
	}
	return folds, nil
}

// Validate checks that every train row precedes every test row of its fold and
// that test windows are pairwise disjoint and increasing.
func Validate(folds []Fold) error {
	for i, f := range folds {
		if f.TrainLen() < 1 || f.TestLen() < 1 {
			return fmt.Errorf("%w: fold %d has an empty window", ErrInvalidFold, f.Number)
		}
		if f.TrainEnd > f.TestStart {
			return fmt.Errorf("%w: fold %d train end %d after test start %d", ErrInvalidFold, f.Number, f.TrainEnd, f.TestStart)
		}
		if i > 0 && folds[i-1].TestEnd > f.TestStart {
			return fmt.Errorf("%w: fold %d test window overlaps fold %d", ErrInvalidFold, f.Number, folds[i-1].Number)
		}
	}
	return nil
}

// Window is a fold resolved to timestamps; ends are inclusive.
type Window struct {
	Fold
	TrainFrom time.Time `json:"train_from"`
	TrainTo   time.Time `json:"train_to"`
	TestFrom  time.Time `json:"test_from"`
	TestTo    time.Time `json:"test_to"`
}

// Describe maps a fold onto an index for reporting.
func Describe(f Fold, index []time.Time) (Window, error) {
	if f.TestEnd > len(index) || f.TrainStart < 0 {
		return Window{}, fmt.Errorf("%w: fold %d exceeds index of %d rows", ErrInvalidFold, f.Number, len(index))
	}
	return Window{
		Fold:      f,
		TrainFrom: index[f.TrainStart],
		TrainTo:   index[f.TrainEnd-1],
		TestFrom:  index[f.TestStart],
		TestTo:    index[f.TestEnd-1],
	}, nil
}

// Coverage returns the union of test rows, in order.
func Coverage(folds []Fold) (start, end int) {
	if len(folds) == 0 {
		return 0, 0
	}
	return folds[0].TestStart, folds[len(folds)-1].TestEnd
}
