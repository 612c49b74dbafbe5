package walkforward

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name string
		n    int
		cfg  Config
		want []Fold
	}{
		{
			name: "rolling, step defaults to test",
			n:    10,
			cfg:  Config{Train: 4, Test: 2},
			want: []Fold{
				{Number: 0, TrainStart: 0, TrainEnd: 4, TestStart: 4, TestEnd: 6},
				{Number: 1, TrainStart: 2, TrainEnd: 6, TestStart: 6, TestEnd: 8},
				{Number: 2, TrainStart: 4, TrainEnd: 8, TestStart: 8, TestEnd: 10},
			},
		},
		{
			name: "embargo leaves a gap",
			n:    10,
			cfg:  Config{Train: 4, Test: 2, Embargo: 1},
			want: []Fold{
				{Number: 0, TrainStart: 0, TrainEnd: 4, TestStart: 5, TestEnd: 7},
				{Number: 1, TrainStart: 2, TrainEnd: 6, TestStart: 7, TestEnd: 9},
			},
		},
		{
			name: "expanding anchors train at zero",
			n:    9,
			cfg:  Config{Train: 3, Test: 3, Expanding: true},
			want: []Fold{
				{Number: 0, TrainStart: 0, TrainEnd: 3, TestStart: 3, TestEnd: 6},
				{Number: 1, TrainStart: 0, TrainEnd: 6, TestStart: 6, TestEnd: 9},
			},
		},
		{
			name: "step larger than test skips rows",
			n:    12,
			cfg:  Config{Train: 2, Test: 2, Step: 4},
			want: []Fold{
				{Number: 0, TrainStart: 0, TrainEnd: 2, TestStart: 2, TestEnd: 4},
				{Number: 1, TrainStart: 4, TrainEnd: 6, TestStart: 6, TestEnd: 8},
				{Number: 2, TrainStart: 8, TrainEnd: 10, TestStart: 10, TestEnd: 12},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Generate(tt.n, tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, Validate(got))
		})
	}
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name string
		n    int
		cfg  Config
		err  error
	}{
		{"zero train", 10, Config{Train: 0, Test: 2}, ErrInvalidConfig},
		{"overlapping tests", 10, Config{Train: 4, Test: 3, Step: 1}, ErrInvalidConfig},
		{"too short", 5, Config{Train: 4, Test: 2}, ErrNoFolds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Generate(tt.n, tt.cfg)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestFoldOrderingInvariants(t *testing.T) {
	for _, cfg := range []Config{
		{Train: 50, Test: 20},
		{Train: 50, Test: 20, Step: 35, Embargo: 5},
		{Train: 30, Test: 10, Expanding: true, Embargo: 2},
	} {
		folds, err := Generate(500, cfg)
		require.NoError(t, err)
		for i, f := range folds {
			assert.Less(t, f.TrainEnd-1, f.TestStart, "fold %d", i)
			for j := i + 1; j < len(folds); j++ {
				assert.LessOrEqual(t, f.TestEnd, folds[j].TestStart, "folds %d and %d overlap", i, j)
			}
		}
	}
}

func TestValidateRejectsOverlap(t *testing.T) {
	err := Validate([]Fold{
		{Number: 0, TrainStart: 0, TrainEnd: 4, TestStart: 4, TestEnd: 8},
		{Number: 1, TrainStart: 2, TrainEnd: 6, TestStart: 6, TestEnd: 10},
	})
	assert.ErrorIs(t, err, ErrInvalidFold)

	err = Validate([]Fold{{Number: 0, TrainStart: 0, TrainEnd: 5, TestStart: 4, TestEnd: 8}})
	assert.ErrorIs(t, err, ErrInvalidFold)
}

func TestDescribe(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	idx := make([]time.Time, 6)
	for i := range idx {
		idx[i] = t0.Add(time.Duration(i) * time.Hour)
	}
	w, err := Describe(Fold{TrainStart: 0, TrainEnd: 3, TestStart: 3, TestEnd: 6}, idx)
	require.NoError(t, err)
	assert.Equal(t, idx[2], w.TrainTo)
	assert.Equal(t, idx[3], w.TestFrom)
	assert.Equal(t, idx[5], w.TestTo)

	_, err = Describe(Fold{TrainStart: 0, TrainEnd: 3, TestStart: 3, TestEnd: 7}, idx)
	assert.Error(t, err)
}
