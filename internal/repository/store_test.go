package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MetaGate/internal/domain/models"
	domrepo "MetaGate/internal/domain/repository"
	"MetaGate/internal/service/cache"
)

func sampleReport(id string, created time.Time, sharpes ...float64) *models.RunReport {
	r := &models.RunReport{
		ID:        id,
		CreatedAt: created,
		Assets:    []string{"BTC", "ETH"},
		Baseline:  models.Summary{Sharpe: 0.5, Trades: 10},
	}
	for i, s := range sharpes {
		r.Strategies = append(r.Strategies, models.StrategyResult{
			Model:     []string{"logistic", "naive_bayes"}[i%2],
			Threshold: 0.5,
			Passed:    3,
			Vetoed:    7,
			Summary:   models.Summary{Sharpe: s},
		})
	}
	return r
}

func TestSQLiteReportStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteReportStore(filepath.Join(t.TempDir(), "metagate.db"))
	require.NoError(t, err)
	defer s.Close()

	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveReport(ctx, sampleReport("old", t0, 0.1)))
	require.NoError(t, s.SaveReport(ctx, sampleReport("new", t0.Add(time.Hour), 0.2, 1.4)))

	got, err := s.GetReport(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, "new", got.ID)
	assert.True(t, got.CreatedAt.Equal(t0.Add(time.Hour)))
	assert.Len(t, got.Strategies, 2)
	assert.Equal(t, 10, got.Baseline.Trades)

	_, err = s.GetReport(ctx, "missing")
	assert.ErrorIs(t, err, domrepo.ErrNotFound)

	list, err := s.ListReports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)
	assert.Equal(t, "naive_bayes", list[0].BestModel)
	assert.Equal(t, 1.4, list[0].BestSharpe)
	assert.Equal(t, 2, list[0].Strategies)

	require.NoError(t, s.SaveReport(ctx, sampleReport("old", t0, 0.3)), "re-saving replaces")
	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM strategy_results WHERE run_id = 'old'`).Scan(&n))
	assert.Equal(t, 1, n)

	one, err := s.ListReports(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestReportCache(t *testing.T) {
	ctx := context.Background()
	rc := NewReportCache(cache.NewTTLCache(), time.Hour)

	_, ok, err := rc.GetReport(ctx, "x")
	require.NoError(t, err)
	assert.False(t, ok)

	want := sampleReport("x", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), 0.7)
	require.NoError(t, rc.SetReport(ctx, want))
	got, ok, err := rc.GetReport(ctx, "x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Strategies, got.Strategies)
}
