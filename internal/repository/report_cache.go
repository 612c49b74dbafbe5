package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"MetaGate/internal/domain/models"
	domrepo "MetaGate/internal/domain/repository"
	"MetaGate/internal/service/cache"
)

// ReportCache stores JSON-encoded reports in a BytesCache under "run:<id>".
type ReportCache struct {
	c   cache.BytesCache
	ttl time.Duration
}

func NewReportCache(c cache.BytesCache, ttl time.Duration) *ReportCache {
	return &ReportCache{c: c, ttl: ttl}
}

func reportKey(id string) string { return "run:" + id }

func (r *ReportCache) GetReport(ctx context.Context, id string) (*models.RunReport, bool, error) {
	b, ok, err := r.c.GetBytes(ctx, reportKey(id))
	if err != nil || !ok {
		return nil, false, err
	}
	var rep models.RunReport
	if err := json.Unmarshal(b, &rep); err != nil {
		return nil, false, fmt.Errorf("decode cached report %s: %w", id, err)
	}
	return &rep, true, nil
}

func (r *ReportCache) SetReport(ctx context.Context, rep *models.RunReport) error {
	b, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", rep.ID, err)
	}
	return r.c.SetBytes(ctx, reportKey(rep.ID), b, r.ttl)
}

var _ domrepo.ReportCache = (*ReportCache)(nil)
