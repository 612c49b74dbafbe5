package repository

import (
	"context"
	"errors"

	"MetaGate/internal/domain/models"
)

var ErrNotFound = errors.New("not found")

// Dataset is the raw input of one pipeline run.
type Dataset struct {
	Signals *models.Frame // assets as columns, 0/1
	Prices  *models.Frame // assets as columns
	Metrics *models.Frame // one column per on-chain metric, daily; may be nil
}

// DatasetSource loads the three input tables.
type DatasetSource interface {
	Load(ctx context.Context) (*Dataset, error)
	Name() string
}

// ReportStore persists run reports.
type ReportStore interface {
	SaveReport(ctx context.Context, r *models.RunReport) error
	GetReport(ctx context.Context, id string) (*models.RunReport, error)
	ListReports(ctx context.Context, limit int) ([]models.RunInfo, error)
	Close() error
}

// SignalSink receives final gated decisions.
type SignalSink interface {
	PublishSignals(ctx context.Context, signals []models.GatedSignal) error
	Close() error
}

// ReportCache is a short-lived cache in front of ReportStore.
type ReportCache interface {
	GetReport(ctx context.Context, id string) (*models.RunReport, bool, error)
	SetReport(ctx context.Context, r *models.RunReport) error
}

type Metrics interface {
	RecordRun(status string)
	RecordFold(model string, seconds float64)
	RecordGate(model string, passed, vetoed int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
