package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"MetaGate/internal/domain/models"
	domrepo "MetaGate/internal/domain/repository"
)

// SignalsSchema creates the gated-signal table.
func SignalsSchema(table string) []string {
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            run_id      String,
            model       LowCardinality(String),
            threshold   Float64,
            ts          DateTime,
            asset       LowCardinality(String),
            baseline    UInt8,
            signal      UInt8,
            probability Float64,
            regime      LowCardinality(String)
        ) ENGINE = MergeTree
        ORDER BY (asset, ts, run_id)
    `, table)}
}

// CHSignalSink writes gated decisions to ClickHouse in multi-row inserts.
type CHSignalSink struct {
	db        *sql.DB
	table     string
	chunkSize int
}

func NewCHSignalSink(db *sql.DB, table string) *CHSignalSink {
	return &CHSignalSink{db: db, table: table, chunkSize: 2000}
}

func (s *CHSignalSink) PublishSignals(ctx context.Context, signals []models.GatedSignal) error {
	for start := 0; start < len(signals); start += s.chunkSize {
		end := start + s.chunkSize
		if end > len(signals) {
			end = len(signals)
		}
		q, args := insertSignals(s.table, signals[start:end])
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert signals into %s: %w", s.table, err)
		}
	}
	return nil
}

// Close is a no-op; the pool is owned by the ClickHouse client.
func (s *CHSignalSink) Close() error { return nil }

func insertSignals(table string, signals []models.GatedSignal) (string, []interface{}) {
	values := make([]string, len(signals))
	args := make([]interface{}, 0, len(signals)*9)
	for i, g := range signals {
		values[i] = "(?, ?, ?, ?, ?, ?, ?, ?, ?)"
		args = append(args,
			g.RunID, g.Model, g.Threshold, g.Timestamp, g.Asset,
			uint8(g.Baseline), uint8(g.Signal), g.Probability, g.Regime,
		)
	}
	q := fmt.Sprintf("INSERT INTO %s (run_id, model, threshold, ts, asset, baseline, signal, probability, regime) VALUES %s",
		table, strings.Join(values, ","))
	return q, args
}

var _ domrepo.SignalSink = (*CHSignalSink)(nil)
