package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"MetaGate/internal/domain/models"
	domrepo "MetaGate/internal/domain/repository"
)

// SQLiteReportStore persists run reports. The full report is stored as JSON;
// strategy rows are also stored flat so they can be queried directly.
type SQLiteReportStore struct {
	db *sql.DB
	mu sync.Mutex
}

func NewSQLiteReportStore(path string) (*SQLiteReportStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// WAL lets the HTTP API read while a run writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	s := &SQLiteReportStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteReportStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			created_at  INTEGER NOT NULL,
			strategies  INTEGER NOT NULL,
			best_model  TEXT,
			best_sharpe REAL,
			report      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`,

		`CREATE TABLE IF NOT EXISTS strategy_results (
			run_id        TEXT NOT NULL REFERENCES runs(id),
			model         TEXT NOT NULL,
			threshold     REAL NOT NULL,
			regime_filter INTEGER NOT NULL,
			passed        INTEGER,
			vetoed        INTEGER,
			total_return  REAL,
			sharpe        REAL,
			sortino       REAL,
			max_drawdown  REAL,
			win_rate      REAL,
			n_trades      INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_strategy_run ON strategy_results(run_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:30], err)
		}
	}
	return nil
}

// SaveReport inserts or replaces a report and its strategy rows.
func (s *SQLiteReportStore) SaveReport(ctx context.Context, r *models.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	best := bestStrategy(r.Strategies)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM strategy_results WHERE run_id = ?`, r.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO runs
		(id, created_at, strategies, best_model, best_sharpe, report)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.CreatedAt.UnixMilli(), len(r.Strategies), best.Model, best.Summary.Sharpe, string(body),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO strategy_results
		(run_id, model, threshold, regime_filter, passed, vetoed,
		 total_return, sharpe, sortino, max_drawdown, win_rate, n_trades)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, st := range r.Strategies {
		sm := st.Summary
		if _, err := stmt.ExecContext(ctx,
			r.ID, st.Model, st.Threshold, boolInt(st.RegimeFilter), st.Passed, st.Vetoed,
			sm.TotalReturn, sm.Sharpe, sm.Sortino, sm.MaxDrawdown, sm.WinRate, sm.Trades,
		); err != nil {
			return fmt.Errorf("insert strategy: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteReportStore) GetReport(ctx context.Context, id string) (*models.RunReport, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT report FROM runs WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, domrepo.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var r models.RunReport
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	return &r, nil
}

// ListReports returns up to limit runs, newest first.
func (s *SQLiteReportStore) ListReports(ctx context.Context, limit int) ([]models.RunInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, created_at, strategies, best_model, best_sharpe
		FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RunInfo
	for rows.Next() {
		var info models.RunInfo
		var created int64
		var model sql.NullString
		var sharpe sql.NullFloat64
		if err := rows.Scan(&info.ID, &created, &info.Strategies, &model, &sharpe); err != nil {
			return nil, err
		}
		info.CreatedAt = time.UnixMilli(created).UTC()
		info.BestModel = model.String
		info.BestSharpe = sharpe.Float64
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *SQLiteReportStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteReportStore) Close() error { return s.db.Close() }

func bestStrategy(ss []models.StrategyResult) models.StrategyResult {
	var best models.StrategyResult
	for i, st := range ss {
		if i == 0 || st.Summary.Sharpe > best.Summary.Sharpe {
			best = st
		}
	}
	return best
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ domrepo.ReportStore = (*SQLiteReportStore)(nil)
