package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"MetaGate/internal/domain/models"
	domrepo "MetaGate/internal/domain/repository"
	pkgch "MetaGate/pkg/clickhouse"
	applogger "MetaGate/pkg/logger"
)

// Tables names the long-format input tables, each (ts DateTime, name String,
// value Float64).
type Tables struct {
	Signals string
	Prices  string
	Metrics string // optional
}

// CHDatasetSource reads the input tables from ClickHouse and pivots them into
// wide frames.
type CHDatasetSource struct {
	db     *sql.DB
	tables Tables
	l      *applogger.Logger
}

func NewCHDatasetSource(ch *pkgch.Client, tables Tables) *CHDatasetSource {
	return &CHDatasetSource{db: ch.DB(), tables: tables}
}

// SetLogger injects a structured logger.
func (s *CHDatasetSource) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHDatasetSource) Name() string { return "clickhouse" }

func (s *CHDatasetSource) Load(ctx context.Context) (*domrepo.Dataset, error) {
	signals, err := s.loadTable(ctx, s.tables.Signals)
	if err != nil {
		return nil, err
	}
	prices, err := s.loadTable(ctx, s.tables.Prices)
	if err != nil {
		return nil, err
	}
	ds := &domrepo.Dataset{Signals: signals, Prices: prices}
	if s.tables.Metrics != "" {
		if ds.Metrics, err = s.loadTable(ctx, s.tables.Metrics); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

func (s *CHDatasetSource) loadTable(ctx context.Context, table string) (*models.Frame, error) {
	start := time.Now()
	q := fmt.Sprintf("SELECT ts, name, value FROM %s ORDER BY ts ASC", table)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		s.logError("query", table, err)
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var p Point
		var v sql.NullFloat64
		if err := rows.Scan(&p.Time, &p.Name, &v); err != nil {
			s.logError("scan", table, err)
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		p.Value = v.Float64
		p.Missing = !v.Valid
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		s.logError("rows", table, err)
		return nil, fmt.Errorf("rows %s: %w", table, err)
	}

	f := Pivot(points)
	if s.l != nil {
		s.l.Info("clickhouse table loaded",
			applogger.String("table", table),
			applogger.Int("points", len(points)),
			applogger.Int("rows", f.Len()),
			applogger.Int("columns", len(f.Columns)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return f, nil
}

func (s *CHDatasetSource) logError(stage, table string, err error) {
	if s.l != nil {
		s.l.Error("clickhouse load "+stage+" error", applogger.String("table", table), applogger.Error(err))
	}
}

// Point is one long-format cell.
type Point struct {
	Time    time.Time
	Name    string
	Value   float64
	Missing bool
}

// Pivot turns long-format points into a wide frame: one row per distinct
// timestamp, one column per name (sorted). Cells without a point are NaN.
func Pivot(points []Point) *models.Frame {
	times := make(map[time.Time]struct{})
	names := make(map[string]struct{})
	for i := range points {
		points[i].Time = points[i].Time.UTC()
		times[points[i].Time] = struct{}{}
		names[points[i].Name] = struct{}{}
	}
	index := make([]time.Time, 0, len(times))
	for t := range times {
		index = append(index, t)
	}
	sort.Slice(index, func(i, j int) bool { return index[i].Before(index[j]) })
	columns := make([]string, 0, len(names))
	for n := range names {
		columns = append(columns, n)
	}
	sort.Strings(columns)

	f := models.NewFrame(index, columns)
	for _, p := range points {
		if p.Missing {
			continue
		}
		i, _ := f.Locate(p.Time)
		f.Set(i, p.Name, p.Value)
	}
	return f
}

var _ domrepo.DatasetSource = (*CHDatasetSource)(nil)
