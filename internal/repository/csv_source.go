package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"MetaGate/internal/domain/models"
	domrepo "MetaGate/internal/domain/repository"
	"MetaGate/pkg/util"
)

// TimestampColumn names the index column of every input table.
const TimestampColumn = "timestamp"

var ErrNoTimestamp = errors.New("csv: missing timestamp column")

// CSVSource loads the wide-format export files: one timestamp column and one
// numeric column per asset or metric.
type CSVSource struct {
	SignalsPath string
	PricesPath  string
	MetricsPath string // optional
}

func NewCSVSource(signals, prices, metrics string) *CSVSource {
	return &CSVSource{SignalsPath: signals, PricesPath: prices, MetricsPath: metrics}
}

func (s *CSVSource) Name() string { return "csv" }

func (s *CSVSource) Load(ctx context.Context) (*domrepo.Dataset, error) {
	signals, err := ReadFrameFile(s.SignalsPath)
	if err != nil {
		return nil, fmt.Errorf("signals: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prices, err := ReadFrameFile(s.PricesPath)
	if err != nil {
		return nil, fmt.Errorf("prices: %w", err)
	}
	ds := &domrepo.Dataset{Signals: signals, Prices: prices}
	if s.MetricsPath != "" {
		if ds.Metrics, err = ReadFrameFile(s.MetricsPath); err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
	}
	return ds, nil
}

func ReadFrameFile(path string) (*models.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fr, err := ReadFrame(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fr, nil
}

// ReadFrame parses a wide CSV table. Rows are sorted by timestamp; for
// duplicate timestamps the last row wins. Blank and NA cells are NaN.
func ReadFrame(r io.Reader) (*models.Frame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	tsCol := -1
	var columns []string
	var colPos []int
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if strings.EqualFold(h, TimestampColumn) {
			tsCol = i
			continue
		}
		if h == "" {
			continue
		}
		columns = append(columns, h)
		colPos = append(colPos, i)
	}
	if tsCol < 0 {
		return nil, ErrNoTimestamp
	}

	type row struct {
		t    time.Time
		vals []float64
	}
	var rows []row
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if tsCol >= len(rec) {
			return nil, fmt.Errorf("line %d: %w", line, ErrNoTimestamp)
		}
		t, ok := util.ParseTime(rec[tsCol])
		if !ok {
			return nil, fmt.Errorf("line %d: bad timestamp %q", line, rec[tsCol])
		}
		vals := models.NaNs(len(columns))
		for c, i := range colPos {
			if i >= len(rec) {
				continue
			}
			v, err := util.ParseCell(rec[i])
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, columns[c], err)
			}
			vals[c] = v
		}
		rows = append(rows, row{t: t, vals: vals})
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].t.Before(rows[j].t) })
	dedup := rows[:0]
	for _, r := range rows {
		if n := len(dedup); n > 0 && dedup[n-1].t.Equal(r.t) {
			dedup[n-1] = r
			continue
		}
		dedup = append(dedup, r)
	}

	index := make([]time.Time, len(dedup))
	for i, r := range dedup {
		index[i] = r.t
	}
	fr := models.NewFrame(index, columns)
	for i, r := range dedup {
		for c := range columns {
			fr.Values[c][i] = r.vals[c]
		}
	}
	return fr, nil
}

var _ domrepo.DatasetSource = (*CSVSource)(nil)
