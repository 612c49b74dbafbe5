package repository

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFrame(t *testing.T) {
	in := strings.Join([]string{
		"timestamp,BTC,ETH",
		"2024-01-01 06:00:00,3,",
		"2024-01-01 00:00:00,1,10",
		"2024-01-01 03:00:00+00:00,2,NaN",
		"2024-01-01 06:00:00,4,40",
	}, "\n")

	f, err := ReadFrame(strings.NewReader(in))
	require.NoError(t, err)
	require.NoError(t, f.Validate())

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, []time.Time{t0, t0.Add(3 * time.Hour), t0.Add(6 * time.Hour)}, f.Index)
	assert.Equal(t, []string{"BTC", "ETH"}, f.Columns)
	assert.Equal(t, []float64{1, 2, 4}, f.Values[0], "last duplicate wins")
	assert.Equal(t, 10.0, f.At(0, "ETH"))
	assert.True(t, math.IsNaN(f.At(1, "ETH")))
	assert.Equal(t, 40.0, f.At(2, "ETH"))
}

func TestReadFrameMixedDates(t *testing.T) {
	in := "btc_mvrv_z_score,timestamp\n1.5,1/2/24\n2.5,2024-01-03\n"
	f, err := ReadFrame(strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, 2, f.Len())
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), f.Index[0])
	assert.Equal(t, []float64{1.5, 2.5}, f.Values[0])
}

func TestReadFrameErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"no timestamp column", "date,BTC\n2024-01-01,1\n"},
		{"bad timestamp", "timestamp,BTC\nlater,1\n"},
		{"bad number", "timestamp,BTC\n2024-01-01,abc\n"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrame(strings.NewReader(tt.in))
			assert.Error(t, err)
		})
	}
}

func TestCSVSourceLoad(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}
	signals := write("trade_log.csv", "timestamp,BTC\n2024-01-01,1\n")
	prices := write("price_data.csv", "timestamp,BTC\n2024-01-01,100\n")

	ds, err := NewCSVSource(signals, prices, "").Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, ds.Metrics)
	assert.Equal(t, 100.0, ds.Prices.At(0, "BTC"))

	_, err = NewCSVSource(signals, filepath.Join(dir, "missing.csv"), "").Load(context.Background())
	assert.Error(t, err)
}
