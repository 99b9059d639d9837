package export_test

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alejandrodnm/polysim/internal/adapters/export"
	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func readAll(t *testing.T, data []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteTradesCSV(t *testing.T) {
	exit := t0.Add(time.Hour)
	trades := []domain.Trade{
		{
			ID: "t1", StrategyID: "longshot", MarketID: "0xabc", Question: "Will it, really?",
			EntryTime: t0, EntryPrice: 0.1 + 0.2, Size: 1000.0 / 3, EntryValue: 100,
			ExitTime: &exit, ExitPrice: 0.45, ExitValue: 150, Profit: 50, ProfitPct: 50,
			Status: domain.TradeClosed, ExitReason: "take profit",
		},
		{ID: "t2", StrategyID: "favorite", MarketID: "0xdef", EntryTime: t0, EntryPrice: 0.9, Status: domain.TradeOpen},
	}

	var buf bytes.Buffer
	require.NoError(t, export.WriteTradesCSV(&buf, trades))

	rows := readAll(t, buf.Bytes())
	require.Len(t, rows, 3)
	assert.Equal(t, "id", rows[0][0])

	r := rows[1]
	assert.Equal(t, "Will it, really?", r[3], "commas are quoted")
	assert.Equal(t, "2025-03-01T12:00:00Z", r[5])
	assert.Equal(t, "0.3", r[7], "no float noise")
	assert.Equal(t, "333.3333", r[9])
	assert.Equal(t, "50.00", r[12])
	assert.Equal(t, "CLOSED", r[14])
	assert.Equal(t, "false", r[16])

	open := rows[2]
	assert.Empty(t, open[6])
	assert.Empty(t, open[8])
}

func TestWriteEquityCSV(t *testing.T) {
	curve := []domain.EquityPoint{
		{Timestamp: t0, Equity: 10000, Realized: 10000},
		{Timestamp: t0.Add(time.Hour), Equity: 10123.456, Realized: 10000, OpenPositions: 2},
	}
	var buf bytes.Buffer
	require.NoError(t, export.WriteEquityCSV(&buf, curve))

	rows := readAll(t, buf.Bytes())
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"2025-03-01T13:00:00Z", "10123.46", "10000.00", "2"}, rows[2])
}

func TestWriteResult(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	paths, err := export.WriteResult(dir, domain.BacktestResult{
		EquityCurve: []domain.EquityPoint{{Timestamp: t0, Equity: 1}},
	})
	require.NoError(t, err)
	require.Len(t, paths, 2)

	data, err := os.ReadFile(filepath.Join(dir, export.EquityFile))
	require.NoError(t, err)
	assert.Len(t, readAll(t, data), 2)

	data, err = os.ReadFile(filepath.Join(dir, export.TradesFile))
	require.NoError(t, err)
	assert.Len(t, readAll(t, data), 1, "header only")
}
