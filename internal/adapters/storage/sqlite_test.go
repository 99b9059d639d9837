package storage_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/alejandrodnm/polysim/internal/adapters/storage"
	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/alejandrodnm/polysim/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func makeSnapshot(marketID string, minutes int, yes float64) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		MarketID:      marketID,
		Question:      "Will X happen?",
		OutcomePrices: []float64{yes, 1 - yes},
		Liquidity:     1500,
		Volume24h:     320.5,
		EndDate:       base.Add(72 * time.Hour),
		Timestamp:     base.Add(time.Duration(minutes) * time.Minute),
	}
}

func openDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteStorage_SaveAndLoadSnapshots(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	err := db.SaveSnapshots(ctx, []domain.MarketSnapshot{
		makeSnapshot("0xbbb", 10, 0.40),
		makeSnapshot("0xaaa", 0, 0.25),
		makeSnapshot("0xaaa", 20, 0.30),
	})
	require.NoError(t, err)

	snaps, err := db.LoadSnapshots(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, snaps, 3)

	// Ordenados por tiempo
	assert.Equal(t, "0xaaa", snaps[0].MarketID)
	assert.Equal(t, "0xbbb", snaps[1].MarketID)
	assert.Equal(t, base.Add(20*time.Minute), snaps[2].Timestamp)

	s := snaps[0]
	assert.InDeltaSlice(t, []float64{0.25, 0.75}, s.OutcomePrices, 1e-12)
	assert.InDelta(t, 1500, s.Liquidity, 1e-9)
	assert.InDelta(t, 320.5, s.Volume24h, 1e-9)
	assert.Equal(t, base.Add(72*time.Hour), s.EndDate)
	assert.Equal(t, "Will X happen?", s.Question)
}

func TestSQLiteStorage_LoadSnapshotsRange(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveSnapshots(ctx, []domain.MarketSnapshot{
		makeSnapshot("m", 0, 0.5),
		makeSnapshot("m", 10, 0.5),
		makeSnapshot("m", 20, 0.5),
	}))

	snaps, err := db.LoadSnapshots(ctx, base.Add(5*time.Minute), base.Add(20*time.Minute))
	require.NoError(t, err)
	assert.Len(t, snaps, 2, "bounds are inclusive")

	snaps, err = db.LoadSnapshots(ctx, time.Time{}, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestSQLiteStorage_DuplicateSnapshotsIgnored(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	batch := []domain.MarketSnapshot{makeSnapshot("m", 0, 0.5)}
	require.NoError(t, db.SaveSnapshots(ctx, batch))
	require.NoError(t, db.SaveSnapshots(ctx, batch))

	n, err := db.CountSnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteStorage_NoEndDateRoundTrip(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	s := makeSnapshot("m", 0, 0.5)
	s.EndDate = time.Time{}
	require.NoError(t, db.SaveSnapshots(ctx, []domain.MarketSnapshot{s}))

	snaps, err := db.LoadSnapshots(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].EndDate.IsZero())
}

func TestSQLiteStorage_SaveEmptySlice(t *testing.T) {
	db := openDB(t)
	assert.NoError(t, db.SaveSnapshots(context.Background(), nil))
}

func TestSQLiteStorage_PruneSnapshots(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveSnapshots(ctx, []domain.MarketSnapshot{
		makeSnapshot("m", 0, 0.5),
		makeSnapshot("m", 60, 0.5),
	}))

	n, err := db.PruneSnapshots(ctx, base.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := db.CountSnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, left)
}

func makeResult(runID string) domain.BacktestResult {
	exit := base.Add(time.Hour)
	return domain.BacktestResult{
		RunID:              runID,
		StartDate:          base,
		EndDate:            base.Add(2 * time.Hour),
		SnapshotsProcessed: 10,
		Markets:            2,
		InitialCapital:     10000,
		FinalCapital:       15400,
		TotalPnL:           5400,
		TotalPnLPct:        54,
		PeakEquity:         15400,
		TotalTrades:        2,
		WinningTrades:      1,
		WinRate:            50,
		ProfitFactor:       math.Inf(1),
		Trades: []domain.Trade{
			{
				ID: runID + "-t1", MarketID: "m1", StrategyID: "longshot", Outcome: 0,
				EntryTime: base, EntryPrice: 0.05, Size: 36000, EntryValue: 1800,
				ExitTime: &exit, ExitPrice: 0.20, ExitValue: 7200, Profit: 5400, ProfitPct: 300,
				Status: domain.TradeClosed, ExitReason: "take profit",
			},
			{
				ID: runID + "-t2", MarketID: "m2", StrategyID: "favorite", Outcome: 1,
				EntryTime: base.Add(time.Minute), EntryPrice: 0.9, Size: 10, EntryValue: 9,
				Status: domain.TradeOpen,
			},
		},
		EquityCurve: []domain.EquityPoint{
			{Timestamp: base, Equity: 10000, Realized: 10000, OpenPositions: 1},
			{Timestamp: base.Add(time.Hour), Equity: 15400, Realized: 15400},
		},
	}
}

func TestSQLiteStorage_SaveResult(t *testing.T) {
	var db ports.ResultStore = openDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveResult(ctx, makeResult("run-1")))
	require.NoError(t, db.SaveResult(ctx, makeResult("run-2")))

	runs, err := db.GetRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID, "most recent first")
	assert.InDelta(t, 15400, runs[0].FinalCapital, 1e-9)
	assert.InDelta(t, 54, runs[0].TotalPnLPct, 1e-9)
	assert.Equal(t, base, runs[0].StartDate)

	trades, err := db.GetTrades(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "longshot", trades[0].StrategyID)
	assert.Equal(t, domain.TradeClosed, trades[0].Status)
	require.NotNil(t, trades[0].ExitTime)
	assert.Equal(t, base.Add(time.Hour), *trades[0].ExitTime)
	assert.InDelta(t, 5400, trades[0].Profit, 1e-9)
	assert.Nil(t, trades[1].ExitTime)
	assert.Equal(t, 1, trades[1].Outcome)

	curve, err := db.GetEquityCurve(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, curve, 2)
	assert.Equal(t, 1, curve[0].OpenPositions)
	assert.InDelta(t, 15400, curve[1].Equity, 1e-9)
}

func TestSQLiteStorage_SaveResultDuplicateRun(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveResult(ctx, makeResult("run-1")))
	assert.Error(t, db.SaveResult(ctx, makeResult("run-1")))

	trades, err := db.GetTrades(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, trades, 2, "failed save is rolled back")
}

func TestSQLiteStorage_SaveResultRequiresRunID(t *testing.T) {
	db := openDB(t)
	assert.Error(t, db.SaveResult(context.Background(), domain.BacktestResult{}))
}
