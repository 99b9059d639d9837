package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func curve(step time.Duration, equities ...float64) []domain.EquityPoint {
	out := make([]domain.EquityPoint, len(equities))
	for i, e := range equities {
		out[i] = domain.EquityPoint{Timestamp: t0.Add(time.Duration(i) * step), Equity: e}
	}
	return out
}

func closedTrade(strategyID string, profit float64, entry, exit time.Time) *domain.Trade {
	status := domain.TradeClosed
	if profit < 0 {
		status = domain.TradeStopped
	}
	return &domain.Trade{
		StrategyID: strategyID,
		EntryTime:  entry,
		ExitTime:   &exit,
		Profit:     profit,
		Status:     status,
	}
}

func TestSharpe(t *testing.T) {
	assert.Equal(t, 0.0, sharpe(nil, 0))
	assert.Equal(t, 0.0, sharpe(curve(time.Hour, 100, 110), 0), "one return")
	assert.Equal(t, 0.0, sharpe(curve(time.Hour, 100, 100, 100), 0), "zero volatility")

	c := curve(time.Hour, 100, 110, 99, 108.9)
	// returns 0.1, -0.1, 0.1 → mean 1/30, sample stdev sqrt(0.04/3)
	want := (1.0 / 30) / math.Sqrt(0.04/3) * math.Sqrt(8760)
	assert.InDelta(t, want, sharpe(c, 0), 1e-6)
	assert.InDelta(t, (1.0/30)/math.Sqrt(0.04/3)*math.Sqrt(252), sharpe(c, 252), 1e-6)
}

func TestInferPeriodsPerYear(t *testing.T) {
	assert.InDelta(t, 8760, inferPeriodsPerYear(curve(time.Hour, 1, 1, 1)), 1e-9)
	assert.InDelta(t, 365, inferPeriodsPerYear(curve(24*time.Hour, 1, 1, 1)), 1e-9)
	assert.InDelta(t, float64(hoursPerYear), inferPeriodsPerYear(curve(0, 1, 1)), 1e-9)
}

func TestSummarize(t *testing.T) {
	trades := []*domain.Trade{
		closedTrade("a", 100, at(0), at(60)),
		closedTrade("a", -50, at(0), at(120)),
		closedTrade("b", 30, at(0), at(180)),
		{StrategyID: "b", Status: domain.TradeOpen, EntryTime: at(0)},
	}
	eq := NewEquity(1000)
	require.NoError(t, eq.Realize(80))
	eq.Update(nil, domain.MarketSnapshot{}, NewIndex(nil))

	res := summarize(summaryInput{
		runID:    "run",
		cfg:      Config{InitialCapital: 1000}.withDefaults(),
		prepared: []domain.MarketSnapshot{snap("m1", 0, 0.5), snap("m1", 180, 0.5)},
		dropped:  4,
		markets:  1,
		trades:   trades,
		equity:   eq,
	})

	assert.Equal(t, "run", res.RunID)
	assert.Equal(t, at(0), res.StartDate)
	assert.Equal(t, at(180), res.EndDate)
	assert.Equal(t, 4, res.SnapshotsDropped)
	assert.Equal(t, 3, res.TotalTrades)
	assert.Len(t, res.Trades, 4)
	assert.Equal(t, 2, res.WinningTrades)
	assert.Equal(t, 1, res.LosingTrades)
	assert.InDelta(t, 66.67, res.WinRate, 0.01)
	assert.InDelta(t, 80.0/3, res.AvgTrade, 1e-9)
	assert.Equal(t, 100.0, res.BestTrade)
	assert.Equal(t, -50.0, res.WorstTrade)
	assert.InDelta(t, 130.0/50, res.ProfitFactor, 1e-9)
	assert.Equal(t, 2*time.Hour, res.AvgHold)
	assert.InDelta(t, 1080, res.FinalCapital, 1e-9)
	assert.InDelta(t, 8, res.TotalPnLPct, 1e-9)

	a := res.PerStrategy["a"]
	assert.Equal(t, 2, a.Trades)
	assert.InDelta(t, 50, a.TotalPnL, 1e-9)
	assert.Equal(t, 50.0, a.WinRate)
	assert.Equal(t, 100.0, a.Best)
	assert.Equal(t, -50.0, a.Worst)

	b := res.PerStrategy["b"]
	assert.Equal(t, 1, b.Trades, "open trades are not counted")
}

func TestSummarize_ProfitFactorWithoutLosses(t *testing.T) {
	res := summarize(summaryInput{
		cfg:    Config{}.withDefaults(),
		trades: []*domain.Trade{closedTrade("a", 10, at(0), at(1))},
		equity: NewEquity(DefaultInitialCapital),
	})
	assert.True(t, math.IsInf(res.ProfitFactor, 1))
}

func TestAdvisories(t *testing.T) {
	cfg := Config{
		InitialCapital: 1000,
		Risk:           RiskConfig{DailyLossLimit: 0.05, MaxDrawdown: 0.2},
	}
	trades := []*domain.Trade{
		closedTrade("a", -30, at(0), at(10)),
		closedTrade("a", -30, at(0), at(20)), // same day: -60 > 50
		closedTrade("a", -40, at(0), at(0).Add(48*time.Hour)),
	}
	out := advisories(cfg, domain.BacktestResult{MaxDrawdown: 0.3}, trades)

	require.Len(t, out, 2)
	assert.Contains(t, out[0], "max drawdown 30.0%")
	assert.Contains(t, out[1], "2025-03-01")

	assert.Empty(t, advisories(Config{}, domain.BacktestResult{MaxDrawdown: 0.9}, trades))
}
