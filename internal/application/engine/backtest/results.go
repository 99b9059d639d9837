package backtest

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
)

const hoursPerYear = 365 * 24

// summaryInput is everything the aggregator reads at the end of a run.
type summaryInput struct {
	runID    string
	cfg      Config
	prepared []domain.MarketSnapshot
	dropped  int
	markets  int
	trades   []*domain.Trade
	curve    []domain.EquityPoint
	equity   *Equity
}

// summarize builds the final result. It only reads its input.
func summarize(in summaryInput) domain.BacktestResult {
	res := domain.BacktestResult{
		RunID:              in.runID,
		SnapshotsProcessed: len(in.prepared),
		SnapshotsDropped:   in.dropped,
		Markets:            in.markets,
		InitialCapital:     in.cfg.InitialCapital,
		FinalCapital:       in.equity.Current(),
		PeakEquity:         in.equity.Peak(),
		MaxDrawdown:        in.equity.MaxDrawdown(),
		PerStrategy:        make(map[string]domain.StrategyStats),
		EquityCurve:        in.curve,
	}
	if n := len(in.prepared); n > 0 {
		res.StartDate = in.prepared[0].Timestamp
		res.EndDate = in.prepared[n-1].Timestamp
	}
	res.TotalPnL = res.FinalCapital - res.InitialCapital
	if res.InitialCapital > 0 {
		res.TotalPnLPct = res.TotalPnL / res.InitialCapital * 100
	}

	var (
		grossWin, grossLoss float64
		holdTotal           time.Duration
		closed              int
	)
	res.Trades = make([]domain.Trade, 0, len(in.trades))
	for _, t := range in.trades {
		res.Trades = append(res.Trades, *t)
		if t.IsOpen() {
			continue
		}
		closed++
		if t.Forced {
			res.ForcedCloses++
		}
		if t.ExitTime != nil {
			holdTotal += t.ExitTime.Sub(t.EntryTime)
		}

		if t.Profit > 0 {
			res.WinningTrades++
			grossWin += t.Profit
		} else if t.Profit < 0 {
			res.LosingTrades++
			grossLoss -= t.Profit
		}
		if closed == 1 || t.Profit > res.BestTrade {
			res.BestTrade = t.Profit
		}
		if closed == 1 || t.Profit < res.WorstTrade {
			res.WorstTrade = t.Profit
		}

		st := res.PerStrategy[t.StrategyID]
		if st.Trades == 0 {
			st.Strategy = t.StrategyID
			st.Best = t.Profit
			st.Worst = t.Profit
		}
		st.Trades++
		st.TotalPnL += t.Profit
		if t.Profit > 0 {
			st.Wins++
		} else if t.Profit < 0 {
			st.Losses++
		}
		st.Best = max(st.Best, t.Profit)
		st.Worst = min(st.Worst, t.Profit)
		res.PerStrategy[t.StrategyID] = st
	}

	res.TotalTrades = closed
	if closed > 0 {
		res.WinRate = float64(res.WinningTrades) / float64(closed) * 100
		res.AvgTrade = (grossWin - grossLoss) / float64(closed)
		res.AvgHold = holdTotal / time.Duration(closed)
	}
	switch {
	case grossLoss > 0:
		res.ProfitFactor = grossWin / grossLoss
	case grossWin > 0:
		res.ProfitFactor = math.Inf(1)
	}

	for name, st := range res.PerStrategy {
		if st.Trades > 0 {
			st.WinRate = float64(st.Wins) / float64(st.Trades) * 100
			st.AvgPnL = st.TotalPnL / float64(st.Trades)
		}
		res.PerStrategy[name] = st
	}

	res.SharpeRatio = sharpe(in.curve, in.cfg.PeriodsPerYear)
	res.Advisories = advisories(in.cfg, res, in.trades)
	return res
}

// sharpe annualizes mean/stdev of the equity-curve period returns.
// Returns 0 with fewer than two returns or zero volatility.
func sharpe(curve []domain.EquityPoint, periodsPerYear float64) float64 {
	if len(curve) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev <= 0 {
			continue
		}
		returns = append(returns, (curve[i].Equity-prev)/prev)
	}
	if len(returns) < 2 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	stdev := math.Sqrt(ss / float64(len(returns)-1))
	if stdev == 0 || !domain.IsFinite(stdev) {
		return 0
	}

	if periodsPerYear <= 0 {
		periodsPerYear = inferPeriodsPerYear(curve)
	}
	s := mean / stdev * math.Sqrt(periodsPerYear)
	if !domain.IsFinite(s) {
		return 0
	}
	return s
}

// inferPeriodsPerYear uses the median spacing of the curve. Falls back to
// hourly when the spacing can't be measured.
func inferPeriodsPerYear(curve []domain.EquityPoint) float64 {
	gaps := make([]time.Duration, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		if d := curve[i].Timestamp.Sub(curve[i-1].Timestamp); d > 0 {
			gaps = append(gaps, d)
		}
	}
	if len(gaps) == 0 {
		return hoursPerYear
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	median := gaps[len(gaps)/2]
	return float64(365*24*time.Hour) / float64(median)
}

// advisories reports risk limits that were exceeded. They are informative:
// nothing in the loop stops trading because of them.
func advisories(cfg Config, res domain.BacktestResult, trades []*domain.Trade) []string {
	var out []string
	if cfg.Risk.MaxDrawdown > 0 && res.MaxDrawdown > cfg.Risk.MaxDrawdown {
		out = append(out, fmt.Sprintf("max drawdown %.1f%% exceeded limit %.1f%%",
			res.MaxDrawdown*100, cfg.Risk.MaxDrawdown*100))
	}

	if cfg.Risk.DailyLossLimit > 0 {
		limit := cfg.Risk.DailyLossLimit * cfg.InitialCapital
		daily := make(map[string]float64)
		for _, t := range trades {
			if t.IsOpen() || t.ExitTime == nil {
				continue
			}
			daily[t.ExitTime.UTC().Format(time.DateOnly)] += t.Profit
		}
		days := make([]string, 0, len(daily))
		for d := range daily {
			days = append(days, d)
		}
		sort.Strings(days)
		for _, d := range days {
			if -daily[d] > limit {
				out = append(out, fmt.Sprintf("daily loss limit exceeded on %s: $%.2f (limit $%.2f)",
					d, -daily[d], limit))
			}
		}
	}
	return out
}
