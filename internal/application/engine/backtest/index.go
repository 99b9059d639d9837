package backtest

import (
	"sort"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
)

// series is one market's snapshots in chronological order plus the parallel
// array of their timestamps in Unix nanoseconds, the same resolution as the
// simulation clock.
type series struct {
	snaps []domain.MarketSnapshot
	ts    []int64
}

// Index partitions snapshots by market for O(log k) as-of lookups.
// Built once per run and read-only afterwards.
type Index struct {
	markets map[string]*series
	total   int
}

// NewIndex builds the index from a time-sorted snapshot sequence.
// Order within each market is the input order.
func NewIndex(snaps []domain.MarketSnapshot) *Index {
	ix := &Index{markets: make(map[string]*series), total: len(snaps)}
	for _, s := range snaps {
		sr, ok := ix.markets[s.MarketID]
		if !ok {
			sr = &series{}
			ix.markets[s.MarketID] = sr
		}
		sr.snaps = append(sr.snaps, s)
		sr.ts = append(sr.ts, s.Timestamp.UnixNano())
	}
	return ix
}

// Len returns the number of indexed snapshots.
func (ix *Index) Len() int {
	return ix.total
}

// Markets returns the number of distinct markets.
func (ix *Index) Markets() int {
	return len(ix.markets)
}

// position returns the index of the last snapshot with timestamp <= t, or -1.
func (sr *series) position(t time.Time) int {
	ns := t.UnixNano()
	// first index with ts > ns, minus one
	return sort.Search(len(sr.ts), func(i int) bool { return sr.ts[i] > ns }) - 1
}

// AsOf returns the most recent snapshot of the market with timestamp <= t.
func (ix *Index) AsOf(marketID string, t time.Time) (domain.MarketSnapshot, bool) {
	sr, ok := ix.markets[marketID]
	if !ok || len(sr.snaps) == 0 {
		return domain.MarketSnapshot{}, false
	}
	i := sr.position(t)
	if i < 0 {
		return domain.MarketSnapshot{}, false
	}
	return sr.snaps[i], true
}

// Latest returns the last snapshot ever seen for the market.
func (ix *Index) Latest(marketID string) (domain.MarketSnapshot, bool) {
	sr, ok := ix.markets[marketID]
	if !ok || len(sr.snaps) == 0 {
		return domain.MarketSnapshot{}, false
	}
	return sr.snaps[len(sr.snaps)-1], true
}

// window returns up to lookback snapshots ending at the as-of position.
func (ix *Index) window(marketID string, t time.Time, lookback int) []domain.MarketSnapshot {
	if lookback <= 0 {
		return nil
	}
	sr, ok := ix.markets[marketID]
	if !ok {
		return nil
	}
	end := sr.position(t)
	if end < 0 {
		return nil
	}
	start := max(end-lookback+1, 0)
	return sr.snaps[start : end+1]
}

// HistoricalPrices returns, oldest first, up to lookback prices of the outcome
// ending at the as-of snapshot. Snapshots missing the outcome are skipped.
func (ix *Index) HistoricalPrices(marketID string, t time.Time, lookback, outcome int) []float64 {
	w := ix.window(marketID, t, lookback)
	if len(w) == 0 {
		return nil
	}
	prices := make([]float64, 0, len(w))
	for _, s := range w {
		if p, ok := s.Price(outcome); ok {
			prices = append(prices, p)
		}
	}
	return prices
}

// HistoricalLiquidity returns, oldest first, up to lookback liquidity values
// ending at the as-of snapshot.
func (ix *Index) HistoricalLiquidity(marketID string, t time.Time, lookback int) []float64 {
	w := ix.window(marketID, t, lookback)
	if len(w) == 0 {
		return nil
	}
	out := make([]float64, len(w))
	for i, s := range w {
		out[i] = s.Liquidity
	}
	return out
}

// view binds the index to the simulation clock. It is what strategies see.
type view struct {
	ix  *Index
	now time.Time
}

func (v *view) HistoricalPrices(marketID string, lookback, outcome int) []float64 {
	return v.ix.HistoricalPrices(marketID, v.now, lookback, outcome)
}

func (v *view) HistoricalLiquidity(marketID string, lookback int) []float64 {
	return v.ix.HistoricalLiquidity(marketID, v.now, lookback)
}

func (v *view) LatestSnapshot(marketID string) (domain.MarketSnapshot, bool) {
	return v.ix.AsOf(marketID, v.now)
}
