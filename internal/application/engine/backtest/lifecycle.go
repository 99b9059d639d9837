package backtest

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/alejandrodnm/polysim/internal/strategy"
	"github.com/google/uuid"
)

// Open/close rejections. None of them is fatal to a run.
var (
	ErrMaxPositions      = errors.New("global position limit reached")
	ErrStrategyQuota     = errors.New("strategy position quota reached")
	ErrMarketHeld        = errors.New("market already held")
	ErrCooldown          = errors.New("market in cool-down")
	ErrBlacklisted       = errors.New("market blacklisted")
	ErrInvalidPrice      = errors.New("invalid price")
	ErrNoCapital         = errors.New("no capital available")
	ErrTradeNotOpen      = errors.New("trade is not open")
	ErrExitNotAfterEntry = errors.New("exit time not after entry time")
)

// forcedExitReason is the exit reason of end-of-data liquidations.
const forcedExitReason = "end of data"

// Ledger creates, tracks and closes the simulated trades of one run.
type Ledger struct {
	maxPositions   int
	blacklistBelow float64

	trades         []*domain.Trade
	openList       []*domain.Trade          // open trades in entry order
	open           map[string]*domain.Trade // marketID → open trade (one per market)
	openByStrategy map[string]int
	lastOpen       map[string]map[string]time.Time // strategy → market → last entry
	blacklist      map[string]time.Time            // market → time it was blacklisted
}

// NewLedger creates an empty ledger.
func NewLedger(maxPositions int, blacklistBelow float64) *Ledger {
	return &Ledger{
		maxPositions:   maxPositions,
		blacklistBelow: blacklistBelow,
		open:           make(map[string]*domain.Trade),
		openByStrategy: make(map[string]int),
		lastOpen:       make(map[string]map[string]time.Time),
		blacklist:      make(map[string]time.Time),
	}
}

// CanOpen checks every entry precondition except price and sizing.
func (l *Ledger) CanOpen(strategyID, marketID string, now time.Time, sc strategy.Config) error {
	if len(l.open) >= l.maxPositions {
		return ErrMaxPositions
	}
	if sc.MaxPositions > 0 && l.openByStrategy[strategyID] >= sc.MaxPositions {
		return ErrStrategyQuota
	}
	if _, held := l.open[marketID]; held {
		return ErrMarketHeld
	}
	if l.Blacklisted(marketID) {
		return ErrBlacklisted
	}
	if l.CooldownActive(strategyID, marketID, now, sc.Cooldown) {
		return ErrCooldown
	}
	return nil
}

// Open creates a new OPEN trade sized off sizingCapital (realized equity).
func (l *Ledger) Open(
	snap domain.MarketSnapshot,
	strategyID string,
	outcome int,
	sc strategy.Config,
	fraction float64,
	sizingCapital float64,
) (*domain.Trade, error) {
	if err := l.CanOpen(strategyID, snap.MarketID, snap.Timestamp, sc); err != nil {
		return nil, err
	}

	price, ok := snap.Price(outcome)
	if !ok {
		return nil, fmt.Errorf("outcome %d: %w", outcome, ErrInvalidPrice)
	}
	if !domain.IsFinite(price) || price <= 0 || price >= 1 {
		return nil, fmt.Errorf("entry price %v: %w", price, ErrInvalidPrice)
	}
	if !domain.IsFinite(sizingCapital) || sizingCapital <= 0 {
		return nil, ErrNoCapital
	}

	entryValue := sizingCapital * fraction
	size := entryValue / price
	if !domain.IsFinite(entryValue) || !domain.IsFinite(size) || entryValue <= 0 {
		return nil, fmt.Errorf("entry value %v size %v: %w", entryValue, size, domain.ErrNonFinite)
	}

	t := &domain.Trade{
		ID:           uuid.New().String(),
		MarketID:     snap.MarketID,
		Question:     snap.Question,
		StrategyID:   strategyID,
		Outcome:      outcome,
		EntryTime:    snap.Timestamp,
		EntryPrice:   price,
		Size:         size,
		EntryValue:   entryValue,
		EndDate:      snap.EndDate,
		CurrentPrice: price,
		HighestPrice: price,
		Status:       domain.TradeOpen,
	}

	l.trades = append(l.trades, t)
	l.openList = append(l.openList, t)
	l.open[t.MarketID] = t
	l.openByStrategy[strategyID]++
	if l.lastOpen[strategyID] == nil {
		l.lastOpen[strategyID] = make(map[string]time.Time)
	}
	l.lastOpen[strategyID][t.MarketID] = t.EntryTime

	return t, nil
}

// Close finalizes an open trade and returns the realized P&L.
// An exit price under the blacklist threshold blacklists the market.
func (l *Ledger) Close(t *domain.Trade, exitPrice float64, exitTime time.Time, reason string) (float64, error) {
	if t == nil || t.Status != domain.TradeOpen {
		return 0, ErrTradeNotOpen
	}
	if !exitTime.After(t.EntryTime) {
		return 0, ErrExitNotAfterEntry
	}
	if !domain.IsFinite(exitPrice) || exitPrice < 0 || exitPrice > 1 {
		return 0, fmt.Errorf("exit price %v: %w", exitPrice, ErrInvalidPrice)
	}

	exitValue := t.Size * exitPrice
	profit := exitValue - t.EntryValue
	if !domain.IsFinite(exitValue) || !domain.IsFinite(profit) {
		return 0, fmt.Errorf("exit value %v: %w", exitValue, domain.ErrNonFinite)
	}

	et := exitTime
	t.ExitTime = &et
	t.ExitPrice = exitPrice
	t.ExitValue = exitValue
	t.Profit = profit
	t.ProfitPct = profit / t.EntryValue * 100
	t.CurrentPrice = exitPrice
	t.UnrealizedPnL = 0
	t.ExitReason = reason
	if profit >= 0 {
		t.Status = domain.TradeClosed
	} else {
		t.Status = domain.TradeStopped
	}

	delete(l.open, t.MarketID)
	l.openByStrategy[t.StrategyID]--
	for i, o := range l.openList {
		if o == t {
			l.openList = append(l.openList[:i], l.openList[i+1:]...)
			break
		}
	}

	if exitPrice < l.blacklistBelow {
		if _, already := l.blacklist[t.MarketID]; !already {
			l.blacklist[t.MarketID] = exitTime
			slog.Debug("backtest: market blacklisted",
				"market", t.MarketID,
				"exit_price", exitPrice,
			)
		}
	}

	return profit, nil
}

// ForceCloseAll closes every open trade at priceOf(trade), or zero when that
// price is unusable. It returns the closed trades and their total P&L.
func (l *Ledger) ForceCloseAll(asOf time.Time, priceOf func(*domain.Trade) (float64, bool)) ([]*domain.Trade, float64) {
	open := l.OpenTrades()
	var total float64
	for _, t := range open {
		price, ok := priceOf(t)
		if !ok || !domain.IsFinite(price) || price < 0 || price > 1 {
			price = 0
		}
		exitTime := asOf
		if !exitTime.After(t.EntryTime) {
			exitTime = t.EntryTime.Add(time.Millisecond)
		}
		pnl, err := l.Close(t, price, exitTime, forcedExitReason)
		if err != nil {
			// Only reachable with a corrupted trade; keep going so no position stays open.
			slog.Error("backtest: force close failed", "trade", t.ID, "err", err)
			continue
		}
		t.Forced = true
		total += pnl
	}
	return open, total
}

// OpenTrades returns the open trades in entry order.
func (l *Ledger) OpenTrades() []*domain.Trade {
	out := make([]*domain.Trade, len(l.openList))
	copy(out, l.openList)
	return out
}

// Trades returns every trade opened during the run, in entry order.
func (l *Ledger) Trades() []*domain.Trade {
	return l.trades
}

// OpenCount returns the number of open positions.
func (l *Ledger) OpenCount() int {
	return len(l.open)
}

// OpenCountFor returns the open positions of one strategy.
func (l *Ledger) OpenCountFor(strategyID string) int {
	return l.openByStrategy[strategyID]
}

// Holds returns true if any strategy holds the market.
func (l *Ledger) Holds(marketID string) bool {
	_, ok := l.open[marketID]
	return ok
}

// Blacklisted returns true if the market had a degenerate exit.
func (l *Ledger) Blacklisted(marketID string) bool {
	_, ok := l.blacklist[marketID]
	return ok
}

// CooldownActive returns true if the strategy entered the market less than d ago.
func (l *Ledger) CooldownActive(strategyID, marketID string, now time.Time, d time.Duration) bool {
	if d <= 0 {
		return false
	}
	last, ok := l.lastOpen[strategyID][marketID]
	if !ok {
		return false
	}
	return now.Sub(last) < d
}
