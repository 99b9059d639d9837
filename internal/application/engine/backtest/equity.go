package backtest

import (
	"fmt"

	"github.com/alejandrodnm/polysim/internal/domain"
)

// Equity tracks the running capital of a run. Realized P&L is what sizes new
// entries; unrealized P&L only feeds the reported equity and drawdown, so a
// strategy can't compound paper gains before they are locked in.
type Equity struct {
	initial     float64
	realized    float64
	unrealized  float64
	current     float64
	peak        float64
	drawdown    float64
	maxDrawdown float64
}

// NewEquity creates the tracker with the starting capital.
func NewEquity(initial float64) *Equity {
	return &Equity{initial: initial, current: initial, peak: initial}
}

// Realize books the P&L of a closed trade.
func (e *Equity) Realize(pnl float64) error {
	if !domain.IsFinite(pnl) {
		return fmt.Errorf("equity.Realize: %w", domain.ErrNonFinite)
	}
	e.realized += pnl
	return nil
}

// Update marks open trades to market and recomputes equity, peak and drawdown.
// The price of each trade comes from the current snapshot when it is the
// same market, else from the index as of the current snapshot time; with no
// price at all the position counts as worthless.
func (e *Equity) Update(open []*domain.Trade, current domain.MarketSnapshot, ix *Index) {
	unrealized := 0.0
	for _, t := range open {
		price, ok := markPrice(t, current, ix)
		if !ok {
			t.CurrentPrice = 0
			t.UnrealizedPnL = -t.EntryValue
			unrealized += t.UnrealizedPnL
			continue
		}
		t.MarkToMarket(price)
		unrealized += t.UnrealizedPnL
	}
	if !domain.IsFinite(unrealized) {
		unrealized = 0
	}
	e.unrealized = unrealized
	e.recompute()
}

func (e *Equity) recompute() {
	e.current = max(e.initial+e.realized+e.unrealized, 0)
	if e.current > e.peak {
		e.peak = e.current
	}
	if e.peak > 0 {
		e.drawdown = (e.peak - e.current) / e.peak
	} else {
		e.drawdown = 0
	}
	if e.drawdown > e.maxDrawdown {
		e.maxDrawdown = e.drawdown
	}
}

func markPrice(t *domain.Trade, current domain.MarketSnapshot, ix *Index) (float64, bool) {
	snap := current
	if snap.MarketID != t.MarketID {
		var ok bool
		snap, ok = ix.AsOf(t.MarketID, current.Timestamp)
		if !ok {
			return 0, false
		}
	}
	p, ok := snap.Price(t.Outcome)
	if !ok || !domain.IsFinite(p) {
		return 0, false
	}
	return p, true
}

// SizingCapital is the realized-only capital used to size new entries.
func (e *Equity) SizingCapital() float64 {
	return max(e.initial+e.realized, 0)
}

// Current returns realized + unrealized equity, floored at zero.
func (e *Equity) Current() float64 { return e.current }

// Realized returns initial capital plus realized P&L, floored at zero.
func (e *Equity) Realized() float64 { return e.SizingCapital() }

// Peak returns the highest equity seen.
func (e *Equity) Peak() float64 { return e.peak }

// Drawdown returns the current drawdown fraction.
func (e *Equity) Drawdown() float64 { return e.drawdown }

// MaxDrawdown returns the largest drawdown fraction seen.
func (e *Equity) MaxDrawdown() float64 { return e.maxDrawdown }
