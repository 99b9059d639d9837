package strategy

import (
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
)

const longshotName = "longshot"

// Longshot compra outcomes baratos (baja probabilidad implícita) cuando el
// precio viene subiendo en los últimos snapshots.
//
// Params:
//   - min_price / max_price: banda de precio de entrada (default 0.03 / 0.15)
//   - min_liquidity: liquidez mínima del mercado (default 1000)
//   - lookback: snapshots para medir momentum (default 3)
//   - min_rise: subida mínima (fracción) en la ventana (default 0)
//   - trailing_stop, exit_hours_to_end, max_hold_hours: ver exitRules
type Longshot struct{}

// NewLongshot crea la estrategia longshot.
func NewLongshot() *Longshot {
	return &Longshot{}
}

// Name implementa Strategy.
func (s *Longshot) Name() string {
	return longshotName
}

// ShouldOpen implementa Strategy.
func (s *Longshot) ShouldOpen(snap domain.MarketSnapshot, h History, cfg Config) (int, bool) {
	minPrice := cfg.Param("min_price", 0.03)
	maxPrice := cfg.Param("max_price", 0.15)
	lookback := int(cfg.Param("lookback", 3))
	minRise := cfg.Param("min_rise", 0)

	if snap.Liquidity < cfg.Param("min_liquidity", 1000) {
		return 0, false
	}

	for outcome, price := range snap.OutcomePrices {
		if price < minPrice || price > maxPrice {
			continue
		}
		if lookback < 2 {
			return outcome, true
		}
		prices := h.HistoricalPrices(snap.MarketID, lookback, outcome)
		if len(prices) < lookback {
			continue // sin historia suficiente
		}
		first := prices[0]
		if first <= 0 || price <= first {
			continue
		}
		if (price-first)/first >= minRise {
			return outcome, true
		}
	}
	return 0, false
}

// ShouldClose implementa Strategy.
func (s *Longshot) ShouldClose(t domain.Trade, price float64, now time.Time, cfg Config) bool {
	_, ok := rulesFrom(cfg).check(t, price, now)
	return ok
}

// ExitReason implementa Strategy.
func (s *Longshot) ExitReason(t domain.Trade, price float64, now time.Time, cfg Config) string {
	reason, _ := rulesFrom(cfg).check(t, price, now)
	return reason
}
