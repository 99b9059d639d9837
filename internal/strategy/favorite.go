package strategy

import (
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
)

const favoriteName = "favorite"

// Favorite compra el outcome favorito (precio alto) cuando el mercado
// resuelve dentro de una ventana de días, esperando que converja a 1.
//
// Params:
//   - min_price / max_price: banda de entrada (default 0.85 / 0.97)
//   - min_days_to_end / max_days_to_end: ventana hasta la resolución (default 1 / 30)
//   - min_liquidity: liquidez mínima (default 0)
//   - target_price: salida por precio absoluto (default 0.99)
type Favorite struct{}

// NewFavorite crea la estrategia favorite.
func NewFavorite() *Favorite {
	return &Favorite{}
}

// Name implementa Strategy.
func (s *Favorite) Name() string {
	return favoriteName
}

// ShouldOpen implementa Strategy.
func (s *Favorite) ShouldOpen(snap domain.MarketSnapshot, _ History, cfg Config) (int, bool) {
	// Sin EndDate fiable no se puede medir la ventana: no entrar.
	if !snap.HasReliableEndDate() {
		return 0, false
	}
	days := snap.DaysToEnd()
	if days < cfg.Param("min_days_to_end", 1) || days > cfg.Param("max_days_to_end", 30) {
		return 0, false
	}
	if snap.Liquidity < cfg.Param("min_liquidity", 0) {
		return 0, false
	}

	minPrice := cfg.Param("min_price", 0.85)
	maxPrice := cfg.Param("max_price", 0.97)
	best, bestPrice := -1, 0.0
	for outcome, price := range snap.OutcomePrices {
		if price >= minPrice && price <= maxPrice && price > bestPrice {
			best, bestPrice = outcome, price
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}

// ShouldClose implementa Strategy.
func (s *Favorite) ShouldClose(t domain.Trade, price float64, now time.Time, cfg Config) bool {
	_, ok := s.rules(cfg).check(t, price, now)
	return ok
}

// ExitReason implementa Strategy.
func (s *Favorite) ExitReason(t domain.Trade, price float64, now time.Time, cfg Config) string {
	reason, _ := s.rules(cfg).check(t, price, now)
	return reason
}

func (s *Favorite) rules(cfg Config) exitRules {
	r := rulesFrom(cfg)
	if r.targetPrice == 0 {
		r.targetPrice = 0.99
	}
	return r
}
