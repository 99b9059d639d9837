package strategy

import (
	"fmt"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
)

// exitRules agrupa las condiciones de salida comunes. ShouldClose y ExitReason
// usan la misma función check para que nunca diverjan.
type exitRules struct {
	takeProfit     float64       // fracción sobre el precio de entrada
	stopLoss       float64       // fracción bajo el precio de entrada
	trailingStop   float64       // fracción bajo el máximo visto
	targetPrice    float64       // precio absoluto de salida
	exitHoursToEnd float64       // cerrar cuando falten menos horas que esto
	maxHold        time.Duration // 0 = sin límite
}

func rulesFrom(cfg Config) exitRules {
	return exitRules{
		takeProfit:     cfg.TakeProfit,
		stopLoss:       cfg.StopLoss,
		trailingStop:   cfg.Param("trailing_stop", 0),
		targetPrice:    cfg.Param("target_price", 0),
		exitHoursToEnd: cfg.Param("exit_hours_to_end", 0),
		maxHold:        time.Duration(cfg.Param("max_hold_hours", 0) * float64(time.Hour)),
	}
}

// check devuelve la razón de salida y true si alguna condición se cumple.
func (r exitRules) check(t domain.Trade, price float64, now time.Time) (string, bool) {
	if !domain.IsFinite(price) {
		return "", false
	}
	change := t.ChangePct(price)

	if r.targetPrice > 0 && price >= r.targetPrice {
		return fmt.Sprintf("target reached %.3f", price), true
	}
	if r.takeProfit > 0 && change >= r.takeProfit {
		return fmt.Sprintf("take profit %+.1f%%", change*100), true
	}
	if r.stopLoss > 0 && change <= -r.stopLoss {
		return fmt.Sprintf("stop loss %+.1f%%", change*100), true
	}
	if r.trailingStop > 0 && t.HighestPrice > t.EntryPrice && price <= t.HighestPrice*(1-r.trailingStop) {
		return fmt.Sprintf("trailing stop %.3f from high %.3f", price, t.HighestPrice), true
	}
	// EndDate solo es fiable si es posterior a la entrada
	if r.exitHoursToEnd > 0 && t.EndDate.After(t.EntryTime) {
		if left := t.EndDate.Sub(now).Hours(); left <= r.exitHoursToEnd {
			return fmt.Sprintf("near expiry (%.1fh left)", left), true
		}
	}
	if r.maxHold > 0 && now.Sub(t.EntryTime) >= r.maxHold {
		return fmt.Sprintf("max hold %s", r.maxHold), true
	}
	return "", false
}
