package domain

import "time"

// TradeStatus es el estado del ciclo de vida de un trade simulado.
type TradeStatus string

const (
	TradeOpen    TradeStatus = "OPEN"
	TradeClosed  TradeStatus = "CLOSED"  // cerrado con profit >= 0
	TradeStopped TradeStatus = "STOPPED" // cerrado con pérdida
)

// Trade es una posición simulada abierta por una estrategia sobre un outcome.
type Trade struct {
	ID         string
	MarketID   string
	Question   string
	StrategyID string
	Outcome    int

	EntryTime  time.Time
	EntryPrice float64
	Size       float64 // shares = EntryValue / EntryPrice
	EntryValue float64 // USDC
	EndDate    time.Time

	// Estado mark-to-market mientras está abierto
	CurrentPrice  float64
	UnrealizedPnL float64
	HighestPrice  float64

	ExitTime   *time.Time
	ExitPrice  float64
	ExitValue  float64
	Profit     float64
	ProfitPct  float64
	Status     TradeStatus
	ExitReason string
	Forced     bool // cerrado por liquidación al final de los datos
}

// IsOpen devuelve true si el trade sigue abierto.
func (t Trade) IsOpen() bool {
	return t.Status == TradeOpen
}

// HoldDuration devuelve cuánto tiempo estuvo (o lleva) abierto el trade respecto a now.
func (t Trade) HoldDuration(now time.Time) time.Duration {
	if t.ExitTime != nil {
		return t.ExitTime.Sub(t.EntryTime)
	}
	if now.Before(t.EntryTime) {
		return 0
	}
	return now.Sub(t.EntryTime)
}

// MarkToMarket actualiza el precio actual, el máximo visto y el P&L no realizado.
// Precios no finitos se ignoran.
func (t *Trade) MarkToMarket(price float64) {
	if !IsFinite(price) {
		return
	}
	t.CurrentPrice = price
	if price > t.HighestPrice {
		t.HighestPrice = price
	}
	t.UnrealizedPnL = t.Size*price - t.EntryValue
}

// ChangePct devuelve la variación porcentual (fracción) del precio respecto a la entrada.
func (t Trade) ChangePct(price float64) float64 {
	if t.EntryPrice <= 0 {
		return 0
	}
	return (price - t.EntryPrice) / t.EntryPrice
}
