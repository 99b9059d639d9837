package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Errores de validación de snapshots. Comparar con errors.Is().
var (
	ErrMissingMarketID  = errors.New("snapshot: missing market id")
	ErrMissingTimestamp = errors.New("snapshot: missing timestamp")
	ErrNoOutcomes       = errors.New("snapshot: no outcome prices")
	ErrPriceOutOfRange  = errors.New("snapshot: price outside [0,1]")
	ErrNonFinite        = errors.New("non-finite value")
	ErrSnapshotAfterEnd = errors.New("snapshot: timestamp after market end date")
)

// MarketSnapshot es una observación inmutable de un mercado en un instante.
// OutcomePrices tiene un precio por outcome (índice 0 = Yes en mercados binarios).
type MarketSnapshot struct {
	MarketID      string
	Question      string
	OutcomePrices []float64
	Liquidity     float64
	Volume24h     float64
	EndDate       time.Time // puede estar vacío o coincidir con Timestamp en datasets reales
	Timestamp     time.Time
}

// Validate devuelve el primer problema de datos encontrado en el snapshot.
func (s MarketSnapshot) Validate() error {
	if s.MarketID == "" {
		return ErrMissingMarketID
	}
	if s.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}
	if len(s.OutcomePrices) == 0 {
		return ErrNoOutcomes
	}
	for i, p := range s.OutcomePrices {
		if !IsFinite(p) {
			return fmt.Errorf("outcome %d: %w", i, ErrNonFinite)
		}
		if p < 0 || p > 1 {
			return fmt.Errorf("outcome %d = %.6f: %w", i, p, ErrPriceOutOfRange)
		}
	}
	if !IsFinite(s.Liquidity) || !IsFinite(s.Volume24h) {
		return fmt.Errorf("liquidity/volume: %w", ErrNonFinite)
	}
	if !s.EndDate.IsZero() && s.Timestamp.After(s.EndDate) {
		return ErrSnapshotAfterEnd
	}
	return nil
}

// Price devuelve el precio del outcome dado. ok=false si el índice no existe.
func (s MarketSnapshot) Price(outcome int) (float64, bool) {
	if outcome < 0 || outcome >= len(s.OutcomePrices) {
		return 0, false
	}
	return s.OutcomePrices[outcome], true
}

// TimeToEnd devuelve el tiempo entre la captura y el EndDate del mercado.
// Devuelve 0 si EndDate no está definido o no es posterior a Timestamp.
func (s MarketSnapshot) TimeToEnd() time.Duration {
	if s.EndDate.IsZero() || !s.EndDate.After(s.Timestamp) {
		return 0
	}
	return s.EndDate.Sub(s.Timestamp)
}

// HoursToEnd es TimeToEnd expresado en horas.
func (s MarketSnapshot) HoursToEnd() float64 {
	return s.TimeToEnd().Hours()
}

// DaysToEnd es TimeToEnd expresado en días.
func (s MarketSnapshot) DaysToEnd() float64 {
	return s.TimeToEnd().Hours() / 24
}

// HasReliableEndDate devuelve true si EndDate es posterior al momento de captura.
// Hay datasets donde timestamp == endDate; en ese caso el dato no sirve.
func (s MarketSnapshot) HasReliableEndDate() bool {
	return !s.EndDate.IsZero() && s.EndDate.After(s.Timestamp)
}

// IsFinite devuelve true si v no es NaN ni ±Inf.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
