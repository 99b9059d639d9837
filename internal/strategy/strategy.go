package strategy

import (
	"fmt"
	"sort"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
)

// History es la vista de solo lectura del índice de snapshots que el engine
// pasa a las estrategias. El reloj lo fija el engine: todas las consultas son
// "as-of" el snapshot actual, así una estrategia no puede mirar al futuro.
type History interface {
	// HistoricalPrices devuelve hasta lookback precios del outcome, del más viejo al más reciente.
	HistoricalPrices(marketID string, lookback, outcome int) []float64
	// HistoricalLiquidity devuelve hasta lookback valores de liquidez, del más viejo al más reciente.
	HistoricalLiquidity(marketID string, lookback int) []float64
	// LatestSnapshot devuelve el snapshot más reciente del mercado hasta el tiempo actual.
	LatestSnapshot(marketID string) (domain.MarketSnapshot, bool)
}

// Strategy define el contrato de una regla de trading para el backtest.
// Las implementaciones pueden tener estado privado (cool-downs, contadores)
// pero nunca deben modificar estado compartido de la simulación.
type Strategy interface {
	// Name devuelve el identificador único de la estrategia.
	Name() string

	// ShouldOpen decide si abrir una posición sobre el snapshot dado.
	// Devuelve el índice del outcome a comprar y ok=true para entrar.
	ShouldOpen(snap domain.MarketSnapshot, h History, cfg Config) (outcome int, ok bool)

	// ShouldClose decide si cerrar un trade abierto al precio actual.
	ShouldClose(t domain.Trade, price float64, now time.Time, cfg Config) bool

	// ExitReason explica el cierre. Solo se llama después de que ShouldClose
	// devuelva true y debe usar la misma condición.
	ExitReason(t domain.Trade, price float64, now time.Time, cfg Config) string
}

// Factory crea una instancia nueva de una estrategia. Cada run del backtest
// usa instancias nuevas para que el estado privado no se comparta entre runs.
type Factory func() Strategy

// Registry mantiene las factories disponibles indexadas por nombre.
type Registry map[string]Factory

// NewRegistry crea un registry vacío.
func NewRegistry() Registry {
	return make(Registry)
}

// DefaultRegistry devuelve un registry con las estrategias de referencia.
func DefaultRegistry() Registry {
	r := NewRegistry()
	r.Register(longshotName, func() Strategy { return NewLongshot() })
	r.Register(favoriteName, func() Strategy { return NewFavorite() })
	return r
}

// Register añade una factory al registry.
func (r Registry) Register(name string, f Factory) {
	r[name] = f
}

// New crea una instancia de la estrategia por nombre.
func (r Registry) New(name string) (Strategy, error) {
	f, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("strategy.New: unknown strategy %q", name)
	}
	return f(), nil
}

// Names devuelve los nombres registrados ordenados alfabéticamente.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
