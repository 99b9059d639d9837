package strategy

import "time"

// Config es la sub-configuración de una estrategia dentro de un backtest.
type Config struct {
	Enabled         bool
	MaxPositions    int     // cuota propia de posiciones abiertas (0 = sin cuota propia)
	MaxPositionSize float64 // fracción del equity realizado por trade (0 = usar la global)
	StopLoss        float64 // fracción, ej. 0.5 = cerrar si el precio cae 50%
	TakeProfit      float64 // fracción, ej. 1.0 = cerrar si el precio sube 100%
	Cooldown        time.Duration
	Params          map[string]float64 // parámetros propios de cada estrategia
}

// Param devuelve el parámetro name o def si no está definido.
func (c Config) Param(name string, def float64) float64 {
	if v, ok := c.Params[name]; ok {
		return v
	}
	return def
}
