package ports

import (
	"github.com/alejandrodnm/polysim/internal/domain"
)

// Notifier presenta el resultado de un backtest al usuario.
type Notifier interface {
	// Notify muestra el resultado. En la implementación de consola,
	// imprime tablas formateadas.
	Notify(res domain.BacktestResult) error
}
