package ports

import (
	"context"

	"github.com/alejandrodnm/polysim/internal/domain"
)

// MarketProvider obtiene el estado actual de los mercados para el recorder.
type MarketProvider interface {
	// FetchSnapshots devuelve un snapshot por mercado activo, todos con el
	// mismo Timestamp (momento de la captura).
	// Pagina automáticamente hasta obtener todos los resultados.
	FetchSnapshots(ctx context.Context) ([]domain.MarketSnapshot, error)
}
