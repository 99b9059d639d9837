package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
)

// SnapshotSource entrega snapshots históricos al backtest.
type SnapshotSource interface {
	// LoadSnapshots devuelve los snapshots con Timestamp en [from, to].
	// Un time.Time vacío deja ese extremo abierto.
	LoadSnapshots(ctx context.Context, from, to time.Time) ([]domain.MarketSnapshot, error)
}

// SnapshotStore persiste los snapshots capturados por el recorder.
type SnapshotStore interface {
	SnapshotSource

	// SaveSnapshots persiste un lote de snapshots en una sola transacción.
	SaveSnapshots(ctx context.Context, snaps []domain.MarketSnapshot) error

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}

// ResultStore persiste el resultado de cada ejecución del backtest.
type ResultStore interface {
	// SaveResult guarda el resumen, los trades y la curva de equity.
	SaveResult(ctx context.Context, res domain.BacktestResult) error

	// GetRuns devuelve los resúmenes guardados, el más reciente primero.
	GetRuns(ctx context.Context, limit int) ([]domain.RunSummary, error)
}
