package storage

// sqlite.go: snapshots del recorder y resultados del backtest.
//
// Estrategia:
//   - `snapshots`: una fila por (mercado, captura). UNIQUE evita duplicados si
//     el recorder reintenta un ciclo. Los precios se guardan como array JSON.
//   - `backtest_runs`: una fila por ejecución con el resumen.
//   - `backtest_trades` y `backtest_equity`: detalle de cada run.
//   - Los tiempos se guardan en milisegundos Unix (INTEGER): ordenan y filtran
//     sin depender del formato de texto del driver.
//   - Prune explícito de snapshots antiguos (retención configurable).

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    market_id      TEXT    NOT NULL,
    question       TEXT    NOT NULL DEFAULT '',
    outcome_prices TEXT    NOT NULL,
    liquidity      REAL    NOT NULL DEFAULT 0,
    volume_24h     REAL    NOT NULL DEFAULT 0,
    end_ms         INTEGER NOT NULL DEFAULT 0,
    ts_ms          INTEGER NOT NULL,
    UNIQUE (market_id, ts_ms)
);

CREATE TABLE IF NOT EXISTS backtest_runs (
    run_id          TEXT PRIMARY KEY,
    created_ms      INTEGER NOT NULL,
    start_ms        INTEGER NOT NULL DEFAULT 0,
    end_ms          INTEGER NOT NULL DEFAULT 0,
    snapshots       INTEGER NOT NULL DEFAULT 0,
    markets         INTEGER NOT NULL DEFAULT 0,
    initial_capital REAL    NOT NULL,
    final_capital   REAL    NOT NULL,
    total_pnl       REAL    NOT NULL DEFAULT 0,
    total_pnl_pct   REAL    NOT NULL DEFAULT 0,
    peak_equity     REAL    NOT NULL DEFAULT 0,
    max_drawdown    REAL    NOT NULL DEFAULT 0,
    total_trades    INTEGER NOT NULL DEFAULT 0,
    winning_trades  INTEGER NOT NULL DEFAULT 0,
    losing_trades   INTEGER NOT NULL DEFAULT 0,
    win_rate        REAL    NOT NULL DEFAULT 0,
    profit_factor   REAL    NOT NULL DEFAULT 0,
    sharpe          REAL    NOT NULL DEFAULT 0,
    forced_closes   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS backtest_trades (
    id          TEXT PRIMARY KEY,
    run_id      TEXT    NOT NULL REFERENCES backtest_runs(run_id),
    market_id   TEXT    NOT NULL,
    question    TEXT    NOT NULL DEFAULT '',
    strategy    TEXT    NOT NULL,
    outcome     INTEGER NOT NULL,
    entry_ms    INTEGER NOT NULL,
    entry_price REAL    NOT NULL,
    size        REAL    NOT NULL,
    entry_value REAL    NOT NULL,
    exit_ms     INTEGER NOT NULL DEFAULT 0,
    exit_price  REAL    NOT NULL DEFAULT 0,
    exit_value  REAL    NOT NULL DEFAULT 0,
    profit      REAL    NOT NULL DEFAULT 0,
    profit_pct  REAL    NOT NULL DEFAULT 0,
    status      TEXT    NOT NULL,
    exit_reason TEXT    NOT NULL DEFAULT '',
    forced      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS backtest_equity (
    run_id         TEXT    NOT NULL REFERENCES backtest_runs(run_id),
    ts_ms          INTEGER NOT NULL,
    equity         REAL    NOT NULL,
    realized       REAL    NOT NULL,
    open_positions INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_snapshots_ts   ON snapshots(ts_ms);
CREATE INDEX IF NOT EXISTS idx_trades_run     ON backtest_trades(run_id);
CREATE INDEX IF NOT EXISTS idx_equity_run     ON backtest_equity(run_id, ts_ms);
CREATE INDEX IF NOT EXISTS idx_runs_created   ON backtest_runs(created_ms DESC);
`

// SQLiteStorage implementa ports.SnapshotStore y ports.ResultStore usando
// SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}
	return &SQLiteStorage{db: db, now: time.Now}, nil
}

// snapshotRow es la fila de `snapshots`.
type snapshotRow struct {
	MarketID      string  `db:"market_id"`
	Question      string  `db:"question"`
	OutcomePrices string  `db:"outcome_prices"`
	Liquidity     float64 `db:"liquidity"`
	Volume24h     float64 `db:"volume_24h"`
	EndMs         int64   `db:"end_ms"`
	TsMs          int64   `db:"ts_ms"`
}

// SaveSnapshots persiste un lote de snapshots en una sola transacción.
// Los duplicados (mismo mercado y captura) se ignoran.
func (s *SQLiteStorage) SaveSnapshots(ctx context.Context, snaps []domain.MarketSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveSnapshots: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, `
		INSERT INTO snapshots
			(market_id, question, outcome_prices, liquidity, volume_24h, end_ms, ts_ms)
		VALUES
			(:market_id, :question, :outcome_prices, :liquidity, :volume_24h, :end_ms, :ts_ms)
		ON CONFLICT(market_id, ts_ms) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("storage.SaveSnapshots: prepare: %w", err)
	}
	defer stmt.Close()

	for _, snap := range snaps {
		prices, err := json.Marshal(snap.OutcomePrices)
		if err != nil {
			return fmt.Errorf("storage.SaveSnapshots: marshal prices %s: %w", snap.MarketID, err)
		}
		row := snapshotRow{
			MarketID:      snap.MarketID,
			Question:      snap.Question,
			OutcomePrices: string(prices),
			Liquidity:     finite(snap.Liquidity),
			Volume24h:     finite(snap.Volume24h),
			EndMs:         toMs(snap.EndDate),
			TsMs:          toMs(snap.Timestamp),
		}
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			return fmt.Errorf("storage.SaveSnapshots: insert %s: %w", snap.MarketID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveSnapshots: commit: %w", err)
	}
	return nil
}

// LoadSnapshots implementa ports.SnapshotSource. Devuelve los snapshots con
// Timestamp en [from, to] ordenados por tiempo. Extremos vacíos = sin límite.
// Filas con precios ilegibles se saltan.
func (s *SQLiteStorage) LoadSnapshots(ctx context.Context, from, to time.Time) ([]domain.MarketSnapshot, error) {
	lo, hi := int64(0), int64(1<<62)
	if !from.IsZero() {
		lo = from.UnixMilli()
	}
	if !to.IsZero() {
		hi = to.UnixMilli()
	}

	var rows []snapshotRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT market_id, question, outcome_prices, liquidity, volume_24h, end_ms, ts_ms
		FROM snapshots
		WHERE ts_ms BETWEEN ? AND ?
		ORDER BY ts_ms ASC, rowid ASC
	`, lo, hi); err != nil {
		return nil, fmt.Errorf("storage.LoadSnapshots: query: %w", err)
	}

	snaps := make([]domain.MarketSnapshot, 0, len(rows))
	for _, r := range rows {
		var prices []float64
		if err := json.Unmarshal([]byte(r.OutcomePrices), &prices); err != nil {
			slog.Warn("storage: skipping snapshot with unreadable prices",
				"market", r.MarketID,
				"ts_ms", r.TsMs,
				"err", err,
			)
			continue
		}
		snaps = append(snaps, domain.MarketSnapshot{
			MarketID:      r.MarketID,
			Question:      r.Question,
			OutcomePrices: prices,
			Liquidity:     r.Liquidity,
			Volume24h:     r.Volume24h,
			EndDate:       fromMs(r.EndMs),
			Timestamp:     fromMs(r.TsMs),
		})
	}
	return snaps, nil
}

// CountSnapshots devuelve el número de snapshots guardados.
func (s *SQLiteStorage) CountSnapshots(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM snapshots`); err != nil {
		return 0, fmt.Errorf("storage.CountSnapshots: %w", err)
	}
	return n, nil
}

// PruneSnapshots elimina los snapshots capturados antes de cutoff para
// mantener la DB ligera. Devuelve cuántos se borraron.
func (s *SQLiteStorage) PruneSnapshots(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE ts_ms < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("storage.PruneSnapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

func toMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// finite convierte NaN/Inf en 0: SQLite no los representa de forma portable.
func finite(v float64) float64 {
	if !domain.IsFinite(v) {
		return 0
	}
	return v
}
