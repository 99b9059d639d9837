package storage

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/polysim/internal/domain"
)

// runRow es la fila de `backtest_runs`.
type runRow struct {
	RunID          string  `db:"run_id"`
	CreatedMs      int64   `db:"created_ms"`
	StartMs        int64   `db:"start_ms"`
	EndMs          int64   `db:"end_ms"`
	Snapshots      int     `db:"snapshots"`
	Markets        int     `db:"markets"`
	InitialCapital float64 `db:"initial_capital"`
	FinalCapital   float64 `db:"final_capital"`
	TotalPnL       float64 `db:"total_pnl"`
	TotalPnLPct    float64 `db:"total_pnl_pct"`
	PeakEquity     float64 `db:"peak_equity"`
	MaxDrawdown    float64 `db:"max_drawdown"`
	TotalTrades    int     `db:"total_trades"`
	WinningTrades  int     `db:"winning_trades"`
	LosingTrades   int     `db:"losing_trades"`
	WinRate        float64 `db:"win_rate"`
	ProfitFactor   float64 `db:"profit_factor"`
	Sharpe         float64 `db:"sharpe"`
	ForcedCloses   int     `db:"forced_closes"`
}

// tradeRow es la fila de `backtest_trades`.
type tradeRow struct {
	ID         string  `db:"id"`
	RunID      string  `db:"run_id"`
	MarketID   string  `db:"market_id"`
	Question   string  `db:"question"`
	Strategy   string  `db:"strategy"`
	Outcome    int     `db:"outcome"`
	EntryMs    int64   `db:"entry_ms"`
	EntryPrice float64 `db:"entry_price"`
	Size       float64 `db:"size"`
	EntryValue float64 `db:"entry_value"`
	ExitMs     int64   `db:"exit_ms"`
	ExitPrice  float64 `db:"exit_price"`
	ExitValue  float64 `db:"exit_value"`
	Profit     float64 `db:"profit"`
	ProfitPct  float64 `db:"profit_pct"`
	Status     string  `db:"status"`
	ExitReason string  `db:"exit_reason"`
	Forced     bool    `db:"forced"`
}

// equityRow es la fila de `backtest_equity`.
type equityRow struct {
	RunID         string  `db:"run_id"`
	TsMs          int64   `db:"ts_ms"`
	Equity        float64 `db:"equity"`
	Realized      float64 `db:"realized"`
	OpenPositions int     `db:"open_positions"`
}

// SaveResult implementa ports.ResultStore: resumen, trades y curva de equity
// en una sola transacción.
func (s *SQLiteStorage) SaveResult(ctx context.Context, res domain.BacktestResult) error {
	if res.RunID == "" {
		return fmt.Errorf("storage.SaveResult: empty run id")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveResult: begin tx: %w", err)
	}
	defer tx.Rollback()

	run := runRow{
		RunID:          res.RunID,
		CreatedMs:      s.now().UnixMilli(),
		StartMs:        toMs(res.StartDate),
		EndMs:          toMs(res.EndDate),
		Snapshots:      res.SnapshotsProcessed,
		Markets:        res.Markets,
		InitialCapital: finite(res.InitialCapital),
		FinalCapital:   finite(res.FinalCapital),
		TotalPnL:       finite(res.TotalPnL),
		TotalPnLPct:    finite(res.TotalPnLPct),
		PeakEquity:     finite(res.PeakEquity),
		MaxDrawdown:    finite(res.MaxDrawdown),
		TotalTrades:    res.TotalTrades,
		WinningTrades:  res.WinningTrades,
		LosingTrades:   res.LosingTrades,
		WinRate:        finite(res.WinRate),
		ProfitFactor:   finite(res.ProfitFactor),
		Sharpe:         finite(res.SharpeRatio),
		ForcedCloses:   res.ForcedCloses,
	}
	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO backtest_runs
			(run_id, created_ms, start_ms, end_ms, snapshots, markets, initial_capital,
			 final_capital, total_pnl, total_pnl_pct, peak_equity, max_drawdown,
			 total_trades, winning_trades, losing_trades, win_rate, profit_factor,
			 sharpe, forced_closes)
		VALUES
			(:run_id, :created_ms, :start_ms, :end_ms, :snapshots, :markets, :initial_capital,
			 :final_capital, :total_pnl, :total_pnl_pct, :peak_equity, :max_drawdown,
			 :total_trades, :winning_trades, :losing_trades, :win_rate, :profit_factor,
			 :sharpe, :forced_closes)
	`, run); err != nil {
		return fmt.Errorf("storage.SaveResult: insert run: %w", err)
	}

	tradeStmt, err := tx.PrepareNamedContext(ctx, `
		INSERT INTO backtest_trades
			(id, run_id, market_id, question, strategy, outcome, entry_ms, entry_price,
			 size, entry_value, exit_ms, exit_price, exit_value, profit, profit_pct,
			 status, exit_reason, forced)
		VALUES
			(:id, :run_id, :market_id, :question, :strategy, :outcome, :entry_ms, :entry_price,
			 :size, :entry_value, :exit_ms, :exit_price, :exit_value, :profit, :profit_pct,
			 :status, :exit_reason, :forced)
	`)
	if err != nil {
		return fmt.Errorf("storage.SaveResult: prepare trades: %w", err)
	}
	defer tradeStmt.Close()

	for _, t := range res.Trades {
		row := tradeRow{
			ID:         t.ID,
			RunID:      res.RunID,
			MarketID:   t.MarketID,
			Question:   t.Question,
			Strategy:   t.StrategyID,
			Outcome:    t.Outcome,
			EntryMs:    toMs(t.EntryTime),
			EntryPrice: finite(t.EntryPrice),
			Size:       finite(t.Size),
			EntryValue: finite(t.EntryValue),
			ExitPrice:  finite(t.ExitPrice),
			ExitValue:  finite(t.ExitValue),
			Profit:     finite(t.Profit),
			ProfitPct:  finite(t.ProfitPct),
			Status:     string(t.Status),
			ExitReason: t.ExitReason,
			Forced:     t.Forced,
		}
		if t.ExitTime != nil {
			row.ExitMs = toMs(*t.ExitTime)
		}
		if _, err := tradeStmt.ExecContext(ctx, row); err != nil {
			return fmt.Errorf("storage.SaveResult: insert trade %s: %w", t.ID, err)
		}
	}

	eqStmt, err := tx.PrepareNamedContext(ctx, `
		INSERT INTO backtest_equity (run_id, ts_ms, equity, realized, open_positions)
		VALUES (:run_id, :ts_ms, :equity, :realized, :open_positions)
	`)
	if err != nil {
		return fmt.Errorf("storage.SaveResult: prepare equity: %w", err)
	}
	defer eqStmt.Close()

	for _, p := range res.EquityCurve {
		if _, err := eqStmt.ExecContext(ctx, equityRow{
			RunID:         res.RunID,
			TsMs:          toMs(p.Timestamp),
			Equity:        finite(p.Equity),
			Realized:      finite(p.Realized),
			OpenPositions: p.OpenPositions,
		}); err != nil {
			return fmt.Errorf("storage.SaveResult: insert equity point: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveResult: commit: %w", err)
	}
	return nil
}

// GetRuns devuelve los últimos runs guardados, el más reciente primero.
func (s *SQLiteStorage) GetRuns(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM backtest_runs ORDER BY created_ms DESC, rowid DESC LIMIT ?
	`, limit); err != nil {
		return nil, fmt.Errorf("storage.GetRuns: query: %w", err)
	}

	out := make([]domain.RunSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.RunSummary{
			RunID:          r.RunID,
			CreatedAt:      fromMs(r.CreatedMs),
			StartDate:      fromMs(r.StartMs),
			EndDate:        fromMs(r.EndMs),
			InitialCapital: r.InitialCapital,
			FinalCapital:   r.FinalCapital,
			TotalPnLPct:    r.TotalPnLPct,
			MaxDrawdown:    r.MaxDrawdown,
			TotalTrades:    r.TotalTrades,
			WinRate:        r.WinRate,
			SharpeRatio:    r.Sharpe,
		})
	}
	return out, nil
}

// GetTrades devuelve los trades de un run en orden de entrada.
func (s *SQLiteStorage) GetTrades(ctx context.Context, runID string) ([]domain.Trade, error) {
	var rows []tradeRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM backtest_trades WHERE run_id = ? ORDER BY entry_ms ASC, rowid ASC
	`, runID); err != nil {
		return nil, fmt.Errorf("storage.GetTrades: query: %w", err)
	}

	trades := make([]domain.Trade, 0, len(rows))
	for _, r := range rows {
		t := domain.Trade{
			ID:         r.ID,
			MarketID:   r.MarketID,
			Question:   r.Question,
			StrategyID: r.Strategy,
			Outcome:    r.Outcome,
			EntryTime:  fromMs(r.EntryMs),
			EntryPrice: r.EntryPrice,
			Size:       r.Size,
			EntryValue: r.EntryValue,
			ExitPrice:  r.ExitPrice,
			ExitValue:  r.ExitValue,
			Profit:     r.Profit,
			ProfitPct:  r.ProfitPct,
			Status:     domain.TradeStatus(r.Status),
			ExitReason: r.ExitReason,
			Forced:     r.Forced,
		}
		if r.ExitMs != 0 {
			exit := fromMs(r.ExitMs)
			t.ExitTime = &exit
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// GetEquityCurve devuelve la curva de equity de un run.
func (s *SQLiteStorage) GetEquityCurve(ctx context.Context, runID string) ([]domain.EquityPoint, error) {
	var rows []equityRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT run_id, ts_ms, equity, realized, open_positions
		FROM backtest_equity WHERE run_id = ? ORDER BY ts_ms ASC
	`, runID); err != nil {
		return nil, fmt.Errorf("storage.GetEquityCurve: query: %w", err)
	}

	curve := make([]domain.EquityPoint, len(rows))
	for i, r := range rows {
		curve[i] = domain.EquityPoint{
			Timestamp:     fromMs(r.TsMs),
			Equity:        r.Equity,
			Realized:      r.Realized,
			OpenPositions: r.OpenPositions,
		}
	}
	return curve, nil
}
