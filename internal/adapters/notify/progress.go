package notify

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/alejandrodnm/polysim/internal/application/engine/backtest"
)

// Progress escribe una línea compacta por evento del backtest.
// Implementa backtest.Observer.
type Progress struct {
	mu     sync.Mutex
	out    io.Writer
	trades bool // imprime también aperturas y cierres
}

// NewProgress crea un observer que escribe a stderr.
func NewProgress(trades bool) *Progress {
	return &Progress{out: os.Stderr, trades: trades}
}

// NewProgressWriter crea un observer sobre w.
func NewProgressWriter(w io.Writer, trades bool) *Progress {
	return &Progress{out: w, trades: trades}
}

// OnEvent implementa backtest.Observer.
func (p *Progress) OnEvent(ev backtest.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Type {
	case backtest.EventStart:
		fmt.Fprintln(p.out, "  [backtest] starting")
	case backtest.EventDataLoaded:
		fmt.Fprintf(p.out, "  [backtest] %d snapshots loaded\n", ev.Total)
	case backtest.EventSnapshotProcessed:
		fmt.Fprintf(p.out, "  [%5.1f%%] %s  equity=$%.2f  dd=%.1f%%  open=%d\n",
			ev.Progress*100, ev.Time.UTC().Format("2006-01-02 15:04"),
			ev.Equity, ev.Drawdown*100, ev.OpenPositions)
	case backtest.EventTradeOpened:
		if p.trades && ev.Trade != nil {
			t := ev.Trade
			fmt.Fprintf(p.out, "  + %-10s %s out=%d @ %.3f ($%.2f)\n",
				t.StrategyID, marketLabel(*t), t.Outcome, t.EntryPrice, t.EntryValue)
		}
	case backtest.EventTradeClosed:
		if p.trades && ev.Trade != nil {
			t := ev.Trade
			fmt.Fprintf(p.out, "  - %-10s %s @ %.3f  $%+.2f  %s\n",
				t.StrategyID, marketLabel(*t), t.ExitPrice, t.Profit, truncate(t.ExitReason, 30))
		}
	case backtest.EventComplete:
		fmt.Fprintf(p.out, "  [backtest] done: %d snapshots, equity=$%.2f\n", ev.Processed, ev.Equity)
	case backtest.EventError:
		fmt.Fprintf(p.out, "  [backtest] error: %v\n", ev.Err)
	}
}
