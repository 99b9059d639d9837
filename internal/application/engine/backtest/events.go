package backtest

import (
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
)

// EventType identifies a progress notification.
type EventType string

const (
	EventStart             EventType = "start"
	EventDataLoaded        EventType = "data_loaded"
	EventSnapshotProcessed EventType = "snapshot_processed"
	EventTradeOpened       EventType = "trade_opened"
	EventTradeClosed       EventType = "trade_closed"
	EventComplete          EventType = "complete"
	EventError             EventType = "error"
)

// Event is a fire-and-forget progress notification.
type Event struct {
	Type          EventType
	Time          time.Time // simulation time (zero for start)
	Progress      float64   // 0-1
	Processed     int
	Total         int
	Equity        float64
	Drawdown      float64
	OpenPositions int
	Trade         *domain.Trade // copy, only for trade events
	Result        *domain.BacktestResult
	Err           error
}

// Observer receives progress events. Implementations must not block.
type Observer interface {
	OnEvent(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

// OnEvent implements Observer.
func (f ObserverFunc) OnEvent(ev Event) { f(ev) }

// Observers fans events out to several observers in order.
type Observers []Observer

// OnEvent implements Observer.
func (o Observers) OnEvent(ev Event) {
	for _, obs := range o {
		obs.OnEvent(ev)
	}
}

type nopObserver struct{}

func (nopObserver) OnEvent(Event) {}
