package backtest

import (
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/alejandrodnm/polysim/internal/strategy"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return t0.Add(time.Duration(minutes) * time.Minute)
}

// snap builds a binary market snapshot with yes price p.
func snap(market string, minutes int, p float64) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		MarketID:      market,
		Question:      "Will " + market + " happen?",
		OutcomePrices: []float64{p, 1 - p},
		Liquidity:     5000,
		Volume24h:     1000,
		EndDate:       t0.Add(30 * 24 * time.Hour),
		Timestamp:     at(minutes),
	}
}

// scripted buys outcome 0 at or below openBelow and sells at or above
// closeAbove, or at or below closeBelow.
type scripted struct {
	name       string
	openBelow  float64
	closeAbove float64
	closeBelow float64
	onOpen     func(snap domain.MarketSnapshot, h strategy.History)
}

func (s *scripted) Name() string { return s.name }

func (s *scripted) ShouldOpen(snap domain.MarketSnapshot, h strategy.History, _ strategy.Config) (int, bool) {
	if s.onOpen != nil {
		s.onOpen(snap, h)
	}
	return 0, snap.OutcomePrices[0] <= s.openBelow
}

func (s *scripted) ShouldClose(_ domain.Trade, price float64, _ time.Time, _ strategy.Config) bool {
	return (s.closeAbove > 0 && price >= s.closeAbove) || (s.closeBelow > 0 && price <= s.closeBelow)
}

func (s *scripted) ExitReason(_ domain.Trade, price float64, _ time.Time, _ strategy.Config) string {
	if s.closeAbove > 0 && price >= s.closeAbove {
		return "take profit"
	}
	return "stop loss"
}

// panicky blows up on the first entry check.
type panicky struct{}

func (panicky) Name() string { return "panicky" }
func (panicky) ShouldOpen(domain.MarketSnapshot, strategy.History, strategy.Config) (int, bool) {
	panic("boom")
}
func (panicky) ShouldClose(domain.Trade, float64, time.Time, strategy.Config) bool { return false }
func (panicky) ExitReason(domain.Trade, float64, time.Time, strategy.Config) string {
	return ""
}

func registryWith(strategies ...*scripted) strategy.Registry {
	reg := strategy.NewRegistry()
	for _, s := range strategies {
		proto := *s
		reg.Register(s.name, func() strategy.Strategy {
			cp := proto
			return &cp
		})
	}
	return reg
}

func enabled(names ...string) map[string]strategy.Config {
	out := make(map[string]strategy.Config, len(names))
	for _, n := range names {
		out[n] = strategy.Config{Enabled: true}
	}
	return out
}

// recorder collects every event.
type recorder struct {
	events []Event
}

func (r *recorder) OnEvent(ev Event) { r.events = append(r.events, ev) }

func (r *recorder) types() []EventType {
	out := make([]EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}
