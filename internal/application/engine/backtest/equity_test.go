package backtest

import (
	"math"
	"testing"

	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/alejandrodnm/polysim/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEquity_RealizeRejectsNonFinite(t *testing.T) {
	e := NewEquity(1000)
	assert.ErrorIs(t, e.Realize(math.NaN()), domain.ErrNonFinite)
	assert.ErrorIs(t, e.Realize(math.Inf(-1)), domain.ErrNonFinite)
	require.NoError(t, e.Realize(250))
	assert.Equal(t, 1250.0, e.SizingCapital())
}

func TestEquity_UpdateDrawdown(t *testing.T) {
	ix := NewIndex([]domain.MarketSnapshot{
		snap("m1", 0, 0.5),
		snap("m1", 10, 0.25),
		snap("m2", 10, 0.5),
	})
	l := NewLedger(10, 0.01)
	tr, err := l.Open(snap("m1", 0, 0.5), "s", 0, strategy.Config{}, 0.5, 1000)
	require.NoError(t, err)

	e := NewEquity(1000)
	e.Update(l.OpenTrades(), snap("m1", 0, 0.5), ix)
	assert.InDelta(t, 1000, e.Current(), 1e-9)

	// priced from the index when the current snapshot is another market
	e.Update(l.OpenTrades(), snap("m2", 10, 0.5), ix)
	assert.InDelta(t, 750, e.Current(), 1e-9)
	assert.InDelta(t, 0.25, e.Drawdown(), 1e-9)
	assert.InDelta(t, 0.25, e.MaxDrawdown(), 1e-9)
	assert.InDelta(t, -250, tr.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 1000, e.SizingCapital(), 1e-9, "unrealized never sizes")
	assert.Equal(t, 1000.0, e.Peak())
}

func TestEquity_MissingPriceIsWorthless(t *testing.T) {
	ix := NewIndex(nil)
	l := NewLedger(10, 0.01)
	_, err := l.Open(snap("m1", 0, 0.5), "s", 0, strategy.Config{}, 0.2, 1000)
	require.NoError(t, err)

	e := NewEquity(1000)
	e.Update(l.OpenTrades(), snap("other", 0, 0.5), ix)
	assert.InDelta(t, 800, e.Current(), 1e-9)
}

func TestEquity_FlooredAtZero(t *testing.T) {
	e := NewEquity(100)
	require.NoError(t, e.Realize(-500))
	e.Update(nil, domain.MarketSnapshot{}, NewIndex(nil))
	assert.Equal(t, 0.0, e.Current())
	assert.Equal(t, 0.0, e.SizingCapital())
	assert.Equal(t, 1.0, e.MaxDrawdown())
}
