package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var ts = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func validSnapshot() MarketSnapshot {
	return MarketSnapshot{
		MarketID:      "m1",
		OutcomePrices: []float64{0.3, 0.7},
		Liquidity:     1000,
		Volume24h:     50,
		EndDate:       ts.Add(48 * time.Hour),
		Timestamp:     ts,
	}
}

func TestMarketSnapshot_Validate(t *testing.T) {
	assert.NoError(t, validSnapshot().Validate())

	noEnd := validSnapshot()
	noEnd.EndDate = time.Time{}
	assert.NoError(t, noEnd.Validate(), "end date is optional")

	cases := map[string]struct {
		mutate func(*MarketSnapshot)
		want   error
	}{
		"missing id":     {func(s *MarketSnapshot) { s.MarketID = "" }, ErrMissingMarketID},
		"zero timestamp": {func(s *MarketSnapshot) { s.Timestamp = time.Time{} }, ErrMissingTimestamp},
		"no outcomes":    {func(s *MarketSnapshot) { s.OutcomePrices = nil }, ErrNoOutcomes},
		"nan price":      {func(s *MarketSnapshot) { s.OutcomePrices[0] = math.NaN() }, ErrNonFinite},
		"price above 1":  {func(s *MarketSnapshot) { s.OutcomePrices[1] = 1.01 }, ErrPriceOutOfRange},
		"negative price": {func(s *MarketSnapshot) { s.OutcomePrices[0] = -0.1 }, ErrPriceOutOfRange},
		"inf liquidity":  {func(s *MarketSnapshot) { s.Liquidity = math.Inf(1) }, ErrNonFinite},
		"after end":      {func(s *MarketSnapshot) { s.EndDate = ts.Add(-time.Minute) }, ErrSnapshotAfterEnd},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s := validSnapshot()
			s.OutcomePrices = append([]float64(nil), s.OutcomePrices...)
			tc.mutate(&s)
			assert.ErrorIs(t, s.Validate(), tc.want)
		})
	}
}

func TestMarketSnapshot_Price(t *testing.T) {
	s := validSnapshot()
	p, ok := s.Price(1)
	assert.True(t, ok)
	assert.Equal(t, 0.7, p)

	_, ok = s.Price(2)
	assert.False(t, ok)
	_, ok = s.Price(-1)
	assert.False(t, ok)
}

func TestMarketSnapshot_TimeToEnd(t *testing.T) {
	s := validSnapshot()
	assert.Equal(t, 48*time.Hour, s.TimeToEnd())
	assert.Equal(t, 48.0, s.HoursToEnd())
	assert.Equal(t, 2.0, s.DaysToEnd())
	assert.True(t, s.HasReliableEndDate())

	// datasets where the capture time equals the end date
	s.EndDate = s.Timestamp
	assert.Zero(t, s.TimeToEnd())
	assert.False(t, s.HasReliableEndDate())

	s.EndDate = time.Time{}
	assert.Zero(t, s.DaysToEnd())
	assert.False(t, s.HasReliableEndDate())
}

func TestTrade_MarkToMarket(t *testing.T) {
	tr := Trade{EntryPrice: 0.2, Size: 500, EntryValue: 100, HighestPrice: 0.2, Status: TradeOpen}

	tr.MarkToMarket(0.3)
	assert.InDelta(t, 50, tr.UnrealizedPnL, 1e-9)
	assert.Equal(t, 0.3, tr.HighestPrice)

	tr.MarkToMarket(0.25)
	assert.InDelta(t, 25, tr.UnrealizedPnL, 1e-9)
	assert.Equal(t, 0.3, tr.HighestPrice, "highest never decreases")

	tr.MarkToMarket(math.NaN())
	assert.Equal(t, 0.25, tr.CurrentPrice)

	assert.InDelta(t, 0.5, tr.ChangePct(0.3), 1e-9)
	assert.True(t, tr.IsOpen())
}

func TestTrade_HoldDuration(t *testing.T) {
	tr := Trade{EntryTime: ts}
	assert.Equal(t, time.Hour, tr.HoldDuration(ts.Add(time.Hour)))
	assert.Zero(t, tr.HoldDuration(ts.Add(-time.Hour)))

	exit := ts.Add(3 * time.Hour)
	tr.ExitTime = &exit
	assert.Equal(t, 3*time.Hour, tr.HoldDuration(ts.Add(10*time.Hour)))
}
