package backtest

import (
	"time"

	"github.com/alejandrodnm/polysim/internal/strategy"
)

const (
	DefaultInitialCapital  = 10_000
	DefaultMaxPositions    = 10
	DefaultMaxPositionSize = 0.10
	DefaultBlacklistBelow  = 0.01
	DefaultProgressEvery   = 1000
)

// Config holds the settings of one backtest run.
type Config struct {
	StartDate time.Time // zero = no lower bound
	EndDate   time.Time // zero = no upper bound

	InitialCapital  float64
	MaxPositions    int     // global cap on open positions
	MaxPositionSize float64 // fraction of realized equity per trade

	Strategies map[string]strategy.Config
	Risk       RiskConfig
	Filter     FilterConfig

	// BlacklistBelow: an exit price under this marks the market as degenerate.
	BlacklistBelow float64
	// ProgressEvery emits a snapshot_processed event every N snapshots.
	ProgressEvery int
	// PeriodsPerYear annualizes the Sharpe ratio (0 = infer from the curve cadence).
	PeriodsPerYear float64
}

// RiskConfig holds portfolio-level limits. They are advisory: the loop never
// enforces them, the aggregator only reports when they were exceeded.
type RiskConfig struct {
	DailyLossLimit float64 // fraction of initial capital
	MaxDrawdown    float64 // fraction 0-1
}

// FilterConfig drops snapshots before they reach the index.
type FilterConfig struct {
	MinVolume    float64
	MinLiquidity float64
	MinDaysToEnd float64 // only applied when the snapshot has a reliable end date
	MaxDaysToEnd float64 // idem
}

// withDefaults fills zero values with sane defaults.
func (c Config) withDefaults() Config {
	if c.InitialCapital <= 0 {
		c.InitialCapital = DefaultInitialCapital
	}
	if c.MaxPositions <= 0 {
		c.MaxPositions = DefaultMaxPositions
	}
	if c.MaxPositionSize <= 0 || c.MaxPositionSize > 1 {
		c.MaxPositionSize = DefaultMaxPositionSize
	}
	if c.BlacklistBelow <= 0 {
		c.BlacklistBelow = DefaultBlacklistBelow
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = DefaultProgressEvery
	}
	return c
}

// positionFraction returns the sizing fraction for a strategy.
func (c Config) positionFraction(sc strategy.Config) float64 {
	if sc.MaxPositionSize > 0 && sc.MaxPositionSize <= 1 {
		return sc.MaxPositionSize
	}
	return c.MaxPositionSize
}
