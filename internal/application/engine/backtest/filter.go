package backtest

import (
	"log/slog"
	"sort"

	"github.com/alejandrodnm/polysim/internal/domain"
)

// Prepare validates, filters and sorts the raw snapshot collection.
// Malformed snapshots and those outside the time window or failing the
// filters are dropped; the rest are returned in ascending time order
// (stable, so equal timestamps keep their input order).
func Prepare(snaps []domain.MarketSnapshot, cfg Config) ([]domain.MarketSnapshot, int) {
	out := make([]domain.MarketSnapshot, 0, len(snaps))
	invalid, filtered := 0, 0

	for _, s := range snaps {
		if err := s.Validate(); err != nil {
			invalid++
			slog.Debug("backtest: dropping malformed snapshot",
				"market", s.MarketID,
				"ts", s.Timestamp,
				"err", err,
			)
			continue
		}
		if !inWindow(s, cfg) || !passesFilter(s, cfg.Filter) {
			filtered++
			continue
		}
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	if invalid > 0 {
		slog.Warn("backtest: malformed snapshots dropped", "count", invalid)
	}
	slog.Debug("backtest: snapshots prepared",
		"kept", len(out),
		"invalid", invalid,
		"filtered", filtered,
	)
	return out, invalid + filtered
}

func inWindow(s domain.MarketSnapshot, cfg Config) bool {
	if !cfg.StartDate.IsZero() && s.Timestamp.Before(cfg.StartDate) {
		return false
	}
	if !cfg.EndDate.IsZero() && s.Timestamp.After(cfg.EndDate) {
		return false
	}
	return true
}

// passesFilter applies volume/liquidity/days-to-end filters. Days filters
// skip snapshots whose end date is missing or not after the capture time:
// that field is unreliable in real datasets, strategies must defend themselves.
func passesFilter(s domain.MarketSnapshot, f FilterConfig) bool {
	if f.MinVolume > 0 && s.Volume24h < f.MinVolume {
		return false
	}
	if f.MinLiquidity > 0 && s.Liquidity < f.MinLiquidity {
		return false
	}
	if s.HasReliableEndDate() {
		days := s.DaysToEnd()
		if f.MinDaysToEnd > 0 && days < f.MinDaysToEnd {
			return false
		}
		if f.MaxDaysToEnd > 0 && days > f.MaxDaysToEnd {
			return false
		}
	}
	return true
}
