// Package dataset combina varias fuentes de snapshots en una sola serie
// ordenada por tiempo, lista para el backtest.
package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
	"github.com/alejandrodnm/polysim/internal/ports"
	"golang.org/x/sync/errgroup"
)

type key struct {
	market string
	ts     int64
}

// Merge carga todas las fuentes en paralelo y devuelve sus snapshots
// concatenados, ordenados por Timestamp (estable: a igual tiempo se respeta
// el orden de las fuentes) y sin pares (mercado, timestamp) repetidos.
// Si una fuente falla, se cancela el resto y se devuelve el primer error.
func Merge(ctx context.Context, from, to time.Time, sources ...ports.SnapshotSource) ([]domain.MarketSnapshot, error) {
	if len(sources) == 0 {
		return nil, nil
	}

	parts := make([][]domain.MarketSnapshot, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			snaps, err := src.LoadSnapshots(gctx, from, to)
			if err != nil {
				return fmt.Errorf("source %d: %w", i, err)
			}
			parts[i] = snaps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("dataset.Merge: %w", err)
	}

	total := 0
	for _, p := range parts {
		total += len(p)
	}
	all := make([]domain.MarketSnapshot, 0, total)
	for _, p := range parts {
		all = append(all, p...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})

	seen := make(map[key]struct{}, len(all))
	out := all[:0]
	for _, s := range all {
		k := key{market: s.MarketID, ts: s.Timestamp.UnixNano()}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}

	if dups := total - len(out); dups > 0 {
		slog.Debug("dataset: duplicates removed", "count", dups)
	}
	slog.Info("dataset: merged", "sources", len(sources), "snapshots", len(out))
	return out, nil
}
