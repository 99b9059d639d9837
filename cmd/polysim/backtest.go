package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alejandrodnm/polysim/config"
	"github.com/alejandrodnm/polysim/internal/adapters/export"
	"github.com/alejandrodnm/polysim/internal/adapters/metrics"
	"github.com/alejandrodnm/polysim/internal/adapters/notify"
	"github.com/alejandrodnm/polysim/internal/adapters/snapshotfile"
	"github.com/alejandrodnm/polysim/internal/adapters/storage"
	"github.com/alejandrodnm/polysim/internal/application/dataset"
	"github.com/alejandrodnm/polysim/internal/application/engine/backtest"
	"github.com/alejandrodnm/polysim/internal/ports"
	"github.com/alejandrodnm/polysim/internal/strategy"
)

func runBacktest(ctx context.Context, cfg *config.Config, opts options, m *metrics.Metrics) error {
	btCfg, err := cfg.BacktestConfig()
	if err != nil {
		return err
	}

	var observers backtest.Observers
	if opts.progress {
		observers = append(observers, notify.NewProgress(opts.trades))
	}
	if m != nil {
		observers = append(observers, m)
	}

	engine, err := backtest.New(btCfg, strategy.DefaultRegistry(), backtest.WithObserver(observers))
	if err != nil {
		return err
	}

	// SQLite solo se abre si hace falta: como fuente o para guardar el run.
	var (
		store   *storage.SQLiteStorage
		results ports.ResultStore
	)
	if opts.data == "" || opts.save {
		store, err = storage.NewSQLiteStorage(cfg.Storage.DSN)
		if err != nil {
			return fmt.Errorf("open storage %q: %w", cfg.Storage.DSN, err)
		}
		defer store.Close()
		results = store
	}

	var sources []ports.SnapshotSource
	if opts.data != "" {
		for _, path := range strings.Split(opts.data, ",") {
			if path = strings.TrimSpace(path); path != "" {
				sources = append(sources, snapshotfile.New(path))
			}
		}
	} else {
		sources = append(sources, store)
	}

	snaps, err := dataset.Merge(ctx, btCfg.StartDate, btCfg.EndDate, sources...)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		slog.Warn("no snapshots in range, record some first with -record")
	}

	res, err := engine.Run(snaps)
	if err != nil {
		return err
	}

	var notifier ports.Notifier = notify.NewConsole(opts.verbose)
	if err := notifier.Notify(*res); err != nil {
		slog.Warn("notifier error", "err", err)
	}

	if opts.csvDir != "" {
		paths, err := export.WriteResult(opts.csvDir, *res)
		if err != nil {
			return err
		}
		slog.Info("csv written", "files", paths)
	}

	if opts.save {
		if err := results.SaveResult(ctx, *res); err != nil {
			return err
		}
		slog.Info("backtest saved", "run_id", res.RunID, "dsn", cfg.Storage.DSN)
	}
	return nil
}

func listRuns(ctx context.Context, cfg *config.Config, limit int) error {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("open storage %q: %w", cfg.Storage.DSN, err)
	}
	defer store.Close()

	var results ports.ResultStore = store
	runs, err := results.GetRuns(ctx, limit)
	if err != nil {
		return err
	}
	notify.NewConsole(false).PrintRuns(runs)
	return nil
}
