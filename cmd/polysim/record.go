package main

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/polysim/config"
	"github.com/alejandrodnm/polysim/internal/adapters/metrics"
	"github.com/alejandrodnm/polysim/internal/adapters/polymarket"
	"github.com/alejandrodnm/polysim/internal/adapters/storage"
	"github.com/alejandrodnm/polysim/internal/application/recorder"
)

func runRecorder(ctx context.Context, cfg *config.Config, opts options, m *metrics.Metrics) error {
	client := polymarket.NewClient(cfg.API.GammaBase,
		polymarket.WithPageSize(cfg.Recorder.PageSize),
		polymarket.WithMaxPages(cfg.Recorder.MaxPages),
		polymarket.WithActiveOnly(cfg.Recorder.OnlyActive),
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("open storage %q: %w", cfg.Storage.DSN, err)
	}
	defer store.Close()

	recOpts := []recorder.Option{recorder.WithPruner(store)}
	if m != nil {
		recOpts = append(recOpts, recorder.WithStats(m))
	}

	rec := recorder.New(cfg.RecorderConfig(opts.once), client, store, recOpts...)
	return rec.Run(ctx)
}
