// Package recorder captura snapshots periódicos de los mercados activos y los
// persiste para alimentar backtests posteriores.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polysim/internal/ports"
)

const DefaultInterval = 5 * time.Minute

// Config contiene la configuración del recorder.
type Config struct {
	Interval  time.Duration
	Retention time.Duration // 0 = no borrar snapshots antiguos
	Once      bool          // un solo ciclo y salir
}

// Pruner borra snapshots anteriores a cutoff. Lo implementa el storage SQLite.
type Pruner interface {
	PruneSnapshots(ctx context.Context, cutoff time.Time) (int64, error)
}

// Stats recibe el resultado de cada ciclo (métricas).
type Stats interface {
	RecorderSaved(n int)
	RecorderFailed()
}

// Option configura un Recorder.
type Option func(*Recorder)

// WithPruner activa el borrado por retención.
func WithPruner(p Pruner) Option {
	return func(r *Recorder) { r.pruner = p }
}

// WithStats registra un receptor de estadísticas por ciclo.
func WithStats(s Stats) Option {
	return func(r *Recorder) { r.stats = s }
}

// WithClock sustituye time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// Recorder orquesta el loop fetch → save.
type Recorder struct {
	cfg      Config
	provider ports.MarketProvider
	store    ports.SnapshotStore
	pruner   Pruner
	stats    Stats
	now      func() time.Time
}

// New crea un Recorder con sus dependencias inyectadas.
func New(cfg Config, provider ports.MarketProvider, store ports.SnapshotStore, opts ...Option) *Recorder {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	r := &Recorder{
		cfg:      cfg,
		provider: provider,
		store:    store,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run ejecuta ciclos hasta que se cancele ctx. Un ciclo fallido se registra
// y el loop sigue; con Once el error del único ciclo se devuelve.
func (r *Recorder) Run(ctx context.Context) error {
	slog.Info("recorder starting",
		"interval", r.cfg.Interval,
		"retention", r.cfg.Retention,
		"once", r.cfg.Once,
	)

	if _, err := r.RunOnce(ctx); err != nil {
		slog.Error("record cycle failed", "err", err)
		if r.cfg.Once {
			return err
		}
	}
	if r.cfg.Once {
		return nil
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("recorder stopped")
			return nil
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				slog.Error("record cycle failed", "err", err)
			}
		}
	}
}

// RunOnce ejecuta un ciclo y devuelve cuántos snapshots se guardaron.
func (r *Recorder) RunOnce(ctx context.Context) (int, error) {
	start := r.now()

	snaps, err := r.provider.FetchSnapshots(ctx)
	if err != nil {
		r.failed()
		return 0, fmt.Errorf("recorder.RunOnce: fetch: %w", err)
	}
	if len(snaps) > 0 {
		if err := r.store.SaveSnapshots(ctx, snaps); err != nil {
			r.failed()
			return 0, fmt.Errorf("recorder.RunOnce: save: %w", err)
		}
	}
	if r.stats != nil {
		r.stats.RecorderSaved(len(snaps))
	}

	r.prune(ctx)

	slog.Info("record cycle complete",
		"snapshots", len(snaps),
		"duration", r.now().Sub(start).Round(time.Millisecond),
	)
	return len(snaps), nil
}

// prune borra lo que excede la retención. Un fallo no invalida el ciclo.
func (r *Recorder) prune(ctx context.Context) {
	if r.pruner == nil || r.cfg.Retention <= 0 {
		return
	}
	cutoff := r.now().Add(-r.cfg.Retention)
	n, err := r.pruner.PruneSnapshots(ctx, cutoff)
	if err != nil {
		slog.Warn("recorder: prune failed", "err", err)
		return
	}
	if n > 0 {
		slog.Info("recorder: pruned old snapshots", "deleted", n, "cutoff", cutoff.Format(time.RFC3339))
	}
}

func (r *Recorder) failed() {
	if r.stats != nil {
		r.stats.RecorderFailed()
	}
}
