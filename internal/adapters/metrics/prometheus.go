// Package metrics expone el progreso del backtest y del recorder en formato
// Prometheus. Cada Metrics tiene su propio registro: no toca el global.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alejandrodnm/polysim/internal/application/engine/backtest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "polysim"

// Metrics agrupa los colectores. Implementa backtest.Observer.
type Metrics struct {
	registry *prometheus.Registry

	equity        prometheus.Gauge
	drawdown      prometheus.Gauge
	openPositions prometheus.Gauge
	progress      prometheus.Gauge
	processed     prometheus.Gauge

	tradesOpened *prometheus.CounterVec // strategy
	tradesClosed *prometheus.CounterVec // strategy, status
	realizedPnL  *prometheus.CounterVec // strategy, sign
	runs         *prometheus.CounterVec // outcome

	recorderSnapshots prometheus.Counter
	recorderErrors    prometheus.Counter
}

// New crea y registra los colectores, incluidos los de runtime de Go.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.equity = m.newGauge("backtest_equity_usdc", "Current simulated equity (realized + unrealized).")
	m.drawdown = m.newGauge("backtest_drawdown_ratio", "Current drawdown from peak equity (0-1).")
	m.openPositions = m.newGauge("backtest_open_positions", "Open simulated positions.")
	m.progress = m.newGauge("backtest_progress_ratio", "Fraction of snapshots processed (0-1).")
	m.processed = m.newGauge("backtest_snapshots_processed", "Snapshots processed in the current run.")

	m.tradesOpened = m.newCounterVec("backtest_trades_opened_total", "Trades opened.", "strategy")
	m.tradesClosed = m.newCounterVec("backtest_trades_closed_total", "Trades closed.", "strategy", "status")
	m.realizedPnL = m.newCounterVec("backtest_realized_pnl_usdc_total",
		"Absolute realized P&L, split by sign.", "strategy", "sign")
	m.runs = m.newCounterVec("backtest_runs_total", "Backtest runs by outcome.", "outcome")

	m.recorderSnapshots = m.newCounter("recorder_snapshots_saved_total", "Snapshots saved by the recorder.")
	m.recorderErrors = m.newCounter("recorder_cycle_errors_total", "Recorder cycles that failed.")

	return m
}

func (m *Metrics) newGauge(name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	m.registry.MustRegister(g)
	return g
}

func (m *Metrics) newCounter(name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	m.registry.MustRegister(c)
	return c
}

func (m *Metrics) newCounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
	m.registry.MustRegister(cv)
	return cv
}

// OnEvent implementa backtest.Observer. Solo actualiza colectores: no bloquea.
func (m *Metrics) OnEvent(ev backtest.Event) {
	switch ev.Type {
	case backtest.EventStart:
		m.progress.Set(0)
		m.processed.Set(0)
	case backtest.EventSnapshotProcessed:
		m.setPortfolio(ev)
		m.progress.Set(ev.Progress)
		m.processed.Set(float64(ev.Processed))
	case backtest.EventTradeOpened:
		if ev.Trade != nil {
			m.tradesOpened.WithLabelValues(ev.Trade.StrategyID).Inc()
		}
		m.openPositions.Set(float64(ev.OpenPositions))
	case backtest.EventTradeClosed:
		if t := ev.Trade; t != nil {
			m.tradesClosed.WithLabelValues(t.StrategyID, string(t.Status)).Inc()
			if t.Profit >= 0 {
				m.realizedPnL.WithLabelValues(t.StrategyID, "profit").Add(t.Profit)
			} else {
				m.realizedPnL.WithLabelValues(t.StrategyID, "loss").Add(-t.Profit)
			}
		}
		m.openPositions.Set(float64(ev.OpenPositions))
	case backtest.EventComplete:
		m.setPortfolio(ev)
		m.progress.Set(1)
		m.processed.Set(float64(ev.Processed))
		m.runs.WithLabelValues("complete").Inc()
	case backtest.EventError:
		m.runs.WithLabelValues("error").Inc()
	}
}

func (m *Metrics) setPortfolio(ev backtest.Event) {
	m.equity.Set(ev.Equity)
	m.drawdown.Set(ev.Drawdown)
	m.openPositions.Set(float64(ev.OpenPositions))
}

// RecorderSaved cuenta los snapshots guardados en un ciclo del recorder.
func (m *Metrics) RecorderSaved(n int) {
	m.recorderSnapshots.Add(float64(n))
}

// RecorderFailed cuenta un ciclo fallido del recorder.
func (m *Metrics) RecorderFailed() {
	m.recorderErrors.Inc()
}

// Handler devuelve el handler HTTP de /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve expone /metrics en addr hasta que se cancele ctx.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics.Serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics.Serve: shutdown: %w", err)
		}
		return nil
	}
}
