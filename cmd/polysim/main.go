package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/polysim/config"
	"github.com/alejandrodnm/polysim/internal/adapters/metrics"
)

type options struct {
	configPath  string
	record      bool
	once        bool
	data        string
	from, to    string
	csvDir      string
	save        bool
	runs        int
	verbose     bool
	logFormat   string
	progress    bool
	trades      bool
	metricsAddr string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "config/config.yaml", "path to config file")
	flag.BoolVar(&opts.record, "record", false, "record market snapshots instead of running a backtest")
	flag.BoolVar(&opts.once, "once", false, "record a single cycle and exit")
	flag.StringVar(&opts.data, "data", "", "comma-separated JSON/JSONL snapshot files (default: SQLite)")
	flag.StringVar(&opts.from, "from", "", "backtest start date YYYY-MM-DD or RFC3339 (overrides config)")
	flag.StringVar(&opts.to, "to", "", "backtest end date YYYY-MM-DD or RFC3339 (overrides config)")
	flag.StringVar(&opts.csvDir, "csv", "", "write trades.csv and equity.csv to this directory")
	flag.BoolVar(&opts.save, "save", false, "persist the backtest result to SQLite")
	flag.IntVar(&opts.runs, "runs", 0, "list the N most recent saved runs and exit")
	flag.BoolVar(&opts.verbose, "verbose", false, "set log level to debug and list every trade")
	flag.StringVar(&opts.logFormat, "format", "", "log format: text|json (overrides config)")
	flag.BoolVar(&opts.progress, "progress", false, "print progress lines while the backtest runs")
	flag.BoolVar(&opts.trades, "progress-trades", false, "include opened/closed trades in progress output")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus /metrics on this address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", opts.configPath)
		os.Exit(1)
	}

	if opts.verbose {
		cfg.Log.Level = "debug"
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if opts.from != "" {
		cfg.Backtest.StartDate = opts.from
	}
	if opts.to != "" {
		cfg.Backtest.EndDate = opts.to
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	setupLogger(cfg.Log)

	slog.Info("polysim starting",
		"config", opts.configPath,
		"record", opts.record,
		"once", opts.once,
		"data", opts.data,
		"metrics", cfg.Metrics.Addr,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var m *metrics.Metrics
	if cfg.Metrics.Addr != "" {
		m = metrics.New()
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Addr); err != nil {
				slog.Error("metrics server failed", "err", err)
			}
		}()
	}

	switch {
	case opts.record:
		err = runRecorder(ctx, cfg, opts, m)
	case opts.runs > 0:
		err = listRuns(ctx, cfg, opts.runs)
	default:
		err = runBacktest(ctx, cfg, opts, m)
	}
	if err != nil {
		slog.Error("polysim exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("polysim stopped cleanly")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
