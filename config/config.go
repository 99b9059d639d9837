package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alejandrodnm/polysim/internal/application/engine/backtest"
	"github.com/alejandrodnm/polysim/internal/application/recorder"
	"github.com/alejandrodnm/polysim/internal/strategy"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa de polysim.
type Config struct {
	Backtest   BacktestConfig            `yaml:"backtest"`
	Strategies map[string]StrategyConfig `yaml:"strategies"`
	Risk       RiskConfig                `yaml:"risk"`
	Filters    FilterConfig              `yaml:"filters"`
	Recorder   RecorderConfig            `yaml:"recorder"`
	API        APIConfig                 `yaml:"api"`
	Storage    StorageConfig             `yaml:"storage"`
	Metrics    MetricsConfig             `yaml:"metrics"`
	Log        LogConfig                 `yaml:"log"`
}

// BacktestConfig controla la simulación.
type BacktestConfig struct {
	StartDate       string  `yaml:"start_date"` // "2006-01-02" o RFC3339, vacío = sin límite
	EndDate         string  `yaml:"end_date"`   // una fecha sin hora incluye el día entero
	InitialCapital  float64 `yaml:"initial_capital"`
	MaxPositions    int     `yaml:"max_positions"`
	MaxPositionSize float64 `yaml:"max_position_size"` // fracción del equity realizado
	BlacklistBelow  float64 `yaml:"blacklist_below"`
	ProgressEvery   int     `yaml:"progress_every"`
	PeriodsPerYear  float64 `yaml:"periods_per_year"` // 0 = inferir de la curva
}

// StrategyConfig es la sección de una estrategia.
type StrategyConfig struct {
	Enabled         bool               `yaml:"enabled"`
	MaxPositions    int                `yaml:"max_positions"`
	MaxPositionSize float64            `yaml:"max_position_size"`
	StopLoss        float64            `yaml:"stop_loss"`
	TakeProfit      float64            `yaml:"take_profit"`
	CooldownMinutes float64            `yaml:"cooldown_minutes"`
	Params          map[string]float64 `yaml:"params"`
}

// RiskConfig son límites informativos: se reportan, no se aplican.
type RiskConfig struct {
	DailyLossLimit float64 `yaml:"daily_loss_limit"`
	MaxDrawdown    float64 `yaml:"max_drawdown"`
}

// FilterConfig descarta snapshots antes de indexarlos.
type FilterConfig struct {
	MinVolume    float64 `yaml:"min_volume"`
	MinLiquidity float64 `yaml:"min_liquidity"`
	MinDaysToEnd float64 `yaml:"min_days_to_end"`
	MaxDaysToEnd float64 `yaml:"max_days_to_end"`
}

// RecorderConfig controla la captura de snapshots.
type RecorderConfig struct {
	IntervalSeconds int  `yaml:"interval_seconds"`
	PageSize        int  `yaml:"page_size"`
	MaxPages        int  `yaml:"max_pages"` // 0 = sin límite
	OnlyActive      bool `yaml:"only_active"`
	RetentionDays   int  `yaml:"retention_days"` // 0 = conservar todo
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	GammaBase string `yaml:"gamma_base"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// MetricsConfig controla el endpoint de Prometheus.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // vacío = deshabilitado
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben los valores del YAML.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse interpreta un YAML ya leído y aplica entorno, defaults y validación.
func Parse(data []byte) (*Config, error) {
	cfg := Config{Recorder: RecorderConfig{OnlyActive: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("POLYSIM_DB"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("POLYSIM_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Backtest.InitialCapital <= 0 {
		cfg.Backtest.InitialCapital = backtest.DefaultInitialCapital
	}
	if cfg.Backtest.MaxPositions <= 0 {
		cfg.Backtest.MaxPositions = backtest.DefaultMaxPositions
	}
	if cfg.Backtest.MaxPositionSize <= 0 {
		cfg.Backtest.MaxPositionSize = backtest.DefaultMaxPositionSize
	}
	if cfg.Backtest.BlacklistBelow <= 0 {
		cfg.Backtest.BlacklistBelow = backtest.DefaultBlacklistBelow
	}
	if cfg.Backtest.ProgressEvery <= 0 {
		cfg.Backtest.ProgressEvery = backtest.DefaultProgressEvery
	}
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = map[string]StrategyConfig{
			"longshot": {Enabled: true, StopLoss: 0.5, TakeProfit: 1.0},
		}
	}
	if cfg.Recorder.IntervalSeconds <= 0 {
		cfg.Recorder.IntervalSeconds = int(recorder.DefaultInterval / time.Second)
	}
	if cfg.Recorder.PageSize <= 0 {
		cfg.Recorder.PageSize = 500
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polysim.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Validate devuelve todos los problemas encontrados, no solo el primero.
func (c *Config) Validate() error {
	var errs []error

	b := c.Backtest
	if b.MaxPositionSize > 1 {
		errs = append(errs, fmt.Errorf("backtest.max_position_size must be <= 1, got %v", b.MaxPositionSize))
	}
	if b.PeriodsPerYear < 0 {
		errs = append(errs, fmt.Errorf("backtest.periods_per_year must be >= 0"))
	}
	start, end, err := c.Backtest.Range()
	if err != nil {
		errs = append(errs, err)
	} else if !start.IsZero() && !end.IsZero() && end.Before(start) {
		errs = append(errs, fmt.Errorf("backtest.end_date %s is before start_date %s", b.EndDate, b.StartDate))
	}

	enabled := 0
	for name, s := range c.Strategies {
		if s.Enabled {
			enabled++
		}
		if s.MaxPositionSize < 0 || s.MaxPositionSize > 1 {
			errs = append(errs, fmt.Errorf("strategies.%s.max_position_size must be in [0,1]", name))
		}
		if s.StopLoss < 0 || s.TakeProfit < 0 || s.CooldownMinutes < 0 {
			errs = append(errs, fmt.Errorf("strategies.%s: stop_loss, take_profit and cooldown_minutes must be >= 0", name))
		}
	}
	if enabled == 0 {
		errs = append(errs, errors.New("strategies: at least one strategy must be enabled"))
	}

	if c.Risk.DailyLossLimit < 0 || c.Risk.MaxDrawdown < 0 || c.Risk.MaxDrawdown > 1 {
		errs = append(errs, errors.New("risk: limits must be fractions in [0,1]"))
	}
	if c.Filters.MaxDaysToEnd > 0 && c.Filters.MaxDaysToEnd < c.Filters.MinDaysToEnd {
		errs = append(errs, errors.New("filters.max_days_to_end is below min_days_to_end"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug|info|warn|error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of text|json", c.Log.Format))
	}

	return errors.Join(errs...)
}

// Range devuelve el rango de fechas del backtest. Un EndDate sin hora se
// extiende hasta el final de ese día (UTC).
func (b BacktestConfig) Range() (start, end time.Time, err error) {
	start, _, err = parseDate(b.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("backtest.start_date: %w", err)
	}
	end, dateOnly, err := parseDate(b.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("backtest.end_date: %w", err)
	}
	if dateOnly {
		end = end.Add(24*time.Hour - time.Nanosecond)
	}
	return start, end, nil
}

func parseDate(s string) (t time.Time, dateOnly bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true, nil
	}
	t, err = time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%q is neither YYYY-MM-DD nor RFC3339", s)
	}
	return t, false, nil
}

// BacktestConfig traduce la configuración al formato del motor.
func (c *Config) BacktestConfig() (backtest.Config, error) {
	start, end, err := c.Backtest.Range()
	if err != nil {
		return backtest.Config{}, fmt.Errorf("config.BacktestConfig: %w", err)
	}

	strategies := make(map[string]strategy.Config, len(c.Strategies))
	for name, s := range c.Strategies {
		strategies[name] = strategy.Config{
			Enabled:         s.Enabled,
			MaxPositions:    s.MaxPositions,
			MaxPositionSize: s.MaxPositionSize,
			StopLoss:        s.StopLoss,
			TakeProfit:      s.TakeProfit,
			Cooldown:        time.Duration(s.CooldownMinutes * float64(time.Minute)),
			Params:          s.Params,
		}
	}

	return backtest.Config{
		StartDate:       start,
		EndDate:         end,
		InitialCapital:  c.Backtest.InitialCapital,
		MaxPositions:    c.Backtest.MaxPositions,
		MaxPositionSize: c.Backtest.MaxPositionSize,
		Strategies:      strategies,
		Risk: backtest.RiskConfig{
			DailyLossLimit: c.Risk.DailyLossLimit,
			MaxDrawdown:    c.Risk.MaxDrawdown,
		},
		Filter: backtest.FilterConfig{
			MinVolume:    c.Filters.MinVolume,
			MinLiquidity: c.Filters.MinLiquidity,
			MinDaysToEnd: c.Filters.MinDaysToEnd,
			MaxDaysToEnd: c.Filters.MaxDaysToEnd,
		},
		BlacklistBelow: c.Backtest.BlacklistBelow,
		ProgressEvery:  c.Backtest.ProgressEvery,
		PeriodsPerYear: c.Backtest.PeriodsPerYear,
	}, nil
}

// RecorderConfig traduce la sección recorder al formato del loop.
func (c *Config) RecorderConfig(once bool) recorder.Config {
	return recorder.Config{
		Interval:  time.Duration(c.Recorder.IntervalSeconds) * time.Second,
		Retention: time.Duration(c.Recorder.RetentionDays) * 24 * time.Hour,
		Once:      once,
	}
}
