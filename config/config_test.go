package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ConfigYAML(t *testing.T) {
	cfg, err := Load("config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 10000.0, cfg.Backtest.InitialCapital)
	assert.True(t, cfg.Strategies["longshot"].Enabled)
	assert.False(t, cfg.Strategies["favorite"].Enabled)
	assert.Equal(t, 0.25, cfg.Risk.MaxDrawdown)
	assert.Equal(t, 90, cfg.Recorder.RetentionDays)
	assert.True(t, cfg.Recorder.OnlyActive)

	bc, err := cfg.BacktestConfig()
	require.NoError(t, err)
	ls := bc.Strategies["longshot"]
	assert.Equal(t, time.Hour, ls.Cooldown)
	assert.Equal(t, 0.3, ls.Param("trailing_stop", 0))
	assert.True(t, bc.StartDate.IsZero())
}

func TestParse_Defaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("POLYSIM_DB", "")
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, 10000.0, cfg.Backtest.InitialCapital)
	assert.Equal(t, 0.10, cfg.Backtest.MaxPositionSize)
	assert.True(t, cfg.Strategies["longshot"].Enabled, "longshot enabled when none configured")
	assert.Equal(t, 300, cfg.Recorder.IntervalSeconds)
	assert.True(t, cfg.Recorder.OnlyActive)
	assert.Equal(t, "polysim.db", cfg.Storage.DSN)
	assert.Equal(t, "https://gamma-api.polymarket.com", cfg.API.GammaBase)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 5*time.Minute, cfg.RecorderConfig(false).Interval)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("POLYSIM_DB", "/tmp/x.db")
	t.Setenv("POLYSIM_METRICS_ADDR", ":9999")

	cfg, err := Parse([]byte("log:\n  level: warn\n"))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "/tmp/x.db", cfg.Storage.DSN)
	assert.Equal(t, ":9999", cfg.Metrics.Addr)
}

func TestParse_ValidationCollectsAllErrors(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")
	_, err := Parse([]byte(`
backtest:
  max_position_size: 1.5
  start_date: "2025-03-10"
  end_date: "2025-03-01"
strategies:
  longshot:
    enabled: false
log:
  level: loud
`))
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "max_position_size")
	assert.Contains(t, msg, "before start_date")
	assert.Contains(t, msg, "at least one strategy")
	assert.Contains(t, msg, "log.level")
}

func TestBacktestConfig_DateRange(t *testing.T) {
	cfg := &Config{Backtest: BacktestConfig{StartDate: "2025-03-01", EndDate: "2025-03-02"}}
	bc, err := cfg.BacktestConfig()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), bc.StartDate)
	assert.Equal(t, time.Date(2025, 3, 2, 23, 59, 59, 999999999, time.UTC), bc.EndDate, "date-only end covers the whole day")

	cfg.Backtest.EndDate = "2025-03-02T10:00:00Z"
	bc, err = cfg.BacktestConfig()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC), bc.EndDate)

	cfg.Backtest.StartDate = "yesterday"
	_, err = cfg.BacktestConfig()
	assert.ErrorContains(t, err, "start_date")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate_DateOverridesAfterLoad(t *testing.T) {
	cfg, err := Load("config.yaml")
	require.NoError(t, err)

	cfg.Backtest.StartDate = "2025-03-10"
	cfg.Backtest.EndDate = "2025-03-01"
	assert.ErrorContains(t, cfg.Validate(), "before start_date")

	cfg.Backtest.EndDate = "2025-03-10"
	assert.NoError(t, cfg.Validate())

	cfg.Backtest.StartDate = "not-a-date"
	assert.ErrorContains(t, cfg.Validate(), "start_date")
}
