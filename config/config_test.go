package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultsAndYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
backtest:
  initial_capital: 2500
  seed: 42
sources:
  enabled: [duckdb]
  duckdb_path: prices.duckdb
storage:
  dsn: ":memory:"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2500.0, cfg.Backtest.InitialCapital)
	assert.Equal(t, int64(42), cfg.Backtest.Seed)
	assert.Equal(t, 24*time.Hour, cfg.Resolution())
	assert.Equal(t, 24*time.Hour, cfg.PriceCacheTTL())
	assert.True(t, cfg.SourceEnabled("DuckDB"))
	assert.False(t, cfg.SourceEnabled("horizon"))
	assert.Equal(t, ":memory:", cfg.Storage.DSN)
	assert.Equal(t, "https://horizon.stellar.org", cfg.Sources.HorizonBase)
	assert.Equal(t, "stellar", cfg.Sources.CoinGeckoIDs["XLM"])
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("VAULTBT_DSN", "/tmp/other.db")
	t.Setenv("COINGECKO_API_KEY", "cg-key")
	t.Setenv("HORIZON_URL", "http://localhost:8000")

	path := writeFile(t, "config.yaml", "log:\n  level: warn\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/other.db", cfg.Storage.DSN)
	assert.Equal(t, "cg-key", cfg.Sources.CoinGeckoKey)
	assert.Equal(t, "http://localhost:8000", cfg.Sources.HorizonBase)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := writeFile(t, "bad.yaml", "backtest: [unclosed")
	_, err = Load(path)
	assert.ErrorContains(t, err, "parse YAML")
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 10000.0, cfg.Backtest.InitialCapital)
	assert.Equal(t, int64(1), cfg.Backtest.Seed)
	assert.Equal(t, []string{"horizon", "coingecko"}, cfg.Sources.Enabled)
}
