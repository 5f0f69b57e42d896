package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del backtester.
type Config struct {
	Backtest BacktestConfig `yaml:"backtest"`
	Sources  SourcesConfig  `yaml:"sources"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// BacktestConfig controla los valores por defecto de cada run.
type BacktestConfig struct {
	InitialCapital  float64            `yaml:"initial_capital"`
	ResolutionHours int                `yaml:"resolution_hours"`
	Seed            int64              `yaml:"seed"`             // semilla del random walk sintético
	FeeTransactions bool               `yaml:"fee_transactions"` // registrar cada accrual de management fee en el timeline
	BasePrices      map[string]float64 `yaml:"base_prices"`      // overrides de precio base para datos sintéticos
}

// SourcesConfig define qué fuentes de precios se consultan y en qué orden.
type SourcesConfig struct {
	Enabled       []string          `yaml:"enabled"` // horizon | coingecko | duckdb, en orden de prioridad
	HorizonBase   string            `yaml:"horizon_base"`
	CounterCode   string            `yaml:"counter_code"`   // asset contra el que se cotiza en Horizon
	CounterIssuer string            `yaml:"counter_issuer"` // vacío → nativo
	CoinGeckoBase string            `yaml:"coingecko_base"`
	CoinGeckoKey  string            `yaml:"coingecko_api_key"`
	CoinGeckoIDs  map[string]string `yaml:"coingecko_ids"` // asset code → coin id
	DuckDBPath    string            `yaml:"duckdb_path"`
}

// StorageConfig controla dónde se persisten el cache de precios y los runs.
type StorageConfig struct {
	DSN                string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
	PriceCacheTTLHours int    `yaml:"price_cache_ttl_hours"`
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

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// Default devuelve la configuración por defecto, con overrides de entorno,
// para correr sin archivo.
func Default() *Config {
	_ = godotenv.Load()
	var cfg Config
	applyEnvOverrides(&cfg)
	setDefaults(&cfg)
	return &cfg
}

// Resolution devuelve la resolución por defecto como time.Duration.
func (c *Config) Resolution() time.Duration {
	return time.Duration(c.Backtest.ResolutionHours) * time.Hour
}

// PriceCacheTTL devuelve cuánto tiempo es válido un precio cacheado.
func (c *Config) PriceCacheTTL() time.Duration {
	return time.Duration(c.Storage.PriceCacheTTLHours) * time.Hour
}

// SourceEnabled reports whether name appears in sources.enabled.
func (c *Config) SourceEnabled(name string) bool {
	for _, s := range c.Sources.Enabled {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("VAULTBT_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("COINGECKO_API_KEY"); v != "" {
		cfg.Sources.CoinGeckoKey = v
	}
	if v := os.Getenv("HORIZON_URL"); v != "" {
		cfg.Sources.HorizonBase = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Backtest.InitialCapital <= 0 {
		cfg.Backtest.InitialCapital = 10000
	}
	if cfg.Backtest.ResolutionHours <= 0 {
		cfg.Backtest.ResolutionHours = 24
	}
	if cfg.Backtest.Seed == 0 {
		cfg.Backtest.Seed = 1
	}
	if cfg.Sources.Enabled == nil {
		cfg.Sources.Enabled = []string{"horizon", "coingecko"}
	}
	if cfg.Sources.HorizonBase == "" {
		cfg.Sources.HorizonBase = "https://horizon.stellar.org"
	}
	if cfg.Sources.CounterCode == "" {
		// USDC de Circle en Stellar
		cfg.Sources.CounterCode = "USDC"
		cfg.Sources.CounterIssuer = "GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN"
	}
	if cfg.Sources.CoinGeckoBase == "" {
		cfg.Sources.CoinGeckoBase = "https://api.coingecko.com/api/v3"
	}
	if cfg.Sources.CoinGeckoIDs == nil {
		cfg.Sources.CoinGeckoIDs = map[string]string{
			"XLM":  "stellar",
			"BTC":  "bitcoin",
			"ETH":  "ethereum",
			"AQUA": "aquarius",
		}
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "vaultbt.db"
	}
	if cfg.Storage.PriceCacheTTLHours <= 0 {
		cfg.Storage.PriceCacheTTLHours = 24
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
