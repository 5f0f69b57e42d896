package main

import (
	"log/slog"
	"strings"

	"github.com/alejandrodnm/vaultbt/config"
	"github.com/alejandrodnm/vaultbt/internal/adapters/duckdb"
	"github.com/alejandrodnm/vaultbt/internal/adapters/pricefeed"
	"github.com/alejandrodnm/vaultbt/internal/application/backtest"
	"github.com/alejandrodnm/vaultbt/internal/ports"
)

// sourceSet son las fuentes en orden de prioridad y lo que hay que cerrar al salir.
type sourceSet struct {
	list    []ports.PriceSource
	closers []func() error
}

func (s sourceSet) Close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			slog.Warn("failed to close price source", "err", err)
		}
	}
}

// buildSources arma las fuentes de sources.enabled. Las remotas pasan por el
// cache cuando hay uno; DuckDB es local y se lee directo.
func buildSources(cfg *config.Config, cache ports.PriceCache) sourceSet {
	var set sourceSet
	for _, name := range cfg.Sources.Enabled {
		var src ports.PriceSource
		switch strings.ToLower(name) {
		case pricefeed.HorizonName:
			src = pricefeed.NewHorizonSource(cfg.Sources.HorizonBase, cfg.Sources.CounterCode, cfg.Sources.CounterIssuer)
		case pricefeed.CoinGeckoName:
			src = pricefeed.NewCoinGeckoSource(cfg.Sources.CoinGeckoBase, cfg.Sources.CoinGeckoKey, cfg.Sources.CoinGeckoIDs)
		case duckdb.Name:
			if cfg.Sources.DuckDBPath == "" {
				slog.Warn("duckdb source enabled without duckdb_path, skipping")
				continue
			}
			db, err := duckdb.Open(cfg.Sources.DuckDBPath)
			if err != nil {
				slog.Warn("duckdb source unavailable, skipping", "err", err)
				continue
			}
			set.list = append(set.list, db)
			set.closers = append(set.closers, db.Close)
			continue
		default:
			slog.Warn("unknown price source in config, skipping", "source", name)
			continue
		}

		if cache != nil {
			src = backtest.NewCachedSource(src, cache)
		}
		set.list = append(set.list, src)
	}

	names := make([]string, len(set.list))
	for i, s := range set.list {
		names[i] = s.Name()
	}
	slog.Debug("price sources ready", "sources", names)
	return set
}
