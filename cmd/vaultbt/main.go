package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/vaultbt/config"
	"github.com/alejandrodnm/vaultbt/internal/adapters/notify"
	"github.com/alejandrodnm/vaultbt/internal/adapters/storage"
	"github.com/alejandrodnm/vaultbt/internal/application/backtest"
	"github.com/alejandrodnm/vaultbt/internal/domain"
)

const defaultConfigPath = "config/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to config file")
	vaultPath := flag.String("vault", "", "path to vault definition (YAML)")
	start := flag.String("start", "", "backtest start, ISO-8601 (default: end - 90d)")
	end := flag.String("end", "", "backtest end, ISO-8601 (default: today 00:00 UTC)")
	capital := flag.Float64("capital", 0, "initial capital (overrides config)")
	resolution := flag.Duration("resolution", 0, "tick size, e.g. 1h or 24h (overrides config)")
	seed := flag.Int64("seed", 0, "seed for synthetic prices (overrides config)")
	offline := flag.Bool("offline", false, "skip remote price sources; synthetic fallback only")
	save := flag.Bool("save", false, "persist the result to storage")
	list := flag.Bool("list", false, "list saved runs and exit")
	show := flag.String("show", "", "print a saved run by ID and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	timeline := flag.Bool("timeline", false, "print the rebalance timeline")
	importCSV := flag.String("import", "", "load a timestamp,price CSV into the DuckDB source and exit")
	importAsset := flag.String("asset", "", "asset code for -import")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *importCSV != "" {
		if err := importPrices(ctx, cfg, *importCSV, *importAsset); err != nil {
			slog.Error("import failed", "err", err, "file", *importCSV)
			os.Exit(1)
		}
		return
	}

	notifier := notify.NewConsole(*timeline)

	if *list || *show != "" {
		store := openStorage(cfg)
		defer store.Close()
		if *list {
			runs, err := store.ListRuns(ctx, 50)
			if err != nil {
				slog.Error("failed to list runs", "err", err)
				os.Exit(1)
			}
			notifier.PrintRuns(runs)
			return
		}
		result, err := store.GetResult(ctx, *show)
		if err != nil {
			slog.Error("failed to load run", "err", err, "id", *show)
			os.Exit(1)
		}
		if err := notifier.NotifyResult(ctx, result); err != nil {
			slog.Warn("notifier error", "err", err)
		}
		return
	}

	if *vaultPath == "" {
		slog.Error("missing -vault")
		flag.Usage()
		os.Exit(2)
	}
	vault, err := config.LoadVault(*vaultPath)
	if err != nil {
		slog.Error("failed to load vault", "err", err, "path", *vaultPath)
		os.Exit(1)
	}

	if *capital > 0 {
		cfg.Backtest.InitialCapital = *capital
	}
	if *seed != 0 {
		cfg.Backtest.Seed = *seed
	}
	step := cfg.Resolution()
	if *resolution > 0 {
		step = *resolution
	}

	req, err := buildRequest(vault, *start, *end, cfg.Backtest.InitialCapital, step, time.Now())
	if err != nil {
		slog.Error("invalid backtest range", "err", err)
		os.Exit(2)
	}

	slog.Info("vaultbt starting",
		"config", *configPath,
		"vault", vault.Name,
		"offline", *offline,
		"save", *save,
		"seed", cfg.Backtest.Seed,
	)

	var store *storage.SQLiteStorage
	if *save || !*offline {
		store = openStorage(cfg)
		defer store.Close()
	}

	var sources sourceSet
	if !*offline {
		sources = buildSources(cfg, store)
		defer sources.Close()
	}

	resolver := backtest.NewResolver(sources.list,
		backtest.WithSeed(cfg.Backtest.Seed),
		backtest.WithBasePrices(cfg.Backtest.BasePrices),
	)
	var opts []backtest.Option
	if cfg.Backtest.FeeTransactions {
		opts = append(opts, backtest.WithFeeTransactions())
	}
	engine := backtest.New(resolver, opts...)

	result, err := engine.Run(ctx, req)
	if err != nil {
		slog.Error("backtest failed", "err", err)
		os.Exit(1)
	}

	if err := notifier.NotifyResult(ctx, result); err != nil {
		slog.Warn("notifier error", "err", err)
	}

	if *save {
		if err := store.SaveResult(ctx, result); err != nil {
			slog.Error("failed to save result", "err", err, "id", result.ID)
			os.Exit(1)
		}
		slog.Info("result saved", "id", result.ID, "dsn", cfg.Storage.DSN)
	}
}

// loadConfig usa los defaults cuando el archivo por defecto no existe.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil && path == defaultConfigPath && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func openStorage(cfg *config.Config) *storage.SQLiteStorage {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN, cfg.PriceCacheTTL())
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	return store
}

// buildRequest arma el Request aplicando los defaults de rango: end = hoy a
// las 00:00 UTC, start = end - 90 días.
func buildRequest(vault domain.VaultConfig, start, end string, capital float64, step time.Duration, now time.Time) (domain.Request, error) {
	endDay := now.UTC().Truncate(24 * time.Hour)
	if end == "" {
		end = endDay.Format(time.RFC3339)
	}
	if start == "" {
		e, err := domain.ParseTime(end)
		if err != nil {
			return domain.Request{}, err
		}
		start = e.AddDate(0, 0, -90).Format(time.RFC3339)
	}
	req, err := domain.ParseRequest(vault, start, end, capital, step)
	if err != nil {
		return domain.Request{}, err
	}
	return req, req.Validate()
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

	// stderr: stdout queda para las tablas del resultado
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
