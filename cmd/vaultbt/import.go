package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/alejandrodnm/vaultbt/config"
	"github.com/alejandrodnm/vaultbt/internal/adapters/duckdb"
	"github.com/alejandrodnm/vaultbt/internal/domain"
)

// importPrices carga un CSV "timestamp,price" en la base DuckDB configurada.
func importPrices(ctx context.Context, cfg *config.Config, path, assetCode string) error {
	if cfg.Sources.DuckDBPath == "" {
		return errors.New("importPrices: sources.duckdb_path is empty")
	}
	if strings.TrimSpace(assetCode) == "" {
		return errors.New("importPrices: missing -asset")
	}
	if !cfg.SourceEnabled(duckdb.Name) {
		slog.Warn("duckdb is not in sources.enabled, imported prices will not be used until it is",
			"enabled", cfg.Sources.Enabled)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("importPrices: %w", err)
	}
	defer f.Close()

	points, err := parsePriceCSV(f)
	if err != nil {
		return fmt.Errorf("importPrices %q: %w", path, err)
	}

	src, err := duckdb.Open(cfg.Sources.DuckDBPath)
	if err != nil {
		return fmt.Errorf("importPrices: %w", err)
	}
	defer src.Close()

	if err := src.Import(ctx, assetCode, points); err != nil {
		return fmt.Errorf("importPrices: %w", err)
	}
	slog.Info("prices imported", "asset", strings.ToUpper(assetCode), "points", len(points), "db", cfg.Sources.DuckDBPath)
	return nil
}

// parsePriceCSV lee filas timestamp,price. La primera fila se ignora si no
// parsea como dato (cabecera).
func parsePriceCSV(r io.Reader) ([]domain.PricePoint, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true

	var points []domain.PricePoint
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ts, tsErr := domain.ParseTime(rec[0])
		price, priceErr := strconv.ParseFloat(rec[1], 64)
		if tsErr != nil || priceErr != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: invalid row %q", line, rec)
		}
		if price <= 0 {
			return nil, fmt.Errorf("line %d: non-positive price %v", line, price)
		}
		points = append(points, domain.PricePoint{Timestamp: ts, Price: price})
	}
	if len(points) == 0 {
		return nil, errors.New("no price rows")
	}
	return points, nil
}
