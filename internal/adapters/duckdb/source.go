package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alejandrodnm/vaultbt/internal/domain"
	_ "github.com/marcboeker/go-duckdb"
)

// Name identifica a la fuente en PriceSeries.Source y en el cache.
const Name = "duckdb"

// Schema es la tabla que se lee. Cualquier export con estas columnas sirve
// (CSV/parquet cargado con CREATE TABLE ... AS SELECT).
const Schema = `
CREATE TABLE IF NOT EXISTS price_history (
    asset_code VARCHAR   NOT NULL,
    ts         TIMESTAMP NOT NULL,
    price      DOUBLE    NOT NULL
)`

// Source lee históricos locales de una base DuckDB.
type Source struct {
	dsn string
	db  *sql.DB
}

// Open abre la base en dsn (ruta de archivo; vacío = en memoria).
func Open(dsn string) (*Source, error) {
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("duckdb.Open %q: %w", dsn, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("duckdb.Open %q: ping: %w", dsn, err)
	}
	return &Source{dsn: dsn, db: db}, nil
}

// Close cierra la base.
func (s *Source) Close() error {
	return s.db.Close()
}

func (s *Source) Name() string { return Name }

// FetchPriceHistory devuelve el último precio de cada bucket de resolution
// dentro de [from, to]. Un asset sin filas devuelve vacío.
func (s *Source) FetchPriceHistory(ctx context.Context, asset domain.AssetAllocation, from, to time.Time, resolution time.Duration) ([]domain.PricePoint, error) {
	bucketMs := resolution.Milliseconds()
	if bucketMs <= 0 {
		bucketMs = (24 * time.Hour).Milliseconds()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT max(ts) AS ts, arg_max(price, ts) AS price
		FROM price_history
		WHERE upper(asset_code) = ? AND ts BETWEEN ? AND ? AND price > 0
		GROUP BY epoch_ms(ts) // ?
		ORDER BY 1
	`, strings.ToUpper(asset.AssetCode), from.UTC(), to.UTC(), bucketMs)
	if err != nil {
		return nil, fmt.Errorf("duckdb.FetchPriceHistory %s: query: %w", asset.AssetCode, err)
	}
	defer rows.Close()

	var points []domain.PricePoint
	for rows.Next() {
		var p domain.PricePoint
		if err := rows.Scan(&p.Timestamp, &p.Price); err != nil {
			return nil, fmt.Errorf("duckdb.FetchPriceHistory %s: scan row: %w", asset.AssetCode, err)
		}
		p.Timestamp = p.Timestamp.UTC()
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("duckdb.FetchPriceHistory %s: rows: %w", asset.AssetCode, err)
	}

	slog.Debug("duckdb price history loaded", "asset", asset.AssetCode, "points", len(points), "db", s.dsn)
	return points, nil
}

// Import inserta puntos para un asset. Crea la tabla si no existe.
func (s *Source) Import(ctx context.Context, assetCode string, points []domain.PricePoint) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("duckdb.Import: schema: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("duckdb.Import: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO price_history (asset_code, ts, price) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("duckdb.Import: prepare: %w", err)
	}
	defer stmt.Close()

	code := strings.ToUpper(assetCode)
	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, code, p.Timestamp.UTC(), p.Price); err != nil {
			return fmt.Errorf("duckdb.Import %s: insert: %w", code, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("duckdb.Import: commit: %w", err)
	}
	return nil
}
