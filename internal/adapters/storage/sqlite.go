package storage

// sqlite.go: cache de precios y runs guardados.
//
// Estrategia:
//   - `price_windows`: una fila por ventana descargada (fuente, asset, rango,
//     resolución). `price_points` cuelga de ella. Un hit exige misma resolución
//     y que la ventana cubra el rango pedido.
//   - TTL sobre `fetched_ms`: las ventanas vencidas no se devuelven y se
//     eliminan en el prune que corre al abrir la DB.
//   - `runs`: una fila por backtest. Columnas de resumen para listar sin
//     decodificar, y el resultado completo como JSON en `payload`.

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/vaultbt/internal/domain"
	"github.com/alejandrodnm/vaultbt/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
-- Ventanas de precios descargadas
CREATE TABLE IF NOT EXISTS price_windows (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    source        TEXT     NOT NULL,
    asset_code    TEXT     NOT NULL,
    from_ms       INTEGER  NOT NULL,
    to_ms         INTEGER  NOT NULL,
    resolution_ms INTEGER  NOT NULL,
    fetched_ms    INTEGER  NOT NULL,
    UNIQUE (source, asset_code, from_ms, to_ms, resolution_ms)
);

CREATE TABLE IF NOT EXISTS price_points (
    window_id INTEGER NOT NULL,
    ts_ms     INTEGER NOT NULL,
    price     REAL    NOT NULL,
    PRIMARY KEY (window_id, ts_ms)
);

-- Un backtest terminado por fila
CREATE TABLE IF NOT EXISTS runs (
    id           TEXT PRIMARY KEY,
    vault_name   TEXT     NOT NULL,
    start_at     DATETIME NOT NULL,
    end_at       DATETIME NOT NULL,
    total_return REAL     NOT NULL DEFAULT 0,
    final_value  REAL     NOT NULL DEFAULT 0,
    using_mock   INTEGER  NOT NULL DEFAULT 0,
    created_at   DATETIME NOT NULL,
    payload      TEXT     NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_windows_lookup ON price_windows(source, asset_code, resolution_ms);
CREATE INDEX IF NOT EXISTS idx_windows_age    ON price_windows(fetched_ms);
CREATE INDEX IF NOT EXISTS idx_runs_created   ON runs(created_at DESC);
`

// DefaultPriceTTL es la validez de una ventana si no se configura otra.
const DefaultPriceTTL = 24 * time.Hour

// ErrRunNotFound se devuelve cuando GetResult no encuentra el ID.
var ErrRunNotFound = errors.New("run not found")

// SQLiteStorage implementa ports.PriceCache y ports.ResultStorage usando
// SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

var (
	_ ports.PriceCache    = (*SQLiteStorage)(nil)
	_ ports.ResultStorage = (*SQLiteStorage)(nil)
)

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y elimina ventanas de precios vencidas.
func NewSQLiteStorage(path string, ttl time.Duration) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultPriceTTL
	}
	s := &SQLiteStorage{db: db, ttl: ttl, now: time.Now}
	if n, err := s.PruneExpired(context.Background()); err != nil {
		slog.Warn("price cache prune failed", "err", err)
	} else if n > 0 {
		slog.Debug("price cache pruned", "windows", n)
	}
	return s, nil
}

// LoadPrices devuelve los puntos de la ventana más reciente que cubre
// [key.From, key.To] con la misma resolución. Sin hit devuelve nil, nil.
func (s *SQLiteStorage) LoadPrices(ctx context.Context, key ports.PriceKey) ([]domain.PricePoint, error) {
	cutoff := s.now().Add(-s.ttl)

	var windowID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM price_windows
		WHERE source = ? AND asset_code = ? AND resolution_ms = ?
		  AND from_ms <= ? AND to_ms >= ? AND fetched_ms >= ?
		ORDER BY fetched_ms DESC
		LIMIT 1
	`, key.Source, key.AssetCode, key.Resolution.Milliseconds(),
		key.From.UnixMilli(), key.To.UnixMilli(), cutoff.UnixMilli(),
	).Scan(&windowID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.LoadPrices: lookup window: %w", err)
	}

	// un bucket de margen a cada lado para conservar el vecino más cercano
	margin := key.Resolution.Milliseconds()
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts_ms, price FROM price_points
		WHERE window_id = ? AND ts_ms BETWEEN ? AND ?
		ORDER BY ts_ms
	`, windowID, key.From.UnixMilli()-margin, key.To.UnixMilli()+margin)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadPrices: query points: %w", err)
	}
	defer rows.Close()

	var points []domain.PricePoint
	for rows.Next() {
		var ms int64
		var price float64
		if err := rows.Scan(&ms, &price); err != nil {
			return nil, fmt.Errorf("storage.LoadPrices: scan row: %w", err)
		}
		points = append(points, domain.PricePoint{Timestamp: time.UnixMilli(ms).UTC(), Price: price})
	}
	return points, rows.Err()
}

// SavePrices guarda la ventana, reemplazando una previa con la misma clave.
func (s *SQLiteStorage) SavePrices(ctx context.Context, key ports.PriceKey, points []domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SavePrices: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM price_points WHERE window_id IN (
			SELECT id FROM price_windows
			WHERE source = ? AND asset_code = ? AND from_ms = ? AND to_ms = ? AND resolution_ms = ?
		)`, key.Source, key.AssetCode, key.From.UnixMilli(), key.To.UnixMilli(), key.Resolution.Milliseconds(),
	); err != nil {
		return fmt.Errorf("storage.SavePrices: clear points: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO price_windows (source, asset_code, from_ms, to_ms, resolution_ms, fetched_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, asset_code, from_ms, to_ms, resolution_ms) DO UPDATE SET
			fetched_ms = excluded.fetched_ms
	`, key.Source, key.AssetCode, key.From.UnixMilli(), key.To.UnixMilli(), key.Resolution.Milliseconds(), s.now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("storage.SavePrices: upsert window: %w", err)
	}

	// last_insert_rowid no cambia cuando el upsert actualiza, así que se relee
	var windowID int64
	if err := tx.QueryRowContext(ctx, `
		SELECT id FROM price_windows
		WHERE source = ? AND asset_code = ? AND from_ms = ? AND to_ms = ? AND resolution_ms = ?`,
		key.Source, key.AssetCode, key.From.UnixMilli(), key.To.UnixMilli(), key.Resolution.Milliseconds(),
	).Scan(&windowID); err != nil {
		return fmt.Errorf("storage.SavePrices: window id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_points (window_id, ts_ms, price) VALUES (?, ?, ?)
		ON CONFLICT(window_id, ts_ms) DO UPDATE SET price = excluded.price
	`)
	if err != nil {
		return fmt.Errorf("storage.SavePrices: prepare: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, windowID, p.Timestamp.UnixMilli(), p.Price); err != nil {
			return fmt.Errorf("storage.SavePrices: insert point: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SavePrices: commit: %w", err)
	}
	return nil
}

// PruneExpired elimina las ventanas con fetched_ms fuera del TTL y sus puntos.
// Devuelve cuántas ventanas se eliminaron.
func (s *SQLiteStorage) PruneExpired(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.ttl)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage.PruneExpired: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM price_points WHERE window_id IN (
			SELECT id FROM price_windows WHERE fetched_ms < ?
		)`, cutoff.UnixMilli()); err != nil {
		return 0, fmt.Errorf("storage.PruneExpired: delete points: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM price_windows WHERE fetched_ms < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("storage.PruneExpired: delete windows: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage.PruneExpired: commit: %w", err)
	}
	return res.RowsAffected()
}

// SaveResult persiste un backtest terminado. Un ID repetido sobreescribe.
func (s *SQLiteStorage) SaveResult(ctx context.Context, result *domain.Result) error {
	payload, err := json.Marshal(newStoredResult(result))
	if err != nil {
		return fmt.Errorf("storage.SaveResult: encode %s: %w", result.ID, err)
	}

	mock := 0
	if result.Metrics.UsingMockData {
		mock = 1
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, vault_name, start_at, end_at, total_return, final_value, using_mock, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			vault_name   = excluded.vault_name,
			start_at     = excluded.start_at,
			end_at       = excluded.end_at,
			total_return = excluded.total_return,
			final_value  = excluded.final_value,
			using_mock   = excluded.using_mock,
			created_at   = excluded.created_at,
			payload      = excluded.payload
	`,
		result.ID,
		result.Request.Vault.Name,
		result.Request.Start.UTC(),
		result.Request.End.UTC(),
		result.Metrics.TotalReturn,
		result.Metrics.FinalValue,
		mock,
		result.CreatedAt.UTC(),
		string(payload),
	); err != nil {
		return fmt.Errorf("storage.SaveResult: insert %s: %w", result.ID, err)
	}
	return nil
}

// GetResult recupera un run guardado. Las reglas del vault no se persisten:
// Request.Vault vuelve con nombre, assets y fees pero sin Rules.
func (s *SQLiteStorage) GetResult(ctx context.Context, id string) (*domain.Result, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("storage.GetResult %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage.GetResult %s: %w", id, err)
	}

	var stored storedResult
	if err := json.Unmarshal([]byte(payload), &stored); err != nil {
		return nil, fmt.Errorf("storage.GetResult %s: decode: %w", id, err)
	}
	return stored.toDomain(), nil
}

// ListRuns devuelve los últimos limit runs, más recientes primero.
// limit <= 0 devuelve todos.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = -1 // sin límite en SQLite
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, vault_name, start_at, end_at, total_return, final_value, using_mock, created_at
		FROM runs
		ORDER BY created_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.ListRuns: query: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunSummary
	for rows.Next() {
		var r domain.RunSummary
		var mock int
		if err := rows.Scan(&r.ID, &r.VaultName, &r.Start, &r.End, &r.TotalReturn, &r.FinalValue, &mock, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage.ListRuns: scan row: %w", err)
		}
		r.UsingMock = mock == 1
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
