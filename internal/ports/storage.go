package ports

import (
	"context"

	"github.com/alejandrodnm/vaultbt/internal/domain"
)

// ResultStorage persiste los resultados de backtests terminados.
type ResultStorage interface {
	// SaveResult guarda el resultado completo (métricas + historial).
	SaveResult(ctx context.Context, result *domain.Result) error

	// GetResult recupera un resultado por ID.
	GetResult(ctx context.Context, id string) (*domain.Result, error)

	// ListRuns devuelve los últimos runs, más recientes primero.
	ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
