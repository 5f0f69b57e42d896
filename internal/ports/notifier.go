package ports

import (
	"context"

	"github.com/alejandrodnm/vaultbt/internal/domain"
)

// Notifier presenta el resultado de un backtest al usuario.
type Notifier interface {
	// NotifyResult muestra métricas, timeline y warnings de datos sintéticos.
	// En la implementación de consola, imprime tablas formateadas.
	NotifyResult(ctx context.Context, result *domain.Result) error
}
