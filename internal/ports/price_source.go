package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/vaultbt/internal/domain"
)

// PriceSource obtiene el histórico de precios de un asset desde una fuente externa.
type PriceSource interface {
	// Name identifica la fuente en logs y en Result.PriceSources.
	Name() string

	// FetchPriceHistory devuelve los puntos del asset en [from, to] a la resolución
	// pedida. Una fuente sin datos devuelve un slice vacío y nil; el resolver
	// prueba la siguiente fuente tanto ante error como ante vacío.
	FetchPriceHistory(ctx context.Context, asset domain.AssetAllocation, from, to time.Time, resolution time.Duration) ([]domain.PricePoint, error)
}

// PriceKey identifica una ventana descargada de una fuente.
type PriceKey struct {
	Source     string
	AssetCode  string
	From       time.Time
	To         time.Time
	Resolution time.Duration
}

// PriceCache guarda series ya descargadas. LoadPrices devuelve los puntos de
// una ventana guardada con la misma resolución que cubra [From, To]; las
// ventanas más viejas que el TTL no se devuelven y se eliminan con PruneExpired.
type PriceCache interface {
	LoadPrices(ctx context.Context, key PriceKey) ([]domain.PricePoint, error)
	SavePrices(ctx context.Context, key PriceKey, points []domain.PricePoint) error
	PruneExpired(ctx context.Context) (int64, error)
}
