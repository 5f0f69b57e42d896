package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/vaultbt/internal/domain"
	"github.com/alejandrodnm/vaultbt/internal/ports"
)

// CachedSource decora un PriceSource con un PriceCache: lee primero de la
// cache y sólo consulta la fuente ante un miss.
type CachedSource struct {
	src   ports.PriceSource
	cache ports.PriceCache
}

// NewCachedSource envuelve src con cache.
func NewCachedSource(src ports.PriceSource, cache ports.PriceCache) *CachedSource {
	return &CachedSource{src: src, cache: cache}
}

// Name devuelve el nombre de la fuente subyacente.
func (c *CachedSource) Name() string { return c.src.Name() }

// FetchPriceHistory implementa ports.PriceSource.
func (c *CachedSource) FetchPriceHistory(ctx context.Context, asset domain.AssetAllocation, from, to time.Time, resolution time.Duration) ([]domain.PricePoint, error) {
	key := ports.PriceKey{
		Source:     c.src.Name(),
		AssetCode:  asset.AssetCode,
		From:       from,
		To:         to,
		Resolution: resolution,
	}
	cached, err := c.cache.LoadPrices(ctx, key)
	if err != nil {
		slog.Warn("price cache read failed", "source", c.src.Name(), "asset", asset.AssetCode, "err", err)
	} else if len(cached) > 0 {
		slog.Debug("price cache hit", "source", c.src.Name(), "asset", asset.AssetCode, "points", len(cached))
		return cached, nil
	}

	points, err := c.src.FetchPriceHistory(ctx, asset, from, to, resolution)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.src.Name(), err)
	}
	if len(points) > 0 {
		if err := c.cache.SavePrices(ctx, key, points); err != nil {
			slog.Warn("price cache write failed", "source", c.src.Name(), "asset", asset.AssetCode, "err", err)
		}
	}
	return points, nil
}
