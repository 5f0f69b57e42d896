package backtest

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/vaultbt/internal/domain"
	"github.com/alejandrodnm/vaultbt/internal/ports"
)

const (
	SourceStablecoin = "stablecoin"
	SourceSynthetic  = "synthetic"

	defaultBasePrice = 1.0
	defaultSeed      = 1
)

// DefaultBasePrices son los precios de arranque del random walk para assets conocidos.
var DefaultBasePrices = map[string]float64{
	"XLM":  0.12,
	"BTC":  45000,
	"ETH":  2500,
	"AQUA": 0.003,
	"YXLM": 0.12,
}

// Resolver obtiene la serie de precios de cada asset: stablecoin fija,
// fuentes externas en orden, y por último un random walk sintético.
type Resolver struct {
	sources    []ports.PriceSource
	basePrices map[string]float64
	seed       int64
}

// ResolverOption configura un Resolver.
type ResolverOption func(*Resolver)

// WithSeed fija la semilla del generador sintético.
func WithSeed(seed int64) ResolverOption {
	return func(r *Resolver) {
		r.seed = seed
	}
}

// WithBasePrices agrega o pisa precios base sobre DefaultBasePrices.
func WithBasePrices(prices map[string]float64) ResolverOption {
	return func(r *Resolver) {
		merged := make(map[string]float64, len(r.basePrices)+len(prices))
		for code, p := range r.basePrices {
			merged[code] = p
		}
		r.basePrices = merged
		for code, p := range prices {
			r.basePrices[strings.ToUpper(code)] = p
		}
	}
}

// NewResolver crea un resolver que consulta sources en el orden dado.
// Con sources vacío todo asset no-stablecoin usa datos sintéticos.
func NewResolver(sources []ports.PriceSource, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		sources:    sources,
		basePrices: DefaultBasePrices,
		seed:       defaultSeed,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve devuelve la serie de un asset. Nunca falla: ante falta de datos
// devuelve una serie sintética con UsedFallback=true.
func (r *Resolver) Resolve(ctx context.Context, asset domain.AssetAllocation, start, end time.Time, step time.Duration) domain.PriceSeries {
	code := asset.AssetCode
	ticks := tickTimes(start, end, step)

	if domain.IsStablecoin(code) {
		return domain.PriceSeries{
			AssetCode: code,
			Points:    flatSeries(ticks, domain.StablePrice),
			Source:    SourceStablecoin,
		}
	}

	for _, src := range r.sources {
		points, err := src.FetchPriceHistory(ctx, asset, start, end, step)
		if err != nil {
			slog.Warn("price source failed, trying next",
				"source", src.Name(),
				"asset", code,
				"err", err,
			)
			continue
		}
		if len(points) == 0 {
			slog.Debug("price source returned no data", "source", src.Name(), "asset", code)
			continue
		}
		slog.Debug("price series resolved", "source", src.Name(), "asset", code, "points", len(points))
		return domain.PriceSeries{AssetCode: code, Points: points, Source: src.Name()}
	}

	return r.synthetic(code, ticks)
}

// ResolveAll resuelve todos los assets en paralelo (una goroutine por asset)
// y devuelve cuando todas terminaron. Un fallo en un asset no afecta al resto.
func (r *Resolver) ResolveAll(ctx context.Context, assets []domain.AssetAllocation, start, end time.Time, step time.Duration) map[string]domain.PriceSeries {
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		out = make(map[string]domain.PriceSeries, len(assets))
	)

	for _, asset := range assets {
		wg.Add(1)
		go func(asset domain.AssetAllocation) {
			defer wg.Done()
			series := r.resolveIsolated(ctx, asset, start, end, step)
			mu.Lock()
			out[asset.AssetCode] = series
			mu.Unlock()
		}(asset)
	}
	wg.Wait()

	return out
}

func (r *Resolver) resolveIsolated(ctx context.Context, asset domain.AssetAllocation, start, end time.Time, step time.Duration) (series domain.PriceSeries) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("price resolution panicked, using synthetic series",
				"asset", asset.AssetCode,
				"panic", rec,
			)
			series = r.synthetic(asset.AssetCode, tickTimes(start, end, step))
		}
	}()
	return r.Resolve(ctx, asset, start, end, step)
}

func (r *Resolver) synthetic(code string, ticks []time.Time) domain.PriceSeries {
	base, ok := r.basePrices[strings.ToUpper(code)]
	if !ok || base <= 0 {
		base = defaultBasePrice
	}
	slog.Warn("no price data available, generating synthetic series",
		"asset", code,
		"base_price", base,
		"ticks", len(ticks),
	)
	rng := rand.New(rand.NewSource(assetSeed(r.seed, code)))
	return domain.PriceSeries{
		AssetCode:    code,
		Points:       NewRandomWalk(rng, base).Generate(ticks),
		Source:       SourceSynthetic,
		UsedFallback: true,
	}
}
