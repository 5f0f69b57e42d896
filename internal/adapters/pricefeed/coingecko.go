package pricefeed

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/vaultbt/internal/domain"
	"golang.org/x/time/rate"
)

const (
	// CoinGeckoName identifica a la fuente en PriceSeries.Source y en el cache.
	CoinGeckoName = "coingecko"

	defaultCoinGeckoBase = "https://api.coingecko.com/api/v3"

	// Plan demo: 30 req/min → 60% → 18/min
	coinGeckoRatePerSec = 0.3
)

// CoinGeckoSource obtiene históricos en USD desde market_chart/range.
// Sólo conoce los assets presentes en ids (asset code → coin id).
type CoinGeckoSource struct {
	client *client
	base   string
	apiKey string
	ids    map[string]string
}

// NewCoinGeckoSource crea la fuente. apiKey puede ser vacío.
func NewCoinGeckoSource(base, apiKey string, ids map[string]string) *CoinGeckoSource {
	if base == "" {
		base = defaultCoinGeckoBase
	}
	norm := make(map[string]string, len(ids))
	for code, id := range ids {
		norm[strings.ToUpper(code)] = id
	}
	return &CoinGeckoSource{
		client: newClient(rate.NewLimiter(coinGeckoRatePerSec, 2)),
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		ids:    norm,
	}
}

func (c *CoinGeckoSource) Name() string { return CoinGeckoName }

// FetchPriceHistory devuelve la serie en USD reducida a un punto por bucket de
// resolution (el último de cada bucket). Un asset sin coin id devuelve vacío.
func (c *CoinGeckoSource) FetchPriceHistory(ctx context.Context, asset domain.AssetAllocation, from, to time.Time, resolution time.Duration) ([]domain.PricePoint, error) {
	id, ok := c.ids[strings.ToUpper(asset.AssetCode)]
	if !ok {
		return nil, nil
	}

	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("from", strconv.FormatInt(from.Unix(), 10))
	q.Set("to", strconv.FormatInt(to.Unix(), 10))
	endpoint := fmt.Sprintf("%s/coins/%s/market_chart/range?%s", c.base, url.PathEscape(id), q.Encode())

	var headers map[string]string
	if c.apiKey != "" {
		headers = map[string]string{"x-cg-demo-api-key": c.apiKey}
	}

	var resp marketChartResponse
	if err := c.client.get(ctx, endpoint, headers, &resp); err != nil {
		return nil, fmt.Errorf("coingecko.FetchPriceHistory %s: %w", asset.AssetCode, err)
	}

	points := make([]domain.PricePoint, 0, len(resp.Prices))
	for _, p := range resp.Prices {
		if p[1] <= 0 {
			continue
		}
		points = append(points, domain.PricePoint{
			Timestamp: time.UnixMilli(int64(p[0])).UTC(),
			Price:     p[1],
		})
	}
	points = downsample(points, resolution)

	slog.Debug("coingecko price history fetched", "asset", asset.AssetCode, "id", id, "points", len(points))
	return points, nil
}

// downsample conserva el último punto de cada bucket de tamaño step.
// points debe venir ordenado por timestamp.
func downsample(points []domain.PricePoint, step time.Duration) []domain.PricePoint {
	if step <= 0 || len(points) < 2 {
		return points
	}
	out := make([]domain.PricePoint, 0, len(points))
	for _, p := range points {
		if n := len(out); n > 0 && out[n-1].Timestamp.Truncate(step).Equal(p.Timestamp.Truncate(step)) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}
