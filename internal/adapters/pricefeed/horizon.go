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
	// HorizonName identifica a la fuente en PriceSeries.Source y en el cache.
	HorizonName = "horizon"

	defaultHorizonBase = "https://horizon.stellar.org"

	// Horizon público: 3600 req/h por IP → 60% → ~0.6/s
	horizonRatePerSec = 0.6
	horizonPageLimit  = 200
	horizonMaxPages   = 50
)

// horizonResolutions son los únicos buckets que acepta /trade_aggregations.
var horizonResolutions = []time.Duration{
	time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	time.Hour,
	24 * time.Hour,
	7 * 24 * time.Hour,
}

// HorizonSource obtiene históricos de precios del SDEX de Stellar vía
// trade_aggregations, cotizando cada asset contra un counter fijo.
type HorizonSource struct {
	client        *client
	base          string
	counterCode   string
	counterIssuer string
}

// NewHorizonSource crea la fuente. counterIssuer vacío significa XLM nativo.
// Si base está vacío usa Horizon público.
func NewHorizonSource(base, counterCode, counterIssuer string) *HorizonSource {
	if base == "" {
		base = defaultHorizonBase
	}
	return &HorizonSource{
		client:        newClient(rate.NewLimiter(horizonRatePerSec, 3)),
		base:          strings.TrimRight(base, "/"),
		counterCode:   counterCode,
		counterIssuer: counterIssuer,
	}
}

func (h *HorizonSource) Name() string { return HorizonName }

// FetchPriceHistory devuelve el close de cada bucket entre from y to.
// Un asset que coincide con el counter no tiene par en el SDEX y devuelve vacío.
func (h *HorizonSource) FetchPriceHistory(ctx context.Context, asset domain.AssetAllocation, from, to time.Time, resolution time.Duration) ([]domain.PricePoint, error) {
	if strings.EqualFold(asset.AssetCode, h.counterCode) && asset.AssetIssuer == h.counterIssuer {
		return nil, nil
	}

	bucket := SnapHorizonResolution(resolution)
	start := alignToEpoch(from, bucket)

	q := url.Values{}
	setAssetParams(q, "base", asset.AssetCode, asset.AssetIssuer)
	setAssetParams(q, "counter", h.counterCode, h.counterIssuer)
	q.Set("start_time", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("end_time", strconv.FormatInt(alignToEpoch(to, bucket).Add(bucket).UnixMilli(), 10))
	q.Set("resolution", strconv.FormatInt(bucket.Milliseconds(), 10))
	q.Set("order", "asc")
	q.Set("limit", strconv.Itoa(horizonPageLimit))

	next := h.base + "/trade_aggregations?" + q.Encode()
	var points []domain.PricePoint
	for page := 0; next != "" && page < horizonMaxPages; page++ {
		var resp tradeAggregationsPage
		if err := h.client.get(ctx, next, nil, &resp); err != nil {
			return nil, fmt.Errorf("horizon.FetchPriceHistory %s: %w", asset.AssetCode, err)
		}

		for _, rec := range resp.Embedded.Records {
			p, err := rec.toPricePoint()
			if err != nil {
				slog.Debug("skipping malformed trade aggregation", "asset", asset.AssetCode, "err", err)
				continue
			}
			points = append(points, p)
		}

		if len(resp.Embedded.Records) < horizonPageLimit {
			break
		}
		next = resp.Links.Next.Href
	}

	slog.Debug("horizon price history fetched",
		"asset", asset.AssetCode,
		"bucket", bucket,
		"points", len(points),
	)
	return points, nil
}

// alignToEpoch redondea t hacia abajo a un múltiplo de bucket contado desde
// el epoch Unix, que es como Horizon alinea start_time y end_time.
func alignToEpoch(t time.Time, bucket time.Duration) time.Time {
	ms := bucket.Milliseconds()
	if ms <= 0 {
		return t.UTC()
	}
	return time.UnixMilli(t.UnixMilli() / ms * ms).UTC()
}

// SnapHorizonResolution devuelve el bucket válido más grande que no supera
// resolution. Por debajo del mínimo devuelve un minuto.
func SnapHorizonResolution(resolution time.Duration) time.Duration {
	snapped := horizonResolutions[0]
	for _, r := range horizonResolutions {
		if r <= resolution {
			snapped = r
		}
	}
	return snapped
}

func setAssetParams(q url.Values, prefix, code, issuer string) {
	if issuer == "" {
		q.Set(prefix+"_asset_type", "native")
		return
	}
	typ := "credit_alphanum4"
	if len(code) > 4 {
		typ = "credit_alphanum12"
	}
	q.Set(prefix+"_asset_type", typ)
	q.Set(prefix+"_asset_code", code)
	q.Set(prefix+"_asset_issuer", issuer)
}

func (r tradeAggregation) toPricePoint() (domain.PricePoint, error) {
	ms, err := r.Timestamp.Int64()
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("timestamp %q: %w", r.Timestamp, err)
	}
	price, err := strconv.ParseFloat(r.Close, 64)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("close %q: %w", r.Close, err)
	}
	if price <= 0 {
		return domain.PricePoint{}, fmt.Errorf("non-positive close %v", price)
	}
	return domain.PricePoint{Timestamp: time.UnixMilli(ms).UTC(), Price: price}, nil
}
