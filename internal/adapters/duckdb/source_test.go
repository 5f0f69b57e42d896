package duckdb_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alejandrodnm/vaultbt/internal/adapters/duckdb"
	"github.com/alejandrodnm/vaultbt/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func openSeeded(t *testing.T) *duckdb.Source {
	t.Helper()
	src, err := duckdb.Open(filepath.Join(t.TempDir(), "prices.duckdb"))
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })

	// cuatro puntos cada 6h durante tres días
	var points []domain.PricePoint
	for i := 0; i < 12; i++ {
		points = append(points, domain.PricePoint{
			Timestamp: jan1.Add(time.Duration(i) * 6 * time.Hour),
			Price:     0.10 + float64(i)*0.001,
		})
	}
	require.NoError(t, src.Import(context.Background(), "xlm", points))
	return src
}

func TestSource_DailyBuckets(t *testing.T) {
	src := openSeeded(t)
	asset := domain.AssetAllocation{AssetID: "xlm", AssetCode: "XLM"}

	points, err := src.FetchPriceHistory(context.Background(), asset, jan1, jan1.Add(72*time.Hour), 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, points, 3)

	// último punto de cada día
	assert.Equal(t, jan1.Add(18*time.Hour), points[0].Timestamp)
	assert.InDelta(t, 0.103, points[0].Price, 1e-9)
	assert.Equal(t, jan1.Add(66*time.Hour), points[2].Timestamp)
	assert.InDelta(t, 0.111, points[2].Price, 1e-9)
	assert.Equal(t, "duckdb", src.Name())
}

func TestSource_RangeAndUnknownAsset(t *testing.T) {
	src := openSeeded(t)
	ctx := context.Background()

	points, err := src.FetchPriceHistory(ctx, domain.AssetAllocation{AssetCode: "XLM"}, jan1.Add(24*time.Hour), jan1.Add(36*time.Hour), 6*time.Hour)
	require.NoError(t, err)
	assert.Len(t, points, 3)

	points, err = src.FetchPriceHistory(ctx, domain.AssetAllocation{AssetCode: "BTC"}, jan1, jan1.Add(72*time.Hour), 24*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, points)
}
