package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/vaultbt/internal/adapters/storage"
	"github.com/alejandrodnm/vaultbt/internal/domain"
	"github.com/alejandrodnm/vaultbt/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newStorage(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:", 24*time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func hourly(n int, price float64) []domain.PricePoint {
	points := make([]domain.PricePoint, n)
	for i := range points {
		points[i] = domain.PricePoint{Timestamp: jan1.Add(time.Duration(i) * time.Hour), Price: price + float64(i)}
	}
	return points
}

func windowKey(from, to time.Time) ports.PriceKey {
	return ports.PriceKey{Source: "horizon", AssetCode: "XLM", From: from, To: to, Resolution: time.Hour}
}

func TestSQLiteStorage_PriceCacheRoundTrip(t *testing.T) {
	db := newStorage(t)
	ctx := context.Background()
	key := windowKey(jan1, jan1.Add(47*time.Hour))

	require.NoError(t, db.SavePrices(ctx, key, hourly(48, 1)))

	got, err := db.LoadPrices(ctx, key)
	require.NoError(t, err)
	require.Len(t, got, 48)
	assert.True(t, jan1.Equal(got[0].Timestamp))
	assert.InDelta(t, 48.0, got[47].Price, 1e-9)
}

func TestSQLiteStorage_PriceCacheSubRangeHit(t *testing.T) {
	db := newStorage(t)
	ctx := context.Background()
	require.NoError(t, db.SavePrices(ctx, windowKey(jan1, jan1.Add(47*time.Hour)), hourly(48, 1)))

	// ventana contenida: se devuelven sus puntos más un bucket de margen
	got, err := db.LoadPrices(ctx, windowKey(jan1.Add(10*time.Hour), jan1.Add(20*time.Hour)))
	require.NoError(t, err)
	require.Len(t, got, 13)
	assert.True(t, jan1.Add(9*time.Hour).Equal(got[0].Timestamp))

	// rango que excede la ventana: miss
	got, err = db.LoadPrices(ctx, windowKey(jan1, jan1.Add(72*time.Hour)))
	require.NoError(t, err)
	assert.Nil(t, got)

	// otra resolución: miss
	daily := windowKey(jan1, jan1.Add(24*time.Hour))
	daily.Resolution = 24 * time.Hour
	got, err = db.LoadPrices(ctx, daily)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStorage_SavePricesReplacesWindow(t *testing.T) {
	db := newStorage(t)
	ctx := context.Background()
	key := windowKey(jan1, jan1.Add(23*time.Hour))

	require.NoError(t, db.SavePrices(ctx, key, hourly(24, 1)))
	require.NoError(t, db.SavePrices(ctx, key, hourly(12, 100)))

	got, err := db.LoadPrices(ctx, key)
	require.NoError(t, err)
	require.Len(t, got, 12)
	assert.InDelta(t, 100.0, got[0].Price, 1e-9)

	assert.NoError(t, db.SavePrices(ctx, key, nil))
}

func TestSQLiteStorage_PriceCacheTTL(t *testing.T) {
	db := newStorage(t)
	ctx := context.Background()
	now := jan1
	db.SetClock(func() time.Time { return now })

	key := windowKey(jan1, jan1.Add(5*time.Hour))
	require.NoError(t, db.SavePrices(ctx, key, hourly(6, 1)))

	now = jan1.Add(23 * time.Hour)
	got, err := db.LoadPrices(ctx, key)
	require.NoError(t, err)
	assert.Len(t, got, 6)

	now = jan1.Add(25 * time.Hour)
	got, err = db.LoadPrices(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got, "expired windows are not served")

	n, err := db.PruneExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = db.PruneExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func makeResult(id, vault string, created time.Time, ret float64) *domain.Result {
	assets := []domain.AssetAllocation{
		{AssetID: "xlm", AssetCode: "XLM", Percentage: 60},
		{AssetID: "usdc", AssetCode: "USDC", AssetIssuer: "GA5Z", Percentage: 40},
	}
	return &domain.Result{
		ID: id,
		Request: domain.Request{
			Vault: domain.VaultConfig{
				Name:          vault,
				Assets:        assets,
				ManagementFee: 2,
				Rules: []domain.RebalanceRule{{
					ID:         "drift",
					Enabled:    true,
					Conditions: []domain.Condition{domain.AllocationCondition{AssetID: "xlm", Threshold: 5}},
					Actions:    []domain.Action{domain.RebalanceAction{TargetAllocations: assets}},
				}},
			},
			Start:          jan1,
			End:            jan1.Add(30 * 24 * time.Hour),
			InitialCapital: 1000,
			Resolution:     24 * time.Hour,
		},
		Metrics: domain.Metrics{
			InitialValue:  1000,
			FinalValue:    1000 * (1 + ret/100),
			TotalReturn:   ret,
			NumRebalances: 1,
			UsingMockData: true,
		},
		Timeline: []domain.Transaction{
			{Timestamp: jan1, Type: domain.TxDeposit, PortfolioValue: 1000, Allocations: assets},
			{Timestamp: jan1.Add(48 * time.Hour), Type: domain.TxRebalance, PortfolioValue: 1010, TriggeredRule: "drift"},
		},
		PortfolioValueHistory: []domain.ValuePoint{{Timestamp: jan1, Value: 1000}},
		AllocationHistory:     []domain.AllocationSnapshot{{Timestamp: jan1, Allocations: assets}},
		DrawdownHistory:       []domain.ValuePoint{{Timestamp: jan1, Value: 0}},
		PriceSources:          map[string]string{"XLM": "synthetic", "USDC": "stablecoin"},
		CreatedAt:             created,
	}
}

func TestSQLiteStorage_SaveAndGetResult(t *testing.T) {
	db := newStorage(t)
	ctx := context.Background()
	in := makeResult("run-1", "balanced", jan1.Add(time.Hour), 4.2)

	require.NoError(t, db.SaveResult(ctx, in))

	out, err := db.GetResult(ctx, "run-1")
	require.NoError(t, err)

	assert.Equal(t, in.Metrics, out.Metrics)
	assert.Equal(t, in.Timeline, out.Timeline)
	assert.Equal(t, in.PriceSources, out.PriceSources)
	assert.Equal(t, in.Request.Vault.Assets, out.Request.Vault.Assets)
	assert.Equal(t, 24*time.Hour, out.Request.Resolution)
	assert.Empty(t, out.Request.Vault.Rules, "rules are not persisted")
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))

	_, err = db.GetResult(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrRunNotFound)
}

func TestSQLiteStorage_ListRuns(t *testing.T) {
	db := newStorage(t)
	ctx := context.Background()

	require.NoError(t, db.SaveResult(ctx, makeResult("a", "v1", jan1.Add(1*time.Hour), 1)))
	require.NoError(t, db.SaveResult(ctx, makeResult("b", "v2", jan1.Add(3*time.Hour), 2)))
	require.NoError(t, db.SaveResult(ctx, makeResult("c", "v3", jan1.Add(2*time.Hour), 3)))

	runs, err := db.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[0].ID)
	assert.Equal(t, "c", runs[1].ID)
	assert.Equal(t, "v2", runs[0].VaultName)
	assert.True(t, runs[0].UsingMock)
	assert.InDelta(t, 1020, runs[0].FinalValue, 1e-9)
	assert.True(t, jan1.Equal(runs[0].Start))

	all, err := db.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// mismo ID sobreescribe
	require.NoError(t, db.SaveResult(ctx, makeResult("a", "v1-again", jan1.Add(4*time.Hour), 9)))
	runs, err = db.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "v1-again", runs[0].VaultName)
}
