package pricefeed_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alejandrodnm/vaultbt/internal/adapters/pricefeed"
	"github.com/alejandrodnm/vaultbt/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usdcIssuer = "GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN"

var (
	jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	xlm  = domain.AssetAllocation{AssetID: "xlm", AssetCode: "XLM", Percentage: 100}
)

func TestHorizon_FetchPriceHistory(t *testing.T) {
	data, err := os.ReadFile("../../../testdata/fixtures/horizon_trade_aggregations.json")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trade_aggregations", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "native", q.Get("base_asset_type"))
		assert.Equal(t, "credit_alphanum4", q.Get("counter_asset_type"))
		assert.Equal(t, "USDC", q.Get("counter_asset_code"))
		assert.Equal(t, usdcIssuer, q.Get("counter_asset_issuer"))
		assert.Equal(t, "86400000", q.Get("resolution"))
		assert.Equal(t, strconv.FormatInt(jan1.UnixMilli(), 10), q.Get("start_time"))
		assert.Equal(t, strconv.FormatInt(jan1.Add(96*time.Hour).UnixMilli(), 10), q.Get("end_time"))
		assert.Equal(t, "asc", q.Get("order"))
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}))
	defer srv.Close()

	src := pricefeed.NewHorizonSource(srv.URL, "USDC", usdcIssuer)
	points, err := src.FetchPriceHistory(context.Background(), xlm, jan1, jan1.Add(72*time.Hour), 24*time.Hour)

	require.NoError(t, err)
	require.Len(t, points, 2, "record with unparseable close is skipped")
	assert.Equal(t, jan1, points[0].Timestamp)
	assert.InDelta(t, 0.124, points[0].Price, 1e-9)
	assert.Equal(t, jan1.Add(24*time.Hour), points[1].Timestamp)
	assert.InDelta(t, 0.12825, points[1].Price, 1e-9)
	assert.Equal(t, "horizon", src.Name())
}

func TestHorizon_CreditAssetParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "credit_alphanum12", q.Get("base_asset_type"))
		assert.Equal(t, "yUSDCx", q.Get("base_asset_code"))
		assert.Equal(t, "native", q.Get("counter_asset_type"))
		assert.Empty(t, q.Get("counter_asset_code"))
		assert.Equal(t, "3600000", q.Get("resolution"))
		w.Write([]byte(`{"_embedded":{"records":[]}}`))
	}))
	defer srv.Close()

	src := pricefeed.NewHorizonSource(srv.URL, "XLM", "")
	asset := domain.AssetAllocation{AssetCode: "yUSDCx", AssetIssuer: "GISSUER"}
	points, err := src.FetchPriceHistory(context.Background(), asset, jan1, jan1.Add(24*time.Hour), 2*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestHorizon_CounterAssetIsNotQueried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL)
	}))
	defer srv.Close()

	src := pricefeed.NewHorizonSource(srv.URL, "XLM", "")
	points, err := src.FetchPriceHistory(context.Background(), xlm, jan1, jan1.Add(24*time.Hour), time.Hour)
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestHorizon_FollowsPagination(t *testing.T) {
	var srv *httptest.Server
	calls := 0
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("cursor") == "" {
			w.Write([]byte(fullPage(srv.URL + "/trade_aggregations?cursor=2")))
			return
		}
		w.Write([]byte(`{"_embedded":{"records":[{"timestamp":"1800000000000","close":"0.5"}]}}`))
	}))
	defer srv.Close()

	src := pricefeed.NewHorizonSource(srv.URL, "USDC", usdcIssuer)
	points, err := src.FetchPriceHistory(context.Background(), xlm, jan1, jan1.Add(365*24*time.Hour), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, points, 201)
	assert.InDelta(t, 0.5, points[200].Price, 1e-9)
}

func TestHorizon_ClientErrorIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"title":"Bad Request"}`))
	}))
	defer srv.Close()

	src := pricefeed.NewHorizonSource(srv.URL, "USDC", usdcIssuer)
	_, err := src.FetchPriceHistory(context.Background(), xlm, jan1, jan1.Add(24*time.Hour), time.Hour)

	var statusErr *pricefeed.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.Code)
	assert.Equal(t, 1, calls)
}

func TestSnapHorizonResolution(t *testing.T) {
	cases := map[time.Duration]time.Duration{
		time.Second:         time.Minute,
		time.Minute:         time.Minute,
		10 * time.Minute:    5 * time.Minute,
		time.Hour:           time.Hour,
		4 * time.Hour:       time.Hour,
		24 * time.Hour:      24 * time.Hour,
		30 * 24 * time.Hour: 7 * 24 * time.Hour,
	}
	for in, want := range cases {
		assert.Equal(t, want, pricefeed.SnapHorizonResolution(in), "resolution %s", in)
	}
}

// fullPage arma una página de 200 records horarios que apunta a next.
func fullPage(next string) string {
	records := make([]string, 200)
	for i := range records {
		ts := jan1.Add(time.Duration(i) * time.Hour).UnixMilli()
		records[i] = fmt.Sprintf(`{"timestamp":"%d","close":"0.12"}`, ts)
	}
	return fmt.Sprintf(`{"_links":{"next":{"href":%q}},"_embedded":{"records":[%s]}}`,
		next, strings.Join(records, ","))
}
