package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alejandrodnm/vaultbt/config"
	"github.com/alejandrodnm/vaultbt/internal/adapters/duckdb"
	"github.com/alejandrodnm/vaultbt/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pricesCSV = `timestamp,price
2024-01-01T00:00:00Z,0.10
2024-01-02,0.11
2024-01-03T00:00:00Z, 0.12
`

func TestParsePriceCSV(t *testing.T) {
	points, err := parsePriceCSV(strings.NewReader(pricesCSV))
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), points[1].Timestamp)
	assert.Equal(t, 0.12, points[2].Price)
}

func TestParsePriceCSV_Invalid(t *testing.T) {
	cases := map[string]string{
		"empty":         "",
		"header only":   "timestamp,price\n",
		"bad row":       "2024-01-01,0.1\nyesterday,0.2\n",
		"zero price":    "2024-01-01,0\n",
		"too many cols": "2024-01-01,0.1,x\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parsePriceCSV(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestImportPrices(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "xlm.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(pricesCSV), 0o600))

	cfg := config.Default()
	cfg.Sources.Enabled = []string{"duckdb"}
	cfg.Sources.DuckDBPath = filepath.Join(dir, "prices.duckdb")

	ctx := context.Background()
	require.NoError(t, importPrices(ctx, cfg, csvPath, "xlm"))

	src, err := duckdb.Open(cfg.Sources.DuckDBPath)
	require.NoError(t, err)
	defer src.Close()

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points, err := src.FetchPriceHistory(ctx, domain.AssetAllocation{AssetCode: "XLM"}, from, from.Add(72*time.Hour), 24*time.Hour)
	require.NoError(t, err)
	assert.Len(t, points, 3)
}

func TestImportPrices_RequiresAssetAndPath(t *testing.T) {
	cfg := config.Default()
	cfg.Sources.DuckDBPath = ""
	assert.Error(t, importPrices(context.Background(), cfg, "prices.csv", "xlm"))

	cfg.Sources.DuckDBPath = filepath.Join(t.TempDir(), "prices.duckdb")
	assert.Error(t, importPrices(context.Background(), cfg, "prices.csv", " "))
}
