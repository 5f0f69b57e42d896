package pricefeed

import "encoding/json"

// DTOs raw de Horizon y CoinGecko. La conversión a domain.PricePoint se hace
// en cada fuente.

// --- Horizon ---

// tradeAggregationsPage es la respuesta HAL de GET /trade_aggregations.
type tradeAggregationsPage struct {
	Links struct {
		Next struct {
			Href string `json:"href"`
		} `json:"next"`
	} `json:"_links"`
	Embedded struct {
		Records []tradeAggregation `json:"records"`
	} `json:"_embedded"`
}

// tradeAggregation es un bucket OHLC. Horizon serializa timestamp como string
// en versiones recientes y como número en las viejas; json.Number acepta ambos.
type tradeAggregation struct {
	Timestamp  json.Number `json:"timestamp"`
	TradeCount json.Number `json:"trade_count"`
	Open       string      `json:"open"`
	Close      string      `json:"close"`
}

// --- CoinGecko ---

// marketChartResponse es la respuesta de GET /coins/{id}/market_chart/range.
// Cada entrada de Prices es [unix_ms, price].
type marketChartResponse struct {
	Prices [][2]float64 `json:"prices"`
}
