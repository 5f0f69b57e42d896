package backtest

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/alejandrodnm/vaultbt/internal/domain"
)

const tradingDaysPerYear = 252

// Mean devuelve el promedio; 0 para una muestra vacía.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev devuelve la desviación estándar poblacional (divide por N).
// Con menos de dos muestras devuelve 0.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := Mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

// MetricsInput es todo lo que el calculador necesita del loop terminado.
type MetricsInput struct {
	InitialCapital float64
	FinalValue     float64
	Start          time.Time
	End            time.Time
	Returns        []float64 // retorno tick a tick (fracción)
	MaxDrawdown    float64   // fracción, máximo acumulado del loop
	NumRebalances  int
	NumTicks       int
	TotalFees      float64
	Assets         []domain.AssetAllocation
	Series         map[string]domain.PriceSeries
}

// CalculateMetrics deriva las estadísticas finales del backtest.
// El rango ya fue validado: End es posterior a Start.
func CalculateMetrics(in MetricsInput) domain.Metrics {
	m := domain.Metrics{
		InitialValue:  in.InitialCapital,
		FinalValue:    in.FinalValue,
		MaxDrawdown:   in.MaxDrawdown * 100,
		NumRebalances: in.NumRebalances,
		NumTicks:      in.NumTicks,
		TotalFees:     in.TotalFees,
	}

	if in.InitialCapital > 0 {
		m.TotalReturn = (in.FinalValue - in.InitialCapital) / in.InitialCapital * 100

		years := in.End.Sub(in.Start).Hours() / 24 / daysPerYear
		if years > 0 {
			m.AnnualizedReturn = (math.Pow(in.FinalValue/in.InitialCapital, 1/years) - 1) * 100
		}
	}

	m.Volatility = StdDev(in.Returns) * math.Sqrt(tradingDaysPerYear) * 100
	if m.Volatility > 0 {
		m.SharpeRatio = m.AnnualizedReturn / m.Volatility
	}

	if len(in.Returns) > 0 {
		wins := 0
		for _, r := range in.Returns {
			if r > 0 {
				wins++
			}
		}
		m.WinRate = float64(wins) / float64(len(in.Returns)) * 100
	}

	m.BuyAndHoldReturn = buyAndHoldReturn(in.Assets, in.Series, in.Start, in.End)

	var mocked []string
	for code, s := range in.Series {
		if s.UsedFallback {
			mocked = append(mocked, code)
		}
	}
	if len(mocked) > 0 {
		sort.Strings(mocked)
		m.UsingMockData = true
		m.DataSourceWarning = fmt.Sprintf(
			"synthetic price data used for %s; results do not reflect real market history",
			strings.Join(mocked, ", "))
	}

	return m
}

// buyAndHoldReturn es el retorno (%) de mantener la allocation inicial sin rebalancear.
func buyAndHoldReturn(assets []domain.AssetAllocation, series map[string]domain.PriceSeries, start, end time.Time) float64 {
	total := 0.0
	for _, a := range assets {
		s, ok := series[a.AssetCode]
		if !ok {
			continue
		}
		startPrice, ok := s.PriceAt(start)
		if !ok || startPrice <= 0 {
			continue
		}
		endPrice, _ := s.PriceAt(end)
		total += (endPrice - startPrice) / startPrice * a.Percentage / 100
	}
	return total * 100
}
