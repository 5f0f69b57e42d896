package domain

import (
	"strings"
	"time"
)

// StablePrice es el precio fijo asumido para stablecoins.
const StablePrice = 1.0

var stablecoins = map[string]bool{
	"USDC": true,
	"USDT": true,
	"DAI":  true,
}

// IsStablecoin reports whether code is priced at a flat 1.0 without any lookup.
func IsStablecoin(code string) bool {
	return stablecoins[strings.ToUpper(code)]
}

// PricePoint es un precio observado (o sintético) en un instante.
type PricePoint struct {
	Timestamp time.Time
	Price     float64
}

// PriceSeries es la serie resuelta para un asset durante un backtest.
type PriceSeries struct {
	AssetCode    string
	Points       []PricePoint
	Source       string // nombre de la fuente que devolvió los datos
	UsedFallback bool   // true si los datos son sintéticos
}

// PriceAt devuelve el precio del punto más cercano a t.
// Ante empate de distancia gana el primer punto encontrado (comparación estricta),
// así dos runs con la misma serie siempre eligen el mismo punto.
func (s PriceSeries) PriceAt(t time.Time) (float64, bool) {
	if len(s.Points) == 0 {
		return 0, false
	}
	best := 0
	bestDist := absDuration(s.Points[0].Timestamp.Sub(t))
	for i := 1; i < len(s.Points); i++ {
		d := absDuration(s.Points[i].Timestamp.Sub(t))
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	return s.Points[best].Price, true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
