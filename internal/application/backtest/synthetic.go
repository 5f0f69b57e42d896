package backtest

import (
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/alejandrodnm/vaultbt/internal/domain"
)

const (
	// Cada paso mueve el precio como máximo ±2%.
	walkMaxStep = 0.02
	// El precio sintético queda acotado a [70%, 130%] del precio base.
	walkFloorFactor   = 0.7
	walkCeilingFactor = 1.3
)

// RandomWalk genera una serie sintética acotada alrededor de un precio base.
type RandomWalk struct {
	rng  *rand.Rand
	base float64
}

// NewRandomWalk crea un generador. El rng no se comparte entre goroutines.
func NewRandomWalk(rng *rand.Rand, base float64) *RandomWalk {
	return &RandomWalk{rng: rng, base: base}
}

// Generate devuelve un punto por tick. El primero es exactamente el precio base.
func (w *RandomWalk) Generate(ticks []time.Time) []domain.PricePoint {
	points := make([]domain.PricePoint, 0, len(ticks))
	floor := w.base * walkFloorFactor
	ceiling := w.base * walkCeilingFactor

	price := w.base
	for i, t := range ticks {
		if i > 0 {
			u := (w.rng.Float64()*2 - 1) * walkMaxStep
			price *= 1 + u
			if price < floor {
				price = floor
			} else if price > ceiling {
				price = ceiling
			}
		}
		points = append(points, domain.PricePoint{Timestamp: t, Price: price})
	}
	return points
}

// flatSeries devuelve el mismo precio en cada tick (stablecoins).
func flatSeries(ticks []time.Time, price float64) []domain.PricePoint {
	points := make([]domain.PricePoint, len(ticks))
	for i, t := range ticks {
		points[i] = domain.PricePoint{Timestamp: t, Price: price}
	}
	return points
}

// tickTimes enumera start, start+step, ... hasta el último instante ≤ end.
func tickTimes(start, end time.Time, step time.Duration) []time.Time {
	if step <= 0 || end.Before(start) {
		return nil
	}
	n := int(end.Sub(start)/step) + 1
	ticks := make([]time.Time, 0, n)
	for t := start; !t.After(end); t = t.Add(step) {
		ticks = append(ticks, t)
	}
	return ticks
}

// assetSeed deriva una semilla por asset para que la serie de cada asset no
// dependa del orden en que terminan las goroutines del fan-out.
func assetSeed(seed int64, assetCode string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(assetCode))
	return seed ^ int64(h.Sum64())
}
