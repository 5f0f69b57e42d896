package backtest

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/vaultbt/internal/domain"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// constantSource devuelve un precio constante por tick para los assets conocidos.
type constantSource struct {
	name   string
	prices map[string]float64
	err    error
	calls  atomic.Int32
}

func (s *constantSource) Name() string { return s.name }

func (s *constantSource) FetchPriceHistory(_ context.Context, asset domain.AssetAllocation, from, to time.Time, resolution time.Duration) ([]domain.PricePoint, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	price, ok := s.prices[asset.AssetCode]
	if !ok {
		return nil, nil
	}
	return flatSeries(tickTimes(from, to, resolution), price), nil
}

type panicSource struct{}

func (panicSource) Name() string { return "panic" }

func (panicSource) FetchPriceHistory(context.Context, domain.AssetAllocation, time.Time, time.Time, time.Duration) ([]domain.PricePoint, error) {
	panic("boom")
}

var errUnavailable = errors.New("source unavailable")

func xlm(pct float64) domain.AssetAllocation {
	return domain.AssetAllocation{AssetID: "xlm", AssetCode: "XLM", Percentage: pct}
}

func usdc(pct float64) domain.AssetAllocation {
	return domain.AssetAllocation{AssetID: "usdc", AssetCode: "USDC", AssetIssuer: "GA5Z", Percentage: pct}
}

func rebalanceTo(targets ...domain.AssetAllocation) domain.RebalanceAction {
	return domain.RebalanceAction{TargetAllocations: targets}
}
