package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/alejandrodnm/vaultbt/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteRebalance_FeeConservation(t *testing.T) {
	prices := map[string]float64{"XLM": 0.137, "USDC": 1}
	p := NewPortfolio([]domain.AssetAllocation{xlm(80), usdc(20)})
	p.Reallocate(2500, []domain.AssetAllocation{xlm(80), usdc(20)}, prices)
	before := p.TotalValue()

	rule := domain.RebalanceRule{Actions: []domain.Action{rebalanceTo(xlm(50), usdc(50))}}
	fee, ok := ExecuteRebalance(p, rule, prices)

	require.True(t, ok)
	assert.InDelta(t, before*0.001, fee, 1e-9)
	assert.InDelta(t, before*(1-RebalanceFeeRate), p.TotalValue(), 1e-9)
	assert.InDelta(t, 50, p.Allocation("xlm"), 1e-9)
	assert.InDelta(t, 50, p.Allocation("usdc"), 1e-9)
}

func TestExecuteRebalance_MalformedRuleIsNoop(t *testing.T) {
	prices := map[string]float64{"USDC": 1}
	p := NewPortfolio([]domain.AssetAllocation{usdc(100)})
	p.Reallocate(1000, []domain.AssetAllocation{usdc(100)}, prices)

	rules := []domain.RebalanceRule{
		{Actions: nil},
		{Actions: []domain.Action{domain.RebalanceAction{}}},
		{Actions: []domain.Action{domain.StakeAction{}, domain.ProvideLiquidityAction{}}},
	}
	for _, r := range rules {
		fee, ok := ExecuteRebalance(p, r, prices)
		assert.False(t, ok)
		assert.Zero(t, fee)
	}
	assert.InDelta(t, 1000, p.TotalValue(), 1e-9)
}

func TestExecuteRebalance_UsesFirstRebalanceAction(t *testing.T) {
	prices := map[string]float64{"XLM": 0.1, "USDC": 1}
	p := NewPortfolio([]domain.AssetAllocation{xlm(50), usdc(50)})
	p.Reallocate(1000, []domain.AssetAllocation{xlm(50), usdc(50)}, prices)

	rule := domain.RebalanceRule{Actions: []domain.Action{
		domain.UnstakeAction{},
		rebalanceTo(usdc(100)),
		rebalanceTo(xlm(100)),
	}}
	_, ok := ExecuteRebalance(p, rule, prices)
	require.True(t, ok)
	assert.InDelta(t, 100, p.Allocation("usdc"), 1e-9)
}

func TestAccrueManagementFee(t *testing.T) {
	prices := map[string]float64{"USDC": 1}
	p := NewPortfolio([]domain.AssetAllocation{usdc(100)})
	p.Reallocate(1000, []domain.AssetAllocation{usdc(100)}, prices)

	fee := AccrueManagementFee(p, 3.65, 24*time.Hour)
	assert.InDelta(t, 0.1, fee, 1e-12) // 1000 × 3.65%/365
	assert.InDelta(t, 999.9, p.TotalValue(), 1e-9)

	// un tick horario cobra 1/24 de la fee diaria
	p.Revalue(prices)
	fee = AccrueManagementFee(p, 3.65, time.Hour)
	assert.InDelta(t, 999.9*0.0001/24, fee, 1e-12)

	assert.Zero(t, AccrueManagementFee(p, 0, 24*time.Hour))
	assert.False(t, math.IsNaN(p.TotalValue()))
}
