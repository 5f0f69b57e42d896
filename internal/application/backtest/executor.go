package backtest

import (
	"time"

	"github.com/alejandrodnm/vaultbt/internal/domain"
)

// RebalanceFeeRate es el costo fijo de cada rebalance (0.1% del valor previo).
// No tiene relación con la management fee anual del vault.
const RebalanceFeeRate = 0.001

const daysPerYear = 365

// ExecuteRebalance aplica los targets de la regla: cobra la fee, reparte el
// resto a precios actuales y reemplaza los holdings. Devuelve la fee cobrada.
// ok es false si la regla no tiene una acción rebalance con targets.
func ExecuteRebalance(p *Portfolio, rule domain.RebalanceRule, prices map[string]float64) (fee float64, ok bool) {
	targets, ok := rule.RebalanceTargets()
	if !ok {
		return 0, false
	}
	before := p.TotalValue()
	fee = before * RebalanceFeeRate
	p.Reallocate(before-fee, targets, prices)
	return fee, true
}

// AccrueManagementFee descuenta la porción de la fee anual que corresponde a
// un tick de duración step. Se modela como reducción del valor agregado, no
// como venta por asset. Devuelve el monto descontado.
func AccrueManagementFee(p *Portfolio, annualPct float64, step time.Duration) float64 {
	if annualPct <= 0 || p.TotalValue() <= 0 {
		return 0
	}
	dailyRate := annualPct / 100 / daysPerYear
	days := float64(step) / float64(24*time.Hour)
	fee := p.TotalValue() * dailyRate * days
	p.ApplyFeeDrag(fee)
	return fee
}
