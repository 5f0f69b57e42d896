package backtest

import (
	"github.com/alejandrodnm/vaultbt/internal/domain"
)

// Portfolio es el estado del vault durante la simulación. Sólo holdings y
// accruedFees son estado real; totalValue y allocations se derivan en Revalue.
type Portfolio struct {
	holdings    map[string]float64 // asset code → cantidad
	accruedFees float64            // management fee acumulada desde el último reparto

	assets      []domain.AssetAllocation // metadata y orden estable de los assets
	totalValue  float64
	allocations []domain.AssetAllocation
}

// NewPortfolio crea un portfolio vacío para los assets del vault.
func NewPortfolio(assets []domain.AssetAllocation) *Portfolio {
	known := make([]domain.AssetAllocation, 0, len(assets))
	seen := make(map[string]bool, len(assets))
	for _, a := range assets {
		if seen[a.AssetCode] {
			continue
		}
		seen[a.AssetCode] = true
		known = append(known, a)
	}
	return &Portfolio{
		holdings: make(map[string]float64),
		assets:   known,
	}
}

// Revalue recalcula totalValue y allocations a partir de holdings y precios.
// Con valor bruto 0 todas las allocations son 0.
func (p *Portfolio) Revalue(prices map[string]float64) {
	values := make([]float64, len(p.assets))
	gross := 0.0
	for i, a := range p.assets {
		v := p.holdings[a.AssetCode] * prices[a.AssetCode]
		values[i] = v
		gross += v
	}

	p.totalValue = gross - p.accruedFees
	if p.totalValue < 0 {
		p.totalValue = 0
	}

	allocs := make([]domain.AssetAllocation, len(p.assets))
	for i, a := range p.assets {
		pct := 0.0
		if gross > 0 {
			pct = values[i] / gross * 100
		}
		allocs[i] = domain.AssetAllocation{
			AssetID:     a.AssetID,
			AssetCode:   a.AssetCode,
			AssetIssuer: a.AssetIssuer,
			Percentage:  pct,
		}
	}
	p.allocations = allocs
}

// Reallocate reemplaza los holdings por completo: value se reparte según
// targets a los precios dados. Los holdings anteriores se descartan.
func (p *Portfolio) Reallocate(value float64, targets []domain.AssetAllocation, prices map[string]float64) {
	next := make(map[string]float64, len(targets))
	for _, t := range targets {
		p.ensureAsset(t)
		price := prices[t.AssetCode]
		if price <= 0 {
			continue
		}
		next[t.AssetCode] += value * t.Percentage / 100 / price
	}
	p.holdings = next
	p.accruedFees = 0
	p.Revalue(prices)
}

// ApplyFeeDrag descuenta amount del valor total sin tocar cantidades.
func (p *Portfolio) ApplyFeeDrag(amount float64) {
	p.accruedFees += amount
	p.totalValue -= amount
	if p.totalValue < 0 {
		p.totalValue = 0
	}
}

// TotalValue devuelve el valor derivado en el último Revalue.
func (p *Portfolio) TotalValue() float64 { return p.totalValue }

// Allocations devuelve una copia de las allocations derivadas.
func (p *Portfolio) Allocations() []domain.AssetAllocation {
	out := make([]domain.AssetAllocation, len(p.allocations))
	copy(out, p.allocations)
	return out
}

// Allocation devuelve el porcentaje actual de un asset (por ID o código).
func (p *Portfolio) Allocation(assetID string) float64 {
	for _, a := range p.allocations {
		if assetID != "" && (a.AssetID == assetID || a.AssetCode == assetID) {
			return a.Percentage
		}
	}
	return 0
}

// Holdings devuelve una copia de las cantidades por asset code.
func (p *Portfolio) Holdings() map[string]float64 {
	out := make(map[string]float64, len(p.holdings))
	for k, v := range p.holdings {
		out[k] = v
	}
	return out
}

func (p *Portfolio) ensureAsset(a domain.AssetAllocation) {
	for _, known := range p.assets {
		if known.AssetCode == a.AssetCode {
			return
		}
	}
	p.assets = append(p.assets, a)
}
