package storage

import (
	"time"

	"github.com/alejandrodnm/vaultbt/internal/domain"
)

// storedResult es la forma JSON de un run en la columna payload.
// Las reglas son sum types sin codec propio y no se guardan.
type storedResult struct {
	ID             string                      `json:"id"`
	VaultName      string                      `json:"vault_name"`
	Assets         []domain.AssetAllocation    `json:"assets"`
	ManagementFee  float64                     `json:"management_fee"`
	PerformanceFee float64                     `json:"performance_fee"`
	NumRules       int                         `json:"num_rules"`
	Start          time.Time                   `json:"start"`
	End            time.Time                   `json:"end"`
	InitialCapital float64                     `json:"initial_capital"`
	Resolution     time.Duration               `json:"resolution_ns"`
	Metrics        domain.Metrics              `json:"metrics"`
	Timeline       []domain.Transaction        `json:"timeline"`
	Values         []domain.ValuePoint         `json:"values"`
	Allocations    []domain.AllocationSnapshot `json:"allocations"`
	Drawdowns      []domain.ValuePoint         `json:"drawdowns"`
	PriceSources   map[string]string           `json:"price_sources"`
	CreatedAt      time.Time                   `json:"created_at"`
}

func newStoredResult(r *domain.Result) storedResult {
	return storedResult{
		ID:             r.ID,
		VaultName:      r.Request.Vault.Name,
		Assets:         r.Request.Vault.Assets,
		ManagementFee:  r.Request.Vault.ManagementFee,
		PerformanceFee: r.Request.Vault.PerformanceFee,
		NumRules:       len(r.Request.Vault.Rules),
		Start:          r.Request.Start,
		End:            r.Request.End,
		InitialCapital: r.Request.InitialCapital,
		Resolution:     r.Request.Resolution,
		Metrics:        r.Metrics,
		Timeline:       r.Timeline,
		Values:         r.PortfolioValueHistory,
		Allocations:    r.AllocationHistory,
		Drawdowns:      r.DrawdownHistory,
		PriceSources:   r.PriceSources,
		CreatedAt:      r.CreatedAt,
	}
}

func (s storedResult) toDomain() *domain.Result {
	return &domain.Result{
		ID: s.ID,
		Request: domain.Request{
			Vault: domain.VaultConfig{
				Name:           s.VaultName,
				Assets:         s.Assets,
				ManagementFee:  s.ManagementFee,
				PerformanceFee: s.PerformanceFee,
			},
			Start:          s.Start,
			End:            s.End,
			InitialCapital: s.InitialCapital,
			Resolution:     s.Resolution,
		},
		Metrics:               s.Metrics,
		Timeline:              s.Timeline,
		PortfolioValueHistory: s.Values,
		AllocationHistory:     s.Allocations,
		DrawdownHistory:       s.Drawdowns,
		PriceSources:          s.PriceSources,
		CreatedAt:             s.CreatedAt,
	}
}
