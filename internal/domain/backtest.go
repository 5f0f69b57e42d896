package domain

import (
	"fmt"
	"time"
)

// DefaultResolution es el paso de simulación por defecto: un tick diario.
const DefaultResolution = 24 * time.Hour

// Request son los parámetros de un backtest.
type Request struct {
	Vault          VaultConfig
	Start          time.Time
	End            time.Time
	InitialCapital float64
	Resolution     time.Duration // 0 → DefaultResolution
}

// ParseRequest construye un Request a partir de fechas ISO-8601 (RFC 3339 o YYYY-MM-DD).
func ParseRequest(vault VaultConfig, start, end string, capital float64, resolution time.Duration) (Request, error) {
	s, err := ParseTime(start)
	if err != nil {
		return Request{}, fmt.Errorf("domain.ParseRequest: start: %w", err)
	}
	e, err := ParseTime(end)
	if err != nil {
		return Request{}, fmt.Errorf("domain.ParseRequest: end: %w", err)
	}
	return Request{
		Vault:          vault,
		Start:          s,
		End:            e,
		InitialCapital: capital,
		Resolution:     resolution,
	}, nil
}

// Validate fails fast on parameters that would make the metrics meaningless.
func (r Request) Validate() error {
	if !r.End.After(r.Start) {
		return &InvalidRangeError{Start: r.Start, End: r.End}
	}
	if r.InitialCapital <= 0 {
		return ErrInvalidCapital
	}
	if len(r.Vault.Assets) == 0 {
		return ErrNoAssets
	}
	return nil
}

// Step devuelve la resolución efectiva del request.
func (r Request) Step() time.Duration {
	if r.Resolution <= 0 {
		return DefaultResolution
	}
	return r.Resolution
}

// ParseTime acepta RFC 3339 (con o sin fracción), fecha-hora sin zona o
// YYYY-MM-DD. Sin zona se asume UTC.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized ISO-8601 time %q", s)
}

// TransactionType clasifica las entradas del timeline.
type TransactionType string

const (
	TxDeposit   TransactionType = "deposit"
	TxWithdraw  TransactionType = "withdraw"
	TxRebalance TransactionType = "rebalance"
	TxFee       TransactionType = "fee"
)

// Transaction es una entrada inmutable del timeline del backtest.
type Transaction struct {
	Timestamp      time.Time
	Type           TransactionType
	Description    string
	PortfolioValue float64
	Allocations    []AssetAllocation
	TriggeredRule  string // ID de la regla, sólo para rebalances
}

// ValuePoint es un valor (portfolio, drawdown) en un instante.
type ValuePoint struct {
	Timestamp time.Time
	Value     float64
}

// AllocationSnapshot son las allocations derivadas en un tick.
type AllocationSnapshot struct {
	Timestamp   time.Time
	Allocations []AssetAllocation
}

// Metrics resume el backtest. Los campos con sufijo % están en porcentaje.
type Metrics struct {
	InitialValue      float64
	FinalValue        float64
	TotalReturn       float64 // %
	AnnualizedReturn  float64 // %
	Volatility        float64 // % anualizada
	SharpeRatio       float64
	MaxDrawdown       float64 // %
	WinRate           float64 // %
	NumRebalances     int
	NumTicks          int
	TotalFees         float64
	BuyAndHoldReturn  float64 // %
	UsingMockData     bool
	DataSourceWarning string
}

// Result es el único artefacto de un backtest; no se modifica tras producirse.
type Result struct {
	ID                    string
	Request               Request
	Metrics               Metrics
	Timeline              []Transaction
	PortfolioValueHistory []ValuePoint
	AllocationHistory     []AllocationSnapshot
	DrawdownHistory       []ValuePoint      // max drawdown acumulado (%) por tick
	PriceSources          map[string]string // asset code → fuente usada
	CreatedAt             time.Time
}

// Rebalances devuelve sólo las transacciones de tipo rebalance.
func (r *Result) Rebalances() []Transaction {
	var out []Transaction
	for _, tx := range r.Timeline {
		if tx.Type == TxRebalance {
			out = append(out, tx)
		}
	}
	return out
}

// RunSummary es la vista liviana de un run guardado.
type RunSummary struct {
	ID          string
	VaultName   string
	Start       time.Time
	End         time.Time
	TotalReturn float64
	FinalValue  float64
	UsingMock   bool
	CreatedAt   time.Time
}
