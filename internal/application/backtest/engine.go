package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/vaultbt/internal/domain"
	"github.com/google/uuid"
)

// Engine corre backtests. Cada Run construye su propio estado, por lo que un
// mismo Engine puede usarse desde varias goroutines a la vez.
type Engine struct {
	resolver        *Resolver
	feeTransactions bool
	now             func() time.Time
}

// Option configura un Engine.
type Option func(*Engine)

// WithFeeTransactions hace que cada tick con management fee > 0 deje una
// transacción de tipo fee en el timeline.
func WithFeeTransactions() Option {
	return func(e *Engine) {
		e.feeTransactions = true
	}
}

// New crea un Engine que resuelve precios con resolver.
func New(resolver *Resolver, opts ...Option) *Engine {
	e := &Engine{
		resolver: resolver,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run ejecuta el backtest completo: resuelve precios, deposita el capital
// inicial, recorre los ticks de Start a End y calcula las métricas.
// ctx sólo se consulta entre ticks; el engine no impone timeouts propios.
func (e *Engine) Run(ctx context.Context, req domain.Request) (*domain.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("backtest.Run: %w", err)
	}
	step := req.Step()

	slog.Info("backtest starting",
		"vault", req.Vault.Name,
		"assets", len(req.Vault.Assets),
		"rules", len(req.Vault.Rules),
		"start", req.Start.Format(time.RFC3339),
		"end", req.End.Format(time.RFC3339),
		"resolution", step,
		"capital", req.InitialCapital,
	)

	series := e.resolver.ResolveAll(ctx, req.Vault.Assets, req.Start, req.End, step)

	sim := newSimulation(req, series, e.feeTransactions)
	sim.deposit(req.Start)

	for t := req.Start; !t.After(req.End); t = t.Add(step) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("backtest.Run: interrupted at %s: %w", t.Format(time.RFC3339), err)
		}
		sim.tick(t)
	}

	metrics := CalculateMetrics(MetricsInput{
		InitialCapital: req.InitialCapital,
		FinalValue:     sim.portfolio.TotalValue(),
		Start:          req.Start,
		End:            req.End,
		Returns:        sim.returns,
		MaxDrawdown:    sim.maxDrawdown,
		NumRebalances:  sim.numRebalances,
		NumTicks:       len(sim.values),
		TotalFees:      sim.totalFees,
		Assets:         req.Vault.Assets,
		Series:         series,
	})

	sources := make(map[string]string, len(series))
	for code, s := range series {
		sources[code] = s.Source
	}

	result := &domain.Result{
		ID:                    uuid.New().String(),
		Request:               req,
		Metrics:               metrics,
		Timeline:              sim.timeline,
		PortfolioValueHistory: sim.values,
		AllocationHistory:     sim.allocations,
		DrawdownHistory:       sim.drawdowns,
		PriceSources:          sources,
		CreatedAt:             e.now().UTC(),
	}

	if metrics.UsingMockData {
		slog.Warn("backtest used synthetic prices", "warning", metrics.DataSourceWarning)
	}
	slog.Info("backtest complete",
		"id", result.ID,
		"ticks", metrics.NumTicks,
		"rebalances", metrics.NumRebalances,
		"final_value", fmt.Sprintf("%.2f", metrics.FinalValue),
		"total_return_pct", fmt.Sprintf("%.2f", metrics.TotalReturn),
	)

	return result, nil
}

// simulation es el estado de un único Run. No se comparte entre runs.
type simulation struct {
	vault           domain.VaultConfig
	step            time.Duration
	capital         float64
	series          map[string]domain.PriceSeries
	feeTransactions bool

	portfolio     *Portfolio
	rules         *RuleEngine
	lastRebalance time.Time

	timeline    []domain.Transaction
	values      []domain.ValuePoint
	allocations []domain.AllocationSnapshot
	drawdowns   []domain.ValuePoint
	returns     []float64

	prevValue     float64
	peak          float64
	maxDrawdown   float64
	totalFees     float64
	numRebalances int
}

func newSimulation(req domain.Request, series map[string]domain.PriceSeries, feeTransactions bool) *simulation {
	return &simulation{
		vault:           req.Vault,
		step:            req.Step(),
		capital:         req.InitialCapital,
		series:          series,
		feeTransactions: feeTransactions,
		portfolio:       NewPortfolio(req.Vault.Assets),
		rules:           NewRuleEngine(req.Vault),
		lastRebalance:   neverTriggered,
	}
}

// deposit convierte el capital inicial en holdings a precios de start.
func (s *simulation) deposit(start time.Time) {
	prices := s.pricesAt(start)
	s.portfolio.Reallocate(s.capital, s.vault.Assets, prices)
	// el valor depositado es la base del primer retorno tick a tick
	s.prevValue = s.portfolio.TotalValue()
	s.timeline = append(s.timeline, domain.Transaction{
		Timestamp:      start,
		Type:           domain.TxDeposit,
		Description:    fmt.Sprintf("Initial deposit of %.2f", s.capital),
		PortfolioValue: s.portfolio.TotalValue(),
		Allocations:    s.portfolio.Allocations(),
	})
}

func (s *simulation) tick(t time.Time) {
	prices := s.pricesAt(t)
	s.portfolio.Revalue(prices)

	if fee := AccrueManagementFee(s.portfolio, s.vault.ManagementFee, s.step); fee > 0 {
		s.totalFees += fee
		if s.feeTransactions {
			s.timeline = append(s.timeline, domain.Transaction{
				Timestamp:      t,
				Type:           domain.TxFee,
				Description:    fmt.Sprintf("Management fee accrual of %.6f", fee),
				PortfolioValue: s.portfolio.TotalValue(),
				Allocations:    s.portfolio.Allocations(),
			})
		}
	}

	if t.Sub(s.lastRebalance) >= GlobalCooldown {
		s.applyRules(t, prices)
	}

	s.record(t)
}

// applyRules ejecuta TODAS las reglas disparadas, no sólo la de mayor prioridad.
func (s *simulation) applyRules(t time.Time, prices map[string]float64) {
	for _, trig := range s.rules.Evaluate(t, s.portfolio, prices) {
		fee, ok := ExecuteRebalance(s.portfolio, trig.Rule, prices)
		if !ok {
			slog.Debug("rule has no rebalance targets, skipping", "rule", trig.Rule.Name)
			continue
		}
		s.totalFees += fee
		s.numRebalances++
		s.rules.MarkTriggered(trig, t)
		s.lastRebalance = t

		slog.Debug("rebalance executed",
			"rule", trig.Rule.Name,
			"at", t.Format(time.RFC3339),
			"fee", fee,
			"value", s.portfolio.TotalValue(),
		)

		s.timeline = append(s.timeline, domain.Transaction{
			Timestamp:      t,
			Type:           domain.TxRebalance,
			Description:    fmt.Sprintf("Rebalance triggered by rule %q (fee %.4f)", trig.Rule.Name, fee),
			PortfolioValue: s.portfolio.TotalValue(),
			Allocations:    s.portfolio.Allocations(),
			TriggeredRule:  trig.Rule.ID,
		})
	}
}

func (s *simulation) record(t time.Time) {
	value := s.portfolio.TotalValue()
	s.values = append(s.values, domain.ValuePoint{Timestamp: t, Value: value})
	s.allocations = append(s.allocations, domain.AllocationSnapshot{
		Timestamp:   t,
		Allocations: s.portfolio.Allocations(),
	})

	if s.prevValue > 0 {
		s.returns = append(s.returns, (value-s.prevValue)/s.prevValue)
	}
	s.prevValue = value

	if value > s.peak {
		s.peak = value
	}
	if s.peak > 0 {
		if dd := (s.peak - value) / s.peak; dd > s.maxDrawdown {
			s.maxDrawdown = dd
		}
	}
	s.drawdowns = append(s.drawdowns, domain.ValuePoint{Timestamp: t, Value: s.maxDrawdown * 100})
}

func (s *simulation) pricesAt(t time.Time) map[string]float64 {
	prices := make(map[string]float64, len(s.series))
	for code, series := range s.series {
		if p, ok := series.PriceAt(t); ok {
			prices[code] = p
		}
	}
	return prices
}
