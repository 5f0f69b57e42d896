package backtest

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/alejandrodnm/vaultbt/internal/domain"
)

// GlobalCooldown es el tiempo mínimo entre dos ticks con rebalance, para cualquier regla.
const GlobalCooldown = 24 * time.Hour

// neverTriggered es el reloj inicial de cada regla (epoch).
var neverTriggered = time.UnixMilli(0).UTC()

// RuleEngine evalúa las reglas del vault y lleva el reloj de cooldown de cada una.
type RuleEngine struct {
	vault       domain.VaultConfig
	keys        []string
	lastTrigger map[string]time.Time
}

// NewRuleEngine crea un motor de reglas para el vault.
func NewRuleEngine(vault domain.VaultConfig) *RuleEngine {
	keys := make([]string, len(vault.Rules))
	for i, rule := range vault.Rules {
		keys[i] = ruleKey(i, rule)
	}
	return &RuleEngine{
		vault:       vault,
		keys:        keys,
		lastTrigger: make(map[string]time.Time, len(vault.Rules)),
	}
}

// Triggered es una regla que pasó todas sus condiciones en un tick.
type Triggered struct {
	Rule domain.RebalanceRule
	key  string
}

// Evaluate devuelve las reglas habilitadas cuyas condiciones se cumplen todas,
// ordenadas por prioridad descendente (empates: orden original).
func (e *RuleEngine) Evaluate(now time.Time, p *Portfolio, prices map[string]float64) []Triggered {
	var out []Triggered
	for i, rule := range e.vault.Rules {
		if !rule.Enabled {
			continue
		}
		if e.allHold(e.keys[i], rule, now, p, prices) {
			out = append(out, Triggered{Rule: rule, key: e.keys[i]})
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Rule.Priority > out[b].Rule.Priority
	})
	return out
}

// MarkTriggered reinicia el reloj de cooldown de la regla.
func (e *RuleEngine) MarkTriggered(t Triggered, at time.Time) {
	e.lastTrigger[t.key] = at
}

// LastTriggered devuelve el último trigger de una regla, o epoch si nunca disparó.
func (e *RuleEngine) LastTriggered(ruleID string) time.Time {
	if at, ok := e.lastTrigger[ruleID]; ok {
		return at
	}
	return neverTriggered
}

func (e *RuleEngine) allHold(key string, rule domain.RebalanceRule, now time.Time, p *Portfolio, prices map[string]float64) bool {
	for _, c := range rule.Conditions {
		if !e.holds(key, c, rule, now, p, prices) {
			return false
		}
	}
	return true
}

func (e *RuleEngine) holds(key string, c domain.Condition, rule domain.RebalanceRule, now time.Time, p *Portfolio, prices map[string]float64) bool {
	switch c := c.(type) {
	case domain.TimeCondition:
		return now.Sub(e.LastTriggered(key)) >= c.Interval
	case domain.AllocationCondition:
		target, ok := rule.TargetFor(c.AssetID)
		if !ok {
			return false
		}
		return math.Abs(p.Allocation(c.AssetID)-target) >= c.Threshold
	case domain.PriceCondition:
		asset, ok := e.vault.AssetByID(c.AssetID)
		if !ok {
			return false
		}
		price, ok := prices[asset.AssetCode]
		if !ok {
			return false
		}
		return c.Operator.Compare(price, c.Value)
	case domain.APYCondition:
		return false
	}
	return false
}

func ruleKey(i int, rule domain.RebalanceRule) string {
	if rule.ID != "" {
		return rule.ID
	}
	return fmt.Sprintf("rule#%d", i)
}
