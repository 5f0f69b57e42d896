package config

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/alejandrodnm/vaultbt/internal/domain"
	"gopkg.in/yaml.v3"
)

// vaultFile es la forma YAML de un vault. Se traduce a domain.VaultConfig en
// toDomain, donde condiciones y acciones pasan a sus tipos concretos.
type vaultFile struct {
	Name           string      `yaml:"name"`
	ManagementFee  float64     `yaml:"management_fee"`  // % anual
	PerformanceFee float64     `yaml:"performance_fee"` // informativo
	Assets         []assetYAML `yaml:"assets"`
	Rules          []ruleYAML  `yaml:"rules"`
}

type assetYAML struct {
	ID         string  `yaml:"id"`
	Code       string  `yaml:"code"`
	Issuer     string  `yaml:"issuer"`
	Percentage float64 `yaml:"percentage"`
}

type ruleYAML struct {
	ID         string          `yaml:"id"`
	Name       string          `yaml:"name"`
	Enabled    *bool           `yaml:"enabled"` // nil → true
	Priority   int             `yaml:"priority"`
	Conditions []conditionYAML `yaml:"conditions"`
	Actions    []actionYAML    `yaml:"actions"`
}

type conditionYAML struct {
	Type         string  `yaml:"type"` // time | price | allocation | apy
	Asset        string  `yaml:"asset"`
	Operator     string  `yaml:"operator"`
	Value        float64 `yaml:"value"` // time: ms desde el último trigger; allocation: umbral
	Threshold    float64 `yaml:"threshold"`
	Interval     string  `yaml:"interval"` // duración Go, ej. "168h"
	IntervalDays float64 `yaml:"interval_days"`
}

type targetYAML struct {
	Asset      string  `yaml:"asset"`
	Percentage float64 `yaml:"percentage"`
}

type actionYAML struct {
	Type    string            `yaml:"type"` // rebalance | stake | unstake | provide_liquidity | remove_liquidity
	Targets []targetYAML      `yaml:"targets"`
	Params  map[string]string `yaml:"params"`
}

// LoadVault lee la definición YAML de un vault.
func LoadVault(path string) (domain.VaultConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.VaultConfig{}, fmt.Errorf("config.LoadVault: read %q: %w", path, err)
	}
	v, err := ParseVault(data)
	if err != nil {
		return domain.VaultConfig{}, fmt.Errorf("config.LoadVault: %q: %w", path, err)
	}
	return v, nil
}

// ParseVault decodifica y valida un vault YAML.
// Las acciones distintas de rebalance se aceptan pero se loguean como no soportadas.
func ParseVault(data []byte) (domain.VaultConfig, error) {
	var f vaultFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return domain.VaultConfig{}, fmt.Errorf("parse YAML: %w", err)
	}
	return f.toDomain()
}

func (f vaultFile) toDomain() (domain.VaultConfig, error) {
	if len(f.Assets) == 0 {
		return domain.VaultConfig{}, domain.ErrNoAssets
	}

	v := domain.VaultConfig{
		Name:           f.Name,
		ManagementFee:  f.ManagementFee,
		PerformanceFee: f.PerformanceFee,
	}

	seen := make(map[string]bool, len(f.Assets))
	total := 0.0
	for i, a := range f.Assets {
		code := strings.ToUpper(strings.TrimSpace(a.Code))
		if code == "" {
			return domain.VaultConfig{}, fmt.Errorf("asset #%d: missing code", i)
		}
		id := a.ID
		if id == "" {
			id = strings.ToLower(code)
		}
		if seen[id] {
			return domain.VaultConfig{}, fmt.Errorf("asset %q declared twice", id)
		}
		seen[id] = true
		total += a.Percentage
		v.Assets = append(v.Assets, domain.AssetAllocation{
			AssetID:     id,
			AssetCode:   code,
			AssetIssuer: a.Issuer,
			Percentage:  a.Percentage,
		})
	}
	if math.Abs(total-100) > 0.01 {
		slog.Warn("vault allocations do not sum to 100", "vault", f.Name, "total", total)
	}

	for i, r := range f.Rules {
		rule, err := r.toDomain(v)
		if err != nil {
			name := r.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i)
			}
			return domain.VaultConfig{}, fmt.Errorf("rule %s: %w", name, err)
		}
		v.Rules = append(v.Rules, rule)
	}
	return v, nil
}

func (r ruleYAML) toDomain(v domain.VaultConfig) (domain.RebalanceRule, error) {
	rule := domain.RebalanceRule{
		ID:       r.ID,
		Name:     r.Name,
		Enabled:  r.Enabled == nil || *r.Enabled,
		Priority: r.Priority,
	}
	if rule.Name == "" {
		rule.Name = r.ID
	}

	for _, c := range r.Conditions {
		cond, err := c.toDomain(v)
		if err != nil {
			return domain.RebalanceRule{}, err
		}
		rule.Conditions = append(rule.Conditions, cond)
	}

	for _, a := range r.Actions {
		act, err := a.toDomain(v)
		if err != nil {
			return domain.RebalanceRule{}, err
		}
		if act.Kind() != domain.ActionRebalance {
			slog.Warn("unsupported action will be ignored by the simulator",
				"rule", rule.Name, "action", act.Kind())
		}
		rule.Actions = append(rule.Actions, act)
	}
	return rule, nil
}

func (c conditionYAML) toDomain(v domain.VaultConfig) (domain.Condition, error) {
	switch domain.ConditionKind(strings.ToLower(c.Type)) {
	case domain.ConditionTime:
		interval, err := c.interval()
		if err != nil {
			return nil, err
		}
		return domain.TimeCondition{Interval: interval}, nil

	case domain.ConditionPrice:
		op, err := parseOperator(c.Operator)
		if err != nil {
			return nil, err
		}
		if _, ok := v.AssetByID(c.Asset); !ok {
			return nil, fmt.Errorf("price condition: unknown asset %q", c.Asset)
		}
		return domain.PriceCondition{AssetID: c.Asset, Operator: op, Value: c.Value}, nil

	case domain.ConditionAllocation:
		threshold := c.Threshold
		if threshold == 0 {
			threshold = c.Value
		}
		if threshold < 0 {
			return nil, fmt.Errorf("allocation condition: negative threshold %v", threshold)
		}
		if _, ok := v.AssetByID(c.Asset); !ok {
			return nil, fmt.Errorf("allocation condition: unknown asset %q", c.Asset)
		}
		return domain.AllocationCondition{AssetID: c.Asset, Threshold: threshold}, nil

	case domain.ConditionAPY:
		op, err := parseOperator(c.Operator)
		if err != nil {
			return nil, err
		}
		return domain.APYCondition{AssetID: c.Asset, Operator: op, Value: c.Value}, nil
	}
	return nil, fmt.Errorf("unknown condition type %q", c.Type)
}

// interval resuelve la duración de una condición time. interval e
// interval_days tienen prioridad sobre value, que va en milisegundos.
func (c conditionYAML) interval() (time.Duration, error) {
	switch {
	case c.Interval != "":
		d, err := time.ParseDuration(c.Interval)
		if err != nil {
			return 0, fmt.Errorf("time condition: %w", err)
		}
		return d, nil
	case c.IntervalDays != 0:
		return time.Duration(c.IntervalDays * float64(24*time.Hour)), nil
	}
	if c.Value < 0 {
		return 0, fmt.Errorf("time condition: negative value %v", c.Value)
	}
	return time.Duration(c.Value * float64(time.Millisecond)), nil
}

func (a actionYAML) toDomain(v domain.VaultConfig) (domain.Action, error) {
	switch domain.ActionKind(strings.ToLower(a.Type)) {
	case domain.ActionRebalance:
		targets := make([]domain.AssetAllocation, 0, len(a.Targets))
		for _, t := range a.Targets {
			asset, ok := v.AssetByID(t.Asset)
			if !ok {
				return nil, fmt.Errorf("rebalance target: unknown asset %q", t.Asset)
			}
			asset.Percentage = t.Percentage
			targets = append(targets, asset)
		}
		return domain.RebalanceAction{TargetAllocations: targets}, nil
	case domain.ActionStake:
		return domain.StakeAction{Params: a.Params}, nil
	case domain.ActionUnstake:
		return domain.UnstakeAction{Params: a.Params}, nil
	case domain.ActionProvideLiquidity:
		return domain.ProvideLiquidityAction{Params: a.Params}, nil
	case domain.ActionRemoveLiquidity:
		return domain.RemoveLiquidityAction{Params: a.Params}, nil
	}
	return nil, fmt.Errorf("unknown action type %q", a.Type)
}

func parseOperator(s string) (domain.Operator, error) {
	op := domain.Operator(strings.ToLower(s))
	if !op.Valid() {
		return "", fmt.Errorf("unknown operator %q", s)
	}
	return op, nil
}
