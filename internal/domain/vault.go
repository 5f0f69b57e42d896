package domain

import (
	"math"
	"time"
)

// AssetAllocation es el porcentaje objetivo (o derivado) de un asset dentro del vault.
type AssetAllocation struct {
	AssetID     string
	AssetCode   string
	AssetIssuer string  // vacío para assets nativos
	Percentage  float64 // 0–100
}

// Operator compara un valor observado contra el umbral de una condición.
type Operator string

const (
	OpGreaterThan    Operator = "gt"
	OpLessThan       Operator = "lt"
	OpEqual          Operator = "eq"
	OpGreaterOrEqual Operator = "gte"
	OpLessOrEqual    Operator = "lte"
)

// EqualEpsilon es la tolerancia absoluta del operador eq.
const EqualEpsilon = 0.01

// Valid reports whether op is one of the known operators.
func (op Operator) Valid() bool {
	switch op {
	case OpGreaterThan, OpLessThan, OpEqual, OpGreaterOrEqual, OpLessOrEqual:
		return true
	}
	return false
}

// Compare aplica el operador: observed <op> threshold.
// Un operador desconocido nunca se cumple.
func (op Operator) Compare(observed, threshold float64) bool {
	switch op {
	case OpGreaterThan:
		return observed > threshold
	case OpLessThan:
		return observed < threshold
	case OpEqual:
		return math.Abs(observed-threshold) < EqualEpsilon
	case OpGreaterOrEqual:
		return observed >= threshold
	case OpLessOrEqual:
		return observed <= threshold
	}
	return false
}

// ConditionKind identifica la variante de una condición.
type ConditionKind string

const (
	ConditionTime       ConditionKind = "time"
	ConditionPrice      ConditionKind = "price"
	ConditionAllocation ConditionKind = "allocation"
	ConditionAPY        ConditionKind = "apy"
)

// Condition is a closed sum type: only the variants in this file implement it.
type Condition interface {
	Kind() ConditionKind
	isCondition()
}

// TimeCondition se cumple cuando pasó Interval desde el último trigger de la regla.
type TimeCondition struct {
	Interval time.Duration
}

// PriceCondition compara el precio actual del asset contra Value.
type PriceCondition struct {
	AssetID  string
	Operator Operator
	Value    float64
}

// AllocationCondition se cumple cuando el asset se desvió al menos Threshold
// puntos porcentuales de su target.
type AllocationCondition struct {
	AssetID   string
	Threshold float64
}

// APYCondition is accepted in vault definitions but has no data behind it yet,
// so it never holds.
type APYCondition struct {
	AssetID  string
	Operator Operator
	Value    float64
}

func (TimeCondition) Kind() ConditionKind       { return ConditionTime }
func (PriceCondition) Kind() ConditionKind      { return ConditionPrice }
func (AllocationCondition) Kind() ConditionKind { return ConditionAllocation }
func (APYCondition) Kind() ConditionKind        { return ConditionAPY }

func (TimeCondition) isCondition()       {}
func (PriceCondition) isCondition()      {}
func (AllocationCondition) isCondition() {}
func (APYCondition) isCondition()        {}

// ActionKind identifica la variante de una acción.
type ActionKind string

const (
	ActionRebalance        ActionKind = "rebalance"
	ActionStake            ActionKind = "stake"
	ActionUnstake          ActionKind = "unstake"
	ActionProvideLiquidity ActionKind = "provide_liquidity"
	ActionRemoveLiquidity  ActionKind = "remove_liquidity"
)

// Action is a closed sum type over the action variants below.
type Action interface {
	Kind() ActionKind
	isAction()
}

// RebalanceAction redistribuye el portfolio según TargetAllocations.
type RebalanceAction struct {
	TargetAllocations []AssetAllocation
}

// StakeAction, UnstakeAction, ProvideLiquidityAction y RemoveLiquidityAction
// se aceptan en la definición del vault pero el simulador no las ejecuta.
type StakeAction struct{ Params map[string]string }
type UnstakeAction struct{ Params map[string]string }
type ProvideLiquidityAction struct{ Params map[string]string }
type RemoveLiquidityAction struct{ Params map[string]string }

func (RebalanceAction) Kind() ActionKind        { return ActionRebalance }
func (StakeAction) Kind() ActionKind            { return ActionStake }
func (UnstakeAction) Kind() ActionKind          { return ActionUnstake }
func (ProvideLiquidityAction) Kind() ActionKind { return ActionProvideLiquidity }
func (RemoveLiquidityAction) Kind() ActionKind  { return ActionRemoveLiquidity }

func (RebalanceAction) isAction()        {}
func (StakeAction) isAction()            {}
func (UnstakeAction) isAction()          {}
func (ProvideLiquidityAction) isAction() {}
func (RemoveLiquidityAction) isAction()  {}

// RebalanceRule dispara sus acciones cuando TODAS sus condiciones se cumplen.
type RebalanceRule struct {
	ID         string
	Name       string
	Conditions []Condition
	Actions    []Action
	Enabled    bool
	Priority   int
}

// RebalanceTargets devuelve los targets de la primera RebalanceAction de la regla.
// ok es false si la regla no tiene una acción rebalance con targets.
func (r RebalanceRule) RebalanceTargets() (targets []AssetAllocation, ok bool) {
	for _, a := range r.Actions {
		if rb, isRebalance := a.(RebalanceAction); isRebalance {
			return rb.TargetAllocations, len(rb.TargetAllocations) > 0
		}
	}
	return nil, false
}

// TargetFor devuelve el porcentaje target de un asset según la primera
// RebalanceAction de la regla.
func (r RebalanceRule) TargetFor(assetID string) (float64, bool) {
	targets, ok := r.RebalanceTargets()
	if !ok {
		return 0, false
	}
	for _, t := range targets {
		if t.matches(assetID) {
			return t.Percentage, true
		}
	}
	return 0, false
}

// VaultConfig describe la estrategia: allocations iniciales y reglas.
// Los porcentajes de Assets se asumen (no se validan) sumando 100.
type VaultConfig struct {
	Name           string
	Assets         []AssetAllocation
	Rules          []RebalanceRule
	ManagementFee  float64 // % anual
	PerformanceFee float64 // % sobre ganancias; informativo, el simulador no lo cobra
}

// AssetByID busca un asset del vault por ID o, si no hay match, por código.
func (v VaultConfig) AssetByID(id string) (AssetAllocation, bool) {
	for _, a := range v.Assets {
		if a.matches(id) {
			return a, true
		}
	}
	return AssetAllocation{}, false
}

func (a AssetAllocation) matches(id string) bool {
	return id != "" && (a.AssetID == id || a.AssetCode == id)
}
