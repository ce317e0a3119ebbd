package fraud

import (
	"time"
)

// ConditionOperator enumerates the comparisons a rule condition may use
type ConditionOperator string

const (
	OpEq        ConditionOperator = "eq"
	OpNeq       ConditionOperator = "neq"
	OpGt        ConditionOperator = "gt"
	OpGte       ConditionOperator = "gte"
	OpLt        ConditionOperator = "lt"
	OpLte       ConditionOperator = "lte"
	OpIn        ConditionOperator = "in"
	OpNotIn     ConditionOperator = "not_in"
	OpContains  ConditionOperator = "contains"
	OpRegex     ConditionOperator = "regex"
	OpExists    ConditionOperator = "exists"
	OpNotExists ConditionOperator = "not_exists"
)

// IsValid checks if the operator is one the engine can evaluate
func (o ConditionOperator) IsValid() bool {
	switch o {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpIn, OpNotIn,
		OpContains, OpRegex, OpExists, OpNotExists:
		return true
	default:
		return false
	}
}

// RuleCondition is one field comparison. All conditions of a rule must pass
// for the rule to trigger.
type RuleCondition struct {
	Field    string            `json:"field" validate:"required"`
	Operator ConditionOperator `json:"operator" validate:"required"`
	Value    interface{}       `json:"value,omitempty"`
}

// RuleAction is one action a triggered rule asks for
type RuleAction struct {
	Type       RecommendedAction      `json:"type" validate:"required"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// FraudRule is a declarative condition→action rule. Rules are data, not
// code: engine behavior is fully determined by the active rule set.
type FraudRule struct {
	ID                 string          `json:"id" validate:"required"`
	Name               string          `json:"name" validate:"required"`
	Category           string          `json:"category"`
	Enabled            bool            `json:"enabled"`
	Priority           int             `json:"priority" validate:"gte=1"`
	Conditions         []RuleCondition `json:"conditions" validate:"required,min=1,dive"`
	Actions            []RuleAction    `json:"actions" validate:"required,min=1,dive"`
	CooldownSeconds    int             `json:"cooldown_seconds,omitempty" validate:"gte=0"`
	MaxTriggersPerHour int             `json:"max_triggers_per_hour,omitempty" validate:"gte=0"`
}

// Cooldown returns the rule's per-trigger cooldown as a duration
func (r *FraudRule) Cooldown() time.Duration {
	return time.Duration(r.CooldownSeconds) * time.Second
}

// SeverityForPriority maps rule priority to signal severity: priority 1 is
// high, 2 is medium, everything else low.
func SeverityForPriority(priority int) Severity {
	switch priority {
	case 1:
		return SeverityHigh
	case 2:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
