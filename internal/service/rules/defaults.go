package rules

import (
	"github.com/marketshield/fraud-detection-engine/internal/domain/fraud"
)

// DefaultRules is the baseline rule set loaded when no rule file is
// configured. Priorities: 1 blocks, 2 steps up verification, 3 monitors.
func DefaultRules() []fraud.FraudRule {
	return []fraud.FraudRule{
		{
			ID:       "bot-block",
			Name:     "Block automated clients",
			Category: "device",
			Enabled:  true,
			Priority: 1,
			Conditions: []fraud.RuleCondition{
				{Field: "device.is_bot", Operator: fraud.OpEq, Value: true},
			},
			Actions: []fraud.RuleAction{
				{Type: fraud.ActionBlockTransaction},
				{Type: fraud.ActionFlagForCompliance},
			},
			CooldownSeconds: 60,
		},
		{
			ID:       "tor-block",
			Name:     "Block Tor connections",
			Category: "ip",
			Enabled:  true,
			Priority: 1,
			Conditions: []fraud.RuleCondition{
				{Field: "ip.connection_type", Operator: fraud.OpEq, Value: "tor"},
			},
			Actions: []fraud.RuleAction{
				{Type: fraud.ActionBlockTransaction},
			},
			CooldownSeconds: 60,
		},
		{
			ID:       "blocked-country",
			Name:     "Block embargoed jurisdictions",
			Category: "ip",
			Enabled:  true,
			Priority: 1,
			Conditions: []fraud.RuleCondition{
				{Field: "ip.is_blocked", Operator: fraud.OpEq, Value: true},
			},
			Actions: []fraud.RuleAction{
				{Type: fraud.ActionBlockTransaction},
				{Type: fraud.ActionFlagForCompliance},
			},
		},
		{
			ID:       "impossible-travel-verify",
			Name:     "Verify identity after impossible travel",
			Category: "ip",
			Enabled:  true,
			Priority: 2,
			Conditions: []fraud.RuleCondition{
				{Field: "ip.travel_impossible", Operator: fraud.OpEq, Value: true},
			},
			Actions: []fraud.RuleAction{
				{Type: fraud.ActionRequire2FA},
				{Type: fraud.ActionEnhancedMonitoring},
			},
			CooldownSeconds: 300,
		},
		{
			ID:       "large-withdrawal-new-device",
			Name:     "Delay large withdrawals from new devices",
			Category: "velocity",
			Enabled:  true,
			Priority: 2,
			Conditions: []fraud.RuleCondition{
				{Field: "transaction.type", Operator: fraud.OpEq, Value: "withdrawal"},
				{Field: "transaction.amount", Operator: fraud.OpGte, Value: 5000.0},
				{Field: "device.is_new", Operator: fraud.OpEq, Value: true},
			},
			Actions: []fraud.RuleAction{
				{Type: fraud.ActionDelayWithdrawal, Parameters: map[string]interface{}{"hold_hours": 24}},
				{Type: fraud.ActionNotifyUser},
			},
		},
		{
			ID:       "multi-account-review",
			Name:     "Review high-confidence multi-accounting",
			Category: "multi_account",
			Enabled:  true,
			Priority: 2,
			Conditions: []fraud.RuleCondition{
				{Field: "multi_account.detected", Operator: fraud.OpEq, Value: true},
				{Field: "multi_account.confidence", Operator: fraud.OpGte, Value: 0.8},
			},
			Actions: []fraud.RuleAction{
				{Type: fraud.ActionManualReview},
				{Type: fraud.ActionEnhancedMonitoring},
			},
			CooldownSeconds:    600,
			MaxTriggersPerHour: 6,
		},
		{
			ID:       "structuring-compliance",
			Name:     "Escalate structuring to compliance",
			Category: "patterns",
			Enabled:  true,
			Priority: 1,
			Conditions: []fraud.RuleCondition{
				{Field: "cycle.is_structuring", Operator: fraud.OpEq, Value: true},
			},
			Actions: []fraud.RuleAction{
				{Type: fraud.ActionFlagForCompliance},
				{Type: fraud.ActionManualReview},
			},
			CooldownSeconds: 3600,
		},
		{
			ID:       "wash-trading-suspend",
			Name:     "Suspend confirmed wash traders",
			Category: "trading",
			Enabled:  true,
			Priority: 1,
			Conditions: []fraud.RuleCondition{
				{Field: "wash.detected", Operator: fraud.OpEq, Value: true},
			},
			Actions: []fraud.RuleAction{
				{Type: fraud.ActionSuspendAccount},
				{Type: fraud.ActionFlagForCompliance},
			},
			CooldownSeconds: 3600,
		},
		{
			ID:       "anomaly-monitor",
			Name:     "Monitor behavioral anomalies",
			Category: "behavior",
			Enabled:  true,
			Priority: 3,
			Conditions: []fraud.RuleCondition{
				{Field: "behavior.is_anomaly", Operator: fraud.OpEq, Value: true},
				{Field: "behavior.has_baseline", Operator: fraud.OpEq, Value: true},
			},
			Actions: []fraud.RuleAction{
				{Type: fraud.ActionEnhancedMonitoring},
			},
			CooldownSeconds: 300,
		},
	}
}
