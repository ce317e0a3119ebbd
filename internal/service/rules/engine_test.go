package rules

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketshield/fraud-detection-engine/internal/domain/fraud"
	"github.com/marketshield/fraud-detection-engine/internal/service/analysis"
	"github.com/marketshield/fraud-detection-engine/internal/service/device"
	"github.com/marketshield/fraud-detection-engine/internal/service/ipintel"
)

func botContext() *analysis.Context {
	return &analysis.Context{
		EntityID:   "tx-1",
		EntityType: fraud.EntityTypeTransaction,
		UserID:     "user-1",
		ActionType: "withdrawal",
		Amount:     decimal.NewFromInt(9000),
		Timestamp:  time.Date(2026, 8, 24, 3, 0, 0, 0, time.UTC),
		Device:     &device.Result{IsBot: true, IsNewDevice: true, TrustScore: 0, RiskScore: 1},
	}
}

func singleRule(r fraud.FraudRule) []fraud.FraudRule { return []fraud.FraudRule{r} }

func TestEngine_RejectsUnknownField(t *testing.T) {
	_, err := NewEngine(singleRule(fraud.FraudRule{
		ID:       "r1",
		Name:     "bad field",
		Enabled:  true,
		Priority: 1,
		Conditions: []fraud.RuleCondition{
			{Field: "device.is_bott", Operator: fraud.OpEq, Value: true},
		},
		Actions: []fraud.RuleAction{{Type: fraud.ActionManualReview}},
	}), zap.NewNop())
	assert.Error(t, err, "a typo in a rule field must fail at load time")
}

func TestEngine_RejectsUnknownOperator(t *testing.T) {
	_, err := NewEngine(singleRule(fraud.FraudRule{
		ID:       "r1",
		Name:     "bad operator",
		Enabled:  true,
		Priority: 1,
		Conditions: []fraud.RuleCondition{
			{Field: "device.is_bot", Operator: "equals", Value: true},
		},
		Actions: []fraud.RuleAction{{Type: fraud.ActionManualReview}},
	}), zap.NewNop())
	assert.Error(t, err)
}

func TestEngine_RejectsDuplicateIDs(t *testing.T) {
	rule := fraud.FraudRule{
		ID:       "r1",
		Name:     "dup",
		Enabled:  true,
		Priority: 1,
		Conditions: []fraud.RuleCondition{
			{Field: "device.is_bot", Operator: fraud.OpEq, Value: true},
		},
		Actions: []fraud.RuleAction{{Type: fraud.ActionManualReview}},
	}
	_, err := NewEngine([]fraud.FraudRule{rule, rule}, zap.NewNop())
	assert.Error(t, err)
}

func TestEngine_RejectsInvalidRegex(t *testing.T) {
	_, err := NewEngine(singleRule(fraud.FraudRule{
		ID:       "r1",
		Name:     "bad regex",
		Enabled:  true,
		Priority: 1,
		Conditions: []fraud.RuleCondition{
			{Field: "ip.country", Operator: fraud.OpRegex, Value: "["},
		},
		Actions: []fraud.RuleAction{{Type: fraud.ActionManualReview}},
	}), zap.NewNop())
	assert.Error(t, err)
}

func TestEngine_EvaluateMatchesAllConditions(t *testing.T) {
	e, err := NewEngine(singleRule(fraud.FraudRule{
		ID:       "withdrawal-new-device",
		Name:     "large withdrawal from new device",
		Enabled:  true,
		Priority: 2,
		Conditions: []fraud.RuleCondition{
			{Field: "transaction.type", Operator: fraud.OpEq, Value: "withdrawal"},
			{Field: "transaction.amount", Operator: fraud.OpGte, Value: 5000.0},
			{Field: "device.is_new", Operator: fraud.OpEq, Value: true},
		},
		Actions: []fraud.RuleAction{{Type: fraud.ActionDelayWithdrawal}},
	}), zap.NewNop())
	require.NoError(t, err)

	triggered := e.Evaluate(context.Background(), botContext())
	require.Len(t, triggered, 1)
	assert.Equal(t, "withdrawal-new-device", triggered[0].RuleID)

	small := botContext()
	small.Amount = decimal.NewFromInt(100)
	assert.Empty(t, e.Evaluate(context.Background(), small))
}

func TestEngine_DisabledRulesSkipped(t *testing.T) {
	e, err := NewEngine(singleRule(fraud.FraudRule{
		ID:       "r1",
		Name:     "disabled",
		Enabled:  false,
		Priority: 1,
		Conditions: []fraud.RuleCondition{
			{Field: "device.is_bot", Operator: fraud.OpEq, Value: true},
		},
		Actions: []fraud.RuleAction{{Type: fraud.ActionBlockTransaction}},
	}), zap.NewNop())
	require.NoError(t, err)

	assert.Empty(t, e.Evaluate(context.Background(), botContext()))
}

func TestEngine_AbsentFieldFailsCondition(t *testing.T) {
	e, err := NewEngine(singleRule(fraud.FraudRule{
		ID:       "r1",
		Name:     "needs ip",
		Enabled:  true,
		Priority: 1,
		Conditions: []fraud.RuleCondition{
			{Field: "ip.risk_score", Operator: fraud.OpGt, Value: 0.5},
		},
		Actions: []fraud.RuleAction{{Type: fraud.ActionManualReview}},
	}), zap.NewNop())
	require.NoError(t, err)

	// Context has no IP analysis at all.
	assert.Empty(t, e.Evaluate(context.Background(), botContext()))
}

func TestEngine_ExistsOperators(t *testing.T) {
	e, err := NewEngine([]fraud.FraudRule{
		{
			ID: "has-ip", Name: "ip present", Enabled: true, Priority: 1,
			Conditions: []fraud.RuleCondition{{Field: "ip.risk_score", Operator: fraud.OpExists}},
			Actions:    []fraud.RuleAction{{Type: fraud.ActionEnhancedMonitoring}},
		},
		{
			ID: "no-device", Name: "device missing", Enabled: true, Priority: 2,
			Conditions: []fraud.RuleCondition{{Field: "device.trust_score", Operator: fraud.OpNotExists}},
			Actions:    []fraud.RuleAction{{Type: fraud.ActionRequireVerification}},
		},
	}, zap.NewNop())
	require.NoError(t, err)

	ac := &analysis.Context{
		UserID: "user-1",
		IP:     &ipintel.Result{RiskScore: 0.2},
	}
	triggered := e.Evaluate(context.Background(), ac)
	require.Len(t, triggered, 2)
	assert.Equal(t, "has-ip", triggered[0].RuleID)
	assert.Equal(t, "no-device", triggered[1].RuleID)
}

func TestEngine_OperatorTable(t *testing.T) {
	tests := []struct {
		name string
		cond fraud.RuleCondition
		want bool
	}{
		{"eq string", fraud.RuleCondition{Field: "transaction.type", Operator: fraud.OpEq, Value: "withdrawal"}, true},
		{"neq string", fraud.RuleCondition{Field: "transaction.type", Operator: fraud.OpNeq, Value: "deposit"}, true},
		{"gt", fraud.RuleCondition{Field: "transaction.amount", Operator: fraud.OpGt, Value: 8999.0}, true},
		{"lt false", fraud.RuleCondition{Field: "transaction.amount", Operator: fraud.OpLt, Value: 8999.0}, false},
		{"lte equal", fraud.RuleCondition{Field: "transaction.amount", Operator: fraud.OpLte, Value: 9000.0}, true},
		{"in", fraud.RuleCondition{Field: "transaction.type", Operator: fraud.OpIn, Value: []interface{}{"withdrawal", "transfer"}}, true},
		{"not_in", fraud.RuleCondition{Field: "transaction.type", Operator: fraud.OpNotIn, Value: []interface{}{"deposit"}}, true},
		{"contains", fraud.RuleCondition{Field: "transaction.type", Operator: fraud.OpContains, Value: "draw"}, true},
		{"regex", fraud.RuleCondition{Field: "transaction.type", Operator: fraud.OpRegex, Value: "^with"}, true},
		{"hour int vs json float", fraud.RuleCondition{Field: "transaction.hour", Operator: fraud.OpEq, Value: 3.0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEngine(singleRule(fraud.FraudRule{
				ID: "r1", Name: tt.name, Enabled: true, Priority: 1,
				Conditions: []fraud.RuleCondition{tt.cond},
				Actions:    []fraud.RuleAction{{Type: fraud.ActionManualReview}},
			}), zap.NewNop())
			require.NoError(t, err)
			triggered := e.Evaluate(context.Background(), botContext())
			assert.Equal(t, tt.want, len(triggered) == 1)
		})
	}
}

func TestEngine_PriorityOrdering(t *testing.T) {
	cond := []fraud.RuleCondition{{Field: "device.is_bot", Operator: fraud.OpEq, Value: true}}
	e, err := NewEngine([]fraud.FraudRule{
		{ID: "low", Name: "low", Enabled: true, Priority: 3, Conditions: cond, Actions: []fraud.RuleAction{{Type: fraud.ActionNotifyUser}}},
		{ID: "high", Name: "high", Enabled: true, Priority: 1, Conditions: cond, Actions: []fraud.RuleAction{{Type: fraud.ActionBlockTransaction}}},
		{ID: "mid", Name: "mid", Enabled: true, Priority: 2, Conditions: cond, Actions: []fraud.RuleAction{{Type: fraud.ActionManualReview}}},
	}, zap.NewNop())
	require.NoError(t, err)

	triggered := e.Evaluate(context.Background(), botContext())
	require.Len(t, triggered, 3)
	assert.Equal(t, []string{"high", "mid", "low"}, []string{triggered[0].RuleID, triggered[1].RuleID, triggered[2].RuleID})
}

func TestEngine_Determinism(t *testing.T) {
	e, err := NewEngine(DefaultRules(), zap.NewNop())
	require.NoError(t, err)
	e2, err := NewEngine(DefaultRules(), zap.NewNop())
	require.NoError(t, err)

	first := e.Evaluate(context.Background(), botContext())
	second := e2.Evaluate(context.Background(), botContext())
	require.Equal(t, len(first), len(second), "identical context and rules produce identical triggers")
	for i := range first {
		assert.Equal(t, first[i].RuleID, second[i].RuleID)
	}
}

func TestEngine_Cooldown(t *testing.T) {
	e, err := NewEngine(singleRule(fraud.FraudRule{
		ID: "r1", Name: "cooldown", Enabled: true, Priority: 1,
		Conditions:      []fraud.RuleCondition{{Field: "device.is_bot", Operator: fraud.OpEq, Value: true}},
		Actions:         []fraud.RuleAction{{Type: fraud.ActionBlockTransaction}},
		CooldownSeconds: 60,
	}), zap.NewNop())
	require.NoError(t, err)

	assert.Len(t, e.Evaluate(context.Background(), botContext()), 1)
	assert.Empty(t, e.Evaluate(context.Background(), botContext()), "second trigger inside the cooldown is suppressed")
}

func TestEngine_HourlyTriggerCap(t *testing.T) {
	e, err := NewEngine(singleRule(fraud.FraudRule{
		ID: "r1", Name: "capped", Enabled: true, Priority: 1,
		Conditions:         []fraud.RuleCondition{{Field: "device.is_bot", Operator: fraud.OpEq, Value: true}},
		Actions:            []fraud.RuleAction{{Type: fraud.ActionManualReview}},
		MaxTriggersPerHour: 3,
	}), zap.NewNop())
	require.NoError(t, err)

	fired := 0
	for i := 0; i < 10; i++ {
		fired += len(e.Evaluate(context.Background(), botContext()))
	}
	assert.Equal(t, 3, fired, "burst above the hourly cap is suppressed")
}

func TestSignals_SeverityFromPriority(t *testing.T) {
	signals := Signals([]TriggeredRule{
		{RuleID: "a", RuleName: "a", Priority: 1},
		{RuleID: "b", RuleName: "b", Priority: 2},
		{RuleID: "c", RuleName: "c", Priority: 5},
	})
	require.Len(t, signals, 3)
	assert.Equal(t, fraud.SeverityHigh, signals[0].Severity)
	assert.Equal(t, fraud.SeverityMedium, signals[1].Severity)
	assert.Equal(t, fraud.SeverityLow, signals[2].Severity)
	for _, s := range signals {
		assert.Equal(t, fraud.SignalRuleTriggered, s.Type)
	}
}

func TestActionsToExecute_DedupKeepsHighestPriority(t *testing.T) {
	actions := ActionsToExecute([]TriggeredRule{
		{RuleID: "a", Priority: 1, Actions: []fraud.RuleAction{
			{Type: fraud.ActionBlockTransaction, Parameters: map[string]interface{}{"from": "a"}},
		}},
		{RuleID: "b", Priority: 2, Actions: []fraud.RuleAction{
			{Type: fraud.ActionBlockTransaction, Parameters: map[string]interface{}{"from": "b"}},
			{Type: fraud.ActionManualReview},
		}},
	})
	require.Len(t, actions, 2)
	assert.Equal(t, fraud.ActionBlockTransaction, actions[0].Type)
	assert.Equal(t, "a", actions[0].Parameters["from"], "the higher-priority rule's parameters win")
	assert.Equal(t, fraud.ActionManualReview, actions[1].Type)
}
