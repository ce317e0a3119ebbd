package rules

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/marketshield/fraud-detection-engine/internal/domain/errors"
	"github.com/marketshield/fraud-detection-engine/internal/domain/fraud"
	"github.com/marketshield/fraud-detection-engine/internal/service/analysis"
)

// TriggeredRule records one rule firing during an evaluation
type TriggeredRule struct {
	RuleID   string             `json:"rule_id"`
	RuleName string             `json:"rule_name"`
	Category string             `json:"category,omitempty"`
	Priority int                `json:"priority"`
	Actions  []fraud.RuleAction `json:"actions"`
}

// ruleState is the mutable trigger bookkeeping for one rule
type ruleState struct {
	lastTriggered time.Time
	hourLimiter   *rate.Limiter
}

// Engine evaluates the active rule set against an analysis context. Rule
// condition evaluation is pure; cooldowns and hourly caps are tracked per
// rule across evaluations.
type Engine struct {
	logger   *zap.Logger
	validate *validator.Validate

	mu    sync.Mutex
	rules []fraud.FraudRule
	state map[string]*ruleState
}

// NewEngine creates a rules engine with the given rule set. Rules are
// validated and sorted by priority (1 first); duplicate ids and unknown
// condition fields or operators are rejected.
func NewEngine(ruleSet []fraud.FraudRule, logger *zap.Logger) (*Engine, error) {
	e := &Engine{
		logger:   logger,
		validate: validator.New(),
		state:    make(map[string]*ruleState),
	}
	if err := e.ReplaceRules(ruleSet); err != nil {
		return nil, err
	}
	return e, nil
}

// ReplaceRules swaps in a new rule set atomically. Trigger bookkeeping for
// rule ids that survive the swap is preserved.
func (e *Engine) ReplaceRules(ruleSet []fraud.FraudRule) error {
	seen := make(map[string]bool, len(ruleSet))
	for i := range ruleSet {
		if err := e.validateRule(&ruleSet[i]); err != nil {
			return err
		}
		if seen[ruleSet[i].ID] {
			return errors.ErrInvalidInput.WithDetails(map[string]interface{}{
				"rule_id": ruleSet[i].ID,
				"reason":  "duplicate rule id",
			})
		}
		seen[ruleSet[i].ID] = true
	}

	sorted := make([]fraud.FraudRule, len(ruleSet))
	copy(sorted, ruleSet)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = sorted
	state := make(map[string]*ruleState, len(sorted))
	for _, r := range sorted {
		if prev, ok := e.state[r.ID]; ok {
			state[r.ID] = prev
			continue
		}
		state[r.ID] = e.newState(r)
	}
	e.state = state
	return nil
}

func (e *Engine) newState(r fraud.FraudRule) *ruleState {
	s := &ruleState{}
	if r.MaxTriggersPerHour > 0 {
		s.hourLimiter = rate.NewLimiter(
			rate.Limit(float64(r.MaxTriggersPerHour)/3600.0),
			r.MaxTriggersPerHour,
		)
	}
	return s
}

func (e *Engine) validateRule(r *fraud.FraudRule) error {
	if err := e.validate.Struct(r); err != nil {
		return errors.ErrInvalidInput.WithDetails(map[string]interface{}{
			"rule_id": r.ID,
			"reason":  err.Error(),
		})
	}
	for _, cond := range r.Conditions {
		if !cond.Operator.IsValid() {
			return errors.ErrInvalidInput.WithDetails(map[string]interface{}{
				"rule_id":  r.ID,
				"operator": string(cond.Operator),
				"reason":   "unknown operator",
			})
		}
		if _, ok := fieldRegistry[cond.Field]; !ok {
			return errors.ErrInvalidInput.WithDetails(map[string]interface{}{
				"rule_id": r.ID,
				"field":   cond.Field,
				"reason":  "unknown condition field",
			})
		}
		if cond.Operator == fraud.OpRegex {
			pattern, ok := cond.Value.(string)
			if !ok {
				return errors.ErrInvalidInput.WithDetails(map[string]interface{}{
					"rule_id": r.ID,
					"field":   cond.Field,
					"reason":  "regex value must be a string",
				})
			}
			if _, err := regexp.Compile(pattern); err != nil {
				return errors.ErrInvalidInput.WithDetails(map[string]interface{}{
					"rule_id": r.ID,
					"field":   cond.Field,
					"reason":  fmt.Sprintf("invalid regex: %v", err),
				})
			}
		}
	}
	return nil
}

// Rules returns a copy of the active rule set in evaluation order
func (e *Engine) Rules() []fraud.FraudRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]fraud.FraudRule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate runs every enabled rule against the context in priority order.
// Rules in cooldown or over their hourly trigger cap are skipped without
// evaluating their conditions.
func (e *Engine) Evaluate(ctx context.Context, ac *analysis.Context) []TriggeredRule {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	var triggered []TriggeredRule
	for i := range e.rules {
		r := &e.rules[i]
		if !r.Enabled {
			continue
		}
		state := e.state[r.ID]
		if r.CooldownSeconds > 0 && !state.lastTriggered.IsZero() &&
			now.Sub(state.lastTriggered) < r.Cooldown() {
			continue
		}
		if !e.matches(r, ac) {
			continue
		}
		if state.hourLimiter != nil && !state.hourLimiter.Allow() {
			e.logger.Warn("rule over hourly trigger cap, suppressed",
				zap.String("rule_id", r.ID),
				zap.Int("max_per_hour", r.MaxTriggersPerHour))
			continue
		}
		state.lastTriggered = now
		triggered = append(triggered, TriggeredRule{
			RuleID:   r.ID,
			RuleName: r.Name,
			Category: r.Category,
			Priority: r.Priority,
			Actions:  r.Actions,
		})
		e.logger.Debug("rule triggered",
			zap.String("rule_id", r.ID),
			zap.String("user_id", ac.UserID))
	}
	return triggered
}

// matches reports whether all conditions of the rule hold. A condition on a
// field absent from the context fails (except not_exists, which passes).
func (e *Engine) matches(r *fraud.FraudRule, ac *analysis.Context) bool {
	for _, cond := range r.Conditions {
		value, present := fieldRegistry[cond.Field](ac)
		if !evaluateCondition(cond, value, present) {
			return false
		}
	}
	return true
}

func evaluateCondition(cond fraud.RuleCondition, value interface{}, present bool) bool {
	switch cond.Operator {
	case fraud.OpExists:
		return present
	case fraud.OpNotExists:
		return !present
	}
	if !present {
		return false
	}

	switch cond.Operator {
	case fraud.OpEq:
		return looseEqual(value, cond.Value)
	case fraud.OpNeq:
		return !looseEqual(value, cond.Value)
	case fraud.OpGt, fraud.OpGte, fraud.OpLt, fraud.OpLte:
		a, aok := toFloat(value)
		b, bok := toFloat(cond.Value)
		if !aok || !bok {
			return false
		}
		switch cond.Operator {
		case fraud.OpGt:
			return a > b
		case fraud.OpGte:
			return a >= b
		case fraud.OpLt:
			return a < b
		default:
			return a <= b
		}
	case fraud.OpIn, fraud.OpNotIn:
		list, ok := cond.Value.([]interface{})
		if !ok {
			return false
		}
		found := false
		for _, item := range list {
			if looseEqual(value, item) {
				found = true
				break
			}
		}
		if cond.Operator == fraud.OpIn {
			return found
		}
		return !found
	case fraud.OpContains:
		haystack, hok := value.(string)
		needle, nok := cond.Value.(string)
		if !hok || !nok {
			return false
		}
		return strings.Contains(haystack, needle)
	case fraud.OpRegex:
		s, sok := value.(string)
		pattern, pok := cond.Value.(string)
		if !sok || !pok {
			return false
		}
		// Pattern validity was checked at load time.
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(s)
	default:
		return false
	}
}

// looseEqual compares with numeric coercion, so a rule loaded from JSON
// (where every number is float64) still matches int context values.
func looseEqual(a, b interface{}) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return a == b
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Signals converts triggered rules to risk signals, severity derived from
// rule priority.
func Signals(triggered []TriggeredRule) []fraud.RiskSignal {
	signals := make([]fraud.RiskSignal, 0, len(triggered))
	for _, t := range triggered {
		signals = append(signals, fraud.NewSignal(
			fraud.SignalRuleTriggered,
			fraud.SeverityForPriority(t.Priority),
			fmt.Sprintf("rule %q triggered", t.RuleName),
			1.0,
		).WithEvidence(map[string]interface{}{
			"rule_id":  t.RuleID,
			"category": t.Category,
		}))
	}
	return signals
}

// ActionsToExecute deduplicates the actions of triggered rules by action
// type. Rules are already priority-ordered, so the highest-priority rule's
// parameters win for each action type.
func ActionsToExecute(triggered []TriggeredRule) []fraud.RuleAction {
	seen := make(map[fraud.RecommendedAction]bool)
	var actions []fraud.RuleAction
	for _, t := range triggered {
		for _, a := range t.Actions {
			if seen[a.Type] {
				continue
			}
			seen[a.Type] = true
			actions = append(actions, a)
		}
	}
	return actions
}
