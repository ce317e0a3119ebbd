package velocity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/marketshield/fraud-detection-engine/internal/domain/errors"
	"github.com/marketshield/fraud-detection-engine/internal/domain/fraud"
	"github.com/marketshield/fraud-detection-engine/internal/domain/values"
	"github.com/marketshield/fraud-detection-engine/internal/infrastructure/cache"
	"github.com/marketshield/fraud-detection-engine/internal/infrastructure/config"
)

// Limit type identifiers reported in Result.LimitType
const (
	LimitPerMinute   = "per_minute"
	LimitHourly      = "hourly"
	LimitDaily       = "daily"
	LimitWeekly      = "weekly"
	LimitAmount      = "amount"
	LimitDailyAmount = "daily_amount"
	LimitDailyVolume = "daily_volume"
	LimitTradeGap    = "trade_interval"
)

// Result is the outcome of one velocity check
type Result struct {
	Allowed   bool               `json:"allowed"`
	LimitType string             `json:"limit_type,omitempty"`
	Current   int64              `json:"current"`
	Limit     int64              `json:"limit"`
	Remaining int64              `json:"remaining"`
	ResetAt   time.Time          `json:"reset_at"`
	RiskScore float64            `json:"risk_score"`
	Signals   []fraud.RiskSignal `json:"signals,omitempty"`
}

// counterSet holds the rolling windows for one (user, action) pair, plus the
// time of the last allowed action for inter-action spacing checks.
type counterSet struct {
	Minute        *values.WindowCounter `json:"minute"`
	Hour          *values.WindowCounter `json:"hour"`
	Day           *values.WindowCounter `json:"day"`
	Week          *values.WindowCounter `json:"week"`
	Month         *values.WindowCounter `json:"month"`
	LastAllowedAt time.Time             `json:"last_allowed_at,omitempty"`
}

func newCounterSet() *counterSet {
	return &counterSet{
		Minute: values.NewWindowCounter(time.Minute),
		Hour:   values.NewWindowCounter(time.Hour),
		Day:    values.NewWindowCounter(24 * time.Hour),
		Week:   values.NewWindowCounter(7 * 24 * time.Hour),
		Month:  values.NewWindowCounter(30 * 24 * time.Hour),
	}
}

func (c *counterSet) rollExpired(now time.Time) {
	c.Minute.RollIfExpired(now)
	c.Hour.RollIfExpired(now)
	c.Day.RollIfExpired(now)
	c.Week.RollIfExpired(now)
	c.Month.RollIfExpired(now)
}

// Guard enforces per-user, per-action rolling-window limits. Counter state
// lives in the injected Store so multi-node deployments can share it;
// read-modify-write cycles for the same (user, action) are serialized by a
// keyed lock so concurrent checks cannot lose updates.
type Guard struct {
	limits     map[string]config.ActionLimits
	thresholds config.ThresholdConfig
	store      cache.Store
	logger     *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewGuard creates a velocity guard enforcing the per-action window limits
// plus the platform-wide thresholds (per-minute rate, minimum trade spacing,
// daily volume cap).
func NewGuard(cfg config.VelocityConfig, thresholds config.ThresholdConfig, store cache.Store, logger *zap.Logger) *Guard {
	return &Guard{
		limits:     cfg.Limits,
		thresholds: thresholds,
		store:      store,
		logger:     logger,
		locks:      make(map[string]*sync.Mutex),
	}
}

func (g *Guard) lockFor(key string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[key]
	if !ok {
		l = &sync.Mutex{}
		g.locks[key] = l
	}
	return l
}

func (g *Guard) storeKey(userID, actionType string) string {
	return fmt.Sprintf("%s%s:%s", cache.VelocityPrefix, userID, actionType)
}

// Check evaluates the action against all configured windows in fixed
// priority order (hourly count, daily count, weekly count, then amount
// limits), failing fast at the first violation. Counters are only
// incremented when the action is allowed, so rejected actions do not count
// against future windows.
func (g *Guard) Check(ctx context.Context, userID, actionType string, amount decimal.Decimal) (*Result, error) {
	limits, ok := g.limits[actionType]
	if !ok {
		return nil, errors.ErrUnknownActionType.WithDetails(map[string]interface{}{
			"action_type": actionType,
		})
	}

	key := g.storeKey(userID, actionType)
	lock := g.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	counters := g.load(ctx, key)
	now := time.Now()
	counters.rollExpired(now)

	result := g.evaluate(counters, limits, actionType, amount, now)

	if result.Allowed {
		counters.Minute.Record(amount)
		counters.Hour.Record(amount)
		counters.Day.Record(amount)
		counters.Week.Record(amount)
		counters.Month.Record(amount)
		counters.LastAllowedAt = now
	} else {
		g.logger.Debug("velocity limit violated",
			zap.String("user_id", userID),
			zap.String("action_type", actionType),
			zap.String("limit_type", result.LimitType),
			zap.Int64("current", result.Current),
			zap.Int64("limit", result.Limit))
	}

	g.save(ctx, key, counters)

	return result, nil
}

// evaluate runs the fail-fast limit checks and, when nothing is violated,
// derives the soft risk score from window usage.
func (g *Guard) evaluate(c *counterSet, limits config.ActionLimits, actionType string, amount decimal.Decimal, now time.Time) *Result {
	if actionType == "trade" && g.thresholds.MinTimeBetweenTrades > 0 && !c.LastAllowedAt.IsZero() {
		if gap := now.Sub(c.LastAllowedAt); gap < g.thresholds.MinTimeBetweenTrades {
			return g.tradeGapViolation(gap, c.LastAllowedAt.Add(g.thresholds.MinTimeBetweenTrades))
		}
	}

	type countCheck struct {
		limitType string
		counter   *values.WindowCounter
		limit     int64
	}
	checks := []countCheck{
		{LimitPerMinute, c.Minute, int64(g.thresholds.MaxVelocityPerMinute)},
		{LimitHourly, c.Hour, limits.HourlyCount},
		{LimitDaily, c.Day, limits.DailyCount},
		{LimitWeekly, c.Week, limits.WeeklyCount},
	}
	for _, check := range checks {
		if check.limit > 0 && check.counter.Count >= check.limit {
			return g.violation(check.limitType, check.counter.Count, check.limit, check.counter.ResetAt)
		}
	}

	if limits.MaxAmount > 0 && amount.GreaterThan(decimal.NewFromFloat(limits.MaxAmount)) {
		r := g.violation(LimitAmount, c.Day.Count, limits.DailyCount, c.Day.ResetAt)
		r.Signals[0].Evidence["amount"] = amount.String()
		r.Signals[0].Evidence["max_amount"] = limits.MaxAmount
		return r
	}
	if limits.DailyAmount > 0 && c.Day.Amount.Add(amount).GreaterThan(decimal.NewFromFloat(limits.DailyAmount)) {
		r := g.violation(LimitDailyAmount, c.Day.Count, limits.DailyCount, c.Day.ResetAt)
		r.Signals[0].Evidence["daily_amount"] = c.Day.Amount.Add(amount).String()
		r.Signals[0].Evidence["daily_amount_limit"] = limits.DailyAmount
		return r
	}
	if g.thresholds.MaxDailyVolume > 0 && c.Day.Amount.Add(amount).GreaterThan(decimal.NewFromFloat(g.thresholds.MaxDailyVolume)) {
		r := g.violation(LimitDailyVolume, c.Day.Count, limits.DailyCount, c.Day.ResetAt)
		r.Signals[0].Evidence["daily_volume"] = c.Day.Amount.Add(amount).String()
		r.Signals[0].Evidence["daily_volume_limit"] = g.thresholds.MaxDailyVolume
		return r
	}

	hourlyUsage := c.Hour.Usage(limits.HourlyCount)
	dailyUsage := c.Day.Usage(limits.DailyCount)

	result := &Result{
		Allowed:   true,
		Current:   c.Hour.Count,
		Limit:     limits.HourlyCount,
		Remaining: limits.HourlyCount - c.Hour.Count,
		ResetAt:   c.Hour.ResetAt,
		RiskScore: 0.3*hourlyUsage + 0.3*dailyUsage,
	}

	if hourlyUsage > 0.8 {
		result.Signals = append(result.Signals, fraud.NewSignal(
			fraud.SignalApproachingLimit,
			fraud.SeverityLow,
			fmt.Sprintf("hourly velocity at %.0f%% of limit", hourlyUsage*100),
			hourlyUsage,
		).WithEvidence(map[string]interface{}{
			"hourly_count": c.Hour.Count,
			"hourly_limit": limits.HourlyCount,
		}))
	}

	g.checkVolumeSpike(c, amount, result)

	return result
}

// checkVolumeSpike flags a single amount far above the user's running daily
// average for this action type. Soft signal only, the action stays allowed.
func (g *Guard) checkVolumeSpike(c *counterSet, amount decimal.Decimal, result *Result) {
	multiplier := g.thresholds.SuspiciousVolumeMultiplier
	if multiplier <= 0 || c.Day.Count == 0 || !c.Day.Amount.IsPositive() {
		return
	}
	average := c.Day.Amount.Div(decimal.NewFromInt(c.Day.Count))
	threshold := average.Mul(decimal.NewFromFloat(multiplier))
	if !amount.GreaterThan(threshold) {
		return
	}
	ratio, _ := amount.Div(average).Float64()
	result.RiskScore = result.RiskScore + 0.2
	if result.RiskScore > 1 {
		result.RiskScore = 1
	}
	result.Signals = append(result.Signals, fraud.NewSignal(
		fraud.SignalVelocitySpike,
		fraud.SeverityMedium,
		fmt.Sprintf("amount is %.1fx the daily average", ratio),
		0.7,
	).WithEvidence(map[string]interface{}{
		"amount":        amount.String(),
		"daily_average": average.String(),
		"multiplier":    multiplier,
	}))
}

// tradeGapViolation rejects a trade placed before the minimum spacing since
// the previous one has elapsed.
func (g *Guard) tradeGapViolation(gap time.Duration, resetAt time.Time) *Result {
	signal := fraud.NewSignal(
		fraud.SignalVelocitySpike,
		fraud.SeverityHigh,
		fmt.Sprintf("trade placed %s after the previous one (minimum %s)", gap.Round(time.Millisecond), g.thresholds.MinTimeBetweenTrades),
		0.9,
	).WithEvidence(map[string]interface{}{
		"gap":         gap.String(),
		"minimum_gap": g.thresholds.MinTimeBetweenTrades.String(),
	})
	return &Result{
		Allowed:   false,
		LimitType: LimitTradeGap,
		ResetAt:   resetAt,
		RiskScore: 1.0,
		Signals:   []fraud.RiskSignal{signal},
	}
}

func (g *Guard) violation(limitType string, current, limit int64, resetAt time.Time) *Result {
	remaining := limit - current
	if remaining < 0 {
		remaining = 0
	}
	signal := fraud.NewSignal(
		fraud.SignalVelocityLimit,
		fraud.SeverityHigh,
		fmt.Sprintf("%s velocity limit exceeded (%d/%d)", limitType, current, limit),
		1.0,
	).WithEvidence(map[string]interface{}{
		"limit_type": limitType,
		"current":    current,
		"limit":      limit,
	})
	return &Result{
		Allowed:   false,
		LimitType: limitType,
		Current:   current,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
		RiskScore: 1.0,
		Signals:   []fraud.RiskSignal{signal},
	}
}

// load fetches the counter set, creating a fresh one on miss or on a
// degraded store read. Store failures never abort a check.
func (g *Guard) load(ctx context.Context, key string) *counterSet {
	var counters counterSet
	if err := g.store.GetJSON(ctx, key, &counters); err != nil {
		if !cache.IsNotFound(err) {
			g.logger.Warn("velocity counter load failed, starting fresh window",
				zap.String("key", key),
				zap.Error(err))
		}
		return newCounterSet()
	}
	if counters.Hour == nil || counters.Day == nil || counters.Week == nil || counters.Month == nil {
		return newCounterSet()
	}
	// Counters written by nodes predating the per-minute window lack it.
	if counters.Minute == nil {
		counters.Minute = values.NewWindowCounter(time.Minute)
	}
	return &counters
}

func (g *Guard) save(ctx context.Context, key string, counters *counterSet) {
	if err := g.store.SetJSON(ctx, key, counters, cache.VelocityTTL); err != nil {
		g.logger.Warn("velocity counter save failed",
			zap.String("key", key),
			zap.Error(err))
	}
}

// Usage returns a snapshot of current window usage for an action type,
// without recording anything. Used for risk-profile reporting.
func (g *Guard) Usage(ctx context.Context, userID, actionType string) (map[string]int64, error) {
	if _, ok := g.limits[actionType]; !ok {
		return nil, errors.ErrUnknownActionType
	}
	key := g.storeKey(userID, actionType)
	lock := g.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	counters := g.load(ctx, key)
	counters.rollExpired(time.Now())
	return map[string]int64{
		"minute": counters.Minute.Count,
		"hour":   counters.Hour.Count,
		"day":    counters.Day.Count,
		"week":   counters.Week.Count,
		"month":  counters.Month.Count,
	}, nil
}
