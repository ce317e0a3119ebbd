package behavior

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/marketshield/fraud-detection-engine/internal/domain/fraud"
	"github.com/marketshield/fraud-detection-engine/internal/domain/values"
	"github.com/marketshield/fraud-detection-engine/internal/infrastructure/config"
)

// baselineAlpha is the EMA smoothing factor for amount and session
// baselines: 0.1 for the new sample, 0.9 for history.
const baselineAlpha = 0.1

// loginHourHistory caps the retained login-hour samples
const loginHourHistory = 100

// Trigger identifiers reported in Result.Triggers
const (
	TriggerTimeOfDay       = "time_of_day"
	TriggerAmount          = "amount"
	TriggerTradingPattern  = "trading_pattern"
	TriggerSessionDuration = "session_duration"
)

// Raw trigger weights. Time and amount carry more weight because they are
// anomalies on their own; pattern and duration only count against the
// configured threshold.
const (
	weightTimeOfDay       = 1.5
	weightAmount          = 2.0
	weightTradingPattern  = 1.0
	weightSessionDuration = 1.0
	maxRawScore           = weightTimeOfDay + weightAmount + weightTradingPattern + weightSessionDuration
)

// Action is one user action submitted for behavioral comparison
type Action struct {
	Type            string
	Amount          *decimal.Decimal
	Timestamp       time.Time
	SessionDuration *time.Duration
	MarketID        string
}

// tradingPattern is one known (market, hour) combination for a user
type tradingPattern struct {
	MarketID string `json:"market_id"`
	Hour     int    `json:"hour"`
}

// profile is the per-user rolling baseline. Created with zero values on
// first observation; updated after every analyzed action; never deleted.
type profile struct {
	sessionDuration values.EMA
	loginHours      values.BoundedHistory
	amountByType    map[string]*values.EMA
	patterns        []tradingPattern
	observations    int64
}

func newProfile() *profile {
	return &profile{
		sessionDuration: values.NewEMA(baselineAlpha),
		loginHours:      values.NewBoundedHistory(loginHourHistory),
		amountByType:    make(map[string]*values.EMA),
	}
}

// Result is the outcome of one behavioral comparison
type Result struct {
	IsAnomaly    bool               `json:"is_anomaly"`
	AnomalyScore float64            `json:"anomaly_score"`
	Triggers     []string           `json:"triggers,omitempty"`
	HasBaseline  bool               `json:"has_baseline"`
	Signals      []fraud.RiskSignal `json:"signals,omitempty"`
}

// Profiler maintains per-user behavioral baselines and flags statistically
// unusual actions against them.
type Profiler struct {
	cfg    config.BehaviorConfig
	logger *zap.Logger

	mu       sync.Mutex
	profiles map[string]*profile
}

// NewProfiler creates a behavior profiler with the given policy
func NewProfiler(cfg config.BehaviorConfig, logger *zap.Logger) *Profiler {
	return &Profiler{
		cfg:      cfg,
		logger:   logger,
		profiles: make(map[string]*profile),
	}
}

// Analyze compares the action against the user's baseline, then updates the
// baseline. When update_on_anomaly is disabled, actions that were flagged
// do not feed the baseline, so repeated anomalous behavior cannot
// normalize itself.
func (p *Profiler) Analyze(ctx context.Context, userID string, action Action) (*Result, error) {
	if action.Timestamp.IsZero() {
		action.Timestamp = time.Now()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	prof, ok := p.profiles[userID]
	if !ok {
		prof = newProfile()
		p.profiles[userID] = prof
	}

	result := p.evaluate(prof, action)

	if result.IsAnomaly && !p.cfg.UpdateOnAnomaly {
		p.logger.Debug("baseline update skipped for anomalous action",
			zap.String("user_id", userID),
			zap.Strings("triggers", result.Triggers))
	} else {
		p.update(prof, action)
	}

	return result, nil
}

func (p *Profiler) evaluate(prof *profile, action Action) *Result {
	result := &Result{
		HasBaseline: prof.observations >= p.cfg.MinSessionsForBaseline,
	}

	raw := 0.0
	var alwaysAnomaly bool

	// Time-of-day: hour further than 6 from the rolling average login hour.
	if result.HasBaseline && prof.loginHours.Len() > 0 {
		avgHour := prof.loginHours.Mean()
		hour := float64(action.Timestamp.Hour())
		if math.Abs(hour-avgHour) > 6 {
			raw += weightTimeOfDay
			alwaysAnomaly = true
			result.Triggers = append(result.Triggers, TriggerTimeOfDay)
			result.Signals = append(result.Signals, fraud.NewSignal(
				fraud.SignalBehaviorAnomaly,
				fraud.SeverityMedium,
				fmt.Sprintf("action at hour %d, usual hour %.0f", int(hour), avgHour),
				0.7,
			).WithEvidence(map[string]interface{}{
				"trigger":    TriggerTimeOfDay,
				"hour":       int(hour),
				"usual_hour": avgHour,
			}))
		}
	}

	// Amount: more than 5x the EMA baseline for this action type.
	if action.Amount != nil {
		if ema, ok := prof.amountByType[action.Type]; ok && ema.HasBaseline(p.cfg.MinSessionsForBaseline) && ema.Average() > 0 {
			amount, _ := action.Amount.Float64()
			if amount > 5*ema.Average() {
				raw += weightAmount
				alwaysAnomaly = true
				result.Triggers = append(result.Triggers, TriggerAmount)
				result.Signals = append(result.Signals, fraud.NewSignal(
					fraud.SignalBehaviorAnomaly,
					fraud.SeverityHigh,
					fmt.Sprintf("%s of %.2f against average %.2f", action.Type, amount, ema.Average()),
					0.8,
				).WithEvidence(map[string]interface{}{
					"trigger": TriggerAmount,
					"amount":  amount,
					"average": ema.Average(),
				}))
			}
		}
	}

	// Trading pattern: trade in a (market, hour) the user has never used.
	if action.MarketID != "" && result.HasBaseline && len(prof.patterns) > 0 {
		if !prof.hasPattern(action.MarketID, action.Timestamp.Hour()) {
			raw += weightTradingPattern
			result.Triggers = append(result.Triggers, TriggerTradingPattern)
			result.Signals = append(result.Signals, fraud.NewSignal(
				fraud.SignalBehaviorAnomaly,
				fraud.SeverityLow,
				fmt.Sprintf("unfamiliar market/hour combination %s@%02d", action.MarketID, action.Timestamp.Hour()),
				0.5,
			).WithEvidence(map[string]interface{}{
				"trigger":   TriggerTradingPattern,
				"market_id": action.MarketID,
				"hour":      action.Timestamp.Hour(),
			}))
		}
	}

	// Session duration: under 10% or over 500% of the EMA baseline.
	if action.SessionDuration != nil && prof.sessionDuration.HasBaseline(p.cfg.MinSessionsForBaseline) && prof.sessionDuration.Average() > 0 {
		dur := action.SessionDuration.Seconds()
		avg := prof.sessionDuration.Average()
		if dur < 0.1*avg || dur > 5*avg {
			raw += weightSessionDuration
			result.Triggers = append(result.Triggers, TriggerSessionDuration)
			result.Signals = append(result.Signals, fraud.NewSignal(
				fraud.SignalBehaviorAnomaly,
				fraud.SeverityLow,
				fmt.Sprintf("session of %.0fs against average %.0fs", dur, avg),
				0.5,
			).WithEvidence(map[string]interface{}{
				"trigger":          TriggerSessionDuration,
				"session_seconds":  dur,
				"average_seconds":  avg,
			}))
		}
	}

	result.AnomalyScore = raw / maxRawScore
	if result.AnomalyScore > 1 {
		result.AnomalyScore = 1
	}
	// Time and amount triggers are anomalies on their own; pattern and
	// duration triggers only count once the accumulated raw score clears
	// the configured threshold.
	result.IsAnomaly = alwaysAnomaly || raw > p.cfg.AnomalyThreshold

	return result
}

func (p *Profiler) update(prof *profile, action Action) {
	prof.loginHours.Add(float64(action.Timestamp.Hour()))
	if action.Amount != nil {
		ema, ok := prof.amountByType[action.Type]
		if !ok {
			e := values.NewEMA(baselineAlpha)
			ema = &e
			prof.amountByType[action.Type] = ema
		}
		amount, _ := action.Amount.Float64()
		ema.Observe(amount)
	}
	if action.SessionDuration != nil {
		prof.sessionDuration.Observe(action.SessionDuration.Seconds())
	}
	if action.MarketID != "" && !prof.hasPattern(action.MarketID, action.Timestamp.Hour()) {
		prof.patterns = append(prof.patterns, tradingPattern{
			MarketID: action.MarketID,
			Hour:     action.Timestamp.Hour(),
		})
	}
	prof.observations++
}

func (prof *profile) hasPattern(marketID string, hour int) bool {
	for _, pt := range prof.patterns {
		if pt.MarketID == marketID && pt.Hour == hour {
			return true
		}
	}
	return false
}
