package scoring

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/marketshield/fraud-detection-engine/internal/domain/errors"
	"github.com/marketshield/fraud-detection-engine/internal/domain/fraud"
	"github.com/marketshield/fraud-detection-engine/internal/infrastructure/config"
	"github.com/marketshield/fraud-detection-engine/internal/service/analysis"
)

// Fixed component weights. They sum to 1.0, so a clean history and zero
// bonuses/penalties keeps the weighted sum inside [0,1] before clamping.
const (
	weightVelocity     = 0.15
	weightDevice       = 0.15
	weightIP           = 0.15
	weightBehavior     = 0.15
	weightMultiAccount = 0.15
	weightBonusAbuse   = 0.10
	weightTrading      = 0.10
	weightHistory      = 0.05
)

// Score adjustments applied after the weighted sum
const (
	bonusAccountOverYear     = 0.10
	bonusAccountOverSixMo    = 0.05
	bonusCleanHistory        = 0.10
	bonusKnownDevice         = 0.05
	bonusResidentialIP       = 0.03
	penaltyAccountUnderMo    = 0.15
	penaltyAccountUnderThree = 0.08
	penaltyManyHighSignals   = 0.20
	penaltyLongRangeTravel   = 0.20

	highSignalPenaltyCount = 3
	longRangeTravelKm      = 5000
)

// History component tuning
const (
	historyPerActiveFlag = 0.2
	historyFlagCap       = 0.6
)

// Engine combines analyzer outputs into a single risk assessment: weighted
// component scores, bounded adjustments, and level-driven recommendations.
type Engine struct {
	cfg    config.ScoringConfig
	logger *zap.Logger
}

// NewEngine creates a scoring engine. ML-assisted scoring is not
// implemented; configurations asking for it are rejected rather than
// silently ignored.
func NewEngine(cfg config.ScoringConfig, logger *zap.Logger) (*Engine, error) {
	if cfg.MLEnabled {
		return nil, errors.ErrInvalidInput.WithDetails(map[string]interface{}{
			"option": "ml_enabled",
			"reason": "ml-assisted scoring is not available in this build",
		})
	}
	if cfg.AssessmentTTL <= 0 {
		cfg.AssessmentTTL = fraud.DefaultAssessmentTTL
	}
	return &Engine{cfg: cfg, logger: logger}, nil
}

// Score produces the risk assessment for one analyzed entity
func (e *Engine) Score(ctx context.Context, ac *analysis.Context) (*fraud.RiskAssessment, error) {
	assessment := fraud.NewAssessment(ac.EntityID, ac.EntityType, ac.UserID, e.cfg.AssessmentTTL)

	components := e.componentScores(ac)
	score := weightVelocity*components.Velocity +
		weightDevice*components.Device +
		weightIP*components.IP +
		weightBehavior*components.Behavior +
		weightMultiAccount*components.MultiAccount +
		weightBonusAbuse*components.BonusAbuse +
		weightTrading*components.Trading +
		weightHistory*components.History

	signals := ac.Signals()
	score += e.adjustments(ac, signals)

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	assessment.RiskScore = score
	assessment.RiskLevel = fraud.RiskLevelForScore(score)
	assessment.Signals = signals
	assessment.ComponentScores = components
	assessment.Recommendations = e.recommend(assessment.RiskLevel, signals)

	e.logger.Debug("risk assessment produced",
		zap.String("entity_id", ac.EntityID),
		zap.String("user_id", ac.UserID),
		zap.Float64("score", score),
		zap.String("level", string(assessment.RiskLevel)))

	return assessment, nil
}

// componentScores extracts each analyzer's normalized [0,1] contribution.
// A missing analyzer contributes zero, so a degraded run can only
// under-score, never over-score.
func (e *Engine) componentScores(ac *analysis.Context) fraud.ComponentScores {
	var c fraud.ComponentScores
	if ac.Velocity != nil {
		c.Velocity = ac.Velocity.RiskScore
	}
	if ac.Device != nil {
		c.Device = ac.Device.RiskScore
	}
	if ac.IP != nil {
		c.IP = ac.IP.RiskScore
	}
	if ac.Behavior != nil {
		c.Behavior = ac.Behavior.AnomalyScore
	}
	if ac.MultiAccount != nil && ac.MultiAccount.IsMultiAccount {
		c.MultiAccount = ac.MultiAccount.Confidence
	}
	if ac.BonusAbuse != nil {
		c.BonusAbuse = ac.BonusAbuse.Score
	}
	// Trading is the worse of the wash-trading and cycle scans.
	if ac.Wash != nil {
		c.Trading = ac.Wash.Score
	}
	if ac.Cycle != nil && ac.Cycle.Score > c.Trading {
		c.Trading = ac.Cycle.Score
	}
	c.History = e.historyScore(ac.Profile)
	return c
}

// historyScore penalizes active account flags and a poor recent average.
// A user with no profile has no history to hold against them.
func (e *Engine) historyScore(p *fraud.UserRiskProfile) float64 {
	if p == nil {
		return 0
	}
	score := historyPerActiveFlag * float64(len(p.ActiveFlags()))
	if score > historyFlagCap {
		score = historyFlagCap
	}
	if len(p.RecentScores) > 0 {
		sum := 0.0
		for _, s := range p.RecentScores {
			sum += s
		}
		score += (sum / float64(len(p.RecentScores))) * (1 - historyFlagCap)
	}
	if score > 1 {
		score = 1
	}
	return score
}

// adjustments applies the trust bonuses and risk penalties that sit outside
// the weighted components.
func (e *Engine) adjustments(ac *analysis.Context, signals []fraud.RiskSignal) float64 {
	adj := 0.0

	if ac.Profile != nil && !ac.Profile.AccountCreatedAt.IsZero() {
		age := ac.Profile.AccountAge()
		switch {
		case age > 365*24*time.Hour:
			adj -= bonusAccountOverYear
		case age > 183*24*time.Hour:
			adj -= bonusAccountOverSixMo
		case age < 30*24*time.Hour:
			adj += penaltyAccountUnderMo
		case age < 90*24*time.Hour:
			adj += penaltyAccountUnderThree
		}
		if len(ac.Profile.ActiveFlags()) == 0 && ac.Profile.OverallRiskScore < 0.3 && ac.Profile.AssessmentCount > 0 {
			adj -= bonusCleanHistory
		}
	}

	if ac.Device != nil && !ac.Device.IsNewDevice && !ac.Device.IsBot {
		adj -= bonusKnownDevice
	}
	if ac.IP != nil && ac.IP.ConnectionType == "residential" && !ac.IP.IsBlocked {
		adj -= bonusResidentialIP
	}

	if fraud.CountBySeverity(signals, fraud.SeverityHigh) >= highSignalPenaltyCount {
		adj += penaltyManyHighSignals
	}
	if ac.IP != nil && ac.IP.GeoVelocity.Checked && !ac.IP.GeoVelocity.IsPossible &&
		ac.IP.GeoVelocity.DistanceKm > longRangeTravelKm {
		adj += penaltyLongRangeTravel
	}

	return adj
}

// recommend derives concrete actions from the risk level, then layers on
// signal-specific responses. Deduplicated by action, keeping the higher
// priority, and sorted for execution.
func (e *Engine) recommend(level fraud.RiskLevel, signals []fraud.RiskSignal) []fraud.RiskRecommendation {
	var recs []fraud.RiskRecommendation

	switch level {
	case fraud.RiskLevelCritical:
		recs = append(recs,
			fraud.RiskRecommendation{
				Action:      fraud.ActionBlockTransaction,
				Priority:    fraud.PriorityImmediate,
				Reason:      "critical risk score",
				AutoExecute: true,
			},
			fraud.RiskRecommendation{
				Action:   fraud.ActionSuspendAccount,
				Priority: fraud.PriorityImmediate,
				Reason:   "critical risk score",
			},
			fraud.RiskRecommendation{
				Action:   fraud.ActionFlagForCompliance,
				Priority: fraud.PriorityHigh,
				Reason:   "critical risk score",
			})
	case fraud.RiskLevelHigh:
		recs = append(recs,
			fraud.RiskRecommendation{
				Action:     fraud.ActionDelayWithdrawal,
				Priority:   fraud.PriorityHigh,
				Reason:     "high risk score",
				Parameters: map[string]interface{}{"delay_hours": 24},
			},
			fraud.RiskRecommendation{
				Action:   fraud.ActionManualReview,
				Priority: fraud.PriorityHigh,
				Reason:   "high risk score",
			},
			fraud.RiskRecommendation{
				Action:   fraud.ActionRequire2FA,
				Priority: fraud.PriorityHigh,
				Reason:   "high risk score",
			})
	case fraud.RiskLevelMedium:
		recs = append(recs,
			fraud.RiskRecommendation{
				Action:   fraud.ActionEnhancedMonitoring,
				Priority: fraud.PriorityMedium,
				Reason:   "medium risk score",
			},
			fraud.RiskRecommendation{
				Action:   fraud.ActionRequireVerification,
				Priority: fraud.PriorityMedium,
				Reason:   "medium risk score",
			})
	default:
		recs = append(recs, fraud.RiskRecommendation{
			Action:   fraud.ActionNoAction,
			Priority: fraud.PriorityLow,
			Reason:   "low risk score",
		})
	}

	for _, s := range signals {
		switch s.Type {
		case fraud.SignalImpossibleTravel:
			recs = append(recs,
				fraud.RiskRecommendation{
					Action:   fraud.ActionRequire2FA,
					Priority: fraud.PriorityHigh,
					Reason:   "impossible travel detected",
				},
				fraud.RiskRecommendation{
					Action:   fraud.ActionNotifyUser,
					Priority: fraud.PriorityMedium,
					Reason:   "sign-in location changed faster than feasible travel",
				})
		case fraud.SignalStructuring:
			recs = append(recs, fraud.RiskRecommendation{
				Action:   fraud.ActionFlagForCompliance,
				Priority: fraud.PriorityImmediate,
				Reason:   "structuring pattern detected",
			})
		case fraud.SignalWashTrading:
			recs = append(recs, fraud.RiskRecommendation{
				Action:   fraud.ActionFlagForCompliance,
				Priority: fraud.PriorityHigh,
				Reason:   "wash trading pattern detected",
			})
		case fraud.SignalVelocityLimit:
			recs = append(recs, fraud.RiskRecommendation{
				Action:      fraud.ActionBlockTransaction,
				Priority:    fraud.PriorityImmediate,
				Reason:      "velocity limit exceeded",
				AutoExecute: true,
			})
		case fraud.SignalBotDetected:
			recs = append(recs, fraud.RiskRecommendation{
				Action:      fraud.ActionBlockTransaction,
				Priority:    fraud.PriorityImmediate,
				Reason:      "automated client detected",
				AutoExecute: true,
			})
		case fraud.SignalTorDetected:
			recs = append(recs, fraud.RiskRecommendation{
				Action:      fraud.ActionBlockTransaction,
				Priority:    fraud.PriorityImmediate,
				Reason:      "connection from a Tor exit node",
				AutoExecute: true,
			})
		}
	}

	return dedupeRecommendations(recs)
}

// dedupeRecommendations keeps one entry per action, preferring the higher
// priority, and drops no_action when anything else survived.
func dedupeRecommendations(recs []fraud.RiskRecommendation) []fraud.RiskRecommendation {
	best := make(map[fraud.RecommendedAction]fraud.RiskRecommendation)
	for _, r := range recs {
		prev, ok := best[r.Action]
		if !ok || r.Priority.Rank() < prev.Priority.Rank() {
			best[r.Action] = r
		}
	}
	if len(best) > 1 {
		delete(best, fraud.ActionNoAction)
	}
	out := make([]fraud.RiskRecommendation, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority.Rank() != out[j].Priority.Rank() {
			return out[i].Priority.Rank() < out[j].Priority.Rank()
		}
		return out[i].Action < out[j].Action
	})
	return out
}
