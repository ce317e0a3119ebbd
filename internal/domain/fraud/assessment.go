package fraud

import (
	"time"

	"github.com/google/uuid"
)

// RiskLevel buckets a risk score into an operational category
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// RiskLevelForScore maps a clamped [0,1] score to a level. Boundaries are
// inclusive at the low end: exactly 0.7 is high, exactly 0.9 is critical.
func RiskLevelForScore(score float64) RiskLevel {
	switch {
	case score >= 0.9:
		return RiskLevelCritical
	case score >= 0.7:
		return RiskLevelHigh
	case score >= 0.4:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// RecommendedAction enumerates the concrete controls the engine can suggest
type RecommendedAction string

const (
	ActionBlockTransaction    RecommendedAction = "block_transaction"
	ActionDelayWithdrawal     RecommendedAction = "delay_withdrawal"
	ActionRequire2FA          RecommendedAction = "require_2fa"
	ActionRequireVerification RecommendedAction = "require_verification"
	ActionSuspendAccount      RecommendedAction = "suspend_account"
	ActionFlagForCompliance   RecommendedAction = "flag_for_compliance"
	ActionManualReview        RecommendedAction = "manual_review"
	ActionEnhancedMonitoring  RecommendedAction = "enhanced_monitoring"
	ActionNotifyUser          RecommendedAction = "notify_user"
	ActionNoAction            RecommendedAction = "no_action"
)

// RecommendationPriority orders recommendations for execution
type RecommendationPriority string

const (
	PriorityImmediate RecommendationPriority = "immediate"
	PriorityHigh      RecommendationPriority = "high"
	PriorityMedium    RecommendationPriority = "medium"
	PriorityLow       RecommendationPriority = "low"
)

// Rank returns a sortable weight for the priority (lower sorts first)
func (p RecommendationPriority) Rank() int {
	switch p {
	case PriorityImmediate:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

// RiskRecommendation is one concrete action suggested by the scoring engine
type RiskRecommendation struct {
	Action      RecommendedAction      `json:"action"`
	Priority    RecommendationPriority `json:"priority"`
	Reason      string                 `json:"reason"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
	AutoExecute bool                   `json:"auto_execute,omitempty"`
}

// EntityType identifies what kind of entity an assessment covers
type EntityType string

const (
	EntityTypeTransaction EntityType = "transaction"
	EntityTypeTrade       EntityType = "trade"
	EntityTypeUser        EntityType = "user"
)

// ComponentScores breaks the final score down into its weighted inputs
type ComponentScores struct {
	Velocity     float64 `json:"velocity"`
	Device       float64 `json:"device"`
	IP           float64 `json:"ip"`
	Behavior     float64 `json:"behavior"`
	MultiAccount float64 `json:"multi_account"`
	BonusAbuse   float64 `json:"bonus_abuse"`
	Trading      float64 `json:"trading"`
	History      float64 `json:"history"`
}

// DefaultAssessmentTTL bounds how long an assessment may be relied on
const DefaultAssessmentTTL = 24 * time.Hour

// RiskAssessment is the aggregate output of one analysis. Immutable once
// produced; callers must request a fresh assessment after ExpiresAt.
type RiskAssessment struct {
	ID              string               `json:"id"`
	EntityID        string               `json:"entity_id"`
	EntityType      EntityType           `json:"entity_type"`
	UserID          string               `json:"user_id"`
	RiskScore       float64              `json:"risk_score"`
	RiskLevel       RiskLevel            `json:"risk_level"`
	Signals         []RiskSignal         `json:"signals"`
	Recommendations []RiskRecommendation `json:"recommendations"`
	ComponentScores ComponentScores      `json:"component_scores"`
	AssessedAt      time.Time            `json:"assessed_at"`
	ExpiresAt       time.Time            `json:"expires_at"`
}

// NewAssessment creates an assessment shell with id and TTL populated
func NewAssessment(entityID string, entityType EntityType, userID string, ttl time.Duration) *RiskAssessment {
	now := time.Now()
	if ttl <= 0 {
		ttl = DefaultAssessmentTTL
	}
	return &RiskAssessment{
		ID:         uuid.NewString(),
		EntityID:   entityID,
		EntityType: entityType,
		UserID:     userID,
		AssessedAt: now,
		ExpiresAt:  now.Add(ttl),
	}
}

// IsExpired reports whether the assessment has outlived its TTL
func (a *RiskAssessment) IsExpired() bool {
	return time.Now().After(a.ExpiresAt)
}
