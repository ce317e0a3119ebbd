package fraud

import (
	"time"

	"github.com/google/uuid"
)

// AlertStatus tracks an alert through triage
type AlertStatus string

const (
	AlertStatusNew           AlertStatus = "new"
	AlertStatusInvestigating AlertStatus = "investigating"
	AlertStatusEscalated     AlertStatus = "escalated"
	AlertStatusResolved      AlertStatus = "resolved"
	AlertStatusDismissed     AlertStatus = "dismissed"
	AlertStatusFalsePositive AlertStatus = "false_positive"
)

// DefaultAlertCooldown is the dedup window for repeated alerts on the same
// (user, dominant signal type) pair.
const DefaultAlertCooldown = 300 * time.Second

// FraudAlert is an actionable notification emitted when an assessment
// crosses the alerting threshold. Alerts are append-only.
type FraudAlert struct {
	ID          string                 `json:"id"`
	Type        SignalType             `json:"type"`
	Severity    Severity               `json:"severity"`
	EntityID    string                 `json:"entity_id"`
	EntityType  EntityType             `json:"entity_type"`
	UserID      string                 `json:"user_id"`
	Description string                 `json:"description"`
	Evidence    map[string]interface{} `json:"evidence,omitempty"`
	Status      AlertStatus            `json:"status"`
	CreatedAt   time.Time              `json:"created_at"`
}

// NewAlert creates an alert in the new state
func NewAlert(alertType SignalType, severity Severity, entityID string, entityType EntityType, userID, description string) *FraudAlert {
	return &FraudAlert{
		ID:          uuid.NewString(),
		Type:        alertType,
		Severity:    severity,
		EntityID:    entityID,
		EntityType:  entityType,
		UserID:      userID,
		Description: description,
		Status:      AlertStatusNew,
		CreatedAt:   time.Now(),
	}
}
