package detection

import (
	"fmt"
	"sync"
	"time"

	"github.com/marketshield/fraud-detection-engine/internal/domain/fraud"
)

// alertBook is the in-memory alert log with per-(user, signal type) dedup.
// Alerts are append-only; triage updates status but never removes entries.
type alertBook struct {
	cooldown time.Duration

	mu        sync.Mutex
	alerts    []*fraud.FraudAlert
	lastEmits map[string]time.Time
}

func newAlertBook(cooldown time.Duration) *alertBook {
	return &alertBook{
		cooldown:  cooldown,
		lastEmits: make(map[string]time.Time),
	}
}

// emit creates an alert for the assessment's dominant signal unless the
// same (user, type) pair alerted within the cooldown window. Returns nil
// when deduplicated.
func (b *alertBook) emit(a *fraud.RiskAssessment) *fraud.FraudAlert {
	dominant, ok := fraud.DominantSignal(a.Signals)
	alertType := fraud.SignalSuspiciousPattern
	severity := fraud.SeverityHigh
	description := fmt.Sprintf("risk score %.2f (%s)", a.RiskScore, a.RiskLevel)
	if ok {
		alertType = dominant.Type
		severity = dominant.Severity
		description = dominant.Description
	}

	key := a.UserID + "|" + string(alertType)

	b.mu.Lock()
	defer b.mu.Unlock()

	if last, seen := b.lastEmits[key]; seen && time.Since(last) < b.cooldown {
		return nil
	}
	b.lastEmits[key] = time.Now()

	alert := fraud.NewAlert(alertType, severity, a.EntityID, a.EntityType, a.UserID, description)
	alert.Evidence = map[string]interface{}{
		"risk_score":   a.RiskScore,
		"risk_level":   string(a.RiskLevel),
		"signal_count": len(a.Signals),
	}
	b.alerts = append(b.alerts, alert)
	return alert
}

// byStatus returns alerts matching the status, or all alerts when status is
// empty. Newest first.
func (b *alertBook) byStatus(status fraud.AlertStatus) []*fraud.FraudAlert {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*fraud.FraudAlert
	for i := len(b.alerts) - 1; i >= 0; i-- {
		if status == "" || b.alerts[i].Status == status {
			out = append(out, b.alerts[i])
		}
	}
	return out
}

// updateStatus transitions one alert through triage
func (b *alertBook) updateStatus(alertID string, status fraud.AlertStatus) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, alert := range b.alerts {
		if alert.ID == alertID {
			alert.Status = status
			return true
		}
	}
	return false
}

// Alerts returns alerts filtered by status; pass an empty status for all
func (s *Service) Alerts(status fraud.AlertStatus) []*fraud.FraudAlert {
	return s.alerts.byStatus(status)
}

// UpdateAlertStatus transitions an alert through triage. Returns false when
// no alert carries the id.
func (s *Service) UpdateAlertStatus(alertID string, status fraud.AlertStatus) bool {
	return s.alerts.updateStatus(alertID, status)
}
