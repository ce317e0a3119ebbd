package fraud

import (
	"time"

	"github.com/google/uuid"
)

// SignalType identifies one category of risk evidence
type SignalType string

const (
	SignalVelocitySpike     SignalType = "velocity_spike"
	SignalVelocityLimit     SignalType = "velocity_limit"
	SignalDeviceAnomaly     SignalType = "device_anomaly"
	SignalNewDevice         SignalType = "new_device"
	SignalSharedDevice      SignalType = "shared_device"
	SignalEmulatorDetected  SignalType = "emulator_detected"
	SignalVMDetected        SignalType = "vm_detected"
	SignalBotDetected       SignalType = "bot_detected"
	SignalVPNDetected       SignalType = "vpn_detected"
	SignalProxyDetected     SignalType = "proxy_detected"
	SignalTorDetected       SignalType = "tor_detected"
	SignalDatacenterIP      SignalType = "datacenter_ip"
	SignalBlockedCountry    SignalType = "blocked_country"
	SignalImpossibleTravel  SignalType = "impossible_travel"
	SignalBehaviorAnomaly   SignalType = "behavior_anomaly"
	SignalMultiAccount      SignalType = "multi_account"
	SignalBonusAbuse        SignalType = "bonus_abuse"
	SignalDepositCycle      SignalType = "deposit_cycle"
	SignalStructuring       SignalType = "structuring"
	SignalWashTrading       SignalType = "wash_trading"
	SignalRuleTriggered     SignalType = "rule_triggered"
	SignalHighRiskHistory   SignalType = "high_risk_history"
	SignalApproachingLimit  SignalType = "approaching_limit"
	SignalSuspiciousPattern SignalType = "suspicious_pattern"
)

// Severity grades how strong a piece of evidence is
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// RiskSignal is one atomic, typed piece of evidence contributing to an
// assessment. Immutable once produced.
type RiskSignal struct {
	ID          string                 `json:"id"`
	Type        SignalType             `json:"type"`
	Severity    Severity               `json:"severity"`
	Description string                 `json:"description"`
	Evidence    map[string]interface{} `json:"evidence,omitempty"`
	Confidence  float64                `json:"confidence"`
	DetectedAt  time.Time              `json:"detected_at"`
}

// NewSignal creates a risk signal with a generated id and clamped confidence
func NewSignal(signalType SignalType, severity Severity, description string, confidence float64) RiskSignal {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return RiskSignal{
		ID:          uuid.NewString(),
		Type:        signalType,
		Severity:    severity,
		Description: description,
		Confidence:  confidence,
		DetectedAt:  time.Now(),
	}
}

// WithEvidence attaches supporting evidence and returns the signal
func (s RiskSignal) WithEvidence(evidence map[string]interface{}) RiskSignal {
	s.Evidence = evidence
	return s
}

// CountBySeverity returns how many signals in the list carry the given severity
func CountBySeverity(signals []RiskSignal, severity Severity) int {
	n := 0
	for _, s := range signals {
		if s.Severity == severity {
			n++
		}
	}
	return n
}

// DominantSignal returns the signal with the highest severity (high > medium
// > low), breaking ties by confidence. Returns false when the list is empty.
func DominantSignal(signals []RiskSignal) (RiskSignal, bool) {
	if len(signals) == 0 {
		return RiskSignal{}, false
	}
	rank := func(sev Severity) int {
		switch sev {
		case SeverityHigh:
			return 3
		case SeverityMedium:
			return 2
		default:
			return 1
		}
	}
	best := signals[0]
	for _, s := range signals[1:] {
		if rank(s.Severity) > rank(best.Severity) ||
			(rank(s.Severity) == rank(best.Severity) && s.Confidence > best.Confidence) {
			best = s
		}
	}
	return best, true
}
