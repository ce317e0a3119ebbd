package fraud

import (
	"time"
)

// AccountFlag marks a user account with a risk condition. Flags expire
// independently of the profile that carries them.
type AccountFlag struct {
	Type      string     `json:"type"`
	Severity  Severity   `json:"severity"`
	Reason    string     `json:"reason"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// IsActive reports whether the flag is currently in effect
func (f AccountFlag) IsActive() bool {
	return f.ExpiresAt == nil || time.Now().Before(*f.ExpiresAt)
}

// ProfileScoreAlpha is the smoothing factor used to fold each new assessment
// score into the profile's overall score.
const ProfileScoreAlpha = 0.3

// UserRiskProfile is the per-user aggregate risk state. Created on first
// assessment and updated after every one; never deleted.
type UserRiskProfile struct {
	UserID           string        `json:"user_id"`
	OverallRiskScore float64       `json:"overall_risk_score"`
	RiskLevel        RiskLevel     `json:"risk_level"`
	AccountFlags     []AccountFlag `json:"account_flags,omitempty"`
	Restrictions     []string      `json:"restrictions,omitempty"`
	KnownDevices     []string      `json:"known_devices,omitempty"`
	KnownIPs         []string      `json:"known_ips,omitempty"`
	RecentScores     []float64     `json:"recent_scores,omitempty"`
	AccountCreatedAt time.Time     `json:"account_created_at"`
	FirstAssessedAt  time.Time     `json:"first_assessed_at"`
	LastAssessedAt   time.Time     `json:"last_assessed_at"`
	AssessmentCount  int64         `json:"assessment_count"`
	// VelocityUsage is the latest window-usage snapshot per action type,
	// refreshed on every assessment that ran a velocity check.
	VelocityUsage map[string]map[string]int64 `json:"velocity_usage,omitempty"`
}

// maxRecentScores bounds the prior-score history kept for the history
// component of scoring.
const maxRecentScores = 20

// NewUserRiskProfile creates an empty profile for a user
func NewUserRiskProfile(userID string) *UserRiskProfile {
	now := time.Now()
	return &UserRiskProfile{
		UserID:          userID,
		RiskLevel:       RiskLevelLow,
		FirstAssessedAt: now,
		LastAssessedAt:  now,
	}
}

// ApplyAssessment folds a new assessment score into the profile using
// exponential smoothing. The first assessment seeds the score directly.
func (p *UserRiskProfile) ApplyAssessment(a *RiskAssessment) {
	if p.AssessmentCount == 0 {
		p.OverallRiskScore = a.RiskScore
	} else {
		p.OverallRiskScore = ProfileScoreAlpha*a.RiskScore + (1-ProfileScoreAlpha)*p.OverallRiskScore
	}
	p.RiskLevel = RiskLevelForScore(p.OverallRiskScore)
	p.RecentScores = append(p.RecentScores, a.RiskScore)
	if len(p.RecentScores) > maxRecentScores {
		p.RecentScores = p.RecentScores[len(p.RecentScores)-maxRecentScores:]
	}
	p.LastAssessedAt = a.AssessedAt
	p.AssessmentCount++
}

// AddFlag appends an account flag. Flags are additive; prior risk state is
// never deleted.
func (p *UserRiskProfile) AddFlag(flag AccountFlag) {
	p.AccountFlags = append(p.AccountFlags, flag)
}

// ActiveFlags returns the flags currently in effect
func (p *UserRiskProfile) ActiveFlags() []AccountFlag {
	active := make([]AccountFlag, 0, len(p.AccountFlags))
	for _, f := range p.AccountFlags {
		if f.IsActive() {
			active = append(active, f)
		}
	}
	return active
}

// AccountAge returns how old the account is, or zero when the creation time
// is unknown.
func (p *UserRiskProfile) AccountAge() time.Duration {
	if p.AccountCreatedAt.IsZero() {
		return 0
	}
	return time.Since(p.AccountCreatedAt)
}
