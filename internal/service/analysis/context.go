package analysis

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketshield/fraud-detection-engine/internal/domain/fraud"
	"github.com/marketshield/fraud-detection-engine/internal/service/behavior"
	"github.com/marketshield/fraud-detection-engine/internal/service/device"
	"github.com/marketshield/fraud-detection-engine/internal/service/ipintel"
	"github.com/marketshield/fraud-detection-engine/internal/service/linkage"
	"github.com/marketshield/fraud-detection-engine/internal/service/patterns"
	"github.com/marketshield/fraud-detection-engine/internal/service/velocity"
)

// Context carries one entity's raw data plus every analyzer's output into
// rule evaluation and risk scoring. Analyzer fields are nil when that
// analyzer did not run or failed; consumers treat nil as a degraded zero
// contribution.
type Context struct {
	EntityID   string
	EntityType fraud.EntityType
	UserID     string
	ActionType string
	Amount     decimal.Decimal
	Currency   string
	Timestamp  time.Time

	Velocity     *velocity.Result
	Device       *device.Result
	IP           *ipintel.Result
	Behavior     *behavior.Result
	MultiAccount *linkage.Result
	BonusAbuse   *patterns.BonusAbuseResult
	Cycle        *patterns.CycleResult
	Wash         *patterns.WashResult

	Profile *fraud.UserRiskProfile

	// RuleSignals holds the signals produced by triggered rules, set after
	// rule evaluation so they count toward scoring.
	RuleSignals []fraud.RiskSignal

	// DegradedAnalyzers lists analyzers that failed and contribute zero.
	DegradedAnalyzers []string
}

// Signals returns the union of all analyzer signals in a stable order
func (c *Context) Signals() []fraud.RiskSignal {
	var signals []fraud.RiskSignal
	if c.Velocity != nil {
		signals = append(signals, c.Velocity.Signals...)
	}
	if c.Device != nil {
		signals = append(signals, c.Device.Signals...)
	}
	if c.IP != nil {
		signals = append(signals, c.IP.Signals...)
	}
	if c.Behavior != nil {
		signals = append(signals, c.Behavior.Signals...)
	}
	if c.MultiAccount != nil {
		signals = append(signals, c.MultiAccount.Signals...)
	}
	if c.BonusAbuse != nil {
		signals = append(signals, c.BonusAbuse.Signals...)
	}
	if c.Cycle != nil {
		signals = append(signals, c.Cycle.Signals...)
	}
	if c.Wash != nil {
		signals = append(signals, c.Wash.Signals...)
	}
	signals = append(signals, c.RuleSignals...)
	return signals
}
