package rules

import (
	"sort"

	"github.com/marketshield/fraud-detection-engine/internal/service/analysis"
)

// fieldFn resolves one context field. The bool reports whether the field
// has a value in this context, which is what exists/not_exists test.
type fieldFn func(*analysis.Context) (interface{}, bool)

// fieldRegistry is the closed set of condition fields. Rules referencing a
// field outside this set are rejected at load time, so a typo in a rule
// file fails loudly instead of silently never matching.
var fieldRegistry = map[string]fieldFn{
	"transaction.amount": func(c *analysis.Context) (interface{}, bool) {
		f, _ := c.Amount.Float64()
		return f, true
	},
	"transaction.type": func(c *analysis.Context) (interface{}, bool) {
		return c.ActionType, c.ActionType != ""
	},
	"transaction.currency": func(c *analysis.Context) (interface{}, bool) {
		return c.Currency, c.Currency != ""
	},
	"transaction.hour": func(c *analysis.Context) (interface{}, bool) {
		if c.Timestamp.IsZero() {
			return nil, false
		}
		return c.Timestamp.Hour(), true
	},

	"velocity.allowed": func(c *analysis.Context) (interface{}, bool) {
		if c.Velocity == nil {
			return nil, false
		}
		return c.Velocity.Allowed, true
	},
	"velocity.risk_score": func(c *analysis.Context) (interface{}, bool) {
		if c.Velocity == nil {
			return nil, false
		}
		return c.Velocity.RiskScore, true
	},
	"velocity.limit_type": func(c *analysis.Context) (interface{}, bool) {
		if c.Velocity == nil || c.Velocity.LimitType == "" {
			return nil, false
		}
		return c.Velocity.LimitType, true
	},
	"velocity.current": func(c *analysis.Context) (interface{}, bool) {
		if c.Velocity == nil {
			return nil, false
		}
		return c.Velocity.Current, true
	},

	"device.trust_score": func(c *analysis.Context) (interface{}, bool) {
		if c.Device == nil {
			return nil, false
		}
		return c.Device.TrustScore, true
	},
	"device.risk_score": func(c *analysis.Context) (interface{}, bool) {
		if c.Device == nil {
			return nil, false
		}
		return c.Device.RiskScore, true
	},
	"device.is_bot": func(c *analysis.Context) (interface{}, bool) {
		if c.Device == nil {
			return nil, false
		}
		return c.Device.IsBot, true
	},
	"device.is_emulator": func(c *analysis.Context) (interface{}, bool) {
		if c.Device == nil {
			return nil, false
		}
		return c.Device.IsEmulator, true
	},
	"device.is_vm": func(c *analysis.Context) (interface{}, bool) {
		if c.Device == nil {
			return nil, false
		}
		return c.Device.IsVM, true
	},
	"device.is_new": func(c *analysis.Context) (interface{}, bool) {
		if c.Device == nil {
			return nil, false
		}
		return c.Device.IsNewDevice, true
	},
	"device.is_shared": func(c *analysis.Context) (interface{}, bool) {
		if c.Device == nil {
			return nil, false
		}
		return c.Device.IsSharedDevice, true
	},
	"device.is_blocked": func(c *analysis.Context) (interface{}, bool) {
		if c.Device == nil {
			return nil, false
		}
		return c.Device.IsBlocked, true
	},

	"ip.connection_type": func(c *analysis.Context) (interface{}, bool) {
		if c.IP == nil {
			return nil, false
		}
		return string(c.IP.ConnectionType), true
	},
	"ip.reputation": func(c *analysis.Context) (interface{}, bool) {
		if c.IP == nil {
			return nil, false
		}
		return c.IP.ReputationScore, true
	},
	"ip.risk_score": func(c *analysis.Context) (interface{}, bool) {
		if c.IP == nil {
			return nil, false
		}
		return c.IP.RiskScore, true
	},
	"ip.is_blocked": func(c *analysis.Context) (interface{}, bool) {
		if c.IP == nil {
			return nil, false
		}
		return c.IP.IsBlocked, true
	},
	"ip.country": func(c *analysis.Context) (interface{}, bool) {
		if c.IP == nil || c.IP.Location == nil {
			return nil, false
		}
		return c.IP.Location.Country, true
	},
	"ip.travel_impossible": func(c *analysis.Context) (interface{}, bool) {
		if c.IP == nil || !c.IP.GeoVelocity.Checked {
			return nil, false
		}
		return !c.IP.GeoVelocity.IsPossible, true
	},
	"ip.travel_distance_km": func(c *analysis.Context) (interface{}, bool) {
		if c.IP == nil || !c.IP.GeoVelocity.Checked {
			return nil, false
		}
		return c.IP.GeoVelocity.DistanceKm, true
	},

	"behavior.is_anomaly": func(c *analysis.Context) (interface{}, bool) {
		if c.Behavior == nil {
			return nil, false
		}
		return c.Behavior.IsAnomaly, true
	},
	"behavior.anomaly_score": func(c *analysis.Context) (interface{}, bool) {
		if c.Behavior == nil {
			return nil, false
		}
		return c.Behavior.AnomalyScore, true
	},
	"behavior.has_baseline": func(c *analysis.Context) (interface{}, bool) {
		if c.Behavior == nil {
			return nil, false
		}
		return c.Behavior.HasBaseline, true
	},

	"multi_account.detected": func(c *analysis.Context) (interface{}, bool) {
		if c.MultiAccount == nil {
			return nil, false
		}
		return c.MultiAccount.IsMultiAccount, true
	},
	"multi_account.confidence": func(c *analysis.Context) (interface{}, bool) {
		if c.MultiAccount == nil {
			return nil, false
		}
		return c.MultiAccount.Confidence, true
	},
	"multi_account.linked_count": func(c *analysis.Context) (interface{}, bool) {
		if c.MultiAccount == nil {
			return nil, false
		}
		return len(c.MultiAccount.LinkedAccounts), true
	},

	"bonus.score": func(c *analysis.Context) (interface{}, bool) {
		if c.BonusAbuse == nil {
			return nil, false
		}
		return c.BonusAbuse.Score, true
	},
	"bonus.is_hunting": func(c *analysis.Context) (interface{}, bool) {
		if c.BonusAbuse == nil {
			return nil, false
		}
		return c.BonusAbuse.IsBonusHunting, true
	},

	"cycle.score": func(c *analysis.Context) (interface{}, bool) {
		if c.Cycle == nil {
			return nil, false
		}
		return c.Cycle.Score, true
	},
	"cycle.is_structuring": func(c *analysis.Context) (interface{}, bool) {
		if c.Cycle == nil {
			return nil, false
		}
		return c.Cycle.IsStructuring, true
	},

	"wash.score": func(c *analysis.Context) (interface{}, bool) {
		if c.Wash == nil {
			return nil, false
		}
		return c.Wash.Score, true
	},
	"wash.detected": func(c *analysis.Context) (interface{}, bool) {
		if c.Wash == nil {
			return nil, false
		}
		return c.Wash.IsWashTrading, true
	},

	"profile.overall_risk": func(c *analysis.Context) (interface{}, bool) {
		if c.Profile == nil {
			return nil, false
		}
		return c.Profile.OverallRiskScore, true
	},
	"profile.risk_level": func(c *analysis.Context) (interface{}, bool) {
		if c.Profile == nil {
			return nil, false
		}
		return string(c.Profile.RiskLevel), true
	},
	"profile.active_flag_count": func(c *analysis.Context) (interface{}, bool) {
		if c.Profile == nil {
			return nil, false
		}
		return len(c.Profile.ActiveFlags()), true
	},
	"profile.account_age_days": func(c *analysis.Context) (interface{}, bool) {
		if c.Profile == nil || c.Profile.AccountCreatedAt.IsZero() {
			return nil, false
		}
		return int(c.Profile.AccountAge().Hours() / 24), true
	},
}

// KnownFields returns the sorted list of condition fields the engine can
// resolve. Exposed for rule validation tooling.
func KnownFields() []string {
	fields := make([]string, 0, len(fieldRegistry))
	for name := range fieldRegistry {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return fields
}
