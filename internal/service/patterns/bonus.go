package patterns

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/marketshield/fraud-detection-engine/internal/domain/fraud"
)

// Bet is one wager in a user's betting history
type Bet struct {
	Amount    decimal.Decimal `json:"amount"`
	Odds      float64         `json:"odds"`
	Timestamp time.Time       `json:"timestamp"`
}

// BonusWindow is one promotional bonus granted to a user
type BonusWindow struct {
	Start            time.Time       `json:"start"`
	End              time.Time       `json:"end"`
	WagerRequirement decimal.Decimal `json:"wager_requirement"`
	CompletedIn      time.Duration   `json:"completed_in,omitempty"`
}

// Active reports whether the window covered the given instant
func (b BonusWindow) Active(t time.Time) bool {
	return !t.Before(b.Start) && !t.After(b.End)
}

// BonusAbuseResult is the outcome of one bonus-abuse scan
type BonusAbuseResult struct {
	IsBonusHunting         bool               `json:"is_bonus_hunting"`
	IsArbitrage            bool               `json:"is_arbitrage"`
	IsWageringManipulation bool               `json:"is_wagering_manipulation"`
	BonusBetRatio          float64            `json:"bonus_bet_ratio"`
	LowOddsRatio           float64            `json:"low_odds_ratio"`
	Score                  float64            `json:"score"`
	Signals                []fraud.RiskSignal `json:"signals,omitempty"`
}

// Thresholds for bonus-abuse patterns
const (
	bonusHuntingMinBets    = 10
	bonusHuntingRatio      = 0.9
	arbitrageOddsCeiling   = 1.5
	arbitrageRatio         = 0.7
	wageringMinRequirement = 1000
	wageringMaxDuration    = time.Hour
)

// BonusAbuseDetector scans betting history for promotional abuse patterns.
// Stateless: all history is supplied by the caller.
type BonusAbuseDetector struct {
	logger *zap.Logger
}

// NewBonusAbuseDetector creates a bonus abuse detector
func NewBonusAbuseDetector(logger *zap.Logger) *BonusAbuseDetector {
	return &BonusAbuseDetector{logger: logger}
}

// Detect evaluates the three bonus-abuse patterns: bonus hunting (at least
// 90% of 10+ bets placed inside active bonus windows), arbitrage abuse (at
// least 70% of bets at odds under 1.5), and wagering manipulation (a
// requirement over 1000 completed in under an hour).
func (d *BonusAbuseDetector) Detect(ctx context.Context, bets []Bet, bonuses []BonusWindow) (*BonusAbuseResult, error) {
	result := &BonusAbuseResult{}

	if len(bets) > 0 {
		inBonus := 0
		lowOdds := 0
		for _, bet := range bets {
			for _, bonus := range bonuses {
				if bonus.Active(bet.Timestamp) {
					inBonus++
					break
				}
			}
			if bet.Odds > 0 && bet.Odds < arbitrageOddsCeiling {
				lowOdds++
			}
		}
		result.BonusBetRatio = float64(inBonus) / float64(len(bets))
		result.LowOddsRatio = float64(lowOdds) / float64(len(bets))

		if len(bets) >= bonusHuntingMinBets && result.BonusBetRatio >= bonusHuntingRatio {
			result.IsBonusHunting = true
			result.Score += 0.5
			result.Signals = append(result.Signals, fraud.NewSignal(
				fraud.SignalBonusAbuse,
				fraud.SeverityHigh,
				fmt.Sprintf("%.0f%% of %d bets placed inside bonus windows", result.BonusBetRatio*100, len(bets)),
				result.BonusBetRatio,
			).WithEvidence(map[string]interface{}{
				"pattern":         "bonus_hunting",
				"bonus_bet_ratio": result.BonusBetRatio,
				"bet_count":       len(bets),
			}))
		}

		if result.LowOddsRatio >= arbitrageRatio {
			result.IsArbitrage = true
			result.Score += 0.3
			result.Signals = append(result.Signals, fraud.NewSignal(
				fraud.SignalBonusAbuse,
				fraud.SeverityMedium,
				fmt.Sprintf("%.0f%% of bets at odds under %.1f", result.LowOddsRatio*100, arbitrageOddsCeiling),
				result.LowOddsRatio,
			).WithEvidence(map[string]interface{}{
				"pattern":        "arbitrage_abuse",
				"low_odds_ratio": result.LowOddsRatio,
			}))
		}
	}

	for _, bonus := range bonuses {
		if bonus.WagerRequirement.GreaterThan(decimal.NewFromInt(wageringMinRequirement)) &&
			bonus.CompletedIn > 0 && bonus.CompletedIn < wageringMaxDuration {
			result.IsWageringManipulation = true
			result.Score += 0.4
			result.Signals = append(result.Signals, fraud.NewSignal(
				fraud.SignalBonusAbuse,
				fraud.SeverityHigh,
				fmt.Sprintf("wager requirement %s completed in %s", bonus.WagerRequirement, bonus.CompletedIn.Round(time.Minute)),
				0.9,
			).WithEvidence(map[string]interface{}{
				"pattern":           "wagering_manipulation",
				"wager_requirement": bonus.WagerRequirement.String(),
				"completed_in":      bonus.CompletedIn.String(),
			}))
			break
		}
	}

	if result.Score > 1 {
		result.Score = 1
	}

	return result, nil
}
