package patterns

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/marketshield/fraud-detection-engine/internal/domain/fraud"
)

// Pairing tolerances for wash-trade matching
const (
	washPairMaxGap     = 60 * time.Second
	washQtyTolerance   = 0.05
	selfTradeScoreUnit = 0.1
	selfTradeScoreCap  = 0.4
	relatedVolumeScale = 100000.0
	relatedVolumeCap   = 0.3
	circularScoreUnit  = 0.2
	circularScoreCap   = 0.3
)

// WashResult is the outcome of one wash-trading scan
type WashResult struct {
	IsWashTrading        bool               `json:"is_wash_trading"`
	SelfTradeCount       int                `json:"self_trade_count"`
	RelatedTradeCount    int                `json:"related_trade_count"`
	RelatedVolume        float64            `json:"related_volume"`
	CircularPatternCount int                `json:"circular_pattern_count"`
	Score                float64            `json:"score"`
	Signals              []fraud.RiskSignal `json:"signals,omitempty"`
}

// WashTradingAnalyzer pairs opposite-side trades to detect volume
// fabricated against oneself or colluding accounts. Stateless: trade
// history is supplied by the caller.
type WashTradingAnalyzer struct {
	highRiskThreshold float64
	logger            *zap.Logger
}

// NewWashTradingAnalyzer creates a wash trading analyzer. Scores at or
// above highRiskThreshold mark the history as wash trading.
func NewWashTradingAnalyzer(highRiskThreshold float64, logger *zap.Logger) *WashTradingAnalyzer {
	if highRiskThreshold <= 0 {
		highRiskThreshold = 0.7
	}
	return &WashTradingAnalyzer{
		highRiskThreshold: highRiskThreshold,
		logger:            logger,
	}
}

// Analyze pairs the user's opposite-side trades in the same market within
// 60 seconds and 5% quantity tolerance as self-trades, performs the same
// pairing against trades of related users, and combines both into a score:
// min(selfTrades*0.1, 0.4) + min(relatedVolume/100000, 0.3) +
// min(circular*0.2, 0.3).
func (w *WashTradingAnalyzer) Analyze(ctx context.Context, userID string, trades []fraud.Trade, relatedTrades []fraud.Trade) (*WashResult, error) {
	result := &WashResult{}

	// Self-trades: the user on both sides, either via explicit
	// counterparty or by pairing their own opposite-side executions.
	paired := make(map[int]bool)
	for i, a := range trades {
		if a.CounterpartyID == userID {
			result.SelfTradeCount++
			continue
		}
		if paired[i] {
			continue
		}
		for j := i + 1; j < len(trades); j++ {
			b := trades[j]
			if paired[j] {
				continue
			}
			if pairable(a, b) {
				paired[i], paired[j] = true, true
				result.SelfTradeCount++
				break
			}
		}
	}

	// Related-account pairing: the user's trades against trades of known
	// related users.
	reciprocal := make(map[string][2]bool) // relatedUser -> [user sold to them, user bought from them]
	for _, a := range trades {
		for _, b := range relatedTrades {
			if b.UserID == userID || !pairable(a, b) {
				continue
			}
			result.RelatedTradeCount++
			v, _ := a.TotalValue.Float64()
			result.RelatedVolume += v
			dirs := reciprocal[b.UserID]
			if a.Side == fraud.TradeSideSell {
				dirs[0] = true
			} else {
				dirs[1] = true
			}
			reciprocal[b.UserID] = dirs
		}
	}
	for _, dirs := range reciprocal {
		if dirs[0] && dirs[1] {
			result.CircularPatternCount++
		}
	}

	result.Score = math.Min(float64(result.SelfTradeCount)*selfTradeScoreUnit, selfTradeScoreCap) +
		math.Min(result.RelatedVolume/relatedVolumeScale, relatedVolumeCap) +
		math.Min(float64(result.CircularPatternCount)*circularScoreUnit, circularScoreCap)

	if result.Score >= w.highRiskThreshold {
		result.IsWashTrading = true
		result.Signals = append(result.Signals, fraud.NewSignal(
			fraud.SignalWashTrading,
			fraud.SeverityHigh,
			fmt.Sprintf("wash trading pattern: %d self-trades, %.0f related volume, %d circular patterns",
				result.SelfTradeCount, result.RelatedVolume, result.CircularPatternCount),
			result.Score,
		).WithEvidence(map[string]interface{}{
			"self_trades":       result.SelfTradeCount,
			"related_volume":    result.RelatedVolume,
			"circular_patterns": result.CircularPatternCount,
		}))
		w.logger.Debug("wash trading flagged",
			zap.String("user_id", userID),
			zap.Float64("score", result.Score))
	} else if result.SelfTradeCount > 0 || result.RelatedTradeCount > 0 {
		result.Signals = append(result.Signals, fraud.NewSignal(
			fraud.SignalSuspiciousPattern,
			fraud.SeverityLow,
			fmt.Sprintf("trade pairing below wash threshold: %d self, %d related", result.SelfTradeCount, result.RelatedTradeCount),
			result.Score,
		))
	}

	return result, nil
}

// pairable reports whether two trades form a wash pair: same market,
// opposite sides, executed within 60s, quantities within 5%.
func pairable(a, b fraud.Trade) bool {
	if a.MarketID != b.MarketID || a.Side == b.Side {
		return false
	}
	gap := a.Timestamp.Sub(b.Timestamp)
	if gap < 0 {
		gap = -gap
	}
	if gap > washPairMaxGap {
		return false
	}
	if a.Quantity.IsZero() {
		return false
	}
	diff := a.Quantity.Sub(b.Quantity).Abs()
	ratio, _ := diff.Div(a.Quantity).Float64()
	return ratio <= washQtyTolerance
}
