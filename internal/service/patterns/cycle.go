package patterns

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/marketshield/fraud-detection-engine/internal/domain/fraud"
)

// Cycle flags
const (
	FlagRapidCycle  = "rapid_cycle"
	FlagMinimalPlay = "minimal_play"
	FlagStructuring = "structuring"
)

// Thresholds for deposit/withdrawal cycle patterns
const (
	cycleAmountTolerance   = 0.2 // withdrawal within ±20% of the deposit
	rapidCycleMaxDuration  = 2 * time.Hour
	rapidCyclePlayThrough  = 0.5
	minimalPlayThrough     = 0.1
	structuringMinDeposits = 5
	structuringMaxDeposit  = 1000
	structuringCoverage    = 0.8
)

// Cycle is one paired deposit→withdrawal with its play-through ratio
type Cycle struct {
	DepositID        string          `json:"deposit_id"`
	WithdrawalID     string          `json:"withdrawal_id"`
	DepositAmount    decimal.Decimal `json:"deposit_amount"`
	WithdrawalAmount decimal.Decimal `json:"withdrawal_amount"`
	CycleTime        time.Duration   `json:"cycle_time"`
	PlayThroughRatio float64         `json:"play_through_ratio"`
	Flags            []string        `json:"flags,omitempty"`
}

// CycleResult is the outcome of one cycle scan
type CycleResult struct {
	Cycles        []Cycle            `json:"cycles,omitempty"`
	IsStructuring bool               `json:"is_structuring"`
	Score         float64            `json:"score"`
	Signals       []fraud.RiskSignal `json:"signals,omitempty"`
}

// CycleDetector pairs deposits with near-matching withdrawals and flags
// cycles with little genuine play in between. Stateless: transaction
// history is supplied by the caller.
type CycleDetector struct {
	logger *zap.Logger
}

// NewCycleDetector creates a deposit/withdrawal cycle detector
func NewCycleDetector(logger *zap.Logger) *CycleDetector {
	return &CycleDetector{logger: logger}
}

// Detect pairs each deposit with the next withdrawal within ±20% of its
// amount, computes the play-through ratio from betting activity inside the
// cycle, and additionally checks for structuring (many small deposits
// followed by one withdrawal covering most of their sum).
func (d *CycleDetector) Detect(ctx context.Context, transactions []fraud.Transaction) (*CycleResult, error) {
	result := &CycleResult{}
	if len(transactions) == 0 {
		return result, nil
	}

	sorted := make([]fraud.Transaction, len(transactions))
	copy(sorted, transactions)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	usedWithdrawals := make(map[int]bool)
	for i, tx := range sorted {
		if tx.Type != fraud.TransactionTypeDeposit {
			continue
		}
		for j := i + 1; j < len(sorted); j++ {
			w := sorted[j]
			if w.Type != fraud.TransactionTypeWithdrawal || usedWithdrawals[j] {
				continue
			}
			if !withinTolerance(tx.Amount, w.Amount, cycleAmountTolerance) {
				continue
			}
			usedWithdrawals[j] = true
			cycle := d.buildCycle(tx, w, sorted[i+1:j])
			result.Cycles = append(result.Cycles, cycle)
			break
		}
	}

	for _, cycle := range result.Cycles {
		for _, flag := range cycle.Flags {
			switch flag {
			case FlagRapidCycle:
				result.Score += 0.3
				result.Signals = append(result.Signals, fraud.NewSignal(
					fraud.SignalDepositCycle,
					fraud.SeverityHigh,
					fmt.Sprintf("deposit cycled out in %s with %.0f%% play-through",
						cycle.CycleTime.Round(time.Minute), cycle.PlayThroughRatio*100),
					0.85,
				).WithEvidence(cycleEvidence(cycle, flag)))
			case FlagMinimalPlay:
				result.Score += 0.25
				result.Signals = append(result.Signals, fraud.NewSignal(
					fraud.SignalDepositCycle,
					fraud.SeverityMedium,
					fmt.Sprintf("deposit withdrawn with %.0f%% play-through", cycle.PlayThroughRatio*100),
					0.75,
				).WithEvidence(cycleEvidence(cycle, flag)))
			}
		}
	}

	d.detectStructuring(sorted, result)

	if result.Score > 1 {
		result.Score = 1
	}

	return result, nil
}

func (d *CycleDetector) buildCycle(deposit, withdrawal fraud.Transaction, between []fraud.Transaction) Cycle {
	betVolume := decimal.Zero
	for _, tx := range between {
		if tx.Type == fraud.TransactionTypeBet {
			betVolume = betVolume.Add(tx.Amount)
		}
	}

	playThrough := 0.0
	if deposit.Amount.IsPositive() {
		playThrough, _ = betVolume.Div(deposit.Amount).Float64()
	}

	cycle := Cycle{
		DepositID:        deposit.ID,
		WithdrawalID:     withdrawal.ID,
		DepositAmount:    deposit.Amount,
		WithdrawalAmount: withdrawal.Amount,
		CycleTime:        withdrawal.Timestamp.Sub(deposit.Timestamp),
		PlayThroughRatio: playThrough,
	}

	if cycle.CycleTime < rapidCycleMaxDuration && playThrough < rapidCyclePlayThrough {
		cycle.Flags = append(cycle.Flags, FlagRapidCycle)
	}
	// Inclusive bound: exactly 10% play-through is still minimal play.
	if playThrough <= minimalPlayThrough {
		cycle.Flags = append(cycle.Flags, FlagMinimalPlay)
	}

	return cycle
}

// detectStructuring looks for 5 or more small deposits whose sum is then
// mostly covered by a single withdrawal.
func (d *CycleDetector) detectStructuring(sorted []fraud.Transaction, result *CycleResult) {
	smallDeposits := decimal.Zero
	smallCount := 0
	maxDeposit := decimal.NewFromInt(structuringMaxDeposit)

	for _, tx := range sorted {
		switch tx.Type {
		case fraud.TransactionTypeDeposit:
			if tx.Amount.LessThan(maxDeposit) {
				smallCount++
				smallDeposits = smallDeposits.Add(tx.Amount)
			}
		case fraud.TransactionTypeWithdrawal:
			if smallCount >= structuringMinDeposits && smallDeposits.IsPositive() {
				coverage, _ := tx.Amount.Div(smallDeposits).Float64()
				if coverage >= structuringCoverage {
					result.IsStructuring = true
					result.Score += 0.4
					result.Signals = append(result.Signals, fraud.NewSignal(
						fraud.SignalStructuring,
						fraud.SeverityHigh,
						fmt.Sprintf("%d small deposits totaling %s followed by withdrawal of %s",
							smallCount, smallDeposits, tx.Amount),
						0.9,
					).WithEvidence(map[string]interface{}{
						"deposit_count": smallCount,
						"deposit_sum":   smallDeposits.String(),
						"withdrawal":    tx.Amount.String(),
					}))
					return
				}
			}
		}
	}
}

func cycleEvidence(cycle Cycle, flag string) map[string]interface{} {
	return map[string]interface{}{
		"flag":               flag,
		"deposit_id":         cycle.DepositID,
		"withdrawal_id":      cycle.WithdrawalID,
		"cycle_time":         cycle.CycleTime.String(),
		"play_through_ratio": cycle.PlayThroughRatio,
	}
}

func withinTolerance(base, other decimal.Decimal, tolerance float64) bool {
	if base.IsZero() {
		return false
	}
	diff := other.Sub(base).Abs()
	ratio, _ := diff.Div(base).Float64()
	return ratio <= tolerance
}
