package fraud

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketshield/fraud-detection-engine/internal/domain/errors"
)

// TransactionType represents the kind of monetized action being analyzed
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeBet        TransactionType = "bet"
	TransactionTypeWin        TransactionType = "win"
	TransactionTypeLoss       TransactionType = "loss"
	TransactionTypeBonus      TransactionType = "bonus"
	TransactionTypeRefund     TransactionType = "refund"
	TransactionTypeFee        TransactionType = "fee"
	TransactionTypeTransfer   TransactionType = "transfer"
)

// String returns the string representation of TransactionType
func (t TransactionType) String() string {
	return string(t)
}

// IsValid checks if the transaction type is valid
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeBet,
		TransactionTypeWin, TransactionTypeLoss, TransactionTypeBonus,
		TransactionTypeRefund, TransactionTypeFee, TransactionTypeTransfer:
		return true
	default:
		return false
	}
}

// TransactionStatus represents the processing state of a transaction
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// Transaction is a monetized user action submitted for analysis.
// Instances are consumed read-only; the engine never mutates them.
type Transaction struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	Type            TransactionType   `json:"type"`
	Amount          decimal.Decimal   `json:"amount"`
	Currency        string            `json:"currency"`
	Status          TransactionStatus `json:"status"`
	PaymentMethodID string            `json:"payment_method_id,omitempty"`
	DeviceID        string            `json:"device_id,omitempty"`
	IP              string            `json:"ip,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

// Validate checks the transaction fields that analysis depends on
func (t *Transaction) Validate() error {
	if t.ID == "" {
		return errors.NewValidationError("MISSING_TRANSACTION_ID", "transaction id is required")
	}
	if t.UserID == "" {
		return errors.NewValidationError("MISSING_USER_ID", "user id is required")
	}
	if !t.Type.IsValid() {
		return errors.ErrUnknownActionType.WithDetails(map[string]interface{}{
			"type": string(t.Type),
		})
	}
	if t.Amount.IsNegative() {
		return errors.NewValidationError("NEGATIVE_AMOUNT", "transaction amount cannot be negative")
	}
	return nil
}

// TradeSide indicates which side of the book a trade took
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// IsValid checks if the trade side is valid
func (s TradeSide) IsValid() bool {
	return s == TradeSideBuy || s == TradeSideSell
}

// Trade is a single execution on a market, submitted for analysis.
// Instances are consumed read-only; the engine never mutates them.
type Trade struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	MarketID       string          `json:"market_id"`
	Side           TradeSide       `json:"side"`
	Quantity       decimal.Decimal `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	TotalValue     decimal.Decimal `json:"total_value"`
	Timestamp      time.Time       `json:"timestamp"`
	CounterpartyID string          `json:"counterparty_id,omitempty"`
	DeviceID       string          `json:"device_id,omitempty"`
	IP             string          `json:"ip,omitempty"`
	SessionID      string          `json:"session_id,omitempty"`
}

// Validate checks the trade fields that analysis depends on
func (t *Trade) Validate() error {
	if t.ID == "" {
		return errors.NewValidationError("MISSING_TRADE_ID", "trade id is required")
	}
	if t.UserID == "" {
		return errors.NewValidationError("MISSING_USER_ID", "user id is required")
	}
	if t.MarketID == "" {
		return errors.NewValidationError("MISSING_MARKET_ID", "market id is required")
	}
	if !t.Side.IsValid() {
		return errors.NewValidationError("INVALID_TRADE_SIDE", "trade side must be buy or sell")
	}
	if t.Quantity.IsNegative() || t.Quantity.IsZero() {
		return errors.NewValidationError("INVALID_QUANTITY", "trade quantity must be positive")
	}
	return nil
}
