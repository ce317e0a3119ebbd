package values

import (
	"time"

	"github.com/shopspring/decimal"
)

// WindowCounter is a rolling-window counter tracking both event count and
// cumulative amount. Once ResetAt passes, the next observation replaces the
// counter rather than incrementing it.
type WindowCounter struct {
	Count   int64           `json:"count"`
	Amount  decimal.Decimal `json:"amount"`
	Window  time.Duration   `json:"window"`
	ResetAt time.Time       `json:"reset_at"`
}

// NewWindowCounter creates a counter whose first window starts now
func NewWindowCounter(window time.Duration) *WindowCounter {
	return &WindowCounter{
		Amount:  decimal.Zero,
		Window:  window,
		ResetAt: time.Now().Add(window),
	}
}

// Expired reports whether the current window has elapsed at the given time
func (c *WindowCounter) Expired(now time.Time) bool {
	return !now.Before(c.ResetAt)
}

// RollIfExpired replaces the counter state with a fresh window when the
// current one has elapsed. Returns true when a roll happened.
func (c *WindowCounter) RollIfExpired(now time.Time) bool {
	if !c.Expired(now) {
		return false
	}
	c.Count = 0
	c.Amount = decimal.Zero
	c.ResetAt = now.Add(c.Window)
	return true
}

// Record adds one event of the given amount to the current window
func (c *WindowCounter) Record(amount decimal.Decimal) {
	c.Count++
	c.Amount = c.Amount.Add(amount)
}

// Usage returns count/limit clamped to [0,1]; a non-positive limit reports 0
func (c *WindowCounter) Usage(limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	u := float64(c.Count) / float64(limit)
	if u > 1 {
		return 1
	}
	return u
}
