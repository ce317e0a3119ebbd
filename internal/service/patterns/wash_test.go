package patterns

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketshield/fraud-detection-engine/internal/domain/fraud"
)

var washBase = time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC)

func trade(id, userID, market string, side fraud.TradeSide, qty, price int64, offset time.Duration) fraud.Trade {
	q := decimal.NewFromInt(qty)
	p := decimal.NewFromInt(price)
	return fraud.Trade{
		ID:         id,
		UserID:     userID,
		MarketID:   market,
		Side:       side,
		Quantity:   q,
		Price:      p,
		TotalValue: q.Mul(p),
		Timestamp:  washBase.Add(offset),
	}
}

func TestWash_SelfTradeViaCounterparty(t *testing.T) {
	a := NewWashTradingAnalyzer(0.7, zap.NewNop())

	trades := []fraud.Trade{
		trade("t1", "user-1", "BTC-USD", fraud.TradeSideBuy, 10, 100, 0),
	}
	trades[0].CounterpartyID = "user-1"

	r, err := a.Analyze(context.Background(), "user-1", trades, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, r.SelfTradeCount)
	assert.InDelta(t, 0.1, r.Score, 1e-9)
	assert.False(t, r.IsWashTrading)
}

func TestWash_OppositeSidePairing(t *testing.T) {
	a := NewWashTradingAnalyzer(0.7, zap.NewNop())

	trades := []fraud.Trade{
		trade("t1", "user-1", "BTC-USD", fraud.TradeSideBuy, 10, 100, 0),
		trade("t2", "user-1", "BTC-USD", fraud.TradeSideSell, 10, 100, 30*time.Second),
	}
	r, err := a.Analyze(context.Background(), "user-1", trades, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, r.SelfTradeCount, "buy/sell of same size within 60s pairs once")
}

func TestWash_PairingTolerances(t *testing.T) {
	a := NewWashTradingAnalyzer(0.7, zap.NewNop())
	ctx := context.Background()

	tests := []struct {
		name  string
		other fraud.Trade
		pairs bool
	}{
		{"different market", trade("t2", "user-1", "ETH-USD", fraud.TradeSideSell, 10, 100, 10*time.Second), false},
		{"same side", trade("t2", "user-1", "BTC-USD", fraud.TradeSideBuy, 10, 100, 10*time.Second), false},
		{"too slow", trade("t2", "user-1", "BTC-USD", fraud.TradeSideSell, 10, 100, 2*time.Minute), false},
		{"quantity off by 10%", trade("t2", "user-1", "BTC-USD", fraud.TradeSideSell, 11, 100, 10*time.Second), false},
		{"quantity within 5%", trade("t2", "user-1", "BTC-USD", fraud.TradeSideSell, 100, 100, 10*time.Second), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := trade("t1", "user-1", "BTC-USD", fraud.TradeSideBuy, 10, 100, 0)
			if tt.name == "quantity within 5%" {
				first = trade("t1", "user-1", "BTC-USD", fraud.TradeSideBuy, 98, 100, 0)
			}
			r, err := a.Analyze(ctx, "user-1", []fraud.Trade{first, tt.other}, nil)
			require.NoError(t, err)
			if tt.pairs {
				assert.Equal(t, 1, r.SelfTradeCount)
			} else {
				assert.Equal(t, 0, r.SelfTradeCount)
			}
		})
	}
}

func TestWash_RelatedVolumeAndCircular(t *testing.T) {
	a := NewWashTradingAnalyzer(0.7, zap.NewNop())

	// user-1 sells to and buys from user-2 in matched clips: reciprocal
	// flow, one circular pattern.
	mine := []fraud.Trade{
		trade("t1", "user-1", "BTC-USD", fraud.TradeSideSell, 100, 500, 0),
		trade("t2", "user-1", "BTC-USD", fraud.TradeSideBuy, 100, 500, 5*time.Minute),
	}
	related := []fraud.Trade{
		trade("r1", "user-2", "BTC-USD", fraud.TradeSideBuy, 100, 500, 10*time.Second),
		trade("r2", "user-2", "BTC-USD", fraud.TradeSideSell, 100, 500, 5*time.Minute+10*time.Second),
	}

	r, err := a.Analyze(context.Background(), "user-1", mine, related)
	require.NoError(t, err)
	assert.Equal(t, 2, r.RelatedTradeCount)
	assert.InDelta(t, 100_000, r.RelatedVolume, 1e-9)
	assert.Equal(t, 1, r.CircularPatternCount)
	// related volume (0.3 cap hit) + one circular pattern (0.2); own trades
	// are 5 minutes apart so they do not self-pair.
	assert.InDelta(t, 0.5, r.Score, 1e-9)
}

func TestWash_HighScoreFlagsWashTrading(t *testing.T) {
	a := NewWashTradingAnalyzer(0.7, zap.NewNop())

	var mine, related []fraud.Trade
	for i := 0; i < 4; i++ {
		offset := time.Duration(i) * 10 * time.Minute
		side, otherSide := fraud.TradeSideSell, fraud.TradeSideBuy
		if i%2 == 1 {
			side, otherSide = fraud.TradeSideBuy, fraud.TradeSideSell
		}
		mine = append(mine, trade(fmt.Sprintf("t%d", i), "user-1", "BTC-USD", side, 100, 500, offset))
		related = append(related, trade(fmt.Sprintf("r%d", i), "user-2", "BTC-USD", otherSide, 100, 500, offset+10*time.Second))
	}
	// Explicit self-trades push past the threshold.
	self := trade("s1", "user-1", "ETH-USD", fraud.TradeSideBuy, 5, 100, 0)
	self.CounterpartyID = "user-1"
	mine = append(mine, self, self, self)

	r, err := a.Analyze(context.Background(), "user-1", mine, related)
	require.NoError(t, err)
	assert.True(t, r.IsWashTrading)
	assert.GreaterOrEqual(t, r.Score, 0.7)

	var found bool
	for _, s := range r.Signals {
		if s.Type == fraud.SignalWashTrading {
			found = true
		}
	}
	require.True(t, found)
}

func TestWash_CleanTradingScoresZero(t *testing.T) {
	a := NewWashTradingAnalyzer(0.7, zap.NewNop())

	trades := []fraud.Trade{
		trade("t1", "user-1", "BTC-USD", fraud.TradeSideBuy, 10, 100, 0),
		trade("t2", "user-1", "BTC-USD", fraud.TradeSideBuy, 20, 105, time.Hour),
		trade("t3", "user-1", "ETH-USD", fraud.TradeSideSell, 5, 2000, 2*time.Hour),
	}
	r, err := a.Analyze(context.Background(), "user-1", trades, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.Score)
	assert.False(t, r.IsWashTrading)
	assert.Empty(t, r.Signals)
}
