package behavior

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketshield/fraud-detection-engine/internal/infrastructure/config"
)

func testBehaviorConfig() config.BehaviorConfig {
	return config.BehaviorConfig{
		AnomalyThreshold:       2.5,
		MinSessionsForBaseline: 5,
		UpdateOnAnomaly:        true,
	}
}

func amount(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func at(hour int) time.Time {
	return time.Date(2026, 8, 24, hour, 0, 0, 0, time.UTC)
}

// seed establishes a baseline of identical midday deposits
func seed(t *testing.T, p *Profiler, userID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := p.Analyze(context.Background(), userID, Action{
			Type:      "deposit",
			Amount:    amount(100),
			Timestamp: at(12),
		})
		require.NoError(t, err)
	}
}

func TestProfiler_NoBaselineNoAnomaly(t *testing.T) {
	p := NewProfiler(testBehaviorConfig(), zap.NewNop())

	r, err := p.Analyze(context.Background(), "user-1", Action{
		Type:      "deposit",
		Amount:    amount(1_000_000),
		Timestamp: at(3),
	})
	require.NoError(t, err)
	assert.False(t, r.HasBaseline)
	assert.False(t, r.IsAnomaly, "first action has nothing to deviate from")
	assert.Equal(t, 0.0, r.AnomalyScore)
}

func TestProfiler_AmountSpikeIsAnomaly(t *testing.T) {
	p := NewProfiler(testBehaviorConfig(), zap.NewNop())
	seed(t, p, "user-1", 6)

	r, err := p.Analyze(context.Background(), "user-1", Action{
		Type:      "deposit",
		Amount:    amount(1000), // 10x the ~100 baseline
		Timestamp: at(12),
	})
	require.NoError(t, err)
	assert.True(t, r.IsAnomaly, "amount over 5x baseline is an anomaly on its own")
	assert.Contains(t, r.Triggers, TriggerAmount)
}

func TestProfiler_AmountWithinBaselineNotFlagged(t *testing.T) {
	p := NewProfiler(testBehaviorConfig(), zap.NewNop())
	seed(t, p, "user-1", 6)

	r, err := p.Analyze(context.Background(), "user-1", Action{
		Type:      "deposit",
		Amount:    amount(300),
		Timestamp: at(12),
	})
	require.NoError(t, err)
	assert.False(t, r.IsAnomaly)
	assert.Empty(t, r.Triggers)
}

func TestProfiler_UnusualHourIsAnomaly(t *testing.T) {
	p := NewProfiler(testBehaviorConfig(), zap.NewNop())
	seed(t, p, "user-1", 6)

	r, err := p.Analyze(context.Background(), "user-1", Action{
		Type:      "deposit",
		Amount:    amount(100),
		Timestamp: at(3), // usual hour is 12
	})
	require.NoError(t, err)
	assert.True(t, r.IsAnomaly)
	assert.Contains(t, r.Triggers, TriggerTimeOfDay)
}

func TestProfiler_UnknownMarketPatternAlone(t *testing.T) {
	p := NewProfiler(testBehaviorConfig(), zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := p.Analyze(ctx, "user-1", Action{
			Type:      "trade",
			Amount:    amount(100),
			Timestamp: at(12),
			MarketID:  "BTC-USD",
		})
		require.NoError(t, err)
	}

	r, err := p.Analyze(ctx, "user-1", Action{
		Type:      "trade",
		Amount:    amount(100),
		Timestamp: at(12),
		MarketID:  "DOGE-USD",
	})
	require.NoError(t, err)
	assert.Contains(t, r.Triggers, TriggerTradingPattern)
	assert.False(t, r.IsAnomaly, "a single soft trigger stays under the threshold")
	assert.Greater(t, r.AnomalyScore, 0.0)
}

func TestProfiler_SessionDurationTrigger(t *testing.T) {
	p := NewProfiler(testBehaviorConfig(), zap.NewNop())
	ctx := context.Background()

	usual := 30 * time.Minute
	for i := 0; i < 6; i++ {
		_, err := p.Analyze(ctx, "user-1", Action{
			Type:            "login",
			Timestamp:       at(12),
			SessionDuration: &usual,
		})
		require.NoError(t, err)
	}

	blip := time.Minute // under 10% of the 30m baseline
	r, err := p.Analyze(ctx, "user-1", Action{
		Type:            "login",
		Timestamp:       at(12),
		SessionDuration: &blip,
	})
	require.NoError(t, err)
	assert.Contains(t, r.Triggers, TriggerSessionDuration)
}

func TestProfiler_UpdateOnAnomalyDisabledFreezesBaseline(t *testing.T) {
	cfg := testBehaviorConfig()
	cfg.UpdateOnAnomaly = false
	p := NewProfiler(cfg, zap.NewNop())
	ctx := context.Background()
	seed(t, p, "user-1", 6)

	// Repeated 10x spikes must not drag the baseline upward.
	for i := 0; i < 5; i++ {
		r, err := p.Analyze(ctx, "user-1", Action{
			Type:      "deposit",
			Amount:    amount(1000),
			Timestamp: at(12),
		})
		require.NoError(t, err)
		assert.True(t, r.IsAnomaly, "spike %d should stay anomalous", i+1)
	}
}

func TestProfiler_UpdateOnAnomalyEnabledNormalizes(t *testing.T) {
	p := NewProfiler(testBehaviorConfig(), zap.NewNop())
	ctx := context.Background()
	seed(t, p, "user-1", 6)

	// With baseline updates on, sustained large deposits eventually stop
	// being 5x the moving average.
	anomalous := true
	for i := 0; i < 40 && anomalous; i++ {
		r, err := p.Analyze(ctx, "user-1", Action{
			Type:      "deposit",
			Amount:    amount(1000),
			Timestamp: at(12),
		})
		require.NoError(t, err)
		anomalous = r.IsAnomaly
	}
	assert.False(t, anomalous, "baseline should absorb the new normal")
}
