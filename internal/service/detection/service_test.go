package detection

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketshield/fraud-detection-engine/internal/domain/fraud"
	"github.com/marketshield/fraud-detection-engine/internal/infrastructure/cache"
	"github.com/marketshield/fraud-detection-engine/internal/infrastructure/config"
	"github.com/marketshield/fraud-detection-engine/internal/metrics"
)

func newTestService(t *testing.T, mutate func(*config.DetectionConfig)) *Service {
	t.Helper()
	cfg := config.Default().Detection
	if mutate != nil {
		mutate(&cfg)
	}
	store := cache.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	svc, err := NewService(cfg, store, metrics.NewRegistry(prometheus.NewRegistry()), zap.NewNop())
	require.NoError(t, err)
	return svc
}

func cleanFingerprint() *fraud.DeviceFingerprint {
	return &fraud.DeviceFingerprint{
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)",
		Platform:  "MacIntel",
		Timezone:  "Europe/Berlin",
		Language:  "de-DE",
		Plugins:   []string{"pdf-viewer"},
	}
}

func depositRequest(id string, amount int64) TransactionRequest {
	return TransactionRequest{
		Transaction: fraud.Transaction{
			ID:        id,
			UserID:    "user-1",
			Type:      fraud.TransactionTypeDeposit,
			Amount:    decimal.NewFromInt(amount),
			Currency:  "USD",
			Timestamp: time.Now(),
		},
		Fingerprint: cleanFingerprint(),
	}
}

func TestService_AnalyzeTransaction_CleanDeposit(t *testing.T) {
	svc := newTestService(t, nil)

	result, err := svc.AnalyzeTransaction(context.Background(), depositRequest("tx-1", 100))
	require.NoError(t, err)
	require.NotNil(t, result.Assessment)

	assert.Equal(t, fraud.RiskLevelLow, result.Assessment.RiskLevel)
	assert.Empty(t, result.TriggeredRules)
	assert.Nil(t, result.Alert)
	assert.True(t, result.Assessment.ComponentScores.Velocity < 0.5)

	p, err := svc.Profile("user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.AssessmentCount)
	assert.Len(t, p.KnownDevices, 1)

	require.Contains(t, p.VelocityUsage, "deposit")
	assert.Equal(t, int64(1), p.VelocityUsage["deposit"]["hour"])
	assert.Equal(t, int64(1), p.VelocityUsage["deposit"]["day"])
}

func TestService_AnalyzeTransaction_ValidatesInput(t *testing.T) {
	svc := newTestService(t, nil)

	req := depositRequest("", 100)
	_, err := svc.AnalyzeTransaction(context.Background(), req)
	assert.Error(t, err, "a transaction without an id is rejected before analysis")
}

func TestService_BotWithdrawalTriggersRulesAndAlert(t *testing.T) {
	svc := newTestService(t, func(cfg *config.DetectionConfig) {
		cfg.Alerting.MinAlertScore = 0.1
	})

	fp := cleanFingerprint()
	fp.Webdriver = true
	req := TransactionRequest{
		Transaction: fraud.Transaction{
			ID:        "tx-bot",
			UserID:    "user-1",
			Type:      fraud.TransactionTypeWithdrawal,
			Amount:    decimal.NewFromInt(9000),
			Currency:  "USD",
			Timestamp: time.Now(),
		},
		Fingerprint: fp,
	}

	result, err := svc.AnalyzeTransaction(context.Background(), req)
	require.NoError(t, err)

	ruleIDs := make([]string, 0, len(result.TriggeredRules))
	for _, r := range result.TriggeredRules {
		ruleIDs = append(ruleIDs, r.RuleID)
	}
	assert.Contains(t, ruleIDs, "bot-block")
	assert.Contains(t, ruleIDs, "large-withdrawal-new-device")

	actions := make([]fraud.RecommendedAction, 0, len(result.Actions))
	for _, a := range result.Actions {
		actions = append(actions, a.Type)
	}
	assert.Contains(t, actions, fraud.ActionBlockTransaction)

	require.NotNil(t, result.Alert)
	assert.Equal(t, "user-1", result.Alert.UserID)
	assert.Equal(t, fraud.AlertStatusNew, result.Alert.Status)
}

func TestService_AlertDedupWithinCooldown(t *testing.T) {
	svc := newTestService(t, func(cfg *config.DetectionConfig) {
		cfg.Alerting.MinAlertScore = 0.1
		cfg.Alerting.Cooldown = 5 * time.Minute
	})
	ctx := context.Background()

	fp := cleanFingerprint()
	fp.Webdriver = true
	req := TransactionRequest{
		Transaction: fraud.Transaction{
			ID:        "tx-bot-1",
			UserID:    "user-1",
			Type:      fraud.TransactionTypeWithdrawal,
			Amount:    decimal.NewFromInt(9000),
			Currency:  "USD",
			Timestamp: time.Now(),
		},
		Fingerprint: fp,
	}

	first, err := svc.AnalyzeTransaction(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, first.Alert)

	req.Transaction.ID = "tx-bot-2"
	second, err := svc.AnalyzeTransaction(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, second.Alert, "same user and signal type stays quiet inside the cooldown")

	assert.Equal(t, int64(1), svc.Stats().AlertsEmitted)
	assert.Len(t, svc.Alerts(""), 1)
}

func TestService_DegradedAnalyzerDoesNotFailAnalysis(t *testing.T) {
	svc := newTestService(t, nil)

	req := depositRequest("tx-1", 100)
	req.Transaction.IP = "not-an-ip"

	result, err := svc.AnalyzeTransaction(context.Background(), req)
	require.NoError(t, err, "an analyzer failure degrades its component instead of failing the run")
	assert.Equal(t, 0.0, result.Assessment.ComponentScores.IP)
	assert.Equal(t, int64(1), svc.Stats().AnalyzerFailures)
}

func TestService_AnalyzeTrade_Clean(t *testing.T) {
	svc := newTestService(t, nil)

	result, err := svc.AnalyzeTrade(context.Background(), TradeRequest{
		Trade: fraud.Trade{
			ID:         "tr-1",
			UserID:     "user-1",
			MarketID:   "BTC-USD",
			Side:       fraud.TradeSideBuy,
			Quantity:   decimal.NewFromInt(2),
			Price:      decimal.NewFromInt(100),
			TotalValue: decimal.NewFromInt(200),
			Timestamp:  time.Now(),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, fraud.EntityTypeTrade, result.Assessment.EntityType)
	assert.Equal(t, fraud.RiskLevelLow, result.Assessment.RiskLevel)
	assert.Nil(t, result.Alert)
}

func TestService_AnalyzeTrade_WashTradingFlagged(t *testing.T) {
	svc := newTestService(t, func(cfg *config.DetectionConfig) {
		cfg.Alerting.MinAlertScore = 0.1
	})

	now := time.Now()
	mkTrade := func(id, userID string, side fraud.TradeSide, offset time.Duration) fraud.Trade {
		return fraud.Trade{
			ID:         id,
			UserID:     userID,
			MarketID:   "BTC-USD",
			Side:       side,
			Quantity:   decimal.NewFromInt(100),
			Price:      decimal.NewFromInt(500),
			TotalValue: decimal.NewFromInt(50_000),
			Timestamp:  now.Add(offset),
		}
	}

	// Alternating clips mirrored by a related account, plus explicit
	// self-trades on a second market.
	recent := []fraud.Trade{
		mkTrade("tr-1", "user-1", fraud.TradeSideSell, -30*time.Minute),
		mkTrade("tr-2", "user-1", fraud.TradeSideBuy, -20*time.Minute),
		mkTrade("tr-3", "user-1", fraud.TradeSideSell, -10*time.Minute),
	}
	for i := 0; i < 3; i++ {
		self := mkTrade("self", "user-1", fraud.TradeSideBuy, -40*time.Minute)
		self.ID = "self-" + string(rune('a'+i))
		self.MarketID = "ETH-USD"
		self.CounterpartyID = "user-1"
		recent = append(recent, self)
	}
	related := []fraud.Trade{
		mkTrade("rel-1", "user-2", fraud.TradeSideBuy, -30*time.Minute+10*time.Second),
		mkTrade("rel-2", "user-2", fraud.TradeSideSell, -20*time.Minute+10*time.Second),
		mkTrade("rel-3", "user-2", fraud.TradeSideBuy, -10*time.Minute+10*time.Second),
		mkTrade("rel-4", "user-2", fraud.TradeSideSell, 10*time.Second),
	}

	result, err := svc.AnalyzeTrade(context.Background(), TradeRequest{
		Trade:         mkTrade("tr-4", "user-1", fraud.TradeSideBuy, 0),
		RecentTrades:  recent,
		RelatedTrades: related,
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.Assessment.ComponentScores.Trading, 0.7)

	var washSignal bool
	for _, s := range result.Assessment.Signals {
		if s.Type == fraud.SignalWashTrading {
			washSignal = true
		}
	}
	assert.True(t, washSignal, "self-trades plus mirrored related volume cross the wash threshold")
}

func TestService_StatsAccumulateAndReset(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	for i, id := range []string{"tx-1", "tx-2", "tx-3"} {
		req := depositRequest(id, int64(100+i))
		_, err := svc.AnalyzeTransaction(ctx, req)
		require.NoError(t, err)
	}
	_, err := svc.AnalyzeTrade(ctx, TradeRequest{
		Trade: fraud.Trade{
			ID:         "tr-1",
			UserID:     "user-1",
			MarketID:   "BTC-USD",
			Side:       fraud.TradeSideBuy,
			Quantity:   decimal.NewFromInt(1),
			Price:      decimal.NewFromInt(100),
			TotalValue: decimal.NewFromInt(100),
			Timestamp:  time.Now(),
		},
	})
	require.NoError(t, err)

	stats := svc.Stats()
	assert.Equal(t, int64(4), stats.TotalAnalyses)
	assert.Equal(t, int64(3), stats.TransactionsAnalyzed)
	assert.Equal(t, int64(1), stats.TradesAnalyzed)
	assert.Equal(t, int64(4), stats.ByRiskLevel[fraud.RiskLevelLow])
	assert.Greater(t, stats.AvgLatencyMs, 0.0)

	svc.ResetStats()
	stats = svc.Stats()
	assert.Equal(t, int64(0), stats.TotalAnalyses)
	assert.Equal(t, int64(0), stats.TransactionsAnalyzed)
	assert.Equal(t, int64(0), stats.TradesAnalyzed)
	assert.Equal(t, 0.0, stats.AvgLatencyMs)
}

func TestService_ProfileLifecycle(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.Profile("nobody")
	assert.Error(t, err)

	created := time.Now().Add(-400 * 24 * time.Hour)
	svc.SetAccountCreatedAt("user-1", created)
	svc.FlagUser("user-1", fraud.AccountFlag{
		Type:      "chargeback",
		Severity:  fraud.SeverityMedium,
		Reason:    "disputed deposit",
		CreatedAt: time.Now(),
	})

	p, err := svc.Profile("user-1")
	require.NoError(t, err)
	assert.WithinDuration(t, created, p.AccountCreatedAt, time.Second)
	require.Len(t, p.ActiveFlags(), 1)

	// A later creation-time report never overwrites the recorded one.
	svc.SetAccountCreatedAt("user-1", time.Now())
	p, err = svc.Profile("user-1")
	require.NoError(t, err)
	assert.WithinDuration(t, created, p.AccountCreatedAt, time.Second)
}

func TestService_AlertTriage(t *testing.T) {
	svc := newTestService(t, func(cfg *config.DetectionConfig) {
		cfg.Alerting.MinAlertScore = 0.1
	})

	fp := cleanFingerprint()
	fp.Webdriver = true
	req := depositRequest("tx-1", 100)
	req.Fingerprint = fp

	result, err := svc.AnalyzeTransaction(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result.Alert)

	assert.False(t, svc.UpdateAlertStatus("missing", fraud.AlertStatusResolved))
	assert.True(t, svc.UpdateAlertStatus(result.Alert.ID, fraud.AlertStatusInvestigating))

	assert.Empty(t, svc.Alerts(fraud.AlertStatusNew))
	investigating := svc.Alerts(fraud.AlertStatusInvestigating)
	require.Len(t, investigating, 1)
	assert.Equal(t, result.Alert.ID, investigating[0].ID)
}
