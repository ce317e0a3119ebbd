package fraud

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRiskLevelForScore_Boundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  RiskLevel
	}{
		{0.0, RiskLevelLow},
		{0.39999, RiskLevelLow},
		{0.4, RiskLevelMedium},
		{0.69999, RiskLevelMedium},
		{0.7, RiskLevelHigh},
		{0.89999, RiskLevelHigh},
		{0.9, RiskLevelCritical},
		{1.0, RiskLevelCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RiskLevelForScore(tt.score), "score %v", tt.score)
	}
}

func TestDeviceFingerprint_HashStable(t *testing.T) {
	depth := 24
	fp := &DeviceFingerprint{
		UserAgent:  "Mozilla/5.0",
		Platform:   "MacIntel",
		ColorDepth: &depth,
		Timezone:   "Europe/Berlin",
	}
	assert.Equal(t, fp.Hash(), fp.Hash())
}

func TestDeviceFingerprint_HashSensitiveToPresence(t *testing.T) {
	fp1 := &DeviceFingerprint{UserAgent: "Mozilla/5.0", Timezone: "UTC"}
	fp2 := &DeviceFingerprint{UserAgent: "Mozilla/5.0"}
	assert.NotEqual(t, fp1.Hash(), fp2.Hash(), "omitting a signal changes identity")
}

func TestHaversineKm(t *testing.T) {
	london := GeoLocation{Latitude: 51.5074, Longitude: -0.1278}
	newYork := GeoLocation{Latitude: 40.7128, Longitude: -74.0060}

	d := HaversineKm(london, newYork)
	assert.InDelta(t, 5570, d, 20, "London-New York is about 5570 km")
	assert.InDelta(t, d, HaversineKm(newYork, london), 1e-9, "distance is symmetric")
	assert.Equal(t, 0.0, HaversineKm(london, london))
}

func TestTransaction_Validate(t *testing.T) {
	valid := Transaction{
		ID:        "tx-1",
		UserID:    "user-1",
		Type:      TransactionTypeDeposit,
		Amount:    decimal.NewFromInt(100),
		Timestamp: time.Now(),
	}
	require.NoError(t, valid.Validate())

	missing := valid
	missing.UserID = ""
	assert.Error(t, missing.Validate())

	badType := valid
	badType.Type = "teleport"
	assert.Error(t, badType.Validate())

	negative := valid
	negative.Amount = decimal.NewFromInt(-5)
	assert.Error(t, negative.Validate())
}

func TestTrade_Validate(t *testing.T) {
	valid := Trade{
		ID:       "trade-1",
		UserID:   "user-1",
		MarketID: "BTC-USD",
		Side:     TradeSideBuy,
		Quantity: decimal.NewFromInt(1),
	}
	require.NoError(t, valid.Validate())

	zeroQty := valid
	zeroQty.Quantity = decimal.Zero
	assert.Error(t, zeroQty.Validate())

	badSide := valid
	badSide.Side = "hold"
	assert.Error(t, badSide.Validate())
}

func TestUserRiskProfile_ApplyAssessment(t *testing.T) {
	p := NewUserRiskProfile("user-1")

	first := &RiskAssessment{RiskScore: 0.8, AssessedAt: time.Now()}
	p.ApplyAssessment(first)
	assert.Equal(t, 0.8, p.OverallRiskScore, "first assessment seeds the score")
	assert.Equal(t, RiskLevelHigh, p.RiskLevel)

	second := &RiskAssessment{RiskScore: 0.2, AssessedAt: time.Now()}
	p.ApplyAssessment(second)
	assert.InDelta(t, 0.3*0.2+0.7*0.8, p.OverallRiskScore, 1e-9)
	assert.Equal(t, int64(2), p.AssessmentCount)
	assert.Len(t, p.RecentScores, 2)
}

func TestUserRiskProfile_RecentScoresBounded(t *testing.T) {
	p := NewUserRiskProfile("user-1")
	for i := 0; i < 30; i++ {
		p.ApplyAssessment(&RiskAssessment{RiskScore: 0.5, AssessedAt: time.Now()})
	}
	assert.Len(t, p.RecentScores, 20)
}

func TestAccountFlag_IsActive(t *testing.T) {
	active := AccountFlag{Type: "chargeback"}
	assert.True(t, active.IsActive(), "flags without expiry stay active")

	past := time.Now().Add(-time.Hour)
	expired := AccountFlag{Type: "chargeback", ExpiresAt: &past}
	assert.False(t, expired.IsActive())
}

func TestDominantSignal(t *testing.T) {
	signals := []RiskSignal{
		NewSignal(SignalNewDevice, SeverityLow, "new device", 0.5),
		NewSignal(SignalBotDetected, SeverityHigh, "bot", 0.95),
		NewSignal(SignalSharedDevice, SeverityMedium, "shared", 0.8),
	}
	dominant, ok := DominantSignal(signals)
	require.True(t, ok)
	assert.Equal(t, SignalBotDetected, dominant.Type)

	_, ok = DominantSignal(nil)
	assert.False(t, ok)
}

func TestNewSignal_ClampsConfidence(t *testing.T) {
	assert.Equal(t, 1.0, NewSignal(SignalBotDetected, SeverityHigh, "x", 1.7).Confidence)
	assert.Equal(t, 0.0, NewSignal(SignalBotDetected, SeverityHigh, "x", -0.2).Confidence)
}
