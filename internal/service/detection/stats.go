package detection

import (
	"sync"
	"time"

	"github.com/marketshield/fraud-detection-engine/internal/domain/fraud"
)

// Stats is a point-in-time snapshot of engine activity since the last reset
type Stats struct {
	TotalAnalyses        int64                     `json:"total_analyses"`
	TransactionsAnalyzed int64                     `json:"transactions_analyzed"`
	TradesAnalyzed       int64                     `json:"trades_analyzed"`
	ByRiskLevel          map[fraud.RiskLevel]int64 `json:"by_risk_level"`
	AlertsEmitted        int64                     `json:"alerts_emitted"`
	RulesTriggered       int64                     `json:"rules_triggered"`
	AnalyzerFailures     int64                     `json:"analyzer_failures"`
	AvgLatencyMs         float64                   `json:"avg_latency_ms"`
}

// statsBook accumulates counters behind a mutex. Prometheus carries the
// operational metrics; this book backs the stats API, which callers can
// reset independently.
type statsBook struct {
	mu               sync.Mutex
	total            int64
	transactions     int64
	trades           int64
	byLevel          map[fraud.RiskLevel]int64
	alerts           int64
	rulesTriggered   int64
	analyzerFailures int64
	latencyTotal     time.Duration
}

func newStatsBook() *statsBook {
	return &statsBook{byLevel: make(map[fraud.RiskLevel]int64)}
}

func (b *statsBook) analysis(entityType fraud.EntityType, level fraud.RiskLevel, elapsed time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total++
	switch entityType {
	case fraud.EntityTypeTransaction:
		b.transactions++
	case fraud.EntityTypeTrade:
		b.trades++
	}
	b.byLevel[level]++
	b.latencyTotal += elapsed
}

func (b *statsBook) alertEmitted() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alerts++
}

func (b *statsBook) ruleTriggered() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rulesTriggered++
}

func (b *statsBook) analyzerFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.analyzerFailures++
}

func (b *statsBook) snapshot() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	byLevel := make(map[fraud.RiskLevel]int64, len(b.byLevel))
	for k, v := range b.byLevel {
		byLevel[k] = v
	}
	var avgMs float64
	if b.total > 0 {
		avgMs = float64(b.latencyTotal.Microseconds()) / float64(b.total) / 1000
	}
	return Stats{
		TotalAnalyses:        b.total,
		TransactionsAnalyzed: b.transactions,
		TradesAnalyzed:       b.trades,
		ByRiskLevel:          byLevel,
		AlertsEmitted:        b.alerts,
		RulesTriggered:       b.rulesTriggered,
		AnalyzerFailures:     b.analyzerFailures,
		AvgLatencyMs:         avgMs,
	}
}

func (b *statsBook) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total = 0
	b.transactions = 0
	b.trades = 0
	b.byLevel = make(map[fraud.RiskLevel]int64)
	b.alerts = 0
	b.rulesTriggered = 0
	b.analyzerFailures = 0
	b.latencyTotal = 0
}

// Stats returns engine activity counters since start or the last reset
func (s *Service) Stats() Stats {
	return s.stats.snapshot()
}

// ResetStats zeroes the stats counters. Prometheus metrics are unaffected.
func (s *Service) ResetStats() {
	s.stats.reset()
}
