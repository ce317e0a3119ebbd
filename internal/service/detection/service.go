package detection

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/marketshield/fraud-detection-engine/internal/domain/fraud"
	"github.com/marketshield/fraud-detection-engine/internal/infrastructure/cache"
	"github.com/marketshield/fraud-detection-engine/internal/infrastructure/config"
	"github.com/marketshield/fraud-detection-engine/internal/metrics"
	"github.com/marketshield/fraud-detection-engine/internal/service/analysis"
	"github.com/marketshield/fraud-detection-engine/internal/service/behavior"
	"github.com/marketshield/fraud-detection-engine/internal/service/device"
	"github.com/marketshield/fraud-detection-engine/internal/service/ipintel"
	"github.com/marketshield/fraud-detection-engine/internal/service/linkage"
	"github.com/marketshield/fraud-detection-engine/internal/service/patterns"
	"github.com/marketshield/fraud-detection-engine/internal/service/rules"
	"github.com/marketshield/fraud-detection-engine/internal/service/scoring"
	"github.com/marketshield/fraud-detection-engine/internal/service/velocity"
)

// TransactionRequest carries one transaction and its surrounding evidence
// into analysis. Only the transaction itself is required; absent evidence
// simply skips the corresponding analyzer.
type TransactionRequest struct {
	Transaction fraud.Transaction
	Fingerprint *fraud.DeviceFingerprint
	IPData      *ipintel.ExternalData
	// SessionDuration feeds the behavioral baseline when known.
	SessionDuration *time.Duration
	// History is the user's recent transactions for cycle/structuring scans.
	History []fraud.Transaction
	// Bets and Bonuses feed the bonus-abuse scan.
	Bets    []patterns.Bet
	Bonuses []patterns.BonusWindow
}

// TradeRequest carries one trade and its surrounding evidence into analysis
type TradeRequest struct {
	Trade       fraud.Trade
	Fingerprint *fraud.DeviceFingerprint
	IPData      *ipintel.ExternalData
	// RecentTrades is the user's own recent execution history.
	RecentTrades []fraud.Trade
	// RelatedTrades are executions by accounts already linked to the user.
	RelatedTrades []fraud.Trade
}

// AnalysisResult is the full outcome of one analysis
type AnalysisResult struct {
	Assessment     *fraud.RiskAssessment `json:"assessment"`
	TriggeredRules []rules.TriggeredRule `json:"triggered_rules,omitempty"`
	Actions        []fraud.RuleAction    `json:"actions,omitempty"`
	Alert          *fraud.FraudAlert     `json:"alert,omitempty"`
}

// Service orchestrates the analyzers, the rules engine, and the scoring
// engine into a single analysis pipeline, and owns the per-user risk
// profiles and the alert log.
type Service struct {
	cfg     config.DetectionConfig
	logger  *zap.Logger
	metrics *metrics.Registry
	tracer  trace.Tracer

	velocity *velocity.Guard
	device   *device.Analyzer
	ip       *ipintel.Analyzer
	behavior *behavior.Profiler
	linkage  *linkage.Detector
	bonus    *patterns.BonusAbuseDetector
	cycle    *patterns.CycleDetector
	wash     *patterns.WashTradingAnalyzer
	rules    *rules.Engine
	scoring  *scoring.Engine

	mu       sync.RWMutex
	profiles map[string]*fraud.UserRiskProfile

	alerts *alertBook
	stats  *statsBook
}

// NewService wires the full detection pipeline. The store backs velocity
// counters; pass a memory store for single-node deployments.
func NewService(cfg config.DetectionConfig, store cache.Store, reg *metrics.Registry, logger *zap.Logger) (*Service, error) {
	deviceAnalyzer := device.NewAnalyzer(cfg.Device, logger.Named("device"))
	ipAnalyzer := ipintel.NewAnalyzer(cfg.IP, logger.Named("ipintel"))

	rulesEngine, err := rules.NewEngine(rules.DefaultRules(), logger.Named("rules"))
	if err != nil {
		return nil, err
	}
	scoringEngine, err := scoring.NewEngine(cfg.Scoring, logger.Named("scoring"))
	if err != nil {
		return nil, err
	}

	cooldown := cfg.Alerting.Cooldown
	if cooldown <= 0 {
		cooldown = fraud.DefaultAlertCooldown
	}

	return &Service{
		cfg:      cfg,
		logger:   logger,
		metrics:  reg,
		tracer:   otel.Tracer("fraud-detection-engine"),
		velocity: velocity.NewGuard(cfg.Velocity, cfg.Thresholds, store, logger.Named("velocity")),
		device:   deviceAnalyzer,
		ip:       ipAnalyzer,
		behavior: behavior.NewProfiler(cfg.Behavior, logger.Named("behavior")),
		linkage:  linkage.NewDetector(deviceAnalyzer, ipAnalyzer, logger.Named("linkage")),
		bonus:    patterns.NewBonusAbuseDetector(logger.Named("bonus")),
		cycle:    patterns.NewCycleDetector(logger.Named("cycle")),
		wash:     patterns.NewWashTradingAnalyzer(cfg.Thresholds.HighRisk, logger.Named("wash")),
		rules:    rulesEngine,
		scoring:  scoringEngine,
		profiles: make(map[string]*fraud.UserRiskProfile),
		alerts:   newAlertBook(cooldown),
		stats:    newStatsBook(),
	}, nil
}

// Rules exposes the rules engine for rule-set management
func (s *Service) Rules() *rules.Engine {
	return s.rules
}

// AnalyzeTransaction runs the full pipeline for one transaction
func (s *Service) AnalyzeTransaction(ctx context.Context, req TransactionRequest) (*AnalysisResult, error) {
	if err := req.Transaction.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "detection.AnalyzeTransaction",
		trace.WithAttributes(
			attribute.String("transaction.id", req.Transaction.ID),
			attribute.String("transaction.type", string(req.Transaction.Type)),
		))
	defer span.End()

	started := time.Now()
	tx := req.Transaction

	ac := &analysis.Context{
		EntityID:   tx.ID,
		EntityType: fraud.EntityTypeTransaction,
		UserID:     tx.UserID,
		ActionType: string(tx.Type),
		Amount:     tx.Amount,
		Currency:   tx.Currency,
		Timestamp:  tx.Timestamp,
	}

	var wg sync.WaitGroup
	s.runAnalyzer(ctx, &wg, ac, "velocity", func() error {
		r, err := s.velocity.Check(ctx, tx.UserID, string(tx.Type), tx.Amount)
		if err != nil {
			return err
		}
		ac.Velocity = r
		if !r.Allowed {
			s.metrics.VelocityRejects.WithLabelValues(r.LimitType).Inc()
		}
		return nil
	})
	if req.Fingerprint != nil {
		s.runAnalyzer(ctx, &wg, ac, "device", func() error {
			r, err := s.device.Analyze(ctx, tx.UserID, req.Fingerprint)
			if err != nil {
				return err
			}
			ac.Device = r
			return nil
		})
	}
	if tx.IP != "" {
		s.runAnalyzer(ctx, &wg, ac, "ipintel", func() error {
			r, err := s.ip.Analyze(ctx, tx.UserID, tx.IP, req.IPData)
			if err != nil {
				return err
			}
			ac.IP = r
			return nil
		})
	}
	s.runAnalyzer(ctx, &wg, ac, "behavior", func() error {
		amount := tx.Amount
		r, err := s.behavior.Analyze(ctx, tx.UserID, behavior.Action{
			Type:            string(tx.Type),
			Amount:          &amount,
			Timestamp:       tx.Timestamp,
			SessionDuration: req.SessionDuration,
		})
		if err != nil {
			return err
		}
		ac.Behavior = r
		return nil
	})
	if len(req.History) > 0 {
		s.runAnalyzer(ctx, &wg, ac, "cycle", func() error {
			r, err := s.cycle.Detect(ctx, append(req.History, tx))
			if err != nil {
				return err
			}
			ac.Cycle = r
			return nil
		})
	}
	if len(req.Bets) > 0 || len(req.Bonuses) > 0 {
		s.runAnalyzer(ctx, &wg, ac, "bonus", func() error {
			r, err := s.bonus.Detect(ctx, req.Bets, req.Bonuses)
			if err != nil {
				return err
			}
			ac.BonusAbuse = r
			return nil
		})
	}
	wg.Wait()

	// Linkage reads the association maps the device and IP analyzers just
	// updated, so it runs after the fan-out.
	if r, err := s.linkage.Detect(ctx, tx.UserID); err != nil {
		s.degrade(ac, "linkage", err)
	} else {
		ac.MultiAccount = r
	}

	return s.finish(ctx, ac, started)
}

// AnalyzeTrade runs the full pipeline for one trade
func (s *Service) AnalyzeTrade(ctx context.Context, req TradeRequest) (*AnalysisResult, error) {
	if err := req.Trade.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "detection.AnalyzeTrade",
		trace.WithAttributes(
			attribute.String("trade.id", req.Trade.ID),
			attribute.String("trade.market_id", req.Trade.MarketID),
		))
	defer span.End()

	started := time.Now()
	trade := req.Trade

	ac := &analysis.Context{
		EntityID:   trade.ID,
		EntityType: fraud.EntityTypeTrade,
		UserID:     trade.UserID,
		ActionType: "trade",
		Amount:     trade.TotalValue,
		Timestamp:  trade.Timestamp,
	}

	var wg sync.WaitGroup
	s.runAnalyzer(ctx, &wg, ac, "velocity", func() error {
		r, err := s.velocity.Check(ctx, trade.UserID, "trade", trade.TotalValue)
		if err != nil {
			return err
		}
		ac.Velocity = r
		if !r.Allowed {
			s.metrics.VelocityRejects.WithLabelValues(r.LimitType).Inc()
		}
		return nil
	})
	if req.Fingerprint != nil {
		s.runAnalyzer(ctx, &wg, ac, "device", func() error {
			r, err := s.device.Analyze(ctx, trade.UserID, req.Fingerprint)
			if err != nil {
				return err
			}
			ac.Device = r
			return nil
		})
	}
	if trade.IP != "" {
		s.runAnalyzer(ctx, &wg, ac, "ipintel", func() error {
			r, err := s.ip.Analyze(ctx, trade.UserID, trade.IP, req.IPData)
			if err != nil {
				return err
			}
			ac.IP = r
			return nil
		})
	}
	s.runAnalyzer(ctx, &wg, ac, "behavior", func() error {
		amount := trade.TotalValue
		r, err := s.behavior.Analyze(ctx, trade.UserID, behavior.Action{
			Type:      "trade",
			Amount:    &amount,
			Timestamp: trade.Timestamp,
			MarketID:  trade.MarketID,
		})
		if err != nil {
			return err
		}
		ac.Behavior = r
		return nil
	})
	s.runAnalyzer(ctx, &wg, ac, "wash", func() error {
		r, err := s.wash.Analyze(ctx, trade.UserID, append(req.RecentTrades, trade), req.RelatedTrades)
		if err != nil {
			return err
		}
		ac.Wash = r
		return nil
	})
	wg.Wait()

	if r, err := s.linkage.Detect(ctx, trade.UserID); err != nil {
		s.degrade(ac, "linkage", err)
	} else {
		ac.MultiAccount = r
	}

	return s.finish(ctx, ac, started)
}

// runAnalyzer executes one analyzer concurrently. A failure degrades that
// analyzer to a zero contribution instead of failing the analysis.
func (s *Service) runAnalyzer(ctx context.Context, wg *sync.WaitGroup, ac *analysis.Context, name string, fn func() error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := fn(); err != nil {
			s.degrade(ac, name, err)
		}
	}()
}

// degrade records an analyzer failure. ac.DegradedAnalyzers is only
// appended from the fan-out goroutines before wg.Wait and from the single
// pipeline goroutine after, so a plain mutex suffices.
func (s *Service) degrade(ac *analysis.Context, name string, err error) {
	s.mu.Lock()
	ac.DegradedAnalyzers = append(ac.DegradedAnalyzers, name)
	s.mu.Unlock()
	s.metrics.AnalyzerFailures.WithLabelValues(name).Inc()
	s.stats.analyzerFailure()
	s.logger.Warn("analyzer degraded to zero contribution",
		zap.String("analyzer", name),
		zap.String("user_id", ac.UserID),
		zap.Error(err))
}

// finish runs rules and scoring over the assembled context, updates the
// user's profile, emits metrics and an alert when warranted.
func (s *Service) finish(ctx context.Context, ac *analysis.Context, started time.Time) (*AnalysisResult, error) {
	ac.Profile = s.profileSnapshot(ac.UserID)

	triggered := s.rules.Evaluate(ctx, ac)
	for _, t := range triggered {
		s.metrics.RulesTriggered.WithLabelValues(t.RuleID).Inc()
		s.stats.ruleTriggered()
	}

	ac.RuleSignals = rules.Signals(triggered)

	assessment, err := s.scoring.Score(ctx, ac)
	if err != nil {
		return nil, err
	}

	// Best effort: an unknown action type or degraded store just leaves the
	// previous snapshot in place.
	usage, err := s.velocity.Usage(ctx, ac.UserID, ac.ActionType)
	if err != nil {
		usage = nil
	}

	s.applyAssessment(ac, assessment, usage)

	result := &AnalysisResult{
		Assessment:     assessment,
		TriggeredRules: triggered,
		Actions:        rules.ActionsToExecute(triggered),
	}

	if assessment.RiskScore >= s.minAlertScore() {
		if alert := s.alerts.emit(assessment); alert != nil {
			result.Alert = alert
			s.metrics.AlertsTotal.WithLabelValues(string(alert.Severity)).Inc()
			s.stats.alertEmitted()
			s.logger.Info("fraud alert emitted",
				zap.String("alert_id", alert.ID),
				zap.String("user_id", alert.UserID),
				zap.String("type", string(alert.Type)),
				zap.Float64("score", assessment.RiskScore))
		}
	}

	elapsed := time.Since(started)
	s.metrics.AnalysesTotal.WithLabelValues(string(assessment.EntityType), string(assessment.RiskLevel)).Inc()
	s.metrics.AnalysisDuration.WithLabelValues(string(assessment.EntityType)).Observe(elapsed.Seconds())
	s.metrics.RiskScore.WithLabelValues(string(assessment.EntityType)).Observe(assessment.RiskScore)
	s.stats.analysis(assessment.EntityType, assessment.RiskLevel, elapsed)

	s.logger.Debug("analysis complete",
		zap.String("entity_id", assessment.EntityID),
		zap.String("user_id", assessment.UserID),
		zap.Float64("score", assessment.RiskScore),
		zap.String("level", string(assessment.RiskLevel)),
		zap.Duration("elapsed", elapsed))

	return result, nil
}

func (s *Service) minAlertScore() float64 {
	if s.cfg.Alerting.MinAlertScore > 0 {
		return s.cfg.Alerting.MinAlertScore
	}
	return s.cfg.Thresholds.HighRisk
}

// profileSnapshot returns a copy of the user's profile for read-only use
// during scoring, or nil for first-time users.
func (s *Service) profileSnapshot(userID string) *fraud.UserRiskProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil
	}
	snapshot := *p
	return &snapshot
}

// applyAssessment folds the assessment into the user's stored profile,
// creating it on first contact, and refreshes the known device/IP lists and
// the velocity-usage snapshot.
func (s *Service) applyAssessment(ac *analysis.Context, assessment *fraud.RiskAssessment, usage map[string]int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[ac.UserID]
	if !ok {
		p = fraud.NewUserRiskProfile(ac.UserID)
		s.profiles[ac.UserID] = p
	}
	p.ApplyAssessment(assessment)

	if ac.Device != nil && !containsString(p.KnownDevices, ac.Device.DeviceHash) {
		p.KnownDevices = append(p.KnownDevices, ac.Device.DeviceHash)
	}
	if ac.IP != nil && !containsString(p.KnownIPs, ac.IP.IP) {
		p.KnownIPs = append(p.KnownIPs, ac.IP.IP)
	}
	if usage != nil {
		if p.VelocityUsage == nil {
			p.VelocityUsage = make(map[string]map[string]int64)
		}
		p.VelocityUsage[ac.ActionType] = usage
	}
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
