package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the engine's prometheus collectors
type Registry struct {
	AnalysesTotal    *prometheus.CounterVec
	AnalysisDuration *prometheus.HistogramVec
	AlertsTotal      *prometheus.CounterVec
	AnalyzerFailures *prometheus.CounterVec
	RulesTriggered   *prometheus.CounterVec
	VelocityRejects  *prometheus.CounterVec
	RiskScore        *prometheus.HistogramVec
}

// NewRegistry creates the engine collectors and registers them with reg.
// Pass prometheus.DefaultRegisterer for the global registry.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fraud",
			Name:      "analyses_total",
			Help:      "Analyses performed, by entity type and resulting risk level.",
		}, []string{"entity_type", "risk_level"}),
		AnalysisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fraud",
			Name:      "analysis_duration_seconds",
			Help:      "End-to-end analysis latency.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"entity_type"}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fraud",
			Name:      "alerts_total",
			Help:      "Fraud alerts emitted, by severity.",
		}, []string{"severity"}),
		AnalyzerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fraud",
			Name:      "analyzer_failures_total",
			Help:      "Leaf analyzer failures degraded to zero component scores.",
		}, []string{"analyzer"}),
		RulesTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fraud",
			Name:      "rules_triggered_total",
			Help:      "Fraud rule triggers, by rule id.",
		}, []string{"rule_id"}),
		VelocityRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fraud",
			Name:      "velocity_rejections_total",
			Help:      "Actions rejected by velocity limits, by limit type.",
		}, []string{"limit_type"}),
		RiskScore: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fraud",
			Name:      "risk_score",
			Help:      "Distribution of final risk scores.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}, []string{"entity_type"}),
	}

	if reg != nil {
		reg.MustRegister(
			r.AnalysesTotal,
			r.AnalysisDuration,
			r.AlertsTotal,
			r.AnalyzerFailures,
			r.RulesTriggered,
			r.VelocityRejects,
			r.RiskScore,
		)
	}

	return r
}
