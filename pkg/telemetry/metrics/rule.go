package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/claimaudit/pkg/config"
	"mercator-hq/claimaudit/pkg/engine"
)

// RuleMetrics tracks per-rule evaluation.
//
// Metrics:
//   - claimaudit_audit_rule_evaluations_total: evaluations by rule and status
//   - claimaudit_audit_rule_evaluation_duration_seconds: evaluation duration
//   - claimaudit_audit_rule_triggered_rows_total: rows raw-triggered by rule
//   - claimaudit_audit_diagnostics_total: diagnostics by kind and severity
type RuleMetrics struct {
	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	triggeredRows      *prometheus.CounterVec
	diagnosticsTotal   *prometheus.CounterVec
}

// NewRuleMetrics creates and registers rule metrics with registry.
func NewRuleMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RuleMetrics {
	rm := &RuleMetrics{
		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rule_evaluations_total",
				Help:      "Total number of rule evaluations",
			},
			[]string{"rule_key", "status"},
		),

		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rule_evaluation_duration_seconds",
				Help:      "Duration of rule evaluation in seconds",
				Buckets:   cfg.RuleDurationBuckets,
			},
			[]string{"rule_key"},
		),

		triggeredRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rule_triggered_rows_total",
				Help:      "Total number of rows raw-triggered by a rule",
			},
			[]string{"rule_key"},
		),

		diagnosticsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "diagnostics_total",
				Help:      "Total number of rule diagnostics",
			},
			[]string{"kind", "severity"},
		),
	}

	registry.MustRegister(
		rm.evaluationsTotal,
		rm.evaluationDuration,
		rm.triggeredRows,
		rm.diagnosticsTotal,
	)
	return rm
}

// RecordEvaluation records one rule evaluation. Skipped rules are counted
// but not timed.
func (rm *RuleMetrics) RecordEvaluation(ruleKey, status string, triggered int, duration time.Duration) {
	rm.evaluationsTotal.WithLabelValues(ruleKey, status).Inc()
	if status == engine.StatusSkipped {
		return
	}
	rm.evaluationDuration.WithLabelValues(ruleKey).Observe(duration.Seconds())
	if triggered > 0 {
		rm.triggeredRows.WithLabelValues(ruleKey).Add(float64(triggered))
	}
}

// RecordDiagnostic records one diagnostic.
func (rm *RuleMetrics) RecordDiagnostic(kind, severity string) {
	rm.diagnosticsTotal.WithLabelValues(kind, severity).Inc()
}
