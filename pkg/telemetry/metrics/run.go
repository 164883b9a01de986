package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/claimaudit/pkg/config"
)

// Triggered-row stages.
const (
	StageRaw    = "raw"
	StageFinal  = "final"
	StageManual = "manual"
)

// RunMetrics tracks whole audit runs and the catalog behind them.
type RunMetrics struct {
	runsTotal      *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	rowsTotal      *prometheus.CounterVec
	triggeredRows  *prometheus.CounterVec
	catalogReloads *prometheus.CounterVec
	catalogRules   prometheus.Gauge
	prunedRuns     prometheus.Counter
}

// NewRunMetrics creates and registers run metrics with registry.
func NewRunMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RunMetrics {
	rm := &RunMetrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "runs_total",
				Help:      "Total number of audit runs",
			},
			[]string{"data_type", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "run_duration_seconds",
				Help:      "Duration of audit runs in seconds",
				Buckets:   cfg.RunDurationBuckets,
			},
			[]string{"data_type"},
		),
		rowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rows_total",
				Help:      "Total number of audited rows",
			},
			[]string{"data_type"},
		),
		triggeredRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "triggered_rows_total",
				Help:      "Total number of rows with at least one trigger, by stage",
			},
			[]string{"data_type", "stage"},
		),
		catalogReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "catalog_reloads_total",
				Help:      "Total number of rule catalog reloads",
			},
			[]string{"result"},
		),
		catalogRules: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "catalog_rules",
				Help:      "Number of rules in the active catalog",
			},
		),
		prunedRuns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "pruned_runs_total",
				Help:      "Total number of stored runs removed by retention",
			},
		),
	}

	registry.MustRegister(
		rm.runsTotal,
		rm.runDuration,
		rm.rowsTotal,
		rm.triggeredRows,
		rm.catalogReloads,
		rm.catalogRules,
		rm.prunedRuns,
	)
	return rm
}

// RecordRun records one audit run. Only successful runs contribute rows.
func (rm *RunMetrics) RecordRun(o RunOutcome) {
	rm.runsTotal.WithLabelValues(o.DataType, o.Status).Inc()
	rm.runDuration.WithLabelValues(o.DataType).Observe(o.Duration.Seconds())
	if o.Status != RunSucceeded {
		return
	}
	rm.rowsTotal.WithLabelValues(o.DataType).Add(float64(o.Rows))
	rm.triggeredRows.WithLabelValues(o.DataType, StageRaw).Add(float64(o.RawTriggered))
	rm.triggeredRows.WithLabelValues(o.DataType, StageFinal).Add(float64(o.FinalTriggered))
	rm.triggeredRows.WithLabelValues(o.DataType, StageManual).Add(float64(o.ManualTriggered))
}

// RecordCatalogReload records a reload attempt.
func (rm *RunMetrics) RecordCatalogReload(success bool, rules int) {
	if !success {
		rm.catalogReloads.WithLabelValues("error").Inc()
		return
	}
	rm.catalogReloads.WithLabelValues("success").Inc()
	rm.catalogRules.Set(float64(rules))
}

// RecordPruned records runs removed by retention.
func (rm *RunMetrics) RecordPruned(count int) {
	rm.prunedRuns.Add(float64(count))
}
