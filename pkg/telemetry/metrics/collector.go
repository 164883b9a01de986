package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/claimaudit/pkg/config"
	"mercator-hq/claimaudit/pkg/engine"
)

// otherRule is the label used once the rule key cardinality limit is hit.
const otherRule = "other"

// Collector owns the Prometheus metrics of the audit engine. It implements
// engine.Observer so a dispatcher can report per-rule measurements directly.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	ruleMetrics *RuleMetrics
	runMetrics  *RunMetrics

	cardinalityLimiter *CardinalityLimiter
}

var _ engine.Observer = (*Collector)(nil)

// NewCollector creates a collector registered with registry. A nil registry
// gets a fresh one.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "claimaudit"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "audit"
	}
	if len(cfg.RuleDurationBuckets) == 0 {
		// Rule evaluations over a batch file take microseconds to seconds.
		cfg.RuleDurationBuckets = prometheus.ExponentialBuckets(0.0001, 4, 10)
	}
	if len(cfg.RunDurationBuckets) == 0 {
		cfg.RunDurationBuckets = []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}
	}

	c := &Collector{
		config:             cfg,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(1000),
	}
	c.ruleMetrics = NewRuleMetrics(cfg, registry)
	c.runMetrics = NewRunMetrics(cfg, registry)
	return c
}

// RuleEvaluated implements engine.Observer.
func (c *Collector) RuleEvaluated(e *engine.Entry, status string, triggered int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.ruleMetrics.RecordEvaluation(c.ruleLabel(e.Key), status, triggered, duration)
}

// DiagnosticRecorded implements engine.Observer.
func (c *Collector) DiagnosticRecorded(e *engine.Entry, d engine.Diagnostic) {
	if !c.config.Enabled {
		return
	}
	c.ruleMetrics.RecordDiagnostic(string(d.Kind), string(d.Severity))
}

// RunOutcome is what one audit run contributes to the run metrics.
type RunOutcome struct {
	DataType        string
	Status          string
	Rows            int
	RawTriggered    int
	FinalTriggered  int
	ManualTriggered int
	Duration        time.Duration
}

// Run statuses.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// RecordRun records a completed or failed audit run.
func (c *Collector) RecordRun(o RunOutcome) {
	if !c.config.Enabled {
		return
	}
	c.runMetrics.RecordRun(o)
}

// RecordCatalogReload records a catalog reload attempt and, on success, the
// number of rules now loaded.
func (c *Collector) RecordCatalogReload(success bool, rules int) {
	if !c.config.Enabled {
		return
	}
	c.runMetrics.RecordCatalogReload(success, rules)
}

// RecordPruned records runs removed by retention.
func (c *Collector) RecordPruned(count int) {
	if !c.config.Enabled {
		return
	}
	c.runMetrics.RecordPruned(count)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ruleLabel(key string) string {
	if c.cardinalityLimiter.Allow(key) {
		return key
	}
	return otherRule
}

// CardinalityLimiter caps the number of distinct label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter allowing maxCardinality values.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value is already tracked or still fits under the
// limit.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[value]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[value] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
