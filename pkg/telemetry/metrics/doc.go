// Package metrics exposes Prometheus metrics for audit runs.
//
// # Metrics
//
//   - Rule metrics: evaluations by status, evaluation duration, triggered
//     rows and diagnostics
//   - Run metrics: runs by data type and outcome, run duration, audited rows,
//     triggered rows per stage (raw, final, manual)
//   - Catalog metrics: reloads and the active rule count
//   - Retention metrics: pruned runs
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	dispatcher, _ := engine.NewDispatcher(nil, logger, engine.WithObserver(collector))
//	http.Handle("/metrics", collector.Handler())
//
// The collector is safe for concurrent use. Rule keys beyond the cardinality
// limit are aggregated under the "other" label.
package metrics
