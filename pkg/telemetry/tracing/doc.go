// Package tracing sets up OpenTelemetry tracing for audit runs.
//
// When enabled, spans are batched and exported over OTLP/gRPC. Each audit
// run produces one "audit" span carrying RunAttributes, with one child span
// per evaluated rule when the engine's trace option is on.
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    endpoint: localhost:4317
//	    insecure: true
//	    sampler: ratio
//	    sample_ratio: 0.25
package tracing
