package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Audit span attribute keys.
const (
	AttrRunID          = "claimaudit.run_id"
	AttrDataType       = "claimaudit.data_type"
	AttrInsurer        = "claimaudit.insurer"
	AttrInput          = "claimaudit.input"
	AttrRows           = "claimaudit.rows"
	AttrCatalogVersion = "claimaudit.catalog.version"

	AttrRawTriggered    = "claimaudit.triggered.raw"
	AttrFinalTriggered  = "claimaudit.triggered.final"
	AttrManualTriggered = "claimaudit.triggered.manual"
	AttrRulesFailed     = "claimaudit.rules.failed"
)

// RunAttributes returns the attributes that identify an audit run.
func RunAttributes(runID, dataType, insurer, input string, rows int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrRunID, runID),
		attribute.String(AttrDataType, dataType),
		attribute.Int(AttrRows, rows),
	}
	if insurer != "" {
		attrs = append(attrs, attribute.String(AttrInsurer, insurer))
	}
	if input != "" {
		attrs = append(attrs, attribute.String(AttrInput, input))
	}
	return attrs
}

// SetRunOutcome records the trigger counts of a finished run on span.
func SetRunOutcome(span trace.Span, catalogVersion string, raw, final, manual, failed int) {
	span.SetAttributes(
		attribute.String(AttrCatalogVersion, catalogVersion),
		attribute.Int(AttrRawTriggered, raw),
		attribute.Int(AttrFinalTriggered, final),
		attribute.Int(AttrManualTriggered, manual),
		attribute.Int(AttrRulesFailed, failed),
	)
}
