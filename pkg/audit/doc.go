// Package audit runs claim and pre-authorization batches through the full
// pipeline: preprocessing, rule dispatch, manual-verification promotion and
// finalization.
//
// An Auditor is built for one record type:
//
//	a, err := audit.New("claim", registry,
//		audit.WithExclusions(spec),
//		audit.WithStorage(storage),
//		audit.WithMetrics(collector),
//	)
//	res, err := a.Execute(ctx, frame, "batch.csv")
//
// Each run gets a UUID run ID that is attached to the logging context, the
// run span and the stored run. When storage is configured, Execute saves the
// run summary and one finding per row, column and trigger.
package audit
