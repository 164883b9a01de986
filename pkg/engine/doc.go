// Package engine evaluates catalog rules against a record set.
//
// # Overview
//
// A Registry is compiled once from a catalog.Catalog. Every rule becomes an
// EvalFunc: mask-based shapes call EvaluateMask, optionally over helper
// columns built in a private overlay of the frame, and pair rules call
// EvaluatePairs. A Dispatcher then walks the registry in declaration order:
//
//	reg, err := engine.NewRegistry(cat)
//	if err != nil {
//	    // some rules were rejected; reg still holds the rest
//	}
//	d, _ := engine.NewDispatcher(nil, logger)
//	state, report, err := d.Run(ctx, reg, catalog.CaseClaim, frame, approved, eligible, state)
//
// # Mask algebra
//
// A mask rule triggers on a row when
//
//	inclusion-present AND exclusion-absent AND extra-present AND approved
//
// Inclusion clauses are OR'd, exclusion clauses are AND'd over their
// negations, and extra conditions are AND'd. Code matching ignores case. An
// inclusion or exclusion clause on a missing column is dropped with a
// MissingColumnWarning. An unknown extra-condition operator makes the whole
// extra-condition mask false.
//
// # Failure isolation
//
// An error or panic inside one rule becomes a RuleExecutionFailure in the
// Report. The rule contributes nothing for the run and the next rule runs.
//
// # Manual verification
//
// After a rule with review_req manual runs, Promote copies its matches on rows
// that are not exclusion-eligible into the manual trigger set.
package engine
