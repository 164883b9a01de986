// Package health serves liveness and readiness probes for the watch
// daemon. Readiness aggregates component checks such as the loaded catalog,
// the run store and the inbox directory.
package health
