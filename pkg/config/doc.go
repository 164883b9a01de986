// Package config loads and validates claimaudit configuration.
//
// Configuration is read from YAML, completed with defaults, overridden by
// CLAIMAUDIT_* environment variables and validated as a whole:
//
//	audit:
//	  data_type: claim
//	  insurer: QLM
//	  day_first: true
//	catalog:
//	  mode: file
//	  file_path: rules/catalog.yaml
//	store:
//	  backend: sqlite
//	  sqlite:
//	    path: data/claimaudit.db
//	  retention:
//	    days: 30
//	telemetry:
//	  logging:
//	    level: debug
//	    format: console
//
// Validation errors are reported together as a ValidationError listing
// every offending field. Processes that need a shared instance call
// Initialize once and GetConfig afterwards.
package config
