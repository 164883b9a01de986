// Claimaudit audits health-insurance claim and pre-authorization batches
// against a catalog of business rules.
//
// Each record is checked by every active rule that applies to its record
// type. Matches are reported in three columns: raw triggers, final triggers
// after global exclusions, and triggers that need manual verification.
//
// Usage:
//
//	# Audit a claim batch with the built-in catalog
//	claimaudit run --type claim claims.csv
//
//	# Audit with a custom catalog and configuration
//	claimaudit run --config claimaudit.yaml --catalog rules.yaml preauth.csv
//
//	# Validate a catalog file
//	claimaudit lint --file rules.yaml
//
//	# List rules that apply to pre-authorizations
//	claimaudit rules --type preauth
//
//	# Inspect stored runs
//	claimaudit runs list --since 24h
//	claimaudit runs export <run-id> --format csv
//
//	# Audit every file dropped into an inbox directory
//	claimaudit watch
package main

func main() {
	Execute()
}
