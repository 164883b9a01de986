// Package store persists audit runs and their findings.
//
// A Run holds the summary of one audit: the data type, the catalog version
// it ran against, row and rule counts and the engine diagnostics. Each trigger
// on each output row becomes a Finding, tagged with the trigger column it
// appeared in (raw, final or manual).
//
// # Backends
//
//   - MemoryStorage: map-backed, for tests and runs without history.
//   - SQLiteStorage: database/sql over github.com/mattn/go-sqlite3 or, for
//     builds without cgo, modernc.org/sqlite.
//   - PostgresStorage: a pgx connection pool; findings are loaded with COPY.
//
// Open picks a backend from a Config.
//
// # Queries
//
// Query filters runs by time range, data type, insurer, catalog version and
// failure. Validate rejects bad pagination and sort fields; ApplyDefaults
// fills in a limit of DefaultLimit sorted by start time, newest first.
//
// Retention lives in the retention subpackage and export in the export
// subpackage.
package store
