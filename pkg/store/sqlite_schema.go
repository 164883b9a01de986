package store

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements that create the run store. Times are unix
// nanoseconds and durations milliseconds so both SQLite drivers and
// PostgreSQL read them back identically.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    data_type TEXT NOT NULL,
    insurer TEXT NOT NULL DEFAULT '',
    input TEXT NOT NULL DEFAULT '',

    catalog_source TEXT NOT NULL,
    catalog_version TEXT NOT NULL,

    started_at BIGINT NOT NULL,
    duration_ms BIGINT NOT NULL,

    -- Row counts
    rows_total INTEGER NOT NULL,
    raw_triggered INTEGER NOT NULL,
    final_triggered INTEGER NOT NULL,
    manual_triggered INTEGER NOT NULL,

    -- Rule counts
    evaluated INTEGER NOT NULL,
    skipped INTEGER NOT NULL,
    failed INTEGER NOT NULL,

    diagnostics TEXT
);

CREATE TABLE IF NOT EXISTS findings (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    row_index INTEGER NOT NULL,
    trigger_name TEXT NOT NULL,
    trigger_column TEXT NOT NULL,
    claim_number TEXT NOT NULL DEFAULT '',
    preauth_number TEXT NOT NULL DEFAULT '',
    activity_code TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, row_index, trigger_column, trigger_name)
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_data_type ON runs(data_type);
CREATE INDEX IF NOT EXISTS idx_findings_trigger ON findings(trigger_name);
`

const runColumns = `id, data_type, insurer, input, catalog_source, catalog_version,
    started_at, duration_ms, rows_total, raw_triggered, final_triggered, manual_triggered,
    evaluated, skipped, failed, diagnostics`

const findingColumns = `run_id, row_index, trigger_name, trigger_column, claim_number, preauth_number, activity_code`
