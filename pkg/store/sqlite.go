package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// SQLite driver names.
const (
	// DriverCGO selects github.com/mattn/go-sqlite3.
	DriverCGO = "sqlite3"

	// DriverPureGo selects modernc.org/sqlite, for builds without cgo.
	DriverPureGo = "sqlite"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path. ":memory:" gives a private database.
	Path string

	// Driver is DriverCGO or DriverPureGo.
	// Default: DriverCGO
	Driver string

	// WALMode enables Write-Ahead Logging mode.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:        "data/claimaudit.db",
		Driver:      DriverCGO,
		WALMode:     true,
		BusyTimeout: 5 * time.Second,
	}
}

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage opens the database and creates the schema.
func NewSQLiteStorage(config *SQLiteConfig, logger *slog.Logger) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Driver == "" {
		config.Driver = DriverCGO
	}
	if config.Driver != DriverCGO && config.Driver != DriverPureGo {
		return nil, NewStorageError("sqlite", "open", fmt.Errorf("unsupported driver %q", config.Driver))
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store.sqlite")

	db, err := sql.Open(config.Driver, config.Path)
	if err != nil {
		return nil, NewStorageError("sqlite", "open", err)
	}

	// SQLite only supports a single writer; one connection also keeps a
	// ":memory:" database alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStorage{db: db, config: config, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", config.Path,
		"driver", config.Driver,
		"wal_mode", config.WALMode,
	)
	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode && s.config.Path != ":memory:" {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return NewStorageError("sqlite", "enable_wal", err)
		}
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return NewStorageError("sqlite", "set_busy_timeout", err)
	}
	if _, err := s.db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return NewStorageError("sqlite", "enable_foreign_keys", err)
	}
	if _, err := s.db.Exec(Schema); err != nil {
		return NewStorageError("sqlite", "create_schema", err)
	}
	if _, err := s.db.Exec(
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?) ON CONFLICT(version) DO NOTHING",
		SchemaVersion, time.Now().UnixNano(),
	); err != nil {
		return NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version); err != nil {
		return NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	s.logger.Debug("schema version verified", "version", version)
	return nil
}

func qmark(int) string { return "?" }

// SaveRun stores the run and its findings in one transaction.
func (s *SQLiteStorage) SaveRun(ctx context.Context, run *Run, findings []*Finding) error {
	args, err := runArgs(run)
	if err != nil {
		return NewStorageError("sqlite", "save", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return NewStorageError("sqlite", "begin", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM runs WHERE id = ?", run.ID).Scan(&exists)
	if err == nil {
		return NewStorageError("sqlite", "save", fmt.Errorf("%w: %s", ErrDuplicateRun, run.ID))
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return NewStorageError("sqlite", "save", err)
	}

	insertRun := "INSERT INTO runs (" + runColumns + ") VALUES (" + placeholders(16, qmark) + ")"
	if _, err := tx.ExecContext(ctx, insertRun, args...); err != nil {
		return NewStorageError("sqlite", "save", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO findings ("+findingColumns+") VALUES ("+placeholders(7, qmark)+")")
	if err != nil {
		return NewStorageError("sqlite", "prepare", err)
	}
	defer stmt.Close()
	for _, f := range findings {
		if _, err := stmt.ExecContext(ctx, findingArgs(run.ID, f)...); err != nil {
			return NewStorageError("sqlite", "save_finding", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return NewStorageError("sqlite", "commit", err)
	}
	return nil
}

// GetRun returns the run with the given id.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, NewStorageError("sqlite", "get", err)
	}
	return run, nil
}

// ListRuns returns the runs matching query.
func (s *SQLiteStorage) ListRuns(ctx context.Context, query *Query) ([]*Run, error) {
	q, err := prepare(query)
	if err != nil {
		return nil, err
	}
	where, args := whereClause(q, qmark)
	sqlQuery := "SELECT " + runColumns + " FROM runs"
	if where != "" {
		sqlQuery += " WHERE " + where
	}
	sqlQuery += orderClause(q)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, NewStorageError("sqlite", "list", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, NewStorageError("sqlite", "scan", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("sqlite", "list", err)
	}
	return runs, nil
}

const selectFindings = "SELECT " + findingColumns + " FROM findings WHERE run_id = ? ORDER BY row_index, trigger_column, trigger_name"

// Findings returns the findings of a run.
func (s *SQLiteStorage) Findings(ctx context.Context, runID string) ([]*Finding, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, selectFindings, runID)
	if err != nil {
		return nil, NewStorageError("sqlite", "findings", err)
	}
	defer rows.Close()

	out := []*Finding{}
	for rows.Next() {
		f, err := scanFinding(rows.Scan)
		if err != nil {
			return nil, NewStorageError("sqlite", "scan", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("sqlite", "findings", err)
	}
	return out, nil
}

// FindingsStream streams the findings of a run.
func (s *SQLiteStorage) FindingsStream(ctx context.Context, runID string) (<-chan *Finding, <-chan error, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, nil, err
	}

	findingsCh := make(chan *Finding, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(findingsCh)
		defer close(errCh)

		rows, err := s.db.QueryContext(ctx, selectFindings, runID)
		if err != nil {
			errCh <- NewStorageError("sqlite", "findings_stream", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			f, err := scanFinding(rows.Scan)
			if err != nil {
				errCh <- NewStorageError("sqlite", "scan", err)
				return
			}
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case findingsCh <- f:
			}
		}
		if err := rows.Err(); err != nil {
			errCh <- NewStorageError("sqlite", "findings_stream", err)
		}
	}()

	return findingsCh, errCh, nil
}

// CountRuns returns the number of runs matching query.
func (s *SQLiteStorage) CountRuns(ctx context.Context, query *Query) (int64, error) {
	q, err := prepare(query)
	if err != nil {
		return 0, err
	}
	where, args := whereClause(q, qmark)
	sqlQuery := "SELECT COUNT(*) FROM runs"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// DeleteRuns removes matching runs. Findings go with them through the
// foreign key cascade.
func (s *SQLiteStorage) DeleteRuns(ctx context.Context, query *Query) (int64, error) {
	q, err := prepare(query)
	if err != nil {
		return 0, err
	}
	where, args := whereClause(q, qmark)
	sqlQuery := "DELETE FROM runs"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	result, err := s.db.ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		return 0, NewStorageError("sqlite", "delete", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, NewStorageError("sqlite", "delete", err)
	}
	return count, nil
}

// Close releases the database.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite storage closed")
	return nil
}

func placeholders(n int, placeholder func(int) string) string {
	marks := make([]string, n)
	for i := range marks {
		marks[i] = placeholder(i + 1)
	}
	return strings.Join(marks, ", ")
}

func runArgs(run *Run) ([]any, error) {
	diagnostics, err := json.Marshal(run.Diagnostics)
	if err != nil {
		return nil, fmt.Errorf("failed to encode diagnostics: %w", err)
	}
	return []any{
		run.ID, run.DataType, run.Insurer, run.Input, run.CatalogSource, run.CatalogVersion,
		run.StartedAt.UnixNano(), run.Duration.Milliseconds(),
		run.Rows, run.RawTriggered, run.FinalTriggered, run.ManualTriggered,
		run.Evaluated, run.Skipped, run.Failed, string(diagnostics),
	}, nil
}

func findingArgs(runID string, f *Finding) []any {
	return []any{runID, f.Row, f.Trigger, string(f.Column), f.ClaimNumber, f.PreAuthNumber, f.ActivityCode}
}

func scanRun(scan func(dest ...any) error) (*Run, error) {
	var run Run
	var startedAt, durationMs int64
	var diagnostics sql.NullString
	err := scan(
		&run.ID, &run.DataType, &run.Insurer, &run.Input, &run.CatalogSource, &run.CatalogVersion,
		&startedAt, &durationMs,
		&run.Rows, &run.RawTriggered, &run.FinalTriggered, &run.ManualTriggered,
		&run.Evaluated, &run.Skipped, &run.Failed, &diagnostics,
	)
	if err != nil {
		return nil, err
	}
	run.StartedAt = time.Unix(0, startedAt).UTC()
	run.Duration = time.Duration(durationMs) * time.Millisecond
	if diagnostics.Valid && diagnostics.String != "" && diagnostics.String != "null" {
		if err := json.Unmarshal([]byte(diagnostics.String), &run.Diagnostics); err != nil {
			return nil, fmt.Errorf("failed to decode diagnostics: %w", err)
		}
	}
	return &run, nil
}

func scanFinding(scan func(dest ...any) error) (*Finding, error) {
	var f Finding
	var column string
	if err := scan(&f.RunID, &f.Row, &f.Trigger, &column, &f.ClaimNumber, &f.PreAuthNumber, &f.ActivityCode); err != nil {
		return nil, err
	}
	f.Column = FindingColumn(column)
	return &f, nil
}
