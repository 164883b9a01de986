package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig configures the PostgreSQL backend.
type PostgresConfig struct {
	// URL is a libpq connection string or postgres:// URL.
	URL string

	// MaxConns caps the pool size. Zero keeps the pgxpool default.
	MaxConns int32
}

// PostgresStorage implements Storage on a pgx connection pool.
type PostgresStorage struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStorage connects, pings and creates the schema.
func NewPostgresStorage(ctx context.Context, config *PostgresConfig, logger *slog.Logger) (*PostgresStorage, error) {
	if config == nil || config.URL == "" {
		return nil, NewStorageError("postgres", "open", fmt.Errorf("connection url is required"))
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store.postgres")

	pcfg, err := pgxpool.ParseConfig(config.URL)
	if err != nil {
		return nil, NewStorageError("postgres", "parse_config", err)
	}
	if config.MaxConns > 0 {
		pcfg.MaxConns = config.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, NewStorageError("postgres", "connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, NewStorageError("postgres", "ping", err)
	}

	s := &PostgresStorage{pool: pool, logger: logger}
	if err := s.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("PostgreSQL storage initialized", "max_conns", pcfg.MaxConns)
	return s, nil
}

func (s *PostgresStorage) initialize(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return NewStorageError("postgres", "create_schema", err)
	}
	if _, err := s.pool.Exec(ctx,
		"INSERT INTO schema_version (version, applied_at) VALUES ($1, $2) ON CONFLICT (version) DO NOTHING",
		SchemaVersion, time.Now().UnixNano(),
	); err != nil {
		return NewStorageError("postgres", "insert_schema_version", err)
	}
	var version int
	if err := s.pool.QueryRow(ctx, "SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version); err != nil {
		return NewStorageError("postgres", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return NewStorageError("postgres", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	return nil
}

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

// SaveRun stores the run and copies its findings in one transaction.
func (s *PostgresStorage) SaveRun(ctx context.Context, run *Run, findings []*Finding) error {
	args, err := runArgs(run)
	if err != nil {
		return NewStorageError("postgres", "save", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return NewStorageError("postgres", "begin", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		"INSERT INTO runs ("+runColumns+") VALUES ("+placeholders(16, dollar)+") ON CONFLICT (id) DO NOTHING",
		args...)
	if err != nil {
		return NewStorageError("postgres", "save", err)
	}
	if tag.RowsAffected() == 0 {
		return NewStorageError("postgres", "save", fmt.Errorf("%w: %s", ErrDuplicateRun, run.ID))
	}

	rows := make([][]any, len(findings))
	for i, f := range findings {
		rows[i] = findingArgs(run.ID, f)
	}
	if len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"findings"},
			[]string{"run_id", "row_index", "trigger_name", "trigger_column", "claim_number", "preauth_number", "activity_code"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return NewStorageError("postgres", "copy_findings", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return NewStorageError("postgres", "commit", err)
	}
	return nil
}

// GetRun returns the run with the given id.
func (s *PostgresStorage) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+runColumns+" FROM runs WHERE id = $1", id)
	run, err := scanRun(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, NewStorageError("postgres", "get", err)
	}
	return run, nil
}

// ListRuns returns the runs matching query.
func (s *PostgresStorage) ListRuns(ctx context.Context, query *Query) ([]*Run, error) {
	q, err := prepare(query)
	if err != nil {
		return nil, err
	}
	where, args := whereClause(q, dollar)
	sqlQuery := "SELECT " + runColumns + " FROM runs"
	if where != "" {
		sqlQuery += " WHERE " + where
	}
	sqlQuery += orderClause(q)

	rows, err := s.pool.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, NewStorageError("postgres", "list", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, NewStorageError("postgres", "scan", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("postgres", "list", err)
	}
	return runs, nil
}

const selectFindingsPG = "SELECT " + findingColumns + " FROM findings WHERE run_id = $1 ORDER BY row_index, trigger_column, trigger_name"

// Findings returns the findings of a run.
func (s *PostgresStorage) Findings(ctx context.Context, runID string) ([]*Finding, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, selectFindingsPG, runID)
	if err != nil {
		return nil, NewStorageError("postgres", "findings", err)
	}
	defer rows.Close()

	out := []*Finding{}
	for rows.Next() {
		f, err := scanFinding(rows.Scan)
		if err != nil {
			return nil, NewStorageError("postgres", "scan", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("postgres", "findings", err)
	}
	return out, nil
}

// FindingsStream streams the findings of a run.
func (s *PostgresStorage) FindingsStream(ctx context.Context, runID string) (<-chan *Finding, <-chan error, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, nil, err
	}

	findingsCh := make(chan *Finding, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(findingsCh)
		defer close(errCh)

		rows, err := s.pool.Query(ctx, selectFindingsPG, runID)
		if err != nil {
			errCh <- NewStorageError("postgres", "findings_stream", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			f, err := scanFinding(rows.Scan)
			if err != nil {
				errCh <- NewStorageError("postgres", "scan", err)
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
			errCh <- NewStorageError("postgres", "findings_stream", err)
		}
	}()

	return findingsCh, errCh, nil
}

// CountRuns returns the number of runs matching query.
func (s *PostgresStorage) CountRuns(ctx context.Context, query *Query) (int64, error) {
	q, err := prepare(query)
	if err != nil {
		return 0, err
	}
	where, args := whereClause(q, dollar)
	sqlQuery := "SELECT COUNT(*) FROM runs"
	if where != "" {
		sqlQuery += " WHERE " + where
	}
	var count int64
	if err := s.pool.QueryRow(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, NewStorageError("postgres", "count", err)
	}
	return count, nil
}

// DeleteRuns removes matching runs and, through the cascade, their findings.
func (s *PostgresStorage) DeleteRuns(ctx context.Context, query *Query) (int64, error) {
	q, err := prepare(query)
	if err != nil {
		return 0, err
	}
	where, args := whereClause(q, dollar)
	sqlQuery := "DELETE FROM runs"
	if where != "" {
		sqlQuery += " WHERE " + where
	}
	tag, err := s.pool.Exec(ctx, sqlQuery, args...)
	if err != nil {
		return 0, NewStorageError("postgres", "delete", err)
	}
	return tag.RowsAffected(), nil
}

// Close closes the pool.
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	s.logger.Info("PostgreSQL storage closed")
	return nil
}
