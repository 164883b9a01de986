package store

import (
	"context"
	"fmt"
	"log/slog"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config selects and configures a storage backend.
type Config struct {
	Backend  string
	SQLite   SQLiteConfig
	Postgres PostgresConfig
}

// Open creates the backend named by config.Backend.
func Open(ctx context.Context, config Config, logger *slog.Logger) (Storage, error) {
	switch config.Backend {
	case BackendMemory, "":
		return NewMemoryStorage(), nil
	case BackendSQLite:
		sc := config.SQLite
		return NewSQLiteStorage(&sc, logger)
	case BackendPostgres:
		pc := config.Postgres
		return NewPostgresStorage(ctx, &pc, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, config.Backend)
	}
}
