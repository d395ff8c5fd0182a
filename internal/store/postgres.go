package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // Postgres driver
)

// PostgresRunStore implements RunStore on a Postgres database.
type PostgresRunStore struct {
	sqlRunStore
}

// NewPostgresRunStore connects to dsn and initializes the schema.
func NewPostgresRunStore(ctx context.Context, dsn string) (*PostgresRunStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := InitSchema(ctx, db, postgresDialect); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &PostgresRunStore{sqlRunStore: sqlRunStore{db: db, dialect: postgresDialect}}, nil
}
