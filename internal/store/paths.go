package store

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/nvandessel/tradernet/internal/config"
)

// DBFile is the SQLite database file name inside the data directory.
const DBFile = "tradernet.db"

// DefaultDBPath returns the SQLite path used when none is configured:
// <data dir>/tradernet.db, where the data directory is $TRADERNET_HOME or
// ~/.tradernet.
func DefaultDBPath() (string, error) {
	home, err := config.HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DBFile), nil
}

// Open returns the RunStore selected by cfg.
func Open(ctx context.Context, cfg config.StorageConfig) (RunStore, error) {
	switch cfg.Driver {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			p, err := DefaultDBPath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		return NewSQLiteRunStore(ctx, path)
	case "postgres":
		return NewPostgresRunStore(ctx, cfg.DSN)
	case "memory":
		return NewInMemoryRunStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}
