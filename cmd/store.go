package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/civicdata/budget-cli/internal/store"
)

// openStore opens the configured backend read-write (for ingest).
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "", "sqlite":
		return store.NewSQLite(cfg.Store.Path)
	default:
		return nil, eris.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}

// openStoreReadOnly opens the configured backend for query serving.
// Postgres pools are already safe for concurrent reads; SQLite gets a
// dedicated read-only handle.
func openStoreReadOnly(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "", "sqlite":
		return store.NewSQLiteReadOnly(cfg.Store.Path)
	default:
		return nil, eris.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}
