package main

import (
	"context"
	"fmt"

	"labtrail/internal/platform/config"
	pgplatform "labtrail/internal/platform/postgres"
	redisplatform "labtrail/internal/platform/redis"
	audit "labtrail/pkg/platform/audit"
	"labtrail/pkg/platform/audit/store/memory"
	pgstore "labtrail/pkg/platform/audit/store/postgres"
	redisstore "labtrail/pkg/platform/audit/store/redis"
	"labtrail/pkg/platform/audit/store/sqlite"
)

// storeBackend is the selected audit store plus its lifecycle hooks.
type storeBackend struct {
	store  audit.Store
	health func(ctx context.Context) error
	close  func() error
}

func openStore(ctx context.Context, cfg config.Config) (*storeBackend, error) {
	noop := func() error { return nil }
	alwaysHealthy := func(context.Context) error { return nil }

	switch cfg.Store.Driver {
	case config.StorePostgres:
		db, err := pgplatform.Open(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store := pgstore.New(db)
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate audit schema: %w", err)
		}
		return &storeBackend{store: store, health: db.PingContext, close: db.Close}, nil

	case config.StoreSQLite:
		store, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite audit store: %w", err)
		}
		return &storeBackend{store: store, health: store.Ping, close: store.Close}, nil

	case config.StoreRedis:
		client, err := redisplatform.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		store := redisstore.New(client.Client, redisstore.WithKeyPrefix(cfg.Redis.KeyPrefix))
		return &storeBackend{store: store, health: client.Health, close: client.Close}, nil

	default:
		return &storeBackend{store: memory.NewInMemoryStore(), health: alwaysHealthy, close: noop}, nil
	}
}
