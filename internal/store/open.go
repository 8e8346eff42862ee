package store

import (
	"context"
	"fmt"

	"clinic-app-server/internal/config"
)

// Open connects to the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Stores, error) {
	switch cfg.Driver {
	case config.DriverMySQL, config.DriverPostgres:
		db, err := OpenGorm(cfg)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
		}
		return NewGormStores(db), nil
	case config.DriverMongo:
		client, err := OpenMongo(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewMongoStores(client, client.Database(cfg.Name)), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
