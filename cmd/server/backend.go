package main

import (
	"context"
	"fmt"

	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/store/memory"
	"github.com/warp/leave-engine/store/postgres"
	"github.com/warp/leave-engine/store/sqlite"
	"github.com/warp/leave-engine/timeoff"
)

// backend is an opened store plus its lifecycle hooks.
type backend struct {
	store timeoff.Store
	ping  func(ctx context.Context) error
	close func() error
}

func (b *backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// openBackend opens the configured store. Postgres is migrated to the latest
// version when migrate is set; SQLite always creates its schema on open.
func openBackend(ctx context.Context, cfg config.DatabaseConfig, migrate bool) (*backend, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return &backend{store: memory.New()}, nil

	case config.DriverSQLite:
		s, err := sqlite.New(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite %s: %w", cfg.DSN, err)
		}
		return &backend{store: s, ping: s.Ping, close: s.Close}, nil

	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := s.Migrate(ctx); err != nil {
				s.Close()
				return nil, err
			}
		}
		return &backend{store: s, ping: s.Ping, close: s.Close}, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}
