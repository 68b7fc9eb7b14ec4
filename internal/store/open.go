package store

import (
	"context"
	"fmt"

	"github.com/punchamoorthee/lendex/internal/config"
	"github.com/punchamoorthee/lendex/internal/service"
)

// Open connects to the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg *config.Config) (service.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return NewPostgresStore(ctx, cfg.DBSource)
	case config.DriverSQLite:
		return NewSQLiteStore(ctx, cfg.SQLitePath, 0)
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

var (
	_ service.Store = (*PostgresStore)(nil)
	_ service.Store = (*SQLiteStore)(nil)
)
