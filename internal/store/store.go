// Package store selects and opens the configured record.Store.
package store

import (
	"context"
	"fmt"

	"github.com/drblury/todobridge/internal/record"
	"github.com/drblury/todobridge/internal/runtime/config"
	errspkg "github.com/drblury/todobridge/internal/runtime/errors"
	"github.com/drblury/todobridge/internal/runtime/logging"
	"github.com/drblury/todobridge/internal/store/memory"
	"github.com/drblury/todobridge/internal/store/sqlstore"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open builds the store named by cfg.StoreDriver.
func Open(ctx context.Context, cfg *config.Config, logger logging.ServiceLogger) (record.Store, error) {
	switch cfg.StoreDriver {
	case "", DriverMemory:
		var opts []memory.Option
		if cfg.StoreSeed {
			opts = append(opts, memory.WithSeed())
		}
		return memory.New(opts...), nil
	case DriverSQLite, "sqlite3":
		return sqlstore.OpenSQLite(ctx, sqlstore.Config{FilePath: cfg.SQLiteFile, Seed: cfg.StoreSeed}, logger)
	case DriverPostgres, "postgresql":
		return sqlstore.OpenPostgres(ctx, sqlstore.Config{ConnectionString: cfg.PostgresURL, Seed: cfg.StoreSeed}, logger)
	default:
		return nil, fmt.Errorf("%w: %q", errspkg.ErrUnknownStoreDriver, cfg.StoreDriver)
	}
}
