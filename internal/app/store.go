package service

import (
	"context"
	"fmt"

	"github.com/agiraud1/radar-fr/internal/adapters/repository"
	"github.com/agiraud1/radar-fr/internal/adapters/repository/postgres"
	"github.com/agiraud1/radar-fr/internal/adapters/repository/sqlite"
	"github.com/agiraud1/radar-fr/internal/config"
	"github.com/agiraud1/radar-fr/pkg/logger"
)

// OpenStore opens the backend selected by cfg.Driver and creates its schema.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, log logger.Logger) (repository.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return sqlite.Open(ctx, cfg.DSN,
			sqlite.WithMkdirAll(),
			sqlite.WithMaxOpenConns(cfg.MaxOpenConns),
			sqlite.WithBusyTimeout(cfg.BusyTimeoutMS),
			sqlite.WithLogger(log),
		)
	case config.DriverPostgres:
		return postgres.Open(ctx, cfg.DSN,
			postgres.WithMaxConns(cfg.MaxConns),
			postgres.WithLogger(log),
		)
	default:
		return nil, fmt.Errorf("%w: %q", repository.ErrUnsupportedDriver, cfg.Driver)
	}
}
