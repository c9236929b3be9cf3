// Package postgres implements the signal store on PostgreSQL through a pgx
// connection pool.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"

	"github.com/agiraud1/radar-fr/pkg/logger"
)

type config struct {
	maxConns   int32
	traceLevel tracelog.LogLevel
	migrate    bool
	logger     logger.Logger
}

// Option customises Open behaviour.
type Option func(*config)

// WithMaxConns bounds the pool.
func WithMaxConns(n int32) Option {
	return func(c *config) {
		if n > 0 {
			c.maxConns = n
		}
	}
}

// WithTraceLevel sets the level at which pgx traces queries ("debug",
// "info", "warn", "error", "none").
func WithTraceLevel(level string) Option {
	return func(c *config) {
		if l, err := tracelog.LogLevelFromString(level); err == nil {
			c.traceLevel = l
		}
	}
}

// WithoutMigrate skips schema creation on open.
func WithoutMigrate() Option { return func(c *config) { c.migrate = false } }

// WithLogger sets a custom logger for the store and the query tracer.
func WithLogger(l logger.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// Open connects to dsn, verifies the connection and creates the schema.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg := config{
		maxConns:   10,
		traceLevel: tracelog.LogLevelWarn,
		migrate:    true,
		logger:     logger.Nop(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	log := cfg.logger.Named("postgres")

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	poolConfig.MaxConns = cfg.maxConns
	poolConfig.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   &traceAdapter{logger: log},
		LogLevel: cfg.traceLevel,
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &Store{pool: pool, logger: log}
	if cfg.migrate {
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	log.Info(ctx, "postgres store opened",
		logger.String("host", poolConfig.ConnConfig.Host),
		logger.String("database", poolConfig.ConnConfig.Database),
		logger.Int("max_conns", int(cfg.maxConns)))
	return s, nil
}

// traceAdapter forwards pgx trace events to the service logger.
type traceAdapter struct {
	logger logger.Logger
}

func (a *traceAdapter) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	fields := make([]logger.Field, 0, len(data))
	for k, v := range data {
		fields = append(fields, logger.Any(k, v))
	}
	switch level {
	case tracelog.LogLevelError:
		a.logger.Error(ctx, msg, fields...)
	case tracelog.LogLevelWarn:
		a.logger.Warn(ctx, msg, fields...)
	case tracelog.LogLevelInfo:
		a.logger.Info(ctx, msg, fields...)
	default:
		a.logger.Debug(ctx, msg, fields...)
	}
}
