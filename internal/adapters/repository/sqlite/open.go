// Package sqlite implements the signal store on an embedded SQLite database
// (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/agiraud1/radar-fr/pkg/logger"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

type config struct {
	busyTimeoutMS int
	synchronous   string
	maxOpenConns  int
	mkdirAll      bool
	migrate       bool
	logger        logger.Logger
}

func defaults() config {
	return config{
		busyTimeoutMS: 10_000,
		synchronous:   "NORMAL",
		maxOpenConns:  4,
		migrate:       true,
		logger:        logger.Nop(),
	}
}

// Option customises Open behaviour.
type Option func(*config)

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds.
func WithBusyTimeout(ms int) Option {
	return func(c *config) {
		if ms > 0 {
			c.busyTimeoutMS = ms
		}
	}
}

// WithSynchronous sets PRAGMA synchronous.
func WithSynchronous(mode string) Option {
	return func(c *config) {
		if mode != "" {
			c.synchronous = mode
		}
	}
}

// WithMaxOpenConns bounds the connection pool. In-memory databases always use one.
func WithMaxOpenConns(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxOpenConns = n
		}
	}
}

// WithMkdirAll creates parent directories of the database path before opening.
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// WithoutMigrate skips schema creation on open.
func WithoutMigrate() Option { return func(c *config) { c.migrate = false } }

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// Open opens the database at path, applies the pragmas and creates the schema.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	cfg := defaults()
	for _, o := range opts {
		o(&cfg)
	}

	memory := path == MemoryDSN
	if cfg.mkdirAll && !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path, &cfg))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// Each connection to ":memory:" is a separate database.
	if memory {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.maxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	s := &Store{db: db, logger: cfg.logger.Named("sqlite"), maxConns: cfg.maxOpenConns}
	if memory {
		s.maxConns = 1
	}
	if cfg.migrate {
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	s.logger.Info(ctx, "sqlite store opened", logger.String("path", path))
	return s, nil
}

// OpenMemory opens a migrated in-memory store.
func OpenMemory(ctx context.Context, opts ...Option) (*Store, error) {
	return Open(ctx, MemoryDSN, opts...)
}

// dsn appends the pragmas as _pragma parameters so the driver applies them
// to every pooled connection, not only the first one.
func dsn(path string, cfg *config) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.busyTimeoutMS))
	q.Add("_pragma", fmt.Sprintf("synchronous(%s)", cfg.synchronous))
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + q.Encode()
}
