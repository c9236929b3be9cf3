package sqlite

import (
	"context"
	"fmt"

	"github.com/agiraud1/radar-fr/internal/adapters/repository"
)

// Timestamps are unix milliseconds; calendar dates are YYYY-MM-DD text.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS company (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		country             TEXT    NOT NULL DEFAULT 'FR',
		registration_number TEXT    UNIQUE,
		name                TEXT    NOT NULL DEFAULT 'Unknown',
		created_at          INTEGER NOT NULL,
		updated_at          INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS signal (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		company_id INTEGER REFERENCES company(id),
		source     TEXT    NOT NULL,
		type       TEXT    NOT NULL,
		event_date TEXT    NOT NULL,
		url        TEXT    NOT NULL UNIQUE,
		excerpt    TEXT    NOT NULL DEFAULT '',
		weight     INTEGER NOT NULL,
		confidence REAL    NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_signal_event_date ON signal(event_date, id)`,
	`CREATE INDEX IF NOT EXISTS idx_signal_company ON signal(company_id)`,
	`CREATE TABLE IF NOT EXISTS company_score_daily (
		company_id      INTEGER NOT NULL REFERENCES company(id),
		score_date      TEXT    NOT NULL,
		score_total     INTEGER NOT NULL,
		top_signal_type TEXT    NOT NULL,
		explanation     TEXT    NOT NULL DEFAULT '',
		updated_at      INTEGER NOT NULL,
		PRIMARY KEY (company_id, score_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_score_date ON company_score_daily(score_date, score_total DESC)`,
	`CREATE TABLE IF NOT EXISTS signal_feedback (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		signal_id  INTEGER NOT NULL REFERENCES signal(id) ON DELETE CASCADE,
		user_id    INTEGER NOT NULL,
		label      TEXT    NOT NULL CHECK (label IN ('reliable','unclear','broken_link','false_positive')),
		note       TEXT,
		created_at INTEGER NOT NULL,
		UNIQUE (signal_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_feedback_signal ON signal_feedback(signal_id, created_at DESC)`,
}

// Migrate creates the schema idempotently.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := exec(ctx, s.db, stmt); err != nil {
			return fmt.Errorf("%w: %v", repository.ErrMigrate, err)
		}
	}
	return nil
}
