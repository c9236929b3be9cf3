package postgres

import (
	"context"
	"fmt"

	"github.com/agiraud1/radar-fr/internal/adapters/repository"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS company (
		id                  BIGSERIAL PRIMARY KEY,
		country             TEXT        NOT NULL DEFAULT 'FR',
		registration_number TEXT        UNIQUE,
		name                TEXT        NOT NULL DEFAULT 'Unknown',
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS signal (
		id         BIGSERIAL PRIMARY KEY,
		company_id BIGINT REFERENCES company(id),
		source     TEXT             NOT NULL,
		type       TEXT             NOT NULL,
		event_date DATE             NOT NULL,
		url        TEXT             NOT NULL UNIQUE,
		excerpt    TEXT             NOT NULL DEFAULT '',
		weight     INTEGER          NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		created_at TIMESTAMPTZ      NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ      NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_signal_event_date ON signal(event_date, id)`,
	`CREATE INDEX IF NOT EXISTS idx_signal_company ON signal(company_id)`,
	`CREATE TABLE IF NOT EXISTS company_score_daily (
		company_id      BIGINT      NOT NULL REFERENCES company(id),
		score_date      DATE        NOT NULL,
		score_total     BIGINT      NOT NULL,
		top_signal_type TEXT        NOT NULL,
		explanation     TEXT        NOT NULL DEFAULT '',
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (company_id, score_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_score_date ON company_score_daily(score_date, score_total DESC)`,
	`CREATE TABLE IF NOT EXISTS signal_feedback (
		id         BIGSERIAL PRIMARY KEY,
		signal_id  BIGINT      NOT NULL REFERENCES signal(id) ON DELETE CASCADE,
		user_id    BIGINT      NOT NULL,
		label      TEXT        NOT NULL CHECK (label IN ('reliable','unclear','broken_link','false_positive')),
		note       TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (signal_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_feedback_signal ON signal_feedback(signal_id, created_at DESC)`,
}

// Migrate creates the schema idempotently.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %v", repository.ErrMigrate, err)
		}
	}
	return nil
}
