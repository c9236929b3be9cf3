package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agiraud1/radar-fr/internal/adapters/repository"
	"github.com/agiraud1/radar-fr/internal/domain/model"
	"github.com/agiraud1/radar-fr/internal/domain/types"
	"github.com/agiraud1/radar-fr/pkg/logger"
)

// Store implements repository.Store on PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

var _ repository.Store = (*Store)(nil)

var dialect = repository.Dialect{
	Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	Date:        func(t time.Time) any { return model.DateOf(t) },
	ILike:       "ILIKE",
}

// Pool exposes the underlying pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// UpsertCompany inserts the company or refreshes updated_at. A placeholder
// name is replaced by a resolved one, never the reverse.
func (s *Store) UpsertCompany(ctx context.Context, country, registration, name string) (int64, error) {
	defer repository.Observe("upsert_company", time.Now())
	const q = `
		INSERT INTO company (country, registration_number, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (registration_number) DO UPDATE SET
			updated_at = now(),
			name = CASE WHEN company.name = $4 THEN EXCLUDED.name ELSE company.name END
		RETURNING id`
	var id int64
	if err := s.pool.QueryRow(ctx, q, country, registration, name, model.UnknownCompanyName).Scan(&id); err != nil {
		return 0, repository.Transient("upsert company", err)
	}
	return id, nil
}

// UpsertSignal inserts or refreshes a signal keyed on URL. An existing
// company link is never cleared and the first source is kept.
func (s *Store) UpsertSignal(ctx context.Context, sig model.Signal) (int64, error) {
	defer repository.Observe("upsert_signal", time.Now())
	const q = `
		INSERT INTO signal (company_id, source, type, event_date, url, excerpt, weight, confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (url) DO UPDATE SET
			company_id = COALESCE(signal.company_id, EXCLUDED.company_id),
			type       = EXCLUDED.type,
			event_date = EXCLUDED.event_date,
			excerpt    = EXCLUDED.excerpt,
			weight     = EXCLUDED.weight,
			confidence = EXCLUDED.confidence,
			updated_at = now()
		RETURNING id`
	var id int64
	err := s.pool.QueryRow(ctx, q,
		sig.CompanyID, sig.Source, string(sig.Type), model.DateOf(sig.EventDate),
		sig.URL, sig.Excerpt, sig.Weight, sig.Confidence,
	).Scan(&id)
	if err != nil {
		return 0, repository.Transient("upsert signal", err)
	}
	return id, nil
}

// SignalGroups rolls up the signals of date by (company, type).
func (s *Store) SignalGroups(ctx context.Context, date time.Time) ([]model.SignalGroup, error) {
	defer repository.Observe("signal_groups", time.Now())
	rows, err := s.pool.Query(ctx, `
		SELECT company_id, type, SUM(weight)::BIGINT, COUNT(*)
		FROM signal
		WHERE event_date = $1 AND company_id IS NOT NULL
		GROUP BY company_id, type`, model.DateOf(date))
	if err != nil {
		return nil, repository.Transient("signal groups", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (model.SignalGroup, error) {
		var g model.SignalGroup
		var typ string
		err := r.Scan(&g.CompanyID, &typ, &g.WeightSum, &g.Count)
		g.Type = model.SignalType(typ)
		return g, err
	})
	if err != nil {
		return nil, repository.Transient("signal groups", err)
	}
	return out, nil
}

// UpsertDailyScore overwrites the score of (company, date).
func (s *Store) UpsertDailyScore(ctx context.Context, d model.DailyScore) error {
	defer repository.Observe("upsert_daily_score", time.Now())
	_, err := s.pool.Exec(ctx, `
		INSERT INTO company_score_daily (company_id, score_date, score_total, top_signal_type, explanation)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (company_id, score_date) DO UPDATE SET
			score_total     = EXCLUDED.score_total,
			top_signal_type = EXCLUDED.top_signal_type,
			explanation     = EXCLUDED.explanation,
			updated_at      = now()`,
		d.CompanyID, model.DateOf(d.ScoreDate), d.ScoreTotal, string(d.TopSignalType), d.Explanation)
	return repository.Transient("upsert daily score", err)
}

// SignalExists reports whether a signal id is known.
func (s *Store) SignalExists(ctx context.Context, signalID int64) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM signal WHERE id = $1)`, signalID).Scan(&exists); err != nil {
		return false, repository.Transient("signal exists", err)
	}
	return exists, nil
}

const feedbackColumns = `id, signal_id, user_id, label, note, created_at`

// SubmitFeedback writes the human row for (signal, user) and drops the
// system row of the signal in one transaction.
func (s *Store) SubmitFeedback(ctx context.Context, f model.Feedback) (model.Feedback, error) {
	defer repository.Observe("submit_feedback", time.Now())
	var out model.Feedback
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockSignal(ctx, tx, f.SignalID); err != nil {
			return err
		}
		row := tx.QueryRow(ctx, `
			INSERT INTO signal_feedback (signal_id, user_id, label, note, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (signal_id, user_id) DO UPDATE SET
				label      = EXCLUDED.label,
				note       = EXCLUDED.note,
				created_at = EXCLUDED.created_at
			RETURNING `+feedbackColumns,
			f.SignalID, f.UserID, string(f.Label), f.Note, f.CreatedAt)
		var err error
		if out, err = scanFeedback(row); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM signal_feedback WHERE signal_id = $1 AND user_id = $2`,
			f.SignalID, model.SystemUserID)
		return err
	})
	if err != nil {
		return model.Feedback{}, repository.Transient("submit feedback", err)
	}
	return out, nil
}

// MarkSystemFeedback writes the system row unless a human labelled the
// signal. Both feedback writers lock the signal row first.
func (s *Store) MarkSystemFeedback(ctx context.Context, f model.Feedback) (bool, error) {
	defer repository.Observe("mark_system_feedback", time.Now())
	var written bool
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockSignal(ctx, tx, f.SignalID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			INSERT INTO signal_feedback (signal_id, user_id, label, note, created_at)
			SELECT $1::BIGINT, $2::BIGINT, $3::TEXT, $4::TEXT, $5::TIMESTAMPTZ
			WHERE NOT EXISTS (SELECT 1 FROM signal_feedback WHERE signal_id = $1 AND user_id <> $2)
			ON CONFLICT (signal_id, user_id) DO UPDATE SET
				label      = EXCLUDED.label,
				note       = EXCLUDED.note,
				created_at = EXCLUDED.created_at`,
			f.SignalID, model.SystemUserID, string(f.Label), f.Note, f.CreatedAt)
		written = tag.RowsAffected() > 0
		return err
	})
	if err != nil {
		return false, repository.Transient("mark system feedback", err)
	}
	return written, nil
}

// lockSignal serializes feedback writers of one signal. A missing signal
// is left to the foreign key.
func lockSignal(ctx context.Context, tx pgx.Tx, signalID int64) error {
	_, err := tx.Exec(ctx, `SELECT 1 FROM signal WHERE id = $1 FOR UPDATE`, signalID)
	return err
}

// FeedbackCounts groups a signal's feedback by label.
func (s *Store) FeedbackCounts(ctx context.Context, signalID int64) ([]types.LabelCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT label, COUNT(*) FROM signal_feedback WHERE signal_id = $1 GROUP BY label ORDER BY label`, signalID)
	if err != nil {
		return nil, repository.Transient("feedback counts", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (types.LabelCount, error) {
		var lc types.LabelCount
		var label string
		err := r.Scan(&label, &lc.Count)
		lc.Label = model.Label(label)
		return lc, err
	})
	if err != nil {
		return nil, repository.Transient("feedback counts", err)
	}
	return nonNil(out), nil
}

// LatestFeedback lists a signal's newest feedback rows.
func (s *Store) LatestFeedback(ctx context.Context, signalID int64, limit int) ([]model.Feedback, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+feedbackColumns+`
		FROM signal_feedback
		WHERE signal_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, signalID, limit)
	if err != nil {
		return nil, repository.Transient("latest feedback", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (model.Feedback, error) {
		return scanFeedback(r)
	})
	if err != nil {
		return nil, repository.Transient("latest feedback", err)
	}
	return nonNil(out), nil
}

// RecentSignals lists signals dated on or after since, newest first.
func (s *Store) RecentSignals(ctx context.Context, since time.Time, limit int) ([]model.Signal, error) {
	defer repository.Observe("recent_signals", time.Now())
	rows, err := s.pool.Query(ctx, `
		SELECT id, company_id, source, type, event_date, url, excerpt, weight, confidence, created_at, updated_at
		FROM signal
		WHERE event_date >= $1
		ORDER BY event_date DESC, id DESC
		LIMIT $2`, model.DateOf(since), limit)
	if err != nil {
		return nil, repository.Transient("recent signals", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (model.Signal, error) {
		var sig model.Signal
		var typ string
		err := r.Scan(&sig.ID, &sig.CompanyID, &sig.Source, &typ, &sig.EventDate, &sig.URL, &sig.Excerpt,
			&sig.Weight, &sig.Confidence, &sig.CreatedAt, &sig.UpdatedAt)
		sig.Type = model.SignalType(typ)
		sig.EventDate = model.DateOf(sig.EventDate)
		return sig, err
	})
	if err != nil {
		return nil, repository.Transient("recent signals", err)
	}
	return out, nil
}

const scoreSelect = `
	SELECT cs.company_id, COALESCE(c.name, 'Unknown'), c.registration_number,
	       to_char(cs.score_date, 'YYYY-MM-DD'), cs.score_total, cs.top_signal_type, cs.explanation
	FROM company_score_daily cs
	LEFT JOIN company c ON c.id = cs.company_id`

// QueryScores ranks the scores of date.
func (s *Store) QueryScores(ctx context.Context, date time.Time, limit int) ([]types.ScoreEntry, error) {
	defer repository.Observe("query_scores", time.Now())
	rows, err := s.pool.Query(ctx, scoreSelect+`
		WHERE cs.score_date = $1
		ORDER BY cs.score_total DESC, cs.company_id ASC
		LIMIT $2`, model.DateOf(date), limit)
	if err != nil {
		return nil, repository.Transient("query scores", err)
	}
	return collectScores(rows)
}

// CompanyScores lists a company's most recent scores.
func (s *Store) CompanyScores(ctx context.Context, companyID int64, limit int) ([]types.ScoreEntry, error) {
	rows, err := s.pool.Query(ctx, scoreSelect+`
		WHERE cs.company_id = $1
		ORDER BY cs.score_date DESC
		LIMIT $2`, companyID, limit)
	if err != nil {
		return nil, repository.Transient("company scores", err)
	}
	return collectScores(rows)
}

// Company returns a company by id.
func (s *Store) Company(ctx context.Context, id int64) (model.Company, error) {
	var c model.Company
	err := s.pool.QueryRow(ctx, `
		SELECT id, country, registration_number, name, created_at, updated_at
		FROM company WHERE id = $1`, id).
		Scan(&c.ID, &c.Country, &c.RegistrationNumber, &c.Name, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Company{}, repository.NotFound("company", id)
	}
	if err != nil {
		return model.Company{}, repository.Transient("company", err)
	}
	return c, nil
}

// ListSignals returns one page of filtered signals and the total count.
func (s *Store) ListSignals(ctx context.Context, f model.SignalFilter) ([]types.SignalView, int, error) {
	defer repository.Observe("list_signals", time.Now())
	where, args := repository.SignalFilterClause(dialect, f)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM signal s WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, repository.Transient("count signals", err)
	}

	n := len(args)
	q := fmt.Sprintf(`
		SELECT s.id, s.company_id, c.name, c.registration_number, s.source, s.type,
		       to_char(s.event_date, 'YYYY-MM-DD'), s.url, s.excerpt, s.weight, s.confidence
		FROM signal s
		LEFT JOIN company c ON c.id = s.company_id
		WHERE %s
		ORDER BY s.event_date DESC, s.id DESC
		LIMIT $%d OFFSET $%d`, where, n+1, n+2)
	rows, err := s.pool.Query(ctx, q, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, repository.Transient("list signals", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (types.SignalView, error) {
		var v types.SignalView
		var typ string
		err := r.Scan(&v.ID, &v.CompanyID, &v.CompanyName, &v.RegistrationNumber, &v.Source, &typ,
			&v.EventDate, &v.URL, &v.Excerpt, &v.Weight, &v.Confidence)
		v.Type = model.SignalType(typ)
		return v, err
	})
	if err != nil {
		return nil, 0, repository.Transient("list signals", err)
	}
	return nonNil(out), total, nil
}

// Counts reports table sizes.
func (s *Store) Counts(ctx context.Context) (types.StoreCounts, error) {
	var c types.StoreCounts
	err := s.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM company),
		       (SELECT COUNT(*) FROM signal),
		       (SELECT COUNT(*) FROM company_score_daily),
		       (SELECT COUNT(*) FROM signal_feedback)`).
		Scan(&c.Companies, &c.Signals, &c.Scores, &c.Feedback)
	if err != nil {
		return types.StoreCounts{}, repository.Transient("counts", err)
	}
	return c, nil
}

// Health pings the database and reports pool usage.
func (s *Store) Health(ctx context.Context) repository.Health {
	start := time.Now()
	h := repository.Health{Status: repository.StatusHealthy, Driver: "postgres"}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.pool.Ping(pingCtx); err != nil {
		h.Status = repository.StatusUnhealthy
		h.Error = fmt.Sprintf("ping failed: %v", err)
		h.ResponseTime = time.Since(start).String()
		return h
	}

	st := s.pool.Stat()
	h.OpenConns = int(st.TotalConns())
	h.InUse = int(st.AcquiredConns())
	h.Idle = int(st.IdleConns())
	h.MaxConns = int(st.MaxConns())
	h.ResponseTime = time.Since(start).String()
	if st.AcquiredConns() >= st.MaxConns()-2 && st.MaxConns() > 2 {
		h.Status = repository.StatusDegraded
		h.Error = "connection pool nearly exhausted"
	}
	return h
}

func scanFeedback(r pgx.Row) (model.Feedback, error) {
	var f model.Feedback
	var label string
	if err := r.Scan(&f.ID, &f.SignalID, &f.UserID, &label, &f.Note, &f.CreatedAt); err != nil {
		return model.Feedback{}, err
	}
	f.Label = model.Label(label)
	f.CreatedAt = f.CreatedAt.UTC()
	return f, nil
}

func collectScores(rows pgx.Rows) ([]types.ScoreEntry, error) {
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (types.ScoreEntry, error) {
		var e types.ScoreEntry
		var typ string
		err := r.Scan(&e.CompanyID, &e.CompanyName, &e.RegistrationNumber, &e.ScoreDate, &e.ScoreTotal, &typ, &e.Explanation)
		e.TopSignalType = model.SignalType(typ)
		return e, err
	})
	if err != nil {
		return nil, repository.Transient("scores", err)
	}
	return nonNil(out), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
