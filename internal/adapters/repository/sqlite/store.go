package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agiraud1/radar-fr/internal/adapters/repository"
	"github.com/agiraud1/radar-fr/internal/domain/model"
	"github.com/agiraud1/radar-fr/internal/domain/types"
	"github.com/agiraud1/radar-fr/pkg/logger"
)

// Store implements repository.Store on SQLite.
type Store struct {
	db       *sql.DB
	logger   logger.Logger
	maxConns int
}

var _ repository.Store = (*Store)(nil)

var dialect = repository.Dialect{
	Placeholder: func(int) string { return "?" },
	Date:        func(t time.Time) any { return model.FormatDate(t) },
	ILike:       "LIKE", // ASCII case-insensitive in SQLite
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func ms(t time.Time) int64 { return t.UnixMilli() }

func fromMs(v int64) time.Time { return time.UnixMilli(v).UTC() }

func nowMs() int64 { return time.Now().UnixMilli() }

// UpsertCompany inserts the company or refreshes updated_at. A placeholder
// name is replaced by a resolved one, never the reverse.
func (s *Store) UpsertCompany(ctx context.Context, country, registration, name string) (int64, error) {
	defer repository.Observe("upsert_company", time.Now())
	const q = `
		INSERT INTO company (country, registration_number, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (registration_number) DO UPDATE SET
			updated_at = excluded.updated_at,
			name = CASE WHEN company.name = ? THEN excluded.name ELSE company.name END
		RETURNING id`
	now := nowMs()
	var id int64
	err := runTx(ctx, s.db, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, q, country, registration, name, now, now, model.UnknownCompanyName).Scan(&id)
	})
	if err != nil {
		return 0, repository.Transient("upsert company", err)
	}
	return id, nil
}

// UpsertSignal inserts or refreshes a signal keyed on URL. An existing
// company link is never cleared and the first source is kept.
func (s *Store) UpsertSignal(ctx context.Context, sig model.Signal) (int64, error) {
	defer repository.Observe("upsert_signal", time.Now())
	const q = `
		INSERT INTO signal (company_id, source, type, event_date, url, excerpt, weight, confidence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (url) DO UPDATE SET
			company_id = COALESCE(signal.company_id, excluded.company_id),
			type       = excluded.type,
			event_date = excluded.event_date,
			excerpt    = excluded.excerpt,
			weight     = excluded.weight,
			confidence = excluded.confidence,
			updated_at = excluded.updated_at
		RETURNING id`
	now := nowMs()
	var id int64
	err := runTx(ctx, s.db, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, q,
			sig.CompanyID, sig.Source, string(sig.Type), model.FormatDate(sig.EventDate),
			sig.URL, sig.Excerpt, sig.Weight, sig.Confidence, now, now,
		).Scan(&id)
	})
	if err != nil {
		return 0, repository.Transient("upsert signal", err)
	}
	return id, nil
}

// SignalGroups rolls up the signals of date by (company, type).
func (s *Store) SignalGroups(ctx context.Context, date time.Time) ([]model.SignalGroup, error) {
	defer repository.Observe("signal_groups", time.Now())
	const q = `
		SELECT company_id, type, SUM(weight), COUNT(*)
		FROM signal
		WHERE event_date = ? AND company_id IS NOT NULL
		GROUP BY company_id, type`
	rows, err := s.db.QueryContext(ctx, q, model.FormatDate(date))
	if err != nil {
		return nil, repository.Transient("signal groups", err)
	}
	defer rows.Close()

	var out []model.SignalGroup
	for rows.Next() {
		var g model.SignalGroup
		var typ string
		if err := rows.Scan(&g.CompanyID, &typ, &g.WeightSum, &g.Count); err != nil {
			return nil, repository.Transient("scan signal group", err)
		}
		g.Type = model.SignalType(typ)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, repository.Transient("signal groups", err)
	}
	return out, nil
}

// UpsertDailyScore overwrites the score of (company, date).
func (s *Store) UpsertDailyScore(ctx context.Context, d model.DailyScore) error {
	defer repository.Observe("upsert_daily_score", time.Now())
	const q = `
		INSERT INTO company_score_daily (company_id, score_date, score_total, top_signal_type, explanation, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (company_id, score_date) DO UPDATE SET
			score_total     = excluded.score_total,
			top_signal_type = excluded.top_signal_type,
			explanation     = excluded.explanation,
			updated_at      = excluded.updated_at`
	_, err := exec(ctx, s.db, q, d.CompanyID, model.FormatDate(d.ScoreDate), d.ScoreTotal,
		string(d.TopSignalType), d.Explanation, nowMs())
	return repository.Transient("upsert daily score", err)
}

// SignalExists reports whether a signal id is known.
func (s *Store) SignalExists(ctx context.Context, signalID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM signal WHERE id = ?`, signalID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, repository.Transient("signal exists", err)
	}
	return true, nil
}

const upsertFeedbackSQL = `
	INSERT INTO signal_feedback (signal_id, user_id, label, note, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (signal_id, user_id) DO UPDATE SET
		label      = excluded.label,
		note       = excluded.note,
		created_at = excluded.created_at
	RETURNING id, signal_id, user_id, label, note, created_at`

// SubmitFeedback writes the human row for (signal, user) and drops the
// system row of the signal in one transaction.
func (s *Store) SubmitFeedback(ctx context.Context, f model.Feedback) (model.Feedback, error) {
	defer repository.Observe("submit_feedback", time.Now())
	var out model.Feedback
	err := runTx(ctx, s.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, upsertFeedbackSQL, f.SignalID, f.UserID, string(f.Label), f.Note, ms(f.CreatedAt))
		var err error
		if out, err = scanFeedback(row); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM signal_feedback WHERE signal_id = ? AND user_id = ?`,
			f.SignalID, model.SystemUserID)
		return err
	})
	if err != nil {
		return model.Feedback{}, repository.Transient("submit feedback", err)
	}
	return out, nil
}

// MarkSystemFeedback writes the system row unless a human labelled the
// signal. The check and the write are one statement.
func (s *Store) MarkSystemFeedback(ctx context.Context, f model.Feedback) (bool, error) {
	defer repository.Observe("mark_system_feedback", time.Now())
	const q = `
		INSERT INTO signal_feedback (signal_id, user_id, label, note, created_at)
		SELECT ?, ?, ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM signal_feedback WHERE signal_id = ? AND user_id <> ?)
		ON CONFLICT (signal_id, user_id) DO UPDATE SET
			label      = excluded.label,
			note       = excluded.note,
			created_at = excluded.created_at`
	res, err := exec(ctx, s.db, q, f.SignalID, model.SystemUserID, string(f.Label), f.Note, ms(f.CreatedAt),
		f.SignalID, model.SystemUserID)
	if err != nil {
		return false, repository.Transient("mark system feedback", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, repository.Transient("mark system feedback", err)
	}
	return n > 0, nil
}

// FeedbackCounts groups a signal's feedback by label.
func (s *Store) FeedbackCounts(ctx context.Context, signalID int64) ([]types.LabelCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT label, COUNT(*) FROM signal_feedback WHERE signal_id = ? GROUP BY label ORDER BY label`, signalID)
	if err != nil {
		return nil, repository.Transient("feedback counts", err)
	}
	defer rows.Close()

	out := []types.LabelCount{}
	for rows.Next() {
		var lc types.LabelCount
		var label string
		if err := rows.Scan(&label, &lc.Count); err != nil {
			return nil, repository.Transient("scan feedback count", err)
		}
		lc.Label = model.Label(label)
		out = append(out, lc)
	}
	return out, repository.Transient("feedback counts", rows.Err())
}

// LatestFeedback lists a signal's newest feedback rows.
func (s *Store) LatestFeedback(ctx context.Context, signalID int64, limit int) ([]model.Feedback, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, signal_id, user_id, label, note, created_at
		FROM signal_feedback
		WHERE signal_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, signalID, limit)
	if err != nil {
		return nil, repository.Transient("latest feedback", err)
	}
	defer rows.Close()

	out := []model.Feedback{}
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, repository.Transient("scan feedback", err)
		}
		out = append(out, f)
	}
	return out, repository.Transient("latest feedback", rows.Err())
}

// RecentSignals lists signals dated on or after since, newest first.
func (s *Store) RecentSignals(ctx context.Context, since time.Time, limit int) ([]model.Signal, error) {
	defer repository.Observe("recent_signals", time.Now())
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+signalColumns+`
		FROM signal s
		WHERE s.event_date >= ?
		ORDER BY s.event_date DESC, s.id DESC
		LIMIT ?`, model.FormatDate(since), limit)
	if err != nil {
		return nil, repository.Transient("recent signals", err)
	}
	defer rows.Close()

	var out []model.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, repository.Transient("scan signal", err)
		}
		out = append(out, sig)
	}
	return out, repository.Transient("recent signals", rows.Err())
}

const scoreSelect = `
	SELECT cs.company_id, COALESCE(c.name, 'Unknown'), c.registration_number,
	       cs.score_date, cs.score_total, cs.top_signal_type, cs.explanation
	FROM company_score_daily cs
	LEFT JOIN company c ON c.id = cs.company_id`

// QueryScores ranks the scores of date.
func (s *Store) QueryScores(ctx context.Context, date time.Time, limit int) ([]types.ScoreEntry, error) {
	defer repository.Observe("query_scores", time.Now())
	rows, err := s.db.QueryContext(ctx, scoreSelect+`
		WHERE cs.score_date = ?
		ORDER BY cs.score_total DESC, cs.company_id ASC
		LIMIT ?`, model.FormatDate(date), limit)
	if err != nil {
		return nil, repository.Transient("query scores", err)
	}
	return scanScores(rows)
}

// CompanyScores lists a company's most recent scores.
func (s *Store) CompanyScores(ctx context.Context, companyID int64, limit int) ([]types.ScoreEntry, error) {
	rows, err := s.db.QueryContext(ctx, scoreSelect+`
		WHERE cs.company_id = ?
		ORDER BY cs.score_date DESC
		LIMIT ?`, companyID, limit)
	if err != nil {
		return nil, repository.Transient("company scores", err)
	}
	return scanScores(rows)
}

// Company returns a company by id.
func (s *Store) Company(ctx context.Context, id int64) (model.Company, error) {
	var (
		c                model.Company
		reg              sql.NullString
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, country, registration_number, name, created_at, updated_at
		FROM company WHERE id = ?`, id).
		Scan(&c.ID, &c.Country, &reg, &c.Name, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Company{}, repository.NotFound("company", id)
	}
	if err != nil {
		return model.Company{}, repository.Transient("company", err)
	}
	if reg.Valid {
		c.RegistrationNumber = &reg.String
	}
	c.CreatedAt, c.UpdatedAt = fromMs(created), fromMs(updated)
	return c, nil
}

// ListSignals returns one page of filtered signals and the total count.
func (s *Store) ListSignals(ctx context.Context, f model.SignalFilter) ([]types.SignalView, int, error) {
	defer repository.Observe("list_signals", time.Now())
	where, args := repository.SignalFilterClause(dialect, f)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM signal s WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, repository.Transient("count signals", err)
	}

	q := `
		SELECT s.id, s.company_id, c.name, c.registration_number, s.source, s.type,
		       s.event_date, s.url, s.excerpt, s.weight, s.confidence
		FROM signal s
		LEFT JOIN company c ON c.id = s.company_id
		WHERE ` + where + `
		ORDER BY s.event_date DESC, s.id DESC
		LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, repository.Transient("list signals", err)
	}
	defer rows.Close()

	out := []types.SignalView{}
	for rows.Next() {
		var (
			v         types.SignalView
			companyID sql.NullInt64
			name, reg sql.NullString
			typ       string
		)
		if err := rows.Scan(&v.ID, &companyID, &name, &reg, &v.Source, &typ,
			&v.EventDate, &v.URL, &v.Excerpt, &v.Weight, &v.Confidence); err != nil {
			return nil, 0, repository.Transient("scan signal view", err)
		}
		v.Type = model.SignalType(typ)
		if companyID.Valid {
			v.CompanyID = &companyID.Int64
		}
		if name.Valid {
			v.CompanyName = &name.String
		}
		if reg.Valid {
			v.RegistrationNumber = &reg.String
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, repository.Transient("list signals", err)
	}
	return out, total, nil
}

// Counts reports table sizes.
func (s *Store) Counts(ctx context.Context) (types.StoreCounts, error) {
	var c types.StoreCounts
	err := s.db.QueryRowContext(ctx, `
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
	h := repository.Health{Status: repository.StatusHealthy, Driver: "sqlite", MaxConns: s.maxConns}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		h.Status = repository.StatusUnhealthy
		h.Error = fmt.Sprintf("ping failed: %v", err)
	}

	st := s.db.Stats()
	h.OpenConns, h.InUse, h.Idle = st.OpenConnections, st.InUse, st.Idle
	h.ResponseTime = time.Since(start).String()
	if h.Status == repository.StatusHealthy && st.WaitCount > 0 && st.InUse >= s.maxConns {
		h.Status = repository.StatusDegraded
		h.Error = "connection pool saturated"
	}
	return h
}

type scanner interface {
	Scan(dest ...any) error
}

const signalColumns = `s.id, s.company_id, s.source, s.type, s.event_date, s.url, s.excerpt,
	s.weight, s.confidence, s.created_at, s.updated_at`

func scanSignal(r scanner) (model.Signal, error) {
	var (
		sig              model.Signal
		companyID        sql.NullInt64
		typ, date        string
		created, updated int64
	)
	if err := r.Scan(&sig.ID, &companyID, &sig.Source, &typ, &date, &sig.URL, &sig.Excerpt,
		&sig.Weight, &sig.Confidence, &created, &updated); err != nil {
		return model.Signal{}, err
	}
	d, err := model.ParseDate(date)
	if err != nil {
		return model.Signal{}, err
	}
	if companyID.Valid {
		sig.CompanyID = &companyID.Int64
	}
	sig.Type = model.SignalType(typ)
	sig.EventDate = d
	sig.CreatedAt, sig.UpdatedAt = fromMs(created), fromMs(updated)
	return sig, nil
}

func scanFeedback(r scanner) (model.Feedback, error) {
	var (
		f       model.Feedback
		label   string
		note    sql.NullString
		created int64
	)
	if err := r.Scan(&f.ID, &f.SignalID, &f.UserID, &label, &note, &created); err != nil {
		return model.Feedback{}, err
	}
	f.Label = model.Label(label)
	if note.Valid {
		f.Note = &note.String
	}
	f.CreatedAt = fromMs(created)
	return f, nil
}

func scanScores(rows *sql.Rows) ([]types.ScoreEntry, error) {
	defer rows.Close()
	out := []types.ScoreEntry{}
	for rows.Next() {
		var (
			e   types.ScoreEntry
			reg sql.NullString
			typ string
		)
		if err := rows.Scan(&e.CompanyID, &e.CompanyName, &reg, &e.ScoreDate, &e.ScoreTotal, &typ, &e.Explanation); err != nil {
			return nil, repository.Transient("scan score", err)
		}
		if reg.Valid {
			e.RegistrationNumber = &reg.String
		}
		e.TopSignalType = model.SignalType(strings.TrimSpace(typ))
		out = append(out, e)
	}
	return out, repository.Transient("scores", rows.Err())
}
