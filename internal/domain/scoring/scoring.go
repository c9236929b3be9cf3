// Package scoring aggregates a day's signals into per-company daily scores.
package scoring

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/agiraud1/radar-fr/internal/domain/model"
	"github.com/agiraud1/radar-fr/pkg/logger"
	"github.com/agiraud1/radar-fr/pkg/metrics"
)

// Store is the slice of the signal store the aggregator needs.
type Store interface {
	// SignalGroups rolls up the signals of one date by (company, type).
	// Signals without a company are excluded.
	SignalGroups(ctx context.Context, date time.Time) ([]model.SignalGroup, error)
	// UpsertDailyScore writes or overwrites the row for (company, date).
	UpsertDailyScore(ctx context.Context, s model.DailyScore) error
}

// Aggregate computes one DailyScore per company from the groups of a date.
// The dominant type has the highest weight sum, then the highest count, then
// the smallest type name. Output is ordered by company id.
func Aggregate(date time.Time, groups []model.SignalGroup) []model.DailyScore {
	type acc struct {
		total int64
		count int64
		top   model.SignalGroup
	}
	byCompany := make(map[int64]*acc)
	for _, g := range groups {
		a, ok := byCompany[g.CompanyID]
		if !ok {
			byCompany[g.CompanyID] = &acc{total: g.WeightSum, count: g.Count, top: g}
			continue
		}
		a.total += g.WeightSum
		a.count += g.Count
		if dominates(g, a.top) {
			a.top = g
		}
	}

	day := model.DateOf(date)
	out := make([]model.DailyScore, 0, len(byCompany))
	for id, a := range byCompany {
		out = append(out, model.DailyScore{
			CompanyID:     id,
			ScoreDate:     day,
			ScoreTotal:    a.total,
			TopSignalType: a.top.Type,
			Explanation:   Explain(day, a.count, a.top.Type),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompanyID < out[j].CompanyID })
	return out
}

func dominates(a, b model.SignalGroup) bool {
	if a.WeightSum != b.WeightSum {
		return a.WeightSum > b.WeightSum
	}
	if a.Count != b.Count {
		return a.Count > b.Count
	}
	return a.Type < b.Type
}

// Explain renders the human-readable summary stored with a score.
func Explain(date time.Time, signals int64, top model.SignalType) string {
	return fmt.Sprintf("Weighted sum of signals for %s: %d signal(s), dominant %s",
		model.FormatDate(date), signals, top)
}

// Aggregator recomputes daily scores. Runs are serialized: each call reads
// the groups itself after every earlier run has written, so a caller always
// sees the signals it wrote before calling.
type Aggregator struct {
	store  Store
	logger logger.Logger
	loc    *time.Location
	now    func() time.Time
	runs   *semaphore.Weighted
}

// NewAggregator creates an Aggregator bound to store.
func NewAggregator(store Store, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:  store,
		logger: logger.Nop(),
		loc:    time.UTC,
		now:    time.Now,
		runs:   semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Today returns the current calendar date in the aggregator's zone.
func (a *Aggregator) Today() time.Time {
	return model.Today(a.now(), a.loc)
}

// Recompute rebuilds the scores of date (today when nil) and returns the
// number of rows written. Any store failure aborts the run. A caller whose
// ctx ends while waiting for an earlier run returns without running.
func (a *Aggregator) Recompute(ctx context.Context, date *time.Time) (int, error) {
	day := a.Today()
	if date != nil {
		day = model.DateOf(*date)
	}

	if err := a.runs.Acquire(ctx, 1); err != nil {
		return 0, fmt.Errorf("recompute %s: %w", model.FormatDate(day), err)
	}
	defer a.runs.Release(1)
	return a.run(ctx, day)
}

func (a *Aggregator) run(ctx context.Context, day time.Time) (int, error) {
	runID := uuid.NewString()
	log := a.logger.With(logger.String("run_id", runID), logger.String("date", model.FormatDate(day)))
	start := time.Now()

	groups, err := a.store.SignalGroups(ctx, day)
	if err != nil {
		metrics.RecordAggregationError()
		log.Error(ctx, "read signal groups failed", logger.Error(err))
		return 0, fmt.Errorf("recompute %s: %w", model.FormatDate(day), err)
	}

	scores := Aggregate(day, groups)
	for i, s := range scores {
		if err := a.store.UpsertDailyScore(ctx, s); err != nil {
			metrics.RecordAggregationError()
			log.Error(ctx, "upsert daily score failed",
				logger.Int64("company_id", s.CompanyID),
				logger.Int("written", i),
				logger.Error(err))
			return 0, fmt.Errorf("recompute %s: company %d: %w", model.FormatDate(day), s.CompanyID, err)
		}
	}

	elapsed := time.Since(start)
	metrics.RecordAggregationRun(float64(elapsed.Milliseconds()), len(scores), time.Now().Unix())
	log.Info(ctx, "recompute done",
		logger.Int("groups", len(groups)),
		logger.Int("companies", len(scores)),
		logger.Duration("took", elapsed))
	return len(scores), nil
}
