package smoke

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agiraud1/radar-fr/internal/domain/classify"
	"github.com/agiraud1/radar-fr/internal/domain/model"
	"github.com/agiraud1/radar-fr/pkg/logger"
)

// Runner executes smoke runs against one server.
type Runner struct {
	cfg    Config
	http   *http.Client
	logger logger.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Runner) {
		if c != nil {
			r.http = c
		}
	}
}

// New validates cfg and builds a Runner.
func New(cfg Config, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{cfg: cfg, logger: logger.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	if r.http == nil {
		r.http = &http.Client{Timeout: cfg.Timeout}
	}
	return r, nil
}

// Run checks readiness, ingests the generated notices concurrently, replays
// one batch, recomputes the day and verifies the ranking. Signals are keyed
// by URL, so the replay must leave every total unchanged.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	c := newClient(r.cfg.BaseURL, r.cfg.Token, r.http)

	if err := c.ready(ctx); err != nil {
		return Stats{}, fmt.Errorf("server not ready: %w", err)
	}

	classifier, err := classify.New()
	if err != nil {
		return Stats{}, err
	}
	plan := Generate(r.cfg, classifier)
	stats := Stats{RunID: plan.RunID, Notices: len(plan.Notices), Companies: len(plan.Companies)}
	date := model.FormatDate(r.cfg.Date)

	r.logger.Info(ctx, "starting smoke run",
		logger.String("run_id", plan.RunID),
		logger.String("base_url", r.cfg.BaseURL),
		logger.String("date", date),
		logger.Int("companies", stats.Companies),
		logger.Int("notices", stats.Notices),
		logger.Int("workers", r.cfg.Workers),
	)

	batches := Batches(plan.Notices, r.cfg.BatchSize)
	if err := r.submit(ctx, c, batches, &stats); err != nil {
		return stats, err
	}

	rep, err := c.ingest(ctx, batches[0])
	if err != nil {
		return stats, fmt.Errorf("replay: %w", err)
	}
	stats.Replayed = rep.Written
	if rep.Failed > 0 || rep.Written != len(batches[0]) {
		return stats, fmt.Errorf("%w: replay of %d notices wrote %d, failed %d",
			ErrMismatch, len(batches[0]), rep.Written, rep.Failed)
	}

	if stats.Recomputed, err = c.recompute(ctx, date); err != nil {
		return stats, fmt.Errorf("recompute: %w", err)
	}
	ranking, err := c.scores(ctx, date, r.cfg.RankLimit)
	if err != nil {
		return stats, fmt.Errorf("fetch ranking: %w", err)
	}
	stats.Ranked = len(ranking)

	stats.Verified, err = Verify(plan, ranking, r.cfg.RankLimit)
	stats.Duration = time.Since(start)
	r.logger.Info(ctx, "smoke run finished",
		logger.String("run_id", plan.RunID),
		logger.Int("written", stats.Written),
		logger.Int("failed", stats.Failed),
		logger.Int("ranked", stats.Ranked),
		logger.Int("verified", stats.Verified),
		logger.Duration("took", stats.Duration),
	)
	return stats, err
}

// submit posts batches from a pool of workers.
func (r *Runner) submit(ctx context.Context, c *client, batches [][]Notice, stats *Stats) error {
	var (
		written, duplicates, failed atomic.Int64
		firstErr                    error
		errOnce                     sync.Once
	)

	ch := make(chan []Notice, r.cfg.Workers*2)
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range ch {
				rep, err := c.ingest(ctx, batch)
				if err != nil {
					failed.Add(int64(len(batch)))
					errOnce.Do(func() { firstErr = err })
					r.logger.Warn(ctx, "batch rejected", logger.Int("size", len(batch)), logger.Error(err))
					continue
				}
				written.Add(int64(rep.Written))
				duplicates.Add(int64(rep.Duplicates))
				failed.Add(int64(rep.Failed))
			}
		}()
	}

	go func() {
		defer close(ch)
		for _, b := range batches {
			select {
			case <-ctx.Done():
				return
			case ch <- b:
			}
		}
	}()
	wg.Wait()

	stats.Written = int(written.Load())
	stats.Duplicates = int(duplicates.Load())
	stats.Failed = int(failed.Load())
	if err := ctx.Err(); err != nil {
		return err
	}
	if firstErr != nil {
		return fmt.Errorf("ingest: %w", firstErr)
	}
	if stats.Failed > 0 {
		return fmt.Errorf("%w: %d notices failed to ingest", ErrMismatch, stats.Failed)
	}
	return nil
}
