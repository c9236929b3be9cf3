// Package service composes the signal store with the domain components and
// exposes the operations used by the HTTP API, the CLI and the scheduler.
package service

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/agiraud1/radar-fr/internal/adapters/repository"
	"github.com/agiraud1/radar-fr/internal/adapters/scheduler"
	"github.com/agiraud1/radar-fr/internal/adapters/source/bodacc"
	"github.com/agiraud1/radar-fr/internal/config"
	"github.com/agiraud1/radar-fr/internal/domain/classify"
	"github.com/agiraud1/radar-fr/internal/domain/feedback"
	"github.com/agiraud1/radar-fr/internal/domain/ingest"
	"github.com/agiraud1/radar-fr/internal/domain/linkcheck"
	"github.com/agiraud1/radar-fr/internal/domain/model"
	"github.com/agiraud1/radar-fr/internal/domain/scoring"
	"github.com/agiraud1/radar-fr/internal/domain/types"
	"github.com/agiraud1/radar-fr/pkg/logger"
	"github.com/agiraud1/radar-fr/pkg/metrics"
)

// Job names registered with the scheduler.
const (
	JobRecompute  = "recompute-daily"
	JobCheckLinks = "check-links"
)

// Bounds of on-demand link sweeps.
const (
	MaxLookbackDays = 90
	MaxSweepLimit   = 1000
)

// Service owns the store and the domain components for one process.
type Service struct {
	mu sync.RWMutex

	cfg        *config.Config
	loc        *time.Location
	now        func() time.Time
	httpClient linkcheck.Doer

	store      repository.Store
	classifier *classify.Classifier
	ingestor   *ingest.Ingestor
	aggregator *scoring.Aggregator
	ledger     *feedback.Ledger
	checker    *linkcheck.Checker
	collector  *bodacc.Collector
	scheduler  *scheduler.Scheduler

	started   bool
	startedAt time.Time
	logger    logger.Logger
}

// New constructs a Service from cfg. Nothing is opened until Start.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store, builds the components and, when enabled, starts
// the scheduler. It is a no-op on a started service.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	log := s.logger

	loc, err := s.cfg.Location()
	if err != nil {
		return err
	}
	s.loc = loc

	s.classifier, err = newClassifier(s.cfg.Classifier)
	if err != nil {
		return fmt.Errorf("build classifier: %w", err)
	}

	if s.store == nil {
		s.store, err = OpenStore(ctx, s.cfg.Database, log)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
	}

	s.ingestor = ingest.New(s.store, s.classifier, ingest.WithLogger(log.Named("ingest")))
	s.aggregator = scoring.NewAggregator(s.store,
		scoring.WithLogger(log.Named("scoring")),
		scoring.WithLocation(loc),
		scoring.WithClock(s.now),
	)
	s.ledger = feedback.NewLedger(s.store,
		feedback.WithLogger(log.Named("feedback")),
		feedback.WithNoteMaxLen(s.cfg.Feedback.NoteMaxLen),
		feedback.WithLimits(s.cfg.Feedback.DefaultLimit, s.cfg.Feedback.MaxLimit),
		feedback.WithClock(s.now),
	)
	client := s.httpClient
	if client == nil {
		client = &http.Client{}
	}
	s.checker = linkcheck.New(s.store, s.ledger,
		linkcheck.WithLogger(log.Named("linkcheck")),
		linkcheck.WithHTTPClient(client),
		linkcheck.WithTimeout(s.cfg.LinkCheck.Timeout),
		linkcheck.WithWindow(s.cfg.LinkCheck.LookbackDays, s.cfg.LinkCheck.Limit),
		linkcheck.WithConcurrency(s.cfg.LinkCheck.Concurrency),
		linkcheck.WithUserAgent(s.cfg.LinkCheck.UserAgent),
		linkcheck.WithLocation(loc),
		linkcheck.WithClock(s.now),
	)
	s.collector = bodacc.New(
		bodacc.WithLogger(log),
		bodacc.WithLocation(loc),
		bodacc.WithClock(s.now),
	)

	s.scheduler = scheduler.New(scheduler.WithLocation(loc), scheduler.WithLogger(log))
	if err := s.registerJobs(); err != nil {
		_ = s.store.Close()
		s.store = nil
		return err
	}
	if s.cfg.Scheduler.Enabled {
		s.scheduler.Start(ctx)
	}

	s.started = true
	s.startedAt = s.now()
	log.Info(ctx, "radar service started",
		logger.String("driver", s.cfg.Database.Driver),
		logger.String("tz", loc.String()),
		logger.Bool("scheduler", s.cfg.Scheduler.Enabled),
	)
	return nil
}

func (s *Service) registerJobs() error {
	jobs := []scheduler.Job{
		{
			Name: JobRecompute,
			Spec: s.cfg.Scheduler.RecomputeSpec,
			Run: func(ctx context.Context) error {
				_, err := s.aggregator.Recompute(ctx, nil)
				return err
			},
		},
		{
			Name: JobCheckLinks,
			Spec: s.cfg.Scheduler.CheckLinksSpec,
			Run: func(ctx context.Context) error {
				_, err := s.checker.Sweep(ctx)
				return err
			},
		},
	}
	for _, j := range jobs {
		if j.Spec == "" {
			continue
		}
		if err := s.scheduler.Add(j); err != nil {
			return fmt.Errorf("register job: %w", err)
		}
	}
	return nil
}

// Stop halts the scheduler and closes the store.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.logger.Info(ctx, "stopping radar service...")

	if s.scheduler != nil {
		if err := s.scheduler.Stop(ctx); err != nil {
			s.logger.Warn(ctx, "scheduler did not stop in time", logger.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(ctx, "close store", logger.Error(err))
		}
		s.store = nil
	}

	s.started = false
	s.logger.Info(ctx, "radar service stopped")
}

// ready returns ErrNotStarted until Start succeeded.
func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// Today returns the current calendar date in the configured zone.
func (s *Service) Today() time.Time {
	loc := s.loc
	if loc == nil {
		loc = time.UTC
	}
	return model.Today(s.now(), loc)
}

// Recompute rebuilds the daily scores of date (today when nil).
func (s *Service) Recompute(ctx context.Context, date *time.Time) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return s.aggregator.Recompute(ctx, date)
}

// Ingest writes a batch of raw notices.
func (s *Service) Ingest(ctx context.Context, source string, items []model.RawItem) (model.IngestReport, error) {
	if err := s.ready(); err != nil {
		return model.IngestReport{}, err
	}
	return s.ingestor.Ingest(ctx, source, items), nil
}

// CollectAndIngest pulls up to limit sample notices and ingests them. A
// non-positive limit uses the configured default.
func (s *Service) CollectAndIngest(ctx context.Context, limit int) (model.IngestReport, error) {
	if err := s.ready(); err != nil {
		return model.IngestReport{}, err
	}
	if limit <= 0 {
		limit = s.cfg.Collector.DefaultLimit
	}
	items := s.collector.Collect(ctx, limit)
	return s.ingestor.Ingest(ctx, bodacc.Source, items), nil
}

// QueryScores ranks the scores of date (today when nil). A zero limit uses
// the configured default; other values must be in 1..max.
func (s *Service) QueryScores(ctx context.Context, date *time.Time, limit int) ([]types.ScoreEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	limit, err := checkLimit(limit, s.cfg.Scores.DefaultLimit, s.cfg.Scores.MaxLimit)
	if err != nil {
		return nil, err
	}
	day := s.Today()
	if date != nil {
		day = model.DateOf(*date)
	}
	return s.store.QueryScores(ctx, day, limit)
}

// ListSignals returns one page of signals matching f.
func (s *Service) ListSignals(ctx context.Context, f model.SignalFilter) (types.SignalPage, error) {
	if err := s.ready(); err != nil {
		return types.SignalPage{}, err
	}
	limit, err := checkLimit(f.Limit, s.cfg.Signals.DefaultLimit, s.cfg.Signals.MaxLimit)
	if err != nil {
		return types.SignalPage{}, err
	}
	if f.Offset < 0 {
		return types.SignalPage{}, fmt.Errorf("%w: offset must be >= 0", model.ErrValidation)
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		return types.SignalPage{}, fmt.Errorf("%w: date_to before date_from", model.ErrValidation)
	}
	f.Limit = limit
	items, total, err := s.store.ListSignals(ctx, f)
	if err != nil {
		return types.SignalPage{}, err
	}
	return types.NewSignalPage(items, total, limit, f.Offset), nil
}

// Company returns a company and its most recent daily scores.
func (s *Service) Company(ctx context.Context, id int64) (types.CompanyDetail, error) {
	if err := s.ready(); err != nil {
		return types.CompanyDetail{}, err
	}
	c, err := s.store.Company(ctx, id)
	if err != nil {
		return types.CompanyDetail{}, err
	}
	scores, err := s.store.CompanyScores(ctx, id, s.cfg.Scores.DefaultLimit)
	if err != nil {
		return types.CompanyDetail{}, err
	}
	return types.CompanyDetail{Company: c, RecentScores: scores}, nil
}

// SubmitFeedback records a user's label on a signal.
func (s *Service) SubmitFeedback(ctx context.Context, signalID, userID int64, label, note string) (model.Feedback, error) {
	if err := s.ready(); err != nil {
		return model.Feedback{}, err
	}
	return s.ledger.Upsert(ctx, signalID, userID, label, note)
}

// GetFeedback summarizes the feedback of a signal. Zero selects the default
// number of rows.
func (s *Service) GetFeedback(ctx context.Context, signalID int64, limit int) (types.FeedbackSummary, error) {
	if err := s.ready(); err != nil {
		return types.FeedbackSummary{}, err
	}
	limit, err := checkLimit(limit, s.cfg.Feedback.DefaultLimit, s.cfg.Feedback.MaxLimit)
	if err != nil {
		return types.FeedbackSummary{}, err
	}
	return s.ledger.Get(ctx, signalID, limit)
}

// CheckLinks sweeps recent signal URLs. Zero params use the configured window.
func (s *Service) CheckLinks(ctx context.Context, p linkcheck.Params) (linkcheck.Report, error) {
	if err := s.ready(); err != nil {
		return linkcheck.Report{}, err
	}
	if p.LookbackDays < 0 || p.LookbackDays > MaxLookbackDays {
		return linkcheck.Report{}, fmt.Errorf("%w: lookback_days must be in 1..%d", model.ErrValidation, MaxLookbackDays)
	}
	if p.Limit < 0 || p.Limit > MaxSweepLimit {
		return linkcheck.Report{}, fmt.Errorf("%w: limit must be in 1..%d", model.ErrValidation, MaxSweepLimit)
	}
	return s.checker.SweepWith(ctx, p)
}

// Health reports the state of the store.
func (s *Service) Health(ctx context.Context) repository.Health {
	if err := s.ready(); err != nil {
		return repository.Health{Status: repository.StatusUnhealthy, Error: err.Error()}
	}
	return s.store.Health(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	goroutines := runtime.NumGoroutine()
	metrics.UpdateSystemMemoryUsage(mem.Alloc)
	metrics.UpdateSystemGoroutineCount(goroutines)

	stats := map[string]any{
		"started":    s.started,
		"driver":     s.cfg.Database.Driver,
		"timezone":   s.cfg.Timezone,
		"goroutines": goroutines,
	}
	if !s.started {
		return stats
	}

	stats["uptime"] = s.now().Sub(s.startedAt).Round(time.Second).String()
	stats["today"] = model.FormatDate(model.Today(s.now(), s.loc))
	stats["scheduler_enabled"] = s.cfg.Scheduler.Enabled
	stats["jobs"] = s.scheduler.Jobs()
	stats["rules"] = len(s.classifier.Rules())
	if counts, err := s.store.Counts(ctx); err == nil {
		stats["companies"] = counts.Companies
		stats["signals"] = counts.Signals
		stats["scores"] = counts.Scores
		stats["feedback"] = counts.Feedback
	} else {
		s.logger.Warn(ctx, "stats counts failed", logger.Error(err))
	}
	return stats
}

// RunJob runs a scheduled job immediately.
func (s *Service) RunJob(ctx context.Context, name string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.scheduler.RunNow(ctx, name)
}

func checkLimit(limit, def, maxLimit int) (int, error) {
	if limit == 0 {
		return def, nil
	}
	if limit < 1 || limit > maxLimit {
		return 0, fmt.Errorf("%w: limit must be in 1..%d", model.ErrValidation, maxLimit)
	}
	return limit, nil
}

// newClassifier builds the classifier from configured rules, or the
// built-in table when none are configured.
func newClassifier(cfg config.ClassifierConfig) (*classify.Classifier, error) {
	var opts []classify.Option
	if len(cfg.Rules) > 0 {
		rules := make([]classify.Rule, 0, len(cfg.Rules))
		for _, r := range cfg.Rules {
			kind := classify.MatchAny
			if r.Match != "" {
				kind = classify.MatchKind(r.Match)
			}
			rules = append(rules, classify.Rule{
				Name:       r.Name,
				Kind:       kind,
				Terms:      r.Terms,
				Type:       model.SignalType(r.Type),
				Weight:     r.Weight,
				Confidence: r.Confidence,
			})
		}
		opts = append(opts, classify.WithRules(rules))
	}
	if fb := cfg.Fallback; fb != nil {
		name := fb.Name
		if name == "" {
			name = "fallback"
		}
		opts = append(opts, classify.WithFallback(model.Classification{
			Type:       model.SignalType(fb.Type),
			Weight:     fb.Weight,
			Confidence: fb.Confidence,
			Rule:       name,
		}))
	}
	return classify.New(opts...)
}
