// Package scheduler runs the periodic background jobs of the service.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/agiraud1/radar-fr/pkg/logger"
	"github.com/agiraud1/radar-fr/pkg/metrics"
)

// Sentinel errors.
var (
	ErrInvalidJob = errors.New("invalid job")
	ErrUnknownJob = errors.New("unknown job")
)

// Job is a named unit of periodic work. Spec is a five-field cron expression.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler fires registered jobs on their cron specs. A job never overlaps
// with itself: a trigger that fires while the previous run is active is skipped.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	jobs    map[string]Job
	ctx     context.Context
	cancel  context.CancelFunc
	loc     *time.Location
	logger  logger.Logger
	started bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLocation sets the zone cron specs are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a stopped Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		jobs:   make(map[string]Job),
		loc:    time.UTC,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("scheduler")
	cl := cronLogger{l: s.logger}
	s.cron = cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Add registers a job. Names must be unique.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("%w: name and run are required", ErrInvalidJob)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[job.Name]; dup {
		return fmt.Errorf("%w: duplicate name %q", ErrInvalidJob, job.Name)
	}
	if _, err := s.cron.AddFunc(job.Spec, func() { s.run(s.ctx, job) }); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidJob, job.Name, err)
	}
	s.jobs[job.Name] = job
	return nil
}

// Start begins firing jobs. Jobs receive a context that is cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.logger.Debug(ctx, "job scheduled", logger.String("next", e.Next.Format(time.RFC3339)))
	}
	s.logger.Info(ctx, "scheduler started", logger.Int("jobs", len(s.jobs)), logger.String("tz", s.loc.String()))
}

// Stop cancels running jobs and waits for them to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		s.cancel()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info(ctx, "scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow runs a registered job synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, job)
}

// Jobs lists registered job names with their specs.
func (s *Scheduler) Jobs() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.jobs))
	for name, j := range s.jobs {
		out[name] = j.Spec
	}
	return out
}

func (s *Scheduler) run(ctx context.Context, job Job) error {
	start := time.Now()
	err := job.Run(ctx)
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeError
		s.logger.Error(ctx, "job failed", logger.String("job", job.Name), logger.Error(err),
			logger.Duration("took", time.Since(start)))
	} else {
		s.logger.Info(ctx, "job finished", logger.String("job", job.Name),
			logger.Duration("took", time.Since(start)))
	}
	metrics.RecordJobRun(job.Name, outcome)
	return err
}

// cronLogger adapts the service logger to cron.Logger.
type cronLogger struct {
	l logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(context.Background(), msg, fields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(context.Background(), msg, append(fields(keysAndValues), logger.Error(err))...)
}

func fields(kv []any) []logger.Field {
	out := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
