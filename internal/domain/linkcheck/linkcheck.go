// Package linkcheck flags recent signals whose source URL no longer resolves.
package linkcheck

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/agiraud1/radar-fr/internal/domain/model"
	"github.com/agiraud1/radar-fr/pkg/logger"
	"github.com/agiraud1/radar-fr/pkg/metrics"
)

// Store lists the signals to sweep.
type Store interface {
	// RecentSignals returns signals dated on or after since, newest first.
	RecentSignals(ctx context.Context, since time.Time, limit int) ([]model.Signal, error)
}

// Marker records a system broken_link verdict.
type Marker interface {
	MarkBroken(ctx context.Context, signalID int64, note string) (bool, error)
}

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Params bounds one sweep. Zero fields fall back to the checker defaults.
type Params struct {
	LookbackDays int
	Limit        int
}

// Report summarizes one sweep.
type Report struct {
	RunID   string `json:"run_id"`
	Scanned int    `json:"scanned"`
	OK      int    `json:"ok_links"`
	Broken  int    `json:"broken"`
	Tagged  int    `json:"broken_tagged"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
}

// Checker checks signal URLs with bounded concurrency.
type Checker struct {
	store        Store
	marker       Marker
	client       Doer
	logger       logger.Logger
	timeout      time.Duration
	lookbackDays int
	limit        int
	concurrency  int
	userAgent    string
	loc          *time.Location
	now          func() time.Time
}

// New creates a Checker.
func New(store Store, marker Marker, opts ...Option) *Checker {
	c := &Checker{
		store:        store,
		marker:       marker,
		client:       &http.Client{},
		logger:       logger.Nop(),
		timeout:      5 * time.Second,
		lookbackDays: 14,
		limit:        200,
		concurrency:  8,
		userAgent:    "radar-fr-linkcheck/1.0",
		loc:          time.UTC,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sweep checks the signals of the default lookback window.
func (c *Checker) Sweep(ctx context.Context) (Report, error) {
	return c.SweepWith(ctx, Params{})
}

// SweepWith checks recent signals and tags broken ones. Network failures
// count as broken and are never retried within a sweep. Only a failure to
// list signals or cancellation fails the sweep.
func (c *Checker) SweepWith(ctx context.Context, p Params) (Report, error) {
	if p.LookbackDays <= 0 {
		p.LookbackDays = c.lookbackDays
	}
	if p.Limit <= 0 {
		p.Limit = c.limit
	}
	rep := Report{RunID: uuid.NewString()}
	log := c.logger.With(logger.String("run_id", rep.RunID))

	since := model.Today(c.now(), c.loc).AddDate(0, 0, -p.LookbackDays)
	signals, err := c.store.RecentSignals(ctx, since, p.Limit)
	if err != nil {
		return rep, fmt.Errorf("list recent signals: %w", err)
	}
	rep.Scanned = len(signals)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, s := range signals {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			start := time.Now()
			status := c.fetchStatus(gctx, s.URL)
			broken := status == 0 || status >= http.StatusBadRequest

			outcome := metrics.OutcomeOK
			var tagged bool
			var markErr error
			if broken {
				outcome = metrics.OutcomeBroken
				tagged, markErr = c.marker.MarkBroken(gctx, s.ID, Note(status))
			}
			metrics.RecordLinkCheck(outcome, float64(time.Since(start).Milliseconds()))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case !broken:
				rep.OK++
			case markErr != nil:
				rep.Broken++
				rep.Failed++
				log.Warn(gctx, "tag broken link failed", logger.Int64("signal_id", s.ID), logger.Error(markErr))
			case tagged:
				rep.Broken++
				rep.Tagged++
			default:
				rep.Broken++
				rep.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return rep, fmt.Errorf("link sweep interrupted: %w", err)
	}

	log.Info(ctx, "link sweep done",
		logger.Int("scanned", rep.Scanned),
		logger.Int("ok", rep.OK),
		logger.Int("broken", rep.Broken),
		logger.Int("tagged", rep.Tagged),
		logger.Int("skipped", rep.Skipped),
		logger.Int("failed", rep.Failed))
	return rep, nil
}

// Note renders the feedback note attached to a broken link.
func Note(status int) string {
	st := "none"
	if status > 0 {
		st = strconv.Itoa(status)
	}
	return "auto(check-links): status=" + st
}

// fetchStatus returns the HTTP status of url, or 0 when no response was received.
// HEAD is tried first; 403 and 405 fall back to GET.
func (c *Checker) fetchStatus(ctx context.Context, url string) int {
	status := c.request(ctx, http.MethodHead, url)
	if status == http.StatusForbidden || status == http.StatusMethodNotAllowed {
		if st := c.request(ctx, http.MethodGet, url); st != 0 {
			return st
		}
	}
	return status
}

func (c *Checker) request(ctx context.Context, method, url string) int {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	return resp.StatusCode
}
