// Package smoke drives a running radar server end to end: it ingests
// generated notices through the internal API, recomputes the day and checks
// the published ranking against totals computed locally.
package smoke

import (
	"errors"
	"fmt"
	"time"
)

// Source tags the signals written by a smoke run.
const Source = "SMOKE"

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid smoke config")

// ErrMismatch is returned when the published ranking disagrees with the
// expected one.
var ErrMismatch = errors.New("ranking mismatch")

// Config holds the parameters of one run.
type Config struct {
	BaseURL string
	Token   string

	// Date is the event date of every generated notice.
	Date time.Time

	Companies            int
	MaxNoticesPerCompany int
	Workers              int
	BatchSize            int
	Timeout              time.Duration
	Seed                 int64

	// RankLimit is the limit passed to /api/scores/daily.
	RankLimit int
}

// DefaultConfig returns a small run against a local server.
func DefaultConfig() Config {
	return Config{
		BaseURL:              "http://localhost:8080",
		Companies:            20,
		MaxNoticesPerCompany: 4,
		Workers:              4,
		BatchSize:            25,
		Timeout:              10 * time.Second,
		Seed:                 time.Now().UnixNano(),
		RankLimit:            200,
	}
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: base url is empty", ErrInvalidConfig)
	case c.Token == "":
		return fmt.Errorf("%w: internal token is required", ErrInvalidConfig)
	case c.Date.IsZero():
		return fmt.Errorf("%w: date is required", ErrInvalidConfig)
	case c.Companies < 1 || c.Companies > c.RankLimit:
		return fmt.Errorf("%w: companies must be in 1..%d", ErrInvalidConfig, c.RankLimit)
	case c.MaxNoticesPerCompany < 1:
		return fmt.Errorf("%w: max notices per company must be positive", ErrInvalidConfig)
	case c.Workers < 1 || c.BatchSize < 1:
		return fmt.Errorf("%w: workers and batch size must be positive", ErrInvalidConfig)
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// Notice is one item of a /collector/ingest batch.
type Notice struct {
	Date string `json:"date"`
	Text string `json:"text"`
	URL  string `json:"url"`
}

// Stats summarizes a run.
type Stats struct {
	RunID      string        `json:"run_id"`
	Notices    int           `json:"notices"`
	Companies  int           `json:"companies"`
	Written    int           `json:"written"`
	Duplicates int           `json:"duplicates"`
	Failed     int           `json:"failed"`
	Replayed   int           `json:"replayed"`
	Recomputed int           `json:"recomputed"`
	Ranked     int           `json:"ranked"`
	Verified   int           `json:"verified"`
	Duration   time.Duration `json:"duration"`
}
