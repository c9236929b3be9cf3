// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers a YAML file and RADAR_ environment variables on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // embedded zone database for Europe/Paris
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Timezone names the IANA zone used to resolve "today".
	Timezone string `koanf:"timezone"`

	// InternalToken guards the admin and collector routes. Empty disables them.
	InternalToken string `koanf:"internal_token"`

	Database   DatabaseConfig   `koanf:"database"`
	Scores     ScoresConfig     `koanf:"scores"`
	Signals    SignalsConfig    `koanf:"signals"`
	Feedback   FeedbackConfig   `koanf:"feedback"`
	LinkCheck  LinkCheckConfig  `koanf:"linkcheck"`
	Scheduler  SchedulerConfig  `koanf:"scheduler"`
	Collector  CollectorConfig  `koanf:"collector"`
	Classifier ClassifierConfig `koanf:"classifier"`
}

// DatabaseConfig selects and tunes the signal store.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`

	// MaxOpenConns bounds the SQLite connection pool.
	MaxOpenConns int `koanf:"max_open_conns"`

	// MaxConns bounds the PostgreSQL pool.
	MaxConns int32 `koanf:"max_conns"`

	BusyTimeoutMS int `koanf:"busy_timeout_ms"`
}

// ScoresConfig bounds score listings.
type ScoresConfig struct {
	DefaultLimit int `koanf:"default_limit"`
	MaxLimit     int `koanf:"max_limit"`
}

// SignalsConfig bounds signal listing pages.
type SignalsConfig struct {
	DefaultLimit int `koanf:"default_limit"`
	MaxLimit     int `koanf:"max_limit"`
}

// FeedbackConfig bounds feedback notes and listings.
type FeedbackConfig struct {
	NoteMaxLen   int `koanf:"note_max_len"`
	DefaultLimit int `koanf:"default_limit"`
	MaxLimit     int `koanf:"max_limit"`
}

// LinkCheckConfig tunes the link-health sweep.
type LinkCheckConfig struct {
	Timeout      time.Duration `koanf:"timeout"`
	LookbackDays int           `koanf:"lookback_days"`
	Limit        int           `koanf:"limit"`
	Concurrency  int           `koanf:"concurrency"`
	UserAgent    string        `koanf:"user_agent"`
}

// SchedulerConfig holds the cron specs of the background jobs.
type SchedulerConfig struct {
	Enabled        bool   `koanf:"enabled"`
	RecomputeSpec  string `koanf:"recompute_spec"`
	CheckLinksSpec string `koanf:"check_links_spec"`
}

// CollectorConfig tunes the sample collector.
type CollectorConfig struct {
	DefaultLimit int `koanf:"default_limit"`
}

// ClassifierConfig optionally replaces the built-in rule table.
type ClassifierConfig struct {
	Rules    []RuleConfig `koanf:"rules"`
	Fallback *RuleConfig  `koanf:"fallback"`
}

// RuleConfig is one classification rule as written in YAML.
type RuleConfig struct {
	Name       string   `koanf:"name"`
	Match      string   `koanf:"match"` // "any" or "all"
	Terms      []string `koanf:"terms"`
	Type       string   `koanf:"type"`
	Weight     int      `koanf:"weight"`
	Confidence float64  `koanf:"confidence"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Addr:      ":8080",
		Timezone:  "Europe/Paris",
		Database: DatabaseConfig{
			Driver:        DriverSQLite,
			DSN:           "radar.db",
			MaxOpenConns:  4,
			MaxConns:      10,
			BusyTimeoutMS: 5000,
		},
		Scores: ScoresConfig{
			DefaultLimit: 50,
			MaxLimit:     200,
		},
		Signals: SignalsConfig{
			DefaultLimit: 50,
			MaxLimit:     200,
		},
		Feedback: FeedbackConfig{
			NoteMaxLen:   2000,
			DefaultLimit: 10,
			MaxLimit:     50,
		},
		LinkCheck: LinkCheckConfig{
			Timeout:      5 * time.Second,
			LookbackDays: 14,
			Limit:        200,
			Concurrency:  8,
			UserAgent:    "radar-fr-linkcheck/1.0",
		},
		Scheduler: SchedulerConfig{
			Enabled:        true,
			RecomputeSpec:  "0 6 * * *",
			CheckLinksSpec: "0 */3 * * *",
		},
		Collector: CollectorConfig{
			DefaultLimit: 50,
		},
	}
}

// Location resolves the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	return loc, nil
}

// Validate checks value ranges and cross-field constraints.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("%w: database.driver %q", ErrInvalidConfig, c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("%w: database.dsn must not be empty", ErrInvalidConfig)
	}
	if c.Scores.DefaultLimit < 1 || c.Scores.DefaultLimit > c.Scores.MaxLimit {
		return fmt.Errorf("%w: scores.default_limit must be in 1..max_limit", ErrInvalidConfig)
	}
	if c.Signals.DefaultLimit < 1 || c.Signals.DefaultLimit > c.Signals.MaxLimit {
		return fmt.Errorf("%w: signals.default_limit must be in 1..max_limit", ErrInvalidConfig)
	}
	if c.Feedback.NoteMaxLen < 1 {
		return fmt.Errorf("%w: feedback.note_max_len must be positive", ErrInvalidConfig)
	}
	if c.Feedback.DefaultLimit < 1 || c.Feedback.DefaultLimit > c.Feedback.MaxLimit {
		return fmt.Errorf("%w: feedback.default_limit must be in 1..max_limit", ErrInvalidConfig)
	}
	if c.LinkCheck.Timeout <= 0 || c.LinkCheck.Concurrency < 1 || c.LinkCheck.Limit < 1 || c.LinkCheck.LookbackDays < 0 {
		return fmt.Errorf("%w: linkcheck settings out of range", ErrInvalidConfig)
	}
	if c.Scheduler.Enabled && (c.Scheduler.RecomputeSpec == "" || c.Scheduler.CheckLinksSpec == "") {
		return fmt.Errorf("%w: scheduler specs must be set when enabled", ErrInvalidConfig)
	}
	if c.Collector.DefaultLimit < 1 {
		return fmt.Errorf("%w: collector.default_limit must be positive", ErrInvalidConfig)
	}
	return nil
}
