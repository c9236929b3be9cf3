package linkcheck

import (
	"time"

	"github.com/agiraud1/radar-fr/pkg/logger"
)

// Option applies a configuration option to the Checker.
type Option func(*Checker)

// WithLogger sets a custom logger for the checker.
func WithLogger(l logger.Logger) Option {
	return func(c *Checker) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(d Doer) Option {
	return func(c *Checker) {
		if d != nil {
			c.client = d
		}
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithWindow sets the default lookback in days and the maximum signals per sweep.
func WithWindow(lookbackDays, limit int) Option {
	return func(c *Checker) {
		if lookbackDays > 0 {
			c.lookbackDays = lookbackDays
		}
		if limit > 0 {
			c.limit = limit
		}
	}
}

// WithConcurrency bounds parallel link checks.
func WithConcurrency(n int) Option {
	return func(c *Checker) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithUserAgent sets the User-Agent header of link checks.
func WithUserAgent(ua string) Option {
	return func(c *Checker) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithLocation sets the zone used to resolve "today".
func WithLocation(loc *time.Location) Option {
	return func(c *Checker) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) {
		if now != nil {
			c.now = now
		}
	}
}
