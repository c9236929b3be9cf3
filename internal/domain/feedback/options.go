package feedback

import (
	"time"

	"github.com/agiraud1/radar-fr/pkg/logger"
)

// Option applies a configuration option to the Ledger.
type Option func(*Ledger)

// WithLogger sets a custom logger for the ledger.
func WithLogger(l logger.Logger) Option {
	return func(led *Ledger) {
		if l != nil {
			led.logger = l
		}
	}
}

// WithNoteMaxLen sets the note truncation length in characters.
func WithNoteMaxLen(n int) Option {
	return func(led *Ledger) {
		if n > 0 {
			led.noteMaxLen = n
		}
	}
}

// WithLimits sets the default and maximum size of the latest list.
func WithLimits(defaultLimit, maxLimit int) Option {
	return func(led *Ledger) {
		if defaultLimit > 0 && maxLimit >= defaultLimit {
			led.defaultLimit = defaultLimit
			led.maxLimit = maxLimit
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(led *Ledger) {
		if now != nil {
			led.now = now
		}
	}
}
