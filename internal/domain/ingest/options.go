package ingest

import (
	"github.com/agiraud1/radar-fr/pkg/logger"
)

// Option applies a configuration option to the Ingestor.
type Option func(*Ingestor)

// WithLogger sets a custom logger for the ingestor.
func WithLogger(l logger.Logger) Option {
	return func(in *Ingestor) {
		if l != nil {
			in.logger = l
		}
	}
}

// WithNameResolution toggles company name resolution from notice text.
func WithNameResolution(enabled bool) Option {
	return func(in *Ingestor) {
		in.resolveNames = enabled
	}
}
