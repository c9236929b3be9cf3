package service

import (
	"time"

	"github.com/agiraud1/radar-fr/internal/adapters/repository"
	"github.com/agiraud1/radar-fr/internal/domain/linkcheck"
	"github.com/agiraud1/radar-fr/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service and its components.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore injects an already opened store. The service takes ownership
// and closes it on Stop.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithHTTPClient overrides the client used by the link checker.
func WithHTTPClient(d linkcheck.Doer) Option {
	return func(s *Service) {
		if d != nil {
			s.httpClient = d
		}
	}
}

// WithClock overrides the time source of every date-aware component.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
