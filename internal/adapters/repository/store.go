// Package repository defines the signal store contract shared by the SQL
// backends, plus the query helpers they have in common.
package repository

import (
	"context"
	"time"

	"github.com/agiraud1/radar-fr/internal/domain/feedback"
	"github.com/agiraud1/radar-fr/internal/domain/ingest"
	"github.com/agiraud1/radar-fr/internal/domain/linkcheck"
	"github.com/agiraud1/radar-fr/internal/domain/model"
	"github.com/agiraud1/radar-fr/internal/domain/scoring"
	"github.com/agiraud1/radar-fr/internal/domain/types"
	"github.com/agiraud1/radar-fr/pkg/metrics"
)

// Store is the persistent state of the service: companies, signals, daily
// scores and feedback. The four uniqueness constraints (registration number,
// signal URL, (company, date), (signal, user)) are enforced by the backend
// and every write is a single-row upsert.
type Store interface {
	ingest.Store
	scoring.Store
	feedback.Store
	linkcheck.Store

	// QueryScores ranks the scores of date by total desc, then company id.
	QueryScores(ctx context.Context, date time.Time, limit int) ([]types.ScoreEntry, error)
	// CompanyScores lists a company's most recent daily scores.
	CompanyScores(ctx context.Context, companyID int64, limit int) ([]types.ScoreEntry, error)
	// Company returns ErrNotFound for an unknown id.
	Company(ctx context.Context, id int64) (model.Company, error)
	// ListSignals returns one page of filtered signals and the total match count.
	ListSignals(ctx context.Context, f model.SignalFilter) ([]types.SignalView, int, error)
	Counts(ctx context.Context) (types.StoreCounts, error)

	// Migrate creates the schema idempotently.
	Migrate(ctx context.Context) error
	Health(ctx context.Context) Health
	Close() error
}

// Health describes the state of the backing database.
type Health struct {
	Status       string `json:"status"` // "healthy", "degraded", "unhealthy"
	Driver       string `json:"driver"`
	ResponseTime string `json:"response_time"`
	OpenConns    int    `json:"open_conns"`
	InUse        int    `json:"in_use"`
	Idle         int    `json:"idle"`
	MaxConns     int    `json:"max_conns"`
	Error        string `json:"error,omitempty"`
}

// Healthy reports whether the store answered its ping.
func (h Health) Healthy() bool {
	return h.Status != StatusUnhealthy
}

// Health statuses.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Observe records the latency of a store operation started at start.
// Use as: defer repository.Observe("upsert_signal", time.Now()).
func Observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}
