// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"crypto/sha1" //nolint:gosec // ETag fingerprint only
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/agiraud1/radar-fr/internal/adapters/repository"
	"github.com/agiraud1/radar-fr/internal/domain/linkcheck"
	"github.com/agiraud1/radar-fr/internal/domain/model"
	"github.com/agiraud1/radar-fr/internal/domain/types"
	"github.com/agiraud1/radar-fr/pkg/logger"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	QueryScores(ctx context.Context, date *time.Time, limit int) ([]types.ScoreEntry, error)
	ListSignals(ctx context.Context, f model.SignalFilter) (types.SignalPage, error)
	Company(ctx context.Context, id int64) (types.CompanyDetail, error)
	SubmitFeedback(ctx context.Context, signalID, userID int64, label, note string) (model.Feedback, error)
	GetFeedback(ctx context.Context, signalID int64, limit int) (types.FeedbackSummary, error)

	Recompute(ctx context.Context, date *time.Time) (int, error)
	CheckLinks(ctx context.Context, p linkcheck.Params) (linkcheck.Report, error)
	CollectAndIngest(ctx context.Context, limit int) (model.IngestReport, error)
	Ingest(ctx context.Context, source string, items []model.RawItem) (model.IngestReport, error)

	Health(ctx context.Context) repository.Health
	Today() time.Time
}

// Response cache lifetimes.
const (
	scoresMaxAge  = 15 * time.Second
	signalsMaxAge = 10 * time.Second
)

// Server wires HTTP routes for the business API.
type Server struct {
	deps          Dependencies
	stats         StatsProvider
	internalToken string
	logger        logger.Logger

	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	scoresHandler   *ScoresHandler
	signalsHandler  *SignalsHandler
	feedbackHandler *FeedbackHandler
	adminHandler    *AdminHandler
}

// Option configures a Server.
type Option func(*Server)

// WithInternalToken enables the admin and collector routes behind token.
func WithInternalToken(token string) Option {
	return func(s *Server) { s.internalToken = token }
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{deps: deps, stats: statsProvider, logger: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler(deps)
	s.statsHandler = NewStatsHandler(statsProvider)
	s.scoresHandler = NewScoresHandler(deps)
	s.signalsHandler = NewSignalsHandler(deps)
	s.feedbackHandler = NewFeedbackHandler(deps)
	s.adminHandler = NewAdminHandler(deps)
	return s
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(Recoverer(s.logger))
	r.Use(MetricsMiddleware)

	r.Get("/healthz", s.healthHandler.HandleMetrics)
	r.Get("/readyz", s.healthHandler.HandleReady)
	r.Get("/stats", s.statsHandler.HandleStats)

	r.Route("/api", func(r chi.Router) {
		r.Get("/scores/daily", s.scoresHandler.HandleDaily)
		r.Get("/scores/latest", s.scoresHandler.HandleLatest)
		r.Get("/companies/{id}", s.signalsHandler.HandleCompany)

		r.Route("/signals", func(r chi.Router) {
			r.Use(CacheControl(signalsMaxAge))
			r.Get("/", s.signalsHandler.HandleList)
			r.Get("/{id}/feedback", s.feedbackHandler.HandleGet)
			r.Post("/{id}/feedback", s.feedbackHandler.HandleSubmit)
		})
	})

	if s.internalToken == "" {
		s.logger.Warn(context.Background(), "internal token not set; admin routes disabled")
		return
	}
	r.Group(func(r chi.Router) {
		r.Use(RequireInternalToken(s.internalToken))
		r.Post("/admin/score-daily", s.adminHandler.HandleScoreDaily)
		r.Post("/admin/check-links", s.adminHandler.HandleCheckLinks)
		r.Post("/collector/bodacc/ingest", s.adminHandler.HandleCollectBodacc)
		r.Post("/collector/ingest", s.adminHandler.HandleIngest)
	})
}

// Handler returns a router with every route registered.
func (s *Server) Handler(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	s.Register(ctx, r)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code and writes the JSON error body.
func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	msg := http.StatusText(status)
	if status < http.StatusInternalServerError {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeJSONWithETag answers 304 when the client already holds the same body.
func writeJSONWithETag(w http.ResponseWriter, r *http.Request, v any, maxAge time.Duration) {
	body, err := json.Marshal(v)
	if err != nil {
		writeError(w, Wrap("api.etag", err))
		return
	}
	sum := sha1.Sum(body) //nolint:gosec // ETag fingerprint only
	etag := `"` + hex.EncodeToString(sum[:]) + `"`

	h := w.Header()
	h.Set("ETag", etag)
	h.Set("Cache-Control", cacheControl(maxAge))
	if match := r.Header.Get("If-None-Match"); match == etag || match == "*" {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	h.Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(body, '\n'))
}
