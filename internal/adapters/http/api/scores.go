package api

import (
	"context"
	"net/http"
	"time"

	"github.com/agiraud1/radar-fr/internal/domain/model"
	"github.com/agiraud1/radar-fr/internal/domain/types"
)

// ScoresDependencies defines the interface for score listings.
type ScoresDependencies interface {
	QueryScores(ctx context.Context, date *time.Time, limit int) ([]types.ScoreEntry, error)
	Today() time.Time
}

// ScoresHandler handles daily score rankings.
type ScoresHandler struct {
	deps ScoresDependencies
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps ScoresDependencies) *ScoresHandler {
	return &ScoresHandler{deps: deps}
}

type scoresResponse struct {
	Date  string             `json:"date"`
	Count int                `json:"count"`
	Items []types.ScoreEntry `json:"items"`
}

// HandleDaily handles GET /api/scores/daily?date=YYYY-MM-DD&limit=N.
func (h *ScoresHandler) HandleDaily(w http.ResponseWriter, r *http.Request) {
	const op = "api.scores_daily"
	date, err := queryDate(r, "date")
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	h.serve(w, r, op, date)
}

// HandleLatest handles GET /api/scores/latest?limit=N.
func (h *ScoresHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "api.scores_latest", nil)
}

func (h *ScoresHandler) serve(w http.ResponseWriter, r *http.Request, op string, date *time.Time) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	if r.URL.Query().Has("limit") && limit == 0 {
		writeError(w, NewKind(op, ErrBadRequest))
		return
	}
	day := h.deps.Today()
	if date != nil {
		day = *date
	}
	items, err := h.deps.QueryScores(r.Context(), &day, limit)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSONWithETag(w, r, scoresResponse{
		Date:  model.FormatDate(day),
		Count: len(items),
		Items: items,
	}, scoresMaxAge)
}
