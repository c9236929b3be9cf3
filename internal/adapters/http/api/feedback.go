package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/agiraud1/radar-fr/internal/domain/model"
	"github.com/agiraud1/radar-fr/internal/domain/types"
)

// maxFeedbackBody bounds the request body of a feedback submission.
const maxFeedbackBody = 64 << 10

// FeedbackDependencies defines the interface for the feedback ledger.
type FeedbackDependencies interface {
	SubmitFeedback(ctx context.Context, signalID, userID int64, label, note string) (model.Feedback, error)
	GetFeedback(ctx context.Context, signalID int64, limit int) (types.FeedbackSummary, error)
}

// FeedbackHandler handles feedback on signals.
type FeedbackHandler struct {
	deps FeedbackDependencies
}

// NewFeedbackHandler creates a new feedback handler.
func NewFeedbackHandler(deps FeedbackDependencies) *FeedbackHandler {
	return &FeedbackHandler{deps: deps}
}

type feedbackRequest struct {
	Label string `json:"label"`
	Note  string `json:"note"`
}

type feedbackResponse struct {
	OK   bool           `json:"ok"`
	Item model.Feedback `json:"item"`
}

// HandleSubmit handles POST /api/signals/{id}/feedback. The caller is
// identified by the X-User-ID header.
func (h *FeedbackHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_feedback"
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, WrapKind(op, ErrUnauthorized, err))
		return
	}
	signalID, err := pathID(r, "id")
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	var req feedbackRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFeedbackBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, fmt.Errorf("invalid JSON body: %w", err)))
		return
	}
	fb, err := h.deps.SubmitFeedback(r.Context(), signalID, userID, req.Label, req.Note)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, feedbackResponse{OK: true, Item: fb})
}

// HandleGet handles GET /api/signals/{id}/feedback?limit=N. The service
// enforces the configured range.
func (h *FeedbackHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_feedback"
	signalID, err := pathID(r, "id")
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	if r.URL.Query().Has("limit") && limit == 0 {
		writeError(w, NewKind(op, ErrBadRequest))
		return
	}
	sum, err := h.deps.GetFeedback(r.Context(), signalID, limit)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func requireUser(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if raw == "" {
		return 0, fmt.Errorf("missing %s header", HeaderUserID)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s header", HeaderUserID)
	}
	return id, nil
}
