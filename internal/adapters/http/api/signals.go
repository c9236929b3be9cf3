package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/agiraud1/radar-fr/internal/domain/model"
	"github.com/agiraud1/radar-fr/internal/domain/types"
)

// SignalsDependencies defines the interface for signal and company reads.
type SignalsDependencies interface {
	ListSignals(ctx context.Context, f model.SignalFilter) (types.SignalPage, error)
	Company(ctx context.Context, id int64) (types.CompanyDetail, error)
}

// SignalsHandler handles signal listings and company lookups.
type SignalsHandler struct {
	deps SignalsDependencies
}

// NewSignalsHandler creates a new signals handler.
func NewSignalsHandler(deps SignalsDependencies) *SignalsHandler {
	return &SignalsHandler{deps: deps}
}

// HandleList handles GET /api/signals with q, type, label, date_from,
// date_to, limit and offset filters.
func (h *SignalsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_signals"
	f, err := parseSignalFilter(r)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	page, err := h.deps.ListSignals(r.Context(), f)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleCompany handles GET /api/companies/{id}.
func (h *SignalsHandler) HandleCompany(w http.ResponseWriter, r *http.Request) {
	const op = "api.company"
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	detail, err := h.deps.Company(r.Context(), id)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func parseSignalFilter(r *http.Request) (model.SignalFilter, error) {
	q := r.URL.Query()
	f := model.SignalFilter{
		Query: strings.TrimSpace(q.Get("q")),
		Type:  model.SignalType(strings.TrimSpace(q.Get("type"))),
	}
	if raw := strings.TrimSpace(q.Get("label")); raw != "" {
		label, err := model.ParseLabel(raw)
		if err != nil {
			return f, err
		}
		f.Label = label
	}
	var err error
	if f.DateFrom, err = queryDate(r, "date_from"); err != nil {
		return f, err
	}
	if f.DateTo, err = queryDate(r, "date_to"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		return f, err
	}
	if q.Has("limit") && f.Limit == 0 {
		return f, NewKind("api.signal_filter", ErrBadRequest)
	}
	if f.Offset, err = queryInt(r, "offset"); err != nil {
		return f, err
	}
	return f, nil
}
