package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/agiraud1/radar-fr/internal/domain/linkcheck"
	"github.com/agiraud1/radar-fr/internal/domain/model"
)

// Bounds of the internal endpoints.
const (
	maxLookbackDays   = 90
	maxSweepLimit     = 1000
	maxCollectorLimit = 50
	maxIngestBody     = 4 << 20
)

// AdminDependencies defines the interface for internal operations.
type AdminDependencies interface {
	Recompute(ctx context.Context, date *time.Time) (int, error)
	CheckLinks(ctx context.Context, p linkcheck.Params) (linkcheck.Report, error)
	CollectAndIngest(ctx context.Context, limit int) (model.IngestReport, error)
	Ingest(ctx context.Context, source string, items []model.RawItem) (model.IngestReport, error)
	Today() time.Time
}

// AdminHandler handles the token-protected internal routes.
type AdminHandler struct {
	deps AdminDependencies
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDependencies) *AdminHandler {
	return &AdminHandler{deps: deps}
}

type recomputeResponse struct {
	OK          bool   `json:"ok"`
	UpdatedRows int    `json:"updated_rows"`
	Date        string `json:"date"`
}

type sweepResponse struct {
	OK bool `json:"ok"`
	linkcheck.Report
}

type ingestResponse struct {
	OK bool `json:"ok"`
	model.IngestReport
}

// HandleScoreDaily handles POST /admin/score-daily?date=YYYY-MM-DD.
func (h *AdminHandler) HandleScoreDaily(w http.ResponseWriter, r *http.Request) {
	const op = "api.score_daily"
	date, err := queryDate(r, "date")
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	day := h.deps.Today()
	if date != nil {
		day = *date
	}
	n, err := h.deps.Recompute(r.Context(), &day)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, recomputeResponse{OK: true, UpdatedRows: n, Date: model.FormatDate(day)})
}

// HandleCheckLinks handles POST /admin/check-links?lookback_days=N&limit=M.
func (h *AdminHandler) HandleCheckLinks(w http.ResponseWriter, r *http.Request) {
	const op = "api.check_links"
	lookback, err := queryIntRange(r, "lookback_days", 1, maxLookbackDays)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	limit, err := queryIntRange(r, "limit", 1, maxSweepLimit)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	rep, err := h.deps.CheckLinks(r.Context(), linkcheck.Params{LookbackDays: lookback, Limit: limit})
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse{OK: true, Report: rep})
}

// HandleCollectBodacc handles POST /collector/bodacc/ingest?limit=N (1..50).
func (h *AdminHandler) HandleCollectBodacc(w http.ResponseWriter, r *http.Request) {
	const op = "api.collect_bodacc"
	limit, err := queryIntRange(r, "limit", 1, maxCollectorLimit)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	rep, err := h.deps.CollectAndIngest(r.Context(), limit)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{OK: true, IngestReport: rep})
}

type ingestItem struct {
	Date string `json:"date"`
	Text string `json:"text"`
	URL  string `json:"url"`
}

type ingestRequest struct {
	Source string       `json:"source"`
	Items  []ingestItem `json:"items"`
}

// HandleIngest handles POST /collector/ingest with a JSON batch of notices.
func (h *AdminHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	const op = "api.ingest"
	var req ingestRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, fmt.Errorf("invalid JSON body: %w", err)))
		return
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		writeError(w, WrapKind(op, ErrBadRequest, fmt.Errorf("source is required")))
		return
	}
	items := make([]model.RawItem, 0, len(req.Items))
	for i, it := range req.Items {
		d, err := model.ParseDate(it.Date)
		if err != nil {
			writeError(w, WrapKind(op, ErrBadRequest, fmt.Errorf("items[%d].date: %w", i, err)))
			return
		}
		items = append(items, model.RawItem{Date: d, Text: it.Text, URL: it.URL})
	}
	rep, err := h.deps.Ingest(r.Context(), source, items)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{OK: true, IngestReport: rep})
}
