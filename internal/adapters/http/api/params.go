package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agiraud1/radar-fr/internal/domain/model"
)

// queryInt parses an optional integer query parameter; absent means 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrBadRequest, name)
	}
	return n, nil
}

// queryIntRange parses an optional integer that must lie in lo..hi when set.
func queryIntRange(r *http.Request, name string, lo, hi int) (int, error) {
	n, err := queryInt(r, name)
	if err != nil {
		return 0, err
	}
	if r.URL.Query().Has(name) && (n < lo || n > hi) {
		return 0, fmt.Errorf("%w: %s must be in %d..%d", ErrBadRequest, name, lo, hi)
	}
	return n, nil
}

// queryDate parses an optional YYYY-MM-DD query parameter.
func queryDate(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	d, err := model.ParseDate(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: expected YYYY-MM-DD", ErrBadRequest, name)
	}
	return &d, nil
}

// pathID parses a positive integer path parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: invalid %s", ErrBadRequest, name)
	}
	return id, nil
}
