package smoke

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/agiraud1/radar-fr/internal/adapters/http/api"
	"github.com/agiraud1/radar-fr/internal/domain/model"
	"github.com/agiraud1/radar-fr/internal/domain/types"
)

// maxErrorBody bounds how much of an error response is quoted.
const maxErrorBody = 512

// client is a thin JSON client for the radar API.
type client struct {
	base  string
	token string
	http  *http.Client
}

func newClient(base, token string, hc *http.Client) *client {
	return &client{base: strings.TrimRight(base, "/"), token: token, http: hc}
}

func (c *client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set(api.HeaderInternalToken, c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *client) ready(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/readyz", nil, nil, nil)
}

type ingestBody struct {
	Source string   `json:"source"`
	Items  []Notice `json:"items"`
}

func (c *client) ingest(ctx context.Context, items []Notice) (model.IngestReport, error) {
	var rep model.IngestReport
	err := c.do(ctx, http.MethodPost, "/collector/ingest", nil, ingestBody{Source: Source, Items: items}, &rep)
	return rep, err
}

func (c *client) recompute(ctx context.Context, date string) (int, error) {
	var out struct {
		UpdatedRows int `json:"updated_rows"`
	}
	err := c.do(ctx, http.MethodPost, "/admin/score-daily", url.Values{"date": {date}}, nil, &out)
	return out.UpdatedRows, err
}

func (c *client) scores(ctx context.Context, date string, limit int) ([]types.ScoreEntry, error) {
	var out struct {
		Items []types.ScoreEntry `json:"items"`
	}
	q := url.Values{"date": {date}, "limit": {strconv.Itoa(limit)}}
	err := c.do(ctx, http.MethodGet, "/api/scores/daily", q, nil, &out)
	return out.Items, err
}
