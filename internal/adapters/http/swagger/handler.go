// Package swagger serves the embedded OpenAPI document.
package swagger

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Path is where the OpenAPI document is served.
const Path = "/openapi.yaml"

// Register attaches GET /openapi.yaml to r.
func Register(_ context.Context, r chi.Router) {
	if r == nil {
		panic("router is nil")
	}
	r.Get(Path, serveSpec)
	r.Head(Path, serveSpec)
}

func serveSpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(OpenAPI)
}
