package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/verumIgnis/busmapgen/internal/filter"
)

// RouteLister is the part of the route store the health check needs
type RouteLister interface {
	ListRoutes(ctx context.Context) ([]filter.RouteRecord, error)
}

// HealthHandler reports whether the route source is reachable
type HealthHandler struct {
	routes RouteLister
	source string
}

// NewHealthHandler creates a health handler for the named route source
func NewHealthHandler(routes RouteLister, source string) *HealthHandler {
	return &HealthHandler{routes: routes, source: source}
}

// HealthResponse is the JSON response for GET /health
type HealthResponse struct {
	Status    string    `json:"status"`
	Source    string    `json:"source"`
	Routes    int       `json:"routes"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Source: h.source, Timestamp: time.Now().UTC()}
	routes, err := h.routes.ListRoutes(ctx)
	if err != nil {
		resp.Status = "error"
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	resp.Routes = len(routes)
	writeJSON(w, http.StatusOK, resp)
}
