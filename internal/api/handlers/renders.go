package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/verumIgnis/busmapgen/internal/api/models"
	"github.com/verumIgnis/busmapgen/internal/config"
	"github.com/verumIgnis/busmapgen/internal/db"
	"github.com/verumIgnis/busmapgen/internal/job"
)

// RunRepository defines the read operations on stored render runs
type RunRepository interface {
	ListRuns(ctx context.Context, limit int) ([]db.Run, error)
	GetRun(ctx context.Context, id string) (*db.Run, error)
}

// Renderer renders one map
type Renderer interface {
	Render(ctx context.Context, req job.Request) (*job.Report, error)
}

// SettingsLoader returns a fresh copy of the render settings
type SettingsLoader func() (*config.Settings, error)

// RenderHandler handles HTTP requests for map renders
type RenderHandler struct {
	runs     RunRepository
	renderer Renderer
	settings SettingsLoader
	timeout  time.Duration
}

// NewRenderHandler creates a new handler. Renders are cut off after timeout.
func NewRenderHandler(runs RunRepository, renderer Renderer, settings SettingsLoader, timeout time.Duration) *RenderHandler {
	return &RenderHandler{runs: runs, renderer: renderer, settings: settings, timeout: timeout}
}

// ErrorResponse is the JSON error response structure
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ListRendersResponse is the JSON response for GET /api/renders
type ListRendersResponse struct {
	Runs  []db.Run `json:"runs"`
	Count int      `json:"count"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := ErrorResponse{Error: msg}
	if err != nil {
		resp.Details = map[string]interface{}{"internal": err.Error()}
	}
	writeJSON(w, status, resp)
}

// ListRenders handles GET /api/renders
// Returns the most recent runs, newest first. ?limit= caps the list (default 50).
func (h *RenderHandler) ListRenders(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500", nil)
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve renders", err)
		return
	}

	writeJSON(w, http.StatusOK, ListRendersResponse{Runs: runs, Count: len(runs)})
}

// GetRender handles GET /api/renders/{runId}
func (h *RenderHandler) GetRender(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GetRenderImage handles GET /api/renders/{runId}/image
func (h *RenderHandler) GetRenderImage(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if run.Status != db.RunFinished || run.OutputPath == "" {
		writeError(w, http.StatusNotFound, "Render has no image", nil)
		return
	}

	f, err := os.Open(run.OutputPath)
	if err != nil {
		writeError(w, http.StatusNotFound, "Render image no longer exists", nil)
		return
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read render image", err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	http.ServeContent(w, r, filepath.Base(run.OutputPath), fi.ModTime(), f)
}

func (h *RenderHandler) lookup(w http.ResponseWriter, r *http.Request) (*db.Run, bool) {
	runID := chi.URLParam(r, "runId")
	if !models.ValidRunID(runID) {
		writeError(w, http.StatusBadRequest, "runId must be a UUID", nil)
		return nil, false
	}

	run, err := h.runs.GetRun(r.Context(), runID)
	if errors.Is(err, db.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "Render not found", nil)
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve render", err)
		return nil, false
	}
	return run, true
}

// CreateRender handles POST /api/renders
// Renders one map for a preset or an explicit box. Renders run one at a time.
func (h *RenderHandler) CreateRender(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRenderRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	settings, err := h.settings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load render settings", err)
		return
	}
	if req.Preset != "" {
		if err := settings.UsePreset(req.Preset); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
	} else {
		settings.BoundingBox = req.BoundingBox
	}
	if req.MetersPerPixel != nil {
		settings.MetersPerPixel = *req.MetersPerPixel
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	report, err := h.renderer.Render(ctx, job.Request{Settings: settings, Preset: req.Preset})
	if errors.Is(err, job.ErrInvalidSettings) {
		writeError(w, http.StatusBadRequest, "Invalid render settings", err)
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusGatewayTimeout, "Render timed out", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Render failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, models.RenderSummary{
		RunID:       report.RunID,
		File:        filepath.Base(report.Path),
		Width:       report.Width,
		Height:      report.Height,
		TotalRoutes: report.Total,
		DrawnRoutes: report.Drawn,
		Rejected:    report.Tally.Map(),
		RenderedAt:  time.Now().UTC(),
	})
}
