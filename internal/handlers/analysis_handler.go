package handlers

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

// AnalysisRunner defines the methods needed from the analysis pipeline
type AnalysisRunner interface {
	Run(ctx context.Context, workpaperID string) (*models.AnalysisRun, error)
}

// AnalysisHandler handles analysis run HTTP requests. Runs execute in the
// background; progress is streamed over the websocket and the run record
// is polled via GET /api/runs/{id}.
type AnalysisHandler struct {
	runner     AnalysisRunner
	workpapers interfaces.WorkpaperStorage
	runs       interfaces.RunStorage
	logger     arbor.ILogger

	mu       sync.Mutex
	inFlight map[string]bool // workpaper IDs with a run in progress
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(runner AnalysisRunner, workpapers interfaces.WorkpaperStorage, runs interfaces.RunStorage, logger arbor.ILogger) *AnalysisHandler {
	return &AnalysisHandler{
		runner:     runner,
		workpapers: workpapers,
		runs:       runs,
		logger:     logger,
		inFlight:   make(map[string]bool),
	}
}

// StartAnalysisHandler handles POST /api/workpapers/{id}/analyze - starts or
// resumes an analysis run in the background. Only one run per workpaper may
// be in flight at a time.
func (h *AnalysisHandler) StartAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	id := workpaperIDFromPath(r.URL.Path)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Missing workpaper ID")
		return
	}

	if _, err := h.workpapers.Get(id); err != nil {
		WriteError(w, http.StatusNotFound, "Workpaper not found")
		return
	}

	if !h.tryAcquire(id) {
		WriteError(w, http.StatusConflict, "Analysis already running for this workpaper")
		return
	}

	// The run outlives the HTTP request, so it gets its own context.
	go func() {
		defer h.release(id)

		run, err := h.runner.Run(context.Background(), id)
		if err != nil {
			h.logger.Error().Err(err).Str("workpaper_id", id).Msg("Analysis run failed")
			return
		}
		h.logger.Info().
			Str("workpaper_id", id).
			Str("run_id", run.ID).
			Str("state", string(run.State)).
			Msg("Analysis run finished")
	}()

	h.logger.Info().Str("workpaper_id", id).Msg("Analysis run started")
	WriteJSON(w, http.StatusAccepted, map[string]string{
		"status":       "started",
		"workpaper_id": id,
		"message":      "Analysis started. Track progress via /ws or poll /api/workpapers/" + id + "/runs",
	})
}

// GetRunHandler handles GET /api/runs/{id} - retrieves a single run record
func (h *AnalysisHandler) GetRunHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	if id == "" || id == r.URL.Path {
		WriteError(w, http.StatusBadRequest, "Missing run ID")
		return
	}

	run, err := h.runs.Get(id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Run not found")
		return
	}

	WriteJSON(w, http.StatusOK, run)
}

// ListRunsHandler handles GET /api/workpapers/{id}/runs - lists runs for a
// workpaper, newest first
func (h *AnalysisHandler) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := workpaperIDFromPath(r.URL.Path)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Missing workpaper ID")
		return
	}

	runs, err := h.runs.GetByWorkpaper(id)
	if err != nil {
		h.logger.Error().Err(err).Str("workpaper_id", id).Msg("Failed to list runs")
		WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"workpaper_id": id,
		"runs":         runs,
		"count":        len(runs),
	})
}

// tryAcquire marks the workpaper as having a run in flight. Returns false
// if one is already running.
func (h *AnalysisHandler) tryAcquire(workpaperID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.inFlight[workpaperID] {
		return false
	}
	h.inFlight[workpaperID] = true
	return true
}

func (h *AnalysisHandler) release(workpaperID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.inFlight, workpaperID)
}
