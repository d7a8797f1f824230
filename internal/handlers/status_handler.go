package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
)

// StatusHandler handles HTTP requests for application status
type StatusHandler struct {
	workpapers interfaces.WorkpaperStorage
	runs       interfaces.RunStorage
	logger     arbor.ILogger
	startedAt  time.Time
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(workpapers interfaces.WorkpaperStorage, runs interfaces.RunStorage, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		workpapers: workpapers,
		runs:       runs,
		logger:     logger,
		startedAt:  time.Now().UTC(),
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	workpaperCount, err := h.workpapers.Count()
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to count workpapers for status")
	}

	runCount := 0
	activeRuns := 0
	if runs, err := h.runs.List(); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to list runs for status")
	} else {
		runCount = len(runs)
		for _, run := range runs {
			if !run.State.Terminal() {
				activeRuns++
			}
		}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"version":        common.GetVersion(),
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
		"workpapers":     workpaperCount,
		"runs":           runCount,
		"active_runs":    activeRuns,
	})
}
