package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/aestimo/internal/services/report"
)

// ReportRenderer defines the methods needed from the report service
type ReportRenderer interface {
	Render(wp *models.Workpaper) ([]byte, error)
}

// ReportHandler serves rendered analysis reports
type ReportHandler struct {
	renderer ReportRenderer
	storage  interfaces.WorkpaperStorage
	logger   arbor.ILogger
}

// NewReportHandler creates a new report handler
func NewReportHandler(renderer ReportRenderer, storage interfaces.WorkpaperStorage, logger arbor.ILogger) *ReportHandler {
	return &ReportHandler{
		renderer: renderer,
		storage:  storage,
		logger:   logger,
	}
}

// GetReportHandler handles GET /api/workpapers/{id}/report - renders the
// analysis report for the workpaper's current state. Pass ?download=1 to
// receive it as an attachment.
func (h *ReportHandler) GetReportHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := workpaperIDFromPath(r.URL.Path)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Missing workpaper ID")
		return
	}

	wp, err := h.storage.Get(id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Workpaper not found")
		return
	}

	content, err := h.renderer.Render(wp)
	if err != nil {
		h.logger.Error().Err(err).Str("workpaper_id", id).Msg("Failed to render report")
		WriteError(w, http.StatusInternalServerError, "Failed to render report")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if r.URL.Query().Get("download") == "1" {
		w.Header().Set("Content-Disposition", "attachment; filename="+report.ReportFileName)
	}
	w.WriteHeader(http.StatusOK)
	w.Write(content)

	h.logger.Debug().
		Str("workpaper_id", id).
		Int("bytes", len(content)).
		Msg("Report served")
}
