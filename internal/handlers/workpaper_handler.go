package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

// WorkpaperLoader defines the methods needed from the ingest service
type WorkpaperLoader interface {
	Discover() ([]string, error)
	LoadWorkpaper(ctx context.Context, seedPath string) (*models.Workpaper, error)
}

// WorkpaperHandler handles workpaper HTTP requests
type WorkpaperHandler struct {
	loader  WorkpaperLoader
	storage interfaces.WorkpaperStorage
	logger  arbor.ILogger
}

// NewWorkpaperHandler creates a new workpaper handler
func NewWorkpaperHandler(loader WorkpaperLoader, storage interfaces.WorkpaperStorage, logger arbor.ILogger) *WorkpaperHandler {
	return &WorkpaperHandler{
		loader:  loader,
		storage: storage,
		logger:  logger,
	}
}

// ListWorkpapersHandler handles GET /api/workpapers - lists workpaper summaries
func (h *WorkpaperHandler) ListWorkpapersHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	workpapers, err := h.storage.List()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list workpapers")
		WriteError(w, http.StatusInternalServerError, "Failed to list workpapers")
		return
	}

	summaries := make([]map[string]interface{}, len(workpapers))
	for i, wp := range workpapers {
		summaries[i] = map[string]interface{}{
			"id":                wp.ID,
			"company":           wp.Company.Name,
			"stock_code":        wp.Company.StockCode,
			"industry":          wp.Company.Industry,
			"reports":           len(wp.Reports),
			"completed_modules": len(wp.CompletedModules()),
			"created_at":        wp.CreatedAt,
			"updated_at":        wp.UpdatedAt,
		}
	}

	page, pageSize := GetPaginationParams(r)
	pageData, pagination := Paginate(summaries, page, pageSize)

	h.logger.Debug().Int("count", len(workpapers)).Msg("Listed workpapers")
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"workpapers": pageData,
		"pagination": pagination,
	})
}

// GetWorkpaperHandler handles GET /api/workpapers/{id} - retrieves a full workpaper
func (h *WorkpaperHandler) GetWorkpaperHandler(w http.ResponseWriter, r *http.Request) {
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

	WriteJSON(w, http.StatusOK, wp)
}

// CreateWorkpaperHandler handles POST /api/workpapers - loads a workpaper from a seed directory
func (h *WorkpaperHandler) CreateWorkpaperHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req struct {
		SeedPath string `json:"seed_path"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error().Err(err).Msg("Failed to parse request body")
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.SeedPath == "" {
		WriteError(w, http.StatusBadRequest, "seed_path is required")
		return
	}

	wp, err := h.loader.LoadWorkpaper(r.Context(), req.SeedPath)
	if err != nil {
		h.logger.Error().Err(err).Str("seed_path", req.SeedPath).Msg("Failed to load workpaper from seed")
		WriteError(w, http.StatusUnprocessableEntity, "Failed to load workpaper: "+err.Error())
		return
	}

	if err := h.storage.Save(wp); err != nil {
		h.logger.Error().Err(err).Str("workpaper_id", wp.ID).Msg("Failed to save workpaper")
		WriteError(w, http.StatusInternalServerError, "Failed to save workpaper")
		return
	}

	h.logger.Info().
		Str("workpaper_id", wp.ID).
		Str("company", wp.Company.Name).
		Int("reports", len(wp.Reports)).
		Msg("Workpaper created from seed")

	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"status":       "success",
		"workpaper_id": wp.ID,
		"company":      wp.Company.Name,
		"reports":      len(wp.Reports),
	})
}

// DeleteWorkpaperHandler handles DELETE /api/workpapers/{id}
func (h *WorkpaperHandler) DeleteWorkpaperHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}

	id := workpaperIDFromPath(r.URL.Path)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Missing workpaper ID")
		return
	}

	if err := h.storage.Delete(id); err != nil {
		h.logger.Error().Err(err).Str("workpaper_id", id).Msg("Failed to delete workpaper")
		WriteError(w, http.StatusInternalServerError, "Failed to delete workpaper")
		return
	}

	h.logger.Info().Str("workpaper_id", id).Msg("Workpaper deleted")
	WriteSuccess(w, "Workpaper deleted successfully")
}

// ListSeedsHandler handles GET /api/seeds - lists seed directories available for ingestion
func (h *WorkpaperHandler) ListSeedsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	seeds, err := h.loader.Discover()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to discover seeds")
		WriteError(w, http.StatusInternalServerError, "Failed to discover seeds")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"seeds": seeds,
		"count": len(seeds),
	})
}

// workpaperIDFromPath extracts the workpaper ID from paths of the form
// /api/workpapers/{id} or /api/workpapers/{id}/{action}.
func workpaperIDFromPath(path string) string {
	trimmed := strings.TrimPrefix(path, "/api/workpapers/")
	if trimmed == path {
		return ""
	}
	if idx := strings.Index(trimmed, "/"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	decoded, err := url.QueryUnescape(trimmed)
	if err != nil {
		return trimmed
	}
	return decoded
}
