package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/interfaces"
)

// VariablesService defines the methods needed from the key/value store
type VariablesService interface {
	GetPair(ctx context.Context, key string) (*interfaces.KeyValuePair, error)
	Upsert(ctx context.Context, key string, value string, description string) (bool, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]interfaces.KeyValuePair, error)
}

// VariablesHandler handles HTTP requests for stored variables (API keys,
// endpoints, and other values referenced from config as {key_name}).
// Keys are case-insensitive; the store normalizes them on write.
type VariablesHandler struct {
	variables VariablesService
	logger    arbor.ILogger
}

// NewVariablesHandler creates a new variables handler
func NewVariablesHandler(variables VariablesService, logger arbor.ILogger) *VariablesHandler {
	return &VariablesHandler{
		variables: variables,
		logger:    logger,
	}
}

// ListVariablesHandler handles GET /api/variables - lists all variables with
// masked values
func (h *VariablesHandler) ListVariablesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	pairs, err := h.variables.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list variables")
		WriteError(w, http.StatusInternalServerError, "Failed to list variables")
		return
	}

	// Values are masked in listings; GET a specific key for the full value
	sanitized := make([]map[string]interface{}, len(pairs))
	for i, pair := range pairs {
		sanitized[i] = map[string]interface{}{
			"key":         pair.Key,
			"value":       maskValue(pair.Value),
			"description": pair.Description,
			"created_at":  pair.CreatedAt,
			"updated_at":  pair.UpdatedAt,
		}
	}

	h.logger.Debug().Int("count", len(pairs)).Msg("Listed variables")
	WriteJSON(w, http.StatusOK, sanitized)
}

// GetVariableHandler handles GET /api/variables/{key} - retrieves a variable
// with its full value for editing
func (h *VariablesHandler) GetVariableHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	key, ok := h.keyFromPath(w, r)
	if !ok {
		return
	}

	pair, err := h.variables.GetPair(r.Context(), key)
	if err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Variable not found")
			return
		}
		h.logger.Error().Err(err).Str("key", key).Msg("Failed to get variable")
		WriteError(w, http.StatusInternalServerError, "Failed to retrieve variable")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"key":         pair.Key,
		"value":       pair.Value,
		"description": pair.Description,
		"created_at":  pair.CreatedAt,
		"updated_at":  pair.UpdatedAt,
	})
}

// UpdateVariableHandler handles PUT /api/variables/{key} - creates or updates
// a variable. An empty value updates the description only.
func (h *VariablesHandler) UpdateVariableHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "PUT") {
		return
	}

	key, ok := h.keyFromPath(w, r)
	if !ok {
		return
	}

	var req struct {
		Value       string `json:"value"`
		Description string `json:"description"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error().Err(err).Msg("Failed to parse request body")
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	valueToSet := req.Value
	if valueToSet == "" {
		currentPair, err := h.variables.GetPair(r.Context(), key)
		if err != nil {
			if errors.Is(err, interfaces.ErrKeyNotFound) {
				WriteError(w, http.StatusBadRequest, "Value is required for a new variable")
				return
			}
			h.logger.Error().Err(err).Str("key", key).Msg("Failed to get current value for description-only update")
			WriteError(w, http.StatusInternalServerError, "Failed to retrieve current value")
			return
		}
		valueToSet = currentPair.Value
	}

	isNewKey, err := h.variables.Upsert(r.Context(), key, valueToSet, req.Description)
	if err != nil {
		h.logger.Error().Err(err).Str("key", key).Msg("Failed to upsert variable")
		WriteError(w, http.StatusInternalServerError, "Failed to save variable")
		return
	}

	statusCode := http.StatusOK
	message := "Variable updated successfully"
	if isNewKey {
		statusCode = http.StatusCreated
		message = "Variable created successfully"
	}
	h.logger.Debug().Str("key", key).Bool("created", isNewKey).Msg("Variable saved")

	WriteJSON(w, statusCode, map[string]interface{}{
		"status":  "success",
		"message": message,
		"key":     key,
		"created": isNewKey,
	})
}

// DeleteVariableHandler handles DELETE /api/variables/{key}
func (h *VariablesHandler) DeleteVariableHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}

	key, ok := h.keyFromPath(w, r)
	if !ok {
		return
	}

	if err := h.variables.Delete(r.Context(), key); err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Variable not found")
			return
		}
		h.logger.Error().Err(err).Str("key", key).Msg("Failed to delete variable")
		WriteError(w, http.StatusInternalServerError, "Failed to delete variable")
		return
	}

	h.logger.Debug().Str("key", key).Msg("Variable deleted")
	WriteSuccess(w, "Variable deleted successfully")
}

// keyFromPath extracts and decodes the key from /api/variables/{key}. Writes
// the error response and returns false when the key is missing or malformed.
func (h *VariablesHandler) keyFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	encodedKey := strings.TrimPrefix(r.URL.Path, "/api/variables/")
	if encodedKey == "" || encodedKey == r.URL.Path {
		WriteError(w, http.StatusBadRequest, "Missing key parameter")
		return "", false
	}

	key, err := url.QueryUnescape(encodedKey)
	if err != nil {
		h.logger.Error().Err(err).Str("encoded_key", encodedKey).Msg("Failed to decode key")
		WriteError(w, http.StatusBadRequest, "Invalid key encoding")
		return "", false
	}

	if key == "" {
		WriteError(w, http.StatusBadRequest, "Missing key parameter")
		return "", false
	}
	return key, true
}

// maskValue masks sensitive variable values for listing responses.
// If length < 8: returns "••••••••"
// Otherwise: returns first 4 chars + "..." + last 4 chars (e.g., "sk-1...xyz9")
func maskValue(value string) string {
	if len(value) < 8 {
		return "••••••••"
	}

	return value[:4] + "..." + value[len(value)-4:]
}
