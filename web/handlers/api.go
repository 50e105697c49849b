// Package handlers provides HTTP handlers and middleware for the Hindsight API.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/scrypster/hindsight/internal/engine"
	"github.com/scrypster/hindsight/internal/services"
	"github.com/scrypster/hindsight/internal/storage"
	"github.com/scrypster/hindsight/pkg/types"
)

// Version is reported by the health endpoint.
const Version = "0.3.0"

// maxIngestBodyBytes caps the ingest request body. Embeddings are a few KB;
// anything near this limit is malformed.
const maxIngestBodyBytes = 1 << 20

// APIHandlers contains HTTP handlers for the REST API.
type APIHandlers struct {
	store    storage.Store
	engine   *engine.Engine
	settings *services.SettingsService
}

// NewAPIHandlers creates a new APIHandlers instance.
func NewAPIHandlers(store storage.Store, eng *engine.Engine, settings *services.SettingsService) *APIHandlers {
	return &APIHandlers{
		store:    store,
		engine:   eng,
		settings: settings,
	}
}

// Health handles GET /api/health.
func (h *APIHandlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: Version})
}

// GetCameraPattern handles GET /api/cameras/{id}/pattern.
func (h *APIHandlers) GetCameraPattern(w http.ResponseWriter, r *http.Request) {
	cameraID := r.PathValue("id")
	if cameraID == "" {
		respondError(w, http.StatusBadRequest, "camera id is required", nil)
		return
	}

	pattern, err := h.store.GetPattern(r.Context(), cameraID)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "no pattern calculated for camera", nil)
		return
	}
	if errors.Is(err, storage.ErrUnavailable) {
		respondError(w, http.StatusServiceUnavailable, "pattern store unavailable", err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load pattern", err)
		return
	}

	respondJSON(w, http.StatusOK, toPatternResponse(pattern))
}

// GetEntity handles GET /api/entities/{id}.
func (h *APIHandlers) GetEntity(w http.ResponseWriter, r *http.Request) {
	entityID := r.PathValue("id")
	if entityID == "" {
		respondError(w, http.StatusBadRequest, "entity id is required", nil)
		return
	}

	entity, err := h.store.GetEntity(r.Context(), entityID)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "entity not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load entity", err)
		return
	}

	links, err := h.store.CountEntityLinks(r.Context(), entityID)
	if err != nil {
		// The entity itself loaded; serve it with a zero link count.
		log.Printf("api: WARNING failed to count links for entity %s: %v", entityID, err)
	}

	respondJSON(w, http.StatusOK, EntityResponse{
		ID:              entity.ID,
		Type:            entity.Type,
		DisplayName:     entity.DisplayName,
		OccurrenceCount: entity.OccurrenceCount,
		LinkedEvents:    links,
		FirstSeenAt:     entity.FirstSeenAt,
		LastSeenAt:      entity.LastSeenAt,
		CreatedAt:       entity.CreatedAt,
	})
}

// ListEntities handles GET /api/entities?type=person.
func (h *APIHandlers) ListEntities(w http.ResponseWriter, r *http.Request) {
	entityType := types.EntityType(r.URL.Query().Get("type"))
	if !entityType.IsValid() {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("invalid entity type %q", entityType), nil)
		return
	}

	entities, err := h.store.ListEntitiesByType(r.Context(), entityType)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list entities", err)
		return
	}

	responses := make([]EntityResponse, 0, len(entities))
	for _, entity := range entities {
		responses = append(responses, EntityResponse{
			ID:              entity.ID,
			Type:            entity.Type,
			DisplayName:     entity.DisplayName,
			OccurrenceCount: entity.OccurrenceCount,
			FirstSeenAt:     entity.FirstSeenAt,
			LastSeenAt:      entity.LastSeenAt,
			CreatedAt:       entity.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, responses)
}

// IngestEvent handles POST /api/events: it records the detection and returns
// the enriched prompt alongside the build telemetry.
func (h *APIHandlers) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.EventID == "" || req.CameraID == "" {
		respondError(w, http.StatusBadRequest, "event_id and camera_id are required", nil)
		return
	}
	if req.Timestamp.IsZero() {
		respondError(w, http.StatusBadRequest, "timestamp is required", nil)
		return
	}
	if len(req.Embedding) == 0 {
		respondError(w, http.StatusBadRequest, "embedding is required", nil)
		return
	}

	entityType := types.EntityType(req.EntityType)
	if req.EntityType != "" && !entityType.IsValid() {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("invalid entity type %q", req.EntityType), nil)
		return
	}

	event := &types.Event{
		ID:           req.EventID,
		CameraID:     req.CameraID,
		Timestamp:    req.Timestamp,
		ThumbnailRef: req.ThumbnailRef,
	}

	result, err := h.engine.EnrichDescription(r.Context(), event, req.Embedding, entityType, req.BasePrompt)
	if errors.Is(err, storage.ErrInvalidInput) {
		respondError(w, http.StatusBadRequest, "invalid event", err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to ingest event", err)
		return
	}

	respondJSON(w, http.StatusOK, IngestResponse{
		Prompt:    result.Build.Prompt,
		Included:  result.Build.Included,
		ABSkipped: result.Build.ABSkipped,
		Telemetry: result.Build.Telemetry,
	})
}

// GetSettings handles GET /api/settings.
func (h *APIHandlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.settings.Snapshot())
}

// UpdateSettings handles PUT /api/settings.
func (h *APIHandlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Key == "" {
		respondError(w, http.StatusBadRequest, "key is required", nil)
		return
	}

	if err := h.settings.Set(r.Context(), req.Key, req.Value); err != nil {
		if errors.Is(err, storage.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, "invalid setting", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to save setting", err)
		return
	}

	respondJSON(w, http.StatusOK, h.settings.Snapshot())
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers already sent; nothing more to do than log.
		log.Printf("api: failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}
	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}
	respondJSON(w, statusCode, errResp)
}
