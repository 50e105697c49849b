package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/hindsight/internal/engine"
	"github.com/scrypster/hindsight/internal/services"
	"github.com/scrypster/hindsight/internal/storage/sqlite"
	"github.com/scrypster/hindsight/pkg/types"
)

// newTestHandlers wires handlers over an in-memory SQLite store with a
// started engine and settings service, mirroring production wiring.
func newTestHandlers(t *testing.T) (*APIHandlers, *sqlite.Store) {
	t.Helper()

	store, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	settings, err := services.NewSettingsService(store)
	require.NoError(t, err)

	eng, err := engine.NewEngine(store, settings, engine.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(func() { _ = eng.Shutdown(context.Background()) })

	return NewAPIHandlers(store, eng, settings), store
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	h.Health(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, Version, resp.Version)
}

func TestGetCameraPattern_NotFound(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest("GET", "/api/cameras/cam-unknown/pattern", nil)
	req.SetPathValue("id", "cam-unknown")
	w := httptest.NewRecorder()
	h.GetCameraPattern(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "no pattern")
}

func TestGetCameraPattern_StoreUnavailable(t *testing.T) {
	h, store := newTestHandlers(t)

	// A closed connection fails every query the way a down backend would.
	require.NoError(t, store.Close())

	req := httptest.NewRequest("GET", "/api/cameras/cam-front/pattern", nil)
	req.SetPathValue("id", "cam-front")
	w := httptest.NewRecorder()
	h.GetCameraPattern(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "unavailable")
}

func TestGetCameraPattern_Found(t *testing.T) {
	h, store := newTestHandlers(t)

	pattern := &types.CameraActivityPattern{
		CameraID:            "cam-front",
		PeakHours:           []int{8},
		QuietHours:          []int{3},
		AverageEventsPerDay: 6.5,
		WindowDays:          30,
		LastCalculatedAt:    time.Now().UTC(),
	}
	pattern.HourlyDistribution[8] = 42
	require.NoError(t, store.UpsertPattern(context.Background(), pattern))

	req := httptest.NewRequest("GET", "/api/cameras/cam-front/pattern", nil)
	req.SetPathValue("id", "cam-front")
	w := httptest.NewRecorder()
	h.GetCameraPattern(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp PatternResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "cam-front", resp.CameraID)
	assert.Equal(t, []int{8}, resp.PeakHours)
	assert.Equal(t, 6.5, resp.AverageEventsPerDay)
	require.Len(t, resp.HourlyDistribution, 24)
	assert.Equal(t, 42, resp.HourlyDistribution[8])
	assert.False(t, resp.InsufficientData)
}

func TestGetEntity_NotFound(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest("GET", "/api/entities/ent-unknown", nil)
	req.SetPathValue("id", "ent-unknown")
	w := httptest.NewRecorder()
	h.GetEntity(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "entity not found")
}

func TestGetEntity_Found(t *testing.T) {
	h, store := newTestHandlers(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.CreateEntity(ctx, &types.Entity{
		ID:                   "ent-1",
		Type:                 types.EntityTypePerson,
		DisplayName:          "Mail carrier",
		RepresentativeVector: []float32{1, 0},
		OccurrenceCount:      3,
		FirstSeenAt:          now.Add(-72 * time.Hour),
		LastSeenAt:           now,
	}))
	_, err := store.LinkEntityEvent(ctx, &types.EntityEventLink{
		EventID: "evt-1", EntityID: "ent-1", SimilarityScore: 0.92,
	})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/entities/ent-1", nil)
	req.SetPathValue("id", "ent-1")
	w := httptest.NewRecorder()
	h.GetEntity(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp EntityResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ent-1", resp.ID)
	assert.Equal(t, types.EntityTypePerson, resp.Type)
	assert.Equal(t, "Mail carrier", resp.DisplayName)
	assert.Equal(t, 3, resp.OccurrenceCount)
	assert.Equal(t, 1, resp.LinkedEvents)
}

func TestListEntities(t *testing.T) {
	h, store := newTestHandlers(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for _, id := range []string{"ent-1", "ent-2"} {
		require.NoError(t, store.CreateEntity(ctx, &types.Entity{
			ID: id, Type: types.EntityTypeVehicle,
			RepresentativeVector: []float32{1, 0},
			OccurrenceCount:      1, FirstSeenAt: now, LastSeenAt: now,
		}))
	}

	req := httptest.NewRequest("GET", "/api/entities?type=vehicle", nil)
	w := httptest.NewRecorder()
	h.ListEntities(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp []EntityResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp, 2)
}

func TestListEntities_InvalidType(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest("GET", "/api/entities?type=drone", nil)
	w := httptest.NewRecorder()
	h.ListEntities(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid entity type")
}

func ingestBody(t *testing.T, req IngestRequest) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestIngestEvent(t *testing.T) {
	h, store := newTestHandlers(t)

	body := ingestBody(t, IngestRequest{
		EventID:    "evt-1",
		CameraID:   "cam-front",
		Timestamp:  time.Now().UTC(),
		EntityType: "person",
		Embedding:  []float32{0.6, 0.8},
		BasePrompt: "Describe this security camera event.",
	})

	req := httptest.NewRequest("POST", "/api/events", body)
	w := httptest.NewRecorder()
	h.IngestEvent(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp IngestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Describe this security camera event.", resp.Prompt)
	assert.False(t, resp.ABSkipped)
	assert.True(t, resp.Telemetry.EntityIsNew)

	// The event and embedding were persisted.
	embedding, err := store.GetEmbedding(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Len(t, embedding.Vector, 2)
}

func TestIngestEvent_RepeatVisitorIncludesContext(t *testing.T) {
	h, _ := newTestHandlers(t)

	vector := []float32{0.6, 0.8}
	base := time.Now().UTC().Add(-48 * time.Hour)
	for i, id := range []string{"evt-1", "evt-2", "evt-3"} {
		body := ingestBody(t, IngestRequest{
			EventID:    id,
			CameraID:   "cam-front",
			Timestamp:  base.Add(time.Duration(i) * 12 * time.Hour),
			EntityType: "person",
			Embedding:  vector,
			BasePrompt: "Describe this security camera event.",
		})
		req := httptest.NewRequest("POST", "/api/events", body)
		w := httptest.NewRecorder()
		h.IngestEvent(w, req)
		require.Equal(t, http.StatusOK, w.Code, "ingest %s", id)
	}

	body := ingestBody(t, IngestRequest{
		EventID:    "evt-4",
		CameraID:   "cam-front",
		Timestamp:  time.Now().UTC(),
		EntityType: "person",
		Embedding:  vector,
		BasePrompt: "Describe this security camera event.",
	})
	req := httptest.NewRequest("POST", "/api/events", body)
	w := httptest.NewRecorder()
	h.IngestEvent(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp IngestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Included)
	assert.Contains(t, resp.Prompt, "Historical context")
	assert.False(t, resp.Telemetry.EntityIsNew)
	assert.Greater(t, resp.Telemetry.SimilarCount, 0)
}

func TestIngestEvent_Validation(t *testing.T) {
	h, _ := newTestHandlers(t)

	cases := []struct {
		name    string
		req     IngestRequest
		wantMsg string
	}{
		{
			name: "missing event_id",
			req: IngestRequest{
				CameraID: "cam", Timestamp: time.Now(), Embedding: []float32{1},
			},
			wantMsg: "event_id and camera_id",
		},
		{
			name: "missing timestamp",
			req: IngestRequest{
				EventID: "evt", CameraID: "cam", Embedding: []float32{1},
			},
			wantMsg: "timestamp",
		},
		{
			name: "missing embedding",
			req: IngestRequest{
				EventID: "evt", CameraID: "cam", Timestamp: time.Now(),
			},
			wantMsg: "embedding",
		},
		{
			name: "bad entity type",
			req: IngestRequest{
				EventID: "evt", CameraID: "cam", Timestamp: time.Now(),
				Embedding: []float32{1}, EntityType: "ghost",
			},
			wantMsg: "invalid entity type",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/events", ingestBody(t, tc.req))
			w := httptest.NewRecorder()
			h.IngestEvent(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tc.wantMsg)
		})
	}
}

func TestIngestEvent_MalformedBody(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest("POST", "/api/events", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	h.IngestEvent(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}

func TestGetAndUpdateSettings(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest("GET", "/api/settings", nil)
	w := httptest.NewRecorder()
	h.GetSettings(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var snapshot types.Settings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.True(t, snapshot.EnableContext)

	update, err := json.Marshal(SettingsUpdateRequest{
		Key:   services.KeyABTestSkipPercent,
		Value: "10",
	})
	require.NoError(t, err)

	req = httptest.NewRequest("PUT", "/api/settings", bytes.NewBuffer(update))
	w = httptest.NewRecorder()
	h.UpdateSettings(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.Equal(t, 10, snapshot.ABTestSkipPercent)
}

func TestUpdateSettings_UnknownKey(t *testing.T) {
	h, _ := newTestHandlers(t)

	update, err := json.Marshal(SettingsUpdateRequest{Key: "bogus", Value: "1"})
	require.NoError(t, err)

	req := httptest.NewRequest("PUT", "/api/settings", bytes.NewBuffer(update))
	w := httptest.NewRecorder()
	h.UpdateSettings(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid setting")
}
