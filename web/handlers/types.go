package handlers

import (
	"time"

	"github.com/scrypster/hindsight/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthResponse is the response format for GET /api/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// PatternResponse is the response format for GET /api/cameras/{id}/pattern.
type PatternResponse struct {
	CameraID            string    `json:"camera_id"`
	HourlyDistribution  []int     `json:"hourly_distribution"`
	DailyDistribution   []int     `json:"daily_distribution"`
	PeakHours           []int     `json:"peak_hours"`
	QuietHours          []int     `json:"quiet_hours"`
	AverageEventsPerDay float64   `json:"average_events_per_day"`
	WindowDays          int       `json:"window_days"`
	InsufficientData    bool      `json:"insufficient_data"`
	LastCalculatedAt    time.Time `json:"last_calculated_at"`
}

// EntityResponse is the response format for GET /api/entities/{id}.
type EntityResponse struct {
	ID              string           `json:"id"`
	Type            types.EntityType `json:"type"`
	DisplayName     string           `json:"display_name,omitempty"`
	OccurrenceCount int              `json:"occurrence_count"`
	LinkedEvents    int              `json:"linked_events"`
	FirstSeenAt     time.Time        `json:"first_seen_at"`
	LastSeenAt      time.Time        `json:"last_seen_at"`
	CreatedAt       time.Time        `json:"created_at"`
}

// IngestRequest is the request format for POST /api/events.
type IngestRequest struct {
	EventID      string    `json:"event_id"`
	CameraID     string    `json:"camera_id"`
	Timestamp    time.Time `json:"timestamp"`
	ThumbnailRef string    `json:"thumbnail_ref,omitempty"`
	EntityType   string    `json:"entity_type,omitempty"`
	Embedding    []float32 `json:"embedding"`
	BasePrompt   string    `json:"base_prompt"`
}

// IngestResponse is the response format for POST /api/events.
type IngestResponse struct {
	Prompt    string                `json:"prompt"`
	Included  bool                  `json:"included"`
	ABSkipped bool                  `json:"ab_skipped"`
	Telemetry types.TelemetryRecord `json:"telemetry"`
}

// SettingsUpdateRequest is the request format for PUT /api/settings.
type SettingsUpdateRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// toPatternResponse converts a stored pattern to its API projection.
func toPatternResponse(p *types.CameraActivityPattern) PatternResponse {
	return PatternResponse{
		CameraID:            p.CameraID,
		HourlyDistribution:  p.HourlyDistribution[:],
		DailyDistribution:   p.DailyDistribution[:],
		PeakHours:           p.PeakHours,
		QuietHours:          p.QuietHours,
		AverageEventsPerDay: p.AverageEventsPerDay,
		WindowDays:          p.WindowDays,
		InsufficientData:    p.InsufficientData,
		LastCalculatedAt:    p.LastCalculatedAt,
	}
}
