package types

import "time"

// Event represents a single camera event as delivered by the external
// description-generation pipeline. Capture, motion detection and the
// embedding generator itself are outside this system; an Event arrives
// here already timestamped and (usually) with a precomputed embedding.
type Event struct {
	// ID is the unique identifier of the event.
	ID string `json:"id"`

	// CameraID identifies the camera that produced the event.
	CameraID string `json:"camera_id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// ThumbnailRef is an opaque reference to the event thumbnail,
	// passed through for downstream consumers. Never dereferenced here.
	ThumbnailRef string `json:"thumbnail_ref,omitempty"`
}

// EventEmbedding is the fixed-length vector representing an event's visual
// content. Exactly one embedding exists per event and it is immutable once
// stored.
type EventEmbedding struct {
	EventID   string    `json:"event_id"`
	Vector    []float32 `json:"vector"`
	CreatedAt time.Time `json:"created_at"`
}

// EmbeddingCandidate is an embedding paired with the timestamp of its event,
// as returned by candidate queries for similarity search.
type EmbeddingCandidate struct {
	EventID    string
	Vector     []float32
	OccurredAt time.Time
}
